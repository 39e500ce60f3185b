package hd

import (
	"encoding/binary"
	"fmt"

	"github.com/glinharesb/cxemu/internal/cxerr"
	"github.com/glinharesb/cxemu/internal/hashes"
)

const ed25519SeedTag = "ed25519 seed"

// SLIP10Ed25519 derives path from seed with SLIP-10 on Ed25519. Only hardened
// levels exist on this curve. The key is an RFC 8032 seed.
func SLIP10Ed25519(seed []byte, path Path) (*Node, error) {
	if !path.AllHardened() {
		return nil, fmt.Errorf("slip10 ed25519 path %v has a normal level: %w", path, cxerr.ErrInvalidParameter)
	}
	I := hashes.HMACSHA512([]byte(ed25519SeedTag), seed)
	for _, idx := range path {
		data := append([]byte{0x00}, I[:32]...)
		I = hashes.HMACSHA512(I[32:], binary.BigEndian.AppendUint32(data, idx))
	}
	return &Node{Key: I[:32], ChainCode: I[32:]}, nil
}
