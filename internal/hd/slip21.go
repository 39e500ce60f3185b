package hd

import (
	"fmt"

	"github.com/glinharesb/cxemu/internal/cxerr"
	"github.com/glinharesb/cxemu/internal/hashes"
)

// SLIP21 returns the 32-byte symmetric key of the single-level node label.
// Labels start with a zero byte.
func SLIP21(seed, label []byte) ([]byte, error) {
	if len(label) == 0 || label[0] != 0x00 {
		return nil, fmt.Errorf("slip21 label must start with 0x00: %w", cxerr.ErrInvalidParameter)
	}
	m := hashes.HMACSHA512([]byte("Symmetric key seed"), seed)
	node := hashes.HMACSHA512(m[:32], label)
	return node[32:], nil
}
