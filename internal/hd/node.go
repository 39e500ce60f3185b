// Package hd implements the hierarchical key derivation schemes of the
// coprocessor: BIP32 on secp256k1 and secp256r1, SLIP-10 and BIP32-Ed25519 on
// Ed25519, SLIP-21 symmetric keys and EIP-2333 on BLS12-381.
//
// Derivation is a pure function of the seed and the path. Nothing is cached;
// every call replays the path from the master node.
package hd

import (
	"fmt"

	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/cxerr"
)

// Node is an extended private key. Key holds 32 bytes (big-endian scalar or
// Ed25519 seed) or 64 bytes kL ‖ kR for BIP32-Ed25519. ChainCode is empty for
// EIP-2333, which has none.
type Node struct {
	Key       []byte
	ChainCode []byte
}

// PrivateKey binds the node's key material to a curve.
func (n *Node) PrivateKey(id curve.ID) (*curve.PrivateKey, error) {
	if n == nil {
		return nil, fmt.Errorf("nil node: %w", cxerr.ErrInvalidParameter)
	}
	return curve.NewPrivateKey(id, n.Key)
}

// Mode selects the derivation family, mirroring the device's derive-node modes.
type Mode int

const (
	// ModeNormal picks the curve's native scheme: BIP32 on secp curves,
	// BIP32-Ed25519 on Ed25519 and EIP-2333 on BLS12-381.
	ModeNormal Mode = iota
	// ModeEd25519SLIP10 selects SLIP-10 on Ed25519.
	ModeEd25519SLIP10
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeEd25519SLIP10:
		return "ed25519-slip10"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Derive dispatches a derive-node request onto the scheme selected by mode and
// curve.
func Derive(mode Mode, id curve.ID, seed []byte, path Path) (*Node, error) {
	dom, err := curve.Lookup(id)
	if err != nil {
		return nil, err
	}
	switch mode {
	case ModeNormal:
		switch id {
		case curve.Secp256k1, curve.Secp256r1:
			return BIP32(id, seed, path)
		case curve.Ed25519:
			return BIP32Ed25519(seed, path)
		case curve.BLS12381G1:
			key, err := EIP2333(seed, path)
			if err != nil {
				return nil, err
			}
			return &Node{Key: key}, nil
		}
	case ModeEd25519SLIP10:
		if id == curve.Ed25519 {
			return SLIP10Ed25519(seed, path)
		}
	default:
		return nil, fmt.Errorf("derive mode %v: %w", mode, cxerr.ErrInvalidParameter)
	}
	return nil, fmt.Errorf("%v derivation on %s: %w", mode, dom.Name, cxerr.ErrInvalidParameter)
}
