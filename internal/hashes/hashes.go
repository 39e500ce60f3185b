// Package hashes is the digest provider consumed by the signature and key
// derivation engines: init/update/final over the coprocessor's named
// algorithms, plus HMAC over any fixed-size digest.
package hashes

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"strings"

	sha256simd "github.com/minio/sha256-simd"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/ripemd160"
	"golang.org/x/crypto/sha3"

	"github.com/glinharesb/cxemu/internal/cxerr"
)

// Algorithm identifies a digest using the coprocessor's numbering. The device
// sizes id 7 per context; here it is always SHA3-256, and 64-byte SHA-3 has
// its own id.
type Algorithm int

const (
	None      Algorithm = 0
	RIPEMD160 Algorithm = 1
	SHA224    Algorithm = 2
	SHA256    Algorithm = 3
	SHA384    Algorithm = 4
	SHA512    Algorithm = 5
	Keccak    Algorithm = 6
	SHA3_256  Algorithm = 7
	BLAKE2b   Algorithm = 9
	SHAKE256  Algorithm = 11
	SHA3_512  Algorithm = 13
)

var names = map[Algorithm]string{
	RIPEMD160: "ripemd160",
	SHA224:    "sha224",
	SHA256:    "sha256",
	SHA384:    "sha384",
	SHA512:    "sha512",
	Keccak:    "keccak256",
	SHA3_256:  "sha3-256",
	BLAKE2b:   "blake2b",
	SHAKE256:  "shake256",
	SHA3_512:  "sha3-512",
}

func (a Algorithm) String() string {
	if n, ok := names[a]; ok {
		return n
	}
	return fmt.Sprintf("Algorithm(%d)", int(a))
}

// Parse resolves a case-insensitive algorithm name as printed by String.
func Parse(name string) (Algorithm, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for a, n := range names {
		if n == name {
			return a, nil
		}
	}
	return None, fmt.Errorf("hash %q: %w", name, cxerr.ErrUnsupportedHash)
}

// Func returns the constructor for a fixed-size algorithm, suitable for
// crypto/hmac and HKDF. Extendable-output functions have none.
func Func(a Algorithm) (func() hash.Hash, error) {
	switch a {
	case RIPEMD160:
		return ripemd160.New, nil
	case SHA224:
		return sha256.New224, nil
	case SHA256:
		return sha256simd.New, nil
	case SHA384:
		return sha512.New384, nil
	case SHA512:
		return sha512.New, nil
	case Keccak:
		return sha3.NewLegacyKeccak256, nil
	case SHA3_256:
		return sha3.New256, nil
	case SHA3_512:
		return sha3.New512, nil
	case BLAKE2b:
		return newBLAKE2b512, nil
	default:
		return nil, fmt.Errorf("%v has no fixed-size constructor: %w", a, cxerr.ErrUnsupportedHash)
	}
}

func newBLAKE2b512() hash.Hash {
	h, err := blake2b.New512(nil)
	if err != nil {
		// Only a key longer than 64 bytes can fail.
		panic(err)
	}
	return h
}

// OutputSize returns the digest length of a, or 0 for algorithms without a
// fixed output size.
func OutputSize(a Algorithm) int {
	f, err := Func(a)
	if err != nil {
		return 0
	}
	return f().Size()
}

// Context is a running digest computation.
type Context struct {
	alg Algorithm
	h   hash.Hash
	xof sha3.ShakeHash
}

// New starts a digest computation.
func New(a Algorithm) (*Context, error) {
	if a == SHAKE256 {
		return &Context{alg: a, xof: sha3.NewShake256()}, nil
	}
	f, err := Func(a)
	if err != nil {
		return nil, err
	}
	return &Context{alg: a, h: f()}, nil
}

func (c *Context) Algorithm() Algorithm { return c.alg }

// OutputSize is the fixed digest size, 0 for extendable-output functions.
func (c *Context) OutputSize() int {
	if c.xof != nil {
		return 0
	}
	return c.h.Size()
}

func (c *Context) Update(p []byte) {
	if c.xof != nil {
		c.xof.Write(p)
		return
	}
	c.h.Write(p)
}

// Final returns the digest. Extendable-output functions yield their default
// output length; use Squeeze for other lengths.
func (c *Context) Final() []byte {
	if c.xof != nil {
		return c.xof.Sum(nil)
	}
	return c.h.Sum(nil)
}

// Squeeze reads n bytes of output from an extendable-output function.
func (c *Context) Squeeze(n int) ([]byte, error) {
	if c.xof == nil {
		return nil, fmt.Errorf("squeeze on %v: %w", c.alg, cxerr.ErrInvalidParameter)
	}
	out := make([]byte, n)
	c.xof.Read(out)
	return out, nil
}

// Sum hashes the concatenation of parts.
func Sum(a Algorithm, parts ...[]byte) ([]byte, error) {
	c, err := New(a)
	if err != nil {
		return nil, err
	}
	for _, p := range parts {
		c.Update(p)
	}
	return c.Final(), nil
}

// HMAC computes HMAC_a(key, parts...).
func HMAC(a Algorithm, key []byte, parts ...[]byte) ([]byte, error) {
	f, err := Func(a)
	if err != nil {
		return nil, err
	}
	m := hmac.New(f, key)
	for _, p := range parts {
		m.Write(p)
	}
	return m.Sum(nil), nil
}

// SHA512Sum and SHA256Sum never fail: both digests are always available.
func SHA512Sum(parts ...[]byte) []byte {
	out, _ := Sum(SHA512, parts...)
	return out
}

func SHA256Sum(parts ...[]byte) []byte {
	out, _ := Sum(SHA256, parts...)
	return out
}

func HMACSHA512(key []byte, parts ...[]byte) []byte {
	out, _ := HMAC(SHA512, key, parts...)
	return out
}

func HMACSHA256(key []byte, parts ...[]byte) []byte {
	out, _ := HMAC(SHA256, key, parts...)
	return out
}
