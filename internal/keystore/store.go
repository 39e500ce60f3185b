// Package keystore keeps handles to coprocessor keys so that clients can refer
// to a derived or imported key by ID instead of resending its path.
package keystore

import (
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/hd"
)

var (
	ErrKeyNotFound   = errors.New("key not found")
	ErrKeyInactive   = errors.New("key is not active")
	ErrKeyExists     = errors.New("key already exists")
	ErrInvalidStatus = errors.New("invalid key status")
)

// Scheme records how a key entered the store.
type Scheme int

const (
	SchemeImported Scheme = iota + 1
	SchemeDerived
	SchemeSLIP10
)

func (s Scheme) String() string {
	switch s {
	case SchemeImported:
		return "IMPORTED"
	case SchemeDerived:
		return "DERIVED"
	case SchemeSLIP10:
		return "SLIP10"
	default:
		return "UNKNOWN"
	}
}

// SchemeFor maps a derivation mode onto the scheme stored with the key.
func SchemeFor(m hd.Mode) Scheme {
	if m == hd.ModeEd25519SLIP10 {
		return SchemeSLIP10
	}
	return SchemeDerived
}

// KeyStatus represents the lifecycle state of a key.
type KeyStatus int

const (
	StatusActive KeyStatus = iota + 1
	StatusDeactivated
)

func (s KeyStatus) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusDeactivated:
		return "DEACTIVATED"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus is the inverse of KeyStatus.String. Unknown names map to 0,
// which a Filter treats as "any".
func ParseStatus(s string) KeyStatus {
	switch s {
	case "ACTIVE":
		return StatusActive
	case "DEACTIVATED":
		return StatusDeactivated
	default:
		return 0
	}
}

// KeyEntry holds a key and its metadata. Path is empty for imported keys.
type KeyEntry struct {
	ID         string
	Curve      curve.ID
	Scheme     Scheme
	Path       hd.Path
	Status     KeyStatus
	PrivateKey *curve.PrivateKey
	CreatedAt  time.Time
	Labels     map[string]string
}

func (e *KeyEntry) clone() *KeyEntry {
	c := *e
	c.Path = slices.Clone(e.Path)
	c.Labels = maps.Clone(e.Labels)
	if e.PrivateKey != nil {
		k := *e.PrivateKey
		k.D = slices.Clone(k.D)
		c.PrivateKey = &k
	}
	return &c
}

// Filter selects entries for List. Zero fields match every entry.
type Filter struct {
	Status KeyStatus
	Curve  curve.ID
	Labels map[string]string
}

// Match reports whether e has the filter's status and curve and carries every
// label of the filter with the same value.
func (f Filter) Match(e *KeyEntry) bool {
	if f.Status != 0 && e.Status != f.Status {
		return false
	}
	if f.Curve != 0 && e.Curve != f.Curve {
		return false
	}
	for k, v := range f.Labels {
		if got, ok := e.Labels[k]; !ok || got != v {
			return false
		}
	}
	return true
}

// Store defines the key storage interface.
type Store interface {
	Put(entry *KeyEntry) error
	Get(id string) (*KeyEntry, error)
	List(f Filter) ([]*KeyEntry, error)
	UpdateStatus(id string, status KeyStatus) error
	Delete(id string) error
}
