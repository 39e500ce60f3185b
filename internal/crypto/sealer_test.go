package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func newTestSealer(t *testing.T, seed string) *Sealer {
	t.Helper()
	s, err := NewSealer([]byte(seed))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	return s
}

func TestSealOpen(t *testing.T) {
	s := newTestSealer(t, "seed-a")
	key := bytes.Repeat([]byte{0x42}, 32)

	sealed, err := s.Seal("key-1", key)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Contains(sealed, key) {
		t.Fatal("sealed blob leaks plaintext")
	}

	got, err := s.Open("key-1", sealed)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Fatalf("plaintext mismatch: got %x", got)
	}
}

func TestOpenBoundToKeyID(t *testing.T) {
	s := newTestSealer(t, "seed-a")
	sealed, _ := s.Seal("key-1", []byte("secret"))
	if _, err := s.Open("key-2", sealed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestOpenWrongSeed(t *testing.T) {
	sealed, _ := newTestSealer(t, "seed-a").Seal("key-1", []byte("secret"))
	if _, err := newTestSealer(t, "seed-b").Open("key-1", sealed); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestOpenTooShort(t *testing.T) {
	s := newTestSealer(t, "seed-a")
	if _, err := s.Open("key-1", []byte("short")); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestSealUniqueNonce(t *testing.T) {
	s := newTestSealer(t, "seed-a")
	a, _ := s.Seal("key-1", []byte("same data"))
	b, _ := s.Seal("key-1", []byte("same data"))
	if bytes.Equal(a, b) {
		t.Fatal("two seals of the same data should differ")
	}
}

func TestNewSealerEmptySeed(t *testing.T) {
	if _, err := NewSealer(nil); err == nil {
		t.Fatal("empty seed should fail")
	}
}

func TestDeriveKey(t *testing.T) {
	root := []byte("root key material")
	d1, err := DeriveKey(root, []byte("context-a"), 32)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	d2, _ := DeriveKey(root, []byte("context-a"), 32)
	d3, _ := DeriveKey(root, []byte("context-b"), 32)
	if len(d1) != 32 || !bytes.Equal(d1, d2) {
		t.Fatal("same inputs should produce the same 32-byte key")
	}
	if bytes.Equal(d1, d3) {
		t.Fatal("different contexts should produce different keys")
	}
	if _, err := DeriveKey(root, nil, 0); err == nil {
		t.Fatal("length 0 should fail")
	}
	if _, err := DeriveKey(root, nil, 65); err == nil {
		t.Fatal("length 65 should fail")
	}
}

func BenchmarkSeal(b *testing.B) {
	s, _ := NewSealer([]byte("bench"))
	data := make([]byte, 64)
	for b.Loop() {
		s.Seal("key", data)
	}
}
