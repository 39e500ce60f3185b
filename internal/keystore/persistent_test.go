package keystore

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glinharesb/cxemu/internal/crypto"
	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/ecdsa"
	"github.com/glinharesb/cxemu/internal/hashes"
)

func testSealer(t *testing.T, seed string) *crypto.Sealer {
	t.Helper()
	s, err := crypto.NewSealer([]byte(seed))
	if err != nil {
		t.Fatalf("new sealer: %v", err)
	}
	return s
}

func newPersistent(t *testing.T, path string) *PersistentStore {
	t.Helper()
	store, err := NewPersistentStore(path, testSealer(t, "test seed"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func makePersistentEntry(t *testing.T, id string) *KeyEntry {
	t.Helper()
	key, err := curve.GeneratePrivateKey(curve.Secp256r1, nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &KeyEntry{
		ID:         id,
		Curve:      curve.Secp256r1,
		Scheme:     SchemeImported,
		Status:     StatusActive,
		PrivateKey: key,
		CreatedAt:  time.Now(),
		Labels:     map[string]string{"env": "test"},
	}
}

func TestPersistentStorePutAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")

	// Create store, add keys
	store := newPersistent(t, path)

	entry := makePersistentEntry(t, "key-1")
	if err := store.Put(entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Verify file exists
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("data file should exist: %v", err)
	}

	// Simulate crash: create new store from same file
	store2 := newPersistent(t, path)

	got, err := store2.Get("key-1")
	if err != nil {
		t.Fatalf("get after reload: %v", err)
	}
	if got.ID != "key-1" {
		t.Fatalf("id mismatch: %s", got.ID)
	}
	if got.Curve != curve.Secp256r1 || got.Scheme != SchemeImported {
		t.Fatalf("metadata mismatch: %v %v", got.Curve, got.Scheme)
	}

	// Verify the reloaded key can sign
	digest, _ := hashes.Sum(hashes.SHA256, []byte("test signing after reload"))
	sig, err := ecdsa.Sign(got.PrivateKey, ecdsa.SignOptions{Hash: hashes.SHA256, Mode: ecdsa.ModeRFC6979}, digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	pub, _ := curve.PublicFromPrivate(entry.PrivateKey)
	if ok, err := ecdsa.Verify(pub, digest, sig.DER); err != nil || !ok {
		t.Fatalf("signature from reloaded key should verify against original: %v", err)
	}
}

func TestPersistentStoreSealsKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	store := newPersistent(t, path)
	entry := makePersistentEntry(t, "key-1")
	if err := store.Put(entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var raw []map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(raw) != 1 || raw[0]["sealed_key"] == nil {
		t.Fatalf("unexpected file layout: %s", data)
	}
	enc, _ := json.Marshal(entry.PrivateKey.D)
	if bytes.Contains(data, enc[1:len(enc)-1]) {
		t.Fatal("private key stored in clear")
	}

	if _, err := NewPersistentStore(path, testSealer(t, "other seed")); !errors.Is(err, crypto.ErrOpen) {
		t.Fatalf("reload with another seed: expected ErrOpen, got %v", err)
	}
}

func TestPersistentStoreStatusPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")

	store := newPersistent(t, path)
	store.Put(makePersistentEntry(t, "key-1"))
	store.UpdateStatus("key-1", StatusDeactivated)

	store2 := newPersistent(t, path)
	got, _ := store2.Get("key-1")
	if got.Status != StatusDeactivated {
		t.Fatalf("expected StatusDeactivated, got %v", got.Status)
	}
}

func TestPersistentStoreDeletePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")

	store := newPersistent(t, path)
	store.Put(makePersistentEntry(t, "key-1"))
	store.Put(makePersistentEntry(t, "key-2"))
	store.Delete("key-1")

	store2 := newPersistent(t, path)
	_, err := store2.Get("key-1")
	if err != ErrKeyNotFound {
		t.Fatal("deleted key should not survive reload")
	}
	_, err = store2.Get("key-2")
	if err != nil {
		t.Fatal("key-2 should survive reload")
	}
}

func TestPersistentStoreAtomicWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")

	store := newPersistent(t, path)
	store.Put(makePersistentEntry(t, "key-1"))

	// Temp file should not exist after successful save
	tmpPath := path + ".tmp"
	if _, err := os.Stat(tmpPath); !os.IsNotExist(err) {
		t.Fatal("temp file should not exist after atomic rename")
	}
}

func TestPersistentStoreEmptyReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")

	// No file exists - should start empty
	store := newPersistent(t, path)

	keys, _ := store.List(Filter{})
	if len(keys) != 0 {
		t.Fatal("new store should be empty")
	}
}

func TestPersistentStoreRequiresSealer(t *testing.T) {
	if _, err := NewPersistentStore(filepath.Join(t.TempDir(), "keys.json"), nil); err == nil {
		t.Fatal("nil sealer should fail")
	}
}
