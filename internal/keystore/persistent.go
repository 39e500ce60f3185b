package keystore

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glinharesb/cxemu/internal/crypto"
	"github.com/glinharesb/cxemu/internal/curve"
	"github.com/glinharesb/cxemu/internal/hd"
)

// persistedKey is the JSON form of a KeyEntry. The private key is sealed.
type persistedKey struct {
	ID        string            `json:"id"`
	Curve     curve.ID          `json:"curve"`
	Scheme    Scheme            `json:"scheme"`
	Path      []uint32          `json:"path,omitempty"`
	Status    KeyStatus         `json:"status"`
	SealedKey []byte            `json:"sealed_key"`
	CreatedAt time.Time         `json:"created_at"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// PersistentStore wraps MemoryStore and persists to a JSON file using atomic rename.
type PersistentStore struct {
	*MemoryStore
	path   string
	sealer *crypto.Sealer
}

// NewPersistentStore creates a store that persists to the given file path.
// If the file exists, it loads keys from it on startup (crash recovery).
func NewPersistentStore(path string, sealer *crypto.Sealer) (*PersistentStore, error) {
	if sealer == nil {
		return nil, fmt.Errorf("persistent store needs a sealer")
	}
	ps := &PersistentStore{
		MemoryStore: NewMemoryStore(),
		path:        path,
		sealer:      sealer,
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := ps.load(); err != nil {
			return nil, fmt.Errorf("load existing data: %w", err)
		}
		slog.Info("persistent store loaded", "keys", ps.Len())
	}

	return ps, nil
}

func (ps *PersistentStore) Put(entry *KeyEntry) error {
	if err := ps.MemoryStore.Put(entry); err != nil {
		return err
	}
	return ps.save()
}

func (ps *PersistentStore) UpdateStatus(id string, status KeyStatus) error {
	if err := ps.MemoryStore.UpdateStatus(id, status); err != nil {
		return err
	}
	return ps.save()
}

func (ps *PersistentStore) Delete(id string) error {
	if err := ps.MemoryStore.Delete(id); err != nil {
		return err
	}
	return ps.save()
}

// save writes all keys to a temp file then atomically renames it.
func (ps *PersistentStore) save() error {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	keys := make([]persistedKey, 0, len(ps.keys))
	for _, e := range ps.keys {
		sealed, err := ps.sealer.Seal(e.ID, e.PrivateKey.D)
		if err != nil {
			return fmt.Errorf("seal key %s: %w", e.ID, err)
		}
		keys = append(keys, persistedKey{
			ID:        e.ID,
			Curve:     e.Curve,
			Scheme:    e.Scheme,
			Path:      e.Path,
			Status:    e.Status,
			SealedKey: sealed,
			CreatedAt: e.CreatedAt,
			Labels:    e.Labels,
		})
	}

	data, err := json.MarshalIndent(keys, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	tmpPath := ps.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, ps.path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}

	return nil
}

// load reads keys from the persisted file.
func (ps *PersistentStore) load() error {
	data, err := os.ReadFile(ps.path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	var keys []persistedKey
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}

	for _, pk := range keys {
		raw, err := ps.sealer.Open(pk.ID, pk.SealedKey)
		if err != nil {
			return fmt.Errorf("open key %s: %w", pk.ID, err)
		}
		priv, err := curve.NewPrivateKey(pk.Curve, raw)
		if err != nil {
			return fmt.Errorf("key %s: %w", pk.ID, err)
		}
		ps.keys[pk.ID] = &KeyEntry{
			ID:         pk.ID,
			Curve:      pk.Curve,
			Scheme:     pk.Scheme,
			Path:       hd.Path(pk.Path),
			Status:     pk.Status,
			PrivateKey: priv,
			CreatedAt:  pk.CreatedAt,
			Labels:     pk.Labels,
		}
	}

	return nil
}
