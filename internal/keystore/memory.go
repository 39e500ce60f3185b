package keystore

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
)

// MemoryStore holds handles in process. Entries are cloned on the way in and
// on the way out, so a caller never sees a later status change through an
// entry it already holds and cannot alter the store by editing one.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*KeyEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]*KeyEntry)}
}

// Put adds a new handle. An ID already in use is refused with ErrKeyExists.
func (m *MemoryStore) Put(entry *KeyEntry) error {
	if entry == nil || entry.ID == "" || entry.PrivateKey == nil {
		return fmt.Errorf("incomplete key entry")
	}
	c := entry.clone()

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.keys[c.ID]; taken {
		return fmt.Errorf("key %s: %w", c.ID, ErrKeyExists)
	}
	m.keys[c.ID] = c
	return nil
}

func (m *MemoryStore) Get(id string) (*KeyEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.keys[id]; ok {
		return e.clone(), nil
	}
	return nil, ErrKeyNotFound
}

// List returns the entries matching f, oldest first.
func (m *MemoryStore) List(f Filter) ([]*KeyEntry, error) {
	m.mu.RLock()
	out := make([]*KeyEntry, 0, len(m.keys))
	for _, e := range m.keys {
		if f.Match(e) {
			out = append(out, e.clone())
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *KeyEntry) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

// Len returns the number of stored handles.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}

func (m *MemoryStore) UpdateStatus(id string, status KeyStatus) error {
	if status != StatusActive && status != StatusDeactivated {
		return fmt.Errorf("status %d: %w", int(status), ErrInvalidStatus)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.keys[id]
	if !ok {
		return ErrKeyNotFound
	}
	e.Status = status
	return nil
}

func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[id]; !ok {
		return ErrKeyNotFound
	}
	delete(m.keys, id)
	return nil
}
