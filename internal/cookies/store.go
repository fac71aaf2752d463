// Package cookies persists browser cookie jars per identity.
package cookies

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrNotFound is returned when no jar is stored for an identity.
var ErrNotFound = errors.New("cookie jar not found")

// Entry is one stored jar. Blob is opaque to the store.
type Entry struct {
	Identity  string `badgerhold:"key"`
	Blob      []byte
	UpdatedAt time.Time
}

// Store maps identities to cookie blobs. Put overwrites; the last write wins.
type Store interface {
	Put(ctx context.Context, identity string, blob []byte) error
	Get(ctx context.Context, identity string) (*Entry, error)
	List(ctx context.Context) ([]*Entry, error)
	Delete(ctx context.Context, identity string) error
	Close() error
}

// MemoryStore is a Store held in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), now: time.Now}
}

func (s *MemoryStore) Put(ctx context.Context, identity string, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[identity] = Entry{
		Identity:  identity,
		Blob:      append([]byte(nil), blob...),
		UpdatedAt: s.now().UTC(),
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, identity string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[identity]
	if !ok {
		return nil, ErrNotFound
	}
	e.Blob = append([]byte(nil), e.Blob...)
	return &e, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		e := e
		out = append(out, &e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[identity]; !ok {
		return ErrNotFound
	}
	delete(s.entries, identity)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
