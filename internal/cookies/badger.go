package cookies

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/jmylchreest/sessionkeeper/internal/logger"
)

// BadgerStore is a Store backed by a badgerhold database directory.
type BadgerStore struct {
	store *badgerhold.Store
	path  string
}

// OpenBadgerStore opens (or creates) the database at dir.
func OpenBadgerStore(dir string) (*BadgerStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cookie store directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookie store: %w", err)
	}

	logger.Debug("cookie store opened", "path", dir)
	return &BadgerStore{store: store, path: dir}, nil
}

func (s *BadgerStore) Put(ctx context.Context, identity string, blob []byte) error {
	if identity == "" {
		return fmt.Errorf("identity is required")
	}
	entry := &Entry{Identity: identity, Blob: blob, UpdatedAt: time.Now().UTC()}
	if err := s.store.Upsert(identity, entry); err != nil {
		return fmt.Errorf("failed to store cookies: %w", err)
	}
	return nil
}

func (s *BadgerStore) Get(ctx context.Context, identity string) (*Entry, error) {
	var entry Entry
	if err := s.store.Get(identity, &entry); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get cookies: %w", err)
	}
	return &entry, nil
}

func (s *BadgerStore) List(ctx context.Context) ([]*Entry, error) {
	var entries []Entry
	if err := s.store.Find(&entries, nil); err != nil {
		return nil, fmt.Errorf("failed to list cookies: %w", err)
	}
	out := make([]*Entry, len(entries))
	for i := range entries {
		out[i] = &entries[i]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (s *BadgerStore) Delete(ctx context.Context, identity string) error {
	if err := s.store.Delete(identity, &Entry{}); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete cookies: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

// Open returns the Store named by kind: "memory" or "badger" (rooted at path).
func Open(kind, path string) (Store, error) {
	switch kind {
	case "", "badger":
		return OpenBadgerStore(path)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown cookie store %q", kind)
	}
}
