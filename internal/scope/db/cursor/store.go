// Package cursor persists the last consumed position of every polled source.
package cursor

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/dsjohal14/sqlpoll/internal/libs/config"
	"github.com/dsjohal14/sqlpoll/internal/scope/db"
)

// ErrNotFound is returned by Read when no cursor was ever persisted for a source
var ErrNotFound = errors.New("cursor not found")

// Column names of the cursor table
const (
	KeyColumn   = "source_tab"
	ValueColumn = "currentIndex"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Store defines the interface for durable cursor storage.
// Implementations must be safe for concurrent use by several sources.
type Store interface {
	// EnsureSchema creates the cursor table if it does not exist
	EnsureSchema(ctx context.Context) error

	// Read returns the persisted cursor for sourceID, or ErrNotFound
	Read(ctx context.Context, sourceID string) (int64, error)

	// Upsert atomically inserts or replaces the cursor for sourceID
	Upsert(ctx context.Context, sourceID string, value int64) error

	// Delete removes the cursor for sourceID. Deleting a missing cursor is not an error.
	Delete(ctx context.Context, sourceID string) error

	// Close releases the underlying connection
	Close() error
}

// Open connects to the cursor database described by a connection url and returns
// the matching Store. The schema is ensured before returning.
func Open(ctx context.Context, rawURL, user, password, table string) (Store, error) {
	target, err := db.ResolveTarget(rawURL, user, password)
	if err != nil {
		return nil, err
	}

	var store Store
	switch target.Driver {
	case db.DriverPostgres:
		store, err = NewPostgresStore(ctx, target.DSN, table)
	default:
		store, err = NewSQLStore(ctx, target, table)
	}
	if err != nil {
		return nil, err
	}

	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func checkTable(table string) (string, error) {
	if table == "" {
		return config.DefaultCursorTable, nil
	}
	if !identPattern.MatchString(table) {
		return "", fmt.Errorf("%w: invalid cursor table name %q", config.ErrConfiguration, table)
	}
	return table, nil
}

// InMemoryStore implements Store in memory (for testing and dry runs)
type InMemoryStore struct {
	mu      sync.RWMutex
	cursors map[string]int64
	upserts int
}

// NewInMemoryStore creates a new in-memory cursor store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{cursors: make(map[string]int64)}
}

// EnsureSchema is a no-op
func (s *InMemoryStore) EnsureSchema(_ context.Context) error {
	return nil
}

// Read returns the cursor for sourceID
func (s *InMemoryStore) Read(_ context.Context, sourceID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.cursors[sourceID]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

// Upsert stores the cursor for sourceID
func (s *InMemoryStore) Upsert(_ context.Context, sourceID string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cursors[sourceID] = value
	s.upserts++
	return nil
}

// Delete removes the cursor for sourceID
func (s *InMemoryStore) Delete(_ context.Context, sourceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cursors, sourceID)
	return nil
}

// Upserts returns how many times Upsert was called
func (s *InMemoryStore) Upserts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}

// Close is a no-op
func (s *InMemoryStore) Close() error {
	return nil
}
