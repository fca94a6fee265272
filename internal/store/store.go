// Package store persists session records. The live simulation never waits on
// it: records are written through an ordered asynchronous Writer.
package store

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/DoyleJ11/dungeon-realtime-backend/internal/engine"
	"github.com/DoyleJ11/dungeon-realtime-backend/pkg/types"
)

var ErrNotFound = errors.New("store: record not found")

// Record is the durable view of a session.
type Record struct {
	Code      string
	Config    types.SessionConfig
	Players   []engine.Player
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store defines persistence for session records.
type Store interface {
	Save(ctx context.Context, rec Record) error
	// Find returns ErrNotFound when no record exists for code.
	Find(ctx context.Context, code string) (Record, error)
	Delete(ctx context.Context, code string) error
	Close() error
}

// MemoryStore is an in-memory Store, used when no database is configured and
// in tests.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]Record)}
}

func (s *MemoryStore) Save(_ context.Context, rec Record) error {
	rec.Players = slices.Clone(rec.Players)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[rec.Code] = rec
	return nil
}

func (s *MemoryStore) Find(_ context.Context, code string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.m[code]
	if !ok {
		return Record{}, ErrNotFound
	}
	rec.Players = slices.Clone(rec.Players)
	return rec, nil
}

func (s *MemoryStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, code)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Codes lists the stored codes in sorted order.
func (s *MemoryStore) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.m))
}
