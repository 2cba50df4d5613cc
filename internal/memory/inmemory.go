package memory

import (
	"context"
	"sync"

	"github.com/aleenlabs/aleen-agents/internal/models"
	"github.com/aleenlabs/aleen-agents/internal/util"
)

// InMemoryStore is a map-backed store used in tests and local development.
type InMemoryStore struct {
	mu    sync.Mutex
	turns map[string][]models.Turn
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{turns: make(map[string][]models.Turn)}
}

// History returns the stored turns for a phone number, oldest first.
func (s *InMemoryStore) History(ctx context.Context, phone string) ([]models.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.turns[util.CanonicalPhone(phone)]
	out := make([]models.Turn, len(stored))
	copy(out, stored)
	return out, nil
}

// AppendTurns appends turns and evicts the oldest beyond the cap.
func (s *InMemoryStore) AppendTurns(ctx context.Context, phone string, turns ...models.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := util.CanonicalPhone(phone)
	s.turns[key] = trimTurns(append(s.turns[key], turns...))
	return nil
}

// Clear removes the memory for a phone number.
func (s *InMemoryStore) Clear(ctx context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, util.CanonicalPhone(phone))
	return nil
}

// Ping always succeeds for the in-memory store.
func (s *InMemoryStore) Ping(ctx context.Context) error {
	return nil
}
