// Package memory provides the short-term conversation memory store.
//
// Memory is an ordered list of turns per phone number, capped at the most
// recent models.MaxMemoryEntries entries and expiring models.MemoryTTL
// after the last write. The canonical backend is Redis; an in-memory
// implementation backs tests.
package memory

import (
	"context"
	"time"

	"github.com/aleenlabs/aleen-agents/internal/models"
)

// Store is the conversation memory abstraction used by the conversation loop.
type Store interface {
	// History returns the stored turns for a phone number, oldest first.
	// A phone with no memory yields an empty slice, not an error.
	History(ctx context.Context, phone string) ([]models.Turn, error)

	// AppendTurns appends turns to the memory, evicting the oldest entries
	// beyond the cap and refreshing the TTL.
	AppendTurns(ctx context.Context, phone string, turns ...models.Turn) error

	// Clear removes the memory for a phone number.
	Clear(ctx context.Context, phone string) error

	// Ping reports whether the backing service is reachable.
	Ping(ctx context.Context) error
}

// NewTurn builds a turn stamped with the current time.
func NewTurn(role models.TurnRole, text string) models.Turn {
	return models.Turn{Role: role, Text: text, Timestamp: time.Now()}
}

// trimTurns enforces the entry cap, keeping the most recent turns.
func trimTurns(turns []models.Turn) []models.Turn {
	if len(turns) > models.MaxMemoryEntries {
		return turns[len(turns)-models.MaxMemoryEntries:]
	}
	return turns
}
