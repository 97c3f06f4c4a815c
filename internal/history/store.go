package history

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/swasthya/homeo-assistant/internal/domain"
)

// DefaultCapacity is the number of entries kept when none is configured
const DefaultCapacity = 50

// Store is a capped, newest-first log of answered queries.
type Store interface {
	// Record appends an entry and evicts the oldest beyond capacity. It
	// returns the new entry's id.
	Record(ctx context.Context, mode domain.Mode, transcript domain.Transcript, result *domain.StructuredResult, locale domain.Locale) (string, error)
	List(ctx context.Context) ([]domain.HistoryEntry, error)
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

func newEntry(mode domain.Mode, transcript domain.Transcript, result *domain.StructuredResult, locale domain.Locale) domain.HistoryEntry {
	return domain.HistoryEntry{
		ID:         uuid.New().String(),
		Mode:       mode,
		Transcript: transcript,
		Result:     result,
		Locale:     locale,
		CreatedAt:  time.Now().UTC(),
	}
}

func capacityOrDefault(capacity int) int {
	if capacity < 1 {
		return DefaultCapacity
	}
	return capacity
}
