package history

import (
	"context"
	"sync"

	"github.com/swasthya/homeo-assistant/internal/domain"
	"github.com/swasthya/homeo-assistant/internal/observability"
)

// MemoryStore keeps history in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	entries  []domain.HistoryEntry // newest first
	capacity int
}

// NewMemoryStore creates an in-memory store holding at most capacity entries
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{capacity: capacityOrDefault(capacity)}
}

func (m *MemoryStore) Record(_ context.Context, mode domain.Mode, transcript domain.Transcript, result *domain.StructuredResult, locale domain.Locale) (string, error) {
	entry := newEntry(mode, transcript, result, locale)

	m.mu.Lock()
	m.entries = append([]domain.HistoryEntry{entry}, m.entries...)
	evicted := len(m.entries) - m.capacity
	if evicted > 0 {
		m.entries = m.entries[:m.capacity]
	}
	m.mu.Unlock()

	observability.RecordHistoryWrite("memory", true)
	observability.RecordHistoryEvictions("memory", int64(evicted))
	return entry.ID, nil
}

func (m *MemoryStore) List(_ context.Context) ([]domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.HistoryEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = nil
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Ping(_ context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
