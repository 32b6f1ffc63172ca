package store

import (
	"context"
	"sync"

	"github.com/offchain/fund-engine/internal/model"
)

// MemoryStore implements Store with in-memory slices. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	journal   []model.JournalEntry
	snapshots []model.NAVSnapshot
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) InsertJournalEntries(_ context.Context, entries ...model.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.journal = append(s.journal, entries...)
	return nil
}

func (s *MemoryStore) GetJournalByEpoch(_ context.Context, epoch uint64) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.JournalEntry
	for _, e := range s.journal {
		if e.Epoch == epoch {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetJournalByAddress(_ context.Context, address string) ([]model.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.JournalEntry
	for _, e := range s.journal {
		if e.Address == address {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) InsertNAVSnapshot(_ context.Context, snap *model.NAVSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = append(s.snapshots, *snap)
	return nil
}

// ListNAVSnapshots returns the newest snapshots first. limit <= 0 means all.
func (s *MemoryStore) ListNAVSnapshots(_ context.Context, limit int) ([]model.NAVSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.snapshots)
	if limit > 0 && limit < n {
		n = limit
	}
	result := make([]model.NAVSnapshot, 0, n)
	for i := len(s.snapshots) - 1; i >= 0 && len(result) < n; i-- {
		result = append(result, s.snapshots[i])
	}
	return result, nil
}

func (s *MemoryStore) GetLatestNAVSnapshot(_ context.Context) (*model.NAVSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.snapshots) == 0 {
		return nil, ErrNotFound
	}
	copy := s.snapshots[len(s.snapshots)-1]
	return &copy, nil
}
