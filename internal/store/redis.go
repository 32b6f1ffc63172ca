package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/offchain/fund-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) InsertJournalEntries(ctx context.Context, entries ...model.JournalEntry) error {
	if err := s.primary.InsertJournalEntries(ctx, entries...); err != nil {
		return err
	}
	// Invalidate every address journal this write touched.
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, journalKey(e.Address))
	}
	if len(keys) > 0 {
		s.rdb.Del(ctx, keys...)
	}
	return nil
}

func (s *CachedStore) InsertNAVSnapshot(ctx context.Context, snap *model.NAVSnapshot) error {
	if err := s.primary.InsertNAVSnapshot(ctx, snap); err != nil {
		return err
	}
	s.cacheJSON(ctx, latestNAVKey, snap)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetLatestNAVSnapshot(ctx context.Context) (*model.NAVSnapshot, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, latestNAVKey).Bytes()
	if err == nil {
		var n model.NAVSnapshot
		if json.Unmarshal(data, &n) == nil {
			return &n, nil
		}
	}

	// Cache miss: read from primary.
	n, err := s.primary.GetLatestNAVSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, latestNAVKey, n)
	return n, nil
}

func (s *CachedStore) GetJournalByAddress(ctx context.Context, address string) ([]model.JournalEntry, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, journalKey(address)).Bytes()
	if err == nil {
		var entries []model.JournalEntry
		if json.Unmarshal(data, &entries) == nil {
			return entries, nil
		}
	}

	// Cache miss.
	entries, err := s.primary.GetJournalByAddress(ctx, address)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, journalKey(address), entries)
	return entries, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) GetJournalByEpoch(ctx context.Context, epoch uint64) ([]model.JournalEntry, error) {
	return s.primary.GetJournalByEpoch(ctx, epoch)
}

func (s *CachedStore) ListNAVSnapshots(ctx context.Context, limit int) ([]model.NAVSnapshot, error) {
	return s.primary.ListNAVSnapshots(ctx, limit)
}

// --- Cache helpers ---

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v interface{}) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

const latestNAVKey = "fund:nav:latest"

func journalKey(addr string) string { return fmt.Sprintf("fund:journal:%s", addr) }
