package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/offchain/fund-engine/internal/model"
)

func TestMemoryStore_Journal(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	err := s.InsertJournalEntries(ctx,
		model.JournalEntry{ID: "1", Kind: model.OpDeposit, Epoch: 0, Address: "0xa"},
		model.JournalEntry{ID: "2", Kind: model.OpMint, Epoch: 0, Address: "0xa"},
		model.JournalEntry{ID: "3", Kind: model.OpUpdate, Epoch: 1, Address: "0xowner"},
	)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	byEpoch, _ := s.GetJournalByEpoch(ctx, 0)
	if len(byEpoch) != 2 || byEpoch[0].ID != "1" || byEpoch[1].ID != "2" {
		t.Errorf("expected entries 1,2 in order for epoch 0, got %+v", byEpoch)
	}

	byAddr, _ := s.GetJournalByAddress(ctx, "0xowner")
	if len(byAddr) != 1 || byAddr[0].Kind != model.OpUpdate {
		t.Errorf("expected one update entry, got %+v", byAddr)
	}

	none, _ := s.GetJournalByEpoch(ctx, 9)
	if len(none) != 0 {
		t.Errorf("expected no entries, got %d", len(none))
	}
}

func TestMemoryStore_NAVSnapshots(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.GetLatestNAVSnapshot(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		snap := &model.NAVSnapshot{
			ID:        string(rune('a' + i)),
			Epoch:     uint64(i),
			NAV:       decimal.NewFromInt(int64(100 * (i + 1))),
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.InsertNAVSnapshot(ctx, snap); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	latest, err := s.GetLatestNAVSnapshot(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Epoch != 2 {
		t.Errorf("expected latest epoch 2, got %d", latest.Epoch)
	}

	// Mutating the returned copy must not affect the store.
	latest.Epoch = 99
	again, _ := s.GetLatestNAVSnapshot(ctx)
	if again.Epoch != 2 {
		t.Error("store returned a shared pointer")
	}

	list, _ := s.ListNAVSnapshots(ctx, 2)
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Errorf("expected newest-first [c b], got %+v", list)
	}

	all, _ := s.ListNAVSnapshots(ctx, 0)
	if len(all) != 3 {
		t.Errorf("expected all 3 snapshots, got %d", len(all))
	}
}
