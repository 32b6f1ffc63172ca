// Package store defines the persistence interface for the fund engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/offchain/fund-engine/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Immutable journal ---

	// InsertJournalEntries appends committed operations in order.
	InsertJournalEntries(ctx context.Context, entries ...model.JournalEntry) error

	// GetJournalByEpoch returns every entry recorded in one epoch.
	GetJournalByEpoch(ctx context.Context, epoch uint64) ([]model.JournalEntry, error)

	// GetJournalByAddress returns every entry touching one address.
	GetJournalByAddress(ctx context.Context, address string) ([]model.JournalEntry, error)

	// --- Valuation history ---

	// InsertNAVSnapshot appends a valuation record.
	InsertNAVSnapshot(ctx context.Context, snap *model.NAVSnapshot) error

	// ListNAVSnapshots returns up to limit snapshots, newest first.
	ListNAVSnapshots(ctx context.Context, limit int) ([]model.NAVSnapshot, error)

	// GetLatestNAVSnapshot returns the newest snapshot or ErrNotFound.
	GetLatestNAVSnapshot(ctx context.Context) (*model.NAVSnapshot, error)
}
