package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/offchain/fund-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS journal_entries (
		seq       BIGSERIAL PRIMARY KEY,
		id        UUID NOT NULL UNIQUE,
		kind      TEXT NOT NULL,
		epoch     BIGINT NOT NULL,
		address   TEXT NOT NULL,
		cash      NUMERIC(78, 0) NOT NULL,
		shares    NUMERIC(78, 0) NOT NULL,
		price     NUMERIC(78, 0) NOT NULL,
		timestamp TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_journal_epoch ON journal_entries(epoch)`,
	`CREATE INDEX IF NOT EXISTS idx_journal_address ON journal_entries(address)`,

	`CREATE TABLE IF NOT EXISTS nav_snapshots (
		seq              BIGSERIAL PRIMARY KEY,
		id               UUID NOT NULL UNIQUE,
		epoch            BIGINT NOT NULL,
		price            NUMERIC(78, 0) NOT NULL,
		total_shares     NUMERIC(78, 0) NOT NULL,
		nav              NUMERIC(78, 0) NOT NULL,
		fund_cash        NUMERIC(78, 0) NOT NULL,
		cash_custody_out BOOLEAN NOT NULL,
		timestamp        TIMESTAMPTZ NOT NULL
	)`,
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// InsertJournalEntries writes all entries in one transaction so a batch
// settlement is journaled completely or not at all.
func (s *PostgresStore) InsertJournalEntries(ctx context.Context, entries ...model.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO journal_entries (id, kind, epoch, address, cash, shares, price, timestamp)
			 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8)`,
			e.ID, e.Kind, int64(e.Epoch), e.Address,
			e.Cash.String(), e.Shares.String(), e.Price.String(),
			e.Timestamp,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert journal entries: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) GetJournalByEpoch(ctx context.Context, epoch uint64) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, kind, epoch, address,
		        cash::TEXT, shares::TEXT, price::TEXT, timestamp
		 FROM journal_entries WHERE epoch = $1 ORDER BY seq`, int64(epoch))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

func (s *PostgresStore) GetJournalByAddress(ctx context.Context, address string) ([]model.JournalEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, kind, epoch, address,
		        cash::TEXT, shares::TEXT, price::TEXT, timestamp
		 FROM journal_entries WHERE address = $1 ORDER BY seq`, address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

func (s *PostgresStore) InsertNAVSnapshot(ctx context.Context, n *model.NAVSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO nav_snapshots (id, epoch, price, total_shares, nav, fund_cash, cash_custody_out, timestamp)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8)`,
		n.ID, int64(n.Epoch),
		n.Price.String(), n.TotalShares.String(), n.NAV.String(), n.FundCash.String(),
		n.CashCustodyOut, n.Timestamp,
	)
	return err
}

func (s *PostgresStore) ListNAVSnapshots(ctx context.Context, limit int) ([]model.NAVSnapshot, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::TEXT, epoch, price::TEXT, total_shares::TEXT, nav::TEXT, fund_cash::TEXT,
		        cash_custody_out, timestamp
		 FROM nav_snapshots ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []model.NAVSnapshot
	for rows.Next() {
		n, err := scanNAVSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *n)
	}
	return snaps, rows.Err()
}

func (s *PostgresStore) GetLatestNAVSnapshot(ctx context.Context) (*model.NAVSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id::TEXT, epoch, price::TEXT, total_shares::TEXT, nav::TEXT, fund_cash::TEXT,
		        cash_custody_out, timestamp
		 FROM nav_snapshots ORDER BY seq DESC LIMIT 1`)
	n, err := scanNAVSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest nav snapshot: %w", err)
	}
	return n, nil
}

// pgxRows is the subset of pgx.Rows the scanners need.
type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanJournalEntries(rows pgxRows) ([]model.JournalEntry, error) {
	var entries []model.JournalEntry
	for rows.Next() {
		var e model.JournalEntry
		var epoch int64
		var cashS, sharesS, priceS string

		if err := rows.Scan(&e.ID, &e.Kind, &epoch, &e.Address,
			&cashS, &sharesS, &priceS, &e.Timestamp); err != nil {
			return nil, err
		}

		e.Epoch = uint64(epoch)
		e.Cash, _ = decimal.NewFromString(cashS)
		e.Shares, _ = decimal.NewFromString(sharesS)
		e.Price, _ = decimal.NewFromString(priceS)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanNAVSnapshot(row pgxRow) (*model.NAVSnapshot, error) {
	var n model.NAVSnapshot
	var epoch int64
	var priceS, sharesS, navS, cashS string

	if err := row.Scan(&n.ID, &epoch, &priceS, &sharesS, &navS, &cashS,
		&n.CashCustodyOut, &n.Timestamp); err != nil {
		return nil, err
	}

	n.Epoch = uint64(epoch)
	n.Price, _ = decimal.NewFromString(priceS)
	n.TotalShares, _ = decimal.NewFromString(sharesS)
	n.NAV, _ = decimal.NewFromString(navS)
	n.FundCash, _ = decimal.NewFromString(cashS)
	return &n, nil
}
