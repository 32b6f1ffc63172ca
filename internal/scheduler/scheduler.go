// Package scheduler records periodic NAV snapshots of the fund.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/offchain/fund-engine/internal/fund"
	"github.com/offchain/fund-engine/internal/metrics"
	"github.com/offchain/fund-engine/internal/model"
	"github.com/offchain/fund-engine/internal/store"
)

// Scheduler manages the cron tasks of the service.
type Scheduler struct {
	Cron  *cron.Cron
	Fund  *fund.Fund
	Store store.Store
	Ctx   context.Context

	now func() time.Time
}

// NewScheduler creates a new Scheduler. Cron expressions carry a seconds field.
func NewScheduler(ctx context.Context, f *fund.Fund, st store.Store) *Scheduler {
	return &Scheduler{
		Cron:  cron.New(cron.WithSeconds()),
		Fund:  f,
		Store: st,
		Ctx:   ctx,
		now:   time.Now,
	}
}

// RegisterSnapshot schedules RecordNow on the given cron expression.
func (s *Scheduler) RegisterSnapshot(expr string) error {
	if _, err := s.Cron.AddFunc(expr, s.snapshotTask); err != nil {
		return fmt.Errorf("register snapshot task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	slog.Info("scheduler started", "entries", len(s.Cron.Entries()))
}

// Stop stops the cron scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	slog.Info("scheduler stopped")
}

// RecordNow takes a NAV snapshot of the fund, persists it and publishes
// the fund gauges.
func (s *Scheduler) RecordNow(ctx context.Context) (*model.NAVSnapshot, error) {
	state := s.Fund.Snapshot()
	snap := &model.NAVSnapshot{
		ID:             uuid.New().String(),
		Epoch:          state.Epoch,
		Price:          state.CurrentPrice,
		TotalShares:    state.TotalShares,
		NAV:            state.NAV,
		FundCash:       state.FundCash,
		CashCustodyOut: state.CashCustodyOut,
		Timestamp:      s.now().UTC(),
	}
	if err := s.Store.InsertNAVSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("record nav snapshot: %w", err)
	}
	metrics.ObserveState(state, s.Fund.AssetDecimals())
	return snap, nil
}

func (s *Scheduler) snapshotTask() {
	snap, err := s.RecordNow(s.Ctx)
	if err != nil {
		slog.Error("scheduled snapshot failed", "err", err)
		return
	}
	slog.Info("nav snapshot recorded", "epoch", snap.Epoch, "nav", snap.NAV.String())
}
