// Package api exposes the fund engine over HTTP and pushes fund events to
// WebSocket clients.
//
// The caller of every operation is read from the X-Caller-Address header,
// which the platform sets from the authenticated sender. All amounts are
// integer base-unit strings: assets at the token's decimals, shares and
// NAV at 18, prices at 8.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/offchain/fund-engine/internal/address"
	"github.com/offchain/fund-engine/internal/asset"
	"github.com/offchain/fund-engine/internal/fixedpoint"
	"github.com/offchain/fund-engine/internal/fund"
	"github.com/offchain/fund-engine/internal/metrics"
	"github.com/offchain/fund-engine/internal/model"
	"github.com/offchain/fund-engine/internal/store"
)

// CallerHeader carries the address of the account making the request.
const CallerHeader = "X-Caller-Address"

const defaultSnapshotLimit = 100

// SnapshotRecorder persists a NAV snapshot of the fund's current state.
type SnapshotRecorder interface {
	RecordNow(ctx context.Context) (*model.NAVSnapshot, error)
}

// Service serves the fund's HTTP API.
type Service struct {
	fund      *fund.Fund
	store     store.Store
	snapshots SnapshotRecorder // optional, records a snapshot after each update
	wsHub     *WSHub           // optional WebSocket hub for fund events
}

// NewService creates a new API service.
// Pass nil for snapshots or hub to disable them.
func NewService(f *fund.Fund, st store.Store, snapshots SnapshotRecorder, hub *WSHub) *Service {
	return &Service{
		fund:      f,
		store:     st,
		snapshots: snapshots,
		wsHub:     hub,
	}
}

// Routes registers every fund route on r. The WebSocket endpoint is
// mounted separately by the caller.
func (s *Service) Routes(r chi.Router) {
	// Investor operations.
	r.Post("/deposit", s.Deposit)
	r.Post("/redeem", s.Redeem)

	// Owner operations.
	r.Get("/whitelist", s.ListWhitelist)
	r.Post("/whitelist", s.AddToWhitelist)
	r.Post("/cap", s.AdjustCap)
	r.Post("/update", s.Update)
	r.Post("/settle/deposits", s.SettleDeposits)
	r.Post("/settle/redeems", s.SettleRedeems)
	r.Post("/drain", s.Drain)
	r.Post("/refill", s.Refill)

	// Queries.
	r.Get("/fund", s.GetFund)
	r.Get("/fund/nav", s.GetNAV)
	r.Get("/accounts/{address}", s.GetAccount)
	r.Get("/journal/epoch/{epoch}", s.GetJournalByEpoch)
	r.Get("/journal/address/{address}", s.GetJournalByAddress)
	r.Get("/snapshots", s.ListSnapshots)
}

// --- Request/Response types ---

// WhitelistRequest is the JSON body for POST /whitelist.
type WhitelistRequest struct {
	Address string `json:"address"`
}

// WhitelistResponse reports whether the address was newly added.
type WhitelistResponse struct {
	Address string `json:"address"`
	Added   bool   `json:"added"`
}

// CapRequest is the JSON body for POST /cap.
type CapRequest struct {
	Cap decimal.Decimal `json:"cap"` // shares, 18 decimals
}

// DepositRequest is the JSON body for POST /deposit.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"` // asset base units
}

// RedeemRequest is the JSON body for POST /redeem.
type RedeemRequest struct {
	Shares decimal.Decimal `json:"shares"` // 18 decimals
}

// UpdateRequest is the JSON body for POST /update.
type UpdateRequest struct {
	Price decimal.Decimal `json:"price"` // 8 decimals
}

// UpdateResponse is returned from POST /update.
type UpdateResponse struct {
	Entry    model.JournalEntry `json:"entry"`
	Snapshot *model.NAVSnapshot `json:"snapshot,omitempty"`
}

// SettleRequest is the JSON body for the settle endpoints. A missing
// addresses list settles every address with a pending order.
type SettleRequest struct {
	Addresses []string `json:"addresses"`
}

// RefillRequest is the JSON body for POST /refill.
type RefillRequest struct {
	Amount decimal.Decimal `json:"amount"` // asset base units
}

// FundResponse is returned from GET /fund.
type FundResponse struct {
	model.FundState
	Owner         string `json:"owner"`
	Account       string `json:"account"`
	Custodian     string `json:"custodian"`
	AssetDecimals int32  `json:"asset_decimals"`
}

// NAVResponse is returned from GET /fund/nav.
type NAVResponse struct {
	Epoch        uint64          `json:"epoch"`
	Price        decimal.Decimal `json:"price"`
	TotalShares  decimal.Decimal `json:"total_shares"`
	NAV          decimal.Decimal `json:"nav"`
	NAVFormatted string          `json:"nav_formatted"` // whole asset units
}

// --- Investor handlers ---

// Deposit handles POST /api/v1/deposit
func (s *Service) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, model.OpDeposit)
	if !ok {
		return
	}
	var req DepositRequest
	if !decodeBody(w, r, model.OpDeposit, &req) {
		return
	}

	entry, err := s.fund.Deposit(caller, req.Amount)
	if err != nil {
		failRequest(w, model.OpDeposit, err)
		return
	}
	s.commit(w, r, model.OpDeposit, []model.JournalEntry{entry}, WSMessage{
		Type:    EventOrderQueued,
		Epoch:   entry.Epoch,
		Kind:    entry.Kind,
		Address: entry.Address,
		Cash:    entry.Cash.String(),
	}, entry)
}

// Redeem handles POST /api/v1/redeem
func (s *Service) Redeem(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, model.OpRedeem)
	if !ok {
		return
	}
	var req RedeemRequest
	if !decodeBody(w, r, model.OpRedeem, &req) {
		return
	}

	entry, err := s.fund.Redeem(caller, req.Shares)
	if err != nil {
		failRequest(w, model.OpRedeem, err)
		return
	}
	s.commit(w, r, model.OpRedeem, []model.JournalEntry{entry}, WSMessage{
		Type:    EventOrderQueued,
		Epoch:   entry.Epoch,
		Kind:    entry.Kind,
		Address: entry.Address,
		Shares:  entry.Shares.String(),
	}, entry)
}

// --- Owner handlers ---

// ListWhitelist handles GET /api/v1/whitelist
func (s *Service) ListWhitelist(w http.ResponseWriter, r *http.Request) {
	list := s.fund.Whitelist()
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.String()
	}
	writeJSON(w, http.StatusOK, out)
}

// AddToWhitelist handles POST /api/v1/whitelist
func (s *Service) AddToWhitelist(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, model.OpWhitelist)
	if !ok {
		return
	}
	var req WhitelistRequest
	if !decodeBody(w, r, model.OpWhitelist, &req) {
		return
	}
	addr, err := address.Parse(req.Address)
	if err != nil {
		failRequest(w, model.OpWhitelist, err)
		return
	}

	added, entry, err := s.fund.AddToWhitelist(caller, addr)
	if err != nil {
		failRequest(w, model.OpWhitelist, err)
		return
	}
	resp := WhitelistResponse{Address: addr.String(), Added: added}
	if !added {
		metrics.OperationsTotal.WithLabelValues(model.OpWhitelist, "ok").Inc()
		writeJSON(w, http.StatusOK, resp)
		return
	}
	s.commit(w, r, model.OpWhitelist, []model.JournalEntry{entry}, WSMessage{
		Type:    EventFundChanged,
		Epoch:   entry.Epoch,
		Kind:    entry.Kind,
		Address: entry.Address,
	}, resp)
}

// AdjustCap handles POST /api/v1/cap
func (s *Service) AdjustCap(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, model.OpAdjustCap)
	if !ok {
		return
	}
	var req CapRequest
	if !decodeBody(w, r, model.OpAdjustCap, &req) {
		return
	}

	entry, err := s.fund.AdjustCap(caller, req.Cap)
	if err != nil {
		failRequest(w, model.OpAdjustCap, err)
		return
	}
	s.commit(w, r, model.OpAdjustCap, []model.JournalEntry{entry}, WSMessage{
		Type:   EventFundChanged,
		Epoch:  entry.Epoch,
		Kind:   entry.Kind,
		Shares: entry.Shares.String(),
	}, entry)
}

// Update handles POST /api/v1/update. A NAV snapshot is recorded after
// the new price is committed.
func (s *Service) Update(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, model.OpUpdate)
	if !ok {
		return
	}
	var req UpdateRequest
	if !decodeBody(w, r, model.OpUpdate, &req) {
		return
	}

	entry, err := s.fund.Update(caller, req.Price)
	if err != nil {
		failRequest(w, model.OpUpdate, err)
		return
	}

	resp := UpdateResponse{Entry: entry}
	if s.snapshots != nil {
		snap, err := s.snapshots.RecordNow(r.Context())
		if err != nil {
			slog.Error("record snapshot after update", "epoch", entry.Epoch, "err", err)
		} else {
			resp.Snapshot = snap
		}
	}

	nav := fixedpoint.NAV(entry.Shares, entry.Price)
	s.commit(w, r, model.OpUpdate, []model.JournalEntry{entry}, WSMessage{
		Type:   EventPriceUpdated,
		Epoch:  entry.Epoch,
		Kind:   entry.Kind,
		Price:  entry.Price.String(),
		Shares: entry.Shares.String(),
		NAV:    nav.String(),
	}, resp)
}

// SettleDeposits handles POST /api/v1/settle/deposits
func (s *Service) SettleDeposits(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, "deposit", s.fund.PendingDepositors, s.fund.BatchProcessDeposit)
}

// SettleRedeems handles POST /api/v1/settle/redeems
func (s *Service) SettleRedeems(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, "redeem", s.fund.PendingRedeemers, s.fund.BatchProcessRedeem)
}

func (s *Service) settle(w http.ResponseWriter, r *http.Request, side string,
	pending func() []address.Address,
	process func(address.Address, []address.Address) (fund.BatchResult, error)) {

	kind := "settle_" + side
	caller, ok := requireCaller(w, r, kind)
	if !ok {
		return
	}

	var req SettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		failRequest(w, kind, errBadBody)
		return
	}

	var addrs []address.Address
	if req.Addresses == nil {
		addrs = pending()
	} else {
		parsed, err := address.ParseList(req.Addresses)
		if err != nil {
			failRequest(w, kind, err)
			return
		}
		addrs = parsed
	}

	start := time.Now()
	res, err := process(caller, addrs)
	metrics.BatchLatency.WithLabelValues(side).Observe(time.Since(start).Seconds())
	if err != nil {
		failRequest(w, kind, err)
		return
	}

	settled := res.Settled()
	metrics.SettledOrders.WithLabelValues(side).Add(float64(settled))
	metrics.SkippedOrders.WithLabelValues(side).Add(float64(len(res.Items) - settled))

	s.commit(w, r, kind, res.Entries, WSMessage{
		Type:    EventBatchSettled,
		Epoch:   res.Epoch,
		Kind:    side,
		Price:   res.Price.String(),
		Cash:    res.Cash.String(),
		Shares:  res.Shares.String(),
		Settled: settled,
	}, res)
}

// Drain handles POST /api/v1/drain
func (s *Service) Drain(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, model.OpDrain)
	if !ok {
		return
	}

	entry, err := s.fund.Drain(caller)
	if err != nil {
		failRequest(w, model.OpDrain, err)
		return
	}
	out := true
	s.commit(w, r, model.OpDrain, []model.JournalEntry{entry}, WSMessage{
		Type:    EventCustodyChange,
		Epoch:   entry.Epoch,
		Kind:    entry.Kind,
		Address: entry.Address,
		Cash:    entry.Cash.String(),
		Custody: &out,
	}, entry)
}

// Refill handles POST /api/v1/refill
func (s *Service) Refill(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, model.OpRefill)
	if !ok {
		return
	}
	var req RefillRequest
	if !decodeBody(w, r, model.OpRefill, &req) {
		return
	}

	entry, err := s.fund.Refill(caller, req.Amount)
	if err != nil {
		failRequest(w, model.OpRefill, err)
		return
	}
	out := false
	s.commit(w, r, model.OpRefill, []model.JournalEntry{entry}, WSMessage{
		Type:    EventCustodyChange,
		Epoch:   entry.Epoch,
		Kind:    entry.Kind,
		Address: entry.Address,
		Cash:    entry.Cash.String(),
		Custody: &out,
	}, entry)
}

// --- Query handlers ---

// GetFund handles GET /api/v1/fund
func (s *Service) GetFund(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, FundResponse{
		FundState:     s.fund.Snapshot(),
		Owner:         s.fund.Owner().String(),
		Account:       s.fund.Account().String(),
		Custodian:     s.fund.Custodian().String(),
		AssetDecimals: s.fund.AssetDecimals(),
	})
}

// GetNAV handles GET /api/v1/fund/nav
func (s *Service) GetNAV(w http.ResponseWriter, r *http.Request) {
	state := s.fund.Snapshot()
	writeJSON(w, http.StatusOK, NAVResponse{
		Epoch:        state.Epoch,
		Price:        state.CurrentPrice,
		TotalShares:  state.TotalShares,
		NAV:          state.NAV,
		NAVFormatted: fixedpoint.FromBaseUnits(state.NAV, fixedpoint.NAVDecimals),
	})
}

// GetAccount handles GET /api/v1/accounts/{address}
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := address.Parse(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.fund.AccountOf(addr))
}

// GetJournalByEpoch handles GET /api/v1/journal/epoch/{epoch}
func (s *Service) GetJournalByEpoch(w http.ResponseWriter, r *http.Request) {
	epoch, err := strconv.ParseUint(chi.URLParam(r, "epoch"), 10, 64)
	if err != nil {
		writeError(w, "epoch must be a non-negative integer", http.StatusBadRequest)
		return
	}
	entries, err := s.store.GetJournalByEpoch(r.Context(), epoch)
	if err != nil {
		writeError(w, "failed to load journal", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// GetJournalByAddress handles GET /api/v1/journal/address/{address}
func (s *Service) GetJournalByAddress(w http.ResponseWriter, r *http.Request) {
	addr, err := address.Parse(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	entries, err := s.store.GetJournalByAddress(r.Context(), addr.String())
	if err != nil {
		writeError(w, "failed to load journal", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(entries))
}

// ListSnapshots handles GET /api/v1/snapshots
// Returns the newest snapshots first, optionally limited by ?limit=<n>.
func (s *Service) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := defaultSnapshotLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	snaps, err := s.store.ListNAVSnapshots(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to load snapshots", http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []model.NAVSnapshot{}
	}
	writeJSON(w, http.StatusOK, snaps)
}

// --- Helpers ---

var (
	errMissingCaller = errors.New("missing " + CallerHeader + " header")
	errBadBody       = errors.New("invalid request body")
)

// requireCaller resolves the request's caller address, writing the error
// response itself when it cannot.
func requireCaller(w http.ResponseWriter, r *http.Request, kind string) (address.Address, bool) {
	raw := r.Header.Get(CallerHeader)
	if raw == "" {
		failRequest(w, kind, errMissingCaller)
		return "", false
	}
	addr, err := address.Parse(raw)
	if err != nil {
		failRequest(w, kind, err)
		return "", false
	}
	return addr, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, kind string, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		failRequest(w, kind, errBadBody)
		return false
	}
	return true
}

// commit journals a committed operation, then publishes metrics and the
// WebSocket event and writes resp.
func (s *Service) commit(w http.ResponseWriter, r *http.Request, kind string,
	entries []model.JournalEntry, msg WSMessage, resp interface{}) {

	if err := s.store.InsertJournalEntries(r.Context(), entries...); err != nil {
		slog.Error("journal write failed", "kind", kind, "entries", len(entries), "err", err)
		metrics.OperationsTotal.WithLabelValues(kind, "journal_error").Inc()
		writeError(w, "failed to record journal", http.StatusInternalServerError)
		return
	}

	metrics.OperationsTotal.WithLabelValues(kind, "ok").Inc()
	metrics.ObserveState(s.fund.Snapshot(), s.fund.AssetDecimals())

	if s.wsHub != nil {
		s.wsHub.Broadcast(msg)
	}
	writeJSON(w, http.StatusOK, resp)
}

func failRequest(w http.ResponseWriter, kind string, err error) {
	status, reason := classify(err)
	metrics.OperationsTotal.WithLabelValues(kind, reason).Inc()
	if status == http.StatusInternalServerError {
		slog.Error("operation failed", "kind", kind, "err", err)
	} else {
		slog.Warn("operation rejected", "kind", kind, "reason", reason, "err", err)
	}
	writeError(w, err.Error(), status)
}

// classify maps an error to its HTTP status and metrics label.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, errMissingCaller), errors.Is(err, fund.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, errBadBody):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, address.ErrInvalidAddress), errors.Is(err, address.ErrZeroAddress):
		return http.StatusBadRequest, "invalid_address"
	case errors.Is(err, fund.ErrInvalidAmount), errors.Is(err, asset.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, fund.ErrInvalidPrice):
		return http.StatusBadRequest, "invalid_price"
	case errors.Is(err, fund.ErrCapExceeded):
		return http.StatusConflict, "cap_exceeded"
	case errors.Is(err, fund.ErrInsufficientBalance):
		return http.StatusConflict, "insufficient_balance"
	default:
		return http.StatusInternalServerError, "error"
	}
}

func nonNil(entries []model.JournalEntry) []model.JournalEntry {
	if entries == nil {
		return []model.JournalEntry{}
	}
	return entries
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
