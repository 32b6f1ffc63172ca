package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/offchain/fund-engine/internal/address"
	"github.com/offchain/fund-engine/internal/api"
	"github.com/offchain/fund-engine/internal/asset"
	"github.com/offchain/fund-engine/internal/fund"
	"github.com/offchain/fund-engine/internal/model"
	"github.com/offchain/fund-engine/internal/scheduler"
	"github.com/offchain/fund-engine/internal/store"
)

const (
	owner    = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	account  = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	investor = "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"
	stranger = "0x90f79bf6eb2c4f870365e785982e1f101e93b906"

	// 1000 USDC, and the shares it buys at price 1.
	thousandUSDC   = "1000000000"
	thousandShares = "1000000000000000000000"
)

type testEnv struct {
	ledger *asset.Ledger
	fund   *fund.Fund
	store  *store.MemoryStore
	router chi.Router
}

// newTestEnv creates a Service backed by an in-memory store and ledger.
// The investor and owner each hold and have approved 1,000,000 USDC.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ledger := asset.NewLedger("USDC", 6)
	f, err := fund.New(fund.Config{
		Name:    "Test Fund",
		Symbol:  "TF",
		Owner:   address.MustParse(owner),
		Account: address.MustParse(account),
	}, ledger)
	if err != nil {
		t.Fatalf("new fund: %v", err)
	}

	big := decimal.NewFromInt(1_000_000_000_000)
	for _, a := range []string{owner, investor} {
		addr := address.MustParse(a)
		if err := ledger.Mint(addr, big); err != nil {
			t.Fatalf("mint: %v", err)
		}
		if err := ledger.Approve(addr, address.MustParse(account), big); err != nil {
			t.Fatalf("approve: %v", err)
		}
	}

	ms := store.NewMemoryStore()
	sched := scheduler.NewScheduler(context.Background(), f, ms)
	svc := api.NewService(f, ms, sched, nil)

	r := chi.NewRouter()
	r.Route("/api/v1", svc.Routes)
	return &testEnv{ledger: ledger, fund: f, store: ms, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if caller != "" {
		req.Header.Set(api.CallerHeader, caller)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) mustOK(t *testing.T, method, path, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	w := e.do(t, method, path, caller, body)
	if w.Code != http.StatusOK {
		t.Fatalf("%s %s: expected 200, got %d: %s", method, path, w.Code, w.Body.String())
	}
	return w
}

// onboard whitelists the investor and raises the cap to 1e9 shares.
func (e *testEnv) onboard(t *testing.T) {
	t.Helper()
	e.mustOK(t, "POST", "/api/v1/whitelist", owner, `{"address":"`+investor+`"}`)
	e.mustOK(t, "POST", "/api/v1/cap", owner, `{"cap":"1000000000000000000000000000"}`)
}

// --- Full cycle ---

func TestFundCycle(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t)

	env.mustOK(t, "POST", "/api/v1/deposit", investor, `{"amount":"`+thousandUSDC+`"}`)

	// Omitted address list settles every pending depositor.
	w := env.mustOK(t, "POST", "/api/v1/settle/deposits", owner, "")
	var batch fund.BatchResult
	json.Unmarshal(w.Body.Bytes(), &batch)
	if batch.Settled() != 1 {
		t.Fatalf("expected 1 settled deposit, got %d", batch.Settled())
	}
	if batch.Shares.String() != thousandShares {
		t.Errorf("expected %s shares minted, got %s", thousandShares, batch.Shares)
	}

	w = env.mustOK(t, "GET", "/api/v1/accounts/"+investor, "", "")
	var acct model.Account
	json.Unmarshal(w.Body.Bytes(), &acct)
	if acct.Shares.String() != thousandShares {
		t.Errorf("expected investor to hold %s shares, got %s", thousandShares, acct.Shares)
	}
	if !acct.Pending.IsEmpty() {
		t.Errorf("expected no pending order, got %+v", acct.Pending)
	}

	// Price moves to 1.1; update closes epoch 0 and records a snapshot.
	w = env.mustOK(t, "POST", "/api/v1/update", owner, `{"price":"110000000"}`)
	var upd api.UpdateResponse
	json.Unmarshal(w.Body.Bytes(), &upd)
	if upd.Entry.Epoch != 1 {
		t.Errorf("expected epoch 1 after update, got %d", upd.Entry.Epoch)
	}
	if upd.Snapshot == nil {
		t.Fatal("expected a snapshot after update")
	}
	if upd.Snapshot.NAV.String() != "1100000000000000000000" {
		t.Errorf("expected NAV 1100e18, got %s", upd.Snapshot.NAV)
	}

	env.mustOK(t, "POST", "/api/v1/redeem", investor, `{"shares":"500000000000000000000"}`)
	before := env.ledger.BalanceOf(address.MustParse(investor))

	w = env.mustOK(t, "POST", "/api/v1/settle/redeems", owner, `{"addresses":["`+investor+`"]}`)
	json.Unmarshal(w.Body.Bytes(), &batch)
	if batch.Cash.String() != "550000000" {
		t.Errorf("expected 550 USDC paid, got %s", batch.Cash)
	}
	paid := env.ledger.BalanceOf(address.MustParse(investor)).Sub(before)
	if paid.String() != "550000000" {
		t.Errorf("expected investor balance +550000000, got %s", paid)
	}

	w = env.mustOK(t, "GET", "/api/v1/fund", "", "")
	var state api.FundResponse
	json.Unmarshal(w.Body.Bytes(), &state)
	if state.TotalShares.String() != "500000000000000000000" {
		t.Errorf("expected 500e18 total shares, got %s", state.TotalShares)
	}
	if state.CurrentRedemptions.String() != "500000000000000000000" {
		t.Errorf("expected current redemptions 500e18, got %s", state.CurrentRedemptions)
	}
	if state.Owner != owner || state.AssetDecimals != 6 {
		t.Errorf("unexpected fund identity: owner=%s decimals=%d", state.Owner, state.AssetDecimals)
	}

	w = env.mustOK(t, "GET", "/api/v1/fund/nav", "", "")
	var nav api.NAVResponse
	json.Unmarshal(w.Body.Bytes(), &nav)
	if nav.NAVFormatted != "550" {
		t.Errorf("expected NAV 550, got %s", nav.NAVFormatted)
	}
}

func TestJournal(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t)
	env.mustOK(t, "POST", "/api/v1/deposit", investor, `{"amount":"`+thousandUSDC+`"}`)
	env.mustOK(t, "POST", "/api/v1/settle/deposits", owner, `{"addresses":["`+investor+`"]}`)

	w := env.mustOK(t, "GET", "/api/v1/journal/address/"+investor, "", "")
	var entries []model.JournalEntry
	json.Unmarshal(w.Body.Bytes(), &entries)

	// whitelist, deposit, mint
	if len(entries) != 3 {
		t.Fatalf("expected 3 journal entries for investor, got %d: %s", len(entries), w.Body.String())
	}
	kinds := []string{model.OpWhitelist, model.OpDeposit, model.OpMint}
	for i, k := range kinds {
		if entries[i].Kind != k {
			t.Errorf("entry %d: expected kind %s, got %s", i, k, entries[i].Kind)
		}
	}

	w = env.mustOK(t, "GET", "/api/v1/journal/epoch/0", "", "")
	json.Unmarshal(w.Body.Bytes(), &entries)
	if len(entries) != 4 { // plus adjust_cap by the owner
		t.Errorf("expected 4 entries in epoch 0, got %d", len(entries))
	}

	w = env.mustOK(t, "GET", "/api/v1/journal/address/"+stranger, "", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("expected empty array, got %s", w.Body.String())
	}
}

func TestWhitelist_Idempotent(t *testing.T) {
	env := newTestEnv(t)

	// Mixed case folds to the same address.
	bodies := []string{investor, "0x" + strings.ToUpper(investor[2:])}
	for i, want := range []bool{true, false} {
		w := env.mustOK(t, "POST", "/api/v1/whitelist", owner, `{"address":"`+bodies[i]+`"}`)
		var resp api.WhitelistResponse
		json.Unmarshal(w.Body.Bytes(), &resp)
		if resp.Added != want {
			t.Errorf("call %d: expected added=%v, got %v", i, want, resp.Added)
		}
		if resp.Address != investor {
			t.Errorf("expected normalized address %s, got %s", investor, resp.Address)
		}
	}

	entries, _ := env.store.GetJournalByAddress(context.Background(), investor)
	if len(entries) != 1 {
		t.Errorf("expected a single whitelist journal entry, got %d", len(entries))
	}

	w := env.mustOK(t, "GET", "/api/v1/whitelist", "", "")
	var list []string
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 1 || list[0] != investor {
		t.Errorf("expected [%s], got %v", investor, list)
	}
}

func TestSettleEmptyQueue(t *testing.T) {
	env := newTestEnv(t)
	w := env.mustOK(t, "POST", "/api/v1/settle/redeems", owner, "")
	var batch fund.BatchResult
	json.Unmarshal(w.Body.Bytes(), &batch)
	if len(batch.Items) != 0 {
		t.Errorf("expected no items, got %d", len(batch.Items))
	}
}

func TestDrainRefill(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t)
	env.mustOK(t, "POST", "/api/v1/deposit", investor, `{"amount":"`+thousandUSDC+`"}`)
	env.mustOK(t, "POST", "/api/v1/settle/deposits", owner, "")

	w := env.mustOK(t, "POST", "/api/v1/drain", owner, "")
	var entry model.JournalEntry
	json.Unmarshal(w.Body.Bytes(), &entry)
	if entry.Cash.String() != thousandUSDC {
		t.Errorf("expected %s drained, got %s", thousandUSDC, entry.Cash)
	}
	if !env.fund.CashCustodyOut() {
		t.Error("expected cash to be out with the custodian")
	}

	env.mustOK(t, "POST", "/api/v1/refill", owner, `{"amount":"`+thousandUSDC+`"}`)
	if env.fund.CashCustodyOut() {
		t.Error("expected custody flag cleared after refill")
	}
	if got := env.fund.FundCash().String(); got != thousandUSDC {
		t.Errorf("expected fund cash %s, got %s", thousandUSDC, got)
	}
}

func TestSnapshots(t *testing.T) {
	env := newTestEnv(t)
	for _, p := range []string{"100000000", "105000000", "110000000"} {
		env.mustOK(t, "POST", "/api/v1/update", owner, `{"price":"`+p+`"}`)
	}

	w := env.mustOK(t, "GET", "/api/v1/snapshots?limit=2", "", "")
	var snaps []model.NAVSnapshot
	json.Unmarshal(w.Body.Bytes(), &snaps)
	if len(snaps) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(snaps))
	}
	if snaps[0].Epoch != 3 || snaps[0].Price.String() != "110000000" {
		t.Errorf("expected newest snapshot first, got epoch=%d price=%s", snaps[0].Epoch, snaps[0].Price)
	}
}

// --- Error mapping ---

func TestErrors(t *testing.T) {
	env := newTestEnv(t)
	env.onboard(t)

	tests := []struct {
		name   string
		method string
		path   string
		caller string
		body   string
		want   int
	}{
		{"missing caller", "POST", "/api/v1/update", "", `{"price":"1"}`, http.StatusForbidden},
		{"malformed caller", "POST", "/api/v1/update", "owner", `{"price":"1"}`, http.StatusBadRequest},
		{"update by investor", "POST", "/api/v1/update", investor, `{"price":"100000000"}`, http.StatusForbidden},
		{"settle by investor", "POST", "/api/v1/settle/deposits", investor, "", http.StatusForbidden},
		{"drain by investor", "POST", "/api/v1/drain", investor, "", http.StatusForbidden},
		{"deposit not whitelisted", "POST", "/api/v1/deposit", stranger, `{"amount":"1"}`, http.StatusForbidden},
		{"zero price", "POST", "/api/v1/update", owner, `{"price":"0"}`, http.StatusBadRequest},
		{"zero deposit", "POST", "/api/v1/deposit", investor, `{"amount":"0"}`, http.StatusBadRequest},
		{"fractional deposit", "POST", "/api/v1/deposit", investor, `{"amount":"1.5"}`, http.StatusBadRequest},
		{"bad body", "POST", "/api/v1/deposit", investor, `{"amount":`, http.StatusBadRequest},
		{"redeem without shares", "POST", "/api/v1/redeem", investor, `{"shares":"1"}`, http.StatusConflict},
		{"bad whitelist address", "POST", "/api/v1/whitelist", owner, `{"address":"0x12"}`, http.StatusBadRequest},
		{"bad settle address", "POST", "/api/v1/settle/deposits", owner, `{"addresses":["nope"]}`, http.StatusBadRequest},
		{"refill beyond custodian balance", "POST", "/api/v1/refill", owner, `{"amount":"1000000000000000"}`, http.StatusConflict},
		{"bad account path", "GET", "/api/v1/accounts/0xzz", "", "", http.StatusBadRequest},
		{"bad epoch path", "GET", "/api/v1/journal/epoch/-1", "", "", http.StatusBadRequest},
		{"bad snapshot limit", "GET", "/api/v1/snapshots?limit=0", "", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.caller, tt.body)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, w.Code, w.Body.String())
			}
			var body map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body["error"] == "" {
				t.Errorf("expected JSON error body, got %s", w.Body.String())
			}
		})
	}
}

func TestSettle_CapExceededIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	env.mustOK(t, "POST", "/api/v1/whitelist", owner, `{"address":"`+investor+`"}`)
	env.mustOK(t, "POST", "/api/v1/cap", owner, `{"cap":"`+thousandShares+`"}`)
	env.mustOK(t, "POST", "/api/v1/deposit", investor, `{"amount":"1000000001"}`)

	w := env.do(t, "POST", "/api/v1/settle/deposits", owner, "")
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}
	if !env.fund.TotalShares().IsZero() {
		t.Errorf("expected no shares minted, got %s", env.fund.TotalShares())
	}
	if got := env.fund.PendingOf(address.MustParse(investor)).DepositAmount.String(); got != "1000000001" {
		t.Errorf("expected deposit to stay queued, got %s", got)
	}
}
