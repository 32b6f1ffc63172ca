package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/offchain/fund-engine/internal/address"
	"github.com/offchain/fund-engine/internal/asset"
	"github.com/offchain/fund-engine/internal/fund"
)

// AssetService exposes the in-process asset ledger so investors and the
// custodian can be funded and grant the fund account an allowance.
type AssetService struct {
	ledger *asset.Ledger
	fund   *fund.Fund
}

// NewAssetService creates the ledger endpoints for f's underlying asset.
func NewAssetService(ledger *asset.Ledger, f *fund.Fund) *AssetService {
	return &AssetService{ledger: ledger, fund: f}
}

// Routes registers the asset routes on r.
func (a *AssetService) Routes(r chi.Router) {
	r.Post("/asset/mint", a.Mint)
	r.Post("/asset/approve", a.Approve)
	r.Get("/asset/balances/{address}", a.GetBalance)
}

// MintRequest is the JSON body for POST /asset/mint.
type MintRequest struct {
	Address string          `json:"address"`
	Amount  decimal.Decimal `json:"amount"`
}

// ApproveRequest is the JSON body for POST /asset/approve. The spender is
// always the fund account.
type ApproveRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// BalanceResponse is returned from GET /asset/balances/{address}.
type BalanceResponse struct {
	Address   string          `json:"address"`
	Symbol    string          `json:"symbol"`
	Balance   decimal.Decimal `json:"balance"`
	Allowance decimal.Decimal `json:"allowance"` // granted to the fund account
}

// Mint handles POST /api/v1/asset/mint. Owner only.
func (a *AssetService) Mint(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, "asset_mint")
	if !ok {
		return
	}
	if !a.fund.IsOwner(caller) {
		failRequest(w, "asset_mint", fund.ErrUnauthorized)
		return
	}
	var req MintRequest
	if !decodeBody(w, r, "asset_mint", &req) {
		return
	}
	to, err := address.Parse(req.Address)
	if err != nil {
		failRequest(w, "asset_mint", err)
		return
	}
	if err := a.ledger.Mint(to, req.Amount); err != nil {
		failRequest(w, "asset_mint", err)
		return
	}
	writeJSON(w, http.StatusOK, a.balance(to))
}

// Approve handles POST /api/v1/asset/approve
func (a *AssetService) Approve(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r, "asset_approve")
	if !ok {
		return
	}
	var req ApproveRequest
	if !decodeBody(w, r, "asset_approve", &req) {
		return
	}
	if err := a.ledger.Approve(caller, a.fund.Account(), req.Amount); err != nil {
		failRequest(w, "asset_approve", err)
		return
	}
	writeJSON(w, http.StatusOK, a.balance(caller))
}

// GetBalance handles GET /api/v1/asset/balances/{address}
func (a *AssetService) GetBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := address.Parse(chi.URLParam(r, "address"))
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, a.balance(addr))
}

func (a *AssetService) balance(addr address.Address) BalanceResponse {
	return BalanceResponse{
		Address:   addr.String(),
		Symbol:    a.ledger.Symbol(),
		Balance:   a.ledger.BalanceOf(addr),
		Allowance: a.ledger.Allowance(addr, a.fund.Account()),
	}
}
