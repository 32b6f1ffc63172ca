// Package model defines the core domain types shared across the fund engine.
// All monetary values are integer base units in shopspring/decimal, never
// float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundState is the settlement aggregate. Units: CurrentPrice 8 decimals,
// share quantities 18 decimals, Cap in shares.
type FundState struct {
	Name               string          `json:"name"`
	Symbol             string          `json:"symbol"`
	Epoch              uint64          `json:"epoch"`
	CurrentPrice       decimal.Decimal `json:"current_price"`
	TotalShares        decimal.Decimal `json:"total_shares"`
	TempMint           decimal.Decimal `json:"temp_mint"`           // minted since last update
	CurrentRedemptions decimal.Decimal `json:"current_redemptions"` // burned since last update
	Cap                decimal.Decimal `json:"cap"`
	CashCustodyOut     bool            `json:"cash_custody_out"`
	NAV                decimal.Decimal `json:"nav"` // derived, 18 decimals
	FundCash           decimal.Decimal `json:"fund_cash"`
}

// PendingOrder is an investor's queued, not-yet-settled order.
type PendingOrder struct {
	DepositAmount decimal.Decimal `json:"deposit_amount"` // asset base units
	RedeemShares  decimal.Decimal `json:"redeem_shares"`  // share base units
}

// IsEmpty reports whether nothing is queued.
func (o PendingOrder) IsEmpty() bool {
	return o.DepositAmount.IsZero() && o.RedeemShares.IsZero()
}

// Account is an investor's view of their position in the fund.
type Account struct {
	Address      string          `json:"address"`
	Whitelisted  bool            `json:"whitelisted"`
	Shares       decimal.Decimal `json:"shares"`        // liquid
	LockedShares decimal.Decimal `json:"locked_shares"` // earmarked for redemption
	Pending      PendingOrder    `json:"pending"`
	Value        decimal.Decimal `json:"value"` // (shares+locked) at current price, 18 decimals
}

// Operation kinds recorded in the journal.
const (
	OpWhitelist = "whitelist"
	OpAdjustCap = "adjust_cap"
	OpDeposit   = "deposit"
	OpRedeem    = "redeem"
	OpUpdate    = "update"
	OpMint      = "mint" // settled deposit
	OpBurn      = "burn" // settled redemption
	OpDrain     = "drain"
	OpRefill    = "refill"
)

// JournalEntry is an immutable record of one committed state change.
// Once created, these are never modified or deleted.
type JournalEntry struct {
	ID        string          `json:"id" db:"id"`
	Kind      string          `json:"kind" db:"kind"`
	Epoch     uint64          `json:"epoch" db:"epoch"`
	Address   string          `json:"address" db:"address"` // investor, or custodian for drain/refill
	Cash      decimal.Decimal `json:"cash" db:"cash"`
	Shares    decimal.Decimal `json:"shares" db:"shares"`
	Price     decimal.Decimal `json:"price" db:"price"`
	Timestamp time.Time       `json:"timestamp" db:"timestamp"`
}

// NAVSnapshot is a point-in-time valuation record.
type NAVSnapshot struct {
	ID             string          `json:"id" db:"id"`
	Epoch          uint64          `json:"epoch" db:"epoch"`
	Price          decimal.Decimal `json:"price" db:"price"`
	TotalShares    decimal.Decimal `json:"total_shares" db:"total_shares"`
	NAV            decimal.Decimal `json:"nav" db:"nav"`
	FundCash       decimal.Decimal `json:"fund_cash" db:"fund_cash"`
	CashCustodyOut bool            `json:"cash_custody_out" db:"cash_custody_out"`
	Timestamp      time.Time       `json:"timestamp" db:"timestamp"`
}
