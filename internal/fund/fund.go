// Package fund implements the epoch-based settlement engine of an
// actively managed, tokenized fund.
//
// Investors queue deposits (asset units) and redemptions (share units).
// The owner settles queued orders in batches at the price set by the most
// recent Update, moves the cash pool to and from an off-platform custodian
// with Drain/Refill, and reports a new valuation with Update, which also
// closes the epoch.
//
// Every public operation runs under one mutex and either commits fully or
// leaves the state untouched.
package fund

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/offchain/fund-engine/internal/access"
	"github.com/offchain/fund-engine/internal/address"
	"github.com/offchain/fund-engine/internal/asset"
	"github.com/offchain/fund-engine/internal/fixedpoint"
	"github.com/offchain/fund-engine/internal/model"
)

var (
	// ErrUnauthorized is returned when the caller lacks the owner or
	// whitelist capability the operation requires.
	ErrUnauthorized = access.ErrUnauthorized

	// ErrInvalidAmount is returned for zero, negative or fractional amounts.
	ErrInvalidAmount = errors.New("fund: invalid amount")

	// ErrCapExceeded is returned when settlement would push total shares over the cap.
	ErrCapExceeded = errors.New("fund: share cap exceeded")

	// ErrInsufficientBalance is returned when a redemption exceeds liquid
	// shares, or an asset transfer cannot be covered.
	ErrInsufficientBalance = errors.New("fund: insufficient balance")

	// ErrInvalidPrice is returned for a non-positive valuation.
	ErrInvalidPrice = errors.New("fund: invalid price")
)

// DefaultInitialPrice is 1.00000000 at PriceDecimals.
var DefaultInitialPrice = fixedpoint.Unit(fixedpoint.PriceDecimals)

// Config describes a fund at construction.
type Config struct {
	Name   string
	Symbol string

	// Owner runs every privileged operation.
	Owner address.Address

	// Account is the address holding the fund's asset pool.
	Account address.Address

	// Custodian receives drained cash and funds refills. Defaults to Owner.
	Custodian address.Address

	// InitialPrice is used for settlement before the first Update.
	// Zero means DefaultInitialPrice.
	InitialPrice decimal.Decimal

	// Cap is the initial maximum of total shares. Zero blocks all minting
	// until AdjustCap is called.
	Cap decimal.Decimal
}

// Fund is the single owner of the fund's state.
type Fund struct {
	mu sync.Mutex

	name      string
	symbol    string
	guard     *access.Guard
	token     asset.Token
	decimals  int32
	account   address.Address
	custodian address.Address

	epoch              uint64
	currentPrice       decimal.Decimal
	totalShares        decimal.Decimal
	tempMint           decimal.Decimal
	currentRedemptions decimal.Decimal
	cap                decimal.Decimal
	cashCustodyOut     bool

	balances map[address.Address]decimal.Decimal // liquid shares
	locked   map[address.Address]decimal.Decimal // shares earmarked for burn
	pending  map[address.Address]model.PendingOrder

	now func() time.Time
}

// New creates a fund over token with zero shares at epoch zero.
func New(cfg Config, token asset.Token) (*Fund, error) {
	if token == nil {
		return nil, errors.New("fund: asset token is required")
	}
	if err := fixedpoint.CheckAssetDecimals(token.Decimals()); err != nil {
		return nil, err
	}
	if cfg.Owner == "" || cfg.Account == "" {
		return nil, errors.New("fund: owner and account addresses are required")
	}
	if cfg.Account == cfg.Owner {
		return nil, errors.New("fund: account must differ from owner")
	}

	price := cfg.InitialPrice
	if price.IsZero() {
		price = DefaultInitialPrice
	}
	if err := checkPositive(price); err != nil {
		return nil, fmt.Errorf("%w: initial price %s", ErrInvalidPrice, price)
	}
	if err := fixedpoint.Validate(cfg.Cap); err != nil {
		return nil, fmt.Errorf("%w: cap %s", ErrInvalidAmount, cfg.Cap)
	}

	custodian := cfg.Custodian
	if custodian == "" {
		custodian = cfg.Owner
	}

	return &Fund{
		name:         cfg.Name,
		symbol:       cfg.Symbol,
		guard:        access.NewGuard(cfg.Owner),
		token:        token,
		decimals:     token.Decimals(),
		account:      cfg.Account,
		custodian:    custodian,
		currentPrice: price,
		cap:          cfg.Cap,
		balances:     make(map[address.Address]decimal.Decimal),
		locked:       make(map[address.Address]decimal.Decimal),
		pending:      make(map[address.Address]model.PendingOrder),
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// SetClock overrides the journal timestamp source.
func (f *Fund) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

func (f *Fund) Owner() address.Address     { return f.guard.Owner() }
func (f *Fund) Account() address.Address   { return f.account }
func (f *Fund) Custodian() address.Address { return f.custodian }
func (f *Fund) AssetDecimals() int32       { return f.decimals }

// --- Accounting accessors ---

func (f *Fund) Epoch() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.epoch
}

func (f *Fund) CurrentPrice() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentPrice
}

func (f *Fund) TotalShares() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.totalShares
}

func (f *Fund) TempMint() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tempMint
}

func (f *Fund) CurrentRedemptions() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentRedemptions
}

func (f *Fund) Cap() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cap
}

func (f *Fund) CashCustodyOut() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cashCustodyOut
}

// NAV returns totalShares * currentPrice at NAVDecimals, computed from the
// current state on every call.
func (f *Fund) NAV() decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fixedpoint.NAV(f.totalShares, f.currentPrice)
}

// FundCash is the asset balance currently held by the fund account.
func (f *Fund) FundCash() decimal.Decimal {
	return f.token.BalanceOf(f.account)
}

// BalanceOf returns addr's liquid shares.
func (f *Fund) BalanceOf(addr address.Address) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[addr]
}

// LockedOf returns addr's shares earmarked for redemption.
func (f *Fund) LockedOf(addr address.Address) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locked[addr]
}

// PendingOf returns addr's queued order.
func (f *Fund) PendingOf(addr address.Address) model.PendingOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orderOf(addr)
}

// IsOwner reports whether addr is the fund owner.
func (f *Fund) IsOwner(addr address.Address) bool { return f.guard.IsOwner(addr) }

func (f *Fund) IsWhitelisted(addr address.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.guard.IsWhitelisted(addr)
}

func (f *Fund) Whitelist() []address.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.guard.Whitelist()
}

// PendingDepositors lists addresses with a queued deposit, sorted.
func (f *Fund) PendingDepositors() []address.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingWhere(func(o model.PendingOrder) bool { return o.DepositAmount.IsPositive() })
}

// PendingRedeemers lists addresses with a queued redemption, sorted.
func (f *Fund) PendingRedeemers() []address.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pendingWhere(func(o model.PendingOrder) bool { return o.RedeemShares.IsPositive() })
}

// AccountOf returns addr's full position.
func (f *Fund) AccountOf(addr address.Address) model.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	held := f.balances[addr].Add(f.locked[addr])
	return model.Account{
		Address:      addr.String(),
		Whitelisted:  f.guard.IsWhitelisted(addr),
		Shares:       f.balances[addr],
		LockedShares: f.locked[addr],
		Pending:      f.orderOf(addr),
		Value:        fixedpoint.NAV(held, f.currentPrice),
	}
}

// Snapshot returns a consistent copy of the aggregate.
func (f *Fund) Snapshot() model.FundState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return model.FundState{
		Name:               f.name,
		Symbol:             f.symbol,
		Epoch:              f.epoch,
		CurrentPrice:       f.currentPrice,
		TotalShares:        f.totalShares,
		TempMint:           f.tempMint,
		CurrentRedemptions: f.currentRedemptions,
		Cap:                f.cap,
		CashCustodyOut:     f.cashCustodyOut,
		NAV:                fixedpoint.NAV(f.totalShares, f.currentPrice),
		FundCash:           f.token.BalanceOf(f.account),
	}
}

// --- helpers (callers hold f.mu) ---

func (f *Fund) orderOf(addr address.Address) model.PendingOrder {
	return f.pending[addr]
}

func (f *Fund) setOrder(addr address.Address, o model.PendingOrder) {
	if o.IsEmpty() {
		delete(f.pending, addr)
		return
	}
	f.pending[addr] = o
}

func (f *Fund) pendingWhere(keep func(model.PendingOrder) bool) []address.Address {
	var out []address.Address
	for a, o := range f.pending {
		if keep(o) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (f *Fund) entry(kind string, addr address.Address, cash, shares decimal.Decimal) model.JournalEntry {
	return model.JournalEntry{
		ID:        uuid.New().String(),
		Kind:      kind,
		Epoch:     f.epoch,
		Address:   addr.String(),
		Cash:      cash,
		Shares:    shares,
		Price:     f.currentPrice,
		Timestamp: f.now(),
	}
}

// checkPositive validates a strictly positive whole number of base units.
func checkPositive(d decimal.Decimal) error {
	if err := fixedpoint.Validate(d); err != nil {
		return err
	}
	if d.IsZero() {
		return errors.New("must be positive")
	}
	return nil
}
