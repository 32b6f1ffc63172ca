// Package asset models the underlying stable asset the fund holds. The
// fund only depends on the Token interface; Ledger is an in-memory
// fungible balance sheet with approvals used for development and tests.
package asset

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/offchain/fund-engine/internal/address"
)

var (
	// ErrInsufficientBalance is returned when a transfer exceeds the sender's balance.
	ErrInsufficientBalance = errors.New("asset: transfer amount exceeds balance")

	// ErrInsufficientAllowance is returned when transferFrom exceeds the approval.
	ErrInsufficientAllowance = errors.New("asset: insufficient allowance")

	// ErrInvalidAmount is returned for negative amounts.
	ErrInvalidAmount = errors.New("asset: amount must not be negative")
)

// Token is the standard fungible-balance surface the fund relies on.
// All amounts are integer base units.
type Token interface {
	Decimals() int32
	BalanceOf(owner address.Address) decimal.Decimal
	Transfer(from, to address.Address, amount decimal.Decimal) error
	TransferFrom(spender, from, to address.Address, amount decimal.Decimal) error
}

// Ledger implements Token with in-memory maps.
type Ledger struct {
	mu         sync.RWMutex
	symbol     string
	decimals   int32
	balances   map[address.Address]decimal.Decimal
	allowances map[address.Address]map[address.Address]decimal.Decimal
}

// NewLedger creates an empty ledger.
func NewLedger(symbol string, decimals int32) *Ledger {
	return &Ledger{
		symbol:     symbol,
		decimals:   decimals,
		balances:   make(map[address.Address]decimal.Decimal),
		allowances: make(map[address.Address]map[address.Address]decimal.Decimal),
	}
}

func (l *Ledger) Symbol() string { return l.symbol }
func (l *Ledger) Decimals() int32 { return l.decimals }

func (l *Ledger) BalanceOf(owner address.Address) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[owner]
}

// Mint credits amount to owner out of thin air.
func (l *Ledger) Mint(owner address.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[owner] = l.balances[owner].Add(amount)
	return nil
}

// Approve sets spender's allowance over owner's balance.
func (l *Ledger) Approve(owner, spender address.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.allowances[owner]
	if !ok {
		m = make(map[address.Address]decimal.Decimal)
		l.allowances[owner] = m
	}
	m[spender] = amount
	return nil
}

func (l *Ledger) Allowance(owner, spender address.Address) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[owner][spender]
}

func (l *Ledger) Transfer(from, to address.Address, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(from, to, amount)
}

func (l *Ledger) TransferFrom(spender, from, to address.Address, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	allowed := l.allowances[from][spender]
	if allowed.LessThan(amount) {
		return fmt.Errorf("%w: %s approved %s, need %s", ErrInsufficientAllowance, from, allowed, amount)
	}
	if err := l.move(from, to, amount); err != nil {
		return err
	}
	if amount.IsPositive() {
		l.allowances[from][spender] = allowed.Sub(amount)
	}
	return nil
}

// move must be called with l.mu held.
func (l *Ledger) move(from, to address.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrInvalidAmount
	}
	bal := l.balances[from]
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, need %s", ErrInsufficientBalance, from, bal, amount)
	}
	l.balances[from] = bal.Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return nil
}
