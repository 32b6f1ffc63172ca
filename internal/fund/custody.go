package fund

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/offchain/fund-engine/internal/address"
	"github.com/offchain/fund-engine/internal/model"
)

// Drain sends the fund account's entire asset balance to the custodian
// and marks custody as out. Order submission stays open while drained.
func (f *Fund) Drain(caller address.Address) (model.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard.RequireOwner(caller); err != nil {
		return model.JournalEntry{}, err
	}

	bal := f.token.BalanceOf(f.account)
	if bal.IsPositive() {
		if err := f.token.Transfer(f.account, f.custodian, bal); err != nil {
			return model.JournalEntry{}, fmt.Errorf("%w: drain: %w", ErrInsufficientBalance, err)
		}
	}
	f.cashCustodyOut = true

	slog.Info("cash drained to custodian",
		"epoch", f.epoch,
		"custodian", f.custodian.Short(),
		"amount", bal.String(),
	)
	return f.entry(model.OpDrain, f.custodian, bal, decimal.Zero), nil
}

// Refill pulls amount back from the custodian and marks custody as in.
// Investment gains or losses surface only through the next Update.
func (f *Fund) Refill(caller address.Address, amount decimal.Decimal) (model.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard.RequireOwner(caller); err != nil {
		return model.JournalEntry{}, err
	}
	if err := checkPositive(amount); err != nil {
		return model.JournalEntry{}, fmt.Errorf("%w: refill %s: %v", ErrInvalidAmount, amount, err)
	}

	if err := f.token.TransferFrom(f.account, f.custodian, f.account, amount); err != nil {
		return model.JournalEntry{}, fmt.Errorf("%w: refill: %w", ErrInsufficientBalance, err)
	}
	f.cashCustodyOut = false

	slog.Info("cash refilled from custodian",
		"epoch", f.epoch,
		"custodian", f.custodian.Short(),
		"amount", amount.String(),
		"fund_cash", f.token.BalanceOf(f.account).String(),
	)
	return f.entry(model.OpRefill, f.custodian, amount, decimal.Zero), nil
}
