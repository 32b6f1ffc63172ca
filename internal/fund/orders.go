package fund

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/offchain/fund-engine/internal/address"
	"github.com/offchain/fund-engine/internal/model"
)

// Deposit queues amount of the underlying asset for caller and escrows it
// into the fund account. No shares are minted until BatchProcessDeposit.
func (f *Fund) Deposit(caller address.Address, amount decimal.Decimal) (model.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard.RequireWhitelisted(caller); err != nil {
		return model.JournalEntry{}, err
	}
	if err := checkPositive(amount); err != nil {
		return model.JournalEntry{}, fmt.Errorf("%w: deposit %s: %v", ErrInvalidAmount, amount, err)
	}

	if err := f.token.TransferFrom(f.account, caller, f.account, amount); err != nil {
		return model.JournalEntry{}, fmt.Errorf("%w: escrow deposit: %w", ErrInsufficientBalance, err)
	}

	o := f.pending[caller]
	o.DepositAmount = o.DepositAmount.Add(amount)
	f.setOrder(caller, o)

	slog.Info("deposit queued",
		"epoch", f.epoch,
		"caller", caller.Short(),
		"amount", amount.String(),
		"pending", o.DepositAmount.String(),
	)
	return f.entry(model.OpDeposit, caller, amount, decimal.Zero), nil
}

// Redeem queues shares for burn at the next redemption settlement. The
// shares leave caller's liquid balance immediately.
func (f *Fund) Redeem(caller address.Address, shares decimal.Decimal) (model.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard.RequireWhitelisted(caller); err != nil {
		return model.JournalEntry{}, err
	}
	if err := checkPositive(shares); err != nil {
		return model.JournalEntry{}, fmt.Errorf("%w: redeem %s: %v", ErrInvalidAmount, shares, err)
	}

	liquid := f.balances[caller]
	if liquid.LessThan(shares) {
		return model.JournalEntry{}, fmt.Errorf("%w: %s holds %s shares, redeem %s",
			ErrInsufficientBalance, caller, liquid, shares)
	}

	f.balances[caller] = liquid.Sub(shares)
	f.locked[caller] = f.locked[caller].Add(shares)

	o := f.pending[caller]
	o.RedeemShares = o.RedeemShares.Add(shares)
	f.setOrder(caller, o)

	slog.Info("redeem queued",
		"epoch", f.epoch,
		"caller", caller.Short(),
		"shares", shares.String(),
		"pending", o.RedeemShares.String(),
	)
	return f.entry(model.OpRedeem, caller, decimal.Zero, shares), nil
}
