package fund

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/offchain/fund-engine/internal/address"
	"github.com/offchain/fund-engine/internal/fixedpoint"
	"github.com/offchain/fund-engine/internal/model"
)

// Update reports a new valuation. It sets the settlement price, clears
// the since-last-valuation mint and redemption counters and opens the next
// epoch. Shares and pending orders are untouched.
func (f *Fund) Update(caller address.Address, price decimal.Decimal) (model.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard.RequireOwner(caller); err != nil {
		return model.JournalEntry{}, err
	}
	if err := checkPositive(price); err != nil {
		return model.JournalEntry{}, fmt.Errorf("%w: %s: %v", ErrInvalidPrice, price, err)
	}

	prev := f.currentPrice
	f.currentPrice = price
	f.tempMint = decimal.Zero
	f.currentRedemptions = decimal.Zero
	f.epoch++

	slog.Info("valuation updated",
		"epoch", f.epoch,
		"price", fixedpoint.FromBaseUnits(price, fixedpoint.PriceDecimals),
		"prev_price", fixedpoint.FromBaseUnits(prev, fixedpoint.PriceDecimals),
		"nav", fixedpoint.NAV(f.totalShares, price).String(),
	)
	return f.entry(model.OpUpdate, caller, decimal.Zero, f.totalShares), nil
}

// AdjustCap sets the maximum total shares. A cap below the current supply
// is allowed; it only blocks further minting.
func (f *Fund) AdjustCap(caller address.Address, newCap decimal.Decimal) (model.JournalEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard.RequireOwner(caller); err != nil {
		return model.JournalEntry{}, err
	}
	if err := fixedpoint.Validate(newCap); err != nil {
		return model.JournalEntry{}, fmt.Errorf("%w: cap %s: %v", ErrInvalidAmount, newCap, err)
	}

	f.cap = newCap
	slog.Info("cap adjusted", "epoch", f.epoch, "cap", newCap.String())
	return f.entry(model.OpAdjustCap, caller, decimal.Zero, newCap), nil
}

// AddToWhitelist grants addr the investor capability. Adding an existing
// member succeeds and reports added == false.
func (f *Fund) AddToWhitelist(caller, addr address.Address) (added bool, entry model.JournalEntry, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard.RequireOwner(caller); err != nil {
		return false, model.JournalEntry{}, err
	}
	if addr == "" {
		return false, model.JournalEntry{}, address.ErrInvalidAddress
	}

	added = f.guard.AddToWhitelist(addr)
	if added {
		slog.Info("address whitelisted", "address", addr.String())
	}
	return added, f.entry(model.OpWhitelist, addr, decimal.Zero, decimal.Zero), nil
}
