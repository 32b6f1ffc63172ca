package fund

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/offchain/fund-engine/internal/address"
	"github.com/offchain/fund-engine/internal/fixedpoint"
	"github.com/offchain/fund-engine/internal/model"
)

// Outcome is the per-address result of a batch settlement.
type Outcome string

const (
	// OutcomeSettled means the address's pending order was converted.
	OutcomeSettled Outcome = "settled"

	// OutcomeSkipped means the address had nothing pending, including a
	// repeat of an address already settled earlier in the same batch.
	OutcomeSkipped Outcome = "skipped"
)

// ItemResult records what happened to one address in a batch.
type ItemResult struct {
	Address address.Address `json:"address"`
	Outcome Outcome         `json:"outcome"`
	Cash    decimal.Decimal `json:"cash"`   // asset units consumed or paid
	Shares  decimal.Decimal `json:"shares"` // shares minted or burned
}

// BatchResult summarizes a committed batch. A batch either commits every
// settled item or fails as a whole; there is no partial result.
type BatchResult struct {
	Epoch   uint64               `json:"epoch"`
	Price   decimal.Decimal      `json:"price"`
	Items   []ItemResult         `json:"items"`
	Shares  decimal.Decimal      `json:"shares"` // total minted or burned
	Cash    decimal.Decimal      `json:"cash"`   // total consumed or paid
	Entries []model.JournalEntry `json:"-"`
}

// Settled counts items with OutcomeSettled.
func (r BatchResult) Settled() int {
	n := 0
	for _, it := range r.Items {
		if it.Outcome == OutcomeSettled {
			n++
		}
	}
	return n
}

// planned is one priced order: in is the queued amount, out its conversion.
type planned struct {
	addr    address.Address
	outcome Outcome
	in, out decimal.Decimal
}

// plan walks addrs in order and prices every settleable order against
// amountOf. Repeated addresses are skipped after their first occurrence.
// It does not mutate state.
func (f *Fund) plan(addrs []address.Address, amountOf func(model.PendingOrder) decimal.Decimal,
	convert func(decimal.Decimal) (decimal.Decimal, error)) ([]planned, error) {

	seen := make(map[address.Address]bool, len(addrs))
	out := make([]planned, 0, len(addrs))
	for _, a := range addrs {
		amount := amountOf(f.pending[a])
		if seen[a] || !amount.IsPositive() {
			out = append(out, planned{addr: a, outcome: OutcomeSkipped, in: decimal.Zero, out: decimal.Zero})
			continue
		}
		seen[a] = true

		converted, err := convert(amount)
		if err != nil {
			return nil, fmt.Errorf("price order for %s: %w", a, err)
		}
		out = append(out, planned{addr: a, outcome: OutcomeSettled, in: amount, out: converted})
	}
	return out, nil
}

// BatchProcessDeposit mints shares for every listed address with a pending
// deposit at the current price. If the cumulative mint would exceed the
// cap the whole batch is rejected with ErrCapExceeded.
func (f *Fund) BatchProcessDeposit(caller address.Address, addrs []address.Address) (BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard.RequireOwner(caller); err != nil {
		return BatchResult{}, err
	}

	price := f.currentPrice
	orders, err := f.plan(addrs,
		func(o model.PendingOrder) decimal.Decimal { return o.DepositAmount },
		func(cash decimal.Decimal) (decimal.Decimal, error) {
			return fixedpoint.CashToShares(cash, price, f.decimals)
		})
	if err != nil {
		return BatchResult{}, err
	}

	items := make([]ItemResult, len(orders))
	res := BatchResult{Epoch: f.epoch, Price: price, Shares: decimal.Zero, Cash: decimal.Zero}
	for i, o := range orders {
		items[i] = ItemResult{Address: o.addr, Outcome: o.outcome, Cash: o.in, Shares: o.out}
		res.Shares = res.Shares.Add(o.out)
		res.Cash = res.Cash.Add(o.in)
	}
	res.Items = items

	if after := f.totalShares.Add(res.Shares); after.GreaterThan(f.cap) {
		return BatchResult{}, fmt.Errorf("%w: total %s + mint %s > cap %s",
			ErrCapExceeded, f.totalShares, res.Shares, f.cap)
	}

	// Commit.
	for _, it := range items {
		if it.Outcome != OutcomeSettled {
			continue
		}
		f.balances[it.Address] = f.balances[it.Address].Add(it.Shares)
		o := f.pending[it.Address]
		o.DepositAmount = decimal.Zero
		f.setOrder(it.Address, o)
		res.Entries = append(res.Entries, f.entry(model.OpMint, it.Address, it.Cash, it.Shares))
	}
	f.totalShares = f.totalShares.Add(res.Shares)
	f.tempMint = f.tempMint.Add(res.Shares)

	slog.Info("deposits settled",
		"epoch", f.epoch,
		"price", price.String(),
		"settled", res.Settled(),
		"submitted", len(addrs),
		"minted", res.Shares.String(),
		"total_shares", f.totalShares.String(),
	)
	return res, nil
}

// BatchProcessRedeem burns the pending redemptions of every listed address
// and pays out their cash value at the current price. If the fund account
// cannot cover the batch's total payout the whole batch is rejected with
// ErrInsufficientBalance.
func (f *Fund) BatchProcessRedeem(caller address.Address, addrs []address.Address) (BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.guard.RequireOwner(caller); err != nil {
		return BatchResult{}, err
	}

	price := f.currentPrice
	orders, err := f.plan(addrs,
		func(o model.PendingOrder) decimal.Decimal { return o.RedeemShares },
		func(shares decimal.Decimal) (decimal.Decimal, error) {
			return fixedpoint.SharesToCash(shares, price, f.decimals)
		})
	if err != nil {
		return BatchResult{}, err
	}

	items := make([]ItemResult, len(orders))
	res := BatchResult{Epoch: f.epoch, Price: price, Shares: decimal.Zero, Cash: decimal.Zero}
	for i, o := range orders {
		items[i] = ItemResult{Address: o.addr, Outcome: o.outcome, Cash: o.out, Shares: o.in}
		res.Shares = res.Shares.Add(o.in)
		res.Cash = res.Cash.Add(o.out)
	}
	res.Items = items

	available := f.token.BalanceOf(f.account)
	if available.LessThan(res.Cash) {
		return BatchResult{}, fmt.Errorf("%w: payout %s exceeds fund cash %s (custody out: %t)",
			ErrInsufficientBalance, res.Cash, available, f.cashCustodyOut)
	}

	// Pay out first; undo the transfers already made if one fails so the
	// batch stays all-or-nothing.
	var paid []ItemResult
	for _, it := range items {
		if it.Outcome != OutcomeSettled || it.Cash.IsZero() {
			continue
		}
		if err := f.token.Transfer(f.account, it.Address, it.Cash); err != nil {
			f.refund(paid)
			return BatchResult{}, fmt.Errorf("%w: pay %s: %w", ErrInsufficientBalance, it.Address, err)
		}
		paid = append(paid, it)
	}

	for _, it := range items {
		if it.Outcome != OutcomeSettled {
			continue
		}
		f.locked[it.Address] = f.locked[it.Address].Sub(it.Shares)
		if f.locked[it.Address].IsZero() {
			delete(f.locked, it.Address)
		}
		o := f.pending[it.Address]
		o.RedeemShares = decimal.Zero
		f.setOrder(it.Address, o)
		res.Entries = append(res.Entries, f.entry(model.OpBurn, it.Address, it.Cash, it.Shares))
	}
	f.totalShares = f.totalShares.Sub(res.Shares)
	f.currentRedemptions = f.currentRedemptions.Add(res.Shares)

	slog.Info("redemptions settled",
		"epoch", f.epoch,
		"price", price.String(),
		"settled", res.Settled(),
		"submitted", len(addrs),
		"burned", res.Shares.String(),
		"paid", res.Cash.String(),
		"total_shares", f.totalShares.String(),
	)
	return res, nil
}

// refund reverses payouts made earlier in a failed redemption batch.
func (f *Fund) refund(paid []ItemResult) {
	for _, it := range paid {
		if err := f.token.Transfer(it.Address, f.account, it.Cash); err != nil {
			slog.Error("redemption payout rollback failed",
				"address", it.Address.String(),
				"cash", it.Cash.String(),
				"err", err,
			)
		}
	}
}
