// Package fixedpoint converts between the three integer unit scales the
// fund settles in: underlying-asset cash (asset decimals, 6 for USDC),
// price per share (8 decimals) and shares/NAV (18 decimals).
//
// Every value is an integer count of base units carried in a
// shopspring/decimal, never float64. Division always floors.
package fixedpoint

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// PriceDecimals is the precision of CurrentPrice.
	PriceDecimals int32 = 8

	// ShareDecimals is the precision of share balances and supply.
	ShareDecimals int32 = 18

	// NAVDecimals is the precision NAV is reported in.
	NAVDecimals int32 = 18

	// MaxAssetDecimals bounds the underlying asset precision so cash can
	// always be scaled up to share precision without losing digits.
	MaxAssetDecimals int32 = ShareDecimals
)

var (
	// ErrNegative is returned when a base-unit amount is below zero.
	ErrNegative = errors.New("fixedpoint: amount must not be negative")

	// ErrFractional is returned when a base-unit amount has a fractional part.
	ErrFractional = errors.New("fixedpoint: amount must be an integer number of base units")

	// ErrZeroPrice is returned when converting at a price of zero.
	ErrZeroPrice = errors.New("fixedpoint: price must be positive")

	// ErrAssetDecimals is returned for an asset precision outside [0, MaxAssetDecimals].
	ErrAssetDecimals = errors.New("fixedpoint: unsupported asset decimals")
)

// Unit returns 10^decimals, i.e. one whole token in base units.
func Unit(decimals int32) decimal.Decimal {
	return decimal.New(1, decimals)
}

// Floor divides two integer amounts and discards the remainder.
func Floor(num, den decimal.Decimal) decimal.Decimal {
	q, _ := num.QuoRem(den, 0)
	return q
}

// CheckAssetDecimals validates an underlying asset precision.
func CheckAssetDecimals(assetDecimals int32) error {
	if assetDecimals < 0 || assetDecimals > MaxAssetDecimals {
		return fmt.Errorf("%w: %d", ErrAssetDecimals, assetDecimals)
	}
	return nil
}

// CashToShares converts cash (asset base units) to shares (18 decimals)
// at price (8 decimals):
//
//	shares = floor(cash * 10^(18-assetDecimals) * 10^8 / price)
func CashToShares(cash, price decimal.Decimal, assetDecimals int32) (decimal.Decimal, error) {
	if err := CheckAssetDecimals(assetDecimals); err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrZeroPrice
	}
	num := cash.Mul(Unit(ShareDecimals - assetDecimals)).Mul(Unit(PriceDecimals))
	return Floor(num, price), nil
}

// SharesToCash converts shares (18 decimals) to cash (asset base units)
// at price (8 decimals):
//
//	cash = floor(shares * price / (10^8 * 10^(18-assetDecimals)))
func SharesToCash(shares, price decimal.Decimal, assetDecimals int32) (decimal.Decimal, error) {
	if err := CheckAssetDecimals(assetDecimals); err != nil {
		return decimal.Zero, err
	}
	if !price.IsPositive() {
		return decimal.Zero, ErrZeroPrice
	}
	den := Unit(PriceDecimals).Mul(Unit(ShareDecimals - assetDecimals))
	return Floor(shares.Mul(price), den), nil
}

// NAV values totalShares at price, in NAVDecimals.
func NAV(totalShares, price decimal.Decimal) decimal.Decimal {
	// shares are already at NAV precision; strip the price scale.
	return Floor(totalShares.Mul(price).Mul(Unit(NAVDecimals-ShareDecimals)), Unit(PriceDecimals))
}

// Validate checks that d is a non-negative whole number of base units.
func Validate(d decimal.Decimal) error {
	if d.IsNegative() {
		return ErrNegative
	}
	if !d.Equal(d.Truncate(0)) {
		return ErrFractional
	}
	return nil
}

// ToBaseUnits parses a human amount such as "1000.5" into base units at
// the given precision. Digits beyond the precision are rejected.
func ToBaseUnits(s string, decimals int32) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fixedpoint: parse %q: %w", s, err)
	}
	units := v.Shift(decimals)
	if err := Validate(units); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s at %d decimals", err, s, decimals)
	}
	return units, nil
}

// FromBaseUnits renders base units as a human amount at the given precision.
func FromBaseUnits(units decimal.Decimal, decimals int32) string {
	return units.Shift(-decimals).String()
}
