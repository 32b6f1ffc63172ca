package fixedpoint

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func u(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCashToShares(t *testing.T) {
	tests := []struct {
		name  string
		cash  string
		price string
		want  string
	}{
		{"par", "1000000000", "100000000", "1000000000000000000000"},
		{"premium floors", "1000000000", "105000000", "952380952380952380952"},
		{"discount", "500000", "50000000", "1000000000000000000"},
		{"dust", "1", "300000000", "333333333333"},
		{"zero cash", "0", "100000000", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CashToShares(u(tt.cash), u(tt.price), 6)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(u(tt.want)) {
				t.Errorf("CashToShares(%s @ %s) = %s, want %s", tt.cash, tt.price, got, tt.want)
			}
		})
	}
}

func TestSharesToCash(t *testing.T) {
	tests := []struct {
		name   string
		shares string
		price  string
		want   string
	}{
		{"par", "1000000000000000000000", "100000000", "1000000000"},
		{"gain", "100000000000000000000", "110000000", "110000000"},
		{"sub-unit floors to zero", "999999999999", "100000000", "0"},
		{"one base unit", "1000000000000", "100000000", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SharesToCash(u(tt.shares), u(tt.price), 6)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(u(tt.want)) {
				t.Errorf("SharesToCash(%s @ %s) = %s, want %s", tt.shares, tt.price, got, tt.want)
			}
		})
	}
}

func TestConversions_ZeroPrice(t *testing.T) {
	if _, err := CashToShares(u("1"), decimal.Zero, 6); !errors.Is(err, ErrZeroPrice) {
		t.Errorf("expected ErrZeroPrice, got %v", err)
	}
	if _, err := SharesToCash(u("1"), decimal.Zero, 6); !errors.Is(err, ErrZeroPrice) {
		t.Errorf("expected ErrZeroPrice, got %v", err)
	}
}

func TestConversions_AssetDecimalsBounds(t *testing.T) {
	if _, err := CashToShares(u("1"), u("100000000"), 19); !errors.Is(err, ErrAssetDecimals) {
		t.Errorf("expected ErrAssetDecimals for 19, got %v", err)
	}
	if _, err := SharesToCash(u("1"), u("100000000"), -1); !errors.Is(err, ErrAssetDecimals) {
		t.Errorf("expected ErrAssetDecimals for -1, got %v", err)
	}

	// An 18-decimal asset maps one-to-one at par.
	got, err := CashToShares(u("5"), u("100000000"), 18)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(u("5")) {
		t.Errorf("expected 5, got %s", got)
	}
}

func TestRoundTripNeverCreatesCash(t *testing.T) {
	prices := []string{"100000000", "105000000", "33333333", "123456789"}
	cash := u("1000000007")

	for _, p := range prices {
		shares, _ := CashToShares(cash, u(p), 6)
		back, _ := SharesToCash(shares, u(p), 6)
		if back.GreaterThan(cash) {
			t.Errorf("price %s: round trip returned %s > %s", p, back, cash)
		}
	}
}

func TestNAV(t *testing.T) {
	// 1000 shares at 1.05 → 1050 at 18 decimals.
	got := NAV(u("1000000000000000000000"), u("105000000"))
	if !got.Equal(u("1050000000000000000000")) {
		t.Errorf("NAV = %s", got)
	}
	if !NAV(decimal.Zero, u("105000000")).IsZero() {
		t.Error("NAV of no shares should be zero")
	}
}

func TestToBaseUnits(t *testing.T) {
	got, err := ToBaseUnits("1000.5", 6)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(u("1000500000")) {
		t.Errorf("got %s", got)
	}

	if _, err := ToBaseUnits("0.0000001", 6); !errors.Is(err, ErrFractional) {
		t.Errorf("expected ErrFractional, got %v", err)
	}
	if _, err := ToBaseUnits("-1", 6); !errors.Is(err, ErrNegative) {
		t.Errorf("expected ErrNegative, got %v", err)
	}
	if _, err := ToBaseUnits("abc", 6); err == nil {
		t.Error("expected parse error")
	}

	if s := FromBaseUnits(u("1050000000"), 6); s != "1050" {
		t.Errorf("FromBaseUnits = %s", s)
	}
}
