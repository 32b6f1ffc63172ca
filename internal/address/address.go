// Package address parses and validates the account identifiers used by
// investors, the owner, the custodian and the fund itself.
package address

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Address is a normalized (lower-case) 20-byte hex account identifier.
type Address string

// Zero is the all-zero address. It is never a valid caller.
const Zero Address = "0x0000000000000000000000000000000000000000"

// addressRegex matches: 0x{40 hex chars}
// Example: 0x70997970c51812dc3a010c7d01b50e0d17dc79c8
var addressRegex = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

var (
	ErrInvalidAddress = errors.New("address: invalid address format")
	ErrZeroAddress    = errors.New("address: zero address not allowed")
)

// Parse validates and normalizes an address string. Mixed-case input is
// accepted and folded to lower case.
func Parse(s string) (Address, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	if !addressRegex.MatchString(norm) {
		return "", fmt.Errorf("%w: %q (expected 0x followed by 40 hex characters)", ErrInvalidAddress, s)
	}
	if Address(norm) == Zero {
		return "", ErrZeroAddress
	}
	return Address(norm), nil
}

// MustParse is Parse for constants and tests; it panics on error.
func MustParse(s string) Address {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// ParseList parses every entry, failing on the first invalid one.
func ParseList(in []string) ([]Address, error) {
	out := make([]Address, 0, len(in))
	for i, s := range in {
		a, err := Parse(s)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func (a Address) String() string { return string(a) }

// Short renders 0x1234…abcd for log lines.
func (a Address) Short() string {
	if len(a) < 10 {
		return string(a)
	}
	return string(a[:6]) + "…" + string(a[len(a)-4:])
}
