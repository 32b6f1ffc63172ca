// Package access implements the fund's capability checks: a single owner
// who runs privileged operations and a grow-only whitelist of investors
// allowed to queue deposits and redemptions.
package access

import (
	"errors"
	"fmt"
	"sort"

	"github.com/offchain/fund-engine/internal/address"
)

// ErrUnauthorized is returned when a caller lacks the required capability.
var ErrUnauthorized = errors.New("access: unauthorized")

// Role names the capability an operation requires.
type Role string

const (
	RoleOwner       Role = "owner"
	RoleWhitelisted Role = "whitelisted"
)

// Denial is the typed authorization result of a failed check.
// It matches ErrUnauthorized under errors.Is.
type Denial struct {
	Caller address.Address
	Role   Role
}

func (d *Denial) Error() string {
	return fmt.Sprintf("%s: %s is not %s", ErrUnauthorized, d.Caller, d.Role)
}

func (d *Denial) Is(target error) bool { return target == ErrUnauthorized }

// Guard holds the owner and whitelist. It is not safe for concurrent use;
// the fund serializes access to it.
type Guard struct {
	owner     address.Address
	whitelist map[address.Address]struct{}
}

// NewGuard creates a guard for the given owner with an empty whitelist.
func NewGuard(owner address.Address) *Guard {
	return &Guard{
		owner:     owner,
		whitelist: make(map[address.Address]struct{}),
	}
}

// Owner returns the owner address.
func (g *Guard) Owner() address.Address { return g.owner }

func (g *Guard) IsOwner(caller address.Address) bool {
	return caller != "" && caller == g.owner
}

func (g *Guard) IsWhitelisted(caller address.Address) bool {
	_, ok := g.whitelist[caller]
	return ok
}

// RequireOwner returns a *Denial unless caller is the owner.
func (g *Guard) RequireOwner(caller address.Address) error {
	if !g.IsOwner(caller) {
		return &Denial{Caller: caller, Role: RoleOwner}
	}
	return nil
}

// RequireWhitelisted returns a *Denial unless caller is whitelisted.
func (g *Guard) RequireWhitelisted(caller address.Address) error {
	if !g.IsWhitelisted(caller) {
		return &Denial{Caller: caller, Role: RoleWhitelisted}
	}
	return nil
}

// AddToWhitelist adds addr and reports whether it was newly added.
// Re-adding an existing member is a no-op.
func (g *Guard) AddToWhitelist(addr address.Address) bool {
	if g.IsWhitelisted(addr) {
		return false
	}
	g.whitelist[addr] = struct{}{}
	return true
}

// Whitelist returns all members in lexical order.
func (g *Guard) Whitelist() []address.Address {
	out := make([]address.Address, 0, len(g.whitelist))
	for a := range g.whitelist {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
