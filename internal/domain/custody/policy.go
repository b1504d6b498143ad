package custody

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/shared"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
)

// DefaultMinShares is the slippage floor used when neither the caller nor the
// owner configured one. A floor of 1 accepts any non-zero issuance.
var DefaultMinShares = decimal.NewFromInt(1)

// ValidateMinShares rejects a slippage floor that is not positive. A caller
// that names a floor explicitly must name a real one; only an omitted floor
// falls back to the policy default.
func ValidateMinShares(v decimal.Decimal) error {
	if !v.IsPositive() {
		return invalidArgument("min_shares", "must be positive")
	}
	return nil
}

// Policy holds the owner-controlled settings of the custodian
type Policy struct {
	mu               sync.RWMutex
	owner            valueobject.Address
	defaultMinShares decimal.Decimal
}

// NewPolicy creates a policy owned by owner. A non-positive minShares falls
// back to DefaultMinShares.
func NewPolicy(owner valueobject.Address, minShares decimal.Decimal) *Policy {
	if !minShares.IsPositive() {
		minShares = DefaultMinShares
	}
	return &Policy{owner: owner, defaultMinShares: minShares}
}

// Owner returns the administrative owner
func (p *Policy) Owner() valueobject.Address {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.owner
}

// Authorize fails unless caller is the owner
func (p *Policy) Authorize(caller valueobject.Address) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.owner.IsZero() || !caller.Equals(p.owner) {
		return fmt.Errorf("%w: %s is not the custodian owner", shared.ErrUnauthorized, caller)
	}
	return nil
}

// DefaultMinShares returns the floor applied when an investment names none
func (p *Policy) DefaultMinShares() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultMinShares
}

// SetDefaultMinShares changes the default floor. Only the owner may call it.
func (p *Policy) SetDefaultMinShares(caller valueobject.Address, v decimal.Decimal) error {
	if err := p.Authorize(caller); err != nil {
		return err
	}
	if err := ValidateMinShares(v); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.defaultMinShares = v
	return nil
}

// TransferOwnership hands administrative control to next
func (p *Policy) TransferOwnership(caller, next valueobject.Address) error {
	if err := p.Authorize(caller); err != nil {
		return err
	}
	if next.IsZero() {
		return invalidArgument("owner", "must not be the null address")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owner = next
	return nil
}
