package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/custody"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// TokenOption configures a token at deployment
type TokenOption func(*Token)

// WithSoftFailures makes TransferFrom and Approve report failure by returning
// false instead of an error, like pre-standard tokens that never revert.
func WithSoftFailures() TokenOption {
	return func(t *Token) {
		t.softFailures = true
	}
}

// Token is an ERC20-equivalent fungible asset living on the ledger
type Token struct {
	ledger       *Ledger
	addr         valueobject.Address
	symbol       string
	decimals     int32
	softFailures bool
}

// DeployToken registers a new token at addr
func (l *Ledger) DeployToken(addr valueobject.Address, symbol string, decimals int32, opts ...TokenOption) (*Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.reserve(addr); err != nil {
		return nil, err
	}
	if decimals < 0 || decimals > 36 {
		return nil, fmt.Errorf("ledger: decimals out of range: %d", decimals)
	}

	t := &Token{ledger: l, addr: addr, symbol: symbol, decimals: decimals}
	for _, opt := range opts {
		opt(t)
	}
	l.tokens[addr] = t

	l.logger.Info("token deployed",
		zap.String("address", addr.String()),
		zap.String("symbol", symbol),
		zap.Int32("decimals", decimals),
	)
	return t, nil
}

// Address returns the token contract address
func (t *Token) Address() valueobject.Address { return t.addr }

// Symbol returns the ticker
func (t *Token) Symbol() string { return t.symbol }

// Decimals returns the number of fractional digits the token supports
func (t *Token) Decimals() int32 { return t.decimals }

// Handle returns the custody handle for this token
func (t *Token) Handle() custody.AssetHandle { return custody.NewAssetHandle(t.addr) }

// BalanceOf returns the balance of holder
func (t *Token) BalanceOf(ctx context.Context, holder valueobject.Address) (decimal.Decimal, error) {
	var bal decimal.Decimal
	t.ledger.read(ctx, func(s *state) {
		bal = s.balance(t.addr, holder)
	})
	return bal, nil
}

// TotalSupply returns the amount in circulation
func (t *Token) TotalSupply(ctx context.Context) decimal.Decimal {
	var supply decimal.Decimal
	t.ledger.read(ctx, func(s *state) {
		supply = s.supply[t.addr]
	})
	return supply
}

// Allowance implements custody.FungibleAsset
func (t *Token) Allowance(ctx context.Context, owner, spender valueobject.Address) (decimal.Decimal, error) {
	var v decimal.Decimal
	t.ledger.read(ctx, func(s *state) {
		v = s.allowance(t.addr, owner, spender)
	})
	return v, nil
}

// Approve implements custody.FungibleAsset. The allowance is overwritten, not added to.
func (t *Token) Approve(ctx context.Context, owner, spender valueobject.Address, amount decimal.Decimal) (bool, error) {
	err := t.ledger.exec(ctx, func(s *state) error {
		if owner.IsZero() || spender.IsZero() {
			return ErrNullAddress
		}
		if amount.IsNegative() {
			return ErrNegativeAmount
		}
		s.setAllowance(t.addr, owner, spender, amount)
		return nil
	})
	return t.result(err)
}

// TransferFrom implements custody.FungibleAsset
func (t *Token) TransferFrom(ctx context.Context, spender, owner, to valueobject.Address, amount decimal.Decimal) (bool, error) {
	err := t.ledger.exec(ctx, func(s *state) error {
		allowed := s.allowance(t.addr, owner, spender)
		if allowed.LessThan(amount) {
			return fmt.Errorf("%w: %s allowed %s, requested %s", ErrInsufficientAllowance, spender.Short(), allowed, amount)
		}
		if err := t.move(s, owner, to, amount); err != nil {
			return err
		}
		s.setAllowance(t.addr, owner, spender, allowed.Sub(amount))
		return nil
	})
	return t.result(err)
}

// Transfer moves amount from the sender's own balance
func (t *Token) Transfer(ctx context.Context, from, to valueobject.Address, amount decimal.Decimal) (bool, error) {
	err := t.ledger.exec(ctx, func(s *state) error {
		return t.move(s, from, to, amount)
	})
	return t.result(err)
}

// Mint creates amount new tokens for to
func (t *Token) Mint(ctx context.Context, to valueobject.Address, amount decimal.Decimal) error {
	return t.ledger.exec(ctx, func(s *state) error {
		if to.IsZero() {
			return ErrNullAddress
		}
		if amount.IsNegative() {
			return ErrNegativeAmount
		}
		s.setBalance(t.addr, to, s.balance(t.addr, to).Add(amount))
		s.supply[t.addr] = s.supply[t.addr].Add(amount)
		return nil
	})
}

// Burn destroys amount tokens held by from
func (t *Token) Burn(ctx context.Context, from valueobject.Address, amount decimal.Decimal) error {
	return t.ledger.exec(ctx, func(s *state) error {
		if amount.IsNegative() {
			return ErrNegativeAmount
		}
		bal := s.balance(t.addr, from)
		if bal.LessThan(amount) {
			return fmt.Errorf("%w: %s holds %s, burning %s", ErrInsufficientBalance, from.Short(), bal, amount)
		}
		s.setBalance(t.addr, from, bal.Sub(amount))
		s.supply[t.addr] = s.supply[t.addr].Sub(amount)
		return nil
	})
}

func (t *Token) move(s *state, from, to valueobject.Address, amount decimal.Decimal) error {
	if from.IsZero() || to.IsZero() {
		return ErrNullAddress
	}
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	bal := s.balance(t.addr, from)
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: %s holds %s, moving %s", ErrInsufficientBalance, from.Short(), bal, amount)
	}
	s.setBalance(t.addr, from, bal.Sub(amount))
	s.setBalance(t.addr, to, s.balance(t.addr, to).Add(amount))
	return nil
}

func (t *Token) result(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if t.softFailures {
		t.ledger.logger.Debug("token call failed softly",
			zap.String("token", t.symbol),
			zap.Error(err),
		)
		return false, nil
	}
	return false, err
}

var (
	_ custody.FungibleAsset = (*Token)(nil)
	_ custody.BalanceReader = (*Token)(nil)
)
