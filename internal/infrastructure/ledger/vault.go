package ledger

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/custody"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
	"go.uber.org/zap"
)

// Vault errors
var (
	ErrSharesBelowMinimum = errors.New("vault: shares issued below minimum")
	ErrNothingToRedeem    = errors.New("vault: share quantity must be positive")
	ErrZeroInvestment     = errors.New("vault: investment amount must be positive")
)

// PooledVault is a simple pooled-investment vault. Shares are priced against
// the vault's holdings of its denomination asset; redemption in kind releases a
// pro-rata slice of every tracked holding.
type PooledVault struct {
	ledger       *Ledger
	addr         valueobject.Address
	denomination *Token
	shares       *Token
	holdings     []*Token
}

// DeployVault registers a vault at addr. The share token must already be
// deployed; the vault mints and burns it. Extra holdings are redeemed in kind
// alongside the denomination asset.
func (l *Ledger) DeployVault(addr, denomination, shareToken valueobject.Address, extraHoldings ...valueobject.Address) (*PooledVault, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.reserve(addr); err != nil {
		return nil, err
	}
	denom, ok := l.tokens[denomination]
	if !ok {
		return nil, fmt.Errorf("%w: denomination %s", ErrNotDeployed, denomination)
	}
	shares, ok := l.tokens[shareToken]
	if !ok {
		return nil, fmt.Errorf("%w: share token %s", ErrNotDeployed, shareToken)
	}

	v := &PooledVault{
		ledger:       l,
		addr:         addr,
		denomination: denom,
		shares:       shares,
		holdings:     []*Token{denom},
	}
	for _, h := range extraHoldings {
		t, ok := l.tokens[h]
		if !ok {
			return nil, fmt.Errorf("%w: holding %s", ErrNotDeployed, h)
		}
		if !slices.Contains(v.holdings, t) {
			v.holdings = append(v.holdings, t)
		}
	}
	l.vaults[addr] = v

	l.logger.Info("vault deployed",
		zap.String("address", addr.String()),
		zap.String("denomination", denom.Symbol()),
		zap.String("shares", shares.Symbol()),
		zap.Int("holdings", len(v.holdings)),
	)
	return v, nil
}

// Address returns the vault address
func (v *PooledVault) Address() valueobject.Address { return v.addr }

// Handle returns the custody handle for this vault
func (v *PooledVault) Handle() custody.VaultHandle { return custody.NewVaultHandle(v.addr) }

// ShareToken returns the vault's share token
func (v *PooledVault) ShareToken() *Token { return v.shares }

// Denomination returns the asset investments are made in
func (v *PooledVault) Denomination() *Token { return v.denomination }

// BuySharesOnBehalf implements custody.Vault. The investment is pulled from
// caller using the allowance caller granted the vault.
func (v *PooledVault) BuySharesOnBehalf(ctx context.Context, caller, investor valueobject.Address, investmentAmount, minSharesQuantity decimal.Decimal) (decimal.Decimal, error) {
	var issued decimal.Decimal
	err := v.ledger.Atomically(ctx, func(ctx context.Context) error {
		if !investmentAmount.IsPositive() {
			return ErrZeroInvestment
		}

		supply := v.shares.TotalSupply(ctx)
		gav, _ := v.denomination.BalanceOf(ctx, v.addr)

		if supply.IsZero() || gav.IsZero() {
			issued = investmentAmount
		} else {
			issued = investmentAmount.Mul(supply).Div(gav)
		}
		issued = issued.Truncate(v.shares.Decimals())

		if issued.LessThan(minSharesQuantity) {
			return fmt.Errorf("%w: %s < %s", ErrSharesBelowMinimum, issued, minSharesQuantity)
		}

		if _, err := v.denomination.TransferFrom(ctx, v.addr, caller, v.addr, investmentAmount); err != nil {
			return err
		}
		// soft-failing tokens return false with no error
		if bal, _ := v.denomination.BalanceOf(ctx, v.addr); !bal.Equal(gav.Add(investmentAmount)) {
			return fmt.Errorf("vault: investment not received")
		}
		return v.shares.Mint(ctx, investor, issued)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return issued, nil
}

// RedeemSharesInKind implements custody.Vault. Shares are pulled from caller
// using the allowance caller granted the vault, then burned.
func (v *PooledVault) RedeemSharesInKind(ctx context.Context, caller, recipient valueobject.Address, sharesQuantity decimal.Decimal, additionalAssets, assetsToSkip []valueobject.Address) ([]valueobject.Address, []decimal.Decimal, error) {
	var (
		assets  []valueobject.Address
		amounts []decimal.Decimal
	)
	err := v.ledger.Atomically(ctx, func(ctx context.Context) error {
		if !sharesQuantity.IsPositive() {
			return ErrNothingToRedeem
		}

		supply := v.shares.TotalSupply(ctx)
		if _, err := v.shares.TransferFrom(ctx, v.addr, caller, v.addr, sharesQuantity); err != nil {
			return err
		}
		if err := v.shares.Burn(ctx, v.addr, sharesQuantity); err != nil {
			return err
		}

		for _, holding := range v.payoutAssets(additionalAssets, assetsToSkip) {
			held, _ := holding.BalanceOf(ctx, v.addr)
			amount := held.Mul(sharesQuantity).Div(supply).Truncate(holding.Decimals())
			if amount.IsZero() {
				continue
			}
			if _, err := holding.Transfer(ctx, v.addr, recipient, amount); err != nil {
				return err
			}
			assets = append(assets, holding.Address())
			amounts = append(amounts, amount)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return assets, amounts, nil
}

func (v *PooledVault) payoutAssets(additional, skip []valueobject.Address) []*Token {
	out := make([]*Token, 0, len(v.holdings)+len(additional))
	for _, h := range v.holdings {
		if !slices.Contains(skip, h.Address()) {
			out = append(out, h)
		}
	}
	for _, a := range additional {
		t, ok := v.ledger.tokens[a]
		if !ok || slices.Contains(out, t) || slices.Contains(skip, a) {
			continue
		}
		out = append(out, t)
	}
	return out
}

var _ custody.Vault = (*PooledVault)(nil)
