package custody

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
)

// FungibleAsset is the ERC20-equivalent capability consumed by the custodian.
//
// TransferFrom and Approve report failure in two ways: a false result or a
// non-nil error. The custodian treats both as fatal.
type FungibleAsset interface {
	// Allowance returns how much spender may move on behalf of owner
	Allowance(ctx context.Context, owner, spender valueobject.Address) (decimal.Decimal, error)
	// TransferFrom moves amount from owner to to, executed by spender
	TransferFrom(ctx context.Context, spender, owner, to valueobject.Address, amount decimal.Decimal) (bool, error)
	// Approve sets the allowance of spender over the owner's balance
	Approve(ctx context.Context, owner, spender valueobject.Address, amount decimal.Decimal) (bool, error)
}

// BalanceReader is implemented by assets that expose holder balances.
// When present, the custodian uses it to verify its transient custody.
type BalanceReader interface {
	BalanceOf(ctx context.Context, holder valueobject.Address) (decimal.Decimal, error)
}

// Vault is the external pooled-investment component. Its share pricing and
// redemption internals are opaque to the custodian.
type Vault interface {
	// BuySharesOnBehalf pulls investmentAmount of the denomination asset from
	// caller and issues shares to investor.
	BuySharesOnBehalf(ctx context.Context, caller, investor valueobject.Address, investmentAmount, minSharesQuantity decimal.Decimal) (decimal.Decimal, error)
	// RedeemSharesInKind pulls sharesQuantity share tokens from caller and
	// releases the proportional underlying assets to recipient.
	RedeemSharesInKind(ctx context.Context, caller, recipient valueobject.Address, sharesQuantity decimal.Decimal, additionalAssets, assetsToSkip []valueobject.Address) ([]valueobject.Address, []decimal.Decimal, error)
}

// Resolver binds handles to live collaborators
type Resolver interface {
	Asset(ctx context.Context, handle AssetHandle) (FungibleAsset, error)
	Vault(ctx context.Context, handle VaultHandle) (Vault, error)
}

// AtomicExecutor is the execution environment's all-or-nothing call boundary.
// Every state change made by fn is discarded if fn returns an error or panics.
type AtomicExecutor interface {
	Atomically(ctx context.Context, fn func(ctx context.Context) error) error
}
