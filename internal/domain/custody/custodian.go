package custody

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
)

// InvestRequest asks the custodian to deposit Amount of Asset into Vault on
// behalf of Caller.
type InvestRequest struct {
	Caller valueobject.Address
	Vault  VaultHandle
	Asset  AssetHandle
	Amount decimal.Decimal
	// MinShares is the slippage floor passed to the vault. Zero selects the
	// policy default.
	MinShares decimal.Decimal
}

// InvestmentReceipt describes a completed deposit
type InvestmentReceipt struct {
	OperationID  uuid.UUID
	Caller       valueobject.Address
	Vault        VaultHandle
	Asset        AssetHandle
	Amount       decimal.Decimal
	MinShares    decimal.Decimal
	SharesIssued decimal.Decimal
}

// RedeemRequest asks the custodian to redeem ShareQuantity shares of Vault in
// kind on behalf of Caller.
type RedeemRequest struct {
	Caller        valueobject.Address
	Vault         VaultHandle
	ShareAsset    AssetHandle
	ShareQuantity decimal.Decimal
}

// ReleasedAsset is one (asset, amount) pair released by a redemption
type ReleasedAsset struct {
	Asset  valueobject.Address `json:"asset"`
	Amount decimal.Decimal     `json:"amount"`
}

// RedemptionReceipt describes a completed redemption. Assets and Amounts are
// exactly what the vault returned; they are neither validated nor aggregated.
type RedemptionReceipt struct {
	OperationID   uuid.UUID
	Caller        valueobject.Address
	Vault         VaultHandle
	ShareAsset    AssetHandle
	ShareQuantity decimal.Decimal
	Assets        []valueobject.Address
	Amounts       []decimal.Decimal
}

// Released pairs the returned assets with their amounts. Unpaired trailing
// entries are dropped.
func (r *RedemptionReceipt) Released() []ReleasedAsset {
	n := min(len(r.Assets), len(r.Amounts))
	out := make([]ReleasedAsset, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, ReleasedAsset{Asset: r.Assets[i], Amount: r.Amounts[i]})
	}
	return out
}

// Custodian runs the delegated-custody protocol. It holds an asset only between
// the pull from the caller and the vault consuming the re-delegated allowance.
type Custodian struct {
	self     valueobject.Address
	resolver Resolver
	env      AtomicExecutor
	policy   *Policy
	guard    ReentrancyGuard
	// flows serializes unrelated callers. Nested calls never reach it.
	flows sync.Mutex
}

// NewCustodian creates a custodian acting from address self
func NewCustodian(self valueobject.Address, resolver Resolver, env AtomicExecutor, policy *Policy) (*Custodian, error) {
	if self.IsZero() {
		return nil, invalidArgument("custodian", "must not be the null address")
	}
	if resolver == nil {
		return nil, errors.New("custody: resolver is required")
	}
	if env == nil {
		return nil, errors.New("custody: atomic executor is required")
	}
	if policy == nil {
		policy = NewPolicy(valueobject.ZeroAddress, DefaultMinShares)
	}
	return &Custodian{
		self:     self,
		resolver: resolver,
		env:      env,
		policy:   policy,
	}, nil
}

// Address returns the custodian's own account
func (c *Custodian) Address() valueobject.Address {
	return c.self
}

// Policy returns the owner-controlled settings
func (c *Custodian) Policy() *Policy {
	return c.policy
}

// Invest runs the deposit flow. Any failure leaves balances untouched.
func (c *Custodian) Invest(ctx context.Context, req InvestRequest) (*InvestmentReceipt, error) {
	var receipt *InvestmentReceipt
	err := c.guarded(ctx, func(ctx context.Context) error {
		r, err := c.invest(ctx, req)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// RedeemInKind runs the redemption flow. Any failure leaves balances untouched.
func (c *Custodian) RedeemInKind(ctx context.Context, req RedeemRequest) (*RedemptionReceipt, error) {
	var receipt *RedemptionReceipt
	err := c.guarded(ctx, func(ctx context.Context) error {
		r, err := c.redeemInKind(ctx, req)
		if err != nil {
			return err
		}
		receipt = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

// guarded runs fn inside the atomic boundary while holding the reentrancy
// guard. A call made from inside any running flow fails with
// ErrReentrantCall before it can block on the flow lock or the execution
// environment.
func (c *Custodian) guarded(ctx context.Context, fn func(ctx context.Context) error) error {
	if insideFlow() {
		return ErrReentrantCall
	}
	c.flows.Lock()
	defer c.flows.Unlock()

	return c.env.Atomically(ctx, func(ctx context.Context) error {
		release, err := c.guard.Enter()
		defer release()
		if err != nil {
			return err
		}
		return c.runFlow(ctx, fn)
	})
}

//go:noinline
func (c *Custodian) runFlow(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (c *Custodian) invest(ctx context.Context, req InvestRequest) (*InvestmentReceipt, error) {
	if !req.Amount.IsPositive() {
		return nil, invalidArgument("amount", "must be greater than zero")
	}
	if !req.Vault.IsValid() {
		return nil, invalidArgument("vault", "must not be the null address")
	}
	if !req.Asset.IsValid() {
		return nil, invalidArgument("asset", "must not be the null address")
	}
	if req.Caller.IsZero() {
		return nil, invalidArgument("caller", "must not be the null address")
	}

	minShares := req.MinShares
	switch {
	case minShares.IsZero():
		minShares = c.policy.DefaultMinShares()
	case minShares.IsNegative():
		return nil, invalidArgument("min_shares", "must not be negative")
	}

	vault, err := c.resolver.Vault(ctx, req.Vault)
	if err != nil {
		return nil, invalidArgument("vault", err.Error())
	}
	asset, err := c.resolver.Asset(ctx, req.Asset)
	if err != nil {
		return nil, invalidArgument("asset", err.Error())
	}

	intent := TransferIntent{
		Asset:     req.Asset,
		Owner:     req.Caller,
		Custodian: c.self,
		Amount:    req.Amount,
	}
	instruction := &VaultInstruction{
		Kind:        InstructionInvest,
		Vault:       req.Vault,
		Beneficiary: req.Caller,
		Quantity:    req.Amount,
		MinShares:   minShares,
	}

	result, err := c.execute(ctx, asset, vault, intent, instruction)
	if err != nil {
		return nil, err
	}

	return &InvestmentReceipt{
		OperationID:  uuid.New(),
		Caller:       req.Caller,
		Vault:        req.Vault,
		Asset:        req.Asset,
		Amount:       req.Amount,
		MinShares:    minShares,
		SharesIssued: result.shares,
	}, nil
}

// redeemInKind deliberately has no quantity > 0 check, unlike invest. Only
// negative quantities are rejected since they have no ledger meaning.
func (c *Custodian) redeemInKind(ctx context.Context, req RedeemRequest) (*RedemptionReceipt, error) {
	if req.ShareQuantity.IsNegative() {
		return nil, invalidArgument("share_quantity", "must not be negative")
	}
	if req.Caller.IsZero() {
		return nil, invalidArgument("caller", "must not be the null address")
	}

	vault, err := c.resolver.Vault(ctx, req.Vault)
	if err != nil {
		return nil, invalidArgument("vault", err.Error())
	}
	shares, err := c.resolver.Asset(ctx, req.ShareAsset)
	if err != nil {
		return nil, invalidArgument("share_asset", err.Error())
	}

	intent := TransferIntent{
		Asset:     req.ShareAsset,
		Owner:     req.Caller,
		Custodian: c.self,
		Amount:    req.ShareQuantity,
	}
	instruction := &VaultInstruction{
		Kind:             InstructionRedeem,
		Vault:            req.Vault,
		Beneficiary:      req.Caller,
		Quantity:         req.ShareQuantity,
		AdditionalAssets: []valueobject.Address{},
		AssetsToSkip:     []valueobject.Address{},
	}

	result, err := c.execute(ctx, shares, vault, intent, instruction)
	if err != nil {
		return nil, err
	}

	return &RedemptionReceipt{
		OperationID:   uuid.New(),
		Caller:        req.Caller,
		Vault:         req.Vault,
		ShareAsset:    req.ShareAsset,
		ShareQuantity: req.ShareQuantity,
		Assets:        append([]valueobject.Address(nil), result.releasedAssets...),
		Amounts:       append([]decimal.Decimal(nil), result.releasedAmount...),
	}, nil
}

// execute is the shared pull, re-delegate and hand-off sequence
func (c *Custodian) execute(ctx context.Context, asset FungibleAsset, vault Vault, intent TransferIntent, instruction *VaultInstruction) (instructionResult, error) {
	allowance, err := asset.Allowance(ctx, intent.Owner, intent.Custodian)
	if err != nil {
		return instructionResult{}, fmt.Errorf("read allowance on %s: %w", intent.Asset, err)
	}
	if allowance.LessThan(intent.Amount) {
		return instructionResult{}, &InsufficientAllowanceError{
			Asset:    intent.Asset,
			Owner:    intent.Owner,
			Spender:  intent.Custodian,
			Observed: allowance,
			Required: intent.Amount,
		}
	}

	reader, tracked := asset.(BalanceReader)
	var held decimal.Decimal
	if tracked {
		if held, err = reader.BalanceOf(ctx, c.self); err != nil {
			return instructionResult{}, fmt.Errorf("read custodian balance: %w", err)
		}
	}

	ok, err := asset.TransferFrom(ctx, c.self, intent.Owner, intent.Custodian, intent.Amount)
	if err != nil || !ok {
		return instructionResult{}, stepFailed(ErrTransferFailed, "transferFrom", err)
	}

	if tracked {
		if err := c.checkCustody(ctx, reader, func(bal decimal.Decimal) bool {
			return bal.GreaterThanOrEqual(held.Add(intent.Amount))
		}, "after pull"); err != nil {
			return instructionResult{}, err
		}
	}

	grant := intent.Grant(instruction.Vault.Address())
	ok, err = asset.Approve(ctx, grant.Grantor, grant.Grantee, grant.Amount)
	if err != nil || !ok {
		return instructionResult{}, stepFailed(ErrApprovalFailed, "approve", err)
	}

	result, err := instruction.issue(ctx, c.self, vault)
	if err != nil {
		return instructionResult{}, stepFailed(ErrVaultCallFailed, string(instruction.Kind), err)
	}

	if tracked {
		if err := c.checkCustody(ctx, reader, func(bal decimal.Decimal) bool {
			return bal.Equal(held)
		}, "after hand-off"); err != nil {
			return instructionResult{}, err
		}
	}

	return result, nil
}

func (c *Custodian) checkCustody(ctx context.Context, reader BalanceReader, ok func(decimal.Decimal) bool, stage string) error {
	bal, err := reader.BalanceOf(ctx, c.self)
	if err != nil {
		return fmt.Errorf("read custodian balance: %w", err)
	}
	if !ok(bal) {
		return fmt.Errorf("%w: custodian holds %s %s", ErrCustodyInvariant, bal.String(), stage)
	}
	return nil
}
