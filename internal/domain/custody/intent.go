package custody

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/shared"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
)

// TransferIntent describes a delegated pull of an asset from its owner into
// the custodian.
type TransferIntent struct {
	Asset     AssetHandle
	Owner     valueobject.Address
	Custodian valueobject.Address
	Amount    decimal.Decimal
}

// Grant derives the re-delegation that forwards exactly the pulled amount to grantee
func (t TransferIntent) Grant(grantee valueobject.Address) AllowanceGrant {
	return AllowanceGrant{
		Asset:   t.Asset,
		Grantor: t.Custodian,
		Grantee: grantee,
		Amount:  t.Amount,
	}
}

// AllowanceGrant is the spending right the custodian hands to the vault
type AllowanceGrant struct {
	Asset   AssetHandle
	Grantor valueobject.Address
	Grantee valueobject.Address
	Amount  decimal.Decimal
}

// InstructionKind is the kind of vault hand-off
type InstructionKind string

const (
	InstructionInvest InstructionKind = "invest"
	InstructionRedeem InstructionKind = "redeem"
)

// VaultInstruction is built once custody is secured and issued exactly once
type VaultInstruction struct {
	Kind        InstructionKind
	Vault       VaultHandle
	Beneficiary valueobject.Address
	Quantity    decimal.Decimal

	// Invest only
	MinShares decimal.Decimal

	// Redeem only. Always empty in the redemption flow.
	AdditionalAssets []valueobject.Address
	AssetsToSkip     []valueobject.Address

	issued bool
}

// instructionResult carries whatever the vault returned
type instructionResult struct {
	shares         decimal.Decimal
	releasedAssets []valueobject.Address
	releasedAmount []decimal.Decimal
}

// issue hands the instruction to the vault. A second call is rejected.
func (i *VaultInstruction) issue(ctx context.Context, custodian valueobject.Address, vault Vault) (instructionResult, error) {
	if i.issued {
		return instructionResult{}, fmt.Errorf("%w: vault instruction already issued", shared.ErrInvalidState)
	}
	i.issued = true

	switch i.Kind {
	case InstructionInvest:
		shares, err := vault.BuySharesOnBehalf(ctx, custodian, i.Beneficiary, i.Quantity, i.MinShares)
		if err != nil {
			return instructionResult{}, err
		}
		return instructionResult{shares: shares}, nil
	case InstructionRedeem:
		assets, amounts, err := vault.RedeemSharesInKind(ctx, custodian, i.Beneficiary, i.Quantity, i.AdditionalAssets, i.AssetsToSkip)
		if err != nil {
			return instructionResult{}, err
		}
		return instructionResult{releasedAssets: assets, releasedAmount: amounts}, nil
	default:
		return instructionResult{}, fmt.Errorf("%w: unknown instruction kind %q", shared.ErrInvalidState, i.Kind)
	}
}

// Issued reports whether the instruction has been handed to the vault
func (i *VaultInstruction) Issued() bool {
	return i.issued
}
