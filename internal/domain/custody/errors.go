package custody

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/shared"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
)

// Error codes for custody failures
const (
	CodeInvalidArgument       = "INVALID_ARGUMENT"
	CodeInsufficientAllowance = "INSUFFICIENT_ALLOWANCE"
	CodeTransferFailed        = "TRANSFER_FAILED"
	CodeApprovalFailed        = "APPROVAL_FAILED"
	CodeVaultCallFailed       = "VAULT_CALL_FAILED"
	CodeReentrantCall         = "REENTRANT_CALL"
	CodeCustodyInvariant      = "CUSTODY_INVARIANT"
)

// Sentinel errors. Every protocol failure returned by the Custodian matches
// exactly one of these with errors.Is. Failures reading collaborator state,
// such as an allowance or balance query, are returned wrapped and match none
// of them.
var (
	ErrInvalidArgument       = shared.NewDomainError(CodeInvalidArgument, "Invalid argument")
	ErrInsufficientAllowance = shared.NewDomainError(CodeInsufficientAllowance, "Insufficient allowance")
	ErrTransferFailed        = shared.NewDomainError(CodeTransferFailed, "Transfer failed")
	ErrApprovalFailed        = shared.NewDomainError(CodeApprovalFailed, "Approval failed")
	ErrVaultCallFailed       = shared.NewDomainError(CodeVaultCallFailed, "Vault call failed")
	ErrReentrantCall         = shared.NewDomainError(CodeReentrantCall, "Reentrant call")
	ErrCustodyInvariant      = shared.NewDomainError(CodeCustodyInvariant, "Custody balance invariant violated")
)

// InsufficientAllowanceError reports an allowance shortfall together with the
// allowance that was actually observed.
type InsufficientAllowanceError struct {
	Asset    AssetHandle
	Owner    valueobject.Address
	Spender  valueobject.Address
	Observed decimal.Decimal
	Required decimal.Decimal
}

func (e *InsufficientAllowanceError) Error() string {
	return fmt.Sprintf("insufficient allowance on %s: observed %s, required %s",
		e.Asset, e.Observed.String(), e.Required.String())
}

// Unwrap lets errors.Is(err, ErrInsufficientAllowance) and
// errors.As(err, **shared.DomainError) match.
func (e *InsufficientAllowanceError) Unwrap() error {
	return ErrInsufficientAllowance
}

func invalidArgument(field, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidArgument, field, reason)
}

func stepFailed(sentinel *shared.DomainError, step string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s reported failure", sentinel, step)
	}
	return fmt.Errorf("%w: %s: %w", sentinel, step, cause)
}
