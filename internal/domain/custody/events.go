package custody

import (
	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/shared"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
)

// AggregateTypeOperation is the aggregate type of custody events
const AggregateTypeOperation = "CustodyOperation"

// Event type names
const (
	EventTypeInvestmentCompleted = "custody.investment.completed"
	EventTypeRedemptionCompleted = "custody.redemption.completed"
)

// InvestmentCompletedEvent is raised after a deposit flow commits
type InvestmentCompletedEvent struct {
	shared.BaseDomainEvent
	Caller       valueobject.Address `json:"caller"`
	Vault        valueobject.Address `json:"vault"`
	Asset        valueobject.Address `json:"asset"`
	Amount       decimal.Decimal     `json:"amount"`
	MinShares    decimal.Decimal     `json:"min_shares"`
	SharesIssued decimal.Decimal     `json:"shares_issued"`
}

// NewInvestmentCompletedEvent creates an event from a receipt
func NewInvestmentCompletedEvent(r *InvestmentReceipt) *InvestmentCompletedEvent {
	return &InvestmentCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvestmentCompleted, AggregateTypeOperation, r.OperationID),
		Caller:          r.Caller,
		Vault:           r.Vault.Address(),
		Asset:           r.Asset.Address(),
		Amount:          r.Amount,
		MinShares:       r.MinShares,
		SharesIssued:    r.SharesIssued,
	}
}

// RedemptionCompletedEvent is raised after a redemption flow commits. Released
// lists what the vault reported handing to the caller.
type RedemptionCompletedEvent struct {
	shared.BaseDomainEvent
	Caller        valueobject.Address `json:"caller"`
	Vault         valueobject.Address `json:"vault"`
	ShareAsset    valueobject.Address `json:"share_asset"`
	ShareQuantity decimal.Decimal     `json:"share_quantity"`
	Released      []ReleasedAsset     `json:"released"`
}

// NewRedemptionCompletedEvent creates an event from a receipt
func NewRedemptionCompletedEvent(r *RedemptionReceipt) *RedemptionCompletedEvent {
	return &RedemptionCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeRedemptionCompleted, AggregateTypeOperation, r.OperationID),
		Caller:          r.Caller,
		Vault:           r.Vault.Address(),
		ShareAsset:      r.ShareAsset.Address(),
		ShareQuantity:   r.ShareQuantity,
		Released:        r.Released(),
	}
}
