package custody

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/shared"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
)

// JournalEntry is the audit record of one completed flow. It is written after
// the flow commits and never takes part in custody decisions.
type JournalEntry struct {
	OperationID  uuid.UUID
	EventID      uuid.UUID
	Kind         InstructionKind
	Caller       valueobject.Address
	Vault        valueobject.Address
	Asset        valueobject.Address
	Quantity     decimal.Decimal
	MinShares    decimal.Decimal
	SharesIssued decimal.Decimal
	Released     []ReleasedAsset
	OccurredAt   time.Time
}

// JournalEntryFromEvent builds an entry from a completion event. It returns
// false for events that are not custody completions.
func JournalEntryFromEvent(event shared.DomainEvent) (*JournalEntry, bool) {
	switch e := event.(type) {
	case *InvestmentCompletedEvent:
		return &JournalEntry{
			OperationID:  e.AggregateID(),
			EventID:      e.EventID(),
			Kind:         InstructionInvest,
			Caller:       e.Caller,
			Vault:        e.Vault,
			Asset:        e.Asset,
			Quantity:     e.Amount,
			MinShares:    e.MinShares,
			SharesIssued: e.SharesIssued,
			OccurredAt:   e.OccurredAt(),
		}, true
	case *RedemptionCompletedEvent:
		return &JournalEntry{
			OperationID: e.AggregateID(),
			EventID:     e.EventID(),
			Kind:        InstructionRedeem,
			Caller:      e.Caller,
			Vault:       e.Vault,
			Asset:       e.ShareAsset,
			Quantity:    e.ShareQuantity,
			Released:    e.Released,
			OccurredAt:  e.OccurredAt(),
		}, true
	default:
		return nil, false
	}
}

// Journal stores completed flows
type Journal interface {
	Record(ctx context.Context, entry *JournalEntry) error
	FindByOperationID(ctx context.Context, id uuid.UUID) (*JournalEntry, error)
	ListByCaller(ctx context.Context, caller valueobject.Address, limit int) ([]JournalEntry, error)
}
