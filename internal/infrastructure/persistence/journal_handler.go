package persistence

import (
	"context"

	"github.com/vaultbridge/backend/internal/domain/custody"
	"github.com/vaultbridge/backend/internal/domain/shared"
	"github.com/vaultbridge/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// JournalHandler writes completed custody flows to the journal
type JournalHandler struct {
	journal custody.Journal
}

// NewJournalHandler creates the handler
func NewJournalHandler(journal custody.Journal) *JournalHandler {
	return &JournalHandler{journal: journal}
}

// EventTypes implements shared.EventHandler
func (h *JournalHandler) EventTypes() []string {
	return []string{
		custody.EventTypeInvestmentCompleted,
		custody.EventTypeRedemptionCompleted,
	}
}

// Handle implements shared.EventHandler
func (h *JournalHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	entry, ok := custody.JournalEntryFromEvent(event)
	if !ok {
		return nil
	}
	if err := h.journal.Record(ctx, entry); err != nil {
		return err
	}
	logger.L(ctx).Debug("operation journaled",
		zap.String("operation_id", entry.OperationID.String()),
		zap.String("kind", string(entry.Kind)),
	)
	return nil
}

var _ shared.EventHandler = (*JournalHandler)(nil)
