package persistence

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultbridge/backend/internal/domain/custody"
	"github.com/vaultbridge/backend/internal/domain/shared"
)

func TestJournalHandler(t *testing.T) {
	journal, _ := newSQLiteJournal(t)
	handler := NewJournalHandler(journal)
	ctx := context.Background()

	assert.ElementsMatch(t, []string{
		custody.EventTypeInvestmentCompleted,
		custody.EventTypeRedemptionCompleted,
	}, handler.EventTypes())

	receipt := &custody.InvestmentReceipt{
		OperationID:  uuid.New(),
		Caller:       callerAddr,
		Vault:        custody.NewVaultHandle(vaultAddr),
		Asset:        custody.NewAssetHandle(usdcAddr),
		Amount:       decimal.NewFromInt(10),
		MinShares:    decimal.NewFromInt(1),
		SharesIssued: decimal.NewFromInt(10),
	}
	require.NoError(t, handler.Handle(ctx, custody.NewInvestmentCompletedEvent(receipt)))

	entry, err := journal.FindByOperationID(ctx, receipt.OperationID)
	require.NoError(t, err)
	assert.True(t, entry.SharesIssued.Equal(decimal.NewFromInt(10)))

	redemption := &custody.RedemptionReceipt{
		OperationID:   uuid.New(),
		Caller:        callerAddr,
		Vault:         custody.NewVaultHandle(vaultAddr),
		ShareAsset:    custody.NewAssetHandle(sharesAddr),
		ShareQuantity: decimal.NewFromInt(0),
	}
	require.NoError(t, handler.Handle(ctx, custody.NewRedemptionCompletedEvent(redemption)))

	entry, err = journal.FindByOperationID(ctx, redemption.OperationID)
	require.NoError(t, err)
	assert.Equal(t, custody.InstructionRedeem, entry.Kind)
	assert.Empty(t, entry.Released)
}

type otherEvent struct {
	shared.BaseDomainEvent
}

func TestJournalHandler_IgnoresUnknownEvents(t *testing.T) {
	journal, db := newSQLiteJournal(t)
	handler := NewJournalHandler(journal)

	event := &otherEvent{BaseDomainEvent: shared.NewBaseDomainEvent("other", "Other", uuid.New())}
	require.NoError(t, handler.Handle(context.Background(), event))

	var count int64
	require.NoError(t, db.DB.Model(&OperationModel{}).Count(&count).Error)
	assert.Zero(t, count)
}
