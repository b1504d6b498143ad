package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vaultbridge/backend/internal/domain/custody"
	"github.com/vaultbridge/backend/internal/domain/shared"
	"github.com/vaultbridge/backend/internal/domain/shared/valueobject"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultListLimit caps ListByCaller when no limit is given
const DefaultListLimit = 50

// OperationModel is the GORM model of a journal entry
type OperationModel struct {
	ID           uuid.UUID           `gorm:"type:uuid;primaryKey"`
	EventID      uuid.UUID           `gorm:"type:uuid;uniqueIndex;not null"`
	Kind         string              `gorm:"type:varchar(16);not null"`
	Caller       valueobject.Address `gorm:"type:varchar(42);index;not null"`
	Vault        valueobject.Address `gorm:"type:varchar(42);not null"`
	Asset        valueobject.Address `gorm:"type:varchar(42);not null"`
	Quantity     decimal.Decimal     `gorm:"type:numeric(78,18);not null"`
	MinShares    decimal.Decimal     `gorm:"type:numeric(78,18)"`
	SharesIssued decimal.Decimal     `gorm:"type:numeric(78,18)"`
	Released     []byte              `gorm:"type:text"`
	OccurredAt   time.Time           `gorm:"index;not null"`
	CreatedAt    time.Time           `gorm:"autoCreateTime"`
}

// TableName returns the table name for the model
func (OperationModel) TableName() string {
	return "custody_operations"
}

// ToEntry converts the model to a journal entry
func (m *OperationModel) ToEntry() (*custody.JournalEntry, error) {
	entry := &custody.JournalEntry{
		OperationID:  m.ID,
		EventID:      m.EventID,
		Kind:         custody.InstructionKind(m.Kind),
		Caller:       m.Caller,
		Vault:        m.Vault,
		Asset:        m.Asset,
		Quantity:     m.Quantity,
		MinShares:    m.MinShares,
		SharesIssued: m.SharesIssued,
		OccurredAt:   m.OccurredAt,
	}
	if len(m.Released) > 0 {
		if err := json.Unmarshal(m.Released, &entry.Released); err != nil {
			return nil, fmt.Errorf("decode released assets of %s: %w", m.ID, err)
		}
	}
	return entry, nil
}

// OperationModelFromEntry creates a model from a journal entry
func OperationModelFromEntry(e *custody.JournalEntry) (*OperationModel, error) {
	m := &OperationModel{
		ID:           e.OperationID,
		EventID:      e.EventID,
		Kind:         string(e.Kind),
		Caller:       e.Caller,
		Vault:        e.Vault,
		Asset:        e.Asset,
		Quantity:     e.Quantity,
		MinShares:    e.MinShares,
		SharesIssued: e.SharesIssued,
		OccurredAt:   e.OccurredAt.UTC(),
	}
	if e.Kind == custody.InstructionRedeem {
		released := e.Released
		if released == nil {
			released = []custody.ReleasedAsset{}
		}
		data, err := json.Marshal(released)
		if err != nil {
			return nil, err
		}
		m.Released = data
	}
	return m, nil
}

// GormOperationJournal implements custody.Journal
type GormOperationJournal struct {
	db *gorm.DB
}

// NewGormOperationJournal creates a journal on db
func NewGormOperationJournal(db *gorm.DB) *GormOperationJournal {
	return &GormOperationJournal{db: db}
}

// Record stores entry. Redelivery of the same event is ignored.
func (j *GormOperationJournal) Record(ctx context.Context, entry *custody.JournalEntry) error {
	model, err := OperationModelFromEntry(entry)
	if err != nil {
		return err
	}
	return j.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(model).Error
}

// FindByOperationID returns the entry of one flow
func (j *GormOperationJournal) FindByOperationID(ctx context.Context, id uuid.UUID) (*custody.JournalEntry, error) {
	var model OperationModel
	err := j.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: operation %s", shared.ErrNotFound, id)
		}
		return nil, err
	}
	return model.ToEntry()
}

// ListByCaller returns the caller's most recent flows first
func (j *GormOperationJournal) ListByCaller(ctx context.Context, caller valueobject.Address, limit int) ([]custody.JournalEntry, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var models []OperationModel
	err := j.db.WithContext(ctx).
		Where("caller = ?", caller).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	entries := make([]custody.JournalEntry, 0, len(models))
	for i := range models {
		entry, err := models[i].ToEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

var _ custody.Journal = (*GormOperationJournal)(nil)
