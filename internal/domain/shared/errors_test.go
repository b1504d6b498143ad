package shared

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, "NOT_FOUND", ErrorCode(ErrNotFound))
	assert.Equal(t, "UNAUTHORIZED", ErrorCode(fmt.Errorf("%w: 0xabc", ErrUnauthorized)))
	assert.Equal(t, CodeInternal, ErrorCode(errors.New("disk full")))
}

func TestDomainError_Wrapping(t *testing.T) {
	err := fmt.Errorf("%w: operation 42", ErrNotFound)

	var de *DomainError
	assert.True(t, errors.As(err, &de))
	assert.Equal(t, "NOT_FOUND", de.Code)
	assert.Equal(t, "Resource not found: operation 42", err.Error())
}

func TestNewBaseDomainEvent(t *testing.T) {
	aggID := uuid.New()
	e := NewBaseDomainEvent("thing.happened", "Thing", aggID)

	assert.NotEqual(t, uuid.Nil, e.EventID())
	assert.Equal(t, "thing.happened", e.EventType())
	assert.Equal(t, "Thing", e.AggregateType())
	assert.Equal(t, aggID, e.AggregateID())
	assert.Equal(t, time.UTC, e.OccurredAt().Location())

	other := NewBaseDomainEvent("thing.happened", "Thing", aggID)
	assert.NotEqual(t, e.EventID(), other.EventID())
}
