package event

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vaultbridge/backend/internal/domain/shared"
)

type testEvent struct {
	shared.BaseDomainEvent
}

func newTestEvent(eventType string) *testEvent {
	return &testEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(eventType, "TestAggregate", uuid.New()),
	}
}

type testHandler struct {
	eventTypes []string
	err        error
	panicWith  any

	mu      sync.Mutex
	handled []shared.DomainEvent
}

func newTestHandler(eventTypes ...string) *testHandler {
	return &testHandler{eventTypes: eventTypes}
}

func (h *testHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	h.mu.Lock()
	h.handled = append(h.handled, event)
	h.mu.Unlock()
	if h.panicWith != nil {
		panic(h.panicWith)
	}
	return h.err
}

func (h *testHandler) EventTypes() []string { return h.eventTypes }

func (h *testHandler) received() []shared.DomainEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]shared.DomainEvent(nil), h.handled...)
}

func startedBus(t *testing.T) *InMemoryEventBus {
	t.Helper()
	bus := NewInMemoryEventBus(nil)
	require.NoError(t, bus.Start(context.Background()))
	return bus
}

func TestInMemoryEventBus_Publish(t *testing.T) {
	bus := startedBus(t)
	invested := newTestHandler("custody.investment.completed")
	everything := newTestHandler()
	bus.Subscribe(invested)
	bus.Subscribe(everything)

	e1 := newTestEvent("custody.investment.completed")
	e2 := newTestEvent("custody.redemption.completed")
	require.NoError(t, bus.Publish(context.Background(), e1, e2))

	assert.Equal(t, []shared.DomainEvent{e1}, invested.received())
	assert.Equal(t, []shared.DomainEvent{e1, e2}, everything.received())
}

func TestInMemoryEventBus_HandlerFailuresDoNotStopDelivery(t *testing.T) {
	tests := []struct {
		name    string
		failing *testHandler
	}{
		{name: "error", failing: &testHandler{eventTypes: []string{"x"}, err: errors.New("db down")}},
		{name: "panic", failing: &testHandler{eventTypes: []string{"x"}, panicWith: "boom"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := startedBus(t)
			healthy := newTestHandler("x")
			bus.Subscribe(tt.failing)
			bus.Subscribe(healthy)

			err := bus.Publish(context.Background(), newTestEvent("x"))
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "1 event handler(s) failed")
			assert.Len(t, healthy.received(), 1)
		})
	}
}

func TestInMemoryEventBus_ExplicitEventTypesOverrideHandler(t *testing.T) {
	bus := startedBus(t)
	h := newTestHandler("a")
	bus.Subscribe(h, "b")

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("a"), newTestEvent("b")))
	require.Len(t, h.received(), 1)
	assert.Equal(t, "b", h.received()[0].EventType())
}

func TestInMemoryEventBus_Unsubscribe(t *testing.T) {
	bus := startedBus(t)
	h := newTestHandler("x")
	bus.Subscribe(h)
	bus.Unsubscribe(h)

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("x")))
	assert.Empty(t, h.received())
}

func TestInMemoryEventBus_StartStop(t *testing.T) {
	bus := NewInMemoryEventBus(nil)
	ctx := context.Background()

	assert.ErrorIs(t, bus.Publish(ctx, newTestEvent("x")), ErrBusStopped)

	require.NoError(t, bus.Start(ctx))
	assert.NoError(t, bus.Publish(ctx, newTestEvent("x")))

	require.NoError(t, bus.Stop(ctx))
	assert.ErrorIs(t, bus.Publish(ctx, newTestEvent("x")), ErrBusStopped)
}

func TestInMemoryEventBus_ConcurrentPublish(t *testing.T) {
	bus := startedBus(t)
	h := newTestHandler()
	bus.Subscribe(h)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = bus.Publish(context.Background(), newTestEvent("x"))
		}()
	}
	wg.Wait()
	require.NoError(t, bus.Stop(context.Background()))

	assert.Len(t, h.received(), 20)
}

func TestInMemoryEventBus_StopWhilePublishing(t *testing.T) {
	bus := startedBus(t)
	h := newTestHandler()
	bus.Subscribe(h)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := bus.Publish(context.Background(), newTestEvent("x"))
			if err == nil {
				mu.Lock()
				delivered++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrBusStopped)
		}()
	}
	require.NoError(t, bus.Stop(context.Background()))
	afterStop := len(h.received())
	wg.Wait()

	assert.Equal(t, delivered, afterStop, "every accepted publish finished before Stop returned")
	assert.Len(t, h.received(), afterStop, "nothing is delivered after Stop")
}
