package outbox

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/stretchr/testify/assert"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(16, testLogger())

	var got1, got2 []string
	bus.Subscribe(func(e domain.Event) { got1 = append(got1, e.Type) })
	bus.Subscribe(func(e domain.Event) { got2 = append(got2, e.Type) })

	delivered := bus.Publish(domain.NewEvent("crash.tick", "crash", "r1", 1, nil))

	assert.True(t, delivered)
	assert.Equal(t, []string{"crash.tick"}, got1)
	assert.Equal(t, []string{"crash.tick"}, got2)
}

func TestBus_DedupesByEventID(t *testing.T) {
	bus := NewBus(16, testLogger())

	var count int
	bus.Subscribe(func(domain.Event) { count++ })

	e := domain.NewEvent("wheel.spin", "wheel", "r1", 1, nil)
	assert.True(t, bus.Publish(e))
	assert.False(t, bus.Publish(e))
	assert.Equal(t, 1, count)
}

func TestBus_WindowEviction(t *testing.T) {
	bus := NewBus(3, testLogger())

	var count int
	bus.Subscribe(func(domain.Event) { count++ })

	first := domain.NewEvent("a", "x", "1", 1, nil)
	bus.Publish(first)
	for i := 0; i < 3; i++ {
		bus.Publish(domain.NewEvent("b", "x", "1", 1, nil))
	}

	// first was evicted from the window, so it delivers again
	assert.True(t, bus.Publish(first))
	assert.Equal(t, 5, count)
}

func TestBus_SubscriberPanicSwallowed(t *testing.T) {
	bus := NewBus(16, testLogger())

	var reached bool
	bus.Subscribe(func(domain.Event) { panic("boom") })
	bus.Subscribe(func(domain.Event) { reached = true })

	assert.NotPanics(t, func() {
		bus.Publish(domain.NewEvent("a", "x", "1", 1, nil))
	})
	assert.True(t, reached, "panic in one subscriber must not starve the rest")
}

func TestBus_DistinctEventsPass(t *testing.T) {
	bus := NewBus(16, testLogger())

	var ids []uuid.UUID
	bus.Subscribe(func(e domain.Event) { ids = append(ids, e.EventID) })

	for i := 0; i < 5; i++ {
		bus.Publish(domain.NewEvent("a", "x", "1", int64(i), nil))
	}
	assert.Len(t, ids, 5)
}
