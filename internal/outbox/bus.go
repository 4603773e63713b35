// Package outbox delivers committed events to in-process subscribers.
// Writers append rows to the event_outbox table inside their own
// transaction; the Tailer follows the table's sequence and pushes every new
// row into the Bus. Events visible on the bus therefore imply the writing
// transaction committed.
package outbox

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
)

// DefaultDedupeWindow is the size of the rolling eventId window.
const DefaultDedupeWindow = 10_000

// Subscriber receives every event published to the bus. Implementations
// must not block; panics are swallowed and logged.
type Subscriber func(event domain.Event)

// Bus fans committed events out to subscribers, deduplicating by eventId
// over a rolling window so a tailer restart that re-delivers recent rows
// does not double-publish.
type Bus struct {
	mu          sync.RWMutex
	subscribers []Subscriber

	dedupeMu sync.Mutex
	seen     map[uuid.UUID]struct{}
	ring     []uuid.UUID
	ringPos  int

	logger *slog.Logger
}

// NewBus creates a bus with the given dedupe window (0 uses the default).
func NewBus(dedupeWindow int, logger *slog.Logger) *Bus {
	if dedupeWindow <= 0 {
		dedupeWindow = DefaultDedupeWindow
	}
	return &Bus{
		seen:   make(map[uuid.UUID]struct{}, dedupeWindow),
		ring:   make([]uuid.UUID, dedupeWindow),
		logger: logger,
	}
}

// Subscribe registers a subscriber. Subscribers cannot be removed; wire them
// once at bootstrap.
func (b *Bus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, fn)
}

// Publish delivers the event to every subscriber unless its eventId was
// already seen within the window. Returns whether the event was delivered.
func (b *Bus) Publish(event domain.Event) bool {
	if !b.markSeen(event.EventID) {
		return false
	}

	b.mu.RLock()
	subs := b.subscribers
	b.mu.RUnlock()

	for _, fn := range subs {
		b.dispatch(fn, event)
	}
	return true
}

func (b *Bus) dispatch(fn Subscriber, event domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event subscriber panicked",
				"event_id", event.EventID, "type", event.Type, "panic", r)
		}
	}()
	fn(event)
}

// markSeen records the id in the rolling window. Returns false on a
// duplicate.
func (b *Bus) markSeen(id uuid.UUID) bool {
	b.dedupeMu.Lock()
	defer b.dedupeMu.Unlock()

	if _, dup := b.seen[id]; dup {
		return false
	}

	// Evict the slot this id will occupy.
	if old := b.ring[b.ringPos]; old != uuid.Nil {
		delete(b.seen, old)
	}
	b.ring[b.ringPos] = id
	b.seen[id] = struct{}{}
	b.ringPos = (b.ringPos + 1) % len(b.ring)
	return true
}
