package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/infra"
)

// Hub tracks connected sockets and fans bus events out to the ones that
// want them. It is registered as a bus subscriber at wiring time.
type Hub struct {
	mu    sync.RWMutex
	conns map[*Conn]struct{}

	// onCount is invoked with the connection count after every add or
	// remove; the gateway broadcasts chat.online from it.
	onCount func(count int)

	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(metrics *infra.Metrics, logger *slog.Logger) *Hub {
	return &Hub{
		conns:   make(map[*Conn]struct{}),
		metrics: metrics,
		logger:  logger,
	}
}

// OnCountChange registers the connect/disconnect count callback. Wire it
// once before serving.
func (h *Hub) OnCountChange(fn func(count int)) { h.onCount = fn }

func (h *Hub) add(c *Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	count := len(h.conns)
	h.mu.Unlock()

	h.metrics.Set("ws_connections", int64(count))
	h.metrics.Inc("ws_connects_total")
	if h.onCount != nil {
		h.onCount(count)
	}
}

func (h *Hub) remove(c *Conn) {
	h.mu.Lock()
	_, present := h.conns[c]
	if present {
		delete(h.conns, c)
		c.closeSend()
	}
	count := len(h.conns)
	h.mu.Unlock()

	if !present {
		return
	}
	h.metrics.Set("ws_connections", int64(count))
	if h.onCount != nil {
		h.onCount(count)
	}
}

// Count returns the number of connected sockets.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// BroadcastEvent pushes one event to every matching socket. The envelope is
// marshaled once and shared.
func (h *Hub) BroadcastEvent(event domain.Event) {
	raw, err := json.Marshal(eventResponse(event))
	if err != nil {
		h.logger.Error("marshal event envelope", "type", event.Type, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if c.wantsEvent(event) {
			c.enqueue(raw)
		}
	}
	h.metrics.Inc("ws_events_total")
}
