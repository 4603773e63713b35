package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rollhaus/casino/internal/domain"
)

const (
	writeDeadline  = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 35 * time.Second // must exceed pingInterval
	maxFrameSize   = 64 << 10
	sendBufferSize = 256
)

// Conn is one connected socket. Auth and subscriptions are per-connection
// state mutated by the router and the subscribe handlers.
type Conn struct {
	hub  *Hub
	ws   *websocket.Conn
	send chan []byte

	// anonID keys the request ledger for unauthenticated mutating
	// commands; it lives for the connection only.
	anonID uuid.UUID

	mu            sync.RWMutex
	userID        uuid.UUID // Nil = anonymous
	username      string
	subscriptions map[string]struct{}
	closed        bool

	logger *slog.Logger
}

func newConn(hub *Hub, ws *websocket.Conn, logger *slog.Logger) *Conn {
	return &Conn{
		hub:           hub,
		ws:            ws,
		send:          make(chan []byte, sendBufferSize),
		anonID:        uuid.New(),
		subscriptions: make(map[string]struct{}),
		logger:        logger,
	}
}

// UserID returns the authenticated user, false when anonymous.
func (c *Conn) UserID() (uuid.UUID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.userID != uuid.Nil
}

// Identity keys the request ledger: the user id when authenticated, the
// connection's anonymous id otherwise.
func (c *Conn) Identity() uuid.UUID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.userID != uuid.Nil {
		return c.userID
	}
	return c.anonID
}

func (c *Conn) setUser(id uuid.UUID, username string) {
	c.mu.Lock()
	c.userID = id
	c.username = username
	c.mu.Unlock()
}

func (c *Conn) clearUser() {
	c.mu.Lock()
	c.userID = uuid.Nil
	c.username = ""
	c.mu.Unlock()
}

// Subscribe adds a fan-out tag ("dice", "crash", "chat", "*", ...).
func (c *Conn) Subscribe(tags ...string) {
	c.mu.Lock()
	for _, tag := range tags {
		c.subscriptions[tag] = struct{}{}
	}
	c.mu.Unlock()
}

// Unsubscribe removes a fan-out tag.
func (c *Conn) Unsubscribe(tags ...string) {
	c.mu.Lock()
	for _, tag := range tags {
		delete(c.subscriptions, tag)
	}
	c.mu.Unlock()
}

// wantsEvent reports whether the event should reach this socket: events
// targeted at a user match only that user's sockets; broadcast events match
// the "*" tag, the aggregate type or the exact event type.
func (c *Conn) wantsEvent(event domain.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if event.UserID != nil {
		return c.userID == *event.UserID
	}
	if _, ok := c.subscriptions["*"]; ok {
		return true
	}
	if _, ok := c.subscriptions[event.AggregateType]; ok {
		return true
	}
	_, ok := c.subscriptions[event.Type]
	return ok
}

// enqueue queues raw bytes for the write pump. A full buffer drops the
// message; a stalled socket is reaped by the pump deadlines. Commands finish
// in detached goroutines, so a late enqueue can outlive the socket: once the
// conn is closed the bytes are dropped instead of hitting a closed channel.
func (c *Conn) enqueue(raw []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- raw:
	default:
	}
}

// closeSend closes the send queue exactly once. enqueue holds the read lock
// while sending, so the close cannot race a send in flight.
func (c *Conn) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// sendResponse marshals and queues an envelope.
func (c *Conn) sendResponse(resp *Response) {
	raw, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("marshal response", "type", resp.Type, "error", err)
		return
	}
	c.enqueue(raw)
}

// readPump reads frames and hands each to dispatch until the socket closes.
func (c *Conn) readPump(dispatch func(*Conn, []byte)) {
	defer func() {
		c.hub.remove(c)
		c.ws.Close()
	}()
	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("socket read failed", "error", err)
			}
			return
		}
		dispatch(c, raw)
	}
}

// writePump drains the send queue and keeps the connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()
	for {
		select {
		case raw, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
