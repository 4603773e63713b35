//go:build integration

package testutil

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const readTimeout = 5 * time.Second

// Envelope is the wire response shape, raw bytes included so tests can
// assert byte-identical idempotent replays.
type Envelope struct {
	Type         string          `json:"type"`
	RequestID    string          `json:"requestId"`
	OK           bool            `json:"ok"`
	ServerTS     int64           `json:"serverTs"`
	Data         json.RawMessage `json:"data,omitempty"`
	Error        *EnvelopeError  `json:"error,omitempty"`
	EventID      string          `json:"eventId,omitempty"`
	StateVersion int64           `json:"stateVersion,omitempty"`

	Raw []byte `json:"-"`
}

// EnvelopeError is the wire error body.
type EnvelopeError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Bind decodes the envelope data into dst.
func (e *Envelope) Bind(t *testing.T, dst any) {
	t.Helper()
	if err := json.Unmarshal(e.Data, dst); err != nil {
		t.Fatalf("decode %s data: %v (data: %s)", e.Type, err, e.Data)
	}
}

// Client is one WebSocket connection to the test server.
type Client struct {
	ws *websocket.Conn
	t  *testing.T
}

// Dial opens a socket against the env's WS endpoint. A non-empty token
// pre-authenticates the connection via the query parameter.
func (env *TestEnv) Dial(token string) *Client {
	env.t.Helper()
	url := "ws" + strings.TrimPrefix(env.Server.URL, "http") + env.WSPath
	if token != "" {
		url += "?token=" + token
	}
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		env.t.Fatalf("dial %s: %v", url, err)
	}
	env.t.Cleanup(func() { ws.Close() })
	return &Client{ws: ws, t: env.t}
}

// Send writes one command frame. requestID may be empty for read commands.
func (c *Client) Send(frameType, requestID, token string, data any) {
	c.t.Helper()
	frame := map[string]any{
		"type": frameType,
		"ts":   time.Now().UnixMilli(),
	}
	if requestID != "" {
		frame["requestId"] = requestID
	}
	if token != "" {
		frame["auth"] = map[string]string{"accessToken": token}
	}
	if data != nil {
		frame["data"] = data
	}
	if err := c.ws.WriteJSON(frame); err != nil {
		c.t.Fatalf("write frame %s: %v", frameType, err)
	}
}

// read returns the next envelope within the read timeout.
func (c *Client) read() (*Envelope, error) {
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	_, raw, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w (raw: %s)", err, raw)
	}
	env.Raw = raw
	return &env, nil
}

// waitFor reads envelopes until match returns true, skipping unrelated
// pushes (chat.online, game ticks).
func (c *Client) waitFor(what string, match func(*Envelope) bool) *Envelope {
	c.t.Helper()
	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		env, err := c.read()
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", what, err)
		}
		if match(env) {
			return env
		}
	}
	c.t.Fatalf("timed out waiting for %s", what)
	return nil
}

// CallWithRequestID sends a frame with an explicit requestId and returns the
// matching reply.
func (c *Client) CallWithRequestID(frameType, requestID, token string, data any) *Envelope {
	c.t.Helper()
	c.Send(frameType, requestID, token, data)
	return c.waitFor(frameType+" reply", func(e *Envelope) bool {
		return e.RequestID == requestID
	})
}

// Call sends a frame with a fresh requestId and returns the reply.
func (c *Client) Call(frameType, token string, data any) *Envelope {
	c.t.Helper()
	return c.CallWithRequestID(frameType, uuid.NewString(), token, data)
}

// CallOK is Call plus an OK assertion.
func (c *Client) CallOK(frameType, token string, data any) *Envelope {
	c.t.Helper()
	env := c.Call(frameType, token, data)
	if !env.OK {
		code := "?"
		if env.Error != nil {
			code = env.Error.Code + ": " + env.Error.Message
		}
		c.t.Fatalf("%s failed: %s", frameType, code)
	}
	return env
}

// WaitResult reads until a reply envelope of the given type arrives,
// whatever its requestId.
func (c *Client) WaitResult(resultType string) *Envelope {
	c.t.Helper()
	return c.waitFor("result "+resultType, func(e *Envelope) bool {
		return e.Type == resultType
	})
}

// WaitRequest reads until an envelope for the given requestId arrives.
func (c *Client) WaitRequest(requestID string) *Envelope {
	c.t.Helper()
	return c.waitFor("reply for "+requestID, func(e *Envelope) bool {
		return e.RequestID == requestID
	})
}

// WaitEvent reads until a pushed event of the given type arrives.
func (c *Client) WaitEvent(eventType string) *Envelope {
	c.t.Helper()
	return c.waitFor("event "+eventType, func(e *Envelope) bool {
		return e.Type == eventType && strings.HasPrefix(e.RequestID, "event:")
	})
}
