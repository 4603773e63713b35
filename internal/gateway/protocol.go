// Package gateway is the WebSocket command surface: one socket per client
// carrying JSON request/response frames and server-pushed events. The router
// resolves legacy aliases, enforces auth and per-request idempotency, and
// renders domain errors into the response envelope. The hub fans bus events
// out to sockets matched by user target or subscription tags.
package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
)

// Frame is one client command.
type Frame struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	TS        int64           `json:"ts,omitempty"`
	Auth      *FrameAuth      `json:"auth,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// FrameAuth carries the per-frame access token.
type FrameAuth struct {
	AccessToken string `json:"accessToken"`
}

// ErrorBody is the wire form of a failed command.
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

// Response is the envelope for both command replies and pushed events.
// Pushed events set RequestID to "event:<eventId>".
type Response struct {
	Type         string     `json:"type"`
	RequestID    string     `json:"requestId"`
	OK           bool       `json:"ok"`
	ServerTS     int64      `json:"serverTs"`
	Data         any        `json:"data,omitempty"`
	Error        *ErrorBody `json:"error,omitempty"`
	EventID      string     `json:"eventId,omitempty"`
	StateVersion int64      `json:"stateVersion,omitempty"`
}

func serverTS() int64 { return time.Now().UnixMilli() }

// successResponse wraps a handler result for the command's requestId.
func successResponse(cmdType, requestID string, data any) *Response {
	return &Response{
		Type:      cmdType + ".result",
		RequestID: requestID,
		OK:        true,
		ServerTS:  serverTS(),
		Data:      data,
	}
}

// errorResponse renders err into the envelope. Non-domain errors become
// INTERNAL_ERROR without leaking their message.
func errorResponse(cmdType, requestID string, err error) *Response {
	body := &ErrorBody{Code: "INTERNAL_ERROR", Message: "internal error"}
	if appErr, ok := domain.AsAppError(err); ok {
		body = &ErrorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			Retryable: appErr.Retryable,
			Details:   appErr.Details,
		}
	}
	return &Response{
		Type:      cmdType + ".result",
		RequestID: requestID,
		OK:        false,
		ServerTS:  serverTS(),
		Error:     body,
	}
}

// syntheticRequestID labels replies to frames that carried no requestId
// (or could not be parsed at all).
func syntheticRequestID() string {
	return "synthetic:" + uuid.NewString()
}

// eventResponse wraps a bus event into the push envelope.
func eventResponse(event domain.Event) *Response {
	return &Response{
		Type:         event.Type,
		RequestID:    "event:" + event.EventID.String(),
		OK:           true,
		ServerTS:     serverTS(),
		Data:         event.Payload,
		EventID:      event.EventID.String(),
		StateVersion: event.Version,
	}
}
