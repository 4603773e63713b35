package gateway

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rollhaus/casino/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccessResponse(t *testing.T) {
	resp := successResponse("dice.bet", "req-1", map[string]any{"roll": 4212})

	assert.Equal(t, "dice.bet.result", resp.Type)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.True(t, resp.OK)
	assert.NotZero(t, resp.ServerTS)
	assert.Nil(t, resp.Error)
}

func TestErrorResponse_DomainError(t *testing.T) {
	resp := errorResponse("dice.bet", "req-2", domain.ErrInsufficientBalance())

	assert.Equal(t, "dice.bet.result", resp.Type)
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INSUFFICIENT_BALANCE", resp.Error.Code)
	assert.False(t, resp.Error.Retryable)
}

func TestErrorResponse_RetryableFlag(t *testing.T) {
	resp := errorResponse("dice.bet", "req-3", domain.ErrLockTimeout("wallet:x"))
	require.NotNil(t, resp.Error)
	assert.Equal(t, "LOCK_TIMEOUT", resp.Error.Code)
	assert.True(t, resp.Error.Retryable)
}

func TestErrorResponse_NonDomainErrorDoesNotLeak(t *testing.T) {
	resp := errorResponse("dice.bet", "req-4", errors.New("pg: password authentication failed"))

	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "password")
}

func TestErrorResponse_Details(t *testing.T) {
	err := domain.ErrValidation("bad amount").WithDetails(map[string]any{"field": "amount"})
	resp := errorResponse("dice.bet", "req-5", err)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "amount", resp.Error.Details["field"])
}

func TestSyntheticRequestID(t *testing.T) {
	id := syntheticRequestID()
	assert.True(t, strings.HasPrefix(id, "synthetic:"))
	assert.NotEqual(t, id, syntheticRequestID())
}

func TestEventResponse(t *testing.T) {
	event := domain.NewEvent("crash.tick", "crash", "round-9", 3, map[string]any{"multiplierBp": 154})
	resp := eventResponse(event)

	assert.Equal(t, "crash.tick", resp.Type)
	assert.Equal(t, "event:"+event.EventID.String(), resp.RequestID)
	assert.True(t, resp.OK)
	assert.Equal(t, event.EventID.String(), resp.EventID)
	assert.Equal(t, int64(3), resp.StateVersion)
}

func TestResponse_WireShape(t *testing.T) {
	raw, err := json.Marshal(successResponse("auth.me", "req-6", nil))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, "auth.me.result", m["type"])
	assert.Equal(t, true, m["ok"])
	// omitempty keeps failed-only and event-only fields off success replies
	assert.NotContains(t, m, "error")
	assert.NotContains(t, m, "eventId")
	assert.NotContains(t, m, "stateVersion")
}

func TestFrame_Decode(t *testing.T) {
	raw := []byte(`{
		"type":"dice.bet","requestId":"req-7","ts":1724500000000,
		"auth":{"accessToken":"tok"},
		"data":{"amount":1.5,"chance":49.5,"direction":"under"}
	}`)
	var frame Frame
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, "dice.bet", frame.Type)
	assert.Equal(t, "req-7", frame.RequestID)
	require.NotNil(t, frame.Auth)
	assert.Equal(t, "tok", frame.Auth.AccessToken)
	assert.NotEmpty(t, frame.Data)
}
