package gateway

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopHandler(ctx context.Context, r *Request) (any, error) { return nil, nil }

func TestRouter_Resolve(t *testing.T) {
	router := NewRouter()
	router.Handle("fair.check", noopHandler)
	router.HandleAuthedMutating("dice.bet", noopHandler)

	cmdType, rt, ok := router.Resolve("dice.bet")
	require.True(t, ok)
	assert.Equal(t, "dice.bet", cmdType)
	assert.True(t, rt.authRequired)
	assert.True(t, rt.mutating)

	cmdType, rt, ok = router.Resolve("fair.check")
	require.True(t, ok)
	assert.Equal(t, "fair.check", cmdType)
	assert.False(t, rt.authRequired)
	assert.False(t, rt.mutating)
}

func TestRouter_UnknownCommand(t *testing.T) {
	router := NewRouter()
	_, _, ok := router.Resolve("no.such.command")
	assert.False(t, ok)
}

func TestRouter_AliasResolvesToCanonical(t *testing.T) {
	router := NewRouter()
	router.HandleAuthedMutating("dice.bet", noopHandler)
	router.Alias("dice_bet", "dice.bet")

	cmdType, rt, ok := router.Resolve("dice_bet")
	require.True(t, ok)
	assert.Equal(t, "dice.bet", cmdType)
	assert.True(t, rt.mutating)
}

func TestRouter_AliasToMissingRoute(t *testing.T) {
	router := NewRouter()
	router.Alias("legacy_cmd", "modern.cmd")
	_, _, ok := router.Resolve("legacy_cmd")
	assert.False(t, ok)
}

func TestRouter_DuplicateRoutePanics(t *testing.T) {
	router := NewRouter()
	router.Handle("dup.cmd", noopHandler)
	assert.Panics(t, func() {
		router.Handle("dup.cmd", noopHandler)
	})
}

func TestRequest_Bind(t *testing.T) {
	r := &Request{Frame: &Frame{Data: json.RawMessage(`{"amount":2.5,"color":"red"}`)}}

	var payload struct {
		Amount float64 `json:"amount"`
		Color  string  `json:"color"`
	}
	require.NoError(t, r.Bind(&payload))
	assert.Equal(t, 2.5, payload.Amount)
	assert.Equal(t, "red", payload.Color)
}

func TestRequest_BindEmptyData(t *testing.T) {
	r := &Request{Frame: &Frame{}}
	var payload struct{}
	err := r.Bind(&payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
}

func TestRequest_BindMalformedData(t *testing.T) {
	r := &Request{Frame: &Frame{Data: json.RawMessage(`{"amount":`)}}
	var payload struct{}
	err := r.Bind(&payload)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "VALIDATION_ERROR")
}
