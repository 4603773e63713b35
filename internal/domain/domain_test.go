package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("abc"))
	assert.NoError(t, ValidateUsername("player_one"))
	assert.NoError(t, ValidateUsername("A1_b2_C3"))

	assert.Error(t, ValidateUsername(""))
	assert.Error(t, ValidateUsername("ab"))
	assert.Error(t, ValidateUsername("this_name_is_way_too_long_for_us"))
	assert.Error(t, ValidateUsername("spaces no"))
	assert.Error(t, ValidateUsername("dash-ed"))
}

func TestValidatePositiveAmount(t *testing.T) {
	assert.NoError(t, ValidatePositiveAmount(1))
	assert.Error(t, ValidatePositiveAmount(0))
	assert.Error(t, ValidatePositiveAmount(-100))
}

func TestValidateRoundHash(t *testing.T) {
	assert.NoError(t, ValidateRoundHash("deadbeefdeadbeef"))
	assert.NoError(t, ValidateRoundHash("ABCDEF0123456789abcdef0123456789"))

	assert.Error(t, ValidateRoundHash(""))
	assert.Error(t, ValidateRoundHash("short"))
	assert.Error(t, ValidateRoundHash("zzzzzzzzzzzzzzzz"))
}

func TestAppError_Codes(t *testing.T) {
	assert.Equal(t, "VALIDATION_ERROR", ErrValidation("bad").Code)
	assert.Equal(t, "UNAUTHORIZED", ErrUnauthorized("no").Code)
	assert.Equal(t, "FORBIDDEN", ErrForbidden("no").Code)
	assert.Equal(t, "NOT_FOUND", ErrNotFound("user", "42").Code)
	assert.Equal(t, "INSUFFICIENT_BALANCE", ErrInsufficientBalance().Code)
	assert.Equal(t, "DUPLICATE_REQUEST", ErrDuplicateRequest().Code)
	assert.Equal(t, "CONFLICT", ErrConflict("busy").Code)
}

func TestAppError_Retryable(t *testing.T) {
	assert.True(t, ErrLockTimeout("wallet:x").Retryable)
	assert.True(t, ErrRequestInProgress().Retryable)
	assert.True(t, ErrConflictRetryable("busy", nil).Retryable)
	assert.False(t, ErrInsufficientBalance().Retryable)
	assert.False(t, ErrDuplicateRequest().Retryable)
}

func TestAsAppError_Unwraps(t *testing.T) {
	inner := ErrInsufficientBalance()
	wrapped := fmt.Errorf("bet failed: %w", inner)

	appErr, ok := AsAppError(wrapped)
	require.True(t, ok)
	assert.Equal(t, "INSUFFICIENT_BALANCE", appErr.Code)
}

func TestAsAppError_NonDomainError(t *testing.T) {
	_, ok := AsAppError(errors.New("plain"))
	assert.False(t, ok)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("op: %w", ErrLockTimeout("k"))))
	assert.False(t, IsRetryable(ErrValidation("bad")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestAppError_CauseChain(t *testing.T) {
	cause := errors.New("pg: connection reset")
	err := ErrInternal("apply mutation", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "INTERNAL_ERROR")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAppError_WithDetails(t *testing.T) {
	err := ErrValidation("bad amount").WithDetails(map[string]any{"field": "amount"})
	assert.Equal(t, "amount", err.Details["field"])
}
