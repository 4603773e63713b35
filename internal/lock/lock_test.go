package lock

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestBackoff_GrowsExponentially(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 0; attempt < 8; attempt++ {
		d := Backoff(attempt)
		assert.GreaterOrEqual(t, d, prev/2, "attempt %d should not collapse", attempt)
		prev = d
	}
}

func TestBackoff_CappedNear250ms(t *testing.T) {
	for attempt := 10; attempt < 40; attempt += 10 {
		d := Backoff(attempt)
		// cap 250ms plus up to 20% jitter
		assert.LessOrEqual(t, d, 300*time.Millisecond)
		assert.GreaterOrEqual(t, d, 250*time.Millisecond)
	}
}

func TestBackoff_FirstAttemptSmall(t *testing.T) {
	d := Backoff(0)
	assert.GreaterOrEqual(t, d, 15*time.Millisecond)
	assert.LessOrEqual(t, d, 20*time.Millisecond)
}

func TestWalletKey(t *testing.T) {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	assert.Equal(t, "wallet:00000000-0000-0000-0000-000000000001", WalletKey(id))
}

func TestGameKey(t *testing.T) {
	assert.Equal(t, "game:jackpot:easy", GameKey("jackpot", "easy"))
	assert.Equal(t, "game:crash", GameKey("crash"))
}
