package games

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollhaus/casino/internal/domain"
)

func TestDiceOutcomeDeterministic(t *testing.T) {
	seed := []byte("0123456789abcdef0123456789abcdef")

	hash1, roll1 := diceOutcome(seed, "client", 7)
	hash2, roll2 := diceOutcome(seed, "client", 7)
	assert.Equal(t, hash1, hash2)
	assert.Equal(t, roll1, roll2)
	assert.Len(t, hash1, 64)

	_, roll3 := diceOutcome(seed, "client", 8)
	_, roll4 := diceOutcome(seed, "other", 7)
	// Different nonce or seed input changes the outcome (overwhelmingly).
	assert.False(t, roll1 == roll3 && roll1 == roll4)
}

func TestDiceOutcomeRange(t *testing.T) {
	seed := []byte("seedseedseedseedseedseedseedseed")
	for nonce := int64(1); nonce <= 500; nonce++ {
		_, roll := diceOutcome(seed, "range", nonce)
		require.GreaterOrEqual(t, roll, int64(0))
		require.Less(t, roll, int64(10000))
	}
}

func TestDiceRateBP(t *testing.T) {
	// 50% chance pays 1.92x, 96% RTP.
	assert.Equal(t, int64(192), diceRateBP(5000))
	// 95% chance pays 1.01x.
	assert.Equal(t, int64(101), diceRateBP(9500))
	// 1% chance pays 96x.
	assert.Equal(t, int64(9600), diceRateBP(100))
}

func TestDiceWin(t *testing.T) {
	assert.True(t, diceWin(DiceUnder, 4999, 5000))
	assert.False(t, diceWin(DiceUnder, 5000, 5000))

	assert.True(t, diceWin(DiceOver, 5001, 5000))
	assert.False(t, diceWin(DiceOver, 5000, 5000))

	// 10% over wins only above 90.00
	assert.True(t, diceWin(DiceOver, 9001, 1000))
	assert.False(t, diceWin(DiceOver, 9000, 1000))
}

func TestSampleCrashPointBounds(t *testing.T) {
	for i := 0; i < 5000; i++ {
		bp := sampleCrashPointBP()
		require.GreaterOrEqual(t, bp, int64(100), "multiplier below 1.00x")
		require.LessOrEqual(t, bp, int64(10000), "multiplier above 100.00x")
	}
}

func TestSampleCrashPointSkewsLow(t *testing.T) {
	low := 0
	n := 20000
	for i := 0; i < n; i++ {
		if sampleCrashPointBP() < 300 {
			low++
		}
	}
	// Half the pool weight sits in the sub-2x band alone.
	assert.Greater(t, low, n/3)
}

func TestCrashMultiplierBP(t *testing.T) {
	assert.Equal(t, int64(100), crashMultiplierBP(0))

	// Monotonic and ~2x around 11.5s.
	at5 := crashMultiplierBP(5 * time.Second)
	at11 := crashMultiplierBP(11500 * time.Millisecond)
	assert.Greater(t, at5, int64(100))
	assert.Greater(t, at11, at5)
	assert.InDelta(t, 200, at11, 2)
}

func TestDrawWheelColorDistribution(t *testing.T) {
	counts := map[string]int{}
	n := 100000
	for i := 0; i < n; i++ {
		counts[drawWheelColor()]++
	}
	assert.InDelta(t, 0.479, float64(counts[WheelBlack])/float64(n), 0.02)
	assert.InDelta(t, 0.400, float64(counts[WheelRed])/float64(n), 0.02)
	assert.InDelta(t, 0.120, float64(counts[WheelGreen])/float64(n), 0.02)
	assert.InDelta(t, 0.001, float64(counts[WheelYellow])/float64(n), 0.002)
}

func TestDrawWheelAngleBelongsToColor(t *testing.T) {
	for color, angles := range wheelAngles {
		for i := 0; i < 50; i++ {
			assert.Contains(t, angles, drawWheelAngle(color))
		}
	}
}

func TestJackpotTickets(t *testing.T) {
	// One ticket per hundredth of a coin.
	assert.Equal(t, int64(100), jackpotTickets(1_000_000))
	assert.Equal(t, int64(1), jackpotTickets(10_000))
	assert.Equal(t, int64(50), jackpotTickets(500_000))
	// Dust still buys one ticket.
	assert.Equal(t, int64(1), jackpotTickets(1))
}

func TestBattleRedTicketEnd(t *testing.T) {
	// Even banks split the range evenly.
	assert.Equal(t, int64(500), battleRedTicketEnd(100, 200))
	// A dominant side never owns the whole range.
	assert.Equal(t, int64(999), battleRedTicketEnd(1000, 1001))
	assert.Equal(t, int64(1), battleRedTicketEnd(1, 100000))
}

func TestBattlePayout(t *testing.T) {
	// Even banks: profit equals the stake, 5% commission on the profit.
	payout := battlePayout(1_000_000, 2_000_000, 2_000_000, 5)
	assert.Equal(t, int64(1_950_000), payout)

	// No losers, no profit: the stake comes back whole.
	assert.Equal(t, int64(1_000_000), battlePayout(1_000_000, 2_000_000, 0, 5))
}

func TestCoinflipCreatorEnd(t *testing.T) {
	// 1 coin -> tickets 1..101, joiner 102..202.
	assert.Equal(t, int64(101), coinflipCreatorEnd(1_000_000))
	assert.Equal(t, int64(1), coinflipCreatorEnd(0))
	assert.Equal(t, int64(2), coinflipCreatorEnd(10_000))
}

func TestUniformInt64(t *testing.T) {
	assert.Equal(t, int64(1), uniformInt64(0))
	assert.Equal(t, int64(1), uniformInt64(1))
	for i := 0; i < 1000; i++ {
		v := uniformInt64(10)
		require.GreaterOrEqual(t, v, int64(1))
		require.LessOrEqual(t, v, int64(10))
	}
}

func TestBetAndPayoutKeys(t *testing.T) {
	assert.Equal(t, "req-1:bet", betKey("req-1"))
	assert.Equal(t, "req-1:payout", payoutKey("req-1"))
}

func TestJackpotTick_RecoversFromResolvePanic(t *testing.T) {
	room := &jackpotRoom{deps: &Deps{Logger: slog.Default()}, name: "easy"}
	room.reset()
	room.countdown = 1

	// Settings is nil, so resolution panics; the room must re-arm instead
	// of wedging in the resolving state with every future bet rejected.
	require.NotPanics(t, func() { room.tick(context.Background()) })

	room.mu.Lock()
	defer room.mu.Unlock()
	assert.False(t, room.resolving)
	assert.Equal(t, 1, room.countdown)
}

func TestEffectiveCashoutBP(t *testing.T) {
	// No caps: the live multiplier.
	assert.Equal(t, int64(250), effectiveCashoutBP(0, 0, 250))
	// A requested cap below the curve wins.
	assert.Equal(t, int64(180), effectiveCashoutBP(180, 0, 250))
	// A cap above the curve clamps to the live value.
	assert.Equal(t, int64(250), effectiveCashoutBP(500, 0, 250))
	// The auto target is the tightest cap of the three.
	assert.Equal(t, int64(150), effectiveCashoutBP(180, 150, 250))
}

func TestCrashStep_FlipsPhaseAtCrashPoint(t *testing.T) {
	c := NewCrash(&Deps{Logger: slog.Default()})
	c.phase = CrashRunning
	c.roundID = uuid.New()
	c.crashPointBP = 150
	c.startedAt = time.Now().Add(-time.Minute)
	c.currentBP = 100

	tick := c.step()
	require.True(t, tick.crashed)
	assert.Equal(t, int64(150), tick.bp)
	assert.Equal(t, CrashEnded, c.phase)

	// A cashout racing the crash tick finds the round already ended.
	_, err := c.Cashout(context.Background(), &domain.User{ID: uuid.New()}, 0, "r1")
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "CONFLICT", appErr.Code)
}

func TestCrashCashout_RejectsSubUnityMultiplier(t *testing.T) {
	c := NewCrash(&Deps{Logger: slog.Default()})
	c.phase = CrashRunning

	_, err := c.Cashout(context.Background(), &domain.User{ID: uuid.New()}, 50, "r1")
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}
