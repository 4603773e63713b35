package games

import (
	"context"
	"encoding/json"
	"math"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/wallet"
)

// Crash timing. The multiplier is exp(growthPerMs * elapsed), so 1.00x at
// launch and roughly doubling every 11.5 seconds.
const (
	crashGrowthPerMs  = 6e-5
	crashTickInterval = 50 * time.Millisecond
	crashRestartDelay = 3 * time.Second
	crashGraphCap     = 2500
)

// Crash round phases.
const (
	CrashBetting = "betting"
	CrashRunning = "running"
	CrashEnded   = "ended"
)

// crashBet is one player's stake in the current round.
type crashBet struct {
	UserID        uuid.UUID `json:"userId"`
	Username      string    `json:"username"`
	Amount        int64     `json:"amount"`
	AutoCashoutBP int64     `json:"autoCashoutBp,omitempty"`
	CashedOut     bool      `json:"cashedOut"`
	CashoutBP     int64     `json:"cashoutBp,omitempty"`
	Payout        int64     `json:"payout,omitempty"`
	requestID     string
}

// graphPoint is one sample of the multiplier curve sent to late joiners.
type graphPoint struct {
	ElapsedMs    int64 `json:"t"`
	MultiplierBP int64 `json:"m"`
}

// Crash is the crash game orchestrator. One goroutine owns the round loop;
// Bet and Cashout synchronize with it through the mutex.
type Crash struct {
	deps *Deps

	mu           sync.Mutex
	phase        string
	roundID      uuid.UUID
	hash         string
	crashPointBP int64
	startedAt    time.Time
	bettingEnds  time.Time
	currentBP    int64
	bets         map[uuid.UUID]*crashBet
	graph        []graphPoint
	version      int64
}

// NewCrash creates the crash orchestrator. Call Start to run it.
func NewCrash(deps *Deps) *Crash {
	return &Crash{deps: deps, phase: CrashEnded, bets: make(map[uuid.UUID]*crashBet)}
}

// sampleCrashPointBP draws the round's crash multiplier in hundredths.
//
// A weighted pool picks a magnitude band; the band is then smeared so small
// multipliers dominate but the tail reaches 100x.
func sampleCrashPointBP() int64 {
	pool := []struct {
		value  int64
		weight int
	}{
		{1, 50}, {2, 25}, {3, 10}, {4, 9}, {5, 3}, {10, 2}, {100, 1},
	}
	total := 0
	for _, p := range pool {
		total += p.weight
	}
	n := mrand.Intn(total)
	var v int64
	for _, p := range pool {
		n -= p.weight
		if n < 0 {
			v = p.value
			break
		}
	}

	if v > 1 {
		v = uniformInt64(v)
	}
	if v <= 1 {
		// 1.00x .. 1.09x
		return 100 + mrand.Int63n(10)
	}
	// v.d1d2 with a nonzero last digit, capped at 100.00x
	d1 := mrand.Int63n(10)
	d2 := 1 + mrand.Int63n(9)
	bp := v*100 + d1*10 + d2
	if bp > 10000 {
		bp = 10000
	}
	return bp
}

// crashMultiplierBP returns the live multiplier in hundredths after elapsed.
func crashMultiplierBP(elapsed time.Duration) int64 {
	m := math.Exp(crashGrowthPerMs * float64(elapsed.Milliseconds()))
	return int64(math.Round(m * 100))
}

// Start runs the round loop until ctx is canceled.
func (c *Crash) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Crash) run(ctx context.Context) {
	for ctx.Err() == nil {
		c.openBetting(ctx)
		if !sleepCtx(ctx, c.bettingWindow(ctx)) {
			return
		}
		c.launch(ctx)
		c.tickUntilCrash(ctx)
		if ctx.Err() != nil {
			return
		}
		c.settle(ctx)
		if !sleepCtx(ctx, crashRestartDelay) {
			return
		}
	}
}

func (c *Crash) bettingWindow(ctx context.Context) time.Duration {
	sec := c.deps.Settings.Get(ctx).CrashBettingSec
	if sec <= 0 {
		sec = 10
	}
	return time.Duration(sec) * time.Second
}

func (c *Crash) openBetting(ctx context.Context) {
	window := c.bettingWindow(ctx)

	c.mu.Lock()
	c.phase = CrashBetting
	c.roundID = uuid.New()
	c.hash = newRoundHash()
	c.crashPointBP = sampleCrashPointBP()
	c.bets = make(map[uuid.UUID]*crashBet)
	c.graph = c.graph[:0]
	c.currentBP = 100
	c.bettingEnds = time.Now().Add(window)
	c.version++
	roundID, version := c.roundID.String(), c.version
	c.mu.Unlock()

	c.deps.emit(ctx, "crash.state", "crash", roundID, version, map[string]any{
		"phase":      CrashBetting,
		"bettingMs":  window.Milliseconds(),
		"bettingEnd": time.Now().Add(window).UnixMilli(),
	})
}

func (c *Crash) launch(ctx context.Context) {
	c.mu.Lock()
	c.phase = CrashRunning
	c.startedAt = time.Now()
	c.version++
	roundID, version := c.roundID.String(), c.version
	c.mu.Unlock()

	c.deps.emit(ctx, "crash.start", "crash", roundID, version, map[string]any{
		"startedAt": c.startedAt.UnixMilli(),
	})
}

func (c *Crash) tickUntilCrash(ctx context.Context) {
	ticker := time.NewTicker(crashTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		tick := c.step()

		for _, bet := range tick.due {
			go c.settleCashout(ctx, bet, bet.AutoCashoutBP)
		}

		c.deps.emit(ctx, "crash.tick", "crash", tick.roundID, tick.version, map[string]any{
			"multiplier": float64(tick.bp) / 100,
			"elapsedMs":  tick.elapsed.Milliseconds(),
		})
		if tick.crashed {
			return
		}
	}
}

// crashTick is one sample of the running round.
type crashTick struct {
	bp      int64
	elapsed time.Duration
	due     []*crashBet
	crashed bool
	roundID string
	version int64
}

// step advances the curve one sample. Reaching the crash point flips the
// phase to ended under the same lock, so no cashout can land at or past the
// crash multiplier.
func (c *Crash) step() crashTick {
	c.mu.Lock()
	defer c.mu.Unlock()

	var t crashTick
	t.elapsed = time.Since(c.startedAt)
	t.bp = crashMultiplierBP(t.elapsed)
	t.crashed = t.bp >= c.crashPointBP
	if t.crashed {
		t.bp = c.crashPointBP
		c.phase = CrashEnded
	}
	c.currentBP = t.bp
	if len(c.graph) < crashGraphCap {
		c.graph = append(c.graph, graphPoint{ElapsedMs: t.elapsed.Milliseconds(), MultiplierBP: t.bp})
	}
	t.due = c.autoCashoutsDueLocked(t.bp)
	t.roundID, t.version = c.roundID.String(), c.version
	return t
}

// autoCashoutsDueLocked marks and returns bets whose auto target the curve
// just reached. Caller holds the mutex.
func (c *Crash) autoCashoutsDueLocked(currentBP int64) []*crashBet {
	var due []*crashBet
	for _, bet := range c.bets {
		if !bet.CashedOut && bet.AutoCashoutBP > 0 && bet.AutoCashoutBP <= currentBP && bet.AutoCashoutBP < c.crashPointBP {
			bet.CashedOut = true
			bet.CashoutBP = bet.AutoCashoutBP
			due = append(due, bet)
		}
	}
	return due
}

// settleCashout credits one cashed-out bet at the given multiplier.
func (c *Crash) settleCashout(ctx context.Context, bet *crashBet, atBP int64) {
	payout := bet.Amount * atBP / 100
	payoutReq := payoutKey(bet.requestID)

	_, err := c.deps.Wallet.Apply(ctx, wallet.Mutation{
		UserID:     bet.UserID,
		RequestID:  &payoutReq,
		LedgerType: domain.LedgerPayout,
		DeltaMain:  payout,
		Metadata:   map[string]any{"game": "crash", "multiplier": float64(atBP) / 100},
	})
	if err != nil {
		c.deps.Logger.Error("crash cashout credit failed",
			"user", bet.UserID, "request", payoutReq, "error", err)
		return
	}

	c.mu.Lock()
	bet.Payout = payout
	roundID, version := c.roundID.String(), c.version
	c.mu.Unlock()

	c.deps.emit(ctx, "crash.cashout", "crash", roundID, version, map[string]any{
		"userId":     bet.UserID,
		"username":   bet.Username,
		"multiplier": float64(atBP) / 100,
		"payout":     payout,
	})

	if profit := payout - bet.Amount; profit > 0 {
		c.deps.Affiliate.CreditFromReferralWin(bet.UserID, profit, "crash:"+roundID+":"+bet.UserID.String())
	}
}

func (c *Crash) settle(ctx context.Context) {
	c.mu.Lock()
	c.phase = CrashEnded
	c.version++
	roundID := c.roundID
	hash := c.hash
	crashBP := c.crashPointBP
	version := c.version
	bets := make([]crashBet, 0, len(c.bets))
	for _, b := range c.bets {
		bets = append(bets, *b)
	}
	c.mu.Unlock()

	raw, _ := json.Marshal(bets)
	round := &domain.CrashRound{ID: roundID, Hash: hash, CrashPointBP: crashBP, Bets: raw}

	tx, err := c.deps.Pool.Begin(ctx)
	if err != nil {
		c.deps.Logger.Error("crash settle begin failed", "round", roundID, "error", err)
		return
	}
	defer tx.Rollback(ctx)

	if err := c.deps.Rounds.InsertCrashRound(ctx, tx, round); err != nil {
		c.deps.Logger.Error("crash round insert failed", "round", roundID, "error", err)
		return
	}
	event := domain.NewEvent("crash.crashed", "crash", roundID.String(), version, map[string]any{
		"crashPoint": float64(crashBP) / 100,
		"hash":       hash,
	})
	if err := c.deps.Outbox.Insert(ctx, tx, event); err != nil {
		c.deps.Logger.Error("crash crashed event failed", "round", roundID, "error", err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		c.deps.Logger.Error("crash settle commit failed", "round", roundID, "error", err)
	}
}

// CrashBetRequest is a crash.bet command payload.
type CrashBetRequest struct {
	Amount        int64
	AutoCashoutBP int64 // 0 disables auto-cashout
}

// Bet places a stake in the betting window. One bet per user per round.
func (c *Crash) Bet(ctx context.Context, user *domain.User, req CrashBetRequest, requestID string) (*wallet.Result, error) {
	if req.AutoCashoutBP != 0 && req.AutoCashoutBP < 101 {
		return nil, domain.ErrValidation("auto cashout must be above 1.00")
	}
	cfg := c.deps.Settings.Get(ctx)
	if err := checkBetBounds(req.Amount, cfg.CrashMinBet, cfg.CrashMaxBet); err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.phase != CrashBetting {
		c.mu.Unlock()
		return nil, domain.ErrConflict("round is not accepting bets")
	}
	if _, dup := c.bets[user.ID]; dup {
		c.mu.Unlock()
		return nil, domain.ErrConflict("bet already placed this round")
	}
	// Reserve the slot before releasing the mutex so a concurrent duplicate
	// is refused, then roll the reservation back if the debit fails.
	bet := &crashBet{
		UserID: user.ID, Username: user.Username,
		Amount: req.Amount, AutoCashoutBP: req.AutoCashoutBP,
		requestID: requestID,
	}
	c.bets[user.ID] = bet
	roundID, version := c.roundID.String(), c.version
	c.mu.Unlock()

	betReq := betKey(requestID)
	res, err := c.deps.Wallet.Apply(ctx, wallet.Mutation{
		UserID:     user.ID,
		RequestID:  &betReq,
		LedgerType: domain.LedgerGameBet,
		DeltaMain:  -req.Amount,
		Metadata:   map[string]any{"game": "crash", "round": roundID},
	})
	if err != nil {
		c.mu.Lock()
		if c.roundID.String() == roundID {
			delete(c.bets, user.ID)
		}
		c.mu.Unlock()
		return nil, err
	}

	c.deps.emit(ctx, "crash.bet", "crash", roundID, version, map[string]any{
		"userId":   user.ID,
		"username": user.Username,
		"amount":   req.Amount,
	})
	return res, nil
}

// effectiveCashoutBP picks the multiplier a cashout settles at: the caller's
// requested cap, the bet's auto target and the live multiplier, whichever is
// lowest. Zero requested/auto mean "no cap".
func effectiveCashoutBP(requestedBP, autoBP, currentBP int64) int64 {
	bp := currentBP
	if requestedBP > 0 && requestedBP < bp {
		bp = requestedBP
	}
	if autoBP > 0 && autoBP < bp {
		bp = autoBP
	}
	return bp
}

// Cashout cashes the caller's live bet. requestedBP caps the multiplier; the
// credit lands at min(requested, current), so a cap above the curve settles
// at the live value. Zero means the current multiplier.
func (c *Crash) Cashout(ctx context.Context, user *domain.User, requestedBP int64, requestID string) (int64, error) {
	if requestedBP < 0 || (requestedBP > 0 && requestedBP < 100) {
		return 0, domain.ErrValidation("cashout multiplier must be at least 1.00")
	}

	c.mu.Lock()
	if c.phase != CrashRunning {
		c.mu.Unlock()
		return 0, domain.ErrConflict("round is not running")
	}
	bet, ok := c.bets[user.ID]
	if !ok {
		c.mu.Unlock()
		return 0, domain.ErrNotFound("bet", user.ID.String())
	}
	if bet.CashedOut {
		c.mu.Unlock()
		return 0, domain.ErrConflict("bet already cashed out")
	}
	atBP := effectiveCashoutBP(requestedBP, bet.AutoCashoutBP, c.currentBP)
	bet.CashedOut = true
	bet.CashoutBP = atBP
	c.mu.Unlock()

	c.settleCashout(ctx, bet, atBP)
	return bet.Amount * atBP / 100, nil
}

// Snapshot returns the live round view for crash.snapshot.get.
func (c *Crash) Snapshot(ctx context.Context) map[string]any {
	cfg := c.deps.Settings.Get(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	bets := make([]crashBet, 0, len(c.bets))
	for _, b := range c.bets {
		bets = append(bets, *b)
	}
	snap := map[string]any{
		"phase":      c.phase,
		"roundId":    c.roundID,
		"multiplier": float64(c.currentBP) / 100,
		"graph":      append([]graphPoint(nil), c.graph...),
		"bets":       bets,
		"minBet":     cfg.CrashMinBet,
		"maxBet":     cfg.CrashMaxBet,
	}
	if c.phase == CrashBetting {
		snap["bettingEnd"] = c.bettingEnds.UnixMilli()
	}
	return snap
}

// sleepCtx sleeps d, returning false when ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
