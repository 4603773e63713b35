package games

import (
	"context"
	"encoding/json"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/settings"
	"github.com/rollhaus/casino/internal/wallet"
)

// Jackpot resolution timing. The winner announcement leads the credit so the
// client animation lands before the balance moves.
const (
	jackpotWinnerPayoutDelay = 6200 * time.Millisecond
	jackpotSpinResetDelay    = 8200 * time.Millisecond
	jackpotPayoutRetries     = 5
)

// jackpotColors is the palette assigned round-robin-free to players; a user
// keeps one color for the whole round.
var jackpotColors = []string{
	"#e74c3c", "#3498db", "#2ecc71", "#f1c40f", "#9b59b6",
	"#e67e22", "#1abc9c", "#fd79a8", "#74b9ff", "#55efc4",
}

// jackpotBet is one stake with its consecutive ticket range.
type jackpotBet struct {
	UserID      uuid.UUID `json:"userId"`
	Username    string    `json:"username"`
	Color       string    `json:"color"`
	Amount      int64     `json:"amount"`
	TicketStart int64     `json:"ticketStart"`
	TicketEnd   int64     `json:"ticketEnd"`
}

// jackpotRoom is one room's live round. The room goroutine owns the
// countdown; Bet synchronizes through the mutex.
type jackpotRoom struct {
	deps *Deps
	name string

	mu        sync.Mutex
	roundID   uuid.UUID
	hash      string
	bets      []jackpotBet
	colors    map[uuid.UUID]string
	betCounts map[uuid.UUID]int
	pot       int64
	tickets   int64
	countdown int // seconds remaining, -1 while inactive
	resolving bool
	version   int64
}

// Jackpot hosts the jackpot rooms.
type Jackpot struct {
	deps  *Deps
	rooms map[string]*jackpotRoom
}

// NewJackpot creates a room orchestrator per configured room.
func NewJackpot(deps *Deps, rooms []settings.Room) *Jackpot {
	j := &Jackpot{deps: deps, rooms: make(map[string]*jackpotRoom, len(rooms))}
	for _, r := range rooms {
		room := &jackpotRoom{deps: deps, name: r.Name}
		room.reset()
		j.rooms[r.Name] = room
	}
	return j
}

// Start runs every room loop until ctx is canceled.
func (j *Jackpot) Start(ctx context.Context) {
	for _, room := range j.rooms {
		go room.run(ctx)
	}
}

// jackpotTickets converts an atomic stake into its ticket count: one ticket
// per hundredth of a coin, at least one.
func jackpotTickets(amount int64) int64 {
	t := amount / 10000
	if t < 1 {
		t = 1
	}
	return t
}

func (r *jackpotRoom) reset() {
	r.roundID = uuid.New()
	r.hash = newRoundHash()
	r.bets = nil
	r.colors = make(map[uuid.UUID]string)
	r.betCounts = make(map[uuid.UUID]int)
	r.pot = 0
	r.tickets = 0
	r.countdown = -1
	r.resolving = false
	r.version++
}

func (r *jackpotRoom) run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		r.tick(ctx)
	}
}

// tick advances the countdown one second. A panic in resolution must not
// kill the room loop; the round recovers with a one-second fuse.
func (r *jackpotRoom) tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.deps.Logger.Error("jackpot tick panic", "room", r.name, "panic", rec)
			r.mu.Lock()
			// A panic mid-resolve must not wedge the room: clear the flag
			// and re-arm the fuse so the round resolves again. The payout
			// request id makes the retry safe.
			r.resolving = false
			if r.countdown >= 0 {
				r.countdown = 1
			}
			r.mu.Unlock()
		}
	}()

	r.mu.Lock()
	if r.resolving || r.countdown < 0 {
		r.mu.Unlock()
		return
	}
	r.countdown--
	expired := r.countdown <= 0
	if expired {
		r.resolving = true
	}
	roundID, version, countdown := r.roundID.String(), r.version, r.countdown
	r.mu.Unlock()

	if !expired {
		r.deps.emit(ctx, "jackpot.tick", "jackpot", roundID, version, map[string]any{
			"room":      r.name,
			"countdown": countdown,
		})
		return
	}
	r.resolve(ctx)
}

func (r *jackpotRoom) resolve(ctx context.Context) {
	commission := r.deps.Settings.Get(ctx).JackpotCommissionPct

	r.mu.Lock()
	roundID := r.roundID
	hash := r.hash
	bets := append([]jackpotBet(nil), r.bets...)
	pot := r.pot
	totalTickets := r.tickets
	r.version++
	version := r.version
	r.mu.Unlock()

	winnerTicket := uniformInt64(totalTickets)
	var winner *jackpotBet
	for i := range bets {
		if winnerTicket >= bets[i].TicketStart && winnerTicket <= bets[i].TicketEnd {
			winner = &bets[i]
			break
		}
	}
	if winner == nil {
		// Cannot happen with contiguous ranges; fail safe to the last bet.
		winner = &bets[len(bets)-1]
	}

	payout := pot - int64(float64(pot)*commission/100)

	r.deps.emit(ctx, "jackpot.spin", "jackpot", roundID.String(), version, map[string]any{
		"room":         r.name,
		"winnerTicket": winnerTicket,
		"totalTickets": totalTickets,
		"winner":       winner.Username,
		"winnerColor":  winner.Color,
		"pot":          pot,
		"payout":       payout,
		"hash":         hash,
	})

	round := &domain.JackpotRound{
		ID: roundID, Room: r.name, Hash: hash,
		WinnerUserID: winner.UserID, WinnerTicket: winnerTicket,
		TotalTickets: totalTickets, Pot: pot, Payout: payout,
	}
	round.Bets, _ = json.Marshal(bets)
	if err := r.deps.Rounds.InsertJackpotRound(ctx, r.deps.Pool, round); err != nil {
		r.deps.Logger.Error("jackpot round insert failed", "room", r.name, "round", roundID, "error", err)
	}

	if !sleepCtx(ctx, jackpotWinnerPayoutDelay) {
		// Shutting down: credit immediately, the request id keeps it safe.
		r.creditWinner(context.WithoutCancel(ctx), roundID, winner, payout)
		return
	}
	r.creditWinner(ctx, roundID, winner, payout)

	if !sleepCtx(ctx, jackpotSpinResetDelay-jackpotWinnerPayoutDelay) {
		return
	}

	r.mu.Lock()
	r.reset()
	roundID2, version2 := r.roundID.String(), r.version
	r.mu.Unlock()
	r.deps.emit(ctx, "jackpot.state", "jackpot", roundID2, version2, map[string]any{
		"room": r.name, "phase": "open",
	})
}

// creditWinner pays the pot. The request id is stable per round, so retries
// on transient errors cannot double-pay.
func (r *jackpotRoom) creditWinner(ctx context.Context, roundID uuid.UUID, winner *jackpotBet, payout int64) {
	requestID := "jackpot:" + roundID.String() + ":payout"
	for attempt := 0; attempt < jackpotPayoutRetries; attempt++ {
		_, err := r.deps.Wallet.Apply(ctx, wallet.Mutation{
			UserID:     winner.UserID,
			RequestID:  &requestID,
			LedgerType: domain.LedgerPayout,
			DeltaMain:  payout,
			Metadata:   map[string]any{"game": "jackpot", "room": r.name, "round": roundID},
		})
		if err == nil {
			r.deps.Affiliate.CreditFromReferralWin(winner.UserID, payout, "jackpot:"+roundID.String())
			return
		}
		if !domain.IsRetryable(err) {
			r.deps.Logger.Error("jackpot payout failed", "room", r.name, "round", roundID, "error", err)
			return
		}
		r.deps.Logger.Warn("jackpot payout retry", "room", r.name, "round", roundID, "attempt", attempt, "error", err)
		if !sleepCtx(ctx, time.Duration(attempt+1)*200*time.Millisecond) {
			return
		}
	}
	r.deps.Logger.Error("jackpot payout exhausted retries", "room", r.name, "round", roundID)
}

// Bet stakes into a room's pot.
func (j *Jackpot) Bet(ctx context.Context, user *domain.User, roomName string, amount int64, requestID string) (*wallet.Result, error) {
	room, ok := j.rooms[roomName]
	if !ok {
		return nil, domain.ErrNotFound("room", roomName)
	}
	cfg, ok := j.deps.Settings.Room(ctx, roomName)
	if !ok {
		return nil, domain.ErrNotFound("room", roomName)
	}
	if err := checkBetBounds(amount, cfg.MinBet, cfg.MaxBet); err != nil {
		return nil, err
	}
	return room.bet(ctx, j.deps, user, cfg, amount, requestID)
}

func (r *jackpotRoom) bet(ctx context.Context, deps *Deps, user *domain.User, cfg settings.Room, amount int64, requestID string) (*wallet.Result, error) {
	r.mu.Lock()
	if r.resolving {
		r.mu.Unlock()
		return nil, domain.ErrConflict("round is resolving")
	}
	if cfg.MaxBetsPerUser > 0 && r.betCounts[user.ID] >= cfg.MaxBetsPerUser {
		r.mu.Unlock()
		return nil, domain.ErrConflict("bet limit reached for this round")
	}
	roundID := r.roundID.String()
	r.mu.Unlock()

	betReq := betKey(requestID)
	res, err := deps.Wallet.Apply(ctx, wallet.Mutation{
		UserID:     user.ID,
		RequestID:  &betReq,
		LedgerType: domain.LedgerGameBet,
		DeltaMain:  -amount,
		Metadata:   map[string]any{"game": "jackpot", "room": r.name, "round": roundID},
	})
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.resolving || r.roundID.String() != roundID {
		r.mu.Unlock()
		// The round resolved mid-debit; the stake rolls into the next round.
		refundReq := requestID + ":refund"
		res, err = deps.Wallet.Apply(ctx, wallet.Mutation{
			UserID:     user.ID,
			RequestID:  &refundReq,
			LedgerType: domain.LedgerPayout,
			DeltaMain:  amount,
			Metadata:   map[string]any{"game": "jackpot", "refund": true},
		})
		if err != nil {
			return nil, err
		}
		return nil, domain.ErrConflict("round is resolving")
	}

	color, ok := r.colors[user.ID]
	if !ok {
		color = jackpotColors[mrand.Intn(len(jackpotColors))]
		r.colors[user.ID] = color
	}
	tickets := jackpotTickets(amount)
	bet := jackpotBet{
		UserID: user.ID, Username: user.Username, Color: color,
		Amount: amount, TicketStart: r.tickets + 1, TicketEnd: r.tickets + tickets,
	}
	r.bets = append(r.bets, bet)
	r.betCounts[user.ID]++
	r.pot += amount
	r.tickets += tickets

	// Countdown arms once a second player shows up.
	if r.countdown < 0 && len(r.colors) >= 2 {
		r.countdown = cfg.TimerSec
	}
	r.version++
	version, countdown, pot := r.version, r.countdown, r.pot
	r.mu.Unlock()

	deps.emit(ctx, "jackpot.bet", "jackpot", roundID, version, map[string]any{
		"room":      r.name,
		"bet":       bet,
		"pot":       pot,
		"countdown": countdown,
	})
	return res, nil
}

// Snapshot returns all rooms' live state for jackpot.snapshot.get.
func (j *Jackpot) Snapshot(ctx context.Context) map[string]any {
	out := make(map[string]any, len(j.rooms))
	for name, room := range j.rooms {
		cfg, _ := j.deps.Settings.Room(ctx, name)
		room.mu.Lock()
		out[name] = map[string]any{
			"roundId":   room.roundID,
			"bets":      append([]jackpotBet(nil), room.bets...),
			"pot":       room.pot,
			"tickets":   room.tickets,
			"countdown": room.countdown,
			"resolving": room.resolving,
			"minBet":    cfg.MinBet,
			"maxBet":    cfg.MaxBet,
		}
		room.mu.Unlock()
	}
	return out
}
