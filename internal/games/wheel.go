package games

import (
	"context"
	"encoding/json"
	mrand "math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/wallet"
)

// Wheel colors and their payout multipliers.
const (
	WheelBlack  = "black"
	WheelRed    = "red"
	WheelGreen  = "green"
	WheelYellow = "yellow"
)

var wheelMultipliers = map[string]int64{
	WheelBlack:  2,
	WheelRed:    3,
	WheelGreen:  5,
	WheelYellow: 50,
}

// wheelAngles maps each color to the wheel angles (degrees) where it sits.
// The client animates the spin to the chosen angle.
var wheelAngles = map[string][]int64{
	WheelBlack:  {0, 29, 58, 87, 116, 145, 174, 203, 232, 261, 290, 319},
	WheelRed:    {14, 43, 72, 101, 130, 159, 188, 217, 246, 275},
	WheelGreen:  {304, 333, 348},
	WheelYellow: {190},
}

// wheelResetDelay is the pause after the spin before a new betting window.
const wheelResetDelay = 9500 * time.Millisecond

// drawWheelColor rolls the color distribution: 47.9% black, 40% red,
// 12% green, 0.1% yellow.
func drawWheelColor() string {
	n := mrand.Int63n(1000) // tenths of a percent
	switch {
	case n < 479:
		return WheelBlack
	case n < 879:
		return WheelRed
	case n < 999:
		return WheelGreen
	default:
		return WheelYellow
	}
}

// drawWheelAngle picks a stop angle for the color.
func drawWheelAngle(color string) int64 {
	angles := wheelAngles[color]
	return angles[mrand.Intn(len(angles))]
}

// wheelBet is one stake on one color.
type wheelBet struct {
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
	Color    string    `json:"color"`
	Amount   int64     `json:"amount"`
	Payout   int64     `json:"payout,omitempty"`
}

// wheelKey identifies a user's stake on one color.
type wheelKey struct {
	user  uuid.UUID
	color string
}

// Wheel is the wheel game orchestrator.
type Wheel struct {
	deps *Deps

	mu          sync.Mutex
	betting     bool
	roundID     uuid.UUID
	hash        string
	bettingEnds time.Time
	bets        map[wheelKey]*wheelBet
	version     int64
}

// NewWheel creates the wheel orchestrator. Call Start to run it.
func NewWheel(deps *Deps) *Wheel {
	return &Wheel{deps: deps, bets: make(map[wheelKey]*wheelBet)}
}

// Start runs the round loop until ctx is canceled.
func (w *Wheel) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Wheel) run(ctx context.Context) {
	for ctx.Err() == nil {
		window := w.bettingWindow(ctx)
		w.openBetting(ctx, window)
		if !sleepCtx(ctx, window) {
			return
		}
		w.spin(ctx)
		if !sleepCtx(ctx, wheelResetDelay) {
			return
		}
	}
}

func (w *Wheel) bettingWindow(ctx context.Context) time.Duration {
	sec := w.deps.Settings.Get(ctx).WheelBettingSec
	if sec <= 0 {
		sec = 15
	}
	return time.Duration(sec) * time.Second
}

func (w *Wheel) openBetting(ctx context.Context, window time.Duration) {
	w.mu.Lock()
	w.betting = true
	w.roundID = uuid.New()
	w.hash = newRoundHash()
	w.bets = make(map[wheelKey]*wheelBet)
	w.bettingEnds = time.Now().Add(window)
	w.version++
	roundID, version := w.roundID.String(), w.version
	w.mu.Unlock()

	w.deps.emit(ctx, "wheel.state", "wheel", roundID, version, map[string]any{
		"phase":      "betting",
		"bettingEnd": w.bettingEnds.UnixMilli(),
	})
}

func (w *Wheel) spin(ctx context.Context) {
	color := drawWheelColor()
	angle := drawWheelAngle(color)

	w.mu.Lock()
	w.betting = false
	w.version++
	roundID := w.roundID
	hash := w.hash
	version := w.version
	bets := make([]*wheelBet, 0, len(w.bets))
	for _, b := range w.bets {
		bets = append(bets, b)
	}
	w.mu.Unlock()

	w.deps.emit(ctx, "wheel.spin", "wheel", roundID.String(), version, map[string]any{
		"color": color,
		"angle": angle,
		"hash":  hash,
	})

	// One combined payout per winning user, however many colors they bet.
	multiplier := wheelMultipliers[color]
	winnings := make(map[uuid.UUID]int64)
	for _, b := range bets {
		if b.Color == color {
			b.Payout = b.Amount * multiplier
			winnings[b.UserID] += b.Payout
		}
	}
	for userID, payout := range winnings {
		requestID := "wheel:" + roundID.String() + ":" + userID.String() + ":payout"
		_, err := w.deps.Wallet.Apply(ctx, wallet.Mutation{
			UserID:     userID,
			RequestID:  &requestID,
			LedgerType: domain.LedgerPayout,
			DeltaMain:  payout,
			Metadata:   map[string]any{"game": "wheel", "color": color},
		})
		if err != nil {
			w.deps.Logger.Error("wheel payout failed", "user", userID, "round", roundID, "error", err)
			continue
		}
		w.deps.Affiliate.CreditFromReferralWin(userID, payout, "wheel:"+roundID.String()+":"+userID.String())
	}

	snapshot := make([]wheelBet, 0, len(bets))
	for _, b := range bets {
		snapshot = append(snapshot, *b)
	}
	raw, _ := json.Marshal(snapshot)
	round := &domain.WheelRound{ID: roundID, Hash: hash, ResultColor: color, Angle: angle, Bets: raw}
	if err := w.deps.Rounds.InsertWheelRound(ctx, w.deps.Pool, round); err != nil {
		w.deps.Logger.Error("wheel round insert failed", "round", roundID, "error", err)
	}
}

// Bet stakes on a color during the betting window. Repeat bets on the same
// color stack onto one stake.
func (w *Wheel) Bet(ctx context.Context, user *domain.User, color string, amount int64, requestID string) (*wallet.Result, error) {
	if _, ok := wheelMultipliers[color]; !ok {
		return nil, domain.ErrValidation("unknown color")
	}
	cfg := w.deps.Settings.Get(ctx)
	if err := checkBetBounds(amount, cfg.WheelMinBet, cfg.WheelMaxBet); err != nil {
		return nil, err
	}

	w.mu.Lock()
	if !w.betting {
		w.mu.Unlock()
		return nil, domain.ErrConflict("round is not accepting bets")
	}
	roundID, version := w.roundID.String(), w.version
	w.mu.Unlock()

	betReq := betKey(requestID)
	res, err := w.deps.Wallet.Apply(ctx, wallet.Mutation{
		UserID:     user.ID,
		RequestID:  &betReq,
		LedgerType: domain.LedgerGameBet,
		DeltaMain:  -amount,
		Metadata:   map[string]any{"game": "wheel", "color": color, "round": roundID},
	})
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	landed := w.betting && w.roundID.String() == roundID
	if landed {
		key := wheelKey{user: user.ID, color: color}
		if existing, ok := w.bets[key]; ok {
			existing.Amount += amount
		} else {
			w.bets[key] = &wheelBet{UserID: user.ID, Username: user.Username, Color: color, Amount: amount}
		}
	}
	w.mu.Unlock()

	// The window closed while the debit ran. The spin has already copied its
	// bets, so return the stake instead of letting it ride unseen.
	if !landed {
		refundReq := requestID + ":refund"
		res, err = w.deps.Wallet.Apply(ctx, wallet.Mutation{
			UserID:     user.ID,
			RequestID:  &refundReq,
			LedgerType: domain.LedgerPayout,
			DeltaMain:  amount,
			Metadata:   map[string]any{"game": "wheel", "refund": true},
		})
		if err != nil {
			return nil, err
		}
		return nil, domain.ErrConflict("round is not accepting bets")
	}

	w.deps.emit(ctx, "wheel.bet", "wheel", roundID, version, map[string]any{
		"userId":   user.ID,
		"username": user.Username,
		"color":    color,
		"amount":   amount,
	})
	return res, nil
}

// Snapshot returns the live round view for wheel.snapshot.get.
func (w *Wheel) Snapshot(ctx context.Context) map[string]any {
	cfg := w.deps.Settings.Get(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	bets := make([]wheelBet, 0, len(w.bets))
	for _, b := range w.bets {
		bets = append(bets, *b)
	}
	return map[string]any{
		"betting":    w.betting,
		"roundId":    w.roundID,
		"bettingEnd": w.bettingEnds.UnixMilli(),
		"bets":       bets,
		"minBet":     cfg.WheelMinBet,
		"maxBet":     cfg.WheelMaxBet,
	}
}
