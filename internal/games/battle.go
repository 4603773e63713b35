package games

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/money"
	"github.com/rollhaus/casino/internal/wallet"
)

// Battle teams.
const (
	BattleRed  = "red"
	BattleBlue = "blue"
)

// battleMaxBetsPerUser caps a user's stakes in one round.
const battleMaxBetsPerUser = 3

// Battle resolution timing.
const (
	battlePayoutDelay = 5200 * time.Millisecond
	battleResetDelay  = 7200 * time.Millisecond
)

// battleBet is one stake on a team, drawn from one sub-balance.
type battleBet struct {
	UserID   uuid.UUID      `json:"userId"`
	Username string         `json:"username"`
	Team     string         `json:"team"`
	Balance  wallet.Balance `json:"balance"`
	Amount   int64          `json:"amount"`
	Payout   int64          `json:"payout,omitempty"`
}

// Battle is the team-versus-team orchestrator. A user's bets in one round
// are pinned to their first bet's team and sub-balance.
type Battle struct {
	deps *Deps

	mu        sync.Mutex
	roundID   uuid.UUID
	hash      string
	bets      []battleBet
	teams     map[uuid.UUID]string
	balances  map[uuid.UUID]wallet.Balance
	betCounts map[uuid.UUID]int
	countdown int // seconds remaining, -1 while unarmed
	resolving bool
	version   int64
}

// NewBattle creates the battle orchestrator. Call Start to run it.
func NewBattle(deps *Deps) *Battle {
	b := &Battle{deps: deps}
	b.reset()
	return b
}

func (b *Battle) reset() {
	b.roundID = uuid.New()
	b.hash = newRoundHash()
	b.bets = nil
	b.teams = make(map[uuid.UUID]string)
	b.balances = make(map[uuid.UUID]wallet.Balance)
	b.betCounts = make(map[uuid.UUID]int)
	b.countdown = -1
	b.resolving = false
	b.version++
}

// Start runs the round loop until ctx is canceled.
func (b *Battle) Start(ctx context.Context) {
	go b.run(ctx)
}

func (b *Battle) run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		b.mu.Lock()
		if b.resolving || b.countdown < 0 {
			b.mu.Unlock()
			continue
		}
		b.countdown--
		expired := b.countdown <= 0
		if expired {
			b.resolving = true
		}
		roundID, version, countdown := b.roundID.String(), b.version, b.countdown
		b.mu.Unlock()

		if !expired {
			b.deps.emit(ctx, "battle.tick", "battle", roundID, version, map[string]any{
				"countdown": countdown,
			})
			continue
		}
		b.resolve(ctx)
	}
}

// battleRedTicketEnd returns the last ticket in [1, 1000] belonging to red:
// round(red share in tenths of a percent), clamped so both teams keep at
// least one ticket.
func battleRedTicketEnd(redBank, totalBank int64) int64 {
	end := int64(math.Round(float64(redBank) / float64(totalBank) * 1000))
	if end < 1 {
		end = 1
	}
	if end > 999 {
		end = 999
	}
	return end
}

// battlePayout returns one winning bet's payout: stake plus the bank-share
// profit minus commission on the profit.
func battlePayout(amount, winnerBank, loserBank int64, commissionPct float64) int64 {
	profit := money.MulRate(amount, float64(loserBank)/float64(winnerBank))
	if profit < 0 {
		profit = 0
	}
	return amount + profit - money.MulRate(profit, commissionPct/100)
}

func (b *Battle) resolve(ctx context.Context) {
	commission := b.deps.Settings.Get(ctx).BattleCommissionPct

	b.mu.Lock()
	roundID := b.roundID
	hash := b.hash
	bets := append([]battleBet(nil), b.bets...)
	b.version++
	version := b.version
	b.mu.Unlock()

	var redBank, blueBank int64
	for _, bet := range bets {
		if bet.Team == BattleRed {
			redBank += bet.Amount
		} else {
			blueBank += bet.Amount
		}
	}
	totalBank := redBank + blueBank

	winnerTicket := uniformInt64(1000)
	winnerTeam := BattleBlue
	winnerBank, loserBank := blueBank, redBank
	if winnerTicket <= battleRedTicketEnd(redBank, totalBank) {
		winnerTeam = BattleRed
		winnerBank, loserBank = redBank, blueBank
	}

	b.deps.emit(ctx, "battle.spin", "battle", roundID.String(), version, map[string]any{
		"winnerTeam":   winnerTeam,
		"winnerTicket": winnerTicket,
		"redBank":      redBank,
		"blueBank":     blueBank,
		"hash":         hash,
	})

	for i := range bets {
		if bets[i].Team == winnerTeam {
			bets[i].Payout = battlePayout(bets[i].Amount, winnerBank, loserBank, commission)
		}
	}

	round := &domain.BattleRound{
		ID: roundID, Hash: hash, WinnerTeam: winnerTeam,
		WinnerTicket: winnerTicket, TotalBank: totalBank,
	}
	round.Bets, _ = json.Marshal(bets)
	if err := b.deps.Rounds.InsertBattleRound(ctx, b.deps.Pool, round); err != nil {
		b.deps.Logger.Error("battle round insert failed", "round", roundID, "error", err)
	}

	if !sleepCtx(ctx, battlePayoutDelay) {
		b.payWinners(context.WithoutCancel(ctx), roundID, bets, winnerTeam)
		return
	}
	b.payWinners(ctx, roundID, bets, winnerTeam)

	if !sleepCtx(ctx, battleResetDelay-battlePayoutDelay) {
		return
	}

	b.mu.Lock()
	b.reset()
	roundID2, version2 := b.roundID.String(), b.version
	b.mu.Unlock()
	b.deps.emit(ctx, "battle.state", "battle", roundID2, version2, map[string]any{
		"phase": "open",
	})
}

// payWinners credits each winning bet to the sub-balance it was staked from.
func (b *Battle) payWinners(ctx context.Context, roundID uuid.UUID, bets []battleBet, winnerTeam string) {
	for i := range bets {
		bet := &bets[i]
		if bet.Team != winnerTeam || bet.Payout <= 0 {
			continue
		}
		requestID := "battle:" + roundID.String() + ":" + bet.UserID.String() + ":" + strconv.Itoa(i) + ":payout"
		mut := wallet.Mutation{
			UserID:     bet.UserID,
			RequestID:  &requestID,
			LedgerType: domain.LedgerPayout,
			Metadata:   map[string]any{"game": "battle", "round": roundID, "team": bet.Team},
		}
		if bet.Balance == wallet.BalanceBonus {
			mut.DeltaBonus = bet.Payout
		} else {
			mut.DeltaMain = bet.Payout
		}
		if _, err := b.deps.Wallet.Apply(ctx, mut); err != nil {
			b.deps.Logger.Error("battle payout failed", "user", bet.UserID, "round", roundID, "error", err)
			continue
		}
		if profit := bet.Payout - bet.Amount; profit > 0 {
			b.deps.Affiliate.CreditFromReferralWin(bet.UserID, profit,
				"battle:"+roundID.String()+":"+bet.UserID.String()+":"+strconv.Itoa(i))
		}
	}
}

// BattleBetRequest is a battle.bet command payload.
type BattleBetRequest struct {
	Team    string
	Balance wallet.Balance
	Amount  int64
}

// Bet stakes on a team. The first bet pins the user's team and sub-balance
// for the round; later bets must match.
func (b *Battle) Bet(ctx context.Context, user *domain.User, req BattleBetRequest, requestID string) (*wallet.Result, error) {
	if req.Team != BattleRed && req.Team != BattleBlue {
		return nil, domain.ErrValidation("team must be red or blue")
	}
	if req.Balance != wallet.BalanceMain && req.Balance != wallet.BalanceBonus {
		return nil, domain.ErrValidation("unknown balance")
	}
	cfg := b.deps.Settings.Get(ctx)
	if err := checkBetBounds(req.Amount, cfg.BattleMinBet, cfg.BattleMaxBet); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.resolving {
		b.mu.Unlock()
		return nil, domain.ErrConflict("round is resolving")
	}
	if b.betCounts[user.ID] >= battleMaxBetsPerUser {
		b.mu.Unlock()
		return nil, domain.ErrConflict("bet limit reached for this round")
	}
	if team, ok := b.teams[user.ID]; ok && team != req.Team {
		b.mu.Unlock()
		return nil, domain.ErrConflict("bets this round are pinned to team " + team)
	}
	if bal, ok := b.balances[user.ID]; ok && bal != req.Balance {
		b.mu.Unlock()
		return nil, domain.ErrConflict("bets this round are pinned to one balance")
	}
	roundID := b.roundID.String()
	b.mu.Unlock()

	betReq := betKey(requestID)
	mut := wallet.Mutation{
		UserID:     user.ID,
		RequestID:  &betReq,
		LedgerType: domain.LedgerGameBet,
		Metadata:   map[string]any{"game": "battle", "team": req.Team, "round": roundID},
	}
	if req.Balance == wallet.BalanceBonus {
		mut.DeltaBonus = -req.Amount
	} else {
		mut.DeltaMain = -req.Amount
	}
	res, err := b.deps.Wallet.Apply(ctx, mut)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.resolving || b.roundID.String() != roundID {
		b.mu.Unlock()
		refundReq := requestID + ":refund"
		refund := wallet.Mutation{
			UserID:     user.ID,
			RequestID:  &refundReq,
			LedgerType: domain.LedgerPayout,
			Metadata:   map[string]any{"game": "battle", "refund": true},
		}
		if req.Balance == wallet.BalanceBonus {
			refund.DeltaBonus = req.Amount
		} else {
			refund.DeltaMain = req.Amount
		}
		if _, rerr := b.deps.Wallet.Apply(ctx, refund); rerr != nil {
			return nil, rerr
		}
		return nil, domain.ErrConflict("round is resolving")
	}

	bet := battleBet{
		UserID: user.ID, Username: user.Username,
		Team: req.Team, Balance: req.Balance, Amount: req.Amount,
	}
	b.bets = append(b.bets, bet)
	b.teams[user.ID] = req.Team
	b.balances[user.ID] = req.Balance
	b.betCounts[user.ID]++

	// Countdown arms once both teams have at least one stake.
	if b.countdown < 0 && b.teamsPopulatedLocked() {
		b.countdown = cfg.BattleCountdownSec
		if b.countdown <= 0 {
			b.countdown = 20
		}
	}
	b.version++
	version, countdown := b.version, b.countdown
	b.mu.Unlock()

	b.deps.emit(ctx, "battle.bet", "battle", roundID, version, map[string]any{
		"bet":       bet,
		"countdown": countdown,
	})
	return res, nil
}

func (b *Battle) teamsPopulatedLocked() bool {
	var red, blue bool
	for _, team := range b.teams {
		if team == BattleRed {
			red = true
		} else {
			blue = true
		}
	}
	return red && blue
}

// Snapshot returns the live round view for battle.snapshot.get.
func (b *Battle) Snapshot(ctx context.Context) map[string]any {
	cfg := b.deps.Settings.Get(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]any{
		"roundId":   b.roundID,
		"bets":      append([]battleBet(nil), b.bets...),
		"countdown": b.countdown,
		"resolving": b.resolving,
		"minBet":    cfg.BattleMinBet,
		"maxBet":    cfg.BattleMaxBet,
	}
}
