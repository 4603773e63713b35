package games

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/lock"
	"github.com/rollhaus/casino/internal/money"
	"github.com/rollhaus/casino/internal/wallet"
)

// Dice directions.
const (
	DiceUnder = "under"
	DiceOver  = "over"
)

// diceEdgeNumerator keeps rate × chance = 96 (house edge 4%).
const diceEdgeNumerator = 9600 // in chance hundredths

// DiceBetRequest is a dice.bet command payload, amounts already atomic.
type DiceBetRequest struct {
	Amount     int64
	ChanceBP   int64 // chance in hundredths of a percent, e.g. 50% -> 5000
	Direction  string
	ClientSeed string
}

// DiceBetResult is the dice.bet response payload.
type DiceBetResult struct {
	GameID  uuid.UUID      `json:"gameId"`
	Hash    string         `json:"hash"`
	Nonce   int64          `json:"nonce"`
	Roll    float64        `json:"roll"`
	Rate    float64        `json:"rate"`
	Win     bool           `json:"win"`
	Payout  int64          `json:"payout"`
	Balance *wallet.Result `json:"balance"`
}

// Dice is the request-driven dice engine.
type Dice struct {
	deps *Deps
}

// NewDice creates the dice engine.
func NewDice(deps *Deps) *Dice {
	return &Dice{deps: deps}
}

// diceOutcome derives the hash and roll for one bet. Deterministic given
// seed, clientSeed and nonce: the audit trail for fair.check.
func diceOutcome(serverSeed []byte, clientSeed string, nonce int64) (hash string, rollBP int64) {
	h := sha256.New()
	h.Write(serverSeed)
	h.Write([]byte(":"))
	h.Write([]byte(clientSeed))
	h.Write([]byte(":"))
	h.Write([]byte(strconv.FormatInt(nonce, 10)))
	hash = hex.EncodeToString(h.Sum(nil))

	// First 52 bits of the digest, mod 10000, is the roll in hundredths.
	bits, _ := strconv.ParseUint(hash[:13], 16, 64)
	return hash, int64(bits % 10000)
}

// diceRateBP returns the payout rate in hundredths: round(9600 / chance).
func diceRateBP(chanceBP int64) int64 {
	return int64(math.Round(float64(diceEdgeNumerator) * 100 / float64(chanceBP)))
}

// diceWin applies the direction rule: under wins on roll < chance, over
// wins on roll > 100 − chance.
func diceWin(direction string, rollBP, chanceBP int64) bool {
	if direction == DiceUnder {
		return rollBP < chanceBP
	}
	return rollBP > 10000-chanceBP
}

// Bet runs one dice bet: debit, roll, optional payout, history row and
// stream event, all in one transaction under the user's wallet lease.
func (d *Dice) Bet(ctx context.Context, user *domain.User, req DiceBetRequest, requestID string) (*DiceBetResult, error) {
	if req.Direction != DiceUnder && req.Direction != DiceOver {
		return nil, domain.ErrValidation("direction must be under or over")
	}
	if req.ChanceBP < 100 || req.ChanceBP > 9500 {
		return nil, domain.ErrValidation("chance must be between 1 and 95")
	}

	cfg := d.deps.Settings.Get(ctx)
	if err := checkBetBounds(req.Amount, cfg.DiceMinBet, cfg.DiceMaxBet); err != nil {
		return nil, err
	}

	var result *DiceBetResult
	err := d.deps.Locks.WithLock(ctx, lock.WalletKey(user.ID), func(ctx context.Context) error {
		tx, err := d.deps.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		betReq := betKey(requestID)
		balance, err := d.deps.Wallet.ApplyInTx(ctx, tx, wallet.Mutation{
			UserID:     user.ID,
			RequestID:  &betReq,
			LedgerType: domain.LedgerGameBet,
			DeltaMain:  -req.Amount,
			Metadata:   map[string]any{"game": "dice"},
		})
		if err != nil {
			return err
		}

		nonce, err := d.deps.Rounds.NextDiceNonce(ctx, tx, user.ID)
		if err != nil {
			return err
		}

		var serverSeed [32]byte
		if _, err := rand.Read(serverSeed[:]); err != nil {
			return fmt.Errorf("server seed: %w", err)
		}
		hash, rollBP := diceOutcome(serverSeed[:], req.ClientSeed, nonce)
		rateBP := diceRateBP(req.ChanceBP)
		win := diceWin(req.Direction, rollBP, req.ChanceBP)

		var payout int64
		if win {
			payout = req.Amount * rateBP / 100
			payoutReq := payoutKey(requestID)
			balance, err = d.deps.Wallet.ApplyInTx(ctx, tx, wallet.Mutation{
				UserID:     user.ID,
				RequestID:  &payoutReq,
				LedgerType: domain.LedgerPayout,
				DeltaMain:  payout,
				Metadata:   map[string]any{"game": "dice", "hash": hash},
			})
			if err != nil {
				return err
			}
		}

		game := &domain.DiceGame{
			ID:         uuid.New(),
			UserID:     user.ID,
			Hash:       hash,
			ClientSeed: req.ClientSeed,
			Nonce:      nonce,
			Amount:     req.Amount,
			ChanceBP:   req.ChanceBP,
			Direction:  req.Direction,
			RollBP:     rollBP,
			RateBP:     rateBP,
			Payout:     payout,
		}
		if err := d.deps.Rounds.InsertDiceGame(ctx, tx, game); err != nil {
			return err
		}

		event := domain.NewEvent(domain.EventStreamBet, domain.AggregateStream, game.ID.String(), 1,
			map[string]any{
				"game":     "dice",
				"username": user.Username,
				"amount":   req.Amount,
				"payout":   payout,
				"win":      win,
			})
		if err := d.deps.Outbox.Insert(ctx, tx, event); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit dice bet: %w", err)
		}

		result = &DiceBetResult{
			GameID:  game.ID,
			Hash:    hash,
			Nonce:   nonce,
			Roll:    float64(rollBP) / 100,
			Rate:    float64(rateBP) / 100,
			Win:     win,
			Payout:  payout,
			Balance: balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if profit := result.Payout - req.Amount; profit > 0 {
		d.deps.Affiliate.CreditFromReferralWin(user.ID, profit, "dice:"+result.GameID.String())
	}
	return result, nil
}

// Snapshot returns the dice table limits for dice.snapshot.get.
func (d *Dice) Snapshot(ctx context.Context) map[string]any {
	cfg := d.deps.Settings.Get(ctx)
	return map[string]any{
		"minBet": cfg.DiceMinBet,
		"maxBet": cfg.DiceMaxBet,
	}
}

// checkBetBounds validates an atomic amount against coin-denominated limits.
func checkBetBounds(amount int64, minCoins, maxCoins float64) error {
	min, err := money.ToAtomic(minCoins)
	if err != nil {
		min = 0
	}
	max, merr := money.ToAtomic(maxCoins)
	if merr != nil {
		max = math.MaxInt64
	}
	if amount < min {
		return domain.ErrValidation(fmt.Sprintf("bet is below the minimum of %s", money.Format(min, 2)))
	}
	if max > 0 && amount > max {
		return domain.ErrValidation(fmt.Sprintf("bet is above the maximum of %s", money.Format(max, 2)))
	}
	return nil
}
