// Package games hosts the six game engines. Dice and Coinflip are
// request-driven; Crash, Wheel, Jackpot and Battle are timer-driven state
// machines, each owned by a single goroutine. Bets debit and payouts credit
// through the wallet kernel; round events flow through the outbox.
package games

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	mrand "math/rand"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/lock"
	"github.com/rollhaus/casino/internal/repository"
	"github.com/rollhaus/casino/internal/settings"
	"github.com/rollhaus/casino/internal/wallet"
)

// AffiliateHook is called after a player's positive profit. Implementations
// must not block and must swallow their own failures.
type AffiliateHook interface {
	CreditFromReferralWin(winnerUserID uuid.UUID, winAmount int64, eventKey string)
}

// NopAffiliateHook satisfies AffiliateHook for tests and wiring without the
// affiliate feature.
type NopAffiliateHook struct{}

func (NopAffiliateHook) CreditFromReferralWin(uuid.UUID, int64, string) {}

// Deps bundles what every game engine needs.
type Deps struct {
	Pool      *pgxpool.Pool
	Locks     *lock.Manager
	Wallet    *wallet.Service
	Rounds    *repository.RoundsRepository
	Outbox    repository.OutboxRepository
	Settings  *settings.Cache
	Affiliate AffiliateHook
	Logger    *slog.Logger
}

// emit appends one round event to the outbox in its own transaction. Round
// phase events carry no database state, so a standalone append keeps the
// at-least-once contract.
func (d *Deps) emit(ctx context.Context, eventType, game, roundID string, version int64, payload any) {
	event := domain.NewEvent(eventType, game, roundID, version, payload)
	if err := d.Outbox.Insert(ctx, d.Pool, event); err != nil {
		d.Logger.Error("round event append failed",
			"game", game, "type", eventType, "round", roundID, "error", err)
	}
}

// newRoundHash returns the opaque 32-byte round identifier used for
// fair.check lookups.
func newRoundHash() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand failing is unrecoverable for fairness audit ids
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// uniformInt64 returns a uniform draw from [1, n].
func uniformInt64(n int64) int64 {
	if n <= 1 {
		return 1
	}
	return 1 + mrand.Int63n(n)
}

// betKey and payoutKey derive the two exactly-once ledger request ids from
// one client requestId.
func betKey(requestID string) string    { return requestID + ":bet" }
func payoutKey(requestID string) string { return requestID + ":payout" }
