package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rollhaus/casino/internal/domain"
)

// DBTX abstracts pgx.Tx and pgxpool.Pool so repositories work with both.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// UserRepository provides access to the users table.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, db DBTX, user *domain.User) error

	// FindByID returns a user by ID, nil if absent.
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error)

	// FindByUsername returns a user by exact username, nil if absent.
	FindByUsername(ctx context.Context, db DBTX, username string) (*domain.User, error)

	// FindByAffiliateCode returns the user owning a referral code, nil if absent.
	FindByAffiliateCode(ctx context.Context, db DBTX, code string) (*domain.User, error)

	// LockForUpdate acquires a row-level lock (SELECT FOR UPDATE) and returns the user.
	LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error)

	// ApplyBalanceDelta updates both balances with server-side arithmetic and
	// bumps state_version. Returns the updated row.
	ApplyBalanceDelta(ctx context.Context, tx pgx.Tx, id uuid.UUID, deltaMain, deltaBonus int64) (*domain.User, error)

	// AddDepositTotal / AddWithdrawTotal track cumulative flows for withdraw limits.
	AddDepositTotal(ctx context.Context, db DBTX, id uuid.UUID, amount int64) error
	AddWithdrawTotal(ctx context.Context, db DBTX, id uuid.UUID, amount int64) error

	// IncrementReferralCount bumps the referrer's counter.
	IncrementReferralCount(ctx context.Context, db DBTX, id uuid.UUID) error

	// BumpTokenVersion invalidates all outstanding refresh tokens for the user.
	BumpTokenVersion(ctx context.Context, db DBTX, id uuid.UUID) error
}

// LedgerRepository provides access to the wallet_ledger table.
type LedgerRepository interface {
	// FindByRequestID returns the entry committed for a requestId, nil if absent.
	FindByRequestID(ctx context.Context, db DBTX, requestID string) (*domain.LedgerEntry, error)

	// Insert appends a ledger entry. Returns the inserted row.
	Insert(ctx context.Context, db DBTX, entry *domain.LedgerEntry) (*domain.LedgerEntry, error)

	// SumByUser totals amountMain/amountBonus over a user's entries.
	SumByUser(ctx context.Context, db DBTX, userID uuid.UUID) (main int64, bonus int64, err error)

	// ListByUser returns recent entries, newest first.
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, limit int) ([]domain.LedgerEntry, error)
}

// OutboxRepository provides access to the event_outbox table.
type OutboxRepository interface {
	// Insert appends an event (within the writer's transaction).
	Insert(ctx context.Context, db DBTX, event domain.Event) error

	// FetchUnpublished returns committed rows not yet delivered, oldest
	// first. Commit order does not follow id order, so delivery keys off
	// the published stamp rather than a sequence cursor.
	FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]SeqEvent, error)

	// MarkPublished stamps the given rows delivered.
	MarkPublished(ctx context.Context, db DBTX, seqs []int64) error

	// Reopen clears the published stamp on the newest n rows so the next
	// drain re-delivers them. Returns rows reopened.
	Reopen(ctx context.Context, db DBTX, n int) (int64, error)

	// DeleteBefore prunes events older than the cutoff. Returns rows removed.
	DeleteBefore(ctx context.Context, db DBTX, cutoff time.Time) (int64, error)
}

// SeqEvent pairs an outbox event with its tailer sequence.
type SeqEvent struct {
	Seq   int64
	Event domain.Event
}

// RequestRepository provides access to the request_ledger table.
type RequestRepository interface {
	// Begin inserts a processing row or returns the existing one.
	// Inserted is true when this call created the row.
	Begin(ctx context.Context, db DBTX, userID uuid.UUID, requestID, reqType string) (rec *domain.RequestRecord, inserted bool, err error)

	// Complete stores the serialized response and marks the row completed.
	Complete(ctx context.Context, db DBTX, userID uuid.UUID, requestID string, response json.RawMessage) error

	// Fail marks the row failed.
	Fail(ctx context.Context, db DBTX, userID uuid.UUID, requestID string) error

	// Sweep removes rows older than the cutoff. Returns rows removed.
	Sweep(ctx context.Context, db DBTX, cutoff time.Time) (int64, error)
}

// SessionRepository provides access to the sessions table.
type SessionRepository interface {
	Create(ctx context.Context, db DBTX, session *domain.Session) error
	FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Session, error)
	ListByUser(ctx context.Context, db DBTX, userID uuid.UUID) ([]domain.Session, error)
	UpdateRefreshHash(ctx context.Context, db DBTX, id uuid.UUID, hash string, expiresAt time.Time) error
	Revoke(ctx context.Context, db DBTX, id uuid.UUID) error
	RevokeAllForUser(ctx context.Context, db DBTX, userID uuid.UUID) error
}

// PromoRepository provides access to promocodes and promo_redemptions.
type PromoRepository interface {
	// Create inserts a promo code (admin surface).
	Create(ctx context.Context, db DBTX, promo *domain.Promo) error

	// FindByCode looks up an upper-cased code, nil if absent.
	FindByCode(ctx context.Context, db DBTX, code string) (*domain.Promo, error)

	// LockByCode is FindByCode with FOR UPDATE; used inside the redeem transaction.
	LockByCode(ctx context.Context, tx pgx.Tx, code string) (*domain.Promo, error)

	// InsertRedemption inserts the (userId, promoCodeId) row.
	// Inserted is false on a duplicate-key collision.
	InsertRedemption(ctx context.Context, db DBTX, redemption *domain.PromoRedemption) (inserted bool, err error)

	// HasRedemption reports whether the user already redeemed the promo.
	HasRedemption(ctx context.Context, db DBTX, promoID, userID uuid.UUID) (bool, error)

	// IncrementRedemptions bumps the promo counter.
	IncrementRedemptions(ctx context.Context, db DBTX, promoID uuid.UUID) error
}
