// Package lock implements a named distributed mutex on the shared locks
// table. A lease is owned iff the owner id matches and expires_at is in the
// future; takeover of an expired lease and insertion of a fresh key are both
// single-row conditional writes, so the database enforces mutual exclusion.
package lock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rollhaus/casino/internal/domain"
)

const (
	// DefaultWait bounds how long Acquire blocks before LOCK_TIMEOUT.
	DefaultWait = 8 * time.Second
	// DefaultTTL guarantees progress when a holder crashes without releasing.
	DefaultTTL = 10 * time.Second

	backoffBase   = 15 * time.Millisecond
	backoffFactor = 1.35
	backoffCap    = 250 * time.Millisecond
)

// Manager acquires, renews and releases leases on the locks table.
type Manager struct {
	pool *pgxpool.Pool
	wait time.Duration
	ttl  time.Duration
}

// NewManager creates a lock manager. waitMs/ttlMs <= 0 fall back to defaults.
func NewManager(pool *pgxpool.Pool, waitMs, ttlMs int) *Manager {
	m := &Manager{pool: pool, wait: DefaultWait, ttl: DefaultTTL}
	if waitMs > 0 {
		m.wait = time.Duration(waitMs) * time.Millisecond
	}
	if ttlMs > 0 {
		m.ttl = time.Duration(ttlMs) * time.Millisecond
	}
	return m
}

// Acquire blocks up to the manager's wait bound trying to obtain the lease.
// Returns LOCK_TIMEOUT (retryable) when the key stays held for the whole
// window.
func (m *Manager) Acquire(ctx context.Context, key string) (*domain.Lease, error) {
	return m.AcquireWait(ctx, key, m.wait)
}

// AcquireWait is Acquire with an explicit wait bound.
func (m *Manager) AcquireWait(ctx context.Context, key string, wait time.Duration) (*domain.Lease, error) {
	deadline := time.Now().Add(wait)
	ownerID := uuid.New()

	for attempt := 0; ; attempt++ {
		lease, err := m.tryAcquire(ctx, key, ownerID)
		if err != nil {
			return nil, err
		}
		if lease != nil {
			return lease, nil
		}

		delay := Backoff(attempt)
		if time.Now().Add(delay).After(deadline) {
			return nil, domain.ErrLockTimeout(key)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire %s: %w", key, ctx.Err())
		case <-time.After(delay):
		}
	}
}

// tryAcquire makes one attempt: seize any expired row, else insert a fresh
// one. Both writes succeed at most once per key; a loss on both means the
// lease is live in someone else's hands.
func (m *Manager) tryAcquire(ctx context.Context, key string, ownerID uuid.UUID) (*domain.Lease, error) {
	var expiresAt time.Time

	// Takeover: <= now() is inclusive so a released lease is immediately
	// reusable.
	err := m.pool.QueryRow(ctx, `
		UPDATE locks
		SET owner_id = $2, expires_at = now() + $3::interval
		WHERE key = $1 AND expires_at <= now()
		RETURNING expires_at`,
		key, ownerID, m.ttl).Scan(&expiresAt)
	if err == nil {
		return &domain.Lease{Key: key, OwnerID: ownerID, ExpiresAt: expiresAt}, nil
	}
	// ErrNoRows is contention; anything else is the database failing, and
	// retrying it as if the key were held would masquerade an outage as
	// LOCK_TIMEOUT.
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("acquire %s: takeover: %w", key, err)
	}

	err = m.pool.QueryRow(ctx, `
		INSERT INTO locks (key, owner_id, expires_at)
		VALUES ($1, $2, now() + $3::interval)
		ON CONFLICT (key) DO NOTHING
		RETURNING expires_at`,
		key, ownerID, m.ttl).Scan(&expiresAt)
	if err == nil {
		return &domain.Lease{Key: key, OwnerID: ownerID, ExpiresAt: expiresAt}, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("acquire %s: insert: %w", key, err)
	}

	// Both statements missed the row: the lease is live in someone else's
	// hands. Not an error, just contention.
	return nil, nil
}

// Renew extends the lease TTL. Fails with CONFLICT when the lease has been
// taken over; the caller must not assume it still owns the lock.
func (m *Manager) Renew(ctx context.Context, lease *domain.Lease) (*domain.Lease, error) {
	var expiresAt time.Time
	err := m.pool.QueryRow(ctx, `
		UPDATE locks
		SET expires_at = now() + $3::interval
		WHERE key = $1 AND owner_id = $2 AND expires_at > now()
		RETURNING expires_at`,
		lease.Key, lease.OwnerID, m.ttl).Scan(&expiresAt)
	if err != nil {
		return nil, domain.ErrConflict(fmt.Sprintf("lease %s lost", lease.Key))
	}
	return &domain.Lease{Key: lease.Key, OwnerID: lease.OwnerID, ExpiresAt: expiresAt}, nil
}

// Release expires the row without deleting it (avoids index churn).
// Idempotent: releasing an already-expired or taken-over lease is a no-op.
func (m *Manager) Release(ctx context.Context, lease *domain.Lease) error {
	_, err := m.pool.Exec(ctx, `
		UPDATE locks SET expires_at = now()
		WHERE key = $1 AND owner_id = $2`,
		lease.Key, lease.OwnerID)
	if err != nil {
		return fmt.Errorf("release %s: %w", lease.Key, err)
	}
	return nil
}

// WithLock runs fn while holding the named lease. The lease is released on
// every path.
func (m *Manager) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	lease, err := m.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
		defer cancel()
		_ = m.Release(releaseCtx, lease)
	}()
	return fn(ctx)
}

// Backoff returns the jittered delay before retry attempt n:
// 15·1.35^n ms capped near 250ms, plus up to 20% jitter.
func Backoff(attempt int) time.Duration {
	d := time.Duration(float64(backoffBase) * math.Pow(backoffFactor, float64(attempt)))
	if d > backoffCap {
		d = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d)/5 + 1))
	return d + jitter
}

// WalletKey is the canonical per-user wallet mutex name.
func WalletKey(userID uuid.UUID) string {
	return "wallet:" + userID.String()
}

// GameKey is the canonical per-game mutex name, e.g. "game:jackpot:easy".
func GameKey(parts ...string) string {
	key := "game"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}
