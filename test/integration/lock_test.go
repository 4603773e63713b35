//go:build integration

package integration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/lock"
	"github.com/rollhaus/casino/test/integration/testutil"
)

func TestLock_HeldKeyTimesOutThenFrees(t *testing.T) {
	env := testutil.NewTestEnv(t)
	ctx := context.Background()
	mgr := lock.NewManager(env.Pool, 3000, 5000)

	lease, err := mgr.Acquire(ctx, "game:test:held")
	require.NoError(t, err)

	_, err = mgr.AcquireWait(ctx, "game:test:held", 300*time.Millisecond)
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "LOCK_TIMEOUT", appErr.Code)

	require.NoError(t, mgr.Release(ctx, lease))
	lease2, err := mgr.Acquire(ctx, "game:test:held")
	require.NoError(t, err)
	require.NoError(t, mgr.Release(ctx, lease2))
}

// A database failure must surface as such, not burn the whole wait window and
// come back as LOCK_TIMEOUT. The bootstrap database has no locks table, so
// every attempt fails at the statement level.
func TestLock_DatabaseErrorIsNotTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		testutil.TestDBUser, testutil.TestDBPass, testutil.TestDBHost, testutil.TestDBPort, testutil.TestDBUser)
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	mgr := lock.NewManager(pool, 3000, 5000)

	started := time.Now()
	_, err = mgr.Acquire(ctx, "game:test:broken")
	require.Error(t, err)

	if appErr, ok := domain.AsAppError(err); ok {
		assert.NotEqual(t, "LOCK_TIMEOUT", appErr.Code)
	}
	assert.Less(t, time.Since(started), 2*time.Second, "failed fast instead of spinning out the wait window")
}
