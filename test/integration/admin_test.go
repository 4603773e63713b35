//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollhaus/casino/test/integration/testutil"
)

func TestAdminRoomsSave_PersistsRoomConfig(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	admin, tokens := c.Register("rooms_admin")
	env.MakeAdmin(admin.ID)

	resp := c.CallOK("admin.rooms.save", tokens.AccessToken, map[string]any{
		"name":           "mediumtest",
		"timerSec":       20,
		"minBet":         0.5,
		"maxBet":         50,
		"maxBetsPerUser": 2,
	})
	require.True(t, resp.OK)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var timerSec, maxBetsPerUser int
	err := env.Pool.QueryRow(ctx,
		`SELECT timer_sec, max_bets_per_user FROM rooms WHERE name = 'mediumtest'`).
		Scan(&timerSec, &maxBetsPerUser)
	require.NoError(t, err)
	assert.Equal(t, 20, timerSec)
	assert.Equal(t, 2, maxBetsPerUser)

	// Saving again only updates the row.
	c.CallOK("admin.rooms.save", tokens.AccessToken, map[string]any{
		"name": "mediumtest", "timerSec": 25, "minBet": 0.5, "maxBet": 50, "maxBetsPerUser": 2,
	})
	err = env.Pool.QueryRow(ctx, `SELECT timer_sec FROM rooms WHERE name = 'mediumtest'`).Scan(&timerSec)
	require.NoError(t, err)
	assert.Equal(t, 25, timerSec)
}

func TestAdminRoomsSave_RequiresAdmin(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("rooms_pleb")

	resp := c.Call("admin.rooms.save", tokens.AccessToken, map[string]any{
		"name": "easy", "timerSec": 20,
	})
	require.False(t, resp.OK)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
}
