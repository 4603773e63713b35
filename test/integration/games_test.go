//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollhaus/casino/internal/lock"
	"github.com/rollhaus/casino/test/integration/testutil"
)

type diceResult struct {
	GameID string  `json:"gameId"`
	Hash   string  `json:"hash"`
	Nonce  int64   `json:"nonce"`
	Roll   float64 `json:"roll"`
	Rate   float64 `json:"rate"`
	Win    bool    `json:"win"`
	Payout int64   `json:"payout"`
	Balance struct {
		Main  int64 `json:"main"`
		Bonus int64 `json:"bonus"`
	} `json:"balance"`
}

func TestDiceBet_SettlesAtomically(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	user, tokens := c.Register("dice_player")

	resp := c.CallOK("dice.bet", tokens.AccessToken, map[string]any{
		"amount": 10, "chance": 49.5, "direction": "under",
	})
	var out diceResult
	resp.Bind(t, &out)

	assert.NotEmpty(t, out.Hash)
	assert.GreaterOrEqual(t, out.Roll, 0.0)
	assert.Less(t, out.Roll, 100.0)

	// Either way the books balance: stake gone, payout present iff win.
	want := testutil.Coins(100) - testutil.Coins(10)
	if out.Win {
		require.Positive(t, out.Payout)
		want += out.Payout
	} else {
		assert.Zero(t, out.Payout)
	}
	assert.Equal(t, want, out.Balance.Main)
	testutil.AssertBalance(t, env, user.ID, want)
}

func TestDiceBet_IncrementsNonce(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("dice_nonce_player")

	var first, second diceResult
	c.CallOK("dice.bet", tokens.AccessToken, map[string]any{
		"amount": 1, "chance": 50, "direction": "over",
	}).Bind(t, &first)
	c.CallOK("dice.bet", tokens.AccessToken, map[string]any{
		"amount": 1, "chance": 50, "direction": "over",
	}).Bind(t, &second)

	assert.Equal(t, first.Nonce+1, second.Nonce)
}

func TestDiceBet_RejectsBadChance(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("dice_bad_player")

	resp := c.Call("dice.bet", tokens.AccessToken, map[string]any{
		"amount": 1, "chance": 99, "direction": "under",
	})
	require.False(t, resp.OK)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestDiceBet_InsufficientBalance(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	user, tokens := c.Register("dice_broke_player")

	resp := c.Call("dice.bet", tokens.AccessToken, map[string]any{
		"amount": 500, "chance": 50, "direction": "under",
	})
	require.False(t, resp.OK)
	assert.Equal(t, "INSUFFICIENT_BALANCE", resp.Error.Code)
	testutil.AssertBalance(t, env, user.ID, testutil.Coins(100))
}

func TestFairCheck_FindsSettledDiceGame(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("fair_player")

	var out diceResult
	c.CallOK("dice.bet", tokens.AccessToken, map[string]any{
		"amount": 1, "chance": 50, "direction": "under",
	}).Bind(t, &out)

	resp := c.CallOK("fair.check", "", map[string]any{"hash": out.Hash})
	assert.True(t, resp.OK)
}

func TestFairCheck_UnknownHash(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")

	resp := c.Call("fair.check", "", map[string]any{
		"hash": "deadbeefdeadbeefdeadbeefdeadbeef",
	})
	require.False(t, resp.OK)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestDiceSubscribe_ReturnsTableLimits(t *testing.T) {
	env := testutil.NewTestEnv(t)

	c := env.Dial("")
	snap := c.CallOK("dice.subscribe", "", json.RawMessage(`{}`))
	var limits struct {
		MinBet float64 `json:"minBet"`
		MaxBet float64 `json:"maxBet"`
	}
	snap.Bind(t, &limits)
	assert.Greater(t, limits.MaxBet, limits.MinBet)
}

func TestCoinflipSubscribe_StreamsLifecycle(t *testing.T) {
	env := testutil.NewTestEnv(t)

	watcher := env.Dial("")
	watcher.CallOK("coinflip.subscribe", "", json.RawMessage(`{}`))

	player := env.Dial("")
	_, tokens := player.Register("flip_streamed")
	player.CallOK("coinflip.create", tokens.AccessToken, map[string]any{
		"amount": 1, "side": "heads",
	})

	event := watcher.WaitEvent("coinflip.created")
	assert.NotEmpty(t, event.EventID)
}

func TestCoinflip_CreateJoinResolves(t *testing.T) {
	env := testutil.NewTestEnv(t)

	creator := env.Dial("")
	cu, ct := creator.Register("flip_creator")
	joiner := env.Dial("")
	ju, jt := joiner.Register("flip_joiner")

	created := creator.CallOK("coinflip.create", ct.AccessToken, map[string]any{
		"amount": 10, "side": "heads",
	})
	var game struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	created.Bind(t, &game)
	assert.Equal(t, "open", game.Status)

	resolved := joiner.CallOK("coinflip.join", jt.AccessToken, map[string]any{"gameId": game.ID})
	var done struct {
		Status       string `json:"status"`
		WinnerUserID string `json:"winnerUserId"`
		Payout       int64  `json:"payout"`
	}
	resolved.Bind(t, &done)
	assert.Equal(t, "resolved", done.Status)
	assert.Contains(t, []string{cu.ID, ju.ID}, done.WinnerUserID)
	assert.Positive(t, done.Payout)

	// Both stakes were debited; the winner got the payout. With the 5%
	// commission the payout is less than the 20-coin pot.
	assert.Less(t, done.Payout, testutil.Coins(20))
	total := env.DBBalance(cu.ID) + env.DBBalance(ju.ID)
	assert.Equal(t, testutil.Coins(180)+done.Payout, total)
}

func TestCoinflip_CannotJoinOwnGame(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("flip_loner")

	created := c.CallOK("coinflip.create", tokens.AccessToken, map[string]any{
		"amount": 5, "side": "tails",
	})
	var game struct {
		ID string `json:"id"`
	}
	created.Bind(t, &game)

	resp := c.Call("coinflip.join", tokens.AccessToken, map[string]any{"gameId": game.ID})
	require.False(t, resp.OK)
	assert.Equal(t, "CONFLICT", resp.Error.Code)
}

func TestCoinflipJoin_WaitsOnCreatorWalletLease(t *testing.T) {
	env := testutil.NewTestEnv(t)

	creator := env.Dial("")
	cu, ct := creator.Register("flip_leased")
	joiner := env.Dial("")
	ju, jt := joiner.Register("flip_blocked")

	created := creator.CallOK("coinflip.create", ct.AccessToken, map[string]any{
		"amount": 5, "side": "heads",
	})
	var game struct {
		ID string `json:"id"`
	}
	created.Bind(t, &game)

	// Park a lease on the creator's wallet. The join takes both wallet
	// leases before it opens a transaction, so it must time out with no
	// money moved, whichever side the ticket favors.
	ctx := context.Background()
	mgr := lock.NewManager(env.Pool, 500, 8000)
	lease, err := mgr.Acquire(ctx, lock.WalletKey(uuid.MustParse(cu.ID)))
	require.NoError(t, err)
	defer mgr.Release(ctx, lease)

	resp := joiner.Call("coinflip.join", jt.AccessToken, map[string]any{"gameId": game.ID})
	require.False(t, resp.OK)
	assert.Equal(t, "LOCK_TIMEOUT", resp.Error.Code)
	testutil.AssertBalance(t, env, ju.ID, testutil.Coins(100))
}

func TestCoinflip_CancelRefunds(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	user, tokens := c.Register("flip_canceler")

	created := c.CallOK("coinflip.create", tokens.AccessToken, map[string]any{
		"amount": 10, "side": "heads",
	})
	var game struct {
		ID string `json:"id"`
	}
	created.Bind(t, &game)
	testutil.AssertBalance(t, env, user.ID, testutil.Coins(90))

	canceled := c.CallOK("coinflip.cancel", tokens.AccessToken, map[string]any{"gameId": game.ID})
	var done struct {
		Status string `json:"status"`
	}
	canceled.Bind(t, &done)
	assert.Equal(t, "canceled", done.Status)
	testutil.AssertBalance(t, env, user.ID, testutil.Coins(100))
}

func TestChat_SendAndHistory(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("chatter")

	c.CallOK("chat.send", tokens.AccessToken, map[string]any{"text": "hello table"})

	resp := c.CallOK("chat.history", "", json.RawMessage(`{}`))
	var out struct {
		Messages []struct {
			Username string `json:"username"`
			Text     string `json:"text"`
		} `json:"messages"`
		Online int `json:"online"`
	}
	resp.Bind(t, &out)
	require.NotEmpty(t, out.Messages)
	assert.Equal(t, "chatter", out.Messages[0].Username)
	assert.Equal(t, "hello table", out.Messages[0].Text)
	assert.Positive(t, out.Online)
}
