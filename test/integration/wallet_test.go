//go:build integration

package integration

import (
	"encoding/json"
	"testing"

	"github.com/rollhaus/casino/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBalance_RequiresAuth(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")

	resp := c.Call("wallet.balance.get", "", json.RawMessage(`{}`))
	require.False(t, resp.OK)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
}

func TestBalance_QueryTokenPreAuth(t *testing.T) {
	env := testutil.NewTestEnv(t)
	_, tokens := env.Dial("").Register("preauth_user")

	// Socket authenticated by ?token= needs no per-frame auth.
	c := env.Dial(tokens.AccessToken)
	b := c.Balance("")
	assert.Equal(t, testutil.Coins(100), b.Main)
	assert.Equal(t, int64(0), b.Bonus)
}

func TestExchange_MovesMainToBonus(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("exchange_user")

	resp := c.CallOK("wallet.exchange", tokens.AccessToken, map[string]any{
		"from": "main", "to": "bonus", "amount": 25,
	})
	var out testutil.Balances
	resp.Bind(t, &out)
	assert.Equal(t, testutil.Coins(75), out.Main)
	assert.Equal(t, testutil.Coins(25), out.Bonus)
}

func TestExchange_InsufficientBalance(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("poor_user")

	resp := c.Call("wallet.exchange", tokens.AccessToken, map[string]any{
		"from": "main", "to": "bonus", "amount": 1000,
	})
	require.False(t, resp.OK)
	assert.Equal(t, "INSUFFICIENT_BALANCE", resp.Error.Code)
}

func TestExchange_RejectsUnknownBalance(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("bad_exchange_user")

	resp := c.Call("wallet.exchange", tokens.AccessToken, map[string]any{
		"from": "main", "to": "reserved", "amount": 1,
	})
	require.False(t, resp.OK)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestLedger_RecordsMutations(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	user, tokens := c.Register("ledger_user")

	c.CallOK("wallet.exchange", tokens.AccessToken, map[string]any{
		"from": "main", "to": "bonus", "amount": 10,
	})

	resp := c.CallOK("wallet.ledger.list", tokens.AccessToken, map[string]any{"limit": 10})
	var out struct {
		Entries []struct {
			Type        string `json:"type"`
			AmountMain  int64  `json:"amountMain"`
			AmountBonus int64  `json:"amountBonus"`
		} `json:"entries"`
	}
	resp.Bind(t, &out)
	require.NotEmpty(t, out.Entries)
	assert.Equal(t, "exchange", out.Entries[0].Type)
	assert.Equal(t, -testutil.Coins(10), out.Entries[0].AmountMain)
	assert.Equal(t, testutil.Coins(10), out.Entries[0].AmountBonus)
	assert.Equal(t, 1, env.LedgerCount(user.ID))
}

func TestBalanceEvent_PushedToOwnerOnly(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("event_user")

	c.CallOK("wallet.exchange", tokens.AccessToken, map[string]any{
		"from": "main", "to": "bonus", "amount": 5,
	})

	event := c.WaitEvent("wallet.balance.updated")
	var payload struct {
		Main  int64 `json:"main"`
		Bonus int64 `json:"bonus"`
	}
	event.Bind(t, &payload)
	assert.Equal(t, testutil.Coins(95), payload.Main)
	assert.Equal(t, testutil.Coins(5), payload.Bonus)
	assert.NotZero(t, event.StateVersion)
}

func TestWithdraw_UnsupportedCurrency(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("withdraw_nc_user")

	resp := c.Call("wallet.withdraw.request", tokens.AccessToken, map[string]any{
		"amount": 1, "currency": "NOPE", "network": "TRC20", "address": "Taddr",
	})
	require.False(t, resp.OK)
	assert.Equal(t, "CONFLICT", resp.Error.Code)
}

func TestWithdraw_BlockedWithoutDepositHistory(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SeedCurrency("USDT", "TRC20")
	c := env.Dial("")
	_, tokens := c.Register("withdraw_user")

	// The demo balance never counts toward the withdraw limit.
	resp := c.Call("wallet.withdraw.request", tokens.AccessToken, map[string]any{
		"amount": 10, "currency": "USDT", "network": "TRC20", "address": "Taddr",
	})
	require.False(t, resp.OK)
	assert.Equal(t, "CONFLICT", resp.Error.Code)
}
