//go:build integration

package integration

import (
	"testing"

	"github.com/rollhaus/casino/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutating_RequiresRequestID(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("noreq_user")

	c.Send("wallet.exchange", "", tokens.AccessToken, map[string]any{
		"from": "main", "to": "bonus", "amount": 1,
	})
	resp := c.WaitResult("wallet.exchange.result")
	require.False(t, resp.OK)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
}

func TestDuplicateRequest_ReplaysStoredResponse(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	user, tokens := c.Register("replay_user")

	requestID := testutil.NewRequestID()
	payload := map[string]any{"from": "main", "to": "bonus", "amount": 10}

	first := c.CallWithRequestID("wallet.exchange", requestID, tokens.AccessToken, payload)
	require.True(t, first.OK)

	// Same requestId: the stored envelope comes back byte for byte and the
	// balance moves exactly once.
	second := c.CallWithRequestID("wallet.exchange", requestID, tokens.AccessToken, payload)
	assert.Equal(t, string(first.Raw), string(second.Raw))

	testutil.AssertBalance(t, env, user.ID, testutil.Coins(90))
	assert.Equal(t, 1, env.LedgerCount(user.ID))
}

func TestDuplicateRequest_FailedCommandStaysFailed(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("failed_replay_user")

	requestID := testutil.NewRequestID()
	payload := map[string]any{"from": "main", "to": "bonus", "amount": 5000}

	first := c.CallWithRequestID("wallet.exchange", requestID, tokens.AccessToken, payload)
	require.False(t, first.OK)
	assert.Equal(t, "INSUFFICIENT_BALANCE", first.Error.Code)

	// The retry does not re-run the handler, even though it could now be
	// formulated differently; it reports the terminal failure.
	second := c.CallWithRequestID("wallet.exchange", requestID, tokens.AccessToken, payload)
	require.False(t, second.OK)
	assert.Equal(t, "DUPLICATE_REQUEST", second.Error.Code)
}

func TestDistinctRequestIDs_ChargeSeparately(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	user, tokens := c.Register("distinct_user")

	payload := map[string]any{"from": "main", "to": "bonus", "amount": 10}
	require.True(t, c.CallWithRequestID("wallet.exchange", testutil.NewRequestID(), tokens.AccessToken, payload).OK)
	require.True(t, c.CallWithRequestID("wallet.exchange", testutil.NewRequestID(), tokens.AccessToken, payload).OK)

	testutil.AssertBalance(t, env, user.ID, testutil.Coins(80))
	assert.Equal(t, 2, env.LedgerCount(user.ID))
}

func TestRequestLedger_KeyedPerUser(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c1 := env.Dial("")
	u1, t1 := c1.Register("keyed_user_a")
	c2 := env.Dial("")
	u2, t2 := c2.Register("keyed_user_b")

	// The same requestId from different users runs for both.
	requestID := testutil.NewRequestID()
	payload := map[string]any{"from": "main", "to": "bonus", "amount": 10}
	require.True(t, c1.CallWithRequestID("wallet.exchange", requestID, t1.AccessToken, payload).OK)
	require.True(t, c2.CallWithRequestID("wallet.exchange", requestID, t2.AccessToken, payload).OK)

	testutil.AssertBalance(t, env, u1.ID, testutil.Coins(90))
	testutil.AssertBalance(t, env, u2.ID, testutil.Coins(90))
}

func TestConcurrentSameRequestID_SingleCharge(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	user, tokens := c.Register("race_user")

	requestID := testutil.NewRequestID()
	payload := map[string]any{"from": "main", "to": "bonus", "amount": 10}

	// Fire the same command twice without waiting; whatever interleaving
	// happens, exactly one charge may land.
	c.Send("wallet.exchange", requestID, tokens.AccessToken, payload)
	c.Send("wallet.exchange", requestID, tokens.AccessToken, payload)

	first := c.WaitRequest(requestID)
	second := c.WaitRequest(requestID)

	completed := 0
	for _, resp := range []*testutil.Envelope{first, second} {
		if resp.OK {
			completed++
		} else {
			assert.Contains(t, []string{"REQUEST_IN_PROGRESS", "DUPLICATE_REQUEST"}, resp.Error.Code)
		}
	}
	// At least one attempt wins; a replay of the completed envelope also
	// counts as OK, so completed is 1 or 2 -- but the charge is single.
	require.GreaterOrEqual(t, completed, 1)
	assert.Equal(t, 1, env.LedgerCount(user.ID))
	testutil.AssertBalance(t, env, user.ID, testutil.Coins(90))
}
