//go:build integration

package integration

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rollhaus/casino/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createPromo(t *testing.T, env *testutil.TestEnv, code string, rewardCoins float64, maxRedemptions int) {
	t.Helper()
	c := env.Dial("")
	admin, tokens := c.Register("promo_admin_" + code)
	env.MakeAdmin(admin.ID)

	resp := c.CallOK("admin.promo.create", tokens.AccessToken, map[string]any{
		"code":           code,
		"rewardType":     "bonus",
		"rewardAmount":   rewardCoins,
		"maxRedemptions": maxRedemptions,
	})
	require.True(t, resp.OK)
}

func TestAdminPromoCreate_RequiresAdminRole(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("not_admin")

	resp := c.Call("admin.promo.create", tokens.AccessToken, map[string]any{
		"code": "NOPE", "rewardType": "bonus", "rewardAmount": 1, "maxRedemptions": 1,
	})
	require.False(t, resp.OK)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)
}

func TestPromoRedeem_CreditsOnce(t *testing.T) {
	env := testutil.NewTestEnv(t)
	createPromo(t, env, "WELCOME10", 10, 100)

	c := env.Dial("")
	_, tokens := c.Register("redeemer")

	first := c.CallOK("promo.redeem", tokens.AccessToken, map[string]any{"code": "WELCOME10"})
	require.True(t, first.OK)

	b := c.Balance(tokens.AccessToken)
	assert.Equal(t, testutil.Coins(10), b.Bonus)

	// Second redemption of the same code by the same user fails.
	second := c.Call("promo.redeem", tokens.AccessToken, map[string]any{"code": "WELCOME10"})
	require.False(t, second.OK)
	assert.Equal(t, "CONFLICT", second.Error.Code)

	after := c.Balance(tokens.AccessToken)
	assert.Equal(t, testutil.Coins(10), after.Bonus)
}

func TestPromoRedeem_CaseInsensitiveCode(t *testing.T) {
	env := testutil.NewTestEnv(t)
	createPromo(t, env, "MIXED20", 20, 100)

	c := env.Dial("")
	_, tokens := c.Register("case_redeemer")

	resp := c.CallOK("promo.redeem", tokens.AccessToken, map[string]any{"code": "mixed20"})
	require.True(t, resp.OK)
	assert.Equal(t, testutil.Coins(20), c.Balance(tokens.AccessToken).Bonus)
}

func TestPromoRedeem_UnknownCode(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	_, tokens := c.Register("lost_redeemer")

	resp := c.Call("promo.redeem", tokens.AccessToken, map[string]any{"code": "NO_SUCH_CODE"})
	require.False(t, resp.OK)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestPromoRedeem_RedemptionCapHolds(t *testing.T) {
	env := testutil.NewTestEnv(t)
	createPromo(t, env, "SCARCE5", 5, 2)

	winners := 0
	var winner *testutil.Client
	var winnerTokens testutil.Tokens
	for i := 0; i < 4; i++ {
		c := env.Dial("")
		_, tokens := c.Register(fmt.Sprintf("cap_user_%d", i))
		resp := c.Call("promo.redeem", tokens.AccessToken, map[string]any{"code": "SCARCE5"})
		if resp.OK {
			winners++
			winner, winnerTokens = c, tokens
		} else {
			assert.Equal(t, "FORBIDDEN", resp.Error.Code)
		}
	}
	assert.Equal(t, 2, winners)

	// A user who redeemed retrying at cap learns they already redeemed,
	// not that the code ran out.
	retry := winner.Call("promo.redeem", winnerTokens.AccessToken, map[string]any{"code": "SCARCE5"})
	require.False(t, retry.OK)
	assert.Equal(t, "CONFLICT", retry.Error.Code)
}

func TestPromoRedeem_ConcurrentSingleRedemption(t *testing.T) {
	env := testutil.NewTestEnv(t)
	createPromo(t, env, "RACE15", 15, 100)

	c := env.Dial("")
	_, tokens := c.Register("race_redeemer")

	// Two sockets, same user, same code, concurrently: the unique
	// redemption row admits exactly one credit.
	c2 := env.Dial(tokens.AccessToken)

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i, cl := range []*testutil.Client{c, c2} {
		wg.Add(1)
		go func(i int, cl *testutil.Client) {
			defer wg.Done()
			resp := cl.CallWithRequestID("promo.redeem", testutil.NewRequestID(),
				tokens.AccessToken, map[string]any{"code": "RACE15"})
			results[i] = resp.OK
		}(i, cl)
	}
	wg.Wait()

	credited := 0
	for _, ok := range results {
		if ok {
			credited++
		}
	}
	assert.Equal(t, 1, credited)

	assert.Equal(t, testutil.Coins(15), c.Balance(tokens.AccessToken).Bonus)
}
