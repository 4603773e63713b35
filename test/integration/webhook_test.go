//go:build integration

package integration

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/rollhaus/casino/test/integration/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signWebhook(body []byte) string {
	mac := hmac.New(sha512.New, []byte(testutil.TestMerchantKey))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, env *testutil.TestEnv, body []byte, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.Server.URL+"/webhooks/oxapay", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("HMAC", signature)
	resp, err := env.Server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func paidCallback(t *testing.T, orderID, trackID, txID, amount, currency string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"trackId":  trackID,
		"orderId":  orderID,
		"status":   "Paid",
		"type":     "payment",
		"txID":     txID,
		"amount":   amount,
		"currency": currency,
		"network":  "TRC20",
	})
	require.NoError(t, err)
	return body
}

func TestWebhook_CreditsInvoiceDeposit(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	user, _ := c.Register("depositor")

	body := paidCallback(t, user.ID, "trk-inv-1", "tx-1", "25", "USDT")
	resp := postWebhook(t, env, body, signWebhook(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	testutil.AssertBalance(t, env, user.ID, testutil.Coins(125))
	assert.Equal(t, 1, env.LedgerCount(user.ID))
}

func TestWebhook_ReplayedCallbackCreditsOnce(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	user, _ := c.Register("replay_depositor")

	body := paidCallback(t, user.ID, "trk-inv-2", "tx-2", "10", "USDT")
	first := postWebhook(t, env, body, signWebhook(body))
	assert.Equal(t, http.StatusOK, first.StatusCode)

	// The provider retries delivery; (trackId, txId) pins the credit.
	second := postWebhook(t, env, body, signWebhook(body))
	assert.Equal(t, http.StatusOK, second.StatusCode)

	testutil.AssertBalance(t, env, user.ID, testutil.Coins(110))
	assert.Equal(t, 1, env.LedgerCount(user.ID))
}

func TestWebhook_ConvertsWithStoredRate(t *testing.T) {
	env := testutil.NewTestEnv(t)
	env.SeedRate("TON", 5)

	c := env.Dial("")
	user, _ := c.Register("ton_depositor")

	body := paidCallback(t, user.ID, "trk-inv-3", "tx-3", "2", "TON")
	resp := postWebhook(t, env, body, signWebhook(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// 2 TON at 5 coins each.
	testutil.AssertBalance(t, env, user.ID, testutil.Coins(110))
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	user, _ := c.Register("forged_depositor")

	body := paidCallback(t, user.ID, "trk-inv-4", "tx-4", "50", "USDT")
	resp := postWebhook(t, env, body, "deadbeef")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	testutil.AssertBalance(t, env, user.ID, testutil.Coins(100))
}

func TestWebhook_IgnoresUnpaidStatus(t *testing.T) {
	env := testutil.NewTestEnv(t)
	c := env.Dial("")
	user, _ := c.Register("waiting_depositor")

	body, err := json.Marshal(map[string]any{
		"trackId": "trk-inv-5",
		"orderId": user.ID,
		"status":  "Waiting",
		"type":    "payment",
	})
	require.NoError(t, err)

	resp := postWebhook(t, env, body, signWebhook(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	testutil.AssertBalance(t, env, user.ID, testutil.Coins(100))
	assert.Zero(t, env.LedgerCount(user.ID))
}
