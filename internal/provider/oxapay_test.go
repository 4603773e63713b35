package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(key string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(key))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func newTestClient(baseURL string) *OxapayClient {
	return NewOxapayClient(baseURL, "merchant-key", "https://example.test/cb", 0, slog.Default())
}

func TestVerifyHMAC_Valid(t *testing.T) {
	c := newTestClient("")
	body := []byte(`{"trackId":"t1","status":"Paid"}`)
	assert.True(t, c.VerifyHMAC(body, sign("merchant-key", body)))
}

func TestVerifyHMAC_WrongKey(t *testing.T) {
	c := newTestClient("")
	body := []byte(`{"trackId":"t1"}`)
	assert.False(t, c.VerifyHMAC(body, sign("other-key", body)))
}

func TestVerifyHMAC_TamperedBody(t *testing.T) {
	c := newTestClient("")
	body := []byte(`{"amount":"1.00"}`)
	header := sign("merchant-key", body)
	assert.False(t, c.VerifyHMAC([]byte(`{"amount":"9.00"}`), header))
}

func TestVerifyHMAC_MissingHeader(t *testing.T) {
	c := newTestClient("")
	assert.False(t, c.VerifyHMAC([]byte(`{}`), ""))
}

func TestVerifyHMAC_Unconfigured(t *testing.T) {
	c := NewOxapayClient("", "", "", 0, slog.Default())
	body := []byte(`{}`)
	assert.False(t, c.VerifyHMAC(body, sign("", body)))
}

func TestParseWebhook_SingleTransfer(t *testing.T) {
	event, err := ParseWebhook([]byte(`{
		"trackId":"trk-1","status":"Paid","type":"payment",
		"txID":"0xabc","amount":"12.5","currency":"USDT","network":"TRC20"
	}`))
	require.NoError(t, err)
	assert.True(t, event.Paid())

	transfers := event.Transfers()
	require.Len(t, transfers, 1)
	assert.Equal(t, "0xabc", transfers[0].TxID)
	assert.Equal(t, "12.5", transfers[0].Amount)
}

func TestParseWebhook_BatchTransfers(t *testing.T) {
	event, err := ParseWebhook([]byte(`{
		"trackId":"trk-2","status":"Paid",
		"txs":[
			{"txID":"0x1","amount":"1","currency":"USDT","network":"TRC20"},
			{"txID":"0x2","amount":"2","currency":"USDT","network":"TRC20"}
		]
	}`))
	require.NoError(t, err)
	assert.Len(t, event.Transfers(), 2)
}

func TestParseWebhook_UnpaidStatus(t *testing.T) {
	event, err := ParseWebhook([]byte(`{"trackId":"trk-3","status":"Waiting"}`))
	require.NoError(t, err)
	assert.False(t, event.Paid())
}

func TestParseWebhook_NoTransfers(t *testing.T) {
	event, err := ParseWebhook([]byte(`{"trackId":"trk-4","status":"Paid"}`))
	require.NoError(t, err)
	assert.Empty(t, event.Transfers())
}

func TestParseWebhook_Malformed(t *testing.T) {
	_, err := ParseWebhook([]byte(`not json`))
	assert.Error(t, err)
}

func TestCreateStaticAddress_SendsMerchantKey(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/merchants/request/staticaddress", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(StaticAddress{TrackID: "trk-9", Address: "T123", Network: "TRC20"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	addr, err := c.CreateStaticAddress(context.Background(), StaticAddressRequest{
		Currency: "USDT", Network: "TRC20",
	})
	require.NoError(t, err)
	assert.Equal(t, "trk-9", addr.TrackID)
	assert.Equal(t, "merchant-key", got["merchant"])
	assert.Equal(t, "https://example.test/cb", got["callbackUrl"])
}

func TestCreateInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/merchants/request", r.URL.Path)
		json.NewEncoder(w).Encode(Invoice{TrackID: "inv-1", PayLink: "https://pay.test/inv-1"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	inv, err := c.CreateInvoice(context.Background(), InvoiceRequest{Amount: "25.00", OrderID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.test/inv-1", inv.PayLink)
}

func TestPost_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "merchant suspended", http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.CreateInvoice(context.Background(), InvoiceRequest{Amount: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
