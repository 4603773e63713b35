// Package provider holds clients for external collaborators. The core treats
// provider failures as CONFLICT so users get a human-readable, retryable
// error rather than an internal one.
package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const defaultTimeout = 15 * time.Second

// OxapayClient wraps the crypto payment provider API.
type OxapayClient struct {
	baseURL     string
	merchantKey string
	callbackURL string
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewOxapayClient creates a provider client. timeoutMs <= 0 uses the 15s
// default.
func NewOxapayClient(baseURL, merchantKey, callbackURL string, timeoutMs int, logger *slog.Logger) *OxapayClient {
	timeout := defaultTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs) * time.Millisecond
	}
	return &OxapayClient{
		baseURL:     baseURL,
		merchantKey: merchantKey,
		callbackURL: callbackURL,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// IsConfigured reports whether a merchant key is present.
func (c *OxapayClient) IsConfigured() bool {
	return c.merchantKey != ""
}

// VerifyHMAC checks the webhook signature: HMAC-SHA-512 of the exact raw
// body with the merchant key, constant-time compare.
func (c *OxapayClient) VerifyHMAC(rawBody []byte, header string) bool {
	if !c.IsConfigured() || header == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(c.merchantKey))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

// StaticAddress is the provider's response to a static address request.
type StaticAddress struct {
	TrackID string `json:"trackId"`
	Address string `json:"address"`
	Network string `json:"network"`
	QRCode  string `json:"QRCode,omitempty"`
}

// StaticAddressRequest asks for a fixed deposit address.
type StaticAddressRequest struct {
	Currency    string `json:"currency"`
	Network     string `json:"network"`
	CallbackURL string `json:"callbackUrl,omitempty"`
	OrderID     string `json:"orderId,omitempty"`
	Description string `json:"description,omitempty"`
}

// CreateStaticAddress requests a fixed deposit address for a user.
func (c *OxapayClient) CreateStaticAddress(ctx context.Context, req StaticAddressRequest) (*StaticAddress, error) {
	if req.CallbackURL == "" {
		req.CallbackURL = c.callbackURL
	}
	var out StaticAddress
	if err := c.post(ctx, "/merchants/request/staticaddress", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Invoice is the provider's response to an invoice request.
type Invoice struct {
	TrackID string `json:"trackId"`
	PayLink string `json:"payLink"`
}

// InvoiceRequest asks for a one-off payment page.
type InvoiceRequest struct {
	Amount      string `json:"amount"`
	Currency    string `json:"currency,omitempty"`
	CallbackURL string `json:"callbackUrl,omitempty"`
	OrderID     string `json:"orderId,omitempty"`
	Description string `json:"description,omitempty"`
	LifeTime    int    `json:"lifeTime,omitempty"`
}

// CreateInvoice requests a one-off payment invoice.
func (c *OxapayClient) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	if req.CallbackURL == "" {
		req.CallbackURL = c.callbackURL
	}
	var out Invoice
	if err := c.post(ctx, "/merchants/request", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrencyNetwork is one network entry in the accepted-currency response.
type CurrencyNetwork struct {
	Network     string `json:"network"`
	MinDeposit  string `json:"minDeposit,omitempty"`
	MinWithdraw string `json:"minWithdraw,omitempty"`
	MaxWithdraw string `json:"maxWithdraw,omitempty"`
	WithdrawFee string `json:"withdrawFee,omitempty"`
}

// AcceptedCurrency is one entry in the accepted-currency response.
type AcceptedCurrency struct {
	Symbol   string            `json:"symbol"`
	Name     string            `json:"name"`
	Networks []CurrencyNetwork `json:"networkList"`
}

// GetAcceptedCurrencies fetches the currency catalog.
func (c *OxapayClient) GetAcceptedCurrencies(ctx context.Context) ([]AcceptedCurrency, error) {
	var out struct {
		Currencies []AcceptedCurrency `json:"data"`
	}
	if err := c.post(ctx, "/merchants/allowedcoins", struct{}{}, &out); err != nil {
		return nil, err
	}
	return out.Currencies, nil
}

// Transfer is one paid transfer inside a webhook event.
type Transfer struct {
	TxID     string `json:"txID"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
	Network  string `json:"network"`
}

// WebhookEvent is a parsed provider callback. Single-transfer callbacks put
// the fields at the top level; Transfers normalizes both shapes.
type WebhookEvent struct {
	TrackID  string     `json:"trackId"`
	OrderID  string     `json:"orderId,omitempty"`
	Status   string     `json:"status"`
	Type     string     `json:"type"`
	TxID     string     `json:"txID"`
	Amount   string     `json:"amount"`
	Currency string     `json:"currency"`
	Network  string     `json:"network"`
	Txs      []Transfer `json:"txs,omitempty"`
}

// Paid reports whether the event credits funds.
func (e *WebhookEvent) Paid() bool {
	return e.Status == "Paid" || e.Status == "paid"
}

// Transfers returns the event's transfers, synthesizing one from the
// top-level fields when the batch list is absent.
func (e *WebhookEvent) Transfers() []Transfer {
	if len(e.Txs) > 0 {
		return e.Txs
	}
	if e.TxID == "" {
		return nil
	}
	return []Transfer{{TxID: e.TxID, Amount: e.Amount, Currency: e.Currency, Network: e.Network}}
}

// ParseWebhook decodes a raw callback body.
func ParseWebhook(rawBody []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("parse webhook: %w", err)
	}
	return &event, nil
}

func (c *OxapayClient) post(ctx context.Context, path string, body, out any) error {
	// Every call carries the merchant key alongside the request fields.
	inner, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	merged := map[string]any{"merchant": c.merchantKey}
	if err := json.Unmarshal(inner, &merged); err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	payload, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("provider error %s (status %d): %s", path, resp.StatusCode, string(raw))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
