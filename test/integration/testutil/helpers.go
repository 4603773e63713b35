//go:build integration

package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/money"
)

// Tokens is the auth token pair as seen on the wire.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	SessionID    string `json:"sessionId"`
	ExpiresInSec int    `json:"expiresInSec"`
}

// User is the public user view as seen on the wire.
type User struct {
	ID           string  `json:"id"`
	Username     string  `json:"username"`
	BalanceMain  float64 `json:"balanceMain"`
	BalanceBonus float64 `json:"balanceBonus"`
	StateVersion int64   `json:"stateVersion"`
}

// Register creates a user over the socket and returns the wire view plus the
// opened session's tokens.
func (c *Client) Register(username string) (User, Tokens) {
	c.t.Helper()
	env := c.CallOK("auth.register", "", map[string]any{
		"username": username,
		"password": "password123",
	})
	var out struct {
		User   User   `json:"user"`
		Tokens Tokens `json:"tokens"`
	}
	env.Bind(c.t, &out)
	return out.User, out.Tokens
}

// Balances is the wallet snapshot as seen on the wire (atomics).
type Balances struct {
	Main         int64 `json:"main"`
	Bonus        int64 `json:"bonus"`
	StateVersion int64 `json:"stateVersion"`
}

// Balance fetches the wallet snapshot for the token's user.
func (c *Client) Balance(token string) Balances {
	c.t.Helper()
	env := c.CallOK("wallet.balance.get", token, json.RawMessage(`{}`))
	var b Balances
	env.Bind(c.t, &b)
	return b
}

// Credit adds atomics to a user's main balance directly, for funding test
// accounts past the registration grant.
func (env *TestEnv) Credit(userID string, atomics int64) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := env.Pool.Exec(ctx,
		`UPDATE users
		 SET balance_main = balance_main + $1::numeric / 1000000,
		     state_version = state_version + 1
		 WHERE id = $2`, atomics, userID)
	if err != nil {
		env.t.Fatalf("credit user %s: %v", userID, err)
	}
}

// MakeAdmin grants the admin role directly.
func (env *TestEnv) MakeAdmin(userID string) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := env.Pool.Exec(ctx,
		`UPDATE users SET roles = array_append(roles, 'admin') WHERE id = $1`, userID)
	if err != nil {
		env.t.Fatalf("make admin %s: %v", userID, err)
	}
}

// SeedCurrency inserts a provider currency with one unrestricted network.
func (env *TestEnv) SeedCurrency(symbol, network string) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	networks := fmt.Sprintf(`[{"name":%q}]`, network)
	_, err := env.Pool.Exec(ctx,
		`INSERT INTO wallet_provider_currency_catalog (symbol, name, networks)
		 VALUES ($1, $1, $2::jsonb)
		 ON CONFLICT (symbol) DO UPDATE SET networks = EXCLUDED.networks`,
		symbol, networks)
	if err != nil {
		env.t.Fatalf("seed currency %s: %v", symbol, err)
	}
}

// InsertOutboxEvent appends a raw outbox row with an explicit id, for
// exercising delivery-order edge cases.
func (env *TestEnv) InsertOutboxEvent(seq int64, eventID, eventType, aggregateType string) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := env.Pool.Exec(ctx,
		`INSERT INTO event_outbox (id, event_id, type, aggregate_type, aggregate_id, version, payload)
		 VALUES ($1, $2, $3, $4, $2, 1, '{}')`,
		seq, eventID, eventType, aggregateType)
	if err != nil {
		env.t.Fatalf("insert outbox event %s: %v", eventID, err)
	}
}

// SeedRate stores a provider currency rate in coins per currency unit.
func (env *TestEnv) SeedRate(symbol string, rate float64) {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := env.Pool.Exec(ctx,
		`INSERT INTO currency_rates (symbol, rate) VALUES ($1, $2)
		 ON CONFLICT (symbol) DO UPDATE SET rate = EXCLUDED.rate, updated_at = now()`,
		symbol, rate)
	if err != nil {
		env.t.Fatalf("seed rate %s: %v", symbol, err)
	}
}

// LedgerCount returns the user's wallet ledger row count.
func (env *TestEnv) LedgerCount(userID string) int {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var n int
	err := env.Pool.QueryRow(ctx,
		`SELECT count(*) FROM wallet_ledger WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		env.t.Fatalf("count ledger for %s: %v", userID, err)
	}
	return n
}

// DBBalance reads the stored main balance in atomics, bypassing the API.
func (env *TestEnv) DBBalance(userID string) int64 {
	env.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var atomics int64
	err := env.Pool.QueryRow(ctx,
		`SELECT (balance_main * 1000000)::bigint FROM users WHERE id = $1`, userID).Scan(&atomics)
	if err != nil {
		env.t.Fatalf("read balance for %s: %v", userID, err)
	}
	return atomics
}

// Coins converts whole coins to atomics for assertions.
func Coins(n int64) int64 { return n * money.AtomicsPerCoin }

// AssertBalance compares the stored main balance against want atomics.
func AssertBalance(t *testing.T, env *TestEnv, userID string, want int64) {
	t.Helper()
	got := env.DBBalance(userID)
	if got != want {
		t.Fatalf("balance mismatch for %s: got %d atomics, want %d", userID, got, want)
	}
}

// NewRequestID returns a fresh idempotency key.
func NewRequestID() string { return uuid.NewString() }
