//go:build integration

package testutil

import (
	"context"
	"time"
)

// CleanAll truncates mutable tables. Operator config (settings, rooms) is
// left alone: the migration seeds it and tests treat it as read-mostly.
func (env *TestEnv) CleanAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tables := []string{
		"affiliate_earnings",
		"affiliate_visits",
		"bonus_spins",
		"chat_messages",
		"coinflip_games",
		"battle_rounds",
		"jackpot_rounds",
		"wheel_rounds",
		"crash_rounds",
		"dice_games",
		"dice_nonces",
		"promo_redemptions",
		"promocodes",
		"wallet_provider_currency_catalog",
		"currency_rates",
		"wallet_deposits",
		"wallet_static_addresses",
		"wallet_ledger",
		"event_outbox",
		"request_ledger",
		"locks",
		"sessions",
		"users",
	}
	for _, table := range tables {
		_, _ = env.Pool.Exec(ctx, "TRUNCATE TABLE "+table+" CASCADE")
	}
}
