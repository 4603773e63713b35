// Package settings serves admin-tunable runtime parameters from the
// settings and rooms tables through a short-TTL cache. Orchestrators and
// handlers read on every decision; a saved change is visible within 5s.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rollhaus/casino/internal/domain"
)

const cacheTTL = 5 * time.Second

// globalKey is the settings row carrying the Settings document.
const globalKey = "global"

// Settings is the flat list of operator-tunable game parameters. Amounts are
// coins; they are converted to atomics at the validation edge.
type Settings struct {
	DiceMinBet float64 `json:"diceMinBet"`
	DiceMaxBet float64 `json:"diceMaxBet"`

	CrashMinBet     float64 `json:"crashMinBet"`
	CrashMaxBet     float64 `json:"crashMaxBet"`
	CrashBettingSec int     `json:"crashBettingSec"`

	WheelMinBet     float64 `json:"wheelMinBet"`
	WheelMaxBet     float64 `json:"wheelMaxBet"`
	WheelBettingSec int     `json:"wheelBettingSec"`

	JackpotCommissionPct float64 `json:"jackpotCommissionPct"`

	BattleMinBet        float64 `json:"battleMinBet"`
	BattleMaxBet        float64 `json:"battleMaxBet"`
	BattleCountdownSec  int     `json:"battleCountdownSec"`
	BattleCommissionPct float64 `json:"battleCommissionPct"`

	CoinflipMinBet        float64 `json:"coinflipMinBet"`
	CoinflipMaxBet        float64 `json:"coinflipMaxBet"`
	CoinflipCommissionPct float64 `json:"coinflipCommissionPct"`

	ReferralBonus float64 `json:"referralBonus"`

	MinDepositBeforeWithdraw float64 `json:"minDepositBeforeWithdraw"`
	ProfitCoefficient        float64 `json:"profitCoefficient"`

	ChatMaxLen int `json:"chatMaxLen"`

	SiteName        string `json:"siteName"`
	SiteDescription string `json:"siteDescription"`
}

// Defaults returns the settings used before an operator saves anything.
func Defaults() Settings {
	return Settings{
		DiceMinBet: 0.1, DiceMaxBet: 1000,
		CrashMinBet: 0.1, CrashMaxBet: 1000, CrashBettingSec: 10,
		WheelMinBet: 0.1, WheelMaxBet: 1000, WheelBettingSec: 15,
		JackpotCommissionPct: 10,
		BattleMinBet:         0.1, BattleMaxBet: 1000, BattleCountdownSec: 20, BattleCommissionPct: 5,
		CoinflipMinBet: 0.1, CoinflipMaxBet: 1000, CoinflipCommissionPct: 5,
		ReferralBonus:            1,
		MinDepositBeforeWithdraw: 10,
		ProfitCoefficient:        1.5,
		ChatMaxLen:               500,
		SiteName:                 "Rollhaus",
		SiteDescription:          "Realtime casino",
	}
}

// Room is a jackpot room configuration row.
type Room struct {
	Name           string  `json:"name"`
	TimerSec       int     `json:"timerSec"`
	MinBet         float64 `json:"minBet"`
	MaxBet         float64 `json:"maxBet"`
	MaxBetsPerUser int     `json:"maxBetsPerUser"`
}

// DefaultRooms are the three jackpot rooms seeded on first boot.
func DefaultRooms() []Room {
	return []Room{
		{Name: "easy", TimerSec: 30, MinBet: 0.1, MaxBet: 10, MaxBetsPerUser: 3},
		{Name: "medium", TimerSec: 30, MinBet: 1, MaxBet: 100, MaxBetsPerUser: 3},
		{Name: "hard", TimerSec: 30, MinBet: 10, MaxBet: 1000, MaxBetsPerUser: 3},
	}
}

// Cache reads settings and rooms with a 5s TTL.
type Cache struct {
	pool *pgxpool.Pool

	mu        sync.RWMutex
	settings  Settings
	rooms     map[string]Room
	fetchedAt time.Time
}

// NewCache creates a settings cache over the pool.
func NewCache(pool *pgxpool.Pool) *Cache {
	return &Cache{pool: pool, settings: Defaults(), rooms: roomMap(DefaultRooms())}
}

func roomMap(rooms []Room) map[string]Room {
	m := make(map[string]Room, len(rooms))
	for _, r := range rooms {
		m[r.Name] = r
	}
	return m
}

// Get returns the current settings, refreshing from the database when the
// cache is older than the TTL. A failed refresh serves the last good copy.
func (c *Cache) Get(ctx context.Context) Settings {
	c.refreshIfStale(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// Room returns a jackpot room config, false when the room does not exist.
func (c *Cache) Room(ctx context.Context, name string) (Room, bool) {
	c.refreshIfStale(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.rooms[name]
	return r, ok
}

// Rooms returns all jackpot room configs.
func (c *Cache) Rooms(ctx context.Context) []Room {
	c.refreshIfStale(ctx)
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		out = append(out, r)
	}
	return out
}

func (c *Cache) refreshIfStale(ctx context.Context) {
	c.mu.RLock()
	stale := time.Since(c.fetchedAt) > cacheTTL
	c.mu.RUnlock()
	if !stale {
		return
	}

	settings, rooms, err := c.load(ctx)
	if err != nil {
		// Serve the last good copy; push the next retry a TTL out so a
		// down database does not hammer itself.
		c.mu.Lock()
		c.fetchedAt = time.Now()
		c.mu.Unlock()
		return
	}

	c.mu.Lock()
	c.settings = settings
	if len(rooms) > 0 {
		c.rooms = roomMap(rooms)
	}
	c.fetchedAt = time.Now()
	c.mu.Unlock()
}

func (c *Cache) load(ctx context.Context) (Settings, []Room, error) {
	settings := Defaults()

	var raw json.RawMessage
	err := c.pool.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, globalKey).Scan(&raw)
	if err != nil && err != pgx.ErrNoRows {
		return settings, nil, fmt.Errorf("load settings: %w", err)
	}
	if err == nil {
		if uerr := json.Unmarshal(raw, &settings); uerr != nil {
			return settings, nil, fmt.Errorf("decode settings: %w", uerr)
		}
	}

	rows, err := c.pool.Query(ctx, `
		SELECT name, timer_sec, min_bet, max_bet, max_bets_per_user FROM rooms`)
	if err != nil {
		return settings, nil, fmt.Errorf("load rooms: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.Name, &r.TimerSec, &r.MinBet, &r.MaxBet, &r.MaxBetsPerUser); err != nil {
			return settings, nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return settings, rooms, rows.Err()
}

// Save overwrites the settings document and invalidates the cache. Admin
// surface only.
func (c *Cache) Save(ctx context.Context, s Settings) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return domain.ErrValidation("settings are not serializable")
	}
	_, err = c.pool.Exec(ctx, `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		globalKey, raw)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}

	c.mu.Lock()
	c.settings = s
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}

// SaveRoom upserts one jackpot room config and invalidates the cache.
func (c *Cache) SaveRoom(ctx context.Context, r Room) error {
	if r.Name == "" {
		return domain.ErrValidation("room name is required")
	}
	_, err := c.pool.Exec(ctx, `
		INSERT INTO rooms (name, timer_sec, min_bet, max_bet, max_bets_per_user)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE SET
		  timer_sec = EXCLUDED.timer_sec,
		  min_bet = EXCLUDED.min_bet,
		  max_bet = EXCLUDED.max_bet,
		  max_bets_per_user = EXCLUDED.max_bets_per_user,
		  updated_at = now()`,
		r.Name, r.TimerSec, r.MinBet, r.MaxBet, r.MaxBetsPerUser)
	if err != nil {
		return fmt.Errorf("save room: %w", err)
	}

	c.mu.Lock()
	c.rooms[r.Name] = r
	c.fetchedAt = time.Now()
	c.mu.Unlock()
	return nil
}
