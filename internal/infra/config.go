package infra

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"casino"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"casino"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"casino"`

	// Server
	Port   int    `env:"PORT" envDefault:"3200"`
	WSPath string `env:"WS_PATH" envDefault:"/ws"`

	// JWT
	JWTAccessSecret  string `env:"JWT_ACCESS_SECRET" envDefault:"change-me-in-production"`
	JWTRefreshSecret string `env:"JWT_REFRESH_SECRET" envDefault:"change-me-in-production"`
	AccessTTLSec     int    `env:"JWT_ACCESS_TTL_SEC" envDefault:"900"`
	RefreshTTLSec    int    `env:"JWT_REFRESH_TTL_SEC" envDefault:"1209600"`

	// Locks
	LockTTLMs  int `env:"LOCK_TTL_MS" envDefault:"10000"`
	LockWaitMs int `env:"LOCK_WAIT_MS" envDefault:"8000"`

	// Outbox
	OutboxDedupeWindow int `env:"OUTBOX_DEDUPE_WINDOW" envDefault:"10000"`
	OutboxReplay       int `env:"OUTBOX_REPLAY" envDefault:"100"`
	OutboxPollMs       int `env:"OUTBOX_POLL_MS" envDefault:"100"`

	// Crypto payment provider
	OxapayBaseURL     string `env:"OXAPAY_BASE_URL" envDefault:"https://api.oxapay.com"`
	OxapayMerchantKey string `env:"OXAPAY_MERCHANT_KEY"`
	OxapayCallbackURL string `env:"OXAPAY_CALLBACK_URL"`
	ProviderTimeoutMs int    `env:"PROVIDER_TIMEOUT_MS" envDefault:"15000"`

	// Kafka mirror of outbox events
	KafkaBrokers string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled bool   `env:"KAFKA_ENABLED" envDefault:"false"`

	// Misc
	DefaultCurrency       string `env:"DEFAULT_CURRENCY" envDefault:"USDT"`
	CORSAllowedOrigins    string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	AllowInsecureDefaults bool   `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure configuration that must not run in production.
// Set ALLOW_INSECURE_DEFAULTS=true to bypass (local dev only).
func (c *Config) Validate() error {
	if c.AllowInsecureDefaults {
		return nil
	}
	for name, secret := range map[string]string{
		"JWT_ACCESS_SECRET":  c.JWTAccessSecret,
		"JWT_REFRESH_SECRET": c.JWTRefreshSecret,
	} {
		if secret == "change-me-in-production" {
			return fmt.Errorf("%s is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev", name)
		}
		if len(secret) < 32 {
			return fmt.Errorf("%s is too short (%d chars); minimum 32 characters required", name, len(secret))
		}
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
