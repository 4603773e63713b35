//go:build integration

// Package testutil bootstraps a full application instance against a local
// test database and drives it over real WebSocket connections.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rollhaus/casino/internal/app"
	"github.com/rollhaus/casino/internal/infra"
)

const (
	TestDBHost = "localhost"
	TestDBPort = 5433
	TestDBUser = "casino"
	TestDBPass = "casino"
	TestDBName = "casino_test"

	TestAccessSecret  = "integration-test-access-secret-0123456789"
	TestRefreshSecret = "integration-test-refresh-secret-0123456789"
	TestMerchantKey   = "integration-test-merchant-key"
)

// TestEnv holds the shared resources for one integration test.
type TestEnv struct {
	Server *httptest.Server
	Pool   *pgxpool.Pool
	App    *app.App
	WSPath string
	t      *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBUser)
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}
	if !exists {
		if _, err := bPool.Exec(ctx, "CREATE DATABASE "+TestDBName); err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}
	return nil
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		if err := infra.RunMigrations(testDSN(), logger); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
		}
	})
	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

func testConfig() *infra.Config {
	return &infra.Config{
		DatabaseURL:        testDSN(),
		WSPath:             "/ws",
		JWTAccessSecret:    TestAccessSecret,
		JWTRefreshSecret:   TestRefreshSecret,
		AccessTTLSec:       900,
		RefreshTTLSec:      86400,
		LockTTLMs:          5000,
		LockWaitMs:         3000,
		OutboxDedupeWindow: 10000,
		OutboxReplay:       100,
		OutboxPollMs:       25,
		KafkaEnabled:       false,
		OxapayMerchantKey:  TestMerchantKey,
		DefaultCurrency:    "USDT",
		CORSAllowedOrigins: "*",
	}
}

// NewTestEnv wires the full application over the shared test database and
// serves it from an httptest server. Tables are truncated up front so tests
// stay isolated.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	cfg := testConfig()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	ctx, cancel := context.WithCancel(context.Background())

	application, err := app.Build(ctx, cfg, pool, logger)
	if err != nil {
		cancel()
		t.Fatalf("build app: %v", err)
	}

	env := &TestEnv{
		Pool:   pool,
		App:    application,
		WSPath: cfg.WSPath,
		t:      t,
	}
	env.CleanAll()

	if err := application.Start(ctx); err != nil {
		cancel()
		t.Fatalf("start app: %v", err)
	}

	env.Server = httptest.NewServer(application.Handler())

	t.Cleanup(func() {
		env.Server.Close()
		cancel()
		application.Close()
		env.CleanAll()
	})

	return env
}
