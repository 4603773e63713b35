// Package app assembles the application: repositories, services, game
// engines, the event pipeline and the gateway, wired explicitly so tests can
// substitute fakes at any seam.
package app

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rollhaus/casino/internal/affiliate"
	"github.com/rollhaus/casino/internal/auth"
	"github.com/rollhaus/casino/internal/bonus"
	"github.com/rollhaus/casino/internal/chat"
	"github.com/rollhaus/casino/internal/games"
	"github.com/rollhaus/casino/internal/gateway"
	"github.com/rollhaus/casino/internal/guard"
	"github.com/rollhaus/casino/internal/infra"
	"github.com/rollhaus/casino/internal/lock"
	"github.com/rollhaus/casino/internal/outbox"
	"github.com/rollhaus/casino/internal/promo"
	"github.com/rollhaus/casino/internal/provider"
	"github.com/rollhaus/casino/internal/repository"
	"github.com/rollhaus/casino/internal/settings"
	"github.com/rollhaus/casino/internal/wallet"
)

// App is the fully wired application.
type App struct {
	Config  *infra.Config
	Pool    *pgxpool.Pool
	Bus     *outbox.Bus
	Tailer  *outbox.Tailer
	Gateway *gateway.Gateway
	Metrics *infra.Metrics

	dice     *games.Dice
	crash    *games.Crash
	wheel    *games.Wheel
	jackpot  *games.Jackpot
	battle   *games.Battle
	producer *infra.KafkaProducer
}

// Build wires every component. Nothing starts running until Start.
func Build(ctx context.Context, cfg *infra.Config, pool *pgxpool.Pool, logger *slog.Logger) (*App, error) {
	metrics := infra.NewMetrics()

	// Repositories
	users := repository.NewUserRepository()
	ledger := repository.NewLedgerRepository()
	outboxRepo := repository.NewOutboxRepository()
	requests := repository.NewRequestRepository()
	sessions := repository.NewSessionRepository()
	promos := repository.NewPromoRepository()
	payments := repository.NewPaymentRepository()
	rounds := repository.NewRoundsRepository()
	social := repository.NewSocialRepository()
	earnings := repository.NewAffiliateRepository()

	// Concurrency substrate
	locks := lock.NewManager(pool, cfg.LockWaitMs, cfg.LockTTLMs)
	bus := outbox.NewBus(cfg.OutboxDedupeWindow, logger)
	producer := infra.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaEnabled, logger)
	tailer := outbox.NewTailer(pool, outboxRepo, requests, bus, producer,
		cfg.OutboxPollMs, cfg.OutboxReplay, logger)

	// Core services
	settingsCache := settings.NewCache(pool)
	walletSvc := wallet.NewService(pool, locks, users, ledger, outboxRepo, logger)
	tokens := auth.NewTokenManager(cfg.JWTAccessSecret, cfg.JWTRefreshSecret,
		cfg.AccessTTLSec, cfg.RefreshTTLSec)
	authSvc := auth.NewService(pool, users, sessions, outboxRepo, tokens, settingsCache, logger)
	promoSvc := promo.NewService(pool, locks, promos, walletSvc, outboxRepo)
	affiliateSvc := affiliate.NewService(pool, users, earnings, walletSvc, logger)
	chatSvc := chat.NewService(pool, social, outboxRepo, settingsCache)
	bonusSvc := bonus.NewService(pool, social, walletSvc)

	// Payment provider surface
	oxapay := provider.NewOxapayClient(cfg.OxapayBaseURL, cfg.OxapayMerchantKey,
		cfg.OxapayCallbackURL, cfg.ProviderTimeoutMs, logger)
	breaker := guard.NewCircuitBreaker(5, 30*time.Second)
	deposits := wallet.NewDepositService(pool, payments, oxapay, breaker, logger)
	withdraws := wallet.NewWithdrawService(walletSvc, payments, settingsCache)
	webhooks := wallet.NewWebhookService(walletSvc, payments, oxapay, logger)

	// Game engines
	gameDeps := &games.Deps{
		Pool:      pool,
		Locks:     locks,
		Wallet:    walletSvc,
		Rounds:    rounds,
		Outbox:    outboxRepo,
		Settings:  settingsCache,
		Affiliate: affiliateSvc,
		Logger:    logger,
	}
	dice := games.NewDice(gameDeps)
	crash := games.NewCrash(gameDeps)
	wheel := games.NewWheel(gameDeps)
	jackpot := games.NewJackpot(gameDeps, settingsCache.Rooms(ctx))
	coinflip := games.NewCoinflip(gameDeps)
	battle := games.NewBattle(gameDeps)

	gw := gateway.New(gateway.Deps{
		Pool:      pool,
		Requests:  requests,
		Rounds:    rounds,
		Promos:    promos,
		Auth:      authSvc,
		Wallet:    walletSvc,
		Deposits:  deposits,
		Withdraws: withdraws,
		Webhooks:  webhooks,
		Promo:     promoSvc,
		Bonus:     bonusSvc,
		Chat:      chatSvc,
		Affiliate: affiliateSvc,
		Settings:  settingsCache,
		Dice:      dice,
		Crash:     crash,
		Wheel:     wheel,
		Jackpot:   jackpot,
		Coinflip:  coinflip,
		Battle:    battle,
		Metrics:   metrics,
		Logger:    logger,
	}, strings.Split(cfg.CORSAllowedOrigins, ","))

	// Committed events reach the sockets through the bus.
	bus.Subscribe(gw.Hub().BroadcastEvent)

	return &App{
		Config:   cfg,
		Pool:     pool,
		Bus:      bus,
		Tailer:   tailer,
		Gateway:  gw,
		Metrics:  metrics,
		dice:     dice,
		crash:    crash,
		wheel:    wheel,
		jackpot:  jackpot,
		battle:   battle,
		producer: producer,
	}, nil
}

// Start launches the tailer and the timer-driven game loops. They all stop
// when ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	if err := a.Tailer.Start(ctx); err != nil {
		return err
	}
	a.Gateway.Start(ctx)
	a.crash.Start(ctx)
	a.wheel.Start(ctx)
	a.jackpot.Start(ctx)
	a.battle.Start(ctx)
	return nil
}

// Handler returns the HTTP surface (WS endpoint included).
func (a *App) Handler() http.Handler {
	return a.Gateway.HTTPHandler(a.Config.WSPath)
}

// Close releases external resources.
func (a *App) Close() {
	if a.producer != nil {
		a.producer.Close()
	}
}
