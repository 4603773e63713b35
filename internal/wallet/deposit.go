package wallet

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/guard"
	"github.com/rollhaus/casino/internal/money"
	"github.com/rollhaus/casino/internal/provider"
	"github.com/rollhaus/casino/internal/repository"
)

const catalogRefreshInterval = 10 * time.Minute

// DepositService serves deposit methods and static addresses through the
// crypto provider, behind a circuit breaker.
type DepositService struct {
	pool     *pgxpool.Pool
	payments *repository.PaymentRepository
	oxapay   *provider.OxapayClient
	breaker  *guard.CircuitBreaker
	logger   *slog.Logger

	lastCatalogSync time.Time
}

// NewDepositService creates the deposit surface.
func NewDepositService(pool *pgxpool.Pool, payments *repository.PaymentRepository, oxapay *provider.OxapayClient, breaker *guard.CircuitBreaker, logger *slog.Logger) *DepositService {
	return &DepositService{pool: pool, payments: payments, oxapay: oxapay, breaker: breaker, logger: logger}
}

// Methods returns the accepted currencies, refreshing the cached catalog
// from the provider when stale. A provider outage serves the cache.
func (s *DepositService) Methods(ctx context.Context) ([]domain.Currency, error) {
	if s.oxapay.IsConfigured() && time.Since(s.lastCatalogSync) > catalogRefreshInterval {
		s.refreshCatalog(ctx)
	}
	currencies, err := s.payments.ListCurrencies(ctx, s.pool)
	if err != nil {
		return nil, err
	}
	if len(currencies) == 0 {
		return nil, domain.ErrConflict("deposits are temporarily unavailable")
	}
	return currencies, nil
}

func (s *DepositService) refreshCatalog(ctx context.Context) {
	err := s.breaker.Do("oxapay:currencies", func() error {
		accepted, err := s.oxapay.GetAcceptedCurrencies(ctx)
		if err != nil {
			return err
		}
		currencies := make([]domain.Currency, 0, len(accepted))
		for _, a := range accepted {
			c := domain.Currency{Symbol: a.Symbol, Name: a.Name}
			for _, n := range a.Networks {
				c.Networks = append(c.Networks, domain.Network{
					Name:        n.Network,
					MinDeposit:  n.MinDeposit,
					MinWithdraw: n.MinWithdraw,
					MaxWithdraw: n.MaxWithdraw,
					WithdrawFee: n.WithdrawFee,
				})
			}
			currencies = append(currencies, c)
		}
		return s.payments.UpsertCurrencies(ctx, s.pool, currencies)
	})
	if err != nil {
		s.logger.Warn("currency catalog refresh failed", "error", err)
		return
	}
	s.lastCatalogSync = time.Now()
}

// Invoice requests a one-off payment page for a fixed coin amount. The
// callback credits the user via the orderId the invoice carries.
func (s *DepositService) Invoice(ctx context.Context, userID uuid.UUID, amount int64, currency string) (*provider.Invoice, error) {
	if !s.oxapay.IsConfigured() {
		return nil, domain.ErrConflict("deposits are not configured")
	}
	if amount <= 0 {
		return nil, domain.ErrValidation("invoice amount must be positive")
	}

	var invoice *provider.Invoice
	err := s.breaker.Do("oxapay:invoice", func() error {
		var perr error
		invoice, perr = s.oxapay.CreateInvoice(ctx, provider.InvoiceRequest{
			Amount:   money.Format(amount, money.Scale),
			Currency: currency,
			OrderID:  userID.String(),
		})
		return perr
	})
	if err != nil {
		s.logger.Warn("invoice request failed", "user_id", userID, "error", err)
		return nil, domain.ErrConflictRetryable("payment provider is unavailable, try again", err)
	}
	return invoice, nil
}

// StaticAddress returns the user's fixed deposit address for the
// currency/network pair, asking the provider for one on first use.
func (s *DepositService) StaticAddress(ctx context.Context, userID uuid.UUID, currency, network string) (*domain.StaticAddress, error) {
	if !s.oxapay.IsConfigured() {
		return nil, domain.ErrConflict("deposits are not configured")
	}

	existing, err := s.payments.FindStaticAddress(ctx, s.pool, userID, currency, network)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	var created *provider.StaticAddress
	err = s.breaker.Do("oxapay:staticaddress", func() error {
		var perr error
		created, perr = s.oxapay.CreateStaticAddress(ctx, provider.StaticAddressRequest{
			Currency: currency,
			Network:  network,
			OrderID:  userID.String(),
		})
		return perr
	})
	if err != nil {
		s.logger.Warn("static address request failed", "user_id", userID, "error", err)
		return nil, domain.ErrConflictRetryable("payment provider is unavailable, try again", err)
	}

	addr := &domain.StaticAddress{
		ID:       uuid.New(),
		UserID:   userID,
		TrackID:  created.TrackID,
		Currency: currency,
		Network:  network,
		Address:  created.Address,
	}
	if err := s.payments.InsertStaticAddress(ctx, s.pool, addr); err != nil {
		return nil, err
	}
	return addr, nil
}
