package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/lock"
	"github.com/rollhaus/casino/internal/money"
	"github.com/rollhaus/casino/internal/provider"
	"github.com/rollhaus/casino/internal/repository"
)

// WebhookService credits deposits reported by the provider. RequestIDs are
// derived from (trackId, txId) so replayed callbacks collapse onto the first
// committed credit.
type WebhookService struct {
	wallet   *Service
	payments *repository.PaymentRepository
	oxapay   *provider.OxapayClient
	logger   *slog.Logger
}

// NewWebhookService creates the webhook credit path.
func NewWebhookService(wallet *Service, payments *repository.PaymentRepository, oxapay *provider.OxapayClient, logger *slog.Logger) *WebhookService {
	return &WebhookService{wallet: wallet, payments: payments, oxapay: oxapay, logger: logger}
}

// HandleCallback verifies, parses and credits one provider callback body.
// Returns an error only for requests the provider should retry (5xx); a bad
// signature or unknown track is final.
func (s *WebhookService) HandleCallback(ctx context.Context, rawBody []byte, hmacHeader string) error {
	if !s.oxapay.VerifyHMAC(rawBody, hmacHeader) {
		return domain.ErrUnauthorized("invalid webhook signature")
	}
	event, err := provider.ParseWebhook(rawBody)
	if err != nil {
		return domain.ErrValidation("malformed webhook body")
	}
	if !event.Paid() {
		s.logger.Info("webhook ignored", "track_id", event.TrackID, "status", event.Status)
		return nil
	}

	addr, err := s.payments.FindStaticAddressByTrackID(ctx, s.wallet.pool, event.TrackID)
	if err != nil {
		return err
	}

	var userID uuid.UUID
	source := "static"
	switch {
	case addr != nil:
		userID = addr.UserID
	case event.OrderID != "":
		// Invoice callbacks carry no static address; the invoice was
		// created with the user id as its order id.
		userID, err = uuid.Parse(event.OrderID)
		if err != nil {
			s.logger.Warn("webhook with bad order id", "track_id", event.TrackID, "order_id", event.OrderID)
			return nil
		}
		source = "invoice"
	default:
		s.logger.Warn("webhook for unknown track", "track_id", event.TrackID)
		return nil
	}

	for _, transfer := range event.Transfers() {
		if err := s.creditTransfer(ctx, userID, source, event.TrackID, transfer); err != nil {
			return err
		}
	}
	return nil
}

// creditTransfer applies one transfer under the user's wallet lease.
func (s *WebhookService) creditTransfer(ctx context.Context, userID uuid.UUID, source, trackID string, transfer provider.Transfer) error {
	amount, err := money.ParseCoins(transfer.Amount)
	if err != nil || amount <= 0 {
		s.logger.Warn("webhook transfer with bad amount",
			"track_id", trackID, "tx_id", transfer.TxID, "amount", transfer.Amount)
		return nil
	}

	// The rate poller keeps coin values per currency unit; currencies
	// without a recorded rate credit 1:1.
	rate, err := s.payments.FindRate(ctx, s.wallet.pool, transfer.Currency)
	if err != nil {
		return err
	}
	if rate > 0 {
		amount = money.MulRate(amount, money.FromAtomic(rate))
	}
	if amount <= 0 {
		s.logger.Warn("webhook transfer credits nothing after conversion",
			"track_id", trackID, "tx_id", transfer.TxID, "currency", transfer.Currency)
		return nil
	}

	requestID := fmt.Sprintf("oxapay:%s:%s:%s", source, trackID, transfer.TxID)

	return s.wallet.locks.WithLock(ctx, lock.WalletKey(userID), func(ctx context.Context) error {
		tx, err := s.wallet.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		// A replayed callback finds its ledger row and changes nothing.
		existing, err := s.wallet.ledger.FindByRequestID(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}

		_, err = s.wallet.ApplyInTx(ctx, tx, Mutation{
			UserID:     userID,
			RequestID:  &requestID,
			LedgerType: domain.LedgerDeposit,
			DeltaMain:  amount,
			Metadata: map[string]any{
				"trackId":  trackID,
				"txId":     transfer.TxID,
				"currency": transfer.Currency,
				"network":  transfer.Network,
				"paid":     transfer.Amount,
			},
		})
		if err != nil {
			return err
		}

		if err := s.payments.InsertDeposit(ctx, tx, &domain.Deposit{
			ID:       uuid.New(),
			UserID:   userID,
			TrackID:  trackID,
			TxID:     transfer.TxID,
			Currency: transfer.Currency,
			Network:  transfer.Network,
			Amount:   amount,
		}); err != nil {
			return err
		}
		if err := s.wallet.users.AddDepositTotal(ctx, tx, userID, amount); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}
