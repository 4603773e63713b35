// Package promo implements single-use-per-user code redemption folded into
// a wallet mutation.
package promo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/lock"
	"github.com/rollhaus/casino/internal/repository"
	"github.com/rollhaus/casino/internal/wallet"
)

// Service redeems promo codes.
type Service struct {
	pool   *pgxpool.Pool
	locks  *lock.Manager
	promos repository.PromoRepository
	wallet *wallet.Service
	outbox repository.OutboxRepository
}

// NewService creates the promo service.
func NewService(
	pool *pgxpool.Pool,
	locks *lock.Manager,
	promos repository.PromoRepository,
	walletSvc *wallet.Service,
	outbox repository.OutboxRepository,
) *Service {
	return &Service{pool: pool, locks: locks, promos: promos, wallet: walletSvc, outbox: outbox}
}

// RedeemResult is the redeem response payload.
type RedeemResult struct {
	Code       string            `json:"code"`
	RewardType domain.RewardType `json:"rewardType"`
	Amount     int64             `json:"amount"`
	Balance    *wallet.Result    `json:"balance"`
}

// Redeem credits the promo reward once per user. Lock order: the wallet
// lease first, then the promo row lock inside the transaction.
func (s *Service) Redeem(ctx context.Context, userID uuid.UUID, code string, requestID *string) (*RedeemResult, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, domain.ErrValidation("promo code is required")
	}

	var result *RedeemResult
	err := s.locks.WithLock(ctx, lock.WalletKey(userID), func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		promo, err := s.promos.LockByCode(ctx, tx, code)
		if err != nil {
			return err
		}
		if promo == nil || !promo.Active {
			return domain.ErrNotFound("promo", code)
		}

		now := time.Now().UTC()
		if promo.StartsAt != nil && now.Before(*promo.StartsAt) {
			return domain.ErrConflict("promo is not active yet")
		}
		if promo.ExpiresAt != nil && now.After(*promo.ExpiresAt) {
			return domain.ErrConflict("promo has expired")
		}
		// The duplicate check runs before the cap check: a user who already
		// redeemed keeps getting "already redeemed" even once the code is
		// exhausted.
		already, err := s.promos.HasRedemption(ctx, tx, promo.ID, userID)
		if err != nil {
			return err
		}
		if already {
			return domain.ErrConflict("already redeemed")
		}
		if promo.CurrentRedemptions >= promo.MaxRedemptions {
			return domain.ErrForbidden("limit reached")
		}

		inserted, err := s.promos.InsertRedemption(ctx, tx, &domain.PromoRedemption{
			ID:          uuid.New(),
			PromoCodeID: promo.ID,
			UserID:      userID,
			Amount:      promo.RewardAmount,
			RequestID:   requestID,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return domain.ErrConflict("already redeemed")
		}
		if err := s.promos.IncrementRedemptions(ctx, tx, promo.ID); err != nil {
			return err
		}

		mutation := wallet.Mutation{
			UserID:     userID,
			LedgerType: domain.LedgerPromo,
			Metadata:   map[string]any{"code": promo.Code, "promoId": promo.ID},
		}
		if promo.RewardType == domain.RewardBonus {
			mutation.DeltaBonus = promo.RewardAmount
		} else {
			mutation.DeltaMain = promo.RewardAmount
		}
		balance, err := s.wallet.ApplyInTx(ctx, tx, mutation)
		if err != nil {
			return err
		}

		event := domain.NewUserEvent(domain.EventPromoRedeemed, domain.AggregatePromo, promo.ID.String(),
			balance.StateVersion, userID, map[string]any{
				"code":       promo.Code,
				"rewardType": promo.RewardType,
				"amount":     promo.RewardAmount,
			})
		if err := s.outbox.Insert(ctx, tx, event); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit redeem: %w", err)
		}

		result = &RedeemResult{
			Code:       promo.Code,
			RewardType: promo.RewardType,
			Amount:     promo.RewardAmount,
			Balance:    balance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
