// Package affiliate credits referrers a share of their referrals' wins.
// Everything here is best-effort: a failure is logged, never surfaced into
// game resolution.
package affiliate

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/money"
	"github.com/rollhaus/casino/internal/repository"
	"github.com/rollhaus/casino/internal/wallet"
)

// commissionPct is the referrer's share of a referral's win profit.
const commissionPct = 1.0

// creditTimeout bounds the post-resolution credit so a slow database never
// holds a game goroutine.
const creditTimeout = 5 * time.Second

// Service implements referral commission credits and the affiliate.* reads.
type Service struct {
	pool      *pgxpool.Pool
	users     repository.UserRepository
	earnings  *repository.AffiliateRepository
	wallet    *wallet.Service
	logger    *slog.Logger
}

// NewService creates the affiliate service.
func NewService(pool *pgxpool.Pool, users repository.UserRepository, earnings *repository.AffiliateRepository, walletSvc *wallet.Service, logger *slog.Logger) *Service {
	return &Service{pool: pool, users: users, earnings: earnings, wallet: walletSvc, logger: logger}
}

// CreditFromReferralWin pays the winner's referrer a commission on the win.
// EventKey is unique so one win credits at most once. Call it after commit,
// fire-and-forget.
func (s *Service) CreditFromReferralWin(winnerUserID uuid.UUID, winAmount int64, eventKey string) {
	if winAmount <= 0 || eventKey == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), creditTimeout)
	defer cancel()

	winner, err := s.users.FindByID(ctx, s.pool, winnerUserID)
	if err != nil || winner == nil || winner.ReferredBy == nil {
		return
	}

	commission := money.MulRate(winAmount, commissionPct/100)
	if commission <= 0 {
		return
	}

	inserted, err := s.earnings.InsertEarning(ctx, s.pool, &domain.AffiliateEarning{
		ID:              uuid.New(),
		AffiliateUserID: *winner.ReferredBy,
		SourceUserID:    winnerUserID,
		Amount:          commission,
		EventKey:        eventKey,
	})
	if err != nil {
		s.logger.Warn("affiliate earning insert failed", "event_key", eventKey, "error", err)
		return
	}
	if !inserted {
		return
	}

	requestID := "affiliate:" + eventKey
	_, err = s.wallet.Apply(ctx, wallet.Mutation{
		UserID:     *winner.ReferredBy,
		RequestID:  &requestID,
		LedgerType: domain.LedgerPromo,
		DeltaBonus: commission,
		Metadata: map[string]any{
			"source":   "affiliate",
			"eventKey": eventKey,
			"fromUser": winnerUserID,
		},
	})
	if err != nil {
		s.logger.Warn("affiliate commission credit failed", "event_key", eventKey, "error", err)
	}
}

// Stats is the affiliate.stats response payload.
type Stats struct {
	Code          string `json:"code,omitempty"`
	ReferralCount int64  `json:"referralCount"`
	Visits        int64  `json:"visits"`
	TotalEarned   int64  `json:"totalEarned"`
}

// StatsFor returns the user's referral stats.
func (s *Service) StatsFor(ctx context.Context, userID uuid.UUID) (*Stats, error) {
	user, err := s.users.FindByID(ctx, s.pool, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}

	stats := &Stats{ReferralCount: user.ReferralCount}
	if user.AffiliateCode != nil {
		stats.Code = *user.AffiliateCode
		visits, err := s.earnings.CountVisits(ctx, s.pool, *user.AffiliateCode)
		if err != nil {
			return nil, err
		}
		stats.Visits = visits
	}
	earned, err := s.earnings.SumEarnings(ctx, s.pool, userID)
	if err != nil {
		return nil, err
	}
	stats.TotalEarned = earned
	return stats, nil
}

// RecordVisit stores a referral link open. Best-effort.
func (s *Service) RecordVisit(ctx context.Context, code, referrer string) {
	if code == "" {
		return
	}
	err := s.earnings.InsertVisit(ctx, s.pool, &domain.AffiliateVisit{
		ID:       uuid.New(),
		Code:     code,
		Referrer: referrer,
	})
	if err != nil {
		s.logger.Warn("affiliate visit insert failed", "code", code, "error", err)
	}
}
