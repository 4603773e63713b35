// Package bonus implements the daily bonus wheel. Prize selection is a
// weighted draw; the win is credited to the bonus balance through the
// wallet kernel.
package bonus

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/money"
	"github.com/rollhaus/casino/internal/repository"
	"github.com/rollhaus/casino/internal/wallet"
)

// spinCooldown is the minimum spacing between a user's spins.
const spinCooldown = 24 * time.Hour

// Prize is one bonus wheel sector.
type Prize struct {
	Name   string  `json:"name"`
	Coins  float64 `json:"coins"`
	Weight int     `json:"weight"`
}

// DefaultWheel is the stock sector layout.
func DefaultWheel() []Prize {
	return []Prize{
		{Name: "0.1", Coins: 0.1, Weight: 40},
		{Name: "0.25", Coins: 0.25, Weight: 25},
		{Name: "0.5", Coins: 0.5, Weight: 15},
		{Name: "1", Coins: 1, Weight: 10},
		{Name: "2", Coins: 2, Weight: 6},
		{Name: "5", Coins: 5, Weight: 3},
		{Name: "10", Coins: 10, Weight: 1},
	}
}

// Service implements bonus.getWheel and bonus.spin.
type Service struct {
	pool   *pgxpool.Pool
	social *repository.SocialRepository
	wallet *wallet.Service
	prizes []Prize
}

// NewService creates the bonus wheel service.
func NewService(pool *pgxpool.Pool, social *repository.SocialRepository, walletSvc *wallet.Service) *Service {
	return &Service{pool: pool, social: social, wallet: walletSvc, prizes: DefaultWheel()}
}

// Wheel returns the sector layout and whether the user may spin now.
func (s *Service) Wheel(ctx context.Context, userID uuid.UUID) (map[string]any, error) {
	last, err := s.social.LastBonusSpinAt(ctx, s.pool, userID)
	if err != nil {
		return nil, err
	}
	nextAt := last.Add(spinCooldown)
	return map[string]any{
		"prizes":     s.prizes,
		"canSpin":    time.Now().After(nextAt),
		"nextSpinAt": nextAt,
	}, nil
}

// SpinResult is the bonus.spin response payload.
type SpinResult struct {
	Prize   Prize          `json:"prize"`
	Balance *wallet.Result `json:"balance"`
}

// Spin draws a prize and credits the bonus balance. One spin per cooldown.
func (s *Service) Spin(ctx context.Context, userID uuid.UUID, requestID *string) (*SpinResult, error) {
	last, err := s.social.LastBonusSpinAt(ctx, s.pool, userID)
	if err != nil {
		return nil, err
	}
	if time.Since(last) < spinCooldown {
		return nil, domain.ErrConflict("bonus wheel is on cooldown")
	}

	prize := draw(s.prizes)
	amount, err := money.ToAtomic(prize.Coins)
	if err != nil {
		return nil, fmt.Errorf("prize amount: %w", err)
	}

	balance, err := s.wallet.Apply(ctx, wallet.Mutation{
		UserID:     userID,
		RequestID:  requestID,
		LedgerType: domain.LedgerPromo,
		DeltaBonus: amount,
		Metadata:   map[string]any{"source": "bonus_wheel", "prize": prize.Name},
	})
	if err != nil {
		return nil, err
	}

	if err := s.social.InsertBonusSpin(ctx, s.pool, &domain.BonusSpin{
		ID:     uuid.New(),
		UserID: userID,
		Prize:  prize.Name,
		Amount: amount,
	}); err != nil {
		return nil, err
	}

	return &SpinResult{Prize: prize, Balance: balance}, nil
}

// draw picks a sector proportionally to its weight.
func draw(prizes []Prize) Prize {
	total := 0
	for _, p := range prizes {
		total += p.Weight
	}
	n := rand.Intn(total)
	for _, p := range prizes {
		n -= p.Weight
		if n < 0 {
			return p
		}
	}
	return prizes[len(prizes)-1]
}
