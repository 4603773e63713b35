package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/infra"
)

type promoRepo struct{}

// NewPromoRepository returns a pgx-backed PromoRepository.
func NewPromoRepository() PromoRepository {
	return &promoRepo{}
}

const promoColumns = `id, code, reward_type, reward_amount, max_redemptions,
       current_redemptions, active, starts_at, expires_at, created_at, updated_at`

func (r *promoRepo) Create(ctx context.Context, db DBTX, promo *domain.Promo) error {
	_, err := db.Exec(ctx, `
		INSERT INTO promocodes
		  (id, code, reward_type, reward_amount, max_redemptions, current_redemptions,
		   active, starts_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		promo.ID,
		strings.ToUpper(promo.Code),
		string(promo.RewardType),
		infra.AtomicToNumeric(promo.RewardAmount),
		promo.MaxRedemptions,
		promo.CurrentRedemptions,
		promo.Active,
		promo.StartsAt,
		promo.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert promo: %w", err)
	}
	return nil
}

func (r *promoRepo) FindByCode(ctx context.Context, db DBTX, code string) (*domain.Promo, error) {
	row := db.QueryRow(ctx, `SELECT `+promoColumns+` FROM promocodes WHERE code = $1`,
		strings.ToUpper(code))
	return scanPromo(row)
}

func (r *promoRepo) LockByCode(ctx context.Context, tx pgx.Tx, code string) (*domain.Promo, error) {
	row := tx.QueryRow(ctx, `SELECT `+promoColumns+` FROM promocodes WHERE code = $1 FOR UPDATE`,
		strings.ToUpper(code))
	return scanPromo(row)
}

func (r *promoRepo) InsertRedemption(ctx context.Context, db DBTX, redemption *domain.PromoRedemption) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO promo_redemptions (id, promo_code_id, user_id, amount, request_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, promo_code_id) DO NOTHING`,
		redemption.ID,
		redemption.PromoCodeID,
		redemption.UserID,
		infra.AtomicToNumeric(redemption.Amount),
		redemption.RequestID,
	)
	if err != nil {
		return false, fmt.Errorf("insert redemption: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *promoRepo) HasRedemption(ctx context.Context, db DBTX, promoID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM promo_redemptions WHERE promo_code_id = $1 AND user_id = $2)`,
		promoID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check redemption: %w", err)
	}
	return exists, nil
}

func (r *promoRepo) IncrementRedemptions(ctx context.Context, db DBTX, promoID uuid.UUID) error {
	_, err := db.Exec(ctx, `
		UPDATE promocodes SET current_redemptions = current_redemptions + 1, updated_at = now()
		WHERE id = $1`, promoID)
	if err != nil {
		return fmt.Errorf("increment redemptions: %w", err)
	}
	return nil
}

func scanPromo(row pgx.Row) (*domain.Promo, error) {
	var p domain.Promo
	var rewardNum pgtype.Numeric
	err := row.Scan(
		&p.ID, &p.Code, &p.RewardType, &rewardNum, &p.MaxRedemptions,
		&p.CurrentRedemptions, &p.Active, &p.StartsAt, &p.ExpiresAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan promo: %w", err)
	}

	var convErr error
	p.RewardAmount, convErr = infra.NumericToAtomic(rewardNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert reward_amount: %w", convErr)
	}
	return &p, nil
}
