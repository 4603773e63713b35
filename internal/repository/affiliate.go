package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/infra"
)

// AffiliateRepository persists referral visits and commission earnings.
type AffiliateRepository struct{}

// NewAffiliateRepository returns a pgx-backed AffiliateRepository.
func NewAffiliateRepository() *AffiliateRepository {
	return &AffiliateRepository{}
}

// InsertVisit records a referral link open.
func (r *AffiliateRepository) InsertVisit(ctx context.Context, db DBTX, v *domain.AffiliateVisit) error {
	_, err := db.Exec(ctx, `
		INSERT INTO affiliate_visits (id, code, referrer)
		VALUES ($1, $2, $3)`,
		v.ID, v.Code, v.Referrer)
	if err != nil {
		return fmt.Errorf("insert affiliate visit: %w", err)
	}
	return nil
}

// InsertEarning records a commission. Inserted is false when the eventKey was
// already credited.
func (r *AffiliateRepository) InsertEarning(ctx context.Context, db DBTX, e *domain.AffiliateEarning) (bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO affiliate_earnings (id, affiliate_user_id, source_user_id, amount, event_key)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_key) DO NOTHING`,
		e.ID, e.AffiliateUserID, e.SourceUserID, infra.AtomicToNumeric(e.Amount), e.EventKey)
	if err != nil {
		return false, fmt.Errorf("insert affiliate earning: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SumEarnings totals a referrer's commissions.
func (r *AffiliateRepository) SumEarnings(ctx context.Context, db DBTX, affiliateUserID uuid.UUID) (int64, error) {
	var sum pgtype.Numeric
	err := db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM affiliate_earnings
		WHERE affiliate_user_id = $1`, affiliateUserID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum affiliate earnings: %w", err)
	}
	return infra.NumericToAtomic(sum)
}

// CountVisits counts opens of a referral code.
func (r *AffiliateRepository) CountVisits(ctx context.Context, db DBTX, code string) (int64, error) {
	var n int64
	err := db.QueryRow(ctx, `SELECT COUNT(*) FROM affiliate_visits WHERE code = $1`, code).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count affiliate visits: %w", err)
	}
	return n, nil
}
