package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/infra"
)

type userRepo struct{}

// NewUserRepository returns a pgx-backed UserRepository.
func NewUserRepository() UserRepository {
	return &userRepo{}
}

const userColumns = `id, username, password_hash, roles, balance_main, balance_bonus,
       state_version, token_version, affiliate_code, referred_by, referral_count,
       total_deposited, total_withdrawn, created_at, updated_at`

func (r *userRepo) Create(ctx context.Context, db DBTX, user *domain.User) error {
	_, err := db.Exec(ctx, `
		INSERT INTO users
		  (id, username, password_hash, roles, balance_main, balance_bonus,
		   state_version, token_version, affiliate_code, referred_by, referral_count,
		   total_deposited, total_withdrawn)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		user.ID,
		user.Username,
		user.PasswordHash,
		user.Roles,
		infra.AtomicToNumeric(user.BalanceMain),
		infra.AtomicToNumeric(user.BalanceBonus),
		user.StateVersion,
		user.TokenVersion,
		user.AffiliateCode,
		user.ReferredBy,
		user.ReferralCount,
		infra.AtomicToNumeric(user.TotalDeposited),
		infra.AtomicToNumeric(user.TotalWithdrawn),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *userRepo) FindByID(ctx context.Context, db DBTX, id uuid.UUID) (*domain.User, error) {
	row := db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *userRepo) FindByUsername(ctx context.Context, db DBTX, username string) (*domain.User, error) {
	row := db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
	return scanUser(row)
}

func (r *userRepo) FindByAffiliateCode(ctx context.Context, db DBTX, code string) (*domain.User, error) {
	row := db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE affiliate_code = $1`, code)
	return scanUser(row)
}

func (r *userRepo) LockForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error) {
	row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id)
	return scanUser(row)
}

// ApplyBalanceDelta uses server-side arithmetic so concurrent mutations on
// different users never clobber each other's reads.
func (r *userRepo) ApplyBalanceDelta(ctx context.Context, tx pgx.Tx, id uuid.UUID, deltaMain, deltaBonus int64) (*domain.User, error) {
	row := tx.QueryRow(ctx, `
		UPDATE users
		SET balance_main = balance_main + $2,
		    balance_bonus = balance_bonus + $3,
		    state_version = state_version + 1,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+userColumns,
		id, infra.AtomicToNumeric(deltaMain), infra.AtomicToNumeric(deltaBonus))
	return scanUser(row)
}

func (r *userRepo) AddDepositTotal(ctx context.Context, db DBTX, id uuid.UUID, amount int64) error {
	_, err := db.Exec(ctx, `
		UPDATE users SET total_deposited = total_deposited + $2, updated_at = now()
		WHERE id = $1`, id, infra.AtomicToNumeric(amount))
	if err != nil {
		return fmt.Errorf("add deposit total: %w", err)
	}
	return nil
}

func (r *userRepo) AddWithdrawTotal(ctx context.Context, db DBTX, id uuid.UUID, amount int64) error {
	_, err := db.Exec(ctx, `
		UPDATE users SET total_withdrawn = total_withdrawn + $2, updated_at = now()
		WHERE id = $1`, id, infra.AtomicToNumeric(amount))
	if err != nil {
		return fmt.Errorf("add withdraw total: %w", err)
	}
	return nil
}

func (r *userRepo) IncrementReferralCount(ctx context.Context, db DBTX, id uuid.UUID) error {
	_, err := db.Exec(ctx, `
		UPDATE users SET referral_count = referral_count + 1, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("increment referral count: %w", err)
	}
	return nil
}

func (r *userRepo) BumpTokenVersion(ctx context.Context, db DBTX, id uuid.UUID) error {
	_, err := db.Exec(ctx, `
		UPDATE users SET token_version = token_version + 1, updated_at = now()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("bump token version: %w", err)
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	var mainNum, bonusNum, depNum, wdNum pgtype.Numeric
	err := row.Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.Roles, &mainNum, &bonusNum,
		&u.StateVersion, &u.TokenVersion, &u.AffiliateCode, &u.ReferredBy, &u.ReferralCount,
		&depNum, &wdNum, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	var convErr error
	u.BalanceMain, convErr = infra.NumericToAtomic(mainNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert balance_main: %w", convErr)
	}
	u.BalanceBonus, convErr = infra.NumericToAtomic(bonusNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert balance_bonus: %w", convErr)
	}
	u.TotalDeposited, convErr = infra.NumericToAtomic(depNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert total_deposited: %w", convErr)
	}
	u.TotalWithdrawn, convErr = infra.NumericToAtomic(wdNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert total_withdrawn: %w", convErr)
	}

	return &u, nil
}
