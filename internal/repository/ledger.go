package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/infra"
)

type ledgerRepo struct{}

// NewLedgerRepository returns a pgx-backed LedgerRepository.
func NewLedgerRepository() LedgerRepository {
	return &ledgerRepo{}
}

const ledgerColumns = `id, user_id, request_id, type, amount_main, amount_bonus,
       balance_main_after, balance_bonus_after, metadata, created_at`

func (r *ledgerRepo) FindByRequestID(ctx context.Context, db DBTX, requestID string) (*domain.LedgerEntry, error) {
	row := db.QueryRow(ctx, `SELECT `+ledgerColumns+` FROM wallet_ledger WHERE request_id = $1`, requestID)
	return scanLedgerEntry(row)
}

func (r *ledgerRepo) Insert(ctx context.Context, db DBTX, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	meta := entry.Metadata
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}

	row := db.QueryRow(ctx, `
		INSERT INTO wallet_ledger
		  (user_id, request_id, type, amount_main, amount_bonus,
		   balance_main_after, balance_bonus_after, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+ledgerColumns,
		entry.UserID,
		entry.RequestID,
		string(entry.Type),
		infra.AtomicToNumeric(entry.AmountMain),
		infra.AtomicToNumeric(entry.AmountBonus),
		infra.AtomicToNumeric(entry.BalanceMainAfter),
		infra.AtomicToNumeric(entry.BalanceBonusAfter),
		meta,
	)
	return scanLedgerEntry(row)
}

func (r *ledgerRepo) SumByUser(ctx context.Context, db DBTX, userID uuid.UUID) (int64, int64, error) {
	row := db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount_main), 0), COALESCE(SUM(amount_bonus), 0)
		FROM wallet_ledger WHERE user_id = $1`, userID)

	var mainNum, bonusNum pgtype.Numeric
	if err := row.Scan(&mainNum, &bonusNum); err != nil {
		return 0, 0, fmt.Errorf("sum ledger: %w", err)
	}

	main, err := infra.NumericToAtomic(mainNum)
	if err != nil {
		return 0, 0, fmt.Errorf("convert main sum: %w", err)
	}
	bonus, err := infra.NumericToAtomic(bonusNum)
	if err != nil {
		return 0, 0, fmt.Errorf("convert bonus sum: %w", err)
	}
	return main, bonus, nil
}

func (r *ledgerRepo) ListByUser(ctx context.Context, db DBTX, userID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := db.Query(ctx, `
		SELECT `+ledgerColumns+` FROM wallet_ledger
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		entry, err := scanLedgerEntryRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanLedgerEntry(row pgx.Row) (*domain.LedgerEntry, error) {
	entry, err := scanLedgerEntryRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return entry, nil
}

func scanLedgerEntryRow(row pgx.Row) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var amountMainNum, amountBonusNum, mainAfterNum, bonusAfterNum pgtype.Numeric
	err := row.Scan(
		&e.ID, &e.UserID, &e.RequestID, &e.Type,
		&amountMainNum, &amountBonusNum, &mainAfterNum, &bonusAfterNum,
		&e.Metadata, &e.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}

	var convErr error
	e.AmountMain, convErr = infra.NumericToAtomic(amountMainNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert amount_main: %w", convErr)
	}
	e.AmountBonus, convErr = infra.NumericToAtomic(amountBonusNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert amount_bonus: %w", convErr)
	}
	e.BalanceMainAfter, convErr = infra.NumericToAtomic(mainAfterNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert balance_main_after: %w", convErr)
	}
	e.BalanceBonusAfter, convErr = infra.NumericToAtomic(bonusAfterNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert balance_bonus_after: %w", convErr)
	}

	return &e, nil
}
