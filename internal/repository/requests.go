package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rollhaus/casino/internal/domain"
)

type requestRepo struct{}

// NewRequestRepository returns a pgx-backed RequestRepository.
func NewRequestRepository() RequestRepository {
	return &requestRepo{}
}

// Begin races an insert against concurrent duplicates: ON CONFLICT DO NOTHING
// makes exactly one caller the owner; everyone else reads the existing row.
func (r *requestRepo) Begin(ctx context.Context, db DBTX, userID uuid.UUID, requestID, reqType string) (*domain.RequestRecord, bool, error) {
	tag, err := db.Exec(ctx, `
		INSERT INTO request_ledger (user_id, request_id, type, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, request_id) DO NOTHING`,
		userID, requestID, reqType, string(domain.RequestProcessing))
	if err != nil {
		return nil, false, fmt.Errorf("begin request: %w", err)
	}

	if tag.RowsAffected() == 1 {
		return &domain.RequestRecord{
			UserID:    userID,
			RequestID: requestID,
			Type:      reqType,
			Status:    domain.RequestProcessing,
		}, true, nil
	}

	row := db.QueryRow(ctx, `
		SELECT user_id, request_id, type, status, response, created_at
		FROM request_ledger
		WHERE user_id = $1 AND request_id = $2`, userID, requestID)

	var rec domain.RequestRecord
	if err := row.Scan(&rec.UserID, &rec.RequestID, &rec.Type, &rec.Status, &rec.Response, &rec.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			// Row vanished between insert and read (sweeper); caller retries.
			return nil, false, fmt.Errorf("begin request: row disappeared")
		}
		return nil, false, fmt.Errorf("read request record: %w", err)
	}
	return &rec, false, nil
}

func (r *requestRepo) Complete(ctx context.Context, db DBTX, userID uuid.UUID, requestID string, response json.RawMessage) error {
	_, err := db.Exec(ctx, `
		UPDATE request_ledger SET status = $3, response = $4
		WHERE user_id = $1 AND request_id = $2`,
		userID, requestID, string(domain.RequestCompleted), response)
	if err != nil {
		return fmt.Errorf("complete request: %w", err)
	}
	return nil
}

func (r *requestRepo) Fail(ctx context.Context, db DBTX, userID uuid.UUID, requestID string) error {
	_, err := db.Exec(ctx, `
		UPDATE request_ledger SET status = $3
		WHERE user_id = $1 AND request_id = $2`,
		userID, requestID, string(domain.RequestFailed))
	if err != nil {
		return fmt.Errorf("fail request: %w", err)
	}
	return nil
}

func (r *requestRepo) Sweep(ctx context.Context, db DBTX, cutoff time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM request_ledger WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep request ledger: %w", err)
	}
	return tag.RowsAffected(), nil
}
