package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rollhaus/casino/internal/domain"
)

type outboxRepo struct{}

// NewOutboxRepository returns a pgx-backed OutboxRepository.
func NewOutboxRepository() OutboxRepository {
	return &outboxRepo{}
}

func (r *outboxRepo) Insert(ctx context.Context, db DBTX, event domain.Event) error {
	_, err := db.Exec(ctx, `
		INSERT INTO event_outbox
		  (event_id, type, aggregate_type, aggregate_id, version, user_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.EventID,
		event.Type,
		event.AggregateType,
		event.AggregateID,
		event.Version,
		event.UserID,
		event.Payload,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func (r *outboxRepo) FetchUnpublished(ctx context.Context, db DBTX, limit int) ([]SeqEvent, error) {
	rows, err := db.Query(ctx, `
		SELECT id, event_id, type, aggregate_type, aggregate_id, version, user_id, payload, created_at
		FROM event_outbox
		WHERE published_at IS NULL
		ORDER BY id ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox events: %w", err)
	}
	defer rows.Close()

	var events []SeqEvent
	for rows.Next() {
		var se SeqEvent
		err := rows.Scan(&se.Seq, &se.Event.EventID, &se.Event.Type, &se.Event.AggregateType,
			&se.Event.AggregateID, &se.Event.Version, &se.Event.UserID, &se.Event.Payload, &se.Event.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		events = append(events, se)
	}
	return events, rows.Err()
}

func (r *outboxRepo) MarkPublished(ctx context.Context, db DBTX, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	_, err := db.Exec(ctx, `
		UPDATE event_outbox SET published_at = now() WHERE id = ANY($1)`, seqs)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}

func (r *outboxRepo) Reopen(ctx context.Context, db DBTX, n int) (int64, error) {
	tag, err := db.Exec(ctx, `
		UPDATE event_outbox SET published_at = NULL
		WHERE id IN (SELECT id FROM event_outbox ORDER BY id DESC LIMIT $1)`, n)
	if err != nil {
		return 0, fmt.Errorf("reopen outbox rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *outboxRepo) DeleteBefore(ctx context.Context, db DBTX, cutoff time.Time) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM event_outbox WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}
