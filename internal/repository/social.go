package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/infra"
)

// SocialRepository persists chat messages and bonus wheel spins.
type SocialRepository struct{}

// NewSocialRepository returns a pgx-backed SocialRepository.
func NewSocialRepository() *SocialRepository {
	return &SocialRepository{}
}

// InsertChatMessage appends a chat message.
func (r *SocialRepository) InsertChatMessage(ctx context.Context, db DBTX, m *domain.ChatMessage) error {
	_, err := db.Exec(ctx, `
		INSERT INTO chat_messages (id, user_id, username, text)
		VALUES ($1, $2, $3, $4)`,
		m.ID, m.UserID, m.Username, m.Text)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

// ListChatMessages returns recent messages, newest last (display order).
func (r *SocialRepository) ListChatMessages(ctx context.Context, db DBTX, limit int) ([]domain.ChatMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := db.Query(ctx, `
		SELECT id, user_id, username, text, created_at
		FROM (
			SELECT id, user_id, username, text, created_at
			FROM chat_messages ORDER BY created_at DESC LIMIT $1
		) recent
		ORDER BY created_at ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Username, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsertBonusSpin records one bonus wheel spin.
func (r *SocialRepository) InsertBonusSpin(ctx context.Context, db DBTX, s *domain.BonusSpin) error {
	_, err := db.Exec(ctx, `
		INSERT INTO bonus_spins (id, user_id, prize, amount)
		VALUES ($1, $2, $3, $4)`,
		s.ID, s.UserID, s.Prize, infra.AtomicToNumeric(s.Amount))
	if err != nil {
		return fmt.Errorf("insert bonus spin: %w", err)
	}
	return nil
}

// LastBonusSpinAt returns the user's most recent spin time, zero if none.
func (r *SocialRepository) LastBonusSpinAt(ctx context.Context, db DBTX, userID uuid.UUID) (time.Time, error) {
	var last time.Time
	err := db.QueryRow(ctx, `
		SELECT COALESCE(MAX(created_at), 'epoch'::timestamptz)
		FROM bonus_spins WHERE user_id = $1`, userID).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("last bonus spin: %w", err)
	}
	return last, nil
}
