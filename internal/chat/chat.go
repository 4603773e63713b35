// Package chat implements the chat side feature: persisted messages plus
// chat.message fan-out through the outbox.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/repository"
	"github.com/rollhaus/casino/internal/settings"
)

// Service persists and broadcasts chat messages.
type Service struct {
	pool     *pgxpool.Pool
	social   *repository.SocialRepository
	outbox   repository.OutboxRepository
	settings *settings.Cache
}

// NewService creates the chat service.
func NewService(pool *pgxpool.Pool, social *repository.SocialRepository, outbox repository.OutboxRepository, cache *settings.Cache) *Service {
	return &Service{pool: pool, social: social, outbox: outbox, settings: cache}
}

// Send stores the message and appends a chat.message event.
func (s *Service) Send(ctx context.Context, user *domain.User, text string) (*domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, domain.ErrValidation("message is empty")
	}
	if max := s.settings.Get(ctx).ChatMaxLen; max > 0 && len(text) > max {
		return nil, domain.ErrValidation(fmt.Sprintf("message exceeds %d characters", max))
	}

	msg := &domain.ChatMessage{
		ID:       uuid.New(),
		UserID:   user.ID,
		Username: user.Username,
		Text:     text,
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.social.InsertChatMessage(ctx, tx, msg); err != nil {
		return nil, err
	}
	event := domain.NewEvent(domain.EventChatMessage, domain.AggregateChat, msg.ID.String(), 1, msg)
	if err := s.outbox.Insert(ctx, tx, event); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit chat message: %w", err)
	}
	return msg, nil
}

// History returns recent messages in display order.
func (s *Service) History(ctx context.Context, limit int) ([]domain.ChatMessage, error) {
	return s.social.ListChatMessages(ctx, s.pool, limit)
}
