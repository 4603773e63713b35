package gateway

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/settings"
)

func (g *Gateway) handleAdminSettingsGet(ctx context.Context, r *Request) (any, error) {
	return map[string]any{
		"settings": g.deps.Settings.Get(ctx),
		"rooms":    g.deps.Settings.Rooms(ctx),
	}, nil
}

func (g *Gateway) handleAdminSettingsSave(ctx context.Context, r *Request) (any, error) {
	var in settings.Settings
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	if err := g.deps.Settings.Save(ctx, in); err != nil {
		return nil, err
	}
	return map[string]any{"saved": true}, nil
}

func (g *Gateway) handleAdminRoomSave(ctx context.Context, r *Request) (any, error) {
	var in settings.Room
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, domain.ErrValidation("room name is required")
	}
	if err := g.deps.Settings.SaveRoom(ctx, in); err != nil {
		return nil, err
	}
	return map[string]any{"saved": true}, nil
}

func (g *Gateway) handleAdminPromoCreate(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Code           string     `json:"code"`
		RewardType     string     `json:"rewardType"`
		RewardAmount   float64    `json:"rewardAmount"`
		MaxRedemptions int64      `json:"maxRedemptions"`
		StartsAt       *time.Time `json:"startsAt"`
		ExpiresAt      *time.Time `json:"expiresAt"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	code := strings.ToUpper(strings.TrimSpace(in.Code))
	if code == "" {
		return nil, domain.ErrValidation("code is required")
	}
	rewardType := domain.RewardType(in.RewardType)
	if rewardType != domain.RewardMain && rewardType != domain.RewardBonus {
		return nil, domain.ErrValidation("rewardType must be main or bonus")
	}
	amount, err := atomicAmount(in.RewardAmount)
	if err != nil {
		return nil, err
	}
	if in.MaxRedemptions <= 0 {
		return nil, domain.ErrValidation("maxRedemptions must be positive")
	}
	p := &domain.Promo{
		ID:             uuid.New(),
		Code:           code,
		RewardType:     rewardType,
		RewardAmount:   amount,
		MaxRedemptions: in.MaxRedemptions,
		Active:         true,
		StartsAt:       in.StartsAt,
		ExpiresAt:      in.ExpiresAt,
	}
	if err := g.deps.Promos.Create(ctx, g.deps.Pool, p); err != nil {
		return nil, err
	}
	return map[string]any{"promo": p}, nil
}
