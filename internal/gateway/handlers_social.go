package gateway

import (
	"context"
	"strings"

	"github.com/rollhaus/casino/internal/domain"
)

func (g *Gateway) handlePromoRedeem(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Code string `json:"code"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Code) == "" {
		return nil, domain.ErrValidation("code is required")
	}
	return g.deps.Promo.Redeem(ctx, r.User.ID, in.Code, &r.Frame.RequestID)
}

func (g *Gateway) handleBonusWheel(ctx context.Context, r *Request) (any, error) {
	return g.deps.Bonus.Wheel(ctx, r.User.ID)
}

func (g *Gateway) handleBonusSpin(ctx context.Context, r *Request) (any, error) {
	return g.deps.Bonus.Spin(ctx, r.User.ID, &r.Frame.RequestID)
}

func (g *Gateway) handleChatSend(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Text string `json:"text"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	msg, err := g.deps.Chat.Send(ctx, r.User, in.Text)
	if err != nil {
		return nil, err
	}
	return map[string]any{"message": msg}, nil
}

func (g *Gateway) handleAffiliateStats(ctx context.Context, r *Request) (any, error) {
	return g.deps.Affiliate.StatsFor(ctx, r.User.ID)
}

func (g *Gateway) handleAffiliateVisit(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Code     string `json:"code"`
		Referrer string `json:"referrer"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	g.deps.Affiliate.RecordVisit(ctx, strings.ToUpper(strings.TrimSpace(in.Code)), in.Referrer)
	return map[string]any{"recorded": true}, nil
}
