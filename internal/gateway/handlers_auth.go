package gateway

import (
	"context"

	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/money"
)

// publicUser is the user view sent over the socket.
type publicUser struct {
	ID            string   `json:"id"`
	Username      string   `json:"username"`
	Roles         []string `json:"roles"`
	BalanceMain   float64  `json:"balanceMain"`
	BalanceBonus  float64  `json:"balanceBonus"`
	StateVersion  int64    `json:"stateVersion"`
	AffiliateCode string   `json:"affiliateCode,omitempty"`
	ReferralCount int64    `json:"referralCount"`
}

func toPublicUser(u *domain.User) publicUser {
	pub := publicUser{
		ID:            u.ID.String(),
		Username:      u.Username,
		Roles:         u.Roles,
		BalanceMain:   money.FromAtomic(u.BalanceMain),
		BalanceBonus:  money.FromAtomic(u.BalanceBonus),
		StateVersion:  u.StateVersion,
		ReferralCount: u.ReferralCount,
	}
	if u.AffiliateCode != nil {
		pub.AffiliateCode = *u.AffiliateCode
	}
	return pub
}

func (g *Gateway) handleRegister(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
		RefCode  string `json:"refCode"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	user, err := g.deps.Auth.Register(ctx, in.Username, in.Password, in.RefCode)
	if err != nil {
		return nil, err
	}
	// Open the first session right away so the client does not need a
	// separate login round-trip.
	user, pair, err := g.deps.Auth.Login(ctx, in.Username, in.Password)
	if err != nil {
		return nil, err
	}
	r.Conn.setUser(user.ID, user.Username)
	return map[string]any{"user": toPublicUser(user), "tokens": pair}, nil
}

func (g *Gateway) handleLogin(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	user, pair, err := g.deps.Auth.Login(ctx, in.Username, in.Password)
	if err != nil {
		return nil, err
	}
	r.Conn.setUser(user.ID, user.Username)
	return map[string]any{"user": toPublicUser(user), "tokens": pair}, nil
}

func (g *Gateway) handleRefresh(ctx context.Context, r *Request) (any, error) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	pair, err := g.deps.Auth.Refresh(ctx, in.RefreshToken)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tokens": pair}, nil
}

func (g *Gateway) handleLogout(ctx context.Context, r *Request) (any, error) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	if err := g.deps.Auth.Logout(ctx, in.RefreshToken); err != nil {
		return nil, err
	}
	r.Conn.clearUser()
	return map[string]any{"loggedOut": true}, nil
}

func (g *Gateway) handleMe(ctx context.Context, r *Request) (any, error) {
	return map[string]any{"user": toPublicUser(r.User)}, nil
}

func (g *Gateway) handleSessionsList(ctx context.Context, r *Request) (any, error) {
	sessions, err := g.deps.Auth.Sessions(ctx, r.User.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sessions": sessions}, nil
}

func (g *Gateway) handleSessionsRevoke(ctx context.Context, r *Request) (any, error) {
	var in struct {
		SessionID string `json:"sessionId"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	sessionID, err := parseID("sessionId", in.SessionID)
	if err != nil {
		return nil, err
	}
	if err := g.deps.Auth.RevokeSession(ctx, r.User.ID, sessionID); err != nil {
		return nil, err
	}
	return map[string]any{"revoked": true}, nil
}
