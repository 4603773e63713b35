package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role enumerates user roles.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleModer    Role = "moder"
	RoleYoutuber Role = "youtuber"
	RoleUser     Role = "user"
)

// User represents a users row. Balances are atomic int64 (1e-6 coin).
type User struct {
	ID             uuid.UUID  `json:"id"`
	Username       string     `json:"username"`
	PasswordHash   string     `json:"-"`
	Roles          []string   `json:"roles"`
	BalanceMain    int64      `json:"balanceMain"`
	BalanceBonus   int64      `json:"balanceBonus"`
	StateVersion   int64      `json:"stateVersion"`
	TokenVersion   int64      `json:"tokenVersion"`
	AffiliateCode  *string    `json:"affiliateCode,omitempty"`
	ReferredBy     *uuid.UUID `json:"referredBy,omitempty"`
	ReferralCount  int64      `json:"referralCount"`
	TotalDeposited int64      `json:"totalDeposited"`
	TotalWithdrawn int64      `json:"totalWithdrawn"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(r Role) bool {
	for _, have := range u.Roles {
		if have == string(r) {
			return true
		}
	}
	return false
}

// Session represents a sessions row. Only the SHA-256 of the refresh token is
// stored; a replayed hash is useless without the original token.
type Session struct {
	ID               uuid.UUID `json:"id"`
	UserID           uuid.UUID `json:"userId"`
	RefreshTokenHash string    `json:"-"`
	ExpiresAt        time.Time `json:"expiresAt"`
	Revoked          bool      `json:"revoked"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Live reports whether the session can still be refreshed.
func (s *Session) Live(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}
