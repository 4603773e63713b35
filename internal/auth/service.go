// Package auth implements registration, login, token refresh with rotation,
// and session revocation.
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/money"
	"github.com/rollhaus/casino/internal/repository"
	"github.com/rollhaus/casino/internal/settings"
	"golang.org/x/crypto/bcrypt"
)

// RegisterDemoBalance is the main-balance grant for a fresh account.
const RegisterDemoBalance = 100

// TokenPair is the login/refresh response.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	SessionID    uuid.UUID `json:"sessionId"`
	ExpiresInSec int       `json:"expiresInSec"`
}

// Service implements the auth operations.
type Service struct {
	pool     *pgxpool.Pool
	users    repository.UserRepository
	sessions repository.SessionRepository
	outbox   repository.OutboxRepository
	tokens   *TokenManager
	settings *settings.Cache
	logger   *slog.Logger
}

// NewService creates the auth service.
func NewService(
	pool *pgxpool.Pool,
	users repository.UserRepository,
	sessions repository.SessionRepository,
	outbox repository.OutboxRepository,
	tokens *TokenManager,
	cache *settings.Cache,
	logger *slog.Logger,
) *Service {
	return &Service{
		pool:     pool,
		users:    users,
		sessions: sessions,
		outbox:   outbox,
		tokens:   tokens,
		settings: cache,
		logger:   logger,
	}
}

// Register creates a user with the demo balance and, when a valid referral
// code was supplied, credits the referrer's counters and the new user's
// bonus balance. The referral credit is best-effort.
func (s *Service) Register(ctx context.Context, username, password, refCode string) (*domain.User, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if len(password) < 6 {
		return nil, domain.ErrValidation("password must be at least 6 characters")
	}

	existing, err := s.users.FindByUsername(ctx, s.pool, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrConflict("username is taken")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	demoBalance, err := money.ToAtomic(RegisterDemoBalance)
	if err != nil {
		return nil, fmt.Errorf("demo balance: %w", err)
	}

	user := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		Roles:        []string{string(domain.RoleUser)},
		BalanceMain:  demoBalance,
		StateVersion: 1,
	}

	var referrer *domain.User
	if refCode != "" {
		referrer, err = s.users.FindByAffiliateCode(ctx, s.pool, strings.ToUpper(refCode))
		if err != nil {
			return nil, err
		}
		if referrer != nil {
			user.ReferredBy = &referrer.ID
			if bonus, berr := money.ToAtomic(s.settings.Get(ctx).ReferralBonus); berr == nil {
				user.BalanceBonus = bonus
			}
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.users.Create(ctx, tx, user); err != nil {
		return nil, err
	}
	event := domain.NewEvent(domain.EventUserRegistered, domain.AggregateUser, user.ID.String(), 1,
		map[string]any{"userId": user.ID, "username": user.Username})
	if err := s.outbox.Insert(ctx, tx, event); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit register: %w", err)
	}

	// Referrer counter bump is bookkeeping; a failure must not fail the
	// registration.
	if referrer != nil {
		if err := s.users.IncrementReferralCount(ctx, s.pool, referrer.ID); err != nil {
			s.logger.Warn("referral counter bump failed", "referrer", referrer.ID, "error", err)
		}
	}

	return user, nil
}

// Login verifies the password and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (*domain.User, *TokenPair, error) {
	user, err := s.users.FindByUsername(ctx, s.pool, username)
	if err != nil {
		return nil, nil, err
	}
	if user == nil {
		return nil, nil, domain.ErrUnauthorized("invalid credentials")
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, nil, domain.ErrUnauthorized("invalid credentials")
	}

	pair, err := s.openSession(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

func (s *Service) openSession(ctx context.Context, user *domain.User) (*TokenPair, error) {
	sessionID := uuid.New()

	refreshToken, err := s.tokens.GenerateRefresh(user.ID, sessionID, user.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	accessToken, err := s.tokens.GenerateAccess(user.ID, user.Username, user.Roles)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	session := &domain.Session{
		ID:               sessionID,
		UserID:           user.ID,
		RefreshTokenHash: HashToken(refreshToken),
		ExpiresAt:        timeNow().Add(s.tokens.RefreshTTL()),
	}
	if err := s.sessions.Create(ctx, s.pool, session); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sessionID,
		ExpiresInSec: int(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Refresh rotates the refresh token. The presented token must match the
// stored hash exactly: a reused (already-rotated) token fails UNAUTHORIZED.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, domain.ErrUnauthorized("invalid refresh token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domain.ErrUnauthorized("invalid refresh token")
	}

	session, err := s.sessions.FindByID(ctx, s.pool, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || !session.Live(timeNow()) || session.UserID != userID {
		return nil, domain.ErrUnauthorized("session is no longer valid")
	}
	if session.RefreshTokenHash != HashToken(refreshToken) {
		// Reuse of a rotated token: revoke the session outright.
		_ = s.sessions.Revoke(ctx, s.pool, session.ID)
		return nil, domain.ErrUnauthorized("refresh token reuse detected")
	}

	user, err := s.users.FindByID(ctx, s.pool, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.TokenVersion != claims.TokenVersion {
		return nil, domain.ErrUnauthorized("session is no longer valid")
	}

	nextRefresh, err := s.tokens.GenerateRefresh(user.ID, session.ID, user.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	accessToken, err := s.tokens.GenerateAccess(user.ID, user.Username, user.Roles)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	if err := s.sessions.UpdateRefreshHash(ctx, s.pool, session.ID,
		HashToken(nextRefresh), timeNow().Add(s.tokens.RefreshTTL())); err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: nextRefresh,
		SessionID:    session.ID,
		ExpiresInSec: int(s.tokens.AccessTTL().Seconds()),
	}, nil
}

// Logout revokes the session carried by the refresh token. Idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil
	}
	return s.sessions.Revoke(ctx, s.pool, claims.SessionID)
}

// Me returns the user for a validated access token subject.
func (s *Service) Me(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, s.pool, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}
	return user, nil
}

// Sessions lists the user's live sessions.
func (s *Service) Sessions(ctx context.Context, userID uuid.UUID) ([]domain.Session, error) {
	return s.sessions.ListByUser(ctx, s.pool, userID)
}

// RevokeSession revokes one of the user's own sessions.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID uuid.UUID) error {
	session, err := s.sessions.FindByID(ctx, s.pool, sessionID)
	if err != nil {
		return err
	}
	if session == nil || session.UserID != userID {
		return domain.ErrNotFound("session", sessionID.String())
	}
	return s.sessions.Revoke(ctx, s.pool, sessionID)
}

// ValidateAccess resolves an access token to (userID, claims).
func (s *Service) ValidateAccess(tokenString string) (uuid.UUID, *AccessClaims, error) {
	claims, err := s.tokens.ValidateAccess(tokenString)
	if err != nil {
		return uuid.Nil, nil, domain.ErrUnauthorized("invalid access token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, nil, domain.ErrUnauthorized("invalid access token")
	}
	return userID, claims, nil
}
