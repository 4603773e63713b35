// Package wallet implements the balance mutation kernel. Every credit and
// debit in the system funnels through Apply or ApplyInTx: read balances
// under the per-user lease, refuse negative results, bump state_version,
// append the ledger row and the outbox event inside one transaction.
package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/lock"
	"github.com/rollhaus/casino/internal/repository"
)

// Mutation describes one balance change. Deltas are atomic; negative values
// debit. RequestID, when set, is unique on the ledger so a retried call
// collapses onto the first committed effect.
type Mutation struct {
	UserID      uuid.UUID
	RequestID   *string
	LedgerType  domain.LedgerType
	DeltaMain   int64
	DeltaBonus  int64
	Metadata    map[string]any
}

// Result is the post-mutation balance snapshot.
type Result struct {
	Main         int64     `json:"main"`
	Bonus        int64     `json:"bonus"`
	StateVersion int64     `json:"stateVersion"`
	LedgerID     uuid.UUID `json:"ledgerId"`
}

// Service is the wallet kernel.
type Service struct {
	pool   *pgxpool.Pool
	locks  *lock.Manager
	users  repository.UserRepository
	ledger repository.LedgerRepository
	outbox repository.OutboxRepository
	logger *slog.Logger
}

// NewService creates a wallet service.
func NewService(
	pool *pgxpool.Pool,
	locks *lock.Manager,
	users repository.UserRepository,
	ledger repository.LedgerRepository,
	outbox repository.OutboxRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		pool:   pool,
		locks:  locks,
		users:  users,
		ledger: ledger,
		outbox: outbox,
		logger: logger,
	}
}

// Apply runs the mutation under the user's wallet lease in a fresh
// transaction. This is the entry point for callers that hold no lock.
func (s *Service) Apply(ctx context.Context, m Mutation) (*Result, error) {
	var result *Result
	err := s.locks.WithLock(ctx, lock.WalletKey(m.UserID), func(ctx context.Context) error {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		result, err = s.ApplyInTx(ctx, tx, m)
		if err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ApplyInTx runs the mutation inside the caller's transaction without taking
// the wallet lease. Callers must already hold it (directly or through the
// game lock order).
func (s *Service) ApplyInTx(ctx context.Context, tx pgx.Tx, m Mutation) (*Result, error) {
	// Idempotency: a requestId that already committed replays its snapshot.
	if m.RequestID != nil {
		existing, err := s.ledger.FindByRequestID(ctx, tx, *m.RequestID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			user, err := s.users.FindByID(ctx, tx, m.UserID)
			if err != nil {
				return nil, err
			}
			if user == nil {
				return nil, domain.ErrNotFound("user", m.UserID.String())
			}
			return &Result{
				Main:         existing.BalanceMainAfter,
				Bonus:        existing.BalanceBonusAfter,
				StateVersion: user.StateVersion,
				LedgerID:     existing.ID,
			}, nil
		}
	}

	user, err := s.users.LockForUpdate(ctx, tx, m.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", m.UserID.String())
	}

	nextMain := user.BalanceMain + m.DeltaMain
	nextBonus := user.BalanceBonus + m.DeltaBonus
	if nextMain < 0 || nextBonus < 0 {
		return nil, domain.ErrInsufficientBalance()
	}

	updated, err := s.users.ApplyBalanceDelta(ctx, tx, m.UserID, m.DeltaMain, m.DeltaBonus)
	if err != nil {
		return nil, fmt.Errorf("apply balance delta: %w", err)
	}

	meta, err := json.Marshal(m.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	entry, err := s.ledger.Insert(ctx, tx, &domain.LedgerEntry{
		UserID:            m.UserID,
		RequestID:         m.RequestID,
		Type:              m.LedgerType,
		AmountMain:        m.DeltaMain,
		AmountBonus:       m.DeltaBonus,
		BalanceMainAfter:  updated.BalanceMain,
		BalanceBonusAfter: updated.BalanceBonus,
		Metadata:          meta,
	})
	if err != nil {
		return nil, fmt.Errorf("insert ledger entry: %w", err)
	}

	event := domain.NewBalanceUpdatedEvent(entry, updated.StateVersion)
	if err := s.outbox.Insert(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("insert outbox event: %w", err)
	}

	return &Result{
		Main:         updated.BalanceMain,
		Bonus:        updated.BalanceBonus,
		StateVersion: updated.StateVersion,
		LedgerID:     entry.ID,
	}, nil
}

// Deposit credits the main balance.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, requestID *string, amount int64, metadata map[string]any) (*Result, error) {
	if amount <= 0 {
		return nil, domain.ErrValidation("deposit amount must be positive")
	}
	return s.Apply(ctx, Mutation{
		UserID:     userID,
		RequestID:  requestID,
		LedgerType: domain.LedgerDeposit,
		DeltaMain:  amount,
		Metadata:   metadata,
	})
}

// Withdraw debits the main balance without provider rules; RequestWithdraw
// is the user-facing variant that enforces them.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, requestID *string, amount int64, metadata map[string]any) (*Result, error) {
	if amount <= 0 {
		return nil, domain.ErrValidation("withdraw amount must be positive")
	}
	return s.Apply(ctx, Mutation{
		UserID:     userID,
		RequestID:  requestID,
		LedgerType: domain.LedgerWithdraw,
		DeltaMain:  -amount,
		Metadata:   metadata,
	})
}

// Balance enumerates the two sub-balances.
type Balance string

const (
	BalanceMain  Balance = "main"
	BalanceBonus Balance = "bonus"
)

// Exchange moves the same atomic amount between the two sub-balances.
func (s *Service) Exchange(ctx context.Context, userID uuid.UUID, requestID *string, from, to Balance, amount int64) (*Result, error) {
	if amount <= 0 {
		return nil, domain.ErrValidation("exchange amount must be positive")
	}
	if from == to {
		return nil, domain.ErrValidation("exchange requires two different balances")
	}
	m := Mutation{
		UserID:     userID,
		RequestID:  requestID,
		LedgerType: domain.LedgerExchange,
		Metadata:   map[string]any{"from": from, "to": to},
	}
	if from == BalanceMain {
		m.DeltaMain, m.DeltaBonus = -amount, amount
	} else {
		m.DeltaMain, m.DeltaBonus = amount, -amount
	}
	return s.Apply(ctx, m)
}

// Snapshot returns the user's current balances without mutating.
func (s *Service) Snapshot(ctx context.Context, userID uuid.UUID) (*Result, error) {
	user, err := s.users.FindByID(ctx, s.pool, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound("user", userID.String())
	}
	return &Result{
		Main:         user.BalanceMain,
		Bonus:        user.BalanceBonus,
		StateVersion: user.StateVersion,
	}, nil
}

// Ledger returns the user's recent ledger entries, newest first.
func (s *Service) Ledger(ctx context.Context, userID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	return s.ledger.ListByUser(ctx, s.pool, userID, limit)
}
