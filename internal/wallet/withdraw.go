package wallet

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/lock"
	"github.com/rollhaus/casino/internal/money"
	"github.com/rollhaus/casino/internal/repository"
	"github.com/rollhaus/casino/internal/settings"
)

// WithdrawRequest is a user-initiated provider withdrawal.
type WithdrawRequest struct {
	UserID    uuid.UUID
	RequestID *string
	Amount    int64
	Currency  string
	Network   string
	Address   string
}

// WithdrawPolicy carries the operator limits a withdrawal must clear.
type WithdrawPolicy struct {
	MinCumulativeDeposit int64
	ProfitCoefficient    float64
}

// PolicyFromSettings converts coin-denominated settings to atomic limits.
func PolicyFromSettings(s settings.Settings) WithdrawPolicy {
	minDep, err := money.ToAtomic(s.MinDepositBeforeWithdraw)
	if err != nil {
		minDep = 0
	}
	return WithdrawPolicy{
		MinCumulativeDeposit: minDep,
		ProfitCoefficient:    s.ProfitCoefficient,
	}
}

// AvailableWithdraw computes the provider withdraw limit:
// totalDeposited × profitCoefficient − totalWithdrawn, floored at zero.
func AvailableWithdraw(totalDeposited, totalWithdrawn int64, profitCoefficient float64) int64 {
	limit := money.MulRate(totalDeposited, profitCoefficient) - totalWithdrawn
	if limit < 0 {
		return 0
	}
	return limit
}

// CheckWithdrawPolicy validates amount against the network limits and the
// user's deposit history. Pure; callable before touching the balance.
func CheckWithdrawPolicy(req WithdrawRequest, network domain.Network, user *domain.User, policy WithdrawPolicy) error {
	if network.MinWithdraw != "" {
		min, err := money.ParseCoins(network.MinWithdraw)
		if err == nil && req.Amount < min {
			return domain.ErrConflict(fmt.Sprintf("minimum withdraw on %s is %s", req.Network, network.MinWithdraw))
		}
	}
	if network.MaxWithdraw != "" {
		max, err := money.ParseCoins(network.MaxWithdraw)
		if err == nil && max > 0 && req.Amount > max {
			return domain.ErrConflict(fmt.Sprintf("maximum withdraw on %s is %s", req.Network, network.MaxWithdraw))
		}
	}
	if user.TotalDeposited < policy.MinCumulativeDeposit {
		return domain.ErrConflict(fmt.Sprintf("minimum deposit of %s required before withdrawing",
			money.Format(policy.MinCumulativeDeposit, 2)))
	}
	if available := AvailableWithdraw(user.TotalDeposited, user.TotalWithdrawn, policy.ProfitCoefficient); req.Amount > available {
		return domain.ErrConflict(fmt.Sprintf("withdraw limit is %s", money.Format(available, 2)))
	}
	return nil
}

// WithdrawService layers provider rules over the wallet kernel.
type WithdrawService struct {
	wallet   *Service
	payments *repository.PaymentRepository
	settings *settings.Cache
}

// NewWithdrawService creates the withdraw-request surface.
func NewWithdrawService(wallet *Service, payments *repository.PaymentRepository, cache *settings.Cache) *WithdrawService {
	return &WithdrawService{wallet: wallet, payments: payments, settings: cache}
}

// Request validates the withdrawal against provider and policy rules, then
// debits the main balance and records the cumulative withdrawn total.
func (s *WithdrawService) Request(ctx context.Context, req WithdrawRequest) (*Result, error) {
	if req.Amount <= 0 {
		return nil, domain.ErrValidation("withdraw amount must be positive")
	}
	if req.Address == "" {
		return nil, domain.ErrValidation("destination address is required")
	}

	currency, err := s.payments.FindCurrency(ctx, s.wallet.pool, req.Currency)
	if err != nil {
		return nil, err
	}
	if currency == nil {
		return nil, domain.ErrConflict(fmt.Sprintf("currency %s is not supported", req.Currency))
	}
	network, ok := currency.FindNetwork(req.Network)
	if !ok {
		return nil, domain.ErrConflict(fmt.Sprintf("network %s is not supported for %s", req.Network, req.Currency))
	}

	policy := PolicyFromSettings(s.settings.Get(ctx))

	var result *Result
	err = s.wallet.locks.WithLock(ctx, lock.WalletKey(req.UserID), func(ctx context.Context) error {
		tx, err := s.wallet.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		user, err := s.wallet.users.LockForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrNotFound("user", req.UserID.String())
		}
		if err := CheckWithdrawPolicy(req, network, user, policy); err != nil {
			return err
		}

		result, err = s.wallet.ApplyInTx(ctx, tx, Mutation{
			UserID:     req.UserID,
			RequestID:  req.RequestID,
			LedgerType: domain.LedgerWithdraw,
			DeltaMain:  -req.Amount,
			Metadata: map[string]any{
				"currency": req.Currency,
				"network":  req.Network,
				"address":  req.Address,
			},
		})
		if err != nil {
			return err
		}
		if err := s.wallet.users.AddWithdrawTotal(ctx, tx, req.UserID, req.Amount); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
