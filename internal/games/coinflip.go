package games

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/lock"
	"github.com/rollhaus/casino/internal/money"
	"github.com/rollhaus/casino/internal/wallet"
)

// Coinflip sides.
const (
	CoinflipHeads = "heads"
	CoinflipTails = "tails"
)

// Coinflip is the player-versus-player coin game. A game is created open and
// resolves the moment a second player joins.
type Coinflip struct {
	deps *Deps
}

// NewCoinflip creates the coinflip engine.
func NewCoinflip(deps *Deps) *Coinflip {
	return &Coinflip{deps: deps}
}

// coinflipCreatorEnd is the creator's last ticket: one plus one ticket per
// hundredth of a coin staked. The joiner holds the mirror range, so the
// total is always even and the odds exactly half.
func coinflipCreatorEnd(amount int64) int64 {
	return 1 + amount/10000
}

// Create opens a game and escrows the creator's stake.
func (c *Coinflip) Create(ctx context.Context, user *domain.User, side string, amount int64, requestID string) (*domain.CoinflipGame, error) {
	if side != CoinflipHeads && side != CoinflipTails {
		return nil, domain.ErrValidation("side must be heads or tails")
	}
	cfg := c.deps.Settings.Get(ctx)
	if err := checkBetBounds(amount, cfg.CoinflipMinBet, cfg.CoinflipMaxBet); err != nil {
		return nil, err
	}

	game := &domain.CoinflipGame{
		ID:          uuid.New(),
		Hash:        newRoundHash(),
		CreatorID:   user.ID,
		CreatorName: user.Username,
		CreatorSide: side,
		Amount:      amount,
		CreatorEnd:  coinflipCreatorEnd(amount),
		Status:      domain.CoinflipOpen,
	}

	err := c.deps.Locks.WithLock(ctx, lock.WalletKey(user.ID), func(ctx context.Context) error {
		tx, err := c.deps.Pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		betReq := betKey(requestID)
		if _, err := c.deps.Wallet.ApplyInTx(ctx, tx, wallet.Mutation{
			UserID:     user.ID,
			RequestID:  &betReq,
			LedgerType: domain.LedgerGameBet,
			DeltaMain:  -amount,
			Metadata:   map[string]any{"game": "coinflip", "gameId": game.ID},
		}); err != nil {
			return err
		}
		if err := c.deps.Rounds.InsertCoinflip(ctx, tx, game); err != nil {
			return err
		}
		event := domain.NewEvent("coinflip.created", "coinflip", game.ID.String(), 1, game)
		if err := c.deps.Outbox.Insert(ctx, tx, event); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit coinflip create: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return game, nil
}

// Join escrows the joiner's matching stake and resolves the game in the same
// transaction. Both wallet leases are taken in sorted key order before the
// transaction opens, so the winner credit never waits on a lease while
// holding row locks. The game lease serializes competing joins; the FOR
// UPDATE read inside the transaction backs it up.
func (c *Coinflip) Join(ctx context.Context, user *domain.User, gameID uuid.UUID, requestID string) (*domain.CoinflipGame, error) {
	commission := c.deps.Settings.Get(ctx).CoinflipCommissionPct

	// Peek without locking to learn the creator. The checks repeat against
	// the FOR UPDATE read below; this pass only fails fast and names the
	// second wallet lease.
	peek, err := c.deps.Rounds.FindCoinflip(ctx, c.deps.Pool, gameID)
	if err != nil {
		return nil, err
	}
	if peek == nil {
		return nil, domain.ErrNotFound("game", gameID.String())
	}
	if peek.CreatorID == user.ID {
		return nil, domain.ErrConflict("cannot join your own game")
	}

	first, second := lock.WalletKey(user.ID), lock.WalletKey(peek.CreatorID)
	if second < first {
		first, second = second, first
	}

	var resolved *domain.CoinflipGame
	err = c.deps.Locks.WithLock(ctx, lock.GameKey("coinflip", gameID.String()), func(ctx context.Context) error {
		return c.deps.Locks.WithLock(ctx, first, func(ctx context.Context) error {
			return c.deps.Locks.WithLock(ctx, second, func(ctx context.Context) error {
				tx, err := c.deps.Pool.Begin(ctx)
				if err != nil {
					return fmt.Errorf("begin tx: %w", err)
				}
				defer tx.Rollback(ctx)

				game, err := c.deps.Rounds.LockCoinflip(ctx, tx, gameID)
				if err != nil {
					return err
				}
				if game == nil {
					return domain.ErrNotFound("game", gameID.String())
				}
				if game.Status != domain.CoinflipOpen {
					return domain.ErrConflict("game is no longer open")
				}
				if game.CreatorID == user.ID {
					return domain.ErrConflict("cannot join your own game")
				}

				betReq := betKey(requestID)
				if _, err := c.deps.Wallet.ApplyInTx(ctx, tx, wallet.Mutation{
					UserID:     user.ID,
					RequestID:  &betReq,
					LedgerType: domain.LedgerGameBet,
					DeltaMain:  -game.Amount,
					Metadata:   map[string]any{"game": "coinflip", "gameId": game.ID},
				}); err != nil {
					return err
				}

				game.JoinerID = &user.ID
				name := user.Username
				game.JoinerName = &name
				game.JoinerEnd = 2 * game.CreatorEnd
				game.WinnerTicket = uniformInt64(game.JoinerEnd)

				winnerID := game.CreatorID
				if game.WinnerTicket > game.CreatorEnd {
					winnerID = user.ID
				}
				game.WinnerUserID = &winnerID
				game.Payout = 2*game.Amount - money.MulRate(2*game.Amount, commission/100)
				game.Status = domain.CoinflipResolved

				payoutReq := "coinflip:" + game.ID.String() + ":payout"
				if _, err := c.deps.Wallet.ApplyInTx(ctx, tx, wallet.Mutation{
					UserID:     winnerID,
					RequestID:  &payoutReq,
					LedgerType: domain.LedgerPayout,
					DeltaMain:  game.Payout,
					Metadata:   map[string]any{"game": "coinflip", "gameId": game.ID},
				}); err != nil {
					return err
				}

				if err := c.deps.Rounds.ResolveCoinflip(ctx, tx, game); err != nil {
					return err
				}
				event := domain.NewEvent("coinflip.resolved", "coinflip", game.ID.String(), 2, game)
				if err := c.deps.Outbox.Insert(ctx, tx, event); err != nil {
					return err
				}
				if err := tx.Commit(ctx); err != nil {
					return fmt.Errorf("commit coinflip join: %w", err)
				}
				resolved = game
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	if profit := resolved.Payout - resolved.Amount; profit > 0 {
		c.deps.Affiliate.CreditFromReferralWin(*resolved.WinnerUserID, profit, "coinflip:"+resolved.ID.String())
	}
	return resolved, nil
}

// Cancel closes the caller's open game and returns the escrowed stake.
func (c *Coinflip) Cancel(ctx context.Context, user *domain.User, gameID uuid.UUID, requestID string) (*domain.CoinflipGame, error) {
	var canceled *domain.CoinflipGame
	err := c.deps.Locks.WithLock(ctx, lock.GameKey("coinflip", gameID.String()), func(ctx context.Context) error {
		return c.deps.Locks.WithLock(ctx, lock.WalletKey(user.ID), func(ctx context.Context) error {
			tx, err := c.deps.Pool.Begin(ctx)
			if err != nil {
				return fmt.Errorf("begin tx: %w", err)
			}
			defer tx.Rollback(ctx)

			game, err := c.deps.Rounds.LockCoinflip(ctx, tx, gameID)
			if err != nil {
				return err
			}
			if game == nil {
				return domain.ErrNotFound("game", gameID.String())
			}
			if game.Status != domain.CoinflipOpen {
				return domain.ErrConflict("game is no longer open")
			}
			if game.CreatorID != user.ID {
				return domain.ErrForbidden("only the creator may cancel")
			}

			refundReq := requestID + ":refund"
			if _, err := c.deps.Wallet.ApplyInTx(ctx, tx, wallet.Mutation{
				UserID:     user.ID,
				RequestID:  &refundReq,
				LedgerType: domain.LedgerPayout,
				DeltaMain:  game.Amount,
				Metadata:   map[string]any{"game": "coinflip", "gameId": game.ID, "refund": true},
			}); err != nil {
				return err
			}

			game.Status = domain.CoinflipCanceled
			if err := c.deps.Rounds.ResolveCoinflip(ctx, tx, game); err != nil {
				return err
			}
			event := domain.NewEvent("coinflip.canceled", "coinflip", game.ID.String(), 2, game)
			if err := c.deps.Outbox.Insert(ctx, tx, event); err != nil {
				return err
			}
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("commit coinflip cancel: %w", err)
			}
			canceled = game
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return canceled, nil
}

// List returns joinable games for coinflip.snapshot.get.
func (c *Coinflip) List(ctx context.Context, limit int) ([]domain.CoinflipGame, error) {
	return c.deps.Rounds.ListOpenCoinflips(ctx, c.deps.Pool, limit)
}
