package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/infra"
)

// RoundsRepository persists game history rows and answers fair.check lookups.
type RoundsRepository struct{}

// NewRoundsRepository returns a pgx-backed RoundsRepository.
func NewRoundsRepository() *RoundsRepository {
	return &RoundsRepository{}
}

// NextDiceNonce atomically increments and returns the per-user dice nonce.
func (r *RoundsRepository) NextDiceNonce(ctx context.Context, db DBTX, userID uuid.UUID) (int64, error) {
	var nonce int64
	err := db.QueryRow(ctx, `
		INSERT INTO dice_nonces (user_id, nonce) VALUES ($1, 1)
		ON CONFLICT (user_id) DO UPDATE SET nonce = dice_nonces.nonce + 1
		RETURNING nonce`, userID).Scan(&nonce)
	if err != nil {
		return 0, fmt.Errorf("next dice nonce: %w", err)
	}
	return nonce, nil
}

// InsertDiceGame appends a dice history row.
func (r *RoundsRepository) InsertDiceGame(ctx context.Context, db DBTX, g *domain.DiceGame) error {
	_, err := db.Exec(ctx, `
		INSERT INTO dice_games
		  (id, user_id, hash, client_seed, nonce, amount, chance_bp, direction, roll_bp, rate_bp, payout)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		g.ID, g.UserID, g.Hash, g.ClientSeed, g.Nonce,
		infra.AtomicToNumeric(g.Amount), g.ChanceBP, g.Direction, g.RollBP, g.RateBP,
		infra.AtomicToNumeric(g.Payout))
	if err != nil {
		return fmt.Errorf("insert dice game: %w", err)
	}
	return nil
}

// InsertCrashRound appends a crash history row.
func (r *RoundsRepository) InsertCrashRound(ctx context.Context, db DBTX, round *domain.CrashRound) error {
	_, err := db.Exec(ctx, `
		INSERT INTO crash_rounds (id, hash, crash_point_bp, bets)
		VALUES ($1, $2, $3, $4)`,
		round.ID, round.Hash, round.CrashPointBP, ensureJSON(round.Bets))
	if err != nil {
		return fmt.Errorf("insert crash round: %w", err)
	}
	return nil
}

// InsertWheelRound appends a wheel history row.
func (r *RoundsRepository) InsertWheelRound(ctx context.Context, db DBTX, round *domain.WheelRound) error {
	_, err := db.Exec(ctx, `
		INSERT INTO wheel_rounds (id, hash, result_color, angle, bets)
		VALUES ($1, $2, $3, $4, $5)`,
		round.ID, round.Hash, round.ResultColor, round.Angle, ensureJSON(round.Bets))
	if err != nil {
		return fmt.Errorf("insert wheel round: %w", err)
	}
	return nil
}

// InsertJackpotRound appends a jackpot history row.
func (r *RoundsRepository) InsertJackpotRound(ctx context.Context, db DBTX, round *domain.JackpotRound) error {
	_, err := db.Exec(ctx, `
		INSERT INTO jackpot_rounds
		  (id, room, hash, winner_user_id, winner_ticket, total_tickets, pot, payout, bets)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		round.ID, round.Room, round.Hash, round.WinnerUserID, round.WinnerTicket,
		round.TotalTickets, infra.AtomicToNumeric(round.Pot), infra.AtomicToNumeric(round.Payout),
		ensureJSON(round.Bets))
	if err != nil {
		return fmt.Errorf("insert jackpot round: %w", err)
	}
	return nil
}

// InsertBattleRound appends a battle history row.
func (r *RoundsRepository) InsertBattleRound(ctx context.Context, db DBTX, round *domain.BattleRound) error {
	_, err := db.Exec(ctx, `
		INSERT INTO battle_rounds (id, hash, winner_team, winner_ticket, total_bank, bets)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		round.ID, round.Hash, round.WinnerTeam, round.WinnerTicket,
		infra.AtomicToNumeric(round.TotalBank), ensureJSON(round.Bets))
	if err != nil {
		return fmt.Errorf("insert battle round: %w", err)
	}
	return nil
}

const coinflipColumns = `id, hash, creator_id, creator_name, creator_side, joiner_id, joiner_name,
       amount, creator_end, joiner_end, winner_ticket, winner_user_id, payout, status,
       created_at, updated_at`

// InsertCoinflip creates an open coinflip game.
func (r *RoundsRepository) InsertCoinflip(ctx context.Context, db DBTX, g *domain.CoinflipGame) error {
	_, err := db.Exec(ctx, `
		INSERT INTO coinflip_games
		  (id, hash, creator_id, creator_name, creator_side, amount, creator_end, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.Hash, g.CreatorID, g.CreatorName, g.CreatorSide,
		infra.AtomicToNumeric(g.Amount), g.CreatorEnd, string(g.Status))
	if err != nil {
		return fmt.Errorf("insert coinflip: %w", err)
	}
	return nil
}

// FindCoinflip loads a coinflip row without locking it. Used to learn the
// creator before any lease is taken; the in-transaction LockCoinflip read
// stays authoritative.
func (r *RoundsRepository) FindCoinflip(ctx context.Context, db DBTX, id uuid.UUID) (*domain.CoinflipGame, error) {
	row := db.QueryRow(ctx, `SELECT `+coinflipColumns+` FROM coinflip_games WHERE id = $1`, id)
	return scanCoinflip(row)
}

// LockCoinflip loads a coinflip row FOR UPDATE inside the join transaction.
func (r *RoundsRepository) LockCoinflip(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.CoinflipGame, error) {
	row := tx.QueryRow(ctx, `SELECT `+coinflipColumns+` FROM coinflip_games WHERE id = $1 FOR UPDATE`, id)
	return scanCoinflip(row)
}

// ResolveCoinflip records the joiner and outcome.
func (r *RoundsRepository) ResolveCoinflip(ctx context.Context, db DBTX, g *domain.CoinflipGame) error {
	_, err := db.Exec(ctx, `
		UPDATE coinflip_games
		SET joiner_id = $2, joiner_name = $3, joiner_end = $4, winner_ticket = $5,
		    winner_user_id = $6, payout = $7, status = $8, updated_at = now()
		WHERE id = $1`,
		g.ID, g.JoinerID, g.JoinerName, g.JoinerEnd, g.WinnerTicket,
		g.WinnerUserID, infra.AtomicToNumeric(g.Payout), string(g.Status))
	if err != nil {
		return fmt.Errorf("resolve coinflip: %w", err)
	}
	return nil
}

// ListOpenCoinflips returns joinable games, newest first.
func (r *RoundsRepository) ListOpenCoinflips(ctx context.Context, db DBTX, limit int) ([]domain.CoinflipGame, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := db.Query(ctx, `
		SELECT `+coinflipColumns+` FROM coinflip_games
		WHERE status = 'open'
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query coinflips: %w", err)
	}
	defer rows.Close()

	var games []domain.CoinflipGame
	for rows.Next() {
		g, err := scanCoinflipRow(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

// FindFairByHash resolves a round hash to its game and outcome across all
// history tables. Returns nil when no round carries the hash.
func (r *RoundsRepository) FindFairByHash(ctx context.Context, db DBTX, hash string) (*domain.FairRecord, error) {
	type probe struct {
		game  string
		query string
	}
	probes := []probe{
		{"dice", `SELECT json_build_object('roll', roll_bp / 100.0, 'nonce', nonce) FROM dice_games WHERE hash = $1`},
		{"crash", `SELECT json_build_object('number', crash_point_bp / 100.0) FROM crash_rounds WHERE hash = $1`},
		{"wheel", `SELECT json_build_object('color', result_color, 'number', CASE result_color WHEN 'black' THEN 2 WHEN 'red' THEN 3 WHEN 'green' THEN 5 ELSE 50 END) FROM wheel_rounds WHERE hash = $1`},
		{"jackpot", `SELECT json_build_object('winnerTicket', winner_ticket, 'totalTickets', total_tickets) FROM jackpot_rounds WHERE hash = $1`},
		{"battle", `SELECT json_build_object('winnerTeam', winner_team, 'winnerTicket', winner_ticket) FROM battle_rounds WHERE hash = $1`},
		{"coinflip", `SELECT json_build_object('winnerTicket', winner_ticket) FROM coinflip_games WHERE hash = $1 AND status = 'resolved'`},
	}

	for _, p := range probes {
		var result json.RawMessage
		err := db.QueryRow(ctx, p.query, hash).Scan(&result)
		if err == pgx.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fair lookup %s: %w", p.game, err)
		}
		return &domain.FairRecord{Game: p.game, Hash: hash, Result: result}, nil
	}
	return nil, nil
}

func scanCoinflip(row pgx.Row) (*domain.CoinflipGame, error) {
	g, err := scanCoinflipRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return g, nil
}

func scanCoinflipRow(row pgx.Row) (*domain.CoinflipGame, error) {
	var g domain.CoinflipGame
	var amountNum, payoutNum pgtype.Numeric
	err := row.Scan(
		&g.ID, &g.Hash, &g.CreatorID, &g.CreatorName, &g.CreatorSide, &g.JoinerID, &g.JoinerName,
		&amountNum, &g.CreatorEnd, &g.JoinerEnd, &g.WinnerTicket, &g.WinnerUserID, &payoutNum,
		&g.Status, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, pgx.ErrNoRows
		}
		return nil, fmt.Errorf("scan coinflip: %w", err)
	}

	var convErr error
	g.Amount, convErr = infra.NumericToAtomic(amountNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert amount: %w", convErr)
	}
	g.Payout, convErr = infra.NumericToAtomic(payoutNum)
	if convErr != nil {
		return nil, fmt.Errorf("convert payout: %w", convErr)
	}
	return &g, nil
}

func ensureJSON(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage(`[]`)
	}
	return data
}
