package gateway

import (
	"context"
	"math"

	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/games"
	"github.com/rollhaus/casino/internal/wallet"
)

// toBP converts a two-decimal wire value (chance percent, multiplier) to
// hundredths.
func toBP(v float64) int64 {
	return int64(math.Round(v * 100))
}

func (g *Gateway) handleDiceBet(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Amount     float64 `json:"amount"`
		Chance     float64 `json:"chance"`
		Direction  string  `json:"direction"`
		ClientSeed string  `json:"clientSeed"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	amount, err := atomicAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	return g.deps.Dice.Bet(ctx, r.User, games.DiceBetRequest{
		Amount:     amount,
		ChanceBP:   toBP(in.Chance),
		Direction:  in.Direction,
		ClientSeed: in.ClientSeed,
	}, r.Frame.RequestID)
}

func (g *Gateway) handleCrashBet(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Amount      float64 `json:"amount"`
		AutoCashout float64 `json:"autoCashout"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	amount, err := atomicAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	req := games.CrashBetRequest{Amount: amount}
	if in.AutoCashout > 0 {
		req.AutoCashoutBP = toBP(in.AutoCashout)
	}
	return g.deps.Crash.Bet(ctx, r.User, req, r.Frame.RequestID)
}

func (g *Gateway) handleCrashCashout(ctx context.Context, r *Request) (any, error) {
	// The payload is optional: an empty frame cashes out at the live
	// multiplier, atMultiplier caps it.
	var in struct {
		AtMultiplier float64 `json:"atMultiplier"`
	}
	if len(r.Frame.Data) > 0 {
		if err := r.Bind(&in); err != nil {
			return nil, err
		}
	}
	var requestedBP int64
	if in.AtMultiplier != 0 {
		requestedBP = toBP(in.AtMultiplier)
	}
	payout, err := g.deps.Crash.Cashout(ctx, r.User, requestedBP, r.Frame.RequestID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"payout": payout}, nil
}

func (g *Gateway) handleWheelBet(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Color  string  `json:"color"`
		Amount float64 `json:"amount"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	amount, err := atomicAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	return g.deps.Wheel.Bet(ctx, r.User, in.Color, amount, r.Frame.RequestID)
}

func (g *Gateway) handleJackpotBet(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Room   string  `json:"room"`
		Amount float64 `json:"amount"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	amount, err := atomicAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	return g.deps.Jackpot.Bet(ctx, r.User, in.Room, amount, r.Frame.RequestID)
}

func (g *Gateway) handleCoinflipCreate(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Amount float64 `json:"amount"`
		Side   string  `json:"side"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	amount, err := atomicAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	return g.deps.Coinflip.Create(ctx, r.User, in.Side, amount, r.Frame.RequestID)
}

func (g *Gateway) handleCoinflipJoin(ctx context.Context, r *Request) (any, error) {
	var in struct {
		GameID string `json:"gameId"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	gameID, err := parseID("gameId", in.GameID)
	if err != nil {
		return nil, err
	}
	return g.deps.Coinflip.Join(ctx, r.User, gameID, r.Frame.RequestID)
}

func (g *Gateway) handleCoinflipCancel(ctx context.Context, r *Request) (any, error) {
	var in struct {
		GameID string `json:"gameId"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	gameID, err := parseID("gameId", in.GameID)
	if err != nil {
		return nil, err
	}
	return g.deps.Coinflip.Cancel(ctx, r.User, gameID, r.Frame.RequestID)
}

func (g *Gateway) handleBattleBet(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Team    string  `json:"team"`
		Balance string  `json:"balance"`
		Amount  float64 `json:"amount"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	amount, err := atomicAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	balance := wallet.BalanceMain
	if in.Balance != "" {
		balance = wallet.Balance(in.Balance)
	}
	return g.deps.Battle.Bet(ctx, r.User, games.BattleBetRequest{
		Team:    in.Team,
		Balance: balance,
		Amount:  amount,
	}, r.Frame.RequestID)
}

func (g *Gateway) handleFairCheck(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Hash string `json:"hash"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	if err := domain.ValidateRoundHash(in.Hash); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	rec, err := g.deps.Rounds.FindFairByHash(ctx, g.deps.Pool, in.Hash)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.ErrNotFound("round", in.Hash)
	}
	return rec, nil
}
