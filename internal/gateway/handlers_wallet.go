package gateway

import (
	"context"

	"github.com/rollhaus/casino/internal/domain"
	"github.com/rollhaus/casino/internal/money"
	"github.com/rollhaus/casino/internal/wallet"
)

// atomicAmount converts a coin amount from the wire, mapping conversion
// failures (negative, non-finite, overflow) to VALIDATION_ERROR.
func atomicAmount(coins float64) (int64, error) {
	v, err := money.ToAtomic(coins)
	if err != nil {
		return 0, domain.ErrValidation(err.Error())
	}
	if v == 0 {
		return 0, domain.ErrValidation("amount must be positive")
	}
	return v, nil
}

func (g *Gateway) handleBalanceGet(ctx context.Context, r *Request) (any, error) {
	return g.deps.Wallet.Snapshot(ctx, r.User.ID)
}

func (g *Gateway) handleLedgerList(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Limit int `json:"limit"`
	}
	if len(r.Frame.Data) > 0 {
		if err := r.Bind(&in); err != nil {
			return nil, err
		}
	}
	if in.Limit <= 0 || in.Limit > 200 {
		in.Limit = 50
	}
	entries, err := g.deps.Wallet.Ledger(ctx, r.User.ID, in.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"entries": entries}, nil
}

func (g *Gateway) handleDepositMethods(ctx context.Context, r *Request) (any, error) {
	currencies, err := g.deps.Deposits.Methods(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"currencies": currencies}, nil
}

func (g *Gateway) handleDepositStaticAddress(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Currency string `json:"currency"`
		Network  string `json:"network"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	if in.Currency == "" || in.Network == "" {
		return nil, domain.ErrValidation("currency and network are required")
	}
	addr, err := g.deps.Deposits.StaticAddress(ctx, r.User.ID, in.Currency, in.Network)
	if err != nil {
		return nil, err
	}
	return map[string]any{"address": addr}, nil
}

func (g *Gateway) handleDepositInvoice(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	amount, err := atomicAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	invoice, err := g.deps.Deposits.Invoice(ctx, r.User.ID, amount, in.Currency)
	if err != nil {
		return nil, err
	}
	return map[string]any{"invoice": invoice}, nil
}

func (g *Gateway) handleWithdrawRequest(ctx context.Context, r *Request) (any, error) {
	var in struct {
		Amount   float64 `json:"amount"`
		Currency string  `json:"currency"`
		Network  string  `json:"network"`
		Address  string  `json:"address"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	amount, err := atomicAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	return g.deps.Withdraws.Request(ctx, wallet.WithdrawRequest{
		UserID:    r.User.ID,
		RequestID: &r.Frame.RequestID,
		Amount:    amount,
		Currency:  in.Currency,
		Network:   in.Network,
		Address:   in.Address,
	})
}

func (g *Gateway) handleExchange(ctx context.Context, r *Request) (any, error) {
	var in struct {
		From   string  `json:"from"`
		To     string  `json:"to"`
		Amount float64 `json:"amount"`
	}
	if err := r.Bind(&in); err != nil {
		return nil, err
	}
	amount, err := atomicAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	from, to := wallet.Balance(in.From), wallet.Balance(in.To)
	for _, b := range []wallet.Balance{from, to} {
		if b != wallet.BalanceMain && b != wallet.BalanceBonus {
			return nil, domain.ErrValidation("balance must be main or bonus")
		}
	}
	return g.deps.Wallet.Exchange(ctx, r.User.ID, &r.Frame.RequestID, from, to, amount)
}
