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

// PaymentRepository persists provider artifacts: static deposit addresses,
// credited deposits, and the accepted-currency catalog.
type PaymentRepository struct{}

// NewPaymentRepository returns a pgx-backed PaymentRepository.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{}
}

// InsertStaticAddress records a provider-assigned deposit address.
func (r *PaymentRepository) InsertStaticAddress(ctx context.Context, db DBTX, a *domain.StaticAddress) error {
	_, err := db.Exec(ctx, `
		INSERT INTO wallet_static_addresses (id, user_id, track_id, currency, network, address)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.UserID, a.TrackID, a.Currency, a.Network, a.Address)
	if err != nil {
		return fmt.Errorf("insert static address: %w", err)
	}
	return nil
}

// FindStaticAddressByTrackID resolves a webhook trackId to its owner.
func (r *PaymentRepository) FindStaticAddressByTrackID(ctx context.Context, db DBTX, trackID string) (*domain.StaticAddress, error) {
	row := db.QueryRow(ctx, `
		SELECT id, user_id, track_id, currency, network, address, created_at
		FROM wallet_static_addresses WHERE track_id = $1`, trackID)

	var a domain.StaticAddress
	err := row.Scan(&a.ID, &a.UserID, &a.TrackID, &a.Currency, &a.Network, &a.Address, &a.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan static address: %w", err)
	}
	return &a, nil
}

// FindStaticAddress returns a user's existing address for a currency/network
// pair, nil if none was assigned yet.
func (r *PaymentRepository) FindStaticAddress(ctx context.Context, db DBTX, userID uuid.UUID, currency, network string) (*domain.StaticAddress, error) {
	row := db.QueryRow(ctx, `
		SELECT id, user_id, track_id, currency, network, address, created_at
		FROM wallet_static_addresses
		WHERE user_id = $1 AND currency = $2 AND network = $3`, userID, currency, network)

	var a domain.StaticAddress
	err := row.Scan(&a.ID, &a.UserID, &a.TrackID, &a.Currency, &a.Network, &a.Address, &a.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan static address: %w", err)
	}
	return &a, nil
}

// InsertDeposit records one credited transfer.
func (r *PaymentRepository) InsertDeposit(ctx context.Context, db DBTX, d *domain.Deposit) error {
	_, err := db.Exec(ctx, `
		INSERT INTO wallet_deposits (id, user_id, track_id, tx_id, currency, network, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.UserID, d.TrackID, d.TxID, d.Currency, d.Network, infra.AtomicToNumeric(d.Amount))
	if err != nil {
		return fmt.Errorf("insert deposit: %w", err)
	}
	return nil
}

// UpsertCurrencies replaces the cached provider currency catalog.
func (r *PaymentRepository) UpsertCurrencies(ctx context.Context, db DBTX, currencies []domain.Currency) error {
	for _, c := range currencies {
		networks, err := json.Marshal(c.Networks)
		if err != nil {
			return fmt.Errorf("encode networks for %s: %w", c.Symbol, err)
		}
		_, err = db.Exec(ctx, `
			INSERT INTO wallet_provider_currency_catalog (symbol, name, networks)
			VALUES ($1, $2, $3)
			ON CONFLICT (symbol) DO UPDATE SET
			  name = EXCLUDED.name, networks = EXCLUDED.networks, updated_at = now()`,
			c.Symbol, c.Name, networks)
		if err != nil {
			return fmt.Errorf("upsert currency %s: %w", c.Symbol, err)
		}
	}
	return nil
}

// UpsertRate stores the coin value of one unit of a provider currency,
// in atomic units. Maintained by the external rate poller.
func (r *PaymentRepository) UpsertRate(ctx context.Context, db DBTX, symbol string, rate int64) error {
	_, err := db.Exec(ctx, `
		INSERT INTO currency_rates (symbol, rate) VALUES ($1, $2)
		ON CONFLICT (symbol) DO UPDATE SET rate = EXCLUDED.rate, updated_at = now()`,
		symbol, infra.AtomicToNumeric(rate))
	if err != nil {
		return fmt.Errorf("upsert rate %s: %w", symbol, err)
	}
	return nil
}

// FindRate returns the stored rate for a symbol in atomic units, 0 when no
// rate was recorded.
func (r *PaymentRepository) FindRate(ctx context.Context, db DBTX, symbol string) (int64, error) {
	row := db.QueryRow(ctx, `SELECT rate FROM currency_rates WHERE symbol = $1`, symbol)

	var n pgtype.Numeric
	if err := row.Scan(&n); err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil
		}
		return 0, fmt.Errorf("scan currency rate: %w", err)
	}
	rate, err := infra.NumericToAtomic(n)
	if err != nil {
		return 0, fmt.Errorf("decode currency rate %s: %w", symbol, err)
	}
	return rate, nil
}

// FindCurrency returns a catalog entry by symbol, nil if unsupported.
func (r *PaymentRepository) FindCurrency(ctx context.Context, db DBTX, symbol string) (*domain.Currency, error) {
	row := db.QueryRow(ctx, `
		SELECT symbol, name, networks FROM wallet_provider_currency_catalog
		WHERE symbol = $1`, symbol)

	var c domain.Currency
	var networks json.RawMessage
	err := row.Scan(&c.Symbol, &c.Name, &networks)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan currency: %w", err)
	}
	if err := json.Unmarshal(networks, &c.Networks); err != nil {
		return nil, fmt.Errorf("decode networks: %w", err)
	}
	return &c, nil
}

// ListCurrencies returns the whole catalog.
func (r *PaymentRepository) ListCurrencies(ctx context.Context, db DBTX) ([]domain.Currency, error) {
	rows, err := db.Query(ctx, `
		SELECT symbol, name, networks FROM wallet_provider_currency_catalog ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query currencies: %w", err)
	}
	defer rows.Close()

	var out []domain.Currency
	for rows.Next() {
		var c domain.Currency
		var networks json.RawMessage
		if err := rows.Scan(&c.Symbol, &c.Name, &networks); err != nil {
			return nil, fmt.Errorf("scan currency row: %w", err)
		}
		if err := json.Unmarshal(networks, &c.Networks); err != nil {
			return nil, fmt.Errorf("decode networks: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
