package domain

import (
	"time"

	"github.com/google/uuid"
)

// Network is a blockchain network a provider currency can move on. Amounts
// are decimal strings exactly as the provider reports them.
type Network struct {
	Name        string `json:"name"`
	MinDeposit  string `json:"minDeposit,omitempty"`
	MinWithdraw string `json:"minWithdraw,omitempty"`
	MaxWithdraw string `json:"maxWithdraw,omitempty"`
	WithdrawFee string `json:"withdrawFee,omitempty"`
}

// Currency is a wallet_provider_currency_catalog row.
type Currency struct {
	Symbol   string    `json:"symbol"`
	Name     string    `json:"name"`
	Networks []Network `json:"networks"`
}

// FindNetwork returns the named network, false if unsupported.
func (c *Currency) FindNetwork(name string) (Network, bool) {
	for _, n := range c.Networks {
		if n.Name == name {
			return n, true
		}
	}
	return Network{}, false
}

// Deposit is a wallet_deposits row: one credited provider transfer.
type Deposit struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	TrackID   string    `json:"trackId"`
	TxID      string    `json:"txId"`
	Currency  string    `json:"currency"`
	Network   string    `json:"network"`
	Amount    int64     `json:"amount"`
	CreatedAt time.Time `json:"createdAt"`
}
