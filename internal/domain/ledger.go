package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// LedgerType enumerates wallet ledger entry types.
type LedgerType string

const (
	LedgerDeposit  LedgerType = "deposit"
	LedgerWithdraw LedgerType = "withdraw"
	LedgerExchange LedgerType = "exchange"
	LedgerGameBet  LedgerType = "game_bet"
	LedgerPayout   LedgerType = "game_payout"
	LedgerPromo    LedgerType = "promo"
)

// LedgerEntry represents a wallet_ledger row (append-only).
// RequestID is unique when present: a retried mutation collapses onto the
// first committed row.
type LedgerEntry struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"userId"`
	RequestID         *string         `json:"requestId,omitempty"`
	Type              LedgerType      `json:"type"`
	AmountMain        int64           `json:"amountMain"`
	AmountBonus       int64           `json:"amountBonus"`
	BalanceMainAfter  int64           `json:"balanceMainAfter"`
	BalanceBonusAfter int64           `json:"balanceBonusAfter"`
	Metadata          json.RawMessage `json:"metadata"`
	CreatedAt         time.Time       `json:"createdAt"`
}

// RequestStatus enumerates request_ledger row states.
type RequestStatus string

const (
	RequestProcessing RequestStatus = "processing"
	RequestCompleted  RequestStatus = "completed"
	RequestFailed     RequestStatus = "failed"
)

// RequestRecord represents a request_ledger row keyed by (userId, requestId).
type RequestRecord struct {
	UserID    uuid.UUID       `json:"userId"`
	RequestID string          `json:"requestId"`
	Type      string          `json:"type"`
	Status    RequestStatus   `json:"status"`
	Response  json.RawMessage `json:"response,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Lease is a held named mutex row from the locks table.
type Lease struct {
	Key       string    `json:"key"`
	OwnerID   uuid.UUID `json:"ownerId"`
	ExpiresAt time.Time `json:"expiresAt"`
}
