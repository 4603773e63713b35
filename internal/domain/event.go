package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Aggregate type tags for outbox events. Game orchestrators use their game
// name ("dice", "crash", ...) as the aggregate type.
const (
	AggregateWallet = "wallet"
	AggregateUser   = "user"
	AggregateChat   = "chat"
	AggregatePromo  = "promo"
	AggregateStream = "stream"
)

// Fixed event types. Game round events are formed as "<game>.<phase>"
// ("crash.tick", "wheel.spin") by the orchestrators.
const (
	EventBalanceUpdated = "wallet.balance.updated"
	EventUserRegistered = "user.registered"
	EventChatMessage    = "chat.message"
	EventChatOnline     = "chat.online"
	EventPromoRedeemed  = "promo.redeem.result"
	EventStreamBet      = "stream.bet.created"
)

// Event is both the outbox row payload and the normalized bus event.
// Version mirrors the writer's state version (wallet stateVersion or round
// version) so consumers can discard stale snapshots.
type Event struct {
	EventID       uuid.UUID       `json:"eventId"`
	Type          string          `json:"type"`
	AggregateType string          `json:"aggregateType"`
	AggregateID   string          `json:"aggregateId"`
	Version       int64           `json:"version"`
	UserID        *uuid.UUID      `json:"userId,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// NewEvent builds a broadcast event delivered to every matching subscription.
func NewEvent(eventType, aggregateType, aggregateID string, version int64, payload any) Event {
	raw, _ := json.Marshal(payload)
	return Event{
		EventID:       uuid.New(),
		Type:          eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Version:       version,
		Payload:       raw,
		CreatedAt:     time.Now().UTC(),
	}
}

// NewUserEvent builds an event targeted at a single user's sockets.
func NewUserEvent(eventType, aggregateType, aggregateID string, version int64, userID uuid.UUID, payload any) Event {
	e := NewEvent(eventType, aggregateType, aggregateID, version, payload)
	e.UserID = &userID
	return e
}

// NewBalanceUpdatedEvent is the standard wallet event for a ledger entry.
func NewBalanceUpdatedEvent(entry *LedgerEntry, stateVersion int64) Event {
	payload := map[string]any{
		"userId":       entry.UserID,
		"ledgerId":     entry.ID,
		"ledgerType":   entry.Type,
		"main":         entry.BalanceMainAfter,
		"bonus":        entry.BalanceBonusAfter,
		"stateVersion": stateVersion,
	}
	return NewUserEvent(EventBalanceUpdated, AggregateWallet, entry.UserID.String(), stateVersion, entry.UserID, payload)
}
