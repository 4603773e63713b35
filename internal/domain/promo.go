package domain

import (
	"time"

	"github.com/google/uuid"
)

// RewardType selects which sub-balance a promo credits.
type RewardType string

const (
	RewardMain  RewardType = "main"
	RewardBonus RewardType = "bonus"
)

// Promo represents a promocodes row. Codes are normalized to upper-case on
// write and on lookup.
type Promo struct {
	ID                 uuid.UUID  `json:"id"`
	Code               string     `json:"code"`
	RewardType         RewardType `json:"rewardType"`
	RewardAmount       int64      `json:"rewardAmount"`
	MaxRedemptions     int64      `json:"maxRedemptions"`
	CurrentRedemptions int64      `json:"currentRedemptions"`
	Active             bool       `json:"active"`
	StartsAt           *time.Time `json:"startsAt,omitempty"`
	ExpiresAt          *time.Time `json:"expiresAt,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

// PromoRedemption represents a promo_redemptions row; (userId, promoCodeId)
// is unique so a second redemption attempt collides.
type PromoRedemption struct {
	ID          uuid.UUID `json:"id"`
	PromoCodeID uuid.UUID `json:"promoCodeId"`
	UserID      uuid.UUID `json:"userId"`
	Amount      int64     `json:"amount"`
	RequestID   *string   `json:"requestId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}
