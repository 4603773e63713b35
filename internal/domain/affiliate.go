package domain

import (
	"time"

	"github.com/google/uuid"
)

// AffiliateVisit is an affiliate_visits row recorded when a referral link is
// opened.
type AffiliateVisit struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Referrer  string    `json:"referrer,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AffiliateEarning is an affiliate_earnings row. EventKey is unique so one
// game win credits the referrer at most once.
type AffiliateEarning struct {
	ID              uuid.UUID `json:"id"`
	AffiliateUserID uuid.UUID `json:"affiliateUserId"`
	SourceUserID    uuid.UUID `json:"sourceUserId"`
	Amount          int64     `json:"amount"`
	EventKey        string    `json:"eventKey"`
	CreatedAt       time.Time `json:"createdAt"`
}
