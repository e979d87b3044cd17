package models

import "time"

// RedemptionEvent is the audit payload published when a code is redeemed.
// Events are emitted best-effort; the aggregate UsedCount on the code
// remains the source of truth.
type RedemptionEvent struct {
	EventID        string       `json:"event_id"`
	Code           string       `json:"code"`
	PurchaseAmount float64      `json:"purchase_amount"`
	Discount       float64      `json:"discount"`
	DiscountType   DiscountType `json:"discount_type"`
	ClientID       string       `json:"client_id,omitempty"`
	RedeemedAt     time.Time    `json:"redeemed_at"`
}
