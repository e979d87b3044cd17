package models

import "time"

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PromoCode is the durable promotional-code record. Code is the primary
// key, stored canonicalized to uppercase.
type PromoCode struct {
	Code              string       `json:"code"`
	Description       string       `json:"description,omitempty"`
	Discount          float64      `json:"discount"`
	DiscountType      DiscountType `json:"discount_type"`
	IsActive          bool         `json:"is_active"`
	ExpiresAt         *time.Time   `json:"expires_at,omitempty"`
	UsageLimit        *int         `json:"usage_limit,omitempty"`
	UsedCount         int          `json:"used_count"`
	MinPurchaseAmount *float64     `json:"min_purchase_amount,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Expired reports whether the code's expiry has passed at the given
// instant. Codes without an expiry never expire.
func (p *PromoCode) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !now.Before(*p.ExpiresAt)
}

// UsageExhausted reports whether the usage cap has been reached. Codes
// without a limit are never exhausted.
func (p *PromoCode) UsageExhausted() bool {
	return p.UsageLimit != nil && p.UsedCount >= *p.UsageLimit
}
