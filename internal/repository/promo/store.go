// Package promo persists promotional codes behind a single Store
// interface with two implementations: a Redis-backed store for shared
// deployments and a single-file JSON store as the local fallback.
package promo

import (
	"context"
	"errors"

	"promo-service/internal/models"
)

var (
	ErrCodeNotFound      = errors.New("promo code not found")
	ErrUsageLimitReached = errors.New("promo code usage limit reached")
)

// Store expects codes already canonicalized by the caller; it does not
// fold case itself.
type Store interface {
	Get(ctx context.Context, code string) (*models.PromoCode, error)
	// Put upserts a record; creating a new code bumps TotalCodes.
	Put(ctx context.Context, code *models.PromoCode) error
	Delete(ctx context.Context, code string) error
	List(ctx context.Context) ([]*models.PromoCode, error)
	Stats(ctx context.Context) (*models.PromoStats, error)
	// IncrementUsage bumps UsedCount by exactly one, refusing when the
	// usage limit is already reached, and returns the updated record.
	IncrementUsage(ctx context.Context, code string) (*models.PromoCode, error)
}
