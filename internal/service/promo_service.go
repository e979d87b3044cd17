package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"promo-service/internal/models"
	"promo-service/internal/repository/promo"
	"promo-service/internal/util"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrCodeExists   = errors.New("promo code already exists")
	ErrCodeNotFound = promo.ErrCodeNotFound
)

// ValidationReason is the typed rule outcome; the wire format collapses
// it to the human-readable message, but tests assert on the reason.
type ValidationReason string

const (
	ReasonValid             ValidationReason = "valid"
	ReasonNotFound          ValidationReason = "not_found"
	ReasonInactive          ValidationReason = "inactive"
	ReasonExpired           ValidationReason = "expired"
	ReasonUsageLimitReached ValidationReason = "usage_limit_reached"
	ReasonBelowMinPurchase  ValidationReason = "below_min_purchase"
)

type ValidationResult struct {
	Valid        bool
	Discount     float64
	DiscountType models.DiscountType
	Reason       ValidationReason
	Message      string
}

// PromoCodeRequest carries every admin-settable field. UsedCount is
// server-assigned and never accepted from the client.
type PromoCodeRequest struct {
	Code              string              `json:"code"`
	Description       string              `json:"description"`
	Discount          float64             `json:"discount"`
	DiscountType      models.DiscountType `json:"discount_type"`
	IsActive          bool                `json:"is_active"`
	ExpiresAt         *time.Time          `json:"expires_at"`
	UsageLimit        *int                `json:"usage_limit"`
	MinPurchaseAmount *float64            `json:"min_purchase_amount"`
}

// EventPublisher receives redemption audit events. Implementations must
// tolerate being called on the request path; failures are logged, never
// propagated into the redemption outcome.
type EventPublisher interface {
	PublishRedemption(ctx context.Context, event *models.RedemptionEvent) error
}

// PromoService owns canonicalization, the ordered validation rules, and
// the redemption sequence. Store errors on the redemption path always
// fail closed: a discount is never granted unless its usage increment
// was durably recorded.
type PromoService struct {
	store     promo.Store
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewPromoService creates the service. publisher may be nil when no
// event transport is configured.
func NewPromoService(store promo.Store, publisher EventPublisher, logger *zap.Logger) *PromoService {
	return &PromoService{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// CanonicalCode folds a user-supplied code to its stored form.
func CanonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *PromoService) Create(ctx context.Context, req *PromoCodeRequest) (*models.PromoCode, error) {
	code := CanonicalCode(req.Code)
	if err := validateRequest(code, req); err != nil {
		return nil, err
	}

	if _, err := s.store.Get(ctx, code); err == nil {
		return nil, ErrCodeExists
	} else if !errors.Is(err, promo.ErrCodeNotFound) {
		return nil, fmt.Errorf("failed to check existing promo code: %w", err)
	}

	now := s.now().UTC()
	record := &models.PromoCode{
		Code:              code,
		Description:       util.SanitizeInput(req.Description),
		Discount:          req.Discount,
		DiscountType:      req.DiscountType,
		IsActive:          req.IsActive,
		ExpiresAt:         req.ExpiresAt,
		UsageLimit:        req.UsageLimit,
		UsedCount:         0,
		MinPurchaseAmount: req.MinPurchaseAmount,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create promo code: %w", err)
	}

	s.logger.Info("Promo code created",
		util.String("code", code),
		util.Float64("discount", record.Discount),
		util.String("discount_type", string(record.DiscountType)),
	)
	return record, nil
}

// Update replaces the admin-settable fields of an existing code while
// preserving UsedCount and CreatedAt.
func (s *PromoService) Update(ctx context.Context, rawCode string, req *PromoCodeRequest) (*models.PromoCode, error) {
	code := CanonicalCode(rawCode)
	if err := validateRequest(code, &PromoCodeRequest{
		Code:              code,
		Discount:          req.Discount,
		DiscountType:      req.DiscountType,
		UsageLimit:        req.UsageLimit,
		MinPurchaseAmount: req.MinPurchaseAmount,
	}); err != nil {
		return nil, err
	}

	existing, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	record := &models.PromoCode{
		Code:              code,
		Description:       util.SanitizeInput(req.Description),
		Discount:          req.Discount,
		DiscountType:      req.DiscountType,
		IsActive:          req.IsActive,
		ExpiresAt:         req.ExpiresAt,
		UsageLimit:        req.UsageLimit,
		UsedCount:         existing.UsedCount,
		MinPurchaseAmount: req.MinPurchaseAmount,
		CreatedAt:         existing.CreatedAt,
		UpdatedAt:         s.now().UTC(),
	}

	if err := s.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to update promo code: %w", err)
	}

	s.logger.Info("Promo code updated", util.String("code", code))
	return record, nil
}

// Toggle flips the administrator kill switch without touching any other
// field.
func (s *PromoService) Toggle(ctx context.Context, rawCode string) (*models.PromoCode, error) {
	code := CanonicalCode(rawCode)

	record, err := s.store.Get(ctx, code)
	if err != nil {
		return nil, err
	}

	record.IsActive = !record.IsActive
	record.UpdatedAt = s.now().UTC()

	if err := s.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to toggle promo code: %w", err)
	}

	s.logger.Info("Promo code toggled",
		util.String("code", code),
		util.Bool("is_active", record.IsActive),
	)
	return record, nil
}

func (s *PromoService) Delete(ctx context.Context, rawCode string) error {
	code := CanonicalCode(rawCode)
	if err := s.store.Delete(ctx, code); err != nil {
		return err
	}
	s.logger.Info("Promo code deleted", util.String("code", code))
	return nil
}

func (s *PromoService) Get(ctx context.Context, rawCode string) (*models.PromoCode, error) {
	return s.store.Get(ctx, CanonicalCode(rawCode))
}

func (s *PromoService) List(ctx context.Context) ([]*models.PromoCode, error) {
	return s.store.List(ctx)
}

// ListWithStats fetches the code listing and the aggregate counters
// concurrently for the admin dashboard.
func (s *PromoService) ListWithStats(ctx context.Context) ([]*models.PromoCode, *models.PromoStats, error) {
	var (
		codes []*models.PromoCode
		stats *models.PromoStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		codes, err = s.store.List(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.store.Stats(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return codes, stats, nil
}

func (s *PromoService) Stats(ctx context.Context) (*models.PromoStats, error) {
	return s.store.Stats(ctx)
}

// Validate runs the ordered rules against a code without mutating it.
// Store failures propagate as errors (fail closed) rather than being
// reported as an invalid code.
func (s *PromoService) Validate(ctx context.Context, rawCode string, purchaseAmount float64) (*ValidationResult, error) {
	code := CanonicalCode(rawCode)

	record, err := s.store.Get(ctx, code)
	if err != nil {
		if errors.Is(err, promo.ErrCodeNotFound) {
			return notFoundResult(), nil
		}
		return nil, fmt.Errorf("failed to look up promo code: %w", err)
	}

	if result := s.evaluate(record, purchaseAmount); result != nil {
		return result, nil
	}
	return validResult(record), nil
}

// Redeem re-runs the rules against the amount supplied at redemption
// time, then performs the usage increment through the store. The
// increment is atomic under the Redis store; under the file store the
// validate-to-increment gap is only serialized within this process.
func (s *PromoService) Redeem(ctx context.Context, rawCode string, purchaseAmount float64, clientID string) (*ValidationResult, error) {
	code := CanonicalCode(rawCode)

	record, err := s.store.Get(ctx, code)
	if err != nil {
		if errors.Is(err, promo.ErrCodeNotFound) {
			return notFoundResult(), nil
		}
		return nil, fmt.Errorf("failed to look up promo code: %w", err)
	}

	if result := s.evaluate(record, purchaseAmount); result != nil {
		return result, nil
	}

	updated, err := s.store.IncrementUsage(ctx, code)
	if err != nil {
		if errors.Is(err, promo.ErrCodeNotFound) {
			return notFoundResult(), nil
		}
		if errors.Is(err, promo.ErrUsageLimitReached) {
			// Lost the race for the last slot.
			return failureResult(ReasonUsageLimitReached), nil
		}
		return nil, fmt.Errorf("failed to record promo code redemption: %w", err)
	}

	s.logger.Info("Promo code redeemed",
		util.String("code", code),
		util.Float64("purchase_amount", purchaseAmount),
		util.Int("used_count", updated.UsedCount),
	)

	s.publishRedemption(ctx, updated, purchaseAmount, clientID)

	return validResult(updated), nil
}

// evaluate applies rules 2-5 in order; rule 1 (existence) is the store
// lookup. Returns nil when every rule passes. The order is part of the
// user-facing contract: the first failing rule names the rejection.
func (s *PromoService) evaluate(record *models.PromoCode, purchaseAmount float64) *ValidationResult {
	if !record.IsActive {
		return failureResult(ReasonInactive)
	}
	if record.Expired(s.now()) {
		return failureResult(ReasonExpired)
	}
	if record.UsageExhausted() {
		return failureResult(ReasonUsageLimitReached)
	}
	if record.MinPurchaseAmount != nil && purchaseAmount < *record.MinPurchaseAmount {
		result := failureResult(ReasonBelowMinPurchase)
		result.Message = fmt.Sprintf("A minimum purchase of %.2f is required to use this code", *record.MinPurchaseAmount)
		return result
	}
	return nil
}

func (s *PromoService) publishRedemption(ctx context.Context, record *models.PromoCode, purchaseAmount float64, clientID string) {
	if s.publisher == nil {
		return
	}

	event := &models.RedemptionEvent{
		EventID:        uuid.NewString(),
		Code:           record.Code,
		PurchaseAmount: purchaseAmount,
		Discount:       record.Discount,
		DiscountType:   record.DiscountType,
		ClientID:       clientID,
		RedeemedAt:     s.now().UTC(),
	}

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()

	if err := s.publisher.PublishRedemption(publishCtx, event); err != nil {
		s.logger.Warn("Failed to publish redemption event",
			util.String("code", record.Code),
			util.String("event_id", event.EventID),
			util.ErrorField(err),
		)
	}
}

func validResult(record *models.PromoCode) *ValidationResult {
	return &ValidationResult{
		Valid:        true,
		Discount:     record.Discount,
		DiscountType: record.DiscountType,
		Reason:       ReasonValid,
		Message:      "Promo code applied",
	}
}

func notFoundResult() *ValidationResult {
	return failureResult(ReasonNotFound)
}

func failureResult(reason ValidationReason) *ValidationResult {
	messages := map[ValidationReason]string{
		ReasonNotFound:          "Invalid promo code",
		ReasonInactive:          "This promo code is no longer active",
		ReasonExpired:           "This promo code has expired",
		ReasonUsageLimitReached: "This promo code has reached its usage limit",
		ReasonBelowMinPurchase:  "The purchase amount is below the minimum for this code",
	}
	return &ValidationResult{
		Valid:   false,
		Reason:  reason,
		Message: messages[reason],
	}
}

func validateRequest(code string, req *PromoCodeRequest) error {
	if code == "" {
		return fmt.Errorf("%w: code is required", ErrInvalidInput)
	}
	if req.Discount <= 0 {
		return fmt.Errorf("%w: discount must be positive", ErrInvalidInput)
	}
	switch req.DiscountType {
	case models.DiscountPercentage:
		if req.Discount > 100 {
			return fmt.Errorf("%w: percentage discount cannot exceed 100", ErrInvalidInput)
		}
	case models.DiscountFixed:
	default:
		return fmt.Errorf("%w: discount type must be percentage or fixed", ErrInvalidInput)
	}
	if req.UsageLimit != nil && *req.UsageLimit <= 0 {
		return fmt.Errorf("%w: usage limit must be positive", ErrInvalidInput)
	}
	if req.MinPurchaseAmount != nil && *req.MinPurchaseAmount <= 0 {
		return fmt.Errorf("%w: minimum purchase amount must be positive", ErrInvalidInput)
	}
	return nil
}
