package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"promo-service/internal/ratelimit"
	"promo-service/internal/repository/promo"
	"promo-service/internal/service"
	"promo-service/internal/util"
)

// PromoHandler handles the public validate/redeem endpoints and the
// administrative CRUD surface.
type PromoHandler struct {
	promoService *service.PromoService
	logger       *zap.Logger
}

func NewPromoHandler(promoService *service.PromoService, logger *zap.Logger) *PromoHandler {
	return &PromoHandler{
		promoService: promoService,
		logger:       logger,
	}
}

// Response is the envelope for the admin surface
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// checkoutRequest is the public validate/redeem payload.
type checkoutRequest struct {
	Code           string  `json:"code"`
	PurchaseAmount float64 `json:"purchaseAmount"`
}

// checkoutResponse mirrors the checkout-flow contract. It only ever
// carries the first failing rule's message, never the full rule state.
type checkoutResponse struct {
	Valid        bool    `json:"valid"`
	Discount     float64 `json:"discount,omitempty"`
	DiscountType string  `json:"discountType,omitempty"`
	Message      string  `json:"message"`
}

// statsResponse aggregates the dashboard listing.
type statsResponse struct {
	TotalCodes  int64       `json:"total_codes"`
	TotalUsages int64       `json:"total_usages"`
	Codes       interface{} `json:"codes"`
}

// RegisterPublicRoutes mounts the unauthenticated checkout endpoints.
func (h *PromoHandler) RegisterPublicRoutes(router chi.Router) {
	router.Route("/promo-codes", func(r chi.Router) {
		r.Post("/validate", h.ValidateCode)
		r.Post("/redeem", h.RedeemCode)
	})
}

// RegisterAdminRoutes mounts the CRUD surface consumed by the admin UI.
func (h *PromoHandler) RegisterAdminRoutes(router chi.Router) {
	router.Route("/promo-codes", func(r chi.Router) {
		r.Get("/", h.ListCodes)
		r.Post("/", h.CreateCode)
		r.Get("/stats", h.GetStats)
		r.Get("/{code}", h.GetCode)
		r.Put("/{code}", h.UpdateCode)
		r.Patch("/{code}/toggle", h.ToggleCode)
		r.Delete("/{code}", h.DeleteCode)
	})
}

// ValidateCode checks a code against a purchase without consuming it.
func (h *PromoHandler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	result, err := h.promoService.Validate(ctx, req.Code, req.PurchaseAmount)
	if err != nil {
		h.respondWithError(w, http.StatusServiceUnavailable, err, "Unable to validate promo code")
		return
	}

	h.respondWithJSON(w, http.StatusOK, checkoutResult(result))
}

// RedeemCode consumes one use of a code for a purchase.
func (h *PromoHandler) RedeemCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	clientID := ratelimit.ClientIdentity(r)
	result, err := h.promoService.Redeem(ctx, req.Code, req.PurchaseAmount, clientID)
	if err != nil {
		// Fail closed: a discount is never granted on store trouble.
		h.respondWithError(w, http.StatusServiceUnavailable, err, "Unable to redeem promo code")
		return
	}

	h.respondWithJSON(w, http.StatusOK, checkoutResult(result))
	h.logger.Debug("Redeem request served",
		util.Bool("valid", result.Valid),
		util.Duration("duration", time.Since(startTime)),
	)
}

// CreateCode handles admin creation of a promo code.
func (h *PromoHandler) CreateCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.PromoCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	record, err := h.promoService.Create(ctx, &req)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to create promo code")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(record, "Promo code created successfully"))
}

func (h *PromoHandler) GetCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	record, err := h.promoService.Get(ctx, chi.URLParam(r, "code"))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get promo code")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(record, "Promo code retrieved successfully"))
}

func (h *PromoHandler) UpdateCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req service.PromoCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	record, err := h.promoService.Update(ctx, chi.URLParam(r, "code"), &req)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to update promo code")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(record, "Promo code updated successfully"))
}

func (h *PromoHandler) ToggleCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	record, err := h.promoService.Toggle(ctx, chi.URLParam(r, "code"))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to toggle promo code")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(record, "Promo code toggled successfully"))
}

func (h *PromoHandler) DeleteCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := h.promoService.Delete(ctx, chi.URLParam(r, "code")); err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to delete promo code")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Promo code deleted successfully"))
}

func (h *PromoHandler) ListCodes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.promoService.List(ctx)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to list promo codes")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(records, "Promo codes retrieved successfully"))
}

func (h *PromoHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, stats, err := h.promoService.ListWithStats(ctx)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get promo code stats")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(statsResponse{
		TotalCodes:  stats.TotalCodes,
		TotalUsages: stats.TotalUsages,
		Codes:       records,
	}, "Promo code stats retrieved successfully"))
}

func checkoutResult(result *service.ValidationResult) checkoutResponse {
	resp := checkoutResponse{
		Valid:   result.Valid,
		Message: result.Message,
	}
	if result.Valid {
		resp.Discount = result.Discount
		resp.DiscountType = string(result.DiscountType)
	}
	return resp
}

func (h *PromoHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, promo.ErrCodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrCodeExists):
		return http.StatusConflict
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (h *PromoHandler) respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", util.ErrorField(err))
	}
}

func (h *PromoHandler) respondWithError(w http.ResponseWriter, status int, err error, message string) {
	h.logger.Warn("Request failed",
		util.Int("status", status),
		util.String("message", message),
		util.ErrorField(err),
	)
	h.respondWithJSON(w, status, errorResponse(err, message))
}
