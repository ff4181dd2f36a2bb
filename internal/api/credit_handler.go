package api

import (
	"context"
	"net/http"

	"github.com/recaphq/recap-api/internal/api/shared"
	"github.com/recaphq/recap-api/internal/service"
)

// CreditLedger is the part of the credit ledger the HTTP surface uses.
type CreditLedger interface {
	Balance(ctx context.Context, userID string) (int, error)
	EnsureAccount(ctx context.Context, userID string) (int, error)
	RedeemCoupon(ctx context.Context, code, userID string) (int, error)
	CouponCredits() int
}

// CreditsResponse carries a balance.
type CreditsResponse struct {
	Credits int `json:"credits"`
}

// RedeemCouponRequest is the body of POST /api/coupons/redeem.
type RedeemCouponRequest struct {
	Code   string `json:"code"`
	UserID string `json:"userId"`
}

// RedeemCouponResponse reports the credits a coupon granted and the new balance.
type RedeemCouponResponse struct {
	Success bool `json:"success"`
	Credits int  `json:"credits"`
	Balance int  `json:"balance"`
}

// CreditHandler serves balances and coupon redemption.
type CreditHandler struct {
	ledger CreditLedger
}

// NewCreditHandler creates a CreditHandler.
func NewCreditHandler(ledger CreditLedger) *CreditHandler {
	return &CreditHandler{ledger: ledger}
}

// GetCredits handles GET /api/credits. The account is created with the free
// grant on first read.
func (h *CreditHandler) GetCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	balance, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get credits")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CreditsResponse{Credits: balance})
}

// InitCredits handles POST /api/credits. Calling it again is a no-op.
func (h *CreditHandler) InitCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	balance, err := h.ledger.EnsureAccount(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to initialize credits")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, CreditsResponse{Credits: balance})
}

// RedeemCoupon handles POST /api/coupons/redeem.
func (h *CreditHandler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	var req RedeemCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" || req.UserID == "" {
		HandleAPIError(w, r, service.ErrMissingFields, "")
		return
	}

	balance, err := h.ledger.RedeemCoupon(r.Context(), req.Code, req.UserID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to redeem coupon")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, RedeemCouponResponse{
		Success: true,
		Credits: h.ledger.CouponCredits(),
		Balance: balance,
	})
}
