package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/ledger"
)

// CreditHandlers serves balances and simulated purchases.
type CreditHandlers struct {
	ledger *ledger.Coordinator
	logger *zap.Logger
}

// NewCreditHandlers returns handler struct.
func NewCreditHandlers(l *ledger.Coordinator, logger *zap.Logger) *CreditHandlers {
	return &CreditHandlers{ledger: l, logger: logger}
}

type purchaseRequest struct {
	PackageID string `json:"packageId" validate:"required"`
}

type purchaseResponse struct {
	Package ledger.Package `json:"package"`
	Balance int            `json:"greenCredits"`
}

// Packages handles GET /api/credits/packages.
func (h *CreditHandlers) Packages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ledger.Packages())
}

// Purchase handles POST /api/credits/purchase.
func (h *CreditHandlers) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := decodeBody(r, &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	userID := actor(r)
	pkg, err := h.ledger.Purchase(r.Context(), userID, req.PackageID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	balance, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, purchaseResponse{Package: pkg, Balance: balance})
}
