package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/service"
)

// AssignmentHandler records payment receipts.
type AssignmentHandler struct {
	receipts *service.ReceiptService
	logger   *zap.Logger
}

func NewAssignmentHandler(receipts *service.ReceiptService, logger *zap.Logger) *AssignmentHandler {
	return &AssignmentHandler{receipts: receipts, logger: logger}
}

// receiptRequest carries a receipt; Date is YYYY-MM-DD.
type receiptRequest struct {
	Price int    `json:"receipt_price"`
	Date  string `json:"receipt_date"`
}

// Receipt handles PUT /api/v1/assignments/{id}/receipt
func (h *AssignmentHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req receiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var date time.Time
	if req.Date != "" {
		d, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			respondError(w, http.StatusBadRequest, "receipt_date must be YYYY-MM-DD")
			return
		}
		date = d
	}

	a, err := h.receipts.Record(r.Context(), id, req.Price, date)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}
