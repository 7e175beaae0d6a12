package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	apimw "github.com/notifyhub/campaign-push/internal/api/middleware"
	"github.com/notifyhub/campaign-push/internal/service"
)

// PushHandler exposes push lookup and the admin responses.
type PushHandler struct {
	pushes    *service.PushService
	lifecycle *service.Lifecycle
	logger    *zap.Logger
}

func NewPushHandler(pushes *service.PushService, lifecycle *service.Lifecycle, logger *zap.Logger) *PushHandler {
	return &PushHandler{pushes: pushes, lifecycle: lifecycle, logger: logger}
}

// acceptRequest names the admin accepting the push by internal user id.
type acceptRequest struct {
	UserID int64 `json:"user_id"`
}

// Get handles GET /api/v1/pushes/{id}
func (h *PushHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.pushes.GetPush(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Reject handles POST /api/v1/pushes/{id}/reject
func (h *PushHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := h.lifecycle.Reject(r.Context(), id)
	if err != nil {
		h.logger.Warn("reject push failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Int64("push_id", id),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Accept handles POST /api/v1/pushes/{id}/accept
func (h *PushHandler) Accept(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID <= 0 {
		respondError(w, http.StatusBadRequest, "body must be {\"user_id\": <positive integer>}")
		return
	}

	a, err := h.lifecycle.Accept(r.Context(), id, req.UserID)
	if err != nil {
		h.logger.Warn("accept push failed",
			zap.String("correlation_id", apimw.GetCorrelationID(r.Context())),
			zap.Int64("push_id", id),
			zap.Error(err),
		)
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}
