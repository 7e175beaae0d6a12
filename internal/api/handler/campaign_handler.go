package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/service"
)

// CampaignHandler serves per-campaign demand and view reports.
type CampaignHandler struct {
	pushes *service.PushService
	closer *service.ViewCloser
	logger *zap.Logger
}

func NewCampaignHandler(pushes *service.PushService, closer *service.ViewCloser, logger *zap.Logger) *CampaignHandler {
	return &CampaignHandler{pushes: pushes, closer: closer, logger: logger}
}

// Remaining handles GET /api/v1/campaigns/{id}/remaining
func (h *CampaignHandler) Remaining(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	dm, err := h.pushes.Remaining(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, dm)
}

// Report handles GET /api/v1/campaigns/{id}/report
func (h *CampaignHandler) Report(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rep, err := h.closer.Report(r.Context(), id)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

// Scan handles POST /api/v1/campaigns/{id}/scan
func (h *CampaignHandler) Scan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	n, err := h.pushes.ScanCampaign(r.Context(), id)
	if err != nil {
		h.logger.Warn("campaign scan failed", zap.Int64("campaign_id", id), zap.Error(err))
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"campaign_id": id, "pushes_created": n})
}
