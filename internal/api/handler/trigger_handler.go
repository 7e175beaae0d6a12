package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/notifyhub/campaign-push/internal/service"
)

// TriggerHandler runs a periodic trigger on demand.
type TriggerHandler struct {
	triggers *service.Triggers
}

func NewTriggerHandler(triggers *service.Triggers) *TriggerHandler {
	return &TriggerHandler{triggers: triggers}
}

// Run handles POST /api/v1/triggers/{name}
func (h *TriggerHandler) Run(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	n, err := h.triggers.Run(r.Context(), name)
	if err != nil {
		mapError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"trigger": name, "affected": n})
}
