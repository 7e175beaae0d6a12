package handler

import (
	"net/http"

	"github.com/notifyhub/campaign-push/internal/queue"
)

// DepthSource reports how many jobs wait in each tier.
type DepthSource interface {
	Depths() (high, normal, low, delayed int)
}

// QueueHandler serves a JSON snapshot of pending background jobs. Raw
// Prometheus metrics are served separately at /metrics.
type QueueHandler struct {
	q DepthSource
}

func NewQueueHandler(q DepthSource) *QueueHandler {
	return &QueueHandler{q: q}
}

type tierDepth struct {
	Kind    queue.Kind `json:"kind"`
	Pending int        `json:"pending"`
}

// Snapshot handles GET /api/v1/queue
func (h *QueueHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	high, normal, low, delayed := h.q.Depths()
	respondJSON(w, http.StatusOK, map[string]any{
		"tiers": []tierDepth{
			{Kind: queue.KindRetract, Pending: high},
			{Kind: queue.KindDispatch, Pending: normal},
			{Kind: queue.KindRemind, Pending: low},
		},
		"delayed": delayed,
		"total":   high + normal + low + delayed,
	})
}
