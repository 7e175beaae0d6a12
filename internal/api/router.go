package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/notifyhub/campaign-push/internal/api/handler"
	apimw "github.com/notifyhub/campaign-push/internal/api/middleware"
	"github.com/notifyhub/campaign-push/internal/queue"
	"github.com/notifyhub/campaign-push/internal/service"
)

// Services bundles what the HTTP surface calls into.
type Services struct {
	Pushes    *service.PushService
	Lifecycle *service.Lifecycle
	Closer    *service.ViewCloser
	Receipts  *service.ReceiptService
	Triggers  *service.Triggers
}

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
func NewRouter(
	svc Services,
	q *queue.PriorityQueue,
	db handler.Pinger,
	reg prometheus.Gatherer,
	corsOrigins []string,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(1 << 20))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Correlation-ID", "X-Request-ID"},
		ExposedHeaders: []string{"X-Correlation-ID"},
	}).Handler)
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger, "/health", "/metrics"))

	// --- handler instances ---
	ph := handler.NewPushHandler(svc.Pushes, svc.Lifecycle, logger)
	ch := handler.NewCampaignHandler(svc.Pushes, svc.Closer, logger)
	ah := handler.NewAssignmentHandler(svc.Receipts, logger)
	th := handler.NewTriggerHandler(svc.Triggers)
	qh := handler.NewQueueHandler(q)
	hh := handler.NewHealthHandler(db)

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/pushes/{id}", ph.Get)
		r.Post("/pushes/{id}/reject", ph.Reject)
		r.Post("/pushes/{id}/accept", ph.Accept)

		r.Get("/campaigns/{id}/remaining", ch.Remaining)
		r.Get("/campaigns/{id}/report", ch.Report)
		r.Post("/campaigns/{id}/scan", ch.Scan)

		r.Put("/assignments/{id}/receipt", ah.Receipt)

		r.Post("/triggers/{name}", th.Run)

		r.Get("/queue", qh.Snapshot)
	})

	return r
}
