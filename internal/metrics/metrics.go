package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/notifyhub/campaign-push/internal/domain"
	"github.com/notifyhub/campaign-push/internal/service"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	PushesCreated     *prometheus.CounterVec
	PushSends         *prometheus.CounterVec
	PushesCancelled   *prometheus.CounterVec
	RetractFailures   prometheus.Counter
	Reminders         *prometheus.CounterVec
	CampaignsDisabled prometheus.Counter
	JobsDropped       *prometheus.CounterVec
	TriggerDuration   *prometheus.HistogramVec
	QueueDepthHigh    prometheus.Gauge
	QueueDepthNormal  prometheus.Gauge
	QueueDepthLow     prometheus.Gauge
	QueueDepthDelayed prometheus.Gauge
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// A custom registry keeps tests isolated from global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PushesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_pushes_created_total",
			Help: "Push batches created by the demand scan.",
		}, []string{"campaign_id"}),

		PushSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_push_sends_total",
			Help: "Per-recipient push deliveries by outcome.",
		}, []string{"outcome"}),

		PushesCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_pushes_cancelled_total",
			Help: "Pushes moved to a cancelled status.",
		}, []string{"status"}),

		RetractFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campaign_push_retract_failures_total",
			Help: "Push messages that could not be deleted after cancellation.",
		}),

		Reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_screenshot_reminders_total",
			Help: "Screenshot reminders by outcome.",
		}, []string{"outcome"}),

		CampaignsDisabled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campaigns_disabled_by_max_view_total",
			Help: "Campaigns disabled because a content reached max_view.",
		}),

		JobsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaign_jobs_dropped_total",
			Help: "Background jobs dropped because the queue was full or stopped.",
		}, []string{"kind"}),

		TriggerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "campaign_trigger_seconds",
			Help:    "Duration of periodic trigger runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"trigger", "result"}),

		QueueDepthHigh: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_high",
			Help: "Current number of items in the high-priority queue.",
		}),
		QueueDepthNormal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_normal",
			Help: "Current number of items in the normal-priority queue.",
		}),
		QueueDepthLow: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_low",
			Help: "Current number of items in the low-priority queue.",
		}),
		QueueDepthDelayed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "queue_depth_delayed",
			Help: "Current number of jobs waiting for their delay to elapse.",
		}),
	}

	reg.MustRegister(
		m.PushesCreated,
		m.PushSends,
		m.PushesCancelled,
		m.RetractFailures,
		m.Reminders,
		m.CampaignsDisabled,
		m.JobsDropped,
		m.TriggerDuration,
		m.QueueDepthHigh,
		m.QueueDepthNormal,
		m.QueueDepthLow,
		m.QueueDepthDelayed,
	)

	return m
}

// ServiceHooks returns the callbacks expected by service.Hooks.
// Centralises the prometheus observation calls so services stay import-free.
func (m *Metrics) ServiceHooks() service.Hooks {
	return service.Hooks{
		OnPushCreated: func(campaignID int64) {
			m.PushesCreated.WithLabelValues(strconv.FormatInt(campaignID, 10)).Inc()
		},
		OnSend: func(delivered bool) {
			m.PushSends.WithLabelValues(outcome(delivered)).Inc()
		},
		OnCancelled: func(status domain.PushStatus, n int) {
			m.PushesCancelled.WithLabelValues(string(status)).Add(float64(n))
		},
		OnRetractFailed: func() {
			m.RetractFailures.Inc()
		},
		OnReminder: func(delivered bool) {
			m.Reminders.WithLabelValues(outcome(delivered)).Inc()
		},
		OnCampaignDisabled: func() {
			m.CampaignsDisabled.Inc()
		},
		OnTrigger: func(name string, elapsed time.Duration, err error) {
			result := "ok"
			if err != nil {
				result = "error"
			}
			m.TriggerDuration.WithLabelValues(name, result).Observe(elapsed.Seconds())
		},
	}
}

// SetQueueDepths publishes a queue depth snapshot.
func (m *Metrics) SetQueueDepths(high, normal, low, delayed int) {
	m.QueueDepthHigh.Set(float64(high))
	m.QueueDepthNormal.Set(float64(normal))
	m.QueueDepthLow.Set(float64(low))
	m.QueueDepthDelayed.Set(float64(delayed))
}

func outcome(delivered bool) string {
	if delivered {
		return "delivered"
	}
	return "failed"
}
