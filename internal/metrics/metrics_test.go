package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/notifyhub/campaign-push/internal/domain"
	"github.com/notifyhub/campaign-push/internal/metrics"
)

func TestServiceHooks(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	hooks := m.ServiceHooks()

	hooks.OnPushCreated(7)
	hooks.OnPushCreated(7)
	hooks.OnSend(true)
	hooks.OnSend(false)
	hooks.OnSend(true)
	hooks.OnCancelled(domain.PushExpired, 3)
	hooks.OnRetractFailed()
	hooks.OnReminder(false)
	hooks.OnCampaignDisabled()
	hooks.OnTrigger("expire", time.Second, errors.New("boom"))

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"created", m.PushesCreated.WithLabelValues("7"), 2},
		{"delivered", m.PushSends.WithLabelValues("delivered"), 2},
		{"failed", m.PushSends.WithLabelValues("failed"), 1},
		{"expired", m.PushesCancelled.WithLabelValues("expired"), 3},
		{"retract failures", m.RetractFailures, 1},
		{"reminder failed", m.Reminders.WithLabelValues("failed"), 1},
		{"disabled", m.CampaignsDisabled, 1},
	}
	for _, tc := range checks {
		if got := testutil.ToFloat64(tc.c); got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}

	if n := testutil.CollectAndCount(m.TriggerDuration); n != 1 {
		t.Fatalf("expected one trigger series, got %d", n)
	}
}

func TestSetQueueDepths(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	m.SetQueueDepths(1, 2, 3, 4)

	if testutil.ToFloat64(m.QueueDepthHigh) != 1 || testutil.ToFloat64(m.QueueDepthDelayed) != 4 {
		t.Fatal("queue depth gauges not updated")
	}
}
