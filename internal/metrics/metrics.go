// Package metrics registers the runtime's Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// modulesDiscovered tracks the size of the current catalog
	modulesDiscovered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "focus_modules_discovered",
			Help: "Number of module definitions in the current catalog",
		},
	)

	// discoveryProblems tracks manifests and assemblies rejected during discovery
	discoveryProblems = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focus_discovery_problems_total",
			Help: "Total discovery problems by kind",
		},
		[]string{"kind"},
	)

	instancesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "focus_module_instances_active",
			Help: "Number of module instances whose scope is still open",
		},
	)

	// hookDuration tracks how long module lifecycle hooks take
	hookDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "focus_hook_duration_seconds",
			Help:    "Duration of module lifecycle hooks by phase",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"phase"},
	)

	hookFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focus_hook_failures_total",
			Help: "Total failed module lifecycle hooks by phase and reason",
		},
		[]string{"phase", "reason"},
	)

	sessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focus_sessions_total",
			Help: "Session transitions by outcome (started, stopped, failed)",
		},
		[]string{"outcome"},
	)

	sessionActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "focus_session_active",
			Help: "1 while a session is running",
		},
	)

	// broadcastEvents tracks setting updates published to observers
	broadcastEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focus_broadcast_events_total",
			Help: "Total setting updates broadcast by property",
		},
		[]string{"property"},
	)

	broadcastSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "focus_broadcast_choices_suppressed_total",
			Help: "Total choice-list emissions suppressed as duplicates",
		},
	)

	// subscriberDrops tracks subscribers removed because they fell behind
	subscriberDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focus_router_subscriber_drops_total",
			Help: "Total subscribers dropped by router name",
		},
		[]string{"router"},
	)

	catalogRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "focus_catalog_refreshes_total",
			Help: "Catalog refreshes triggered by the watcher by result",
		},
		[]string{"result"},
	)
)

// SetModulesDiscovered records the catalog size after discovery.
func SetModulesDiscovered(n int) {
	modulesDiscovered.Set(float64(n))
}

// RecordDiscoveryProblem increments the problem counter for kind.
func RecordDiscoveryProblem(kind string) {
	discoveryProblems.WithLabelValues(kind).Inc()
}

func InstanceOpened() { instancesActive.Inc() }

func InstanceClosed() { instancesActive.Dec() }

// ObserveHook records a hook duration and, when reason is non-empty, a
// failure.
func ObserveHook(phase string, elapsed time.Duration, reason string) {
	hookDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
	if reason != "" {
		hookFailures.WithLabelValues(phase, reason).Inc()
	}
}

// RecordSession increments the session counter and updates the active gauge.
func RecordSession(outcome string) {
	sessions.WithLabelValues(outcome).Inc()
	switch outcome {
	case "started":
		sessionActive.Set(1)
	case "stopped":
		sessionActive.Set(0)
	}
}

func RecordBroadcast(property string) {
	broadcastEvents.WithLabelValues(property).Inc()
}

func RecordSuppressed() {
	broadcastSuppressed.Inc()
}

func RecordSubscriberDrop(router string) {
	subscriberDrops.WithLabelValues(router).Inc()
}

func RecordRefresh(result string) {
	catalogRefreshes.WithLabelValues(result).Inc()
}

// SubscriberDropCounter returns the drop counter for one router.
func SubscriberDropCounter(router string) prometheus.Counter {
	return subscriberDrops.WithLabelValues(router)
}
