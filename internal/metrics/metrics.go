// Package metrics exposes the process's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agent_portal",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agent_portal",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	workflows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agent_portal",
			Subsystem: "agent",
			Name:      "workflows_total",
			Help:      "Agent workflow runs by kind and outcome.",
		},
		[]string{"workflow", "outcome"},
	)

	vendorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "agent_portal",
			Subsystem: "vendor",
			Name:      "call_duration_seconds",
			Help:      "Latency of calls to Slack, Azure OpenAI and Google.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"vendor", "op", "outcome"},
	)

	tokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agent_portal",
			Subsystem: "agent",
			Name:      "tokens_total",
			Help:      "Completion tokens consumed by workflow.",
		},
		[]string{"workflow"},
	)

	slackEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "agent_portal",
			Subsystem: "slack",
			Name:      "events_total",
			Help:      "Inbound Slack deliveries by kind and intent.",
		},
		[]string{"kind", "intent"},
	)
)

func ObserveHTTP(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func Workflow(name, outcome string, tokens int) {
	workflows.WithLabelValues(name, outcome).Inc()
	if tokens > 0 {
		tokensUsed.WithLabelValues(name).Add(float64(tokens))
	}
}

// VendorCall records one outbound call. err decides the outcome label.
func VendorCall(vendor, op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	vendorDuration.WithLabelValues(vendor, op, outcome).Observe(time.Since(start).Seconds())
}

func SlackEvent(kind, intent string) {
	slackEvents.WithLabelValues(kind, intent).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
