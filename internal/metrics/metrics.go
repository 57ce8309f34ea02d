package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// SolveDuration tracks end-to-end optimizer wall time in seconds.
	SolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solve_duration_seconds", Help: "Optimizer wall time per solve.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30}},
	)
	// SolveIterations tracks improvement-loop iterations per solve.
	SolveIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "solve_iterations", Help: "Improvement iterations per solve.", Buckets: []float64{10, 25, 50, 100, 250, 500, 1000}},
	)
	// SolveOrders counts orders seen by outcome: assigned or unassignable.
	SolveOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "solve_orders_total", Help: "Orders processed by assignment outcome."},
		[]string{"outcome"},
	)

	// ETAPredictions counts predictions by traffic band.
	ETAPredictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "eta_predictions_total", Help: "ETA predictions by traffic band."},
		[]string{"band"},
	)
	// ETAActuals counts recorded travel-time observations.
	ETAActuals = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "eta_actuals_total", Help: "Recorded travel-time actuals."},
	)

	// WebhookDeliveries counts webhook delivery outcomes by event type and status.
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
		[]string{"event_type", "status"},
	)

	// RateLimited counts requests rejected by the per-tenant limiter.
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "rate_limited_total", Help: "Requests rejected by the rate limiter."},
	)
)

var regOnce sync.Once

// RegisterDefault registers all collectors on the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(SolveIterations)
		Registry.MustRegister(SolveOrders)
		Registry.MustRegister(ETAPredictions)
		Registry.MustRegister(ETAActuals)
		Registry.MustRegister(WebhookDeliveries)
		Registry.MustRegister(RateLimited)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}
