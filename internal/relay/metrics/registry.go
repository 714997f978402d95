package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relay/internal/relay"
)

// Registry encapsulates all metrics and provides a clean interface
// for recording metrics without global state
type Registry struct {
	registry *prometheus.Registry

	// Publisher metrics
	batchTotal     *prometheus.CounterVec
	batchDuration  prometheus.Histogram
	batchSize      prometheus.Histogram
	recordOutcomes *prometheus.CounterVec

	// Broker client metrics
	breakerState  *prometheus.GaugeVec
	sendQueueSize *prometheus.GaugeVec

	// Routing metrics
	routeTotal    *prometheus.CounterVec
	routeDuration *prometheus.HistogramVec

	// System health metrics
	systemInfo *prometheus.GaugeVec
	startTime  prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()

	r := &Registry{
		registry: registry,

		batchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_publish_batches_total",
				Help: "Total number of publish batch operations",
			},
			[]string{"status"}, // status: success, partial, error
		),

		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_publish_duration_seconds",
				Help:    "Time spent submitting and confirming a batch",
				Buckets: prometheus.DefBuckets,
			},
		),

		batchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_publish_batch_size",
				Help:    "Number of records in published batches",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),

		recordOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_record_outcomes_total",
				Help: "Total number of record outcomes by kind",
			},
			[]string{"topic", "outcome"}, // outcome: delivered, submission_failed, confirmation_failed
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_breaker_state",
				Help: "Broker circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),

		sendQueueSize: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_send_queue_size",
				Help: "Records waiting in a broker client's internal send queue",
			},
			[]string{"client"},
		),

		routeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_route_records_total",
				Help: "Total number of records written to a routing destination",
			},
			[]string{"destination", "status"}, // destination: success, failure
		),

		routeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_route_duration_seconds",
				Help:    "Time spent writing routed records",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"destination"},
		),

		systemInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_system_info",
				Help: "System information (value is always 1, labels contain info)",
			},
			[]string{"version", "broker"},
		),

		startTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_start_time_seconds",
				Help: "Unix timestamp when the application started",
			},
		),
	}

	// add default Go metrics (memory, GC, goroutines, etc.)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	registry.MustRegister(
		r.batchTotal,
		r.batchDuration,
		r.batchSize,
		r.recordOutcomes,
		r.breakerState,
		r.sendQueueSize,
		r.routeTotal,
		r.routeDuration,
		r.systemInfo,
		r.startTime,
	)

	r.startTime.SetToCurrentTime()

	return r
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          r.registry,
	})
}

// Gatherer exposes the underlying registry, mostly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// RecordPublishBatch records one PublishBatch call. topics holds the topic of
// each input record, aligned with res.
func (r *Registry) RecordPublishBatch(topics []string, res relay.BatchResult, duration time.Duration, err error) {
	status := "success"
	switch {
	case err != nil:
		status = "error"
	case len(res.Failed()) > 0:
		status = "partial"
	}

	r.batchTotal.WithLabelValues(status).Inc()
	r.batchDuration.Observe(duration.Seconds())
	if err != nil {
		return
	}

	r.batchSize.Observe(float64(res.Len()))
	for i, e := range res.Entries() {
		r.recordOutcomes.WithLabelValues(topics[i], e.Outcome.Kind.String()).Inc()
	}
}

// SetBreakerState records a circuit breaker state transition.
func (r *Registry) SetBreakerState(name string, state float64) {
	r.breakerState.WithLabelValues(name).Set(state)
}

// SetSendQueueSize records the depth of a broker client's send queue.
func (r *Registry) SetSendQueueSize(client string, n int) {
	r.sendQueueSize.WithLabelValues(client).Set(float64(n))
}

// RecordRoute records a write of n records to a routing destination.
func (r *Registry) RecordRoute(destination string, n int, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	r.routeTotal.WithLabelValues(destination, status).Add(float64(n))
	r.routeDuration.WithLabelValues(destination).Observe(duration.Seconds())
}

// SetSystemInfo sets system information metrics
func (r *Registry) SetSystemInfo(version, broker string) {
	r.systemInfo.WithLabelValues(version, broker).Set(1)
}
