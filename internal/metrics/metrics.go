// Package metrics collects and exposes Prometheus metrics for the
// registration pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records registration pipeline metrics.
type Collector struct {
	intentsPublished *prometheus.CounterVec
	intentOutcomes   *prometheus.CounterVec
	batchesProcessed prometheus.Counter
	batchFailures    prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		intentsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sugang_intents_published_total",
			Help: "Registration intents published to the queue, by action.",
		}, []string{"action"}),
		intentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sugang_intent_outcomes_total",
			Help: "Processed intent outcomes, by action and outcome.",
		}, []string{"action", "outcome"}),
		batchesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sugang_worker_batches_total",
			Help: "Batches handed to the registration worker.",
		}),
		batchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sugang_worker_batch_failures_total",
			Help: "Batches that failed with a transient error and were nacked.",
		}),
	}

	reg.MustRegister(
		c.intentsPublished,
		c.intentOutcomes,
		c.batchesProcessed,
		c.batchFailures,
	)

	return c
}

// RecordIntentPublished counts a successfully enqueued intent.
func (c *Collector) RecordIntentPublished(action string) {
	c.intentsPublished.WithLabelValues(action).Inc()
}

// RecordIntentOutcome counts a processed intent's terminal outcome.
func (c *Collector) RecordIntentOutcome(action, outcome string) {
	c.intentOutcomes.WithLabelValues(action, outcome).Inc()
}

// RecordBatch counts a batch handed to the worker.
func (c *Collector) RecordBatch() {
	c.batchesProcessed.Inc()
}

// RecordBatchFailure counts a batch nacked for redelivery.
func (c *Collector) RecordBatchFailure() {
	c.batchFailures.Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint for the
// given registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
