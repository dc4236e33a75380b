// Package metrics exposes the engine's Prometheus instrumentation: records
// emitted per worker, queue depth per queue, and plugin errors per worker
// and method. Collection is unconditional; serving it over HTTP is not
// (see Handler).
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RecordsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudwarden_records_emitted_total",
		Help: "Records emitted by a worker, labeled by audit key and worker name.",
	}, []string{"audit_key", "worker"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cloudwarden_queue_depth",
		Help: "Current number of envelopes buffered in a queue.",
	}, []string{"audit_key", "queue"})

	PluginErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cloudwarden_plugin_errors_total",
		Help: "Plugin method failures, labeled by worker name and method.",
	}, []string{"audit_key", "worker", "method"})

	AuditsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cloudwarden_audits_running",
		Help: "Number of audits currently in flight.",
	})
)

// Handler returns the standard Prometheus scrape handler, for callers that
// configure metrics.listen.
func Handler() http.Handler {
	return promhttp.Handler()
}
