// Package metrics holds the indexer's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "streamswap"

var (
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_processed_total",
		Help:      "Events whose effects were committed.",
	}, []string{"kind"})

	EventsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_failed_total",
		Help:      "Events rolled back because a handler failed.",
	}, []string{"kind"})

	EventsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_skipped_total",
		Help:      "Events dropped without effect, by reason.",
	}, []string{"kind", "reason"})

	ReadThroughRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "read_through_retries_total",
		Help:      "Retried contract read calls.",
	}, []string{"method"})

	MetadataCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_metadata_cache_total",
		Help:      "Token metadata lookups by cache outcome.",
	}, []string{"result"})

	ProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "event_processing_seconds",
		Help:      "Time spent applying one event.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})

	LastLedger = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_ledger",
		Help:      "Ledger sequence of the last committed event.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
