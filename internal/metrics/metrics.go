package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"matchflow/logger"
)

// Pipeline counters. Registered once at package load; every component
// increments them directly.
var (
	FramesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "matchflow",
		Subsystem: "feed",
		Name:      "frames_read_total",
		Help:      "Total number of inbound frames read from the feed.",
	})
	BatchesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "matchflow",
		Subsystem: "feed",
		Name:      "batches_enqueued_total",
		Help:      "Total number of match batches forwarded to the work queue.",
	})
	EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchflow",
		Subsystem: "processor",
		Name:      "events_total",
		Help:      "Total number of events handled by the processor by status.",
	}, []string{"status"}) // status: processed, skipped
	SinkWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchflow",
		Subsystem: "sink",
		Name:      "writes_total",
		Help:      "Total number of sink append attempts by status.",
	}, []string{"status"}) // status: ok, error
	MediaJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "matchflow",
		Subsystem: "media",
		Name:      "jobs_total",
		Help:      "Total number of media jobs published by kind.",
	}, []string{"kind"})
	CatalogMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "matchflow",
		Subsystem: "catalog",
		Name:      "misses_total",
		Help:      "Total number of reference lookups degraded to Unknown.",
	})
)

// Serve exposes /metrics on the given address in a background goroutine.
func Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		log := logger.GetLogger().WithComponent("metrics")
		log.WithFields(logger.Fields{"addr": addr}).Info("metrics server listening")
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
}
