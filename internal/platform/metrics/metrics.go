// Package metrics exposes the Prometheus instrumentation for the workers
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters the close and settlement workers increment
type Metrics struct {
	registry *prometheus.Registry

	ChangeEventsReceived prometheus.Counter
	BacklogReplayed      prometheus.Counter
	RunsStarted          prometheus.Counter
	RunsCompleted        prometheus.Counter
	RunsFailed           prometheus.Counter
	RunsSkipped          prometheus.Counter
	LockContention       prometheus.Counter
}

// New builds a Metrics set backed by its own registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		ChangeEventsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "settlement_change_events_received_total",
			Help: "Ledger-close change events received from the change stream.",
		}),
		BacklogReplayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "settlement_backlog_replayed_total",
			Help: "Closed records replayed during startup backlog catch-up.",
		}),
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "settlement_runs_started_total",
			Help: "Settlement runs started under a held lease.",
		}),
		RunsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "settlement_runs_completed_total",
			Help: "Settlement runs that reached COMPLETED.",
		}),
		RunsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "settlement_runs_failed_total",
			Help: "Settlement runs that were marked FAILED.",
		}),
		RunsSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "settlement_runs_skipped_total",
			Help: "Settlement invocations short-circuited by a completed run.",
		}),
		LockContention: factory.NewCounter(prometheus.CounterOpts{
			Name: "settlement_lock_contention_total",
			Help: "Lease acquisitions that found the lock held by another owner.",
		}),
	}
}

// Server returns an HTTP server exposing /metrics on the given port
func (m *Metrics) Server(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
