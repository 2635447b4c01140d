// Package metrics exposes Prometheus metrics for the media storage service.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StorageMetrics counts storage operations and replication legs whose failure
// was dropped by the replicated backend. A nil *StorageMetrics is valid and
// records nothing.
type StorageMetrics struct {
	operations  *prometheus.CounterVec
	legFailures *prometheus.CounterVec
}

// NewStorageMetrics creates the storage counters and registers them with reg.
func NewStorageMetrics(namespace string, reg prometheus.Registerer) *StorageMetrics {
	m := &StorageMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Storage operations served by the replicated backend.",
		}, []string{"op"}),
		legFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "replication_leg_failures_total",
			Help:      "Non-gating replication legs that failed and were dropped.",
		}, []string{"op", "leg"}),
	}
	reg.MustRegister(m.operations, m.legFailures)
	return m
}

// ObserveOperation counts one operation.
func (m *StorageMetrics) ObserveOperation(op string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op).Inc()
}

// ObserveLegFailure counts one dropped failure of the given leg.
func (m *StorageMetrics) ObserveLegFailure(op, leg string) {
	if m == nil {
		return
	}
	m.legFailures.WithLabelValues(op, leg).Inc()
}

// MetricsServer serves the registry on /metrics.
type MetricsServer struct {
	registry *prometheus.Registry
	storage  *StorageMetrics
	srv      *http.Server
}

// New creates a metrics server for namespace listening on addr.
func New(namespace, addr string) (*MetricsServer, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	return &MetricsServer{
		registry: registry,
		storage:  NewStorageMetrics(namespace, registry),
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Storage returns the storage counters registered with this server.
func (s *MetricsServer) Storage() *StorageMetrics {
	return s.storage
}

// Registry returns the underlying Prometheus registry.
func (s *MetricsServer) Registry() *prometheus.Registry {
	return s.registry
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
