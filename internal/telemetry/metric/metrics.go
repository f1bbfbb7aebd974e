package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	// Document / sync activity
	DocumentsActive       prometheus.Gauge
	DocumentsCreated      prometheus.Counter
	DocumentsDeleted      prometheus.Counter
	MergesTotal           prometheus.Counter
	SyncMessagesReceived  prometheus.Counter
	SyncMessagesGenerated prometheus.Counter
	ReconciliationsTotal  prometheus.Counter
	ReconciliationsMerged prometheus.Counter

	// Watcher
	WatcherRunsTotal      prometheus.Counter
	WatcherDocumentErrors prometheus.Counter
	WatcherDocsMerged     prometheus.Counter

	// Backup
	BackupFlushesTotal   *prometheus.CounterVec
	BackupRetriesTotal   prometheus.Counter
	BackupReauthsTotal   prometheus.Counter
	BackupDirtyDocuments prometheus.Gauge

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with its own registry, including the
// standard Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{registry: reg}

	m.DocumentsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "docrelay", Subsystem: "documents",
		Name: "active", Help: "Documents currently held in memory.",
	})
	m.DocumentsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docrelay", Subsystem: "documents",
		Name: "created_total", Help: "Documents created.",
	})
	m.DocumentsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docrelay", Subsystem: "documents",
		Name: "deleted_total", Help: "Documents deleted.",
	})
	m.MergesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docrelay", Subsystem: "sync",
		Name: "merges_total", Help: "Document merges performed.",
	})
	m.SyncMessagesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docrelay", Subsystem: "sync",
		Name: "messages_received_total", Help: "Incoming sync messages applied.",
	})
	m.SyncMessagesGenerated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docrelay", Subsystem: "sync",
		Name: "messages_generated_total", Help: "Outgoing sync messages produced.",
	})
	m.ReconciliationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docrelay", Subsystem: "sync",
		Name: "reconciliations_total", Help: "Persistence reconciliation passes.",
	})
	m.ReconciliationsMerged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docrelay", Subsystem: "sync",
		Name: "reconciliations_merged_total", Help: "Reconciliations that found newer persisted state and merged it.",
	})

	m.WatcherRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docrelay", Subsystem: "watcher",
		Name: "runs_total", Help: "External change watcher passes.",
	})
	m.WatcherDocumentErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docrelay", Subsystem: "watcher",
		Name: "document_errors_total", Help: "Documents skipped by the watcher due to errors.",
	})
	m.WatcherDocsMerged = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docrelay", Subsystem: "watcher",
		Name: "documents_merged_total", Help: "Documents the watcher merged external changes into.",
	})

	m.BackupFlushesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docrelay", Subsystem: "backup",
		Name: "flushes_total", Help: "Backup flush attempts by outcome.",
	}, []string{"outcome"})
	m.BackupRetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docrelay", Subsystem: "backup",
		Name: "retries_total", Help: "Backup upload retries.",
	})
	m.BackupReauthsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "docrelay", Subsystem: "backup",
		Name: "reauths_total", Help: "Re-authentications triggered by rejected credentials.",
	})
	m.BackupDirtyDocuments = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "docrelay", Subsystem: "backup",
		Name: "dirty_documents", Help: "Documents with changes not yet flushed to the remote store.",
	})

	m.RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docrelay", Subsystem: "http",
		Name: "requests_total", Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
	m.RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "docrelay", Subsystem: "http",
		Name:    "request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	reg.MustRegister(
		m.DocumentsActive, m.DocumentsCreated, m.DocumentsDeleted,
		m.MergesTotal, m.SyncMessagesReceived, m.SyncMessagesGenerated,
		m.ReconciliationsTotal, m.ReconciliationsMerged,
		m.WatcherRunsTotal, m.WatcherDocumentErrors, m.WatcherDocsMerged,
		m.BackupFlushesTotal, m.BackupRetriesTotal, m.BackupReauthsTotal,
		m.BackupDirtyDocuments,
		m.RequestsTotal, m.RequestDuration,
	)
	return m
}

// Registry exposes the underlying registry for backend collectors (for
// example the badger store gauges).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
