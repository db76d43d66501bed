// Package metrics provides Prometheus metric definitions and a metrics HTTP
// server for the access-control gateway and its tenant workers.
//
// Usage:
//
//	// In the gateway:
//	m := metrics.NewGatewayMetrics()
//	go m.Serve(":9090")
//
//	// In a tenant worker:
//	m := metrics.NewTenantWorkerMetrics()
//	go m.Serve(":9091")
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// GatewayMetrics holds all Prometheus metrics for the gateway.
type GatewayMetrics struct {
	// HTTP request surface
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPDurationSeconds *prometheus.HistogramVec
	HTTPSlowRequestsTotal *prometheus.CounterVec

	// Command dispatch
	CommandsDispatchedTotal *prometheus.CounterVec
	CommandDurationSeconds  *prometheus.HistogramVec
	CommandQueueDepth       *prometheus.GaugeVec

	// Tenant process lifecycle
	TenantWorkersRunning prometheus.Gauge
	TenantWorkerRestartsTotal *prometheus.CounterVec
	TenantWorkerSpawnFailuresTotal prometheus.Counter

	// Auth
	AuthFailuresTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewGatewayMetrics registers and returns a new GatewayMetrics instance
// backed by its own Prometheus registry. All metrics use the
// "acsgateway_gateway" namespace/subsystem pair.
func NewGatewayMetrics() *GatewayMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &GatewayMetrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acsgateway",
			Subsystem: "gateway",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests received by the gateway.",
		}, []string{"method", "path", "status_code", "tenant_id"}),

		HTTPDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "acsgateway",
			Subsystem: "gateway",
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests served by the gateway.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		HTTPSlowRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acsgateway",
			Subsystem: "gateway",
			Name:      "http_slow_requests_total",
			Help:      "Total number of HTTP requests that took longer than one second.",
		}, []string{"method", "path"}),

		CommandsDispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acsgateway",
			Subsystem: "gateway",
			Name:      "commands_dispatched_total",
			Help:      "Total number of commands dispatched to tenant workers.",
		}, []string{"command_type", "status"}),

		CommandDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "acsgateway",
			Subsystem: "gateway",
			Name:      "command_duration_seconds",
			Help:      "End-to-end duration of a dispatched command, including buffer wait time.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command_type"}),

		CommandQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "acsgateway",
			Subsystem: "gateway",
			Name:      "command_queue_depth",
			Help:      "Current number of commands buffered per tenant, waiting for their worker's consumer loop.",
		}, []string{"tenant_id"}),

		TenantWorkersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "acsgateway",
			Subsystem: "gateway",
			Name:      "tenant_workers_running",
			Help:      "Number of tenant worker subprocesses currently in the Running state.",
		}),

		TenantWorkerRestartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acsgateway",
			Subsystem: "gateway",
			Name:      "tenant_worker_restarts_total",
			Help:      "Total number of tenant worker restarts triggered by failed health checks.",
		}, []string{"tenant_id"}),

		TenantWorkerSpawnFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "acsgateway",
			Subsystem: "gateway",
			Name:      "tenant_worker_spawn_failures_total",
			Help:      "Total number of failed attempts to spawn a tenant worker subprocess.",
		}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acsgateway",
			Subsystem: "gateway",
			Name:      "auth_failures_total",
			Help:      "Total number of rejected requests by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPDurationSeconds,
		m.HTTPSlowRequestsTotal,
		m.CommandsDispatchedTotal,
		m.CommandDurationSeconds,
		m.CommandQueueDepth,
		m.TenantWorkersRunning,
		m.TenantWorkerRestartsTotal,
		m.TenantWorkerSpawnFailuresTotal,
		m.AuthFailuresTotal,
	)

	return m
}

// Serve starts an HTTP server exposing the /metrics endpoint on addr.
// It blocks until the server exits and logs any error.
func (m *GatewayMetrics) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	log.Printf("gateway Prometheus metrics server listening on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("gateway metrics server error: %v", err)
	}
}

// TenantWorkerMetrics holds all Prometheus metrics for a tenant worker
// process.
type TenantWorkerMetrics struct {
	CommandsExecutedTotal   *prometheus.CounterVec
	CommandDurationSeconds  *prometheus.HistogramVec
	CommandQueueDepth       prometheus.Gauge
	CommandsPerSecond       prometheus.Gauge

	EncryptionOperationsTotal *prometheus.CounterVec
	EncryptionFailuresTotal   *prometheus.CounterVec

	HandshakeAttemptsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewTenantWorkerMetrics registers and returns a new TenantWorkerMetrics
// instance backed by its own Prometheus registry.
func NewTenantWorkerMetrics() *TenantWorkerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &TenantWorkerMetrics{
		registry: reg,

		CommandsExecutedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acsgateway",
			Subsystem: "worker",
			Name:      "commands_executed_total",
			Help:      "Total number of commands executed by this tenant worker.",
		}, []string{"command_type", "status"}),

		CommandDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "acsgateway",
			Subsystem: "worker",
			Name:      "command_duration_seconds",
			Help:      "Duration of command execution on this tenant worker.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command_type"}),

		CommandQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "acsgateway",
			Subsystem: "worker",
			Name:      "command_queue_depth",
			Help:      "Number of commands currently queued in this worker's CommandBuffer.",
		}),

		CommandsPerSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "acsgateway",
			Subsystem: "worker",
			Name:      "commands_per_second",
			Help:      "Rolling-window rate of commands processed by this worker.",
		}),

		EncryptionOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acsgateway",
			Subsystem: "worker",
			Name:      "encryption_operations_total",
			Help:      "Total number of encryption/decryption operations performed by this tenant worker.",
		}, []string{"operation"}), // operation: "encrypt" | "decrypt"

		EncryptionFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acsgateway",
			Subsystem: "worker",
			Name:      "encryption_failures_total",
			Help:      "Total number of failed encryption/decryption operations.",
		}, []string{"operation"}),

		HandshakeAttemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "acsgateway",
			Subsystem: "worker",
			Name:      "handshake_attempts_total",
			Help:      "Total number of handshake attempts with the gateway.",
		}, []string{"status"}), // status: "success" | "error"
	}

	reg.MustRegister(
		m.CommandsExecutedTotal,
		m.CommandDurationSeconds,
		m.CommandQueueDepth,
		m.CommandsPerSecond,
		m.EncryptionOperationsTotal,
		m.EncryptionFailuresTotal,
		m.HandshakeAttemptsTotal,
	)

	return m
}

// Serve starts an HTTP server exposing the /metrics endpoint on addr.
// It blocks until the server exits and logs any error.
func (m *TenantWorkerMetrics) Serve(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	log.Printf("tenant worker Prometheus metrics server listening on %s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Printf("tenant worker metrics server error: %v", err)
	}
}
