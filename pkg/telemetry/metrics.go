package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for process orchestration.
type Metrics struct {
	config MetricsConfig

	// Facade operation metrics
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	// Fault metrics
	faultsByKind *prometheus.CounterVec
	faultsByCode *prometheus.CounterVec

	// Bridge metrics
	bridgeCalls    *prometheus.CounterVec
	bridgeDuration *prometheus.HistogramVec

	// Engine metrics
	processesStarted   *prometheus.CounterVec
	processesFinished  *prometheus.CounterVec
	tasksCompleted     *prometheus.CounterVec
	deployments        *prometheus.CounterVec
	activeBridgedCalls prometheus.Gauge

	registry *prometheus.Registry
	server   *http.Server
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of orchestration operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of orchestration operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),

		faultsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "faults_by_kind_total",
				Help:      "Total number of faults by kind",
			},
			[]string{"kind"},
		),
		faultsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "faults_by_code_total",
				Help:      "Total number of engine faults by code",
			},
			[]string{"code"},
		),

		bridgeCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bridge_calls_total",
				Help:      "Total number of bridged remote calls by outcome",
			},
			[]string{"operation", "outcome"},
		),
		bridgeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "bridge_call_duration_seconds",
				Help:      "Time callers spent blocked on bridged remote calls",
				Buckets:   buckets,
			},
			[]string{"operation"},
		),

		processesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processes_started_total",
				Help:      "Total number of process instances started",
			},
			[]string{"engine", "process_key"},
		),
		processesFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "processes_finished_total",
				Help:      "Total number of process instances finished by outcome",
			},
			[]string{"engine", "outcome"},
		),
		tasksCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_completed_total",
				Help:      "Total number of tasks completed",
			},
			[]string{"engine"},
		),
		deployments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "deployments_total",
				Help:      "Total number of deployments by result",
			},
			[]string{"engine", "result"},
		),
		activeBridgedCalls: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "bridge_calls_in_flight",
				Help:      "Current number of callers blocked on the call bridge",
			},
		),
	}

	registry.MustRegister(
		m.operations,
		m.operationDuration,
		m.faultsByKind,
		m.faultsByCode,
		m.bridgeCalls,
		m.bridgeDuration,
		m.processesStarted,
		m.processesFinished,
		m.tasksCompleted,
		m.deployments,
		m.activeBridgedCalls,
	)

	return m, nil
}

// Operation Metrics

// RecordOperation records a facade operation with its status and duration.
func (m *Metrics) RecordOperation(operation, status string, duration time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordFault records a fault by kind and optionally by engine code.
func (m *Metrics) RecordFault(kind, code string) {
	if m == nil || m.faultsByKind == nil {
		return
	}
	m.faultsByKind.WithLabelValues(kind).Inc()
	if code != "" {
		m.faultsByCode.WithLabelValues(code).Inc()
	}
}

// Bridge Metrics

// RecordBridgeCall records the outcome of a bridged remote call.
func (m *Metrics) RecordBridgeCall(operation, outcome string, duration time.Duration) {
	if m == nil || m.bridgeCalls == nil {
		return
	}
	m.bridgeCalls.WithLabelValues(operation, outcome).Inc()
	m.bridgeDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// BridgeCallStarted increments the in-flight gauge.
func (m *Metrics) BridgeCallStarted() {
	if m == nil || m.activeBridgedCalls == nil {
		return
	}
	m.activeBridgedCalls.Inc()
}

// BridgeCallFinished decrements the in-flight gauge.
func (m *Metrics) BridgeCallFinished() {
	if m == nil || m.activeBridgedCalls == nil {
		return
	}
	m.activeBridgedCalls.Dec()
}

// Engine Metrics

// RecordProcessStarted records a started process instance.
func (m *Metrics) RecordProcessStarted(engineType, processKey string) {
	if m == nil || m.processesStarted == nil {
		return
	}
	m.processesStarted.WithLabelValues(engineType, processKey).Inc()
}

// RecordProcessFinished records a finished process instance.
func (m *Metrics) RecordProcessFinished(engineType, outcome string) {
	if m == nil || m.processesFinished == nil {
		return
	}
	m.processesFinished.WithLabelValues(engineType, outcome).Inc()
}

// RecordTaskCompleted records a completed task.
func (m *Metrics) RecordTaskCompleted(engineType string) {
	if m == nil || m.tasksCompleted == nil {
		return
	}
	m.tasksCompleted.WithLabelValues(engineType).Inc()
}

// RecordDeployment records a deployment upload.
func (m *Metrics) RecordDeployment(engineType string, success bool) {
	if m == nil || m.deployments == nil {
		return
	}
	result := "failed"
	if success {
		result = "succeeded"
	}
	m.deployments.WithLabelValues(engineType, result).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Registry returns the underlying Prometheus registry, nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ServeMetrics serves the metrics endpoint on the configured listen address
// until ctx is done. It returns immediately when metrics are disabled.
func (m *Metrics) ServeMetrics(ctx context.Context) error {
	if !m.config.Enabled || m.config.ListenAddress == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	m.server = &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.server.Shutdown(shutdownCtx)
	}
}
