// Package telemetry provides observability instrumentation for procflow.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring orchestration calls, engine backends and core-banking calls.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.ForEnvironment("production")
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("orchestration")
//	logger.WithOperation("GET_CLIENT").WithResourceID("123").Info("fetching client")
//
// # Instrumenting Operations
//
//	ic := telemetry.StartOperation(ctx, "START_PROCESS",
//	    telemetry.AttrProcessKey.String("loan-approval"))
//	defer func() { ic.End(err) }()
//
// StartOperation opens a span, derives an operation logger and starts a timer.
// End records the outcome on the span and on operations_total.
//
// # Metrics
//
// Key metrics exposed under the configured namespace:
//
//   - procflow_operations_total{operation,status}
//   - procflow_faults_by_kind_total{kind}
//   - procflow_bridge_calls_total{operation,outcome}
//   - procflow_bridge_calls_in_flight
//   - procflow_processes_started_total{engine,process_key}
//   - procflow_deployments_total{engine,result}
//
// # Event Publishing
//
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("%s: %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
//
// LogEvents turns the event stream into log lines; serve subscribes it at
// the configured event level.
//
// # Exporters
//
//   - "stdout": Print traces to stdout (development)
//   - "otlp": Export via OTLP/gRPC
//   - "none": Generate traces but don't export (testing)
package telemetry
