package telemetry_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/procflow/procflow/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	logger := telemetry.FromContext(ctx)
	logger.Info("Application started")

	// Output can vary, so we don't specify output for this example
}

// Example_structuredLogging demonstrates structured logging features.
func Example_structuredLogging() {
	cfg := telemetry.ForEnvironment(telemetry.EnvDevelopment)

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	logger := tel.Logger.NewComponentLogger("orchestration").
		WithOperation("GET_CLIENT").
		WithResourceID("123")

	logger.Debug("Calling core banking")
	logger.WithError(fmt.Errorf("connection reset")).Error("Remote call failed")
}

// Example_instrumentedOperation demonstrates the operation helper.
func Example_instrumentedOperation() {
	tel, _ := telemetry.NewTelemetry(telemetry.ForEnvironment(telemetry.EnvDevelopment))
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	var err error
	ic := telemetry.StartOperation(ctx, "START_PROCESS",
		telemetry.AttrProcessKey.String("loan-approval"))
	defer func() { ic.End(err) }()

	ic.Logger.Info("Starting process")
	time.Sleep(time.Millisecond)
}

// Example_eventFiltering demonstrates subscribing to lifecycle events.
func Example_eventFiltering() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.EnableAsync = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Alert: %s\n", event.Message)
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	_ = tel.Events.PublishProcessStarted("p-1", "loan-approval", "LOAN-42")
	_ = tel.Events.PublishProcessTerminated("p-1", "customer withdrew")
	_ = tel.Events.PublishFault("GET_CLIENT", "remote_api", "123", errors.New("not found").Error())
}
