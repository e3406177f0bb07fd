package commands

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/multierr"

	"github.com/procflow/procflow/pkg/auth"
	"github.com/procflow/procflow/pkg/banking"
	"github.com/procflow/procflow/pkg/bridge"
	"github.com/procflow/procflow/pkg/config"
	"github.com/procflow/procflow/pkg/engine"
	"github.com/procflow/procflow/pkg/orchestration"
	"github.com/procflow/procflow/pkg/providers"
	"github.com/procflow/procflow/pkg/telemetry"
)

// runtime is the wired service stack shared by every command.
type runtime struct {
	cfg      *config.Config
	tel      *telemetry.Telemetry
	selector *engine.Selector
	service  *orchestration.Service
	logger   *telemetry.Logger
}

// openRuntime loads the configuration and wires telemetry, the selected
// engine, the banking client and the orchestration facade.
func openRuntime(ctx context.Context, version string) (*runtime, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}

	telCfg := cfg.TelemetryConfig(version)
	telCfg.Logging.Output = "stderr"
	tel, err := telemetry.NewTelemetry(telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	logger := tel.Logger.NewComponentLogger("procflow")

	selector, err := engine.NewSelector(ctx, providers.NewRegistry(), cfg.Engine.Type, cfg.Backend())
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, err
	}
	logger.WithEngine(selector.Type()).Debug("engine selected")

	tokens := auth.NewTokenHolder()
	opts := orchestration.Options{
		Engine:       selector.Engine(),
		Tokens:       tokens,
		AuthRequired: cfg.Auth.Required,
		Telemetry:    tel,
		Bridge: bridge.New(
			bridge.WithTimeout(cfg.Bridge.Timeout),
			bridge.WithObserver(tel.Metrics),
			bridge.WithLogger(tel.Logger.NewComponentLogger("bridge")),
		),
	}
	if cfg.Banking.BaseURL != "" {
		client, err := banking.NewClient(banking.Config{
			BaseURL:    cfg.Banking.BaseURL,
			TenantID:   cfg.Banking.TenantID,
			HTTPClient: &http.Client{Timeout: cfg.Banking.Timeout},
			Tokens:     tokens,
		})
		if err != nil {
			_ = multierr.Combine(selector.Close(), tel.Shutdown(context.Background()))
			return nil, err
		}
		opts.Banking = client
	}

	svc, err := orchestration.New(opts)
	if err != nil {
		_ = multierr.Combine(selector.Close(), tel.Shutdown(context.Background()))
		return nil, err
	}

	rt := &runtime{cfg: cfg, tel: tel, selector: selector, service: svc, logger: logger}

	if cfg.Auth.LoginOnStart {
		if _, err := svc.Login(ctx, banking.Credentials{Username: cfg.Banking.Username, Password: cfg.Banking.Password}); err != nil {
			return nil, multierr.Append(err, rt.Close())
		}
	}
	return rt, nil
}

// Close releases the engine and flushes telemetry.
func (r *runtime) Close() error {
	return multierr.Combine(
		r.selector.Close(),
		r.tel.Shutdown(context.Background()),
	)
}

// withRuntime runs fn against a freshly opened runtime.
func withRuntime(ctx context.Context, fn func(ctx context.Context, rt *runtime) error) (err error) {
	rt, err := openRuntime(ctx, "cli")
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, rt.Close())
	}()
	return fn(ctx, rt)
}
