package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/procflow/procflow/pkg/api"
	"github.com/procflow/procflow/pkg/telemetry"
	"github.com/procflow/procflow/pkg/watch"
)

func newServeCommand(version string) *cobra.Command {
	var (
		address  string
		watchDir string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the procflow HTTP API until interrupted.

The server exposes:
  - /api/v1: process engine and core-banking operations
  - /healthz: liveness
  - /metrics: Prometheus metrics

When a watch directory is configured, BPMN artifacts written there are
deployed automatically.`,
		Example: `  # Serve with the embedded engine
  procflow serve --config procflow.yaml

  # Serve on another address and watch a directory
  procflow serve --address 127.0.0.1:9090 --watch ./processes`,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			rt, err := openRuntime(cmd.Context(), version)
			if err != nil {
				return err
			}
			defer func() {
				err = multierr.Append(err, rt.Close())
			}()

			srvCfg := rt.cfg.APIServer()
			if address != "" {
				srvCfg.Address = address
			}
			if watchDir == "" {
				watchDir = rt.cfg.Watch.Dir
			}

			rt.logger.WithFields(map[string]interface{}{
				"engine":  rt.service.EngineType(),
				"address": srvCfg.Address,
				"watch":   watchDir,
			}).Info("Starting procflow")

			rt.tel.Events.Subscribe(
				telemetry.LogEvents(rt.tel.Logger.NewComponentLogger("events")),
				telemetry.FilterByLevel(rt.cfg.Telemetry.EventLevel),
			)

			g, ctx := errgroup.WithContext(cmd.Context())

			server := api.NewServer(rt.service, rt.tel, srvCfg, version)
			g.Go(func() error {
				return server.Run(ctx)
			})

			g.Go(func() error {
				return rt.tel.Metrics.ServeMetrics(ctx)
			})

			if watchDir != "" {
				w := watch.New(watchDir, rt.service,
					watch.WithDebounce(rt.cfg.Watch.Debounce),
					watch.WithInitialSync(rt.cfg.Watch.InitialSync),
					watch.WithLogger(rt.tel.Logger),
				)
				g.Go(func() error {
					if err := w.Watch(ctx); err != nil {
						return fmt.Errorf("deployment watcher: %w", err)
					}
					w.Wait()
					return nil
				})
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			rt.logger.Info("procflow stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&address, "address", "", "listen address (overrides server.address)")
	cmd.Flags().StringVar(&watchDir, "watch", "", "directory to watch for BPMN artifacts (overrides watch.dir)")

	return cmd
}
