package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/internal/app"
	"github.com/Ramsey-B/clover/pkg/routes"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/tracing/exporters"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the review API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		exporter, err := exporters.New(ctx, exporters.Config{
			Endpoint: cfg.TracingEndpoint,
			Protocol: cfg.TracingProtocol,
			Insecure: cfg.TracingInsecure,
		})
		if err != nil {
			return err
		}
		shutdownTracing := tracing.Setup(cfg.AppName, exporter)
		defer func() { _ = shutdownTracing(context.Background()) }()

		return withApp(ctx, func(a *app.App) error {
			e := routes.NewServer(routes.Deps{
				ServiceName:  cfg.AppName,
				Engine:       a.Engine,
				Scorer:       a.Scorer,
				Provider:     a.Provider,
				Orchestrator: a.Orchestrator,
				Health:       a.Health,
				Threshold:    cfg.MatchThreshold,
			}, logger)

			e.Server = &http.Server{
				Addr:         fmt.Sprintf(":%d", cfg.Port),
				ReadTimeout:  time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
				WriteTimeout: time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
				IdleTimeout:  time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
			}

			a.StartConsumer(ctx)

			errCh := make(chan error, 1)
			go func() {
				logger.Infof("Starting %s on port %d", cfg.AppName, cfg.Port)
				if err := e.Start(e.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("Shutting down")
			a.Health.SetReady(false)
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		})
	},
}
