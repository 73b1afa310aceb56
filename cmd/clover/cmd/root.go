// Package cmd holds the clover command line
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Gobusters/ectologger"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/app"
)

var (
	// Version is set by main
	Version = "dev"

	cfg    *config.Config
	logger ectologger.Logger

	errNoProvider = errors.New("auto-merge needs AI_PROVIDER set to something other than none")
)

var rootCmd = &cobra.Command{
	Use:   "clover",
	Short: "Duplicate person record reconciliation",
	Long: `clover finds likely duplicate person records, walks each duplicate group
through review, and merges approved groups into a single keeper with a
one-step undo.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute(version string) {
	Version = version

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, scanCmd, scoreCmd, importCmd)
}

func setup(cmd *cobra.Command, _ []string) error {
	loaded, err := config.Load()
	if err != nil {
		return err
	}
	if loaded.Version == "dev" {
		loaded.Version = Version
	}

	l, err := app.NewLogger(loaded)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	cfg = loaded
	logger = l
	return nil
}

// withApp builds the application for a one-shot command and tears it down afterwards
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.WithError(err).Warn("Failed to shut down cleanly")
		}
	}()
	return fn(a)
}
