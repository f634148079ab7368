package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"tradeledger/internal/bootstrap"
	"tradeledger/internal/config"
	"tradeledger/pkg/logger"
)

var version = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Maintenance commands for the trade ledger",
		Long: `ledgerctl runs maintenance tasks against the storage configured through
the environment (DATABASE_URL, STORAGE_DRIVER, REDIS_ADDRESS, ...).`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRecomputeCmd(),
		newVerifyStockCmd(),
		newNextNumberCmd(),
		newTokenCmd(),
		newAuditCmd(),
	)
	return root
}

// withApp loads configuration, wires the service and runs fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, app *bootstrap.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.IsDevelopment(), Service: "ledgerctl"})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	logger.SetDefault(log)

	ctx := cmd.Context()
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(ctx, cfg, app)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// errFindings makes the process exit non-zero when a check found problems.
var errFindings = errors.New("inconsistencies found")
