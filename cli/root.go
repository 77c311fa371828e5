// Package cli implements the contractlens command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"contractlens/config"
)

var (
	configPath string
	verbose    bool

	// set by the root pre-run
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "contractlens",
	Short: "Review invoices and contracts",
	Long: `contractlens ingests invoices and contracts, extracts their fields with
evidence, compares invoices against the vendor's contract and scores contract
clauses against a library of standard terms.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = c
	logger = newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat, verbose)
	slog.SetDefault(logger)
	return nil
}

// withApp opens the application for the duration of fn
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.Error("app.close.failed", "err", cerr)
		}
	}()
	return fn(ctx, a)
}

// ExecuteContext runs the root command and exits non-zero on failure
func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
