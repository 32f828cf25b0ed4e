package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stakesim/internal/config"
	"stakesim/internal/logging"
	"stakesim/pkg/stakesim"
)

var version = "0.1.0-dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stakesimctl",
		Short: "Proof-of-stake validator incentive simulator",
		Long: `stakesimctl runs the validator incentive simulation under a penalty
controller, serves it to an external controller over HTTP, and inspects
persisted runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "config file (.yaml, .yml, .toml or .json)")
	rootCmd.PersistentFlags().String("store", "", "store backend: memory|sqlite")
	rootCmd.PersistentFlags().String("db-path", "", "sqlite database path")
	rootCmd.PersistentFlags().String("artifacts-dir", "", "directory for run artifacts")
	rootCmd.PersistentFlags().String("log-level", "", "log level: trace|debug|info|warn|error|disabled")
	rootCmd.PersistentFlags().String("log-format", "", "log format: console|json")
	rootCmd.PersistentFlags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newServeCmd(),
		newRunsCmd(),
		newRoundsCmd(),
		newExportCmd(),
		newDeleteCmd(),
		newValidatorsCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput(cmd) {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"version": version})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stakesimctl version %s\n", version)
			return nil
		},
	}
}

// loadConfig layers defaults, the config file, STAKESIM_* env and then the
// persistent flags.
func loadConfig(cmd *cobra.Command) (*config.File, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := firstError(
		overrideFlag(cmd, "store", cmd.Flags().GetString, &cfg.Storage.Kind),
		overrideFlag(cmd, "db-path", cmd.Flags().GetString, &cfg.Storage.SQLitePath),
		overrideFlag(cmd, "artifacts-dir", cmd.Flags().GetString, &cfg.Storage.ArtifactsDir),
		overrideFlag(cmd, "log-level", cmd.Flags().GetString, &cfg.Logging.Level),
		overrideFlag(cmd, "log-format", cmd.Flags().GetString, &cfg.Logging.Format),
	); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overrideFlag copies an explicitly set flag into dst.
func overrideFlag[T any](cmd *cobra.Command, name string, get func(string) (T, error), dst *T) error {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, err := get(name)
	if err != nil {
		return fmt.Errorf("flag --%s: %w", name, err)
	}
	*dst = v
	return nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func newLogger(cmd *cobra.Command, cfg *config.File) zerolog.Logger {
	opts := cfg.LoggingOptions("stakesimctl")
	opts.Writer = cmd.ErrOrStderr()
	return logging.New(opts)
}

func newClient(cmd *cobra.Command, cfg *config.File) (*stakesim.Client, error) {
	logger := newLogger(cmd, cfg)
	return stakesim.New(stakesim.Options{
		StoreKind:    cfg.Storage.Kind,
		DBPath:       cfg.Storage.SQLitePath,
		ArtifactsDir: cfg.Storage.ArtifactsDir,
		Logger:       &logger,
	})
}

func jsonOutput(cmd *cobra.Command) bool {
	v, err := cmd.Flags().GetBool("json")
	return err == nil && v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
