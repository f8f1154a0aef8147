package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"devlog-cache/internal/app"
	"devlog-cache/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer
// a.Close(). operation identifies the CLI command being run.
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "devlog-cache",
	Short: "Content-addressed cache and idempotent publish layer for the devlog pipeline",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		siteID := uuid.New().String()
		cfg := config.NewConfig(siteID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Site ID:  %s\n", siteID)
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Site ID:   %s\n", cfg.SiteID)
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Store:     %s (%s)\n", cfg.Store.Type, cfg.Store.Name)
		fmt.Printf("Ledger:    %s\n", cfg.Ledger.Path)
		fmt.Printf("Manifest:  %s\n", cfg.Manifest.Path)
		fmt.Printf("Edge:      %s\n", cfg.Edge.Listen)
		return nil
	},
}

// publish command
var (
	publishWorkers int
	publishPrefix  string
)

var publishCmd = &cobra.Command{
	Use:   "publish <dir>",
	Short: "Publish a directory of artifacts, skipping unchanged content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Publish")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := a.PublishDir(ctx, args[0], publishPrefix, publishWorkers)
		if err != nil {
			return err
		}

		fmt.Printf("Published: %d written, %d skipped, %d failed\n",
			report.Written, report.Skipped, len(report.Failed))
		for _, key := range report.FailedKeys() {
			fmt.Printf("  failed: %s: %v\n", key, report.Failed[key])
		}
		if len(report.Failed) > 0 {
			return fmt.Errorf("%d artifacts failed to publish", len(report.Failed))
		}
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the edge HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Serve")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.ValidateStore(cmd.Context()); err != nil {
			return fmt.Errorf("store not usable: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return a.Serve(ctx)
	},
}

// purge command
var purgeCmd = &cobra.Command{
	Use:   "purge <YYYY-MM-DD>",
	Short: "Invalidate edge caches for one day's content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Purge")
		if err != nil {
			return err
		}
		defer a.Close()

		outcome, err := a.Purge(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if outcome.Executed {
			fmt.Printf("Purged %d paths for %s\n", len(outcome.Purged), outcome.Scope)
		} else {
			fmt.Printf("Derived %d paths for %s (no purge backend configured)\n", len(outcome.Paths), outcome.Scope)
		}
		for _, p := range outcome.Paths {
			fmt.Printf("  %s\n", p)
		}
		return nil
	},
}

// ledger command
var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Manage the dedup ledger",
}

var ledgerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show dedup ledger state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("LedgerStatus")
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Printf("Ledger: %d events recorded\n", a.LedgerLen())
		return nil
	},
}

var ledgerClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Wipe the dedup ledger (reprocesses all upstream events)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("LedgerClear")
		if err != nil {
			return err
		}
		defer a.Close()

		n := a.LedgerLen()
		if err := a.LedgerClear(); err != nil {
			return fmt.Errorf("clearing ledger: %w", err)
		}
		fmt.Printf("Cleared %d ledger entries\n", n)
		return nil
	},
}

func init() {
	publishCmd.Flags().IntVar(&publishWorkers, "workers", 4, "concurrent upload workers")
	publishCmd.Flags().StringVar(&publishPrefix, "prefix", "", "key prefix for published artifacts")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	ledgerCmd.AddCommand(ledgerStatusCmd)
	ledgerCmd.AddCommand(ledgerClearCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(ledgerCmd)
}
