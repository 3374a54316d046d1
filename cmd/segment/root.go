package main

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"mart-segments/internal/config"
	"mart-segments/internal/observability"
	"mart-segments/internal/services"
)

var logLevels = []string{"debug", "info", "warn", "error"}

// cli holds state shared by the subcommands once the root has loaded config.
type cli struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "segment",
		Short: "Cluster Big Mart products by sales behaviour and attribute store sales to the segments",
		Long: `segment builds per-product features from a Big Mart transaction table, picks the
number of clusters by silhouette score, clusters the products with k-means and
writes product, store and store-cluster tables.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.load,
	}

	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (yaml, toml or json)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn or error (overrides config)")

	root.AddCommand(c.newExportCmd(), c.newScoresCmd(), c.newSynthCmd())
	return root
}

func (c *cli) load(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		if !slices.Contains(logLevels, c.logLevel) {
			return fmt.Errorf("invalid --log-level %q", c.logLevel)
		}
		cfg.Logger.Level = c.logLevel
	}
	c.cfg = cfg
	// stdout is reserved for command output
	c.logger = observability.NewLoggerTo(cmd.ErrOrStderr(), cfg.Logger)
	return nil
}

func (c *cli) analytics() (*services.Analytics, error) {
	return services.NewAnalytics(c.cfg.Pipeline, c.cfg.Data.CacheDir, c.logger)
}
