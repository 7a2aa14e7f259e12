// Package cmd is the tillsyn command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rsg-tillsyn/tillsyn-assist/internal/config"
	"github.com/rsg-tillsyn/tillsyn-assist/pkg/logger"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "tillsyn",
	Short: "Voice assistant for fire-safety inspections",
	Long: `tillsyn records inspection conversations with a voice agent, extracts project
details from the transcript, keeps checklist answers and defects for each case, and
renders the inspection notice.`,
	SilenceUsage: true,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.toml", "Path to the TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(converseCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(projectsCmd)
}

// loadConfig reads the configuration and builds the logger
func loadConfig() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, log, nil
}
