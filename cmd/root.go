package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"screen-sync/pkg/config"
	"screen-sync/pkg/logging"
)

var (
	// Root command flags
	logLevel    string
	logDev      bool
	metricsAddr string
	configDir   string

	// Root command
	rootCmd = &cobra.Command{
		Use:   "screen-sync",
		Short: "Mirror terminal output into a structured screen model",
		Long: `screen-sync feeds terminal output through a terminal emulator and keeps a
structured copy of the screen and its scrollback: grapheme cells with
attributes, row attributes and the colour palette.

Output can come from a recorded capture, a command run on a
pseudo-terminal, or a serial port. When the source ends the final screen
is printed as text or JSON.`,
		Version:           "0.1.0",
		RunE:              runRoot,
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}
)

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	env := config.LoadEnvOrDefault()

	// Persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", env.LogLevel, "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logDev, "log-dev", env.LogDev, "human readable development logs")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", env.MetricsAddr, "serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", env.ConfigDir, "profile directory")

	// Add subcommands
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(attachCmd)
	rootCmd.AddCommand(portsCmd)
	rootCmd.AddCommand(profileCmd)
}

func runRoot(cmd *cobra.Command, args []string) error {
	return cmd.Help()
}

// newLogger builds the logger selected by the root flags. Logs go to stderr
// so stdout carries only screen output.
func newLogger() (*zap.Logger, error) {
	cfg := logging.DefaultConfig()
	cfg.Level = logLevel
	cfg.Development = logDev
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid logging settings: %w", err)
	}
	return logger, nil
}

func profileManager() *config.FileProfileManager {
	dir := configDir
	if dir == "" {
		dir = config.DefaultDir()
	}
	return config.NewFileProfileManager(dir)
}
