// Package main implements the ispl CLI: an interactive client for the
// document-search backend, plus one-shot subcommands for scripting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ispl/cmd/ispl/ui"
	"ispl/internal/config"
	"ispl/internal/logging"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	apiURL     string
	verbose    bool
	rawOutput  bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ispl",
	Short: "Search, manage and analyze documents on an ispl backend",
	Long: `ispl talks to a document-search backend.

Run without arguments to start the interactive client: log in, chat with the
indexed documents, upload or delete documents, analyze images, and browse the
workflow logs. The subcommands do the same things one at a time.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if apiURL != "" {
			c.API.BaseURL = apiURL
			if err := c.Validate(); err != nil {
				return err
			}
		}
		cfg = c

		lc := logging.Config{
			DebugMode:  c.Logging.DebugMode,
			Level:      c.Logging.Level,
			File:       c.Logging.File,
			MaxSizeMB:  c.Logging.MaxSizeMB,
			MaxBackups: c.Logging.MaxBackups,
			Categories: c.Logging.Categories,
		}
		// The TUI owns the terminal; only one-shot commands log to stderr.
		if verbose && cmd.HasParent() {
			lc.Console = true
			lc.Level = "debug"
		}
		if err := logging.Initialize(lc); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		logging.BootDebug("config loaded from %s, backend %s", configPath, c.API.BaseURL)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logging.Sync()
	},
	RunE: runInteractive,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath(), "Config file")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "Backend base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log to stderr at debug level")
	rootCmd.PersistentFlags().BoolVar(&rawOutput, "raw", false, "Print markdown without rendering")

	rootCmd.AddCommand(
		loginCmd,
		logoutCmd,
		whoamiCmd,
		registerCmd,
		askCmd,
		policiesCmd,
		imageCmd,
		workflowCmd,
		statusCmd,
		configCmd,
	)
}

// commandContext is cancelled on SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func styles() ui.Styles {
	return ui.NewStyles(ui.ThemeByName(cfg.UI.Theme))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		logging.Close()
		os.Exit(1)
	}
	logging.Close()
}
