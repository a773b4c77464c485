package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fidoochat/internal/app"
	"fidoochat/internal/auth"
	"fidoochat/internal/config"
	"fidoochat/internal/logging"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fidoochat",
	Short: "Terminal client for the Fidoo chat",
	Long: `Read and write the Fidoo chat from the terminal.

The backend URL comes from FIDOO_BACKEND_WEB (or backend.base_url in the
config file). The message feed transport is configured under "feed".

Quick Start:
  fidoochat tail                         # Follow the message feed
  fidoochat chat --email ana@fidoo.io    # Sign in and chat`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", config.DefaultFile, "Config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.AddCommand(loginCmd, tailCmd, chatCmd, logoutCmd)
}

// setup loads the configuration and wires the application, feed included.
// Logs go to stderr at warn level unless --verbose is set.
func setup(ctx context.Context) (*app.App, error) {
	cfg, log, err := load()
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}

	log.Debug("configured", zap.String("transport", cfg.Feed.Transport), zap.String("backend", cfg.Backend.BaseURL))
	return a, nil
}

// setupSession wires authentication only. Nothing connects to the feed.
func setupSession(ctx context.Context) (*app.App, error) {
	cfg, log, err := load()
	if err != nil {
		return nil, err
	}

	a, err := app.NewSession(ctx, cfg, log)
	if err != nil {
		_ = log.Sync()
		return nil, err
	}
	return a, nil
}

// load reads the config and builds the logger. The terminal client keeps
// its session in a file so separate runs share it.
func load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFile(cfgFile)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Auth.SessionFile == "" {
		path, err := auth.DefaultSessionPath()
		if err != nil {
			return nil, nil, fmt.Errorf("session file: %w", err)
		}
		cfg.Auth.SessionFile = path
	}

	cfg.Log.Level = "warn"
	if verbose {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
