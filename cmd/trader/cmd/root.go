package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ttdog1020/Cryptobot-sub000/config"
	"github.com/ttdog1020/Cryptobot-sub000/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "Paper-trading execution and risk-safety engine",
	Long: `Trader routes trading signals through a risk engine, a safety monitor
with a sticky kill switch, and a paper venue that keeps a cash ledger.

It provides tools for:
  - Running configured scenarios for one or more accounts
  - Generating and validating account configuration files
  - Verifying and inspecting the append-only ledger

Environment variables may be supplied through a .env file; the kill switch
signal (TRADING_KILL_SWITCH by default) is read from the environment.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnv(envFile)
	},
}

var (
	envFile  string
	logLevel string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env if present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
}

// loadEnv never overrides variables already set in the process.
func loadEnv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// newLogger applies --log-level over cfg. Close the returned closer when the
// logger is no longer used.
func newLogger(cfg config.LogConfig) (*slog.Logger, io.Closer) {
	if logLevel != "" {
		cfg.Level = logLevel
	}
	return logging.New(cfg, os.Stderr)
}
