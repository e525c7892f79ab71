package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/chatflow/internal/config"
	"github.com/aretw0/chatflow/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "chatflow",
	Short: "Chatflow validates and runs WhatsApp conversation flows",
	Long: `Chatflow checks directed-graph chat flows for structural errors and executes
activated flows against inbound WhatsApp messages, one session per sender.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Dotenv file loaded before reading CHATFLOW_* variables")
	rootCmd.PersistentFlags().String("log-level", "", "Override CHATFLOW_LOG_LEVEL (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Override CHATFLOW_LOG_FORMAT (text, json)")
}

// loadConfig reads the environment and applies persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.LogFormat = format
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
}
