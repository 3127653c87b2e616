package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/segue/internal/config"
	"github.com/satindergrewal/segue/internal/logger"
)

var cfg config.Config

var rootCmd = &cobra.Command{
	Use:           "segue",
	Short:         "segue authors and previews adaptive game music transitions.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg = config.Load()
		if v, _ := cmd.Flags().GetString("log-level"); v != "" {
			cfg.LogLevel = v
		}
		return logger.Init(logger.Config{
			Level:      logger.LogLevel(cfg.LogLevel),
			OutputPath: cfg.LogFile,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     14,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warn or error (overrides SEGUE_LOG_LEVEL)")
	rootCmd.AddCommand(serveCmd, validateCmd, convertCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "segue:", err)
		os.Exit(1)
	}
}
