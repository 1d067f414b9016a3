package main

import (
	"os"

	"github.com/dkeye/peercall/internal/config"
	"github.com/dkeye/peercall/internal/logging"
	"github.com/dkeye/peercall/internal/ui"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	signalURL  string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "peercall",
	Short: "Two-party WebRTC calls over a signaling relay",
	Long: `peercall joins a room on a signaling relay and negotiates a direct
WebRTC call with the other participant. The first to arrive becomes the
caller once the second joins.

Examples:
  peercall create
  peercall join 6f1c2d0e-...
  peercall join my-room --video --record-dir ./rec`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			c.LogLevel = logLevel
		}
		if cmd.Flags().Changed("signal-url") {
			c.SignalURL = signalURL
		}
		logging.Init(c.LogLevel)
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&signalURL, "signal-url", "", "relay signaling endpoint, e.g. ws://localhost:8000/join")
}

func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
