// Package cmd holds the wg-dark command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chiquitav2/wg-dark/internal/darknet/config"
	"github.com/chiquitav2/wg-dark/internal/shared/logger"
)

const version = "0.1.0"

var (
	cfgFile string
	loader  = config.NewLoader()
)

var rootCmd = &cobra.Command{
	Use:   "wg-dark",
	Short: "Join and run WireGuard darknets",
	Long: `wg-dark joins a WireGuard darknet with an invite code, brings up the
local interface and keeps its peer list in sync with the coordination server
until interrupted.

Examples:
  # Join a darknet
  wg-dark join 203.0.113.7:443:s3cr3t

  # Bring a previously joined darknet back up
  wg-dark start wgdark0`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: .wg-dark.yaml in /etc/wg-dark, $HOME or .)")
	flags.StringP("interface", "i", "", "WireGuard interface name (default: wgdark0)")
	flags.String("state-dir", "", "directory for persisted darknets (default: /etc/wg-dark)")
	flags.String("log-level", "", "log level: debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")

	// Flags override file and environment values.
	v := loader.Viper()
	_ = v.BindPFlag("interface", flags.Lookup("interface"))
	_ = v.BindPFlag("state_dir", flags.Lookup("state-dir"))
	_ = v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log_format", flags.Lookup("log-format"))
}

// loadConfig reads configuration and builds the logger for a command.
func loadConfig() (*config.Config, *logger.Logger, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = loader.LoadWithPath(cfgFile)
	} else {
		cfg, err = loader.Load()
	}
	if err != nil {
		return nil, nil, err
	}

	loggerConfig := cfg.LoggerConfig()
	loggerConfig.Version = version
	return cfg, logger.New(loggerConfig), nil
}
