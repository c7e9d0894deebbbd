package main

import (
	"fmt"

	"Go2NetPulse/internal/config"
	"Go2NetPulse/internal/logging"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ns-monitor",
	Short: "ns-monitor - live network traffic monitor",
	Long: `ns-monitor captures packets from a network interface, classifies them by
application protocol and keeps rolling statistics that are served over HTTP.

It can also discover the devices on the local subnet with an ARP scan.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigPath, "config file path")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(tailCmd)
}

// loadConfig reads the config file and initialises logging. A missing file
// at the default path falls back to built-in defaults.
func loadConfig() (*config.Config, error) {
	var (
		cfg   *config.Config
		found = true
		err   error
	)
	if configFile == defaultConfigPath {
		cfg, found, err = config.LoadOrDefault(configFile)
	} else {
		cfg, err = config.LoadConfig(configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logging.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("failed to initialise logging: %w", err)
	}
	if !found {
		logging.For("config").WithField("path", configFile).Warn("Config file not found, using defaults")
	}
	return cfg, nil
}
