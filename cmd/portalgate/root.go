package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/portalgate/internal/config"
	"github.com/aretw0/portalgate/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "portalgate",
	Short: "Portalgate is a token gateway to an academic portal",
	Long: `Portalgate logs users into the portal once and hands them an opaque token.
Several instances share their sessions by asking each other for unknown tokens.`,
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
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a YAML configuration file")
	rootCmd.PersistentFlags().String("instance", "", "Instance ID (overrides configuration)")
	rootCmd.PersistentFlags().String("peers", "", "Sibling instances as id=address,... (overrides configuration)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("json", false, "Emit JSON logs")
}

// loadConfig reads the configuration and applies command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if v, _ := cmd.Flags().GetString("instance"); v != "" {
		cfg.InstanceID = v
	}
	if v, _ := cmd.Flags().GetString("peers"); v != "" {
		var peers config.PeerList
		if err := peers.UnmarshalText([]byte(v)); err != nil {
			return nil, err
		}
		cfg.Peers = peers
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetBool("json"); v {
		cfg.Log.Format = "json"
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewWithFormat(os.Stderr, level, cfg.Log.Format), nil
}
