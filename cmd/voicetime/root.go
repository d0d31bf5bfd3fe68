package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const (
	defaultConfigPath = "/etc/voicetime/config.yaml"
	configPathEnv     = "VOICETIME_CONFIG"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd runs the tracker when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:   "voicetime",
	Short: "Track time spent in a Discord voice channel",
	Long: `voicetime watches one Discord voice channel, records when members join and
leave, logs their mute/deafen/stream toggles and keeps a per-day total of the
time each member spent in the channel.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: resolveConfigPath,
	RunE:              runServer,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath,
		"Path to configuration file (or "+configPathEnv+")")
	rootCmd.SetVersionTemplate("voicetime {{.Version}}\n")
}

// resolveConfigPath lets the environment stand in for an unset --config.
func resolveConfigPath(cmd *cobra.Command, _ []string) error {
	if cmd.Flags().Changed("config") {
		return nil
	}
	if path := os.Getenv(configPathEnv); path != "" {
		configPath = path
	}
	return nil
}

// Execute runs the selected command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = color.New(color.FgRed).Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
