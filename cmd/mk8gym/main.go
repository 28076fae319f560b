package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/0xlouis/MarioKart8-Gym-Env/internal/config"
	"github.com/0xlouis/MarioKart8-Gym-Env/pkg/core"
)

// Version and BuildDate can be set at build time via ldflags.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

const appName = "mk8gym"

var (
	configDir  string
	logLevel   string
	instanceID string
	modeFlag   string

	rootCmd = &cobra.Command{
		Use:               appName,
		Short:             "Mario Kart 8 episode engine for reinforcement learning agents",
		SilenceUsage:      true,
		PersistentPreRunE: loadConfig,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run one game instance and serve it over MQTT",
		Args:  cobra.NoArgs,
		RunE:  runServe, // serve.go
	}

	episodesCmd = &cobra.Command{
		Use:   "episodes",
		Short: "Inspect and export recorded episodes",
	}
	episodesListCmd = &cobra.Command{
		Use:   "list",
		Short: "List recorded episodes, most recent first",
		Args:  cobra.NoArgs,
		RunE:  runEpisodesList, // episodes.go
	}
	episodesExportCmd = &cobra.Command{
		Use:   "export <episode-id>...",
		Short: "Write recorded episodes as JSON export files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runEpisodesExport,
	}
	episodesUploadCmd = &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload export files to the archive service",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runEpisodesUpload,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (built %s, %s)\n", appName, Version, BuildDate, runtime.Version())
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "directory holding "+config.FileName)
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")

	serveCmd.Flags().StringVar(&instanceID, "instance-id", "", "instance id used in topic names")
	serveCmd.Flags().StringVar(&modeFlag, "mode", "", "training or inference")

	episodesListCmd.Flags().String("instance", "", "only list episodes of this instance")
	episodesListCmd.Flags().Int("limit", 20, "maximum number of episodes, 0 for all")
	episodesExportCmd.Flags().String("out", "", "output directory (default storage.memory.outputDir)")
	episodesExportCmd.Flags().Bool("compress", true, "gzip the export files")

	episodesCmd.AddCommand(episodesListCmd, episodesExportCmd, episodesUploadCmd)
	rootCmd.AddCommand(serveCmd, episodesCmd, versionCmd)
}

// loadConfig reads the config file, falling back to the defaults when it is
// missing, then applies the command line overrides.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if err := config.Load(configDir); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%v, using defaults\n", err)
	}

	if logLevel != "" {
		viper.Set("logLevel", logLevel)
	}
	if cmd.Flags().Changed("instance-id") {
		viper.Set("instanceId", instanceID)
	}
	if cmd.Flags().Changed("mode") {
		if _, ok := core.ParseRunMode(modeFlag); !ok {
			return fmt.Errorf("unknown mode %q", modeFlag)
		}
		viper.Set("mode", modeFlag)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
