package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/inovacc/reposync/internal/application"
	"github.com/inovacc/reposync/internal/params"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:     application.AppName,
	Short:   "Keep a fleet of repositories synced and their applications running",
	Version: version,
	Long: `Reposync mirrors every repository of a GitHub identity (and of its
organizations) under a projects root, pulls them when they change, and
supervises the application each checkout contains: start, stop, restart
and one-time setup, driven by the commands its manifest declares.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		envFile, envKeys, envErr := params.LoadDotEnvDefault()

		logLevel, _ := cmd.Flags().GetString("log-level")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		slog.SetDefault(setupLogger(logLevel, jsonOutput))

		switch {
		case envErr != nil:
			slog.Warn("ignoring .env file", "path", envFile, "error", envErr)
		case envFile != "":
			slog.Debug("loaded .env file", "path", envFile, "keys", envKeys)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// GetRootCmd returns the root command for introspection purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "", "Config file (default <data dir>/config.toml)")
	addConfigFlags(rootCmd.PersistentFlags())
}

func setupLogger(levelStr string, jsonOutput bool) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
