package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync loop in the foreground",
	Long: `Run the sync loop until interrupted or asked to stop.

Each pass lists the repositories of the authenticated identity and of its
organizations, clones missing checkouts (at most --max-clones per pass),
pulls checkouts whose remote was pushed since the last sync, and restarts
the enabled application of every pulled checkout.

Authentication:
  Token is automatically detected from (in order):
  - --token flag
  - GITHUB_TOKEN environment variable
  - GH_TOKEN environment variable
  - gh CLI (if authenticated via 'gh auth login')

Examples:
  reposync run
  reposync run --projects-root ~/code --pass-interval 5m
  reposync run --once --log-level=debug
  reposync run --replace --kill-subprocesses`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("replace", false, "Terminate a previous running instance instead of refusing to start")
	runCmd.Flags().Bool("kill-subprocesses", false, "Stop launched applications when exiting")
	runCmd.Flags().Bool("once", false, "Run a single pass and exit")
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	replace, _ := cmd.Flags().GetBool("replace")
	kill, _ := cmd.Flags().GetBool("kill-subprocesses")
	once, _ := cmd.Flags().GetBool("once")

	logger := slog.Default()

	d, err := newDaemon(cfg, daemonOptions{
		Replace:          replace,
		KillSubprocesses: kill,
		Once:             once,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	defer func() { _ = d.close() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	defer signal.Stop(sigs)

	go func() {
		select {
		case sig := <-sigs:
			logger.Info("signal received, stopping after the current action", slog.String("signal", sig.String()))
			d.stop()
		case <-ctx.Done():
			return
		}

		// a second signal does not wait for the action
		select {
		case <-sigs:
			cancel()
		case <-ctx.Done():
		}
	}()

	return d.run(ctx)
}
