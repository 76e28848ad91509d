package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/inovacc/reposync/internal/manifest"
	"github.com/inovacc/reposync/internal/model"
	"github.com/inovacc/reposync/internal/supervisor"
)

var appCmd = &cobra.Command{
	Use:   "app",
	Short: "Manage the application of a checkout",
	Long: `Start, stop, restart or set up the application contained in a checkout.

The checkout declares its commands in settings.json (under "dev-gui") or in
reposync.toml:

  [commands]
  start = "python3 app.py"
  start_alt_1 = "python app.py"
  stop = "./stop.sh"
  setup = "pip install -r requirements.txt"`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var appStartCmd = &cobra.Command{
	Use:   "start <path>",
	Short: "Start the application",
	Args:  cobra.ExactArgs(1),
	RunE: appRun(func(cmd *cobra.Command, c *components, path string) error {
		pid, err := c.sup.Start(cmd.Context(), path)
		if err != nil {
			return err
		}

		fmt.Printf("Started %s (pid %d)\n", path, pid)

		return nil
	}),
}

var appStopCmd = &cobra.Command{
	Use:   "stop <path>",
	Short: "Stop the application",
	Args:  cobra.ExactArgs(1),
	RunE: appRun(func(cmd *cobra.Command, c *components, path string) error {
		res, err := c.sup.Stop(cmd.Context(), path)
		if err != nil {
			return err
		}

		switch res.Method {
		case supervisor.StopNothing:
			fmt.Printf("Nothing running in %s\n", path)
		default:
			fmt.Printf("Stopped %s by %s %v\n", path, res.Method, res.PIDs)
		}

		return nil
	}),
}

var appRestartCmd = &cobra.Command{
	Use:   "restart <path>",
	Short: "Stop then start the application",
	Args:  cobra.ExactArgs(1),
	RunE: appRun(func(cmd *cobra.Command, c *components, path string) error {
		pid, err := c.sup.Restart(cmd.Context(), path)
		if err != nil {
			return err
		}

		fmt.Printf("Restarted %s (pid %d)\n", path, pid)

		return nil
	}),
}

var appSetupCmd = &cobra.Command{
	Use:   "setup <path>",
	Short: "Run the setup command once, then start the application",
	Args:  cobra.ExactArgs(1),
	RunE: appRun(func(cmd *cobra.Command, c *components, path string) error {
		user := filepath.Base(filepath.Dir(path))
		name := filepath.Base(path)

		rs, found, err := c.repos.Get(user, name)
		if err != nil {
			return err
		}

		if !found {
			rs = model.RepositorySettings{User: user, Name: name, Path: path}
		}

		if rs.Path == "" {
			rs.Path = path
		}

		if force, _ := cmd.Flags().GetBool("force"); force {
			rs.SetupFinalized = false
		}

		pid, err := c.sup.SetupAndStart(cmd.Context(), rs)
		if err != nil {
			return err
		}

		fmt.Printf("Set up and started %s (pid %d)\n", path, pid)

		return nil
	}),
}

var appExecCmd = &cobra.Command{
	Use:   "run <path> <command>",
	Short: "Run a named manifest command",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return appRun(func(cmd *cobra.Command, c *components, path string) error {
			out, err := c.sup.RunCommand(cmd.Context(), path, args[1])
			_, _ = os.Stdout.Write(out)

			return err
		})(cmd, args[:1])
	},
}

var appStatusCmd = &cobra.Command{
	Use:   "status <path>",
	Short: "Show the manifest and whether the application runs",
	Args:  cobra.ExactArgs(1),
	RunE: appRun(func(cmd *cobra.Command, c *components, path string) error {
		res := manifest.Load(path)

		fmt.Printf("Path:     %s\n", path)
		fmt.Printf("Manifest: %s", res.Status)

		if res.Path != "" {
			fmt.Printf(" (%s)", res.Path)
		}

		fmt.Println()

		if res.Status == manifest.Error {
			return res.Err
		}

		if res.Manifest != nil {
			if v, err := res.Manifest.SemVer(); err == nil {
				fmt.Printf("Version:  %s\n", v)
			}

			for _, start := range res.Manifest.StartCommands() {
				fmt.Printf("Start:    %s\n", start)
			}
		}

		running, err := c.sup.IsRunning(cmd.Context(), path)
		if err != nil {
			return err
		}

		fmt.Printf("Running:  %s\n", onOff(running))

		return nil
	}),
}

// appRun resolves the path argument and opens the components for fn.
func appRun(fn func(cmd *cobra.Command, c *components, path string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		path, err := expandPath(args[0])
		if err != nil {
			return err
		}

		return withComponents(cmd, func(_ model.Config, c *components) error {
			return fn(cmd, c, path)
		})
	}
}

func init() {
	rootCmd.AddCommand(appCmd)
	appCmd.AddCommand(appStartCmd, appStopCmd, appRestartCmd, appSetupCmd, appExecCmd, appStatusCmd)
	appSetupCmd.Flags().Bool("force", false, "Run setup even when it already ran")
}
