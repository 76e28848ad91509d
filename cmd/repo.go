package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inovacc/reposync/internal/model"
	"github.com/inovacc/reposync/internal/settings"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Repository settings operations",
	Long: `Commands for inspecting and editing the per-repository settings.

Available Commands:
  list           List settings records
  local          List checkouts present under the projects root
  show           Show one settings record
  enable         Supervise the application of a repository
  disable        Stop supervising the application of a repository
  boot           Toggle start on boot
  delete         Delete a settings record
  default-paths  Reset paths to <projects root>/<user>/<name>`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List repository settings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		user, _ := cmd.Flags().GetString("user")

		return withComponents(cmd, func(_ model.Config, c *components) error {
			var (
				all []model.RepositorySettings
				err error
			)

			if user != "" {
				all, err = c.repos.GetUser(user)
			} else {
				all, err = c.repos.GetAll()
			}

			if err != nil {
				return err
			}

			if len(all) == 0 {
				fmt.Println("No repository settings yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "USER\tNAME\tENABLED\tBOOT\tSETUP\tLAST SYNC\tPATH")

			for _, rs := range all {
				last := "-"
				if !rs.LastSyncedAt.IsZero() {
					last = rs.LastSyncedAt.Local().Format("2006-01-02 15:04")
				}

				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					rs.User, rs.Name, onOff(rs.Enabled), onOff(rs.StartOnBoot), onOff(rs.SetupFinalized), last, rs.Path)
			}

			return w.Flush()
		})
	},
}

var repoLocalCmd = &cobra.Command{
	Use:   "local",
	Short: "List checkouts under the projects root",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		checkouts, err := model.ScanCheckouts(cfg.ProjectsRoot)
		if err != nil {
			return err
		}

		for _, lc := range checkouts {
			fmt.Printf("%s/%s\t%s\n", lc.Owner, lc.RepoName, lc.Path)
		}

		return nil
	},
}

var repoShowCmd = &cobra.Command{
	Use:   "show <user> <name>",
	Short: "Show one repository settings record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(cmd, func(_ model.Config, c *components) error {
			rs, found, err := c.repos.Get(args[0], args[1])
			if err != nil {
				return err
			}

			if !found {
				return fmt.Errorf("no settings for %s/%s", args[0], args[1])
			}

			fmt.Printf("User:            %s\n", rs.User)
			fmt.Printf("Name:            %s\n", rs.Name)
			fmt.Printf("Path:            %s\n", rs.Path)
			fmt.Printf("Enabled:         %s\n", onOff(rs.Enabled))
			fmt.Printf("Start on boot:   %s\n", onOff(rs.StartOnBoot))
			fmt.Printf("Setup finalized: %s\n", onOff(rs.SetupFinalized))

			if !rs.LastSyncedAt.IsZero() {
				fmt.Printf("Last synced:     %s\n", rs.LastSyncedAt.Local().Format("2006-01-02 15:04:05"))
			}

			return nil
		})
	},
}

func repoToggleCmd(use, short string, set func(c *components, user, name string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user> <name>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, func(_ model.Config, c *components) error {
				if err := set(c, args[0], args[1]); err != nil {
					return err
				}

				fmt.Printf("Updated %s/%s\n", args[0], args[1])

				return nil
			})
		},
	}
}

var repoBootCmd = &cobra.Command{
	Use:   "boot <user> <name>",
	Short: "Toggle start on boot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		off, _ := cmd.Flags().GetBool("off")

		return withComponents(cmd, func(_ model.Config, c *components) error {
			return c.repos.SetStartOnBoot(args[0], args[1], !off)
		})
	},
}

var repoDeleteCmd = &cobra.Command{
	Use:   "delete <user> <name>",
	Short: "Delete a repository settings record",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(cmd, func(_ model.Config, c *components) error {
			err := c.repos.Delete(args[0], args[1])
			if errors.Is(err, settings.ErrNotFound) {
				return fmt.Errorf("no settings for %s/%s", args[0], args[1])
			}

			if err != nil {
				return err
			}

			fmt.Printf("Deleted %s/%s\n", args[0], args[1])

			return nil
		})
	},
}

var repoDefaultPathsCmd = &cobra.Command{
	Use:   "default-paths [<user> <name>]",
	Short: "Reset paths to <projects root>/<user>/<name>",
	Args:  cobra.MatchAll(cobra.MaximumNArgs(2), func(_ *cobra.Command, args []string) error {
		if len(args) == 1 {
			return errors.New("give both user and name, or neither")
		}

		return nil
	}),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withComponents(cmd, func(_ model.Config, c *components) error {
			if len(args) == 2 {
				return c.repos.SetDefaultPath(args[0], args[1])
			}

			n, err := c.repos.SetDefaultPathForAll()
			if err != nil {
				return err
			}

			fmt.Printf("Reset %d paths\n", n)

			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(repoCmd)

	repoCmd.AddCommand(
		repoListCmd,
		repoLocalCmd,
		repoShowCmd,
		repoToggleCmd("enable", "Supervise the application of a repository", func(c *components, user, name string) error {
			return c.repos.SetEnabled(user, name, true)
		}),
		repoToggleCmd("disable", "Stop supervising the application of a repository", func(c *components, user, name string) error {
			return c.repos.SetEnabled(user, name, false)
		}),
		repoBootCmd,
		repoDeleteCmd,
		repoDefaultPathsCmd,
	)

	repoListCmd.Flags().String("user", "", "Only list the repositories of this user")
	repoBootCmd.Flags().Bool("off", false, "Disable start on boot")
}
