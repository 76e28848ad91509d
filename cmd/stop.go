package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/inovacc/reposync/internal/model"
	"github.com/inovacc/reposync/internal/process"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the running sync loop to stop",
	Long: `Set the stop flag in the settings table. The running loop notices it within
one stop-check interval, finishes its current clone or pull, and exits.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		wait, _ := cmd.Flags().GetDuration("wait")

		return withComponents(cmd, func(_ model.Config, c *components) error {
			if err := c.flags.SetStopRequested(true); err != nil {
				return err
			}

			fmt.Println("Stop requested.")

			if wait <= 0 {
				return nil
			}

			data, err := c.local.Load()
			if err != nil || data.PID <= 0 {
				return nil
			}

			deadline := time.Now().Add(wait)
			for process.IsRunning(data.PID) {
				if time.Now().After(deadline) {
					return fmt.Errorf("instance %d still running after %s", data.PID, wait)
				}

				time.Sleep(200 * time.Millisecond)
			}

			fmt.Printf("Instance %d stopped.\n", data.PID)

			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
	stopCmd.Flags().Duration("wait", 0, "Wait up to this long for the running instance to exit")
}
