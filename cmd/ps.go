package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/inovacc/reposync/internal/model"
	"github.com/inovacc/reposync/internal/process"
)

var psCmd = &cobra.Command{
	Use:   "ps <name>",
	Short: "List processes whose command contains name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		withCWD, _ := cmd.Flags().GetBool("cwd")
		dir, _ := cmd.Flags().GetString("dir")

		insp := process.NewInspector()

		var (
			recs []model.ProcessRecord
			err  error
		)

		switch {
		case dir != "":
			var abs string

			abs, err = expandPath(dir)
			if err != nil {
				return err
			}

			recs, err = insp.FindInDir(cmd.Context(), args[0], abs)
			withCWD = true
		case withCWD:
			recs, err = insp.FindWithCWD(cmd.Context(), args[0], nil)
		default:
			recs, err = insp.Find(cmd.Context(), args[0], nil)
		}

		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

		header := "USER\tPID\tPPID\tCMD"
		if withCWD {
			header += "\tCWD"
		}

		_, _ = fmt.Fprintln(w, header)

		for _, r := range recs {
			line := fmt.Sprintf("%s\t%d\t%d\t%s", r.EUser, r.PID, r.PPID, r.Cmd)
			if withCWD {
				cwd := r.CWD
				if cwd == "" {
					cwd = "-"
				}

				line += "\t" + cwd
			}

			_, _ = fmt.Fprintln(w, line)
		}

		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(psCmd)
	psCmd.Flags().Bool("cwd", false, "Resolve the working directory of each process")
	psCmd.Flags().String("dir", "", "Only list processes running in this directory")
}
