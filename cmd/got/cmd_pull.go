package main

import (
	"fmt"

	"github.com/odvcencio/gitlet/pkg/repo"
	"github.com/spf13/cobra"
)

func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull <remote>",
		Short: "Fetch from a remote and merge its for-merge branch into HEAD",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			fetchReport, mergeReport, err := r.Pull(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fetched from %s (%d object(s) copied)\n", fetchReport.RemoteName, fetchReport.ObjectsCopied)

			if mergeReport.AlreadyUpToDate {
				fmt.Fprintln(out, "already up to date")
				return nil
			}

			for _, f := range mergeReport.Files {
				printFileReport(out, f)
			}

			switch {
			case mergeReport.FastForward:
				short := string(mergeReport.MergeCommit)
				if len(short) > 8 {
					short = short[:8]
				}
				fmt.Fprintf(out, "fast-forward to %s\n", short)
			case mergeReport.HasConflicts:
				fmt.Fprintf(out, "merge completed with %d conflict", mergeReport.TotalConflicts)
				if mergeReport.TotalConflicts != 1 {
					fmt.Fprint(out, "s")
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, "fix conflicts and run got commit")
			default:
				fmt.Fprintln(out, "merge staged cleanly; run got commit to finish it")
			}

			return nil
		},
	}
}
