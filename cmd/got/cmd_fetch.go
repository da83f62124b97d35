package main

import (
	"fmt"

	"github.com/odvcencio/gitlet/pkg/repo"
	"github.com/spf13/cobra"
)

func newFetchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <remote>",
		Short: "Download objects and refs from a remote repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			report, err := r.Fetch(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fetched from %s (%s)\n", report.RemoteName, report.RemoteURL)
			fmt.Fprintf(out, "%d object(s) copied\n", report.ObjectsCopied)
			for _, b := range report.Branches {
				if report.Forced[b] {
					fmt.Fprintf(out, "  + %s/%s (forced update)\n", report.RemoteName, b)
				} else {
					fmt.Fprintf(out, "  %s/%s\n", report.RemoteName, b)
				}
			}
			return nil
		},
	}
}
