package main

import (
	"fmt"

	"github.com/odvcencio/gitlet/pkg/object"
	"github.com/odvcencio/gitlet/pkg/repo"
	"github.com/spf13/cobra"
)

func newDiffCmd() *cobra.Command {
	var staged bool
	var nameStatus bool

	cmd := &cobra.Command{
		Use:   "diff --name-status",
		Short: "Show a name-status table of changes between working tree, staging, and HEAD",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !nameStatus {
				return fmt.Errorf("diff: %w: diff requires --name-status", repo.ErrUnsupported)
			}

			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			var h1 object.Hash
			if staged {
				if head, err := r.ResolveRef("HEAD"); err == nil {
					h1 = head
				}
			}
			changes, err := r.ReadDiff(h1, "")
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, c := range changes {
				fmt.Fprintf(out, "%s\t%s\n", c.Status, c.Path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&staged, "staged", false, "show staged changes (staging vs HEAD)")
	cmd.Flags().BoolVar(&nameStatus, "name-status", false, "show a name-status table (required)")

	return cmd
}
