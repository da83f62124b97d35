package main

import (
	"fmt"
	"strings"

	"github.com/odvcencio/gitlet/pkg/repo"
	"github.com/spf13/cobra"
)

func newBranchCmd() *cobra.Command {
	var deleteBranch string
	var upstream string

	cmd := &cobra.Command{
		Use:   "branch [name]",
		Short: "List, create, or delete branches",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}

			// Delete mode.
			if deleteBranch != "" {
				if err := r.DeleteBranch(deleteBranch); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted branch '%s'\n", deleteBranch)
				return nil
			}

			// Upstream mode: "branch -u remote/name" records which remote a
			// branch tracks. Refused from detached HEAD.
			if upstream != "" {
				current, err := r.CurrentBranchName()
				if err != nil {
					return fmt.Errorf("branch: %w", err)
				}
				if current == "" {
					return fmt.Errorf("branch: cannot set upstream from detached HEAD")
				}
				remote, _, ok := strings.Cut(upstream, "/")
				if !ok || remote == "" {
					return fmt.Errorf("branch: upstream %q must be of the form remote/branch", upstream)
				}
				if err := r.SetBranchRemote(current, remote); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "branch '%s' set up to track '%s'\n", current, upstream)
				return nil
			}

			// Create mode.
			if len(args) == 1 {
				head, err := r.ResolveRef("HEAD")
				if err != nil {
					return fmt.Errorf("cannot create branch: HEAD has no commit: %w", err)
				}
				if err := r.CreateBranch(args[0], head); err != nil {
					return err
				}
				return nil
			}

			// List mode.
			branches, err := r.ListBranches()
			if err != nil {
				return err
			}

			current, _ := r.CurrentBranchName()

			out := cmd.OutOrStdout()
			for _, b := range branches {
				if b == current {
					fmt.Fprintf(out, "* %s\n", b)
				} else {
					fmt.Fprintf(out, "  %s\n", b)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&deleteBranch, "delete", "d", "", "delete the named branch")
	cmd.Flags().StringVarP(&upstream, "set-upstream-to", "u", "", "record upstream as remote/branch")

	return cmd
}
