package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/odvcencio/gitlet/pkg/repo"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var bare bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Create an empty gitlet repository",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			abs, err := filepath.Abs(path)
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}

			// Ensure the target directory exists.
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return fmt.Errorf("create directory: %w", err)
			}

			if bare {
				r, err := repo.InitBare(abs)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "initialized empty bare gitlet repository in %s\n", r.RootDir+string(filepath.Separator))
				return nil
			}

			r, err := repo.Init(abs)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "initialized empty gitlet repository in %s\n", filepath.Join(r.RootDir, ".gitlet")+string(filepath.Separator))
			return nil
		},
	}

	cmd.Flags().BoolVar(&bare, "bare", false, "create a bare repository with no working copy")
	return cmd
}
