package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/odvcencio/gitlet/pkg/repo"
	"github.com/spf13/cobra"
)

func newRemoteCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage repository remotes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			cfg, err := r.ReadConfig()
			if err != nil {
				return err
			}
			names := make([]string, 0, len(cfg.Remotes))
			for name := range cfg.Remotes {
				names = append(names, name)
			}
			sort.Strings(names)
			out := cmd.OutOrStdout()
			for _, name := range names {
				if verbose {
					fmt.Fprintf(out, "%s\t%s\n", name, cfg.Remotes[name].URL)
				} else {
					fmt.Fprintln(out, name)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show remote URLs")

	cmd.AddCommand(&cobra.Command{
		Use:   "add <name> <path>",
		Short: "Add a named remote pointing at a local repository",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			if err := r.AddRemote(args[0], args[1]); err != nil {
				if errors.Is(err, repo.ErrRemoteExists) {
					return fmt.Errorf("remote %q already exists", args[0])
				}
				return err
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a named remote",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			return r.RemoveRemote(args[0])
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-url <name> <path>",
		Short: "Update a named remote's URL",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := repo.Open(".")
			if err != nil {
				return err
			}
			return r.SetRemote(args[0], args[1])
		},
	})

	return cmd
}
