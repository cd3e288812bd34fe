package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/wippyai/clips-runtime/store"
)

type snapshotOptions struct {
	*rootOptions
	Files []string
	Run   bool
}

func newSnapshotCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &snapshotOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Save and restore fact snapshots",
		Long: `Snapshots keep the asserted facts of an environment in a SQLite
database (--store or store.path in the configuration).`,
	}
	cmd.PersistentFlags().StringSliceVarP(&opts.Files, "load", "l", nil, "construct files to load first")

	save := &cobra.Command{
		Use:   "save <name>",
		Short: "Load constructs, reset, optionally run, and save the facts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSnapshotSession(cmd, opts, func(s *session, st *store.Store) error {
				if err := s.env.Reset(); err != nil {
					return err
				}
				if opts.Run {
					if _, err := s.env.Run(opts.cfg.Run.Limit); err != nil {
						return err
					}
				}
				snap, err := st.Save(cmd.Context(), s.env, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d facts)\n", snap.Name, snap.FactCount)
				return nil
			})
		},
	}
	save.Flags().BoolVar(&opts.Run, "run", false, "run the agenda before saving")

	load := &cobra.Command{
		Use:   "load <name>",
		Short: "Load constructs and assert the facts of a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSnapshotSession(cmd, opts, func(s *session, st *store.Store) error {
				n, err := st.Load(cmd.Context(), s.env, args[0])
				if err != nil {
					return err
				}
				if opts.Run {
					if _, err := s.env.Run(opts.cfg.Run.Limit); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "loaded %s (%d facts)\n", args[0], n)
				printFacts(cmd.OutOrStdout(), s.env)
				return nil
			})
		},
	}
	load.Flags().BoolVar(&opts.Run, "run", false, "run the agenda after loading")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts.rootOptions)
			if err != nil {
				return err
			}
			defer st.Close()

			snaps, err := st.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tFACTS\tSAVED\tREVISION")
			for _, snap := range snaps {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", snap.Name, snap.FactCount, snap.CreatedAt.Format(time.RFC3339), snap.Revision)
			}
			return tw.Flush()
		},
	}

	del := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(opts.rootOptions)
			if err != nil {
				return err
			}
			defer st.Close()
			return st.Delete(cmd.Context(), args[0])
		},
	}

	cmd.AddCommand(save, load, list, del)
	return cmd
}

func openStore(opts *rootOptions) (*store.Store, error) {
	if opts.cfg.Store.Path == "" {
		return nil, configError("no snapshot store configured (use --store)")
	}
	return store.Open(opts.cfg.Store.Path)
}

func withSnapshotSession(cmd *cobra.Command, opts *snapshotOptions, fn func(*session, *store.Store) error) error {
	st, err := openStore(opts.rootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	s, err := openSession(cmd.Context(), opts.rootOptions, streams{out: cmd.OutOrStdout(), errOut: cmd.ErrOrStderr(), in: cmd.InOrStdin()})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.loadConfigured(); err != nil {
		return err
	}
	if err := s.loadFiles(opts.Files); err != nil {
		return err
	}
	return fn(s, st)
}
