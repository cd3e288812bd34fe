package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/internal/watch"
)

type runOptions struct {
	*rootOptions
	Limit int64
	Facts bool
	Watch bool
}

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run [files...]",
		Short: "Load constructs, reset and run the agenda",
		Long: `Load the configured preload and batch files followed by the given
files, reset the environment and run the agenda.

Files ending in .bat are batched, files ending in .bin are binary
images, anything else is construct text.

Example:
  clips run rules.clp
  clips run --limit 10 --facts rules.clp facts.bat
  clips run --watch rules.clp`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(cmd, opts, args)
		},
	}

	cmd.Flags().Int64VarP(&opts.Limit, "limit", "n", 0, "maximum rules to fire (default from config, -1 for no limit)")
	cmd.Flags().BoolVar(&opts.Facts, "facts", false, "list facts after running")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "reload and rerun when files change")

	return cmd
}

func runProgram(cmd *cobra.Command, opts *runOptions, files []string) error {
	ctx := cmd.Context()
	if !cmd.Flags().Changed("limit") {
		opts.Limit = opts.cfg.Run.Limit
	}
	out := cmd.OutOrStdout()

	s, err := openSession(ctx, opts.rootOptions, streams{out: out, errOut: cmd.ErrOrStderr(), in: cmd.InOrStdin()})
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.loadConfigured(); err != nil {
		return err
	}
	if err := s.loadFiles(files); err != nil {
		return err
	}
	if err := runOnce(s, out, opts); err != nil {
		return err
	}
	if !opts.Watch && !opts.cfg.Watch.Enabled {
		return nil
	}
	return watchAndRerun(ctx, s, out, opts, files)
}

func runOnce(s *session, out io.Writer, opts *runOptions) error {
	if err := s.env.Reset(); err != nil {
		return err
	}
	fired, err := s.env.Run(opts.Limit)
	s.logger.Info("run finished", zap.Int64("fired", fired))
	if err != nil {
		return err
	}
	if opts.Facts {
		printFacts(out, s.env)
	}
	return nil
}

func watchAndRerun(ctx context.Context, s *session, out io.Writer, opts *runOptions, files []string) error {
	paths := append(opts.cfg.Paths(), files...)
	if len(paths) == 0 {
		return configError("nothing to watch")
	}

	var mu sync.Mutex
	w, err := watch.New(paths, opts.cfg.WatchDebounce(), func(_ context.Context, changed []string) {
		mu.Lock()
		defer mu.Unlock()
		s.logger.Info("reloading", zap.Strings("changed", changed))
		if err := s.reload(files); err != nil {
			fmt.Fprintf(out, "reload failed: %v\n", err)
			return
		}
		if err := runOnce(s, out, opts); err != nil {
			fmt.Fprintf(out, "run failed: %v\n", err)
		}
	}, s.logger.Named("watch"))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	<-ctx.Done()
	return nil
}
