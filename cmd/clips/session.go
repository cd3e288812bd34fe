package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/config"
	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/engine/cgoclips"
	"github.com/wippyai/clips-runtime/engine/sim"
	"github.com/wippyai/clips-runtime/engine/wasmclips"
	"github.com/wippyai/clips-runtime/runtime"
)

// streams are the terminal channels an environment is wired to.
type streams struct {
	out    io.Writer
	errOut io.Writer
	in     io.Reader
}

// session is one environment on the configured backend.
type session struct {
	env    *runtime.Environment
	cfg    *config.Config
	logger *zap.Logger
	close  func() error
}

func openSession(ctx context.Context, opts *rootOptions, s streams) (*session, error) {
	cfg := opts.cfg
	native, closeNative, err := newNative(ctx, cfg, opts.logger)
	if err != nil {
		return nil, err
	}

	ropts := []runtime.Option{
		runtime.WithLogger(opts.logger),
		runtime.WithErrorRouterPriority(cfg.Routers.ErrorPriority),
		runtime.WithStdout(s.out),
		runtime.WithStderr(s.errOut),
		runtime.WithStdin(s.in),
	}
	if cfg.Routers.LoggingRouter {
		ropts = append(ropts, runtime.WithLoggingRouter())
	}
	env, err := runtime.New(native, ropts...)
	if err != nil {
		_ = closeNative()
		return nil, err
	}

	return &session{
		env:    env,
		cfg:    cfg,
		logger: opts.logger,
		close: func() error {
			err := env.Close()
			if cerr := closeNative(); err == nil {
				err = cerr
			}
			return err
		},
	}, nil
}

func newNative(ctx context.Context, cfg *config.Config, logger *zap.Logger) (engine.Native, func() error, error) {
	nop := func() error { return nil }
	switch cfg.Backend {
	case config.BackendSim:
		// The session routers own the terminal channels.
		return sim.New(sim.WithStdout(nil), sim.WithStderr(nil), sim.WithStdin(nil)), nop, nil
	case config.BackendCgo:
		n, err := cgoclips.New()
		if err != nil {
			return nil, nil, err
		}
		return n, nop, nil
	case config.BackendWasm:
		module, err := os.ReadFile(cfg.Wasm.Module)
		if err != nil {
			return nil, nil, configError("read wasm module: %v", err)
		}
		dir, err := os.Getwd()
		if err != nil {
			return nil, nil, err
		}
		n, err := wasmclips.New(ctx, module,
			wasmclips.WithMemoryLimitPages(cfg.Wasm.MemoryLimitPages),
			wasmclips.WithDir(dir),
			wasmclips.WithLogger(logger.Named("wasm")),
		)
		if err != nil {
			return nil, nil, err
		}
		return n, func() error { return n.Close(context.WithoutCancel(ctx)) }, nil
	}
	return nil, nil, configError("unknown backend %q", cfg.Backend)
}

// loadConfigured loads the preload and batch files named by the
// configuration.
func (s *session) loadConfigured() error {
	if err := s.applyRunConfig(); err != nil {
		return err
	}
	for _, p := range s.cfg.Preload {
		if err := s.env.Load(p.Path, p.Binary); err != nil {
			return fmt.Errorf("load %s: %w", p.Path, err)
		}
	}
	for _, b := range s.cfg.Batch {
		if err := s.env.BatchStar(b); err != nil {
			return fmt.Errorf("batch %s: %w", b, err)
		}
	}
	return nil
}

// applyRunConfig sets the configured conflict resolution strategy and
// salience evaluation mode. Validate has already checked the names.
func (s *session) applyRunConfig() error {
	if name := s.cfg.Run.Strategy; name != "" {
		st, _ := engine.ParseStrategy(name)
		if _, err := s.env.SetStrategy(st); err != nil {
			return fmt.Errorf("strategy %s: %w", name, err)
		}
	}
	if name := s.cfg.Run.SalienceEvaluation; name != "" {
		mode, _ := engine.ParseSalienceEvaluation(name)
		if _, err := s.env.SetSalienceEvaluation(mode); err != nil {
			return fmt.Errorf("salience evaluation %s: %w", name, err)
		}
	}
	return nil
}

// loadFiles loads construct files by extension: .bat files are batched,
// .bin files are binary images, anything else is construct text.
func (s *session) loadFiles(paths []string) error {
	for _, p := range paths {
		var err error
		switch strings.ToLower(filepath.Ext(p)) {
		case ".bat":
			err = s.env.BatchStar(p)
		case ".bin":
			err = s.env.Load(p, true)
		default:
			err = s.env.Load(p, false)
		}
		if err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
		s.logger.Debug("loaded", zap.String("path", p))
	}
	return nil
}

// reload clears the environment and loads everything again.
func (s *session) reload(paths []string) error {
	if err := s.env.Clear(); err != nil {
		return err
	}
	if err := s.loadConfigured(); err != nil {
		return err
	}
	return s.loadFiles(paths)
}

func (s *session) Close() error {
	return s.close()
}

// printFacts lists the asserted facts the way the engine's facts
// command does.
func printFacts(w io.Writer, env *runtime.Environment) {
	facts := env.Facts()
	for _, f := range facts {
		fmt.Fprintf(w, "f-%-5d %s\n", f.Index(), f.String())
		f.Release()
	}
	plural := "s"
	if len(facts) == 1 {
		plural = ""
	}
	fmt.Fprintf(w, "For a total of %d fact%s.\n", len(facts), plural)
}
