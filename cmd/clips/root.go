package main

import (
	stderrors "errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/config"
	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/router"
	"github.com/wippyai/clips-runtime/runtime"
	"github.com/wippyai/clips-runtime/store"
)

// Exit codes.
const (
	exitFailure = 1
	exitConfig  = 2
)

// exitError carries the process exit code for a command failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ee *exitError
	if stderrors.As(err, &ee) {
		return ee.code
	}
	return exitFailure
}

// rootOptions holds the global flags and what PersistentPreRunE derives
// from them.
type rootOptions struct {
	ConfigPath string
	Verbose    bool
	Backend    string
	WasmModule string
	StorePath  string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "clips",
		Short: "Run CLIPS rule programs",
		Long: `clips loads CLIPS constructs into an engine environment, runs the
agenda, evaluates expressions and keeps fact snapshots.

The engine backend is chosen by configuration: the built-in "sim"
engine, libclips through cgo ("cgo", needs the clips build tag), or
CLIPS compiled to WebAssembly ("wasm").`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.logger != nil {
				_ = opts.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "clips.yaml", "path to configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose logging")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", "", "engine backend (sim|cgo|wasm)")
	cmd.PersistentFlags().StringVar(&opts.WasmModule, "wasm", "", "CLIPS WebAssembly module for the wasm backend")
	cmd.PersistentFlags().StringVar(&opts.StorePath, "store", "", "snapshot database path")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newEvalCommand(opts))
	cmd.AddCommand(newReplCommand(opts))
	cmd.AddCommand(newSnapshotCommand(opts))

	return cmd
}

func (o *rootOptions) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = o.Backend
	}
	if flags.Changed("wasm") {
		cfg.Wasm.Module = o.WasmModule
		if !flags.Changed("backend") {
			cfg.Backend = config.BackendWasm
		}
	}
	if flags.Changed("store") {
		cfg.Store.Path = o.StorePath
	}
	if err := cfg.Validate(); err != nil {
		return &exitError{code: exitConfig, err: err}
	}

	logger, err := newLogger(cfg, o.Verbose)
	if err != nil {
		return &exitError{code: exitConfig, err: fmt.Errorf("build logger: %w", err)}
	}
	o.cfg = cfg
	o.logger = logger

	runtime.SetLogger(logger.Named("runtime"))
	router.SetLogger(logger.Named("router"))
	engine.SetLogger(logger.Named("engine"))
	store.SetLogger(logger.Named("store"))
	return nil
}

func newLogger(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(cfg.LogLevel())
	zc.Encoding = cfg.Logging.Format
	if zc.Encoding == "console" {
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	zc.Sampling = nil
	return zc.Build()
}

func configError(format string, args ...any) error {
	return &exitError{code: exitConfig, err: fmt.Errorf(format, args...)}
}

func isTerminal(f *os.File) bool {
	return f != nil && termCheck(int(f.Fd()))
}
