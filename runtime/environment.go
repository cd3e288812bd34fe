package runtime

import (
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
	"github.com/wippyai/clips-runtime/resource"
	"github.com/wippyai/clips-runtime/router"
	"github.com/wippyai/clips-runtime/transcoder"
)

// Environment owns one engine environment together with its routers,
// user functions, capsules and pending proxy releases. It must be used
// from one goroutine at a time; separate environments are independent.
type Environment struct {
	native engine.Native
	env    engine.Env
	logger *zap.Logger

	routers   *router.Registry
	errRouter *router.ErrorRouter
	logRouter *router.LoggingRouter

	capsules  *resource.Table
	encoder   *transcoder.Encoder
	decoder   *transcoder.Decoder
	functions *functionTable
	releases  releaseQueue

	errPin resource.Handle
	depth  int
	closed atomic.Bool
}

// New creates an environment on native.
func New(native engine.Native, opts ...Option) (*Environment, error) {
	if native == nil {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "engine")
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	logger := o.logger
	if logger == nil {
		logger = Logger()
	}

	id := native.CreateEnvironment()
	if id == 0 {
		return nil, errors.NotInitialized(errors.PhaseRuntime, "engine environment")
	}

	e := &Environment{
		native:   native,
		env:      id,
		logger:   logger.With(zap.Uint64("env", uint64(id))),
		capsules: resource.NewTable(),
	}
	e.encoder = transcoder.NewEncoder(e.capsules, e)
	e.decoder = transcoder.NewDecoder(e.capsules, proxyFactory{e})
	e.functions = newFunctionTable(e.capsules)
	e.routers = router.NewRegistry(native, id, e.logger)

	if err := e.install(o); err != nil {
		_ = e.Close()
		return nil, err
	}
	e.logger.Debug("environment created")
	return e, nil
}

func (e *Environment) install(o *options) error {
	if !e.native.AddUDF(e.env, bridgeFunction, 1, engine.Unbounded, e.goFunction) {
		return errors.Registration(errors.PhaseHost, bridgeFunction, nil)
	}
	for _, r := range o.routers() {
		if err := e.routers.Add(r); err != nil {
			return err
		}
	}
	e.errRouter = router.NewErrorRouter(o.errorPriority)
	if err := e.routers.Add(e.errRouter); err != nil {
		return err
	}
	if o.loggingRouter {
		e.logRouter = router.NewLoggingRouter(e.logger)
		if err := e.routers.Add(e.logRouter); err != nil {
			return err
		}
	}
	return nil
}

// Close deletes the routers, drops the function and capsule tables,
// then destroys the engine environment. Proxies outliving the
// environment release nothing.
func (e *Environment) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if e.logRouter != nil {
		e.logRouter.Flush()
	}
	err := e.routers.Close()
	e.functions.clear()
	e.releases.close()
	_ = e.capsules.Close()
	if !e.native.DestroyEnvironment(e.env) && err == nil {
		err = errors.New(errors.PhaseRuntime, errors.KindState).
			Detail("unable to destroy environment").
			Build()
	}
	e.logger.Debug("environment closed")
	return err
}

// Closed reports whether Close has been called.
func (e *Environment) Closed() bool {
	return e.closed.Load()
}

// enter starts an engine operation: pending releases are handed to the
// engine and, for outermost calls, stale diagnostics are dropped.
func (e *Environment) enter(phase errors.Phase) error {
	if e.closed.Load() {
		return errors.Closed(phase)
	}
	e.drainReleases()
	if e.depth == 0 && e.errRouter != nil {
		e.errRouter.LastMessage()
	}
	e.depth++
	return nil
}

func (e *Environment) leave() {
	e.depth--
}

// diagnostic returns the engine text captured since enter, on one line.
// captured is false when fallback is returned instead.
func (e *Environment) diagnostic(fallback string) (msg string, captured bool) {
	if e.errRouter == nil {
		return fallback, false
	}
	msg = strings.TrimSpace(e.errRouter.LastMessage())
	if msg == "" {
		return fallback, false
	}
	return strings.ReplaceAll(msg, "\n", " "), true
}

func (e *Environment) ioError(phase errors.Phase, code int, fallback string) error {
	msg, captured := e.diagnostic(fallback)
	err := errors.IOError(phase, msg, code)
	err.Reported = captured
	return err
}

// callError carries the host error recorded by a failing user function,
// if any, as its cause.
func (e *Environment) callError(phase errors.Phase, code int, fallback string) error {
	msg, captured := e.diagnostic(fallback)
	err := errors.CallError(phase, msg, e.ErrorState())
	err.Code = code
	err.Reported = captured
	return err
}

// Load defines the constructs in a file. binary selects the binary image
// format; a file in the other format is an error.
func (e *Environment) Load(path string, binary bool) error {
	if err := e.enter(errors.PhaseLoad); err != nil {
		return err
	}
	defer e.leave()

	if binary {
		if !e.native.Bload(e.env, path) {
			return e.ioError(errors.PhaseLoad, 0, fmt.Sprintf("unable to load binary file %s", path))
		}
	} else if code := e.native.Load(e.env, path); code != engine.LoadNoError {
		return e.ioError(errors.PhaseLoad, int(code), fmt.Sprintf("unable to load file %s", path))
	}
	e.logger.Debug("constructs loaded", zap.String("path", path), zap.Bool("binary", binary))
	return nil
}

// Save writes the constructs to a file, as text or as a binary image.
func (e *Environment) Save(path string, binary bool) error {
	if err := e.enter(errors.PhaseSave); err != nil {
		return err
	}
	defer e.leave()

	var ok bool
	if binary {
		ok = e.native.Bsave(e.env, path)
	} else {
		ok = e.native.Save(e.env, path)
	}
	if !ok {
		return e.ioError(errors.PhaseSave, 0, fmt.Sprintf("unable to save file %s", path))
	}
	return nil
}

// BatchStar evaluates the commands and constructs of a file in order.
func (e *Environment) BatchStar(path string) error {
	if err := e.enter(errors.PhaseLoad); err != nil {
		return err
	}
	defer e.leave()

	if !e.native.BatchStar(e.env, path) {
		return e.ioError(errors.PhaseLoad, 0, fmt.Sprintf("unable to batch file %s", path))
	}
	return nil
}

// Build defines a single construct.
func (e *Environment) Build(construct string) error {
	if err := e.enter(errors.PhaseBuild); err != nil {
		return err
	}
	defer e.leave()

	if code := e.native.Build(e.env, construct); code != engine.BuildNoError {
		return e.ioError(errors.PhaseBuild, int(code), "unable to build construct")
	}
	return nil
}

// Eval evaluates an expression and decodes the result.
func (e *Environment) Eval(expr string) (any, error) {
	if err := e.enter(errors.PhaseEval); err != nil {
		return nil, err
	}
	defer e.leave()

	v, code := e.native.Eval(e.env, expr)
	switch code {
	case engine.EvalNoError:
	case engine.EvalParsingError:
		return nil, e.ioError(errors.PhaseEval, int(code), "unable to parse expression")
	default:
		return nil, e.callError(errors.PhaseEval, int(code), "unable to evaluate expression")
	}
	return e.decoder.Decode(v)
}

// Call invokes a function by name with encoded arguments.
func (e *Environment) Call(name string, args ...any) (any, error) {
	if err := e.enter(errors.PhaseCall); err != nil {
		return nil, err
	}
	defer e.leave()

	vals, err := e.encoder.EncodeAll(args)
	if err != nil {
		return nil, err
	}
	v, code := e.native.FunctionCall(e.env, name, vals)
	switch code {
	case engine.CallNoError:
		return e.decoder.Decode(v)
	case engine.CallFunctionNotFoundError:
		return nil, e.callError(errors.PhaseCall, int(code), fmt.Sprintf("function %s not found", name))
	case engine.CallInvalidFunctionError:
		return nil, e.callError(errors.PhaseCall, int(code), fmt.Sprintf("function %s cannot be called directly", name))
	}
	return nil, e.callError(errors.PhaseCall, int(code), fmt.Sprintf("function %s failed", name))
}

// Reset retracts all facts and instances and reasserts the initial
// ones. Proxies held across a reset fail on use.
func (e *Environment) Reset() error {
	if err := e.enter(errors.PhaseRuntime); err != nil {
		return err
	}
	defer e.leave()

	e.native.Reset(e.env)
	return nil
}

// Clear removes every construct. Routers, user functions and the error
// state survive; other capsules passed to the engine so far are dropped.
func (e *Environment) Clear() error {
	if err := e.enter(errors.PhaseRuntime); err != nil {
		return err
	}
	defer e.leave()

	if !e.native.Clear(e.env) {
		msg, _ := e.diagnostic("unable to clear environment")
		return errors.New(errors.PhaseRuntime, errors.KindState).Detail("%s", msg).Build()
	}
	e.capsules.Clear(resource.KindCapsule)
	return nil
}

// Run fires up to limit activations, or all of them when limit is
// negative, and returns the number fired. An error raised by a rule
// action stops the run and is returned alongside the count.
func (e *Environment) Run(limit int64) (int64, error) {
	if err := e.enter(errors.PhaseRun); err != nil {
		return 0, err
	}
	defer e.leave()

	n := e.native.Run(e.env, limit)
	if e.native.GetEvaluationError(e.env) {
		return n, e.callError(errors.PhaseRun, 0, "rule execution failed")
	}
	e.logger.Debug("run complete", zap.Int64("fired", n))
	return n, nil
}

// Rules lists the defined rules.
func (e *Environment) Rules() []string {
	if e.enter(errors.PhaseRun) != nil {
		return nil
	}
	defer e.leave()
	return e.native.Rules(e.env)
}

// Activations lists the agenda, next to fire first.
func (e *Environment) Activations() []engine.Activation {
	if e.enter(errors.PhaseRun) != nil {
		return nil
	}
	defer e.leave()
	return e.native.Activations(e.env)
}

// Global returns the value of a defglobal, named without the ?* *
// markers.
func (e *Environment) Global(name string) (any, error) {
	if err := e.enter(errors.PhaseEval); err != nil {
		return nil, err
	}
	defer e.leave()

	v, ok := e.native.GetDefglobalValue(e.env, name)
	if !ok {
		return nil, errors.NotFound(errors.PhaseEval, "global", name)
	}
	return e.decoder.Decode(v)
}

// SetGlobal assigns a defglobal.
func (e *Environment) SetGlobal(name string, value any) error {
	if err := e.enter(errors.PhaseEval); err != nil {
		return err
	}
	defer e.leave()

	v, err := e.encoder.Encode(value)
	if err != nil {
		return err
	}
	if !e.native.SetDefglobalValue(e.env, name, v) {
		return errors.NotFound(errors.PhaseEval, "global", name)
	}
	return nil
}

// AddRouter registers r, replacing any router with the same name.
func (e *Environment) AddRouter(r router.Router) error {
	if err := e.enter(errors.PhaseRouter); err != nil {
		return err
	}
	defer e.leave()
	return e.routers.Add(r)
}

// DeleteRouter unregisters the named router.
func (e *Environment) DeleteRouter(name string) error {
	if err := e.enter(errors.PhaseRouter); err != nil {
		return err
	}
	defer e.leave()
	return e.routers.Delete(name)
}

// Routers lists the registered routers, highest priority first.
func (e *Environment) Routers() []router.Router {
	return e.routers.Routers()
}

// WriteRouter writes values to a logical name. Strings are written as
// they are; anything else is encoded and printed by the engine.
func (e *Environment) WriteRouter(name string, values ...any) error {
	if err := e.enter(errors.PhaseRouter); err != nil {
		return err
	}
	defer e.leave()

	for _, x := range values {
		if s, ok := x.(string); ok {
			e.routers.WriteString(name, s)
			continue
		}
		v, err := e.encoder.Encode(x)
		if err != nil {
			return err
		}
		e.routers.WriteValue(name, v)
	}
	return nil
}

// ReadRouter reads one character from a logical name, -1 at end of input.
func (e *Environment) ReadRouter(name string) int {
	if e.enter(errors.PhaseRouter) != nil {
		return -1
	}
	defer e.leave()
	return e.routers.Read(name)
}

// UnreadRouter pushes a character back onto a logical name.
func (e *Environment) UnreadRouter(name string, ch int) int {
	if e.enter(errors.PhaseRouter) != nil {
		return -1
	}
	defer e.leave()
	return e.routers.Unread(name, ch)
}

// Encode converts a Go value for this environment.
func (e *Environment) Encode(v any) (engine.Value, error) {
	return e.encoder.Encode(v)
}

// Decode converts an engine value from this environment.
func (e *Environment) Decode(v engine.Value) (any, error) {
	return e.decoder.Decode(v)
}
