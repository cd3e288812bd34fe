package sim

import (
	"io"
	"os"
	"sync"

	"github.com/wippyai/clips-runtime/engine"
)

type options struct {
	stdout io.Writer
	stderr io.Writer
	stdin  io.Reader
}

// Option configures an Engine.
type Option func(*options)

// WithStdout sets where the built-in terminal router writes stdout and stdwrn.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithStderr sets where the built-in terminal router writes stderr.
func WithStderr(w io.Writer) Option {
	return func(o *options) { o.stderr = w }
}

// WithStdin sets what the built-in terminal router reads for stdin.
func WithStdin(r io.Reader) Option {
	return func(o *options) { o.stdin = r }
}

// Engine is an in-process CLIPS engine implementing engine.Native.
// The engine only guards its environment table; each environment must
// be driven by one goroutine at a time.
type Engine struct {
	envs    map[engine.Env]*environment
	opts    options
	nextEnv engine.Env
	nextPtr engine.Ptr
	mu      sync.Mutex
}

var _ engine.Native = (*Engine)(nil)

// New creates an engine. Terminal output defaults to the process stdio.
func New(opts ...Option) *Engine {
	o := options{stdout: os.Stdout, stderr: os.Stderr, stdin: os.Stdin}
	for _, opt := range opts {
		opt(&o)
	}
	return &Engine{
		envs: make(map[engine.Env]*environment),
		opts: o,
	}
}

func (e *Engine) env(id engine.Env) *environment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.envs[id]
}

// CreateEnvironment allocates a new environment.
func (e *Engine) CreateEnvironment() engine.Env {
	e.mu.Lock()
	e.nextEnv++
	id := e.nextEnv
	e.mu.Unlock()

	env := newEnvironment(e, id)

	e.mu.Lock()
	e.envs[id] = env
	e.mu.Unlock()

	engine.Logger().Debug("sim: environment created")
	return id
}

// DestroyEnvironment releases an environment. Further calls with the
// handle are ignored.
func (e *Engine) DestroyEnvironment(id engine.Env) bool {
	e.mu.Lock()
	env, ok := e.envs[id]
	delete(e.envs, id)
	e.mu.Unlock()
	if !ok {
		return false
	}
	env.objects = nil
	env.routers = nil
	engine.Logger().Debug("sim: environment destroyed")
	return true
}

// EnvironmentCount reports live environments.
func (e *Engine) EnvironmentCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.envs)
}

// FactRefCount reports the external reference count of a fact, or -1
// when the pointer no longer refers to anything.
func (e *Engine) FactRefCount(id engine.Env, p engine.Ptr) int {
	env := e.env(id)
	if env == nil {
		return -1
	}
	if f := env.factAt(p); f != nil {
		return f.refs
	}
	return -1
}

// InstanceRefCount reports the external reference count of an instance,
// or -1 when the pointer no longer refers to anything.
func (e *Engine) InstanceRefCount(id engine.Env, p engine.Ptr) int {
	env := e.env(id)
	if env == nil {
		return -1
	}
	if ins := env.instanceAt(p); ins != nil {
		return ins.refs
	}
	return -1
}

// Recycled reports whether the engine has reclaimed the object behind p.
func (e *Engine) Recycled(id engine.Env, p engine.Ptr) bool {
	env := e.env(id)
	if env == nil {
		return true
	}
	_, ok := env.objects[p]
	return !ok
}
