package router

import (
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
)

// Registry holds the routers of one engine environment. Priorities are
// handed to the engine unchanged; dispatch order is the engine's.
type Registry struct {
	native engine.Native
	env    engine.Env
	logger *zap.Logger

	mu      sync.Mutex
	routers map[string]Router
	closed  bool
}

// NewRegistry creates the registry for env. A nil logger uses the
// package logger.
func NewRegistry(native engine.Native, env engine.Env, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = Logger()
	}
	return &Registry{
		native:  native,
		env:     env,
		logger:  logger,
		routers: make(map[string]Router),
	}
}

// Add registers rt with the engine and activates it. A router already
// registered under the same name is deleted first.
func (r *Registry) Add(rt Router) error {
	b := rt.base()
	if b == nil {
		return errors.InvalidInput(errors.PhaseRouter, "router does not embed *router.Base")
	}
	name := rt.Name()

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return errors.Closed(errors.PhaseRouter)
	}
	_, exists := r.routers[name]
	r.mu.Unlock()

	if reg := b.registry(); reg != nil && reg != r {
		return errors.New(errors.PhaseRouter, errors.KindRouter).
			Detail("router %q is registered with another environment", name).Build()
	}
	if exists {
		if err := r.Delete(name); err != nil {
			return err
		}
	}

	if !r.native.AddRouter(r.env, name, rt.Priority(), &bridge{reg: r, router: rt}) {
		return errors.RouterError("add", name)
	}
	r.mu.Lock()
	r.routers[name] = rt
	r.mu.Unlock()
	b.attach(r)

	r.logger.Debug("router added", zap.String("router", name), zap.Int("priority", rt.Priority()))
	return nil
}

// Delete unregisters the named router.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	rt, ok := r.routers[name]
	if ok {
		delete(r.routers, name)
	}
	r.mu.Unlock()
	if !ok {
		return errors.RouterError("delete", name)
	}

	rt.base().detach()
	if !r.native.DeleteRouter(r.env, name) {
		return errors.RouterError("delete", name)
	}
	r.logger.Debug("router deleted", zap.String("router", name))
	return nil
}

// Get returns the router registered under name.
func (r *Registry) Get(name string) (Router, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rt, ok := r.routers[name]
	return rt, ok
}

// Routers returns the registered routers, highest priority first.
func (r *Registry) Routers() []Router {
	r.mu.Lock()
	out := make([]Router, 0, len(r.routers))
	for _, rt := range r.routers {
		out = append(out, rt)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority() != out[j].Priority() {
			return out[i].Priority() > out[j].Priority()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

// WriteString sends text to the logical name.
func (r *Registry) WriteString(name, text string) {
	r.native.WriteString(r.env, name, text)
}

// WriteValue sends the printed form of v to the logical name.
func (r *Registry) WriteValue(name string, v engine.Value) {
	r.native.WriteValue(r.env, name, v)
}

// Read returns the next character from the logical name, or -1.
func (r *Registry) Read(name string) int {
	return r.native.ReadRouter(r.env, name)
}

// Unread pushes ch back onto the logical name.
func (r *Registry) Unread(name string, ch int) int {
	return r.native.UnreadRouter(r.env, name, ch)
}

// Close deletes every router. Later Adds fail.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	names := make([]string, 0, len(r.routers))
	for name := range r.routers {
		names = append(names, name)
	}
	r.mu.Unlock()

	var first error
	for _, name := range names {
		if err := r.Delete(name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// callbackError reports a panic raised by a router callback. The report
// is written to stderr with the failing router suspended so it cannot
// claim its own diagnostic.
func (r *Registry) callbackError(rt Router, p any) {
	r.logger.Error("router callback panicked",
		zap.String("router", rt.Name()),
		zap.Any("panic", p),
	)
	msg := fmt.Sprintf("[ROUTER2] Router callback error: %v\n%s", p, debug.Stack())
	if err := rt.base().Suspend(func() {
		r.native.WriteString(r.env, engine.STDERR, msg)
	}); err != nil {
		r.logger.Warn("router diagnostic dropped", zap.String("router", rt.Name()), zap.Error(err))
	}
}

// bridge adapts a Router to the engine callback interface. Panics stop
// here; the engine gets a neutral result.
type bridge struct {
	reg    *Registry
	router Router
}

func (b *bridge) guard() {
	if p := recover(); p != nil {
		b.reg.callbackError(b.router, p)
	}
}

func (b *bridge) Query(_ engine.Env, name string) (ok bool) {
	defer b.guard()
	return b.router.Query(name)
}

func (b *bridge) Write(_ engine.Env, name, text string) {
	defer b.guard()
	b.router.Write(name, text)
}

func (b *bridge) Read(_ engine.Env, name string) (ch int) {
	ch = -1
	defer b.guard()
	return b.router.Read(name)
}

func (b *bridge) Unread(_ engine.Env, name string, ch int) (out int) {
	out = -1
	defer b.guard()
	return b.router.Unread(name, ch)
}

func (b *bridge) Exit(_ engine.Env, code int) {
	defer b.guard()
	b.router.Exit(code)
}
