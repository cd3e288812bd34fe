package router

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/errors"
)

// State is the lifecycle position of a router registration.
type State int

const (
	StateUnregistered State = iota
	StateActive
	StateInactive
	StateDeleted
)

func (s State) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	case StateDeleted:
		return "deleted"
	}
	return "unknown"
}

// Router is an I/O endpoint the engine dispatches to. Implementations
// embed *Base, which supplies defaults for every callback and tracks
// the registration.
type Router interface {
	Name() string
	Priority() int

	// Query reports whether the router handles the logical name.
	Query(name string) bool
	Write(name, text string)
	// Read returns the next character or -1 at end of input.
	Read(name string) int
	Unread(name string, ch int) int
	Exit(code int)

	base() *Base
}

// Base carries the name, priority and activation state of a router.
type Base struct {
	name     string
	priority int

	mu    sync.Mutex
	state State
	reg   *Registry
}

// NewBase creates a router base. An empty name gets a generated one.
func NewBase(name string, priority int) *Base {
	if name == "" {
		name = "go-router-" + uuid.NewString()
	}
	return &Base{name: name, priority: priority}
}

func (b *Base) base() *Base { return b }

func (b *Base) Name() string  { return b.name }
func (b *Base) Priority() int { return b.priority }

func (b *Base) Query(string) bool      { return false }
func (b *Base) Write(string, string)   {}
func (b *Base) Read(string) int        { return -1 }
func (b *Base) Unread(string, int) int { return -1 }
func (b *Base) Exit(int)               {}

// State returns the current registration state.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Base) registry() *Registry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reg
}

func (b *Base) logger() *zap.Logger {
	if reg := b.registry(); reg != nil {
		return reg.logger
	}
	return Logger()
}

func (b *Base) attach(r *Registry) {
	b.mu.Lock()
	b.reg = r
	b.state = StateActive
	b.mu.Unlock()
}

func (b *Base) detach() {
	b.mu.Lock()
	b.reg = nil
	b.state = StateDeleted
	b.mu.Unlock()
}

func (b *Base) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// Activate resumes dispatch to the router.
func (b *Base) Activate() error {
	reg := b.registry()
	if reg == nil || !reg.native.ActivateRouter(reg.env, b.name) {
		return errors.RouterError("activate", b.name)
	}
	b.setState(StateActive)
	return nil
}

// Deactivate stops dispatch to the router without unregistering it.
func (b *Base) Deactivate() error {
	reg := b.registry()
	if reg == nil || !reg.native.DeactivateRouter(reg.env, b.name) {
		return errors.RouterError("deactivate", b.name)
	}
	b.setState(StateInactive)
	return nil
}

// Delete unregisters the router from its environment.
func (b *Base) Delete() error {
	reg := b.registry()
	if reg == nil {
		return errors.RouterError("delete", b.name)
	}
	return reg.Delete(b.name)
}

// Suspend runs fn with the router deactivated, so that output fn writes
// is claimed by the next router in line. The router is reactivated even
// if fn panics. A router that is not active runs fn unchanged.
func (b *Base) Suspend(fn func()) error {
	if b.State() != StateActive {
		fn()
		return nil
	}
	if err := b.Deactivate(); err != nil {
		return err
	}
	defer func() {
		if err := b.Activate(); err != nil {
			b.logger().Warn("router reactivation failed", zap.String("router", b.name), zap.Error(err))
		}
	}()
	fn()
	return nil
}

// Share forwards text to the routers below this one.
func (b *Base) Share(name, text string) {
	reg := b.registry()
	if reg == nil {
		return
	}
	_ = b.Suspend(func() {
		reg.native.WriteString(reg.env, name, text)
	})
}
