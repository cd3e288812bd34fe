package router

import (
	"strings"
	"sync"

	"github.com/wippyai/clips-runtime/engine"
)

const (
	ErrorRouterName     = "go-error-router"
	ErrorRouterPriority = 40
)

// ErrorRouter captures engine diagnostics written to stderr and passes
// them on to the routers below it.
type ErrorRouter struct {
	*Base

	mu   sync.Mutex
	last strings.Builder
}

// NewErrorRouter creates an error router. A priority of zero uses
// ErrorRouterPriority.
func NewErrorRouter(priority int) *ErrorRouter {
	if priority == 0 {
		priority = ErrorRouterPriority
	}
	return &ErrorRouter{Base: NewBase(ErrorRouterName, priority)}
}

func (r *ErrorRouter) Query(name string) bool {
	return name == engine.STDERR
}

func (r *ErrorRouter) Write(name, text string) {
	r.mu.Lock()
	r.last.WriteString(text)
	r.mu.Unlock()
	r.Share(name, text)
}

// LastMessage returns the text captured since the previous call and
// clears it.
func (r *ErrorRouter) LastMessage() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg := r.last.String()
	r.last.Reset()
	return msg
}
