package runtime

import (
	goruntime "runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/engine"
)

type releaseKind uint8

const (
	releaseFact releaseKind = iota
	releaseInstance
)

type pendingRelease struct {
	ptr  engine.Ptr
	kind releaseKind
}

// releaseQueue collects references dropped by finalizers. Finalizers run
// on the GC goroutine and never call the engine; the queue is drained
// by the next operation on the environment.
type releaseQueue struct {
	mu      sync.Mutex
	pending []pendingRelease
	closed  bool
}

func (q *releaseQueue) push(kind releaseKind, ptr engine.Ptr) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, pendingRelease{ptr: ptr, kind: kind})
}

func (q *releaseQueue) take() []pendingRelease {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

func (q *releaseQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.pending = nil
	q.mu.Unlock()
}

// Pending reports how many finalized proxies await release.
func (e *Environment) Pending() int {
	e.releases.mu.Lock()
	defer e.releases.mu.Unlock()
	return len(e.releases.pending)
}

func (e *Environment) drainReleases() {
	pending := e.releases.take()
	if len(pending) == 0 {
		return
	}
	for _, r := range pending {
		switch r.kind {
		case releaseFact:
			e.native.ReleaseFact(e.env, r.ptr)
		case releaseInstance:
			e.native.ReleaseInstance(e.env, r.ptr)
		}
	}
	e.logger.Debug("released finalized proxies", zap.Int("count", len(pending)))
}

// handle is the part shared by fact and instance proxies: one engine
// reference, given back exactly once.
type handle struct {
	env      *Environment
	ptr      engine.Ptr
	released atomic.Bool
}

// Key identifies the engine object behind a proxy. Proxies over the same
// object have equal keys.
type Key struct {
	env *Environment
	ptr engine.Ptr
}

func (h *handle) key() Key {
	return Key{env: h.env, ptr: h.ptr}
}

// Owner returns the environment the proxy belongs to.
func (h *handle) Owner() any {
	return h.env
}

// Environment returns the environment the proxy belongs to.
func (h *handle) Environment() *Environment {
	return h.env
}

// release gives the reference back. It is a no-op after the first call
// and after the environment was closed.
func (h *handle) release(kind releaseKind) {
	if !h.released.CompareAndSwap(false, true) || h.env.closed.Load() {
		return
	}
	switch kind {
	case releaseFact:
		h.env.native.ReleaseFact(h.env.env, h.ptr)
	case releaseInstance:
		h.env.native.ReleaseInstance(h.env.env, h.ptr)
	}
}

// finalize queues the reference for release on the next engine call.
func (h *handle) finalize(kind releaseKind) {
	if h.released.CompareAndSwap(false, true) {
		h.env.releases.push(kind, h.ptr)
	}
}

// proxyFactory builds proxies for addresses the decoder meets.
type proxyFactory struct {
	env *Environment
}

func (p proxyFactory) NewFact(ptr engine.Ptr) any {
	return p.env.newFact(ptr)
}

func (p proxyFactory) NewInstance(ptr engine.Ptr) any {
	return p.env.newInstance(ptr)
}

func (e *Environment) newFact(ptr engine.Ptr) *Fact {
	e.native.RetainFact(e.env, ptr)
	f := &Fact{handle: handle{env: e, ptr: ptr}}
	goruntime.SetFinalizer(f, func(f *Fact) { f.finalize(releaseFact) })
	return f
}

func (e *Environment) newInstance(ptr engine.Ptr) *Instance {
	e.native.RetainInstance(e.env, ptr)
	ins := &Instance{handle: handle{env: e, ptr: ptr}}
	goruntime.SetFinalizer(ins, func(ins *Instance) { ins.finalize(releaseInstance) })
	return ins
}
