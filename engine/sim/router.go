package sim

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/wippyai/clips-runtime/engine"
)

const terminalRouter = "stdio"

// terminal is the router every environment starts with. It sits below
// user routers and serves the standard channels from the engine options.
type terminal struct {
	env     *environment
	in      *bufio.Reader
	pending []int
}

func (t *terminal) Query(_ engine.Env, name string) bool {
	switch name {
	case engine.STDOUT, engine.STDERR, engine.STDWRN, engine.STDIN:
		return true
	}
	return false
}

func (t *terminal) Write(_ engine.Env, name, text string) {
	w := t.env.stdout
	if name == engine.STDERR {
		w = t.env.stderr
	}
	if w != nil {
		_, _ = io.WriteString(w, text)
	}
}

func (t *terminal) Read(engine.Env, string) int {
	if n := len(t.pending); n > 0 {
		c := t.pending[n-1]
		t.pending = t.pending[:n-1]
		return c
	}
	if t.env.stdin == nil {
		return -1
	}
	if t.in == nil {
		t.in = bufio.NewReader(t.env.stdin)
	}
	b, err := t.in.ReadByte()
	if err != nil {
		return -1
	}
	return int(b)
}

func (t *terminal) Unread(_ engine.Env, _ string, ch int) int {
	t.pending = append(t.pending, ch)
	return ch
}

func (t *terminal) Exit(engine.Env, int) {}

// sortedRouters returns a snapshot ordered by priority, most recently
// added first among equal priorities.
func (env *environment) sortedRouters() []*routerEntry {
	out := make([]*routerEntry, len(env.routers))
	copy(out, env.routers)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority
		}
		return out[i].seq > out[j].seq
	})
	return out
}

func (env *environment) findRouter(name string) (int, *routerEntry) {
	for i, r := range env.routers {
		if r.name == name {
			return i, r
		}
	}
	return -1, nil
}

func outputName(name string) string {
	if name == engine.T {
		return engine.STDOUT
	}
	return name
}

func inputName(name string) string {
	if name == engine.T {
		return engine.STDIN
	}
	return name
}

func (env *environment) claim(name string) *routerEntry {
	for _, r := range env.sortedRouters() {
		if r.active && r.handler.Query(env.id, name) {
			return r
		}
	}
	return nil
}

func (env *environment) writeString(name, text string) {
	name = outputName(name)
	if r := env.claim(name); r != nil {
		r.handler.Write(env.id, name, text)
		return
	}
	if name != engine.STDERR {
		env.writeString(engine.STDERR, fmt.Sprintf("[ROUTER1] Logical name %s was not recognized by any routers\n", name))
	}
}

func (env *environment) readChar(name string) int {
	name = inputName(name)
	if r := env.claim(name); r != nil {
		return r.handler.Read(env.id, name)
	}
	return -1
}

func (env *environment) unreadChar(name string, ch int) int {
	name = inputName(name)
	if r := env.claim(name); r != nil {
		return r.handler.Unread(env.id, name, ch)
	}
	return -1
}

func (env *environment) exitRouters(code int) {
	for _, r := range env.sortedRouters() {
		if r.active {
			r.handler.Exit(env.id, code)
		}
	}
}

// diagnostic writes an engine error message to stderr in the engine's
// "[ID] text" form.
func (env *environment) diagnostic(id, format string, args ...any) {
	env.writeString(engine.STDERR, "["+id+"] "+fmt.Sprintf(format, args...)+"\n")
}

// fail reports a diagnostic and flags an evaluation error.
func (env *environment) fail(id, format string, args ...any) engine.Value {
	env.diagnostic(id, format, args...)
	env.evalError = true
	return engine.Symbol("FALSE")
}
