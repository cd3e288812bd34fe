package wasmclips

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
	"github.com/wippyai/clips-runtime/transcoder"
)

// section frames one module section.
func section(id byte, body ...byte) []byte {
	return append([]byte{id, byte(len(body))}, body...)
}

func name(s string) []byte {
	return append([]byte{byte(len(s))}, s...)
}

func funcBody(code ...byte) []byte {
	return append([]byte{byte(len(code))}, code...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// echoGuest is a guest whose clips_dispatch returns its argument buffer,
// with a bump allocator and a no-op free over one page of memory.
func echoGuest() []byte {
	types := concat(
		[]byte{0x03},
		[]byte{0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f},             // (i32 i32) -> i32
		[]byte{0x60, 0x03, 0x7f, 0x7f, 0x7f, 0x00},             // (i32 i32 i32) -> ()
		[]byte{0x60, 0x04, 0x7f, 0x7e, 0x7f, 0x7f, 0x01, 0x7e}, // (i32 i64 i32 i32) -> i64
	)
	exports := concat(
		[]byte{0x04},
		name("memory"), []byte{0x02, 0x00},
		name(exportAlloc), []byte{0x00, 0x00},
		name(exportFree), []byte{0x00, 0x01},
		name(exportDispatch), []byte{0x00, 0x02},
	)
	code := concat(
		[]byte{0x03},
		// global.get 0; global.get 0; local.get 0; i32.add; global.set 0
		funcBody(0x00, 0x23, 0x00, 0x23, 0x00, 0x20, 0x00, 0x6a, 0x24, 0x00, 0x0b),
		funcBody(0x00, 0x0b),
		// (i64(local 2) << 32) | i64(local 3)
		funcBody(0x00, 0x20, 0x02, 0xad, 0x42, 0x20, 0x86, 0x20, 0x03, 0xad, 0x84, 0x0b),
	)
	return concat(
		[]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00},
		section(0x01, types...),
		section(0x03, 0x03, 0x00, 0x01, 0x02),
		section(0x05, 0x01, 0x00, 0x01),
		section(0x06, 0x01, 0x7f, 0x01, 0x41, 0x80, 0x08, 0x0b),
		section(0x07, exports...),
		section(0x0a, code...),
	)
}

func newEcho(t *testing.T, opts ...Option) *Native {
	t.Helper()
	ctx := context.Background()
	n, err := New(ctx, echoGuest(), append([]Option{WithLogger(zap.NewNop())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close(ctx) })
	return n
}

// stage writes a callback argument list and returns the import stack.
func stage(t *testing.T, n *Native, env engine.Env, vals ...engine.Value) []uint64 {
	t.Helper()
	in, err := transcoder.StoreValues(n.mem, n.alloc, vals)
	require.NoError(t, err)
	return []uint64{uint64(env), uint64(in.Ptr), uint64(in.Size)}
}

func result(t *testing.T, n *Native, packed uint64) []engine.Value {
	t.Helper()
	require.NotZero(t, packed)
	vals, err := transcoder.LoadValues(n.mem, uint32(packed>>32), uint32(packed))
	require.NoError(t, err)
	return vals
}

func TestNewRejectsModuleWithoutExports(t *testing.T) {
	module := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	_, err := New(context.Background(), module, WithLogger(zap.NewNop()))
	require.Error(t, err)
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindNotFound, e.Kind)
}

func TestNewRejectsGarbage(t *testing.T) {
	_, err := New(context.Background(), []byte("not wasm"), WithLogger(zap.NewNop()))
	assert.Error(t, err)
}

func TestDispatchRoundTrip(t *testing.T) {
	n := newEcho(t, WithMemoryLimitPages(4))
	args := []engine.Value{
		engine.String("(deftemplate p (slot x))"),
		engine.Integer(-7),
		engine.Float(2.5),
		engine.Multifield(engine.Symbol("a"), engine.InstanceName("i")),
		engine.ExternalAddress(0xdeadbeef),
	}

	got := n.call(opBuild, 1, args...)
	require.Len(t, got, len(args))
	for i := range args {
		assert.True(t, args[i].Equal(got[i]), "arg %d: %s != %s", i, args[i], got[i])
	}
	assert.NoError(t, n.Err())
}

func TestMethodsDecodeResults(t *testing.T) {
	n := newEcho(t)

	// The echo guest answers with the request, so each method sees its own
	// arguments as the result list.
	v, code := n.Eval(1, "(+ 1 2)")
	assert.Equal(t, engine.String("(+ 1 2)"), v)
	assert.Equal(t, engine.EvalNoError, code)

	assert.Equal(t, engine.Ptr(0x10), n.FBAssert(1, 0x10))
	assert.Equal(t, engine.RetractNoError, n.Retract(1, 0x10))
	assert.Empty(t, n.Facts(1))
	assert.Empty(t, n.Activations(1))

	names, ok := n.TemplateSlotNames(1, "p")
	assert.False(t, ok)
	assert.Nil(t, names)
	_, ok = n.GetDefglobalValue(1, "*x*")
	assert.False(t, ok)
}

func TestHostUDF(t *testing.T) {
	n := newEcho(t)
	var gotEnv engine.Env
	id := n.registerUDF(func(env engine.Env, args []engine.Value) engine.Value {
		gotEnv = env
		sum := int64(0)
		for _, a := range args {
			i, _ := a.Integer()
			sum += i
		}
		return engine.Integer(sum)
	})

	stack := stage(t, n, 42, engine.Integer(id), engine.Integer(2), engine.Integer(3))
	n.hostUDF(context.Background(), n.mod, stack)

	assert.Equal(t, engine.Env(42), gotEnv)
	assert.Equal(t, []engine.Value{engine.Integer(5)}, result(t, n, stack[0]))
	assert.Zero(t, n.depth)
}

func TestHostUDFFailures(t *testing.T) {
	n := newEcho(t)
	id := n.registerUDF(func(engine.Env, []engine.Value) engine.Value { panic("boom") })

	stack := stage(t, n, 1, engine.Integer(id))
	n.hostUDF(context.Background(), n.mod, stack)
	assert.Zero(t, stack[0], "panics are reported as a failed call")

	stack = stage(t, n, 1, engine.Integer(99))
	n.hostUDF(context.Background(), n.mod, stack)
	assert.Zero(t, stack[0], "unknown ids fail")
}

func TestHostUDFCallsBack(t *testing.T) {
	n := newEcho(t)
	id := n.registerUDF(func(env engine.Env, args []engine.Value) engine.Value {
		v, _ := n.Eval(env, "(nested)")
		return v
	})

	stack := stage(t, n, 1, engine.Integer(id))
	n.hostUDF(context.Background(), n.mod, stack)
	assert.Equal(t, []engine.Value{engine.String("(nested)")}, result(t, n, stack[0]))
}

type recordingRouter struct {
	writes  []string
	pending []int
	exit    int
}

func (r *recordingRouter) Query(_ engine.Env, name string) bool { return name == engine.STDOUT }
func (r *recordingRouter) Write(_ engine.Env, _, text string)   { r.writes = append(r.writes, text) }
func (r *recordingRouter) Read(engine.Env, string) int          { return 'x' }
func (r *recordingRouter) Unread(_ engine.Env, _ string, ch int) int {
	r.pending = append(r.pending, ch)
	return ch
}
func (r *recordingRouter) Exit(_ engine.Env, code int) { r.exit = code }

func TestHostRouter(t *testing.T) {
	n := newEcho(t)
	r := &recordingRouter{}
	n.routers[routerKey{1, "capture"}] = r

	send := func(vals ...engine.Value) []engine.Value {
		t.Helper()
		stack := stage(t, n, 1, vals...)
		n.hostRouter(context.Background(), n.mod, stack)
		return result(t, n, stack[0])
	}
	sym, str := engine.Symbol, engine.String

	assert.Equal(t, []engine.Value{engine.Integer(1)}, send(sym(routerQuery), str("capture"), str("stdout")))
	assert.Equal(t, []engine.Value{engine.Integer(0)}, send(sym(routerQuery), str("capture"), str("stderr")))
	send(sym(routerWrite), str("capture"), str("stdout"), str("hello"))
	assert.Equal(t, []string{"hello"}, r.writes)
	assert.Equal(t, []engine.Value{engine.Integer('x')}, send(sym(routerRead), str("capture"), str("stdin")))
	send(sym(routerUnread), str("capture"), str("stdin"), engine.Integer('y'))
	assert.Equal(t, []int{'y'}, r.pending)
	send(sym(routerExit), str("capture"), str(""), engine.Integer(3))
	assert.Equal(t, 3, r.exit)

	stack := stage(t, n, 1, sym(routerQuery), str("missing"), str("stdout"))
	n.hostRouter(context.Background(), n.mod, stack)
	assert.Zero(t, stack[0])
}

func TestRouterBookkeeping(t *testing.T) {
	n := newEcho(t)
	r := &recordingRouter{}

	// The echo guest answers with the router name, which is not a
	// success flag.
	assert.False(t, n.AddRouter(1, "capture", 10, r))
	assert.Empty(t, n.routers)
}

func TestGuestPath(t *testing.T) {
	dir := t.TempDir()
	n := newEcho(t, WithDir(dir))

	assert.Equal(t, "/rules/a.clp", n.guestPath(filepath.Join(dir, "rules", "a.clp")))
	assert.Equal(t, "rules/a.clp", n.guestPath(filepath.Join("rules", "a.clp")))
	outside := filepath.Join(filepath.Dir(dir), "other.clp")
	assert.Equal(t, filepath.ToSlash(outside), n.guestPath(outside))
}

func TestOpcodeNames(t *testing.T) {
	assert.Equal(t, "create-environment", opCreateEnvironment.String())
	assert.Equal(t, "fb-put-slot", opFBPutSlot.String())
	assert.Equal(t, "set-defglobal-value", opSetDefglobalValue.String())
	assert.Equal(t, "load-facts", opLoadFacts.String())
	assert.Equal(t, opSetDefglobalValue+1, opLoadFacts)
	assert.Equal(t, "clear-focus-stack", opClearFocusStack.String())
	assert.Equal(t, "op(999)", opcode(999).String())
}
