//go:build clips && cgo

package cgoclips_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/engine/cgoclips"
	"github.com/wippyai/clips-runtime/runtime"
	"github.com/wippyai/clips-runtime/transcoder"
)

func newEnvironment(t *testing.T, out *bytes.Buffer) *runtime.Environment {
	t.Helper()
	native, err := cgoclips.New()
	require.NoError(t, err)
	env, err := runtime.New(native, runtime.WithStdout(out), runtime.WithStderr(out))
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestNativeEvalValues(t *testing.T) {
	native, err := cgoclips.New()
	require.NoError(t, err)
	env := native.CreateEnvironment()
	require.NotZero(t, env)
	defer native.DestroyEnvironment(env)

	v, code := native.Eval(env, `(create$ 1 2.5 "s" sym [ins])`)
	require.Equal(t, engine.EvalNoError, code)
	assert.True(t, v.Equal(engine.Multifield(
		engine.Integer(1), engine.Float(2.5), engine.String("s"),
		engine.Symbol("sym"), engine.InstanceName("ins"))))

	_, code = native.Eval(env, "(+ 1")
	assert.Equal(t, engine.EvalParsingError, code)
}

func TestNativeFacts(t *testing.T) {
	native, err := cgoclips.New()
	require.NoError(t, err)
	env := native.CreateEnvironment()
	defer native.DestroyEnvironment(env)

	require.Equal(t, engine.BuildNoError, native.Build(env, "(deftemplate p (slot x) (multislot ys))"))
	fb := native.CreateFactBuilder(env, "p")
	require.NotZero(t, fb)
	assert.Equal(t, engine.PutSlotNoError, native.FBPutSlot(env, fb, "x", engine.Integer(7)))
	assert.Equal(t, engine.PutSlotNoError, native.FBPutSlot(env, fb, "ys", engine.Multifield(engine.Symbol("a"))))
	fact := native.FBAssert(env, fb)
	native.FBDispose(env, fb)
	require.NotZero(t, fact)

	assert.Equal(t, "p", native.FactTemplate(env, fact))
	assert.False(t, native.FactImplied(env, fact))
	assert.Equal(t, []string{"x", "ys"}, native.FactSlotNames(env, fact))
	x, code := native.GetFactSlot(env, fact, "x")
	require.Equal(t, engine.GetSlotNoError, code)
	assert.Equal(t, engine.Integer(7), x)
	assert.Equal(t, "(p (x 7) (ys a))", native.FactPPForm(env, fact))

	ordered := native.AssertString(env, "(q 1 2)")
	require.NotZero(t, ordered)
	assert.True(t, native.FactImplied(env, ordered))
	all, code := native.GetFactSlot(env, ordered, "")
	require.Equal(t, engine.GetSlotNoError, code)
	assert.Equal(t, 2, all.Len())

	assert.Len(t, native.Facts(env), 2)
	assert.Equal(t, engine.RetractNoError, native.Retract(env, ordered))
}

func TestEnvironmentOnLibclips(t *testing.T) {
	var out bytes.Buffer
	env := newEnvironment(t, &out)

	require.NoError(t, env.DefineFunction(func(a, b int) int { return a * b }, "go-mul"))
	require.NoError(t, env.Build(`(defrule hello (go) => (printout t (go-mul 6 7) crlf))`))
	_, err := env.Eval("(assert (go))")
	require.NoError(t, err)

	n, err := env.Run(-1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "42\n", out.String())

	v, err := env.Eval("(sym-cat a b)")
	require.NoError(t, err)
	assert.Equal(t, transcoder.Symbol("ab"), v)

	_, err = env.Eval("(no-such-function)")
	assert.Error(t, err)
}

func TestNativeAgendaControl(t *testing.T) {
	native, err := cgoclips.New()
	require.NoError(t, err)
	env := native.CreateEnvironment()
	defer native.DestroyEnvironment(env)

	require.Equal(t, engine.BuildNoError, native.Build(env, "(defmodule A)"))
	require.Equal(t, engine.BuildNoError, native.Build(env, "(defrule r (go) => )"))
	assert.Equal(t, []string{"MAIN", "A"}, native.Modules(env))
	assert.Equal(t, "A", native.CurrentModule(env))
	require.True(t, native.SetCurrentModule(env, "MAIN"))
	require.True(t, native.Focus(env, "A"))
	assert.Equal(t, "A", native.GetFocus(env))
	native.ClearFocusStack(env)
	assert.Empty(t, native.GetFocus(env))

	assert.Equal(t, engine.DepthStrategy, native.SetStrategy(env, engine.BreadthStrategy))
	assert.Equal(t, engine.BreadthStrategy, native.GetStrategy(env))
	assert.Equal(t, engine.WhenDefined, native.SetSalienceEvaluation(env, engine.EveryCycle))

	assert.True(t, native.Undefine(env, engine.DefruleKind, "r"))
	assert.False(t, native.Undefine(env, engine.DefruleKind, "r"))
}

func TestNativeFactAndInstanceFiles(t *testing.T) {
	native, err := cgoclips.New()
	require.NoError(t, err)
	env := native.CreateEnvironment()
	defer native.DestroyEnvironment(env)

	require.Equal(t, engine.BuildNoError, native.Build(env, "(defclass point (is-a USER) (slot x))"))
	require.True(t, native.LoadFactsFromString(env, "(a 1) (b 2)"))
	assert.Len(t, native.Facts(env), 2)
	assert.Equal(t, int64(2), native.LoadInstancesFromString(env, "([p1] of point (x 1)) ([p2] of point)"))

	dir := t.TempDir()
	assert.Equal(t, int64(2), native.SaveFacts(env, filepath.Join(dir, "f.clp"), engine.LocalSave))
	assert.Equal(t, int64(2), native.BinarySaveInstances(env, filepath.Join(dir, "i.bin"), engine.LocalSave))
	native.Reset(env)
	assert.Equal(t, int64(2), native.BinaryLoadInstances(env, filepath.Join(dir, "i.bin")))

	slots, ok := native.ClassSlots(env, "point", true)
	require.True(t, ok)
	assert.Equal(t, []string{"x"}, slots)
	supers, _ := native.ClassSuperclasses(env, "point", false)
	assert.Equal(t, []string{"USER"}, supers)
	abstract, ok := native.ClassAbstract(env, "point")
	assert.True(t, ok)
	assert.False(t, abstract)
}
