package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/clips-runtime/engine/sim"
	"github.com/wippyai/clips-runtime/errors"
	"github.com/wippyai/clips-runtime/router"
	"github.com/wippyai/clips-runtime/transcoder"
)

func TestNewRequiresEngine(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindNotInitialized, e.Kind)
}

func TestTemplateFactSlot(t *testing.T) {
	f := newFixture(t)
	f.build(t, "(deftemplate T (slot n))")
	_, err := f.env.AssertString("(T (n 5))")
	require.NoError(t, err)

	fact, err := f.env.FindFact(1)
	require.NoError(t, err)
	n, err := fact.Slot("n")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	assert.Equal(t, "T", fact.Template())
	assert.False(t, fact.Implied())

	got, ok := f.eval(t, "(nth$ 1 (get-fact-list))").(*Fact)
	require.True(t, ok)
	assert.True(t, got.Equal(fact))
	assert.Equal(t, got.Key(), fact.Key())

	_, err = f.env.FindFact(42)
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindNotFound, e.Kind)
}

func TestEvalDecodesValues(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		expr string
		want any
	}{
		{"(+ 1 2)", int64(3)},
		{"(+ 1 2.5)", 3.5},
		{`(str-cat "a" b)`, "ab"},
		{"(sym-cat x y)", transcoder.Symbol("xy")},
		{"(< 1 2)", transcoder.True},
		{"(create$ 1 a \"b\")", []any{int64(1), transcoder.Symbol("a"), "b"}},
		{"(create$)", []any{}},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, f.eval(t, tt.expr)); diff != "" {
				t.Errorf("Eval(%s) mismatch (-want +got):\n%s", tt.expr, diff)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	f := newFixture(t)

	_, err := f.env.Eval("(frobnicate)")
	require.ErrorIs(t, err, errors.ErrIO)
	assert.Contains(t, err.Error(), "[EXPRNPSR3]")
	assert.NotContains(t, err.Error(), "\n")

	_, err = f.env.Eval("(+ a 1)")
	require.ErrorIs(t, err, errors.ErrCall)
	assert.Contains(t, err.Error(), "[ARGACCES2]")
	assert.Equal(t, 1, strings.Count(err.Error(), "[ARGACCES2]"))

	// The diagnostic still reaches the host's stderr.
	assert.Contains(t, f.stderr.String(), "[ARGACCES2]")

	// A later success does not carry the stale diagnostic.
	assert.Equal(t, int64(2), f.eval(t, "(+ 1 1)"))
	_, err = f.env.Eval("(frobnicate)")
	assert.NotContains(t, err.Error(), "[ARGACCES2]")
}

func TestBuildErrors(t *testing.T) {
	f := newFixture(t)

	err := f.env.Build("(defrule r (go) => (bogus))")
	require.ErrorIs(t, err, errors.ErrIO)
	assert.Contains(t, err.Error(), "bogus")
	assert.Empty(t, f.env.Rules())

	err = f.env.Build("(deftemplate")
	require.ErrorIs(t, err, errors.ErrIO)
}

func TestCall(t *testing.T) {
	f := newFixture(t)
	f.build(t, "(deffunction twice (?x) (* 2 ?x))")

	v, err := f.env.Call("+", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = f.env.Call("twice", 21)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = f.env.Call("str-cat", "a", transcoder.Symbol("b"), 1.5)
	require.NoError(t, err)
	assert.Equal(t, "ab1.5", v)

	_, err = f.env.Call("no-such-function")
	assert.ErrorIs(t, err, errors.ErrCall)
}

func TestRunRules(t *testing.T) {
	f := newFixture(t)
	f.build(t,
		"(deftemplate point (slot x) (slot y (default 0)))",
		`(defrule show (point (x ?x) (y ?y)) => (printout t "point " ?x " " ?y crlf))`,
	)
	assert.Equal(t, []string{"show"}, f.env.Rules())
	assert.Equal(t, []string{"point"}, f.env.Templates())

	slots, err := f.env.TemplateSlots("point")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, slots)
	_, err = f.env.TemplateSlots("nope")
	assert.Error(t, err)

	p, err := f.env.AssertFact("point", map[string]any{"x": 3})
	require.NoError(t, err)
	require.Len(t, f.env.Activations(), 1)
	assert.Equal(t, "show", f.env.Activations()[0].Rule)

	n, err := f.env.Run(-1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "point 3 0\n", f.stdout.String())

	all, err := p.Slots()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"x": int64(3), "y": int64(0)}, all)
}

func TestRunLimit(t *testing.T) {
	f := newFixture(t)
	f.build(t, "(defrule count (item ?x) => (printout t ?x crlf))")
	for _, s := range []string{"(item 1)", "(item 2)", "(item 3)"} {
		_, err := f.env.AssertString(s)
		require.NoError(t, err)
	}

	n, err := f.env.Run(2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	n, err = f.env.Run(-1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRunActionError(t *testing.T) {
	f := newFixture(t)
	f.build(t, "(defrule bad (go) => (+ a 1))")
	_, err := f.env.AssertString("(go)")
	require.NoError(t, err)

	n, err := f.env.Run(-1)
	require.ErrorIs(t, err, errors.ErrCall)
	assert.Equal(t, int64(1), n)
	assert.Contains(t, err.Error(), "[PRCCODE4]")
}

func TestAssertFactErrors(t *testing.T) {
	f := newFixture(t)
	f.build(t, "(deftemplate point (slot x (type INTEGER)))")

	_, err := f.env.AssertFact("missing", nil)
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindNotFound, e.Kind)

	_, err = f.env.AssertFact("point", map[string]any{"z": 1})
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindNotFound, e.Kind)

	_, err = f.env.AssertFact("point", map[string]any{"x": "text"})
	assert.ErrorIs(t, err, errors.ErrValue)

	_, err = f.env.AssertString("(colors red green)")
	require.NoError(t, err)
	_, err = f.env.AssertFact("colors", nil)
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindInvalidInput, e.Kind)
}

func TestOrderedFact(t *testing.T) {
	f := newFixture(t)
	fact, err := f.env.AssertString(`(colors red "green" 3)`)
	require.NoError(t, err)

	assert.True(t, fact.Implied())
	assert.Equal(t, "colors", fact.Template())
	assert.Equal(t, int64(1), fact.Index())
	vals, err := fact.Values()
	require.NoError(t, err)
	if diff := cmp.Diff([]any{transcoder.Symbol("red"), "green", int64(3)}, vals); diff != "" {
		t.Errorf("Values mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, fact.String(), "colors")

	dup, err := f.env.AssertString(`(colors red "green" 3)`)
	require.NoError(t, err)
	assert.True(t, dup.Equal(fact))
	assert.Len(t, f.env.Facts(), 1)
}

func TestRetractAndReset(t *testing.T) {
	f := newFixture(t)
	f.build(t, "(deffacts start (ready))")
	require.NoError(t, f.env.Reset())
	facts := f.env.Facts()
	require.Len(t, facts, 1)

	extra, err := f.env.AssertString("(extra)")
	require.NoError(t, err)
	require.NoError(t, extra.Retract())
	assert.False(t, extra.Exists())
	assert.ErrorIs(t, extra.Retract(), errors.ErrState)

	require.NoError(t, f.env.Reset())
	assert.False(t, facts[0].Exists(), "proxies do not survive a reset")
	_, err = facts[0].Slot("")
	assert.ErrorIs(t, err, errors.ErrState)
	assert.Empty(t, facts[0].Template())
	assert.False(t, facts[0].Implied())
	assert.Equal(t, fmt.Sprintf("<Fact-%#x>", uint64(facts[0].ptr)), facts[0].String())
	assert.Len(t, f.env.Facts(), 1)
}

func TestLoadSave(t *testing.T) {
	f := newFixture(t)
	f.build(t,
		"(deftemplate point (slot x))",
		`(defrule show (point (x ?x)) => (printout t "x=" ?x crlf))`,
	)
	dir := t.TempDir()
	text := filepath.Join(dir, "rules.clp")
	bin := filepath.Join(dir, "rules.bin")
	require.NoError(t, f.env.Save(text, false))
	require.NoError(t, f.env.Save(bin, true))

	require.NoError(t, f.env.Clear())
	assert.Empty(t, f.env.Rules())
	require.NoError(t, f.env.Load(text, false))
	assert.Equal(t, []string{"show"}, f.env.Rules())

	require.NoError(t, f.env.Clear())
	require.NoError(t, f.env.Load(bin, true))
	assert.Equal(t, []string{"show"}, f.env.Rules())
	_, err := f.env.AssertString("(point (x 7))")
	require.NoError(t, err)
	_, err = f.env.Run(-1)
	require.NoError(t, err)
	assert.Equal(t, "x=7\n", f.stdout.String())

	err = f.env.Load(bin, false)
	assert.ErrorIs(t, err, errors.ErrIO)
	err = f.env.Load(text, true)
	require.ErrorIs(t, err, errors.ErrIO)
	assert.Contains(t, err.Error(), "[BLOAD2]")
	err = f.env.Load(filepath.Join(dir, "missing.clp"), false)
	assert.ErrorIs(t, err, errors.ErrIO)
}

func TestGlobals(t *testing.T) {
	f := newFixture(t)
	f.build(t, "(defglobal ?*count* = 0)")

	v, err := f.env.Global("count")
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	require.NoError(t, f.env.SetGlobal("count", 5))
	v, err = f.env.Global("count")
	require.NoError(t, err)
	assert.Equal(t, int64(5), v)
	assert.Equal(t, int64(6), f.eval(t, "(+ ?*count* 1)"))

	_, err = f.env.Global("missing")
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindNotFound, e.Kind)
	assert.Error(t, f.env.SetGlobal("missing", 1))
}

func TestInstances(t *testing.T) {
	f := newFixture(t)
	f.build(t, "(defclass point (is-a USER) (slot x) (slot y))")

	p, err := f.env.MakeInstance("([p1] of point (x 1) (y 2))")
	require.NoError(t, err)
	assert.Equal(t, "p1", p.Name())
	assert.Equal(t, "point", p.Class())

	found, err := f.env.FindInstance("[p1]")
	require.NoError(t, err)
	assert.True(t, found.Equal(p))
	assert.Len(t, f.env.Instances(), 1)

	x, err := p.Slot("x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), x)
	require.NoError(t, p.SetSlot("x", 10))
	v, err := p.Send("get-x", "")
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	_, err = p.Slot("z")
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindNotFound, e.Kind)

	require.NoError(t, p.Unmake())
	assert.False(t, p.Exists())
	_, err = p.Slot("x")
	assert.ErrorIs(t, err, errors.ErrState)
	_, err = f.env.FindInstance("p1")
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindNotFound, e.Kind)

	_, err = f.env.MakeInstance("(u of USER)")
	assert.ErrorIs(t, err, errors.ErrCall)
}

func TestWriteRouter(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.WriteRouter("stdout", "hello ", transcoder.Symbol("sym"), " ", 1, " ", "\n"))
	assert.Equal(t, "hello sym 1 \n", f.stdout.String())

	var custom strings.Builder
	require.NoError(t, f.env.AddRouter(router.NewWriterRouter("capture", 50, &custom, "log")))
	f.eval(t, `(printout log "to log" crlf)`)
	assert.Equal(t, "to log\n", custom.String())

	require.NoError(t, f.env.DeleteRouter("capture"))
	assert.ErrorIs(t, f.env.DeleteRouter("capture"), errors.ErrRouter)
	f.eval(t, `(printout log "lost")`)
	assert.Contains(t, f.stderr.String(), "[ROUTER1]")
}

func TestRouterPriority(t *testing.T) {
	f := newFixture(t)
	var high, low strings.Builder
	hr := router.NewWriterRouter("high", 60, &high, "out")
	require.NoError(t, f.env.AddRouter(hr))
	require.NoError(t, f.env.AddRouter(router.NewWriterRouter("low", 50, &low, "out")))

	f.eval(t, `(printout out "a")`)
	require.NoError(t, hr.Deactivate())
	f.eval(t, `(printout out "b")`)
	require.NoError(t, hr.Activate())
	f.eval(t, `(printout out "c")`)

	assert.Equal(t, "ac", high.String())
	assert.Equal(t, "b", low.String())

	names := make([]string, 0)
	for _, r := range f.env.Routers() {
		names = append(names, r.Name())
	}
	assert.Equal(t, []string{"high", "low", router.ErrorRouterName, StderrRouterName, StdoutRouterName}, names)
}

func TestReadRouter(t *testing.T) {
	f := newFixture(t, WithStdin(strings.NewReader("42 rest\n")))

	assert.Equal(t, int64(42), f.eval(t, "(read)"))
	assert.Equal(t, int(' '), f.env.ReadRouter("stdin"))
	assert.Equal(t, int('r'), f.env.ReadRouter("stdin"))
	f.env.UnreadRouter("stdin", 'r')
	assert.Equal(t, "rest", f.eval(t, "(readline)"))
}

func TestLoggingRouterOption(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	f := newFixture(t, WithLogger(zap.New(core)), WithLoggingRouter())

	f.eval(t, `(printout t "hello" crlf)`)
	_, _ = f.env.Eval("(+ a 1)")

	info := logs.FilterMessage("hello").All()
	require.Len(t, info, 1)
	assert.Equal(t, zapcore.InfoLevel, info[0].Level)
	errs := logs.FilterLevelExact(zapcore.ErrorLevel).All()
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "[ARGACCES2]")

	// The logging router consumes what it logs.
	assert.Empty(t, f.stdout.String())
}

func TestClearKeepsFunctionsAndRouters(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.DefineFunction(func(x int) int { return x * 2 }, "double"))
	f.build(t, "(deftemplate point (slot x))")

	require.NoError(t, f.env.Clear())
	assert.Empty(t, f.env.Templates())
	assert.Equal(t, []string{"double"}, f.env.Functions())
	assert.Equal(t, int64(8), f.eval(t, "(go-function double 4)"))
	f.eval(t, `(printout t "still routed")`)
	assert.Equal(t, "still routed", f.stdout.String())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestBatchStar(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "batch.clp")
	writeFile(t, path, "(deftemplate item (slot n))\n(assert (item (n 1)))\n(printout t \"loaded\" crlf)\n")

	require.NoError(t, f.env.BatchStar(path))
	assert.Len(t, f.env.Facts(), 1)
	assert.Equal(t, "loaded\n", f.stdout.String())
	assert.ErrorIs(t, f.env.BatchStar(filepath.Join(t.TempDir(), "missing.clp")), errors.ErrIO)
}

func TestCloseIsFinal(t *testing.T) {
	f := newFixture(t)
	fact, err := f.env.AssertString("(a)")
	require.NoError(t, err)

	require.NoError(t, f.env.Close())
	require.NoError(t, f.env.Close())
	assert.True(t, f.env.Closed())
	assert.Equal(t, 0, f.sim.EnvironmentCount())

	_, err = f.env.Eval("(+ 1 2)")
	assert.ErrorIs(t, err, errors.ErrClosed)
	assert.ErrorIs(t, f.env.Build("(deftemplate x)"), errors.ErrClosed)
	_, err = f.env.Run(-1)
	assert.ErrorIs(t, err, errors.ErrClosed)
	assert.Nil(t, f.env.Facts())

	assert.NotPanics(t, fact.Release)
	_, err = fact.Slot("")
	assert.ErrorIs(t, err, errors.ErrClosed)
	assert.Contains(t, fact.String(), "<Fact-")
}

func TestEnvironmentsAreIndependent(t *testing.T) {
	shared := sim.New()
	a, err := New(shared)
	require.NoError(t, err)
	defer a.Close()
	b, err := New(shared)
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Build("(deftemplate only-a (slot x))"))
	require.NoError(t, a.DefineFunction(func() string { return "a" }, "who"))
	require.NoError(t, b.DefineFunction(func() string { return "b" }, "who"))

	assert.Equal(t, []string{"only-a"}, a.Templates())
	assert.Empty(t, b.Templates())

	va, err := a.Eval("(who)")
	require.NoError(t, err)
	vb, err := b.Eval("(who)")
	require.NoError(t, err)
	assert.Equal(t, "a", va)
	assert.Equal(t, "b", vb)

	fa, err := a.AssertString("(x)")
	require.NoError(t, err)
	_, err = b.Encode(fa)
	assert.ErrorIs(t, err, errors.ErrValue, "proxies do not cross environments")
}
