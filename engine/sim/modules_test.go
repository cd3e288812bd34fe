package sim

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clips-runtime/engine"
)

func activationRules(acts []engine.Activation) []string {
	out := make([]string, len(acts))
	for i, a := range acts {
		out[i] = a.Rule
	}
	return out
}

func TestModulesScopeTheAgenda(t *testing.T) {
	h := newHarness(t, "")
	h.build(t,
		`(defrule main-rule (go) => (printout t "main" crlf))`,
		"(defmodule A)",
		`(defrule a-rule (go) => (printout t "a" crlf))`,
	)
	assert.Equal(t, []string{"MAIN", "A"}, h.e.Modules(h.env))
	assert.Equal(t, "A", h.e.CurrentModule(h.env))

	h.e.Reset(h.env)
	assert.Equal(t, "MAIN", h.e.CurrentModule(h.env))
	assert.Equal(t, "MAIN", h.e.GetFocus(h.env))
	require.NotZero(t, h.e.AssertString(h.env, "(go)"))

	assert.Equal(t, []string{"main-rule"}, activationRules(h.e.Activations(h.env)))
	require.True(t, h.e.SetCurrentModule(h.env, "A"))
	assert.Equal(t, []string{"a-rule"}, activationRules(h.e.Activations(h.env)))
	assert.False(t, h.e.SetCurrentModule(h.env, "B"))

	assert.Equal(t, int64(1), h.e.Run(h.env, -1))
	assert.Equal(t, "main\n", h.stdout.String())
	assert.Empty(t, h.e.GetFocus(h.env))

	require.True(t, h.e.Focus(h.env, "A"))
	assert.False(t, h.e.Focus(h.env, "B"))
	assert.Equal(t, int64(1), h.e.Run(h.env, -1))
	assert.Equal(t, "main\na\n", h.stdout.String())
	assert.Equal(t, "A", h.e.CurrentModule(h.env))
}

func TestFocusFromRuleActions(t *testing.T) {
	h := newHarness(t, "")
	h.build(t,
		"(defmodule A)",
		`(defrule a-rule (go) => (printout t "a" crlf))`,
		"(defmodule B)",
		`(defrule b-rule (go) => (printout t "b" crlf))`,
	)
	require.True(t, h.e.SetCurrentModule(h.env, "MAIN"))
	h.build(t, "(defrule start (go) => (focus A B))")
	h.e.Reset(h.env)
	h.e.AssertString(h.env, "(go)")

	assert.Equal(t, int64(3), h.e.Run(h.env, -1))
	assert.Equal(t, "a\nb\n", h.stdout.String())
	assert.Equal(t, engine.Symbol("FALSE"), h.eval(t, "(get-focus)"))

	require.True(t, h.e.Focus(h.env, "B"))
	require.True(t, h.e.Focus(h.env, "A"))
	assert.True(t, engine.Multifield(engine.Symbol("A"), engine.Symbol("B")).Equal(h.eval(t, "(get-focus-stack)")))
	h.e.ClearFocusStack(h.env)
	assert.Empty(t, h.e.GetFocus(h.env))

	assert.Equal(t, engine.BuildParsingError, h.e.Build(h.env, "(defmodule A)"))
	assert.Contains(t, h.stderr.String(), "[MODULDEF1]")
}

func TestModulesSurviveSaveAndLoad(t *testing.T) {
	h := newHarness(t, "")
	h.build(t, "(defmodule A)", "(defrule r (go) => )")
	path := filepath.Join(t.TempDir(), "mod.clp")
	require.True(t, h.e.Save(h.env, path))

	require.True(t, h.e.Clear(h.env))
	assert.Equal(t, []string{"MAIN"}, h.e.Modules(h.env))
	assert.Equal(t, "MAIN", h.e.CurrentModule(h.env))

	require.Equal(t, engine.LoadNoError, h.e.Load(h.env, path))
	assert.Equal(t, []string{"MAIN", "A"}, h.e.Modules(h.env))
	h.e.AssertString(h.env, "(go)")
	assert.Equal(t, []string{"r"}, activationRules(h.e.Activations(h.env)))
}

func TestStrategies(t *testing.T) {
	h := newHarness(t, "")
	h.build(t, "(defrule r (n ?x) => )")
	for _, f := range []string{"(n 1)", "(n 2)", "(n 3)"} {
		h.e.AssertString(h.env, f)
	}
	basis := func() []string {
		var out []string
		for _, a := range h.e.Activations(h.env) {
			out = append(out, a.Basis)
		}
		return out
	}

	assert.Equal(t, engine.DepthStrategy, h.e.GetStrategy(h.env))
	assert.Equal(t, []string{"f-3", "f-2", "f-1"}, basis())

	assert.Equal(t, engine.DepthStrategy, h.e.SetStrategy(h.env, engine.BreadthStrategy))
	assert.Equal(t, []string{"f-1", "f-2", "f-3"}, basis())
	assert.Equal(t, engine.Symbol("breadth"), h.eval(t, "(get-strategy)"))

	assert.Equal(t, engine.Symbol("breadth"), h.eval(t, "(set-strategy lex)"))
	assert.Equal(t, engine.LexStrategy, h.e.GetStrategy(h.env))
	assert.Equal(t, []string{"f-3", "f-2", "f-1"}, basis())

	h.e.SetStrategy(h.env, engine.RandomStrategy)
	assert.ElementsMatch(t, []string{"f-1", "f-2", "f-3"}, basis())
}

func TestSpecificityStrategies(t *testing.T) {
	h := newHarness(t, "")
	h.build(t,
		"(defrule simple (n ?x) => )",
		"(defrule complex (n ?x&:(> ?x 0)) (flag) => )",
	)
	h.e.AssertString(h.env, "(flag)")
	h.e.AssertString(h.env, "(n 1)")

	h.e.SetStrategy(h.env, engine.SimplicityStrategy)
	assert.Equal(t, []string{"simple", "complex"}, activationRules(h.e.Activations(h.env)))
	h.e.SetStrategy(h.env, engine.ComplexityStrategy)
	assert.Equal(t, []string{"complex", "simple"}, activationRules(h.e.Activations(h.env)))
}

func TestSalienceEvaluationModes(t *testing.T) {
	h := newHarness(t, "")
	h.build(t,
		"(defglobal ?*s* = 10)",
		"(defrule dynamic (declare (salience ?*s*)) (go) => )",
		"(defrule fixed (declare (salience 5)) (go) => )",
	)
	h.e.AssertString(h.env, "(go)")
	set := func(n int64) { require.True(t, h.e.SetDefglobalValue(h.env, "s", engine.Integer(n))) }

	set(0)
	assert.Equal(t, []string{"dynamic", "fixed"}, activationRules(h.e.Activations(h.env)))

	assert.Equal(t, engine.WhenDefined, h.e.SetSalienceEvaluation(h.env, engine.WhenActivated))
	h.e.RefreshAgenda(h.env)
	assert.Equal(t, []string{"fixed", "dynamic"}, activationRules(h.e.Activations(h.env)))
	set(20)
	assert.Equal(t, []string{"fixed", "dynamic"}, activationRules(h.e.Activations(h.env)))
	h.e.RefreshAgenda(h.env)
	acts := h.e.Activations(h.env)
	assert.Equal(t, []string{"dynamic", "fixed"}, activationRules(acts))
	assert.Equal(t, 20, acts[0].Salience)

	h.e.SetSalienceEvaluation(h.env, engine.EveryCycle)
	assert.Equal(t, engine.Symbol("every-cycle"), h.eval(t, "(get-salience-evaluation)"))
	set(-3)
	acts = h.e.Activations(h.env)
	assert.Equal(t, []string{"fixed", "dynamic"}, activationRules(acts))
	assert.Equal(t, -3, acts[1].Salience)
}

func TestClearAgenda(t *testing.T) {
	h := newHarness(t, "")
	h.build(t, "(defrule r (n ?x) => )")
	h.e.AssertString(h.env, "(n 1)")
	require.Len(t, h.e.Activations(h.env), 1)

	h.e.ClearAgenda(h.env)
	assert.Empty(t, h.e.Activations(h.env))
	assert.Zero(t, h.e.Run(h.env, -1))

	h.e.AssertString(h.env, "(n 2)")
	assert.Equal(t, int64(1), h.e.Run(h.env, -1))
}

func TestUndefine(t *testing.T) {
	h := newHarness(t, "")
	h.build(t,
		"(deftemplate item (slot n))",
		"(defrule r (item (n ?n)) => )",
		"(deffunction f () 1)",
		"(defglobal ?*g* = 1)",
		"(deffacts init (item (n 1)))",
	)
	h.e.Reset(h.env)

	assert.False(t, h.e.Undefine(h.env, engine.DeftemplateKind, "item"))
	assert.Contains(t, h.stderr.String(), "[CSTRCPSR4]")
	assert.True(t, h.e.Undefine(h.env, engine.DefruleKind, "r"))
	assert.False(t, h.e.Undefine(h.env, engine.DefruleKind, "r"))
	assert.Empty(t, h.e.Rules(h.env))
	assert.Empty(t, h.e.Activations(h.env))

	assert.True(t, h.e.Undefine(h.env, engine.DeffactsKind, "init"))
	for _, p := range h.e.Facts(h.env) {
		require.Equal(t, engine.RetractNoError, h.e.Retract(h.env, p))
	}
	assert.True(t, h.e.Undefine(h.env, engine.DeftemplateKind, "item"))
	assert.Empty(t, h.e.Templates(h.env))

	h.eval(t, "(undeffunction f)")
	_, code := h.e.Eval(h.env, "(f)")
	assert.Equal(t, engine.EvalParsingError, code)

	assert.True(t, h.e.Undefine(h.env, engine.DefglobalKind, "g"))
	_, ok := h.e.GetDefglobalValue(h.env, "g")
	assert.False(t, ok)
}

func TestClassIntrospection(t *testing.T) {
	h := newHarness(t, "")
	h.build(t,
		"(defclass shape (is-a USER) (role abstract) (slot name))",
		"(defclass circle (is-a shape) (slot radius))",
	)
	assert.Equal(t, []string{"OBJECT", "USER", "shape", "circle"}, h.e.Classes(h.env))

	abstract, ok := h.e.ClassAbstract(h.env, "shape")
	assert.True(t, ok)
	assert.True(t, abstract)
	abstract, ok = h.e.ClassAbstract(h.env, "circle")
	assert.True(t, ok)
	assert.False(t, abstract)
	_, ok = h.e.ClassAbstract(h.env, "square")
	assert.False(t, ok)

	slots, ok := h.e.ClassSlots(h.env, "circle", false)
	require.True(t, ok)
	assert.Equal(t, []string{"radius"}, slots)
	slots, _ = h.e.ClassSlots(h.env, "circle", true)
	assert.Equal(t, []string{"name", "radius"}, slots)

	supers, ok := h.e.ClassSuperclasses(h.env, "circle", false)
	require.True(t, ok)
	assert.Equal(t, []string{"shape"}, supers)
	supers, _ = h.e.ClassSuperclasses(h.env, "circle", true)
	assert.Equal(t, []string{"shape", "USER", "OBJECT"}, supers)

	assert.Equal(t, engine.Symbol("TRUE"), h.eval(t, "(class-abstractp shape)"))
	assert.True(t, engine.Multifield(engine.Symbol("name"), engine.Symbol("radius")).Equal(h.eval(t, "(class-slots circle inherit)")))

	assert.False(t, h.e.Undefine(h.env, engine.DefclassKind, "shape"))
	assert.False(t, h.e.Undefine(h.env, engine.DefclassKind, "USER"))
	assert.True(t, h.e.Undefine(h.env, engine.DefclassKind, "circle"))
	assert.True(t, h.e.Undefine(h.env, engine.DefclassKind, "shape"))
	assert.Equal(t, []string{"OBJECT", "USER"}, h.e.Classes(h.env))
}
