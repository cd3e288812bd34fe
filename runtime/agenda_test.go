package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
	"github.com/wippyai/clips-runtime/transcoder"
)

func agendaRules(acts []engine.Activation) []string {
	out := make([]string, len(acts))
	for i, a := range acts {
		out[i] = a.Rule
	}
	return out
}

func TestStrategyControl(t *testing.T) {
	f := newFixture(t)
	f.build(t, "(defrule r (n ?x) => )")
	for _, fact := range []string{"(n 1)", "(n 2)"} {
		_, err := f.env.AssertString(fact)
		require.NoError(t, err)
	}
	assert.Equal(t, engine.DepthStrategy, f.env.Strategy())
	assert.Equal(t, "f-2", f.env.Activations()[0].Basis)

	old, err := f.env.SetStrategy(engine.BreadthStrategy)
	require.NoError(t, err)
	assert.Equal(t, engine.DepthStrategy, old)
	assert.Equal(t, "f-1", f.env.Activations()[0].Basis)
	assert.Equal(t, transcoder.Symbol("breadth"), f.eval(t, "(get-strategy)"))

	_, err = f.env.SetStrategy(engine.Strategy(42))
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindInvalidInput, e.Kind)
	assert.Equal(t, engine.BreadthStrategy, f.env.Strategy())
}

func TestSalienceEvaluationControl(t *testing.T) {
	f := newFixture(t)
	f.build(t,
		"(defglobal ?*s* = 0)",
		"(defrule dynamic (declare (salience ?*s*)) (go) => )",
		"(defrule fixed (declare (salience 5)) (go) => )",
	)
	_, err := f.env.AssertString("(go)")
	require.NoError(t, err)

	old, err := f.env.SetSalienceEvaluation(engine.WhenActivated)
	require.NoError(t, err)
	assert.Equal(t, engine.WhenDefined, old)
	assert.Equal(t, engine.WhenActivated, f.env.SalienceEvaluation())
	assert.Equal(t, []string{"fixed", "dynamic"}, agendaRules(f.env.Activations()))

	require.NoError(t, f.env.SetGlobal("s", 10))
	assert.Equal(t, []string{"fixed", "dynamic"}, agendaRules(f.env.Activations()))
	require.NoError(t, f.env.RefreshAgenda())
	assert.Equal(t, []string{"dynamic", "fixed"}, agendaRules(f.env.Activations()))

	_, err = f.env.SetSalienceEvaluation(engine.SalienceEvaluation(-1))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestClearAgendaKeepsRules(t *testing.T) {
	f := newFixture(t)
	f.build(t, `(defrule r (n ?x) => (printout t "fired " ?x crlf))`)
	_, err := f.env.AssertString("(n 1)")
	require.NoError(t, err)

	require.NoError(t, f.env.ClearAgenda())
	assert.Empty(t, f.env.Activations())

	_, err = f.env.AssertString("(n 2)")
	require.NoError(t, err)
	n, err := f.env.Run(-1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, "fired 2\n", f.stdout.String())
}

func TestModulesAndFocus(t *testing.T) {
	f := newFixture(t)
	f.build(t,
		`(defrule main-rule (go) => (printout t "main" crlf))`,
		"(defmodule WORK)",
		`(defrule work-rule (go) => (printout t "work" crlf))`,
	)
	assert.Equal(t, []string{"MAIN", "WORK"}, f.env.Modules())
	assert.Equal(t, "WORK", f.env.CurrentModule())

	require.NoError(t, f.env.Reset())
	assert.Equal(t, "MAIN", f.env.FocusModule())
	_, err := f.env.AssertString("(go)")
	require.NoError(t, err)
	assert.Equal(t, []string{"main-rule"}, agendaRules(f.env.Activations()))

	require.NoError(t, f.env.Focus("WORK"))
	assert.Equal(t, "WORK", f.env.FocusModule())
	n, err := f.env.Run(-1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, "work\nmain\n", f.stdout.String())
	assert.Empty(t, f.env.FocusModule())

	require.NoError(t, f.env.SetCurrentModule("MAIN"))
	assert.Equal(t, "MAIN", f.env.CurrentModule())
	require.NoError(t, f.env.Focus("WORK"))
	require.NoError(t, f.env.ClearFocus())
	assert.Empty(t, f.env.FocusModule())

	var e *errors.Error
	require.ErrorAs(t, f.env.SetCurrentModule("NOPE"), &e)
	assert.Equal(t, errors.KindNotFound, e.Kind)
	assert.ErrorIs(t, f.env.Focus("NOPE"), errors.ErrNotFound)
}

func TestUndefineConstructs(t *testing.T) {
	f := newFixture(t)
	f.build(t,
		"(deftemplate item (slot n))",
		"(defrule r (item (n ?n)) => )",
		"(deffunction double (?x) (* 2 ?x))",
	)
	_, err := f.env.AssertString("(item (n 1))")
	require.NoError(t, err)

	err = f.env.Undefine(engine.DeftemplateKind, "item")
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindState, e.Kind)
	assert.Contains(t, e.Detail, "CSTRCPSR4")
	assert.True(t, e.Reported)

	require.NoError(t, f.env.Undefine(engine.DefruleKind, "r"))
	assert.Empty(t, f.env.Rules())
	assert.Empty(t, f.env.Activations())

	err = f.env.Undefine(engine.DefruleKind, "r")
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindNotFound, e.Kind)
	assert.Contains(t, e.Detail, `defrule "r"`)

	require.NoError(t, f.env.Undefine(engine.DeffunctionKind, "double"))
	_, err = f.env.Call("double", 2)
	assert.Error(t, err)
}

func TestClassIntrospectionFacade(t *testing.T) {
	f := newFixture(t)
	f.build(t,
		"(defclass shape (is-a USER) (role abstract) (slot name))",
		"(defclass circle (is-a shape) (slot radius))",
	)
	assert.Contains(t, f.env.Classes(), "circle")

	abstract, err := f.env.ClassAbstract("shape")
	require.NoError(t, err)
	assert.True(t, abstract)

	slots, err := f.env.ClassSlots("circle", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "radius"}, slots)

	supers, err := f.env.ClassSuperclasses("circle", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"shape"}, supers)

	_, err = f.env.ClassAbstract("square")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	_, err = f.env.ClassSlots("square", false)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	_, err = f.env.ClassSuperclasses("square", false)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, f.env.Undefine(engine.DefclassKind, "circle"))
	assert.NotContains(t, f.env.Classes(), "circle")
}

func TestAgendaControlAfterClose(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.env.Close())

	assert.Nil(t, f.env.Modules())
	assert.Empty(t, f.env.CurrentModule())
	assert.Equal(t, engine.DepthStrategy, f.env.Strategy())
	assert.ErrorIs(t, f.env.Focus("MAIN"), errors.ErrClosed)
	_, err := f.env.SetStrategy(engine.LexStrategy)
	assert.ErrorIs(t, err, errors.ErrClosed)
	assert.ErrorIs(t, f.env.Undefine(engine.DefruleKind, "r"), errors.ErrClosed)
}
