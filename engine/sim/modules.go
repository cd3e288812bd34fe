package sim

import (
	"cmp"
	"math/rand"
	"slices"

	"github.com/wippyai/clips-runtime/engine"
)

const mainModule = "MAIN"

func (env *environment) module(name string) *module {
	for _, m := range env.modules {
		if m.name == name {
			return m
		}
	}
	return nil
}

func (env *environment) setCurrentModule(name string) bool {
	if env.module(name) == nil {
		return false
	}
	env.current = name
	return true
}

// pushFocus puts a module on top of the focus stack. Focusing the module
// already on top leaves the stack unchanged.
func (env *environment) pushFocus(name string) bool {
	if env.module(name) == nil {
		return false
	}
	if n := len(env.focus); n > 0 && env.focus[n-1] == name {
		return true
	}
	env.focus = append(env.focus, name)
	return true
}

func (env *environment) popFocus() string {
	n := len(env.focus)
	if n == 0 {
		return ""
	}
	top := env.focus[n-1]
	env.focus = env.focus[:n-1]
	return top
}

func (env *environment) topFocus() string {
	if n := len(env.focus); n > 0 {
		return env.focus[n-1]
	}
	return ""
}

// ruleSalience evaluates a rule's salience expression, falling back to the
// value computed when the rule was defined.
func (env *environment) ruleSalience(r *rule) int {
	if r.salExpr == nil {
		return r.salience
	}
	v := env.eval(r.salExpr, newScope(nil))
	sal, ok := v.Integer()
	if !ok || sal < -10000 || sal > 10000 {
		env.diagnostic("PRNTUTIL8", "Salience of rule %s must be an integer in the range -10000 to 10000.", r.name)
		return r.salience
	}
	return int(sal)
}

// salienceOf returns the salience an activation is ordered by under the
// current evaluation mode.
func (env *environment) salienceOf(r *rule, s *seen) int {
	switch env.salienceMode {
	case engine.WhenActivated:
		if !s.scored {
			s.salience = env.ruleSalience(r)
			s.scored = true
		}
		return s.salience
	case engine.EveryCycle:
		return env.ruleSalience(r)
	}
	return r.salience
}

func newSeen(seq int64) *seen {
	return &seen{seq: seq, random: rand.Uint64()}
}

// before orders two activations for firing: salience first, then the
// conflict resolution strategy, then recency.
func (env *environment) before(a, b *activation) bool {
	if a.salience != b.salience {
		return a.salience > b.salience
	}
	switch env.strategy {
	case engine.BreadthStrategy:
		return a.seq < b.seq
	case engine.ComplexityStrategy, engine.SimplicityStrategy:
		sa, sb := specificity(a.rule.lhs), specificity(b.rule.lhs)
		if sa != sb {
			return (sa > sb) == (env.strategy == engine.ComplexityStrategy)
		}
	case engine.LexStrategy:
		if c := compareRecency(a.recency(), b.recency()); c != 0 {
			return c > 0
		}
	case engine.MEAStrategy:
		fa, fb := a.first(), b.first()
		if fa != fb {
			return fa > fb
		}
		if c := compareRecency(a.recency(), b.recency()); c != 0 {
			return c > 0
		}
	case engine.RandomStrategy:
		if a.random != b.random {
			return a.random < b.random
		}
	}
	return a.seq > b.seq
}

// recency returns the basis pointers, newest first. Pointers grow
// monotonically, so they double as time tags.
func (a *activation) recency() []engine.Ptr {
	out := make([]engine.Ptr, len(a.basis))
	for i, r := range a.basis {
		out[i] = r.ptr
	}
	slices.SortFunc(out, func(x, y engine.Ptr) int { return cmp.Compare(y, x) })
	return out
}

func (a *activation) first() engine.Ptr {
	if len(a.basis) == 0 {
		return 0
	}
	return a.basis[0].ptr
}

func compareRecency(a, b []engine.Ptr) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] > b[i] {
				return 1
			}
			return -1
		}
	}
	return len(a) - len(b)
}

// specificity counts the conditional elements and constraints of a
// left-hand side.
func specificity(ces []*ce) int {
	n := 0
	for _, c := range ces {
		n++
		if c.test != nil {
			n++
		}
		for _, f := range c.ordered {
			n += constraints(f)
		}
		for _, sp := range c.slots {
			for _, f := range sp.fields {
				n += constraints(f)
			}
		}
		n += specificity(c.sub)
	}
	return n
}

func constraints(f *field) int {
	n := 0
	for _, or := range f.and {
		for _, t := range or {
			if t.kind != termWild && t.kind != termVar {
				n++
			}
		}
	}
	return n
}

// clearAgenda drops every activation of the current module.
func (env *environment) clearAgenda() {
	for _, act := range env.refresh() {
		if act.rule.module == env.current {
			env.agenda.fired[act.key] = true
		}
	}
}

// refreshAgenda re-evaluates salience of activations already on the
// agenda.
func (env *environment) refreshAgenda() {
	for _, s := range env.agenda.seen {
		s.scored = false
	}
	env.refresh()
}

func lexemeArg(env *environment, name string, args []engine.Value, n int) (string, bool) {
	s, ok := args[n].Lexeme()
	if !ok {
		env.badArg(name, n+1, "symbol or string")
	}
	return s, ok
}

func focusFn(env *environment, args []engine.Value) engine.Value {
	for i := len(args) - 1; i >= 0; i-- {
		name, ok := lexemeArg(env, "focus", args, i)
		if !ok {
			return symFalse
		}
		if !env.pushFocus(name) {
			return env.fail("PRNTUTIL1", "Unable to find defmodule %s.", name)
		}
	}
	return symTrue
}

func getFocus(env *environment, _ []engine.Value) engine.Value {
	if top := env.topFocus(); top != "" {
		return engine.Symbol(top)
	}
	return symFalse
}

func popFocusFn(env *environment, _ []engine.Value) engine.Value {
	if top := env.popFocus(); top != "" {
		return engine.Symbol(top)
	}
	return symFalse
}

func getFocusStack(env *environment, _ []engine.Value) engine.Value {
	out := make([]engine.Value, 0, len(env.focus))
	for i := len(env.focus) - 1; i >= 0; i-- {
		out = append(out, engine.Symbol(env.focus[i]))
	}
	return engine.Multifield(out...)
}

func clearFocusStack(env *environment, _ []engine.Value) engine.Value {
	env.focus = nil
	return engine.Void()
}

func getCurrentModule(env *environment, _ []engine.Value) engine.Value {
	return engine.Symbol(env.current)
}

func setCurrentModuleFn(env *environment, args []engine.Value) engine.Value {
	name, ok := lexemeArg(env, "set-current-module", args, 0)
	if !ok {
		return symFalse
	}
	old := env.current
	if !env.setCurrentModule(name) {
		return env.fail("PRNTUTIL1", "Unable to find defmodule %s.", name)
	}
	return engine.Symbol(old)
}

func getDefmoduleList(env *environment, _ []engine.Value) engine.Value {
	out := make([]engine.Value, len(env.modules))
	for i, m := range env.modules {
		out[i] = engine.Symbol(m.name)
	}
	return engine.Multifield(out...)
}

func getStrategy(env *environment, _ []engine.Value) engine.Value {
	return engine.Symbol(env.strategy.String())
}

func setStrategyFn(env *environment, args []engine.Value) engine.Value {
	name, ok := lexemeArg(env, "set-strategy", args, 0)
	if !ok {
		return symFalse
	}
	s, ok := engine.ParseStrategy(name)
	if !ok {
		return env.badArg("set-strategy", 1, "symbol with value depth, breadth, lex, mea, complexity, simplicity or random")
	}
	old := env.strategy
	env.strategy = s
	return engine.Symbol(old.String())
}

func getSalienceEvaluation(env *environment, _ []engine.Value) engine.Value {
	return engine.Symbol(env.salienceMode.String())
}

func setSalienceEvaluationFn(env *environment, args []engine.Value) engine.Value {
	name, ok := lexemeArg(env, "set-salience-evaluation", args, 0)
	if !ok {
		return symFalse
	}
	mode, ok := engine.ParseSalienceEvaluation(name)
	if !ok {
		return env.badArg("set-salience-evaluation", 1, "symbol with value when-defined, when-activated or every-cycle")
	}
	old := env.salienceMode
	env.salienceMode = mode
	return engine.Symbol(old.String())
}

func refreshAgendaFn(env *environment, _ []engine.Value) engine.Value {
	env.refreshAgenda()
	return engine.Void()
}

func undefFn(kind engine.ConstructKind, name string) func(*environment, []engine.Value) engine.Value {
	return func(env *environment, args []engine.Value) engine.Value {
		target, ok := lexemeArg(env, name, args, 0)
		if !ok {
			return symFalse
		}
		if !env.undefine(kind, target) {
			return env.fail("PRNTUTIL1", "Unable to find or delete %s %s.", name[len("un"):], target)
		}
		return engine.Void()
	}
}
