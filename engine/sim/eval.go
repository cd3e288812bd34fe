package sim

import (
	"strings"

	"github.com/wippyai/clips-runtime/engine"
)

// scope holds variable bindings for one rule firing or function call.
type scope struct {
	vars map[string]engine.Value
}

func newScope(vars map[string]engine.Value) *scope {
	if vars == nil {
		vars = make(map[string]engine.Value)
	}
	return &scope{vars: vars}
}

var (
	symTrue  = engine.Symbol("TRUE")
	symFalse = engine.Symbol("FALSE")
	symNil   = engine.Symbol("nil")
)

func boolValue(b bool) engine.Value {
	if b {
		return symTrue
	}
	return symFalse
}

func isFalse(v engine.Value) bool {
	s, ok := v.Symbol()
	return ok && s == "FALSE"
}

// aborted reports whether evaluation must unwind. A halt lets the
// current actions finish.
func (env *environment) aborted() bool {
	return env.evalError || env.returning || env.breaking
}

func (env *environment) eval(n *node, sc *scope) engine.Value {
	if n.isList {
		return env.call(n, sc)
	}
	t := n.tok
	switch t.kind {
	case tokInteger:
		return engine.Integer(t.i)
	case tokFloat:
		return engine.Float(t.f)
	case tokString:
		return engine.String(t.str)
	case tokSymbol:
		return engine.Symbol(t.str)
	case tokInstanceName:
		return engine.InstanceName(t.str)
	case tokSFVar, tokMFVar:
		return env.lookup(t.str, sc)
	case tokGlobal:
		g := env.globals[t.str]
		if g == nil {
			return env.fail("GLOBLDEF1", "Global variable ?*%s* is unbound.", t.str)
		}
		return g.value
	}
	return env.fail("EVALUATN1", "Unexpected token %s.", t.text)
}

func (env *environment) lookup(name string, sc *scope) engine.Value {
	if v, ok := sc.vars[name]; ok {
		return v
	}
	if i := strings.IndexByte(name, ':'); i > 0 {
		base, slot := name[:i], name[i+1:]
		if v, ok := sc.vars[base]; ok {
			return env.slotOf(v, slot)
		}
	}
	return env.fail("EVALUATN1", "Variable %s is unbound.", name)
}

// slotOf reads a slot from a fact or instance address value.
func (env *environment) slotOf(v engine.Value, slot string) engine.Value {
	p, _ := v.Pointer()
	switch v.Type() {
	case engine.FACT_ADDRESS:
		f := env.factAt(p)
		if f == nil || f.retracted {
			return env.fail("PRNTUTIL11", "The fact referenced by the slot reference no longer exists.")
		}
		val, err := f.get(slot)
		if err != engine.GetSlotNoError {
			return env.fail("FACTMNGR1", "Invalid slot %s for fact f-%d.", slot, f.index)
		}
		return val
	case engine.INSTANCE_ADDRESS:
		ins := env.instanceAt(p)
		if ins == nil || ins.deleted {
			return env.fail("INSFUN4", "Invalid instance-address in slot reference.")
		}
		val, ok := ins.slots[slot]
		if !ok {
			return env.fail("INSFUN3", "No such slot %s in instance [%s].", slot, ins.name)
		}
		return val
	}
	return env.fail("EVALUATN1", "Slot reference on a non-address value.")
}

// evalBody runs actions in order and returns the last value.
func (env *environment) evalBody(body []*node, sc *scope) engine.Value {
	result := symFalse
	for _, n := range body {
		result = env.eval(n, sc)
		if env.aborted() {
			break
		}
	}
	return result
}

// evalArgs evaluates call arguments, splicing (expand$ ...) in place.
func (env *environment) evalArgs(args []*node, sc *scope) ([]engine.Value, bool) {
	out := make([]engine.Value, 0, len(args))
	for _, a := range args {
		if a.head() == "expand$" && len(a.list) == 2 {
			v := env.eval(a.list[1], sc)
			if env.aborted() {
				return nil, false
			}
			if fields, ok := v.Fields(); ok {
				out = append(out, fields...)
			} else {
				out = append(out, v)
			}
			continue
		}
		v := env.eval(a, sc)
		if env.aborted() {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

func (env *environment) call(n *node, sc *scope) engine.Value {
	if len(n.list) == 0 {
		return env.fail("EXPRNPSR1", "A function name must be specified.")
	}
	name, ok := n.list[0].symbol()
	if !ok {
		return env.fail("EXPRNPSR1", "A function name must be a symbol.")
	}
	args := n.list[1:]

	if sf, ok := specialForms[name]; ok {
		return sf(env, args, sc)
	}

	vals, ok := env.evalArgs(args, sc)
	if !ok {
		return symFalse
	}
	return env.apply(name, vals)
}

// apply calls a named function with evaluated arguments.
func (env *environment) apply(name string, vals []engine.Value) engine.Value {
	if b, ok := builtins[name]; ok {
		if !env.checkArity(name, len(vals), b.min, b.max) {
			return symFalse
		}
		return b.fn(env, vals)
	}
	if u, ok := env.udfs[name]; ok {
		if !env.checkArity(name, len(vals), u.minArgs, u.maxArgs) {
			return symFalse
		}
		v := u.fn(env.id, vals)
		if !v.Type().Valid() {
			v = symFalse
		}
		return v
	}
	if df, ok := env.functions[name]; ok {
		return env.callDeffunction(df, vals, nil)
	}
	return env.fail("EXPRNPSR3", "Missing function declaration for %s.", name)
}

func (env *environment) knownFunction(name string) bool {
	if _, ok := specialForms[name]; ok {
		return true
	}
	if _, ok := builtins[name]; ok {
		return true
	}
	if _, ok := env.udfs[name]; ok {
		return true
	}
	_, ok := env.functions[name]
	return ok
}

func (env *environment) checkArity(name string, n, min, max int) bool {
	switch {
	case min == max && n != min:
		env.fail("ARGACCES1", "Function '%s' expected exactly %d argument(s)", name, min)
		return false
	case n < min:
		env.fail("ARGACCES1", "Function '%s' expected at least %d argument(s)", name, min)
		return false
	case max != engine.Unbounded && n > max:
		env.fail("ARGACCES1", "Function '%s' expected no more than %d argument(s)", name, max)
		return false
	}
	return true
}

func (env *environment) callDeffunction(df *deffunction, vals []engine.Value, extra map[string]engine.Value) engine.Value {
	if df.rest == "" && len(vals) != len(df.params) {
		return env.fail("ARGACCES1", "Function '%s' expected exactly %d argument(s)", df.name, len(df.params))
	}
	if len(vals) < len(df.params) {
		return env.fail("ARGACCES1", "Function '%s' expected at least %d argument(s)", df.name, len(df.params))
	}
	sc := newScope(nil)
	for k, v := range extra {
		sc.vars[k] = v
	}
	for i, p := range df.params {
		sc.vars[p] = vals[i]
	}
	if df.rest != "" {
		sc.vars[df.rest] = engine.Multifield(vals[len(df.params):]...)
	}
	result := env.evalBody(df.body, sc)
	if env.returning {
		env.returning = false
		if v, ok := sc.vars[returnSlot]; ok {
			result = v
		}
	}
	return result
}

// returnSlot carries the value of (return) out of a body. The name cannot
// collide with a rule-language variable.
const returnSlot = " return"

// validate checks that every function call in n names a known function.
// self is accepted as well so deffunctions may recurse.
func (env *environment) validate(n *node, self string) error {
	if !n.isList || len(n.list) == 0 {
		return nil
	}
	name, ok := n.list[0].symbol()
	if !ok {
		return &syntaxError{"expected a function name", n.tok.line}
	}
	if name != self && !env.knownFunction(name) {
		return &missingFunction{name: name}
	}
	if check, ok := structural[name]; ok {
		return check(env, n.list[1:], self)
	}
	for _, a := range n.list[1:] {
		if err := env.validate(a, self); err != nil {
			return err
		}
	}
	return nil
}

type missingFunction struct{ name string }

func (e *missingFunction) Error() string {
	return "Missing function declaration for " + e.name + "."
}

// reportParseError writes the diagnostic matching err.
func (env *environment) reportParseError(err error) {
	switch e := err.(type) {
	case *missingFunction:
		env.diagnostic("EXPRNPSR3", "%s", e.Error())
	case *constructError:
		env.diagnostic(e.id, "%s", e.msg)
	default:
		env.diagnostic("PRNTUTIL2", "Syntax Error: %s", err.Error())
	}
}

// structural validators cover special forms whose arguments are not all
// expressions.
var structural map[string]func(env *environment, args []*node, self string) error

func init() {
	validateSlots := func(env *environment, slots []*node, self string) error {
		for _, s := range slots {
			if !s.isList {
				continue
			}
			for _, v := range s.list[1:] {
				if err := env.validate(v, self); err != nil {
					return err
				}
			}
		}
		return nil
	}
	validateFacts := func(env *environment, args []*node, self string) error {
		for _, f := range args {
			if !f.isList || len(f.list) == 0 {
				continue
			}
			t := env.templates[f.head()]
			if t != nil && !t.implied {
				if err := validateSlots(env, f.list[1:], self); err != nil {
					return err
				}
				continue
			}
			for _, v := range f.list[1:] {
				if err := env.validate(v, self); err != nil {
					return err
				}
			}
		}
		return nil
	}
	afterFirst := func(env *environment, args []*node, self string) error {
		if len(args) == 0 {
			return nil
		}
		if err := env.validate(args[0], self); err != nil {
			return err
		}
		return validateSlots(env, args[1:], self)
	}
	query := func(env *environment, args []*node, self string) error {
		for _, a := range args[min(1, len(args)):] {
			if err := env.validate(a, self); err != nil {
				return err
			}
		}
		return nil
	}
	loop := func(env *environment, args []*node, self string) error {
		if len(args) > 0 && args[0].isList && len(args[0].list) > 1 {
			if err := env.validate(args[0].list[1], self); err != nil {
				return err
			}
		}
		for _, a := range args[min(1, len(args)):] {
			if err := env.validate(a, self); err != nil {
				return err
			}
		}
		return nil
	}
	makeInstance := func(env *environment, args []*node, self string) error {
		var slots []*node
		for _, a := range args {
			if a.isList {
				slots = append(slots, a)
			}
		}
		return validateSlots(env, slots, self)
	}

	structural = map[string]func(*environment, []*node, string) error{
		"assert":           validateFacts,
		"modify":           afterFirst,
		"duplicate":        afterFirst,
		"make-instance":    makeInstance,
		"find-fact":        query,
		"find-all-facts":   query,
		"do-for-all-facts": query,
		"do-for-fact":      query,
		"any-factp":        query,
		"progn$":           loop,
		"foreach":          loop,
	}
}
