package sim

import (
	"github.com/wippyai/clips-runtime/engine"
)

type specialForm func(env *environment, args []*node, sc *scope) engine.Value

// specialForms receive their arguments unevaluated.
var specialForms map[string]specialForm

func init() {
	specialForms = map[string]specialForm{
		"if":               formIf,
		"while":            formWhile,
		"loop-for-count":   formLoopForCount,
		"bind":             formBind,
		"progn":            formProgn,
		"progn$":           formForeach,
		"foreach":          formForeach,
		"return":           formReturn,
		"break":            formBreak,
		"and":              formAnd,
		"or":               formOr,
		"assert":           formAssert,
		"modify":           formModify,
		"duplicate":        formDuplicate,
		"make-instance":    formMakeInstance,
		"find-fact":        formFindFact,
		"find-all-facts":   formFindAllFacts,
		"any-factp":        formAnyFactp,
		"do-for-fact":      formDoForFact,
		"do-for-all-facts": formDoForAllFacts,
	}
}

func formIf(env *environment, args []*node, sc *scope) engine.Value {
	if len(args) < 2 || !args[1].isSymbol("then") {
		return env.fail("PRCDRPSR1", "if requires a condition followed by then.")
	}
	cond := env.eval(args[0], sc)
	if env.aborted() {
		return symFalse
	}
	thenPart := args[2:]
	var elsePart []*node
	for i, a := range thenPart {
		if a.isSymbol("else") {
			elsePart = thenPart[i+1:]
			thenPart = thenPart[:i]
			break
		}
	}
	if !isFalse(cond) {
		return env.evalBody(thenPart, sc)
	}
	return env.evalBody(elsePart, sc)
}

func formWhile(env *environment, args []*node, sc *scope) engine.Value {
	if len(args) == 0 {
		return env.fail("PRCDRPSR1", "while requires a condition.")
	}
	body := args[1:]
	if len(body) > 0 && body[0].isSymbol("do") {
		body = body[1:]
	}
	for {
		cond := env.eval(args[0], sc)
		if env.aborted() || isFalse(cond) {
			break
		}
		env.evalBody(body, sc)
		if env.breaking {
			env.breaking = false
			break
		}
		if env.aborted() || env.halted {
			break
		}
	}
	return symFalse
}

func formLoopForCount(env *environment, args []*node, sc *scope) engine.Value {
	if len(args) == 0 {
		return env.fail("PRCDRPSR1", "loop-for-count requires a range.")
	}
	spec := args[0]
	varName := ""
	var start, end int64 = 1, 0
	evalInt := func(n *node) (int64, bool) {
		v := env.eval(n, sc)
		i, ok := v.Integer()
		if !ok && !env.evalError {
			env.fail("ARGACCES2", "Function 'loop-for-count' expected an integer range.")
		}
		return i, ok
	}
	var ok bool
	switch {
	case spec.isList && len(spec.list) >= 2 && spec.list[0].atom(tokSFVar):
		varName = spec.list[0].tok.str
		if len(spec.list) == 2 {
			end, ok = evalInt(spec.list[1])
		} else {
			if start, ok = evalInt(spec.list[1]); ok {
				end, ok = evalInt(spec.list[2])
			}
		}
	default:
		end, ok = evalInt(spec)
	}
	if !ok {
		return symFalse
	}
	body := args[1:]
	if len(body) > 0 && body[0].isSymbol("do") {
		body = body[1:]
	}
	for i := start; i <= end; i++ {
		if varName != "" {
			sc.vars[varName] = engine.Integer(i)
		}
		env.evalBody(body, sc)
		if env.breaking {
			env.breaking = false
			break
		}
		if env.aborted() || env.halted {
			break
		}
	}
	return symFalse
}

func formBind(env *environment, args []*node, sc *scope) engine.Value {
	if len(args) == 0 || (!args[0].atom(tokSFVar) && !args[0].atom(tokMFVar) && !args[0].atom(tokGlobal)) {
		return env.fail("PRCDRPSR1", "bind requires a variable.")
	}
	vals, ok := env.evalArgs(args[1:], sc)
	if !ok {
		return symFalse
	}
	var v engine.Value
	switch len(vals) {
	case 0:
		v = symFalse
	case 1:
		v = vals[0]
	default:
		v = flatten(vals)
	}
	if args[0].atom(tokGlobal) {
		g := env.globals[args[0].tok.str]
		if g == nil {
			return env.fail("GLOBLDEF1", "Global variable ?*%s* is unbound.", args[0].tok.str)
		}
		if len(vals) == 0 {
			v = env.eval(g.init, newScope(nil))
		}
		g.value = v
		return v
	}
	if len(vals) == 0 {
		delete(sc.vars, args[0].tok.str)
		return symFalse
	}
	sc.vars[args[0].tok.str] = v
	return v
}

func formProgn(env *environment, args []*node, sc *scope) engine.Value {
	return env.evalBody(args, sc)
}

func formForeach(env *environment, args []*node, sc *scope) engine.Value {
	if len(args) == 0 || !args[0].isList || len(args[0].list) != 2 || !args[0].list[0].atom(tokSFVar) {
		return env.fail("PRCDRPSR1", "progn$ requires (?var multifield).")
	}
	name := args[0].list[0].tok.str
	mf := env.eval(args[0].list[1], sc)
	if env.aborted() {
		return symFalse
	}
	fields, ok := mf.Fields()
	if !ok {
		fields = []engine.Value{mf}
	}
	body := args[1:]
	if len(body) > 0 && body[0].isSymbol("do") {
		body = body[1:]
	}
	result := symFalse
	for i, v := range fields {
		sc.vars[name] = v
		sc.vars[name+"-index"] = engine.Integer(int64(i + 1))
		result = env.evalBody(body, sc)
		if env.breaking {
			env.breaking = false
			break
		}
		if env.aborted() || env.halted {
			break
		}
	}
	return result
}

func formReturn(env *environment, args []*node, sc *scope) engine.Value {
	v := engine.Void()
	if len(args) > 0 {
		v = env.eval(args[0], sc)
		if env.evalError {
			return symFalse
		}
	}
	sc.vars[returnSlot] = v
	env.returning = true
	return v
}

func formBreak(env *environment, _ []*node, _ *scope) engine.Value {
	env.breaking = true
	return symFalse
}

func formAnd(env *environment, args []*node, sc *scope) engine.Value {
	for _, a := range args {
		if isFalse(env.eval(a, sc)) || env.aborted() {
			return symFalse
		}
	}
	return symTrue
}

func formOr(env *environment, args []*node, sc *scope) engine.Value {
	for _, a := range args {
		v := env.eval(a, sc)
		if env.aborted() {
			return symFalse
		}
		if !isFalse(v) {
			return symTrue
		}
	}
	return symFalse
}

func formMakeInstance(env *environment, args []*node, sc *scope) engine.Value {
	return env.makeInstanceForm(args, sc)
}

func formAssert(env *environment, args []*node, sc *scope) engine.Value {
	result := symFalse
	for _, a := range args {
		f := env.factFromNode(a, sc)
		if f == nil {
			return symFalse
		}
		result = engine.FactAddress(f.ptr)
	}
	return result
}

// targetFact resolves a fact address or fact index argument.
func (env *environment) targetFact(v engine.Value) *fact {
	switch v.Type() {
	case engine.FACT_ADDRESS:
		p, _ := v.Pointer()
		if f := env.factAt(p); f != nil && !f.retracted {
			return f
		}
	case engine.INTEGER:
		i, _ := v.Integer()
		return env.factByIndex(i)
	}
	return nil
}

func modifyForm(env *environment, args []*node, sc *scope, keep bool, name string) engine.Value {
	if len(args) == 0 {
		return env.fail("ARGACCES1", "Function '%s' expected at least 1 argument(s)", name)
	}
	target := env.eval(args[0], sc)
	if env.aborted() {
		return symFalse
	}
	f := env.targetFact(target)
	if f == nil {
		return env.fail("PRNTUTIL1", "Unable to find fact %s.", env.printForm(target, true))
	}
	if f.tmpl.implied {
		return env.fail("TMPLTFUN1", "Fact f-%d does not have a deftemplate.", f.index)
	}
	slots, ok := env.evalSlots(f.tmpl.slot, args[1:], sc)
	if !ok {
		return symFalse
	}
	nf := env.modify(f, slots, keep)
	if nf == nil {
		return symFalse
	}
	return engine.FactAddress(nf.ptr)
}

func formModify(env *environment, args []*node, sc *scope) engine.Value {
	return modifyForm(env, args, sc, false, "modify")
}

func formDuplicate(env *environment, args []*node, sc *scope) engine.Value {
	return modifyForm(env, args, sc, true, "duplicate")
}

// factQuery evaluates a fact-set query: ((?f template)...) query body.
// visit is called for every satisfying combination until it returns false.
func (env *environment) factQuery(args []*node, sc *scope, name string, visit func(set []*fact, qs *scope) bool) {
	if len(args) < 2 || !args[0].isList {
		env.fail("FACTQPSR1", "Function %s expected a fact-set template and a query.", name)
		return
	}
	type setMember struct {
		name  string
		tmpls []string
	}
	var members []setMember
	for _, m := range args[0].list {
		if !m.isList || len(m.list) < 2 || !m.list[0].atom(tokSFVar) {
			env.fail("FACTQPSR1", "Invalid fact-set member in function %s.", name)
			return
		}
		mb := setMember{name: m.list[0].tok.str}
		for _, t := range m.list[1:] {
			s, _ := t.symbol()
			mb.tmpls = append(mb.tmpls, s)
		}
		members = append(members, mb)
	}

	set := make([]*fact, len(members))
	var walk func(i int) bool
	walk = func(i int) bool {
		if i == len(members) {
			qs := newScope(nil)
			for k, v := range sc.vars {
				qs.vars[k] = v
			}
			for j, m := range members {
				qs.vars[m.name] = engine.FactAddress(set[j].ptr)
			}
			ok := !isFalse(env.eval(args[1], qs))
			if env.aborted() {
				return false
			}
			if !ok {
				return true
			}
			chosen := make([]*fact, len(set))
			copy(chosen, set)
			return visit(chosen, qs)
		}
		candidates := make([]*fact, 0, len(env.facts))
		for _, f := range env.facts {
			for _, t := range members[i].tmpls {
				if f.tmpl.name == t {
					candidates = append(candidates, f)
					break
				}
			}
		}
		for _, f := range candidates {
			if f.retracted {
				continue
			}
			set[i] = f
			if !walk(i + 1) {
				return false
			}
		}
		return true
	}
	walk(0)
}

func factAddresses(set []*fact) []engine.Value {
	out := make([]engine.Value, len(set))
	for i, f := range set {
		out[i] = engine.FactAddress(f.ptr)
	}
	return out
}

func formFindFact(env *environment, args []*node, sc *scope) engine.Value {
	var found []engine.Value
	env.factQuery(args, sc, "find-fact", func(set []*fact, _ *scope) bool {
		found = factAddresses(set)
		return false
	})
	return engine.Multifield(found...)
}

func formFindAllFacts(env *environment, args []*node, sc *scope) engine.Value {
	var found []engine.Value
	env.factQuery(args, sc, "find-all-facts", func(set []*fact, _ *scope) bool {
		found = append(found, factAddresses(set)...)
		return true
	})
	return engine.Multifield(found...)
}

func formAnyFactp(env *environment, args []*node, sc *scope) engine.Value {
	found := false
	env.factQuery(args, sc, "any-factp", func([]*fact, *scope) bool {
		found = true
		return false
	})
	return boolValue(found)
}

func formDoForFact(env *environment, args []*node, sc *scope) engine.Value {
	result := symFalse
	env.factQuery(args, sc, "do-for-fact", func(_ []*fact, qs *scope) bool {
		result = env.evalBody(args[2:], qs)
		return false
	})
	return result
}

func formDoForAllFacts(env *environment, args []*node, sc *scope) engine.Value {
	result := symFalse
	env.factQuery(args, sc, "do-for-all-facts", func(_ []*fact, qs *scope) bool {
		result = env.evalBody(args[2:], qs)
		if env.breaking {
			env.breaking = false
			return false
		}
		return !env.aborted()
	})
	return result
}
