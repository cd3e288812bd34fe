package sim

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/wippyai/clips-runtime/engine"
)

type ceKind uint8

const (
	cePattern ceKind = iota + 1
	ceObject
	ceTest
	ceNot
	ceExists
	ceAnd
)

// ce is one conditional element of a rule's left-hand side.
type ce struct {
	kind     ceKind
	binding  string // ?f <- pattern
	relation string
	tmpl     *template // nil for ordered patterns
	ordered  []*field
	slots    []slotPattern
	isA      []*field
	name     []*field
	test     *node
	sub      []*ce
}

type slotPattern struct {
	name   string
	fields []*field
}

type termKind uint8

const (
	termConst termKind = iota + 1
	termVar
	termWild
	termPred   // :(expr)
	termReturn // =(expr)
)

type term struct {
	val     engine.Value
	name    string
	expr    *node
	kind    termKind
	multi   bool
	negated bool
}

// field is a conjunction of disjunctions: ?x&red|green is
// [[?x] [red green]].
type field struct {
	and   [][]term
	multi bool
}

type bindings map[string]engine.Value

func (b bindings) clone() bindings {
	out := make(bindings, len(b)+2)
	for k, v := range b {
		out[k] = v
	}
	return out
}

type basisRef struct {
	label string
	ptr   engine.Ptr
	stamp int64
}

type partial struct {
	vars  bindings
	basis []basisRef
}

// parseLHS turns the conditional elements of a defrule into ce values.
func (env *environment) parseLHS(elems []*node) ([]*ce, error) {
	var out []*ce
	for i := 0; i < len(elems); i++ {
		n := elems[i]
		binding := ""
		if n.atom(tokSFVar) && i+2 < len(elems) && elems[i+1].isSymbol("<-") {
			binding = n.tok.str
			i += 2
			n = elems[i]
		}
		if !n.isList || len(n.list) == 0 {
			return nil, &syntaxError{"expected a conditional element", n.tok.line}
		}
		c, err := env.parseCE(n)
		if err != nil {
			return nil, err
		}
		if binding != "" {
			if c.kind != cePattern && c.kind != ceObject {
				return nil, &syntaxError{"only patterns can be bound to a variable", n.tok.line}
			}
			c.binding = binding
		}
		if c.kind == ceAnd {
			out = append(out, c.sub...)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (env *environment) parseCE(n *node) (*ce, error) {
	head, ok := n.list[0].symbol()
	if !ok {
		return nil, &syntaxError{"a pattern must begin with a symbol", n.tok.line}
	}
	switch head {
	case "test":
		if len(n.list) != 2 {
			return nil, &syntaxError{"test expects one expression", n.tok.line}
		}
		if err := env.validate(n.list[1], ""); err != nil {
			return nil, err
		}
		return &ce{kind: ceTest, test: n.list[1]}, nil
	case "not", "exists", "and", "logical":
		sub, err := env.parseLHS(n.list[1:])
		if err != nil {
			return nil, err
		}
		if len(sub) == 0 {
			return nil, &syntaxError{head + " requires a conditional element", n.tok.line}
		}
		kind := ceAnd
		switch head {
		case "not":
			kind = ceNot
		case "exists":
			kind = ceExists
		}
		return &ce{kind: kind, sub: sub}, nil
	case "or", "forall":
		return nil, &syntaxError{"the " + head + " conditional element is not supported", n.tok.line}
	case "object":
		return env.parseObjectPattern(n)
	}

	c := &ce{kind: cePattern, relation: head}
	t := env.templates[head]
	if t == nil || t.implied {
		fields, err := env.parseFields(n.list[1:])
		if err != nil {
			return nil, err
		}
		c.ordered = fields
		return c, nil
	}
	c.tmpl = t
	for _, s := range n.list[1:] {
		name := s.head()
		if name == "" {
			return nil, &syntaxError{"expected a slot pattern in " + head, s.tok.line}
		}
		if t.slot(name) == nil {
			return nil, &syntaxError{fmt.Sprintf("invalid slot %s for template %s", name, head), s.tok.line}
		}
		fields, err := env.parseFields(s.list[1:])
		if err != nil {
			return nil, err
		}
		c.slots = append(c.slots, slotPattern{name: name, fields: fields})
	}
	return c, nil
}

func (env *environment) parseObjectPattern(n *node) (*ce, error) {
	c := &ce{kind: ceObject}
	for _, s := range n.list[1:] {
		name := s.head()
		if name == "" {
			return nil, &syntaxError{"expected an object attribute", s.tok.line}
		}
		fields, err := env.parseFields(s.list[1:])
		if err != nil {
			return nil, err
		}
		switch name {
		case "is-a":
			c.isA = fields
		case "name":
			c.name = fields
		default:
			c.slots = append(c.slots, slotPattern{name: name, fields: fields})
		}
	}
	return c, nil
}

func (env *environment) parseFields(elems []*node) ([]*field, error) {
	var out []*field
	for i := 0; i < len(elems); {
		f, next, err := env.parseField(elems, i)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
		i = next
	}
	return out, nil
}

func (env *environment) parseField(elems []*node, i int) (*field, int, error) {
	f := &field{}
	var group []term
	first := true
	for {
		if i >= len(elems) {
			return nil, i, &syntaxError{"incomplete field constraint", 0}
		}
		neg := false
		if elems[i].atom(tokNot) {
			neg = true
			i++
		}
		t, next, err := env.parseTerm(elems, i)
		if err != nil {
			return nil, i, err
		}
		t.negated = neg
		if first {
			f.multi = t.multi && !neg
			first = false
		}
		group = append(group, t)
		i = next
		if i < len(elems) && elems[i].atom(tokOr) {
			i++
			continue
		}
		f.and = append(f.and, group)
		group = nil
		if i < len(elems) && elems[i].atom(tokAnd) {
			i++
			continue
		}
		return f, i, nil
	}
}

func (env *environment) parseTerm(elems []*node, i int) (term, int, error) {
	n := elems[i]
	if n.isList {
		return term{}, i, &syntaxError{"unexpected expression in pattern: " + n.String(), n.tok.line}
	}
	switch n.tok.kind {
	case tokPredicate, tokReturn:
		if i+1 >= len(elems) || !elems[i+1].isList {
			return term{}, i, &syntaxError{"expected an expression after " + n.tok.text, n.tok.line}
		}
		expr := elems[i+1]
		if err := env.validate(expr, ""); err != nil {
			return term{}, i, err
		}
		kind := termPred
		if n.tok.kind == tokReturn {
			kind = termReturn
		}
		return term{kind: kind, expr: expr}, i + 2, nil
	case tokSFVar:
		return term{kind: termVar, name: n.tok.str}, i + 1, nil
	case tokMFVar:
		return term{kind: termVar, name: n.tok.str, multi: true}, i + 1, nil
	case tokSFWild:
		return term{kind: termWild}, i + 1, nil
	case tokMFWild:
		return term{kind: termWild, multi: true}, i + 1, nil
	case tokGlobal:
		return term{kind: termReturn, expr: n}, i + 1, nil
	case tokInteger, tokFloat, tokString, tokSymbol, tokInstanceName:
		return term{kind: termConst, val: atomValue(n.tok)}, i + 1, nil
	}
	return term{}, i, &syntaxError{"unexpected " + n.tok.text + " in pattern", n.tok.line}
}

func atomValue(t token) engine.Value {
	switch t.kind {
	case tokInteger:
		return engine.Integer(t.i)
	case tokFloat:
		return engine.Float(t.f)
	case tokString:
		return engine.String(t.str)
	case tokInstanceName:
		return engine.InstanceName(t.str)
	}
	return engine.Symbol(t.str)
}

// matchCEs extends p through every remaining conditional element and
// returns all complete partial matches.
func (env *environment) matchCEs(ces []*ce, p partial) []partial {
	if len(ces) == 0 {
		return []partial{p}
	}
	c, rest := ces[0], ces[1:]
	var out []partial

	switch c.kind {
	case cePattern:
		for _, f := range env.facts {
			if f.retracted || f.tmpl.name != c.relation || (c.tmpl == nil) != f.tmpl.implied {
				continue
			}
			for _, b := range env.matchFact(c, f, p.vars) {
				if c.binding != "" {
					b[c.binding] = engine.FactAddress(f.ptr)
				}
				next := partial{vars: b, basis: appendBasis(p.basis, basisRef{label: fmt.Sprintf("f-%d", f.index), ptr: f.ptr})}
				out = append(out, env.matchCEs(rest, next)...)
			}
		}
	case ceObject:
		for _, ins := range env.instances {
			if ins.deleted {
				continue
			}
			for _, b := range env.matchInstance(c, ins, p.vars) {
				if c.binding != "" {
					b[c.binding] = engine.InstanceAddress(ins.ptr)
				}
				next := partial{vars: b, basis: appendBasis(p.basis, basisRef{label: "[" + ins.name + "]", ptr: ins.ptr, stamp: ins.stamp})}
				out = append(out, env.matchCEs(rest, next)...)
			}
		}
	case ceTest:
		if !isFalse(env.eval(c.test, newScope(p.vars.clone()))) && !env.evalError {
			out = env.matchCEs(rest, p)
		}
	case ceNot:
		if len(env.matchCEs(c.sub, partial{vars: p.vars.clone()})) == 0 {
			out = env.matchCEs(rest, p)
		}
	case ceExists:
		if len(env.matchCEs(c.sub, partial{vars: p.vars.clone()})) > 0 {
			out = env.matchCEs(rest, p)
		}
	}
	return out
}

func appendBasis(basis []basisRef, r basisRef) []basisRef {
	out := make([]basisRef, len(basis), len(basis)+1)
	copy(out, basis)
	return append(out, r)
}

func (env *environment) matchFact(c *ce, f *fact, b bindings) []bindings {
	if c.tmpl == nil {
		var out []bindings
		env.matchFields(c.ordered, f.ordered, b.clone(), &out)
		return out
	}
	sols := []bindings{b.clone()}
	for _, sp := range c.slots {
		v := f.slots[sp.name]
		vals := []engine.Value{v}
		if def := f.tmpl.slot(sp.name); def != nil && def.multi {
			vals, _ = v.Fields()
		}
		var next []bindings
		for _, s := range sols {
			env.matchFields(sp.fields, vals, s, &next)
		}
		if len(next) == 0 {
			return nil
		}
		sols = next
	}
	return sols
}

func (env *environment) matchInstance(c *ce, ins *instance, b bindings) []bindings {
	sols := []bindings{b.clone()}
	if len(c.isA) > 0 {
		var next []bindings
		for _, s := range sols {
			for k := ins.class; k != nil; k = k.super {
				var got []bindings
				env.matchFields(c.isA, []engine.Value{engine.Symbol(k.name)}, s, &got)
				if len(got) > 0 {
					next = append(next, got[0])
					break
				}
			}
		}
		sols = next
	}
	if len(c.name) > 0 {
		var next []bindings
		for _, s := range sols {
			env.matchFields(c.name, []engine.Value{engine.InstanceName(ins.name)}, s, &next)
		}
		sols = next
	}
	for _, sp := range c.slots {
		v, ok := ins.slots[sp.name]
		if !ok {
			return nil
		}
		vals := []engine.Value{v}
		if fields, ok := v.Fields(); ok {
			vals = fields
		}
		var next []bindings
		for _, s := range sols {
			env.matchFields(sp.fields, vals, s, &next)
		}
		sols = next
	}
	return sols
}

// matchFields matches fields against vals, backtracking over the span
// taken by each multifield constraint.
func (env *environment) matchFields(fields []*field, vals []engine.Value, b bindings, out *[]bindings) {
	if len(fields) == 0 {
		if len(vals) == 0 {
			*out = append(*out, b)
		}
		return
	}
	f := fields[0]
	if !f.multi {
		if len(vals) == 0 {
			return
		}
		nb := b.clone()
		if env.fieldMatches(f, vals[0], nb) {
			env.matchFields(fields[1:], vals[1:], nb, out)
		}
		return
	}
	for n := 0; n <= len(vals); n++ {
		nb := b.clone()
		if env.fieldMatches(f, engine.Multifield(vals[:n]...), nb) {
			env.matchFields(fields[1:], vals[n:], nb, out)
		}
	}
}

func (env *environment) fieldMatches(f *field, v engine.Value, b bindings) bool {
	for _, group := range f.and {
		ok := false
		for _, t := range group {
			if env.termMatches(t, v, b, len(group) == 1) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func (env *environment) termMatches(t term, v engine.Value, b bindings, canBind bool) bool {
	var r bool
	switch t.kind {
	case termWild:
		r = true
	case termConst:
		r = v.Equal(t.val)
	case termVar:
		bound, ok := b[t.name]
		if !ok {
			if t.negated || !canBind {
				return false
			}
			b[t.name] = v
			return true
		}
		r = v.Equal(bound)
	case termPred:
		res := env.eval(t.expr, newScope(b))
		r = !env.evalError && !isFalse(res)
	case termReturn:
		res := env.eval(t.expr, newScope(b))
		r = !env.evalError && v.Equal(res)
	}
	return r != t.negated
}

type activation struct {
	rule     *rule
	vars     bindings
	basis    []basisRef
	key      string
	seq      int64
	random   uint64
	salience int
}

func (a *activation) basisString() string {
	labels := make([]string, len(a.basis))
	for i, r := range a.basis {
		labels[i] = r.label
	}
	return strings.Join(labels, ",")
}

// agenda tracks which activations have been seen and fired. Matches are
// recomputed on demand; an activation keeps its place while its basis
// stays intact and is forgotten as soon as the basis changes.
type agenda struct {
	seen  map[string]*seen
	fired map[string]bool
	seq   int64
}

// seen is the bookkeeping kept for a live activation.
type seen struct {
	seq      int64
	random   uint64
	salience int
	scored   bool // salience evaluated for when-activated mode
}

func (a *agenda) init() {
	a.seen = make(map[string]*seen)
	a.fired = make(map[string]bool)
}

func (a *agenda) clear() {
	a.init()
}

func (env *environment) refresh() []*activation {
	a := &env.agenda
	live := make(map[string]bool)
	var acts []*activation
	for _, c := range env.order {
		if c.kind != "defrule" {
			continue
		}
		r := env.rules[c.name]
		if r == nil {
			continue
		}
		for _, p := range env.matchCEs(r.lhs, partial{vars: bindings{}}) {
			key := activationKey(r.name, p.basis)
			live[key] = true
			if a.fired[key] {
				continue
			}
			s := a.seen[key]
			if s == nil {
				a.seq++
				s = newSeen(a.seq)
				a.seen[key] = s
			}
			acts = append(acts, &activation{
				rule:     r,
				vars:     p.vars,
				basis:    p.basis,
				key:      key,
				seq:      s.seq,
				random:   s.random,
				salience: env.salienceOf(r, s),
			})
		}
	}
	for k := range a.seen {
		if !live[k] {
			delete(a.seen, k)
		}
	}
	for k := range a.fired {
		if !live[k] {
			delete(a.fired, k)
		}
	}
	sort.SliceStable(acts, func(i, j int) bool { return env.before(acts[i], acts[j]) })
	return acts
}

func activationKey(rule string, basis []basisRef) string {
	var b strings.Builder
	b.WriteString(rule)
	for _, r := range basis {
		fmt.Fprintf(&b, "|%d.%d", r.ptr, r.stamp)
	}
	return b.String()
}

// run fires activations from the module on top of the focus stack,
// popping modules whose agenda is empty, until the stack empties, the
// limit is reached, halt is called or an action fails. A negative limit
// means no limit. An empty focus stack starts with MAIN.
func (env *environment) run(limit int64) int64 {
	if env.running {
		return 0
	}
	env.running = true
	env.halted = false
	defer func() {
		env.running = false
		env.halted = false
	}()

	if len(env.focus) == 0 {
		env.focus = []string{mainModule}
	}
	var fired int64
	for limit < 0 || fired < limit {
		acts := env.refresh()
		if env.evalError {
			break
		}
		mod := env.topFocus()
		if mod == "" {
			break
		}
		env.current = mod
		i := slices.IndexFunc(acts, func(a *activation) bool { return a.rule.module == mod })
		if i < 0 {
			env.popFocus()
			continue
		}
		act := acts[i]
		env.agenda.fired[act.key] = true
		fired++

		env.evalBody(act.rule.rhs, newScope(act.vars.clone()))
		env.returning = false
		env.breaking = false
		if env.evalError {
			env.diagnostic("PRCCODE4", "Execution halted during the actions of defrule %s.", act.rule.name)
			break
		}
		if env.halted {
			break
		}
	}
	return fired
}
