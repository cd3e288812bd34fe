package sim

import (
	"fmt"

	"github.com/wippyai/clips-runtime/engine"
)

// constructError is a definition failure carrying its diagnostic id.
type constructError struct {
	id  string
	msg string
}

func (e *constructError) Error() string { return e.msg }

type constructParser func(env *environment, n *node) error

var constructParsers map[string]constructParser

func init() {
	constructParsers = map[string]constructParser{
		"deftemplate":        (*environment).defineTemplate,
		"deffacts":           (*environment).defineFacts,
		"deffunction":        (*environment).defineFunction,
		"defglobal":          (*environment).defineGlobal,
		"defrule":            (*environment).defineRule,
		"defclass":           (*environment).defineClass,
		"defmessage-handler": (*environment).defineHandler,
		"defmodule":          (*environment).defineModule,
	}
}

func isConstruct(n *node) bool {
	_, ok := constructParsers[n.head()]
	return ok
}

// build defines exactly one construct from text.
func (env *environment) build(text string) engine.BuildError {
	forms, err := parse(text)
	if err != nil {
		env.reportParseError(err)
		return engine.BuildParsingError
	}
	if len(forms) != 1 {
		env.diagnostic("CSTRCPSR1", "Expected the beginning of a construct.")
		return engine.BuildParsingError
	}
	n := forms[0]
	if !isConstruct(n) {
		env.diagnostic("CSTRCPSR1", "Expected the beginning of a construct.")
		return engine.BuildConstructNotFoundError
	}
	if err := env.define(n); err != nil {
		env.reportParseError(err)
		return engine.BuildParsingError
	}
	return engine.BuildNoError
}

func (env *environment) define(n *node) error {
	return constructParsers[n.head()](env, n)
}

// constructName reads the name and skips an optional comment string,
// returning the index of the first body element.
func constructName(n *node) (string, int, error) {
	if len(n.list) < 2 {
		return "", 0, &syntaxError{"missing construct name", n.tok.line}
	}
	name, ok := n.list[1].symbol()
	if !ok {
		return "", 0, &syntaxError{"construct name must be a symbol", n.tok.line}
	}
	i := 2
	if i < len(n.list) && n.list[i].atom(tokString) {
		i++
	}
	return name, i, nil
}

func (env *environment) templateInUse(t *template) bool {
	for _, f := range env.facts {
		if f.tmpl == t {
			return true
		}
	}
	for _, r := range env.rules {
		if usesTemplate(r.lhs, t) {
			return true
		}
	}
	return false
}

func usesTemplate(ces []*ce, t *template) bool {
	for _, c := range ces {
		if c.kind == cePattern && c.relation == t.name {
			return true
		}
		if usesTemplate(c.sub, t) {
			return true
		}
	}
	return false
}

func (env *environment) defineTemplate(n *node) error {
	name, i, err := constructName(n)
	if err != nil {
		return err
	}
	if old := env.templates[name]; old != nil && env.templateInUse(old) {
		return &constructError{"CSTRCPSR4", fmt.Sprintf("Cannot redefine deftemplate %s while it is in use.", name)}
	}
	t := &template{name: name, source: n.String()}
	for _, s := range n.list[i:] {
		def, err := env.parseSlot(s)
		if err != nil {
			return err
		}
		if t.slot(def.name) != nil {
			return &syntaxError{"duplicate slot " + def.name, s.tok.line}
		}
		t.slots = append(t.slots, def)
	}
	env.templates[name] = t
	env.addConstruct("deftemplate", name)
	return nil
}

func symNode(s string) *node {
	return &node{tok: token{kind: tokSymbol, str: s, text: s}}
}

// parseSlot reads (slot name attr...) or (multislot name attr...).
func (env *environment) parseSlot(s *node) (*slotDef, error) {
	kind := s.head()
	if (kind != "slot" && kind != "multislot" && kind != "field" && kind != "multifield") || len(s.list) < 2 {
		return nil, &syntaxError{"expected a slot definition, found " + s.String(), s.tok.line}
	}
	name, ok := s.list[1].symbol()
	if !ok {
		return nil, &syntaxError{"slot name must be a symbol", s.tok.line}
	}
	def := &slotDef{name: name, multi: kind == "multislot" || kind == "multifield"}
	for _, attr := range s.list[2:] {
		switch attr.head() {
		case "default", "default-dynamic":
			vals := attr.list[1:]
			if len(vals) == 1 && vals[0].atom(tokSFVar) {
				switch vals[0].tok.str {
				case "NONE":
					def.required = true
					continue
				case "DERIVE":
					continue
				}
			}
			for _, v := range vals {
				if err := env.validate(v, ""); err != nil {
					return nil, err
				}
			}
			switch {
			case len(vals) == 0:
			case len(vals) == 1 && !def.multi:
				def.defNode = vals[0]
			default:
				def.defNode = &node{isList: true, list: append([]*node{symNode("create$")}, vals...)}
			}
		case "type":
			for _, t := range attr.list[1:] {
				name, ok := t.symbol()
				if !ok || (typeNames[name] == nil && name != "?VARIABLE") {
					return nil, &syntaxError{"invalid type " + t.String(), t.tok.line}
				}
				def.types = append(def.types, name)
			}
		case "":
			return nil, &syntaxError{"expected a slot attribute", attr.tok.line}
		}
	}
	return def, nil
}

func (env *environment) defineFacts(n *node) error {
	name, i, err := constructName(n)
	if err != nil {
		return err
	}
	facts := n.list[i:]
	if err := structural["assert"](env, facts, ""); err != nil {
		return err
	}
	for _, f := range facts {
		if !f.isList {
			return &syntaxError{"expected a fact in deffacts " + name, f.tok.line}
		}
	}
	env.deffacts[name] = &deffacts{name: name, facts: facts, source: n.String()}
	env.addConstruct("deffacts", name)
	return nil
}

func parseParams(n *node) ([]string, string, error) {
	if !n.isList {
		return nil, "", &syntaxError{"expected a parameter list", n.tok.line}
	}
	var params []string
	rest := ""
	for i, p := range n.list {
		switch {
		case p.atom(tokSFVar) && rest == "":
			params = append(params, p.tok.str)
		case p.atom(tokMFVar) && i == len(n.list)-1:
			rest = p.tok.str
		default:
			return nil, "", &syntaxError{"invalid parameter " + p.String(), p.tok.line}
		}
	}
	return params, rest, nil
}

func (env *environment) defineFunction(n *node) error {
	name, i, err := constructName(n)
	if err != nil {
		return err
	}
	if _, ok := builtins[name]; ok {
		return &constructError{"PRCCODE7", fmt.Sprintf("Deffunctions are not allowed to replace system functions like %s.", name)}
	}
	if _, ok := specialForms[name]; ok {
		return &constructError{"PRCCODE7", fmt.Sprintf("Deffunctions are not allowed to replace system functions like %s.", name)}
	}
	if i >= len(n.list) {
		return &syntaxError{"missing parameter list for deffunction " + name, n.tok.line}
	}
	params, rest, err := parseParams(n.list[i])
	if err != nil {
		return err
	}
	body := n.list[i+1:]
	for _, b := range body {
		if err := env.validate(b, name); err != nil {
			return err
		}
	}
	env.functions[name] = &deffunction{name: name, params: params, rest: rest, body: body, source: n.String()}
	env.addConstruct("deffunction", name)
	return nil
}

func (env *environment) defineGlobal(n *node) error {
	elems := n.list[1:]
	if len(elems) > 0 && elems[0].atom(tokSymbol) {
		elems = elems[1:] // module name
	}
	if len(elems) == 0 || len(elems)%3 != 0 {
		return &syntaxError{"expected ?*name* = expression", n.tok.line}
	}
	for i := 0; i < len(elems); i += 3 {
		g, eq, expr := elems[i], elems[i+1], elems[i+2]
		if !g.atom(tokGlobal) || !eq.isSymbol("=") {
			return &syntaxError{"expected ?*name* = expression", g.tok.line}
		}
		if err := env.validate(expr, ""); err != nil {
			return err
		}
		v := env.eval(expr, newScope(nil))
		if env.evalError {
			return &constructError{"GLOBLDEF1", "Unable to evaluate the initial value of ?*" + g.tok.str + "*."}
		}
		name := g.tok.str
		env.globals[name] = &global{
			name:   name,
			init:   expr,
			value:  v,
			source: fmt.Sprintf("(defglobal ?*%s* = %s)", name, expr.String()),
		}
		env.addConstruct("defglobal", name)
	}
	return nil
}

func (env *environment) defineRule(n *node) error {
	name, i, err := constructName(n)
	if err != nil {
		return err
	}
	r := &rule{name: name, module: env.current, source: n.String()}
	body := n.list[i:]
	if len(body) > 0 && body[0].head() == "declare" {
		for _, d := range body[0].list[1:] {
			if d.head() != "salience" || len(d.list) != 2 {
				continue
			}
			if err := env.validate(d.list[1], ""); err != nil {
				return err
			}
			v := env.eval(d.list[1], newScope(nil))
			sal, ok := v.Integer()
			if !ok || sal < -10000 || sal > 10000 {
				return &constructError{"PRNTUTIL8", "Salience must be an integer in the range -10000 to 10000."}
			}
			r.salience = int(sal)
			r.salExpr = d.list[1]
		}
		body = body[1:]
	}
	arrow := -1
	for j, b := range body {
		if b.isSymbol("=>") {
			arrow = j
			break
		}
	}
	if arrow < 0 {
		return &syntaxError{"missing => in defrule " + name, n.tok.line}
	}
	lhs, err := env.parseLHS(body[:arrow])
	if err != nil {
		return err
	}
	for _, a := range body[arrow+1:] {
		if err := env.validate(a, ""); err != nil {
			return err
		}
	}
	r.lhs = lhs
	r.rhs = body[arrow+1:]
	if _, exists := env.rules[name]; exists {
		env.forgetRule(name)
	}
	env.rules[name] = r
	env.addConstruct("defrule", name)
	return nil
}

func (env *environment) forgetRule(name string) {
	prefix := name + "|"
	for k := range env.agenda.seen {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(env.agenda.seen, k)
		}
	}
	for k := range env.agenda.fired {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			delete(env.agenda.fired, k)
		}
	}
}

// defineModule registers a module and makes it current. Import and
// export specifications are accepted and ignored.
func (env *environment) defineModule(n *node) error {
	name, _, err := constructName(n)
	if err != nil {
		return err
	}
	if m := env.module(name); m != nil {
		if name != mainModule {
			return &constructError{"MODULDEF1", fmt.Sprintf("Cannot redefine defmodule %s.", name)}
		}
		m.source = n.String()
	} else {
		env.modules = append(env.modules, &module{name: name, source: n.String()})
	}
	env.current = name
	env.addConstruct("defmodule", name)
	return nil
}

func (env *environment) defineClass(n *node) error {
	name, i, err := constructName(n)
	if err != nil {
		return err
	}
	if old := env.classes[name]; old != nil {
		if name == "OBJECT" || name == "USER" {
			return &constructError{"CLASSPSR1", "Cannot redefine a predefined system class."}
		}
		for _, ins := range env.instances {
			if ins.class.isA(name) {
				return &constructError{"CLASSPSR3", fmt.Sprintf("%s class cannot be redefined while outstanding references to it still exist.", name)}
			}
		}
	}
	c := &class{name: name, handlers: map[string]*deffunction{}, source: n.String()}
	for _, part := range n.list[i:] {
		switch part.head() {
		case "is-a":
			if len(part.list) < 2 {
				return &syntaxError{"is-a requires a superclass", part.tok.line}
			}
			sname, _ := part.list[1].symbol()
			super := env.classes[sname]
			if super == nil {
				return &constructError{"CLASSPSR2", fmt.Sprintf("Unable to find class %s.", sname)}
			}
			c.super = super
		case "role":
			if len(part.list) == 2 && part.list[1].isSymbol("abstract") {
				c.abstract = true
			}
		case "slot", "multislot", "single-slot":
			if part.head() == "single-slot" {
				part.list[0] = symNode("slot")
			}
			def, err := env.parseSlot(part)
			if err != nil {
				return err
			}
			c.slots = append(c.slots, def)
		case "pattern-match", "message-handler":
		default:
			return &syntaxError{"unexpected class attribute " + part.String(), part.tok.line}
		}
	}
	if c.super == nil {
		return &constructError{"CLASSPSR2", "Missing is-a specification for class " + name + "."}
	}
	if old := env.classes[name]; old != nil {
		c.handlers = old.handlers
	}
	env.classes[name] = c
	env.addConstruct("defclass", name)
	return nil
}

func (env *environment) defineHandler(n *node) error {
	if len(n.list) < 4 {
		return &syntaxError{"incomplete defmessage-handler", n.tok.line}
	}
	cname, _ := n.list[1].symbol()
	msg, ok := n.list[2].symbol()
	c := env.classes[cname]
	if c == nil {
		return &constructError{"MSGPSR1", fmt.Sprintf("A class must be defined before its message-handlers: %s.", cname)}
	}
	if !ok {
		return &syntaxError{"handler name must be a symbol", n.tok.line}
	}
	i := 3
	if n.list[i].atom(tokSymbol) {
		i++ // handler type
	}
	if i < len(n.list) && n.list[i].atom(tokString) {
		i++
	}
	if i >= len(n.list) {
		return &syntaxError{"missing parameter list", n.tok.line}
	}
	params, rest, err := parseParams(n.list[i])
	if err != nil {
		return err
	}
	body := n.list[i+1:]
	for _, b := range body {
		if err := env.validate(b, ""); err != nil {
			return err
		}
	}
	c.handlers[msg] = &deffunction{name: msg, params: params, rest: rest, body: body, source: n.String()}
	env.addConstruct("defmessage-handler", cname+" "+msg)
	return nil
}

// constructSource returns the saved text of a construct.
func (env *environment) constructSource(c construct) string {
	switch c.kind {
	case "defmodule":
		if m := env.module(c.name); m != nil {
			return m.source
		}
	case "deftemplate":
		if t := env.templates[c.name]; t != nil {
			return t.source
		}
	case "deffacts":
		if d := env.deffacts[c.name]; d != nil {
			return d.source
		}
	case "deffunction":
		if f := env.functions[c.name]; f != nil {
			return f.source
		}
	case "defglobal":
		if g := env.globals[c.name]; g != nil {
			return g.source
		}
	case "defrule":
		if r := env.rules[c.name]; r != nil {
			return r.source
		}
	case "defclass":
		if k := env.classes[c.name]; k != nil {
			return k.source
		}
	case "defmessage-handler":
		for _, k := range env.classes {
			for msg, h := range k.handlers {
				if k.name+" "+msg == c.name {
					return h.source
				}
			}
		}
	}
	return ""
}

// reset returns working memory to its initial state.
func (env *environment) reset() {
	for len(env.facts) > 0 {
		env.retract(env.facts[len(env.facts)-1])
	}
	for len(env.instances) > 0 {
		env.unmake(env.instances[len(env.instances)-1])
	}
	env.nextIndex = 1
	env.agenda.clear()
	env.halted = false
	env.current = mainModule
	env.focus = []string{mainModule}
	for _, c := range env.order {
		if c.kind != "defglobal" {
			continue
		}
		if g := env.globals[c.name]; g != nil {
			g.value = env.eval(g.init, newScope(nil))
		}
	}
	for _, c := range env.order {
		if c.kind != "deffacts" {
			continue
		}
		for _, f := range env.deffacts[c.name].facts {
			env.factFromNode(f, newScope(nil))
		}
	}
}

// clear removes every construct and all working memory. Routers and
// user functions survive.
func (env *environment) clear() {
	for len(env.facts) > 0 {
		env.retract(env.facts[len(env.facts)-1])
	}
	for _, ins := range env.instances {
		ins.deleted = true
		if ins.refs == 0 {
			delete(env.objects, ins.ptr)
		}
	}
	env.instances = nil
	for p, o := range env.objects {
		if o.kind == objFactBuilder {
			delete(env.objects, p)
		}
	}
	env.templates = make(map[string]*template)
	env.classes = make(map[string]*class)
	env.functions = make(map[string]*deffunction)
	env.globals = make(map[string]*global)
	env.rules = make(map[string]*rule)
	env.deffacts = make(map[string]*deffacts)
	env.order = nil
	env.nextIndex = 1
	env.agenda.clear()
	env.halted = false
	env.installBaseClasses()
	env.installMainModule()
}

// undefine removes one construct. Constructs still referenced by facts,
// instances, rules or subclasses stay defined.
func (env *environment) undefine(kind engine.ConstructKind, name string) bool {
	switch kind {
	case engine.DefruleKind:
		if env.rules[name] == nil {
			return false
		}
		env.forgetRule(name)
		delete(env.rules, name)
		env.removeConstruct("defrule", name)
	case engine.DeftemplateKind:
		t := env.templates[name]
		if t == nil {
			return false
		}
		if env.templateInUse(t) {
			env.diagnostic("CSTRCPSR4", "Cannot undefine deftemplate %s while it is in use.", name)
			return false
		}
		delete(env.templates, name)
		env.removeConstruct("deftemplate", name)
	case engine.DefclassKind:
		c := env.classes[name]
		if c == nil || c.source == "" {
			return false
		}
		if env.classInUse(c) {
			env.diagnostic("CLASSFUN2", "Unable to delete class %s while it is in use.", name)
			return false
		}
		for msg := range c.handlers {
			env.removeConstruct("defmessage-handler", name+" "+msg)
		}
		delete(env.classes, name)
		env.removeConstruct("defclass", name)
	case engine.DeffunctionKind:
		if env.functions[name] == nil {
			return false
		}
		delete(env.functions, name)
		env.removeConstruct("deffunction", name)
	case engine.DefglobalKind:
		if env.globals[name] == nil {
			return false
		}
		delete(env.globals, name)
		env.removeConstruct("defglobal", name)
	case engine.DeffactsKind:
		if env.deffacts[name] == nil {
			return false
		}
		delete(env.deffacts, name)
		env.removeConstruct("deffacts", name)
	default:
		return false
	}
	return true
}

func (env *environment) classInUse(c *class) bool {
	for _, ins := range env.instances {
		if ins.class.isA(c.name) {
			return true
		}
	}
	for _, k := range env.classes {
		if k.super == c {
			return true
		}
	}
	return false
}
