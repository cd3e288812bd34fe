package sim

import (
	"io"
	"sort"

	"github.com/wippyai/clips-runtime/engine"
)

type objKind uint8

const (
	objFact objKind = iota + 1
	objInstance
	objFactBuilder
)

// object is anything addressable through an engine.Ptr. Pointers are
// never reused within an engine, so a stale pointer can always be
// recognised.
type object struct {
	fact    *fact
	ins     *instance
	builder *factBuilder
	kind    objKind
}

type slotDef struct {
	name     string
	defNode  *node // default expression, nil for the type default
	types    []string
	multi    bool
	required bool // (default ?NONE)
}

type template struct {
	name    string
	slots   []*slotDef
	implied bool
	source  string
}

func (t *template) slot(name string) *slotDef {
	for _, s := range t.slots {
		if s.name == name {
			return s
		}
	}
	return nil
}

type fact struct {
	tmpl      *template
	slots     map[string]engine.Value // template facts
	ordered   []engine.Value          // implied facts
	ptr       engine.Ptr
	index     int64
	refs      int
	retracted bool
}

type factBuilder struct {
	tmpl  *template
	slots map[string]engine.Value
	ptr   engine.Ptr
}

type class struct {
	name     string
	super    *class
	slots    []*slotDef
	handlers map[string]*deffunction
	abstract bool
	source   string
}

// allSlots returns inherited slots first, overridden by subclasses.
func (c *class) allSlots() []*slotDef {
	var chain []*class
	for k := c; k != nil; k = k.super {
		chain = append(chain, k)
	}
	var out []*slotDef
	seen := map[string]int{}
	for i := len(chain) - 1; i >= 0; i-- {
		for _, s := range chain[i].slots {
			if at, ok := seen[s.name]; ok {
				out[at] = s
				continue
			}
			seen[s.name] = len(out)
			out = append(out, s)
		}
	}
	return out
}

func (c *class) isA(name string) bool {
	for k := c; k != nil; k = k.super {
		if k.name == name {
			return true
		}
	}
	return false
}

type instance struct {
	class   *class
	name    string
	slots   map[string]engine.Value
	ptr     engine.Ptr
	refs    int
	stamp   int64 // bumped on every slot change, drives rematching
	deleted bool
}

type deffunction struct {
	name   string
	params []string
	rest   string // wildcard parameter, "" when none
	body   []*node
	source string
}

type global struct {
	name   string
	init   *node
	value  engine.Value
	source string
}

type rule struct {
	name     string
	module   string
	salience int
	salExpr  *node // (declare (salience ...)) expression, nil when absent
	lhs      []*ce
	rhs      []*node
	source   string
}

type module struct {
	name   string
	source string
}

type udf struct {
	fn      engine.UDF
	name    string
	minArgs int
	maxArgs int
}

type routerEntry struct {
	handler  engine.RouterHandler
	name     string
	priority int
	seq      int64
	active   bool
}

type deffacts struct {
	name   string
	facts  []*node
	source string
}

type construct struct {
	kind string
	name string
}

// environment holds the complete state of one engine instance. It is
// only touched by the goroutine currently driving that environment.
type environment struct {
	id engine.Env
	e  *Engine

	templates map[string]*template
	classes   map[string]*class
	functions map[string]*deffunction
	globals   map[string]*global
	rules     map[string]*rule
	deffacts  map[string]*deffacts
	order     []construct // definition order for save and listing
	modules   []*module
	current   string
	focus     []string // top of stack is last
	udfs      map[string]*udf
	routers   []*routerEntry
	routerSeq int64

	objects   map[engine.Ptr]*object
	facts     []*fact // asserted, in index order
	instances []*instance
	nextIndex int64

	agenda       agenda
	strategy     engine.Strategy
	salienceMode engine.SalienceEvaluation
	halted       bool
	running      bool
	restoring    bool // instances are created without init handlers

	errorValue engine.Value
	fbError    engine.FactBuilderError
	evalError  bool
	returning  bool
	breaking   bool
	gensym     int64
	stdout     io.Writer
	stderr     io.Writer
	stdin      io.Reader
}

func newEnvironment(e *Engine, id engine.Env) *environment {
	env := &environment{
		id:         id,
		e:          e,
		templates:  make(map[string]*template),
		classes:    make(map[string]*class),
		functions:  make(map[string]*deffunction),
		globals:    make(map[string]*global),
		rules:      make(map[string]*rule),
		deffacts:   make(map[string]*deffacts),
		udfs:       make(map[string]*udf),
		objects:    make(map[engine.Ptr]*object),
		nextIndex:  1,
		errorValue: engine.Symbol("FALSE"),
		stdout:     e.opts.stdout,
		stderr:     e.opts.stderr,
		stdin:      e.opts.stdin,
	}
	env.agenda.init()
	env.installBaseClasses()
	env.installMainModule()
	env.routers = append(env.routers, &routerEntry{
		handler:  &terminal{env: env},
		name:     terminalRouter,
		priority: -10,
		active:   true,
	})
	return env
}

func (env *environment) installBaseClasses() {
	root := &class{name: "OBJECT", abstract: true}
	user := &class{name: "USER", super: root, abstract: true}
	env.classes[root.name] = root
	env.classes[user.name] = user
}

func (env *environment) installMainModule() {
	env.modules = []*module{{name: mainModule}}
	env.current = mainModule
	env.focus = nil
}

func (env *environment) alloc(o *object) engine.Ptr {
	env.e.mu.Lock()
	env.e.nextPtr++
	p := env.e.nextPtr
	env.e.mu.Unlock()
	env.objects[p] = o
	return p
}

func (env *environment) factAt(p engine.Ptr) *fact {
	if o := env.objects[p]; o != nil && o.kind == objFact {
		return o.fact
	}
	return nil
}

func (env *environment) instanceAt(p engine.Ptr) *instance {
	if o := env.objects[p]; o != nil && o.kind == objInstance {
		return o.ins
	}
	return nil
}

func (env *environment) builderAt(p engine.Ptr) *factBuilder {
	if o := env.objects[p]; o != nil && o.kind == objFactBuilder {
		return o.builder
	}
	return nil
}

func (env *environment) factByIndex(idx int64) *fact {
	i := sort.Search(len(env.facts), func(i int) bool { return env.facts[i].index >= idx })
	if i < len(env.facts) && env.facts[i].index == idx {
		return env.facts[i]
	}
	return nil
}

func (env *environment) findInstance(name string) *instance {
	for _, ins := range env.instances {
		if ins.name == name {
			return ins
		}
	}
	return nil
}

func (env *environment) addConstruct(kind, name string) {
	for _, c := range env.order {
		if c.kind == kind && c.name == name {
			return
		}
	}
	env.order = append(env.order, construct{kind: kind, name: name})
}

func (env *environment) removeConstruct(kind, name string) {
	for i, c := range env.order {
		if c.kind == kind && c.name == name {
			env.order = append(env.order[:i], env.order[i+1:]...)
			return
		}
	}
}
