package sim

import (
	"github.com/wippyai/clips-runtime/engine"
)

// Build defines one construct.
func (e *Engine) Build(id engine.Env, text string) engine.BuildError {
	env := e.env(id)
	if env == nil {
		return engine.BuildCouldNotBuildError
	}
	return env.build(text)
}

// Eval evaluates one expression.
func (e *Engine) Eval(id engine.Env, text string) (engine.Value, engine.EvalError) {
	env := e.env(id)
	if env == nil {
		return symFalse, engine.EvalProcessingError
	}
	env.evalError = false
	return env.evalString(text)
}

func (e *Engine) Load(id engine.Env, path string) engine.LoadError {
	env := e.env(id)
	if env == nil {
		return engine.LoadOpenFileError
	}
	return env.load(path)
}

func (e *Engine) Bload(id engine.Env, path string) bool {
	env := e.env(id)
	return env != nil && env.bload(path)
}

func (e *Engine) Save(id engine.Env, path string) bool {
	env := e.env(id)
	return env != nil && env.save(path)
}

func (e *Engine) Bsave(id engine.Env, path string) bool {
	env := e.env(id)
	return env != nil && env.bsave(path)
}

func (e *Engine) BatchStar(id engine.Env, path string) bool {
	env := e.env(id)
	return env != nil && env.batchStar(path)
}

func (e *Engine) Reset(id engine.Env) {
	if env := e.env(id); env != nil && !env.running {
		env.reset()
	}
}

// Clear removes all constructs. It fails while rules are executing.
func (e *Engine) Clear(id engine.Env) bool {
	env := e.env(id)
	if env == nil || env.running {
		return false
	}
	env.clear()
	return true
}

// Run fires up to limit rules; a negative limit runs to completion.
func (e *Engine) Run(id engine.Env, limit int64) int64 {
	env := e.env(id)
	if env == nil {
		return 0
	}
	if !env.running {
		env.evalError = false
	}
	return env.run(limit)
}

// AddUDF registers a host function. Registering an existing name fails.
func (e *Engine) AddUDF(id engine.Env, name string, minArgs, maxArgs int, fn engine.UDF) bool {
	env := e.env(id)
	if env == nil || fn == nil {
		return false
	}
	if _, ok := env.udfs[name]; ok {
		return false
	}
	if _, ok := builtins[name]; ok {
		return false
	}
	if _, ok := specialForms[name]; ok {
		return false
	}
	env.udfs[name] = &udf{fn: fn, name: name, minArgs: minArgs, maxArgs: maxArgs}
	return true
}

// FunctionCall invokes any callable by name with already-built arguments.
func (e *Engine) FunctionCall(id engine.Env, name string, args []engine.Value) (engine.Value, engine.FunctionCallError) {
	env := e.env(id)
	if env == nil {
		return symFalse, engine.CallNullPointerError
	}
	_, isSpecial := specialForms[name]
	if isSpecial {
		return symFalse, engine.CallInvalidFunctionError
	}
	if !env.knownFunction(name) {
		return symFalse, engine.CallFunctionNotFoundError
	}
	env.evalError = false
	v := env.apply(name, args)
	env.returning = false
	env.breaking = false
	if env.evalError {
		return v, engine.CallProcessingError
	}
	return v, engine.CallNoError
}

func (e *Engine) SetErrorValue(id engine.Env, v engine.Value) {
	if env := e.env(id); env != nil {
		env.errorValue = v
	}
}

func (e *Engine) GetErrorValue(id engine.Env) engine.Value {
	if env := e.env(id); env != nil {
		return env.errorValue
	}
	return symFalse
}

func (e *Engine) ClearErrorValue(id engine.Env) {
	if env := e.env(id); env != nil {
		env.errorValue = symFalse
	}
}

func (e *Engine) SetEvaluationError(id engine.Env, on bool) {
	if env := e.env(id); env != nil {
		env.evalError = on
	}
}

func (e *Engine) GetEvaluationError(id engine.Env) bool {
	env := e.env(id)
	return env != nil && env.evalError
}

func (e *Engine) AssertString(id engine.Env, text string) engine.Ptr {
	env := e.env(id)
	if env == nil {
		return 0
	}
	env.evalError = false
	if f := env.assertString(text); f != nil {
		return f.ptr
	}
	return 0
}

func (e *Engine) Retract(id engine.Env, p engine.Ptr) engine.RetractError {
	env := e.env(id)
	if env == nil {
		return engine.RetractNullPointerError
	}
	f := env.factAt(p)
	if f == nil {
		return engine.RetractNullPointerError
	}
	return env.retract(f)
}

func (e *Engine) RetainFact(id engine.Env, p engine.Ptr) {
	if env := e.env(id); env != nil {
		if f := env.factAt(p); f != nil {
			f.refs++
		}
	}
}

func (e *Engine) ReleaseFact(id engine.Env, p engine.Ptr) {
	if env := e.env(id); env != nil {
		if f := env.factAt(p); f != nil {
			env.releaseFact(f)
		}
	}
}

// FactIndex returns -1 for a retracted fact.
func (e *Engine) FactIndex(id engine.Env, p engine.Ptr) int64 {
	env := e.env(id)
	if env == nil {
		return -1
	}
	if f := env.factAt(p); f != nil && !f.retracted {
		return f.index
	}
	return -1
}

func (e *Engine) FactExistp(id engine.Env, p engine.Ptr) bool {
	env := e.env(id)
	if env == nil {
		return false
	}
	f := env.factAt(p)
	return f != nil && !f.retracted
}

func (e *Engine) FactTemplate(id engine.Env, p engine.Ptr) string {
	env := e.env(id)
	if env == nil {
		return ""
	}
	if f := env.factAt(p); f != nil {
		return f.tmpl.name
	}
	return ""
}

func (e *Engine) FactImplied(id engine.Env, p engine.Ptr) bool {
	env := e.env(id)
	if env == nil {
		return false
	}
	f := env.factAt(p)
	return f != nil && f.tmpl.implied
}

// GetFactSlot reads a slot. An empty slot name selects the implied
// multifield of an ordered fact.
func (e *Engine) GetFactSlot(id engine.Env, p engine.Ptr, slot string) (engine.Value, engine.GetSlotError) {
	env := e.env(id)
	if env == nil {
		return engine.Value{}, engine.GetSlotNullPointerError
	}
	f := env.factAt(p)
	if f == nil {
		return engine.Value{}, engine.GetSlotNullPointerError
	}
	if f.retracted {
		return engine.Value{}, engine.GetSlotInvalidTargetError
	}
	return f.get(slot)
}

func (e *Engine) FactSlotNames(id engine.Env, p engine.Ptr) []string {
	env := e.env(id)
	if env == nil {
		return nil
	}
	f := env.factAt(p)
	if f == nil || f.tmpl.implied {
		return nil
	}
	return slotNames(f.tmpl.slots)
}

func slotNames(defs []*slotDef) []string {
	out := make([]string, len(defs))
	for i, s := range defs {
		out[i] = s.name
	}
	return out
}

func (e *Engine) Facts(id engine.Env) []engine.Ptr {
	env := e.env(id)
	if env == nil {
		return nil
	}
	out := make([]engine.Ptr, len(env.facts))
	for i, f := range env.facts {
		out[i] = f.ptr
	}
	return out
}

func (e *Engine) FactPPForm(id engine.Env, p engine.Ptr) string {
	env := e.env(id)
	if env == nil {
		return ""
	}
	if f := env.factAt(p); f != nil {
		return env.ppFact(f)
	}
	return ""
}

func (e *Engine) CreateFactBuilder(id engine.Env, template string) engine.Ptr {
	env := e.env(id)
	if env == nil {
		return 0
	}
	return env.createFactBuilder(template)
}

func (e *Engine) FBPutSlot(id engine.Env, fb engine.Ptr, slot string, v engine.Value) engine.PutSlotError {
	env := e.env(id)
	if env == nil {
		return engine.PutSlotNullPointerError
	}
	return env.fbPutSlot(env.builderAt(fb), slot, v)
}

func (e *Engine) FBAssert(id engine.Env, fb engine.Ptr) engine.Ptr {
	env := e.env(id)
	if env == nil {
		return 0
	}
	env.evalError = false
	return env.fbAssert(env.builderAt(fb))
}

func (e *Engine) FBDispose(id engine.Env, fb engine.Ptr) {
	if env := e.env(id); env != nil && env.builderAt(fb) != nil {
		delete(env.objects, fb)
	}
}

func (e *Engine) FBError(id engine.Env) engine.FactBuilderError {
	if env := e.env(id); env != nil {
		return env.fbError
	}
	return engine.FBNullPointerError
}

// Templates lists explicitly defined templates in definition order.
func (e *Engine) Templates(id engine.Env) []string {
	env := e.env(id)
	if env == nil {
		return nil
	}
	var out []string
	for _, c := range env.order {
		if c.kind == "deftemplate" {
			out = append(out, c.name)
		}
	}
	return out
}

// TemplateSlotNames reports false for unknown templates. Implied
// templates have no named slots.
func (e *Engine) TemplateSlotNames(id engine.Env, name string) ([]string, bool) {
	env := e.env(id)
	if env == nil {
		return nil, false
	}
	t := env.templates[name]
	if t == nil {
		return nil, false
	}
	return slotNames(t.slots), true
}

func (e *Engine) MakeInstance(id engine.Env, text string) engine.Ptr {
	env := e.env(id)
	if env == nil {
		return 0
	}
	env.evalError = false
	if ins := env.makeInstanceString(text); ins != nil {
		return ins.ptr
	}
	return 0
}

func (e *Engine) FindInstance(id engine.Env, name string) engine.Ptr {
	env := e.env(id)
	if env == nil {
		return 0
	}
	if ins := env.findInstance(name); ins != nil {
		return ins.ptr
	}
	return 0
}

func (e *Engine) RetainInstance(id engine.Env, p engine.Ptr) {
	if env := e.env(id); env != nil {
		if ins := env.instanceAt(p); ins != nil {
			ins.refs++
		}
	}
}

func (e *Engine) ReleaseInstance(id engine.Env, p engine.Ptr) {
	if env := e.env(id); env != nil {
		if ins := env.instanceAt(p); ins != nil {
			env.releaseInstance(ins)
		}
	}
}

func (e *Engine) ValidInstanceAddress(id engine.Env, p engine.Ptr) bool {
	env := e.env(id)
	if env == nil {
		return false
	}
	ins := env.instanceAt(p)
	return ins != nil && !ins.deleted
}

func (e *Engine) InstanceName(id engine.Env, p engine.Ptr) string {
	env := e.env(id)
	if env == nil {
		return ""
	}
	if ins := env.instanceAt(p); ins != nil {
		return ins.name
	}
	return ""
}

func (e *Engine) InstanceClass(id engine.Env, p engine.Ptr) string {
	env := e.env(id)
	if env == nil {
		return ""
	}
	if ins := env.instanceAt(p); ins != nil {
		return ins.class.name
	}
	return ""
}

func (e *Engine) DirectGetSlot(id engine.Env, p engine.Ptr, slot string) (engine.Value, engine.GetSlotError) {
	env := e.env(id)
	if env == nil {
		return engine.Value{}, engine.GetSlotNullPointerError
	}
	ins := env.instanceAt(p)
	if ins == nil {
		return engine.Value{}, engine.GetSlotNullPointerError
	}
	if ins.deleted {
		return engine.Value{}, engine.GetSlotInvalidTargetError
	}
	v, ok := ins.slots[slot]
	if !ok {
		return engine.Value{}, engine.GetSlotNotFoundError
	}
	return v, engine.GetSlotNoError
}

func (e *Engine) DirectPutSlot(id engine.Env, p engine.Ptr, slot string, v engine.Value) engine.PutSlotError {
	env := e.env(id)
	if env == nil {
		return engine.PutSlotNullPointerError
	}
	ins := env.instanceAt(p)
	if ins == nil {
		return engine.PutSlotNullPointerError
	}
	if ins.deleted {
		return engine.PutSlotInvalidTargetError
	}
	return env.putSlot(ins, slot, v)
}

func (e *Engine) UnmakeInstance(id engine.Env, p engine.Ptr) bool {
	env := e.env(id)
	if env == nil {
		return false
	}
	env.evalError = false
	return env.unmake(env.instanceAt(p))
}

// Send parses args as a whitespace separated argument list and sends
// message to the instance.
func (e *Engine) Send(id engine.Env, p engine.Ptr, message, args string) engine.Value {
	env := e.env(id)
	if env == nil {
		return symFalse
	}
	env.evalError = false
	forms, err := parse(args)
	if err != nil {
		env.reportParseError(err)
		env.evalError = true
		return symFalse
	}
	sc := newScope(nil)
	vals, ok := env.evalArgs(forms, sc)
	if !ok {
		return symFalse
	}
	ins := env.instanceAt(p)
	if ins == nil || ins.deleted {
		return env.fail("MSGPASS2", "No such instance in function send.")
	}
	v := env.send(ins, message, vals)
	env.returning = false
	env.breaking = false
	return v
}

func (e *Engine) Instances(id engine.Env) []engine.Ptr {
	env := e.env(id)
	if env == nil {
		return nil
	}
	out := make([]engine.Ptr, len(env.instances))
	for i, ins := range env.instances {
		out[i] = ins.ptr
	}
	return out
}

func (e *Engine) InstancePPForm(id engine.Env, p engine.Ptr) string {
	env := e.env(id)
	if env == nil {
		return ""
	}
	if ins := env.instanceAt(p); ins != nil {
		return env.ppInstance(ins)
	}
	return ""
}

// AddRouter registers a router. Names must be unique per environment.
func (e *Engine) AddRouter(id engine.Env, name string, priority int, h engine.RouterHandler) bool {
	env := e.env(id)
	if env == nil || h == nil {
		return false
	}
	if i, _ := env.findRouter(name); i >= 0 {
		return false
	}
	env.routerSeq++
	env.routers = append(env.routers, &routerEntry{
		handler:  h,
		name:     name,
		priority: priority,
		seq:      env.routerSeq,
		active:   true,
	})
	return true
}

func (e *Engine) DeleteRouter(id engine.Env, name string) bool {
	env := e.env(id)
	if env == nil {
		return false
	}
	i, _ := env.findRouter(name)
	if i < 0 {
		return false
	}
	env.routers = append(env.routers[:i], env.routers[i+1:]...)
	return true
}

func (e *Engine) ActivateRouter(id engine.Env, name string) bool {
	return e.setRouterActive(id, name, true)
}

func (e *Engine) DeactivateRouter(id engine.Env, name string) bool {
	return e.setRouterActive(id, name, false)
}

func (e *Engine) setRouterActive(id engine.Env, name string, active bool) bool {
	env := e.env(id)
	if env == nil {
		return false
	}
	_, r := env.findRouter(name)
	if r == nil {
		return false
	}
	r.active = active
	return true
}

func (e *Engine) WriteString(id engine.Env, name, text string) {
	if env := e.env(id); env != nil {
		env.writeString(name, text)
	}
}

// WriteValue prints v in its printed representation, strings quoted.
func (e *Engine) WriteValue(id engine.Env, name string, v engine.Value) {
	if env := e.env(id); env != nil {
		env.writeString(name, env.printForm(v, true))
	}
}

func (e *Engine) ReadRouter(id engine.Env, name string) int {
	if env := e.env(id); env != nil {
		return env.readChar(name)
	}
	return -1
}

func (e *Engine) UnreadRouter(id engine.Env, name string, ch int) int {
	if env := e.env(id); env != nil {
		return env.unreadChar(name, ch)
	}
	return -1
}

func (e *Engine) Rules(id engine.Env) []string {
	env := e.env(id)
	if env == nil {
		return nil
	}
	var out []string
	for _, c := range env.order {
		if c.kind == "defrule" {
			out = append(out, c.name)
		}
	}
	return out
}

// Activations returns the current module's agenda in firing order.
func (e *Engine) Activations(id engine.Env) []engine.Activation {
	env := e.env(id)
	if env == nil {
		return nil
	}
	var out []engine.Activation
	for _, a := range env.refresh() {
		if a.rule.module != env.current {
			continue
		}
		out = append(out, engine.Activation{Rule: a.rule.name, Salience: a.salience, Basis: a.basisString()})
	}
	return out
}

func (e *Engine) RefreshAgenda(id engine.Env) {
	if env := e.env(id); env != nil {
		env.refreshAgenda()
	}
}

func (e *Engine) ClearAgenda(id engine.Env) {
	if env := e.env(id); env != nil {
		env.clearAgenda()
	}
}

func (e *Engine) GetStrategy(id engine.Env) engine.Strategy {
	if env := e.env(id); env != nil {
		return env.strategy
	}
	return engine.DepthStrategy
}

func (e *Engine) SetStrategy(id engine.Env, s engine.Strategy) engine.Strategy {
	env := e.env(id)
	if env == nil {
		return engine.DepthStrategy
	}
	old := env.strategy
	if s.Valid() {
		env.strategy = s
	}
	return old
}

func (e *Engine) GetSalienceEvaluation(id engine.Env) engine.SalienceEvaluation {
	if env := e.env(id); env != nil {
		return env.salienceMode
	}
	return engine.WhenDefined
}

func (e *Engine) SetSalienceEvaluation(id engine.Env, mode engine.SalienceEvaluation) engine.SalienceEvaluation {
	env := e.env(id)
	if env == nil {
		return engine.WhenDefined
	}
	old := env.salienceMode
	if mode.Valid() {
		env.salienceMode = mode
	}
	return old
}

// Undefine fails for unknown constructs, constructs still in use and
// while rules are executing.
func (e *Engine) Undefine(id engine.Env, kind engine.ConstructKind, name string) bool {
	env := e.env(id)
	return env != nil && !env.running && env.undefine(kind, name)
}

// Modules lists modules in definition order, MAIN first.
func (e *Engine) Modules(id engine.Env) []string {
	env := e.env(id)
	if env == nil {
		return nil
	}
	out := make([]string, len(env.modules))
	for i, m := range env.modules {
		out[i] = m.name
	}
	return out
}

func (e *Engine) CurrentModule(id engine.Env) string {
	if env := e.env(id); env != nil {
		return env.current
	}
	return ""
}

func (e *Engine) SetCurrentModule(id engine.Env, name string) bool {
	env := e.env(id)
	return env != nil && env.setCurrentModule(name)
}

func (e *Engine) Focus(id engine.Env, name string) bool {
	env := e.env(id)
	return env != nil && env.pushFocus(name)
}

func (e *Engine) GetFocus(id engine.Env) string {
	if env := e.env(id); env != nil {
		return env.topFocus()
	}
	return ""
}

func (e *Engine) ClearFocusStack(id engine.Env) {
	if env := e.env(id); env != nil {
		env.focus = nil
	}
}

func (e *Engine) GetDefglobalValue(id engine.Env, name string) (engine.Value, bool) {
	env := e.env(id)
	if env == nil {
		return engine.Value{}, false
	}
	g := env.globals[name]
	if g == nil {
		return engine.Value{}, false
	}
	return g.value, true
}

func (e *Engine) SetDefglobalValue(id engine.Env, name string, v engine.Value) bool {
	env := e.env(id)
	if env == nil {
		return false
	}
	g := env.globals[name]
	if g == nil {
		return false
	}
	g.value = v
	return true
}

func (e *Engine) LoadFacts(id engine.Env, path string) bool {
	env := e.env(id)
	return env != nil && env.loadFacts(path)
}

func (e *Engine) LoadFactsFromString(id engine.Env, text string) bool {
	env := e.env(id)
	return env != nil && env.loadFactsText(text)
}

// SaveFacts writes every fact. Only rules are scoped by module here, so
// both scopes cover the same facts.
func (e *Engine) SaveFacts(id engine.Env, path string, _ engine.SaveScope) int64 {
	if env := e.env(id); env != nil {
		return env.saveFacts(path)
	}
	return -1
}

func (e *Engine) LoadInstances(id engine.Env, path string) int64 {
	if env := e.env(id); env != nil {
		return env.loadInstances(path, false)
	}
	return -1
}

func (e *Engine) LoadInstancesFromString(id engine.Env, text string) int64 {
	if env := e.env(id); env != nil {
		return env.loadInstancesText(text, false)
	}
	return -1
}

func (e *Engine) RestoreInstances(id engine.Env, path string) int64 {
	if env := e.env(id); env != nil {
		return env.loadInstances(path, true)
	}
	return -1
}

func (e *Engine) RestoreInstancesFromString(id engine.Env, text string) int64 {
	if env := e.env(id); env != nil {
		return env.loadInstancesText(text, true)
	}
	return -1
}

func (e *Engine) SaveInstances(id engine.Env, path string, _ engine.SaveScope) int64 {
	if env := e.env(id); env != nil {
		return env.saveInstances(path)
	}
	return -1
}

func (e *Engine) BinaryLoadInstances(id engine.Env, path string) int64 {
	if env := e.env(id); env != nil {
		return env.bloadInstances(path)
	}
	return -1
}

func (e *Engine) BinarySaveInstances(id engine.Env, path string, _ engine.SaveScope) int64 {
	if env := e.env(id); env != nil {
		return env.bsaveInstances(path)
	}
	return -1
}

func (e *Engine) Classes(id engine.Env) []string {
	if env := e.env(id); env != nil {
		return env.classNames()
	}
	return nil
}

func (e *Engine) ClassAbstract(id engine.Env, name string) (bool, bool) {
	env := e.env(id)
	if env == nil {
		return false, false
	}
	c := env.classes[name]
	if c == nil {
		return false, false
	}
	return c.abstract, true
}

func (e *Engine) ClassSlots(id engine.Env, name string, inherit bool) ([]string, bool) {
	env := e.env(id)
	if env == nil {
		return nil, false
	}
	c := env.classes[name]
	if c == nil {
		return nil, false
	}
	return c.slotNames(inherit), true
}

func (e *Engine) ClassSuperclasses(id engine.Env, name string, inherit bool) ([]string, bool) {
	env := e.env(id)
	if env == nil {
		return nil, false
	}
	c := env.classes[name]
	if c == nil {
		return nil, false
	}
	return c.superclasses(inherit), true
}
