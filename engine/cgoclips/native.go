//go:build clips && cgo

package cgoclips

/*
#cgo LDFLAGS: -lclips -lm
#include "bridge.h"
*/
import "C"

import (
	"runtime/cgo"
	"strings"
	"sync"
	"unsafe"

	"github.com/wippyai/clips-runtime/engine"
)

// Native drives libclips environments created in this process.
type Native struct {
	mu   sync.Mutex
	envs map[engine.Env]*envState
}

type envState struct {
	udfs    []cgo.Handle
	routers map[string]cgo.Handle
}

// New returns the cgo backend.
func New() (engine.Native, error) {
	return &Native{envs: make(map[engine.Env]*envState)}, nil
}

var _ engine.Native = (*Native)(nil)

func cenv(e engine.Env) *C.Environment { return (*C.Environment)(unsafe.Pointer(uintptr(e))) }
func cfact(p engine.Ptr) *C.Fact       { return (*C.Fact)(unsafe.Pointer(uintptr(p))) }
func cins(p engine.Ptr) *C.Instance    { return (*C.Instance)(unsafe.Pointer(uintptr(p))) }
func cfb(p engine.Ptr) *C.FactBuilder  { return (*C.FactBuilder)(unsafe.Pointer(uintptr(p))) }

func goEnv(e *C.Environment) engine.Env { return engine.Env(uintptr(unsafe.Pointer(e))) }
func goPtr(p unsafe.Pointer) engine.Ptr { return engine.Ptr(uintptr(p)) }

func (n *Native) state(env engine.Env) *envState {
	n.mu.Lock()
	defer n.mu.Unlock()
	s, ok := n.envs[env]
	if !ok {
		s = &envState{routers: make(map[string]cgo.Handle)}
		n.envs[env] = s
	}
	return s
}

func (n *Native) CreateEnvironment() engine.Env {
	env := goEnv(C.CreateEnvironment())
	if env != 0 {
		n.state(env)
	}
	return env
}

func (n *Native) DestroyEnvironment(env engine.Env) bool {
	ok := bool(C.DestroyEnvironment(cenv(env)))
	n.mu.Lock()
	s := n.envs[env]
	delete(n.envs, env)
	n.mu.Unlock()
	if s != nil {
		for _, h := range s.udfs {
			h.Delete()
		}
		for _, h := range s.routers {
			h.Delete()
		}
	}
	return ok
}

func withCString[T any](s string, fn func(*C.char) T) T {
	cs := C.CString(s)
	defer C.free(unsafe.Pointer(cs))
	return fn(cs)
}

func (n *Native) Build(env engine.Env, construct string) engine.BuildError {
	return withCString(construct, func(cs *C.char) engine.BuildError {
		return engine.BuildError(C.Build(cenv(env), cs))
	})
}

func (n *Native) Eval(env engine.Env, expr string) (engine.Value, engine.EvalError) {
	var out C.CLIPSValue
	code := withCString(expr, func(cs *C.char) C.EvalError {
		return C.Eval(cenv(env), cs, &out)
	})
	return fromC(&out), engine.EvalError(code)
}

func (n *Native) Load(env engine.Env, path string) engine.LoadError {
	return withCString(path, func(cs *C.char) engine.LoadError {
		return engine.LoadError(C.Load(cenv(env), cs))
	})
}

func (n *Native) Bload(env engine.Env, path string) bool {
	return withCString(path, func(cs *C.char) bool { return bool(C.Bload(cenv(env), cs)) })
}

func (n *Native) Save(env engine.Env, path string) bool {
	return withCString(path, func(cs *C.char) bool { return bool(C.Save(cenv(env), cs)) })
}

func (n *Native) Bsave(env engine.Env, path string) bool {
	return withCString(path, func(cs *C.char) bool { return bool(C.Bsave(cenv(env), cs)) })
}

func (n *Native) BatchStar(env engine.Env, path string) bool {
	return withCString(path, func(cs *C.char) bool { return bool(C.BatchStar(cenv(env), cs)) })
}

func (n *Native) Reset(env engine.Env) { C.Reset(cenv(env)) }

func (n *Native) Clear(env engine.Env) bool { return bool(C.Clear(cenv(env))) }

func (n *Native) Run(env engine.Env, limit int64) int64 {
	return int64(C.Run(cenv(env), C.longlong(limit)))
}

// AddUDF registers fn under name. The handle lives until the
// environment is destroyed since the engine has no removal call.
func (n *Native) AddUDF(env engine.Env, name string, minArgs, maxArgs int, fn engine.UDF) bool {
	h := cgo.NewHandle(fn)
	ok := withCString(name, func(cs *C.char) bool {
		return C.cg_add_udf(cenv(env), cs, C.int(minArgs), C.int(maxArgs), C.uintptr_t(h)) != 0
	})
	if !ok {
		h.Delete()
		return false
	}
	s := n.state(env)
	n.mu.Lock()
	s.udfs = append(s.udfs, h)
	n.mu.Unlock()
	return true
}

func (n *Native) FunctionCall(env engine.Env, name string, args []engine.Value) (engine.Value, engine.FunctionCallError) {
	fcb := C.CreateFunctionCallBuilder(cenv(env), C.size_t(len(args)))
	if fcb == nil {
		return engine.Symbol("FALSE"), engine.CallNullPointerError
	}
	defer C.FCBDispose(fcb)
	for _, a := range args {
		var cv C.CLIPSValue
		toC(env, a, &cv)
		C.FCBAppend(fcb, &cv)
	}
	var out C.CLIPSValue
	code := withCString(name, func(cs *C.char) C.FunctionCallBuilderError {
		return C.FCBCall(fcb, cs, &out)
	})
	return fromC(&out), engine.FunctionCallError(code)
}

func (n *Native) SetErrorValue(env engine.Env, v engine.Value) {
	var cv C.CLIPSValue
	toC(env, v, &cv)
	C.cg_set_error(cenv(env), &cv)
}

func (n *Native) GetErrorValue(env engine.Env) engine.Value {
	var out C.CLIPSValue
	C.cg_get_error(cenv(env), &out)
	return fromC(&out)
}

func (n *Native) ClearErrorValue(env engine.Env) { C.ClearErrorValue(cenv(env)) }

func (n *Native) SetEvaluationError(env engine.Env, on bool) {
	C.SetEvaluationError(cenv(env), C.bool(on))
}

func (n *Native) GetEvaluationError(env engine.Env) bool {
	return bool(C.GetEvaluationError(cenv(env)))
}

// Facts

func (n *Native) AssertString(env engine.Env, text string) engine.Ptr {
	return withCString(text, func(cs *C.char) engine.Ptr {
		return goPtr(unsafe.Pointer(C.AssertString(cenv(env), cs)))
	})
}

func (n *Native) Retract(_ engine.Env, fact engine.Ptr) engine.RetractError {
	return engine.RetractError(C.Retract(cfact(fact)))
}

func (n *Native) RetainFact(_ engine.Env, fact engine.Ptr)  { C.RetainFact(cfact(fact)) }
func (n *Native) ReleaseFact(_ engine.Env, fact engine.Ptr) { C.ReleaseFact(cfact(fact)) }

func (n *Native) FactIndex(_ engine.Env, fact engine.Ptr) int64 {
	return int64(C.FactIndex(cfact(fact)))
}

func (n *Native) FactExistp(_ engine.Env, fact engine.Ptr) bool {
	return bool(C.FactExistp(cfact(fact)))
}

func (n *Native) FactTemplate(_ engine.Env, fact engine.Ptr) string {
	return C.GoString(C.cg_fact_template(cfact(fact)))
}

func (n *Native) FactImplied(_ engine.Env, fact engine.Ptr) bool {
	return C.cg_fact_implied(cfact(fact)) != 0
}

func (n *Native) GetFactSlot(_ engine.Env, fact engine.Ptr, slot string) (engine.Value, engine.GetSlotError) {
	var out C.CLIPSValue
	var code C.GetSlotError
	if slot == "" {
		code = C.GetFactSlot(cfact(fact), nil, &out)
	} else {
		code = withCString(slot, func(cs *C.char) C.GetSlotError {
			return C.GetFactSlot(cfact(fact), cs, &out)
		})
	}
	if code != C.GSE_NO_ERROR {
		return engine.Void(), engine.GetSlotError(code)
	}
	return fromC(&out), engine.GetSlotNoError
}

func (n *Native) FactSlotNames(_ engine.Env, fact engine.Ptr) []string {
	var out C.CLIPSValue
	C.FactSlotNames(cfact(fact), &out)
	return lexemes(fromC(&out))
}

func (n *Native) Facts(env engine.Env) []engine.Ptr {
	var out []engine.Ptr
	for f := C.GetNextFact(cenv(env), nil); f != nil; f = C.GetNextFact(cenv(env), f) {
		out = append(out, goPtr(unsafe.Pointer(f)))
	}
	return out
}

func (n *Native) FactPPForm(env engine.Env, fact engine.Ptr) string {
	return takeCString(C.cg_fact_ppform(cenv(env), cfact(fact)))
}

func (n *Native) CreateFactBuilder(env engine.Env, template string) engine.Ptr {
	return withCString(template, func(cs *C.char) engine.Ptr {
		return goPtr(unsafe.Pointer(C.CreateFactBuilder(cenv(env), cs)))
	})
}

func (n *Native) FBPutSlot(env engine.Env, fb engine.Ptr, slot string, v engine.Value) engine.PutSlotError {
	var cv C.CLIPSValue
	toC(env, v, &cv)
	return withCString(slot, func(cs *C.char) engine.PutSlotError {
		return engine.PutSlotError(C.FBPutSlot(cfb(fb), cs, &cv))
	})
}

func (n *Native) FBAssert(_ engine.Env, fb engine.Ptr) engine.Ptr {
	return goPtr(unsafe.Pointer(C.FBAssert(cfb(fb))))
}

func (n *Native) FBDispose(_ engine.Env, fb engine.Ptr) { C.FBDispose(cfb(fb)) }

func (n *Native) FBError(env engine.Env) engine.FactBuilderError {
	return engine.FactBuilderError(C.FBError(cenv(env)))
}

func (n *Native) Templates(env engine.Env) []string {
	var out []string
	for t := C.GetNextDeftemplate(cenv(env), nil); t != nil; t = C.GetNextDeftemplate(cenv(env), t) {
		out = append(out, C.GoString(C.DeftemplateName(t)))
	}
	return out
}

func (n *Native) TemplateSlotNames(env engine.Env, template string) ([]string, bool) {
	var out C.CLIPSValue
	ok := withCString(template, func(cs *C.char) bool {
		return C.cg_template_slot_names(cenv(env), cs, &out) != 0
	})
	if !ok {
		return nil, false
	}
	return lexemes(fromC(&out)), true
}

func (n *Native) LoadFacts(env engine.Env, path string) bool {
	return withCString(path, func(cs *C.char) bool { return bool(C.LoadFacts(cenv(env), cs)) })
}

func (n *Native) LoadFactsFromString(env engine.Env, text string) bool {
	return withCString(text, func(cs *C.char) bool {
		return bool(C.LoadFactsFromString(cenv(env), cs, C.size_t(len(text))))
	})
}

func (n *Native) SaveFacts(env engine.Env, path string, scope engine.SaveScope) int64 {
	return withCString(path, func(cs *C.char) int64 {
		return int64(C.SaveFacts(cenv(env), cs, C.SaveScope(scope)))
	})
}

// Instances

func (n *Native) MakeInstance(env engine.Env, text string) engine.Ptr {
	return withCString(text, func(cs *C.char) engine.Ptr {
		return goPtr(unsafe.Pointer(C.MakeInstance(cenv(env), cs)))
	})
}

func (n *Native) FindInstance(env engine.Env, name string) engine.Ptr {
	return withCString(name, func(cs *C.char) engine.Ptr {
		return goPtr(unsafe.Pointer(C.FindInstance(cenv(env), nil, cs, C.bool(true))))
	})
}

func (n *Native) RetainInstance(_ engine.Env, ins engine.Ptr)  { C.RetainInstance(cins(ins)) }
func (n *Native) ReleaseInstance(_ engine.Env, ins engine.Ptr) { C.ReleaseInstance(cins(ins)) }

func (n *Native) ValidInstanceAddress(_ engine.Env, ins engine.Ptr) bool {
	return bool(C.ValidInstanceAddress(cins(ins)))
}

func (n *Native) InstanceName(_ engine.Env, ins engine.Ptr) string {
	return C.GoString(C.InstanceName(cins(ins)))
}

func (n *Native) InstanceClass(_ engine.Env, ins engine.Ptr) string {
	return C.GoString(C.cg_instance_class(cins(ins)))
}

func (n *Native) DirectGetSlot(_ engine.Env, ins engine.Ptr, slot string) (engine.Value, engine.GetSlotError) {
	var out C.CLIPSValue
	code := withCString(slot, func(cs *C.char) C.GetSlotError {
		return C.DirectGetSlot(cins(ins), cs, &out)
	})
	if code != C.GSE_NO_ERROR {
		return engine.Void(), engine.GetSlotError(code)
	}
	return fromC(&out), engine.GetSlotNoError
}

func (n *Native) DirectPutSlot(env engine.Env, ins engine.Ptr, slot string, v engine.Value) engine.PutSlotError {
	var cv C.CLIPSValue
	toC(env, v, &cv)
	return withCString(slot, func(cs *C.char) engine.PutSlotError {
		return engine.PutSlotError(C.DirectPutSlot(cins(ins), cs, &cv))
	})
}

func (n *Native) UnmakeInstance(_ engine.Env, ins engine.Ptr) bool {
	return C.UnmakeInstance(cins(ins)) == C.UIE_NO_ERROR
}

func (n *Native) Send(env engine.Env, ins engine.Ptr, message, args string) engine.Value {
	var target, out C.CLIPSValue
	C.cg_set_instance(&target, C.uintptr_t(ins))
	cm := C.CString(message)
	defer C.free(unsafe.Pointer(cm))
	var ca *C.char
	if args != "" {
		ca = C.CString(args)
		defer C.free(unsafe.Pointer(ca))
	}
	C.Send(cenv(env), &target, cm, ca, &out)
	return fromC(&out)
}

func (n *Native) Instances(env engine.Env) []engine.Ptr {
	var out []engine.Ptr
	for i := C.GetNextInstance(cenv(env), nil); i != nil; i = C.GetNextInstance(cenv(env), i) {
		out = append(out, goPtr(unsafe.Pointer(i)))
	}
	return out
}

func (n *Native) InstancePPForm(env engine.Env, ins engine.Ptr) string {
	return takeCString(C.cg_instance_ppform(cenv(env), cins(ins)))
}

func (n *Native) LoadInstances(env engine.Env, path string) int64 {
	return withCString(path, func(cs *C.char) int64 { return int64(C.LoadInstances(cenv(env), cs)) })
}

func (n *Native) LoadInstancesFromString(env engine.Env, text string) int64 {
	return withCString(text, func(cs *C.char) int64 {
		return int64(C.LoadInstancesFromString(cenv(env), cs, C.size_t(len(text))))
	})
}

func (n *Native) RestoreInstances(env engine.Env, path string) int64 {
	return withCString(path, func(cs *C.char) int64 { return int64(C.RestoreInstances(cenv(env), cs)) })
}

func (n *Native) RestoreInstancesFromString(env engine.Env, text string) int64 {
	return withCString(text, func(cs *C.char) int64 {
		return int64(C.RestoreInstancesFromString(cenv(env), cs, C.size_t(len(text))))
	})
}

func (n *Native) SaveInstances(env engine.Env, path string, scope engine.SaveScope) int64 {
	return withCString(path, func(cs *C.char) int64 {
		return int64(C.SaveInstances(cenv(env), cs, C.SaveScope(scope)))
	})
}

func (n *Native) BinaryLoadInstances(env engine.Env, path string) int64 {
	return withCString(path, func(cs *C.char) int64 { return int64(C.BinaryLoadInstances(cenv(env), cs)) })
}

func (n *Native) BinarySaveInstances(env engine.Env, path string, scope engine.SaveScope) int64 {
	return withCString(path, func(cs *C.char) int64 {
		return int64(C.BinarySaveInstances(cenv(env), cs, C.SaveScope(scope)))
	})
}

// Classes

func (n *Native) Classes(env engine.Env) []string {
	var out []string
	for c := C.GetNextDefclass(cenv(env), nil); c != nil; c = C.GetNextDefclass(cenv(env), c) {
		out = append(out, C.GoString(C.DefclassName(c)))
	}
	return out
}

func (n *Native) ClassAbstract(env engine.Env, class string) (bool, bool) {
	r := withCString(class, func(cs *C.char) C.int { return C.cg_class_abstract(cenv(env), cs) })
	return r == 1, r >= 0
}

func (n *Native) ClassSlots(env engine.Env, class string, inherit bool) ([]string, bool) {
	return classNames(class, func(cs *C.char, out *C.CLIPSValue) C.int {
		return C.cg_class_slots(cenv(env), cs, cbool(inherit), out)
	})
}

func (n *Native) ClassSuperclasses(env engine.Env, class string, inherit bool) ([]string, bool) {
	return classNames(class, func(cs *C.char, out *C.CLIPSValue) C.int {
		return C.cg_class_superclasses(cenv(env), cs, cbool(inherit), out)
	})
}

func classNames(class string, fill func(*C.char, *C.CLIPSValue) C.int) ([]string, bool) {
	var out C.CLIPSValue
	ok := withCString(class, func(cs *C.char) bool { return fill(cs, &out) != 0 })
	if !ok {
		return nil, false
	}
	return lexemes(fromC(&out)), true
}

func cbool(b bool) C.int {
	if b {
		return 1
	}
	return 0
}

// Routers

func (n *Native) AddRouter(env engine.Env, name string, priority int, h engine.RouterHandler) bool {
	handle := cgo.NewHandle(h)
	ok := withCString(name, func(cs *C.char) bool {
		return C.cg_add_router(cenv(env), cs, C.int(priority), C.uintptr_t(handle)) != 0
	})
	if !ok {
		handle.Delete()
		return false
	}
	s := n.state(env)
	n.mu.Lock()
	if old, dup := s.routers[name]; dup {
		old.Delete()
	}
	s.routers[name] = handle
	n.mu.Unlock()
	return true
}

func (n *Native) DeleteRouter(env engine.Env, name string) bool {
	ok := withCString(name, func(cs *C.char) bool { return bool(C.DeleteRouter(cenv(env), cs)) })
	if ok {
		s := n.state(env)
		n.mu.Lock()
		if h, found := s.routers[name]; found {
			h.Delete()
			delete(s.routers, name)
		}
		n.mu.Unlock()
	}
	return ok
}

func (n *Native) ActivateRouter(env engine.Env, name string) bool {
	return withCString(name, func(cs *C.char) bool { return bool(C.ActivateRouter(cenv(env), cs)) })
}

func (n *Native) DeactivateRouter(env engine.Env, name string) bool {
	return withCString(name, func(cs *C.char) bool { return bool(C.DeactivateRouter(cenv(env), cs)) })
}

func (n *Native) WriteString(env engine.Env, logicalName, text string) {
	cn := C.CString(logicalName)
	defer C.free(unsafe.Pointer(cn))
	ct := C.CString(text)
	defer C.free(unsafe.Pointer(ct))
	C.WriteString(cenv(env), cn, ct)
}

func (n *Native) WriteValue(env engine.Env, logicalName string, v engine.Value) {
	var cv C.CLIPSValue
	toC(env, v, &cv)
	withCString(logicalName, func(cs *C.char) struct{} {
		C.WriteCLIPSValue(cenv(env), cs, &cv)
		return struct{}{}
	})
}

func (n *Native) ReadRouter(env engine.Env, logicalName string) int {
	return withCString(logicalName, func(cs *C.char) int { return int(C.ReadRouter(cenv(env), cs)) })
}

func (n *Native) UnreadRouter(env engine.Env, logicalName string, ch int) int {
	return withCString(logicalName, func(cs *C.char) int {
		return int(C.UnreadRouter(cenv(env), cs, C.int(ch)))
	})
}

// Agenda

func (n *Native) Rules(env engine.Env) []string {
	var out []string
	for r := C.GetNextDefrule(cenv(env), nil); r != nil; r = C.GetNextDefrule(cenv(env), r) {
		out = append(out, C.GoString(C.DefruleName(r)))
	}
	return out
}

func (n *Native) Activations(env engine.Env) []engine.Activation {
	var out []engine.Activation
	for a := C.GetNextActivation(cenv(env), nil); a != nil; a = C.GetNextActivation(cenv(env), a) {
		// Printed as "<salience> <rule>: <basis>".
		_, basis, _ := strings.Cut(takeCString(C.cg_activation_ppform(cenv(env), a)), ": ")
		out = append(out, engine.Activation{
			Rule:     C.GoString(C.ActivationRuleName(a)),
			Salience: int(C.ActivationGetSalience(a)),
			Basis:    basis,
		})
	}
	return out
}

func (n *Native) RefreshAgenda(env engine.Env) {
	C.RefreshAgenda(C.GetCurrentModule(cenv(env)))
}

func (n *Native) ClearAgenda(env engine.Env) {
	C.DeleteAllActivations(C.GetCurrentModule(cenv(env)))
}

func (n *Native) GetStrategy(env engine.Env) engine.Strategy {
	return engine.Strategy(C.GetStrategy(cenv(env)))
}

func (n *Native) SetStrategy(env engine.Env, s engine.Strategy) engine.Strategy {
	return engine.Strategy(C.SetStrategy(cenv(env), C.StrategyType(s)))
}

func (n *Native) GetSalienceEvaluation(env engine.Env) engine.SalienceEvaluation {
	return engine.SalienceEvaluation(C.GetSalienceEvaluation(cenv(env)))
}

func (n *Native) SetSalienceEvaluation(env engine.Env, mode engine.SalienceEvaluation) engine.SalienceEvaluation {
	return engine.SalienceEvaluation(C.SetSalienceEvaluation(cenv(env), C.SalienceEvaluationType(mode)))
}

func (n *Native) Undefine(env engine.Env, kind engine.ConstructKind, name string) bool {
	return withCString(name, func(cs *C.char) bool {
		return C.cg_undefine(cenv(env), C.int(kind), cs) != 0
	})
}

// Modules

func (n *Native) Modules(env engine.Env) []string {
	var out []string
	for m := C.GetNextDefmodule(cenv(env), nil); m != nil; m = C.GetNextDefmodule(cenv(env), m) {
		out = append(out, C.GoString(C.DefmoduleName(m)))
	}
	return out
}

func (n *Native) CurrentModule(env engine.Env) string {
	return C.GoString(C.DefmoduleName(C.GetCurrentModule(cenv(env))))
}

func (n *Native) findModule(env engine.Env, name string) *C.Defmodule {
	return withCString(name, func(cs *C.char) *C.Defmodule { return C.FindDefmodule(cenv(env), cs) })
}

func (n *Native) SetCurrentModule(env engine.Env, module string) bool {
	m := n.findModule(env, module)
	if m == nil {
		return false
	}
	C.SetCurrentModule(cenv(env), m)
	return true
}

func (n *Native) Focus(env engine.Env, module string) bool {
	m := n.findModule(env, module)
	if m == nil {
		return false
	}
	C.Focus(m)
	return true
}

func (n *Native) GetFocus(env engine.Env) string {
	m := C.GetFocus(cenv(env))
	if m == nil {
		return ""
	}
	return C.GoString(C.DefmoduleName(m))
}

func (n *Native) ClearFocusStack(env engine.Env) { C.ClearFocusStack(cenv(env)) }

// Globals

func (n *Native) GetDefglobalValue(env engine.Env, name string) (engine.Value, bool) {
	var out C.CLIPSValue
	ok := withCString(name, func(cs *C.char) bool {
		return bool(C.GetDefglobalValue(cenv(env), cs, &out))
	})
	if !ok {
		return engine.Void(), false
	}
	return fromC(&out), true
}

func (n *Native) SetDefglobalValue(env engine.Env, name string, v engine.Value) bool {
	var cv C.CLIPSValue
	toC(env, v, &cv)
	return withCString(name, func(cs *C.char) bool {
		return bool(C.SetDefglobalValue(cenv(env), cs, &cv))
	})
}

// Value conversion

func fromC(v *C.CLIPSValue) engine.Value {
	switch engine.Type(C.cg_type(v)) {
	case engine.FLOAT:
		return engine.Float(float64(C.cg_float(v)))
	case engine.INTEGER:
		return engine.Integer(int64(C.cg_integer(v)))
	case engine.SYMBOL:
		return engine.Symbol(C.GoString(C.cg_lexeme(v)))
	case engine.STRING:
		return engine.String(C.GoString(C.cg_lexeme(v)))
	case engine.INSTANCE_NAME:
		return engine.InstanceName(C.GoString(C.cg_lexeme(v)))
	case engine.MULTIFIELD:
		n := int(C.cg_mf_length(v))
		fields := make([]engine.Value, n)
		for i := range n {
			fields[i] = fromC(C.cg_mf_nth(v, C.size_t(i)))
		}
		return engine.Multifield(fields...)
	case engine.EXTERNAL_ADDRESS:
		return engine.ExternalAddress(engine.Ptr(C.cg_pointer(v)))
	case engine.FACT_ADDRESS:
		return engine.FactAddress(engine.Ptr(C.cg_pointer(v)))
	case engine.INSTANCE_ADDRESS:
		return engine.InstanceAddress(engine.Ptr(C.cg_pointer(v)))
	}
	return engine.Void()
}

// fromUDFArg converts an argument, honouring the begin/range window the
// engine reports for multifield arguments.
func fromUDFArg(v *C.CLIPSValue, begin, length int) engine.Value {
	val := fromC(v)
	if val.Type() != engine.MULTIFIELD {
		return val
	}
	fields, _ := val.Fields()
	if sub, ok := engine.Subfield(fields, begin+1, begin+length); ok {
		return sub
	}
	return val
}

func toC(env engine.Env, v engine.Value, out *C.CLIPSValue) {
	e := cenv(env)
	switch v.Type() {
	case engine.FLOAT:
		f, _ := v.Float()
		C.cg_set_float(e, out, C.double(f))
	case engine.INTEGER:
		i, _ := v.Integer()
		C.cg_set_integer(e, out, C.longlong(i))
	case engine.SYMBOL, engine.STRING, engine.INSTANCE_NAME:
		s, _ := v.Lexeme()
		cs := C.CString(s)
		defer C.free(unsafe.Pointer(cs))
		switch v.Type() {
		case engine.SYMBOL:
			C.cg_set_symbol(e, out, cs)
		case engine.STRING:
			C.cg_set_string(e, out, cs)
		default:
			C.cg_set_instance_name(e, out, cs)
		}
	case engine.MULTIFIELD:
		fields, _ := v.Fields()
		mb := C.CreateMultifieldBuilder(e, C.size_t(len(fields)))
		for _, f := range fields {
			var cv C.CLIPSValue
			toC(env, f, &cv)
			C.MBAppend(mb, &cv)
		}
		C.cg_set_multifield(out, C.MBCreate(mb))
		C.MBDispose(mb)
	case engine.EXTERNAL_ADDRESS:
		p, _ := v.Pointer()
		C.cg_set_external(e, out, C.uintptr_t(p))
	case engine.FACT_ADDRESS:
		p, _ := v.Pointer()
		C.cg_set_fact(out, C.uintptr_t(p))
	case engine.INSTANCE_ADDRESS:
		p, _ := v.Pointer()
		C.cg_set_instance(out, C.uintptr_t(p))
	default:
		C.cg_set_void(e, out)
	}
}

func lexemes(v engine.Value) []string {
	fields, _ := v.Fields()
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if s, ok := f.Lexeme(); ok {
			out = append(out, s)
		}
	}
	return out
}

func takeCString(cs *C.char) string {
	if cs == nil {
		return ""
	}
	defer C.free(unsafe.Pointer(cs))
	return C.GoString(cs)
}
