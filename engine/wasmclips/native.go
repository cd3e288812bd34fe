package wasmclips

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
	"github.com/wippyai/clips-runtime/transcoder"
)

const (
	exportAlloc    = "clips_alloc"
	exportFree     = "clips_free"
	exportDispatch = "clips_dispatch"

	hostModule = "clips_host"
)

// Native hosts one CLIPS guest module.
type Native struct {
	ctx    context.Context
	rt     wazero.Runtime
	mod    api.Module
	mem    *guestMemory
	alloc  *guestAllocator
	logger *zap.Logger
	dir    string

	// Cached exports are only used at depth zero; nested calls made from
	// inside a callback look up fresh function instances.
	funcs map[string]api.Function
	depth int

	udfs    []engine.UDF
	routers map[routerKey]engine.RouterHandler

	err error
}

type routerKey struct {
	env  engine.Env
	name string
}

var _ engine.Native = (*Native)(nil)

// New compiles and instantiates the guest module.
func New(ctx context.Context, module []byte, opts ...Option) (*Native, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = engine.Logger().Named("wasm")
	}

	cfg := wazero.NewRuntimeConfig()
	if o.memoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(o.memoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, cfg)

	n := &Native{
		ctx:     ctx,
		rt:      rt,
		logger:  o.logger,
		dir:     o.dir,
		funcs:   make(map[string]api.Function),
		routers: make(map[routerKey]engine.RouterHandler),
	}
	n.alloc = &guestAllocator{n: n}

	if err := n.instantiate(ctx, module); err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return n, nil
}

func (n *Native) instantiate(ctx context.Context, module []byte) error {
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, n.rt); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindNotInitialized, err, "wasi instantiation failed")
	}
	if err := n.registerHost(ctx); err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindNotInitialized, err, "host module instantiation failed")
	}

	compiled, err := n.rt.CompileModule(ctx, module)
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindInvalidInput, err, "guest compilation failed")
	}

	modCfg := wazero.NewModuleConfig().
		WithName("clips").
		WithStartFunctions("_initialize")
	if n.dir != "" {
		modCfg = modCfg.WithFSConfig(wazero.NewFSConfig().WithDirMount(n.dir, "/"))
	}

	mod, err := n.rt.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		return errors.Wrap(errors.PhaseRuntime, errors.KindNotInitialized, err, "guest instantiation failed")
	}
	n.mod = mod

	if mod.Memory() == nil {
		return errors.NotFound(errors.PhaseRuntime, "guest export", "memory")
	}
	n.mem = &guestMemory{mem: mod.Memory()}
	for _, name := range []string{exportAlloc, exportFree, exportDispatch} {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			return errors.NotFound(errors.PhaseRuntime, "guest export", name)
		}
		n.funcs[name] = fn
	}
	return nil
}

// Close releases the runtime and the guest instance.
func (n *Native) Close(ctx context.Context) error {
	return n.rt.Close(ctx)
}

// Err returns the first guest failure. Once set every method returns
// zero results.
func (n *Native) Err() error {
	return n.err
}

func (n *Native) export(name string) api.Function {
	if n.depth == 0 {
		return n.funcs[name]
	}
	return n.mod.ExportedFunction(name)
}

func (n *Native) fail(op opcode, err error) {
	if n.err == nil {
		n.err = errors.Wrap(errors.PhaseRuntime, errors.KindCall, err, "guest "+op.String()+" failed")
	}
	n.logger.Error("guest call failed", zap.Stringer("op", op), zap.Error(err))
}

// call runs one dispatch and decodes its result list.
func (n *Native) call(op opcode, env engine.Env, args ...engine.Value) []engine.Value {
	if n.err != nil {
		return nil
	}
	in, err := transcoder.StoreValues(n.mem, n.alloc, args)
	if err != nil {
		n.fail(op, err)
		return nil
	}
	defer in.Free(n.alloc)

	fn := n.export(exportDispatch)
	stack := []uint64{uint64(op), uint64(env), uint64(in.Ptr), uint64(in.Size)}
	n.depth++
	err = fn.CallWithStack(n.ctx, stack)
	n.depth--
	if err != nil {
		n.fail(op, err)
		return nil
	}

	ptr, size := uint32(stack[0]>>32), uint32(stack[0])
	if size == 0 {
		return nil
	}
	defer n.alloc.Free(ptr, size, 8)
	out, err := transcoder.LoadValues(n.mem, ptr, size)
	if err != nil {
		n.fail(op, err)
		return nil
	}
	return out
}

// guestPath maps a host path below the mounted directory to the guest's
// view of it. Other paths pass through.
func (n *Native) guestPath(path string) string {
	if n.dir == "" || !filepath.IsAbs(path) {
		return filepath.ToSlash(path)
	}
	rel, err := filepath.Rel(n.dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return "/" + filepath.ToSlash(rel)
}

// Result helpers

func at(vals []engine.Value, i int) engine.Value {
	if i < len(vals) {
		return vals[i]
	}
	return engine.Void()
}

func intAt(vals []engine.Value, i int) int64 {
	v, _ := at(vals, i).Integer()
	return v
}

func boolAt(vals []engine.Value, i int) bool {
	return intAt(vals, i) != 0
}

func ptrAt(vals []engine.Value, i int) engine.Ptr {
	p, _ := at(vals, i).Pointer()
	return p
}

func strAt(vals []engine.Value, i int) string {
	s, _ := at(vals, i).Lexeme()
	return s
}

func ptrs(vals []engine.Value) []engine.Ptr {
	out := make([]engine.Ptr, 0, len(vals))
	for _, v := range vals {
		if p, ok := v.Pointer(); ok {
			out = append(out, p)
		}
	}
	return out
}

func lexemes(vals []engine.Value) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.Lexeme(); ok {
			out = append(out, s)
		}
	}
	return out
}

// count reads a file operation result; a failed call counts as an error.
func count(vals []engine.Value) int64 {
	if len(vals) == 0 {
		return -1
	}
	return intAt(vals, 0)
}

func addr(p engine.Ptr) engine.Value { return engine.ExternalAddress(p) }
func text(s string) engine.Value     { return engine.String(s) }

func flag(b bool) engine.Value {
	if b {
		return engine.Integer(1)
	}
	return engine.Integer(0)
}

// Lifecycle

func (n *Native) CreateEnvironment() engine.Env {
	return engine.Env(ptrAt(n.call(opCreateEnvironment, 0), 0))
}

func (n *Native) DestroyEnvironment(env engine.Env) bool {
	ok := boolAt(n.call(opDestroyEnvironment, env), 0)
	for k := range n.routers {
		if k.env == env {
			delete(n.routers, k)
		}
	}
	return ok
}

// Constructs and commands

func (n *Native) Build(env engine.Env, construct string) engine.BuildError {
	return engine.BuildError(intAt(n.call(opBuild, env, text(construct)), 0))
}

func (n *Native) Eval(env engine.Env, expr string) (engine.Value, engine.EvalError) {
	res := n.call(opEval, env, text(expr))
	if res == nil {
		return engine.Symbol("FALSE"), engine.EvalProcessingError
	}
	return at(res, 0), engine.EvalError(intAt(res, 1))
}

func (n *Native) Load(env engine.Env, path string) engine.LoadError {
	res := n.call(opLoad, env, text(n.guestPath(path)))
	if res == nil {
		return engine.LoadOpenFileError
	}
	return engine.LoadError(intAt(res, 0))
}

func (n *Native) Bload(env engine.Env, path string) bool {
	return boolAt(n.call(opBload, env, text(n.guestPath(path))), 0)
}

func (n *Native) Save(env engine.Env, path string) bool {
	return boolAt(n.call(opSave, env, text(n.guestPath(path))), 0)
}

func (n *Native) Bsave(env engine.Env, path string) bool {
	return boolAt(n.call(opBsave, env, text(n.guestPath(path))), 0)
}

func (n *Native) BatchStar(env engine.Env, path string) bool {
	return boolAt(n.call(opBatchStar, env, text(n.guestPath(path))), 0)
}

func (n *Native) Reset(env engine.Env) { n.call(opReset, env) }

func (n *Native) Clear(env engine.Env) bool {
	return boolAt(n.call(opClear, env), 0)
}

func (n *Native) Run(env engine.Env, limit int64) int64 {
	return intAt(n.call(opRun, env, engine.Integer(limit)), 0)
}

// User functions

// registerUDF stores fn and returns the id the guest passes back to the
// udf import.
func (n *Native) registerUDF(fn engine.UDF) int64 {
	n.udfs = append(n.udfs, fn)
	return int64(len(n.udfs) - 1)
}

func (n *Native) AddUDF(env engine.Env, name string, minArgs, maxArgs int, fn engine.UDF) bool {
	id := n.registerUDF(fn)
	ok := boolAt(n.call(opAddUDF, env,
		text(name), engine.Integer(int64(minArgs)), engine.Integer(int64(maxArgs)), engine.Integer(id)), 0)
	if !ok {
		n.udfs[id] = nil
	}
	return ok
}

func (n *Native) FunctionCall(env engine.Env, name string, args []engine.Value) (engine.Value, engine.FunctionCallError) {
	res := n.call(opFunctionCall, env, append([]engine.Value{text(name)}, args...)...)
	if res == nil {
		return engine.Symbol("FALSE"), engine.CallProcessingError
	}
	return at(res, 0), engine.FunctionCallError(intAt(res, 1))
}

// Error state

func (n *Native) SetErrorValue(env engine.Env, v engine.Value) { n.call(opSetErrorValue, env, v) }

func (n *Native) GetErrorValue(env engine.Env) engine.Value {
	res := n.call(opGetErrorValue, env)
	if res == nil {
		return engine.Symbol("FALSE")
	}
	return at(res, 0)
}

func (n *Native) ClearErrorValue(env engine.Env) { n.call(opClearErrorValue, env) }

func (n *Native) SetEvaluationError(env engine.Env, on bool) {
	n.call(opSetEvaluationError, env, flag(on))
}

func (n *Native) GetEvaluationError(env engine.Env) bool {
	return boolAt(n.call(opGetEvaluationError, env), 0)
}

// Facts

func (n *Native) AssertString(env engine.Env, s string) engine.Ptr {
	return ptrAt(n.call(opAssertString, env, text(s)), 0)
}

func (n *Native) Retract(env engine.Env, fact engine.Ptr) engine.RetractError {
	res := n.call(opRetract, env, addr(fact))
	if res == nil {
		return engine.RetractCouldNotRetractError
	}
	return engine.RetractError(intAt(res, 0))
}

func (n *Native) RetainFact(env engine.Env, fact engine.Ptr)  { n.call(opRetainFact, env, addr(fact)) }
func (n *Native) ReleaseFact(env engine.Env, fact engine.Ptr) { n.call(opReleaseFact, env, addr(fact)) }

func (n *Native) FactIndex(env engine.Env, fact engine.Ptr) int64 {
	return intAt(n.call(opFactIndex, env, addr(fact)), 0)
}

func (n *Native) FactExistp(env engine.Env, fact engine.Ptr) bool {
	return boolAt(n.call(opFactExistp, env, addr(fact)), 0)
}

func (n *Native) FactTemplate(env engine.Env, fact engine.Ptr) string {
	return strAt(n.call(opFactTemplate, env, addr(fact)), 0)
}

func (n *Native) FactImplied(env engine.Env, fact engine.Ptr) bool {
	return boolAt(n.call(opFactImplied, env, addr(fact)), 0)
}

func (n *Native) GetFactSlot(env engine.Env, fact engine.Ptr, slot string) (engine.Value, engine.GetSlotError) {
	res := n.call(opGetFactSlot, env, addr(fact), text(slot))
	if res == nil {
		return engine.Void(), engine.GetSlotNullPointerError
	}
	return at(res, 0), engine.GetSlotError(intAt(res, 1))
}

func (n *Native) FactSlotNames(env engine.Env, fact engine.Ptr) []string {
	return lexemes(n.call(opFactSlotNames, env, addr(fact)))
}

func (n *Native) Facts(env engine.Env) []engine.Ptr {
	return ptrs(n.call(opFacts, env))
}

func (n *Native) FactPPForm(env engine.Env, fact engine.Ptr) string {
	return strAt(n.call(opFactPPForm, env, addr(fact)), 0)
}

func (n *Native) CreateFactBuilder(env engine.Env, template string) engine.Ptr {
	return ptrAt(n.call(opCreateFactBuilder, env, text(template)), 0)
}

func (n *Native) FBPutSlot(env engine.Env, fb engine.Ptr, slot string, v engine.Value) engine.PutSlotError {
	res := n.call(opFBPutSlot, env, addr(fb), text(slot), v)
	if res == nil {
		return engine.PutSlotNullPointerError
	}
	return engine.PutSlotError(intAt(res, 0))
}

func (n *Native) FBAssert(env engine.Env, fb engine.Ptr) engine.Ptr {
	return ptrAt(n.call(opFBAssert, env, addr(fb)), 0)
}

func (n *Native) FBDispose(env engine.Env, fb engine.Ptr) { n.call(opFBDispose, env, addr(fb)) }

func (n *Native) FBError(env engine.Env) engine.FactBuilderError {
	res := n.call(opFBError, env)
	if res == nil {
		return engine.FBNullPointerError
	}
	return engine.FactBuilderError(intAt(res, 0))
}

func (n *Native) Templates(env engine.Env) []string {
	return lexemes(n.call(opTemplates, env))
}

func (n *Native) TemplateSlotNames(env engine.Env, template string) ([]string, bool) {
	res := n.call(opTemplateSlotNames, env, text(template))
	if !boolAt(res, 0) {
		return nil, false
	}
	return lexemes(res[1:]), true
}

func (n *Native) LoadFacts(env engine.Env, path string) bool {
	return boolAt(n.call(opLoadFacts, env, text(n.guestPath(path))), 0)
}

func (n *Native) LoadFactsFromString(env engine.Env, s string) bool {
	return boolAt(n.call(opLoadFactsFromString, env, text(s)), 0)
}

func (n *Native) SaveFacts(env engine.Env, path string, scope engine.SaveScope) int64 {
	return count(n.call(opSaveFacts, env, text(n.guestPath(path)), engine.Integer(int64(scope))))
}

// Instances

func (n *Native) MakeInstance(env engine.Env, s string) engine.Ptr {
	return ptrAt(n.call(opMakeInstance, env, text(s)), 0)
}

func (n *Native) FindInstance(env engine.Env, name string) engine.Ptr {
	return ptrAt(n.call(opFindInstance, env, text(name)), 0)
}

func (n *Native) RetainInstance(env engine.Env, ins engine.Ptr) {
	n.call(opRetainInstance, env, addr(ins))
}

func (n *Native) ReleaseInstance(env engine.Env, ins engine.Ptr) {
	n.call(opReleaseInstance, env, addr(ins))
}

func (n *Native) ValidInstanceAddress(env engine.Env, ins engine.Ptr) bool {
	return boolAt(n.call(opValidInstanceAddress, env, addr(ins)), 0)
}

func (n *Native) InstanceName(env engine.Env, ins engine.Ptr) string {
	return strAt(n.call(opInstanceName, env, addr(ins)), 0)
}

func (n *Native) InstanceClass(env engine.Env, ins engine.Ptr) string {
	return strAt(n.call(opInstanceClass, env, addr(ins)), 0)
}

func (n *Native) DirectGetSlot(env engine.Env, ins engine.Ptr, slot string) (engine.Value, engine.GetSlotError) {
	res := n.call(opDirectGetSlot, env, addr(ins), text(slot))
	if res == nil {
		return engine.Void(), engine.GetSlotNullPointerError
	}
	return at(res, 0), engine.GetSlotError(intAt(res, 1))
}

func (n *Native) DirectPutSlot(env engine.Env, ins engine.Ptr, slot string, v engine.Value) engine.PutSlotError {
	res := n.call(opDirectPutSlot, env, addr(ins), text(slot), v)
	if res == nil {
		return engine.PutSlotNullPointerError
	}
	return engine.PutSlotError(intAt(res, 0))
}

func (n *Native) UnmakeInstance(env engine.Env, ins engine.Ptr) bool {
	return boolAt(n.call(opUnmakeInstance, env, addr(ins)), 0)
}

func (n *Native) Send(env engine.Env, ins engine.Ptr, message, args string) engine.Value {
	res := n.call(opSend, env, addr(ins), text(message), text(args))
	if res == nil {
		return engine.Symbol("FALSE")
	}
	return at(res, 0)
}

func (n *Native) Instances(env engine.Env) []engine.Ptr {
	return ptrs(n.call(opInstances, env))
}

func (n *Native) InstancePPForm(env engine.Env, ins engine.Ptr) string {
	return strAt(n.call(opInstancePPForm, env, addr(ins)), 0)
}

func (n *Native) LoadInstances(env engine.Env, path string) int64 {
	return count(n.call(opLoadInstances, env, text(n.guestPath(path))))
}

func (n *Native) LoadInstancesFromString(env engine.Env, s string) int64 {
	return count(n.call(opLoadInstancesFromString, env, text(s)))
}

func (n *Native) RestoreInstances(env engine.Env, path string) int64 {
	return count(n.call(opRestoreInstances, env, text(n.guestPath(path))))
}

func (n *Native) RestoreInstancesFromString(env engine.Env, s string) int64 {
	return count(n.call(opRestoreInstancesFromString, env, text(s)))
}

func (n *Native) SaveInstances(env engine.Env, path string, scope engine.SaveScope) int64 {
	return count(n.call(opSaveInstances, env, text(n.guestPath(path)), engine.Integer(int64(scope))))
}

func (n *Native) BinaryLoadInstances(env engine.Env, path string) int64 {
	return count(n.call(opBinaryLoadInstances, env, text(n.guestPath(path))))
}

func (n *Native) BinarySaveInstances(env engine.Env, path string, scope engine.SaveScope) int64 {
	return count(n.call(opBinarySaveInstances, env, text(n.guestPath(path)), engine.Integer(int64(scope))))
}

// Classes

func (n *Native) Classes(env engine.Env) []string {
	return lexemes(n.call(opClasses, env))
}

// ClassAbstract reads a found, abstract pair.
func (n *Native) ClassAbstract(env engine.Env, class string) (bool, bool) {
	res := n.call(opClassAbstract, env, text(class))
	return boolAt(res, 1), boolAt(res, 0)
}

func (n *Native) ClassSlots(env engine.Env, class string, inherit bool) ([]string, bool) {
	res := n.call(opClassSlots, env, text(class), flag(inherit))
	if !boolAt(res, 0) {
		return nil, false
	}
	return lexemes(res[1:]), true
}

func (n *Native) ClassSuperclasses(env engine.Env, class string, inherit bool) ([]string, bool) {
	res := n.call(opClassSuperclasses, env, text(class), flag(inherit))
	if !boolAt(res, 0) {
		return nil, false
	}
	return lexemes(res[1:]), true
}

// Routers

func (n *Native) AddRouter(env engine.Env, name string, priority int, h engine.RouterHandler) bool {
	key := routerKey{env, name}
	prev, had := n.routers[key]
	n.routers[key] = h
	if !boolAt(n.call(opAddRouter, env, text(name), engine.Integer(int64(priority))), 0) {
		if had {
			n.routers[key] = prev
		} else {
			delete(n.routers, key)
		}
		return false
	}
	return true
}

func (n *Native) DeleteRouter(env engine.Env, name string) bool {
	ok := boolAt(n.call(opDeleteRouter, env, text(name)), 0)
	if ok {
		delete(n.routers, routerKey{env, name})
	}
	return ok
}

func (n *Native) ActivateRouter(env engine.Env, name string) bool {
	return boolAt(n.call(opActivateRouter, env, text(name)), 0)
}

func (n *Native) DeactivateRouter(env engine.Env, name string) bool {
	return boolAt(n.call(opDeactivateRouter, env, text(name)), 0)
}

func (n *Native) WriteString(env engine.Env, logicalName, s string) {
	n.call(opWriteString, env, text(logicalName), text(s))
}

func (n *Native) WriteValue(env engine.Env, logicalName string, v engine.Value) {
	n.call(opWriteValue, env, text(logicalName), v)
}

func (n *Native) ReadRouter(env engine.Env, logicalName string) int {
	res := n.call(opReadRouter, env, text(logicalName))
	if res == nil {
		return -1
	}
	return int(intAt(res, 0))
}

func (n *Native) UnreadRouter(env engine.Env, logicalName string, ch int) int {
	res := n.call(opUnreadRouter, env, text(logicalName), engine.Integer(int64(ch)))
	if res == nil {
		return -1
	}
	return int(intAt(res, 0))
}

// Agenda

func (n *Native) Rules(env engine.Env) []string {
	return lexemes(n.call(opRules, env))
}

// Activations are returned as rule, salience, basis triples.
func (n *Native) Activations(env engine.Env) []engine.Activation {
	res := n.call(opActivations, env)
	out := make([]engine.Activation, 0, len(res)/3)
	for i := 0; i+2 < len(res); i += 3 {
		out = append(out, engine.Activation{
			Rule:     strAt(res, i),
			Salience: int(intAt(res, i+1)),
			Basis:    strAt(res, i+2),
		})
	}
	return out
}

func (n *Native) RefreshAgenda(env engine.Env) { n.call(opRefreshAgenda, env) }

func (n *Native) ClearAgenda(env engine.Env) { n.call(opClearAgenda, env) }

func (n *Native) GetStrategy(env engine.Env) engine.Strategy {
	return engine.Strategy(intAt(n.call(opGetStrategy, env), 0))
}

func (n *Native) SetStrategy(env engine.Env, s engine.Strategy) engine.Strategy {
	return engine.Strategy(intAt(n.call(opSetStrategy, env, engine.Integer(int64(s))), 0))
}

func (n *Native) GetSalienceEvaluation(env engine.Env) engine.SalienceEvaluation {
	return engine.SalienceEvaluation(intAt(n.call(opGetSalienceEvaluation, env), 0))
}

func (n *Native) SetSalienceEvaluation(env engine.Env, mode engine.SalienceEvaluation) engine.SalienceEvaluation {
	return engine.SalienceEvaluation(intAt(n.call(opSetSalienceEvaluation, env, engine.Integer(int64(mode))), 0))
}

func (n *Native) Undefine(env engine.Env, kind engine.ConstructKind, name string) bool {
	return boolAt(n.call(opUndefine, env, engine.Integer(int64(kind)), text(name)), 0)
}

// Modules

func (n *Native) Modules(env engine.Env) []string {
	return lexemes(n.call(opModules, env))
}

func (n *Native) CurrentModule(env engine.Env) string {
	return strAt(n.call(opCurrentModule, env), 0)
}

func (n *Native) SetCurrentModule(env engine.Env, module string) bool {
	return boolAt(n.call(opSetCurrentModule, env, text(module)), 0)
}

func (n *Native) Focus(env engine.Env, module string) bool {
	return boolAt(n.call(opFocus, env, text(module)), 0)
}

func (n *Native) GetFocus(env engine.Env) string {
	return strAt(n.call(opGetFocus, env), 0)
}

func (n *Native) ClearFocusStack(env engine.Env) { n.call(opClearFocusStack, env) }

// Globals

func (n *Native) GetDefglobalValue(env engine.Env, name string) (engine.Value, bool) {
	res := n.call(opGetDefglobalValue, env, text(name))
	if !boolAt(res, 1) {
		return engine.Void(), false
	}
	return at(res, 0), true
}

func (n *Native) SetDefglobalValue(env engine.Env, name string, v engine.Value) bool {
	return boolAt(n.call(opSetDefglobalValue, env, text(name), v), 0)
}
