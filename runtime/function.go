package runtime

import (
	stderrors "errors"
	"fmt"
	"reflect"
	goruntime "runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
	"github.com/wippyai/clips-runtime/resource"
	"github.com/wippyai/clips-runtime/transcoder"
)

// bridgeFunction is the engine function every forwarding deffunction
// calls; its first argument names the Go function.
const bridgeFunction = "go-function"

const forwardingConstruct = "(deffunction %[1]s ($?args) (" + bridgeFunction + " %[1]s (expand$ ?args)))"

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// FunctionSet supplies explicit rule-language names for a group of
// functions, for hosts whose method names do not convert cleanly.
type FunctionSet interface {
	Functions() map[string]any
}

type hostFunction struct {
	name string
	fn   reflect.Value
	typ  reflect.Type
}

// functionTable maps rule-language names to Go functions. Entries live
// in the environment's resource table under KindFunction.
type functionTable struct {
	mu     sync.RWMutex
	table  *resource.Table
	handle map[string]resource.Handle
}

func newFunctionTable(table *resource.Table) *functionTable {
	return &functionTable{table: table, handle: make(map[string]resource.Handle)}
}

func (t *functionTable) put(hf *hostFunction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.handle[hf.name]; ok {
		t.table.Remove(h)
	}
	t.handle[hf.name] = t.table.Insert(resource.KindFunction, hf)
}

func (t *functionTable) get(name string) (*hostFunction, bool) {
	t.mu.RLock()
	h, ok := t.handle[name]
	t.mu.RUnlock()
	if !ok {
		return nil, false
	}
	x, ok := t.table.GetKind(h, resource.KindFunction)
	if !ok {
		return nil, false
	}
	return x.(*hostFunction), true
}

func (t *functionTable) remove(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.handle[name]; ok {
		t.table.Remove(h)
		delete(t.handle, name)
	}
}

func (t *functionTable) names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.handle))
	for name := range t.handle {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (t *functionTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.table.Clear(resource.KindFunction)
	t.handle = make(map[string]resource.Handle)
}

// DefineFunction makes fn callable from the rule language. Without an
// explicit name the Go function name is used in kebab-case
// (AddNumbers -> add-numbers); closures need a name.
//
// Arguments are decoded and converted to fn's parameter types; variadic
// functions take the remaining arguments. fn may return nothing, a
// value, an error, or a value and an error. A nil result reaches the
// engine as the symbol nil.
func (e *Environment) DefineFunction(fn any, name ...string) error {
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func || rv.IsNil() {
		return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
			GoType(fmt.Sprintf("%T", fn)).
			Detail("handler must be a function").
			Build()
	}

	var n string
	if len(name) > 0 {
		n = name[0]
	} else {
		n = funcName(rv)
	}
	if n == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}
	if err := checkResults(rv.Type()); err != nil {
		return errors.Registration(errors.PhaseHost, n, err)
	}

	if err := e.enter(errors.PhaseHost); err != nil {
		return err
	}
	defer e.leave()

	e.functions.put(&hostFunction{name: n, fn: rv, typ: rv.Type()})
	if code := e.native.Build(e.env, fmt.Sprintf(forwardingConstruct, n)); code != engine.BuildNoError {
		e.functions.remove(n)
		return errors.Registration(errors.PhaseHost, n, e.ioError(errors.PhaseBuild, int(code), "unable to build forwarding function"))
	}
	e.logger.Debug("function defined", zap.String("name", n), zap.String("type", rv.Type().String()))
	return nil
}

// DefineFunctions defines every exported method of host under its
// kebab-case name, or the functions a FunctionSet lists.
func (e *Environment) DefineFunctions(host any) error {
	if fs, ok := host.(FunctionSet); ok {
		for name, fn := range fs.Functions() {
			if err := e.DefineFunction(fn, name); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(host)
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() {
			continue
		}
		if err := e.DefineFunction(rv.Method(i).Interface(), toKebabCase(method.Name)); err != nil {
			return err
		}
	}
	return nil
}

// Functions lists the names of the defined Go functions, sorted.
func (e *Environment) Functions() []string {
	return e.functions.names()
}

// ErrorState returns the error recorded by the last failing Go function
// or set with set-error, or nil.
func (e *Environment) ErrorState() error {
	if e.closed.Load() {
		return nil
	}
	v := e.native.GetErrorValue(e.env)
	if s, ok := v.Symbol(); ok && s == string(transcoder.False) {
		return nil
	}
	x, err := e.decoder.Decode(v)
	if err != nil {
		return errors.Wrap(errors.PhaseCall, errors.KindCall, err, "unreadable error value")
	}
	if err, ok := x.(error); ok {
		return err
	}
	return errors.New(errors.PhaseCall, errors.KindCall).Value(x).Detail("%v", x).Build()
}

// ClearErrorState forgets the recorded error.
func (e *Environment) ClearErrorState() {
	if e.closed.Load() {
		return
	}
	e.native.ClearErrorValue(e.env)
	e.native.SetEvaluationError(e.env, false)
	e.pinError(engine.Value{})
}

// goFunction is the engine side of every forwarding deffunction.
func (e *Environment) goFunction(_ engine.Env, args []engine.Value) engine.Value {
	name, _ := args[0].Lexeme()
	hf, ok := e.functions.get(name)
	if !ok {
		return e.hostFailure(errors.NotFound(errors.PhaseCall, "function", name), nil)
	}
	v, stack, err := e.invoke(hf, args[1:])
	if err != nil {
		return e.hostFailure(err, stack)
	}
	return v
}

// invoke calls hf. A panic is returned as an error with the stack of
// the panicking goroutine.
func (e *Environment) invoke(hf *hostFunction, args []engine.Value) (result engine.Value, stack []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			stack = debug.Stack()
			err = &panicError{value: p}
		}
	}()

	vals, err := e.decoder.DecodeAll(args)
	if err != nil {
		return engine.Value{}, nil, err
	}
	in, err := hf.arguments(vals)
	if err != nil {
		return engine.Value{}, nil, err
	}
	result, err = e.results(hf.fn.Call(in))
	return result, nil, err
}

func (hf *hostFunction) arguments(vals []any) ([]reflect.Value, error) {
	t := hf.typ
	n := t.NumIn()
	if t.IsVariadic() {
		if len(vals) < n-1 {
			return nil, hf.arity(len(vals))
		}
	} else if len(vals) != n {
		return nil, hf.arity(len(vals))
	}

	in := make([]reflect.Value, len(vals))
	for i, x := range vals {
		pt := t.In(min(i, n-1))
		if t.IsVariadic() && i >= n-1 {
			pt = pt.Elem()
		}
		v, err := transcoder.Convert(x, pt)
		if err != nil {
			return nil, errors.New(errors.PhaseCall, errors.KindValue).
				Path(fmt.Sprint(i+1)).
				GoType(pt.String()).
				Cause(err).
				Detail("argument %d of %s", i+1, hf.name).
				Build()
		}
		in[i] = v
	}
	return in, nil
}

func (hf *hostFunction) arity(got int) error {
	want := fmt.Sprint(hf.typ.NumIn())
	if hf.typ.IsVariadic() {
		want = fmt.Sprintf("at least %d", hf.typ.NumIn()-1)
	}
	return errors.InvalidInput(errors.PhaseCall, fmt.Sprintf("%s expects %s argument(s), got %d", hf.name, want, got))
}

func (e *Environment) results(out []reflect.Value) (engine.Value, error) {
	nilSymbol := engine.Symbol(string(transcoder.Nil))
	switch len(out) {
	case 0:
		return nilSymbol, nil
	case 1:
		if out[0].Type() == errorType {
			if !out[0].IsNil() {
				return engine.Value{}, out[0].Interface().(error)
			}
			return nilSymbol, nil
		}
		return e.encoder.Encode(out[0].Interface())
	default:
		if !out[1].IsNil() {
			return engine.Value{}, out[1].Interface().(error)
		}
		return e.encoder.Encode(out[0].Interface())
	}
}

// hostFailure reports a failed Go function to the engine: a GOCODEFUN1
// diagnostic on stderr, the error as the engine error value, and the
// evaluation error flag so the calling engine operation fails.
func (e *Environment) hostFailure(err error, stack []byte) engine.Value {
	text := err.Error()
	var nested *errors.Error
	if stderrors.As(err, &nested) && nested.Reported {
		// The engine printed this diagnostic when the nested call failed.
		text = fmt.Sprintf("nested %s failed", nested.Phase)
	}
	msg := fmt.Sprintf("[GOCODEFUN1] %s: %s", errorKind(err), text)
	if len(stack) > 0 {
		msg += "\n" + strings.TrimRight(string(stack), "\n")
	}
	e.native.WriteString(e.env, engine.STDERR, msg+"\n")

	v, encErr := e.encoder.Encode(err)
	if encErr != nil {
		v = engine.String(err.Error())
	}
	e.native.SetErrorValue(e.env, v)
	e.pinError(v)
	e.native.SetEvaluationError(e.env, true)
	e.logger.Debug("go function failed", zap.Error(err))
	return engine.Symbol(string(transcoder.False))
}

// pinError keeps the capsule behind the recorded error value alive
// across Clear, releasing the one pinned before.
func (e *Environment) pinError(v engine.Value) {
	prev := e.errPin
	e.errPin = 0
	if p, ok := v.Pointer(); ok && v.Type() == engine.EXTERNAL_ADDRESS && e.capsules.Pin(resource.Handle(p)) {
		e.errPin = resource.Handle(p)
	}
	if prev != 0 {
		e.capsules.Unpin(prev)
	}
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprint(p.value)
}

// Unwrap exposes a panic value that is itself an error.
func (p *panicError) Unwrap() error {
	err, _ := p.value.(error)
	return err
}

func errorKind(err error) string {
	switch x := err.(type) {
	case *panicError:
		return "panic"
	case *errors.Error:
		return string(x.Kind)
	}
	return reflect.TypeOf(err).String()
}

func checkResults(t reflect.Type) error {
	switch t.NumOut() {
	case 0, 1:
		return nil
	case 2:
		if t.Out(1) == errorType {
			return nil
		}
	}
	return errors.New(errors.PhaseHost, errors.KindTypeMismatch).
		GoType(t.String()).
		Detail("function must return at most a value and an error").
		Build()
}

// funcName derives a rule-language name from a Go function. Closures
// have no usable name.
func funcName(rv reflect.Value) string {
	f := goruntime.FuncForPC(rv.Pointer())
	if f == nil {
		return ""
	}
	name := f.Name()
	name = strings.TrimSuffix(name, "-fm")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if strings.HasPrefix(name, "func") && strings.TrimLeft(name[4:], "0123456789") == "" {
		return ""
	}
	return toKebabCase(name)
}

// toKebabCase converts Go identifiers to kebab-case.
// Handles acronyms: GetHTTPCode -> get-http-code
func toKebabCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			// The last capital before a lowercase letter starts the next word.
			if acronymEnd > i+1 && acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
				acronymEnd--
			}

			if i > 0 {
				result.WriteByte('-')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
