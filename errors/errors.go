package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseEncode  Phase = "encode"  // Go to engine
	PhaseDecode  Phase = "decode"  // engine to Go
	PhaseBuild   Phase = "build"   // construct parsing
	PhaseLoad    Phase = "load"    // constructs from file
	PhaseSave    Phase = "save"    // constructs to file
	PhaseEval    Phase = "eval"    // expression evaluation
	PhaseRun     Phase = "run"     // agenda execution
	PhaseCall    Phase = "call"    // function invocation
	PhaseRouter  Phase = "router"  // router registration and I/O
	PhaseFact    Phase = "fact"    // fact operations
	PhaseObject  Phase = "object"  // instance operations
	PhaseRuntime Phase = "runtime" // environment lifecycle
	PhaseHost    Phase = "host"    // host function registration
	PhaseConfig  Phase = "config"  // configuration
	PhaseStore   Phase = "store"   // snapshot persistence
)

// Kind categorizes the error
type Kind string

const (
	// Taxonomy surfaced by the environment facade.
	KindValue  Kind = "value"  // marshaling failed
	KindState  Kind = "state"  // engine object no longer exists
	KindIO     Kind = "io"     // load/save/build against malformed input
	KindCall   Kind = "call"   // function invocation failed in the engine
	KindRouter Kind = "router" // router lifecycle failed

	KindTypeMismatch   Kind = "type_mismatch"
	KindOverflow       Kind = "overflow"
	KindUnsupported    Kind = "unsupported"
	KindNotFound       Kind = "not_found"
	KindNotInitialized Kind = "not_initialized"
	KindInvalidInput   Kind = "invalid_input"
	KindRegistration   Kind = "registration"
	KindClosed         Kind = "closed"
)

// Sentinels for errors.Is checks by kind alone, regardless of phase.
var (
	ErrValue        = &Error{Kind: KindValue}
	ErrState        = &Error{Kind: KindState}
	ErrIO           = &Error{Kind: KindIO}
	ErrCall         = &Error{Kind: KindCall}
	ErrRouter       = &Error{Kind: KindRouter}
	ErrClosed       = &Error{Kind: KindClosed}
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrInvalidInput = &Error{Kind: KindInvalidInput}
)

// Error is the structured error type used throughout the bindings
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	GoType     string
	EngineType string
	Detail     string
	Path       []string
	Code       int
	// Reported is set when Detail was already written to the engine's
	// stderr channel.
	Reported bool
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.EngineType != "" {
		b.WriteString(": ")
		if e.GoType != "" && e.EngineType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", engine type ")
			b.WriteString(e.EngineType)
		} else if e.GoType != "" {
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		} else {
			b.WriteString("engine type ")
			b.WriteString(e.EngineType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.EngineType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// EngineType sets the engine type name
func (b *Builder) EngineType(t string) *Builder {
	b.err.EngineType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Code sets the engine error code
func (b *Builder) Code(code int) *Builder {
	b.err.Code = code
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for the facade taxonomy

// ValueError creates a marshaling error
func ValueError(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindValue,
		Path:   path,
		Detail: detail,
	}
}

// StateError creates an error for an engine object that no longer exists
func StateError(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindState,
		Detail: fmt.Sprintf("%s no longer exists", what),
	}
}

// IOError creates a load/save/build error carrying the engine diagnostic
func IOError(phase Phase, diagnostic string, code int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindIO,
		Detail: diagnostic,
		Code:   code,
	}
}

// CallError creates a function invocation error carrying the engine diagnostic
func CallError(phase Phase, diagnostic string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCall,
		Detail: diagnostic,
		Cause:  cause,
	}
}

// RouterError creates a router lifecycle error
func RouterError(action, name string) *Error {
	return &Error{
		Phase:  PhaseRouter,
		Kind:   KindRouter,
		Detail: fmt.Sprintf("unable to %s router %q", action, name),
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, engineType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		GoType:     goType,
		EngineType: engineType,
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindOverflow,
		Path:       path,
		EngineType: targetType,
		Detail:     fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:      value,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(phase Phase, name string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s", name),
		Cause:  cause,
	}
}

// Closed creates an error for operations on a closed environment
func Closed(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: "environment closed",
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
