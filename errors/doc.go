// Package errors provides structured error types for the CLIPS bindings.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, Go/engine type names, the
// engine diagnostic text and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindValue).
//		Path("args", "0").
//		GoType("uint64").
//		EngineType("INTEGER").
//		Detail("value exceeds int64").
//		Build()
//
// Or use convenience constructors for the facade taxonomy:
//
//	err := errors.StateError(errors.PhaseFact, "fact")
//	err := errors.IOError(errors.PhaseLoad, diagnostic, 0)
//
// Kind sentinels match regardless of phase:
//
//	if errors.Is(err, clipserr.ErrState) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
