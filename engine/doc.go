// Package engine defines the contract between the bindings and a CLIPS
// engine implementation.
//
// The contract is the Go rendition of the CLIPS C ABI: an opaque
// environment handle, opaque object handles for facts and instances,
// and the tagged Value union that crosses the boundary in both
// directions. Backends implement Native:
//
//	engine/sim       - in-process reference engine written in Go
//	engine/cgoclips  - libclips 6.4 through cgo (build tag "clips")
//	engine/wasmclips - CLIPS compiled to WebAssembly, hosted on wazero
//
// # Values
//
// Value is immutable and built only through constructors:
//
//	v := engine.Multifield(engine.Symbol("a"), engine.Integer(1))
//	fields, ok := v.Fields()
//
// Multifields carry 1-based inclusive Begin/End bounds. An empty
// multifield has Begin 1 and End 0.
//
// # Callbacks
//
// Router events and user function calls re-enter Go synchronously on
// the goroutine that issued the engine call. Handlers must not block
// other than on their own I/O.
package engine
