// Package clipsruntime provides Go bindings for the CLIPS production-rule engine.
//
// The bindings own the boundary between Go and the engine: value
// marshaling, reference-counted proxies for engine-owned facts and
// instances, routing of engine I/O into Go objects, and Go functions
// callable from the rule language. Matching, conflict resolution and
// the rule-language parser belong to the engine.
//
// # Architecture Overview
//
//	clipsruntime/        Root package with Memory and Allocator interfaces
//	├── runtime/         Environment facade, proxies, user functions
//	├── engine/          Engine ABI contract and tagged Value
//	│   ├── sim/         In-process reference engine
//	│   ├── cgoclips/    libclips through cgo (build tag "clips")
//	│   └── wasmclips/   CLIPS compiled to WebAssembly on wazero
//	├── transcoder/      Go <-> engine value codec and wire format
//	├── router/          Router registry and built-in routers
//	├── resource/        Handle tables for values crossing the engine
//	├── errors/          Structured error types
//	├── config/          YAML configuration
//	├── store/           SQLite fact snapshots
//	├── internal/watch/  Debounced construct file watcher
//	└── cmd/clips/       Command line interface and REPL
//
// # Quick Start
//
//	env, err := runtime.New(sim.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer env.Close()
//
//	env.DefineFunction(func(a, b int64) int64 { return a + b }, "go-add")
//	v, _ := env.Eval("(go-add 2 3)")
//	fmt.Println(v) // 5
//
// # Thread Safety
//
// An Environment must be used by one goroutine at a time. Separate
// environments are isolated and may run on different goroutines.
package clipsruntime
