// Package wasmclips implements engine.Native on CLIPS compiled to
// WebAssembly and hosted on wazero.
//
// The guest is a WASI reactor that links libclips with a small dispatch
// shim. It exports:
//
//	memory
//	clips_alloc(size, align i32) i32
//	clips_free(ptr, size, align i32)
//	clips_dispatch(op i32, env i64, argPtr, argLen i32) i64
//
// Every Native method is one clips_dispatch call. Arguments and results
// are count-prefixed value lists in the transcoder wire format; the i64
// result packs ptr<<32|len of a list the host frees with clips_free.
// Engine pointers travel as EXTERNAL_ADDRESS values.
//
// Engine-initiated callbacks come back through the "clips_host" import
// module:
//
//	router(env i64, argPtr, argLen i32) i64
//	udf(env i64, argPtr, argLen i32) i64
//
// Buffers returned by the host are allocated with clips_alloc and freed
// by the guest. A zero result tells the guest the callback failed.
//
// The shim lives in guest/; its Makefile builds clips.wasm with wasi-sdk
// from the CLIPS 6.4 core sources.
//
// A Native owns one module instance and is not safe for concurrent use.
// Callbacks may call back into the Native on the goroutine the engine
// invoked them on.
package wasmclips
