// Package transcoder converts between Go values and engine values.
//
// # Mapping
//
//	Go                         engine
//	─────────────────────────────────────────────
//	nil                        SYMBOL nil
//	bool                       SYMBOL TRUE / FALSE
//	int*, uint* (<= MaxInt64)  INTEGER
//	float32, float64           FLOAT
//	string, []byte             STRING
//	Symbol                     SYMBOL
//	InstanceName               INSTANCE_NAME
//	slices, arrays             MULTIFIELD (recursive)
//	Proxy                      FACT_ADDRESS / INSTANCE_ADDRESS
//	engine.Value               passed through
//	anything else              EXTERNAL_ADDRESS capsule
//
// Decoding yields float64, int64, Symbol, string, InstanceName, []any,
// proxies from a ProxyFactory, the original capsule value, or nil for VOID.
// Integers and floats never convert into each other.
//
// Per-type encoders for the reflective path are compiled once and cached.
//
// # Wire format
//
// AppendWire and ReadWire carry values through linear memory for
// backends that run the engine as a WebAssembly guest. StoreValues and
// LoadValues do the same against a Memory and Allocator.
package transcoder
