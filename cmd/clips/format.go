package main

import (
	"fmt"
	"strings"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/runtime"
	"github.com/wippyai/clips-runtime/transcoder"
)

// formatValue renders a decoded value the way the engine prints it.
// Void renders as the empty string.
func formatValue(env *runtime.Environment, v any) string {
	var b strings.Builder
	writeValue(&b, env, v)
	return b.String()
}

func writeValue(b *strings.Builder, env *runtime.Environment, v any) {
	switch x := v.(type) {
	case nil:
	case *runtime.Fact:
		fmt.Fprintf(b, "<Fact-%d>", x.Index())
	case *runtime.Instance:
		fmt.Fprintf(b, "<Instance-%s>", x.Name())
	case []any:
		b.WriteByte('(')
		for i, item := range x {
			if i > 0 {
				b.WriteByte(' ')
			}
			writeValue(b, env, item)
		}
		b.WriteByte(')')
	case transcoder.Symbol:
		b.WriteString(string(x))
	case string:
		b.WriteString(engine.QuoteString(x))
	default:
		ev, err := env.Encode(v)
		if err != nil {
			fmt.Fprintf(b, "<%T>", v)
			return
		}
		b.WriteString(ev.String())
	}
}

// releaseValue releases the proxies inside a decoded value.
func releaseValue(v any) {
	switch x := v.(type) {
	case *runtime.Fact:
		x.Release()
	case *runtime.Instance:
		x.Release()
	case []any:
		for _, item := range x {
			releaseValue(item)
		}
	}
}
