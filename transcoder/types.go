package transcoder

import (
	"github.com/wippyai/clips-runtime/engine"
)

// Symbol is a decoded engine symbol. It compares equal to its text but
// remains distinguishable from a string by type, so it encodes back to
// a symbol.
type Symbol string

// InstanceName is a decoded engine instance name.
type InstanceName string

// Well-known symbols.
const (
	True  Symbol = "TRUE"
	False Symbol = "FALSE"
	Nil   Symbol = "nil"
)

// Proxy is implemented by host handles over engine-owned objects.
// Owner identifies the environment the handle belongs to.
type Proxy interface {
	Owner() any
	Address() engine.Value
}

// ProxyFactory turns fact and instance addresses into host handles.
type ProxyFactory interface {
	NewFact(p engine.Ptr) any
	NewInstance(p engine.Ptr) any
}

// Bool interprets a decoded value as a boolean. Only the symbols TRUE
// and FALSE are booleans.
func Bool(v any) (value bool, ok bool) {
	switch s := v.(type) {
	case Symbol:
		switch s {
		case True:
			return true, true
		case False:
			return false, true
		}
	case bool:
		return s, true
	}
	return false, false
}
