package transcoder

import (
	"math"
	"reflect"
	"strconv"
	"sync"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
	"github.com/wippyai/clips-runtime/resource"
)

// MaxDepth bounds multifield nesting on both encode and decode.
const MaxDepth = 64

type encodeFunc func(e *Encoder, rv reflect.Value, path []string, depth int) (engine.Value, error)

// Encoder converts Go values into engine values. Values with no engine
// representation become external address capsules held in the table.
type Encoder struct {
	capsules *resource.Table
	owner    any
	cache    sync.Map // reflect.Type -> encodeFunc
}

// NewEncoder creates an encoder. owner identifies the environment so
// proxies from another environment are rejected; capsules may be nil, in
// which case unsupported values are an error.
func NewEncoder(capsules *resource.Table, owner any) *Encoder {
	return &Encoder{capsules: capsules, owner: owner}
}

// Encode converts v into an engine value.
func (e *Encoder) Encode(v any) (engine.Value, error) {
	return e.encode(v, nil, 0)
}

// EncodeAll converts each argument in order.
func (e *Encoder) EncodeAll(args []any) ([]engine.Value, error) {
	out := make([]engine.Value, len(args))
	for i, a := range args {
		v, err := e.encode(a, []string{strconv.Itoa(i)}, 0)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (e *Encoder) encode(v any, path []string, depth int) (engine.Value, error) {
	if depth > MaxDepth {
		return engine.Value{}, errors.New(errors.PhaseEncode, errors.KindValue).
			Path(path...).
			Detail("multifield nesting exceeds %d", MaxDepth).
			Build()
	}

	// Common types first; the reflective path handles named and composite types.
	switch x := v.(type) {
	case nil:
		return engine.Symbol(string(Nil)), nil
	case engine.Value:
		return x, nil
	case bool:
		if x {
			return engine.Symbol(string(True)), nil
		}
		return engine.Symbol(string(False)), nil
	case int:
		return engine.Integer(int64(x)), nil
	case int64:
		return engine.Integer(x), nil
	case float64:
		return engine.Float(x), nil
	case string:
		return engine.String(x), nil
	case Symbol:
		return engine.Symbol(string(x)), nil
	case InstanceName:
		return engine.InstanceName(string(x)), nil
	case []any:
		return e.encodeList(x, path, depth)
	case Proxy:
		// A typed nil proxy is a nil value, not a dangling address.
		if rv := reflect.ValueOf(x); rv.Kind() == reflect.Pointer && rv.IsNil() {
			return engine.Symbol(string(Nil)), nil
		}
		return e.encodeProxy(x, path)
	}

	rv := reflect.ValueOf(v)
	return e.encoderFor(rv.Type())(e, rv, path, depth)
}

func (e *Encoder) encodeList(items []any, path []string, depth int) (engine.Value, error) {
	vals := make([]engine.Value, len(items))
	for i, item := range items {
		v, err := e.encode(item, append(path, strconv.Itoa(i)), depth+1)
		if err != nil {
			return engine.Value{}, err
		}
		vals[i] = v
	}
	return engine.Multifield(vals...), nil
}

func (e *Encoder) encodeProxy(p Proxy, path []string) (engine.Value, error) {
	if p.Owner() != e.owner {
		return engine.Value{}, errors.New(errors.PhaseEncode, errors.KindValue).
			Path(path...).
			GoType(reflect.TypeOf(p).String()).
			Detail("proxy belongs to another environment").
			Build()
	}
	return p.Address(), nil
}

func (e *Encoder) encoderFor(t reflect.Type) encodeFunc {
	if fn, ok := e.cache.Load(t); ok {
		return fn.(encodeFunc)
	}
	fn := compileEncoder(t)
	actual, _ := e.cache.LoadOrStore(t, fn)
	return actual.(encodeFunc)
}

func compileEncoder(t reflect.Type) encodeFunc {
	switch t.Kind() {
	case reflect.Bool:
		return func(_ *Encoder, rv reflect.Value, _ []string, _ int) (engine.Value, error) {
			if rv.Bool() {
				return engine.Symbol(string(True)), nil
			}
			return engine.Symbol(string(False)), nil
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return func(_ *Encoder, rv reflect.Value, _ []string, _ int) (engine.Value, error) {
			return engine.Integer(rv.Int()), nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return encodeUnsigned
	case reflect.Float32, reflect.Float64:
		return func(_ *Encoder, rv reflect.Value, _ []string, _ int) (engine.Value, error) {
			return engine.Float(rv.Float()), nil
		}
	case reflect.String:
		return func(_ *Encoder, rv reflect.Value, _ []string, _ int) (engine.Value, error) {
			return engine.String(rv.String()), nil
		}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return func(_ *Encoder, rv reflect.Value, _ []string, _ int) (engine.Value, error) {
				return engine.String(string(rv.Bytes())), nil
			}
		}
		return encodeSequence
	case reflect.Array:
		return encodeSequence
	}
	return encodeCapsule
}

func encodeUnsigned(_ *Encoder, rv reflect.Value, path []string, _ int) (engine.Value, error) {
	u := rv.Uint()
	if u > math.MaxInt64 {
		return engine.Value{}, errors.New(errors.PhaseEncode, errors.KindValue).
			Path(path...).
			GoType(rv.Type().String()).
			EngineType(engine.INTEGER.String()).
			Value(u).
			Detail("value %d overflows int64", u).
			Build()
	}
	return engine.Integer(int64(u)), nil
}

func encodeSequence(e *Encoder, rv reflect.Value, path []string, depth int) (engine.Value, error) {
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		return engine.Multifield(), nil
	}
	n := rv.Len()
	vals := make([]engine.Value, n)
	for i := 0; i < n; i++ {
		v, err := e.encode(rv.Index(i).Interface(), append(path, strconv.Itoa(i)), depth+1)
		if err != nil {
			return engine.Value{}, err
		}
		vals[i] = v
	}
	return engine.Multifield(vals...), nil
}

func encodeCapsule(e *Encoder, rv reflect.Value, path []string, _ int) (engine.Value, error) {
	if e.capsules == nil {
		return engine.Value{}, errors.New(errors.PhaseEncode, errors.KindValue).
			Path(path...).
			GoType(rv.Type().String()).
			Detail("no engine representation and no capsule table").
			Build()
	}
	h := e.capsules.Intern(resource.KindCapsule, rv.Interface())
	if h == 0 {
		return engine.Value{}, errors.New(errors.PhaseEncode, errors.KindValue).
			Path(path...).
			GoType(rv.Type().String()).
			EngineType(engine.EXTERNAL_ADDRESS.String()).
			Detail("capsule table closed").
			Build()
	}
	return engine.ExternalAddress(engine.Ptr(h)), nil
}
