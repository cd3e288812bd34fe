package transcoder

import (
	"reflect"
	"strconv"

	"github.com/wippyai/clips-runtime/errors"
)

// Convert adapts a decoded value to a typed Go parameter. Integers and
// floats never convert into each other; narrowing that would lose
// information is an error.
func Convert(x any, t reflect.Type) (reflect.Value, error) {
	return convert(x, t, nil)
}

func convert(x any, t reflect.Type, path []string) (reflect.Value, error) {
	if x == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, mismatch(path, "nil", t)
	}

	xv := reflect.ValueOf(x)
	if xv.Type().AssignableTo(t) {
		v := reflect.New(t).Elem()
		v.Set(xv)
		return v, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		if b, ok := Bool(x); ok {
			return reflect.ValueOf(b).Convert(t), nil
		}

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if i, ok := x.(int64); ok {
			v := reflect.New(t).Elem()
			if v.OverflowInt(i) {
				return reflect.Value{}, overflow(path, i, t)
			}
			v.SetInt(i)
			return v, nil
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		if i, ok := x.(int64); ok {
			v := reflect.New(t).Elem()
			if i < 0 || v.OverflowUint(uint64(i)) {
				return reflect.Value{}, overflow(path, i, t)
			}
			v.SetUint(uint64(i))
			return v, nil
		}

	case reflect.Float32, reflect.Float64:
		if f, ok := x.(float64); ok {
			v := reflect.New(t).Elem()
			v.SetFloat(f)
			return v, nil
		}

	case reflect.String:
		switch x.(type) {
		case string, Symbol, InstanceName:
			return xv.Convert(t), nil
		}

	case reflect.Slice:
		items, ok := x.([]any)
		if !ok {
			break
		}
		out := reflect.MakeSlice(t, len(items), len(items))
		for i, item := range items {
			ev, err := convert(item, t.Elem(), append(path, strconv.Itoa(i)))
			if err != nil {
				return reflect.Value{}, err
			}
			out.Index(i).Set(ev)
		}
		return out, nil
	}

	return reflect.Value{}, mismatch(path, xv.Type().String(), t)
}

func mismatch(path []string, from string, to reflect.Type) error {
	return errors.New(errors.PhaseCall, errors.KindValue).
		Path(path...).
		GoType(to.String()).
		Detail("cannot use %s as %s", from, to).
		Build()
}

func overflow(path []string, i int64, to reflect.Type) error {
	return errors.New(errors.PhaseCall, errors.KindValue).
		Path(path...).
		GoType(to.String()).
		Value(i).
		Detail("value %d overflows %s", i, to).
		Build()
}
