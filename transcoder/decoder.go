package transcoder

import (
	"strconv"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
	"github.com/wippyai/clips-runtime/resource"
)

// Decoder converts engine values into Go values.
type Decoder struct {
	capsules *resource.Table
	proxies  ProxyFactory
}

// NewDecoder creates a decoder. proxies may be nil, in which case fact
// and instance addresses fail to decode.
func NewDecoder(capsules *resource.Table, proxies ProxyFactory) *Decoder {
	return &Decoder{capsules: capsules, proxies: proxies}
}

// Decode converts v into a Go value:
//
//	FLOAT            float64
//	INTEGER          int64
//	SYMBOL           Symbol
//	STRING           string
//	INSTANCE_NAME    InstanceName
//	MULTIFIELD       []any
//	FACT_ADDRESS     proxy from the ProxyFactory
//	INSTANCE_ADDRESS proxy from the ProxyFactory
//	EXTERNAL_ADDRESS the original Go value
//	VOID             nil
func (d *Decoder) Decode(v engine.Value) (any, error) {
	return d.decode(v, nil, 0)
}

// DecodeAll decodes each value in order.
func (d *Decoder) DecodeAll(vals []engine.Value) ([]any, error) {
	out := make([]any, len(vals))
	for i, v := range vals {
		x, err := d.decode(v, []string{strconv.Itoa(i)}, 0)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (d *Decoder) decode(v engine.Value, path []string, depth int) (any, error) {
	switch v.Type() {
	case engine.FLOAT:
		f, _ := v.Float()
		return f, nil
	case engine.INTEGER:
		i, _ := v.Integer()
		return i, nil
	case engine.SYMBOL:
		s, _ := v.Symbol()
		return Symbol(s), nil
	case engine.STRING:
		s, _ := v.Str()
		return s, nil
	case engine.INSTANCE_NAME:
		s, _ := v.InstanceName()
		return InstanceName(s), nil
	case engine.MULTIFIELD:
		return d.decodeMultifield(v, path, depth)
	case engine.FACT_ADDRESS:
		p, _ := v.Pointer()
		if d.proxies == nil || p == 0 {
			return nil, d.addressError(v, path)
		}
		return d.proxies.NewFact(p), nil
	case engine.INSTANCE_ADDRESS:
		p, _ := v.Pointer()
		if d.proxies == nil || p == 0 {
			return nil, d.addressError(v, path)
		}
		return d.proxies.NewInstance(p), nil
	case engine.EXTERNAL_ADDRESS:
		return d.decodeCapsule(v, path)
	case engine.VOID:
		return nil, nil
	}
	return nil, errors.New(errors.PhaseDecode, errors.KindValue).
		Path(path...).
		EngineType(v.Type().String()).
		Detail("unsupported discriminant").
		Build()
}

func (d *Decoder) decodeMultifield(v engine.Value, path []string, depth int) (any, error) {
	if depth >= MaxDepth {
		return nil, errors.New(errors.PhaseDecode, errors.KindValue).
			Path(path...).
			Detail("multifield nesting exceeds %d", MaxDepth).
			Build()
	}
	fields, _ := v.Fields()
	out := make([]any, len(fields))
	for i, f := range fields {
		// Engine indices are 1-based; report them that way.
		x, err := d.decode(f, append(path, strconv.Itoa(v.Begin()+i)), depth+1)
		if err != nil {
			return nil, err
		}
		out[i] = x
	}
	return out, nil
}

func (d *Decoder) decodeCapsule(v engine.Value, path []string) (any, error) {
	p, _ := v.Pointer()
	if d.capsules != nil {
		if x, ok := d.capsules.GetKind(resource.Handle(p), resource.KindCapsule); ok {
			return x, nil
		}
	}
	return nil, errors.New(errors.PhaseDecode, errors.KindValue).
		Path(path...).
		EngineType(engine.EXTERNAL_ADDRESS.String()).
		Detail("unknown external address %#x", uint64(p)).
		Build()
}

func (d *Decoder) addressError(v engine.Value, path []string) error {
	return errors.New(errors.PhaseDecode, errors.KindValue).
		Path(path...).
		EngineType(v.Type().String()).
		Detail("no proxy factory for address").
		Build()
}
