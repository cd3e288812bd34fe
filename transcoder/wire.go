package transcoder

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/clips-runtime/engine"
	"github.com/wippyai/clips-runtime/errors"
)

// Wire format limits.
const (
	MaxStringSize = 16 << 20
	MaxListLength = 1 << 20
)

// Wire layout, little endian:
//
//	tag u8
//	FLOAT            f64 bits
//	INTEGER          i64
//	SYMBOL/STRING/INSTANCE_NAME  u32 length, bytes
//	MULTIFIELD       u32 count, count values
//	*_ADDRESS        u64 pointer
//	VOID             nothing
//
// Multifields are normalized on the wire: only Begin..End is sent.

// AppendWire appends the wire encoding of v to buf.
func AppendWire(buf []byte, v engine.Value) []byte {
	buf = append(buf, byte(v.Type()))
	switch v.Type() {
	case engine.FLOAT:
		f, _ := v.Float()
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
	case engine.INTEGER:
		i, _ := v.Integer()
		buf = binary.LittleEndian.AppendUint64(buf, uint64(i))
	case engine.SYMBOL, engine.STRING, engine.INSTANCE_NAME:
		s, _ := v.Lexeme()
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	case engine.MULTIFIELD:
		fields, _ := v.Fields()
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(fields)))
		for _, f := range fields {
			buf = AppendWire(buf, f)
		}
	case engine.EXTERNAL_ADDRESS, engine.FACT_ADDRESS, engine.INSTANCE_ADDRESS:
		p, _ := v.Pointer()
		buf = binary.LittleEndian.AppendUint64(buf, uint64(p))
	}
	return buf
}

// AppendWireList appends a count-prefixed sequence of values.
func AppendWireList(buf []byte, vals []engine.Value) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(vals)))
	for _, v := range vals {
		buf = AppendWire(buf, v)
	}
	return buf
}

// ReadWire decodes one value and returns the number of bytes consumed.
func ReadWire(data []byte) (engine.Value, int, error) {
	return readWire(data, 0)
}

// ReadWireList decodes a count-prefixed sequence of values.
func ReadWireList(data []byte) ([]engine.Value, int, error) {
	if len(data) < 4 {
		return nil, 0, truncated("list header")
	}
	n := binary.LittleEndian.Uint32(data)
	if n > MaxListLength {
		return nil, 0, tooLarge("list", n)
	}
	off := 4
	vals := make([]engine.Value, 0, n)
	for i := uint32(0); i < n; i++ {
		v, used, err := readWire(data[off:], 0)
		if err != nil {
			return nil, 0, err
		}
		vals = append(vals, v)
		off += used
	}
	return vals, off, nil
}

func readWire(data []byte, depth int) (engine.Value, int, error) {
	if depth > MaxDepth {
		return engine.Value{}, 0, errors.New(errors.PhaseDecode, errors.KindValue).
			Detail("wire nesting exceeds %d", MaxDepth).
			Build()
	}
	if len(data) < 1 {
		return engine.Value{}, 0, truncated("tag")
	}
	tag := engine.Type(data[0])
	rest := data[1:]

	switch tag {
	case engine.FLOAT, engine.INTEGER, engine.EXTERNAL_ADDRESS, engine.FACT_ADDRESS, engine.INSTANCE_ADDRESS:
		if len(rest) < 8 {
			return engine.Value{}, 0, truncated(tag.String())
		}
		u := binary.LittleEndian.Uint64(rest)
		var v engine.Value
		switch tag {
		case engine.FLOAT:
			v = engine.Float(math.Float64frombits(u))
		case engine.INTEGER:
			v = engine.Integer(int64(u))
		case engine.EXTERNAL_ADDRESS:
			v = engine.ExternalAddress(engine.Ptr(u))
		case engine.FACT_ADDRESS:
			v = engine.FactAddress(engine.Ptr(u))
		default:
			v = engine.InstanceAddress(engine.Ptr(u))
		}
		return v, 9, nil

	case engine.SYMBOL, engine.STRING, engine.INSTANCE_NAME:
		if len(rest) < 4 {
			return engine.Value{}, 0, truncated(tag.String())
		}
		n := binary.LittleEndian.Uint32(rest)
		if n > MaxStringSize {
			return engine.Value{}, 0, tooLarge("string", n)
		}
		if uint32(len(rest)-4) < n {
			return engine.Value{}, 0, truncated(tag.String())
		}
		s := string(rest[4 : 4+n])
		var v engine.Value
		switch tag {
		case engine.SYMBOL:
			v = engine.Symbol(s)
		case engine.STRING:
			v = engine.String(s)
		default:
			v = engine.InstanceName(s)
		}
		return v, 5 + int(n), nil

	case engine.MULTIFIELD:
		if len(rest) < 4 {
			return engine.Value{}, 0, truncated(tag.String())
		}
		n := binary.LittleEndian.Uint32(rest)
		if n > MaxListLength {
			return engine.Value{}, 0, tooLarge("multifield", n)
		}
		off := 5
		fields := make([]engine.Value, 0, n)
		for i := uint32(0); i < n; i++ {
			f, used, err := readWire(data[off:], depth+1)
			if err != nil {
				return engine.Value{}, 0, err
			}
			fields = append(fields, f)
			off += used
		}
		return engine.Multifield(fields...), off, nil

	case engine.VOID:
		return engine.Void(), 1, nil
	}

	return engine.Value{}, 0, errors.New(errors.PhaseDecode, errors.KindValue).
		EngineType(tag.String()).
		Detail("unknown wire tag %d", uint8(tag)).
		Build()
}

func truncated(what string) error {
	return errors.New(errors.PhaseDecode, errors.KindValue).
		Detail("truncated wire data reading %s", what).
		Build()
}

func tooLarge(what string, n uint32) error {
	return errors.New(errors.PhaseDecode, errors.KindValue).
		Detail("%s length %d exceeds limit", what, n).
		Build()
}
