package transcoder

import (
	"math"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clips-runtime/engine"
	clipserr "github.com/wippyai/clips-runtime/errors"
	"github.com/wippyai/clips-runtime/resource"
)

type fakeProxy struct {
	owner any
	addr  engine.Value
}

func (p fakeProxy) Owner() any            { return p.owner }
func (p fakeProxy) Address() engine.Value { return p.addr }

type fakeFactory struct{ owner any }

func (f fakeFactory) NewFact(p engine.Ptr) any {
	return fakeProxy{owner: f.owner, addr: engine.FactAddress(p)}
}

func (f fakeFactory) NewInstance(p engine.Ptr) any {
	return fakeProxy{owner: f.owner, addr: engine.InstanceAddress(p)}
}

func newCodec(t *testing.T) (*Encoder, *Decoder) {
	t.Helper()
	table := resource.NewTable()
	t.Cleanup(func() { _ = table.Close() })
	owner := new(int)
	return NewEncoder(table, owner), NewDecoder(table, fakeFactory{owner})
}

func TestRoundTrip(t *testing.T) {
	enc, dec := newCodec(t)

	tests := []struct {
		name string
		in   any
	}{
		{"integer", int64(-42)},
		{"float", 3.25},
		{"string", "hello world"},
		{"empty string", ""},
		{"symbol", Symbol("foo")},
		{"instance name", InstanceName("obj-1")},
		{"list", []any{int64(1), 2.5, "s", Symbol("sym")}},
		{"empty list", []any{}},
		{"nested 3 levels", []any{[]any{[]any{int64(1), "a"}, Symbol("b")}, int64(2)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := enc.Encode(tt.in)
			require.NoError(t, err)
			out, err := dec.Decode(v)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.in, out); diff != "" {
				t.Errorf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEncodeMapping(t *testing.T) {
	enc, _ := newCodec(t)

	type score int
	type label string

	tests := []struct {
		name string
		in   any
		want engine.Value
	}{
		{"nil", nil, engine.Symbol("nil")},
		{"true", true, engine.Symbol("TRUE")},
		{"false", false, engine.Symbol("FALSE")},
		{"int", 7, engine.Integer(7)},
		{"int8", int8(-3), engine.Integer(-3)},
		{"uint32", uint32(9), engine.Integer(9)},
		{"max uint64 in range", uint64(math.MaxInt64), engine.Integer(math.MaxInt64)},
		{"float32", float32(1.5), engine.Float(1.5)},
		{"whole float stays float", 2.0, engine.Float(2)},
		{"named int", score(3), engine.Integer(3)},
		{"named string", label("x"), engine.String("x")},
		{"bytes", []byte("raw"), engine.String("raw")},
		{"typed slice", []int{1, 2}, engine.Multifield(engine.Integer(1), engine.Integer(2))},
		{"array", [2]string{"a", "b"}, engine.Multifield(engine.String("a"), engine.String("b"))},
		{"nil slice", []string(nil), engine.Multifield()},
		{"value passthrough", engine.Symbol("x"), engine.Symbol("x")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := enc.Encode(tt.in)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v (%s), want %v (%s)", got, got.Type(), tt.want, tt.want.Type())
		})
	}
}

func TestEncodeEmptyListIsMultifield(t *testing.T) {
	enc, _ := newCodec(t)
	v, err := enc.Encode([]any{})
	require.NoError(t, err)
	assert.Equal(t, engine.MULTIFIELD, v.Type())
	assert.Greater(t, v.Begin(), v.End())
}

func TestEncodeUint64Overflow(t *testing.T) {
	enc, _ := newCodec(t)
	_, err := enc.Encode(uint64(math.MaxInt64) + 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, clipserr.ErrValue)

	_, err = enc.Encode([]any{int64(1), uint64(math.MaxUint64)})
	require.Error(t, err)
	var e *clipserr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, []string{"1"}, e.Path)
}

func TestCapsuleRoundTrip(t *testing.T) {
	enc, dec := newCodec(t)

	type handle struct{ id int }
	h := &handle{id: 9}

	v, err := enc.Encode(h)
	require.NoError(t, err)
	assert.Equal(t, engine.EXTERNAL_ADDRESS, v.Type())

	again, err := enc.Encode(h)
	require.NoError(t, err)
	assert.True(t, v.Equal(again), "same object must map to the same address")

	out, err := dec.Decode(v)
	require.NoError(t, err)
	assert.Same(t, h, out)

	m := map[string]int{"a": 1}
	v, err = enc.Encode(m)
	require.NoError(t, err)
	out, err = dec.Decode(v)
	require.NoError(t, err)
	assert.Equal(t, m, out)
}

func TestCapsuleWithoutTable(t *testing.T) {
	enc := NewEncoder(nil, nil)
	_, err := enc.Encode(struct{}{})
	assert.ErrorIs(t, err, clipserr.ErrValue)
}

func TestDecodeUnknownExternalAddress(t *testing.T) {
	_, dec := newCodec(t)
	_, err := dec.Decode(engine.ExternalAddress(12345))
	assert.ErrorIs(t, err, clipserr.ErrValue)
}

func TestDecodeVoidIsNil(t *testing.T) {
	_, dec := newCodec(t)
	out, err := dec.Decode(engine.Void())
	require.NoError(t, err)
	assert.Nil(t, out)

	nilSym, err := dec.Decode(engine.Symbol("nil"))
	require.NoError(t, err)
	assert.Equal(t, Nil, nilSym, "the nil symbol is a real symbol, not void")
}

func TestDecodeSubfieldRange(t *testing.T) {
	_, dec := newCodec(t)
	mf, ok := engine.Subfield([]engine.Value{engine.Integer(1), engine.Integer(2), engine.Integer(3)}, 2, 3)
	require.True(t, ok)
	out, err := dec.Decode(mf)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(2), int64(3)}, out)
}

func TestProxies(t *testing.T) {
	enc, dec := newCodec(t)

	out, err := dec.Decode(engine.FactAddress(5))
	require.NoError(t, err)
	p, ok := out.(fakeProxy)
	require.True(t, ok)

	v, err := enc.Encode(p)
	require.NoError(t, err)
	assert.True(t, v.Equal(engine.FactAddress(5)))

	foreign := fakeProxy{owner: new(int), addr: engine.InstanceAddress(1)}
	_, err = enc.Encode(foreign)
	assert.ErrorIs(t, err, clipserr.ErrValue)

	_, err = NewDecoder(nil, nil).Decode(engine.FactAddress(1))
	assert.ErrorIs(t, err, clipserr.ErrValue)
}

type ptrProxy struct{ owner any }

func (p *ptrProxy) Owner() any            { return p.owner }
func (p *ptrProxy) Address() engine.Value { return engine.FactAddress(1) }

func TestEncodeNilProxy(t *testing.T) {
	enc, _ := newCodec(t)

	var p *ptrProxy
	v, err := enc.Encode(p)
	require.NoError(t, err)
	assert.Equal(t, engine.Symbol("nil"), v)

	v, err = enc.Encode([]any{p, 1})
	require.NoError(t, err)
	assert.True(t, v.Equal(engine.Multifield(engine.Symbol("nil"), engine.Integer(1))), v.String())
}

func TestSymbolEqualsText(t *testing.T) {
	_, dec := newCodec(t)
	out, err := dec.Decode(engine.Symbol("foo"))
	require.NoError(t, err)
	assert.True(t, out == Symbol("foo"))
	assert.True(t, out.(Symbol) == "foo")
	_, isString := out.(string)
	assert.False(t, isString)
}

func TestBool(t *testing.T) {
	b, ok := Bool(Symbol("TRUE"))
	assert.True(t, ok)
	assert.True(t, b)
	b, ok = Bool(Symbol("FALSE"))
	assert.True(t, ok)
	assert.False(t, b)
	_, ok = Bool(Symbol("yes"))
	assert.False(t, ok)
	_, ok = Bool("TRUE")
	assert.False(t, ok, "strings are not booleans")
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name string
		in   any
		to   reflect.Type
		want any
	}{
		{"int64 to int", int64(5), reflect.TypeOf(0), 5},
		{"int64 to uint8", int64(200), reflect.TypeOf(uint8(0)), uint8(200)},
		{"float64 to float32", 1.5, reflect.TypeOf(float32(0)), float32(1.5)},
		{"symbol to string", Symbol("abc"), reflect.TypeOf(""), "abc"},
		{"symbol to bool", Symbol("TRUE"), reflect.TypeOf(false), true},
		{"list to []int", []any{int64(1), int64(2)}, reflect.TypeOf([]int{}), []int{1, 2}},
		{"anything to any", Symbol("x"), reflect.TypeOf((*any)(nil)).Elem(), Symbol("x")},
		{"nil to slice", nil, reflect.TypeOf([]string{}), []string(nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(tt.in, tt.to)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Interface())
		})
	}

	failures := []struct {
		name string
		in   any
		to   reflect.Type
	}{
		{"int to float", int64(1), reflect.TypeOf(0.0)},
		{"float to int", 1.0, reflect.TypeOf(0)},
		{"overflow int8", int64(300), reflect.TypeOf(int8(0))},
		{"negative to uint", int64(-1), reflect.TypeOf(uint(0))},
		{"nil to int", nil, reflect.TypeOf(0)},
		{"string to bool", "TRUE", reflect.TypeOf(false)},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Convert(tt.in, tt.to)
			assert.ErrorIs(t, err, clipserr.ErrValue)
		})
	}
}
