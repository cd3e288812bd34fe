package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueAccessors(t *testing.T) {
	v := Integer(42)
	i, ok := v.Integer()
	require.True(t, ok)
	assert.Equal(t, int64(42), i)
	_, ok = v.Float()
	assert.False(t, ok, "integer must not read as float")

	f, ok := Float(2).Float()
	require.True(t, ok)
	assert.Equal(t, 2.0, f)
	_, ok = Float(2).Integer()
	assert.False(t, ok, "float must not read as integer")

	s, ok := Symbol("TRUE").Symbol()
	require.True(t, ok)
	assert.Equal(t, "TRUE", s)
	_, ok = Symbol("x").Str()
	assert.False(t, ok)

	lex, ok := InstanceName("i1").Lexeme()
	require.True(t, ok)
	assert.Equal(t, "i1", lex)

	p, ok := FactAddress(7).Pointer()
	require.True(t, ok)
	assert.Equal(t, Ptr(7), p)
	_, ok = Integer(7).Pointer()
	assert.False(t, ok)

	assert.True(t, Void().IsVoid())
	assert.Equal(t, VOID, Void().Type())
}

func TestMultifieldBounds(t *testing.T) {
	empty := Multifield()
	assert.Equal(t, MULTIFIELD, empty.Type())
	assert.False(t, empty.IsVoid())
	assert.Equal(t, 1, empty.Begin())
	assert.Equal(t, 0, empty.End())
	assert.Greater(t, empty.Begin(), empty.End())
	fields, ok := empty.Fields()
	require.True(t, ok)
	assert.Empty(t, fields)

	mf := Multifield(Integer(1), Symbol("b"), String("c"))
	assert.Equal(t, 1, mf.Begin())
	assert.Equal(t, 3, mf.End())
	assert.Equal(t, 3, mf.Len())

	sub, ok := Subfield([]Value{Integer(1), Integer(2), Integer(3)}, 2, 3)
	require.True(t, ok)
	fields, _ = sub.Fields()
	require.Len(t, fields, 2)
	assert.True(t, fields[0].Equal(Integer(2)))

	_, ok = Subfield([]Value{Integer(1)}, 0, 1)
	assert.False(t, ok)
	_, ok = Subfield([]Value{Integer(1)}, 1, 2)
	assert.False(t, ok)
	_, ok = Subfield([]Value{Integer(1)}, 2, 1)
	assert.True(t, ok, "empty range after the last slot is legal")
}

func TestMultifieldCopiesInput(t *testing.T) {
	vals := []Value{Integer(1)}
	mf := Multifield(vals...)
	vals[0] = Integer(2)
	fields, _ := mf.Fields()
	assert.True(t, fields[0].Equal(Integer(1)))
}

func TestValueEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"same integer", Integer(1), Integer(1), true},
		{"integer vs float", Integer(1), Float(1), false},
		{"symbol vs string", Symbol("a"), String("a"), false},
		{"nan", Float(math.NaN()), Float(math.NaN()), true},
		{"nested", Multifield(Multifield(Integer(1))), Multifield(Multifield(Integer(1))), true},
		{"nested differs", Multifield(Multifield(Integer(1))), Multifield(Multifield(Integer(2))), false},
		{"pointers", FactAddress(1), FactAddress(1), true},
		{"pointer kinds", FactAddress(1), InstanceAddress(1), false},
		{"void", Void(), Void(), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
		})
	}
}

func TestValueString(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{Integer(-3), "-3"},
		{Float(3), "3.0"},
		{Float(2.5), "2.5"},
		{Float(1e300), "1e+300"},
		{Symbol("foo"), "foo"},
		{String(`say "hi"`), `"say \"hi\""`},
		{InstanceName("obj"), "[obj]"},
		{Multifield(Integer(1), Symbol("a"), String("b")), `(1 a "b")`},
		{Multifield(), "()"},
		{Void(), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.v.String())
	}
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "FLOAT", FLOAT.String())
	assert.Equal(t, "VOID", VOID.String())
	assert.Equal(t, "UNKNOWN(42)", Type(42).String())
	assert.True(t, INSTANCE_NAME.Valid())
	assert.False(t, Type(10).Valid())
}
