package engine

import (
	"math"
	"strconv"
	"strings"
)

// Type is the engine's value discriminant. Codes match the CLIPS numbering.
type Type uint8

const (
	FLOAT Type = iota
	INTEGER
	SYMBOL
	STRING
	MULTIFIELD
	EXTERNAL_ADDRESS
	FACT_ADDRESS
	INSTANCE_ADDRESS
	INSTANCE_NAME
	VOID
)

var typeNames = [...]string{
	FLOAT:            "FLOAT",
	INTEGER:          "INTEGER",
	SYMBOL:           "SYMBOL",
	STRING:           "STRING",
	MULTIFIELD:       "MULTIFIELD",
	EXTERNAL_ADDRESS: "EXTERNAL_ADDRESS",
	FACT_ADDRESS:     "FACT_ADDRESS",
	INSTANCE_ADDRESS: "INSTANCE_ADDRESS",
	INSTANCE_NAME:    "INSTANCE_NAME",
	VOID:             "VOID",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
}

// Valid reports whether t is a known discriminant.
func (t Type) Valid() bool {
	return t <= VOID
}

// Value is a tagged engine value. It is immutable: construct a new one
// instead of modifying an existing value.
type Value struct {
	typ     Type
	lexeme  string
	integer int64
	float   float64
	fields  []Value
	begin   int
	end     int
	ptr     Ptr
}

// Float returns a FLOAT value.
func Float(f float64) Value {
	return Value{typ: FLOAT, float: f}
}

// Integer returns an INTEGER value.
func Integer(i int64) Value {
	return Value{typ: INTEGER, integer: i}
}

// Symbol returns a SYMBOL value.
func Symbol(s string) Value {
	return Value{typ: SYMBOL, lexeme: s}
}

// String returns a STRING value.
func String(s string) Value {
	return Value{typ: STRING, lexeme: s}
}

// InstanceName returns an INSTANCE_NAME value.
func InstanceName(s string) Value {
	return Value{typ: INSTANCE_NAME, lexeme: s}
}

// Multifield returns a MULTIFIELD spanning all of vals.
// The slice is copied.
func Multifield(vals ...Value) Value {
	fields := make([]Value, len(vals))
	copy(fields, vals)
	return Value{typ: MULTIFIELD, fields: fields, begin: 1, end: len(fields)}
}

// Subfield returns a MULTIFIELD over the 1-based inclusive range [begin, end]
// of vals. An empty range is expressed as end == begin-1.
func Subfield(vals []Value, begin, end int) (Value, bool) {
	if begin < 1 || end < begin-1 || end > len(vals) {
		return Value{}, false
	}
	fields := make([]Value, len(vals))
	copy(fields, vals)
	return Value{typ: MULTIFIELD, fields: fields, begin: begin, end: end}, true
}

// ExternalAddress returns an EXTERNAL_ADDRESS value holding an opaque handle.
func ExternalAddress(p Ptr) Value {
	return Value{typ: EXTERNAL_ADDRESS, ptr: p}
}

// FactAddress returns a FACT_ADDRESS value.
func FactAddress(p Ptr) Value {
	return Value{typ: FACT_ADDRESS, ptr: p}
}

// InstanceAddress returns an INSTANCE_ADDRESS value.
func InstanceAddress(p Ptr) Value {
	return Value{typ: INSTANCE_ADDRESS, ptr: p}
}

// Void returns the VOID value.
func Void() Value {
	return Value{typ: VOID}
}

// Type returns the discriminant.
func (v Value) Type() Type { return v.typ }

// IsVoid reports whether v is VOID.
func (v Value) IsVoid() bool { return v.typ == VOID }

func (v Value) Float() (float64, bool) {
	return v.float, v.typ == FLOAT
}

func (v Value) Integer() (int64, bool) {
	return v.integer, v.typ == INTEGER
}

// Lexeme returns the text of a SYMBOL, STRING or INSTANCE_NAME.
func (v Value) Lexeme() (string, bool) {
	switch v.typ {
	case SYMBOL, STRING, INSTANCE_NAME:
		return v.lexeme, true
	}
	return "", false
}

func (v Value) Symbol() (string, bool) {
	return v.lexeme, v.typ == SYMBOL
}

func (v Value) Str() (string, bool) {
	return v.lexeme, v.typ == STRING
}

func (v Value) InstanceName() (string, bool) {
	return v.lexeme, v.typ == INSTANCE_NAME
}

// Fields returns the multifield slots between Begin and End.
// The returned slice must not be modified.
func (v Value) Fields() ([]Value, bool) {
	if v.typ != MULTIFIELD {
		return nil, false
	}
	if v.end < v.begin {
		return []Value{}, true
	}
	return v.fields[v.begin-1 : v.end], true
}

// Begin is the 1-based index of the first multifield slot.
func (v Value) Begin() int { return v.begin }

// End is the 1-based inclusive index of the last multifield slot.
// It is Begin()-1 for an empty multifield.
func (v Value) End() int { return v.end }

// Len returns the number of multifield slots in range.
func (v Value) Len() int {
	if v.typ != MULTIFIELD || v.end < v.begin {
		return 0
	}
	return v.end - v.begin + 1
}

// Pointer returns the handle of an address value.
func (v Value) Pointer() (Ptr, bool) {
	switch v.typ {
	case EXTERNAL_ADDRESS, FACT_ADDRESS, INSTANCE_ADDRESS:
		return v.ptr, true
	}
	return 0, false
}

// Equal reports deep equality over the visible range of multifields.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case FLOAT:
		return v.float == o.float || (math.IsNaN(v.float) && math.IsNaN(o.float))
	case INTEGER:
		return v.integer == o.integer
	case SYMBOL, STRING, INSTANCE_NAME:
		return v.lexeme == o.lexeme
	case MULTIFIELD:
		a, _ := v.Fields()
		b, _ := o.Fields()
		if len(a) != len(b) {
			return false
		}
		for i := range a {
			if !a[i].Equal(b[i]) {
				return false
			}
		}
		return true
	case EXTERNAL_ADDRESS, FACT_ADDRESS, INSTANCE_ADDRESS:
		return v.ptr == o.ptr
	}
	return true
}

// String renders v the way the engine prints it.
func (v Value) String() string {
	var b strings.Builder
	v.write(&b)
	return b.String()
}

func (v Value) write(b *strings.Builder) {
	switch v.typ {
	case FLOAT:
		b.WriteString(FormatFloat(v.float))
	case INTEGER:
		b.WriteString(strconv.FormatInt(v.integer, 10))
	case SYMBOL:
		b.WriteString(v.lexeme)
	case STRING:
		b.WriteString(QuoteString(v.lexeme))
	case INSTANCE_NAME:
		b.WriteByte('[')
		b.WriteString(v.lexeme)
		b.WriteByte(']')
	case MULTIFIELD:
		fields, _ := v.Fields()
		b.WriteByte('(')
		for i, f := range fields {
			if i > 0 {
				b.WriteByte(' ')
			}
			f.write(b)
		}
		b.WriteByte(')')
	case EXTERNAL_ADDRESS:
		b.WriteString("<Pointer-")
		b.WriteString(strconv.FormatUint(uint64(v.ptr), 16))
		b.WriteByte('>')
	case FACT_ADDRESS:
		b.WriteString("<Fact-Address-")
		b.WriteString(strconv.FormatUint(uint64(v.ptr), 16))
		b.WriteByte('>')
	case INSTANCE_ADDRESS:
		b.WriteString("<Instance-Address-")
		b.WriteString(strconv.FormatUint(uint64(v.ptr), 16))
		b.WriteByte('>')
	case VOID:
	}
}

// FormatFloat formats f so that it always reads back as a float.
func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	s := strconv.FormatFloat(f, 'g', 15, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

// QuoteString renders s as an engine string literal.
func QuoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(c)
	}
	b.WriteByte('"')
	return b.String()
}
