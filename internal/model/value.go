package model

import (
	"math"
	"strconv"
	"strings"
)

// Kind identifies the concrete type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindSequence
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindSequence:
		return "sequence"
	case KindMap:
		return "map"
	default:
		return "null"
	}
}

// Shape is the coarse classification used by the reshaping and scoring
// rules: everything that is neither a sequence nor a keyed map is a scalar.
type Shape uint8

const (
	ShapeScalar Shape = iota
	ShapeSequence
	ShapeMap
)

// Value is a dynamically shaped cell value decoded from participant data,
// answer keys or delimited files.
type Value struct {
	kind Kind
	s    string
	n    float64
	b    bool
	seq  []Value
	m    *Map
}

// Null returns the absent value.
func Null() Value { return Value{} }

// String wraps a string.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Number wraps a float.
func Number(f float64) Value { return Value{kind: KindNumber, n: f} }

// Int wraps an integer as a Number.
func Int(i int) Value { return Value{kind: KindNumber, n: float64(i)} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Sequence wraps an ordered list of values. A nil slice yields an empty sequence.
func Sequence(vs ...Value) Value {
	if vs == nil {
		vs = []Value{}
	}
	return Value{kind: KindSequence, seq: vs}
}

// Strings builds a sequence of string values.
func Strings(ss ...string) Value {
	vs := make([]Value, len(ss))
	for i, s := range ss {
		vs[i] = String(s)
	}
	return Sequence(vs...)
}

// MapOf wraps an ordered map. A nil map yields an empty map.
func MapOf(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: KindMap, m: m}
}

func (v Value) Kind() Kind { return v.kind }

// Shape classifies the value for shape-dependent rules.
func (v Value) Shape() Shape {
	switch v.kind {
	case KindSequence:
		return ShapeSequence
	case KindMap:
		return ShapeMap
	default:
		return ShapeScalar
	}
}

func (v Value) IsNull() bool { return v.kind == KindNull }

// Str returns the string payload if v is a string.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Num returns the numeric payload if v is a number.
func (v Value) Num() (float64, bool) { return v.n, v.kind == KindNumber }

// Truth returns the boolean payload if v is a bool.
func (v Value) Truth() (bool, bool) { return v.b, v.kind == KindBool }

// Seq returns the elements of a sequence, or nil.
func (v Value) Seq() []Value {
	if v.kind != KindSequence {
		return nil
	}
	return v.seq
}

// Map returns the map payload, or nil.
func (v Value) Map() *Map {
	if v.kind != KindMap {
		return nil
	}
	return v.m
}

// Len is the number of elements of a sequence or map, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindSequence:
		return len(v.seq)
	case KindMap:
		return v.m.Len()
	default:
		return 0
	}
}

// Float converts numbers, booleans and numeric strings to float64.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.n, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.s), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// KeyText returns the text used to look a scalar up in a keyed map.
// Numbers and booleans use their canonical text form.
func (v Value) KeyText() (string, bool) {
	switch v.kind {
	case KindString, KindNumber, KindBool:
		return v.Text(), true
	default:
		return "", false
	}
}

// Text renders scalars for display and delimited output. Null renders as
// the empty string; containers render as a bracketed summary, callers that
// need a faithful encoding use the jsonval package.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindNumber:
		return FormatNumber(v.n)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindSequence:
		parts := make([]string, len(v.seq))
		for i, e := range v.seq {
			parts[i] = e.Text()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindMap:
		parts := make([]string, 0, v.m.Len())
		for _, k := range v.m.Keys() {
			e, _ := v.m.Get(k)
			parts = append(parts, k+": "+e.Text())
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return ""
	}
}

// Equal reports deep equality. Numbers compare numerically, maps ignore
// key order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindString:
		return v.s == o.s
	case KindNumber:
		return v.n == o.n
	case KindBool:
		return v.b == o.b
	case KindSequence:
		if len(v.seq) != len(o.seq) {
			return false
		}
		for i := range v.seq {
			if !v.seq[i].Equal(o.seq[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if v.m.Len() != o.m.Len() {
			return false
		}
		for _, k := range v.m.Keys() {
			a, _ := v.m.Get(k)
			b, ok := o.m.Get(k)
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// FormatNumber renders integral floats without a fractional part.
func FormatNumber(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
