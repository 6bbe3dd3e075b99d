// Package vm implements the register-machine runtime: tagged values, the
// call stack of activation frames, the flat register stack, and the
// instruction dispatch loop.
package vm

import (
	"strconv"
	"strings"
)

// Kind discriminates the variants of a Value.
type Kind uint8

// Value variants. ShortString and LongString are two physical forms of
// the same semantic string type; equality and display do not distinguish
// them.
const (
	KindNil Kind = iota
	KindBoolean
	KindInteger
	KindFloat
	KindShortString
	KindLongString
	KindArray
)

// shortStringCap is the inline capacity of a short string. Anything
// longer is heap-allocated and shared by pointer.
const shortStringCap = 14

// Value is the runtime tagged union. A Value always holds exactly one
// variant. Copying a Value copies the tag and payload; array and long
// string payloads are shared by reference, so copies alias the same
// underlying storage.
type Value struct {
	kind     Kind
	b        bool
	i        int64
	f        float64
	short    [shortStringCap]byte
	shortLen uint8
	long     *string
	array    *Array
}

// Nil returns the nil value.
func Nil() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Int wraps a signed 64-bit integer.
func Int(i int64) Value { return Value{kind: KindInteger, i: i} }

// Float wraps a double-precision float.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Str wraps a string, choosing the inline form when it fits.
func Str(s string) Value {
	if len(s) <= shortStringCap {
		v := Value{kind: KindShortString, shortLen: uint8(len(s))}
		copy(v.short[:], s)
		return v
	}
	return Value{kind: KindLongString, long: &s}
}

// ArrayValue wraps an existing array. Every Value built from the same
// *Array aliases the same storage.
func ArrayValue(a *Array) Value { return Value{kind: KindArray, array: a} }

// ArrayOf builds a fresh array holding the given elements.
func ArrayOf(elems ...Value) Value {
	return ArrayValue(&Array{elems: append([]Value(nil), elems...)})
}

// IntsOf builds a fresh array of integer values.
func IntsOf(ints ...int64) Value {
	elems := make([]Value, len(ints))
	for i, n := range ints {
		elems[i] = Int(n)
	}
	return ArrayValue(&Array{elems: elems})
}

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsNil reports whether the value is nil.
func (v Value) IsNil() bool { return v.kind == KindNil }

// Bool returns the boolean payload.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == KindBoolean }

// Int returns the integer payload.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInteger }

// Float returns the float payload.
func (v Value) Float() (float64, bool) { return v.f, v.kind == KindFloat }

// Text returns the string payload regardless of physical form.
func (v Value) Text() (string, bool) {
	switch v.kind {
	case KindShortString:
		return string(v.short[:v.shortLen]), true
	case KindLongString:
		return *v.long, true
	}
	return "", false
}

// Array returns the shared array payload.
func (v Value) Array() (*Array, bool) { return v.array, v.kind == KindArray }

func (v Value) isString() bool {
	return v.kind == KindShortString || v.kind == KindLongString
}

// Equal reports structural equality. Equality is defined within a
// variant only: there is no cross-type numeric coercion, so
// Int(1).Equal(Float(1.0)) is false. The two string forms compare by
// bytes. Arrays compare element-wise.
func (v Value) Equal(o Value) bool {
	if v.isString() && o.isString() {
		a, _ := v.Text()
		b, _ := o.Text()
		return a == b
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBoolean:
		return v.b == o.b
	case KindInteger:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f
	}
	return v.array.equal(o.array)
}

// Compare orders two values. Ordering is defined only for integer pairs;
// every other pairing reports ok == false, which the comparison
// instructions treat as false for all of < > <= >=.
func (v Value) Compare(o Value) (int, bool) {
	if v.kind != KindInteger || o.kind != KindInteger {
		return 0, false
	}
	switch {
	case v.i < o.i:
		return -1, true
	case v.i > o.i:
		return 1, true
	}
	return 0, true
}

// Arithmetic operates pairwise on same-typed numeric values; any other
// pairing yields nil rather than an error. Integer division and remainder
// by zero also yield nil; float division by zero follows IEEE-754.

// Add returns v + o.
func (v Value) Add(o Value) Value {
	switch {
	case v.kind == KindInteger && o.kind == KindInteger:
		return Int(v.i + o.i)
	case v.kind == KindFloat && o.kind == KindFloat:
		return Float(v.f + o.f)
	}
	return Nil()
}

// Sub returns v - o.
func (v Value) Sub(o Value) Value {
	switch {
	case v.kind == KindInteger && o.kind == KindInteger:
		return Int(v.i - o.i)
	case v.kind == KindFloat && o.kind == KindFloat:
		return Float(v.f - o.f)
	}
	return Nil()
}

// Mul returns v * o.
func (v Value) Mul(o Value) Value {
	switch {
	case v.kind == KindInteger && o.kind == KindInteger:
		return Int(v.i * o.i)
	case v.kind == KindFloat && o.kind == KindFloat:
		return Float(v.f * o.f)
	}
	return Nil()
}

// Div returns v / o.
func (v Value) Div(o Value) Value {
	switch {
	case v.kind == KindInteger && o.kind == KindInteger:
		if o.i == 0 {
			return Nil()
		}
		return Int(v.i / o.i)
	case v.kind == KindFloat && o.kind == KindFloat:
		return Float(v.f / o.f)
	}
	return Nil()
}

// Rem returns v % o. Remainder is defined only for integers.
func (v Value) Rem(o Value) Value {
	if v.kind == KindInteger && o.kind == KindInteger && o.i != 0 {
		return Int(v.i % o.i)
	}
	return Nil()
}

// String renders the value for display: nil, true, 42, 3.14, "text",
// [1, 2, 3].
func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindInteger:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindShortString, KindLongString:
		s, _ := v.Text()
		return strconv.Quote(s)
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, elem := range v.array.elems {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(elem.String())
	}
	b.WriteByte(']')
	return b.String()
}

// Array is an ordered, interiorly mutable sequence of values. Multiple
// Values may alias one Array; writes through any alias are visible
// through all of them.
type Array struct {
	elems []Value
}

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.elems) }

// Get clones out the element at index. Out-of-range reads yield nil.
func (a *Array) Get(index int64) Value {
	if index < 0 || index >= int64(len(a.elems)) {
		return Nil()
	}
	return a.elems[index]
}

// Set overwrites the slot at index. Writing exactly one past the end
// appends; any other out-of-range write is a no-op.
func (a *Array) Set(index int64, value Value) {
	switch {
	case index >= 0 && index < int64(len(a.elems)):
		a.elems[index] = value
	case index == int64(len(a.elems)):
		a.elems = append(a.elems, value)
	}
}

func (a *Array) equal(o *Array) bool {
	if a == o {
		return true
	}
	if len(a.elems) != len(o.elems) {
		return false
	}
	for i := range a.elems {
		if !a.elems[i].Equal(o.elems[i]) {
			return false
		}
	}
	return true
}
