package bytecode

import (
	"fmt"
	"strconv"
)

// ConstantKind discriminates the variants of a ConstantValue.
type ConstantKind uint8

// Constant variants.
const (
	ConstInteger ConstantKind = iota
	ConstFloat
	ConstBoolean
	ConstString
)

// ConstantValue is a compile-time literal stored in a Procedure's constant
// table. Instructions refer to entries with a ConstantKey; the virtual
// machine converts an entry losslessly into a runtime value of the
// matching variant.
//
// Each procedure has its own table. The compiler interns entries, so a
// table never holds two structurally equal values.
type ConstantValue struct {
	kind ConstantKind
	i    int64
	f    float64
	b    bool
	s    string
}

// IntegerConstant wraps a signed 64-bit integer.
func IntegerConstant(v int64) ConstantValue {
	return ConstantValue{kind: ConstInteger, i: v}
}

// FloatConstant wraps a double-precision float.
func FloatConstant(v float64) ConstantValue {
	return ConstantValue{kind: ConstFloat, f: v}
}

// BooleanConstant wraps a boolean.
func BooleanConstant(v bool) ConstantValue {
	return ConstantValue{kind: ConstBoolean, b: v}
}

// StringConstant wraps a string.
func StringConstant(v string) ConstantValue {
	return ConstantValue{kind: ConstString, s: v}
}

// Kind returns the variant tag.
func (c ConstantValue) Kind() ConstantKind { return c.kind }

// Int returns the integer payload. Valid only for ConstInteger.
func (c ConstantValue) Int() int64 { return c.i }

// Float returns the float payload. Valid only for ConstFloat.
func (c ConstantValue) Float() float64 { return c.f }

// Bool returns the boolean payload. Valid only for ConstBoolean.
func (c ConstantValue) Bool() bool { return c.b }

// Str returns the string payload. Valid only for ConstString.
func (c ConstantValue) Str() string { return c.s }

// Equal reports structural equality. Values of different variants are
// never equal, which is the interning rule: Integer(1) and Float(1.0) get
// separate table entries.
func (c ConstantValue) Equal(o ConstantValue) bool {
	if c.kind != o.kind {
		return false
	}
	switch c.kind {
	case ConstInteger:
		return c.i == o.i
	case ConstFloat:
		return c.f == o.f
	case ConstBoolean:
		return c.b == o.b
	}
	return c.s == o.s
}

// String renders the constant with a type suffix, e.g. 1000_i64.
func (c ConstantValue) String() string {
	switch c.kind {
	case ConstInteger:
		return fmt.Sprintf("%d_i64", c.i)
	case ConstFloat:
		return strconv.FormatFloat(c.f, 'g', -1, 64) + "_f64"
	case ConstBoolean:
		return strconv.FormatBool(c.b)
	}
	return strconv.Quote(c.s)
}
