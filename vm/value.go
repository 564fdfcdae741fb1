package vm

import (
	"fmt"
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Kind: runtime type tags
// ---------------------------------------------------------------------------

// Kind identifies the runtime representation of a Value.
type Kind uint8

const (
	KindVoid Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindBool
	KindChar
	KindString
	KindObject
)

var kindNames = map[Kind]string{
	KindVoid:    "void",
	KindInt8:    "int8",
	KindInt16:   "int16",
	KindInt32:   "int32",
	KindInt64:   "int64",
	KindUint8:   "uint8",
	KindUint16:  "uint16",
	KindUint32:  "uint32",
	KindUint64:  "uint64",
	KindFloat32: "float32",
	KindFloat64: "float64",
	KindBool:    "bool",
	KindChar:    "char",
	KindString:  "string",
	KindObject:  "object",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// IsSigned returns true for the signed integer kinds.
func (k Kind) IsSigned() bool {
	return k >= KindInt8 && k <= KindInt64
}

// IsUnsigned returns true for the unsigned integer kinds.
func (k Kind) IsUnsigned() bool {
	return k >= KindUint8 && k <= KindUint64
}

// IsInteger returns true for any integer kind, signed or unsigned.
func (k Kind) IsInteger() bool {
	return k.IsSigned() || k.IsUnsigned()
}

// IsFloat returns true for float32 and float64.
func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

// IsNumeric returns true for integer and float kinds.
func (k Kind) IsNumeric() bool {
	return k.IsInteger() || k.IsFloat()
}

// IsReference returns true for the reference kinds (string, object).
func (k Kind) IsReference() bool {
	return k == KindString || k == KindObject
}

// ---------------------------------------------------------------------------
// Value: tagged union
// ---------------------------------------------------------------------------

// Value is a tagged union over every ObjectIR runtime type. The tag must
// match the statically declared kind at each stack slot and storage
// location; a mismatch is a type fault, never a silent coercion.
//
// Integers, bools, chars and floats share the bits field; strings and
// object references have dedicated fields so the union stays free of
// unsafe pointer packing.
type Value struct {
	kind Kind
	bits uint64
	str  string
	ref  *Object
}

// Object is an opaque reference value: an instance of a registered class
// with named fields. The heap model is deliberately thin; Go owns the
// memory and there is no collector of our own.
type Object struct {
	Class  *Class
	Fields map[string]Value
}

// Kind returns the value's type tag.
func (v Value) Kind() Kind { return v.kind }

// IsNull returns true for the null reference.
func (v Value) IsNull() bool {
	return v.kind == KindObject && v.ref == nil
}

// Null returns the null reference value.
func Null() Value {
	return Value{kind: KindObject}
}

// ZeroValue returns the zero value for a kind: 0 for numerics, false,
// the NUL char, the empty string, or null for object references.
func ZeroValue(k Kind) Value {
	switch k {
	case KindString:
		return Value{kind: KindString}
	case KindObject:
		return Value{kind: KindObject}
	default:
		return Value{kind: k}
	}
}

// ---------------------------------------------------------------------------
// Constructors
// ---------------------------------------------------------------------------

func FromInt8(n int8) Value   { return Value{kind: KindInt8, bits: uint64(int64(n))} }
func FromInt16(n int16) Value { return Value{kind: KindInt16, bits: uint64(int64(n))} }
func FromInt32(n int32) Value { return Value{kind: KindInt32, bits: uint64(int64(n))} }
func FromInt64(n int64) Value { return Value{kind: KindInt64, bits: uint64(n)} }

func FromUint8(n uint8) Value   { return Value{kind: KindUint8, bits: uint64(n)} }
func FromUint16(n uint16) Value { return Value{kind: KindUint16, bits: uint64(n)} }
func FromUint32(n uint32) Value { return Value{kind: KindUint32, bits: uint64(n)} }
func FromUint64(n uint64) Value { return Value{kind: KindUint64, bits: n} }

func FromFloat32(f float32) Value {
	return Value{kind: KindFloat32, bits: uint64(math.Float32bits(f))}
}

func FromFloat64(f float64) Value {
	return Value{kind: KindFloat64, bits: math.Float64bits(f)}
}

func FromBool(b bool) Value {
	var bits uint64
	if b {
		bits = 1
	}
	return Value{kind: KindBool, bits: bits}
}

func FromChar(r rune) Value {
	return Value{kind: KindChar, bits: uint64(uint32(r))}
}

func FromString(s string) Value {
	return Value{kind: KindString, str: s}
}

func FromObject(o *Object) Value {
	return Value{kind: KindObject, ref: o}
}

// FromIntKind builds an integer value of the given kind from n,
// truncating to the kind's width.
func FromIntKind(k Kind, n int64) Value {
	switch k {
	case KindInt8:
		return FromInt8(int8(n))
	case KindInt16:
		return FromInt16(int16(n))
	case KindInt32:
		return FromInt32(int32(n))
	case KindInt64:
		return FromInt64(n)
	case KindUint8:
		return FromUint8(uint8(n))
	case KindUint16:
		return FromUint16(uint16(n))
	case KindUint32:
		return FromUint32(uint32(n))
	case KindUint64:
		return FromUint64(uint64(n))
	default:
		panic("FromIntKind: not an integer kind: " + k.String())
	}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------
// Accessors panic on a tag mismatch. The engine checks kinds before
// touching a value, so a panic here indicates an interpreter bug, not a
// user error.

// Int64 returns any integer-kind value widened to int64.
// Unsigned values are reinterpreted bit-for-bit.
func (v Value) Int64() int64 {
	if !v.kind.IsInteger() {
		panic("Value.Int64: not an integer: " + v.kind.String())
	}
	return int64(v.bits)
}

// Uint64 returns any integer-kind value as its raw 64-bit pattern.
func (v Value) Uint64() uint64 {
	if !v.kind.IsInteger() {
		panic("Value.Uint64: not an integer: " + v.kind.String())
	}
	return v.bits
}

// Float64 returns a float32 or float64 value widened to float64.
func (v Value) Float64() float64 {
	switch v.kind {
	case KindFloat32:
		return float64(math.Float32frombits(uint32(v.bits)))
	case KindFloat64:
		return math.Float64frombits(v.bits)
	default:
		panic("Value.Float64: not a float: " + v.kind.String())
	}
}

// Bool returns a bool-kind value.
func (v Value) Bool() bool {
	if v.kind != KindBool {
		panic("Value.Bool: not a bool: " + v.kind.String())
	}
	return v.bits != 0
}

// Char returns a char-kind value.
func (v Value) Char() rune {
	if v.kind != KindChar {
		panic("Value.Char: not a char: " + v.kind.String())
	}
	return rune(uint32(v.bits))
}

// Str returns a string-kind value.
func (v Value) Str() string {
	if v.kind != KindString {
		panic("Value.Str: not a string: " + v.kind.String())
	}
	return v.str
}

// Ref returns the object reference, or nil for null.
func (v Value) Ref() *Object {
	if v.kind != KindObject {
		panic("Value.Ref: not an object: " + v.kind.String())
	}
	return v.ref
}

// ---------------------------------------------------------------------------
// Equality and formatting
// ---------------------------------------------------------------------------

// Equal reports value equality for same-kind values: bit equality for
// numerics, bools and chars; string equality; reference identity for
// objects. Values of differing kinds are never equal.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindObject:
		return v.ref == o.ref
	default:
		return v.bits == o.bits
	}
}

// String renders the value for diagnostics and console output.
func (v Value) String() string {
	switch {
	case v.kind.IsSigned():
		return strconv.FormatInt(v.Int64(), 10)
	case v.kind.IsUnsigned():
		return strconv.FormatUint(v.bits, 10)
	case v.kind.IsFloat():
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	case v.kind == KindBool:
		return strconv.FormatBool(v.Bool())
	case v.kind == KindChar:
		return string(v.Char())
	case v.kind == KindString:
		return v.str
	case v.kind == KindObject:
		if v.ref == nil {
			return "null"
		}
		return fmt.Sprintf("%s@%p", v.ref.Class.Name, v.ref)
	default:
		return "void"
	}
}
