package vm

// ---------------------------------------------------------------------------
// Type names
// ---------------------------------------------------------------------------
// Value kinds carry two spellings in source text: a System.* canonical
// name and a short alias (int32, bool, ...). The registry stores the
// canonical form; everything user-facing accepts either.

const (
	TypeVoid    = "System.Void"
	TypeInt8    = "System.Int8"
	TypeInt16   = "System.Int16"
	TypeInt32   = "System.Int32"
	TypeInt64   = "System.Int64"
	TypeUint8   = "System.UInt8"
	TypeUint16  = "System.UInt16"
	TypeUint32  = "System.UInt32"
	TypeUint64  = "System.UInt64"
	TypeFloat32 = "System.Float"
	TypeFloat64 = "System.Double"
	TypeBool    = "System.Boolean"
	TypeChar    = "System.Char"
	TypeString  = "System.String"
	TypeObject  = "System.Object"
)

var kindByName = map[string]Kind{
	TypeVoid:    KindVoid,
	TypeInt8:    KindInt8,
	TypeInt16:   KindInt16,
	TypeInt32:   KindInt32,
	TypeInt64:   KindInt64,
	TypeUint8:   KindUint8,
	TypeUint16:  KindUint16,
	TypeUint32:  KindUint32,
	TypeUint64:  KindUint64,
	TypeFloat32: KindFloat32,
	TypeFloat64: KindFloat64,
	TypeBool:    KindBool,
	TypeChar:    KindChar,
	TypeString:  KindString,
	TypeObject:  KindObject,

	"void":    KindVoid,
	"int8":    KindInt8,
	"int16":   KindInt16,
	"int32":   KindInt32,
	"int64":   KindInt64,
	"uint8":   KindUint8,
	"uint16":  KindUint16,
	"uint32":  KindUint32,
	"uint64":  KindUint64,
	"float":   KindFloat32,
	"float32": KindFloat32,
	"double":  KindFloat64,
	"float64": KindFloat64,
	"bool":    KindBool,
	"char":    KindChar,
	"string":  KindString,
	"object":  KindObject,
}

var canonicalByKind = map[Kind]string{
	KindVoid:    TypeVoid,
	KindInt8:    TypeInt8,
	KindInt16:   TypeInt16,
	KindInt32:   TypeInt32,
	KindInt64:   TypeInt64,
	KindUint8:   TypeUint8,
	KindUint16:  TypeUint16,
	KindUint32:  TypeUint32,
	KindUint64:  TypeUint64,
	KindFloat32: TypeFloat32,
	KindFloat64: TypeFloat64,
	KindBool:    TypeBool,
	KindChar:    TypeChar,
	KindString:  TypeString,
	KindObject:  TypeObject,
}

// CanonicalTypeName maps a builtin type name or alias to its System.*
// spelling. Unknown names (user class names) are returned unchanged.
func CanonicalTypeName(name string) string {
	if k, ok := kindByName[name]; ok {
		return canonicalByKind[k]
	}
	return name
}

// KindOfType resolves a type name (canonical or alias) to a value kind.
// Names that do not denote a builtin kind resolve to KindObject when
// they look like class names; ok is false only for the empty string.
func KindOfType(name string) (Kind, bool) {
	if name == "" {
		return KindVoid, false
	}
	if k, ok := kindByName[name]; ok {
		return k, true
	}
	// A user-declared class: reference kind.
	return KindObject, true
}

// TypeRef names a declared type and caches its resolved kind.
type TypeRef struct {
	Name string // canonical type name
	Kind Kind
}

// MakeTypeRef canonicalizes name and resolves its kind.
func MakeTypeRef(name string) TypeRef {
	canon := CanonicalTypeName(name)
	k, _ := KindOfType(canon)
	return TypeRef{Name: canon, Kind: k}
}

func (t TypeRef) String() string { return t.Name }

// IsVoid returns true for the void type.
func (t TypeRef) IsVoid() bool { return t.Kind == KindVoid }
