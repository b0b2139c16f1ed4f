// Package types implements the Type Registry (SPEC_FULL.md §4.1): an
// interning table over a sum-of-variants Type, guaranteeing one canonical
// instance per type shape.
package types

import (
	"fmt"
	"strings"
)

// Kind enumerates the Type variants from SPEC_FULL.md §3.
type Kind int

const (
	Invalid Kind = iota
	MetaType
	Namespace
	Void
	Unreachable
	Bool
	Int
	Float
	NumLitInt
	NumLitFloat
	UndefLit
	Pointer
	Array
	Slice
	Maybe
	ErrorUnion
	PureError
	Fn
	Struct
	Enum
	TypeDecl
)

var kindNames = [...]string{
	"invalid", "type", "namespace", "void", "unreachable", "bool", "int", "float",
	"num_lit_int", "num_lit_float", "undefined", "pointer", "array", "slice",
	"maybe", "error_union", "pure_error", "fn", "struct", "enum", "typedecl",
}

func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Field is one member of a Struct type (SPEC_FULL.md §3, §4.1).
type Field struct {
	Name   string
	Type   *Type
	SrcIdx int // Index among source-declared fields (includes zero-bit fields).
	GenIdx int // Index in the generated runtime layout; -1 if the field is zero-bit.
}

// EnumField is one member of an Enum type.
type EnumField struct {
	Name  string
	Type  *Type // Payload type; Void if the variant carries no payload.
	Value uint64
}

// Param is one parameter of a Fn type.
type Param struct {
	Type    *Type
	NoAlias bool
}

// Type is an interned, structurally-unique type instance. Only the fields
// relevant to Kind are meaningful; the rest are zero. Equality of two Type
// pointers returned by the same Registry for the same shape is guaranteed by
// construction (SPEC_FULL.md §8 invariant), so callers compare with `==`.
type Type struct {
	Kind Kind

	// Int
	Signed bool
	Bits   int // Int/Float bit width.

	// Pointer / Array / Slice / Maybe / ErrorUnion
	Child   *Type
	IsConst bool   // Pointer/Slice constness.
	Len     uint64 // Array length.

	// Fn
	FnExtern  bool
	FnNaked   bool
	FnCold    bool
	FnVarArgs bool
	Params    []Param
	Return    *Type

	// Struct
	Fields        []Field
	Complete      bool
	StructInvalid bool

	// Enum
	EnumFields []EnumField
	TagType    *Type
	UnionType  *Type // Synthetic struct {tag, union-of-largest-payload}; nil when the enum collapses to TagType.

	// TypeDecl
	Name      string
	Canonical *Type // The type this alias transparently stands for.

	// Backend handles. Populated by the IR/Debug-Info emitters once this
	// type has been lowered; interface{} so this package never imports the
	// LLVM binding. Both are nil until ZeroBits() is false AND emission has
	// visited this type.
	LayoutHandle interface{} // llvm.Type equivalent ("type_ref" in SPEC_FULL.md §3).
	DebugHandle  interface{} // llvm.Metadata equivalent ("di_type" in SPEC_FULL.md §3).

	zeroBits    bool
	zeroBitsSet bool
}

// ZeroBits reports whether values of t have no runtime representation
// (SPEC_FULL.md §3 invariant (d), layout rules in §4.1). The result is
// memoized on first call since struct/enum completeness can only make the
// answer more final, never flip it once Complete is true.
func (t *Type) ZeroBits() bool {
	if t == nil {
		return true
	}
	if t.zeroBitsSet {
		return t.zeroBits
	}
	z := t.computeZeroBits()
	// Only cache once the answer can't change: Struct/Enum zero-bitness
	// depends on Complete, which starts false during cyclic pre-allocation.
	if t.Kind != Struct && t.Kind != Enum || t.Complete {
		t.zeroBits = z
		t.zeroBitsSet = true
	}
	return z
}

func (t *Type) computeZeroBits() bool {
	switch t.Kind {
	case Void, Unreachable, Namespace, MetaType, PureError:
		// PureError is a bare tag; some source languages give it runtime
		// representation (the int tag) but never on its own with no enclosing
		// context here it denotes "no error values declared" in this engine,
		// so treat it as carrying the tag int unless there are zero error
		// values registered — callers needing that refinement consult the
		// error-value table directly rather than via ZeroBits.
		return t.Kind == Void || t.Kind == Unreachable || t.Kind == Namespace || t.Kind == MetaType
	case Array:
		return t.Len == 0 || t.Child.ZeroBits()
	case Struct:
		if !t.Complete {
			return false
		}
		for _, f := range t.Fields {
			if !f.Type.ZeroBits() {
				return false
			}
		}
		return true
	case Enum:
		if !t.Complete {
			return false
		}
		for _, f := range t.EnumFields {
			if !f.Type.ZeroBits() {
				return false
			}
		}
		return len(t.EnumFields) <= 1
	case TypeDecl:
		return t.Canonical.ZeroBits()
	default:
		return false
	}
}

// CanonicalType walks through TypeDecl alias chains and returns the
// underlying non-alias type (SPEC_FULL.md §4.1: "TypeDecl is transparent at
// layout but preserves name in diagnostics; canonical_type walks through
// chains").
func (t *Type) CanonicalType() *Type {
	for t != nil && t.Kind == TypeDecl {
		t = t.Canonical
	}
	return t
}

// IsHandleType reports whether values of t are always manipulated by
// address in the IR Emitter (SPEC_FULL.md Glossary "Handle type"):
// struct, array, slice, maybe-with-payload, error-union-with-payload.
func (t *Type) IsHandleType() bool {
	c := t.CanonicalType()
	if c == nil {
		return false
	}
	switch c.Kind {
	case Struct, Array, Slice:
		return true
	case Maybe:
		return !collapsesToNullablePointer(c.Child) && !c.Child.ZeroBits()
	case ErrorUnion:
		return !c.Child.ZeroBits()
	default:
		return false
	}
}

// collapsesToNullablePointer reports the Maybe{Pointer|Fn} layout collapse
// rule from SPEC_FULL.md §4.1: "the Maybe{Pointer|Fn} representation *is*
// the pointer (nullable pointer is the null bit pattern)".
func collapsesToNullablePointer(child *Type) bool {
	c := child.CanonicalType()
	return c != nil && (c.Kind == Pointer || c.Kind == Fn)
}

// CollapsesToNullablePointer exposes collapsesToNullablePointer for the
// sema/codegen packages that need the Maybe layout decision without
// duplicating the rule.
func CollapsesToNullablePointer(child *Type) bool { return collapsesToNullablePointer(child) }

// String renders a human-readable type name for diagnostics.
func (t *Type) String() string {
	if t == nil {
		return "<nil type>"
	}
	switch t.Kind {
	case Int:
		if t.Signed {
			return fmt.Sprintf("i%d", t.Bits)
		}
		return fmt.Sprintf("u%d", t.Bits)
	case Float:
		return fmt.Sprintf("f%d", t.Bits)
	case Pointer:
		if t.IsConst {
			return "*const " + t.Child.String()
		}
		return "*" + t.Child.String()
	case Array:
		return fmt.Sprintf("[%d]%s", t.Len, t.Child.String())
	case Slice:
		if t.IsConst {
			return "[]const " + t.Child.String()
		}
		return "[]" + t.Child.String()
	case Maybe:
		return "?" + t.Child.String()
	case ErrorUnion:
		return "%" + t.Child.String()
	case TypeDecl:
		return t.Name
	case Fn:
		ps := make([]string, len(t.Params))
		for i, p := range t.Params {
			ps[i] = p.Type.String()
		}
		prefix := "fn"
		if t.FnExtern {
			prefix = "extern fn"
		}
		return fmt.Sprintf("%s(%s) %s", prefix, strings.Join(ps, ", "), t.Return.String())
	case Struct:
		if t.Name != "" {
			return t.Name
		}
		return "struct{...}"
	case Enum:
		if t.Name != "" {
			return t.Name
		}
		return "enum{...}"
	default:
		return t.Kind.String()
	}
}
