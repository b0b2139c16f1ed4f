package llvm

import (
	"fmt"

	"tinygo.org/x/go-llvm"

	"novac/src/types"
)

// lowerType maps a Type Registry entry to its LLVM representation, caching
// the result in e.typeCache and reusing a handle already recorded on
// t.LayoutHandle, which struct lowering sets (SPEC_FULL.md §3: "Backend
// handles ... populated by the IR/Debug-Info emitters once this type has
// been lowered").
// Struct/Enum lowering uses a named, initially-opaque llvm.StructType so a
// field that points back to the same type (legal per the resolver's
// pointer-to-self allowance) never recurses infinitely.
func (e *Emitter) lowerType(t *types.Type) (llvm.Type, error) {
	if t == nil {
		return llvm.Type{}, fmt.Errorf("lowerType: nil type")
	}
	if cached, ok := e.typeCache[t]; ok {
		return cached, nil
	}
	if h, ok := t.LayoutHandle.(llvm.Type); ok && !h.IsNil() {
		e.typeCache[t] = h
		return h, nil
	}

	switch t.Kind {
	case types.Void, types.Unreachable:
		return e.ctx.VoidType(), nil
	case types.MetaType, types.Namespace, types.Invalid:
		// MetaType/Namespace have no runtime representation (ZeroBits() is
		// true for both); Invalid should never reach emission (SPEC_FULL.md
		// §5 ordering (d) gates codegen on a clean diagnostic pass) but gets
		// the same zero-sized placeholder defensively rather than a lowering
		// panic if a caller (e.g. a local binding a this_type()/typeof()
		// result) ever forces the question.
		return e.ctx.StructType(nil, false), nil
	case types.Bool:
		return e.ctx.Int1Type(), nil
	case types.Int:
		return e.ctx.IntType(t.Bits), nil
	case types.Float:
		switch t.Bits {
		case 32:
			return e.ctx.FloatType(), nil
		case 64:
			return e.ctx.DoubleType(), nil
		case 80:
			return e.ctx.X86FP80Type(), nil
		default:
			return llvm.Type{}, fmt.Errorf("lowerType: unsupported float width f%d", t.Bits)
		}
	case types.NumLitInt:
		return e.ctx.Int64Type(), nil
	case types.NumLitFloat:
		return e.ctx.DoubleType(), nil
	case types.PureError:
		return e.ctx.IntType(e.errTagBits()), nil
	case types.Pointer:
		if t.Child.ZeroBits() {
			return llvm.PointerType(e.ctx.Int8Type(), 0), nil
		}
		child, err := e.lowerType(t.Child)
		if err != nil {
			return llvm.Type{}, err
		}
		return llvm.PointerType(child, 0), nil
	case types.Array:
		child, err := e.lowerType(t.Child)
		if err != nil {
			return llvm.Type{}, err
		}
		return llvm.ArrayType(child, int(t.Len)), nil
	case types.Slice:
		// {ptr, len} per SPEC_FULL.md §4.1's slice layout rule.
		elem := e.ctx.Int8Type()
		if !t.Child.ZeroBits() {
			var err error
			if elem, err = e.lowerType(t.Child); err != nil {
				return llvm.Type{}, err
			}
		}
		fields := []llvm.Type{llvm.PointerType(elem, 0), e.ctx.Int64Type()}
		return e.ctx.StructType(fields, false), nil
	case types.Maybe:
		return e.lowerMaybeType(t)
	case types.ErrorUnion:
		return e.lowerErrorUnionType(t)
	case types.Fn:
		return e.lowerFnType(t)
	case types.Struct:
		return e.lowerStructType(t)
	case types.Enum:
		return e.lowerEnumType(t)
	case types.TypeDecl:
		return e.lowerType(t.Canonical)
	default:
		return llvm.Type{}, fmt.Errorf("lowerType: cannot lower %s", t)
	}
}

func (e *Emitter) errTagBits() int {
	if e.errTagType != nil {
		return e.errTagType.Bits
	}
	// Emission only reaches type lowering after EmitProgram has set
	// errTagType from the resolver's global error-value table; 32 is only a
	// fallback for unit tests that lower types without going through it.
	return 32
}

func (e *Emitter) lowerMaybeType(t *types.Type) (llvm.Type, error) {
	if types.CollapsesToNullablePointer(t.Child) {
		return e.lowerType(t.Child)
	}
	if t.Child.ZeroBits() {
		return e.ctx.Int1Type(), nil
	}
	child, err := e.lowerType(t.Child)
	if err != nil {
		return llvm.Type{}, err
	}
	st := e.ctx.StructType([]llvm.Type{e.ctx.Int1Type(), child}, false)
	e.typeCache[t] = st
	return st, nil
}

func (e *Emitter) lowerErrorUnionType(t *types.Type) (llvm.Type, error) {
	tagType := e.ctx.IntType(e.errTagBits())
	if t.Child.ZeroBits() {
		return tagType, nil
	}
	child, err := e.lowerType(t.Child)
	if err != nil {
		return llvm.Type{}, err
	}
	st := e.ctx.StructType([]llvm.Type{tagType, child}, false)
	e.typeCache[t] = st
	return st, nil
}

func (e *Emitter) lowerFnType(t *types.Type) (llvm.Type, error) {
	ret, err := e.lowerType(t.Return)
	if err != nil {
		return llvm.Type{}, err
	}
	params := make([]llvm.Type, 0, len(t.Params))
	if t.Return.IsHandleType() {
		rt, err := e.lowerType(t.Return)
		if err != nil {
			return llvm.Type{}, err
		}
		params = append(params, llvm.PointerType(rt, 0))
		ret = e.ctx.VoidType()
	}
	for _, p := range t.Params {
		pt, err := e.lowerType(p.Type)
		if err != nil {
			return llvm.Type{}, err
		}
		if p.Type.IsHandleType() {
			pt = llvm.PointerType(pt, 0)
		}
		params = append(params, pt)
	}
	return llvm.FunctionType(ret, params, t.FnVarArgs), nil
}

// lowerStructType lowers a named struct in two passes: it creates an opaque,
// named llvm.StructType first and records it on t.LayoutHandle so a
// self-referential field (always behind a pointer, per the resolver) sees a
// usable handle instead of recursing, then sets the body once every field is
// lowered.
func (e *Emitter) lowerStructType(t *types.Type) (llvm.Type, error) {
	name := t.Name
	if name == "" {
		name = fmt.Sprintf("struct.anon.%p", t)
	}
	st := e.ctx.StructCreateNamed(name)
	t.LayoutHandle = st
	e.typeCache[t] = st

	fields := make([]llvm.Type, 0, len(t.Fields))
	for _, f := range t.Fields {
		if f.GenIdx < 0 {
			continue // Zero-bit field: no runtime representation (SPEC_FULL.md §4.1).
		}
		ft, err := e.lowerType(f.Type)
		if err != nil {
			return llvm.Type{}, fmt.Errorf("struct %q field %q: %w", t.Name, f.Name, err)
		}
		fields = append(fields, ft)
	}
	st.StructSetBody(fields, false)
	return st, nil
}

// lowerEnumType lowers an enum to its tag integer, or to {tag, union} when
// at least one variant carries a non-zero-bit payload (SPEC_FULL.md §4.1
// "Enum ... collapse rules", realized by types.CompleteEnum's UnionType).
func (e *Emitter) lowerEnumType(t *types.Type) (llvm.Type, error) {
	tag, err := e.lowerType(t.TagType)
	if err != nil {
		return llvm.Type{}, err
	}
	if t.UnionType == nil {
		return tag, nil
	}
	payload, err := e.lowerType(t.UnionType.Fields[0].Type)
	if err != nil {
		return llvm.Type{}, err
	}
	st := e.ctx.StructType([]llvm.Type{tag, payload}, false)
	e.typeCache[t] = st
	return st, nil
}
