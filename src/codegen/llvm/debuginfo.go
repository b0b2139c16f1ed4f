package llvm

import (
	"path/filepath"

	"tinygo.org/x/go-llvm"

	"novac/src/ast"
	"novac/src/scope"
	"novac/src/types"
	"novac/src/util"
)

// debugEmitter wraps an llvm.DIBuilder, emitting DWARF debug info in
// lockstep with the IR Emitter (SPEC_FULL.md §4.8 "Debug-Info Emitter").
// Every lowered type's DWARF counterpart is cached in typeCache; struct
// types are also recorded on t.DebugHandle before their fields are visited,
// as types.go's lowerType does with t.LayoutHandle, so a self-referential
// field (always behind a pointer) sees a usable handle rather than recursing
// forever.
type debugEmitter struct {
	e  *Emitter
	dib llvm.DIBuilder

	cu   llvm.Metadata
	file llvm.Metadata
	td   llvm.TargetData

	scopes    util.Stack // Pushed llvm.Metadata (function/lexical-block scopes), popped on exit.
	typeCache map[*types.Type]llvm.Metadata
}

// newDebugEmitter opens a DIBuilder against e's module and records the
// single compile unit every function/type attaches to (SPEC_FULL.md §4.8
// "one compile unit per translation unit").
func newDebugEmitter(e *Emitter) *debugEmitter {
	dib := llvm.NewDIBuilder(e.mod)
	dir, base := filepath.Split(e.Opt.Src)
	if dir == "" {
		dir = "."
	}
	if base == "" {
		base = "<unknown>"
	}
	file := dib.CreateFile(base, dir)
	cu := dib.CreateCompileUnit(llvm.DICompileUnit{
		Language:  0x001d, // DW_LANG_C11 as a stand-in: go-llvm has no Nova-specific DWARF language code.
		File:      base,
		Dir:       dir,
		Producer:  "novac",
		Optimized: e.Opt.Release,
		Emission:  llvm.FullDebug,
	})
	return &debugEmitter{
		e:         e,
		dib:       dib,
		cu:        cu,
		file:      file,
		td:        llvm.NewTargetData(e.mod.DataLayout()),
		typeCache: make(map[*types.Type]llvm.Metadata, 64),
	}
}

func (d *debugEmitter) dispose() {
	d.td.Dispose()
	d.dib.Destroy()
}

// finalize resolves every forward-declared (replaceable) composite type and
// closes out the DIBuilder (SPEC_FULL.md §4.8: "finalize once after every
// function body has been emitted").
func (d *debugEmitter) finalize() {
	d.dib.Finalize()
}

// beginFunction opens the DISubprogram for fnx.entry, attaches it as the
// function's debug-info scope, and declares every already-allocated
// parameter's debug location (SPEC_FULL.md §4.8 "parameter variables
// declared at function entry").
func (d *debugEmitter) beginFunction(fnx *fnCtx, sc *scope.Scope) {
	line := fnx.entry.ProtoNode.Span.Line
	diFnType, err := d.subroutineType(fnx.entry)
	if err != nil {
		return
	}
	sp := d.dib.CreateFunction(d.file, llvm.DIFunction{
		Name:         fnx.entry.SymbolName,
		LinkageName:  fnx.entry.SymbolName,
		File:         d.file,
		Line:         line,
		Type:         diFnType,
		LocalToUnit:  fnx.entry.InternalLinkage,
		IsDefinition: true,
		ScopeLine:    line,
		Optimized:    d.e.Opt.Release,
	})
	fnx.fnVal.SetSubprogram(sp)
	d.scopes.Push(sp)

	argOffset := 0
	if fnx.entry.Type.Return.IsHandleType() {
		argOffset = 1
	}
	for i, p := range fnx.entry.Type.Params {
		if i >= len(fnx.entry.VariableList) {
			continue
		}
		v := fnx.entry.VariableList[i]
		pt, err := d.typeFor(p.Type)
		if err != nil {
			continue
		}
		diVar := d.dib.CreateParameterVariable(sp, llvm.DIParameterVariable{
			Name:           v.Name,
			File:           d.file,
			Line:           line,
			Type:           pt,
			AlwaysPreserve: true,
			ArgNo:          i + 1,
		})
		d.declareAt(v, diVar, sp, line, i+argOffset, fnx)
	}
}

// declareAt inserts an llvm.dbg.declare for one already-materialized
// variable (parameter or local), reading its alloca/address straight off
// scope.Variable.ValueRef the way function.go/stmt.go populate it.
func (d *debugEmitter) declareAt(v *scope.Variable, diVar llvm.Metadata, diScope llvm.Metadata, line, _ int, fnx *fnCtx) {
	addr, ok := v.ValueRef.(llvm.Value)
	if !ok || addr.IsNil() {
		return
	}
	loc := d.e.ctx.ConstDebugLocation(uint(line), 0, diScope, llvm.Metadata{})
	expr := d.dib.CreateExpression(nil)
	bb := d.e.builder.GetInsertBlock()
	d.dib.InsertDeclareAtEnd(addr, diVar, expr, loc, bb)
	v.DebugVar = diVar
}

// declareLocal is stmt.go's hook for a freshly-allocated local (VarDecl):
// it looks up the currently-open scope (function or lexical block) and
// emits the matching DILocalVariable + dbg.declare.
func (d *debugEmitter) declareLocal(v *scope.Variable, line int, fnx *fnCtx) {
	top := d.scopes.Peek()
	if top == nil {
		return
	}
	diScope, _ := top.(llvm.Metadata)
	vt, err := d.typeFor(v.Type)
	if err != nil {
		return
	}
	diVar := d.dib.CreateAutoVariable(diScope, llvm.DIAutoVariable{
		Name:           v.Name,
		File:           d.file,
		Line:           line,
		Type:           vt,
		AlwaysPreserve: true,
	})
	d.declareAt(v, diVar, diScope, line, 0, fnx)
}

// pushLexicalBlock/popLexicalBlock bracket a nested `{ ... }` block
// (SPEC_FULL.md §4.8 "lexical blocks for nested scopes"), letting
// declareLocal attribute locals declared inside to the right DWARF scope.
func (d *debugEmitter) pushLexicalBlock(span ast.Span) {
	top := d.scopes.Peek()
	parent, _ := top.(llvm.Metadata)
	if parent.IsNil() {
		parent = d.cu
	}
	lb := d.dib.CreateLexicalBlock(parent, llvm.DILexicalBlock{
		File: d.file,
		Line: span.Line,
	})
	d.scopes.Push(lb)
}

func (d *debugEmitter) popLexicalBlock() {
	d.scopes.Pop()
}

// setLocation updates the builder's current debug location so every
// subsequently-emitted instruction attributes to line/col within the
// current scope (SPEC_FULL.md §4.8 "every IR instruction ... carries a
// source line/column").
func (d *debugEmitter) setLocation(line, col int) {
	top := d.scopes.Peek()
	diScope, ok := top.(llvm.Metadata)
	if !ok {
		diScope = d.cu
	}
	loc := d.e.ctx.ConstDebugLocation(uint(line), uint(col), diScope, llvm.Metadata{})
	d.e.builder.SetCurrentDebugLocation2(loc)
}

func (d *debugEmitter) clearLocation() {
	d.e.builder.SetCurrentDebugLocation2(llvm.Metadata{})
}

// subroutineType builds the DISubroutineType for a function's signature,
// prepending the sret pointer's pointee type as the return slot the same
// way types.go's lowerFnType prepends it to the LLVM parameter list.
func (d *debugEmitter) subroutineType(entry *scope.FnEntry) (llvm.Metadata, error) {
	retT, err := d.typeFor(entry.Type.Return)
	if err != nil {
		return llvm.Metadata{}, err
	}
	params := make([]llvm.Metadata, 0, len(entry.Type.Params)+1)
	params = append(params, retT)
	for _, p := range entry.Type.Params {
		pt, err := d.typeFor(p.Type)
		if err != nil {
			return llvm.Metadata{}, err
		}
		params = append(params, pt)
	}
	return d.dib.CreateSubroutineType(llvm.DISubroutineType{File: d.file, Parameters: params}), nil
}

// typeFor maps a Type Registry entry to its DWARF type metadata, caching the
// result in d.typeCache and reusing a handle already recorded on
// t.DebugHandle (set by structType; SPEC_FULL.md §3's backend-handle pair).
func (d *debugEmitter) typeFor(t *types.Type) (llvm.Metadata, error) {
	if t == nil {
		return llvm.Metadata{}, nil
	}
	if cached, ok := d.typeCache[t]; ok {
		return cached, nil
	}
	if h, ok := t.DebugHandle.(llvm.Metadata); ok && !h.IsNil() {
		d.typeCache[t] = h
		return h, nil
	}

	var md llvm.Metadata
	var err error
	switch t.Kind {
	case types.Void, types.Unreachable:
		return llvm.Metadata{}, nil
	case types.Bool:
		md = d.dib.CreateBasicType(llvm.DIBasicType{Name: "bool", SizeInBits: 8, Encoding: llvm.DW_ATE_boolean})
	case types.Int:
		enc := llvm.DW_ATE_unsigned
		if t.Signed {
			enc = llvm.DW_ATE_signed
		}
		md = d.dib.CreateBasicType(llvm.DIBasicType{Name: t.String(), SizeInBits: uint64(t.Bits), Encoding: enc})
	case types.Float:
		md = d.dib.CreateBasicType(llvm.DIBasicType{Name: t.String(), SizeInBits: uint64(t.Bits), Encoding: llvm.DW_ATE_float})
	case types.NumLitInt:
		md = d.dib.CreateBasicType(llvm.DIBasicType{Name: "comptime_int", SizeInBits: 64, Encoding: llvm.DW_ATE_signed})
	case types.NumLitFloat:
		md = d.dib.CreateBasicType(llvm.DIBasicType{Name: "comptime_float", SizeInBits: 64, Encoding: llvm.DW_ATE_float})
	case types.PureError:
		md = d.dib.CreateBasicType(llvm.DIBasicType{Name: "anyerror", SizeInBits: uint64(d.e.errTagBits()), Encoding: llvm.DW_ATE_unsigned})
	case types.Pointer:
		md, err = d.pointerType(t)
	case types.Array:
		md, err = d.arrayType(t)
	case types.Slice:
		md, err = d.sliceType(t)
	case types.Maybe, types.ErrorUnion:
		md, err = d.structLikeType(t)
	case types.Struct:
		md, err = d.structType(t)
	case types.Enum:
		md, err = d.enumType(t)
	case types.Fn:
		md, err = d.subroutineTypeFromFnType(t)
	case types.TypeDecl:
		md, err = d.typeFor(t.Canonical)
	default:
		return llvm.Metadata{}, nil
	}
	if err != nil {
		return llvm.Metadata{}, err
	}
	d.typeCache[t] = md
	return md, nil
}

func (d *debugEmitter) pointerType(t *types.Type) (llvm.Metadata, error) {
	child, err := d.typeFor(t.Child)
	if err != nil {
		return llvm.Metadata{}, err
	}
	ptrLLT, err := d.e.lowerType(t)
	if err != nil {
		return llvm.Metadata{}, err
	}
	return d.dib.CreatePointerType(llvm.DIPointerType{
		Pointee:     child,
		SizeInBits:  d.td.TypeSizeInBits(ptrLLT),
		AlignInBits: uint32(d.td.ABITypeAlignment(ptrLLT)) * 8,
	}), nil
}

func (d *debugEmitter) arrayType(t *types.Type) (llvm.Metadata, error) {
	child, err := d.typeFor(t.Child)
	if err != nil {
		return llvm.Metadata{}, err
	}
	llt, err := d.e.lowerType(t)
	if err != nil {
		return llvm.Metadata{}, err
	}
	return d.dib.CreateArrayType(llvm.DIArrayType{
		SizeInBits:  d.td.TypeSizeInBits(llt),
		ElementType: child,
		Subscripts:  []llvm.DISubrange{{Lo: 0, Count: int64(t.Len)}},
	}), nil
}

// sliceType and structLikeType describe the runtime {ptr,len}/{tag,payload}
// layouts types.go's lowerType builds for Slice/Maybe/ErrorUnion as
// anonymous DWARF structs, since none of these have a user-facing struct
// declaration to hang a name on.
func (d *debugEmitter) sliceType(t *types.Type) (llvm.Metadata, error) {
	llt, err := d.e.lowerType(t)
	if err != nil {
		return llvm.Metadata{}, err
	}
	elemDI, err := d.typeFor(t.Child)
	if err != nil {
		return llvm.Metadata{}, err
	}
	elemLLT, err := d.e.lowerType(t.Child)
	if err != nil {
		return llvm.Metadata{}, err
	}
	ptrDI := d.dib.CreatePointerType(llvm.DIPointerType{
		Pointee:     elemDI,
		SizeInBits:  d.td.TypeSizeInBits(llvm.PointerType(elemLLT, 0)),
		AlignInBits: 64,
	})
	lenDI := d.dib.CreateBasicType(llvm.DIBasicType{Name: "usize", SizeInBits: 64, Encoding: llvm.DW_ATE_unsigned})
	members := []llvm.Metadata{
		d.dib.CreateMemberType(d.cu, llvm.DIMemberType{Name: "ptr", File: d.file, Size: d.td.TypeSizeInBits(llvm.PointerType(elemLLT, 0)), Type: ptrDI, Offset: 0}),
		d.dib.CreateMemberType(d.cu, llvm.DIMemberType{Name: "len", File: d.file, Size: 64, Type: lenDI, Offset: d.td.ElementOffsetInBits(llt, 1)}),
	}
	return d.dib.CreateStructType(d.cu, llvm.DIStructType{
		Name:        "slice",
		File:        d.file,
		SizeInBits:  d.td.TypeSizeInBits(llt),
		AlignInBits: uint32(d.td.ABITypeAlignment(llt)) * 8,
		Elements:    members,
	}), nil
}

func (d *debugEmitter) structLikeType(t *types.Type) (llvm.Metadata, error) {
	llt, err := d.e.lowerType(t)
	if err != nil {
		return llvm.Metadata{}, err
	}
	if llt.StructElementTypesCount() < 2 {
		// Collapsed to a bare tag/pointer representation: describe it
		// directly as that scalar rather than a one-field struct.
		if t.Kind == types.Maybe && types.CollapsesToNullablePointer(t.Child) {
			return d.typeFor(t.Child)
		}
		return d.dib.CreateBasicType(llvm.DIBasicType{Name: t.String(), SizeInBits: d.td.TypeSizeInBits(llt), Encoding: llvm.DW_ATE_unsigned}), nil
	}
	tagName, payloadName := "tag", "payload"
	tagDI := d.dib.CreateBasicType(llvm.DIBasicType{Name: tagName, SizeInBits: d.td.TypeSizeInBits(llt.StructElementTypes()[0]), Encoding: llvm.DW_ATE_unsigned})
	payloadDI, err := d.typeFor(t.Child)
	if err != nil {
		return llvm.Metadata{}, err
	}
	members := []llvm.Metadata{
		d.dib.CreateMemberType(d.cu, llvm.DIMemberType{Name: tagName, File: d.file, Size: d.td.TypeSizeInBits(llt.StructElementTypes()[0]), Type: tagDI, Offset: 0}),
		d.dib.CreateMemberType(d.cu, llvm.DIMemberType{Name: payloadName, File: d.file, Size: d.td.TypeSizeInBits(llt.StructElementTypes()[1]), Type: payloadDI, Offset: d.td.ElementOffsetInBits(llt, 1)}),
	}
	return d.dib.CreateStructType(d.cu, llvm.DIStructType{
		Name:        t.String(),
		File:        d.file,
		SizeInBits:  d.td.TypeSizeInBits(llt),
		AlignInBits: uint32(d.td.ABITypeAlignment(llt)) * 8,
		Elements:    members,
	}), nil
}

// structType lowers a named struct in two passes, matching types.go's
// lowerStructType: a temporary/replaceable composite is registered on
// t.DebugHandle first so a self-referential field (always behind a
// pointer) resolves against a usable forward declaration, then its member
// list is finalized.
func (d *debugEmitter) structType(t *types.Type) (llvm.Metadata, error) {
	name := t.Name
	if name == "" {
		name = "anon.struct"
	}
	fwd := d.dib.CreateReplaceableCompositeType(llvm.DwarfTagStructureType, name, d.cu, d.file, 0)
	t.DebugHandle = fwd
	d.typeCache[t] = fwd

	llt, err := d.e.lowerType(t)
	if err != nil {
		return llvm.Metadata{}, err
	}
	members := make([]llvm.Metadata, 0, len(t.Fields))
	for _, f := range t.Fields {
		if f.GenIdx < 0 {
			continue
		}
		fieldDI, ferr := d.typeFor(f.Type)
		if ferr != nil {
			return llvm.Metadata{}, ferr
		}
		fieldLLT, ferr := d.e.lowerType(f.Type)
		if ferr != nil {
			return llvm.Metadata{}, ferr
		}
		members = append(members, d.dib.CreateMemberType(d.cu, llvm.DIMemberType{
			Name:   f.Name,
			File:   d.file,
			Size:   d.td.TypeSizeInBits(fieldLLT),
			Type:   fieldDI,
			Offset: d.td.ElementOffsetInBits(llt, f.GenIdx),
		}))
	}
	final := d.dib.CreateStructType(d.cu, llvm.DIStructType{
		Name:        name,
		File:        d.file,
		SizeInBits:  d.td.TypeSizeInBits(llt),
		AlignInBits: uint32(d.td.ABITypeAlignment(llt)) * 8,
		Elements:    members,
	})
	fwd.ReplaceAllUsesWith(final)
	t.DebugHandle = final
	return final, nil
}

// enumType describes an enum as its tag integer, or a {tag, payload} union
// struct when at least one variant carries a payload, matching types.go's
// lowerEnumType collapse rule.
func (d *debugEmitter) enumType(t *types.Type) (llvm.Metadata, error) {
	tagDI, err := d.typeFor(t.TagType)
	if err != nil {
		return llvm.Metadata{}, err
	}
	if t.UnionType == nil {
		return tagDI, nil
	}
	return d.structLikeType(&types.Type{Kind: types.ErrorUnion, Child: t.UnionType.Fields[0].Type})
}

func (d *debugEmitter) subroutineTypeFromFnType(t *types.Type) (llvm.Metadata, error) {
	retDI, err := d.typeFor(t.Return)
	if err != nil {
		return llvm.Metadata{}, err
	}
	params := []llvm.Metadata{retDI}
	for _, p := range t.Params {
		pt, err := d.typeFor(p.Type)
		if err != nil {
			return llvm.Metadata{}, err
		}
		params = append(params, pt)
	}
	return d.dib.CreateSubroutineType(llvm.DISubroutineType{File: d.file, Parameters: params}), nil
}
