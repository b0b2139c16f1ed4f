// Package resolve implements the Declaration Resolver (SPEC_FULL.md §4.3):
// two-phase top-level scanning followed by on-demand resolution of function
// prototypes, variables, type declarations, imports, use-decls, and
// error-value declarations, with declaration-cycle detection.
//
// Node-shape contract. Since tokenization/parsing are out of scope (§1),
// this package fixes the Data/Children conventions the parser collaborator
// must produce for the declaration kinds it resolves:
//
//   - FnProto/FnDef: Data is FnDeclData. Children: [ParamList, return
//     TypeLiteral] for FnProto, plus a trailing Block body for FnDef.
//     ParamList.Children are Param nodes; Param.Data is ParamData,
//     Children[0] its TypeLiteral.
//   - StructDecl/EnumDecl: Data is the decl name (string). Children are
//     Field nodes. A struct Field.Data is the field name (string),
//     Children[0] its TypeLiteral. An enum Field.Data is EnumFieldData;
//     Children[0] is the payload TypeLiteral (Void when the variant carries
//     none), an optional Children[1] an explicit numeric value expression.
//   - TypeDecl: Data is the alias name (string); Children[0] its aliased
//     TypeLiteral.
//   - ErrorValueDecl: Data is the error name (string); an optional
//     Children[0] is an explicit numeric value expression.
//   - VarDecl (top-level): Data is GlobalVarDeclData; Children are
//     [explicit TypeLiteral?, initializer] mirroring the local-statement
//     shape sema/control.go already consumes, plus the const/export bits
//     local variables don't need.
//   - UseDecl: Children[0] is the namespace expression (typically an
//     Identifier or CImportExpr/ImportDecl result).
package resolve

import (
	"novac/src/ast"
	"novac/src/diag"
	"novac/src/scope"
	"novac/src/sema"
	"novac/src/types"
)

// FnDeclData is the Data payload of an ast.FnProto/ast.FnDef node.
type FnDeclData struct {
	Name      string
	Extern    bool
	Naked     bool
	Cold      bool
	Test      bool
	Inline    bool
	VarArgs   bool
	Condition *ast.Node // Optional condition(bool-expr) directive; nil if absent.
}

// ParamData is the Data payload of a Param node.
type ParamData struct {
	Name    string
	NoAlias bool
}

// EnumFieldData is the Data payload of an enum Field node.
type EnumFieldData struct {
	Name     string
	HasValue bool
}

// GlobalVarDeclData is the Data payload of a top-level VarDecl node.
type GlobalVarDeclData struct {
	Name     string
	IsConst  bool
	Exported bool
}

// ErrorValue is one entry of the global error-value table (SPEC_FULL.md §3
// "Error-value entry"): values are allocated monotonically and de-duplicated
// by name.
type ErrorValue struct {
	Name     string
	Value    uint64
	DeclNode *ast.Node
}

// Resolver drives SPEC_FULL.md §4.3's resolve(decl) state machine. One
// Resolver is shared by every Import in a compilation: it owns the single
// global error-value table (SPEC_FULL.md §3 "Error-value entry") and wires
// itself into the sema.Analyzer's on-demand identifier/named-type resolution
// hooks.
type Resolver struct {
	Reg      *types.Registry
	Diags    *diag.Bag
	Analyzer *sema.Analyzer

	// ErrTagBits bounds the width of the error tag integer type
	// (SPEC_FULL.md §3: "bounded by the err_tag_type bit width").
	ErrTagBits int

	errorValues map[string]*ErrorValue
	errorOrder  []*ErrorValue

	fnEntries map[*ast.Node]*scope.FnEntry

	// declScopes remembers the lexical scope each scanned top-level node was
	// declared in, since ast.Decl itself must stay free of a scope-graph
	// dependency (see the comment on ast.Decl). scanned preserves scan order
	// across every file Scan has visited, for ResolveAll's export queue and
	// for deterministic diagnostics.
	declScopes map[*ast.Node]*scope.Scope
	scanned    []*ast.Node

	// Backend hooks, wired by the driver once the IR Emitter exists
	// (SPEC_FULL.md §4.3 step 3 "create LLVM function", "Build LLVM struct
	// body"). Left nil in unit tests that only exercise type/scope
	// resolution.
	DeclareFunction func(entry *scope.FnEntry)
	DeclareGlobal   func(name string, t *types.Type, cv ast.ConstVal, isConst bool)
}

// New returns a Resolver wired into an's identifier/named-type resolution
// hooks (SPEC_FULL.md §4.3: resolution is "on demand" from the Expression
// Analyzer's perspective).
func New(reg *types.Registry, diags *diag.Bag, an *sema.Analyzer, errTagBits int) *Resolver {
	r := &Resolver{
		Reg:         reg,
		Diags:       diags,
		Analyzer:    an,
		ErrTagBits:  errTagBits,
		errorValues: make(map[string]*ErrorValue),
		fnEntries:   make(map[*ast.Node]*scope.FnEntry),
		declScopes:  make(map[*ast.Node]*scope.Scope),
	}
	an.Resolve = r.Resolve
	an.ResolveNamedType = r.resolveNamedType
	return r
}

// Scan populates sc's declaration table from root's top-level children
// (SPEC_FULL.md §4.3's "scan" queue), leaving every decl Unresolved until
// Resolve is called on it, either eagerly by ResolveAll or on demand through
// an identifier reference.
func (r *Resolver) Scan(root *ast.Node, sc *scope.Scope) {
	for _, n := range root.Children {
		name := declName(n)
		if name == "" {
			continue
		}
		n.Decl = &ast.Decl{Name: name}
		if prev, redef := sc.DeclareDecl(name, n); redef {
			r.Diags.ErrorfNote(n.Span, prev.Span, "previous definition here", "%s", scope.RedefinitionError(name))
			continue
		}
		r.declScopes[n] = sc
		r.scanned = append(r.scanned, n)
	}
}

func declName(n *ast.Node) string {
	switch n.Kind {
	case ast.FnProto, ast.FnDef:
		d, _ := n.Data.(FnDeclData)
		return d.Name
	case ast.StructDecl, ast.EnumDecl, ast.TypeDecl, ast.ErrorValueDecl:
		name, _ := n.Data.(string)
		return name
	case ast.VarDecl:
		d, _ := n.Data.(GlobalVarDeclData)
		return d.Name
	default:
		return ""
	}
}

// ResolveAll force-resolves every declaration Scan has seen so far, across
// every file, implementing the "export" queue of SPEC_FULL.md §4.3 (eagerly
// needed decls: exported functions/variables, and everything when no
// selective export pass is requested), in scan order so diagnostics are
// deterministic.
func (r *Resolver) ResolveAll() {
	for _, n := range r.scanned {
		r.Resolve(n)
	}
}

// Resolve implements SPEC_FULL.md §4.3's four-step resolve(decl) algorithm.
// Nested type references are resolved in the scope Scan recorded node in
// (its file's top-level scope, or an enclosing container's), looked up by
// declScope.
func (r *Resolver) Resolve(node *ast.Node) *types.Type {
	if node == nil || node.Decl == nil {
		return r.Reg.Invalid()
	}
	d := node.Decl
	switch d.State {
	case ast.Ok:
		return d.Type
	case ast.Invalid:
		return r.Reg.Invalid()
	case ast.InProgress:
		// Struct/Enum pre-allocate d.Type before resolving their fields
		// (resolveStruct/resolveEnum), specifically so a field that only takes
		// the address of the enclosing type (pointer-to-self) can see it
		// without being treated as a cycle — the pointee need not be complete
		// for the pointer itself to be well-formed (SPEC_FULL.md §4.1). A field
		// that embeds the type directly still resolves to this same pointer
		// value, which resolveStruct's embedsDirectly check catches as the
		// "infinite size" case instead.
		if d.Type != nil {
			return d.Type
		}
		r.Diags.Errorf(node.Span, "%q depends on itself", d.Name)
		d.State = ast.Invalid
		return r.Reg.Invalid()
	}

	d.State = ast.InProgress
	sc := r.declScope(node)
	var t *types.Type
	switch node.Kind {
	case ast.FnProto, ast.FnDef:
		t = r.resolveFn(node, sc)
	case ast.StructDecl:
		t = r.resolveStruct(node, sc)
	case ast.EnumDecl:
		t = r.resolveEnum(node, sc)
	case ast.VarDecl:
		t = r.resolveGlobalVar(node, sc)
	case ast.TypeDecl:
		t = r.resolveTypeDecl(node, sc)
	case ast.ErrorValueDecl:
		t = r.resolveErrorValue(node, sc)
	case ast.UseDecl:
		t = r.resolveUse(node, sc)
	default:
		r.Diags.Errorf(node.Span, "internal: resolver cannot resolve declaration kind %s", node.Kind)
		t = r.Reg.Invalid()
	}

	if t == nil || t.Kind == types.Invalid {
		d.State = ast.Invalid
	} else {
		d.State = ast.Ok
	}
	d.Type = t
	return t
}

// declScope returns the lexical scope node was scanned into. Tests that
// construct a declaration node and call Resolve directly, without going
// through Scan, get a fresh empty scope rather than a panic.
func (r *Resolver) declScope(node *ast.Node) *scope.Scope {
	if sc, ok := r.declScopes[node]; ok {
		return sc
	}
	return scope.New(nil, node)
}

// resolveFn resolves a function prototype/definition (SPEC_FULL.md §4.3
// "Fn proto" step): directives, Fn type construction, and (for FnDef) body
// analysis against the declared return type, threading return-knowledge.
func (r *Resolver) resolveFn(node *ast.Node, sc *scope.Scope) *types.Type {
	fd, _ := node.Data.(FnDeclData)
	if fd.Condition != nil {
		r.Analyzer.Analyze(fd.Condition, sc, r.Reg.Bool(), false)
		if cv := fd.Condition.Expr.ConstVal; cv.OK && !cv.Payload.Bool {
			// condition(false) suppresses export: still type-checked (constant
			// folding already ran above) but resolves to nothing callable.
			return r.Reg.Void()
		}
	}

	paramList := node.Children[0]
	params := make([]types.Param, 0, len(paramList.Children))
	fnScope := scope.New(sc, node)
	for i, p := range paramList.Children {
		pd, _ := p.Data.(ParamData)
		pt := r.Analyzer.AnalyzeTypeExpr(p.Children[0], sc)
		params = append(params, types.Param{Type: pt, NoAlias: pd.NoAlias})
		fnScope.DeclareVar(&scope.Variable{
			Name: pd.Name, Type: pt, SrcArgIndex: i, GenArgIndex: i,
		})
	}
	retNode := node.Children[1]
	retType := r.Analyzer.AnalyzeTypeExpr(retNode, sc)

	fnType := r.Reg.GetFn(types.FnID{
		Extern: fd.Extern, Naked: fd.Naked, Cold: fd.Cold, VarArgs: fd.VarArgs,
		Params: params, Return: retType,
	})

	entry := &scope.FnEntry{
		SymbolName:      fd.Name,
		ProtoNode:       node,
		Type:            fnType,
		IsExtern:        fd.Extern,
		IsInline:        fd.Inline,
		IsNaked:         fd.Naked,
		IsCold:          fd.Cold,
		IsTest:          fd.Test,
		InternalLinkage: !fd.Extern,
	}
	fnScope.FnEntry = entry
	r.fnEntries[node] = entry

	if node.Kind == ast.FnDef {
		entry.DefNode = node
		body := node.Children[2]
		r.Analyzer.AnalyzeStmt(body, fnScope)
		entry.AllBlockContexts = append(entry.AllBlockContexts, fnScope)
	}
	if r.DeclareFunction != nil {
		r.DeclareFunction(entry)
	}
	return fnType
}

// FnEntryFor returns the scope.FnEntry a prior resolveFn call built for
// node, or nil if node hasn't been resolved as a function yet.
func (r *Resolver) FnEntryFor(node *ast.Node) *scope.FnEntry { return r.fnEntries[node] }

// resolveStruct resolves a struct declaration, pre-allocating the Type entry
// before visiting field types so self-referential types via pointer work
// (SPEC_FULL.md §4.1 "Interned types with back-refs", §4.3 "detect embedded
// in current cycles").
func (r *Resolver) resolveStruct(node *ast.Node, sc *scope.Scope) *types.Type {
	name, _ := node.Data.(string)
	st := types.NewStruct(name)
	node.Decl.Type = st // Visible to a recursive reference via the scope before CompleteStruct runs.

	fields := make([]types.Field, 0, len(node.Children))
	invalid := false
	for i, f := range node.Children {
		fname, _ := f.Data.(string)
		ft := r.Analyzer.AnalyzeTypeExpr(f.Children[0], sc)
		if embedsDirectly(ft, st) {
			r.Diags.Errorf(f.Span, "struct %q has infinite size", name)
			invalid = true
			ft = r.Reg.Invalid()
		}
		if ft == nil || ft.Kind == types.Invalid {
			invalid = true
		}
		fields = append(fields, types.Field{Name: fname, Type: ft, SrcIdx: i})
	}
	types.CompleteStruct(st, fields, invalid)
	if invalid {
		return r.Reg.Invalid()
	}
	return st
}

// embedsDirectly reports whether t is exactly the struct being resolved (a
// struct field of its own type, not behind a pointer), SPEC_FULL.md §8
// scenario 9's "struct has infinite size" case. Pointers to the current
// struct are legal and break the cycle, per the Type Registry's layout
// handle not needing the pointee to be complete.
func embedsDirectly(t, self *types.Type) bool {
	return t == self
}

// resolveEnum resolves an enum declaration, analyzing each variant's payload
// type and optional explicit tag value before committing the layout
// (SPEC_FULL.md §4.1 "Enum" collapse rules, realized via types.CompleteEnum).
func (r *Resolver) resolveEnum(node *ast.Node, sc *scope.Scope) *types.Type {
	name, _ := node.Data.(string)
	et := types.NewEnum(name)
	node.Decl.Type = et

	fields := make([]types.EnumField, 0, len(node.Children))
	nextValue := uint64(0)
	invalid := false
	for _, f := range node.Children {
		fd, _ := f.Data.(EnumFieldData)
		payloadT := r.Analyzer.AnalyzeTypeExpr(f.Children[0], sc)
		value := nextValue
		if fd.HasValue && len(f.Children) > 1 {
			r.Analyzer.Analyze(f.Children[1], sc, r.Reg.GetInt(false, 64), false)
			if cv := f.Children[1].Expr.ConstVal; cv.OK {
				value = cv.Payload.Num.UintVal
			}
		}
		nextValue = value + 1
		fields = append(fields, types.EnumField{Name: fd.Name, Type: payloadT, Value: value})
	}
	types.CompleteEnum(r.Reg, et, fields, invalid)
	return et
}

// resolveGlobalVar resolves a top-level variable/constant declaration
// (SPEC_FULL.md §4.3 "Variable"): infers the type from the initializer when
// no explicit type is given, rejects an Unreachable-typed declaration,
// requires a constant initializer (global storage has no runtime
// initialization step in this engine), and additionally requires `const`
// for a MetaType-typed declaration or one marked for export.
func (r *Resolver) resolveGlobalVar(node *ast.Node, sc *scope.Scope) *types.Type {
	gd, _ := node.Data.(GlobalVarDeclData)
	var declaredType *types.Type
	var initNode *ast.Node
	if len(node.Children) == 2 {
		declaredType = r.Analyzer.AnalyzeTypeExpr(node.Children[0], sc)
		initNode = node.Children[1]
	} else {
		initNode = node.Children[0]
	}
	initType := r.Analyzer.Analyze(initNode, sc, declaredType, false)
	if declaredType == nil {
		declaredType = initType
	}
	if declaredType.Kind == types.Unreachable {
		r.Diags.Errorf(node.Span, "variable %q cannot have type unreachable", gd.Name)
		return r.Reg.Invalid()
	}
	if !initNode.Expr.ConstVal.OK {
		r.Diags.Errorf(node.Span, "global variable %q requires a constant initializer", gd.Name)
		return r.Reg.Invalid()
	}
	if (declaredType.Kind == types.MetaType || gd.Exported) && !gd.IsConst {
		r.Diags.Errorf(node.Span, "variable %q must be declared const", gd.Name)
		return r.Reg.Invalid()
	}
	if r.DeclareGlobal != nil {
		r.DeclareGlobal(gd.Name, declaredType, initNode.Expr.ConstVal, gd.IsConst)
	}
	return declaredType
}

// resolveTypeDecl constructs a transparent type alias (SPEC_FULL.md §4.1
// "TypeDecl").
func (r *Resolver) resolveTypeDecl(node *ast.Node, sc *scope.Scope) *types.Type {
	name, _ := node.Data.(string)
	child := r.Analyzer.AnalyzeTypeExpr(node.Children[0], sc)
	return r.Reg.GetTypeDecl(name, child)
}

// resolveErrorValue allocates or reuses a monotonic numeric tag for an error
// name (SPEC_FULL.md §3 "Error-value entry", §4.3 "ErrorValueDecl").
func (r *Resolver) resolveErrorValue(node *ast.Node, sc *scope.Scope) *types.Type {
	name, _ := node.Data.(string)
	if _, ok := r.errorValues[name]; ok {
		return r.Reg.PureError()
	}
	value := uint64(len(r.errorOrder))
	if len(node.Children) > 0 {
		r.Analyzer.Analyze(node.Children[0], sc, r.Reg.GetInt(false, 64), false)
		if cv := node.Children[0].Expr.ConstVal; cv.OK {
			value = cv.Payload.Num.UintVal
		}
	}
	ev := &ErrorValue{Name: name, Value: value, DeclNode: node}
	r.errorValues[name] = ev
	r.errorOrder = append(r.errorOrder, ev)
	return r.Reg.PureError()
}

// ErrTagType returns the smallest integer type fitting the current
// error-value count, per SPEC_FULL.md §3.
func (r *Resolver) ErrTagType() *types.Type {
	maxVal := uint64(0)
	for _, ev := range r.errorOrder {
		if ev.Value > maxVal {
			maxVal = ev.Value
		}
	}
	return types.SmallestErrTagType(r.Reg, maxVal, r.ErrTagBits)
}

// ErrorValueByName looks up a declared error by name.
func (r *Resolver) ErrorValueByName(name string) (*ErrorValue, bool) {
	ev, ok := r.errorValues[name]
	return ev, ok
}

// resolveUse analyzes a use-decl's namespace expression and pulls its public
// names into sc, implementing SPEC_FULL.md §4.3's "Use" step: "analyze the
// imported namespace expression; queue public-name import."
func (r *Resolver) resolveUse(node *ast.Node, sc *scope.Scope) *types.Type {
	nsNode := node.Children[0]
	t := r.Analyzer.Analyze(nsNode, sc, nil, false)
	if t.Kind != types.Namespace {
		r.Diags.Errorf(node.Span, "use-decl requires a namespace expression, got %q", t)
		return r.Reg.Invalid()
	}
	if imp, ok := nsNode.Expr.ConstVal.Payload.Import.(*ast.Import); ok && imp != nil {
		if importSc, ok := imp.BlockContext.(*scope.Scope); ok && importSc != nil {
			for _, name := range importSc.OwnDeclNames() {
				if decl, _ := importSc.LookupDecl(name); decl != nil {
					sc.DeclareDecl(name, decl)
				}
			}
		}
	}
	return r.Reg.Namespace()
}

// resolveNamedType is sema's ResolveNamedType hook: resolves a TypeLiteral
// naming a struct/enum/typedecl declared elsewhere in sc's lexical chain
// (SPEC_FULL.md §4.3's on-demand resolution, as seen from the type
// sub-language instead of a value expression).
func (r *Resolver) resolveNamedType(node *ast.Node, sc *scope.Scope) *types.Type {
	name, _ := node.Data.(string)
	decl, _ := sc.LookupDecl(name)
	if decl == nil {
		r.Diags.Errorf(node.Span, "unknown type %q", name)
		return r.Reg.Invalid()
	}
	return r.Resolve(decl)
}
