// Package sema implements the Expression Analyzer and Constant-Expression
// Evaluator (SPEC_FULL.md §4.4/§4.5): it decorates syntax-tree nodes with a
// resolved type and, where possible, a folded compile-time value, inserting
// implicit-cast wrapper nodes in place where the expected type differs from
// the actual one.
package sema

import (
	"novac/src/ast"
	"novac/src/diag"
	"novac/src/scope"
	"novac/src/types"
)

// Analyzer is the stateless-except-for-shared-tables driver of analysis: one
// Analyzer is shared by every goroutine walking an independent function body
// or top-level initializer, consistent with the Type Registry and Diagnostic
// Bag's own concurrency guarantees (SPEC_FULL.md §5).
type Analyzer struct {
	Reg         *types.Registry
	Diags       *diag.Bag
	CompileVars CompileVars

	// Resolve is called for an Identifier that names a top-level declaration
	// rather than a local variable, to trigger on-demand resolution
	// (SPEC_FULL.md §4.3). Set by the driver once the resolver exists; left
	// nil in unit tests that only exercise leaf expressions.
	Resolve func(decl *ast.Node) *types.Type

	// ResolveNamedType is called for a TypeLiteral naming something other
	// than a builtin primitive (a struct/enum/typedecl declared elsewhere).
	// Set by the driver once the resolver exists; left nil in unit tests
	// that only exercise builtin types.
	ResolveNamedType func(node *ast.Node, sc *scope.Scope) *types.Type

	// ResolveImport is called for import("relative-path") (SPEC_FULL.md
	// §4.6), resolving relative to fromFile's package and returning the
	// deduplicated *ast.Import. Set by the driver once an importgraph.Graph
	// exists; left nil in unit tests that only exercise single-file
	// analysis.
	ResolveImport func(fromFile *ast.Import, path string, span ast.Span) *ast.Import
}

// Analyze decorates node (and its subtree) with a resolved type and, when
// possible, a constant value, per the signature of SPEC_FULL.md §4.4:
// "analyze(node, expected_type?, pointer_only:bool) → type". When expected
// is non-nil and the analyzed type needs an implicit cast to satisfy it,
// Analyze installs an ImplicitCastExpr wrapper in node's parent slot and
// returns the wrapper's resolved type; callers that need the (possibly
// rewritten) node back should re-read it from the parent's Children slice,
// mirroring the AST-rewrite contract documented on ast.Node.Wrap.
//
// pointerOnly restricts FieldAccessExpr/ArrayAccessExpr lvalue analysis to
// producing an address rather than loading a value, used when this
// expression is the target of an assignment or the operand of &.
func (a *Analyzer) Analyze(node *ast.Node, sc *scope.Scope, expected *types.Type, pointerOnly bool) *types.Type {
	if node == nil {
		return a.Reg.Invalid()
	}
	t := a.analyzeNode(node, sc, expected, pointerOnly)
	if node.Expr == nil {
		node.Expr = &ast.Expr{}
	}
	node.Expr.Type = t
	return a.coerce(node, sc, expected)
}

// coerce applies SPEC_FULL.md §4.4's resolve_type_compatibility once a
// node's natural type is known, wrapping it with an ImplicitCastExpr node
// when a cast is needed and folding the wrapper's constant value through
// applyCastToConst when the operand itself was constant. It is a thin
// wrapper over coerceNode for callers that only need the resolved type.
func (a *Analyzer) coerce(node *ast.Node, sc *scope.Scope, expected *types.Type) *types.Type {
	t, _ := a.coerceNode(node, sc, expected)
	return t
}

// coerceNode is coerce's full form, additionally returning the node that now
// carries the resolved type and constant value: node itself when no cast was
// needed, or the ImplicitCastExpr wrapper installed in its place. Binary/call
// analysis needs the wrapper's folded ConstVal, not the pre-cast operand's.
func (a *Analyzer) coerceNode(node *ast.Node, sc *scope.Scope, expected *types.Type) (*types.Type, *ast.Node) {
	actual := node.Expr.Type
	result, needsCast, ok := ResolveTypeCompatibility(a.Reg, actual, expected)
	if !ok {
		a.Diags.Errorf(node.Span, "expected type %q, got %q", expected, actual)
		node.Expr.Type = a.Reg.Invalid()
		return node.Expr.Type, node
	}
	if !needsCast {
		return result, node
	}
	op, ok := resolveCastOp(a.Reg, actual, expected)
	wrapper := node.Wrap(ast.ImplicitCastExpr)
	wrapper.Data = op
	cv := node.Expr.ConstVal
	if ok && cv.OK {
		cv = applyCastToConst(op, cv, expected)
	}
	wrapper.Expr = &ast.Expr{
		Type:            expected,
		ConstVal:        cv,
		ReturnKnowledge: node.Expr.ReturnKnowledge,
		BlockContext:    sc,
	}
	return expected, wrapper
}

func (a *Analyzer) analyzeNode(node *ast.Node, sc *scope.Scope, expected *types.Type, pointerOnly bool) *types.Type {
	switch node.Kind {
	case ast.IntLiteral:
		return a.analyzeIntLiteral(node)
	case ast.FloatLiteral:
		return a.analyzeFloatLiteral(node)
	case ast.StringLiteral:
		return a.analyzeStringLiteral(node)
	case ast.CharLiteral:
		return a.analyzeCharLiteral(node)
	case ast.BoolLiteral:
		return a.analyzeBoolLiteral(node)
	case ast.NullLiteral:
		return a.analyzeNullLiteral(node, expected)
	case ast.UndefinedLiteral:
		return a.analyzeUndefinedLiteral(node, expected)
	case ast.Identifier:
		return a.analyzeIdentifier(node, sc)
	case ast.BinaryExpr:
		return a.analyzeBinaryExpr(node, sc)
	case ast.PrefixExpr, ast.PostfixExpr:
		return a.analyzeUnaryExpr(node, sc)
	case ast.AddressOfExpr:
		return a.analyzeAddressOf(node, sc)
	case ast.DerefExpr:
		return a.analyzeDeref(node, sc, pointerOnly)
	case ast.CastExpr:
		return a.analyzeCastExpr(node, sc)
	case ast.UnwrapExpr:
		return a.analyzeUnwrap(node, sc)
	case ast.ErrorUnwrapExpr:
		return a.analyzeErrorUnwrap(node, sc, expected)
	case ast.IfStmt:
		return a.analyzeIfExpr(node, sc, expected)
	case ast.LabeledBlock:
		t, _ := a.analyzeLabeledBlockCore(node, sc)
		return t
	case ast.FieldAccessExpr:
		return a.analyzeFieldAccess(node, sc, pointerOnly)
	case ast.ArrayAccessExpr:
		return a.analyzeArrayAccess(node, sc, pointerOnly)
	case ast.CallExpr:
		return a.analyzeCallExpr(node, sc)
	case ast.ContainerInitExpr:
		return a.analyzeContainerInit(node, sc, expected)
	case ast.ArrayInitExpr:
		return a.analyzeArrayInit(node, sc, expected)
	case ast.TypeLiteral, ast.PointerTypeLiteral, ast.ArrayTypeLiteral, ast.SliceTypeLiteral,
		ast.MaybeTypeLiteral, ast.ErrorUnionTypeLiteral, ast.ErrorTypeLiteral, ast.FnTypeLiteral:
		a.AnalyzeTypeExpr(node, sc)
		return a.Reg.MetaType()
	case ast.CImportExpr:
		return a.analyzeCImportExpr(node, sc)
	default:
		a.Diags.Errorf(node.Span, "internal: sema cannot analyze node kind %s", node.Kind)
		return a.Reg.Invalid()
	}
}

func (a *Analyzer) analyzeIntLiteral(node *ast.Node) *types.Type {
	n, _ := node.Data.(ast.BigNum)
	node.Expr = &ast.Expr{ConstVal: ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadBigNum, Num: n}}}
	return a.Reg.NumLitInt()
}

func (a *Analyzer) analyzeFloatLiteral(node *ast.Node) *types.Type {
	n, _ := node.Data.(ast.BigNum)
	node.Expr = &ast.Expr{ConstVal: ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadBigNum, Num: n}}}
	return a.Reg.NumLitFloat()
}

// analyzeStringLiteral yields a fixed-size byte array constant, matching
// source languages where string literals decay to array-of-u8 (array->slice
// is then the ordinary implicit-cast path of SPEC_FULL.md §4.4, not a
// special case here).
func (a *Analyzer) analyzeStringLiteral(node *ast.Node) *types.Type {
	s, _ := node.Data.(string)
	elems := make([]*ast.ConstVal, len(s))
	for i, c := range []byte(s) {
		v := ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadBigNum, Num: ast.BigNum{Kind: ast.BigInt, UintVal: uint64(c)}}}
		elems[i] = &v
	}
	node.Expr = &ast.Expr{ConstVal: ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadArray, Array: elems}}}
	return a.Reg.GetArray(a.Reg.GetInt(false, 8), uint64(len(s)))
}

// analyzeCharLiteral treats a character literal as a numeric literal whose
// value is its code point, so the same deferred-type coercion machinery as
// integer literals decides its eventual concrete int type.
func (a *Analyzer) analyzeCharLiteral(node *ast.Node) *types.Type {
	cp, _ := node.Data.(uint64)
	node.Expr = &ast.Expr{ConstVal: ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadBigNum, Num: ast.BigNum{Kind: ast.BigInt, UintVal: cp}}}}
	return a.Reg.NumLitInt()
}

func (a *Analyzer) analyzeBoolLiteral(node *ast.Node) *types.Type {
	b, _ := node.Data.(bool)
	node.Expr = &ast.Expr{ConstVal: ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadBool, Bool: b}}}
	return a.Reg.Bool()
}

// analyzeNullLiteral requires a Maybe-typed expected type to make sense of
// (SPEC_FULL.md §3 "Maybe"); with no expected type there is nothing to
// collapse null into, which is reported rather than guessed.
func (a *Analyzer) analyzeNullLiteral(node *ast.Node, expected *types.Type) *types.Type {
	if expected == nil || expected.CanonicalType().Kind != types.Maybe {
		a.Diags.Errorf(node.Span, "null literal requires a known optional type from context")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	node.Expr = &ast.Expr{ConstVal: ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadMaybe, Maybe: nil}}}
	return expected
}

func (a *Analyzer) analyzeUndefinedLiteral(node *ast.Node, expected *types.Type) *types.Type {
	if expected == nil {
		a.Diags.Errorf(node.Span, "undefined literal requires a known type from context")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	node.Expr = &ast.Expr{ConstVal: ast.ConstVal{OK: true, Undef: true}}
	return expected
}

// analyzeIdentifier resolves name against the Scope Graph, falling back to
// on-demand declaration resolution for names that name a top-level entity
// not yet analyzed (SPEC_FULL.md §4.3 "Resolution is driven on demand").
func (a *Analyzer) analyzeIdentifier(node *ast.Node, sc *scope.Scope) *types.Type {
	name, _ := node.Data.(string)
	v, declNode, found := sc.Lookup(name)
	if !found {
		a.Diags.Errorf(node.Span, "use of undeclared identifier %q", name)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	if v != nil {
		node.Expr = &ast.Expr{Variable: v, ConstVal: v.ConstVal, BlockContext: sc}
		return v.Type
	}
	if a.Resolve != nil {
		t := a.Resolve(declNode)
		node.Expr = &ast.Expr{BlockContext: sc}
		return t
	}
	a.Diags.Errorf(node.Span, "internal: identifier %q names a declaration but no resolver is wired", name)
	node.Expr = &ast.Expr{}
	return a.Reg.Invalid()
}

// analyzeAddressOf types &expr as *T or *const T depending on whether expr
// denotes a mutable lvalue (SPEC_FULL.md §4.4 "& on an lvalue yields a
// pointer; constness follows the operand's declared mutability").
func (a *Analyzer) analyzeAddressOf(node *ast.Node, sc *scope.Scope) *types.Type {
	operand := node.Children[0]
	a.Analyze(operand, sc, nil, true)
	isConst := true
	if v, ok := operand.Expr.Variable.(*scope.Variable); ok && v != nil {
		isConst = v.IsConst
	}
	node.Expr = &ast.Expr{BlockContext: sc}
	return a.Reg.GetPointer(operand.Expr.Type, isConst)
}

// analyzeDeref types .* on a pointer, unwrapping one level; repeated
// DerefExpr nodes support the multi-level pointer dereference this engine
// adds beyond the distilled baseline.
func (a *Analyzer) analyzeDeref(node *ast.Node, sc *scope.Scope, pointerOnly bool) *types.Type {
	operand := node.Children[0]
	pt := a.Analyze(operand, sc, nil, false)
	if pt.CanonicalType().Kind != types.Pointer {
		a.Diags.Errorf(node.Span, "cannot dereference non-pointer type %q", pt)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	node.Expr = &ast.Expr{BlockContext: sc}
	return pt.CanonicalType().Child
}

// analyzeCastExpr resolves an explicit @cast(T, expr)-style node: Children[0]
// is the type-literal operand (its meta-type decoration carries the target
// *types.Type in Expr.ConstVal.Payload.Type), Children[1] the value being
// cast.
func (a *Analyzer) analyzeCastExpr(node *ast.Node, sc *scope.Scope) *types.Type {
	typeNode, valNode := node.Children[0], node.Children[1]
	a.Analyze(typeNode, sc, nil, false)
	to := typeNode.Expr.ConstVal.Payload.Type
	if to == nil {
		to = a.Reg.Invalid()
	}
	from := a.Analyze(valNode, sc, nil, false)
	op, ok := resolveCastOp(a.Reg, from, to)
	if !ok {
		a.Diags.Errorf(node.Span, "invalid cast from %q to %q", from, to)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	cv := valNode.Expr.ConstVal
	if cv.OK {
		cv = applyCastToConst(op, cv, to)
	}
	node.Expr = &ast.Expr{Type: to, ConstVal: cv, BlockContext: sc}
	node.Data = op
	return to
}

// analyzeUnwrap types the force-unwrap of a Maybe or ErrorUnion operand
// (SPEC_FULL.md §4.4 peer-type note: "prefer ErrorUnion" when both a Maybe
// and an ErrorUnion view are in play; here the static kind of the operand
// alone decides, since this node only ever wraps one or the other).
func (a *Analyzer) analyzeUnwrap(node *ast.Node, sc *scope.Scope) *types.Type {
	operand := node.Children[0]
	t := a.Analyze(operand, sc, nil, false)
	c := t.CanonicalType()
	switch c.Kind {
	case types.Maybe:
		node.Expr = &ast.Expr{BlockContext: sc, ReturnKnowledge: ast.RKUnknown}
		return c.Child
	case types.ErrorUnion:
		node.Expr = &ast.Expr{BlockContext: sc, ReturnKnowledge: ast.RKUnknown}
		return c.Child
	default:
		a.Diags.Errorf(node.Span, "cannot unwrap non-optional, non-error-union type %q", t)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
}

// isDivergingFallback reports whether a %% fallback node is a statement kind
// that can only ever diverge (never stand in as the unwrapped value itself):
// spec.md Testable Scenario 3's `a() %% err => return err;` is the canonical
// case, but break/continue out of an enclosing loop read the same way.
func isDivergingFallback(k ast.Kind) bool {
	switch k {
	case ast.ReturnStmt, ast.BreakStmt, ast.ContinueStmt, ast.BreakValueStmt, ast.Block:
		return true
	default:
		return false
	}
}

// analyzeErrorUnwrap types `a %% b` (SPEC_FULL.md §4.4/§4.7's error-unwrap-
// with-fallback, spec.md Testable Scenario 3): operand must be an
// ErrorUnion{X}; node.Data optionally names a variable bound to the carried
// error tag (PureError), visible only while analyzing the fallback. When the
// fallback is itself a diverging statement (a bare `return`/`break`/
// `continue`, or a block that always does), it contributes no value to the
// join and the whole expression's type is simply X; otherwise the fallback
// is analyzed as a value of type X (or of whatever the caller's own expected
// type is, mirroring analyzeIfExpr's direct-expected-propagation).
func (a *Analyzer) analyzeErrorUnwrap(node *ast.Node, sc *scope.Scope, expected *types.Type) *types.Type {
	operand, fallback := node.Children[0], node.Children[1]
	bindName, _ := node.Data.(string)
	t := a.Analyze(operand, sc, nil, false)
	c := t.CanonicalType()
	if c.Kind != types.ErrorUnion {
		a.Diags.Errorf(node.Span, "the %%%% operator requires an error-union operand, got %q", t)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	errSc := scope.New(sc, node)
	if bindName != "" {
		errSc.DeclareVar(&scope.Variable{Name: bindName, Type: a.Reg.PureError(), SrcArgIndex: -1, GenArgIndex: -1})
	}

	result := c.Child
	if isDivergingFallback(fallback.Kind) {
		// return/break/continue always leave; a Block must contain a statement
		// that AnalyzeStmt reports as RKKnownUnconditional.
		rk := a.AnalyzeStmt(fallback, errSc)
		if fallback.Kind == ast.Block && rk != ast.RKKnownUnconditional {
			a.Diags.Errorf(fallback.Span, "%%%% fallback must produce a value or diverge unconditionally")
		}
	} else {
		want := c.Child
		if expected != nil {
			want = expected
			result = expected
		}
		a.Analyze(fallback, errSc, want, false)
	}
	node.Expr = &ast.Expr{Type: result, BlockContext: sc, ReturnKnowledge: ast.RKUnknown}
	return result
}

// analyzeCallExpr types a function call: Children[0] is the callee
// expression, the rest the argument list. Each argument is analyzed against
// its matching parameter's expected type so implicit casts are inserted in
// place (SPEC_FULL.md §4.4).
func (a *Analyzer) analyzeCallExpr(node *ast.Node, sc *scope.Scope) *types.Type {
	callee := node.Children[0]
	if callee.Kind == ast.Identifier {
		if name, _ := callee.Data.(string); isIntrinsicName(name) {
			return a.analyzeIntrinsicCall(node, sc, name)
		}
	}
	ct := a.Analyze(callee, sc, nil, false)
	fnType := ct.CanonicalType()
	if fnType.Kind != types.Fn {
		a.Diags.Errorf(node.Span, "cannot call non-function type %q", ct)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	args := node.Children[1:]
	if len(args) < len(fnType.Params) || (!fnType.FnVarArgs && len(args) != len(fnType.Params)) {
		a.Diags.Errorf(node.Span, "call to function expecting %d argument(s), got %d", len(fnType.Params), len(args))
	}
	for i, arg := range args {
		if i < len(fnType.Params) {
			a.Analyze(arg, sc, fnType.Params[i].Type, false)
		} else {
			a.Analyze(arg, sc, nil, false) // Variadic tail: no expected type to coerce against.
		}
	}
	rk := ast.RKUnknown
	if fnType.Return.CanonicalType().Kind == types.ErrorUnion {
		rk = ast.RKUnknown
	}
	node.Expr = &ast.Expr{BlockContext: sc, ReturnKnowledge: rk}
	return fnType.Return
}

// analyzeFieldAccess resolves a.b, threading through any number of pointer
// indirections before landing on a struct so `p.field` works the same as
// `p.*.field` when p is a *Struct (SPEC_FULL.md §5 item 1's added
// multi-level pointer-deref convenience).
func (a *Analyzer) analyzeFieldAccess(node *ast.Node, sc *scope.Scope, pointerOnly bool) *types.Type {
	base := node.Children[0]
	fieldName, _ := node.Data.(string)
	bt := a.Analyze(base, sc, nil, true)
	st := bt.CanonicalType()
	for st.Kind == types.Pointer {
		st = st.Child.CanonicalType()
	}
	if st.Kind != types.Struct {
		a.Diags.Errorf(node.Span, "type %q has no fields", bt)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	for _, f := range st.Fields {
		if f.Name == fieldName {
			node.Expr = &ast.Expr{BlockContext: sc}
			return f.Type
		}
	}
	a.Diags.Errorf(node.Span, "type %q has no field %q", st, fieldName)
	node.Expr = &ast.Expr{}
	return a.Reg.Invalid()
}

// analyzeArrayAccess resolves a[i] against an Array, Slice, or Pointer base.
func (a *Analyzer) analyzeArrayAccess(node *ast.Node, sc *scope.Scope, pointerOnly bool) *types.Type {
	base, index := node.Children[0], node.Children[1]
	bt := a.Analyze(base, sc, nil, true)
	a.Analyze(index, sc, nil, false)
	st := bt.CanonicalType()
	switch st.Kind {
	case types.Array, types.Slice, types.Pointer:
		node.Expr = &ast.Expr{BlockContext: sc}
		return st.Child
	default:
		a.Diags.Errorf(node.Span, "cannot index into type %q", bt)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
}

// analyzeContainerInit types a struct literal against its expected struct
// type, coercing each field's initializer in place.
func (a *Analyzer) analyzeContainerInit(node *ast.Node, sc *scope.Scope, expected *types.Type) *types.Type {
	if expected == nil || expected.CanonicalType().Kind != types.Struct {
		a.Diags.Errorf(node.Span, "struct literal requires a known struct type from context")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	st := expected.CanonicalType()
	fieldVals := make(map[string]*ast.ConstVal, len(node.Children))
	allConst := true
	for _, fieldInit := range node.Children {
		fieldName, _ := fieldInit.Data.(string)
		valNode := fieldInit.Children[0]
		var ft *types.Type
		for _, f := range st.Fields {
			if f.Name == fieldName {
				ft = f.Type
				break
			}
		}
		if ft == nil {
			a.Diags.Errorf(fieldInit.Span, "type %q has no field %q", st, fieldName)
			allConst = false
			continue
		}
		a.Analyze(valNode, sc, ft, false)
		if !valNode.Expr.ConstVal.OK {
			allConst = false
		} else {
			cv := valNode.Expr.ConstVal
			fieldVals[fieldName] = &cv
		}
	}
	cv := ast.ConstVal{}
	if allConst {
		cv = ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadStruct, Struct: fieldVals}}
	}
	node.Expr = &ast.Expr{ConstVal: cv, BlockContext: sc}
	return expected
}

// analyzeArrayInit types an array/slice literal, coercing each element
// against the expected child type.
func (a *Analyzer) analyzeArrayInit(node *ast.Node, sc *scope.Scope, expected *types.Type) *types.Type {
	var childT *types.Type
	if expected != nil {
		c := expected.CanonicalType()
		if c.Kind == types.Array || c.Kind == types.Slice {
			childT = c.Child
		}
	}
	elems := make([]*ast.ConstVal, len(node.Children))
	allConst := true
	for i, child := range node.Children {
		a.Analyze(child, sc, childT, false)
		if childT == nil {
			childT = child.Expr.Type
		}
		if !child.Expr.ConstVal.OK {
			allConst = false
		} else {
			cv := child.Expr.ConstVal
			elems[i] = &cv
		}
	}
	if childT == nil {
		childT = a.Reg.Invalid()
	}
	resultType := a.Reg.GetArray(childT, uint64(len(node.Children)))
	cv := ast.ConstVal{}
	if allConst {
		cv = ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadArray, Array: elems}}
	}
	node.Expr = &ast.Expr{ConstVal: cv, BlockContext: sc}
	return resultType
}
