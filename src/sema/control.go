package sema

import (
	"novac/src/ast"
	"novac/src/scope"
	"novac/src/types"
)

// AnalyzeStmt decorates a statement node and its subtree, returning the
// ReturnKnowledge SPEC_FULL.md §9's defer-unwinder needs: RKKnownUnconditional
// when the statement always transfers control out of the enclosing function
// (a bare return, or both arms of an if that do). A return of a value from
// an error-union function reports RKKnownError (a PureError value) or
// RKUnknown instead; everything else, break and continue included, reports
// RKSkip.
func (a *Analyzer) AnalyzeStmt(node *ast.Node, sc *scope.Scope) ast.ReturnKnowledge {
	if node == nil {
		return ast.RKSkip
	}
	switch node.Kind {
	case ast.Block:
		return a.analyzeBlock(node, sc)
	case ast.LabeledBlock:
		return a.analyzeLabeledBlock(node, sc)
	case ast.IfStmt:
		return a.analyzeIfStmt(node, sc)
	case ast.WhileStmt:
		return a.analyzeWhileStmt(node, sc)
	case ast.ForStmt:
		return a.analyzeForStmt(node, sc)
	case ast.SwitchStmt:
		return a.analyzeSwitchStmt(node, sc)
	case ast.ReturnStmt:
		return a.analyzeReturnStmt(node, sc)
	case ast.BreakStmt, ast.ContinueStmt:
		return ast.RKSkip
	case ast.BreakValueStmt:
		return a.analyzeBreakValueStmt(node, sc)
	case ast.DeferStmt:
		a.analyzeDeferStmt(node, sc)
		return ast.RKSkip
	case ast.VarDecl:
		a.analyzeVarDecl(node, sc)
		return ast.RKSkip
	case ast.ExprStmt:
		a.Analyze(node.Children[0], sc, nil, false)
		return ast.RKSkip
	case ast.AssignStmt:
		a.analyzeAssignStmt(node, sc)
		return ast.RKSkip
	case ast.CompoundAssignStmt:
		a.analyzeCompoundAssignStmt(node, sc)
		return ast.RKSkip
	case ast.LabelStmt, ast.GotoStmt:
		return ast.RKSkip
	default:
		a.Diags.Errorf(node.Span, "internal: sema cannot analyze statement kind %s", node.Kind)
		return ast.RKSkip
	}
}

func (a *Analyzer) analyzeBlock(node *ast.Node, parent *scope.Scope) ast.ReturnKnowledge {
	sc := scope.New(parent, node)
	rk := ast.RKSkip
	for _, stmt := range node.Children {
		srk := a.AnalyzeStmt(stmt, sc)
		if srk == ast.RKKnownUnconditional {
			rk = ast.RKKnownUnconditional
		}
	}
	return rk
}

// analyzeLabeledBlock types `label: { ... }`, registering the label in the
// enclosing function's Labels table so `break :label value` inside the block
// can resolve it (SPEC_FULL.md §5 item 5). A labeled block is also usable as
// a value-producing expression (analyzeNode's ast.LabeledBlock case calls
// analyzeLabeledBlockCore directly); this wrapper is only the statement-form
// entry point reached through AnalyzeStmt.
func (a *Analyzer) analyzeLabeledBlock(node *ast.Node, parent *scope.Scope) ast.ReturnKnowledge {
	_, rk := a.analyzeLabeledBlockCore(node, parent)
	return rk
}

// analyzeLabeledBlockCore walks a labeled block's body, then peer-resolves
// the result type across every `break :label value` site recorded against
// its Scope (SPEC_FULL.md §5 item 5: "the label's block is a block
// expression join point"). A label nothing ever breaks out of with a value
// types as Void, matching its historical pure-statement use. The resolved
// type is always recorded on node.Expr so the IR Emitter (which rebuilds its
// own Scope graph from the same AST) can read it back without needing this
// Scope.
func (a *Analyzer) analyzeLabeledBlockCore(node *ast.Node, parent *scope.Scope) (*types.Type, ast.ReturnKnowledge) {
	name, _ := node.Data.(string)
	sc := scope.New(parent, node)
	if sc.FnEntry != nil {
		if sc.FnEntry.Labels == nil {
			sc.FnEntry.Labels = make(map[string]*scope.Scope)
		}
		sc.FnEntry.Labels[name] = sc
	}
	rk := ast.RKSkip
	for _, stmt := range node.Children {
		if a.AnalyzeStmt(stmt, sc) == ast.RKKnownUnconditional {
			rk = ast.RKKnownUnconditional
		}
	}

	result := a.Reg.Void()
	if len(sc.LabelBreakValues) > 0 {
		ts := make([]*types.Type, len(sc.LabelBreakValues))
		for i, bv := range sc.LabelBreakValues {
			ts[i] = bv.Node.Expr.Type
		}
		result = ResolvePeerTypes(a.Reg, ts)
		if result.Kind == types.Invalid {
			a.Diags.Errorf(node.Span, "break :%s value sites have incompatible types", name)
		} else {
			for _, bv := range sc.LabelBreakValues {
				a.coerce(bv.Node, bv.Sc, result)
			}
		}
	}
	node.Expr = &ast.Expr{Type: result, BlockContext: parent, ReturnKnowledge: rk}
	return result, rk
}

// analyzeIfCond types the condition shared by both the statement and
// expression forms of `if`, and returns the Scope the then-branch must run
// in. node.Data optionally names a capture variable bound in that scope to
// the condition's unwrapped payload when the condition is a Maybe{X}
// (SPEC_FULL.md §4.4: "if over a Maybe{X} binds a non-null value in the
// then-branch"); otherwise the condition is coerced to bool as before.
func (a *Analyzer) analyzeIfCond(node *ast.Node, sc *scope.Scope) *scope.Scope {
	cond := node.Children[0]
	captureName, _ := node.Data.(string)
	natural := a.Analyze(cond, sc, nil, false)

	thenSc := scope.New(sc, node)
	if captureName != "" && natural.CanonicalType().Kind == types.Maybe {
		thenSc.DeclareVar(&scope.Variable{Name: captureName, Type: natural.CanonicalType().Child, SrcArgIndex: -1, GenArgIndex: -1})
		return thenSc
	}
	a.coerce(cond, sc, a.Reg.Bool())
	return thenSc
}

func (a *Analyzer) analyzeIfStmt(node *ast.Node, sc *scope.Scope) ast.ReturnKnowledge {
	thenSc := a.analyzeIfCond(node, sc)
	thenRK := a.AnalyzeStmt(node.Children[1], thenSc)
	if len(node.Children) < 3 {
		return ast.RKSkip
	}
	elseSc := scope.New(sc, node)
	elseRK := a.AnalyzeStmt(node.Children[2], elseSc)
	if thenRK == ast.RKKnownUnconditional && elseRK == ast.RKKnownUnconditional {
		return ast.RKKnownUnconditional
	}
	return ast.RKSkip
}

// analyzeIfExpr types `if` used as a value (SPEC_FULL.md §4.4 Scenario 1,
// §4.7 "if/else compiles to a cond-br + two blocks + optional join with a
// phi"). When expected is known (e.g. a declared function return type) each
// branch is coerced to it directly, mirroring analyzeReturnStmt; otherwise
// the branches are peer-resolved against each other first.
func (a *Analyzer) analyzeIfExpr(node *ast.Node, sc *scope.Scope, expected *types.Type) *types.Type {
	thenSc := a.analyzeIfCond(node, sc)
	if len(node.Children) < 3 {
		a.Diags.Errorf(node.Span, "if used as an expression requires an else branch")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	elseSc := scope.New(sc, node)

	var result *types.Type
	if expected != nil {
		a.Analyze(node.Children[1], thenSc, expected, false)
		a.Analyze(node.Children[2], elseSc, expected, false)
		result = expected
	} else {
		thenT := a.Analyze(node.Children[1], thenSc, nil, false)
		elseT := a.Analyze(node.Children[2], elseSc, nil, false)
		result = ResolvePeerTypes(a.Reg, []*types.Type{thenT, elseT})
		if result.Kind == types.Invalid {
			a.Diags.Errorf(node.Span, "if branches have incompatible types %q and %q", thenT, elseT)
		} else {
			a.coerce(node.Children[1], thenSc, result)
			a.coerce(node.Children[2], elseSc, result)
		}
	}
	node.Expr = &ast.Expr{Type: result, BlockContext: sc}
	return result
}

func (a *Analyzer) analyzeWhileStmt(node *ast.Node, parent *scope.Scope) ast.ReturnKnowledge {
	sc := scope.New(parent, node)
	sc.ParentLoop = sc
	a.Analyze(node.Children[0], sc, a.Reg.Bool(), false)
	a.AnalyzeStmt(node.Children[1], sc)
	return ast.RKSkip
}

func (a *Analyzer) analyzeForStmt(node *ast.Node, parent *scope.Scope) ast.ReturnKnowledge {
	sc := scope.New(parent, node)
	sc.ParentLoop = sc
	// Children: [iterable, (optional) index/elem bindings..., body]. The
	// iterable's element type drives the loop variable's type; binding names
	// and count are a parser-layer concern this engine only consumes through
	// Decl/Expr decoration already attached to the binding nodes.
	iterType := a.Analyze(node.Children[0], sc, nil, false)
	elemType := a.Reg.Invalid()
	if c := iterType.CanonicalType(); c.Kind == types.Array || c.Kind == types.Slice {
		elemType = c.Child
	} else {
		a.Diags.Errorf(node.Span, "for loop requires an array or slice, got %q", iterType)
	}
	body := node.Children[len(node.Children)-1]
	for _, binding := range node.Children[1 : len(node.Children)-1] {
		name, _ := binding.Data.(string)
		sc.DeclareVar(&scope.Variable{Name: name, Type: elemType, SrcArgIndex: -1, GenArgIndex: -1})
	}
	a.AnalyzeStmt(body, sc)
	return ast.RKSkip
}

// analyzeSwitchStmt types a switch over an Int or Enum value, checking
// exhaustiveness when no prong is an else/_ catch-all (SPEC_FULL.md §8
// "switch over an enum with all variants covered ... is recognized
// exhaustive without an else prong"). A prong's node.Data optionally names a
// capture variable bound, in that prong's own scope, to the payload of the
// enum variant(s) it matches: a single-value prong captures that variant's payload type directly;
// a multi-value or else prong captures the peer-resolved type across
// whichever variants it covers, and only binds at all when every covered
// variant agrees closely enough for ResolvePeerTypes to find a common type.
func (a *Analyzer) analyzeSwitchStmt(node *ast.Node, parent *scope.Scope) ast.ReturnKnowledge {
	subjectNode := node.Children[0]
	subjectType := a.Analyze(subjectNode, parent, nil, false)
	c := subjectType.CanonicalType()

	covered := make(map[uint64]bool)
	hasElse := false
	allUnconditional := true
	for _, prong := range node.Children[1:] {
		sc := scope.New(parent, prong)
		isElse := len(prong.Children) == 1 // Single child: just the body, no range/value list.
		var prongTags []uint64
		if isElse {
			hasElse = true
		} else {
			for _, valNode := range prong.Children[:len(prong.Children)-1] {
				a.Analyze(valNode, sc, subjectType, false)
				if valNode.Expr != nil && valNode.Expr.ConstVal.OK {
					tag := constTagValue(valNode.Expr.ConstVal)
					covered[tag] = true
					prongTags = append(prongTags, tag)
				}
			}
		}

		if c.Kind == types.Enum {
			if captureName, _ := prong.Data.(string); captureName != "" {
				var fields []*types.EnumField
				if isElse {
					for i := range c.EnumFields {
						if !covered[c.EnumFields[i].Value] {
							fields = append(fields, &c.EnumFields[i])
						}
					}
				} else {
					for _, tag := range prongTags {
						if f := enumFieldByTag(c, tag); f != nil {
							fields = append(fields, f)
						}
					}
				}
				if payload := prongCaptureType(a.Reg, fields); payload != nil && payload.Kind != types.Void {
					sc.DeclareVar(&scope.Variable{Name: captureName, Type: payload, SrcArgIndex: -1, GenArgIndex: -1})
				}
			}
		}

		body := prong.Children[len(prong.Children)-1]
		if a.AnalyzeStmt(body, sc) != ast.RKKnownUnconditional {
			allUnconditional = false
		}
	}

	if !hasElse && c.Kind == types.Enum {
		if len(covered) < len(c.EnumFields) {
			a.Diags.Errorf(node.Span, "switch on enum %q is not exhaustive", c)
		}
	} else if !hasElse && c.Kind != types.Enum {
		a.Diags.Errorf(node.Span, "switch must end with an else prong unless the subject is an exhaustively-covered enum")
	}

	if hasElse && allUnconditional {
		return ast.RKKnownUnconditional
	}
	return ast.RKSkip
}

func enumFieldByTag(c *types.Type, tag uint64) *types.EnumField {
	for i := range c.EnumFields {
		if c.EnumFields[i].Value == tag {
			return &c.EnumFields[i]
		}
	}
	return nil
}

// prongCaptureType peer-resolves the payload types of the enum fields a
// switch prong covers, returning nil when the prong covers nothing (an empty
// else against an already-exhaustive set of prior prongs).
func prongCaptureType(reg *types.Registry, fields []*types.EnumField) *types.Type {
	if len(fields) == 0 {
		return nil
	}
	ts := make([]*types.Type, len(fields))
	for i, f := range fields {
		ts[i] = f.Type
	}
	t := ResolvePeerTypes(reg, ts)
	if t.Kind == types.Invalid {
		return nil
	}
	return t
}

func constTagValue(cv ast.ConstVal) uint64 {
	switch cv.Payload.Kind {
	case ast.PayloadBigNum:
		return cv.Payload.Num.UintVal
	case ast.PayloadEnum:
		return cv.Payload.Enum.Tag
	default:
		return 0
	}
}

// analyzeReturnStmt types the returned expression (if any) and records the
// resulting ast.ReturnKnowledge on the ReturnStmt node's own Expr decoration
// (node.Children[0].Expr only carries the operand's knowledge, not the
// statement's), since the IR Emitter's defer-unwinder (SPEC_FULL.md §4.7)
// reads it back from the syntax tree rather than re-deriving it.
func (a *Analyzer) analyzeReturnStmt(node *ast.Node, sc *scope.Scope) ast.ReturnKnowledge {
	var fnReturn *types.Type
	if sc.FnEntry != nil {
		fnReturn = sc.FnEntry.Type.Return
	}
	if len(node.Children) == 0 {
		node.Expr = &ast.Expr{ReturnKnowledge: ast.RKKnownUnconditional}
		return ast.RKKnownUnconditional
	}
	t := a.Analyze(node.Children[0], sc, fnReturn, false)
	rk := ast.RKKnownUnconditional
	if fnReturn != nil && fnReturn.CanonicalType().Kind == types.ErrorUnion {
		if t.CanonicalType().Kind == types.PureError {
			rk = ast.RKKnownError
		} else {
			rk = ast.RKUnknown
		}
	}
	node.Expr = &ast.Expr{Type: t, ReturnKnowledge: rk}
	return rk
}

// analyzeBreakValueStmt types `break :label value`, looking the label up
// against the enclosing function's Labels table and recording the site on
// the label's own Scope so analyzeLabeledBlockCore can peer-resolve every
// site once the block's body has been fully walked (SPEC_FULL.md §5 item 5).
func (a *Analyzer) analyzeBreakValueStmt(node *ast.Node, sc *scope.Scope) ast.ReturnKnowledge {
	label, _ := node.Data.(string)
	var target *scope.Scope
	if sc.FnEntry != nil {
		target = sc.FnEntry.Labels[label]
	}
	a.Analyze(node.Children[0], sc, nil, false)
	if target == nil {
		a.Diags.Errorf(node.Span, "break to undefined label %q", label)
		return ast.RKSkip
	}
	target.LabelBreakValues = append(target.LabelBreakValues, scope.LabelBreakValue{Node: node.Children[0], Sc: sc})
	return ast.RKSkip
}

func (a *Analyzer) analyzeDeferStmt(node *ast.Node, sc *scope.Scope) {
	kind := scope.DeferUnconditional
	if kw, ok := node.Data.(string); ok {
		switch kw {
		case "errdefer":
			kind = scope.DeferError
		case "nulldefer":
			kind = scope.DeferMaybe
		}
	}
	a.AnalyzeStmt(node.Children[0], sc)
	sc.PushDefer(node.Children[0], kind)
}

func (a *Analyzer) analyzeVarDecl(node *ast.Node, sc *scope.Scope) {
	name, _ := node.Data.(string)
	var declaredType *types.Type
	var initNode *ast.Node
	if len(node.Children) == 2 {
		a.Analyze(node.Children[0], sc, nil, false)
		declaredType = node.Children[0].Expr.ConstVal.Payload.Type
		initNode = node.Children[1]
	} else {
		initNode = node.Children[0]
	}
	initType := a.Analyze(initNode, sc, declaredType, false)
	if declaredType == nil {
		declaredType = initType
	}
	if _, redef := sc.DeclareVar(&scope.Variable{Name: name, Type: declaredType, SrcArgIndex: -1, GenArgIndex: -1}); redef {
		a.Diags.Errorf(node.Span, "%s", scope.RedefinitionError(name))
	}
}

func (a *Analyzer) analyzeAssignStmt(node *ast.Node, sc *scope.Scope) {
	target, val := node.Children[0], node.Children[1]
	tt := a.Analyze(target, sc, nil, true)
	if v, ok := target.Expr.Variable.(*scope.Variable); ok && v != nil && v.IsConst {
		a.Diags.Errorf(node.Span, "cannot assign to const variable %q", v.Name)
	}
	a.Analyze(val, sc, tt, false)
}

func (a *Analyzer) analyzeCompoundAssignStmt(node *ast.Node, sc *scope.Scope) {
	target, val := node.Children[0], node.Children[1]
	tt := a.Analyze(target, sc, nil, true)
	a.Analyze(val, sc, tt, false)
}
