package llvm

import (
	"fmt"
	"math/big"
	"strings"

	"tinygo.org/x/go-llvm"

	"novac/src/ast"
	"novac/src/scope"
	"novac/src/sema"
	"novac/src/types"
)

// genExpr lowers node to an rvalue. Handle-typed expressions still return a
// usable llvm.Value here (their address, since a handle value's "value" and
// "address" coincide for most callers); code paths that specifically need
// the address call genLValue instead so intent stays explicit.
func (e *Emitter) genExpr(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	if node.Expr != nil && node.Expr.ConstVal.OK && isFoldableKind(node.Kind) {
		if v, err := e.constValToLLVM(node.Expr.Type, node.Expr.ConstVal); err == nil {
			return v, nil
		}
	}

	switch node.Kind {
	case ast.Identifier:
		return e.genIdentifier(fnx, node, sc)
	case ast.IntLiteral, ast.FloatLiteral, ast.StringLiteral, ast.CharLiteral, ast.BoolLiteral, ast.NullLiteral, ast.UndefinedLiteral:
		// Every literal kind is fully decorated with a usable ConstVal by the
		// analyzer (see sema/analyzer.go's analyze*Literal family), so codegen
		// never needs to re-read the raw node.Data payload.
		return e.constValToLLVM(node.Expr.Type, node.Expr.ConstVal)
	case ast.BinaryExpr:
		return e.genBinaryExpr(fnx, node, sc)
	case ast.PrefixExpr:
		return e.genPrefixExpr(fnx, node, sc)
	case ast.PostfixExpr:
		return e.genPostfixExpr(fnx, node, sc)
	case ast.CallExpr:
		return e.genCallExpr(fnx, node, sc)
	case ast.FieldAccessExpr, ast.ArrayAccessExpr, ast.DerefExpr:
		addr, err := e.genLValue(fnx, node, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		if node.Expr.Type.IsHandleType() {
			return addr, nil
		}
		llt, err := e.lowerType(node.Expr.Type)
		if err != nil {
			return llvm.Value{}, err
		}
		return e.builder.CreateLoad(llt, addr, ""), nil
	case ast.AddressOfExpr:
		return e.genAddressOf(fnx, node, sc)
	case ast.CastExpr, ast.ImplicitCastExpr:
		return e.genCast(fnx, node, sc)
	case ast.ContainerInitExpr:
		return e.genContainerInit(fnx, node, sc)
	case ast.ArrayInitExpr:
		return e.genArrayInit(fnx, node, sc)
	case ast.UnwrapExpr:
		return e.genUnwrap(fnx, node, sc)
	case ast.ErrorUnwrapExpr:
		return e.genErrorUnwrap(fnx, node, sc)
	case ast.IfStmt:
		return e.genIfExpr(fnx, node, sc)
	case ast.LabeledBlock:
		v, _, err := e.genLabeledBlockCore(fnx, node, sc)
		return v, err
	default:
		return llvm.Value{}, fmt.Errorf("internal: codegen cannot lower expression kind %s at %v", node.Kind, node.Span)
	}
}

func isFoldableKind(k ast.Kind) bool {
	switch k {
	case ast.Identifier, ast.CallExpr:
		return false
	default:
		return true
	}
}

// genLValue lowers node to the address of its storage, for assignment
// targets and handle-typed operands (SPEC_FULL.md §4.7 "lvalue rules").
func (e *Emitter) genLValue(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	switch node.Kind {
	case ast.Identifier:
		v, _ := sc.LookupVar(identName(node))
		if v == nil {
			return llvm.Value{}, fmt.Errorf("genLValue: undeclared identifier %q at %v", identName(node), node.Span)
		}
		addr, ok := v.ValueRef.(llvm.Value)
		if !ok {
			return llvm.Value{}, fmt.Errorf("genLValue(%q): no storage emitted yet", v.Name)
		}
		return addr, nil
	case ast.DerefExpr:
		return e.genExpr(fnx, node.Children[0], sc)
	case ast.FieldAccessExpr:
		return e.genFieldAddr(fnx, node, sc)
	case ast.ArrayAccessExpr:
		return e.genArrayElemAddr(fnx, node, sc)
	case ast.CallExpr, ast.ContainerInitExpr, ast.ArrayInitExpr, ast.UnwrapExpr, ast.CastExpr, ast.ImplicitCastExpr,
		ast.ErrorUnwrapExpr, ast.IfStmt, ast.LabeledBlock:
		// A handle-typed value expression already evaluates to an address
		// (its sret slot, or the temporary this emitter allocates for it) —
		// this also covers cast ops that produce a handle-typed result
		// (CastToUnknownSizeArray, CastMaybeWrap, CastErrorWrap, a payload-
		// carrying CastPureErrorWrap), and the join-typed constructs whose
		// genExpr already returns an address for a handle-typed result
		// (error-unwrap, if-expression, labeled block).
		return e.genExpr(fnx, node, sc)
	default:
		return llvm.Value{}, fmt.Errorf("internal: codegen cannot take the address of %s at %v", node.Kind, node.Span)
	}
}

func identName(node *ast.Node) string {
	name, _ := node.Data.(string)
	return name
}

func (e *Emitter) genIdentifier(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	name := identName(node)
	v, _ := sc.LookupVar(name)
	if v == nil {
		e.globalsMu.Lock()
		gv, ok := e.globals[name]
		e.globalsMu.Unlock()
		if !ok {
			return llvm.Value{}, fmt.Errorf("genIdentifier: undeclared identifier %q at %v", name, node.Span)
		}
		if node.Expr.Type.IsHandleType() {
			return gv, nil
		}
		llt, err := e.lowerType(node.Expr.Type)
		if err != nil {
			return llvm.Value{}, err
		}
		return e.builder.CreateLoad(llt, gv, ""), nil
	}
	addr, ok := v.ValueRef.(llvm.Value)
	if !ok {
		return llvm.Value{}, fmt.Errorf("genIdentifier(%q): no storage emitted yet", name)
	}
	if v.Type.IsHandleType() {
		return addr, nil
	}
	llt, err := e.lowerType(v.Type)
	if err != nil {
		return llvm.Value{}, err
	}
	return e.builder.CreateLoad(llt, addr, ""), nil
}

// genBinaryExpr lowers a binary operator expression; arithmetic/relational/
// logical operators per SPEC_FULL.md §4.5.
func (e *Emitter) genBinaryExpr(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	op, _ := node.Data.(string)
	if op == "&&" || op == "||" {
		return e.genShortCircuit(fnx, node, sc, op)
	}
	lhs, err := e.genExpr(fnx, node.Children[0], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	rhs, err := e.genExpr(fnx, node.Children[1], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	return e.applyBinaryOp(op, node.Children[0].Expr.Type, lhs, rhs)
}

// genShortCircuit lowers && / || with branch-based short-circuiting rather
// than an eager bitwise and/or, since the RHS may have side effects.
func (e *Emitter) genShortCircuit(fnx *fnCtx, node *ast.Node, sc *scope.Scope, op string) (llvm.Value, error) {
	lhs, err := e.genExpr(fnx, node.Children[0], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	startBB := e.builder.GetInsertBlock()
	rhsBB := e.ctx.AddBasicBlock(fnx.fnVal, "sc.rhs")
	joinBB := e.ctx.AddBasicBlock(fnx.fnVal, "sc.end")
	if op == "&&" {
		e.builder.CreateCondBr(lhs, rhsBB, joinBB)
	} else {
		e.builder.CreateCondBr(lhs, joinBB, rhsBB)
	}
	e.builder.SetInsertPointAtEnd(rhsBB)
	rhs, err := e.genExpr(fnx, node.Children[1], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	rhsEndBB := e.builder.GetInsertBlock()
	e.builder.CreateBr(joinBB)
	e.builder.SetInsertPointAtEnd(joinBB)
	phi := e.builder.CreatePHI(e.ctx.Int1Type(), "")
	phi.AddIncoming([]llvm.Value{lhs, rhs}, []llvm.BasicBlock{startBB, rhsEndBB})
	return phi, nil
}

// applyBinaryOp applies op to already-lowered operands typed t, used by both
// genBinaryExpr and genCompoundAssignStmt.
func (e *Emitter) applyBinaryOp(op string, t *types.Type, lhs, rhs llvm.Value) (llvm.Value, error) {
	c := t.CanonicalType()
	isFloat := c.Kind == types.Float || c.Kind == types.NumLitFloat
	isSigned := c.Kind == types.Int && c.Signed

	switch op {
	case "+":
		if isFloat {
			return e.builder.CreateFAdd(lhs, rhs, ""), nil
		}
		return e.builder.CreateAdd(lhs, rhs, ""), nil
	case "-":
		if isFloat {
			return e.builder.CreateFSub(lhs, rhs, ""), nil
		}
		return e.builder.CreateSub(lhs, rhs, ""), nil
	case "*":
		if isFloat {
			return e.builder.CreateFMul(lhs, rhs, ""), nil
		}
		return e.builder.CreateMul(lhs, rhs, ""), nil
	case "/":
		if isFloat {
			return e.builder.CreateFDiv(lhs, rhs, ""), nil
		}
		if isSigned {
			return e.builder.CreateSDiv(lhs, rhs, ""), nil
		}
		return e.builder.CreateUDiv(lhs, rhs, ""), nil
	case "%":
		if isFloat {
			return e.builder.CreateFRem(lhs, rhs, ""), nil
		}
		if isSigned {
			return e.builder.CreateSRem(lhs, rhs, ""), nil
		}
		return e.builder.CreateURem(lhs, rhs, ""), nil
	case "&":
		return e.builder.CreateAnd(lhs, rhs, ""), nil
	case "|":
		return e.builder.CreateOr(lhs, rhs, ""), nil
	case "^":
		return e.builder.CreateXor(lhs, rhs, ""), nil
	case "<<":
		return e.builder.CreateShl(lhs, rhs, ""), nil
	case ">>":
		if isSigned {
			return e.builder.CreateAShr(lhs, rhs, ""), nil
		}
		return e.builder.CreateLShr(lhs, rhs, ""), nil
	case "==", "!=", "<", "<=", ">", ">=":
		return e.genCompare(op, isFloat, isSigned, lhs, rhs), nil
	default:
		return llvm.Value{}, fmt.Errorf("applyBinaryOp: unsupported operator %q", op)
	}
}

func (e *Emitter) genCompare(op string, isFloat, isSigned bool, lhs, rhs llvm.Value) llvm.Value {
	if isFloat {
		var pred llvm.FloatPredicate
		switch op {
		case "==":
			pred = llvm.FloatOEQ
		case "!=":
			pred = llvm.FloatONE
		case "<":
			pred = llvm.FloatOLT
		case "<=":
			pred = llvm.FloatOLE
		case ">":
			pred = llvm.FloatOGT
		default:
			pred = llvm.FloatOGE
		}
		return e.builder.CreateFCmp(pred, lhs, rhs, "")
	}
	var pred llvm.IntPredicate
	switch op {
	case "==":
		pred = llvm.IntEQ
	case "!=":
		pred = llvm.IntNE
	case "<":
		if isSigned {
			pred = llvm.IntSLT
		} else {
			pred = llvm.IntULT
		}
	case "<=":
		if isSigned {
			pred = llvm.IntSLE
		} else {
			pred = llvm.IntULE
		}
	case ">":
		if isSigned {
			pred = llvm.IntSGT
		} else {
			pred = llvm.IntUGT
		}
	default:
		if isSigned {
			pred = llvm.IntSGE
		} else {
			pred = llvm.IntUGE
		}
	}
	return e.builder.CreateICmp(pred, lhs, rhs, "")
}

// genPrefixExpr lowers unary -, !, ~.
func (e *Emitter) genPrefixExpr(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	op, _ := node.Data.(string)
	v, err := e.genExpr(fnx, node.Children[0], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	t := node.Expr.Type.CanonicalType()
	switch op {
	case "-":
		if t.Kind == types.Float || t.Kind == types.NumLitFloat {
			return e.builder.CreateFNeg(v, ""), nil
		}
		return e.builder.CreateNeg(v, ""), nil
	case "!":
		return e.builder.CreateNot(v, ""), nil
	case "~":
		return e.builder.CreateNot(v, ""), nil
	default:
		return llvm.Value{}, fmt.Errorf("genPrefixExpr: unsupported operator %q", op)
	}
}

// genPostfixExpr lowers a PostfixExpr to its operand's value; no operator
// is applied here. Postfix ++/-- are modeled as CompoundAssignStmt at the
// statement level per the grammar.
func (e *Emitter) genPostfixExpr(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	return e.genExpr(fnx, node.Children[0], sc)
}

// genAddressOf lowers `&x` to the lvalue address of its operand
// (sema/analyzer.go's analyzeAddressOf types this against the operand's
// storage, never against a bare type expression).
func (e *Emitter) genAddressOf(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	return e.genLValue(fnx, node.Children[0], sc)
}

// genCast lowers explicit/implicit casts between compatible types
// (SPEC_FULL.md §4.5's cast rules: integer widen/narrow, int<->float,
// pointer<->pointer).
// genCast lowers an explicit CastExpr or an analyzer-inserted ImplicitCastExpr
// by switching on the sema.CastOp the analyzer already resolved and recorded
// on node.Data (sema/cast.go's resolveCastOp), rather than re-deriving the
// conversion from the two types' Kinds. CastExpr carries the value as
// Children[1] (Children[0] is the type-expression node); ImplicitCastExpr's
// Node.Wrap gives it a single child, Children[0], holding the wrapped
// original expression.
func (e *Emitter) genCast(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	var srcNode *ast.Node
	if node.Kind == ast.CastExpr {
		srcNode = node.Children[1]
	} else {
		srcNode = node.Children[0]
	}
	op, _ := node.Data.(sema.CastOp)
	dstT := node.Expr.Type.CanonicalType()
	srcT := srcNode.Expr.Type.CanonicalType()
	dstLLT, err := e.lowerType(node.Expr.Type)
	if err != nil {
		return llvm.Value{}, err
	}

	switch op {
	case sema.CastNoop:
		return e.genExpr(fnx, srcNode, sc)

	case sema.CastBoolToInt:
		v, err := e.genExpr(fnx, srcNode, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		return e.builder.CreateZExt(v, dstLLT, ""), nil

	case sema.CastPtrToInt:
		v, err := e.genExpr(fnx, srcNode, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		return e.builder.CreatePtrToInt(v, dstLLT, ""), nil

	case sema.CastIntToPtr:
		v, err := e.genExpr(fnx, srcNode, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		return e.builder.CreateIntToPtr(v, dstLLT, ""), nil

	case sema.CastWidenOrShorten:
		v, err := e.genExpr(fnx, srcNode, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		return e.genWidenOrShorten(v, dstT, srcT, dstLLT), nil

	case sema.CastIntToFloat:
		v, err := e.genExpr(fnx, srcNode, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		if srcT.Signed {
			return e.builder.CreateSIToFP(v, dstLLT, ""), nil
		}
		return e.builder.CreateUIToFP(v, dstLLT, ""), nil

	case sema.CastFloatToInt:
		v, err := e.genExpr(fnx, srcNode, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		if dstT.Signed {
			return e.builder.CreateFPToSI(v, dstLLT, ""), nil
		}
		return e.builder.CreateFPToUI(v, dstLLT, ""), nil

	case sema.CastPointerReinterpret:
		// Covers pointer->pointer and pointer->Maybe{Pointer|Fn} (the Maybe
		// collapses to the bare pointer representation, so the bitcast is
		// the whole conversion either way).
		v, err := e.genExpr(fnx, srcNode, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		return e.builder.CreateBitCast(v, dstLLT, ""), nil

	case sema.CastToUnknownSizeArray:
		return e.genArrayToSlice(fnx, srcNode, srcT, node.Expr.Type, sc)

	case sema.CastMaybeWrap:
		return e.genWrapMaybe(fnx, srcNode, node.Expr.Type, sc)

	case sema.CastErrorWrap:
		return e.genWrapErrorUnion(fnx, srcNode, node.Expr.Type, sc)

	case sema.CastPureErrorWrap:
		// from is PureError, to is ErrorUnion: both lower to the bare tag
		// integer when the payload is zero-bit (types.go's
		// lowerErrorUnionType), so the value carries over unchanged; a
		// payload-carrying target needs the full {tag,payload} struct with
		// an undef payload slot.
		v, err := e.genExpr(fnx, srcNode, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		if dstT.Child.ZeroBits() {
			return v, nil
		}
		tmp := e.builder.CreateAlloca(dstLLT, "errwrap.tmp")
		e.poisonStack(tmp, dstLLT)
		e.builder.CreateStore(v, e.builder.CreateStructGEP(dstLLT, tmp, 0, ""))
		payloadLLT, err := e.lowerType(dstT.Child)
		if err != nil {
			return llvm.Value{}, err
		}
		e.builder.CreateStore(llvm.ConstNull(payloadLLT), e.builder.CreateStructGEP(dstLLT, tmp, 1, ""))
		return tmp, nil

	case sema.CastErrToInt:
		// from is PureError or a zero-bit-payload ErrorUnion: either way the
		// runtime representation is already the bare tag integer.
		v, err := e.genExpr(fnx, srcNode, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		srcBits := e.errTagBits()
		if dstT.Bits > srcBits {
			return e.builder.CreateZExt(v, dstLLT, ""), nil
		}
		if dstT.Bits < srcBits {
			return e.builder.CreateTrunc(v, dstLLT, ""), nil
		}
		return v, nil

	default:
		return llvm.Value{}, fmt.Errorf("genCast: unrecognized CastOp %v at %v", op, node.Span)
	}
}

func (e *Emitter) genWidenOrShorten(v llvm.Value, dstT, srcT *types.Type, dstLLT llvm.Type) llvm.Value {
	if dstT.Kind == types.Float || dstT.Kind == types.NumLitFloat {
		if dstT.Bits > srcT.Bits {
			return e.builder.CreateFPExt(v, dstLLT, "")
		}
		if dstT.Bits < srcT.Bits {
			return e.builder.CreateFPTrunc(v, dstLLT, "")
		}
		return v
	}
	if dstT.Bits > srcT.Bits {
		if srcT.Signed {
			return e.builder.CreateSExt(v, dstLLT, "")
		}
		return e.builder.CreateZExt(v, dstLLT, "")
	}
	if dstT.Bits < srcT.Bits {
		return e.builder.CreateTrunc(v, dstLLT, "")
	}
	return v
}

// genArrayToSlice materializes a {ptr,len} slice header pointing at an
// existing array's storage (SPEC_FULL.md §4.5's CastToUnknownSizeArray:
// "builds a {ptr:array-fields, len:N} pair").
func (e *Emitter) genArrayToSlice(fnx *fnCtx, srcNode *ast.Node, srcT *types.Type, dstType *types.Type, sc *scope.Scope) (llvm.Value, error) {
	arrAddr, err := e.genLValue(fnx, srcNode, sc)
	if err != nil {
		return llvm.Value{}, err
	}
	elemLLT, err := e.lowerType(srcT.Child)
	if err != nil {
		return llvm.Value{}, err
	}
	zero := llvm.ConstInt(e.ctx.Int64Type(), 0, false)
	elemPtr := e.builder.CreateGEP(elemLLT, arrAddr, []llvm.Value{zero, zero}, "")

	sliceLLT, err := e.lowerType(dstType)
	if err != nil {
		return llvm.Value{}, err
	}
	tmp := e.builder.CreateAlloca(sliceLLT, "slice.tmp")
	e.poisonStack(tmp, sliceLLT)
	e.builder.CreateStore(elemPtr, e.builder.CreateStructGEP(sliceLLT, tmp, 0, ""))
	e.builder.CreateStore(llvm.ConstInt(e.ctx.Int64Type(), srcT.Len, false), e.builder.CreateStructGEP(sliceLLT, tmp, 1, ""))
	return tmp, nil
}

// genWrapMaybe lowers CastMaybeWrap, mirroring the three-way Maybe layout
// collapse types.go's lowerMaybeType/constMaybeToLLVM already implement for
// declarations and constants.
func (e *Emitter) genWrapMaybe(fnx *fnCtx, srcNode *ast.Node, dstType *types.Type, sc *scope.Scope) (llvm.Value, error) {
	dstT := dstType.CanonicalType()
	child := dstT.Child
	dstLLT, err := e.lowerType(dstType)
	if err != nil {
		return llvm.Value{}, err
	}
	switch {
	case types.CollapsesToNullablePointer(child):
		return e.genExpr(fnx, srcNode, sc)
	case child.ZeroBits():
		return llvm.ConstInt(dstLLT, 1, false), nil
	default:
		tmp := e.builder.CreateAlloca(dstLLT, "maybewrap.tmp")
		e.poisonStack(tmp, dstLLT)
		e.builder.CreateStore(llvm.ConstInt(e.ctx.Int1Type(), 1, false), e.builder.CreateStructGEP(dstLLT, tmp, 0, ""))
		payloadAddr := e.builder.CreateStructGEP(dstLLT, tmp, 1, "")
		if child.IsHandleType() {
			src, err := e.genLValue(fnx, srcNode, sc)
			if err != nil {
				return llvm.Value{}, err
			}
			payloadLLT, err := e.lowerType(child)
			if err != nil {
				return llvm.Value{}, err
			}
			e.emitAggregateCopy(payloadAddr, src, payloadLLT)
		} else {
			v, err := e.genExpr(fnx, srcNode, sc)
			if err != nil {
				return llvm.Value{}, err
			}
			e.builder.CreateStore(v, payloadAddr)
		}
		return tmp, nil
	}
}

// genWrapErrorUnion lowers CastErrorWrap: the tag is always the "ok" value
// (0) since wrapping a non-error payload never carries an error.
func (e *Emitter) genWrapErrorUnion(fnx *fnCtx, srcNode *ast.Node, dstType *types.Type, sc *scope.Scope) (llvm.Value, error) {
	dstT := dstType.CanonicalType()
	child := dstT.Child
	dstLLT, err := e.lowerType(dstType)
	if err != nil {
		return llvm.Value{}, err
	}
	if child.ZeroBits() {
		return llvm.ConstInt(dstLLT, 0, false), nil
	}
	tmp := e.builder.CreateAlloca(dstLLT, "errwrap.tmp")
	e.poisonStack(tmp, dstLLT)
	e.builder.CreateStore(llvm.ConstInt(e.ctx.IntType(e.errTagBits()), 0, false), e.builder.CreateStructGEP(dstLLT, tmp, 0, ""))
	payloadAddr := e.builder.CreateStructGEP(dstLLT, tmp, 1, "")
	if child.IsHandleType() {
		src, err := e.genLValue(fnx, srcNode, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		payloadLLT, err := e.lowerType(child)
		if err != nil {
			return llvm.Value{}, err
		}
		e.emitAggregateCopy(payloadAddr, src, payloadLLT)
	} else {
		v, err := e.genExpr(fnx, srcNode, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		e.builder.CreateStore(v, payloadAddr)
	}
	return tmp, nil
}

// genIntrinsicCall lowers one of sema/intrinsics.go's compile-time
// intrinsics (SPEC_FULL.md §4.4/§5): the callee is an identifier whose name
// the analyzer recognized, so it was never declared as an ordinary LLVM
// function and must not go through genCallExpr's resolveCallee path.
func (e *Emitter) genIntrinsicCall(fnx *fnCtx, node *ast.Node, sc *scope.Scope, name string, args []*ast.Node) (llvm.Value, error) {
	switch name {
	case "sizeof":
		llt, err := e.lowerType(args[0].Expr.ConstVal.Payload.Type)
		if err != nil {
			return llvm.Value{}, err
		}
		return llvm.SizeOf(llt), nil
	case "alignof":
		llt, err := e.lowerType(args[0].Expr.ConstVal.Payload.Type)
		if err != nil {
			return llvm.Value{}, err
		}
		return llvm.AlignOf(llt), nil
	case "min_value", "max_value", "member_count", "const_eval", "compile_var", "this_type", "typeof", "import":
		// Folded entirely by the analyzer (sema/intrinsics.go) into
		// node.Expr.ConstVal; sizeof/alignof are the only two that stay
		// unfolded until a target DataLayout exists.
		return e.constValToLLVM(node.Expr.Type, node.Expr.ConstVal)
	case "truncate", "bit_cast":
		return e.genTruncateOrBitCastIntrinsic(fnx, node, sc, name, args)
	case "memcpy":
		return e.genMemcpyIntrinsicCall(fnx, sc, args)
	case "memset":
		return e.genMemsetIntrinsicCall(fnx, sc, args)
	case "ctz", "clz":
		return e.genCtzClz(fnx, sc, name, args)
	case "add_with_overflow", "sub_with_overflow", "mul_with_overflow":
		return e.genWithOverflow(fnx, sc, name, args)
	default:
		return llvm.Value{}, fmt.Errorf("genIntrinsicCall: unhandled intrinsic %q", name)
	}
}

// genTruncateOrBitCastIntrinsic lowers truncate(T,x)/bit_cast(T,x)
// (SPEC_FULL.md §5 item 4): truncate converts through genWidenOrShorten (a
// plain trunc when narrowing, sext/zext by source signedness when widening,
// never a checked narrow), bit_cast
// reinterprets the bit pattern via an integer/float/pointer bitcast chain.
func (e *Emitter) genTruncateOrBitCastIntrinsic(fnx *fnCtx, node *ast.Node, sc *scope.Scope, name string, args []*ast.Node) (llvm.Value, error) {
	v, err := e.genExpr(fnx, args[1], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	dstT := node.Expr.Type.CanonicalType()
	dstLLT, err := e.lowerType(node.Expr.Type)
	if err != nil {
		return llvm.Value{}, err
	}
	if name == "truncate" {
		srcT := args[1].Expr.Type.CanonicalType()
		return e.genWidenOrShorten(v, dstT, srcT, dstLLT), nil
	}
	// bit_cast: raw bit-pattern reinterpretation, regardless of source/
	// destination Kind. No same-size check is made here or by the analyzer
	// (sema/intrinsics.go's intrinsicBitCast).
	return e.builder.CreateBitCast(v, dstLLT, ""), nil
}

// genMemcpyIntrinsicCall lowers the user-facing memcpy(dst,src,len)
// intrinsic (SPEC_FULL.md §4.4) to the same llvm.memcpy.p0i8.p0i8.i64
// declaration emitAggregateCopy uses internally for handle-typed
// assignment, and evaluates to Void per sema's intrinsicMemcpyMemset.
func (e *Emitter) genMemcpyIntrinsicCall(fnx *fnCtx, sc *scope.Scope, args []*ast.Node) (llvm.Value, error) {
	dst, err := e.genExpr(fnx, args[0], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	src, err := e.genExpr(fnx, args[1], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	n, err := e.genExpr(fnx, args[2], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	ptrT := llvm.PointerType(e.ctx.Int8Type(), 0)
	dstRaw := e.builder.CreateBitCast(dst, ptrT, "")
	srcRaw := e.builder.CreateBitCast(src, ptrT, "")
	fn, ftyp := e.memcpyIntrinsic()
	e.builder.CreateCall(ftyp, fn, []llvm.Value{dstRaw, srcRaw, n, llvm.ConstInt(e.ctx.Int1Type(), 0, false)}, "")
	return llvm.Value{}, nil
}

// genMemsetIntrinsicCall lowers the user-facing memset(dst,c,len) intrinsic
// (SPEC_FULL.md §4.4) to the same llvm.memset.p0i8.i64 declaration
// poisonStack uses internally for the 0xAA stack-fill pattern.
func (e *Emitter) genMemsetIntrinsicCall(fnx *fnCtx, sc *scope.Scope, args []*ast.Node) (llvm.Value, error) {
	dst, err := e.genExpr(fnx, args[0], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	c, err := e.genExpr(fnx, args[1], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	n, err := e.genExpr(fnx, args[2], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	ptrT := llvm.PointerType(e.ctx.Int8Type(), 0)
	dstRaw := e.builder.CreateBitCast(dst, ptrT, "")
	fn, ftyp := e.memsetIntrinsic()
	e.builder.CreateCall(ftyp, fn, []llvm.Value{dstRaw, c, n, llvm.ConstInt(e.ctx.Int1Type(), 0, false)}, "")
	return llvm.Value{}, nil
}

// genCtzClz lowers ctz(T,x)/clz(T,x) (SPEC_FULL.md §4.4) to the IR
// library's llvm.cttz.iN/llvm.ctlz.iN intrinsics, with is_zero_undef fixed
// to false so an all-zero input yields the full bit width rather than
// undefined behavior.
func (e *Emitter) genCtzClz(fnx *fnCtx, sc *scope.Scope, name string, args []*ast.Node) (llvm.Value, error) {
	t := args[0].Expr.ConstVal.Payload.Type
	llt, err := e.lowerType(t)
	if err != nil {
		return llvm.Value{}, err
	}
	v, err := e.genExpr(fnx, args[1], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	op := "cttz"
	if name == "clz" {
		op = "ctlz"
	}
	fn, ftyp := e.bitCountIntrinsic(op, llt)
	return e.builder.CreateCall(ftyp, fn, []llvm.Value{v, llvm.ConstInt(e.ctx.Int1Type(), 0, false)}, ""), nil
}

func (e *Emitter) bitCountIntrinsic(op string, llt llvm.Type) (llvm.Value, llvm.Type) {
	name := fmt.Sprintf("llvm.%s.i%d", op, llt.IntTypeWidth())
	ftyp := llvm.FunctionType(llt, []llvm.Type{llt, e.ctx.Int1Type()}, false)
	if fn := e.mod.NamedFunction(name); !fn.IsNil() {
		return fn, ftyp
	}
	return llvm.AddFunction(e.mod, name, ftyp), ftyp
}

// genWithOverflow lowers {add,sub,mul}_with_overflow(T,a,b,out)
// (SPEC_FULL.md §4.4/§8 scenario 8) to the IR library's
// llvm.{s,u}{add,sub,mul}.with.overflow.iN intrinsic, storing the wrapped
// result through out and returning the overflow flag.
func (e *Emitter) genWithOverflow(fnx *fnCtx, sc *scope.Scope, name string, args []*ast.Node) (llvm.Value, error) {
	t := args[0].Expr.ConstVal.Payload.Type
	llt, err := e.lowerType(t)
	if err != nil {
		return llvm.Value{}, err
	}
	a, err := e.genExpr(fnx, args[1], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	b, err := e.genExpr(fnx, args[2], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	outAddr, err := e.genExpr(fnx, args[3], sc)
	if err != nil {
		return llvm.Value{}, err
	}
	sign := "u"
	if t.CanonicalType().Signed {
		sign = "s"
	}
	op := strings.TrimSuffix(name, "_with_overflow")
	fn, ftyp := e.overflowIntrinsic(sign, op, llt)
	res := e.builder.CreateCall(ftyp, fn, []llvm.Value{a, b}, "")
	wrapped := e.builder.CreateExtractValue(res, 0, "")
	overflow := e.builder.CreateExtractValue(res, 1, "")
	e.builder.CreateStore(wrapped, outAddr)
	return overflow, nil
}

func (e *Emitter) overflowIntrinsic(sign, op string, llt llvm.Type) (llvm.Value, llvm.Type) {
	name := fmt.Sprintf("llvm.%s%s.with.overflow.i%d", sign, op, llt.IntTypeWidth())
	retT := e.ctx.StructType([]llvm.Type{llt, e.ctx.Int1Type()}, false)
	ftyp := llvm.FunctionType(retT, []llvm.Type{llt, llt}, false)
	if fn := e.mod.NamedFunction(name); !fn.IsNil() {
		return fn, ftyp
	}
	return llvm.AddFunction(e.mod, name, ftyp), ftyp
}

// genCallExpr lowers a call, marshaling handle-typed arguments by address
// and, for a handle-typed return, allocating a caller-side sret temporary
// (SPEC_FULL.md §4.7's sret ABI).
func (e *Emitter) genCallExpr(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	calleeNode := node.Children[0]
	argNodes := node.Children[1:]

	if calleeNode.Kind == ast.Identifier {
		if name := identName(calleeNode); sema.IsIntrinsicName(name) {
			return e.genIntrinsicCall(fnx, node, sc, name, argNodes)
		}
	}

	fn, err := e.resolveCallee(calleeNode, sc)
	if err != nil {
		return llvm.Value{}, err
	}
	fnType := calleeNode.Expr.Type.CanonicalType()

	var args []llvm.Value
	var retSlot llvm.Value
	retIsHandle := fnType.Return.IsHandleType()
	if retIsHandle {
		llt, err := e.lowerType(fnType.Return)
		if err != nil {
			return llvm.Value{}, err
		}
		retSlot = e.builder.CreateAlloca(llt, "call.ret")
		args = append(args, retSlot)
	}
	for i, argNode := range argNodes {
		var pt *types.Type
		if i < len(fnType.Params) {
			pt = fnType.Params[i].Type
		} else {
			pt = argNode.Expr.Type // vararg tail.
		}
		if pt != nil && pt.IsHandleType() {
			addr, err := e.genLValue(fnx, argNode, sc)
			if err != nil {
				return llvm.Value{}, err
			}
			args = append(args, addr)
		} else {
			v, err := e.genExpr(fnx, argNode, sc)
			if err != nil {
				return llvm.Value{}, err
			}
			args = append(args, v)
		}
	}

	retName := ""
	if fnType.Return.CanonicalType().Kind != types.Void && !retIsHandle {
		retName = "call"
	}
	fnLLT, err := e.lowerType(calleeNode.Expr.Type)
	if err != nil {
		return llvm.Value{}, err
	}
	call := e.builder.CreateCall(fnLLT, fn, args, retName)
	if retIsHandle {
		return retSlot, nil
	}
	return call, nil
}

func (e *Emitter) resolveCallee(node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	if node.Kind == ast.Identifier {
		name := identName(node)
		e.globalsMu.Lock()
		fn, ok := e.globals[name]
		e.globalsMu.Unlock()
		if ok {
			return fn, nil
		}
	}
	return e.genExpr(nil, node, sc)
}

// genFieldAddr computes the address of a struct field access, traversing a
// leading pointer dereference first if the base expression's type is itself
// a pointer to struct (SPEC_FULL.md §4.7 "field access on a pointer operand
// loads the pointer first, then GEPs"). The field name lives on the
// FieldAccessExpr node itself (node.Data), not as a child (sema/analyzer.go's
// analyzeFieldAccess: "fieldName, _ := node.Data.(string)").
func (e *Emitter) genFieldAddr(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	base := node.Children[0]
	fieldName := identName(node)

	baseT := base.Expr.Type.CanonicalType()
	var structAddr llvm.Value
	if baseT.Kind == types.Pointer {
		v, err := e.genExpr(fnx, base, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		structAddr = v
	} else {
		addr, err := e.genLValue(fnx, base, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		structAddr = addr
	}
	// Mirror sema/analyzer.go's analyzeFieldAccess: "for st.Kind ==
	// types.Pointer { st = st.Child.CanonicalType() }" — a chain of pointer
	// types collapses to the pointee struct. The first level is already
	// resolved by the genExpr/genLValue call above (base's own value or
	// address); every further level requires an explicit load to walk
	// through the intermediate pointer value stored in memory.
	for baseT.Kind == types.Pointer {
		child := baseT.Child.CanonicalType()
		if child.Kind == types.Pointer {
			childLLT, err := e.lowerType(child)
			if err != nil {
				return llvm.Value{}, err
			}
			structAddr = e.builder.CreateLoad(childLLT, structAddr, "")
		}
		baseT = child
	}
	structT := baseT

	idx := -1
	for _, f := range structT.Fields {
		if f.Name == fieldName {
			idx = f.GenIdx
			break
		}
	}
	if idx < 0 {
		return llvm.Value{}, fmt.Errorf("genFieldAddr: field %q has no runtime storage (zero-bit) at %v", fieldName, node.Span)
	}
	structLLT, err := e.lowerType(structT)
	if err != nil {
		return llvm.Value{}, err
	}
	return e.builder.CreateStructGEP(structLLT, structAddr, idx, ""), nil
}

// genArrayElemAddr computes the address of arr[idx] for array and slice
// scrutinees.
func (e *Emitter) genArrayElemAddr(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	base, idxNode := node.Children[0], node.Children[1]
	baseT := base.Expr.Type.CanonicalType()
	idx, err := e.genExpr(fnx, idxNode, sc)
	if err != nil {
		return llvm.Value{}, err
	}

	if baseT.Kind == types.Slice {
		sliceLLT, err := e.lowerType(base.Expr.Type)
		if err != nil {
			return llvm.Value{}, err
		}
		sliceAddr, err := e.genLValue(fnx, base, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		elemLLT, err := e.lowerType(baseT.Child)
		if err != nil {
			return llvm.Value{}, err
		}
		ptr := e.builder.CreateLoad(llvm.PointerType(elemLLT, 0), e.builder.CreateStructGEP(sliceLLT, sliceAddr, 0, ""), "")
		return e.builder.CreateGEP(elemLLT, ptr, []llvm.Value{idx}, ""), nil
	}

	if baseT.Kind == types.Pointer {
		// Indexing through a bare pointer (sema/analyzer.go's
		// analyzeArrayAccess: "case types.Array, types.Slice, types.Pointer")
		// has no {ptr,len} header and no leading zero index — base's value
		// *is* the data pointer, indexed directly.
		ptr, err := e.genExpr(fnx, base, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		elemLLT, err := e.lowerType(baseT.Child)
		if err != nil {
			return llvm.Value{}, err
		}
		return e.builder.CreateGEP(elemLLT, ptr, []llvm.Value{idx}, ""), nil
	}

	arrAddr, err := e.genLValue(fnx, base, sc)
	if err != nil {
		return llvm.Value{}, err
	}
	elemLLT, err := e.lowerType(baseT.Child)
	if err != nil {
		return llvm.Value{}, err
	}
	zero := llvm.ConstInt(e.ctx.Int64Type(), 0, false)
	return e.builder.CreateGEP(elemLLT, arrAddr, []llvm.Value{zero, idx}, ""), nil
}

// genContainerInit lowers a struct literal into a freshly allocated stack
// temporary whose fields are stored in turn (SPEC_FULL.md §4.7: "value-
// expression temporaries get a stack slot from the enclosing function's
// temporary-alloca list").
func (e *Emitter) genContainerInit(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	t := node.Expr.Type.CanonicalType()
	llt, err := e.lowerType(node.Expr.Type)
	if err != nil {
		return llvm.Value{}, err
	}
	tmp := e.builder.CreateAlloca(llt, "struct.tmp")
	e.poisonStack(tmp, llt)
	// Each child is a FieldInit node: .Data holds the field name,
	// .Children[0] the value expression (sema/analyzer.go's
	// analyzeContainerInit: "fieldName, _ := fieldInit.Data.(string); valNode
	// := fieldInit.Children[0]") — not a flat alternating name/value list.
	for _, fieldInit := range node.Children {
		fieldName := identName(fieldInit)
		valNode := fieldInit.Children[0]
		idx := -1
		var fieldType *types.Type
		for _, f := range t.Fields {
			if f.Name == fieldName {
				idx, fieldType = f.GenIdx, f.Type
				break
			}
		}
		if idx < 0 {
			continue // Zero-bit field: nothing to store.
		}
		fieldAddr := e.builder.CreateStructGEP(llt, tmp, idx, "")
		if fieldType.IsHandleType() {
			src, err := e.genLValue(fnx, valNode, sc)
			if err != nil {
				return llvm.Value{}, err
			}
			fieldLLT, err := e.lowerType(fieldType)
			if err != nil {
				return llvm.Value{}, err
			}
			e.emitAggregateCopy(fieldAddr, src, fieldLLT)
		} else {
			v, err := e.genExpr(fnx, valNode, sc)
			if err != nil {
				return llvm.Value{}, err
			}
			e.builder.CreateStore(v, fieldAddr)
		}
	}
	return tmp, nil
}

// genArrayInit lowers an array literal the same way: a stack temporary with
// each element stored by index.
func (e *Emitter) genArrayInit(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	t := node.Expr.Type.CanonicalType()
	llt, err := e.lowerType(node.Expr.Type)
	if err != nil {
		return llvm.Value{}, err
	}
	tmp := e.builder.CreateAlloca(llt, "array.tmp")
	e.poisonStack(tmp, llt)
	zero := llvm.ConstInt(e.ctx.Int64Type(), 0, false)
	for i, elNode := range node.Children {
		idx := llvm.ConstInt(e.ctx.Int64Type(), uint64(i), false)
		elemLLT, err := e.lowerType(t.Child)
		if err != nil {
			return llvm.Value{}, err
		}
		elemAddr := e.builder.CreateGEP(elemLLT, tmp, []llvm.Value{zero, idx}, "")
		if t.Child.IsHandleType() {
			src, err := e.genLValue(fnx, elNode, sc)
			if err != nil {
				return llvm.Value{}, err
			}
			e.emitAggregateCopy(elemAddr, src, elemLLT)
		} else {
			v, err := e.genExpr(fnx, elNode, sc)
			if err != nil {
				return llvm.Value{}, err
			}
			e.builder.CreateStore(v, elemAddr)
		}
	}
	return tmp, nil
}

// genUnwrap lowers a force-unwrap (the single-operand `x.?` construct) of a
// Maybe or ErrorUnion operand: sema/analyzer.go's analyzeUnwrap types it as
// a one-child node with no else-body and no named binding, so on failure
// there is nothing to branch to — the failure path traps (the same
// debugtrap+unreachable safety-check pattern used elsewhere in this
// package) and control never rejoins the success path.
func (e *Emitter) genUnwrap(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	operand := node.Children[0]
	opT := operand.Expr.Type.CanonicalType()
	switch opT.Kind {
	case types.Maybe:
		return e.genUnwrapMaybe(fnx, operand, opT, sc)
	case types.ErrorUnion:
		return e.genUnwrapErrorUnion(fnx, operand, opT, sc)
	default:
		return llvm.Value{}, fmt.Errorf("genUnwrap: operand is neither Maybe nor ErrorUnion (%s)", opT)
	}
}

// trapUnless emits `cond ? continue-here : trap-and-unreachable`, returning
// with the builder positioned at the start of the continuation block.
func (e *Emitter) trapUnless(fnx *fnCtx, cond llvm.Value, label string) {
	okBB := e.ctx.AddBasicBlock(fnx.fnVal, label+".ok")
	failBB := e.ctx.AddBasicBlock(fnx.fnVal, label+".fail")
	e.builder.CreateCondBr(cond, okBB, failBB)

	e.builder.SetInsertPointAtEnd(failBB)
	e.emitTrap(fnx)
	e.builder.CreateUnreachable()

	e.builder.SetInsertPointAtEnd(okBB)
}

func (e *Emitter) genUnwrapMaybe(fnx *fnCtx, operand *ast.Node, opT *types.Type, sc *scope.Scope) (llvm.Value, error) {
	child := opT.Child
	switch {
	case types.CollapsesToNullablePointer(child):
		v, err := e.genExpr(fnx, operand, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		cond := e.builder.CreateICmp(llvm.IntNE, v, llvm.ConstNull(v.Type()), "")
		e.trapUnless(fnx, cond, "unwrap.maybe")
		return v, nil
	case child.ZeroBits():
		v, err := e.genExpr(fnx, operand, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		cond := e.builder.CreateICmp(llvm.IntEQ, v, llvm.ConstInt(v.Type(), 1, false), "")
		e.trapUnless(fnx, cond, "unwrap.maybe")
		return llvm.Value{}, nil
	default:
		addr, err := e.genLValue(fnx, operand, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		llt, err := e.lowerType(opT)
		if err != nil {
			return llvm.Value{}, err
		}
		present := e.builder.CreateLoad(e.ctx.Int1Type(), e.builder.CreateStructGEP(llt, addr, 0, ""), "")
		cond := e.builder.CreateICmp(llvm.IntEQ, present, llvm.ConstInt(e.ctx.Int1Type(), 1, false), "")
		e.trapUnless(fnx, cond, "unwrap.maybe")
		payloadAddr := e.builder.CreateStructGEP(llt, addr, 1, "")
		if child.IsHandleType() {
			return payloadAddr, nil
		}
		payloadLLT, err := e.lowerType(child)
		if err != nil {
			return llvm.Value{}, err
		}
		return e.builder.CreateLoad(payloadLLT, payloadAddr, ""), nil
	}
}

// genErrorUnwrap lowers `a %% b` (SPEC_FULL.md §4.4/§4.7, spec.md Testable
// Scenario 3): load the operand's tag, branch ok/err, on the err path
// optionally bind the named error-tag variable before lowering the
// fallback, and join the two paths with a phi — unless the fallback
// diverges unconditionally (a bare return/break/continue, or a block that
// always does), in which case the join is just the ok value.
func (e *Emitter) genErrorUnwrap(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	operand, fallback := node.Children[0], node.Children[1]
	bindName, _ := node.Data.(string)
	opT := operand.Expr.Type.CanonicalType()
	child := opT.Child
	resultType := node.Expr.Type
	hasValue := resultType != nil && resultType.Kind != types.Void
	tagType := e.ctx.IntType(e.errTagBits())

	var tag, payloadAddr llvm.Value
	if child.ZeroBits() {
		v, err := e.genExpr(fnx, operand, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		tag = v
	} else {
		addr, err := e.genLValue(fnx, operand, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		llt, err := e.lowerType(opT)
		if err != nil {
			return llvm.Value{}, err
		}
		tag = e.builder.CreateLoad(tagType, e.builder.CreateStructGEP(llt, addr, 0, ""), "")
		payloadAddr = e.builder.CreateStructGEP(llt, addr, 1, "")
	}

	okBB := e.ctx.AddBasicBlock(fnx.fnVal, "unwrap.ok")
	errBB := e.ctx.AddBasicBlock(fnx.fnVal, "unwrap.err")
	joinBB := e.ctx.AddBasicBlock(fnx.fnVal, "unwrap.end")
	cond := e.builder.CreateICmp(llvm.IntEQ, tag, llvm.ConstInt(tagType, 0, false), "")
	e.builder.CreateCondBr(cond, okBB, errBB)

	e.builder.SetInsertPointAtEnd(okBB)
	var okVal llvm.Value
	if hasValue {
		switch {
		case child.ZeroBits():
			okVal = llvm.Value{}
		case child.IsHandleType():
			okVal = payloadAddr
		default:
			payloadLLT, err := e.lowerType(child)
			if err != nil {
				return llvm.Value{}, err
			}
			okVal = e.builder.CreateLoad(payloadLLT, payloadAddr, "")
		}
	}
	okEnd := e.builder.GetInsertBlock()
	e.terminateAt(okEnd, joinBB)

	errSc := scope.New(sc, node)
	e.builder.SetInsertPointAtEnd(errBB)
	if bindName != "" {
		slot := e.builder.CreateAlloca(tagType, "errtag")
		e.builder.CreateStore(tag, slot)
		errSc.DeclareVar(&scope.Variable{Name: bindName, Type: e.Reg.PureError(), ValueRef: slot, SrcArgIndex: -1, GenArgIndex: -1})
	}

	var errVal llvm.Value
	diverged := false
	if isDivergingFallback(fallback.Kind) {
		var err error
		diverged, err = e.genStmt(fnx, fallback, errSc)
		if err != nil {
			return llvm.Value{}, err
		}
	} else {
		var err error
		errVal, err = e.genJoinVal(fnx, fallback, errSc, resultType)
		if err != nil {
			return llvm.Value{}, err
		}
	}
	errEnd := e.builder.GetInsertBlock()
	if !diverged {
		e.terminateAt(errEnd, joinBB)
	}

	e.builder.SetInsertPointAtEnd(joinBB)
	if !hasValue {
		return llvm.Value{}, nil
	}
	if diverged {
		return okVal, nil
	}
	llt, err := e.joinLLVMType(resultType)
	if err != nil {
		return llvm.Value{}, err
	}
	phi := e.builder.CreatePHI(llt, "")
	phi.AddIncoming([]llvm.Value{okVal, errVal}, []llvm.BasicBlock{okEnd, errEnd})
	return phi, nil
}

func (e *Emitter) genUnwrapErrorUnion(fnx *fnCtx, operand *ast.Node, opT *types.Type, sc *scope.Scope) (llvm.Value, error) {
	child := opT.Child
	tagType := e.ctx.IntType(e.errTagBits())
	if child.ZeroBits() {
		v, err := e.genExpr(fnx, operand, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		cond := e.builder.CreateICmp(llvm.IntEQ, v, llvm.ConstInt(tagType, 0, false), "")
		e.trapUnless(fnx, cond, "unwrap.err")
		return llvm.Value{}, nil
	}
	addr, err := e.genLValue(fnx, operand, sc)
	if err != nil {
		return llvm.Value{}, err
	}
	llt, err := e.lowerType(opT)
	if err != nil {
		return llvm.Value{}, err
	}
	tag := e.builder.CreateLoad(tagType, e.builder.CreateStructGEP(llt, addr, 0, ""), "")
	cond := e.builder.CreateICmp(llvm.IntEQ, tag, llvm.ConstInt(tagType, 0, false), "")
	e.trapUnless(fnx, cond, "unwrap.err")
	payloadAddr := e.builder.CreateStructGEP(llt, addr, 1, "")
	if child.IsHandleType() {
		return payloadAddr, nil
	}
	payloadLLT, err := e.lowerType(child)
	if err != nil {
		return llvm.Value{}, err
	}
	return e.builder.CreateLoad(payloadLLT, payloadAddr, ""), nil
}

// constValToLLVM lowers a fully evaluated compile-time constant
// (SPEC_FULL.md §3 "Const value") into an llvm.Value, used both for
// constant-folded expressions and for module-level global initializers.
func (e *Emitter) constValToLLVM(t *types.Type, cv ast.ConstVal) (llvm.Value, error) {
	if !cv.OK {
		return llvm.Value{}, fmt.Errorf("constValToLLVM: not a constant expression")
	}
	llt, err := e.lowerType(t)
	if err != nil {
		return llvm.Value{}, err
	}
	if cv.Undef {
		return llvm.GetUndef(llt), nil
	}
	c := t.CanonicalType()
	switch cv.Payload.Kind {
	case ast.PayloadBigNum:
		return e.constNumToLLVM(c, llt, cv.Payload.Num)
	case ast.PayloadBool:
		v := uint64(0)
		if cv.Payload.Bool {
			v = 1
		}
		return llvm.ConstInt(llt, v, false), nil
	case ast.PayloadEnum:
		return e.constEnumToLLVM(c, llt, cv.Payload.Enum)
	case ast.PayloadErr:
		return e.constErrToLLVM(c, llt, cv.Payload.Err)
	case ast.PayloadMaybe:
		return e.constMaybeToLLVM(c, llt, cv.Payload.Maybe)
	case ast.PayloadStruct:
		return e.constStructToLLVM(c, llt, cv.Payload.Struct)
	case ast.PayloadArray:
		return e.constArrayToLLVM(c, llt, cv.Payload.Array)
	case ast.PayloadPtr:
		return e.constSliceToLLVM(c, cv.Payload.Ptr)
	default:
		return llvm.ConstNull(llt), nil
	}
}

func (e *Emitter) constNumToLLVM(c *types.Type, llt llvm.Type, n ast.BigNum) (llvm.Value, error) {
	if n.Kind == ast.BigFloat || c.Kind == types.Float || c.Kind == types.NumLitFloat {
		f := n.FloatVal
		if n.Kind == ast.BigInt {
			f = float64(n.UintVal)
			if n.IsNegative {
				f = -f
			}
		}
		return llvm.ConstFloat(llt, f), nil
	}
	v := n.UintVal
	if n.IsNegative {
		bi := new(big.Int).SetUint64(v)
		bi.Neg(bi)
		return llvm.ConstIntFromString(llt, bi.String(), 10), nil
	}
	return llvm.ConstInt(llt, v, false), nil
}

func (e *Emitter) constEnumToLLVM(c *types.Type, llt llvm.Type, ep ast.EnumPayload) (llvm.Value, error) {
	tagLLT, err := e.lowerType(c.TagType)
	if err != nil {
		return llvm.Value{}, err
	}
	tag := llvm.ConstInt(tagLLT, ep.Tag, false)
	if c.UnionType == nil {
		return tag, nil
	}
	var payload llvm.Value
	payloadT := c.UnionType.Fields[0].Type
	if ep.Payload != nil {
		payload, err = e.constValToLLVM(payloadT, *ep.Payload)
	} else {
		plt, lerr := e.lowerType(payloadT)
		if lerr != nil {
			return llvm.Value{}, lerr
		}
		payload, err = llvm.ConstNull(plt), nil
	}
	if err != nil {
		return llvm.Value{}, err
	}
	return llvm.ConstNamedStruct(llt, []llvm.Value{tag, payload}), nil
}

func (e *Emitter) constErrToLLVM(c *types.Type, llt llvm.Type, ep ast.ErrPayload) (llvm.Value, error) {
	tag := llvm.ConstInt(e.ctx.IntType(e.errTagBits()), ep.Err, false)
	if c.Child.ZeroBits() {
		return tag, nil
	}
	var payload llvm.Value
	var err error
	if ep.Payload != nil {
		payload, err = e.constValToLLVM(c.Child, *ep.Payload)
	} else {
		plt, lerr := e.lowerType(c.Child)
		if lerr != nil {
			return llvm.Value{}, lerr
		}
		payload, err = llvm.ConstNull(plt), nil
	}
	if err != nil {
		return llvm.Value{}, err
	}
	return llvm.ConstNamedStruct(llt, []llvm.Value{tag, payload}), nil
}

func (e *Emitter) constMaybeToLLVM(c *types.Type, llt llvm.Type, inner *ast.ConstVal) (llvm.Value, error) {
	if types.CollapsesToNullablePointer(c.Child) {
		if inner == nil {
			return llvm.ConstNull(llt), nil
		}
		return e.constValToLLVM(c.Child, *inner)
	}
	if c.Child.ZeroBits() {
		v := uint64(0)
		if inner != nil {
			v = 1
		}
		return llvm.ConstInt(llt, v, false), nil
	}
	present := uint64(0)
	var payload llvm.Value
	if inner != nil {
		present = 1
		var err error
		payload, err = e.constValToLLVM(c.Child, *inner)
		if err != nil {
			return llvm.Value{}, err
		}
	} else {
		plt, err := e.lowerType(c.Child)
		if err != nil {
			return llvm.Value{}, err
		}
		payload = llvm.ConstNull(plt)
	}
	return llvm.ConstNamedStruct(llt, []llvm.Value{llvm.ConstInt(e.ctx.Int1Type(), present, false), payload}), nil
}

func (e *Emitter) constStructToLLVM(c *types.Type, llt llvm.Type, fields map[string]*ast.ConstVal) (llvm.Value, error) {
	vals := make([]llvm.Value, 0, len(c.Fields))
	for _, f := range c.Fields {
		if f.GenIdx < 0 {
			continue
		}
		cv, ok := fields[f.Name]
		var v llvm.Value
		var err error
		if ok && cv != nil {
			v, err = e.constValToLLVM(f.Type, *cv)
		} else {
			var flt llvm.Type
			flt, err = e.lowerType(f.Type)
			if err == nil {
				v = llvm.ConstNull(flt)
			}
		}
		if err != nil {
			return llvm.Value{}, err
		}
		vals = append(vals, v)
	}
	return llvm.ConstNamedStruct(llt, vals), nil
}

func (e *Emitter) constArrayToLLVM(c *types.Type, llt llvm.Type, elems []*ast.ConstVal) (llvm.Value, error) {
	elemLLT, err := e.lowerType(c.Child)
	if err != nil {
		return llvm.Value{}, err
	}
	vals := make([]llvm.Value, len(elems))
	for i, cv := range elems {
		if cv == nil {
			vals[i] = llvm.ConstNull(elemLLT)
			continue
		}
		v, err := e.constValToLLVM(c.Child, *cv)
		if err != nil {
			return llvm.Value{}, err
		}
		vals[i] = v
	}
	return llvm.ConstArray(elemLLT, vals), nil
}

// constSliceToLLVM materializes a constant array/slice value's backing
// storage as a private unnamed global (SPEC_FULL.md §4.7 "Constants":
// "emitted once as a module-level private unnamed constant global when its
// type is a handle type"), returning a {ptr,len} slice value pointing at it.
func (e *Emitter) constSliceToLLVM(c *types.Type, pp ast.PtrPayload) (llvm.Value, error) {
	elemLLT, err := e.lowerType(c.Child)
	if err != nil {
		return llvm.Value{}, err
	}
	vals := make([]llvm.Value, len(pp.Elems))
	for i, cv := range pp.Elems {
		if cv == nil {
			vals[i] = llvm.ConstNull(elemLLT)
			continue
		}
		v, err := e.constValToLLVM(c.Child, *cv)
		if err != nil {
			return llvm.Value{}, err
		}
		vals[i] = v
	}
	arr := llvm.ConstArray(elemLLT, vals)
	gv := llvm.AddGlobal(e.mod, arr.Type(), ".const.slice")
	gv.SetInitializer(arr)
	gv.SetGlobalConstant(true)
	gv.SetLinkage(llvm.PrivateLinkage)
	zero := llvm.ConstInt(e.ctx.Int32Type(), 0, false)
	ptr := llvm.ConstInBoundsGEP(arr.Type(), gv, []llvm.Value{zero, zero})
	sliceT := e.ctx.StructType([]llvm.Type{llvm.PointerType(elemLLT, 0), e.ctx.Int64Type()}, false)
	return llvm.ConstNamedStruct(sliceT, []llvm.Value{ptr, llvm.ConstInt(e.ctx.Int64Type(), pp.Len, false)}), nil
}
