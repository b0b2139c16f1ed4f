package llvm

import (
	"fmt"

	"tinygo.org/x/go-llvm"

	"novac/src/ast"
	"novac/src/scope"
	"novac/src/sema"
	"novac/src/types"
)

// genBlockScoped opens a fresh lexical scope for node (mirroring
// sema/control.go's analyzeBlock) and lowers its statements in order,
// stopping early once a statement provably diverges (SPEC_FULL.md §4.7's
// control-flow lowering never emits dead code past a terminator).
func (e *Emitter) genBlockScoped(fnx *fnCtx, node *ast.Node, parent *scope.Scope) (bool, error) {
	sc := scope.New(parent, node)
	if e.di != nil {
		e.di.pushLexicalBlock(node.Span)
		defer e.di.popLexicalBlock()
	}
	return e.genStmtList(fnx, node.Children, sc)
}

func (e *Emitter) genStmtList(fnx *fnCtx, stmts []*ast.Node, sc *scope.Scope) (bool, error) {
	for _, stmt := range stmts {
		diverged, err := e.genStmt(fnx, stmt, sc)
		if err != nil {
			return false, err
		}
		if diverged {
			return true, nil
		}
	}
	return false, nil
}

// genStmt lowers one statement node, dispatching over the same ast.Kind set
// sema/control.go's AnalyzeStmt handles (SPEC_FULL.md §4.7). It returns
// whether the statement unconditionally transferred control out of the
// current block (a return, or a break/continue), so callers can stop
// emitting dead instructions into a block already terminated.
func (e *Emitter) genStmt(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (bool, error) {
	if node == nil {
		return false, nil
	}
	if e.di != nil {
		e.di.setLocation(node.Span.Line, node.Span.Col)
	}
	switch node.Kind {
	case ast.Block:
		return e.genBlockScoped(fnx, node, sc)
	case ast.LabeledBlock:
		_, diverged, err := e.genLabeledBlockCore(fnx, node, sc)
		return diverged, err
	case ast.IfStmt:
		return e.genIf(fnx, node, sc)
	case ast.WhileStmt:
		return e.genWhile(fnx, node, sc)
	case ast.ForStmt:
		return e.genFor(fnx, node, sc)
	case ast.SwitchStmt:
		return e.genSwitch(fnx, node, sc)
	case ast.ReturnStmt:
		return e.genReturn(fnx, node, sc)
	case ast.BreakStmt:
		return e.genBreak(fnx, node)
	case ast.ContinueStmt:
		return e.genContinue(fnx, node)
	case ast.BreakValueStmt:
		return e.genBreakValue(fnx, node, sc)
	case ast.DeferStmt:
		e.genDeferStmt(node, sc)
		return false, nil
	case ast.VarDecl:
		return false, e.genLocalVarDecl(fnx, node, sc)
	case ast.ExprStmt:
		_, err := e.genExpr(fnx, node.Children[0], sc)
		return false, err
	case ast.AssignStmt:
		return false, e.genAssignStmt(fnx, node, sc)
	case ast.CompoundAssignStmt:
		return false, e.genCompoundAssignStmt(fnx, node, sc)
	case ast.LabelStmt, ast.GotoStmt:
		return false, fmt.Errorf("label/goto lowering not yet implemented at %v", node.Span)
	default:
		return false, fmt.Errorf("internal: codegen cannot lower statement kind %s", node.Kind)
	}
}

// genLabeledBlockCore lowers `label: { ... }` (SPEC_FULL.md §5 item 5): the
// block's join block is always created up front, mirroring genWhile's
// unconditional "end" block, since break-value sites deep in the body need
// somewhere to branch to before this function can know whether any of them
// actually fired. The result, when the block's type is non-void, is read
// back from a slot rather than a phi, since break-value sites can be spread
// across arbitrarily many nested blocks the join block has no direct
// predecessor edge from.
func (e *Emitter) genLabeledBlockCore(fnx *fnCtx, node *ast.Node, parent *scope.Scope) (llvm.Value, bool, error) {
	name, _ := node.Data.(string)
	sc := scope.New(parent, node)
	if sc.FnEntry != nil {
		if sc.FnEntry.Labels == nil {
			sc.FnEntry.Labels = make(map[string]*scope.Scope)
		}
		sc.FnEntry.Labels[name] = sc
	}

	resultType := node.Expr.Type
	hasValue := resultType != nil && resultType.Kind != types.Void
	joinBB := e.ctx.AddBasicBlock(fnx.fnVal, "label."+name+".end")
	sc.LabelJoinBlock = joinBB

	var slotLLT llvm.Type
	if hasValue {
		var err error
		slotLLT, err = e.joinLLVMType(resultType)
		if err != nil {
			return llvm.Value{}, false, err
		}
		slot := e.builder.CreateAlloca(slotLLT, "label."+name+".slot")
		sc.LabelResultSlot = slot
	}

	diverged, err := e.genStmtList(fnx, node.Children, sc)
	if err != nil {
		return llvm.Value{}, false, err
	}
	if !diverged {
		e.builder.CreateBr(joinBB)
	}

	e.builder.SetInsertPointAtEnd(joinBB)
	if !hasValue {
		if diverged {
			e.builder.CreateUnreachable()
			return llvm.Value{}, true, nil
		}
		return llvm.Value{}, false, nil
	}
	slot, _ := sc.LabelResultSlot.(llvm.Value)
	return e.builder.CreateLoad(slotLLT, slot, ""), false, nil
}

// joinLLVMType is the LLVM type a value-producing join point (if-expression,
// error-unwrap, labeled block) stores/merges: the lowered type directly for
// ordinary values, or a pointer to it for handle types, since a handle
// value's address is its value representation everywhere else in this
// engine (genLValue's doc comment).
func (e *Emitter) joinLLVMType(t *types.Type) (llvm.Type, error) {
	llt, err := e.lowerType(t)
	if err != nil {
		return llvm.Type{}, err
	}
	if t.IsHandleType() {
		return llvm.PointerType(llt, 0), nil
	}
	return llt, nil
}

// genJoinVal lowers node to the representation joinLLVMType describes:
// genLValue's address for handle types, genExpr's rvalue otherwise.
func (e *Emitter) genJoinVal(fnx *fnCtx, node *ast.Node, sc *scope.Scope, t *types.Type) (llvm.Value, error) {
	if t.IsHandleType() {
		return e.genLValue(fnx, node, sc)
	}
	return e.genExpr(fnx, node, sc)
}

// isDivergingFallback mirrors sema/analyzer.go's helper of the same name: a
// %% fallback of one of these kinds never reaches the join block on its own.
func isDivergingFallback(k ast.Kind) bool {
	switch k {
	case ast.ReturnStmt, ast.BreakStmt, ast.ContinueStmt, ast.BreakValueStmt, ast.Block:
		return true
	default:
		return false
	}
}

// genLocalVarDecl allocates a stack slot for a block-local `var`/`const`
// (SPEC_FULL.md §4.7: "allocate stack slots for every local variable"),
// poisoning it with 0xAA before the initializer runs in non-release builds,
// then stores (scalar) or value-initializes (handle type) from the already
// type-checked initializer expression.
func (e *Emitter) genLocalVarDecl(fnx *fnCtx, node *ast.Node, sc *scope.Scope) error {
	name, _ := node.Data.(string)
	var initNode *ast.Node
	if len(node.Children) == 2 {
		initNode = node.Children[1]
	} else {
		initNode = node.Children[0]
	}
	if initNode.Expr == nil {
		return fmt.Errorf("genLocalVarDecl(%q): initializer missing analyzer decoration", name)
	}
	t := initNode.Expr.Type
	llt, err := e.lowerType(t)
	if err != nil {
		return fmt.Errorf("genLocalVarDecl(%q): %w", name, err)
	}
	alloca := e.builder.CreateAlloca(llt, name)
	e.poisonStack(alloca, llt)

	if t.IsHandleType() {
		src, err := e.genLValue(fnx, initNode, sc)
		if err != nil {
			return err
		}
		e.emitAggregateCopy(alloca, src, llt)
	} else {
		val, err := e.genExpr(fnx, initNode, sc)
		if err != nil {
			return err
		}
		e.builder.CreateStore(val, alloca)
	}
	v := &scope.Variable{Name: name, Type: t, ValueRef: alloca, SrcArgIndex: -1, GenArgIndex: -1}
	sc.DeclareVar(v)
	if e.di != nil {
		e.di.declareLocal(v, node.Span.Line, fnx)
	}
	return nil
}

// genAssignStmt lowers `lhs = rhs` (SPEC_FULL.md §4.7 "Assignment"): a
// memcpy for handle-typed targets, a plain store otherwise.
func (e *Emitter) genAssignStmt(fnx *fnCtx, node *ast.Node, sc *scope.Scope) error {
	target, val := node.Children[0], node.Children[1]
	addr, err := e.genLValue(fnx, target, sc)
	if err != nil {
		return err
	}
	t := target.Expr.Type
	if t.IsHandleType() {
		src, err := e.genLValue(fnx, val, sc)
		if err != nil {
			return err
		}
		llt, err := e.lowerType(t)
		if err != nil {
			return err
		}
		e.emitAggregateCopy(addr, src, llt)
		return nil
	}
	rhs, err := e.genExpr(fnx, val, sc)
	if err != nil {
		return err
	}
	e.builder.CreateStore(rhs, addr)
	return nil
}

// genCompoundAssignStmt lowers `lhs op= rhs`: load, apply the operator,
// store (SPEC_FULL.md §4.7 "Compound-assignment loads, applies the
// arithmetic operator, stores").
func (e *Emitter) genCompoundAssignStmt(fnx *fnCtx, node *ast.Node, sc *scope.Scope) error {
	target, val := node.Children[0], node.Children[1]
	op, _ := node.Data.(string)
	addr, err := e.genLValue(fnx, target, sc)
	if err != nil {
		return err
	}
	llt, err := e.lowerType(target.Expr.Type)
	if err != nil {
		return err
	}
	cur := e.builder.CreateLoad(llt, addr, "")
	rhs, err := e.genExpr(fnx, val, sc)
	if err != nil {
		return err
	}
	res, err := e.applyBinaryOp(op, target.Expr.Type, cur, rhs)
	if err != nil {
		return err
	}
	e.builder.CreateStore(res, addr)
	return nil
}

// genIf lowers if/else to a cond-br plus two blocks and an optional join
// block (SPEC_FULL.md §4.7 "Control": "if/else compiles to a cond-br + two
// blocks + optional join"). When the condition is a compile-time constant
// (SPEC_FULL.md §4.4's peer-typing/const-folding already recorded it on the
// condition node), only the taken branch is emitted — including a
// compile_var(...) condition, per SPEC_FULL.md §4.4 scenario 7: "depends on
// compile var" only marks the *result* sticky for further propagation, it
// does not make the condition itself unknown at this compilation.
func (e *Emitter) genIf(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (bool, error) {
	cond := node.Children[0]
	if cond.Expr != nil && cond.Expr.ConstVal.OK {
		if cond.Expr.ConstVal.Payload.Bool {
			return e.genStmt(fnx, node.Children[1], sc)
		}
		if len(node.Children) > 2 {
			return e.genStmt(fnx, node.Children[2], sc)
		}
		return false, nil
	}

	val, err := e.genExpr(fnx, cond, sc)
	if err != nil {
		return false, err
	}
	thenBB := e.ctx.AddBasicBlock(fnx.fnVal, "if.then")
	if len(node.Children) < 3 {
		joinBB := e.ctx.AddBasicBlock(fnx.fnVal, "if.end")
		e.builder.CreateCondBr(val, thenBB, joinBB)
		e.builder.SetInsertPointAtEnd(thenBB)
		diverged, err := e.genStmt(fnx, node.Children[1], sc)
		if err != nil {
			return false, err
		}
		if !diverged {
			e.builder.CreateBr(joinBB)
		}
		e.builder.SetInsertPointAtEnd(joinBB)
		return false, nil
	}

	elseBB := e.ctx.AddBasicBlock(fnx.fnVal, "if.else")
	e.builder.CreateCondBr(val, thenBB, elseBB)

	e.builder.SetInsertPointAtEnd(thenBB)
	thenDiv, err := e.genStmt(fnx, node.Children[1], sc)
	if err != nil {
		return false, err
	}
	e.builder.SetInsertPointAtEnd(elseBB)
	elseDiv, err := e.genStmt(fnx, node.Children[2], sc)
	if err != nil {
		return false, err
	}

	if thenDiv && elseDiv {
		return true, nil
	}
	joinBB := e.ctx.AddBasicBlock(fnx.fnVal, "if.end")
	// Re-terminate whichever arm(s) fell through into the join block. Blocks
	// are revisited by address, not by re-walking the tree, so this is safe
	// even though thenBB/elseBB's insertion point has since moved on.
	if !thenDiv {
		e.terminateAt(thenBB, joinBB)
	}
	if !elseDiv {
		e.terminateAt(elseBB, joinBB)
	}
	e.builder.SetInsertPointAtEnd(joinBB)
	return false, nil
}

// terminateAt appends an unconditional branch to dst at the end of bb,
// unless bb is already terminated.
func (e *Emitter) terminateAt(bb, dst llvm.BasicBlock) {
	if term := bb.LastInstruction(); !term.IsNil() && !term.IsATerminatorInst().IsNil() {
		return
	}
	saved := e.builder.GetInsertBlock()
	e.builder.SetInsertPointAtEnd(bb)
	e.builder.CreateBr(dst)
	if !saved.IsNil() {
		e.builder.SetInsertPointAtEnd(saved)
	}
}

// genIfExpr lowers `if` used as a value (SPEC_FULL.md §4.4 Scenario 1, §4.7
// "if/else compiles to a cond-br + two blocks + optional join with a phi"):
// unlike genIf, both arms are required (sema/control.go's analyzeIfExpr
// rejects an else-less value-producing if) and the join always exists, built
// as a real CreatePHI over each arm's lowered value rather than genIf's
// store-nothing join.
func (e *Emitter) genIfExpr(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (llvm.Value, error) {
	cond := node.Children[0]
	resultType := node.Expr.Type
	hasValue := resultType != nil && resultType.Kind != types.Void

	captureName, _ := node.Data.(string)
	thenSc := scope.New(sc, node)
	var condVal llvm.Value
	var err error
	if captureName != "" && cond.Expr.Type.CanonicalType().Kind == types.Maybe {
		condVal, err = e.genMaybeCaptureTest(fnx, cond, cond.Expr.Type.CanonicalType(), sc, thenSc, captureName)
	} else {
		condVal, err = e.genExpr(fnx, cond, sc)
	}
	if err != nil {
		return llvm.Value{}, err
	}

	thenBB := e.ctx.AddBasicBlock(fnx.fnVal, "ifexpr.then")
	elseBB := e.ctx.AddBasicBlock(fnx.fnVal, "ifexpr.else")
	joinBB := e.ctx.AddBasicBlock(fnx.fnVal, "ifexpr.end")
	e.builder.CreateCondBr(condVal, thenBB, elseBB)

	e.builder.SetInsertPointAtEnd(thenBB)
	thenVal, err := e.genJoinVal(fnx, node.Children[1], thenSc, resultType)
	if err != nil {
		return llvm.Value{}, err
	}
	thenEnd := e.builder.GetInsertBlock()
	e.terminateAt(thenEnd, joinBB)

	elseSc := scope.New(sc, node)
	e.builder.SetInsertPointAtEnd(elseBB)
	elseVal, err := e.genJoinVal(fnx, node.Children[2], elseSc, resultType)
	if err != nil {
		return llvm.Value{}, err
	}
	elseEnd := e.builder.GetInsertBlock()
	e.terminateAt(elseEnd, joinBB)

	e.builder.SetInsertPointAtEnd(joinBB)
	if !hasValue {
		return llvm.Value{}, nil
	}
	llt, err := e.joinLLVMType(resultType)
	if err != nil {
		return llvm.Value{}, err
	}
	phi := e.builder.CreatePHI(llt, "")
	phi.AddIncoming([]llvm.Value{thenVal, elseVal}, []llvm.BasicBlock{thenEnd, elseEnd})
	return phi, nil
}

// genMaybeCaptureTest lowers the condition of an `if` that captures a
// Maybe{X} condition's payload into a then-branch-scoped variable
// (SPEC_FULL.md §4.4: "if over a Maybe{X} binds a non-null value in the
// then-branch"), mirroring genUnwrapMaybe's three-way layout split but
// returning the presence test instead of trapping on its failure.
func (e *Emitter) genMaybeCaptureTest(fnx *fnCtx, cond *ast.Node, condT *types.Type, sc, thenSc *scope.Scope, captureName string) (llvm.Value, error) {
	child := condT.Child
	switch {
	case types.CollapsesToNullablePointer(child):
		v, err := e.genExpr(fnx, cond, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		slot := e.builder.CreateAlloca(v.Type(), "maybe.cap")
		e.builder.CreateStore(v, slot)
		thenSc.DeclareVar(&scope.Variable{Name: captureName, Type: child, ValueRef: slot, SrcArgIndex: -1, GenArgIndex: -1})
		return e.builder.CreateICmp(llvm.IntNE, v, llvm.ConstNull(v.Type()), ""), nil
	case child.ZeroBits():
		v, err := e.genExpr(fnx, cond, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		return e.builder.CreateICmp(llvm.IntEQ, v, llvm.ConstInt(v.Type(), 1, false), ""), nil
	default:
		addr, err := e.genLValue(fnx, cond, sc)
		if err != nil {
			return llvm.Value{}, err
		}
		llt, err := e.lowerType(condT)
		if err != nil {
			return llvm.Value{}, err
		}
		present := e.builder.CreateLoad(e.ctx.Int1Type(), e.builder.CreateStructGEP(llt, addr, 0, ""), "")
		payloadAddr := e.builder.CreateStructGEP(llt, addr, 1, "")
		if child.IsHandleType() {
			thenSc.DeclareVar(&scope.Variable{Name: captureName, Type: child, ValueRef: payloadAddr, SrcArgIndex: -1, GenArgIndex: -1})
		} else {
			payloadLLT, err := e.lowerType(child)
			if err != nil {
				return llvm.Value{}, err
			}
			slot := e.builder.CreateAlloca(payloadLLT, "maybe.cap")
			e.builder.CreateStore(e.builder.CreateLoad(payloadLLT, payloadAddr, ""), slot)
			thenSc.DeclareVar(&scope.Variable{Name: captureName, Type: child, ValueRef: slot, SrcArgIndex: -1, GenArgIndex: -1})
		}
		return e.builder.CreateICmp(llvm.IntEQ, present, llvm.ConstInt(e.ctx.Int1Type(), 1, false), ""), nil
	}
}

// genWhile lowers `while (cond) body`: head/body/end blocks, or, when cond
// is the constant true, head/body with the end block kept only if a break
// targets it (SPEC_FULL.md §4.7 "while: either infinite ... or standard
// cond/body/end").
func (e *Emitter) genWhile(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (bool, error) {
	head := e.ctx.AddBasicBlock(fnx.fnVal, "while.head")
	body := e.ctx.AddBasicBlock(fnx.fnVal, "while.body")
	end := e.ctx.AddBasicBlock(fnx.fnVal, "while.end")

	e.builder.CreateBr(head)
	e.builder.SetInsertPointAtEnd(head)
	condNode := node.Children[0]
	infinite := condNode.Expr != nil && condNode.Expr.ConstVal.OK &&
		condNode.Expr.ConstVal.Payload.Kind == ast.PayloadBool && condNode.Expr.ConstVal.Payload.Bool
	if infinite {
		e.builder.CreateBr(body)
	} else {
		cond, err := e.genExpr(fnx, condNode, sc)
		if err != nil {
			return false, err
		}
		e.builder.CreateCondBr(cond, body, end)
	}

	labels := &loopLabels{head: head, end: end}
	fnx.loops.Push(labels)
	e.builder.SetInsertPointAtEnd(body)
	loopSc := scope.New(sc, node)
	loopSc.ParentLoop = loopSc
	diverged, err := e.genStmtList(fnx, bodyChildren(node.Children[1]), loopSc)
	if err != nil {
		return false, err
	}
	if !diverged {
		e.builder.CreateBr(head)
	}
	fnx.loops.Pop()

	if infinite && !labels.hasBreak {
		end.EraseFromParent()
		return true, nil
	}
	e.builder.SetInsertPointAtEnd(end)
	return false, nil
}

// bodyChildren unwraps a statement body that may itself be a Block node,
// since while/if/for bodies are either a single statement or a Block.
func bodyChildren(body *ast.Node) []*ast.Node {
	if body.Kind == ast.Block {
		return body.Children
	}
	return []*ast.Node{body}
}

// genFor lowers `for (elem[, idx]) in iterable body` over an array or slice
// scrutinee to a hidden-index counting loop (SPEC_FULL.md §4.7: "for
// allocates a hidden index var, loads scrutinee length from the slice
// header when the scrutinee is a slice, loops until index == len").
func (e *Emitter) genFor(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (bool, error) {
	iterNode := node.Children[0]
	iterType := iterNode.Expr.Type.CanonicalType()
	iterAddr, err := e.genLValue(fnx, iterNode, sc)
	if err != nil {
		return false, err
	}

	idxT := e.ctx.Int64Type()
	idx := e.builder.CreateAlloca(idxT, "for.idx")
	e.builder.CreateStore(llvm.ConstInt(idxT, 0, false), idx)

	var length llvm.Value
	elemType := iterType.Child
	llElem, err := e.lowerType(elemType)
	if err != nil {
		return false, err
	}
	var basePtr llvm.Value
	if iterType.Kind == types.Slice {
		sliceLLT, err := e.lowerType(iterNode.Expr.Type)
		if err != nil {
			return false, err
		}
		length = e.builder.CreateLoad(idxT, e.builder.CreateStructGEP(sliceLLT, iterAddr, 1, ""), "")
		basePtr = e.builder.CreateLoad(llvm.PointerType(llElem, 0), e.builder.CreateStructGEP(sliceLLT, iterAddr, 0, ""), "")
	} else {
		length = llvm.ConstInt(idxT, iterType.Len, false)
		basePtr = iterAddr
	}

	head := e.ctx.AddBasicBlock(fnx.fnVal, "for.head")
	body := e.ctx.AddBasicBlock(fnx.fnVal, "for.body")
	end := e.ctx.AddBasicBlock(fnx.fnVal, "for.end")
	e.builder.CreateBr(head)
	e.builder.SetInsertPointAtEnd(head)
	curIdx := e.builder.CreateLoad(idxT, idx, "")
	cmp := e.builder.CreateICmp(llvm.IntULT, curIdx, length, "")
	e.builder.CreateCondBr(cmp, body, end)

	fnx.loops.Push(&loopLabels{head: head, end: end})
	e.builder.SetInsertPointAtEnd(body)
	loopSc := scope.New(sc, node)
	loopSc.ParentLoop = loopSc
	elemPtr := e.builder.CreateGEP(llElem, basePtr, []llvm.Value{curIdx}, "for.elemptr")
	for _, binding := range node.Children[1 : len(node.Children)-1] {
		name, _ := binding.Data.(string)
		v := &scope.Variable{Name: name, Type: elemType, SrcArgIndex: -1, GenArgIndex: -1}
		if elemType.IsHandleType() {
			v.ValueRef = elemPtr
		} else {
			v.ValueRef = elemPtr // Loaded on use by genExpr's Identifier case via LookupVar + load.
		}
		loopSc.DeclareVar(v)
	}
	body2 := node.Children[len(node.Children)-1]
	diverged, err := e.genStmtList(fnx, bodyChildren(body2), loopSc)
	if err != nil {
		return false, err
	}
	if !diverged {
		next := e.builder.CreateAdd(curIdx, llvm.ConstInt(idxT, 1, false), "")
		e.builder.CreateStore(next, idx)
		e.builder.CreateBr(head)
	}
	fnx.loops.Pop()
	e.builder.SetInsertPointAtEnd(end)
	return false, nil
}

// genSwitch lowers a switch over an integer/enum tag to an LLVM `switch`
// instruction with one block per prong (SPEC_FULL.md §4.7 "Control":
// "switch lowers to an LLVM switch over the tag ... When the scrutinee is a
// compile-time constant the emitter emits only the chosen prong").
func (e *Emitter) genSwitch(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (bool, error) {
	subject := node.Children[0]
	if subject.Expr != nil && subject.Expr.ConstVal.OK {
		tag := constTagOf(subject.Expr.ConstVal)
		for _, prong := range node.Children[1:] {
			if prongMatches(prong, tag) {
				return e.genStmt(fnx, prong.Children[len(prong.Children)-1], sc)
			}
		}
	}

	tagVal, tagType, err := e.genSwitchTag(fnx, subject, sc)
	if err != nil {
		return false, err
	}
	end := e.ctx.AddBasicBlock(fnx.fnVal, "switch.end")
	elseBB := end
	hasElse := false
	prongBlocks := make([]llvm.BasicBlock, len(node.Children)-1)
	for i := range prongBlocks {
		prongBlocks[i] = e.ctx.AddBasicBlock(fnx.fnVal, fmt.Sprintf("switch.prong%d", i))
	}
	cases := make([]llvm.Value, 0)
	caseBlocks := make([]llvm.BasicBlock, 0)
	covered := make(map[uint64]bool)
	for i, prong := range node.Children[1:] {
		isElse := len(prong.Children) == 1
		if isElse {
			elseBB = prongBlocks[i]
			hasElse = true
			continue
		}
		for _, valNode := range prong.Children[:len(prong.Children)-1] {
			v, err := e.genExpr(fnx, valNode, sc)
			if err != nil {
				return false, err
			}
			cases = append(cases, v)
			caseBlocks = append(caseBlocks, prongBlocks[i])
			if valNode.Expr != nil && valNode.Expr.ConstVal.OK {
				covered[constTagOf(valNode.Expr.ConstVal)] = true
			}
		}
	}
	if !hasElse && !e.Opt.Release {
		// No else prong and non-exhaustive at the LLVM level is a sema bug
		// (the analyzer rejects it), but the default edge still goes to its
		// own trap block rather than the join, per SPEC_FULL.md §4.7
		// "else-less switch fallthrough".
		elseBB = e.ctx.AddBasicBlock(fnx.fnVal, "switch.noprong")
		e.terminateWithTrap(elseBB)
	}
	sw := e.builder.CreateSwitch(tagVal, elseBB, len(cases))
	for i, c := range cases {
		sw.AddCase(c, caseBlocks[i])
	}
	_ = tagType

	subjectT := subject.Expr.Type.CanonicalType()
	allDiverge := true
	for i, prong := range node.Children[1:] {
		e.builder.SetInsertPointAtEnd(prongBlocks[i])
		body := prong.Children[len(prong.Children)-1]
		prongSc := sc
		if subjectT.Kind == types.Enum {
			prongSc = e.bindSwitchCapture(fnx, prong, subjectT, covered, sc)
		}
		diverged, err := e.genStmt(fnx, body, prongSc)
		if err != nil {
			return false, err
		}
		if !diverged {
			allDiverge = false
			e.builder.CreateBr(end)
		}
	}
	e.builder.SetInsertPointAtEnd(end)
	if allDiverge && hasElse {
		return true, nil
	}
	return false, nil
}

// bindSwitchCapture declares a prong's optional capture variable by
// bitcast-loading the
// enum's union field at the payload type peer-resolved across the variant(s)
// this prong matches, mirroring sema/control.go's analyzeSwitchStmt so both
// passes agree on which fields a given prong covers. Returns sc unchanged
// when the prong has no capture name or its covered variants carry no
// payload.
func (e *Emitter) bindSwitchCapture(fnx *fnCtx, prong *ast.Node, c *types.Type, covered map[uint64]bool, sc *scope.Scope) *scope.Scope {
	captureName, _ := prong.Data.(string)
	if captureName == "" {
		return sc
	}
	isElse := len(prong.Children) == 1
	var fields []*types.EnumField
	if isElse {
		for i := range c.EnumFields {
			if !covered[c.EnumFields[i].Value] {
				fields = append(fields, &c.EnumFields[i])
			}
		}
	} else {
		for _, valNode := range prong.Children[:len(prong.Children)-1] {
			if valNode.Expr == nil || !valNode.Expr.ConstVal.OK {
				continue
			}
			if f := enumFieldByTagCG(c, constTagOf(valNode.Expr.ConstVal)); f != nil {
				fields = append(fields, f)
			}
		}
	}
	if len(fields) == 0 {
		return sc
	}
	ts := make([]*types.Type, len(fields))
	for i, f := range fields {
		ts[i] = f.Type
	}
	payload := sema.ResolvePeerTypes(e.Reg, ts)
	if payload == nil || payload.Kind == types.Invalid || payload.Kind == types.Void {
		return sc
	}

	prongSc := scope.New(sc, prong)
	if c.UnionType == nil {
		return prongSc
	}
	subject := prong.Parent.Children[0]
	addr, err := e.genLValue(fnx, subject, sc)
	if err != nil {
		return prongSc
	}
	enumLLT, err := e.lowerType(c)
	if err != nil {
		return prongSc
	}
	rawAddr := e.builder.CreateStructGEP(enumLLT, addr, 1, "")
	if payload.IsHandleType() {
		payloadLLT, err := e.lowerType(payload)
		if err != nil {
			return prongSc
		}
		capAddr := e.builder.CreateBitCast(rawAddr, llvm.PointerType(payloadLLT, 0), "")
		prongSc.DeclareVar(&scope.Variable{Name: captureName, Type: payload, ValueRef: capAddr, SrcArgIndex: -1, GenArgIndex: -1})
		return prongSc
	}
	payloadLLT, err := e.lowerType(payload)
	if err != nil {
		return prongSc
	}
	capAddr := e.builder.CreateBitCast(rawAddr, llvm.PointerType(payloadLLT, 0), "")
	capVal := e.builder.CreateLoad(payloadLLT, capAddr, "")
	slot := e.builder.CreateAlloca(payloadLLT, "switch.cap")
	e.builder.CreateStore(capVal, slot)
	prongSc.DeclareVar(&scope.Variable{Name: captureName, Type: payload, ValueRef: slot, SrcArgIndex: -1, GenArgIndex: -1})
	return prongSc
}

func enumFieldByTagCG(c *types.Type, tag uint64) *types.EnumField {
	for i := range c.EnumFields {
		if c.EnumFields[i].Value == tag {
			return &c.EnumFields[i]
		}
	}
	return nil
}

func (e *Emitter) terminateWithTrap(bb llvm.BasicBlock) {
	saved := e.builder.GetInsertBlock()
	e.builder.SetInsertPointAtEnd(bb)
	name := "llvm.debugtrap"
	ftyp := llvm.FunctionType(e.ctx.VoidType(), nil, false)
	fn := e.mod.NamedFunction(name)
	if fn.IsNil() {
		fn = llvm.AddFunction(e.mod, name, ftyp)
	}
	e.builder.CreateCall(ftyp, fn, nil, "")
	e.builder.CreateUnreachable()
	if !saved.IsNil() {
		e.builder.SetInsertPointAtEnd(saved)
	}
}

func (e *Emitter) genSwitchTag(fnx *fnCtx, subject *ast.Node, sc *scope.Scope) (llvm.Value, llvm.Type, error) {
	t := subject.Expr.Type.CanonicalType()
	if t.Kind == types.Enum {
		addr, err := e.genLValue(fnx, subject, sc)
		if err != nil {
			return llvm.Value{}, llvm.Type{}, err
		}
		tagT, err := e.lowerType(t.TagType)
		if err != nil {
			return llvm.Value{}, llvm.Type{}, err
		}
		if t.UnionType == nil {
			return e.builder.CreateLoad(tagT, addr, ""), tagT, nil
		}
		enumLLT, err := e.lowerType(subject.Expr.Type)
		if err != nil {
			return llvm.Value{}, llvm.Type{}, err
		}
		tagPtr := e.builder.CreateStructGEP(enumLLT, addr, 0, "")
		return e.builder.CreateLoad(tagT, tagPtr, ""), tagT, nil
	}
	v, err := e.genExpr(fnx, subject, sc)
	return v, v.Type(), err
}

func constTagOf(cv ast.ConstVal) uint64 {
	switch cv.Payload.Kind {
	case ast.PayloadBigNum:
		return cv.Payload.Num.UintVal
	case ast.PayloadEnum:
		return cv.Payload.Enum.Tag
	default:
		return 0
	}
}

func prongMatches(prong *ast.Node, tag uint64) bool {
	if len(prong.Children) == 1 {
		return true // else prong, last resort.
	}
	for _, valNode := range prong.Children[:len(prong.Children)-1] {
		if valNode.Expr != nil && valNode.Expr.ConstVal.OK && constTagOf(valNode.Expr.ConstVal) == tag {
			return true
		}
	}
	return false
}

// genBreak/genContinue jump to the nearest enclosing loop's end/head block
// (SPEC_FULL.md §4.7's loop lowering; label stack mirrors the teacher's ls
// *util.Stack in transform.go's genContinue).
func (e *Emitter) genBreak(fnx *fnCtx, node *ast.Node) (bool, error) {
	l, _ := fnx.loops.Peek().(*loopLabels)
	if l == nil {
		return false, fmt.Errorf("break outside of a loop at %v", node.Span)
	}
	l.hasBreak = true
	e.builder.CreateBr(l.end)
	return true, nil
}

func (e *Emitter) genContinue(fnx *fnCtx, node *ast.Node) (bool, error) {
	l, _ := fnx.loops.Peek().(*loopLabels)
	if l == nil {
		return false, fmt.Errorf("continue outside of a loop at %v", node.Span)
	}
	e.builder.CreateBr(l.head)
	return true, nil
}

// genBreakValue lowers `break :label value` (SPEC_FULL.md §5 item 5): the
// label's block is a block expression join point, represented as a direct
// branch to the label's join block after storing the value through the slot
// genLabeledBlockCore allocated for it.
func (e *Emitter) genBreakValue(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (bool, error) {
	label, _ := node.Data.(string)
	target := sc.FnEntry.Labels[label]
	if target == nil {
		return false, fmt.Errorf("break to undefined label %q at %v", label, node.Span)
	}
	val, err := e.genJoinVal(fnx, node.Children[0], sc, node.Children[0].Expr.Type)
	if err != nil {
		return false, err
	}
	if slot, ok := target.LabelResultSlot.(llvm.Value); ok {
		e.builder.CreateStore(val, slot)
	}
	joinBB, ok := target.LabelJoinBlock.(llvm.BasicBlock)
	if !ok {
		return false, fmt.Errorf("internal: label %q has no join block emitted yet", label)
	}
	e.builder.CreateBr(joinBB)
	return true, nil
}

// genDeferStmt records a defer against sc's DeferChain (SPEC_FULL.md §4.7
// "Defer"); the body itself is only emitted later, by genReturn's unwind.
func (e *Emitter) genDeferStmt(node *ast.Node, sc *scope.Scope) {
	kind := scope.DeferUnconditional
	if kw, ok := node.Data.(string); ok {
		switch kw {
		case "errdefer":
			kind = scope.DeferError
		case "nulldefer":
			kind = scope.DeferMaybe
		}
	}
	sc.PushDefer(node.Children[0], kind)
}

// genReturn unwinds defers innermost-first from sc out to the function's
// top scope, running only the bodies whose kind matches the return's
// ReturnKnowledge (SPEC_FULL.md §4.7 "Defer": "Unconditional always; Error-
// defers only on error-return; Maybe-defers only on null-return. Unknown
// knowledge with conditional defers is currently rejected"), then emits the
// terminating ret/ret-void (sret functions store through fnx.retPtr and
// ret-void instead).
func (e *Emitter) genReturn(fnx *fnCtx, node *ast.Node, sc *scope.Scope) (bool, error) {
	rk := ast.RKKnownUnconditional
	if node.Expr != nil {
		rk = node.Expr.ReturnKnowledge
	}
	if rk == ast.RKUnknown && hasConditionalDefer(sc) {
		return false, fmt.Errorf("return of statically-unknown error/null knowledge with a conditional defer pending at %v", node.Span)
	}

	var retVal llvm.Value
	var retIsHandle bool
	if len(node.Children) > 0 {
		valNode := node.Children[0]
		retIsHandle = valNode.Expr.Type.IsHandleType()
		var err error
		if retIsHandle {
			retVal, err = e.genLValue(fnx, valNode, sc)
		} else {
			retVal, err = e.genExpr(fnx, valNode, sc)
		}
		if err != nil {
			return false, err
		}
	}

	if err := e.unwindDefers(fnx, sc, rk); err != nil {
		return false, err
	}

	if len(node.Children) == 0 {
		e.builder.CreateRetVoid()
		return true, nil
	}
	if fnx.retPtr.IsNil() {
		e.builder.CreateRet(retVal)
		return true, nil
	}
	llt, err := e.lowerType(node.Children[0].Expr.Type)
	if err != nil {
		return false, err
	}
	e.emitAggregateCopy(fnx.retPtr, retVal, llt)
	e.builder.CreateRetVoid()
	return true, nil
}

func hasConditionalDefer(sc *scope.Scope) bool {
	for cur := sc; cur != nil; cur = cur.Parent {
		for _, d := range cur.DeferChain {
			if d.Kind != scope.DeferUnconditional {
				return true
			}
		}
		if cur.FnEntry != nil && cur.Node == cur.FnEntry.DefNode {
			break
		}
	}
	return false
}

// unwindDefers runs the matching defer bodies from sc outward, each scope's
// own chain innermost-first (most-recently-pushed first).
func (e *Emitter) unwindDefers(fnx *fnCtx, sc *scope.Scope, rk ast.ReturnKnowledge) error {
	for cur := sc; cur != nil; cur = cur.Parent {
		for i := len(cur.DeferChain) - 1; i >= 0; i-- {
			d := cur.DeferChain[i]
			if !deferRuns(d.Kind, rk) {
				continue
			}
			if _, err := e.genExpr(fnx, d.Body, cur); err != nil {
				return err
			}
		}
		if cur.Node != nil && cur.FnEntry != nil && cur.Node == cur.FnEntry.ProtoNode {
			break
		}
	}
	return nil
}

func deferRuns(kind scope.DeferKind, rk ast.ReturnKnowledge) bool {
	switch kind {
	case scope.DeferUnconditional:
		return true
	case scope.DeferError:
		return rk == ast.RKKnownError || rk == ast.RKUnknown
	case scope.DeferMaybe:
		return rk == ast.RKKnownNull || rk == ast.RKUnknown
	default:
		return false
	}
}

// emitAggregateCopy copies a handle-typed value from src to dst with a
// memcpy sized to llt. The call carries no alignment attribute: neither
// llt's ABI alignment nor that of its first concrete sub-field is applied.
func (e *Emitter) emitAggregateCopy(dst, src llvm.Value, llt llvm.Type) {
	size := llvm.SizeOf(llt)
	dstRaw := e.builder.CreateBitCast(dst, llvm.PointerType(e.ctx.Int8Type(), 0), "")
	srcRaw := e.builder.CreateBitCast(src, llvm.PointerType(e.ctx.Int8Type(), 0), "")
	fn, ftyp := e.memcpyIntrinsic()
	e.builder.CreateCall(ftyp, fn, []llvm.Value{dstRaw, srcRaw, size, llvm.ConstInt(e.ctx.Int1Type(), 0, false)}, "")
}

func (e *Emitter) memcpyIntrinsic() (llvm.Value, llvm.Type) {
	name := "llvm.memcpy.p0i8.p0i8.i64"
	ptrT := llvm.PointerType(e.ctx.Int8Type(), 0)
	ftyp := llvm.FunctionType(e.ctx.VoidType(), []llvm.Type{ptrT, ptrT, e.ctx.Int64Type(), e.ctx.Int1Type()}, false)
	if fn := e.mod.NamedFunction(name); !fn.IsNil() {
		return fn, ftyp
	}
	return llvm.AddFunction(e.mod, name, ftyp), ftyp
}
