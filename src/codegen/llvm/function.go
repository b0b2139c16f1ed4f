package llvm

import (
	"fmt"

	"tinygo.org/x/go-llvm"

	"novac/src/ast"
	"novac/src/scope"
	"novac/src/types"
	"novac/src/util"
)

// fnCtx carries the per-function codegen state threaded through statement
// and expression lowering: the sret return pointer (if any), the loop
// label stack genBreak/genContinue/genWhile/genForStmt push onto, and the
// function's declared symbol for diagnostics (SPEC_FULL.md §4.7 "A per-
// function cur_ret_ptr is set when the return type is by-reference").
type fnCtx struct {
	entry  *scope.FnEntry
	fnVal  llvm.Value
	retPtr llvm.Value // Valid only when entry.Type.Return.IsHandleType().

	loops util.Stack // Pushed {head, end llvm.BasicBlock} pairs for while/for, popped on exit.
}

type loopLabels struct {
	head, end llvm.BasicBlock
	hasBreak  bool
}

// declareFunction emits the LLVM function header for entry (SPEC_FULL.md
// §4.3's resolver hands this to the DeclareFunction hook as each FnProto/
// FnDef resolves), mirroring the teacher's genFuncHeader: parameter/return
// type lowering, duplicate-declaration rejection, parameter naming.
func (e *Emitter) declareFunction(entry *scope.FnEntry) error {
	if entry.Type == nil || entry.Type.Kind != types.Fn {
		return fmt.Errorf("declareFunction(%q): missing resolved Fn type", entry.SymbolName)
	}
	e.globalsMu.Lock()
	if _, ok := e.globals[entry.SymbolName]; ok {
		e.globalsMu.Unlock()
		return fmt.Errorf("declareFunction: duplicate symbol %q", entry.SymbolName)
	}
	e.globalsMu.Unlock()

	ftyp, err := e.lowerType(entry.Type)
	if err != nil {
		return fmt.Errorf("declareFunction(%q): %w", entry.SymbolName, err)
	}
	fn := llvm.AddFunction(e.mod, entry.SymbolName, ftyp)
	if entry.IsNaked {
		fn.AddFunctionAttr(e.ctx.CreateEnumAttribute(llvmAttrKind("naked"), 0))
	}
	if entry.IsInline {
		fn.AddFunctionAttr(e.ctx.CreateEnumAttribute(llvmAttrKind("alwaysinline"), 0))
	}
	if entry.IsCold {
		fn.AddFunctionAttr(e.ctx.CreateEnumAttribute(llvmAttrKind("cold"), 0))
	}
	if entry.InternalLinkage && !entry.IsTest {
		fn.SetLinkage(llvm.InternalLinkage)
	}

	argOffset := 0
	if entry.Type.Return.IsHandleType() {
		fn.Param(0).SetName("sret")
		fn.Param(0).AddAttributeAtIndex(1, e.ctx.CreateEnumAttribute(llvmAttrKind("sret"), 0))
		argOffset = 1
	}
	for i, p := range entry.Type.Params {
		v := fn.Param(i + argOffset)
		name := "_"
		if i < len(entry.VariableList) {
			name = entry.VariableList[i].Name
		}
		v.SetName(name)
		if p.NoAlias {
			v.AddAttributeAtIndex(i+argOffset+1, e.ctx.CreateEnumAttribute(llvmAttrKind("noalias"), 0))
		}
	}

	entry.FnValue = fn
	e.globalsMu.Lock()
	e.globals[entry.SymbolName] = fn
	e.globalsMu.Unlock()
	if e.mainFn == nil && !entry.IsExtern && !entry.IsTest {
		e.mainFn = entry
	}
	return nil
}

// llvmAttrKind looks up an LLVM enum attribute's numeric kind by name
// (SPEC_FULL.md §6: "alwaysinline, naked, noreturn, nounwind, noalias,
// readonly, sret, nonnull"), the same string-keyed lookup go-llvm exposes
// since attribute kind IDs are assigned at LLVM build time, not stable
// constants.
func llvmAttrKind(name string) uint {
	return llvm.AttributeKindID(name)
}

// defineFunction emits entry's body: the entry block, a stack slot for every
// non-handle-typed parameter (handle-typed parameters and the sret pointer,
// when present, are used through their incoming pointers), then the
// statement tree (SPEC_FULL.md §4.7 "Entry point per function").
func (e *Emitter) defineFunction(entry *scope.FnEntry) error {
	fn, ok := entry.FnValue.(llvm.Value)
	if !ok || fn.IsNil() {
		return fmt.Errorf("defineFunction(%q): no declared header", entry.SymbolName)
	}
	bb := e.ctx.AddBasicBlock(fn, "entry")
	e.builder.SetInsertPointAtEnd(bb)

	fnx := &fnCtx{entry: entry, fnVal: fn}
	argOffset := 0
	if entry.Type.Return.IsHandleType() {
		fnx.retPtr = fn.Param(0)
		argOffset = 1
	}

	sc := scope.New(nil, entry.ProtoNode)
	sc.FnEntry = entry
	for i, p := range entry.Type.Params {
		var name string
		if i < len(entry.VariableList) {
			name = entry.VariableList[i].Name
		} else {
			name = fmt.Sprintf("_arg%d", i)
		}
		param := fn.Param(i + argOffset)
		v := &scope.Variable{Name: name, Type: p.Type, SrcArgIndex: i, GenArgIndex: i + argOffset}
		if p.Type.IsHandleType() {
			// Handle-typed parameters are passed by address already (the
			// caller materializes them): the incoming pointer IS the
			// variable's address, no local copy needed.
			v.ValueRef = param
		} else {
			alloca := e.builder.CreateAlloca(param.Type(), name)
			e.poisonStack(alloca, param.Type())
			e.builder.CreateStore(param, alloca)
			v.ValueRef = alloca
		}
		sc.DeclareVar(v)
	}
	if e.di != nil {
		e.di.beginFunction(fnx, sc)
	}

	body := entry.DefNode.Children[2]
	diverged, err := e.genBlockScoped(fnx, body, sc)
	if err != nil {
		return fmt.Errorf("function %q: %w", entry.SymbolName, err)
	}
	if !diverged {
		if entry.Type.Return.CanonicalType().Kind == types.Void {
			e.builder.CreateRetVoid()
		} else {
			// A non-void function whose body doesn't provably diverge on
			// every path is a semantic-analysis gap upstream; emit an
			// unreachable trap rather than an invalid implicit return.
			e.emitTrap(fnx)
			e.builder.CreateUnreachable()
		}
	}
	return nil
}

// poisonStack fills newly allocated stack storage with the 0xAA byte
// pattern before user initialization in non-release builds (SPEC_FULL.md
// §4.7 "Safety checks").
func (e *Emitter) poisonStack(alloca llvm.Value, t llvm.Type) {
	if e.Opt.Release {
		return
	}
	fill := llvm.ConstInt(e.ctx.Int8Type(), 0xAA, false)
	raw := e.builder.CreateBitCast(alloca, llvm.PointerType(e.ctx.Int8Type(), 0), "")
	lenVal := llvm.SizeOf(t)
	fn, ftyp := e.memsetIntrinsic()
	e.builder.CreateCall(ftyp, fn, []llvm.Value{raw, fill, lenVal, llvm.ConstInt(e.ctx.Int1Type(), 0, false)}, "")
}

func (e *Emitter) memsetIntrinsic() (llvm.Value, llvm.Type) {
	name := "llvm.memset.p0i8.i64"
	ptrT := llvm.PointerType(e.ctx.Int8Type(), 0)
	ftyp := llvm.FunctionType(e.ctx.VoidType(), []llvm.Type{ptrT, e.ctx.Int8Type(), e.ctx.Int64Type(), e.ctx.Int1Type()}, false)
	if fn := e.mod.NamedFunction(name); !fn.IsNil() {
		return fn, ftyp
	}
	return llvm.AddFunction(e.mod, name, ftyp), ftyp
}

// emitTrap calls the debugtrap intrinsic, the runtime-safety-check primitive
// SPEC_FULL.md §4.7 requires before every non-release unreachable point
// (unwrap-of-null, unwrap-of-error, else-less switch fallthrough, implicit
// non-divergent tail).
func (e *Emitter) emitTrap(fnx *fnCtx) {
	if e.Opt.Release {
		return
	}
	name := "llvm.debugtrap"
	ftyp := llvm.FunctionType(e.ctx.VoidType(), nil, false)
	fn := e.mod.NamedFunction(name)
	if fn.IsNil() {
		fn = llvm.AddFunction(e.mod, name, ftyp)
	}
	e.builder.CreateCall(ftyp, fn, nil, "")
}

// WireDeclareFunction and WireDeclareGlobal match the *resolve.Resolver hook
// signatures and queue each declaration on this emitter, so a driver can
// wire `r.DeclareFunction = e.WireDeclareFunction` without an import cycle
// (resolve cannot import codegen/llvm, since resolve is itself a dependency
// of codegen/llvm's callers).
func (e *Emitter) WireDeclareFunction(entry *scope.FnEntry) {
	e.pendingFns = append(e.pendingFns, entry)
}

func (e *Emitter) WireDeclareGlobal(name string, t *types.Type, cv ast.ConstVal, isConst bool) {
	e.pendingGlobals = append(e.pendingGlobals, GlobalDecl{Name: name, Type: t, ConstVal: cv, IsConst: isConst})
}
