package sema

import (
	"strings"

	"novac/src/ast"
	"novac/src/scope"
	"novac/src/types"
)

var intrinsicNames = map[string]bool{
	"sizeof":            true,
	"alignof":           true,
	"min_value":         true,
	"max_value":         true,
	"member_count":      true,
	"typeof":            true,
	"memcpy":            true,
	"memset":            true,
	"ctz":               true,
	"clz":               true,
	"const_eval":        true,
	"compile_var":       true,
	"this_type":         true,
	"truncate":          true,
	"bit_cast":          true,
	"add_with_overflow": true,
	"sub_with_overflow": true,
	"mul_with_overflow": true,
	"import":            true,
}

func isIntrinsicName(name string) bool { return intrinsicNames[name] }

// IsIntrinsicName reports whether name is one of the compile-time
// intrinsics this package dispatches in analyzeIntrinsicCall, so the IR
// Emitter can route the same call-expressions to its own intrinsic lowering
// instead of treating the callee as an ordinary function symbol.
func IsIntrinsicName(name string) bool { return isIntrinsicName(name) }

// analyzeIntrinsicCall dispatches one of the compile-time intrinsics of
// SPEC_FULL.md §4.4/§5: sizeof, compile_var, this_type, truncate, bit_cast
// (the latter three added beyond the distilled baseline), and the
// add/sub/mul_with_overflow family.
func (a *Analyzer) analyzeIntrinsicCall(node *ast.Node, sc *scope.Scope, name string) *types.Type {
	args := node.Children[1:]
	switch name {
	case "sizeof":
		return a.intrinsicSizeof(node, sc, args)
	case "alignof":
		return a.intrinsicAlignof(node, sc, args)
	case "min_value", "max_value":
		return a.intrinsicMinMaxValue(node, sc, name, args)
	case "member_count":
		return a.intrinsicMemberCount(node, sc, args)
	case "typeof":
		return a.intrinsicTypeof(node, sc, args)
	case "memcpy", "memset":
		return a.intrinsicMemcpyMemset(node, sc, name, args)
	case "ctz", "clz":
		return a.intrinsicCtzClz(node, sc, name, args)
	case "const_eval":
		return a.intrinsicConstEval(node, sc, args)
	case "compile_var":
		return a.intrinsicCompileVar(node, sc, args)
	case "this_type":
		return a.intrinsicThisType(node, sc)
	case "truncate":
		return a.intrinsicTruncate(node, sc, args)
	case "bit_cast":
		return a.intrinsicBitCast(node, sc, args)
	case "import":
		return a.intrinsicImport(node, sc, args)
	default:
		return a.intrinsicWithOverflow(node, sc, strings.TrimSuffix(name, "_with_overflow"), args)
	}
}

// intrinsicSizeof types sizeof(T) as a usize. The literal byte count depends
// on the target DataLayout, which this engine only has once the IR Emitter
// has selected a target machine, so the ConstVal stays unfolded here —
// SPEC_FULL.md §5's sizeof is realized as an LLVM constant expression at
// codegen, not folded in the analyzer.
func (a *Analyzer) intrinsicSizeof(node *ast.Node, sc *scope.Scope, args []*ast.Node) *types.Type {
	if len(args) != 1 {
		a.Diags.Errorf(node.Span, "sizeof expects exactly one type argument")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	a.Analyze(args[0], sc, nil, false)
	node.Expr = &ast.Expr{BlockContext: sc}
	return a.Reg.GetInt(false, 64)
}

// intrinsicAlignof types alignof(T) as a usize (u64), not as a NumLitInt,
// with the same unfolded-at-analysis posture as sizeof: the actual alignment is a target-DataLayout fact the IR Emitter resolves
// once it has selected a target machine.
func (a *Analyzer) intrinsicAlignof(node *ast.Node, sc *scope.Scope, args []*ast.Node) *types.Type {
	if len(args) != 1 {
		a.Diags.Errorf(node.Span, "alignof expects exactly one type argument")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	a.Analyze(args[0], sc, nil, false)
	node.Expr = &ast.Expr{BlockContext: sc}
	return a.Reg.GetInt(false, 64)
}

// intrinsicMinMaxValue folds min_value(T)/max_value(T) (SPEC_FULL.md §4.4)
// immediately: unlike sizeof/alignof, the extremal value of an integer type
// is derivable purely from its bit width and signedness, with no target
// layout dependency, so this folds at analysis time rather than deferring
// to codegen.
func (a *Analyzer) intrinsicMinMaxValue(node *ast.Node, sc *scope.Scope, name string, args []*ast.Node) *types.Type {
	if len(args) != 1 {
		a.Diags.Errorf(node.Span, "%s expects exactly one type argument", name)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	a.Analyze(args[0], sc, nil, false)
	t := args[0].Expr.ConstVal.Payload.Type
	if t == nil || t.CanonicalType().Kind != types.Int {
		a.Diags.Errorf(node.Span, "%s's argument must be an integer type", name)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	ct := t.CanonicalType()
	var num ast.BigNum
	if name == "min_value" {
		if !ct.Signed {
			num = ast.BigNum{Kind: ast.BigInt, UintVal: 0}
		} else if ct.Bits >= 64 {
			num = ast.BigNum{Kind: ast.BigInt, UintVal: 1 << 63, IsNegative: true}
		} else {
			num = ast.BigNum{Kind: ast.BigInt, UintVal: uint64(1) << uint(ct.Bits-1), IsNegative: true}
		}
	} else {
		if !ct.Signed {
			if ct.Bits >= 64 {
				num = ast.BigNum{Kind: ast.BigInt, UintVal: ^uint64(0)}
			} else {
				num = ast.BigNum{Kind: ast.BigInt, UintVal: (uint64(1) << uint(ct.Bits)) - 1}
			}
		} else if ct.Bits >= 64 {
			num = ast.BigNum{Kind: ast.BigInt, UintVal: (1 << 63) - 1}
		} else {
			num = ast.BigNum{Kind: ast.BigInt, UintVal: (uint64(1) << uint(ct.Bits-1)) - 1}
		}
	}
	node.Expr = &ast.Expr{
		ConstVal:     ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadBigNum, Num: num}},
		BlockContext: sc,
	}
	return t
}

// intrinsicMemberCount folds member_count(T) (SPEC_FULL.md §4.4) against a
// Struct or Enum type's field list, immediately, since field counts need no
// target layout.
func (a *Analyzer) intrinsicMemberCount(node *ast.Node, sc *scope.Scope, args []*ast.Node) *types.Type {
	if len(args) != 1 {
		a.Diags.Errorf(node.Span, "member_count expects exactly one type argument")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	a.Analyze(args[0], sc, nil, false)
	t := args[0].Expr.ConstVal.Payload.Type
	if t == nil {
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	ct := t.CanonicalType()
	var n uint64
	switch ct.Kind {
	case types.Struct:
		n = uint64(len(ct.Fields))
	case types.Enum:
		n = uint64(len(ct.EnumFields))
	default:
		a.Diags.Errorf(node.Span, "member_count's argument must be a struct or enum type")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	node.Expr = &ast.Expr{
		ConstVal:     ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadBigNum, Num: ast.BigNum{Kind: ast.BigInt, UintVal: n}}},
		BlockContext: sc,
	}
	return a.Reg.GetInt(false, 64)
}

// intrinsicTypeof types typeof(expr) → MetaType (SPEC_FULL.md §4.4),
// analyzing expr for its side effects on decoration (so a nested
// implicit-cast-needing subexpression is still wrapped) without requiring
// expr itself be constant.
func (a *Analyzer) intrinsicTypeof(node *ast.Node, sc *scope.Scope, args []*ast.Node) *types.Type {
	if len(args) != 1 {
		a.Diags.Errorf(node.Span, "typeof expects exactly one expression argument")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	t := a.Analyze(args[0], sc, nil, false)
	node.Expr = &ast.Expr{
		ConstVal:     ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadType, Type: t}},
		BlockContext: sc,
	}
	return a.Reg.MetaType()
}

// intrinsicMemcpyMemset types memcpy(dst,src,len)/memset(dst,c,len)
// (SPEC_FULL.md §4.4): dst (and src, for memcpy) must be pointers, len is
// a usize; the pointers' alignment is not checked. Both intrinsics evaluate to Void; the IR Emitter lowers them
// directly to the llvm.memcpy/llvm.memset intrinsics used internally for
// aggregate copies and zero-fill (SPEC_FULL.md §4.7).
func (a *Analyzer) intrinsicMemcpyMemset(node *ast.Node, sc *scope.Scope, name string, args []*ast.Node) *types.Type {
	if len(args) != 3 {
		a.Diags.Errorf(node.Span, "%s expects exactly three arguments", name)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	dstT := a.Analyze(args[0], sc, nil, true)
	if dstT.CanonicalType().Kind != types.Pointer {
		a.Diags.Errorf(node.Span, "%s's first argument must be a pointer", name)
	}
	if name == "memcpy" {
		srcT := a.Analyze(args[1], sc, nil, true)
		if srcT.CanonicalType().Kind != types.Pointer {
			a.Diags.Errorf(node.Span, "memcpy's second argument must be a pointer")
		}
	} else {
		a.Analyze(args[1], sc, a.Reg.GetInt(false, 8), false)
	}
	a.Analyze(args[2], sc, a.Reg.GetInt(false, 64), false)
	node.Expr = &ast.Expr{BlockContext: sc}
	return a.Reg.Void()
}

// intrinsicCtzClz types ctz(T,x)/clz(T,x) → T (SPEC_FULL.md §4.4 "ctz(T,x),
// clz(T,x) → T"), lowered at codegen to the IR library's cttz/ctlz
// intrinsics.
func (a *Analyzer) intrinsicCtzClz(node *ast.Node, sc *scope.Scope, name string, args []*ast.Node) *types.Type {
	if len(args) != 2 {
		a.Diags.Errorf(node.Span, "%s expects a type and a value", name)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	a.Analyze(args[0], sc, nil, false)
	t := args[0].Expr.ConstVal.Payload.Type
	if t == nil || t.CanonicalType().Kind != types.Int {
		a.Diags.Errorf(node.Span, "%s's first argument must be an integer type", name)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	a.Analyze(args[1], sc, t, false)
	node.Expr = &ast.Expr{BlockContext: sc}
	return t
}

// intrinsicConstEval forces expr to be a compile-time constant, reporting a
// diagnostic if it is not (SPEC_FULL.md §4.4 "const_eval(expr) — forces the
// expression to have ok=true, else reports"), otherwise passing its
// (type, const_val) straight through.
func (a *Analyzer) intrinsicConstEval(node *ast.Node, sc *scope.Scope, args []*ast.Node) *types.Type {
	if len(args) != 1 {
		a.Diags.Errorf(node.Span, "const_eval expects exactly one expression argument")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	t := a.Analyze(args[0], sc, nil, false)
	if !args[0].Expr.ConstVal.OK {
		a.Diags.Errorf(node.Span, "const_eval's argument is not a compile-time constant expression")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	node.Expr = &ast.Expr{ConstVal: args[0].Expr.ConstVal, BlockContext: sc}
	return t
}

// intrinsicCompileVar types compile_var("key"), folding it immediately
// through const_eval.go's compileVarValue table (SPEC_FULL.md §5 item 7).
func (a *Analyzer) intrinsicCompileVar(node *ast.Node, sc *scope.Scope, args []*ast.Node) *types.Type {
	if len(args) != 1 || args[0].Kind != ast.StringLiteral {
		a.Diags.Errorf(node.Span, "compile_var expects a single string literal argument")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	key, _ := args[0].Data.(string)
	cv, err := compileVarValue(a.CompileVars, key)
	if err != nil {
		a.Diags.Errorf(node.Span, "%s", err.Error())
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	node.Expr = &ast.Expr{ConstVal: cv, BlockContext: sc}
	if cv.Payload.Kind == ast.PayloadPtr {
		return a.Reg.GetSlice(a.Reg.GetInt(false, 8), true)
	}
	return a.Reg.Bool()
}

// intrinsicThisType resolves this_type() to the enclosing function's own Fn
// type, wrapped as a MetaType constant (SPEC_FULL.md §5 item 3): used inside
// a function body to refer to its own signature, e.g. for a self-returning
// builder-style API, without repeating it verbatim.
func (a *Analyzer) intrinsicThisType(node *ast.Node, sc *scope.Scope) *types.Type {
	if sc.FnEntry == nil {
		a.Diags.Errorf(node.Span, "this_type() used outside of a function body")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	node.Expr = &ast.Expr{
		ConstVal:     ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadType, Type: sc.FnEntry.Type}},
		BlockContext: sc,
	}
	return a.Reg.MetaType()
}

// intrinsicTruncate types truncate(T, x): narrows an integer to a smaller
// width of the same signedness, masking off the discarded high bits rather
// than overflow-checking them (SPEC_FULL.md §5 item 4 — distinct from the
// ordinary widen/shorten cast, which SPEC_FULL.md §4.4 requires go through
// an explicit @cast and does not mask). Only the Int kind of both arguments
// is checked; a wider target or a different signedness is not rejected.
func (a *Analyzer) intrinsicTruncate(node *ast.Node, sc *scope.Scope, args []*ast.Node) *types.Type {
	if len(args) != 2 {
		a.Diags.Errorf(node.Span, "truncate expects a target type and a value")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	a.Analyze(args[0], sc, nil, false)
	to := args[0].Expr.ConstVal.Payload.Type
	if to == nil || to.Kind != types.Int {
		a.Diags.Errorf(node.Span, "truncate's first argument must be an integer type")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	from := a.Analyze(args[1], sc, nil, false)
	if from.CanonicalType().Kind != types.Int {
		a.Diags.Errorf(node.Span, "truncate's second argument must be an integer value")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	cv := args[1].Expr.ConstVal
	if cv.OK {
		mask := uint64(1)<<uint(to.Bits) - 1
		if to.Bits >= 64 {
			mask = ^uint64(0)
		}
		n := cv.Payload.Num
		n.UintVal &= mask
		cv = ast.ConstVal{OK: true, DependsOnCompileVar: cv.DependsOnCompileVar, Payload: ast.ConstPayload{Kind: ast.PayloadBigNum, Num: n}}
	}
	node.Expr = &ast.Expr{ConstVal: cv, BlockContext: sc}
	return to
}

// intrinsicBitCast types bit_cast(T, x): reinterprets x's bit pattern as T
// without numeric conversion (SPEC_FULL.md §5 item 4). Neither this pass
// nor the IR Emitter checks that the source and target have the same
// runtime size.
func (a *Analyzer) intrinsicBitCast(node *ast.Node, sc *scope.Scope, args []*ast.Node) *types.Type {
	if len(args) != 2 {
		a.Diags.Errorf(node.Span, "bit_cast expects a target type and a value")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	a.Analyze(args[0], sc, nil, false)
	to := args[0].Expr.ConstVal.Payload.Type
	if to == nil {
		to = a.Reg.Invalid()
	}
	a.Analyze(args[1], sc, nil, false)
	node.Expr = &ast.Expr{BlockContext: sc}
	return to
}

// intrinsicImport types import("relative-path") (SPEC_FULL.md §4.6),
// folding it immediately to a Namespace constant carrying the resolved
// *ast.Import so a `use`-decl naming this call can pull the imported file's
// public declarations into scope (resolve.go's resolveUse reads this back
// off node.Expr.ConstVal.Payload.Import).
func (a *Analyzer) intrinsicImport(node *ast.Node, sc *scope.Scope, args []*ast.Node) *types.Type {
	if len(args) != 1 || args[0].Kind != ast.StringLiteral {
		a.Diags.Errorf(node.Span, "import expects a single string literal path argument")
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	path, _ := args[0].Data.(string)
	if a.ResolveImport == nil || node.Span.File == nil {
		a.Diags.Errorf(node.Span, "import(%q) cannot be resolved outside of a compilation (no import graph wired)", path)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	imp := a.ResolveImport(node.Span.File, path, node.Span)
	node.Expr = &ast.Expr{
		ConstVal:     ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadImport, Import: imp}},
		BlockContext: sc,
	}
	return a.Reg.Namespace()
}

// intrinsicWithOverflow types {add,sub,mul}_with_overflow(T, a, b, out),
// per SPEC_FULL.md §8 scenario 8: T is the integer type the operation is
// performed at, a and b are operands coerced to T, out is a *T lvalue the
// IR Emitter stores the wrapped result into, and the call itself evaluates
// to a bool reporting whether the operation overflowed.
func (a *Analyzer) intrinsicWithOverflow(node *ast.Node, sc *scope.Scope, op string, args []*ast.Node) *types.Type {
	if len(args) != 4 {
		a.Diags.Errorf(node.Span, "%s_with_overflow expects a type, two operands, and an output pointer", op)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	a.Analyze(args[0], sc, nil, false)
	t := args[0].Expr.ConstVal.Payload.Type
	if t == nil || t.CanonicalType().Kind != types.Int {
		a.Diags.Errorf(node.Span, "%s_with_overflow's first argument must be an integer type", op)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	a.Analyze(args[1], sc, t, false)
	a.Analyze(args[2], sc, t, false)
	outT := a.Analyze(args[3], sc, a.Reg.GetPointer(t, false), true)
	if outT.CanonicalType().Kind != types.Pointer || outT.CanonicalType().Child != t {
		a.Diags.Errorf(node.Span, "%s_with_overflow's output argument must be a *%s", op, t)
	}
	node.Expr = &ast.Expr{BlockContext: sc}
	return a.Reg.Bool()
}
