package sema

import (
	"testing"

	"novac/src/ast"
	"novac/src/diag"
	"novac/src/scope"
	"novac/src/types"
)

func newAnalyzer() (*Analyzer, *types.Registry) {
	reg := types.NewRegistry()
	return &Analyzer{Reg: reg, Diags: diag.NewBag()}, reg
}

func intLit(v uint64) *ast.Node {
	return &ast.Node{Kind: ast.IntLiteral, Data: ast.BigNum{Kind: ast.BigInt, UintVal: v}}
}

// Scenario 1 (SPEC_FULL.md §8): both branches of `if b 1 else 2` are
// NumLitInt, coerced to the function's declared i32 return type.
func TestPeerTypingNumLit(t *testing.T) {
	a, reg := newAnalyzer()
	sc := scope.New(nil, &ast.Node{Kind: ast.Root})

	one, two := intLit(1), intLit(2)
	i32 := reg.GetInt(true, 32)
	one.Parent = &ast.Node{Children: []*ast.Node{one}}
	two.Parent = &ast.Node{Children: []*ast.Node{two}}
	one.ParentIndex, two.ParentIndex = 0, 0

	t1 := a.Analyze(one, sc, i32, false)
	t2 := a.Analyze(two, sc, i32, false)
	if t1 != i32 || t2 != i32 {
		t.Fatalf("expected both branches coerced to i32, got %s and %s", t1, t2)
	}
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", a.Diags.Sorted())
	}
}

// Scenario 2: `var x: ?*u8 = null;` resolves to Maybe{Pointer{u8}}.
func TestMaybeWrapNull(t *testing.T) {
	a, reg := newAnalyzer()
	sc := scope.New(nil, &ast.Node{Kind: ast.Root})

	u8Ptr := reg.GetPointer(reg.GetInt(false, 8), false)
	maybePtr := reg.GetMaybe(u8Ptr)

	nullNode := &ast.Node{Kind: ast.NullLiteral}
	got := a.Analyze(nullNode, sc, maybePtr, false)
	if got != maybePtr {
		t.Fatalf("expected Maybe{*u8}, got %s", got)
	}
	if !nullNode.Expr.ConstVal.OK || nullNode.Expr.ConstVal.Payload.Kind != ast.PayloadMaybe || nullNode.Expr.ConstVal.Payload.Maybe != nil {
		t.Fatalf("expected a folded null-maybe const value, got %+v", nullNode.Expr.ConstVal)
	}
}

// Scenario 4: an [3]i32 array assigned where []const i32 is expected emits
// the to-unknown-size-array cast.
func TestArrayToSliceImplicit(t *testing.T) {
	a, reg := newAnalyzer()
	sc := scope.New(nil, &ast.Node{Kind: ast.Root})

	i32 := reg.GetInt(true, 32)
	arrT := reg.GetArray(i32, 3)
	sliceT := reg.GetSlice(i32, true)

	xs := &ast.Node{Kind: ast.Identifier, Data: "xs"}
	parent := &ast.Node{Kind: ast.ExprStmt, Children: []*ast.Node{xs}}
	xs.Parent, xs.ParentIndex = parent, 0

	sc.DeclareVar(&scope.Variable{Name: "xs", Type: arrT, SrcArgIndex: -1, GenArgIndex: -1})

	got := a.Analyze(xs, sc, sliceT, false)
	if got != sliceT {
		t.Fatalf("expected []const i32, got %s", got)
	}
	wrapper := parent.Children[0]
	if wrapper.Kind != ast.ImplicitCastExpr {
		t.Fatalf("expected an ImplicitCastExpr wrapper installed in parent, got %s", wrapper.Kind)
	}
	if wrapper.Data.(CastOp) != CastToUnknownSizeArray {
		t.Fatalf("expected CastToUnknownSizeArray, got %v", wrapper.Data)
	}
}

// Scenario 5: a switch over an enum with fields {A,B,C} matching only A,B
// without an else prong is rejected as non-exhaustive; adding the C prong
// makes it exhaustive.
func TestEnumSwitchExhaustiveness(t *testing.T) {
	run := func(withC bool) *diag.Bag {
		a, reg := newAnalyzer()
		sc := scope.New(nil, &ast.Node{Kind: ast.Root})

		enumT := types.NewEnum("Color")
		types.CompleteEnum(reg, enumT, []types.EnumField{
			{Name: "A", Type: reg.Void(), Value: 0},
			{Name: "B", Type: reg.Void(), Value: 1},
			{Name: "C", Type: reg.Void(), Value: 2},
		}, false)

		declareTag := func(name string, v uint64) {
			sc.DeclareVar(&scope.Variable{
				Name: name, Type: enumT, IsConst: true, SrcArgIndex: -1, GenArgIndex: -1,
				ConstVal: ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadEnum, Enum: ast.EnumPayload{Tag: v}}},
			})
		}
		declareTag("A", 0)
		declareTag("B", 1)
		declareTag("C", 2)
		sc.DeclareVar(&scope.Variable{Name: "c", Type: enumT, SrcArgIndex: -1, GenArgIndex: -1})

		subject := &ast.Node{Kind: ast.Identifier, Data: "c"}
		prongA := &ast.Node{Children: []*ast.Node{{Kind: ast.Identifier, Data: "A"}, {Kind: ast.Block}}}
		prongB := &ast.Node{Children: []*ast.Node{{Kind: ast.Identifier, Data: "B"}, {Kind: ast.Block}}}
		children := []*ast.Node{subject, prongA, prongB}
		if withC {
			prongC := &ast.Node{Children: []*ast.Node{{Kind: ast.Identifier, Data: "C"}, {Kind: ast.Block}}}
			children = append(children, prongC)
		}
		sw := &ast.Node{Kind: ast.SwitchStmt, Children: children}
		a.AnalyzeStmt(sw, sc)
		return a.Diags
	}

	if !run(false).HasErrors() {
		t.Fatal("expected a non-exhaustive switch diagnostic")
	}
	if d := run(true); d.HasErrors() {
		t.Fatalf("expected no errors once all enum variants are covered, got %v", d.Sorted())
	}
}

// Scenario 7: compile_var("is_release") folds immediately and is marked
// DependsOnCompileVar so the IR Emitter can later emit only the taken branch.
func TestCompileVarFolding(t *testing.T) {
	a, _ := newAnalyzer()
	a.CompileVars = CompileVars{IsRelease: true}
	sc := scope.New(nil, &ast.Node{Kind: ast.Root})

	call := &ast.Node{Kind: ast.CallExpr, Children: []*ast.Node{
		{Kind: ast.Identifier, Data: "compile_var"},
		{Kind: ast.StringLiteral, Data: "is_release"},
	}}
	got := a.Analyze(call, sc, nil, false)
	if got.Kind != types.Bool {
		t.Fatalf("expected bool, got %s", got)
	}
	if !call.Expr.ConstVal.OK || !call.Expr.ConstVal.DependsOnCompileVar || !call.Expr.ConstVal.Payload.Bool {
		t.Fatalf("expected a folded true compile_var const value, got %+v", call.Expr.ConstVal)
	}
}

// Scenario 8: add_with_overflow(i32, i32-max, 1, &out) types to bool and
// requires the fourth argument to be a *i32.
func TestAddWithOverflowIntrinsic(t *testing.T) {
	a, reg := newAnalyzer()
	sc := scope.New(nil, &ast.Node{Kind: ast.Root})
	i32 := reg.GetInt(true, 32)

	sc.DeclareVar(&scope.Variable{Name: "out", Type: i32, SrcArgIndex: -1, GenArgIndex: -1})
	outRef := &ast.Node{Kind: ast.AddressOfExpr, Children: []*ast.Node{{Kind: ast.Identifier, Data: "out"}}}

	typeNode := &ast.Node{Kind: ast.TypeLiteral, Data: i32}

	call := &ast.Node{Kind: ast.CallExpr, Children: []*ast.Node{
		{Kind: ast.Identifier, Data: "add_with_overflow"},
		typeNode,
		intLit(2147483647),
		intLit(1),
		outRef,
	}}
	got := a.Analyze(call, sc, nil, false)
	if got.Kind != types.Bool {
		t.Fatalf("expected bool result, got %s", got)
	}
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", a.Diags.Sorted())
	}
}

// SPEC_FULL.md §4.4: min_value(T)/max_value(T) fold immediately to the
// extremal value of an integer type purely from its bit width/signedness.
func TestMinMaxValueIntrinsic(t *testing.T) {
	a, reg := newAnalyzer()
	sc := scope.New(nil, &ast.Node{Kind: ast.Root})
	i8 := reg.GetInt(true, 8)
	typeNode := func() *ast.Node { return &ast.Node{Kind: ast.TypeLiteral, Data: i8} }

	maxCall := &ast.Node{Kind: ast.CallExpr, Children: []*ast.Node{
		{Kind: ast.Identifier, Data: "max_value"}, typeNode(),
	}}
	got := a.Analyze(maxCall, sc, nil, false)
	if got != i8 {
		t.Fatalf("expected i8, got %s", got)
	}
	if !maxCall.Expr.ConstVal.OK || maxCall.Expr.ConstVal.Payload.Num.UintVal != 127 {
		t.Fatalf("expected max_value(i8) = 127, got %+v", maxCall.Expr.ConstVal)
	}

	minCall := &ast.Node{Kind: ast.CallExpr, Children: []*ast.Node{
		{Kind: ast.Identifier, Data: "min_value"}, typeNode(),
	}}
	a.Analyze(minCall, sc, nil, false)
	if !minCall.Expr.ConstVal.OK || minCall.Expr.ConstVal.Payload.Num.UintVal != 128 || !minCall.Expr.ConstVal.Payload.Num.IsNegative {
		t.Fatalf("expected min_value(i8) = -128, got %+v", minCall.Expr.ConstVal)
	}
	if a.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", a.Diags.Sorted())
	}
}

// SPEC_FULL.md §4.4: member_count(T) folds to a struct/enum's field count.
func TestMemberCountIntrinsic(t *testing.T) {
	a, reg := newAnalyzer()
	sc := scope.New(nil, &ast.Node{Kind: ast.Root})
	st := types.NewStruct("Point")
	types.CompleteStruct(st, []types.Field{
		{Name: "x", Type: reg.GetInt(true, 32), SrcIdx: 0},
		{Name: "y", Type: reg.GetInt(true, 32), SrcIdx: 1},
	}, false)

	call := &ast.Node{Kind: ast.CallExpr, Children: []*ast.Node{
		{Kind: ast.Identifier, Data: "member_count"},
		{Kind: ast.TypeLiteral, Data: st},
	}}
	got := a.Analyze(call, sc, nil, false)
	if got.Kind != types.Int {
		t.Fatalf("expected usize result, got %s", got)
	}
	if !call.Expr.ConstVal.OK || call.Expr.ConstVal.Payload.Num.UintVal != 2 {
		t.Fatalf("expected member_count(Point) = 2, got %+v", call.Expr.ConstVal)
	}
}

// SPEC_FULL.md §4.4: typeof(expr) types to MetaType carrying expr's type.
func TestTypeofIntrinsic(t *testing.T) {
	a, _ := newAnalyzer()
	sc := scope.New(nil, &ast.Node{Kind: ast.Root})

	call := &ast.Node{Kind: ast.CallExpr, Children: []*ast.Node{
		{Kind: ast.Identifier, Data: "typeof"},
		intLit(7),
	}}
	got := a.Analyze(call, sc, nil, false)
	if got.Kind != types.MetaType {
		t.Fatalf("expected MetaType result, got %s", got)
	}
	if !call.Expr.ConstVal.OK || call.Expr.ConstVal.Payload.Type == nil || call.Expr.ConstVal.Payload.Type.Kind != types.NumLitInt {
		t.Fatalf("expected typeof(7) to carry NumLitInt, got %+v", call.Expr.ConstVal)
	}
}

// Cast-fold invariant (SPEC_FULL.md §8): the wrapped node's evaluated const
// value is the cast of the original's const value under the matching CastOp.
func TestImplicitCastFoldsConstValue(t *testing.T) {
	a, reg := newAnalyzer()
	sc := scope.New(nil, &ast.Node{Kind: ast.Root})

	lit := intLit(7)
	parent := &ast.Node{Kind: ast.ExprStmt, Children: []*ast.Node{lit}}
	lit.Parent, lit.ParentIndex = parent, 0

	f64 := reg.GetFloat(64)
	got := a.Analyze(lit, sc, f64, false)
	if got != f64 {
		t.Fatalf("expected f64, got %s", got)
	}
	wrapper := parent.Children[0]
	if wrapper.Expr.ConstVal.Payload.Num.Kind != ast.BigFloat || wrapper.Expr.ConstVal.Payload.Num.FloatVal != 7 {
		t.Fatalf("expected folded float constant 7, got %+v", wrapper.Expr.ConstVal.Payload.Num)
	}
}
