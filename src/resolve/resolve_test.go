package resolve

import (
	"testing"

	"novac/src/ast"
	"novac/src/diag"
	"novac/src/scope"
	"novac/src/sema"
	"novac/src/types"
)

func newResolver() (*Resolver, *sema.Analyzer, *scope.Scope) {
	reg := types.NewRegistry()
	an := &sema.Analyzer{Reg: reg, Diags: diag.NewBag()}
	r := New(reg, an.Diags, an, 32)
	sc := scope.New(nil, &ast.Node{Kind: ast.Root})
	return r, an, sc
}

func typeLit(name string) *ast.Node {
	return &ast.Node{Kind: ast.TypeLiteral, Data: name}
}

// A struct declaring a field of its own type directly (not behind a pointer)
// is an infinite-size cycle and must be rejected (SPEC_FULL.md §8 scenario
// 9). The in-progress struct's pre-allocated type is handed back to its own
// field, so resolveStruct's embedsDirectly check reports "struct has
// infinite size" rather than the generic "depends on itself" diagnostic.
func TestStructSelfEmbedCycleRejected(t *testing.T) {
	r, _, sc := newResolver()

	decl := &ast.Node{
		Kind: ast.StructDecl,
		Data: "Bad",
		Children: []*ast.Node{
			{Kind: ast.Field, Data: "self", Children: []*ast.Node{typeLit("Bad")}},
		},
	}
	root := &ast.Node{Kind: ast.Root, Children: []*ast.Node{decl}}
	r.Scan(root, sc)

	got := r.Resolve(decl)
	if got.Kind != types.Invalid {
		t.Fatalf("expected Invalid for a self-embedding struct, got %s", got)
	}
	if !r.Diags.HasErrors() {
		t.Fatal("expected a cycle diagnostic")
	}
}

// A struct field that is a pointer to its own type is a legal recursive type
// (the pointee need not be complete for the pointer to be sized), per
// SPEC_FULL.md §4.1's "interned types with back-refs".
func TestStructSelfPointerAllowed(t *testing.T) {
	r, _, sc := newResolver()

	ptrToSelf := &ast.Node{Kind: ast.PointerTypeLiteral, Data: false, Children: []*ast.Node{typeLit("Node")}}
	decl := &ast.Node{
		Kind: ast.StructDecl,
		Data: "Node",
		Children: []*ast.Node{
			{Kind: ast.Field, Data: "next", Children: []*ast.Node{ptrToSelf}},
		},
	}
	root := &ast.Node{Kind: ast.Root, Children: []*ast.Node{decl}}
	r.Scan(root, sc)

	got := r.Resolve(decl)
	if got.Kind != types.Struct {
		t.Fatalf("expected a valid Struct type, got %s", got)
	}
	if r.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", r.Diags.Sorted())
	}
	if got.Fields[0].Type.CanonicalType().Kind != types.Pointer {
		t.Fatalf("expected field 'next' to be a pointer, got %s", got.Fields[0].Type)
	}
}

// Two declarations that depend on each other through their initializers
// (A's initializer refers to B, B's refers to A) are cyclic and one of them
// resolves to Invalid with a self-dependency diagnostic, instead of an
// infinite resolve() recursion.
func TestMutualDeclCycleDetected(t *testing.T) {
	r, _, sc := newResolver()

	declA := &ast.Node{Kind: ast.VarDecl, Data: GlobalVarDeclData{Name: "a", IsConst: true}}
	declB := &ast.Node{Kind: ast.VarDecl, Data: GlobalVarDeclData{Name: "b", IsConst: true}}
	refB := &ast.Node{Kind: ast.Identifier, Data: "b"}
	refA := &ast.Node{Kind: ast.Identifier, Data: "a"}
	declA.Children = []*ast.Node{refB}
	declB.Children = []*ast.Node{refA}

	root := &ast.Node{Kind: ast.Root, Children: []*ast.Node{declA, declB}}
	r.Scan(root, sc)

	got := r.Resolve(declA)
	if got.Kind != types.Invalid {
		t.Fatalf("expected Invalid for a mutually-cyclic declaration, got %s", got)
	}
	if !r.Diags.HasErrors() {
		t.Fatal("expected a cycle diagnostic")
	}
}

// A function prototype resolves to a Fn type whose parameter/return types
// match its declared signature, and resolveFn registers a scope.FnEntry
// retrievable through FnEntryFor.
func TestResolveFnProto(t *testing.T) {
	r, _, sc := newResolver()

	proto := &ast.Node{
		Kind: ast.FnProto,
		Data: FnDeclData{Name: "add"},
		Children: []*ast.Node{
			{Kind: ast.ParamList, Children: []*ast.Node{
				{Kind: ast.Param, Data: ParamData{Name: "x"}, Children: []*ast.Node{typeLit("i32")}},
				{Kind: ast.Param, Data: ParamData{Name: "y"}, Children: []*ast.Node{typeLit("i32")}},
			}},
			typeLit("i32"),
		},
	}
	root := &ast.Node{Kind: ast.Root, Children: []*ast.Node{proto}}
	r.Scan(root, sc)

	got := r.Resolve(proto)
	if got.Kind != types.Fn {
		t.Fatalf("expected a Fn type, got %s", got)
	}
	if len(got.Params) != 2 || got.Params[0].Type.Kind != types.Int {
		t.Fatalf("expected two i32 params, got %+v", got.Params)
	}
	entry := r.FnEntryFor(proto)
	if entry == nil || entry.SymbolName != "add" {
		t.Fatalf("expected a registered FnEntry named %q, got %+v", "add", entry)
	}
}

// A global variable with no explicit type infers it from a constant
// initializer, and a non-constant initializer is rejected (SPEC_FULL.md
// §4.3 "Variable": "global storage has no runtime initialization step").
func TestResolveGlobalVarRequiresConstInit(t *testing.T) {
	r, _, sc := newResolver()

	lit := &ast.Node{Kind: ast.IntLiteral, Data: ast.BigNum{Kind: ast.BigInt, UintVal: 42}}
	decl := &ast.Node{Kind: ast.VarDecl, Data: GlobalVarDeclData{Name: "x", IsConst: true}, Children: []*ast.Node{lit}}
	root := &ast.Node{Kind: ast.Root, Children: []*ast.Node{decl}}
	r.Scan(root, sc)

	got := r.Resolve(decl)
	if got.Kind != types.NumLitInt {
		t.Fatalf("expected the inferred num-lit-int type, got %s", got)
	}
	if r.Diags.HasErrors() {
		t.Fatalf("unexpected errors: %v", r.Diags.Sorted())
	}

	// An initializer naming a runtime variable is not constant.
	sc.DeclareVar(&scope.Variable{Name: "v", Type: r.Reg.GetInt(true, 32), SrcArgIndex: -1, GenArgIndex: -1})
	declY := &ast.Node{Kind: ast.VarDecl, Data: GlobalVarDeclData{Name: "y", IsConst: true}, Children: []*ast.Node{{Kind: ast.Identifier, Data: "v"}}}
	r.Scan(&ast.Node{Kind: ast.Root, Children: []*ast.Node{declY}}, sc)
	if got := r.Resolve(declY); got.Kind != types.Invalid {
		t.Fatalf("expected Invalid for a non-constant initializer, got %s", got)
	}
	if !r.Diags.HasErrors() {
		t.Fatal("expected a constant-initializer diagnostic")
	}
}

// Successive error-value declarations get monotonically increasing,
// deduplicated-by-name tags (SPEC_FULL.md §3 "Error-value entry").
func TestErrorValueAllocation(t *testing.T) {
	r, _, sc := newResolver()

	declOOM := &ast.Node{Kind: ast.ErrorValueDecl, Data: "OutOfMemory"}
	declBad := &ast.Node{Kind: ast.ErrorValueDecl, Data: "BadInput"}
	root := &ast.Node{Kind: ast.Root, Children: []*ast.Node{declOOM, declBad}}
	r.Scan(root, sc)

	r.Resolve(declOOM)
	r.Resolve(declBad)

	// The same error name declared again from a second file (its own, distinct
	// scope) dedups against the shared global error-value table instead of
	// allocating a second tag.
	sc2 := scope.New(nil, &ast.Node{Kind: ast.Root})
	declDup := &ast.Node{Kind: ast.ErrorValueDecl, Data: "OutOfMemory"}
	root2 := &ast.Node{Kind: ast.Root, Children: []*ast.Node{declDup}}
	r.Scan(root2, sc2)
	if got := r.Resolve(declDup); got.Kind != types.PureError {
		t.Fatalf("expected PureError for a re-declared error value, got %s", got)
	}

	oom, _ := r.ErrorValueByName("OutOfMemory")
	bad, _ := r.ErrorValueByName("BadInput")
	if oom.Value != 0 || bad.Value != 1 {
		t.Fatalf("expected monotonic tags 0,1; got %d,%d", oom.Value, bad.Value)
	}
	if r.ErrTagType().Kind != types.Int {
		t.Fatalf("expected an integer err tag type, got %s", r.ErrTagType())
	}
}
