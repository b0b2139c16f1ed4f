package scope

import (
	"testing"

	"novac/src/ast"
)

func TestLookupWalksAncestors(t *testing.T) {
	root := New(nil, &ast.Node{Kind: ast.Root})
	child := New(root, &ast.Node{Kind: ast.Block})

	v := &Variable{Name: "x"}
	if _, redef := root.DeclareVar(v); redef {
		t.Fatal("unexpected redefinition")
	}

	got, foundScope := child.LookupVar("x")
	if got != v {
		t.Fatalf("expected to find x declared in ancestor scope, got %v", got)
	}
	if foundScope != root {
		t.Fatal("LookupVar should report the scope owning the declaration")
	}
}

func TestDeclareVarRejectsDuplicate(t *testing.T) {
	s := New(nil, &ast.Node{Kind: ast.Block})
	s.DeclareVar(&Variable{Name: "y"})
	_, redef := s.DeclareVar(&Variable{Name: "y"})
	if !redef {
		t.Fatal("expected duplicate declaration to be rejected")
	}
}

func TestChildDoesNotLeakToParent(t *testing.T) {
	root := New(nil, &ast.Node{Kind: ast.Root})
	child := New(root, &ast.Node{Kind: ast.Block})
	child.DeclareVar(&Variable{Name: "z"})

	if _, _, found := root.Lookup("z"); found {
		t.Fatal("child-scope variable must not be visible from parent")
	}
}
