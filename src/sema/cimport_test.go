package sema

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"novac/src/ast"
	"novac/src/scope"
)

func callExpr(calleeName string, args ...*ast.Node) *ast.Node {
	callee := &ast.Node{Kind: ast.Identifier, Data: calleeName}
	return &ast.Node{Kind: ast.CallExpr, Children: append([]*ast.Node{callee}, args...)}
}

func strLit(s string) *ast.Node {
	return &ast.Node{Kind: ast.StringLiteral, Data: s}
}

// c_include(...) types the whole block as a Namespace constant carrying a
// synthesized Import (SPEC_FULL.md §5 item 6).
func TestCImportAcceptsCInclude(t *testing.T) {
	a, reg := newAnalyzer()
	sc := scope.New(nil, &ast.Node{Kind: ast.Root})

	node := &ast.Node{
		Kind:     ast.CImportExpr,
		Children: []*ast.Node{callExpr("c_include", strLit("stdio.h"))},
	}

	got := a.analyzeCImportExpr(node, sc)
	assert.Equal(t, reg.Namespace(), got)
	assert.False(t, a.Diags.HasErrors())

	assert.True(t, node.Expr.ConstVal.OK)
	assert.Equal(t, ast.PayloadImport, node.Expr.ConstVal.Payload.Kind)
	imp, ok := node.Expr.ConstVal.Payload.Import.(*ast.Import)
	assert.True(t, ok)
	assert.Same(t, node, imp.CImportNode)
	assert.Equal(t, []string{"stdio.h"}, node.Data)
}

// c_define/c_undef are rejected outright; the "specified out" decision
// DESIGN.md records for SPEC_FULL.md §5 item 6.
func TestCImportRejectsCDefineAndCUndef(t *testing.T) {
	a, _ := newAnalyzer()
	sc := scope.New(nil, &ast.Node{Kind: ast.Root})

	node := &ast.Node{
		Kind: ast.CImportExpr,
		Children: []*ast.Node{
			callExpr("c_define", strLit("FOO"), strLit("1")),
			callExpr("c_undef", strLit("FOO")),
		},
	}

	a.analyzeCImportExpr(node, sc)
	assert.True(t, a.Diags.HasErrors())
	assert.Len(t, a.Diags.Sorted(), 2)
}

func TestCImportRejectsMalformedIncludeArgs(t *testing.T) {
	a, _ := newAnalyzer()
	sc := scope.New(nil, &ast.Node{Kind: ast.Root})

	node := &ast.Node{
		Kind:     ast.CImportExpr,
		Children: []*ast.Node{callExpr("c_include", strLit("a.h"), strLit("b.h"))},
	}

	a.analyzeCImportExpr(node, sc)
	assert.True(t, a.Diags.HasErrors())
}
