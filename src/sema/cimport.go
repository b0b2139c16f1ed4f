package sema

import (
	"novac/src/ast"
	"novac/src/scope"
	"novac/src/types"
)

// cImportDirectives enumerates the call-expressions a c_import(...) block
// may contain. c_include is the only one this core actually implements —
// the header it names is read and translated by the external C-header
// importer (SPEC_FULL.md §6), a black-box collaborator this package never
// calls directly. c_define/c_undef are recognized only so they can be
// rejected with a clear diagnostic rather than falling through to the
// generic "internal: sema cannot analyze" error.
var cImportDirectives = map[string]bool{
	"c_include": true,
	"c_define":  true,
	"c_undef":   true,
}

// analyzeCImportExpr types a c_import(|| { ... }) block (SPEC_FULL.md §5
// item 6): Children is a flat list of CallExpr nodes, each naming one of
// cImportDirectives. c_include("header.h") is accepted and its header path
// is appended to the include list stored in node.Data; c_define
// and c_undef are rejected outright, matching the "specified out" decision
// spec.md §9 leaves open (DESIGN.md records the choice). The block as a
// whole types as a Namespace constant so a use-decl can bind the (stubbed,
// externally-populated) set of declarations the header importer produces.
func (a *Analyzer) analyzeCImportExpr(node *ast.Node, sc *scope.Scope) *types.Type {
	var includes []string
	for _, child := range node.Children {
		if child.Kind != ast.CallExpr || len(child.Children) == 0 {
			a.Diags.Errorf(child.Span, "c_import block may only contain c_include/c_define/c_undef calls")
			continue
		}
		callee := child.Children[0]
		name, _ := callee.Data.(string)
		if callee.Kind != ast.Identifier || !cImportDirectives[name] {
			a.Diags.Errorf(child.Span, "c_import block may only contain c_include/c_define/c_undef calls")
			continue
		}
		switch name {
		case "c_define", "c_undef":
			a.Diags.Errorf(child.Span, "c_define/c_undef are not supported; use c_include only")
		case "c_include":
			args := child.Children[1:]
			if len(args) != 1 || args[0].Kind != ast.StringLiteral {
				a.Diags.Errorf(child.Span, "c_include expects a single string literal header path")
				continue
			}
			path, _ := args[0].Data.(string)
			includes = append(includes, path)
		}
	}

	imp := &ast.Import{CImportNode: node}
	if node.Span.File != nil {
		imp.Package = node.Span.File.Package
	}
	node.Data = includes
	node.Expr = &ast.Expr{
		ConstVal:     ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadImport, Import: imp}},
		BlockContext: sc,
	}
	return a.Reg.Namespace()
}
