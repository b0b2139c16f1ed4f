package sema

import (
	"novac/src/ast"
	"novac/src/scope"
	"novac/src/types"
)

// analyzeBinaryExpr types a binary operator expression. Operands are first
// analyzed independently, then resolved to one peer type (SPEC_FULL.md
// §4.4), each operand coerced to it, and finally folded through
// const_eval.go when both sides are constant.
func (a *Analyzer) analyzeBinaryExpr(node *ast.Node, sc *scope.Scope) *types.Type {
	op, _ := node.Data.(string)
	lhs, rhs := node.Children[0], node.Children[1]
	a.Analyze(lhs, sc, nil, false)
	a.Analyze(rhs, sc, nil, false)

	if op == "&&" || op == "||" {
		_, lhsN := a.coerceNode(lhs, sc, a.Reg.Bool())
		_, rhsN := a.coerceNode(rhs, sc, a.Reg.Bool())
		return a.foldBinaryConst(node, sc, op, lhsN, rhsN, a.Reg.Bool())
	}

	peer := ResolvePeerTypes(a.Reg, []*types.Type{lhs.Expr.Type, rhs.Expr.Type})
	if peer.Kind == types.Invalid {
		a.Diags.Errorf(node.Span, "mismatched operand types %q and %q for operator %q", lhs.Expr.Type, rhs.Expr.Type, op)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
	_, lhsN := a.coerceNode(lhs, sc, peer)
	_, rhsN := a.coerceNode(rhs, sc, peer)

	resultType := peer
	if isComparisonOp(op) {
		resultType = a.Reg.Bool()
	}
	return a.foldBinaryConst(node, sc, op, lhsN, rhsN, resultType)
}

func (a *Analyzer) foldBinaryConst(node *ast.Node, sc *scope.Scope, op string, lhs, rhs *ast.Node, resultType *types.Type) *types.Type {
	cv, err := evalBinaryConst(op, lhs.Expr.ConstVal, rhs.Expr.ConstVal, resultType.CanonicalType().Kind)
	if err != nil {
		a.Diags.Errorf(node.Span, "%s", err.Error())
	}
	node.Expr = &ast.Expr{ConstVal: cv, BlockContext: sc}
	return resultType
}

// analyzeUnaryExpr types prefix/postfix operators: numeric/bitwise negation
// (-, ~) and logical negation (!). Any other operator, including
// increment/decrement, is reported as unsupported.
func (a *Analyzer) analyzeUnaryExpr(node *ast.Node, sc *scope.Scope) *types.Type {
	op, _ := node.Data.(string)
	operand := node.Children[0]
	t := a.Analyze(operand, sc, nil, false)

	switch op {
	case "!":
		_, opN := a.coerceNode(operand, sc, a.Reg.Bool())
		cv, err := evalUnaryConst(op, opN.Expr.ConstVal)
		if err != nil {
			a.Diags.Errorf(node.Span, "%s", err.Error())
		}
		node.Expr = &ast.Expr{ConstVal: cv, BlockContext: sc}
		return a.Reg.Bool()
	case "-", "~":
		c := t.CanonicalType()
		if c.Kind != types.Int && c.Kind != types.Float && c.Kind != types.NumLitInt && c.Kind != types.NumLitFloat {
			a.Diags.Errorf(node.Span, "operator %q requires a numeric operand, got %q", op, t)
			node.Expr = &ast.Expr{}
			return a.Reg.Invalid()
		}
		cv, err := evalUnaryConst(op, operand.Expr.ConstVal)
		if err != nil {
			a.Diags.Errorf(node.Span, "%s", err.Error())
		}
		node.Expr = &ast.Expr{ConstVal: cv, BlockContext: sc}
		return t
	default:
		a.Diags.Errorf(node.Span, "unsupported unary operator %q", op)
		node.Expr = &ast.Expr{}
		return a.Reg.Invalid()
	}
}
