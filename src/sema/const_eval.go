// const_eval.go implements the Constant-Expression Evaluator
// (SPEC_FULL.md §4.5): arithmetic, comparisons, bool logic, container
// literals, casts, compile-var queries and string concatenation over the
// const sub-language, invoked inline from the Expression Analyzer.
package sema

import (
	"fmt"
	"math"

	"novac/src/ast"
	"novac/src/types"
)

// evalBinaryConst folds a binary operator over two constant operands,
// implementing the arithmetic/comparison/bool-logic/string-concat rules of
// SPEC_FULL.md §4.4/§4.5. resultKind is the static Kind of the binary
// expression's result type (Int, Float, or Bool for comparisons), used to
// pick integer-vs-float arithmetic. Division by zero is reported through
// err rather than silently producing Invalid, per SPEC_FULL.md §7's
// "Constant-overflow / division-by-zero" row.
func evalBinaryConst(op string, a, b ast.ConstVal, resultKind types.Kind) (ast.ConstVal, error) {
	if !a.OK || !b.OK {
		return ast.ConstVal{}, nil
	}
	dep := a.DependsOnCompileVar || b.DependsOnCompileVar

	// String concatenation: SPEC_FULL.md §4.4 "string concatenation requires
	// both operands be constant slices of u8 and produces a new constant
	// slice."
	if op == "++" {
		if a.Payload.Kind != ast.PayloadPtr || b.Payload.Kind != ast.PayloadPtr {
			return ast.ConstVal{}, fmt.Errorf("'++' requires both operands to be constant u8 slices")
		}
		elems := append(append([]*ast.ConstVal(nil), a.Payload.Ptr.Elems...), b.Payload.Ptr.Elems...)
		return ast.ConstVal{OK: true, DependsOnCompileVar: dep, Payload: ast.ConstPayload{
			Kind: ast.PayloadPtr,
			Ptr:  ast.PtrPayload{Elems: elems, Len: uint64(len(elems))},
		}}, nil
	}

	if isComparisonOp(op) {
		r, err := compareConst(op, a, b)
		if err != nil {
			return ast.ConstVal{}, err
		}
		return ast.ConstVal{OK: true, DependsOnCompileVar: dep, Payload: ast.ConstPayload{Kind: ast.PayloadBool, Bool: r}}, nil
	}

	if op == "&&" || op == "||" {
		if a.Payload.Kind != ast.PayloadBool || b.Payload.Kind != ast.PayloadBool {
			return ast.ConstVal{}, fmt.Errorf("operator %q requires bool operands", op)
		}
		var r bool
		if op == "&&" {
			r = a.Payload.Bool && b.Payload.Bool
		} else {
			r = a.Payload.Bool || b.Payload.Bool
		}
		return ast.ConstVal{OK: true, DependsOnCompileVar: dep, Payload: ast.ConstPayload{Kind: ast.PayloadBool, Bool: r}}, nil
	}

	if resultKind == types.Float || a.Payload.Num.Kind == ast.BigFloat || b.Payload.Num.Kind == ast.BigFloat {
		fa, fb := bigNumToFloat(a.Payload.Num), bigNumToFloat(b.Payload.Num)
		f, err := arithFloat(op, fa, fb)
		if err != nil {
			return ast.ConstVal{}, err
		}
		return ast.ConstVal{OK: true, DependsOnCompileVar: dep, Payload: ast.ConstPayload{
			Kind: ast.PayloadBigNum, Num: ast.BigNum{Kind: ast.BigFloat, FloatVal: f},
		}}, nil
	}

	ia, ib := signedValue(a.Payload.Num), signedValue(b.Payload.Num)
	r, err := arithInt(op, ia, ib)
	if err != nil {
		return ast.ConstVal{}, err
	}
	return ast.ConstVal{OK: true, DependsOnCompileVar: dep, Payload: ast.ConstPayload{
		Kind: ast.PayloadBigNum, Num: fromSignedValue(r),
	}}, nil
}

func isComparisonOp(op string) bool {
	switch op {
	case "=", "==", "!=", "<", ">", "<=", ">=":
		return true
	default:
		return false
	}
}

func compareConst(op string, a, b ast.ConstVal) (bool, error) {
	if a.Payload.Kind == ast.PayloadBigNum && a.Payload.Num.Kind == ast.BigFloat ||
		b.Payload.Kind == ast.PayloadBigNum && b.Payload.Num.Kind == ast.BigFloat {
		fa, fb := bigNumToFloat(a.Payload.Num), bigNumToFloat(b.Payload.Num)
		return compareOrdered(op, fa, fb)
	}
	ia, ib := signedValue(a.Payload.Num), signedValue(b.Payload.Num)
	return compareOrdered(op, float64(ia), float64(ib))
}

func compareOrdered(op string, a, b float64) (bool, error) {
	switch op {
	case "=", "==":
		return a == b, nil
	case "!=":
		return a != b, nil
	case "<":
		return a < b, nil
	case ">":
		return a > b, nil
	case "<=":
		return a <= b, nil
	case ">=":
		return a >= b, nil
	default:
		return false, fmt.Errorf("unsupported comparison operator %q", op)
	}
}

// arithFloat evaluates SPEC_FULL.md §4.4's "modulo on floats uses remainder
// semantics" and the standard arithmetic ops.
func arithFloat(op string, a, b float64) (float64, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, fmt.Errorf("division by zero in constant expression")
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return 0, fmt.Errorf("division by zero in constant expression")
		}
		return math.Mod(a, b), nil
	default:
		return 0, fmt.Errorf("operator %q not defined for float constants", op)
	}
}

// arithInt evaluates integer arithmetic plus the shift/bitwise operators
// (SPEC_FULL.md §4.4: "shift operations require int operands").
func arithInt(op string, a, b int64) (int64, error) {
	switch op {
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/":
		if b == 0 {
			return 0, fmt.Errorf("division by zero in constant expression")
		}
		return a / b, nil
	case "%":
		if b == 0 {
			return 0, fmt.Errorf("division by zero in constant expression")
		}
		return a % b, nil
	case "<<":
		return a << uint(b), nil
	case ">>":
		return a >> uint(b), nil
	case "|":
		return a | b, nil
	case "&":
		return a & b, nil
	case "^":
		return a ^ b, nil
	default:
		return 0, fmt.Errorf("operator %q not defined for integer constants", op)
	}
}

func signedValue(n ast.BigNum) int64 {
	if n.Kind == ast.BigFloat {
		return int64(n.FloatVal)
	}
	v := int64(n.UintVal)
	if n.IsNegative {
		v = -v
	}
	return v
}

func fromSignedValue(v int64) ast.BigNum {
	if v < 0 {
		return ast.BigNum{Kind: ast.BigInt, UintVal: uint64(-v), IsNegative: true}
	}
	return ast.BigNum{Kind: ast.BigInt, UintVal: uint64(v)}
}

// evalUnaryConst folds a unary operator over a constant operand.
func evalUnaryConst(op string, a ast.ConstVal) (ast.ConstVal, error) {
	if !a.OK {
		return ast.ConstVal{}, nil
	}
	switch op {
	case "-":
		if a.Payload.Num.Kind == ast.BigFloat {
			return ast.ConstVal{OK: true, DependsOnCompileVar: a.DependsOnCompileVar, Payload: ast.ConstPayload{
				Kind: ast.PayloadBigNum, Num: ast.BigNum{Kind: ast.BigFloat, FloatVal: -a.Payload.Num.FloatVal},
			}}, nil
		}
		n := a.Payload.Num
		n.IsNegative = !n.IsNegative
		return ast.ConstVal{OK: true, DependsOnCompileVar: a.DependsOnCompileVar, Payload: ast.ConstPayload{Kind: ast.PayloadBigNum, Num: n}}, nil
	case "!":
		return ast.ConstVal{OK: true, DependsOnCompileVar: a.DependsOnCompileVar, Payload: ast.ConstPayload{
			Kind: ast.PayloadBool, Bool: !a.Payload.Bool,
		}}, nil
	case "~":
		return ast.ConstVal{OK: true, DependsOnCompileVar: a.DependsOnCompileVar, Payload: ast.ConstPayload{
			Kind: ast.PayloadBigNum, Num: fromSignedValue(^signedValue(a.Payload.Num)),
		}}, nil
	default:
		return ast.ConstVal{}, fmt.Errorf("unary operator %q not defined for constants", op)
	}
}

// compileVarValue resolves one of the compile_var("...") keys of
// SPEC_FULL.md §4.4/§5 item 7 against the active CompileVars, returning a
// const value with DependsOnCompileVar set (SPEC_FULL.md Glossary
// "Depends-on-compile-var").
func compileVarValue(cv CompileVars, key string) (ast.ConstVal, error) {
	mk := func(b bool) ast.ConstVal {
		return ast.ConstVal{OK: true, DependsOnCompileVar: true, Payload: ast.ConstPayload{Kind: ast.PayloadBool, Bool: b}}
	}
	mkStr := func(s string) ast.ConstVal {
		elems := make([]*ast.ConstVal, len(s))
		for i, c := range []byte(s) {
			v := ast.ConstVal{OK: true, Payload: ast.ConstPayload{Kind: ast.PayloadBigNum, Num: ast.BigNum{Kind: ast.BigInt, UintVal: uint64(c)}}}
			elems[i] = &v
		}
		return ast.ConstVal{OK: true, DependsOnCompileVar: true, Payload: ast.ConstPayload{
			Kind: ast.PayloadPtr, Ptr: ast.PtrPayload{Elems: elems, Len: uint64(len(elems))},
		}}
	}
	switch key {
	case "is_big_endian":
		return mk(cv.IsBigEndian), nil
	case "is_release":
		return mk(cv.IsRelease), nil
	case "is_test":
		return mk(cv.IsTest), nil
	case "is_single_threaded":
		return mk(cv.IsSingleThreaded), nil
	case "os":
		return mkStr(cv.OS), nil
	case "arch":
		return mkStr(cv.Arch), nil
	case "environ":
		return mkStr(cv.Environ), nil
	default:
		return ast.ConstVal{}, fmt.Errorf("unknown compile_var key %q", key)
	}
}

// CompileVars is the compile-variable surface of SPEC_FULL.md §4.4/§5 item
// 7, threaded into the Analyzer so compile_var(...) folds against real
// driver-selected values instead of hardcoded constants.
type CompileVars struct {
	IsBigEndian      bool
	IsRelease        bool
	IsTest           bool
	IsSingleThreaded bool
	OS               string
	Arch             string
	Environ          string
}
