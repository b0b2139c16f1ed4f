package sema

import (
	"novac/src/ast"
	"novac/src/types"
)

// CastOp enumerates the explicit-cast operators of SPEC_FULL.md §4.4;
// resolveCastOp tries them in the precedence order given there: "type-match (Noop) → bool→int →
// ptr↔uint → same-kind widen/shorten → int↔float → array-to-slice →
// pointer-to-pointer (including maybe-of-pointer) → wrap into
// Maybe/ErrorUnion → pure-error to error union → num-lit coercion →
// void-error/pure-error to integer tag (bounds-checked)."
type CastOp int

const (
	CastNoop CastOp = iota
	CastWidenOrShorten
	CastBoolToInt
	CastPtrToInt
	CastIntToPtr
	CastIntToFloat
	CastFloatToInt
	CastPointerReinterpret
	CastToUnknownSizeArray
	CastMaybeWrap
	CastErrorWrap
	CastPureErrorWrap
	CastErrToInt
)

// resolveCastOp picks exactly one CastOp for casting a value of type from to
// type to, following the precedence order of SPEC_FULL.md §4.4. Returns
// (op, true) on success, or (_, false) if no cast is legal — the caller
// reports the diagnostic with the call-site span, since this function
// cannot see where the cast expression lives in the tree.
func resolveCastOp(reg *types.Registry, from, to *types.Type) (CastOp, bool) {
	if from == to {
		return CastNoop, true
	}
	if from.Kind == types.Invalid || to.Kind == types.Invalid {
		return CastNoop, false
	}

	// bool -> int.
	if from.Kind == types.Bool && to.Kind == types.Int {
		return CastBoolToInt, true
	}

	// ptr <-> uint (explicit only; never part of the implicit lattice).
	if from.Kind == types.Pointer && to.Kind == types.Int && !to.Signed {
		return CastPtrToInt, true
	}
	if from.Kind == types.Int && !from.Signed && to.Kind == types.Pointer {
		return CastIntToPtr, true
	}

	// Same-kind widen/shorten.
	if from.Kind == types.Int && to.Kind == types.Int && from.Signed == to.Signed {
		return CastWidenOrShorten, true
	}
	if from.Kind == types.Float && to.Kind == types.Float {
		return CastWidenOrShorten, true
	}

	// int <-> float.
	if from.Kind == types.Int && to.Kind == types.Float {
		return CastIntToFloat, true
	}
	if from.Kind == types.Float && to.Kind == types.Int {
		return CastFloatToInt, true
	}

	// array -> slice.
	if from.Kind == types.Array && to.Kind == types.Slice && typesAssignable(from.Child, to.Child) {
		return CastToUnknownSizeArray, true
	}

	// pointer -> pointer, including maybe-of-pointer reinterpretation.
	if from.Kind == types.Pointer && to.Kind == types.Pointer {
		return CastPointerReinterpret, true
	}
	if from.Kind == types.Pointer && to.Kind == types.Maybe && types.CollapsesToNullablePointer(to.Child) {
		return CastPointerReinterpret, true
	}

	// wrap into Maybe / ErrorUnion.
	if to.Kind == types.Maybe && (from == to.Child || canImplicitCast(reg, from, to.Child)) {
		return CastMaybeWrap, true
	}
	if to.Kind == types.ErrorUnion && (from == to.Child || canImplicitCast(reg, from, to.Child)) {
		return CastErrorWrap, true
	}

	// pure error -> error union.
	if from.Kind == types.PureError && to.Kind == types.ErrorUnion {
		return CastPureErrorWrap, true
	}

	// numeric-literal coercion (handled earlier for the implicit lattice, but
	// an explicit cast also accepts it directly). A NumLitInt settling into a
	// Float target needs its payload actually converted, not just
	// relabeled, so it picks CastIntToFloat rather than CastWidenOrShorten.
	if from.Kind == types.NumLitInt && to.Kind == types.Float {
		return CastIntToFloat, true
	}
	if (from.Kind == types.NumLitInt || from.Kind == types.NumLitFloat) && (to.Kind == types.Int || to.Kind == types.Float) {
		return CastWidenOrShorten, true
	}

	// void-error/pure-error -> integer tag, bounds-checked by the caller
	// against the live error-value count.
	if (from.Kind == types.PureError || (from.Kind == types.ErrorUnion && from.Child.ZeroBits())) && to.Kind == types.Int {
		return CastErrToInt, true
	}

	return CastNoop, false
}

// typesAssignable is array->slice's element-compatibility check: the child
// types must be identical; no const-qualification widening is applied.
func typesAssignable(elem, sliceElem *types.Type) bool {
	return elem == sliceElem
}

// applyCastToConst transforms a constant's payload for the given CastOp,
// implementing SPEC_FULL.md §4.5: "implicit-cast operators pattern-match on
// CastOp and transform the payload (e.g., ToUnknownSizeArray builds a
// {ptr:array-fields, len:N} pair; MaybeWrap sets x_maybe=inner; ErrorWrap
// sets x_err={err:none, payload:inner})".
func applyCastToConst(op CastOp, in ast.ConstVal, toType *types.Type) ast.ConstVal {
	if !in.OK {
		return in
	}
	out := in
	switch op {
	case CastMaybeWrap:
		v := in
		out = ast.ConstVal{OK: true, DependsOnCompileVar: in.DependsOnCompileVar, Payload: ast.ConstPayload{
			Kind: ast.PayloadMaybe, Maybe: &v,
		}}
	case CastErrorWrap:
		v := in
		out = ast.ConstVal{OK: true, DependsOnCompileVar: in.DependsOnCompileVar, Payload: ast.ConstPayload{
			Kind: ast.PayloadErr, Err: ast.ErrPayload{Err: 0, Payload: &v},
		}}
	case CastPureErrorWrap:
		out = in // Tag value carries over unchanged; only the static type changes.
	case CastToUnknownSizeArray:
		if in.Payload.Kind == ast.PayloadArray {
			out = ast.ConstVal{OK: true, DependsOnCompileVar: in.DependsOnCompileVar, Payload: ast.ConstPayload{
				Kind: ast.PayloadPtr,
				Ptr:  ast.PtrPayload{Elems: in.Payload.Array, Len: uint64(len(in.Payload.Array))},
			}}
		}
	case CastBoolToInt:
		n := uint64(0)
		if in.Payload.Bool {
			n = 1
		}
		out = ast.ConstVal{OK: true, DependsOnCompileVar: in.DependsOnCompileVar, Payload: ast.ConstPayload{
			Kind: ast.PayloadBigNum, Num: ast.BigNum{Kind: ast.BigInt, UintVal: n},
		}}
	case CastIntToFloat:
		out = ast.ConstVal{OK: true, DependsOnCompileVar: in.DependsOnCompileVar, Payload: ast.ConstPayload{
			Kind: ast.PayloadBigNum,
			Num:  ast.BigNum{Kind: ast.BigFloat, FloatVal: bigNumToFloat(in.Payload.Num), IsNegative: in.Payload.Num.IsNegative},
		}}
	case CastFloatToInt:
		out = ast.ConstVal{OK: true, DependsOnCompileVar: in.DependsOnCompileVar, Payload: ast.ConstPayload{
			Kind: ast.PayloadBigNum,
			Num:  ast.BigNum{Kind: ast.BigInt, UintVal: uint64(in.Payload.Num.FloatVal)},
		}}
	case CastErrToInt:
		tag := uint64(0)
		if in.Payload.Kind == ast.PayloadErr {
			tag = in.Payload.Err.Err
		}
		out = ast.ConstVal{OK: true, DependsOnCompileVar: in.DependsOnCompileVar, Payload: ast.ConstPayload{
			Kind: ast.PayloadBigNum, Num: ast.BigNum{Kind: ast.BigInt, UintVal: tag},
		}}
	default:
		// Noop / WidenOrShorten / PtrToInt / IntToPtr / PointerReinterpret carry
		// the same logical value forward unchanged at the constant level.
	}
	return out
}

func bigNumToFloat(n ast.BigNum) float64 {
	if n.Kind == ast.BigFloat {
		return n.FloatVal
	}
	f := float64(n.UintVal)
	if n.IsNegative {
		f = -f
	}
	return f
}
