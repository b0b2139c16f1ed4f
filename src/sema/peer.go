package sema

import "novac/src/types"

// ResolvePeerTypes implements SPEC_FULL.md §4.4's peer type resolution: given
// the types of N expressions that must share one static type (binary
// operands, array-literal elements, if/else branches, switch prongs), pick
// the single type every operand can implicitly cast to, preferring the
// widest concrete type over the deferred NumLitInt/NumLitFloat kinds, and
// preferring ErrorUnion{X} over bare X when both views appear (SPEC_FULL.md
// §4.4: "through ErrorUnion{X} vs X (prefer ErrorUnion)").
func ResolvePeerTypes(reg *types.Registry, ts []*types.Type) *types.Type {
	if len(ts) == 0 {
		return reg.Invalid()
	}
	best := ts[0]
	for _, t := range ts[1:] {
		if t == best {
			continue
		}
		merged, ok := peerMerge(reg, best, t)
		if !ok {
			return reg.Invalid()
		}
		best = merged
	}
	return best
}

// peerMerge resolves two candidate types to a single peer type, or reports
// failure. Order-independent: peerMerge(a,b) and peerMerge(b,a) agree.
func peerMerge(reg *types.Registry, a, b *types.Type) (*types.Type, bool) {
	if a == b {
		return a, true
	}
	if a.Kind == types.Invalid || b.Kind == types.Invalid {
		return reg.Invalid(), false
	}

	// A deferred numeric literal always yields to a concrete peer.
	if isNumLit(a) && !isNumLit(b) {
		if numLitFitsInOtherType(a, b) {
			return b, true
		}
		return nil, false
	}
	if isNumLit(b) && !isNumLit(a) {
		return peerMerge(reg, b, a)
	}
	if isNumLit(a) && isNumLit(b) {
		if a.Kind == types.NumLitFloat || b.Kind == types.NumLitFloat {
			return reg.NumLitFloat(), true
		}
		return reg.NumLitInt(), true
	}

	// ErrorUnion{X} vs X: prefer the ErrorUnion view (SPEC_FULL.md §4.4).
	if a.Kind == types.ErrorUnion && (a.Child == b || canImplicitCast(reg, b, a.Child)) {
		return a, true
	}
	if b.Kind == types.ErrorUnion && (b.Child == a || canImplicitCast(reg, a, b.Child)) {
		return b, true
	}

	// Maybe{X} vs X: prefer the Maybe view, symmetric with the ErrorUnion
	// case above.
	if a.Kind == types.Maybe && (a.Child == b || canImplicitCast(reg, b, a.Child)) {
		return a, true
	}
	if b.Kind == types.Maybe && (b.Child == a || canImplicitCast(reg, a, b.Child)) {
		return b, true
	}

	if a.Kind == types.Int && b.Kind == types.Int && a.Signed == b.Signed {
		if a.Bits >= b.Bits {
			return a, true
		}
		return b, true
	}
	if a.Kind == types.Float && b.Kind == types.Float {
		if a.Bits >= b.Bits {
			return a, true
		}
		return b, true
	}

	if canImplicitCast(reg, a, b) {
		return b, true
	}
	if canImplicitCast(reg, b, a) {
		return a, true
	}
	return nil, false
}

func isNumLit(t *types.Type) bool {
	return t.Kind == types.NumLitInt || t.Kind == types.NumLitFloat
}
