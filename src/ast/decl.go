package ast

import "novac/src/types"

// ResolutionState tracks where a top-level declaration is in the Declaration
// Resolver's on-demand resolve() state machine (SPEC_FULL.md §4.3).
type ResolutionState int

const (
	Unresolved ResolutionState = iota
	InProgress
	Ok
	Invalid
)

func (s ResolutionState) String() string {
	switch s {
	case Unresolved:
		return "unresolved"
	case InProgress:
		return "in-progress"
	case Ok:
		return "ok"
	case Invalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Decl is the resolver-facing decoration attached to every top-level
// declaration node (FnProto, FnDef, VarDecl, TypeDecl, StructDecl, EnumDecl,
// ErrorValueDecl, UseDecl). It deliberately holds no reference to the scope
// graph or LLVM values — those live in side tables owned by the resolver and
// IR emitter respectively, keyed by *Node, so this package stays free of
// cycles with scope/codegen.
type Decl struct {
	Name  string
	State ResolutionState
	Type  *types.Type // Resolved type of the declaration, once State == Ok.

	// DependsOn records the declaration currently being resolved when this
	// decl was re-entered with State == InProgress, for the "X depends on
	// itself" diagnostic's note chain.
	DependsOn *Node
}
