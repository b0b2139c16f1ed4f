package ast

import "novac/src/types"

// ReturnKnowledge classifies what a return expression is known to carry at
// analysis time (SPEC_FULL.md §9 "Defer and return-knowledge"), used by the
// IR Emitter's defer-unwinder to decide which defer bodies must run.
type ReturnKnowledge int

const (
	RKSkip ReturnKnowledge = iota
	RKUnknown
	RKKnownError
	RKKnownNonError
	RKKnownNull
	RKKnownNonNull
	RKKnownUnconditional
)

// BigNumKind distinguishes the two payload shapes of a BigNum
// (SPEC_FULL.md §4.5).
type BigNumKind int

const (
	BigInt BigNumKind = iota
	BigFloat
)

// BigNum is an arbitrary-precision constant numeric value
// (SPEC_FULL.md §4.5: "Arithmetic is performed on arbitrary-precision
// numbers (BigNum{kind, x_uint|x_float, is_negative})"). Go has no builtin
// arbitrary-precision integer with a sign bit split out, so this wraps
// math/big.Int / float64 underneath via the const_eval package; this struct
// is the stable public shape other packages decorate expressions with.
type BigNum struct {
	Kind       BigNumKind
	UintVal    uint64  // Magnitude, used when Kind == BigInt.
	FloatVal   float64 // Used when Kind == BigFloat.
	IsNegative bool
}

// ConstPayloadKind tags which field of ConstPayload is populated, mirroring
// the "x_" prefixed union members of ConstExprValue in SPEC_FULL.md §3/§4.5.
type ConstPayloadKind int

const (
	PayloadNone ConstPayloadKind = iota
	PayloadBigNum
	PayloadBool
	PayloadType
	PayloadFn
	PayloadStruct
	PayloadArray
	PayloadPtr
	PayloadEnum
	PayloadErr
	PayloadMaybe
	PayloadImport
)

// PtrPayload backs x_ptr{elems,len} — a constant slice/array value realized
// as an element list plus a logical length (SPEC_FULL.md §3).
type PtrPayload struct {
	Elems []*ConstVal
	Len   uint64
}

// EnumPayload backs x_enum{tag,payload}.
type EnumPayload struct {
	Tag     uint64
	Payload *ConstVal
}

// ErrPayload backs x_err{err,payload}: Err == 0 means "no error" per
// SPEC_FULL.md Glossary "Error union".
type ErrPayload struct {
	Err     uint64
	Payload *ConstVal
}

// ConstPayload is the tagged union of constant value shapes
// (SPEC_FULL.md §3).
type ConstPayload struct {
	Kind   ConstPayloadKind
	Num    BigNum
	Bool   bool
	Type   *types.Type
	Struct map[string]*ConstVal
	Array  []*ConstVal
	Ptr    PtrPayload
	Enum   EnumPayload
	Err    ErrPayload
	Maybe  *ConstVal // nil means "null"; non-nil is the wrapped value.
	Import interface{}
}

// ConstVal is a fully evaluated compile-time value attached to an
// expression (SPEC_FULL.md Glossary "Const value"): "ok=false means 'not a
// constant expression'".
type ConstVal struct {
	OK                  bool
	Undef               bool
	DependsOnCompileVar bool
	Payload             ConstPayload
}

// Expr is the Expression Analyzer's decoration of an expression node
// (SPEC_FULL.md §3 "Expression decoration"). Variable/BlockContext/
// ConstLLVMVal are interface{} so this package does not depend on the
// scope graph or the LLVM binding; the scope and codegen packages assert
// them back to their concrete types (*scope.Variable, *scope.Scope,
// llvm.Value respectively).
type Expr struct {
	Type             *types.Type
	ConstVal         ConstVal
	Variable         interface{} // *scope.Variable, when this expression denotes one.
	ReturnKnowledge  ReturnKnowledge
	HasGlobalConst   bool
	BlockContext     interface{} // *scope.Scope owning this expression.
	ConstLLVMVal     interface{} // Cached llvm.Value for a module-level constant global.
}
