// Package ast defines the syntax-tree contract this compiler core consumes.
// Tokenization and parsing are out of scope (see SPEC_FULL.md §6): this
// package only fixes the node shapes the parser collaborator must produce
// and the semantic decoration (type, constant value) the analyzer attaches.
package ast

import "fmt"

// Kind differentiates the variants of Node in the syntax tree.
type Kind int

const (
	InvalidKind Kind = iota

	// Top level.
	Root
	ImportDecl
	UseDecl
	FnProto
	FnDef
	ParamList
	Param
	VarDecl
	TypeDecl
	ErrorValueDecl
	StructDecl
	EnumDecl
	Field

	// Statements.
	Block
	LabeledBlock
	IfStmt
	WhileStmt
	ForStmt
	SwitchStmt
	SwitchProng
	SwitchRange
	ReturnStmt
	BreakStmt
	BreakValueStmt
	ContinueStmt
	DeferStmt
	LabelStmt
	GotoStmt
	ExprStmt
	AssignStmt
	CompoundAssignStmt

	// Expressions.
	BinaryExpr
	PrefixExpr
	PostfixExpr
	CallExpr
	FieldAccessExpr
	ArrayAccessExpr
	DerefExpr
	AddressOfExpr
	CastExpr
	ImplicitCastExpr
	ContainerInitExpr
	ArrayInitExpr
	AsmExpr
	UnwrapExpr
	ErrorUnwrapExpr
	CImportExpr

	// Type literals.
	TypeLiteral
	PointerTypeLiteral
	ArrayTypeLiteral
	SliceTypeLiteral
	MaybeTypeLiteral
	ErrorUnionTypeLiteral
	ErrorTypeLiteral
	FnTypeLiteral

	// Leaves / literal data.
	Identifier
	IntLiteral
	FloatLiteral
	StringLiteral
	CharLiteral
	BoolLiteral
	NullLiteral
	UndefinedLiteral

	Directive
)

var kindNames = [...]string{
	"Invalid",
	"Root",
	"ImportDecl",
	"UseDecl",
	"FnProto",
	"FnDef",
	"ParamList",
	"Param",
	"VarDecl",
	"TypeDecl",
	"ErrorValueDecl",
	"StructDecl",
	"EnumDecl",
	"Field",
	"Block",
	"LabeledBlock",
	"IfStmt",
	"WhileStmt",
	"ForStmt",
	"SwitchStmt",
	"SwitchProng",
	"SwitchRange",
	"ReturnStmt",
	"BreakStmt",
	"BreakValueStmt",
	"ContinueStmt",
	"DeferStmt",
	"LabelStmt",
	"GotoStmt",
	"ExprStmt",
	"AssignStmt",
	"CompoundAssignStmt",
	"BinaryExpr",
	"PrefixExpr",
	"PostfixExpr",
	"CallExpr",
	"FieldAccessExpr",
	"ArrayAccessExpr",
	"DerefExpr",
	"AddressOfExpr",
	"CastExpr",
	"ImplicitCastExpr",
	"ContainerInitExpr",
	"ArrayInitExpr",
	"AsmExpr",
	"UnwrapExpr",
	"ErrorUnwrapExpr",
	"CImportExpr",
	"TypeLiteral",
	"PointerTypeLiteral",
	"ArrayTypeLiteral",
	"SliceTypeLiteral",
	"MaybeTypeLiteral",
	"ErrorUnionTypeLiteral",
	"ErrorTypeLiteral",
	"FnTypeLiteral",
	"Identifier",
	"IntLiteral",
	"FloatLiteral",
	"StringLiteral",
	"CharLiteral",
	"BoolLiteral",
	"NullLiteral",
	"UndefinedLiteral",
	"Directive",
}

// String returns a print-friendly name for k.
func (k Kind) String() string {
	if int(k) < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Span locates a Node in source. File is a non-owning back-reference to the
// Import that owns the source buffer; line offsets live on that Import so
// spans stay cheap (an int pair) until a diagnostic needs to render them.
type Span struct {
	File *Import
	Line int
	Col  int
}

// Node is a single syntax-tree node. The zero value is a usable placeholder
// (Kind InvalidKind) so that semantic passes can build synthetic nodes, e.g. the
// implicit-cast wrapper described in SPEC_FULL.md §4.9/§9.
//
// Decoration fields (Expr, ConstVal, ...) are populated by the Expression
// Analyzer and Constant-Expression Evaluator; they are nil/zero until that
// pass runs.
type Node struct {
	Kind     Kind
	Span     Span
	Data     interface{} // Identifier/literal payload; kind-dependent.
	Children []*Node

	// ParentField lets a pass rewrite this node's slot in its parent without
	// holding a raw pointer-to-pointer (SPEC_FULL.md §9 "AST rewriting for
	// implicit casts"): Parent.Children[ParentIndex] = replacement.
	Parent      *Node
	ParentIndex int

	Decl *Decl // Declaration-resolver state for FnProto/FnDef/VarDecl/TypeDecl/StructDecl/EnumDecl/ErrorValueDecl.
	Expr *Expr // Expression-analyzer decoration for expression nodes.
}

// ReplaceChild installs replacement into n's Children slot that previously
// held child, wiring replacement's Parent/ParentIndex back-pointer. Used by
// the implicit-cast rewrite and by Node.Wrap below.
func (n *Node) ReplaceChild(idx int, replacement *Node) {
	n.Children[idx] = replacement
	replacement.Parent = n
	replacement.ParentIndex = idx
}

// Wrap replaces n in its parent's child slot with a new node of kind k whose
// sole child is n, and returns the new wrapper. Used by the analyzer to
// insert implicit-cast nodes in place.
func (n *Node) Wrap(k Kind) *Node {
	wrapper := &Node{Kind: k, Span: n.Span, Children: []*Node{n}}
	if n.Parent != nil {
		n.Parent.ReplaceChild(n.ParentIndex, wrapper)
	}
	n.Parent = wrapper
	n.ParentIndex = 0
	return wrapper
}

// String renders n without descending into children, for diagnostics and
// debug dumps (mirrors the teacher's ir.Node.String).
func (n *Node) String() string {
	if n == nil {
		return "<nil node>"
	}
	if n.Data == nil {
		return n.Kind.String()
	}
	return fmt.Sprintf("%s(%v)", n.Kind, n.Data)
}

// Print recursively prints n and its children, indenting one level per
// depth, mirroring the teacher's ir.Node.Print used under -vb.
func (n *Node) Print(depth int) {
	if n == nil {
		fmt.Printf("%*c---> NIL\n", depth<<1, ' ')
		return
	}
	fmt.Printf("%*c%s\n", depth<<1, ' ', n.String())
	for _, c := range n.Children {
		c.Print(depth + 1)
	}
}
