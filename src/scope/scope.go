// Package scope implements the Scope Graph (SPEC_FULL.md §4.2): lexical and
// declaration contexts nested by parent pointer, variable/declaration
// tables, import linkage, and the loop/defer/label stacks the IR Emitter
// needs to lower break/continue/defer correctly.
package scope

import (
	"fmt"

	"novac/src/ast"
	"novac/src/types"
)

// DeferKind selects which return-knowledge outcomes run a given defer body
// (SPEC_FULL.md §4.7 "Defer").
type DeferKind int

const (
	DeferUnconditional DeferKind = iota
	DeferError
	DeferMaybe
)

// Defer is one defer statement recorded against the scope it was declared
// in.
type Defer struct {
	Body *ast.Node
	Kind DeferKind
}

// LabelBreakValue records one `break :label value` site targeting a labeled
// block, kept on the label's own Scope so the Expression Analyzer can
// peer-resolve every site's type after the block's body has been walked
// (SPEC_FULL.md §5 item 5), then coerce each one to the resolved result type.
type LabelBreakValue struct {
	Node *ast.Node
	Sc   *Scope
}

// Variable is a resolved, typed storage location (SPEC_FULL.md §3
// "Variable").
type Variable struct {
	Name         string
	Type         *types.Type
	IsConst      bool
	IsPtr        bool // True if Type itself already denotes a pointer the source took explicitly.
	BlockContext *Scope
	DeclNode     *ast.Node

	ValueRef    interface{} // llvm.Value once an alloca/global has been emitted.
	DebugVar    interface{} // llvm debug-info DILocalVariable/parameter handle.
	SrcArgIndex int         // -1 if not a parameter.
	GenArgIndex int         // -1 if not a parameter, or if elided (sret/byval rewriting).

	// ConstVal is set by the Declaration Resolver for bindings that are
	// themselves compile-time constants (top-level const declarations, enum
	// member accessors exposed through the scope as plain names), so the
	// Expression Analyzer can fold a use of the name without re-visiting its
	// declaration node.
	ConstVal ast.ConstVal
}

// FnEntry is the resolver/codegen-facing record of one function
// (SPEC_FULL.md §3 "Function entry").
type FnEntry struct {
	SymbolName      string
	Import          *ast.Import
	ProtoNode       *ast.Node
	DefNode         *ast.Node
	Type            *types.Type
	IsExtern        bool
	IsInline        bool
	IsNaked         bool
	IsCold          bool
	IsTest          bool
	InternalLinkage bool

	VariableList             []*Variable
	CastAllocaList           []interface{} // llvm.Value alloca slots reserved for cast-result temporaries.
	StructValExprAllocaList  []interface{} // llvm.Value alloca slots for struct/array value-expression temporaries.
	AllBlockContexts         []*Scope

	FnValue interface{} // llvm.Value for the declared/defined function, once emitted.
	Labels  map[string]*Scope // Named block labels reachable from this function, for break :label (SPEC_FULL.md §5 item 5).
}

// Scope is one node of the Scope Graph (SPEC_FULL.md §3 "Scope node").
// A new Scope is entered at: function definition, block, if/while/for/switch
// body, defer expression, variant pattern binding, container declaration,
// c-import block (SPEC_FULL.md §4.2).
type Scope struct {
	Parent *Scope
	Node   *ast.Node

	decls map[string]*ast.Node
	vars  map[string]*Variable

	ParentLoop      *Scope // Nearest enclosing loop scope, for break/continue.
	DeferChain      []Defer
	CodegenExcluded bool
	CImportBuffer   interface{} // *strings.Builder while inside a c_import block.
	DIScope         interface{} // llvm debug-info DIScope (file/subprogram/lexical block).
	FnEntry         *FnEntry    // Nearest enclosing function, for locals/alloca lists.

	// Labeled-block value plumbing (SPEC_FULL.md §5 item 5), set on the Scope
	// a labeled block's own FnEntry.Labels entry points at. LabelBreakValues
	// is populated by the Expression Analyzer while walking the block's body;
	// LabelJoinBlock/LabelResultSlot are populated by the IR Emitter when it
	// lowers the block, on its own (separate) Scope graph keyed by the same
	// AST node.
	LabelBreakValues []LabelBreakValue
	LabelJoinBlock   interface{} // llvm.BasicBlock once the IR Emitter lowers this label.
	LabelResultSlot  interface{} // llvm.Value alloca, non-nil only when the label's result type is non-void.
}

// New creates a child scope of parent (nil for a file's root scope) bound to
// the syntax-tree node that introduced it.
func New(parent *Scope, node *ast.Node) *Scope {
	s := &Scope{
		Parent: parent,
		Node:   node,
		decls:  make(map[string]*ast.Node, 8),
		vars:   make(map[string]*Variable, 8),
	}
	if parent != nil {
		s.ParentLoop = parent.ParentLoop
		s.FnEntry = parent.FnEntry
	}
	return s
}

// DeclareDecl inserts a top-level-style declaration (function/type/error
// value) into s's own declaration table, rejecting duplicates
// (SPEC_FULL.md §4.2: "declaration insertion rejects duplicates and reports
// a redefinition error with a note at the previous site").
func (s *Scope) DeclareDecl(name string, node *ast.Node) (prev *ast.Node, redefined bool) {
	if existing, ok := s.decls[name]; ok {
		return existing, true
	}
	s.decls[name] = node
	return nil, false
}

// OwnDeclNames returns the names declared directly in s (not ancestors), for
// a use-decl pulling a whole namespace's public names into another scope.
func (s *Scope) OwnDeclNames() []string {
	names := make([]string, 0, len(s.decls))
	for name := range s.decls {
		names = append(names, name)
	}
	return names
}

// LookupDecl walks s and its ancestors for a declaration named name.
func (s *Scope) LookupDecl(name string) (*ast.Node, *Scope) {
	for cur := s; cur != nil; cur = cur.Parent {
		if n, ok := cur.decls[name]; ok {
			return n, cur
		}
	}
	return nil, nil
}

// DeclareVar inserts a variable into s's own variable table, rejecting
// duplicates within the same scope.
func (s *Scope) DeclareVar(v *Variable) (prev *Variable, redefined bool) {
	if existing, ok := s.vars[v.Name]; ok {
		return existing, true
	}
	s.vars[v.Name] = v
	v.BlockContext = s
	return nil, false
}

// LookupVar walks s and its ancestors for a variable named name
// (SPEC_FULL.md §4.2: "Name lookup walks ancestors").
func (s *Scope) LookupVar(name string) (*Variable, *Scope) {
	for cur := s; cur != nil; cur = cur.Parent {
		if v, ok := cur.vars[name]; ok {
			return v, cur
		}
	}
	return nil, nil
}

// Lookup resolves name against both the variable and declaration tables,
// variables taking precedence in their own scope at the point a shadowing
// declaration could otherwise be found further out.
func (s *Scope) Lookup(name string) (v *Variable, decl *ast.Node, found bool) {
	for cur := s; cur != nil; cur = cur.Parent {
		if v, ok := cur.vars[name]; ok {
			return v, nil, true
		}
		if n, ok := cur.decls[name]; ok {
			return nil, n, true
		}
	}
	return nil, nil, false
}

// PushDefer records a defer statement against this scope, to be unwound in
// innermost-first order when control leaves it (SPEC_FULL.md §4.7, §8
// invariant "every unconditional defer ... executed exactly once in
// innermost-first order").
func (s *Scope) PushDefer(body *ast.Node, kind DeferKind) {
	s.DeferChain = append(s.DeferChain, Defer{Body: body, Kind: kind})
}

// RedefinitionError formats the standard "name already declared" message
// used by both DeclareDecl and DeclareVar call sites.
func RedefinitionError(name string) string {
	return fmt.Sprintf("redefinition of %q", name)
}
