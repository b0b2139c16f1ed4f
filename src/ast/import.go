package ast

// Import is one resolved source file (SPEC_FULL.md §3 "Import"). The
// Import Graph dedups by AbsolutePath; BlockContext/DIFile are interface{}
// to keep this package free of a dependency on the scope graph or the LLVM
// binding (see the note on ast.Expr for the same reasoning).
type Import struct {
	Package         *Package
	AbsolutePath    string
	SourceCode      string
	LineOffsets     []int // Byte offset of the start of each line, for Span → (line, col) rendering.
	RootAST         *Node
	BlockContext    interface{} // *scope.Scope for this file's top-level namespace.
	DIFile          interface{} // llvm debug-info DIFile handle.
	AnyImportsFailed bool
	UseDecls        []*Node
	CImportNode     *Node // Non-nil if this Import was synthesized by a c_import(...) block.
}

// Package groups a root source directory as one importable namespace
// (SPEC_FULL.md §3 "Package").
type Package struct {
	RootSrcDir   string
	RootSrcPath  string
	PackageTable map[string]*Package
}
