// Package importgraph implements the Import Graph (SPEC_FULL.md §4.6):
// "import(relative-path) resolves first against the current package's
// package_table; else as a filesystem path relative to the package root.
// The absolute real path is the dedup key. On first resolution, the file is
// read, tokenized, parsed, an import entry created, its block context
// installed, and it is queued for scan. On repeat, the existing entry is
// returned." Tokenization and parsing are out of scope for this core
// (SPEC_FULL.md §1), so Graph drives a Parser collaborator the driver wires
// to the actual frontend rather than reading a token itself — the same
// "core owns resolution, an external collaborator owns syntax" split §6
// draws around the C-header importer and the parser.
//
// Grounded on the teacher's src/util/io.go ReadSource (file-vs-stdin source
// loading) and breadchris-yaegi's go/packages-style "resolve an import path
// to one canonical, cached package entry" shape.
package importgraph

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"novac/src/ast"
	"novac/src/diag"
)

// Parser is the out-of-scope tokenizer/parser collaborator (SPEC_FULL.md
// §1 "Out of scope, specified only by interface: tokenization, parsing").
// Given a file's real absolute path and its source text, it produces the
// root ast.Node of that file's top-level declarations.
type Parser interface {
	ParseFile(absPath, source string) (*ast.Node, error)
}

// Entry is one resolved Import plus the bookkeeping the scan/resolve/export
// queues need (SPEC_FULL.md §2 "Import Graph ... schedules scan / resolve /
// export queues").
type Entry struct {
	Import  *ast.Import
	Scanned bool
}

// Graph owns every Import discovered during a compilation, deduplicated by
// real absolute path (SPEC_FULL.md §4.6 "The absolute real path is the
// dedup key"). One Graph is shared by every file's import(...) expression,
// mirroring the Resolver's single shared instance (SPEC_FULL.md §4.3).
type Graph struct {
	Parser Parser
	Diags  *diag.Bag

	mu      sync.Mutex
	entries map[string]*Entry
	queue   []*Entry // Newly-discovered imports awaiting scan, in discovery order.
}

// New returns an empty Graph driving parser for every newly discovered file.
func New(parser Parser, diags *diag.Bag) *Graph {
	return &Graph{Parser: parser, Diags: diags, entries: make(map[string]*Entry)}
}

// Resolve resolves one import("relativePath") reference found in fromFile,
// reporting span as the diagnostic location on failure (SPEC_FULL.md §7
// table: "Import not found / IO ... diagnostic with source span; may taint
// the enclosing import (any_imports_failed=true)"). It never returns an
// error: a failed resolution still yields a usable, tainted *ast.Import so
// the rest of analysis can continue collecting diagnostics rather than
// aborting the whole compilation. This is the hook sema.Analyzer.
// ResolveImport is wired to.
func (g *Graph) Resolve(fromFile *ast.Import, relativePath string, span ast.Span) *ast.Import {
	pkg := fromFile.Package
	if sub, ok := pkg.PackageTable[relativePath]; ok {
		return g.resolveFile(sub, sub.RootSrcPath, span)
	}
	return g.resolveFile(pkg, filepath.Join(pkg.RootSrcDir, relativePath), span)
}

func (g *Graph) resolveFile(pkg *ast.Package, fsPath string, span ast.Span) *ast.Import {
	real, err := realPath(fsPath)
	if err != nil {
		g.Diags.Errorf(span, "cannot resolve import %q: %s", fsPath, err)
		return taintedImport(pkg, fsPath)
	}

	g.mu.Lock()
	if e, ok := g.entries[real]; ok {
		g.mu.Unlock()
		return e.Import
	}
	g.mu.Unlock()

	src, err := os.ReadFile(real)
	if err != nil {
		g.Diags.Errorf(span, "cannot read import %q: %s", real, err)
		return taintedImport(pkg, real)
	}

	imp := &ast.Import{
		Package:      pkg,
		AbsolutePath: real,
		SourceCode:   string(src),
		LineOffsets:  lineOffsets(string(src)),
	}
	root, perr := g.Parser.ParseFile(real, imp.SourceCode)
	if perr != nil {
		g.Diags.Errorf(span, "parsing %q: %s", real, perr)
		imp.AnyImportsFailed = true
		root = &ast.Node{Kind: ast.Root}
	}
	imp.RootAST = root

	e := &Entry{Import: imp}
	g.mu.Lock()
	defer g.mu.Unlock()
	// Re-check under lock: two callers racing the same newly-seen path both
	// read a miss above; only the first insertion wins and the loser adopts
	// the entry it installed rather than creating a duplicate.
	if existing, ok := g.entries[real]; ok {
		return existing.Import
	}
	g.entries[real] = e
	g.queue = append(g.queue, e)
	return imp
}

func taintedImport(pkg *ast.Package, path string) *ast.Import {
	return &ast.Import{Package: pkg, AbsolutePath: path, AnyImportsFailed: true, RootAST: &ast.Node{Kind: ast.Root}}
}

func realPath(fsPath string) (string, error) {
	abs, err := filepath.Abs(fsPath)
	if err != nil {
		return "", fmt.Errorf("%w", err)
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The file may not exist yet only because EvalSymlinks insists the
		// full path resolve on disk; fall back to the plain absolute path so
		// the caller's subsequent os.ReadFile reports the real "not found".
		return abs, nil
	}
	return real, nil
}

func lineOffsets(src string) []int {
	offsets := []int{0}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}

// Pending returns every Entry queued for scan since the last call, clearing
// the queue (SPEC_FULL.md §2's "scan" phase drains this each pass, since
// scanning an import can itself discover further imports to enqueue).
func (g *Graph) Pending() []*Entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := g.queue
	g.queue = nil
	return out
}

// RootPackage builds the top-level *ast.Package for a compilation rooted at
// srcPath, mirroring the teacher's single-file Options.Src but generalized
// to a package directory (SPEC_FULL.md §3 "Package").
func RootPackage(srcPath string) *ast.Package {
	dir := filepath.Dir(srcPath)
	return &ast.Package{
		RootSrcDir:   dir,
		RootSrcPath:  srcPath,
		PackageTable: make(map[string]*ast.Package),
	}
}
