package driver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"novac/src/ast"
	"novac/src/util"
)

// alwaysErrParser never produces an AST, isolating Compile's own
// orchestration/error-wrapping from the (out-of-scope, per SPEC_FULL.md §1)
// tokenizer/parser the driver would otherwise need a real frontend for.
type alwaysErrParser struct{}

func (alwaysErrParser) ParseFile(_, _ string) (*ast.Node, error) {
	return nil, errParse
}

var errParse = &parseErr{}

type parseErr struct{}

func (*parseErr) Error() string { return "stub parse failure" }

func TestCompileReportsMissingSourceFile(t *testing.T) {
	dir := t.TempDir()
	opt := util.Options{Src: filepath.Join(dir, "does-not-exist.nov"), Out: filepath.Join(dir, "out.o")}

	err := Compile(opt, alwaysErrParser{})
	if err == nil {
		t.Fatal("expected an error for a missing source file")
	}
	if !strings.Contains(err.Error(), "reading") {
		t.Fatalf("expected a %q error, got %q", "reading", err.Error())
	}
}

func TestCompileWrapsParserError(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "main.nov")
	if err := os.WriteFile(srcPath, []byte("fn main() void {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	opt := util.Options{Src: srcPath, Out: filepath.Join(dir, "out.o")}

	err := Compile(opt, alwaysErrParser{})
	if err == nil {
		t.Fatal("expected the parser's error to propagate")
	}
	if !strings.Contains(err.Error(), "parsing") || !strings.Contains(err.Error(), "stub parse failure") {
		t.Fatalf("expected a wrapped parse error, got %q", err.Error())
	}
}
