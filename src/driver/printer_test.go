package driver

import (
	"bytes"
	"strings"
	"testing"

	"novac/src/ast"
	"novac/src/diag"
)

func TestPrinterRendersPathLineCol(t *testing.T) {
	imp := &ast.Import{
		AbsolutePath: "main.nov",
		SourceCode:   "fn main() void {\n    return 1;\n}\n",
		LineOffsets:  []int{0, 17, 31, 33},
	}
	bag := diag.NewBag()
	bag.Errorf(ast.Span{File: imp, Line: 2, Col: 5}, "unexpected token")

	var buf bytes.Buffer
	p := NewPrinter(&buf, false)
	p.Print(bag)

	out := buf.String()
	if !strings.Contains(out, "main.nov:2:5") {
		t.Fatalf("expected output to contain the path:line:col, got %q", out)
	}
	if !strings.Contains(out, "unexpected token") {
		t.Fatalf("expected output to contain the message, got %q", out)
	}
	if !strings.Contains(out, "return 1;") {
		t.Fatalf("expected output to quote the offending source line, got %q", out)
	}
}

func TestPrinterNotesFollowTheirParent(t *testing.T) {
	imp := &ast.Import{AbsolutePath: "x.nov", SourceCode: "a\nb\n", LineOffsets: []int{0, 2, 4}}
	bag := diag.NewBag()
	bag.ErrorfNote(ast.Span{File: imp, Line: 1, Col: 1}, ast.Span{File: imp, Line: 2, Col: 1}, "previous definition here", "redefinition of %q", "x")

	var buf bytes.Buffer
	NewPrinter(&buf, false).Print(bag)

	out := buf.String()
	if !strings.Contains(out, "redefinition") || !strings.Contains(out, "previous definition here") {
		t.Fatalf("expected both the error and its note rendered, got %q", out)
	}
	if strings.Index(out, "redefinition") > strings.Index(out, "previous definition here") {
		t.Fatalf("expected the note rendered after its parent error, got %q", out)
	}
}

func TestPrinterHandlesMissingSpanFile(t *testing.T) {
	bag := diag.NewBag()
	bag.Errorf(ast.Span{}, "internal error")

	var buf bytes.Buffer
	NewPrinter(&buf, false).Print(bag)

	if !strings.Contains(buf.String(), "<unknown>") {
		t.Fatalf("expected the <unknown> path placeholder, got %q", buf.String())
	}
}

func TestCaretIndentASCII(t *testing.T) {
	if got := caretIndent("abcdef", 4); got != 3 {
		t.Fatalf("expected caret indent 3 for column 4 in an ASCII line, got %d", got)
	}
}

func TestCaretIndentWidensForFullWidthRunes(t *testing.T) {
	// "測" is a full-width CJK rune occupying two terminal columns; a caret
	// for the byte/rune immediately after it must be pushed two columns in,
	// not one.
	line := "測x"
	if got := caretIndent(line, 2); got != 2 {
		t.Fatalf("expected caret indent 2 after one full-width rune, got %d", got)
	}
}

func TestSourceLineOutOfRange(t *testing.T) {
	if got := sourceLine("a\nb\n", []int{0, 2, 4}, 99); got != "" {
		t.Fatalf("expected empty string for an out-of-range line, got %q", got)
	}
}
