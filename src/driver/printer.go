// Package driver implements the ambient CLI/orchestration shell around the
// Type & Constant-Expression Engine and IR Emitter (SPEC_FULL.md §4.10):
// Options, Compile, the diagnostic printer, and the optional profile-file
// loader. None of it is part of the spec's analysis core; it is the
// scaffolding a real checkout of the compiler ships alongside that core.
package driver

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"golang.org/x/text/width"

	"novac/src/ast"
	"novac/src/diag"
)

// isTerminal reports whether w is a character device the user is watching
// live, the same check github.com/fatih/color makes internally for its own
// global NoColor default — used here so Printer's color decision tracks
// stderr specifically rather than the package-wide default.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer renders a diag.Bag as human-readable diagnostics (SPEC_FULL.md
// §4.9), grounded on ailang's use of github.com/fatih/color for readable CLI
// output and the teacher's src/util/io.go buffered-writer pattern. Carets
// are aligned under the offending column using golang.org/x/text/width so a
// full-width source rune doesn't throw off the indent.
type Printer struct {
	w      *bufio.Writer
	errorC *color.Color
	warnC  *color.Color
	noteC  *color.Color
	pathC  *color.Color
}

// NewPrinter returns a Printer writing to out, colorizing only when useColor
// is true (the driver decides this from whether out is a terminal).
func NewPrinter(out io.Writer, useColor bool) *Printer {
	c := func(attrs ...color.Attribute) *color.Color {
		col := color.New(attrs...)
		col.EnableColor()
		if !useColor {
			col.DisableColor()
		}
		return col
	}
	return &Printer{
		w:      bufio.NewWriter(out),
		errorC: c(color.FgRed, color.Bold),
		warnC:  c(color.FgYellow, color.Bold),
		noteC:  c(color.FgCyan),
		pathC:  c(color.Bold),
	}
}

// Print renders every diagnostic in bag, in its deterministic Sorted order,
// each followed by the offending source line and a caret under the column
// when the diagnostic's file text is available.
func (p *Printer) Print(bag *diag.Bag) {
	for _, d := range bag.Sorted() {
		p.printOne(d.Severity, d.Span, d.Message)
		for _, n := range d.Notes {
			p.printOne(diag.Note, n.Span, n.Message)
		}
	}
	_ = p.w.Flush()
}

func (p *Printer) printOne(sev diag.Severity, span ast.Span, msg string) {
	sevC := p.sevColor(sev)
	path := "<unknown>"
	if span.File != nil {
		path = span.File.AbsolutePath
	}
	_, _ = fmt.Fprintf(p.w, "%s: %s: %s\n",
		p.pathC.Sprintf("%s:%d:%d", path, span.Line, span.Col),
		sevC.Sprint(sev),
		msg,
	)
	if span.File == nil {
		return
	}
	line := sourceLine(span.File.SourceCode, span.File.LineOffsets, span.Line)
	if line == "" {
		return
	}
	_, _ = fmt.Fprintf(p.w, "  %s\n", line)
	_, _ = fmt.Fprintf(p.w, "  %s%s\n", strings.Repeat(" ", caretIndent(line, span.Col)), sevC.Sprint("^"))
}

func (p *Printer) sevColor(sev diag.Severity) *color.Color {
	switch sev {
	case diag.Error:
		return p.errorC
	case diag.Warning:
		return p.warnC
	default:
		return p.noteC
	}
}

// caretIndent computes how many spaces to print before the caret so it
// lands under column col of line, accounting for full-width runes (CJK,
// etc.) occupying two terminal columns apiece.
func caretIndent(line string, col int) int {
	indent := 0
	count := 0
	for _, r := range line {
		if count >= col-1 {
			break
		}
		count++
		switch width.LookupRune(r).Kind() {
		case width.EastAsianWide, width.EastAsianFullwidth:
			indent += 2
		default:
			indent++
		}
	}
	return indent
}

func sourceLine(source string, lineOffsets []int, line int) string {
	if line < 1 || line > len(lineOffsets) {
		return ""
	}
	start := lineOffsets[line-1]
	end := len(source)
	if line < len(lineOffsets) {
		end = lineOffsets[line] - 1
	}
	if start > len(source) || start > end {
		return ""
	}
	return strings.TrimRight(source[start:end], "\r\n")
}
