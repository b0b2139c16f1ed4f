// Package diag implements the error-accumulation model of SPEC_FULL.md §7:
// semantic diagnostics are "accumulated in a list; compilation continues to
// collect more", with secondary "notes" for cross-references like
// "previous definition here". It is grounded on the teacher's
// src/util/perror.go channel-based concurrent error collector, generalized
// from a single error message per entry to a diagnostic with source span
// and notes.
package diag

import (
	"fmt"
	"sort"
	"sync"

	"novac/src/ast"
)

// Severity classifies a Diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
	Note
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "note"
	}
}

// NoteMsg is a secondary span attached to a Diagnostic, e.g. "previous
// definition here" (SPEC_FULL.md §7: "Errors carry optional notes
// (secondary spans)").
type NoteMsg struct {
	Span    ast.Span
	Message string
}

// Diagnostic is one reported error/warning.
type Diagnostic struct {
	Severity Severity
	Span     ast.Span
	Message  string
	Notes    []NoteMsg
}

func (d Diagnostic) String() string {
	s := fmt.Sprintf("%s:%d:%d: %s: %s", fileName(d.Span), d.Span.Line, d.Span.Col, d.Severity, d.Message)
	for _, n := range d.Notes {
		s += fmt.Sprintf("\n%s:%d:%d: note: %s", fileName(n.Span), n.Span.Line, n.Span.Col, n.Message)
	}
	return s
}

func fileName(s ast.Span) string {
	if s.File == nil {
		return "<unknown>"
	}
	return s.File.AbsolutePath
}

// Bag is a mutex-guarded, append-only collector of Diagnostics, safe to
// share across the resolver/analyzer's worker goroutines (mirrors the
// teacher's perror, minus the channel plumbing — a mutex is simpler here
// since diagnostics are produced far less often than codegen writes).
type Bag struct {
	mu    sync.Mutex
	items []Diagnostic
}

// NewBag returns an empty diagnostic bag.
func NewBag() *Bag { return &Bag{} }

// Append records a diagnostic. Safe for concurrent use.
func (b *Bag) Append(d Diagnostic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, d)
}

// Errorf appends an Error-severity diagnostic built from a format string.
func (b *Bag) Errorf(span ast.Span, format string, args ...interface{}) {
	b.Append(Diagnostic{Severity: Error, Span: span, Message: fmt.Sprintf(format, args...)})
}

// ErrorfNote appends an Error-severity diagnostic with one note.
func (b *Bag) ErrorfNote(span ast.Span, noteSpan ast.Span, noteMsg string, format string, args ...interface{}) {
	b.Append(Diagnostic{
		Severity: Error,
		Span:     span,
		Message:  fmt.Sprintf(format, args...),
		Notes:    []NoteMsg{{Span: noteSpan, Message: noteMsg}},
	})
}

// HasErrors reports whether any Error-severity diagnostic was recorded.
// SPEC_FULL.md §5: "IR emission begins only after all semantic analysis
// errors are collected — if any errors exist, emission is skipped."
func (b *Bag) HasErrors() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.items {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// Len returns the number of diagnostics recorded.
func (b *Bag) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Sorted returns a stable, span-ordered copy of the recorded diagnostics,
// suitable for deterministic printing regardless of which worker goroutine
// reported them first.
func (b *Bag) Sorted() []Diagnostic {
	b.mu.Lock()
	out := append([]Diagnostic(nil), b.items...)
	b.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].Span, out[j].Span
		if si.File != sj.File {
			return fileName(si) < fileName(sj)
		}
		if si.Line != sj.Line {
			return si.Line < sj.Line
		}
		return si.Col < sj.Col
	})
	return out
}
