package driver

import (
	"fmt"

	"novac/src/ast"
)

// stubParser is the default importgraph.Parser wired by the CLI when no real
// frontend is linked in. Tokenization and parsing are explicitly out of
// scope for this engine (SPEC_FULL.md §1: "specified only by interface") —
// a real novac checkout links a frontend package implementing Parser against
// the grammar; this stub exists only so Compile is fully wireable and its
// error paths (source read failure, parse failure, per-import parse failure)
// are exercised without requiring that frontend to exist in this tree.
type stubParser struct{}

// NewStubParser returns a Parser that always fails, pointing the caller at
// the missing frontend rather than silently producing an empty tree.
func NewStubParser() *stubParser { return &stubParser{} }

func (stubParser) ParseFile(absPath, _ string) (*ast.Node, error) {
	return nil, fmt.Errorf("no frontend linked in: cannot parse %q (tokenization/parsing is outside this engine's scope; wire a real importgraph.Parser)", absPath)
}
