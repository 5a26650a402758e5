package types

import "fmt"

// Position is a zero-based line and character offset in a document.
type Position struct {
	Line      int
	Character int
}

// Range is a span between two positions, end exclusive.
type Range struct {
	Start Position
	End   Position
}

// String renders the range 1-based, the way editors show it.
func (r Range) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", r.Start.Line+1, r.Start.Character+1, r.End.Line+1, r.End.Character+1)
}
