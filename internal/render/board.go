package render

import (
	"strings"

	"puzzlewire/internal/engine"
	"puzzlewire/internal/protocol"
)

// Frame is one rendered observation of an instance: a newline-delimited
// text grid plus a structured per-cell listing, or an interstitial message
// when the simulation has no grid to show.
type Frame struct {
	Board     string
	Cells     []protocol.CellJSON
	IsMessage bool
	Message   string
}

// Snapshot renders the instance's current state through the index. It is a
// pure read: no simulation state is mutated.
func Snapshot(in *engine.Instance, ix *Index) Frame {
	rows, err := in.Cells()
	if err != nil {
		// Message frames keep boardJSON an array on the wire.
		text, _ := in.MessageText()
		return Frame{Board: text, IsMessage: true, Message: text, Cells: []protocol.CellJSON{}}
	}

	var b strings.Builder
	cells := make([]protocol.CellJSON, 0, len(rows)*8)
	for y, row := range rows {
		if y > 0 {
			b.WriteByte('\n')
		}
		for _, cell := range row {
			b.WriteRune(ix.Resolve(cell))
			names := make([]string, len(cell.Stack))
			for i, k := range cell.Stack {
				names[i] = k.Name
			}
			cells = append(cells, protocol.CellJSON{X: cell.X, Y: cell.Y, Content: names})
		}
	}
	return Frame{Board: b.String(), Cells: cells}
}
