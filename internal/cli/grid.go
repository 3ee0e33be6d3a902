package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"vendstock/internal/domain/layout"
)

// printGrid renders a layout with one table cell per machine cell.
func printGrid(p *Printer, l *layout.Layout) {
	header := make([]any, 0, l.Cols()+1)
	header = append(header, "")
	for j := 0; j < l.Cols(); j++ {
		header = append(header, j)
	}
	t := p.Table(header...)

	for i := 0; i < l.Rows(); i++ {
		row := make(table.Row, 0, l.Cols()+1)
		row = append(row, i)
		for j := 0; j < l.Cols(); j++ {
			row = append(row, cellLabel(l.At(i, j)))
		}
		t.AppendRow(row)
	}
	t.SetCaption("depth %d", l.Depth())
	t.Render()
}

func cellLabel(c layout.Cell) string {
	s, ok := c.Slot()
	if !ok {
		return "."
	}
	return fmt.Sprintf("%s x%d\nexp %s", s.Product.Name, s.Count, s.Expiration)
}
