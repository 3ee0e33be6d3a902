package restock

import (
	"vendstock/internal/core/apperror"
	"vendstock/internal/core/types"
	"vendstock/internal/domain/layout"
)

// Plan diffs live against pending cell by cell in row-major order.
//
// A live slot is force-expired when it expires before today + interval, that is,
// before the visit after this one. Replenishment quantities use the live depth.
func Plan(live, pending *layout.Layout, interval int, today types.Date) ([]Instruction, error) {
	if !live.SameShape(pending) {
		return nil, apperror.NewBusinessRule(apperror.CodeLayoutShapeMismatch,
			"live and pending layouts must have identical dimensions")
	}

	horizon := today.AddDays(interval)
	depth := live.Depth()

	var out []Instruction
	live.EachCell(func(row, col int, lc layout.Cell) {
		l, hasL := lc.Slot()
		p, hasP := pending.At(row, col).Slot()

		switch {
		case !hasP && !hasL:
		case !hasP:
			if l.Count > 0 {
				out = append(out, Removal{Row: row, Col: col})
			}
		case !hasL:
			out = append(out, Addition{Row: row, Col: col, Product: p.Product, Quantity: p.Count})
		case l.ExpiresBefore(horizon):
			out = append(out,
				Removal{Row: row, Col: col},
				Addition{Row: row, Col: col, Product: p.Product, Quantity: depth})
		case l.Count == 0 && l.SameProduct(p):
			out = append(out, Addition{Row: row, Col: col, Product: l.Product, Quantity: depth})
		case l.SameContents(p):
		case !l.SameProduct(p):
			out = append(out,
				Removal{Row: row, Col: col},
				Addition{Row: row, Col: col, Product: p.Product, Quantity: depth})
		}
	})
	return out, nil
}
