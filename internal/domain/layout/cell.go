package layout

// Cell is one grid position: either Empty or Occupied by a Slot.
// An occupied cell with a zero count is distinct from an empty cell.
type Cell struct {
	slot *Slot
}

// Empty returns a cell with no slot.
func Empty() Cell { return Cell{} }

// Occupied returns a cell holding a copy of s.
func Occupied(s Slot) Cell {
	cp := s
	return Cell{slot: &cp}
}

func (c Cell) IsEmpty() bool { return c.slot == nil }

// Slot returns a copy of the occupant, and false when the cell is empty.
func (c Cell) Slot() (Slot, bool) {
	if c.slot == nil {
		return Slot{}, false
	}
	return *c.slot, true
}

func (c Cell) clone() Cell {
	if c.slot == nil {
		return Cell{}
	}
	return Occupied(c.slot.clone())
}

// String renders the cell for worklists and CLI grids.
func (c Cell) String() string {
	s, ok := c.Slot()
	if !ok {
		return "-"
	}
	return s.Product.Name + "×" + itoa(s.Count)
}
