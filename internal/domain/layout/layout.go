// Package layout models a vending machine's product grid.
package layout

import (
	"encoding/json"
	"strconv"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/entity"
	"vendstock/internal/core/types"
)

// Layout is a rectangular grid of cells, a full-stock depth and an optional next visit date.
type Layout struct {
	entity.BaseEntity

	cells     [][]Cell
	depth     int
	nextVisit types.Date
}

// New creates a rows×cols layout with every cell empty.
func New(rows, cols, depth int) (*Layout, error) {
	if err := validateShape(rows, cols); err != nil {
		return nil, err
	}
	if err := validateDepth(depth); err != nil {
		return nil, err
	}
	cells := make([][]Cell, rows)
	for i := range cells {
		cells[i] = make([]Cell, cols)
	}
	return &Layout{BaseEntity: entity.NewBaseEntity(), cells: cells, depth: depth}, nil
}

// FromGrid builds a layout from explicit cells. Ragged or empty grids are rejected.
// Cells are copied; later changes to grid do not affect the layout.
func FromGrid(grid [][]Cell, depth int) (*Layout, error) {
	if len(grid) == 0 {
		return nil, validateShape(0, 0)
	}
	cols := len(grid[0])
	if err := validateShape(len(grid), cols); err != nil {
		return nil, err
	}
	if err := validateDepth(depth); err != nil {
		return nil, err
	}

	cells := make([][]Cell, len(grid))
	for i, row := range grid {
		if len(row) != cols {
			return nil, apperror.NewValidation("layout rows must all have the same length").
				WithDetail("row", i).
				WithDetail("expected", cols).
				WithDetail("actual", len(row))
		}
		cells[i] = make([]Cell, cols)
		for j, c := range row {
			if s, ok := c.Slot(); ok {
				if err := s.Validate(); err != nil {
					return nil, err
				}
			}
			cells[i][j] = c.clone()
		}
	}
	return &Layout{BaseEntity: entity.NewBaseEntity(), cells: cells, depth: depth}, nil
}

func (l *Layout) Rows() int { return len(l.cells) }

func (l *Layout) Cols() int {
	if len(l.cells) == 0 {
		return 0
	}
	return len(l.cells[0])
}

func (l *Layout) Depth() int { return l.depth }

// SetDepth changes the full-stock quantity.
func (l *Layout) SetDepth(depth int) error {
	if err := validateDepth(depth); err != nil {
		return err
	}
	l.depth = depth
	return nil
}

// Cell returns the cell at (row, col).
func (l *Layout) Cell(row, col int) (Cell, error) {
	if err := l.checkBounds(row, col); err != nil {
		return Cell{}, err
	}
	return l.cells[row][col], nil
}

// At returns the cell at (row, col) and panics when out of bounds.
// Use when iterating within Rows()/Cols().
func (l *Layout) At(row, col int) Cell {
	return l.cells[row][col]
}

// SetCell replaces the cell at (row, col).
func (l *Layout) SetCell(row, col int, c Cell) error {
	if err := l.checkBounds(row, col); err != nil {
		return err
	}
	if s, ok := c.Slot(); ok {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	l.cells[row][col] = c.clone()
	return nil
}

// NextVisit returns the scheduled visit date, if any.
func (l *Layout) NextVisit() (types.Date, bool) {
	return l.nextVisit, !l.nextVisit.IsZero()
}

// SetNextVisit schedules the next visit.
func (l *Layout) SetNextVisit(d types.Date) error {
	if d.IsZero() {
		return apperror.NewValidation("next visit date is required").
			WithDetail("field", "nextVisit")
	}
	l.nextVisit = d
	return nil
}

// ClearNextVisit removes the scheduled visit.
func (l *Layout) ClearNextVisit() {
	l.nextVisit = types.Date{}
}

// SameShape reports whether other has identical dimensions.
func (l *Layout) SameShape(other *Layout) bool {
	return other != nil && l.Rows() == other.Rows() && l.Cols() == other.Cols()
}

// EachCell visits every cell in row-major order.
func (l *Layout) EachCell(fn func(row, col int, c Cell)) {
	for i, row := range l.cells {
		for j, c := range row {
			fn(i, j, c)
		}
	}
}

// Clone returns a deep copy that shares nothing mutable with l. The copy keeps l's identity.
func (l *Layout) Clone() *Layout {
	cells := make([][]Cell, len(l.cells))
	for i, row := range l.cells {
		cells[i] = make([]Cell, len(row))
		for j, c := range row {
			cells[i][j] = c.clone()
		}
	}
	return &Layout{BaseEntity: l.BaseEntity, cells: cells, depth: l.depth, nextVisit: l.nextVisit}
}

// EmptyLike returns a new, all-empty layout with l's shape and depth and no next visit.
func (l *Layout) EmptyLike() *Layout {
	out, _ := New(l.Rows(), l.Cols(), l.depth)
	return out
}

// CapToDepth lowers every count above depth to depth.
func (l *Layout) CapToDepth() {
	for i, row := range l.cells {
		for j, c := range row {
			if c.slot != nil && c.slot.Count > l.depth {
				s := *c.slot
				s.Count = l.depth
				l.cells[i][j] = Occupied(s)
			}
		}
	}
}

// Validate checks layout invariants.
func (l *Layout) Validate() error {
	if err := validateShape(l.Rows(), l.Cols()); err != nil {
		return err
	}
	if err := validateDepth(l.depth); err != nil {
		return err
	}
	var cellErr error
	l.EachCell(func(row, col int, c Cell) {
		if cellErr != nil {
			return
		}
		if s, ok := c.Slot(); ok {
			if err := s.Validate(); err != nil {
				cellErr = err
			}
		}
	})
	return cellErr
}

func (l *Layout) checkBounds(row, col int) error {
	if row < 0 || row >= l.Rows() || col < 0 || col >= l.Cols() {
		return apperror.NewValidation("cell is outside the layout").
			WithDetail("row", row).
			WithDetail("col", col).
			WithDetail("rows", l.Rows()).
			WithDetail("cols", l.Cols())
	}
	return nil
}

func validateShape(rows, cols int) error {
	if rows <= 0 || cols <= 0 {
		return apperror.NewValidation("layout must have at least one row and one column").
			WithDetail("rows", rows).
			WithDetail("cols", cols)
	}
	return nil
}

func validateDepth(depth int) error {
	if depth <= 0 {
		return apperror.NewValidation("layout depth must be positive").
			WithDetail("field", "depth").
			WithDetail("value", depth)
	}
	return nil
}

func itoa(n int) string { return strconv.Itoa(n) }

// --- JSON ---

type layoutJSON struct {
	entity.BaseEntity
	Depth     int        `json:"depth"`
	NextVisit types.Date `json:"nextVisit"`
	Cells     [][]*Slot  `json:"cells"`
}

// MarshalJSON encodes empty cells as null.
func (l *Layout) MarshalJSON() ([]byte, error) {
	out := layoutJSON{BaseEntity: l.BaseEntity, Depth: l.depth, NextVisit: l.nextVisit}
	out.Cells = make([][]*Slot, len(l.cells))
	for i, row := range l.cells {
		out.Cells[i] = make([]*Slot, len(row))
		for j, c := range row {
			if s, ok := c.Slot(); ok {
				out.Cells[i][j] = &s
			}
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes and validates a layout.
func (l *Layout) UnmarshalJSON(data []byte) error {
	var in layoutJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	grid := make([][]Cell, len(in.Cells))
	for i, row := range in.Cells {
		grid[i] = make([]Cell, len(row))
		for j, s := range row {
			if s != nil {
				grid[i][j] = Occupied(*s)
			}
		}
	}
	parsed, err := FromGrid(grid, in.Depth)
	if err != nil {
		return err
	}
	parsed.BaseEntity = in.BaseEntity
	parsed.nextVisit = in.NextVisit
	*l = *parsed
	return nil
}
