package restock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/clock"
	"vendstock/internal/core/types"
	"vendstock/internal/domain/layout"
	"vendstock/internal/domain/machine"
	"vendstock/internal/domain/product"
)

var visitDay = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

var farFuture = types.NewDate(2027, 1, 1)

type catalog map[string]*product.Product

func newCatalog(t *testing.T, names ...string) catalog {
	t.Helper()
	c := make(catalog)
	for _, n := range names {
		p, err := product.NewProduct(n, types.MustMoney("1.00"), 30)
		require.NoError(t, err)
		c[n] = p
	}
	return c
}

// slot is shorthand for an occupied cell expiring far in the future.
func (c catalog) slot(name string, count int) layout.Cell {
	return layout.Occupied(layout.MustSlot(c[name], count, farFuture))
}

func buildLayout(t *testing.T, depth int, grid [][]layout.Cell) *layout.Layout {
	t.Helper()
	l, err := layout.FromGrid(grid, depth)
	require.NoError(t, err)
	return l
}

func buildMachine(t *testing.T, interval int, live, pending *layout.Layout) *machine.Machine {
	t.Helper()
	m, err := machine.New("Lobby", interval, live, pending, visitDay.AddDate(0, 0, -interval))
	require.NoError(t, err)
	return m
}

type spySaver struct {
	calls int
	saved *machine.Machine
	err   error
}

func (s *spySaver) Save(_ context.Context, m *machine.Machine) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.saved = m.Clone()
	return nil
}

// swapScenario: live [[A×1, B×0], [C×1, D×5]], pending swaps B and C, depth 12.
func swapScenario(t *testing.T) (*machine.Machine, catalog) {
	c := newCatalog(t, "A", "B", "C", "D")
	live := buildLayout(t, 12, [][]layout.Cell{
		{c.slot("A", 1), c.slot("B", 0)},
		{c.slot("C", 1), c.slot("D", 5)},
	})
	pending := buildLayout(t, 12, [][]layout.Cell{
		{c.slot("A", 1), c.slot("C", 1)},
		{c.slot("B", 0), c.slot("D", 5)},
	})
	return buildMachine(t, 7, live, pending), c
}

func cellOf(t *testing.T, l *layout.Layout, row, col int) layout.Slot {
	t.Helper()
	s, ok := l.At(row, col).Slot()
	require.True(t, ok, "cell (%d,%d) is empty", row, col)
	return s
}

func TestEngine_SwapScenario(t *testing.T) {
	m, c := swapScenario(t)
	saver := &spySaver{}

	e, err := NewEngine(m, saver, clock.Fixed(visitDay))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"remove all from (0,1)",
		"add 12 C to (0,1)",
		"remove all from (1,0)",
		"add 12 B to (1,0)",
	}, e.Descriptions())
	assert.Equal(t, []Handle{1, 2, 3, 4}, e.Handles())
	assert.Equal(t, []string{"remove all from (0,1)", "remove all from (1,0)"}, e.Mandatory())
	assert.Equal(t, StateOpen, e.State())

	for _, h := range []Handle{1, 2, 3, 4} {
		require.NoError(t, e.Remove(h), "handle %d", h)
	}
	assert.Empty(t, e.Instructions())
	assert.Equal(t, StateReconcilable, e.State())

	res, err := e.CompleteStocking(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, StateCommitted, e.State())
	assert.Equal(t, 1, saver.calls)

	live := m.Live()
	wantExp := types.NewDate(2026, 3, 31)

	s := cellOf(t, live, 0, 1)
	assert.True(t, s.Product.Same(c["C"]))
	assert.Equal(t, 12, s.Count)
	assert.Equal(t, wantExp, s.Expiration)

	s = cellOf(t, live, 1, 0)
	assert.True(t, s.Product.Same(c["B"]))
	assert.Equal(t, 12, s.Count)

	assert.Equal(t, 1, cellOf(t, live, 0, 0).Count)
	assert.Equal(t, 5, cellOf(t, live, 1, 1).Count)

	assert.Equal(t, types.NewDate(2026, 3, 8), m.NextVisit())
	assert.False(t, m.Restocking())
	m.Pending().EachCell(func(row, col int, cell layout.Cell) {
		assert.True(t, cell.IsEmpty())
	})

	require.NotNil(t, saver.saved)
	assert.Equal(t, 12, cellOf(t, saver.saved.Live(), 0, 1).Count)
}

func TestEngine_IdempotentWhenLiveMatchesPending(t *testing.T) {
	c := newCatalog(t, "A", "D")
	grid := [][]layout.Cell{{c.slot("A", 3), c.slot("D", 5)}}
	m := buildMachine(t, 7, buildLayout(t, 12, grid), buildLayout(t, 12, grid))

	e, err := NewEngine(m, &spySaver{}, clock.Fixed(visitDay))
	require.NoError(t, err)
	assert.Empty(t, e.Descriptions())
	assert.Equal(t, StateReconcilable, e.State())
}

func TestEngine_UnknownHandle(t *testing.T) {
	m, _ := swapScenario(t)
	e, err := NewEngine(m, &spySaver{}, clock.Fixed(visitDay))
	require.NoError(t, err)
	before := e.WorkingSnapshot()

	err = e.Remove(99)
	assert.True(t, apperror.HasCode(err, apperror.CodeUnknownInstruction))
	assert.False(t, e.TryRemove(0))

	assert.Len(t, e.Instructions(), 4)
	assert.Equal(t, before.At(0, 1).String(), e.WorkingSnapshot().At(0, 1).String())
}

func TestEngine_AdditionOntoOccupiedCell(t *testing.T) {
	m, _ := swapScenario(t)
	e, err := NewEngine(m, &spySaver{}, clock.Fixed(visitDay))
	require.NoError(t, err)

	// (1,0) still holds C×1 until handle 3 is resolved.
	err = e.Remove(4)
	assert.True(t, apperror.HasCode(err, apperror.CodeCellOccupied))
	assert.Contains(t, e.Handles(), Handle(4))

	require.NoError(t, e.Remove(3))
	require.NoError(t, e.Remove(4))
	assert.Equal(t, []Handle{1, 2}, e.Handles())
}

func TestEngine_ResolvedTwiceIsUnknown(t *testing.T) {
	m, _ := swapScenario(t)
	e, err := NewEngine(m, &spySaver{}, clock.Fixed(visitDay))
	require.NoError(t, err)

	require.NoError(t, e.Remove(1))
	assert.True(t, apperror.HasCode(e.Remove(1), apperror.CodeUnknownInstruction))
	assert.Len(t, e.Resolved(), 1)
}

func TestEngine_CommitRefusedWhileMandatoryRemain(t *testing.T) {
	m, _ := swapScenario(t)
	liveBefore := m.Live()
	saver := &spySaver{}

	e, err := NewEngine(m, saver, clock.Fixed(visitDay))
	require.NoError(t, err)
	require.NoError(t, e.Remove(1))

	res, err := e.CompleteStocking(context.Background())
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeMandatoryRemaining, appErr.Code)
	assert.Equal(t, []string{"remove all from (1,0)"}, appErr.Details["remaining"])

	assert.False(t, res.Committed)
	assert.Equal(t, []string{"remove all from (1,0)"}, res.Remaining)
	assert.Equal(t, 0, saver.calls)
	assert.Same(t, liveBefore, m.Live())
	assert.True(t, m.Restocking())
	assert.Equal(t, StateOpen, e.State())
}

func TestEngine_SkippedAdditionsLeaveCellsEmpty(t *testing.T) {
	m, _ := swapScenario(t)
	e, err := NewEngine(m, &spySaver{}, clock.Fixed(visitDay))
	require.NoError(t, err)

	require.NoError(t, e.Remove(1))
	require.NoError(t, e.Remove(3))

	res, err := e.CompleteStocking(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.True(t, m.Live().At(0, 1).IsEmpty())
	assert.True(t, m.Live().At(1, 0).IsEmpty())
}

func TestEngine_ForcedExpirationSameProduct(t *testing.T) {
	c := newCatalog(t, "Milk")
	soon := layout.Occupied(layout.MustSlot(c["Milk"], 3, types.NewDate(2026, 3, 5)))
	m := buildMachine(t, 7,
		buildLayout(t, 8, [][]layout.Cell{{soon}}),
		buildLayout(t, 8, [][]layout.Cell{{soon}}))

	e, err := NewEngine(m, &spySaver{}, clock.Fixed(visitDay))
	require.NoError(t, err)
	assert.Equal(t, []string{"remove all from (0,0)", "add 8 Milk to (0,0)"}, e.Descriptions())
	assert.Equal(t, []string{"remove all from (0,0)"}, e.Mandatory())
}

func TestEngine_ExpiredSoldOutCellNeedsRemovalFirst(t *testing.T) {
	c := newCatalog(t, "A")
	stale := layout.Occupied(layout.MustSlot(c["A"], 0, types.NewDate(2026, 3, 3)))
	m := buildMachine(t, 7,
		buildLayout(t, 12, [][]layout.Cell{{stale}}),
		buildLayout(t, 12, [][]layout.Cell{{c.slot("A", 12)}}))

	e, err := NewEngine(m, &spySaver{}, clock.Fixed(visitDay))
	require.NoError(t, err)
	require.Equal(t, []string{"remove all from (0,0)", "add 12 A to (0,0)"}, e.Descriptions())

	err = e.Remove(2)
	assert.True(t, apperror.HasCode(err, apperror.CodeCellOccupied))
	assert.Equal(t, []Handle{1, 2}, e.Handles())
	assert.Equal(t, types.NewDate(2026, 3, 3), cellOf(t, e.WorkingSnapshot(), 0, 0).Expiration)

	require.NoError(t, e.Remove(1))
	require.NoError(t, e.Remove(2))
	_, err = e.CompleteStocking(context.Background())
	require.NoError(t, err)

	s := cellOf(t, m.Live(), 0, 0)
	assert.Equal(t, 12, s.Count)
	assert.Equal(t, types.NewDate(2026, 3, 31), s.Expiration)
}

func TestEngine_EveryAllowedOrderCommitsSameGrid(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T) (*machine.Machine, catalog)
		check func(t *testing.T, live *layout.Layout, c catalog)
	}{
		{
			name:  "swap",
			build: swapScenario,
			check: func(t *testing.T, live *layout.Layout, c catalog) {
				a := cellOf(t, live, 0, 0)
				assert.True(t, a.Product.Same(c["A"]))
				assert.Equal(t, 1, a.Count)
				s := cellOf(t, live, 0, 1)
				assert.True(t, s.Product.Same(c["C"]))
				assert.Equal(t, 12, s.Count)
				assert.Equal(t, types.NewDate(2026, 3, 31), s.Expiration)
				s = cellOf(t, live, 1, 0)
				assert.True(t, s.Product.Same(c["B"]))
				assert.Equal(t, 12, s.Count)
				assert.Equal(t, 5, cellOf(t, live, 1, 1).Count)
			},
		},
		{
			name: "expired sold-out cell next to a retired one",
			build: func(t *testing.T) (*machine.Machine, catalog) {
				c := newCatalog(t, "A", "B")
				stale := layout.Occupied(layout.MustSlot(c["A"], 0, types.NewDate(2026, 3, 3)))
				live := buildLayout(t, 12, [][]layout.Cell{{stale, c.slot("B", 2)}, {layout.Empty(), c.slot("B", 0)}})
				pending := buildLayout(t, 12, [][]layout.Cell{{c.slot("A", 12), layout.Empty()}, {c.slot("B", 3), c.slot("B", 0)}})
				return buildMachine(t, 7, live, pending), c
			},
			check: func(t *testing.T, live *layout.Layout, c catalog) {
				s := cellOf(t, live, 0, 0)
				assert.True(t, s.Product.Same(c["A"]))
				assert.Equal(t, 12, s.Count)
				assert.Equal(t, types.NewDate(2026, 3, 31), s.Expiration)
				assert.True(t, live.At(0, 1).IsEmpty())
				assert.Equal(t, 3, cellOf(t, live, 1, 0).Count)
				assert.Equal(t, 12, cellOf(t, live, 1, 1).Count)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := tt.build(t)
			e, err := NewEngine(m.Clone(), &spySaver{}, clock.Fixed(visitDay))
			require.NoError(t, err)
			plan := e.Instructions()
			handles := e.Handles()
			e.Close()

			allowed := 0
			for _, order := range permutations(handles) {
				if !removalsFirst(order, plan) {
					continue
				}
				allowed++

				m, c := tt.build(t)
				e, err := NewEngine(m, &spySaver{}, clock.Fixed(visitDay))
				require.NoError(t, err)
				for _, h := range order {
					require.NoError(t, e.Remove(h), "order %v, handle %d", order, h)
				}
				res, err := e.CompleteStocking(context.Background())
				require.NoError(t, err, "order %v", order)
				require.True(t, res.Committed)
				tt.check(t, m.Live(), c)
			}
			assert.Positive(t, allowed)
		})
	}
}

// permutations returns every ordering of hs.
func permutations(hs []Handle) [][]Handle {
	if len(hs) <= 1 {
		return [][]Handle{append([]Handle(nil), hs...)}
	}
	var out [][]Handle
	for i, h := range hs {
		rest := make([]Handle, 0, len(hs)-1)
		rest = append(rest, hs[:i]...)
		rest = append(rest, hs[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]Handle{h}, p...))
		}
	}
	return out
}

// removalsFirst reports whether every Addition in order comes after the Removal of its cell, if any.
func removalsFirst(order []Handle, plan map[Handle]Instruction) bool {
	removed := make(map[[2]int]bool)
	for _, h := range order {
		if r, ok := plan[h].(Removal); ok {
			removed[[2]int{r.Row, r.Col}] = true
		}
	}
	seen := make(map[[2]int]bool)
	for _, h := range order {
		switch in := plan[h].(type) {
		case Removal:
			seen[[2]int{in.Row, in.Col}] = true
		case Addition:
			cell := [2]int{in.Row, in.Col}
			if removed[cell] && !seen[cell] {
				return false
			}
		}
	}
	return true
}

func TestEngine_ExpirationAfterHorizonIsKept(t *testing.T) {
	c := newCatalog(t, "Milk")
	// Next visit after this one is 2026-03-08; expiring on that day survives.
	ok := layout.Occupied(layout.MustSlot(c["Milk"], 3, types.NewDate(2026, 3, 8)))
	m := buildMachine(t, 7,
		buildLayout(t, 8, [][]layout.Cell{{ok}}),
		buildLayout(t, 8, [][]layout.Cell{{ok}}))

	e, err := NewEngine(m, &spySaver{}, clock.Fixed(visitDay))
	require.NoError(t, err)
	assert.Empty(t, e.Descriptions())
}

func TestEngine_PlanCases(t *testing.T) {
	c := newCatalog(t, "A", "B")
	empty := layout.Empty()

	tests := []struct {
		name    string
		live    layout.Cell
		pending layout.Cell
		want    []string
	}{
		{name: "both empty", live: empty, pending: empty, want: nil},
		{name: "pending empty, live stocked", live: c.slot("A", 2), pending: empty, want: []string{"remove all from (0,0)"}},
		{name: "pending empty, live zero", live: c.slot("A", 0), pending: empty, want: nil},
		{name: "live empty", live: empty, pending: c.slot("B", 4), want: []string{"add 4 B to (0,0)"}},
		{name: "sold out same product", live: c.slot("A", 0), pending: c.slot("A", 0), want: []string{"add 10 A to (0,0)"}},
		{name: "product changed", live: c.slot("A", 2), pending: c.slot("B", 2), want: []string{"remove all from (0,0)", "add 10 B to (0,0)"}},
		{name: "same product, count edited", live: c.slot("A", 2), pending: c.slot("A", 7), want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			live := buildLayout(t, 10, [][]layout.Cell{{tt.live}})
			pending := buildLayout(t, 10, [][]layout.Cell{{tt.pending}})

			plan, err := Plan(live, pending, 7, types.DateOf(visitDay))
			require.NoError(t, err)

			var got []string
			for _, ins := range plan {
				got = append(got, ins.Description())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_ReplenishSoldOutCell(t *testing.T) {
	c := newCatalog(t, "A")
	m := buildMachine(t, 7,
		buildLayout(t, 10, [][]layout.Cell{{c.slot("A", 0)}}),
		buildLayout(t, 10, [][]layout.Cell{{c.slot("A", 0)}}))

	e, err := NewEngine(m, &spySaver{}, clock.Fixed(visitDay))
	require.NoError(t, err)
	require.NoError(t, e.Remove(1))

	s := cellOf(t, e.WorkingSnapshot(), 0, 0)
	assert.Equal(t, 10, s.Count)
	assert.Equal(t, types.NewDate(2026, 3, 31), s.Expiration)
}

func TestEngine_CapsPendingAndDepth(t *testing.T) {
	c := newCatalog(t, "A", "B")
	m := buildMachine(t, 7,
		buildLayout(t, 6, [][]layout.Cell{{c.slot("A", 2), layout.Empty()}}),
		buildLayout(t, 6, [][]layout.Cell{{c.slot("A", 5), c.slot("B", 9)}}))

	e, err := NewEngine(m, &spySaver{}, clock.Fixed(visitDay))
	require.NoError(t, err)
	assert.Equal(t, []string{"add 9 B to (0,1)"}, e.Descriptions())
	require.NoError(t, e.Remove(1))

	res, err := e.CompleteStocking(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []CappedCell{{Row: 0, Col: 0, From: 5, To: 2}}, res.Capped)
	assert.Equal(t, 2, cellOf(t, m.Live(), 0, 0).Count)
	assert.Equal(t, 6, cellOf(t, m.Live(), 0, 1).Count)
}

func TestEngine_PersistenceFailureKeepsSessionOpen(t *testing.T) {
	m, _ := swapScenario(t)
	liveBefore := m.Live()
	saver := &spySaver{err: errors.New("connection reset")}

	e, err := NewEngine(m, saver, clock.Fixed(visitDay))
	require.NoError(t, err)
	for _, h := range []Handle{1, 2, 3, 4} {
		require.NoError(t, e.Remove(h))
	}

	res, err := e.CompleteStocking(context.Background())
	assert.True(t, apperror.HasCode(err, apperror.CodeDatabase))
	assert.False(t, res.Committed)
	assert.Same(t, liveBefore, m.Live())
	assert.True(t, m.Restocking())
	assert.NotEqual(t, StateCommitted, e.State())

	saver.err = nil
	res, err = e.CompleteStocking(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Committed)
	assert.Equal(t, 2, saver.calls)
}

func TestEngine_CommittedIsTerminal(t *testing.T) {
	c := newCatalog(t, "A")
	m := buildMachine(t, 7,
		buildLayout(t, 4, [][]layout.Cell{{layout.Empty()}}),
		buildLayout(t, 4, [][]layout.Cell{{c.slot("A", 4)}}))

	e, err := NewEngine(m, &spySaver{}, clock.Fixed(visitDay))
	require.NoError(t, err)
	_, err = e.CompleteStocking(context.Background())
	require.NoError(t, err)

	assert.True(t, apperror.HasCode(e.Remove(1), apperror.CodeSessionCommitted))
	_, err = e.CompleteStocking(context.Background())
	assert.True(t, apperror.HasCode(err, apperror.CodeSessionCommitted))
}

func TestEngine_LockAndClose(t *testing.T) {
	m, _ := swapScenario(t)
	e, err := NewEngine(m, &spySaver{}, clock.Fixed(visitDay))
	require.NoError(t, err)

	_, err = NewEngine(m, &spySaver{}, clock.Fixed(visitDay))
	assert.True(t, apperror.HasCode(err, apperror.CodeMachineRestocking))

	e.Close()
	assert.False(t, m.Restocking())
}
