package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/clock"
	"vendstock/internal/core/id"
	"vendstock/internal/core/types"
	"vendstock/internal/domain/layout"
	"vendstock/internal/domain/machine"
	"vendstock/internal/domain/product"
	"vendstock/internal/domain/restock"
)

var day0 = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestProductStore_CRUD(t *testing.T) {
	ctx := context.Background()
	s := openStore(t).Products()

	cola, err := product.NewProduct("Cola", types.MustMoney("1.20"), 180)
	require.NoError(t, err)
	chips, err := product.NewProduct("Chips", types.MustMoney("0.80"), 60)
	require.NoError(t, err)
	require.NoError(t, s.Create(ctx, cola))
	require.NoError(t, s.Create(ctx, chips))

	err = s.Create(ctx, cola)
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	got, err := s.GetByID(ctx, cola.ID)
	require.NoError(t, err)
	assert.True(t, cola.Equal(got))
	assert.True(t, cola.Price.Equal(got.Price))

	require.NoError(t, got.SetPrice(types.MustMoney("1.40")))
	require.NoError(t, s.Update(ctx, got))
	assert.Equal(t, 2, got.Version)

	stale := cola.Clone()
	err = s.Update(ctx, stale)
	assert.True(t, apperror.IsConcurrentModification(err))

	list, err := s.List(ctx, product.ListFilter{Search: "co"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Cola", list[0].Name)

	all, err := s.List(ctx, product.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Chips", all[0].Name)

	_, err = s.GetByID(ctx, id.New())
	assert.True(t, apperror.IsNotFound(err))
}

func newMachine(t *testing.T, p *product.Product, interval int) *machine.Machine {
	t.Helper()
	live, err := layout.New(2, 2, 8)
	require.NoError(t, err)
	require.NoError(t, live.SetCell(0, 0, layout.Occupied(layout.MustSlot(p, 3, types.NewDate(2026, 9, 1)))))
	m, err := machine.New("Hall "+p.Name, interval, live, live.EmptyLike(), day0)
	require.NoError(t, err)
	return m
}

func TestMachineStore_SaveLoadAndList(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	ms := store.Machines()

	water, err := product.NewProduct("Water", types.MustMoney("0.50"), 365)
	require.NoError(t, err)
	water.EnsureID()

	weekly := newMachine(t, water, 7)
	monthly := newMachine(t, water, 30)
	require.NoError(t, ms.Save(ctx, weekly))
	require.NoError(t, ms.Save(ctx, monthly))

	got, err := ms.GetByID(ctx, weekly.ID)
	require.NoError(t, err)
	assert.Equal(t, weekly.Location(), got.Location())
	assert.Equal(t, weekly.NextVisit(), got.NextVisit())
	assert.Equal(t, weekly.Live().ID, got.Live().ID)
	s, ok := got.Live().At(0, 0).Slot()
	require.True(t, ok)
	assert.Equal(t, water.ID, s.Product.ID)
	assert.Equal(t, 3, s.Count)
	assert.True(t, got.Pending().At(0, 0).IsEmpty())

	due, err := ms.List(ctx, machine.ListFilter{ActiveOnly: true, DueBy: types.NewDate(2026, 3, 8)})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, weekly.ID, due[0].ID)

	all, err := ms.List(ctx, machine.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, weekly.ID, all[0].ID)
}

func TestMachineStore_OptimisticVersion(t *testing.T) {
	ctx := context.Background()
	ms := openStore(t).Machines()

	tea, err := product.NewProduct("Tea", types.MustMoney("1"), 90)
	require.NoError(t, err)
	tea.EnsureID()
	m := newMachine(t, tea, 7)
	require.NoError(t, ms.Save(ctx, m))

	a, err := ms.GetByID(ctx, m.ID)
	require.NoError(t, err)
	b, err := ms.GetByID(ctx, m.ID)
	require.NoError(t, err)

	require.NoError(t, a.SetLocation("North"))
	require.NoError(t, ms.Save(ctx, a))
	assert.Equal(t, 2, a.Version)

	require.NoError(t, b.SetLocation("South"))
	assert.True(t, apperror.IsConcurrentModification(ms.Save(ctx, b)))
}

func TestStore_RestockSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	juice, err := product.NewProduct("Juice", types.MustMoney("2.10"), 20)
	require.NoError(t, err)
	require.NoError(t, store.Products().Create(ctx, juice))

	m := newMachine(t, juice, 7)
	pending, err := layout.New(2, 2, 8)
	require.NoError(t, err)
	require.NoError(t, pending.SetCell(1, 1, layout.Occupied(layout.MustSlot(juice, 8, types.NewDate(2026, 9, 1)))))
	require.NoError(t, m.SetPending(pending))
	require.NoError(t, store.Machines().Save(ctx, m))

	clk := clock.Fixed(day0.AddDate(0, 0, 7))
	svc := restock.NewService(store.Machines(), restock.WithJournal(store.Journal()), restock.WithClock(clk))

	view, err := svc.Begin(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, view.Steps, 2)

	for _, st := range view.Steps {
		_, err := svc.Resolve(ctx, view.ID, st.Handle)
		require.NoError(t, err)
	}
	res, err := svc.Complete(ctx, view.ID)
	require.NoError(t, err)
	assert.True(t, res.Committed)

	got, err := store.Machines().GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Live().At(0, 0).IsEmpty())
	s, ok := got.Live().At(1, 1).Slot()
	require.True(t, ok)
	assert.Equal(t, 8, s.Count)
	assert.Equal(t, types.NewDate(2026, 3, 28), s.Expiration)
	assert.Equal(t, types.NewDate(2026, 3, 15), got.NextVisit())

	visits, err := store.Journal().Visits(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, visits, 1)
}

func TestStore_MachineEditsWaitForOpenVisit(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	juice, err := product.NewProduct("Juice", types.MustMoney("2.10"), 20)
	require.NoError(t, err)
	require.NoError(t, store.Products().Create(ctx, juice))
	m := newMachine(t, juice, 7)
	require.NoError(t, store.Machines().Save(ctx, m))

	clk := clock.Fixed(day0.AddDate(0, 0, 7))
	visits := restock.NewService(store.Machines(), restock.WithJournal(store.Journal()), restock.WithClock(clk))
	machines := machine.NewService(store.Machines(), nil, clk, machine.WithVisitLock(visits))

	view, err := visits.Begin(ctx, m.ID)
	require.NoError(t, err)

	got, err := machines.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Restocking())

	_, err = machines.SetStockingInterval(ctx, m.ID, 3)
	assert.True(t, apperror.HasCode(err, apperror.CodeMachineRestocking))

	for _, st := range view.Steps {
		_, err := visits.Resolve(ctx, view.ID, st.Handle)
		require.NoError(t, err)
	}
	res, err := visits.Complete(ctx, view.ID)
	require.NoError(t, err)
	assert.True(t, res.Committed)

	got, err = machines.SetStockingInterval(ctx, m.ID, 3)
	require.NoError(t, err)
	assert.False(t, got.Restocking())
	assert.Equal(t, 3, got.StockingInterval())
}
