package machine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/clock"
	"vendstock/internal/core/id"
)

type memRepo struct {
	items map[id.ID]*Machine
}

func newMemRepo() *memRepo { return &memRepo{items: make(map[id.ID]*Machine)} }

func (r *memRepo) Save(ctx context.Context, m *Machine) error {
	if cur, ok := r.items[m.ID]; ok {
		if cur.Version != m.Version {
			return apperror.NewConcurrentModification("machines", m.ID.String())
		}
		m.Touch()
	}
	r.items[m.ID] = m.Clone()
	return nil
}

func (r *memRepo) GetByID(ctx context.Context, machineID id.ID) (*Machine, error) {
	m, ok := r.items[machineID]
	if !ok {
		return nil, apperror.NewNotFound("machines", machineID.String())
	}
	return m.Clone(), nil
}

func (r *memRepo) List(ctx context.Context, filter ListFilter) ([]*Machine, error) {
	var out []*Machine
	for _, m := range r.items {
		if filter.ActiveOnly && !m.Active() {
			continue
		}
		if !filter.DueBy.IsZero() && m.NextVisit().After(filter.DueBy) {
			continue
		}
		out = append(out, m.Clone())
	}
	return out, nil
}

func TestService_CreateDefaultsPending(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo(), nil, clock.Fixed(day0))

	m, err := svc.Create(ctx, CreateParams{Location: "Station", StockingInterval: 3, Live: grid(t, 3, 4)})
	require.NoError(t, err)
	assert.True(t, m.Pending().SameShape(m.Live()))

	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "Station", got.Location())
}

func TestService_GetNotFound(t *testing.T) {
	svc := NewService(newMemRepo(), nil, clock.Fixed(day0))
	_, err := svc.Get(context.Background(), id.New())
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "machine", appErr.Details["entity"])
}

func TestService_ListDue(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(day0)
	svc := NewService(newMemRepo(), nil, clk)

	weekly, err := svc.Create(ctx, CreateParams{Location: "A", StockingInterval: 7, Live: grid(t, 1, 1)})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateParams{Location: "B", StockingInterval: 30, Live: grid(t, 1, 1)})
	require.NoError(t, err)
	retired, err := svc.Create(ctx, CreateParams{Location: "C", StockingInterval: 1, Live: grid(t, 1, 1)})
	require.NoError(t, err)
	_, err = svc.SetActive(ctx, retired.ID, false)
	require.NoError(t, err)

	clk.AdvanceDays(7)
	due, err := svc.ListDue(ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, weekly.ID, due[0].ID)
}

func TestService_SetStockingIntervalPersists(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo(), nil, clock.Fixed(day0))

	m, err := svc.Create(ctx, CreateParams{Location: "A", StockingInterval: 14, Live: grid(t, 1, 1)})
	require.NoError(t, err)

	_, err = svc.SetStockingInterval(ctx, m.ID, 2)
	require.NoError(t, err)

	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.StockingInterval())
	assert.Equal(t, day0.AddDate(0, 0, 2).Format("2006-01-02"), got.NextVisit().String())
}

func TestService_SetPendingShapeMismatch(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemRepo(), nil, clock.Fixed(day0))

	m, err := svc.Create(ctx, CreateParams{Location: "A", StockingInterval: 7, Live: grid(t, 2, 2)})
	require.NoError(t, err)

	_, err = svc.SetPending(ctx, m.ID, grid(t, 2, 3))
	assert.True(t, apperror.HasCode(err, apperror.CodeLayoutShapeMismatch))
}

type lockedSet map[id.ID]bool

func (l lockedSet) Restocking(machineID id.ID) bool { return l[machineID] }

func TestService_EditsRefusedDuringVisit(t *testing.T) {
	ctx := context.Background()
	visits := lockedSet{}
	svc := NewService(newMemRepo(), nil, clock.Fixed(day0), WithVisitLock(visits))

	m, err := svc.Create(ctx, CreateParams{Location: "A", StockingInterval: 7, Live: grid(t, 1, 1)})
	require.NoError(t, err)
	visits[m.ID] = true

	edits := []struct {
		name string
		run  func() (*Machine, error)
	}{
		{"pending", func() (*Machine, error) { return svc.SetPending(ctx, m.ID, grid(t, 1, 1)) }},
		{"interval", func() (*Machine, error) { return svc.SetStockingInterval(ctx, m.ID, 3) }},
		{"location", func() (*Machine, error) { return svc.SetLocation(ctx, m.ID, "B") }},
		{"active", func() (*Machine, error) { return svc.SetActive(ctx, m.ID, false) }},
	}
	for _, tt := range edits {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.run()
			assert.True(t, apperror.HasCode(err, apperror.CodeMachineRestocking), err)
		})
	}

	got, err := svc.Get(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Restocking())
	assert.Equal(t, m.Version, got.Version)
	assert.Equal(t, 7, got.StockingInterval())

	listed, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].Restocking())

	delete(visits, m.ID)
	got, err = svc.SetStockingInterval(ctx, m.ID, 3)
	require.NoError(t, err)
	assert.False(t, got.Restocking())
}
