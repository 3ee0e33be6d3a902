// Package machine_repo provides the PostgreSQL machine repository: machines,
// their live and pending layouts and the slots of both.
package machine_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/clock"
	"vendstock/internal/core/entity"
	"vendstock/internal/core/id"
	"vendstock/internal/core/types"
	"vendstock/internal/domain/layout"
	"vendstock/internal/domain/machine"
	"vendstock/internal/domain/product"
	"vendstock/internal/infrastructure/storage/postgres"
)

const (
	tableMachines = "machines"
	tableLayouts  = "layouts"
	tableSlots    = "slots"

	roleLive    = "live"
	rolePending = "pending"
)

var slotColumns = []string{"layout_id", "row_idx", "col_idx", "product_id", "count", "expiration"}

type machineRow struct {
	ID               id.ID  `db:"id"`
	Version          int    `db:"version"`
	Location         string `db:"location"`
	StockingInterval int    `db:"stocking_interval_days"`
	Active           bool   `db:"active"`
}

type layoutRow struct {
	ID        id.ID      `db:"id"`
	MachineID id.ID      `db:"machine_id"`
	Role      string     `db:"role"`
	Rows      int        `db:"rows_count"`
	Cols      int        `db:"cols_count"`
	Depth     int        `db:"depth"`
	NextVisit types.Date `db:"next_visit"`
}

type slotRow struct {
	LayoutID   id.ID      `db:"layout_id"`
	Row        int        `db:"row_idx"`
	Col        int        `db:"col_idx"`
	Count      int        `db:"count"`
	Expiration types.Date `db:"expiration"`

	product.Product
}

// MachineRepo implements machine.Repository.
type MachineRepo struct {
	txManager *postgres.TxManager
	batch     *postgres.BatchExecutor
	copier    *postgres.BatchInserter
	clock     clock.Clock
}

var _ machine.Repository = (*MachineRepo)(nil)

// NewMachineRepo creates a new machine repository.
func NewMachineRepo(txManager *postgres.TxManager, clk clock.Clock) *MachineRepo {
	if clk == nil {
		clk = clock.System()
	}
	return &MachineRepo{
		txManager: txManager,
		batch:     postgres.NewBatchExecutor(txManager),
		copier:    postgres.NewBatchInserter(txManager),
		clock:     clk,
	}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *MachineRepo) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Save upserts the machine and rewrites both layouts and their slots.
// An existing machine is updated only at the caller's version.
func (r *MachineRepo) Save(ctx context.Context, m *machine.Machine) error {
	m.EnsureID()
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		newVersion, err := r.upsertMachine(ctx, m)
		if err != nil {
			return err
		}

		if _, err := r.txManager.GetQuerier(ctx).Exec(ctx,
			"DELETE FROM layouts WHERE machine_id = $1", m.ID); err != nil {
			return fmt.Errorf("delete layouts: %w", err)
		}

		live, pending := m.Live(), m.Pending()
		live.EnsureID()
		pending.EnsureID()
		if err := r.batch.ExecuteBatch(ctx, []postgres.BatchQuery{
			insertLayout(m.ID, roleLive, live),
			insertLayout(m.ID, rolePending, pending),
		}); err != nil {
			return fmt.Errorf("insert layouts: %w", err)
		}

		rows, err := slotRows(live)
		if err != nil {
			return err
		}
		pendingRows, err := slotRows(pending)
		if err != nil {
			return err
		}
		if _, err := r.copier.CopyFromSlice(ctx, tableSlots, slotColumns, append(rows, pendingRows...)); err != nil {
			return fmt.Errorf("copy slots: %w", err)
		}

		m.SetVersion(newVersion)
		return nil
	})
}

// upsertMachine updates the machine row at the expected version, or inserts it when absent.
func (r *MachineRepo) upsertMachine(ctx context.Context, m *machine.Machine) (int, error) {
	q := r.txManager.GetQuerier(ctx)

	sql, args, err := r.updateQuery(m).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}
	var version int
	err = q.QueryRow(ctx, sql, args...).Scan(&version)
	if err == nil {
		return version, nil
	}
	if !pgxscan.NotFound(err) {
		return 0, fmt.Errorf("update machine: %w", err)
	}

	var exists bool
	if err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM machines WHERE id = $1)", m.ID).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check machine: %w", err)
	}
	if exists {
		return 0, apperror.NewConcurrentModification(tableMachines, m.ID.String())
	}

	version = m.Version
	if version == 0 {
		version = 1
	}
	sql, args, err = r.Builder().Insert(tableMachines).
		Columns("id", "version", "location", "stocking_interval_days", "active").
		Values(m.ID, version, m.Location(), m.StockingInterval(), m.Active()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	if _, err := q.Exec(ctx, sql, args...); err != nil {
		return 0, fmt.Errorf("insert machine: %w", err)
	}
	return version, nil
}

func (r *MachineRepo) updateQuery(m *machine.Machine) squirrel.UpdateBuilder {
	return r.Builder().Update(tableMachines).
		Set("location", m.Location()).
		Set("stocking_interval_days", m.StockingInterval()).
		Set("active", m.Active()).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": m.ID}).
		Where(squirrel.Eq{"version": m.Version}).
		Suffix("RETURNING version")
}

func insertLayout(machineID id.ID, role string, l *layout.Layout) postgres.BatchQuery {
	var nextVisit any
	if d, ok := l.NextVisit(); ok {
		nextVisit = d
	}
	return postgres.BatchQuery{
		SQL: `INSERT INTO layouts (id, machine_id, role, rows_count, cols_count, depth, next_visit)
		      VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		Args: []any{l.ID, machineID, role, l.Rows(), l.Cols(), l.Depth(), nextVisit},
	}
}

// slotRows flattens the occupied cells of l. Every slot product must be persisted.
func slotRows(l *layout.Layout) ([][]any, error) {
	var rows [][]any
	var err error
	l.EachCell(func(row, col int, c layout.Cell) {
		s, ok := c.Slot()
		if !ok || err != nil {
			return
		}
		if !s.Product.IsPersisted() {
			err = apperror.NewValidation("slot product must be saved before the layout").
				WithDetail("row", row).
				WithDetail("col", col).
				WithDetail("product", s.Product.Name)
			return
		}
		rows = append(rows, []any{l.ID, row, col, s.Product.ID, s.Count, s.Expiration})
	})
	return rows, err
}

// GetByID loads a machine with both layouts.
func (r *MachineRepo) GetByID(ctx context.Context, machineID id.ID) (*machine.Machine, error) {
	sql, args, err := r.machineSelect().Where(squirrel.Eq{"m.id": machineID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row machineRow
	if err := pgxscan.Get(ctx, r.txManager.GetQuerier(ctx), &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound(tableMachines, machineID.String())
		}
		return nil, fmt.Errorf("get machine: %w", err)
	}

	machines, err := r.hydrate(ctx, []machineRow{row})
	if err != nil {
		return nil, err
	}
	return machines[0], nil
}

// List loads machines matching filter, ordered by next visit.
func (r *MachineRepo) List(ctx context.Context, filter machine.ListFilter) ([]*machine.Machine, error) {
	sql, args, err := r.listQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []machineRow
	if err := pgxscan.Select(ctx, r.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return r.hydrate(ctx, rows)
}

func (r *MachineRepo) machineSelect() squirrel.SelectBuilder {
	return r.Builder().
		Select("m.id", "m.version", "m.location", "m.stocking_interval_days", "m.active").
		From("machines m")
}

func (r *MachineRepo) listQuery(filter machine.ListFilter) squirrel.SelectBuilder {
	q := r.machineSelect().
		Join("layouts l ON l.machine_id = m.id AND l.role = 'live'")
	if filter.ActiveOnly {
		q = q.Where(squirrel.Eq{"m.active": true})
	}
	if !filter.DueBy.IsZero() {
		q = q.Where(squirrel.LtOrEq{"l.next_visit": filter.DueBy})
	}
	q = q.OrderBy("l.next_visit", "m.id")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

// hydrate loads layouts and slots for rows and assembles the aggregates.
func (r *MachineRepo) hydrate(ctx context.Context, rows []machineRow) ([]*machine.Machine, error) {
	ids := make([]id.ID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	q := r.txManager.GetQuerier(ctx)

	sql, args, err := r.Builder().
		Select("id", "machine_id", "role", "rows_count", "cols_count", "depth", "next_visit").
		From(tableLayouts).
		Where(squirrel.Eq{"machine_id": ids}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build layouts query: %w", err)
	}
	var layoutRows []layoutRow
	if err := pgxscan.Select(ctx, q, &layoutRows, sql, args...); err != nil {
		return nil, fmt.Errorf("load layouts: %w", err)
	}

	layoutIDs := make([]id.ID, len(layoutRows))
	for i, lr := range layoutRows {
		layoutIDs[i] = lr.ID
	}
	sql, args, err = r.Builder().
		Select("s.layout_id", "s.row_idx", "s.col_idx", "s.count", "s.expiration",
			"p.id", "p.version", "p.name", "p.price", "p.shelf_life_days", "p.active").
		From("slots s").
		Join("products p ON p.id = s.product_id").
		Where(squirrel.Eq{"s.layout_id": layoutIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build slots query: %w", err)
	}
	var slots []slotRow
	if err := pgxscan.Select(ctx, q, &slots, sql, args...); err != nil {
		return nil, fmt.Errorf("load slots: %w", err)
	}

	bySlotLayout := make(map[id.ID][]slotRow)
	for _, s := range slots {
		bySlotLayout[s.LayoutID] = append(bySlotLayout[s.LayoutID], s)
	}
	type pair struct{ live, pending *layout.Layout }
	byMachine := make(map[id.ID]*pair)
	for _, lr := range layoutRows {
		l, err := buildLayout(lr, bySlotLayout[lr.ID])
		if err != nil {
			return nil, fmt.Errorf("machine %s %s layout: %w", lr.MachineID, lr.Role, err)
		}
		p := byMachine[lr.MachineID]
		if p == nil {
			p = &pair{}
			byMachine[lr.MachineID] = p
		}
		if lr.Role == roleLive {
			p.live = l
		} else {
			p.pending = l
		}
	}

	now := r.clock.Now()
	out := make([]*machine.Machine, 0, len(rows))
	for _, row := range rows {
		p := byMachine[row.ID]
		if p == nil || p.live == nil || p.pending == nil {
			return nil, apperror.NewInternal(fmt.Errorf("machine %s is missing a layout", row.ID))
		}
		m, err := machine.Restore(
			entity.BaseEntity{ID: row.ID, Version: row.Version},
			row.Location, row.StockingInterval, row.Active, p.live, p.pending, now)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func buildLayout(lr layoutRow, slots []slotRow) (*layout.Layout, error) {
	l, err := layout.New(lr.Rows, lr.Cols, lr.Depth)
	if err != nil {
		return nil, err
	}
	l.ID = lr.ID
	if !lr.NextVisit.IsZero() {
		if err := l.SetNextVisit(lr.NextVisit); err != nil {
			return nil, err
		}
	}
	for _, s := range slots {
		p := s.Product
		slot, err := layout.NewSlot(&p, s.Count, s.Expiration)
		if err != nil {
			return nil, err
		}
		if err := l.SetCell(s.Row, s.Col, layout.Occupied(slot)); err != nil {
			return nil, err
		}
	}
	return l, nil
}
