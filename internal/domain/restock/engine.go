package restock

import (
	"context"
	"errors"
	"fmt"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/clock"
	"vendstock/internal/domain/layout"
	"vendstock/internal/domain/machine"
	"vendstock/pkg/logger"
)

// State is the engine's commit-protocol state.
type State string

const (
	// StateOpen: at least one mandatory instruction is outstanding.
	StateOpen State = "open"
	// StateReconcilable: no mandatory instruction is outstanding; a commit would be accepted.
	StateReconcilable State = "reconcilable"
	// StateCommitted is terminal.
	StateCommitted State = "committed"
)

// Saver persists a machine and both of its layouts.
type Saver interface {
	Save(ctx context.Context, m *machine.Machine) error
}

// SaverFunc adapts a function to Saver.
type SaverFunc func(ctx context.Context, m *machine.Machine) error

// Save implements Saver.
func (f SaverFunc) Save(ctx context.Context, m *machine.Machine) error { return f(ctx, m) }

// CappedCell records a pending count lowered to the live count at commit.
type CappedCell struct {
	Row  int `json:"row"`
	Col  int `json:"col"`
	From int `json:"from"`
	To   int `json:"to"`
}

// Result is the outcome of CompleteStocking.
type Result struct {
	// Committed is set only once the saver accepted the machine.
	Committed bool
	// Remaining lists the still-mandatory descriptions of a refused commit.
	Remaining []string
	Capped    []CappedCell
}

// Engine reconciles one machine for one stocking visit.
//
// Thread-safety: not safe for concurrent use; callers serialize access.
type Engine struct {
	machine *machine.Machine
	saver   Saver
	clock   clock.Clock

	steps    []Step
	pending  map[Handle]Instruction
	resolved []Step
	working  *layout.Layout
	capped   []CappedCell
	state    State
}

// NewEngine plans the visit and takes the machine's restocking lock.
// The lock is released by a successful commit or by Close.
func NewEngine(m *machine.Machine, saver Saver, clk clock.Clock) (*Engine, error) {
	if m == nil {
		return nil, apperror.NewValidation("machine is required")
	}
	if saver == nil {
		return nil, apperror.NewValidation("saver is required")
	}
	if clk == nil {
		clk = clock.System()
	}

	plan, err := Plan(m.Live(), m.Pending(), m.StockingInterval(), clock.Today(clk))
	if err != nil {
		return nil, err
	}
	if err := m.BeginRestocking(); err != nil {
		return nil, err
	}

	e := &Engine{
		machine: m,
		saver:   saver,
		clock:   clk,
		pending: make(map[Handle]Instruction, len(plan)),
		working: m.Live().Clone(),
	}
	for i, ins := range plan {
		h := Handle(i + 1)
		e.steps = append(e.steps, Step{Handle: h, Instruction: ins})
		e.pending[h] = ins
	}
	e.refreshState()
	return e, nil
}

// Machine returns the machine the engine is bound to.
func (e *Engine) Machine() *machine.Machine { return e.machine }

// State returns the commit-protocol state.
func (e *Engine) State() State { return e.state }

// Instructions returns the outstanding instructions keyed by handle.
func (e *Engine) Instructions() map[Handle]Instruction {
	out := make(map[Handle]Instruction, len(e.pending))
	for h, ins := range e.pending {
		out[h] = ins
	}
	return out
}

// Steps returns the outstanding instructions in row-major order.
func (e *Engine) Steps() []Step {
	out := make([]Step, 0, len(e.pending))
	for _, s := range e.steps {
		if _, ok := e.pending[s.Handle]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Handles returns the outstanding handles in row-major order.
func (e *Engine) Handles() []Handle {
	steps := e.Steps()
	out := make([]Handle, len(steps))
	for i, s := range steps {
		out[i] = s.Handle
	}
	return out
}

// Descriptions returns the outstanding descriptions in row-major order.
func (e *Engine) Descriptions() []string {
	steps := e.Steps()
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Instruction.Description()
	}
	return out
}

// Mandatory returns the descriptions of outstanding mandatory instructions.
func (e *Engine) Mandatory() []string {
	var out []string
	for _, s := range e.Steps() {
		if s.Instruction.Mandatory() {
			out = append(out, s.Instruction.Description())
		}
	}
	return out
}

// Resolved returns the instructions applied so far, in resolution order.
func (e *Engine) Resolved() []Step {
	return append([]Step(nil), e.resolved...)
}

// Capped returns the pending cells capped by the last commit attempt.
func (e *Engine) Capped() []CappedCell {
	return append([]CappedCell(nil), e.capped...)
}

// WorkingSnapshot returns a copy of the layout the instructions mutate.
func (e *Engine) WorkingSnapshot() *layout.Layout {
	return e.working.Clone()
}

// Remove resolves the instruction behind h against the working snapshot.
// On error the instruction set and the snapshot are unchanged.
func (e *Engine) Remove(h Handle) error {
	if e.state == StateCommitted {
		return apperror.NewSessionCommitted()
	}
	ins, ok := e.pending[h]
	if !ok {
		return apperror.NewUnknownInstruction(int(h))
	}

	switch in := ins.(type) {
	case Removal:
		if err := e.working.SetCell(in.Row, in.Col, layout.Empty()); err != nil {
			return err
		}
	case Addition:
		if err := e.add(in); err != nil {
			return err
		}
	default:
		logger.Default().Errorw("unexpected instruction variant",
			"handle", h, "type", fmt.Sprintf("%T", ins), "machine_id", e.machine.ID)
		return apperror.NewInternal(fmt.Errorf("unexpected instruction variant %T", ins))
	}

	delete(e.pending, h)
	e.resolved = append(e.resolved, Step{Handle: h, Instruction: ins})
	e.refreshState()
	return nil
}

// TryRemove is Remove reduced to success or failure.
func (e *Engine) TryRemove(h Handle) bool {
	return e.Remove(h) == nil
}

// add installs a fresh slot. The target must be empty, or hold zero units of
// the same product (plain replenishment). A cell whose Removal is still
// outstanding counts as occupied whatever it holds.
func (e *Engine) add(in Addition) error {
	if e.removalPending(in.Row, in.Col) {
		return apperror.NewCellOccupied(in.Row, in.Col)
	}
	cell, err := e.working.Cell(in.Row, in.Col)
	if err != nil {
		return err
	}
	if cur, occupied := cell.Slot(); occupied {
		if cur.Count != 0 || !cur.Product.Same(in.Product) {
			return apperror.NewCellOccupied(in.Row, in.Col)
		}
	}

	slot, err := layout.NewSlot(in.Product.Clone(), in.Quantity,
		in.Product.ExpirationFrom(clock.Today(e.clock)))
	if err != nil {
		return err
	}
	return e.working.SetCell(in.Row, in.Col, layout.Occupied(slot))
}

func (e *Engine) removalPending(row, col int) bool {
	for _, ins := range e.pending {
		if r, ok := ins.(Removal); ok && r.Row == row && r.Col == col {
			return true
		}
	}
	return false
}

// CompleteStocking runs the commit protocol.
//
// Pending counts are capped to live counts where both cells hold the same product.
// The commit is refused while mandatory instructions remain. Otherwise the working
// snapshot, capped to depth, is swapped into a staged copy of the machine which is
// saved; the bound machine adopts the staged copy only after the save succeeds.
func (e *Engine) CompleteStocking(ctx context.Context) (Result, error) {
	if e.state == StateCommitted {
		return Result{Committed: true, Capped: e.Capped()}, apperror.NewSessionCommitted()
	}

	staged := e.machine.Clone()
	capped, err := capPending(staged)
	if err != nil {
		return Result{}, err
	}
	e.capped = capped

	if remaining := e.Mandatory(); len(remaining) > 0 {
		e.state = StateOpen
		return Result{Remaining: remaining, Capped: e.Capped()}, apperror.NewMandatoryRemaining(remaining)
	}
	e.state = StateReconcilable

	newLive := e.working.Clone()
	newLive.CapToDepth()
	if err := staged.SwapInNextLayout(newLive, e.clock.Now()); err != nil {
		return Result{}, err
	}

	if err := e.saver.Save(ctx, staged); err != nil {
		logger.Error(ctx, "restock commit not persisted", "machine_id", e.machine.ID, "error", err)
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return Result{Capped: e.Capped()}, err
		}
		return Result{Capped: e.Capped()}, apperror.NewDatabase(err)
	}

	e.machine.Adopt(staged)
	e.state = StateCommitted
	return Result{Committed: true, Capped: e.Capped()}, nil
}

// Close releases the machine's restocking lock without committing.
func (e *Engine) Close() {
	if e.state != StateCommitted {
		e.machine.EndRestocking()
	}
}

func (e *Engine) refreshState() {
	if e.state == StateCommitted {
		return
	}
	for _, ins := range e.pending {
		if ins.Mandatory() {
			e.state = StateOpen
			return
		}
	}
	e.state = StateReconcilable
}

// capPending lowers pending counts that exceed the live count of the same product
// and aligns the pending depth with the live depth.
func capPending(m *machine.Machine) ([]CappedCell, error) {
	live, pending := m.Live(), m.Pending()
	if err := pending.SetDepth(live.Depth()); err != nil {
		return nil, err
	}

	var capped []CappedCell
	var setErr error
	live.EachCell(func(row, col int, lc layout.Cell) {
		l, hasL := lc.Slot()
		p, hasP := pending.At(row, col).Slot()
		if setErr != nil || !hasL || !hasP || !l.SameProduct(p) || l.Count >= p.Count {
			return
		}
		capped = append(capped, CappedCell{Row: row, Col: col, From: p.Count, To: l.Count})
		p.Count = l.Count
		setErr = pending.SetCell(row, col, layout.Occupied(p))
	})
	if setErr != nil {
		return nil, setErr
	}
	return capped, nil
}
