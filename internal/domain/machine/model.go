// Package machine provides the vending Machine aggregate: a live layout, a pending
// (manager-approved target) layout and the visit scheduling rule.
package machine

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/entity"
	"vendstock/internal/core/types"
	"vendstock/internal/domain/layout"
)

// Machine is an unattended vending machine.
//
// Invariant: the live layout always carries a next-visit date.
type Machine struct {
	entity.BaseEntity

	location         string
	stockingInterval int
	active           bool
	live             *layout.Layout
	pending          *layout.Layout

	// restocking is set while a reconciliation engine owns the machine.
	restocking bool
}

// New builds an active machine and schedules its first visit at now + interval.
func New(location string, stockingIntervalDays int, live, pending *layout.Layout, now time.Time) (*Machine, error) {
	location = strings.TrimSpace(location)
	if err := validateLocation(location); err != nil {
		return nil, err
	}
	if err := validateInterval(stockingIntervalDays); err != nil {
		return nil, err
	}
	if err := validateLayouts(live, pending); err != nil {
		return nil, err
	}

	m := &Machine{
		BaseEntity:       entity.NewBaseEntity(),
		location:         location,
		stockingInterval: stockingIntervalDays,
		active:           true,
		live:             live,
		pending:          pending,
	}
	_ = m.live.SetNextVisit(m.visitFrom(now))
	return m, nil
}

// Restore rebuilds a machine from storage without rescheduling.
// A live layout without a next visit is scheduled from now.
func Restore(base entity.BaseEntity, location string, stockingIntervalDays int, active bool, live, pending *layout.Layout, now time.Time) (*Machine, error) {
	m, err := restore(base, location, stockingIntervalDays, active, live, pending)
	if err != nil {
		return nil, err
	}
	if _, ok := live.NextVisit(); !ok {
		_ = m.live.SetNextVisit(m.visitFrom(now))
	}
	return m, nil
}

func restore(base entity.BaseEntity, location string, stockingIntervalDays int, active bool, live, pending *layout.Layout) (*Machine, error) {
	if err := validateLocation(location); err != nil {
		return nil, err
	}
	if err := validateInterval(stockingIntervalDays); err != nil {
		return nil, err
	}
	if err := validateLayouts(live, pending); err != nil {
		return nil, err
	}
	m := &Machine{
		BaseEntity:       base,
		location:         location,
		stockingInterval: stockingIntervalDays,
		active:           active,
		live:             live,
		pending:          pending,
	}
	return m, nil
}

func (m *Machine) Location() string        { return m.location }
func (m *Machine) StockingInterval() int   { return m.stockingInterval }
func (m *Machine) Active() bool            { return m.active }
func (m *Machine) Live() *layout.Layout    { return m.live }
func (m *Machine) Pending() *layout.Layout { return m.pending }
func (m *Machine) Restocking() bool        { return m.restocking }

// NextVisit returns the live layout's scheduled visit.
func (m *Machine) NextVisit() types.Date {
	d, _ := m.live.NextVisit()
	return d
}

// IsDue reports whether the next visit is on or before today's date.
func (m *Machine) IsDue(now time.Time) bool {
	return !m.NextVisit().After(types.DateOf(now.UTC()))
}

// SetLocation moves the machine; unchanged on error.
func (m *Machine) SetLocation(location string) error {
	location = strings.TrimSpace(location)
	if err := validateLocation(location); err != nil {
		return err
	}
	m.location = location
	return nil
}

func (m *Machine) SetActive(active bool) {
	m.active = active
}

// SetPending installs a new target layout. It must match the live layout's shape.
func (m *Machine) SetPending(pending *layout.Layout) error {
	if err := validateLayouts(m.live, pending); err != nil {
		return err
	}
	m.pending = pending
	return nil
}

// ReplaceLive overwrites the live layout directly. Refused while a restocking
// engine owns the machine; the engine swaps layouts through SwapInNextLayout.
func (m *Machine) ReplaceLive(live *layout.Layout, now time.Time) error {
	if m.restocking {
		return apperror.NewBusinessRule(apperror.CodeMachineRestocking,
			"live layout cannot be replaced during a restocking visit")
	}
	if err := validateLayouts(live, m.pending); err != nil {
		return err
	}
	m.live = live
	if _, ok := live.NextVisit(); !ok {
		_ = m.live.SetNextVisit(m.visitFrom(now))
	}
	return nil
}

// SetStockingInterval changes the days between visits. The next visit moves
// earlier when now + interval is sooner than the current schedule and never moves later.
func (m *Machine) SetStockingInterval(days int, now time.Time) error {
	if err := validateInterval(days); err != nil {
		return err
	}
	m.stockingInterval = days

	candidate := m.visitFrom(now)
	if current, ok := m.live.NextVisit(); !ok || candidate.Before(current) {
		_ = m.live.SetNextVisit(candidate)
	}
	return nil
}

// SwapInNextLayout makes newLive the live layout, installs an empty pending
// placeholder of the same shape and depth, and schedules the next visit at now + interval.
func (m *Machine) SwapInNextLayout(newLive *layout.Layout, now time.Time) error {
	if err := newLive.Validate(); err != nil {
		return err
	}
	m.live = newLive
	m.pending = newLive.EmptyLike()
	return m.live.SetNextVisit(m.visitFrom(now))
}

// BeginRestocking marks the machine as owned by a reconciliation engine.
func (m *Machine) BeginRestocking() error {
	if m.restocking {
		return apperror.NewBusinessRule(apperror.CodeMachineRestocking,
			"machine already has a restocking visit in progress")
	}
	m.restocking = true
	return nil
}

// EndRestocking releases the engine's ownership.
func (m *Machine) EndRestocking() {
	m.restocking = false
}

// Adopt replaces m's state with staged, a clone that was modified and persisted
// by a restocking commit. The restocking lock is released.
func (m *Machine) Adopt(staged *Machine) {
	*m = *staged
	m.restocking = false
}

// Clone returns a deep copy with both layouts cloned.
func (m *Machine) Clone() *Machine {
	cp := *m
	cp.live = m.live.Clone()
	cp.pending = m.pending.Clone()
	return &cp
}

// Validate implements entity.Validatable.
func (m *Machine) Validate(ctx context.Context) error {
	if err := validateLocation(m.location); err != nil {
		return err
	}
	if err := validateInterval(m.stockingInterval); err != nil {
		return err
	}
	if err := validateLayouts(m.live, m.pending); err != nil {
		return err
	}
	if _, ok := m.live.NextVisit(); !ok {
		return apperror.NewValidation("live layout must have a next visit date").
			WithDetail("field", "live.nextVisit")
	}
	return nil
}

func (m *Machine) visitFrom(now time.Time) types.Date {
	return types.DateOf(now.UTC()).AddDays(m.stockingInterval)
}

// --- Validation Helpers ---

func validateLocation(location string) error {
	if location == "" {
		return apperror.NewValidation("location is required").
			WithDetail("field", "location")
	}
	return nil
}

func validateInterval(days int) error {
	if days <= 0 {
		return apperror.NewValidation("stocking interval must be positive").
			WithDetail("field", "stockingInterval").
			WithDetail("value", days)
	}
	return nil
}

func validateLayouts(live, pending *layout.Layout) error {
	if live == nil || pending == nil {
		return apperror.NewValidation("machine needs both a live and a pending layout").
			WithDetail("field", "layouts")
	}
	if live == pending {
		return apperror.NewValidation("live and pending layouts must be distinct objects").
			WithDetail("field", "layouts")
	}
	if !live.SameShape(pending) {
		return apperror.NewBusinessRule(apperror.CodeLayoutShapeMismatch,
			"live and pending layouts must have identical dimensions").
			WithDetail("live", [2]int{live.Rows(), live.Cols()}).
			WithDetail("pending", [2]int{pending.Rows(), pending.Cols()})
	}
	if err := live.Validate(); err != nil {
		return err
	}
	return pending.Validate()
}

// --- JSON ---

type machineJSON struct {
	entity.BaseEntity
	Location         string         `json:"location"`
	StockingInterval int            `json:"stockingInterval"`
	Active           bool           `json:"active"`
	Live             *layout.Layout `json:"live"`
	Pending          *layout.Layout `json:"pending"`
}

func (m *Machine) MarshalJSON() ([]byte, error) {
	return json.Marshal(machineJSON{
		BaseEntity:       m.BaseEntity,
		Location:         m.location,
		StockingInterval: m.stockingInterval,
		Active:           m.active,
		Live:             m.live,
		Pending:          m.pending,
	})
}

// UnmarshalJSON decodes a document written by MarshalJSON. A live layout
// without a next visit is rejected.
func (m *Machine) UnmarshalJSON(data []byte) error {
	var in machineJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	restored, err := restore(in.BaseEntity, in.Location, in.StockingInterval, in.Active, in.Live, in.Pending)
	if err != nil {
		return err
	}
	// Marshalled machines always carry a schedule; there is no clock here to invent one.
	if _, ok := restored.live.NextVisit(); !ok {
		return apperror.NewValidation("live layout must have a next visit date").
			WithDetail("field", "live.nextVisit")
	}
	*m = *restored
	return nil
}
