package machine

import (
	"context"
	"fmt"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/clock"
	"vendstock/internal/core/id"
	"vendstock/internal/core/tx"
	"vendstock/internal/domain/layout"
	"vendstock/pkg/logger"
)

// VisitLock reports whether an open restocking visit owns a machine.
type VisitLock interface {
	Restocking(machineID id.ID) bool
}

// Service provides machine administration: registration, target layouts and scheduling.
type Service struct {
	repo      Repository
	txManager tx.Manager
	clock     clock.Clock
	visits    VisitLock
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithVisitLock makes the service refuse edits to machines that are being restocked.
func WithVisitLock(l VisitLock) ServiceOption { return func(s *Service) { s.visits = l } }

// NewService creates a new machine service.
func NewService(repo Repository, txManager tx.Manager, clk clock.Clock, opts ...ServiceOption) *Service {
	if txManager == nil {
		txManager = tx.Passthrough{}
	}
	if clk == nil {
		clk = clock.System()
	}
	s := &Service{repo: repo, txManager: txManager, clock: clk}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateParams describes a machine registration.
type CreateParams struct {
	Location         string
	StockingInterval int
	Live             *layout.Layout
	Pending          *layout.Layout
}

// Create registers a machine. A nil Pending defaults to an empty layout shaped like Live.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Machine, error) {
	if p.Live == nil {
		return nil, apperror.NewValidation("live layout is required").WithDetail("field", "live")
	}
	if p.Pending == nil {
		p.Pending = p.Live.EmptyLike()
	}
	m, err := New(p.Location, p.StockingInterval, p.Live, p.Pending, s.clock.Now())
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Save(ctx, m); err != nil {
			return fmt.Errorf("create machine: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "machine created", "id", m.ID, "location", m.Location(), "next_visit", m.NextVisit())
	return m, nil
}

// Get retrieves a machine.
func (s *Service) Get(ctx context.Context, machineID id.ID) (*Machine, error) {
	m, err := s.repo.GetByID(ctx, machineID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, apperror.NewNotFound("machine", machineID.String())
		}
		return nil, err
	}
	s.markVisit(m)
	return m, nil
}

// List retrieves machines with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Machine, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.list(ctx, filter)
}

// ListDue returns active machines whose next visit is today or earlier.
func (s *Service) ListDue(ctx context.Context) ([]*Machine, error) {
	return s.list(ctx, ListFilter{
		ActiveOnly: true,
		DueBy:      clock.Today(s.clock),
	})
}

func (s *Service) list(ctx context.Context, filter ListFilter) ([]*Machine, error) {
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	for _, m := range items {
		s.markVisit(m)
	}
	return items, nil
}

// markVisit copies the visit lock onto a loaded machine.
func (s *Service) markVisit(m *Machine) {
	if s.visits != nil && s.visits.Restocking(m.ID) {
		m.restocking = true
	}
}

// SetPending replaces the machine's target layout.
func (s *Service) SetPending(ctx context.Context, machineID id.ID, pending *layout.Layout) (*Machine, error) {
	return s.update(ctx, machineID, "set pending layout", func(m *Machine) error {
		return m.SetPending(pending)
	})
}

// SetStockingInterval changes the visit interval, pulling the next visit earlier when needed.
func (s *Service) SetStockingInterval(ctx context.Context, machineID id.ID, days int) (*Machine, error) {
	return s.update(ctx, machineID, "set stocking interval", func(m *Machine) error {
		return m.SetStockingInterval(days, s.clock.Now())
	})
}

// SetLocation moves the machine.
func (s *Service) SetLocation(ctx context.Context, machineID id.ID, location string) (*Machine, error) {
	return s.update(ctx, machineID, "set location", func(m *Machine) error {
		return m.SetLocation(location)
	})
}

// SetActive retires or reactivates the machine.
func (s *Service) SetActive(ctx context.Context, machineID id.ID, active bool) (*Machine, error) {
	return s.update(ctx, machineID, "set active", func(m *Machine) error {
		m.SetActive(active)
		return nil
	})
}

func (s *Service) update(ctx context.Context, machineID id.ID, op string, mutate func(*Machine) error) (*Machine, error) {
	var out *Machine
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		m, err := s.Get(ctx, machineID)
		if err != nil {
			return err
		}
		if m.Restocking() {
			return apperror.NewBusinessRule(apperror.CodeMachineRestocking,
				"machine cannot be edited during a restocking visit").
				WithDetail("machineId", machineID.String())
		}
		if err := mutate(m); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, m); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "machine updated", "id", machineID, "op", op, "version", out.Version)
	return out, nil
}
