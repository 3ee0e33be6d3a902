package machine

import (
	"context"

	"vendstock/internal/core/id"
	"vendstock/internal/core/types"
)

// ListFilter narrows machine listings.
type ListFilter struct {
	ActiveOnly bool
	// DueBy keeps only machines whose next visit is on or before this date.
	DueBy  types.Date
	Limit  int
	Offset int
}

// Repository defines the interface for Machine persistence.
// Save inserts or updates the machine and both layouts in one unit of work;
// a stale Version yields a CONCURRENT_MODIFICATION error.
type Repository interface {
	Save(ctx context.Context, m *Machine) error
	GetByID(ctx context.Context, id id.ID) (*Machine, error)
	List(ctx context.Context, filter ListFilter) ([]*Machine, error)
}
