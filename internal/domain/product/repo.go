package product

import (
	"context"

	"vendstock/internal/core/id"
)

// ListFilter narrows product listings.
type ListFilter struct {
	ActiveOnly bool
	Search     string
	Limit      int
	Offset     int
}

// Repository defines the interface for Product persistence.
type Repository interface {
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	GetByID(ctx context.Context, id id.ID) (*Product, error)
	List(ctx context.Context, filter ListFilter) ([]*Product, error)
}
