// Package entity holds the fields shared by every persisted aggregate.
package entity

import (
	"context"

	"vendstock/internal/core/id"
)

// Validatable is implemented by entities that support self-validation.
// Validation checks internal invariants (without database access).
type Validatable interface {
	// Validate checks entity invariants.
	// Returns nil if valid, AppError with details otherwise.
	Validate(ctx context.Context) error
}

// BaseEntity contains common fields for products, layouts and machines.
type BaseEntity struct {
	// ID is the surrogate primary key (UUIDv7). Nil until first persistence.
	ID id.ID `db:"id" json:"id"`

	// Version for optimistic locking (incremented on each save)
	Version int `db:"version" json:"version"`
}

// NewBaseEntity creates a new BaseEntity with generated ID.
func NewBaseEntity() BaseEntity {
	return BaseEntity{
		ID:      id.New(),
		Version: 1,
	}
}

// EnsureID assigns a surrogate key if the entity has none yet.
func (b *BaseEntity) EnsureID() {
	if id.IsNil(b.ID) {
		b.ID = id.New()
		if b.Version == 0 {
			b.Version = 1
		}
	}
}

// IsPersisted reports whether a surrogate key was assigned.
func (b *BaseEntity) IsPersisted() bool {
	return !id.IsNil(b.ID)
}

// Touch increments version (for optimistic locking).
func (b *BaseEntity) Touch() {
	b.Version++
}

// SetVersion updates the version number (used by repository after sync).
func (b *BaseEntity) SetVersion(v int) {
	b.Version = v
}
