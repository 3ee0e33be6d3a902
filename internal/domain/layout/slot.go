package layout

import (
	"vendstock/internal/core/apperror"
	"vendstock/internal/core/types"
	"vendstock/internal/domain/product"
)

// Slot is the occupant of one grid cell: a product, how many are left and when they expire.
type Slot struct {
	Product    *product.Product `json:"product"`
	Count      int              `json:"count"`
	Expiration types.Date       `json:"expiration"`
}

// NewSlot validates and builds a slot.
func NewSlot(p *product.Product, count int, expiration types.Date) (Slot, error) {
	if err := validateProduct(p); err != nil {
		return Slot{}, err
	}
	if err := validateCount(count); err != nil {
		return Slot{}, err
	}
	if err := validateExpiration(expiration); err != nil {
		return Slot{}, err
	}
	return Slot{Product: p, Count: count, Expiration: expiration}, nil
}

// MustSlot builds a slot and panics on invalid input. Use only for constants and tests.
func MustSlot(p *product.Product, count int, expiration types.Date) Slot {
	s, err := NewSlot(p, count, expiration)
	if err != nil {
		panic(err)
	}
	return s
}

// SetCount changes the remaining count; the slot is unchanged on error.
func (s *Slot) SetCount(count int) error {
	if err := validateCount(count); err != nil {
		return err
	}
	s.Count = count
	return nil
}

// SetExpiration changes the expiration date; the slot is unchanged on error.
func (s *Slot) SetExpiration(d types.Date) error {
	if err := validateExpiration(d); err != nil {
		return err
	}
	s.Expiration = d
	return nil
}

// SetProduct replaces the product; the slot is unchanged on error.
func (s *Slot) SetProduct(p *product.Product) error {
	if err := validateProduct(p); err != nil {
		return err
	}
	s.Product = p
	return nil
}

// Validate checks slot invariants.
func (s Slot) Validate() error {
	if err := validateProduct(s.Product); err != nil {
		return err
	}
	if err := validateCount(s.Count); err != nil {
		return err
	}
	return validateExpiration(s.Expiration)
}

// SameProduct reports whether both slots hold the same catalog product.
func (s Slot) SameProduct(other Slot) bool {
	return s.Product.Same(other.Product)
}

// SameContents compares product, count and expiration.
func (s Slot) SameContents(other Slot) bool {
	return s.SameProduct(other) &&
		s.Count == other.Count &&
		s.Expiration.Equal(other.Expiration)
}

// Equal is strict value equality: every product field, count and expiration.
// Unlike SameContents it tells a renamed or repriced product apart.
func (s Slot) Equal(other Slot) bool {
	return s.Product.Equal(other.Product) &&
		s.Count == other.Count &&
		s.Expiration.Equal(other.Expiration)
}

// ExpiresBefore reports whether the slot's stock expires strictly before day.
func (s Slot) ExpiresBefore(day types.Date) bool {
	return s.Expiration.Before(day)
}

func (s Slot) clone() Slot {
	return Slot{Product: s.Product.Clone(), Count: s.Count, Expiration: s.Expiration}
}

func validateProduct(p *product.Product) error {
	if p == nil {
		return apperror.NewValidation("slot product is required").
			WithDetail("field", "product")
	}
	return nil
}

func validateCount(count int) error {
	if count < 0 {
		return apperror.NewValidation("slot count must not be negative").
			WithDetail("field", "count").
			WithDetail("value", count)
	}
	return nil
}

func validateExpiration(d types.Date) error {
	if d.IsZero() {
		return apperror.NewValidation("slot expiration date is required").
			WithDetail("field", "expiration")
	}
	return nil
}
