// Package product provides the Product catalog: sellable goods with a price and a shelf life.
package product

import (
	"context"
	"strings"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/entity"
	"vendstock/internal/core/types"
)

// Product is a sellable good. Value equality covers every field except the surrogate key.
type Product struct {
	entity.BaseEntity

	Name          string      `db:"name" json:"name"`
	Price         types.Money `db:"price" json:"price"`
	ShelfLifeDays int         `db:"shelf_life_days" json:"shelfLifeDays"`
	Active        bool        `db:"active" json:"active"`
}

// NewProduct creates an active product. The surrogate key is assigned on first persistence.
func NewProduct(name string, price types.Money, shelfLifeDays int) (*Product, error) {
	p := &Product{
		Name:          strings.TrimSpace(name),
		Price:         price,
		ShelfLifeDays: shelfLifeDays,
		Active:        true,
	}
	if err := p.Validate(context.Background()); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate implements entity.Validatable.
func (p *Product) Validate(ctx context.Context) error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	if err := validatePrice(p.Price); err != nil {
		return err
	}
	return validateShelfLife(p.ShelfLifeDays)
}

// SetName renames the product; the product is unchanged on error.
func (p *Product) SetName(name string) error {
	name = strings.TrimSpace(name)
	if err := validateName(name); err != nil {
		return err
	}
	p.Name = name
	return nil
}

// SetPrice changes the price; the product is unchanged on error.
func (p *Product) SetPrice(price types.Money) error {
	if err := validatePrice(price); err != nil {
		return err
	}
	p.Price = price
	return nil
}

// SetShelfLifeDays changes the shelf life; the product is unchanged on error.
func (p *Product) SetShelfLifeDays(days int) error {
	if err := validateShelfLife(days); err != nil {
		return err
	}
	p.ShelfLifeDays = days
	return nil
}

func (p *Product) SetActive(active bool) {
	p.Active = active
}

// ExpirationFrom returns the expiration date of stock loaded on day.
func (p *Product) ExpirationFrom(day types.Date) types.Date {
	return day.AddDays(p.ShelfLifeDays)
}

// Equal compares all value fields, ignoring the surrogate key and version.
func (p *Product) Equal(other *Product) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.Name == other.Name &&
		p.Price.Equal(other.Price) &&
		p.ShelfLifeDays == other.ShelfLifeDays &&
		p.Active == other.Active
}

// Same reports whether p and other denote the same catalog product:
// identical surrogate keys when both are persisted, value equality otherwise.
func (p *Product) Same(other *Product) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.IsPersisted() && other.IsPersisted() {
		return p.ID == other.ID
	}
	return p.Equal(other)
}

// Clone returns an independent copy.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

// --- Validation Helpers ---

func validateName(name string) error {
	if name == "" {
		return apperror.NewValidation("product name is required").
			WithDetail("field", "name")
	}
	return nil
}

func validatePrice(price types.Money) error {
	if price.IsNegative() {
		return apperror.NewValidation("price must not be negative").
			WithDetail("field", "price").
			WithDetail("value", price.String())
	}
	return nil
}

func validateShelfLife(days int) error {
	if days <= 0 {
		return apperror.NewValidation("shelf life must be positive").
			WithDetail("field", "shelfLifeDays").
			WithDetail("value", days)
	}
	return nil
}
