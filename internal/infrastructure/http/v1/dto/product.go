package dto

import (
	"vendstock/internal/core/types"
	"vendstock/internal/domain/product"
)

// CreateProductRequest for creating products.
type CreateProductRequest struct {
	Name          string      `json:"name" binding:"required"`
	Price         types.Money `json:"price"`
	ShelfLifeDays int         `json:"shelfLifeDays" binding:"required,min=1"`
}

// ToProduct validates the request through the domain constructor.
func (r CreateProductRequest) ToProduct() (*product.Product, error) {
	return product.NewProduct(r.Name, r.Price, r.ShelfLifeDays)
}

// UpdateProductRequest for updating products. Absent fields are kept.
type UpdateProductRequest struct {
	Name          *string      `json:"name"`
	Price         *types.Money `json:"price"`
	ShelfLifeDays *int         `json:"shelfLifeDays"`
	Active        *bool        `json:"active"`
	Version       int          `json:"version" binding:"required,min=1"`
}

// Apply copies the present fields onto p through its validating setters.
func (r UpdateProductRequest) Apply(p *product.Product) error {
	if r.Name != nil {
		if err := p.SetName(*r.Name); err != nil {
			return err
		}
	}
	if r.Price != nil {
		if err := p.SetPrice(*r.Price); err != nil {
			return err
		}
	}
	if r.ShelfLifeDays != nil {
		if err := p.SetShelfLifeDays(*r.ShelfLifeDays); err != nil {
			return err
		}
	}
	if r.Active != nil {
		p.SetActive(*r.Active)
	}
	p.SetVersion(r.Version)
	return nil
}

// ProductResponse contains product fields.
type ProductResponse struct {
	ID            string      `json:"id"`
	Version       int         `json:"version"`
	Name          string      `json:"name"`
	Price         types.Money `json:"price"`
	ShelfLifeDays int         `json:"shelfLifeDays"`
	Active        bool        `json:"active"`
}

// FromProduct creates ProductResponse from a domain product.
func FromProduct(p *product.Product) ProductResponse {
	return ProductResponse{
		ID:            p.ID.String(),
		Version:       p.Version,
		Name:          p.Name,
		Price:         p.Price,
		ShelfLifeDays: p.ShelfLifeDays,
		Active:        p.Active,
	}
}
