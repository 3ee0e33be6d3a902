package dto

import (
	"vendstock/internal/core/types"
	"vendstock/internal/domain/layout"
	"vendstock/internal/domain/machine"
)

// SlotRequest describes one occupied cell. A missing expiration means
// "today plus the product's shelf life".
type SlotRequest struct {
	ProductID  string      `json:"productId" binding:"required"`
	Count      int         `json:"count" binding:"min=0"`
	Expiration *types.Date `json:"expiration"`
}

// LayoutRequest is a grid where null cells are empty.
type LayoutRequest struct {
	Depth int              `json:"depth" binding:"required,min=1"`
	Cells [][]*SlotRequest `json:"cells" binding:"required"`
}

// CreateMachineRequest for creating machines. A missing pending layout starts empty.
type CreateMachineRequest struct {
	Location         string         `json:"location" binding:"required"`
	StockingInterval int            `json:"stockingInterval" binding:"required,min=1"`
	Live             LayoutRequest  `json:"live" binding:"required"`
	Pending          *LayoutRequest `json:"pending"`
}

// SetIntervalRequest changes the stocking interval.
type SetIntervalRequest struct {
	Days int `json:"days" binding:"required,min=1"`
}

// MachineResponse contains machine fields and both layouts.
type MachineResponse struct {
	ID               string         `json:"id"`
	Version          int            `json:"version"`
	Location         string         `json:"location"`
	StockingInterval int            `json:"stockingInterval"`
	Active           bool           `json:"active"`
	NextVisit        types.Date     `json:"nextVisit"`
	Restocking       bool           `json:"restocking"`
	Live             *layout.Layout `json:"live,omitempty"`
	Pending          *layout.Layout `json:"pending,omitempty"`
}

// FromMachine creates MachineResponse; withLayouts=false leaves the grids out of list responses.
func FromMachine(m *machine.Machine, withLayouts bool) MachineResponse {
	out := MachineResponse{
		ID:               m.ID.String(),
		Version:          m.Version,
		Location:         m.Location(),
		StockingInterval: m.StockingInterval(),
		Active:           m.Active(),
		NextVisit:        m.NextVisit(),
		Restocking:       m.Restocking(),
	}
	if withLayouts {
		out.Live = m.Live()
		out.Pending = m.Pending()
	}
	return out
}

// UpdateMachineRequest changes location or activity. Absent fields are kept.
type UpdateMachineRequest struct {
	Location *string `json:"location"`
	Active   *bool   `json:"active"`
}
