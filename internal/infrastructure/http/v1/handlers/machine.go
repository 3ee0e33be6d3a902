package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"vendstock/internal/core/apperror"
	"vendstock/internal/core/clock"
	"vendstock/internal/core/id"
	"vendstock/internal/core/types"
	"vendstock/internal/domain/layout"
	"vendstock/internal/domain/machine"
	"vendstock/internal/domain/product"
	"vendstock/internal/domain/restock"
	"vendstock/internal/infrastructure/http/v1/dto"
)

// MachineHandler serves machines, their layouts and visit previews.
type MachineHandler struct {
	*BaseHandler
	machines *machine.Service
	products *product.Service
	restock  *restock.Service
	clock    clock.Clock
}

// NewMachineHandler creates a new machine handler.
func NewMachineHandler(base *BaseHandler, machines *machine.Service, products *product.Service, rs *restock.Service, clk clock.Clock) *MachineHandler {
	if clk == nil {
		clk = clock.System()
	}
	return &MachineHandler{BaseHandler: base, machines: machines, products: products, restock: rs, clock: clk}
}

// List handles GET /machines. ?due=true restricts to active machines due today;
// ?dueBy=YYYY-MM-DD to those due by that date.
func (h *MachineHandler) List(c *gin.Context) {
	filter := machine.ListFilter{
		ActiveOnly: c.Query("active") == "true",
		Limit:      h.ParseIntQuery(c, "limit", 50),
		Offset:     h.ParseIntQuery(c, "offset", 0),
	}
	if c.Query("due") == "true" {
		filter.ActiveOnly = true
		filter.DueBy = clock.Today(h.clock)
	}
	if raw := c.Query("dueBy"); raw != "" {
		d, err := types.ParseDate(raw)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid dueBy date").WithDetail("value", raw))
			return
		}
		filter.DueBy = d
	}

	items, err := h.machines.List(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}
	out := make([]dto.MachineResponse, len(items))
	for i, m := range items {
		out[i] = dto.FromMachine(m, false)
	}
	h.OK(c, dto.ListResponse{Items: out, Count: len(out), Limit: filter.Limit, Offset: filter.Offset})
}

// Create handles POST /machines.
func (h *MachineHandler) Create(c *gin.Context) {
	var req dto.CreateMachineRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	live, err := h.buildLayout(ctx, req.Live)
	if err != nil {
		h.Error(c, err)
		return
	}
	var pending *layout.Layout
	if req.Pending != nil {
		if pending, err = h.buildLayout(ctx, *req.Pending); err != nil {
			h.Error(c, err)
			return
		}
	}

	m, err := h.machines.Create(ctx, machine.CreateParams{
		Location:         req.Location,
		StockingInterval: req.StockingInterval,
		Live:             live,
		Pending:          pending,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromMachine(m, true))
}

// Get handles GET /machines/:id.
func (h *MachineHandler) Get(c *gin.Context) {
	machineID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	m, err := h.machines.Get(c.Request.Context(), machineID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromMachine(m, true))
}

// Update handles PUT /machines/:id.
func (h *MachineHandler) Update(c *gin.Context) {
	machineID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateMachineRequest
	if !h.BindJSON(c, &req) {
		return
	}
	if req.Location == nil && req.Active == nil {
		h.Error(c, apperror.NewValidation("nothing to update"))
		return
	}
	ctx := c.Request.Context()

	var (
		m   *machine.Machine
		err error
	)
	if req.Location != nil {
		if m, err = h.machines.SetLocation(ctx, machineID, *req.Location); err != nil {
			h.Error(c, err)
			return
		}
	}
	if req.Active != nil {
		if m, err = h.machines.SetActive(ctx, machineID, *req.Active); err != nil {
			h.Error(c, err)
			return
		}
	}
	h.OK(c, dto.FromMachine(m, false))
}

// SetPending handles PUT /machines/:id/pending.
func (h *MachineHandler) SetPending(c *gin.Context) {
	machineID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.LayoutRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ctx := c.Request.Context()

	pending, err := h.buildLayout(ctx, req)
	if err != nil {
		h.Error(c, err)
		return
	}
	m, err := h.machines.SetPending(ctx, machineID, pending)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromMachine(m, true))
}

// SetInterval handles PUT /machines/:id/interval.
func (h *MachineHandler) SetInterval(c *gin.Context) {
	machineID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	var req dto.SetIntervalRequest
	if !h.BindJSON(c, &req) {
		return
	}
	m, err := h.machines.SetStockingInterval(c.Request.Context(), machineID, req.Days)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromMachine(m, false))
}

// Plan handles GET /machines/:id/plan: the worklist a visit would start with.
func (h *MachineHandler) Plan(c *gin.Context) {
	machineID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	steps, err := h.restock.Preview(c.Request.Context(), machineID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, gin.H{"machineId": machineID.String(), "instructions": dto.FromSteps(steps)})
}

// buildLayout resolves product ids and builds a validated grid.
func (h *MachineHandler) buildLayout(ctx context.Context, req dto.LayoutRequest) (*layout.Layout, error) {
	today := clock.Today(h.clock)
	resolved := make(map[id.ID]*product.Product)

	grid := make([][]layout.Cell, len(req.Cells))
	for i, row := range req.Cells {
		grid[i] = make([]layout.Cell, len(row))
		for j, s := range row {
			if s == nil {
				grid[i][j] = layout.Empty()
				continue
			}
			productID, err := id.Parse(s.ProductID)
			if err != nil {
				return nil, apperror.NewValidation("invalid product id").
					WithDetail("row", i).WithDetail("col", j)
			}
			p, ok := resolved[productID]
			if !ok {
				if p, err = h.products.GetByID(ctx, productID); err != nil {
					return nil, err
				}
				resolved[productID] = p
			}

			expiration := p.ExpirationFrom(today)
			if s.Expiration != nil {
				expiration = *s.Expiration
			}
			slot, err := layout.NewSlot(p, s.Count, expiration)
			if err != nil {
				if appErr, ok := apperror.AsAppError(err); ok {
					return nil, appErr.WithDetail("row", i).WithDetail("col", j)
				}
				return nil, err
			}
			grid[i][j] = layout.Occupied(slot)
		}
	}
	return layout.FromGrid(grid, req.Depth)
}
