package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"vendstock/internal/core/apperror"
	"vendstock/internal/domain/restock"
	"vendstock/internal/infrastructure/http/v1/dto"
)

// SessionHandler drives restocking sessions from a handheld.
type SessionHandler struct {
	*BaseHandler
	service *restock.Service
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(base *BaseHandler, service *restock.Service) *SessionHandler {
	return &SessionHandler{BaseHandler: base, service: service}
}

// Begin handles POST /machines/:id/sessions.
func (h *SessionHandler) Begin(c *gin.Context) {
	machineID, ok := h.ParamID(c, "id")
	if !ok {
		return
	}
	view, err := h.service.Begin(c.Request.Context(), machineID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, dto.FromSession(view))
}

// Get handles GET /sessions/:sid.
func (h *SessionHandler) Get(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "sid")
	if !ok {
		return
	}
	view, err := h.service.Get(sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSession(view))
}

// Resolve handles POST /sessions/:sid/instructions/:handle/resolve.
func (h *SessionHandler) Resolve(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "sid")
	if !ok {
		return
	}
	handle, err := strconv.Atoi(c.Param("handle"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid instruction handle").WithDetail("value", c.Param("handle")))
		return
	}
	view, err := h.service.Resolve(c.Request.Context(), sessionID, restock.Handle(handle))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromSession(view))
}

// Complete handles POST /sessions/:sid/complete. A refused commit answers 422
// with the remaining mandatory descriptions in details.remaining.
func (h *SessionHandler) Complete(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "sid")
	if !ok {
		return
	}
	res, err := h.service.Complete(c.Request.Context(), sessionID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.FromResult(res))
}

// Abandon handles DELETE /sessions/:sid.
func (h *SessionHandler) Abandon(c *gin.Context) {
	sessionID, ok := h.ParamID(c, "sid")
	if !ok {
		return
	}
	if err := h.service.Abandon(c.Request.Context(), sessionID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// List handles GET /sessions.
func (h *SessionHandler) List(c *gin.Context) {
	views := h.service.Sessions()
	out := make([]dto.SessionResponse, len(views))
	for i, v := range views {
		out[i] = dto.FromSession(v)
	}
	h.OK(c, dto.ListResponse{Items: out, Count: len(out)})
}
