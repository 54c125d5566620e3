package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RouteHandler 工艺路线管理
type RouteHandler struct {
	svc    *service.RouteService
	logger *zap.Logger
}

func NewRouteHandler(svc *service.RouteService, logger *zap.Logger) *RouteHandler {
	return &RouteHandler{svc: svc, logger: logger}
}

type CreateRouteRequest struct {
	Name   string   `json:"name"`
	Stages []string `json:"stages" binding:"required,min=1"`
}

// List GET /api/v1/routes
func (h *RouteHandler) List(c *gin.Context) {
	routes, err := h.svc.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "list routes", err)
		return
	}
	Success(c, gin.H{"items": routes})
}

// Get GET /api/v1/routes/:id
func (h *RouteHandler) Get(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	route, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "get route", err)
		return
	}
	Success(c, route)
}

// Create POST /api/v1/routes
func (h *RouteHandler) Create(c *gin.Context) {
	var req CreateRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	route, err := h.svc.CreateTemplate(c.Request.Context(), req.Name, req.Stages)
	if err != nil {
		respondError(c, h.logger, "create route", err)
		return
	}
	Created(c, route)
}

// SetDefault PUT /api/v1/routes/:id/default
func (h *RouteHandler) SetDefault(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	route, err := h.svc.SetDefault(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "set default route", err)
		return
	}
	Success(c, route)
}

// Delete DELETE /api/v1/routes/:id
func (h *RouteHandler) Delete(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "delete route", err)
		return
	}
	Success(c, nil)
}
