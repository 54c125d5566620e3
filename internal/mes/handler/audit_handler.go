package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
)

// AuditHandler 审计日志查询
type AuditHandler struct {
	svc *service.AuditService
}

func NewAuditHandler(svc *service.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// List GET /api/v1/audit-logs?part_id=&category=
func (h *AuditHandler) List(c *gin.Context) {
	if partID := c.Query("part_id"); partID != "" {
		logs, err := h.svc.ListByPart(c.Request.Context(), partID)
		if err != nil {
			InternalError(c, "list audit logs failed: "+err.Error())
			return
		}
		Success(c, gin.H{"items": logs})
		return
	}

	page, pageSize := GetPagination(c)
	logs, total, err := h.svc.List(c.Request.Context(), c.Query("category"), page, pageSize)
	if err != nil {
		InternalError(c, "list audit logs failed: "+err.Error())
		return
	}
	Success(c, ListResponse{Items: logs, Pagination: newPagination(page, pageSize, total)})
}

// UserHandler 用户列表（负责人候选）
type UserHandler struct {
	svc *service.UserService
}

func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// List GET /api/v1/users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.svc.ListActive(c.Request.Context())
	if err != nil {
		InternalError(c, "list users failed: "+err.Error())
		return
	}
	Success(c, gin.H{"items": users})
}
