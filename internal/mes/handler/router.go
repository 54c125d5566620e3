package handler

import (
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/gin-gonic/gin"
)

// RoleTechnologist 可维护工艺路线的角色
const RoleTechnologist = "technologist"

// RegisterRoutes 注册 /api/v1 下的业务路由，api 需已挂载 JWT 中间件
func (h *Handlers) RegisterRoutes(api *gin.RouterGroup) {
	parts := api.Group("/parts")
	{
		parts.GET("", h.Part.List)
		parts.POST("", h.Part.Create)
		parts.POST("/import", h.Import.Import)
		parts.GET("/import/template", h.Import.DownloadTemplate)
		parts.POST("/bulk-delete", h.Part.BulkDelete)
		parts.POST("/labels", h.Part.PrintLabels)
		parts.GET("/:id", h.Part.Get)
		parts.PUT("/:id", h.Part.Update)
		parts.DELETE("/:id", h.Part.Delete)
		parts.POST("/:id/children", h.Part.CreateChild)
		parts.PUT("/:id/route", h.Part.ChangeRoute)
		parts.PUT("/:id/responsible", h.Part.ChangeResponsible)
		parts.POST("/:id/stages", h.Part.CompleteStage)
		parts.GET("/:id/history", h.Part.History)
		parts.GET("/:id/qr", h.Part.QRCode)
		parts.GET("/:id/drawing", h.Part.Drawing)
	}
	api.DELETE("/stage-records/:id", h.Part.CancelStage)

	routes := api.Group("/routes")
	{
		routes.GET("", h.Route.List)
		routes.GET("/:id", h.Route.Get)
		routes.POST("", middleware.RequireRole(RoleTechnologist), h.Route.Create)
		routes.PUT("/:id/default", middleware.RequireRole(RoleTechnologist), h.Route.SetDefault)
		routes.DELETE("/:id", middleware.RequireRole(RoleTechnologist), h.Route.Delete)
	}

	api.GET("/audit-logs", h.Audit.List)
	api.GET("/users", h.User.List)
	api.GET("/sse/events", h.SSE.Stream)
}
