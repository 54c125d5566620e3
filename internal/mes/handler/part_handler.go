package handler

import (
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PartHandler 零件接口
type PartHandler struct {
	svc    *service.PartService
	logger *zap.Logger
}

func NewPartHandler(svc *service.PartService, logger *zap.Logger) *PartHandler {
	return &PartHandler{svc: svc, logger: logger}
}

// CreatePartRequest JSON 或 multipart 表单（附图纸字段 drawing）
type CreatePartRequest struct {
	PartID             string `json:"part_id" form:"part_id"`
	ProductDesignation string `json:"product_designation" form:"product_designation"`
	Name               string `json:"name" form:"name"`
	Material           string `json:"material" form:"material"`
	Size               string `json:"size" form:"size"`
	QuantityTotal      int    `json:"quantity_total" form:"quantity_total"`
	RouteTemplateID    *uint  `json:"route_template_id" form:"route_template_id"`
}

func (r CreatePartRequest) input() service.PartInput {
	return service.PartInput{
		PartID:             r.PartID,
		ProductDesignation: r.ProductDesignation,
		Name:               r.Name,
		Material:           r.Material,
		Size:               r.Size,
		QuantityTotal:      r.QuantityTotal,
		RouteTemplateID:    r.RouteTemplateID,
	}
}

type UpdatePartRequest struct {
	ProductDesignation *string `json:"product_designation" form:"product_designation"`
	Name               *string `json:"name" form:"name"`
	Material           *string `json:"material" form:"material"`
	Size               *string `json:"size" form:"size"`
	QuantityTotal      *int    `json:"quantity_total" form:"quantity_total"`
}

type PartIDsRequest struct {
	PartIDs []string `json:"part_ids" binding:"required,min=1"`
}

type ChangeRouteRequest struct {
	RouteTemplateID uint `json:"route_template_id" binding:"required"`
}

type ChangeResponsibleRequest struct {
	UserID *string `json:"user_id"`
}

type CompleteStageRequest struct {
	Stage    string `json:"stage" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

// partView 零件详情附带图纸地址
type partView struct {
	Part       interface{} `json:"part"`
	DrawingURL string      `json:"drawing_url,omitempty"`
}

// drawingFromForm multipart 中的 drawing 字段，没有时返回 nil
func drawingFromForm(c *gin.Context) (*service.Drawing, func(), error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		return nil, func() {}, nil
	}
	fh, err := c.FormFile("drawing")
	if err == http.ErrMissingFile {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, err
	}
	return openDrawing(fh)
}

func openDrawing(fh *multipart.FileHeader) (*service.Drawing, func(), error) {
	f, err := fh.Open()
	if err != nil {
		return nil, func() {}, err
	}
	return &service.Drawing{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Reader:      f,
	}, func() { f.Close() }, nil
}

// List 零件列表
// GET /api/v1/parts
func (h *PartHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	filter := repository.PartFilter{
		ProductDesignation: c.Query("product"),
		Status:             c.Query("status"),
		ResponsibleID:      c.Query("responsible_id"),
		ParentID:           c.Query("parent_id"),
		Keyword:            c.Query("keyword"),
	}
	parts, total, err := h.svc.List(c.Request.Context(), page, pageSize, filter)
	if err != nil {
		respondError(c, h.logger, "list parts", err)
		return
	}
	Success(c, ListResponse{Items: parts, Pagination: newPagination(page, pageSize, total)})
}

// Get 零件详情
// GET /api/v1/parts/:id
func (h *PartHandler) Get(c *gin.Context) {
	part, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "get part", err)
		return
	}
	Success(c, partView{Part: part, DrawingURL: h.svc.DrawingURL(part)})
}

// Create 手工登记零件
// POST /api/v1/parts
func (h *PartHandler) Create(c *gin.Context) {
	var req CreatePartRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	drawing, closeFn, err := drawingFromForm(c)
	if err != nil {
		BadRequest(c, "invalid drawing: "+err.Error())
		return
	}
	defer closeFn()

	part, err := h.svc.CreatePart(c.Request.Context(), req.input(), drawing, GetActor(c))
	if err != nil {
		respondError(c, h.logger, "create part", err)
		return
	}
	Created(c, part)
}

// CreateChild 添加子零件
// POST /api/v1/parts/:id/children
func (h *PartHandler) CreateChild(c *gin.Context) {
	var req CreatePartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	part, err := h.svc.CreateChildPart(c.Request.Context(), c.Param("id"), req.input(), GetActor(c))
	if err != nil {
		respondError(c, h.logger, "create child part", err)
		return
	}
	Created(c, part)
}

// Update 修改零件
// PUT /api/v1/parts/:id
func (h *PartHandler) Update(c *gin.Context) {
	var req UpdatePartRequest
	if err := c.ShouldBind(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	drawing, closeFn, err := drawingFromForm(c)
	if err != nil {
		BadRequest(c, "invalid drawing: "+err.Error())
		return
	}
	defer closeFn()

	part, changed, err := h.svc.UpdatePart(c.Request.Context(), c.Param("id"), service.UpdatePartInput{
		ProductDesignation: req.ProductDesignation,
		Name:               req.Name,
		Material:           req.Material,
		Size:               req.Size,
		QuantityTotal:      req.QuantityTotal,
	}, drawing, GetActor(c))
	if err != nil {
		respondError(c, h.logger, "update part", err)
		return
	}
	Success(c, gin.H{"part": part, "changed": changed})
}

// Delete 删除零件
// DELETE /api/v1/parts/:id
func (h *PartHandler) Delete(c *gin.Context) {
	if err := h.svc.DeletePart(c.Request.Context(), c.Param("id"), GetActor(c)); err != nil {
		respondError(c, h.logger, "delete part", err)
		return
	}
	Success(c, nil)
}

// BulkDelete 批量删除
// POST /api/v1/parts/bulk-delete
func (h *PartHandler) BulkDelete(c *gin.Context) {
	var req PartIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	n, err := h.svc.DeleteParts(c.Request.Context(), req.PartIDs, GetActor(c))
	if err != nil {
		respondError(c, h.logger, "delete parts", err)
		return
	}
	Success(c, gin.H{"deleted": n})
}

// ChangeRoute 更换路线
// PUT /api/v1/parts/:id/route
func (h *PartHandler) ChangeRoute(c *gin.Context) {
	var req ChangeRouteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	changed, err := h.svc.ChangeRoute(c.Request.Context(), c.Param("id"), req.RouteTemplateID, GetActor(c))
	if err != nil {
		respondError(c, h.logger, "change route", err)
		return
	}
	Success(c, gin.H{"changed": changed})
}

// ChangeResponsible 指派负责人，user_id 为空表示取消
// PUT /api/v1/parts/:id/responsible
func (h *PartHandler) ChangeResponsible(c *gin.Context) {
	var req ChangeResponsibleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	changed, err := h.svc.ChangeResponsible(c.Request.Context(), c.Param("id"), req.UserID, GetActor(c))
	if err != nil {
		respondError(c, h.logger, "change responsible", err)
		return
	}
	Success(c, gin.H{"changed": changed})
}

// CompleteStage 记录工序完成
// POST /api/v1/parts/:id/stages
func (h *PartHandler) CompleteStage(c *gin.Context) {
	var req CompleteStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	part, err := h.svc.CompleteStage(c.Request.Context(), c.Param("id"), req.Stage, req.Quantity, GetActor(c))
	if err != nil {
		respondError(c, h.logger, "complete stage", err)
		return
	}
	Success(c, part)
}

// CancelStage 撤销工序完成记录
// DELETE /api/v1/stage-records/:id
func (h *PartHandler) CancelStage(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		return
	}
	part, stage, err := h.svc.CancelStage(c.Request.Context(), id, GetActor(c))
	if err != nil {
		respondError(c, h.logger, "cancel stage", err)
		return
	}
	Success(c, gin.H{"part": part, "stage": stage})
}

// History 工序记录和审计日志
// GET /api/v1/parts/:id/history
func (h *PartHandler) History(c *gin.Context) {
	statuses, logs, err := h.svc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "part history", err)
		return
	}
	Success(c, gin.H{"status_history": statuses, "audit_logs": logs})
}

// QRCode 生成零件二维码
// GET /api/v1/parts/:id/qr
func (h *PartHandler) QRCode(c *gin.Context) {
	label, err := h.svc.LogQRGeneration(c.Request.Context(), c.Param("id"), GetActor(c))
	if err != nil {
		respondError(c, h.logger, "generate qr", err)
		return
	}
	Success(c, label)
}

// PrintLabels 批量标签
// POST /api/v1/parts/labels
func (h *PartHandler) PrintLabels(c *gin.Context) {
	var req PartIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "invalid request: "+err.Error())
		return
	}
	labels, err := h.svc.PrintLabels(c.Request.Context(), req.PartIDs)
	if err != nil {
		respondError(c, h.logger, "print labels", err)
		return
	}
	Success(c, gin.H{"items": labels})
}

// Drawing 下载图纸
// GET /api/v1/parts/:id/drawing
func (h *PartHandler) Drawing(c *gin.Context) {
	rc, err := h.svc.OpenDrawing(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "open drawing", err)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", "application/octet-stream")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.logger.Warn("stream drawing failed", zap.String("part_id", c.Param("id")), zap.Error(err))
	}
}
