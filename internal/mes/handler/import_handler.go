package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ImportHandler 表格导入
type ImportHandler struct {
	svc     *service.ImportService
	maxSize int64
	logger  *zap.Logger
}

func NewImportHandler(svc *service.ImportService, maxSize int64, logger *zap.Logger) *ImportHandler {
	if maxSize <= 0 {
		maxSize = 32 << 20
	}
	return &ImportHandler{svc: svc, maxSize: maxSize, logger: logger}
}

// Import 上传表格批量导入零件
// POST /api/v1/parts/import (multipart, field "file")
func (h *ImportHandler) Import(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(c, 41300, "file is too large")
			return
		}
		BadRequest(c, "file is required")
		return
	}
	if fileHeader.Filename == "" {
		BadRequest(c, "file is required")
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		InternalError(c, "read upload failed: "+err.Error())
		return
	}
	data, err := io.ReadAll(src)
	src.Close()
	if err != nil {
		InternalError(c, "read upload failed: "+err.Error())
		return
	}

	result, err := h.svc.Import(c.Request.Context(), data, fileHeader.Filename, GetActor(c))
	if err != nil {
		respondError(c, h.logger, "import", err)
		return
	}
	Success(c, result)
}

// DownloadTemplate 下载导入模板
// GET /api/v1/parts/import/template
func (h *ImportHandler) DownloadTemplate(c *gin.Context) {
	f, err := h.svc.GenerateTemplate()
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	defer f.Close()

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename=\"Parts_Import_Template.xlsx\"")
	c.Header("Content-Transfer-Encoding", "binary")

	if err := f.Write(c.Writer); err != nil {
		InternalError(c, "write template: "+err.Error())
	}
}
