package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/codeforge_server/internal/ingest"
	"github.com/qs3c/codeforge_server/internal/model/dto"
	"github.com/qs3c/codeforge_server/internal/pkg/response"
	"github.com/qs3c/codeforge_server/internal/service"
)

type DocumentHandler struct {
	documentService *service.DocumentService
	logger          *zap.Logger
}

func NewDocumentHandler(documentService *service.DocumentService, logger *zap.Logger) *DocumentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentHandler{
		documentService: documentService,
		logger:          logger,
	}
}

// Ingest 摄取文档
// POST /api/v1/docs/ingest
func (h *DocumentHandler) Ingest(c *gin.Context) {
	var req dto.IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	resp, err := h.documentService.Ingest(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyContent) || errors.Is(err, ingest.ErrContentTooShort) {
			response.ParamError(c, err.Error())
			return
		}
		h.logger.Warn("ingest failed", zap.String("url", req.URL), zap.Error(err))
		response.ServerError(c, "文档摄取失败")
		return
	}

	response.Success(c, resp)
}

// GetChunk 获取单个文档分块
// GET /api/v1/docs/chunks/:id
func (h *DocumentHandler) GetChunk(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的分块ID")
		return
	}

	chunk, err := h.documentService.GetChunk(id)
	if err != nil {
		if errors.Is(err, service.ErrChunkNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, chunk)
}
