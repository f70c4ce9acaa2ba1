package handler

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs3c/codeforge_server/internal/api/middleware"
	"github.com/qs3c/codeforge_server/internal/model/dto"
	"github.com/qs3c/codeforge_server/internal/pkg/response"
	"github.com/qs3c/codeforge_server/internal/service"
)

type GenerationHandler struct {
	generationService *service.GenerationService
	logger            *zap.Logger
}

func NewGenerationHandler(generationService *service.GenerationService, logger *zap.Logger) *GenerationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationHandler{
		generationService: generationService,
		logger:            logger,
	}
}

// Create 同步执行一次生成流水线
// POST /api/v1/generations
func (h *GenerationHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.CreateGenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, err.Error())
		return
	}

	g, err := h.generationService.Create(c.Request.Context(), userID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmptyTask):
			response.ParamError(c, err.Error())
		case errors.Is(err, service.ErrQuotaExceeded):
			response.QuotaError(c, err.Error())
		case g != nil:
			// 失败记录已落库，错误原样返回
			response.PipelineError(c, err.Error())
		default:
			h.logger.Error("create generation failed", zap.Int64("user_id", userID), zap.Error(err))
			response.ServerError(c, "")
		}
		return
	}

	response.Success(c, g)
}

// List 获取本人的生成记录
// GET /api/v1/generations
func (h *GenerationHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	items, total, err := h.generationService.List(userID, page, pageSize)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.SuccessPage(c, total, page, pageSize, items)
}

// Get 获取生成详情
// GET /api/v1/generations/:id
func (h *GenerationHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.ParamError(c, "无效的生成记录ID")
		return
	}

	g, err := h.generationService.GetByID(userID, id)
	if err != nil {
		if errors.Is(err, service.ErrGenerationNotFound) {
			response.NotFoundError(c, err.Error())
			return
		}
		response.ServerError(c, "")
		return
	}

	response.Success(c, g)
}
