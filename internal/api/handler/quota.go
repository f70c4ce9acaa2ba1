package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/codeforge_server/internal/api/middleware"
	"github.com/qs3c/codeforge_server/internal/model/dto"
	"github.com/qs3c/codeforge_server/internal/pkg/response"
)

// QuotaReader 读取用户当日用量
type QuotaReader interface {
	GetQuotaInfo(userID int64) (*dto.QuotaInfo, error)
}

type QuotaHandler struct {
	quota QuotaReader
}

func NewQuotaHandler(quota QuotaReader) *QuotaHandler {
	return &QuotaHandler{quota: quota}
}

// GetQuota 获取当前用户配额信息
// GET /api/v1/user/quota
func (h *QuotaHandler) GetQuota(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.quota.GetQuotaInfo(userID)
	if err != nil {
		response.ServerError(c, "")
		return
	}

	response.Success(c, info)
}
