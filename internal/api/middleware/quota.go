package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/codeforge_server/internal/pkg/response"
)

// QuotaChecker 判断用户当日是否还有生成次数
type QuotaChecker interface {
	CheckQuota(userID int64) (bool, error)
}

// QuotaCheck 配额检查中间件
func QuotaCheck(checker QuotaChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		hasQuota, err := checker.CheckQuota(userID)
		if err != nil {
			response.ServerError(c, "配额检查失败")
			c.Abort()
			return
		}

		if !hasQuota {
			response.QuotaError(c, "")
			c.Abort()
			return
		}

		c.Next()
	}
}
