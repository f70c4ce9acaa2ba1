package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodePermissionDenied = 1002
	CodeResourceNotFound = 1003
	CodeQuotaExceeded    = 1004
	CodeRateLimited      = 1006
	CodeServerError      = 5000
	CodePipelineFailed   = 5001
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "参数错误",
	CodeAuthFailed:       "认证失败",
	CodePermissionDenied: "权限不足",
	CodeResourceNotFound: "资源不存在",
	CodeQuotaExceeded:    "今日生成次数已用完",
	CodeRateLimited:      "请求过于频繁",
	CodeServerError:      "服务器内部错误",
	CodePipelineFailed:   "代码生成失败",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// PageData 分页数据结构
type PageData struct {
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Items    interface{} `json:"items"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessPage 分页成功响应
func SuccessPage(c *gin.Context, total int64, page, pageSize int, items interface{}) {
	Success(c, PageData{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Items:    items,
	})
}

// Error 错误响应，message 为空时使用错误码的默认消息
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

func ParamError(c *gin.Context, message string) { Error(c, CodeParamError, message) }

func AuthError(c *gin.Context, message string) { Error(c, CodeAuthFailed, message) }

func PermissionError(c *gin.Context, message string) { Error(c, CodePermissionDenied, message) }

func NotFoundError(c *gin.Context, message string) { Error(c, CodeResourceNotFound, message) }

func QuotaError(c *gin.Context, message string) { Error(c, CodeQuotaExceeded, message) }

func RateLimitError(c *gin.Context, message string) { Error(c, CodeRateLimited, message) }

func ServerError(c *gin.Context, message string) { Error(c, CodeServerError, message) }

// PipelineError 流水线致命失败，message 原样返回给调用方
func PipelineError(c *gin.Context, message string) { Error(c, CodePipelineFailed, message) }
