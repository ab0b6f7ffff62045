package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"maildash/backend/internal/domain"
)

// 错误类别 -> HTTP 状态码
var errorStatus = map[domain.ErrorKind]int{
	domain.KindNotFound:              http.StatusNotFound,
	domain.KindConflict:              http.StatusConflict,
	domain.KindForbidden:             http.StatusForbidden,
	domain.KindInvalidState:          http.StatusConflict,
	domain.KindValidationFailed:      http.StatusBadRequest,
	domain.KindUpstreamInconsistency: http.StatusInternalServerError,
	domain.KindUpstreamFormat:        http.StatusBadGateway,
	domain.KindUpstream:              http.StatusBadGateway,
	domain.KindUnauthenticated:       http.StatusUnauthorized,
}

// 错误消息映射表（错误类别 -> 中文消息）
var errorMessages = map[domain.ErrorKind]string{
	domain.KindNotFound:              "资源不存在",
	domain.KindConflict:              "资源已存在或已被占用",
	domain.KindForbidden:             "权限不足",
	domain.KindInvalidState:          "当前状态不允许此操作",
	domain.KindValidationFailed:      "参数校验失败",
	domain.KindUpstreamInconsistency: "数据状态不一致，操作已回滚，请联系管理员",
	domain.KindUpstreamFormat:        "注册商返回数据格式异常",
	domain.KindUpstream:              "注册商服务暂时不可用，请稍后重试",
	domain.KindUnauthenticated:       "认证失败，请重新登录",
}

// 带有具体说明的类别，说明会拼接到中文消息之后
var detailedKinds = map[domain.ErrorKind]bool{
	domain.KindValidationFailed: true,
	domain.KindInvalidState:     true,
	domain.KindConflict:         true,
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	kind := domain.KindOf(err)
	msg, ok := errorMessages[kind]
	if !ok {
		return MsgInternalError
	}
	if detail := domain.MessageOf(err); detail != "" && detailedKinds[kind] {
		return msg + "：" + detail
	}
	return msg
}

// StatusOf 获取错误对应的 HTTP 状态码
func StatusOf(err error) int {
	if status, ok := errorStatus[domain.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError 将业务错误写入统一响应
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.String("method", c.Request.Method),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	Error(c, status, GetErrorMessage(err))
}

// 通用错误消息
const (
	MsgInvalidRequest = "请求参数格式错误"
	MsgInvalidID      = "ID 不能为空"
	MsgAuthRequired   = "需要登录认证"
	MsgInternalError  = "服务器内部错误，请稍后重试"
)
