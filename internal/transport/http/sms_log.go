package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"maildash/backend/internal/domain"
	"maildash/backend/internal/service"
)

// SMSLogHandler 短信日志查询与手工录入
type SMSLogHandler struct {
	logs *service.SMSLogService
	log  *zap.Logger
}

// NewSMSLogHandler 创建短信日志处理器
func NewSMSLogHandler(logs *service.SMSLogService, log *zap.Logger) *SMSLogHandler {
	return &SMSLogHandler{logs: logs, log: log}
}

type ingestRequest struct {
	SourceID string `json:"sourceId"`
	Subject  string `json:"subject"`
	Raw      string `json:"raw" binding:"required"`
}

// List 按关键词、发送方筛选短信，按接收时间倒序
func (h *SMSLogHandler) List(c *gin.Context) {
	filter := domain.SMSLogFilter{
		Query:  c.Query("q"),
		Sender: c.Query("sender"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			BadRequest(c, MsgInvalidRequest)
			return
		}
		filter.Limit = limit
	}

	logs, err := h.logs.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, logs)
}

// Get 获取单条短信，包含原文
func (h *SMSLogHandler) Get(c *gin.Context) {
	entry, err := h.logs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, entry)
}

// Ingest 手工录入一条转发短信，sourceId 重复时返回已有记录
func (h *SMSLogHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	entry, created, err := h.logs.Ingest(c.Request.Context(), service.IngestInput{
		SourceID: req.SourceID,
		Subject:  req.Subject,
		Raw:      req.Raw,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if created {
		Created(c, entry)
		return
	}
	Success(c, entry)
}
