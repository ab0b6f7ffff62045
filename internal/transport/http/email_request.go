package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"maildash/backend/internal/domain"
	"maildash/backend/internal/middleware"
	"maildash/backend/internal/service"
)

// EmailRequestHandler 处理邮箱开通申请
type EmailRequestHandler struct {
	requests *service.EmailRequestService
	log      *zap.Logger
}

// NewEmailRequestHandler 创建邮箱申请处理器
func NewEmailRequestHandler(requests *service.EmailRequestService, log *zap.Logger) *EmailRequestHandler {
	return &EmailRequestHandler{requests: requests, log: log}
}

type submitRequest struct {
	DomainID string `json:"domainId" binding:"required"`
	Username string `json:"username" binding:"required"`
	Secret   string `json:"secret" binding:"required"`
	Notes    string `json:"notes"`
}

type transitionRequest struct {
	Status           domain.RequestStatus      `json:"status" binding:"required"`
	Notes            *string                   `json:"notes"`
	Secret           *string                   `json:"secret"`
	OutboundSettings *domain.TransportSettings `json:"outboundSettings"`
	InboundSettings  *domain.TransportSettings `json:"inboundSettings"`
}

// adminRequestView 管理端视图，包含开通邮箱所需的密码
type adminRequestView struct {
	*domain.EmailRequest
	Secret string `json:"secret"`
}

// present 根据调用者角色决定是否返回密码
func present(user *domain.User, req *domain.EmailRequest) interface{} {
	if user.IsAdmin() {
		return adminRequestView{EmailRequest: req, Secret: req.Secret}
	}
	return req
}

// Submit 提交邮箱开通申请
// @Summary 提交邮箱申请
// @Tags 邮箱申请
// @Accept json
// @Produce json
// @Param request body submitRequest true "域名、用户名、密码"
// @Success 201 {object} domain.EmailRequest
// @Failure 404 {object} Response "域名不存在"
// @Failure 409 {object} Response "邮箱已存在或域名不可用"
// @Router /v1/email-requests [post]
func (h *EmailRequestHandler) Submit(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, _ := middleware.CurrentUser(c)
	created, err := h.requests.Submit(c.Request.Context(), service.SubmitInput{
		DomainID: req.DomainID,
		Username: req.Username,
		Secret:   req.Secret,
		Notes:    req.Notes,
	}, user)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Created(c, present(user, created))
}

// List 列出申请，普通用户只看到自己提交的申请
func (h *EmailRequestHandler) List(c *gin.Context) {
	filter := domain.EmailRequestFilter{
		RequestedBy: c.Query("requestedBy"),
		DomainID:    c.Query("domainId"),
	}
	if raw := c.Query("status"); raw != "" {
		status := domain.RequestStatus(raw)
		if !status.Valid() {
			BadRequest(c, "状态参数无效")
			return
		}
		filter.Status = &status
	}

	user, _ := middleware.CurrentUser(c)
	list, err := h.requests.List(c.Request.Context(), filter, user)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	out := make([]interface{}, 0, len(list))
	for i := range list {
		out = append(out, present(user, &list[i]))
	}
	Success(c, out)
}

// Get 获取申请详情
func (h *EmailRequestHandler) Get(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	req, err := h.requests.Get(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, present(user, req))
}

// Delete 删除申请：申请人只能删除 pending 状态的申请，管理员不受限
func (h *EmailRequestHandler) Delete(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	if err := h.requests.Remove(c.Request.Context(), c.Param("id"), user); err != nil {
		respondError(c, h.log, err)
		return
	}
	NoContent(c)
}

// Transition 管理员审批申请
// @Summary 审批邮箱申请
// @Tags 管理员
// @Accept json
// @Produce json
// @Param id path string true "申请 ID"
// @Param request body transitionRequest true "目标状态及可选的备注、密码、收发信配置"
// @Success 200 {object} domain.EmailRequest
// @Failure 409 {object} Response "状态不允许或并发冲突"
// @Failure 500 {object} Response "域名数据不一致"
// @Router /v1/admin/email-requests/{id} [patch]
func (h *EmailRequestHandler) Transition(c *gin.Context) {
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, _ := middleware.CurrentUser(c)
	updated, err := h.requests.Transition(c.Request.Context(), c.Param("id"), service.TransitionInput{
		Status:   req.Status,
		Notes:    req.Notes,
		Secret:   req.Secret,
		Outbound: req.OutboundSettings,
		Inbound:  req.InboundSettings,
	}, user)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, present(user, updated))
}
