package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"maildash/backend/internal/middleware"
	"maildash/backend/internal/service"
)

// DomainHandler 处理域名购买、查询与同步
type DomainHandler struct {
	domains *service.DomainService
	log     *zap.Logger
}

// NewDomainHandler 创建域名处理器
func NewDomainHandler(domains *service.DomainService, log *zap.Logger) *DomainHandler {
	return &DomainHandler{domains: domains, log: log}
}

type purchaseDomainRequest struct {
	Name  string `json:"name" binding:"required"`
	Years int    `json:"years"`
}

type checkDomainsRequest struct {
	Names []string `json:"names" binding:"required"`
}

// List 列出域名，普通用户只看到自己的域名
func (h *DomainHandler) List(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	domains, err := h.domains.List(c.Request.Context(), user)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, domains)
}

// Purchase 通过注册商购买域名
// @Summary 购买域名
// @Tags 域名
// @Accept json
// @Produce json
// @Param request body purchaseDomainRequest true "域名与年限"
// @Success 201 {object} domain.Domain
// @Failure 409 {object} Response "域名已被注册"
// @Failure 502 {object} Response "注册商调用失败"
// @Router /v1/domains [post]
func (h *DomainHandler) Purchase(c *gin.Context) {
	var req purchaseDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, _ := middleware.CurrentUser(c)
	d, err := h.domains.Purchase(c.Request.Context(), user, req.Name, req.Years)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Created(c, d)
}

// Check 批量查询域名可注册状态
func (h *DomainHandler) Check(c *gin.Context) {
	var req checkDomainsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	user, _ := middleware.CurrentUser(c)
	result, err := h.domains.CheckAvailability(c.Request.Context(), user, req.Names)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, result)
}

// Sync 从注册商同步当前用户的域名
func (h *DomainHandler) Sync(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	result, err := h.domains.SyncFromRegistrar(c.Request.Context(), user)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, result)
}

// Get 获取域名详情（含已开通邮箱）
func (h *DomainHandler) Get(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	d, err := h.domains.Get(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, d)
}

// Delete 删除域名，其下的邮箱申请一并删除
func (h *DomainHandler) Delete(c *gin.Context) {
	user, _ := middleware.CurrentUser(c)
	if err := h.domains.Delete(c.Request.Context(), user, c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	NoContent(c)
}
