package httptransport

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"maildash/backend/internal/domain"
	"maildash/backend/internal/middleware"
	"maildash/backend/internal/service"
)

// AdminHandler 管理API处理器
type AdminHandler struct {
	adminService *service.AdminService
	log          *zap.Logger
}

// NewAdminHandler 创建管理处理器
func NewAdminHandler(adminService *service.AdminService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		log:          log,
	}
}

type createUserRequest struct {
	Username string          `json:"username" binding:"required"`
	Email    string          `json:"email" binding:"required"`
	Password string          `json:"password" binding:"required"`
	Role     domain.UserRole `json:"role"`
}

type updateUserRequest struct {
	Role     *domain.UserRole `json:"role"`
	IsActive *bool            `json:"isActive"`
}

// ========== 用户管理 ==========

// ListUsers godoc
// @Summary 获取用户列表
// @Description 获取系统中的用户列表（需要管理员权限）
// @Tags Admin
// @Produce json
// @Param page query int false "页码" default(1)
// @Param pageSize query int false "每页数量" default(20)
// @Param search query string false "搜索关键词（邮箱/用户名）"
// @Param role query string false "角色过滤（user/admin/super）"
// @Param isActive query bool false "激活状态过滤"
// @Success 200 {object} service.ListUsersOutput
// @Failure 403 {object} Response
// @Router /v1/admin/users [get]
func (h *AdminHandler) ListUsers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	input := service.ListUsersInput{
		Page:     page,
		PageSize: pageSize,
		Search:   c.Query("search"),
	}
	if r := c.Query("role"); r != "" {
		role := domain.UserRole(r)
		input.Role = &role
	}
	if a := c.Query("isActive"); a != "" {
		active, err := strconv.ParseBool(a)
		if err != nil {
			BadRequest(c, MsgInvalidRequest)
			return
		}
		input.IsActive = &active
	}

	actor, _ := middleware.CurrentUser(c)
	out, err := h.adminService.ListUsers(c.Request.Context(), actor, input)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, out)
}

// GetUser 获取用户详情
func (h *AdminHandler) GetUser(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	user, err := h.adminService.GetUser(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, user)
}

// CreateUser 管理员创建账户
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	actor, _ := middleware.CurrentUser(c)
	user, err := h.adminService.CreateUser(c.Request.Context(), actor, service.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Created(c, user)
}

// UpdateUser godoc
// @Summary 更新用户角色或启用状态
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "用户ID"
// @Param request body updateUserRequest true "更新内容"
// @Success 200 {object} domain.User
// @Failure 403 {object} Response "不能修改超级管理员或降级自己"
// @Router /v1/admin/users/{id} [patch]
func (h *AdminHandler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	actor, _ := middleware.CurrentUser(c)
	user, err := h.adminService.UpdateUser(c.Request.Context(), actor, service.UpdateUserInput{
		UserID:   c.Param("id"),
		Role:     req.Role,
		IsActive: req.IsActive,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	Success(c, user)
}

// DeleteUser 删除用户
func (h *AdminHandler) DeleteUser(c *gin.Context) {
	actor, _ := middleware.CurrentUser(c)
	if err := h.adminService.DeleteUser(c.Request.Context(), actor, c.Param("id")); err != nil {
		respondError(c, h.log, err)
		return
	}
	NoContent(c)
}
