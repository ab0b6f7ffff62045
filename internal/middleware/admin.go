package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"maildash/backend/internal/domain"
)

// RequireAdmin 要求管理员权限（Admin或Super），需放在 RequireAuth 之后
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(domain.RoleAdmin, domain.RoleSuper)
}

// RequireRole 要求特定角色
func RequireRole(allowedRoles ...domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "请先登录")
			return
		}

		for _, role := range allowedRoles {
			if user.Role == role {
				c.Next()
				return
			}
		}
		abort(c, http.StatusForbidden, "没有权限执行此操作")
	}
}
