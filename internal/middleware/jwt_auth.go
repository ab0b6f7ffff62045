package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"maildash/backend/internal/domain"
)

const userContextKey = "user"

// Authenticator 校验访问令牌，返回数据库中的最新账户
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.User, error)
}

// JWTAuth JWT认证中间件
type JWTAuth struct {
	authn Authenticator
	log   *zap.Logger
}

// NewJWTAuth 创建JWT认证中间件
func NewJWTAuth(authn Authenticator, log *zap.Logger) *JWTAuth {
	if log == nil {
		log = zap.NewNop()
	}
	return &JWTAuth{authn: authn, log: log}
}

// RequireAuth 要求JWT认证
//
// 认证成功后账户写入上下文，通过 CurrentUser 读取。
func (ja *JWTAuth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			abort(c, http.StatusUnauthorized, "请先登录")
			return
		}

		user, err := ja.authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			ja.log.Warn("invalid token",
				zap.Error(err),
				zap.String("ip", c.ClientIP()),
			)
			abort(c, http.StatusUnauthorized, "登录已失效，请重新登录")
			return
		}

		c.Set(userContextKey, user)
		c.Next()
	}
}

// CurrentUser 获取当前登录账户
func CurrentUser(c *gin.Context) (*domain.User, bool) {
	val, ok := c.Get(userContextKey)
	if !ok {
		return nil, false
	}
	user, ok := val.(*domain.User)
	return user, ok && user != nil
}

// extractToken 从 Authorization header 提取JWT token
func extractToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"code": status,
		"msg":  msg,
		"data": nil,
	})
}
