package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"maildash/backend/internal/auth"
	"maildash/backend/internal/config"
	"maildash/backend/internal/health"
	"maildash/backend/internal/middleware"
	"maildash/backend/internal/monitoring"
	"maildash/backend/internal/service"
	"maildash/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	AuthService   *auth.Service
	EmailRequests *service.EmailRequestService
	Domains       *service.DomainService
	AdminService  *service.AdminService
	SMSLogs       *service.SMSLogService
	WebSocketHub  *websocket.Hub          // 为 nil 时不注册 /v1/ws
	Health        *health.Checker         // 为 nil 时只返回简单状态
	Metrics       *monitoring.Metrics     // 为 nil 时不暴露 /metrics
	RateLimiter   *middleware.RateLimiter // 为 nil 时不限流
	Logger        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	monitor := middleware.NewMonitoringMiddleware(deps.Metrics, log)
	router.Use(monitor.HTTPMetrics())
	router.Use(monitor.PanicRecovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 如果允许所有来源，则需清空凭证支持。
	allowAll := len(corsConfig.AllowOrigins) == 0
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			allowAll = true
			break
		}
	}
	if allowAll {
		corsConfig.AllowOrigins = nil
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}
	router.Use(gincors.New(corsConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.Metrics, log)
	domainHandler := NewDomainHandler(deps.Domains, log)
	requestHandler := NewEmailRequestHandler(deps.EmailRequests, log)
	adminHandler := NewAdminHandler(deps.AdminService, log)
	smsHandler := NewSMSLogHandler(deps.SMSLogs, log)

	jwtAuth := middleware.NewJWTAuth(deps.AuthService, log)
	requireAdmin := middleware.RequireAdmin()

	// 健康检查
	if deps.Health != nil {
		router.GET("/health", func(c *gin.Context) {
			report := deps.Health.Report()
			status := http.StatusOK
			if report.Status != health.StatusHealthy {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, report)
		})
		router.GET("/health/live", gin.WrapF(deps.Health.LiveEndpoint))
		router.GET("/health/ready", gin.WrapF(deps.Health.ReadyEndpoint))
	} else {
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})
	}
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	// V1 API
	v1 := router.Group("/v1")
	if deps.RateLimiter != nil {
		v1.Use(deps.RateLimiter.Middleware())
	}
	{
		// ========== Auth Routes ==========
		authRoutes := v1.Group("/auth")
		{
			authRoutes.POST("/register", authHandler.Register)
			authRoutes.POST("/login", authHandler.Login)
			authRoutes.POST("/refresh", authHandler.Refresh)
			authRoutes.GET("/me", jwtAuth.RequireAuth(), authHandler.Me)
			authRoutes.POST("/password", jwtAuth.RequireAuth(), authHandler.ChangePassword)
		}

		// ========== Domain Routes ==========
		domainRoutes := v1.Group("/domains", jwtAuth.RequireAuth())
		{
			domainRoutes.GET("", domainHandler.List)
			domainRoutes.POST("", domainHandler.Purchase)
			domainRoutes.POST("/check", domainHandler.Check)
			domainRoutes.POST("/sync", domainHandler.Sync)
			domainRoutes.GET("/:id", domainHandler.Get)
			domainRoutes.DELETE("/:id", domainHandler.Delete)
		}

		// ========== Email Request Routes ==========
		requestRoutes := v1.Group("/email-requests", jwtAuth.RequireAuth())
		{
			requestRoutes.GET("", requestHandler.List)
			requestRoutes.POST("", requestHandler.Submit)
			requestRoutes.GET("/:id", requestHandler.Get)
			requestRoutes.DELETE("/:id", requestHandler.Delete)
		}

		// ========== SMS Log Routes（短信内含验证码，仅管理员可见） ==========
		smsRoutes := v1.Group("/sms-logs", jwtAuth.RequireAuth(), requireAdmin)
		{
			smsRoutes.GET("", smsHandler.List)
			smsRoutes.POST("", smsHandler.Ingest)
			smsRoutes.GET("/:id", smsHandler.Get)
		}

		// ========== Admin Routes ==========
		adminRoutes := v1.Group("/admin", jwtAuth.RequireAuth(), requireAdmin)
		{
			adminRoutes.PATCH("/email-requests/:id", requestHandler.Transition)

			adminRoutes.GET("/users", adminHandler.ListUsers)
			adminRoutes.POST("/users", adminHandler.CreateUser)
			adminRoutes.GET("/users/:id", adminHandler.GetUser)
			adminRoutes.PATCH("/users/:id", adminHandler.UpdateUser)
			adminRoutes.DELETE("/users/:id", adminHandler.DeleteUser)
		}

		// ========== Events ==========
		if deps.WebSocketHub != nil {
			v1.GET("/ws", websocket.HandleWebSocket(deps.WebSocketHub))
		}
	}

	return router
}
