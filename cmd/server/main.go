package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"maildash/backend/internal/auth"
	"maildash/backend/internal/config"
	"maildash/backend/internal/credcache"
	"maildash/backend/internal/domain"
	"maildash/backend/internal/health"
	"maildash/backend/internal/logger"
	"maildash/backend/internal/middleware"
	"maildash/backend/internal/monitoring"
	"maildash/backend/internal/pool"
	"maildash/backend/internal/registrar"
	"maildash/backend/internal/service"
	"maildash/backend/internal/smtp"
	"maildash/backend/internal/storage"
	"maildash/backend/internal/storage/memory"
	redisstore "maildash/backend/internal/storage/redis"
	sqlstore "maildash/backend/internal/storage/sql"
	httptransport "maildash/backend/internal/transport/http"
	"maildash/backend/internal/websocket"
)

const version = "1.0.0"

// SMTP 入口的连接并发与速率上限
const (
	smtpMaxConnections = 100
	smtpMaxConnRate    = 20
)

// main 启动 HTTP API、事件推送和短信转发邮件接收服务。
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if cfg.Log.Development {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting maildash server",
		zap.String("version", version),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("development", cfg.Log.Development),
	)

	environment := "production"
	if cfg.Log.Development {
		environment = "development"
	}
	checker := health.NewChecker(version, environment, log)
	metrics := monitoring.NewMetrics()

	// 存储层
	store, err := openStore(cfg, log, checker)
	if err != nil {
		log.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("store close error", zap.Error(err))
		}
	}()
	checker.AddReadinessCheck("store", health.StoreCheck(store))

	// 注册商凭据缓存
	var credBackend credcache.Backend = credcache.NewLocalBackend(cfg.Registrar.CredentialTTL)
	if cfg.Redis.Enabled {
		rdb, err := redisstore.New(&cfg.Redis, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = rdb.Close() }()
		credBackend = credcache.NewRedisBackend(rdb.Client())
		checker.AddReadinessCheck("redis", health.RedisCheck(rdb))
		log.Info("registrar credentials cached in redis", zap.String("address", cfg.Redis.Address))
	}
	creds := credcache.New(credBackend, credcache.StaticLoader(credcache.Credential{
		APIUser:  cfg.Registrar.APIUser,
		APIKey:   cfg.Registrar.APIKey,
		Username: cfg.Registrar.Username,
		ClientIP: cfg.Registrar.ClientIP,
	}), cfg.Registrar.CredentialTTL, log)

	var reg registrar.Registrar
	if cfg.Registrar.APIKey != "" {
		contact := cfg.Registrar.Contact
		reg = registrar.NewClient(registrar.Options{
			Endpoint: cfg.Registrar.Endpoint,
			Timeout:  cfg.Registrar.Timeout,
			Contact: registrar.Contact{
				FirstName:     contact.FirstName,
				LastName:      contact.LastName,
				Address1:      contact.Address1,
				City:          contact.City,
				StateProvince: contact.StateProvince,
				PostalCode:    contact.PostalCode,
				Country:       contact.Country,
				Phone:         contact.Phone,
				EmailAddress:  contact.EmailAddress,
			},
		}, creds, log)
		log.Info("registrar client configured", zap.String("endpoint", cfg.Registrar.Endpoint))
	} else {
		reg = registrar.NewFake()
		log.Warn("registrar API key not set, using simulated registrar")
	}

	// 认证与事件推送
	accounts := auth.NewService(store, auth.NewJWTManager(&cfg.JWT), log)
	hub := websocket.NewHub(cfg.CORS.AllowedOrigins, accounts, metrics, log)

	// 业务服务
	policy := domain.SecretPolicy{
		MinLength:      cfg.Workflow.SecretMinLength,
		RequireComplex: cfg.Workflow.SecretRequireComplex,
	}
	requests := service.NewEmailRequestService(store, policy, hub, metrics, log)
	domains := service.NewDomainService(store, reg, cfg.Registrar.DefaultYears, metrics, log)
	admin := service.NewAdminService(store, accounts, log)
	smsLogs := service.NewSMSLogService(store, cfg.SMS.DefaultLimit, metrics, log)

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, metrics)
	defer limiter.Close()

	router := httptransport.NewRouter(httptransport.RouterDependencies{
		Config:        cfg,
		AuthService:   accounts,
		EmailRequests: requests,
		Domains:       domains,
		AdminService:  admin,
		SMSLogs:       smsLogs,
		WebSocketHub:  hub,
		Health:        checker,
		Metrics:       metrics,
		RateLimiter:   limiter,
		Logger:        log,
	})

	httpAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:              httpAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting HTTP server", zap.String("address", httpAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", zap.Error(err))
			return err
		}
		return nil
	})

	group.Go(func() error {
		log.Info("starting WebSocket hub")
		hub.Run(groupCtx)
		return nil
	})

	// 定时把已过期的域名标记为 expired
	group.Go(func() error {
		interval := cfg.Workflow.ExpirySweepInterval
		if interval <= 0 {
			interval = time.Hour
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		log.Info("starting domain expiry sweep", zap.Duration("interval", interval))
		for {
			select {
			case <-groupCtx.Done():
				log.Info("domain expiry sweep stopped")
				return nil
			case <-ticker.C:
				if _, err := domains.ExpireOverdue(groupCtx); err != nil {
					log.Error("failed to expire overdue domains", zap.Error(err))
				}
			}
		}
	})

	group.Go(func() error {
		started := time.Now()
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				metrics.UpdateSystemUptime(time.Since(started))
			}
		}
	})

	// 短信转发邮件入口
	var smtpServer interface{ Close() error }
	if cfg.SMTP.Enabled {
		workers := pool.NewWorkerPool(cfg.SMTP.Workers, cfg.SMTP.QueueSize, log)
		workers.Start(groupCtx)
		defer workers.Stop()

		backend := smtp.NewBackend(
			smsLogs,
			workers,
			smtp.NewConnectionLimiter(smtpMaxConnections, smtpMaxConnRate),
			cfg.SMS.IngestAddresses,
			cfg.SMTP.MaxMessageBytes,
			log,
		)
		server := smtp.NewServer(backend, cfg.SMTP)
		smtpServer = server

		group.Go(func() error {
			log.Info("starting SMTP server",
				zap.String("address", cfg.SMTP.BindAddr),
				zap.String("domain", cfg.SMTP.Domain),
				zap.Strings("ingest_addresses", cfg.SMS.IngestAddresses),
			)
			if err := server.ListenAndServe(); err != nil && groupCtx.Err() == nil {
				log.Error("SMTP server error", zap.Error(err))
				return err
			}
			return nil
		})
	}

	// 优雅关闭
	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", zap.Error(err))
		}
		if smtpServer != nil {
			if err := smtpServer.Close(); err != nil {
				log.Warn("SMTP server close warning", zap.Error(err))
			}
		}

		log.Info("servers stopped")
		return nil
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server error", zap.Error(err))
		return
	}
	log.Info("server exited cleanly")
}

// openStore 按配置创建存储；关系型数据库额外注册连接池就绪检查
func openStore(cfg *config.Config, log *zap.Logger, checker *health.Checker) (storage.Store, error) {
	if cfg.Database.Type == "" || cfg.Database.Type == "memory" {
		log.Warn("using memory storage, data is lost on restart")
		return memory.NewStore(), nil
	}

	st, err := sqlstore.Open(cfg.Database, log)
	if err != nil {
		return nil, err
	}
	sqlDB, err := st.DB().DB()
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	checker.AddReadinessCheck("database", health.DatabaseCheck(sqlDB))

	log.Info("database storage initialized",
		zap.String("type", cfg.Database.Type),
		zap.Bool("auto_migrate", cfg.Database.AutoMigrate),
	)
	return st, nil
}
