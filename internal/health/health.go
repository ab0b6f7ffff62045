package health

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"maildash/backend/internal/storage"
)

const (
	defaultCheckTimeout = 3 * time.Second
	maxGoroutines       = 10000
)

// Status 健康状态
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult 单项检查结果
type CheckResult struct {
	Name     string `json:"name"`
	Status   Status `json:"status"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration"`
}

// Report 健康报告
type Report struct {
	Status      Status        `json:"status"`
	Timestamp   time.Time     `json:"timestamp"`
	Uptime      string        `json:"uptime"`
	Version     string        `json:"version"`
	Environment string        `json:"environment"`
	Goroutines  int           `json:"goroutines"`
	MemoryMB    float64       `json:"memoryMb"`
	Checks      []CheckResult `json:"checks"`
}

// Checker 健康检查器
//
// 存活检查只看进程本身；就绪检查覆盖数据库和 Redis 等依赖。
type Checker struct {
	handler   healthcheck.Handler
	mu        sync.RWMutex
	readiness map[string]healthcheck.Check
	startTime time.Time
	version   string
	env       string
	logger    *zap.Logger
}

// NewChecker 创建健康检查器
func NewChecker(version, env string, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Checker{
		handler:   healthcheck.NewHandler(),
		readiness: make(map[string]healthcheck.Check),
		startTime: time.Now(),
		version:   version,
		env:       env,
		logger:    logger,
	}
	c.handler.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	return c
}

// AddReadinessCheck 注册就绪检查
func (c *Checker) AddReadinessCheck(name string, check healthcheck.Check) {
	c.mu.Lock()
	c.readiness[name] = check
	c.mu.Unlock()
	c.handler.AddReadinessCheck(name, check)
}

// LiveEndpoint 存活探针
func (c *Checker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪探针
func (c *Checker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	c.handler.ReadyEndpoint(w, r)
}

// Report 执行全部就绪检查并汇总
func (c *Checker) Report() *Report {
	c.mu.RLock()
	names := make([]string, 0, len(c.readiness))
	for name := range c.readiness {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	report := &Report{
		Status:      StatusHealthy,
		Timestamp:   time.Now(),
		Uptime:      time.Since(c.startTime).Round(time.Second).String(),
		Version:     c.version,
		Environment: c.env,
		Goroutines:  runtime.NumGoroutine(),
		MemoryMB:    float64(m.Alloc) / 1024 / 1024,
		Checks:      make([]CheckResult, 0, len(names)),
	}

	for _, name := range names {
		c.mu.RLock()
		check := c.readiness[name]
		c.mu.RUnlock()

		start := time.Now()
		result := CheckResult{Name: name, Status: StatusHealthy}
		if err := check(); err != nil {
			result.Status = StatusUnhealthy
			result.Message = err.Error()
			report.Status = StatusUnhealthy
			c.logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
		}
		result.Duration = time.Since(start).String()
		report.Checks = append(report.Checks, result)
	}

	return report
}

// Pinger 可探测连通性的依赖，例如 Redis 客户端
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck 存储健康检查
func StoreCheck(store storage.Store) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), defaultCheckTimeout)
		defer cancel()
		if err := store.Health(ctx); err != nil {
			return fmt.Errorf("store: %w", err)
		}
		return nil
	}
}

// DatabaseCheck 数据库健康检查
func DatabaseCheck(db *sql.DB) healthcheck.Check {
	return healthcheck.Timeout(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), defaultCheckTimeout)
		defer cancel()
		return db.PingContext(ctx)
	}, defaultCheckTimeout+time.Second)
}

// RedisCheck Redis 健康检查
func RedisCheck(client Pinger) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), defaultCheckTimeout)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	}
}
