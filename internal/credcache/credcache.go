// Package credcache 按操作员缓存注册商 API 凭据
//
// 每个 key 独立缓存，首次访问时通过 Loader 加载，同一 key 的并发加载只执行一次。
package credcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrNoCredential Loader 无法为 key 提供凭据
var ErrNoCredential = errors.New("no credential configured")

// loadTimeout 单次共享加载的最长耗时
const loadTimeout = 30 * time.Second

// Credential 注册商 API 凭据
type Credential struct {
	APIUser   string    `json:"apiUser"`
	APIKey    string    `json:"apiKey"`
	Username  string    `json:"username"`
	ClientIP  string    `json:"clientIp"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired 判断凭据在 now 时刻是否已失效，零值 ExpiresAt 表示永不过期
func (c *Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && !now.Before(c.ExpiresAt)
}

// Loader 为 key 加载凭据
type Loader func(ctx context.Context, key string) (*Credential, error)

// Backend 凭据存储后端
type Backend interface {
	// Load 读取凭据，不存在时 ok 为 false
	Load(ctx context.Context, key string) (cred *Credential, ok bool, err error)
	Store(ctx context.Context, key string, cred *Credential, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Cache 按 key 缓存凭据
type Cache struct {
	backend Backend
	loader  Loader
	ttl     time.Duration
	group   singleflight.Group
	now     func() time.Time
	log     *zap.Logger
}

// New 创建凭据缓存
//
// 参数:
//   - backend: 存储后端（本地或 Redis）
//   - loader: 缓存未命中时的加载函数
//   - ttl: 凭据缓存有效期，<=0 表示不过期
//   - log: 日志记录器
func New(backend Backend, loader Loader, ttl time.Duration, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		backend: backend,
		loader:  loader,
		ttl:     ttl,
		now:     time.Now,
		log:     log,
	}
}

// Get 返回 key 对应的凭据，未命中或已过期时加载
func (c *Cache) Get(ctx context.Context, key string) (*Credential, error) {
	cred, ok, err := c.backend.Load(ctx, key)
	if err != nil {
		c.log.Warn("credential cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok && !cred.Expired(c.now()) {
		return cred, nil
	}

	// 共享加载不受单个调用方取消影响
	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return c.load(loadCtx, key)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.log.Debug("credential load shared", zap.String("key", key))
	}
	return v.(*Credential), nil
}

func (c *Cache) load(ctx context.Context, key string) (*Credential, error) {
	if c.loader == nil {
		return nil, ErrNoCredential
	}
	cred, err := c.loader(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load credential %q: %w", key, err)
	}
	stored, err := c.store(ctx, key, *cred)
	if err != nil {
		return nil, err
	}
	c.log.Info("credential loaded", zap.String("key", key), zap.Time("expires_at", stored.ExpiresAt))
	return stored, nil
}

// Replace 写入 key 的凭据，覆盖已有值；cred 本身不会被修改
func (c *Cache) Replace(ctx context.Context, key string, cred *Credential) error {
	_, err := c.store(ctx, key, *cred)
	return err
}

// store 补齐签发与过期时间后写入后端，ttl 为 0 时后端按不过期保存
func (c *Cache) store(ctx context.Context, key string, cred Credential) (*Credential, error) {
	now := c.now()
	if cred.IssuedAt.IsZero() {
		cred.IssuedAt = now
	}
	if cred.ExpiresAt.IsZero() && c.ttl > 0 {
		cred.ExpiresAt = now.Add(c.ttl)
	}

	var ttl time.Duration
	if !cred.ExpiresAt.IsZero() {
		ttl = cred.ExpiresAt.Sub(now)
		if ttl <= 0 {
			return nil, fmt.Errorf("credential for %q already expired", key)
		}
	}
	if err := c.backend.Store(ctx, key, &cred, ttl); err != nil {
		return nil, fmt.Errorf("store credential %q: %w", key, err)
	}
	return &cred, nil
}

// Invalidate 删除 key 的凭据，下次 Get 时重新加载
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := c.backend.Delete(ctx, key); err != nil {
		return fmt.Errorf("invalidate credential %q: %w", key, err)
	}
	return nil
}

// StaticLoader 为所有 key 返回同一份配置凭据的副本
func StaticLoader(base Credential) Loader {
	return func(ctx context.Context, key string) (*Credential, error) {
		if base.APIKey == "" {
			return nil, ErrNoCredential
		}
		cred := base
		cred.IssuedAt = time.Time{}
		cred.ExpiresAt = time.Time{}
		return &cred, nil
	}
}
