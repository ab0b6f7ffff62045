package credcache

import (
	"context"
	"time"

	"maildash/backend/internal/cache"
)

// LocalBackend 进程内凭据存储
type LocalBackend struct {
	items *cache.LocalCache[Credential]
}

// NewLocalBackend 创建进程内存储，过期条目每分钟清理一次
//
// defaultTTL <=0 时未指定 ttl 的凭据不过期
func NewLocalBackend(defaultTTL time.Duration) *LocalBackend {
	return &LocalBackend{items: cache.NewLocalCache[Credential](defaultTTL, time.Minute)}
}

func (b *LocalBackend) Load(ctx context.Context, key string) (*Credential, bool, error) {
	cred, ok := b.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	return &cred, true, nil
}

func (b *LocalBackend) Store(ctx context.Context, key string, cred *Credential, ttl time.Duration) error {
	b.items.Set(key, *cred, ttl)
	return nil
}

func (b *LocalBackend) Delete(ctx context.Context, key string) error {
	b.items.Delete(key)
	return nil
}

// Close 停止后台清理
func (b *LocalBackend) Close() {
	b.items.Close()
}
