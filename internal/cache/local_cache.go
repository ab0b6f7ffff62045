package cache

import (
	"sync"
	"time"
)

// LocalCache 本地内存 TTL 缓存
//
// 特点：
// - 使用 sync.Map 实现无锁读取
// - 支持按条目设置 TTL
// - 后台定期清理过期条目，Close 后停止
type LocalCache[V any] struct {
	data      sync.Map
	ttl       time.Duration
	now       func() time.Time
	stop      chan struct{}
	closeOnce sync.Once
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time // 零值表示不过期
}

func (e *cacheEntry[V]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// NewLocalCache 创建本地缓存
//
// 参数:
//   - ttl: 默认过期时间，<=0 时条目不过期
//   - cleanupInterval: 清理间隔，<=0 时不启动后台清理
func NewLocalCache[V any](ttl, cleanupInterval time.Duration) *LocalCache[V] {
	c := &LocalCache[V]{
		ttl:  ttl,
		now:  time.Now,
		stop: make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

// Get 获取缓存值，过期条目视为不存在
func (c *LocalCache[V]) Get(key string) (V, bool) {
	var zero V
	val, ok := c.data.Load(key)
	if !ok {
		return zero, false
	}

	entry := val.(*cacheEntry[V])
	if entry.expired(c.now()) {
		c.data.CompareAndDelete(key, val)
		return zero, false
	}
	return entry.value, true
}

// Set 设置缓存值，ttl 为 0 时使用默认过期时间
func (c *LocalCache[V]) Set(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.data.Store(key, &cacheEntry[V]{
		value:     value,
		expiresAt: c.expiry(ttl),
	})
}

func (c *LocalCache[V]) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return c.now().Add(ttl)
}

// GetOrSet 返回已有值，不存在时写入 create 的结果
func (c *LocalCache[V]) GetOrSet(key string, create func() V) V {
	if v, ok := c.Get(key); ok {
		return v
	}
	entry := &cacheEntry[V]{value: create(), expiresAt: c.expiry(c.ttl)}
	actual, loaded := c.data.LoadOrStore(key, entry)
	if loaded {
		existing := actual.(*cacheEntry[V])
		if !existing.expired(c.now()) {
			return existing.value
		}
		c.data.Store(key, entry)
	}
	return entry.value
}

// Delete 删除缓存值
func (c *LocalCache[V]) Delete(key string) {
	c.data.Delete(key)
}

// Len 返回当前条目数（含尚未清理的过期条目）
func (c *LocalCache[V]) Len() int {
	n := 0
	c.data.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

// Close 停止后台清理
func (c *LocalCache[V]) Close() {
	c.closeOnce.Do(func() { close(c.stop) })
}

func (c *LocalCache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.purge()
		}
	}
}

// purge 清理过期条目
func (c *LocalCache[V]) purge() {
	now := c.now()
	c.data.Range(func(key, value interface{}) bool {
		if value.(*cacheEntry[V]).expired(now) {
			c.data.CompareAndDelete(key, value)
		}
		return true
	})
}
