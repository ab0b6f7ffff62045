package credcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "maildash:credential:"

// RedisBackend 将凭据以 JSON 形式存放在 Redis 中，多实例共享
type RedisBackend struct {
	rdb goredis.Cmdable
}

// NewRedisBackend 创建 Redis 存储
func NewRedisBackend(rdb goredis.Cmdable) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) Load(ctx context.Context, key string) (*Credential, bool, error) {
	data, err := b.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var cred Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, false, err
	}
	return &cred, true, nil
}

func (b *RedisBackend) Store(ctx context.Context, key string, cred *Credential, ttl time.Duration) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return b.rdb.Set(ctx, redisKeyPrefix+key, data, ttl).Err()
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return b.rdb.Del(ctx, redisKeyPrefix+key).Err()
}
