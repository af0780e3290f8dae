package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/paiban/courierplan/internal/config"
)

const redisKeyPrefix = "courierplan:geocode:"

// RedisStore Redis缓存层
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore 基于已有客户端创建缓存层，ttl 为 0 表示不过期
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

// NewRedisClient 按配置创建客户端并测试连接
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("Redis连接测试失败: %w", err)
	}
	return rdb, nil
}

// Name 层级名称
func (s *RedisStore) Name() string { return "redis" }

// Health 连通性检查
func (s *RedisStore) Health(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Get 读取
func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	data, err := s.rdb.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("解析缓存条目 %s 失败: %w", key, err)
	}
	return e, true, nil
}

// Set 写入
func (s *RedisStore) Set(ctx context.Context, key string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, redisKeyPrefix+key, data, s.ttl).Err()
}
