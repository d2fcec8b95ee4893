package biz

import (
	"context"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	goredis "github.com/redis/go-redis/v9"

	"github.com/kart-io/docqa/internal/pkg/rag/textutil"
	"github.com/kart-io/docqa/pkg/utils/json"
)

// QueryCacheConfig 查询缓存配置。
type QueryCacheConfig struct {
	// Enabled 是否启用缓存。
	Enabled bool
	// TTL 缓存过期时间。
	TTL time.Duration
	// KeyPrefix 缓存键前缀。
	KeyPrefix string
}

// QueryCache 按 (索引代际, 规范化问题) 缓存答案。
// 键包含代际，重建后旧答案自然失效；Clear 只用于回收空间。
type QueryCache struct {
	redis  *goredis.Client
	config *QueryCacheConfig
}

// NewQueryCache 创建查询缓存实例。
func NewQueryCache(redis *goredis.Client, config *QueryCacheConfig) *QueryCache {
	if config == nil {
		config = &QueryCacheConfig{
			TTL:       time.Hour,
			KeyPrefix: "docqa:answer:",
		}
	}
	return &QueryCache{redis: redis, config: config}
}

func (c *QueryCache) enabled() bool {
	return c != nil && c.config.Enabled && c.redis != nil
}

// key 生成缓存键：<prefix><generation>:<md5(normalized question)>。
func (c *QueryCache) key(generation, question string) string {
	return c.config.KeyPrefix + generation + ":" + textutil.HashString(textutil.NormalizeQuestion(question))
}

// Get 读取缓存，未命中返回 (nil, nil)。
func (c *QueryCache) Get(ctx context.Context, generation, question string) (*Answer, error) {
	if !c.enabled() {
		return nil, nil
	}

	key := c.key(generation, question)
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("read answer cache: %w", err)
	}

	var answer Answer
	if err := json.Unmarshal(data, &answer); err != nil {
		logger.Warnw("Dropping corrupt cache entry", "key", key, "error", err)
		_ = c.redis.Del(ctx, key).Err()
		return nil, nil
	}
	return &answer, nil
}

// Set 写入缓存。
func (c *QueryCache) Set(ctx context.Context, generation, question string, answer *Answer) error {
	if !c.enabled() || answer == nil {
		return nil
	}

	data, err := json.Marshal(answer)
	if err != nil {
		return fmt.Errorf("encode cached answer: %w", err)
	}
	if err := c.redis.Set(ctx, c.key(generation, question), data, c.config.TTL).Err(); err != nil {
		return fmt.Errorf("write answer cache: %w", err)
	}
	return nil
}

// Clear 删除前缀下的全部缓存，返回删除的键数。
func (c *QueryCache) Clear(ctx context.Context) (int, error) {
	if !c.enabled() {
		return 0, nil
	}

	iter := c.redis.Scan(ctx, 0, c.config.KeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan answer cache: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	n, err := c.redis.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("clear answer cache: %w", err)
	}
	return int(n), nil
}

// Close closes the redis client.
func (c *QueryCache) Close() error {
	if c == nil || c.redis == nil {
		return nil
	}
	return c.redis.Close()
}
