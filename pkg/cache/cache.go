package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

const maxLocalTTL = 10 * time.Minute

// CacheManager 两级缓存: 进程内 + Redis. 本地读不加锁
type CacheManager struct {
	redis   *redis.Client
	local   sync.Map // key -> *cacheItem
	enabled atomic.Bool
	stopCh  chan struct{}
	once    sync.Once
	now     func() time.Time
}

type cacheItem struct {
	data      []byte
	expiresAt time.Time
}

// NewCacheManager 创建缓存管理器; redisClient 可为 nil, 此时只用本地缓存
func NewCacheManager(redisClient *redis.Client) *CacheManager {
	cm := &CacheManager{
		redis:  redisClient,
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
	cm.enabled.Store(true)

	go cm.cleanupLocalCache(5 * time.Minute)
	return cm
}

// Get 获取缓存值，优先本地缓存，然后Redis
func (cm *CacheManager) Get(ctx context.Context, key string, dest interface{}) error {
	if !cm.enabled.Load() {
		return ErrCacheMiss
	}

	if v, ok := cm.local.Load(key); ok {
		item := v.(*cacheItem)
		if cm.now().Before(item.expiresAt) {
			return json.Unmarshal(item.data, dest)
		}
	}

	if cm.redis != nil {
		data, err := cm.redis.Get(ctx, key).Bytes()
		if err == nil {
			ttl := maxLocalTTL
			if remaining, err := cm.redis.PTTL(ctx, key).Result(); err == nil && remaining > 0 && remaining < ttl {
				ttl = remaining
			}
			cm.setToLocal(key, data, ttl)
			return json.Unmarshal(data, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}

	return ErrCacheMiss
}

// Set 设置缓存值，同时存储到本地和Redis
func (cm *CacheManager) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !cm.enabled.Load() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	cm.setToLocal(key, data, min(ttl, maxLocalTTL))

	if cm.redis != nil {
		return cm.redis.Set(ctx, key, data, ttl).Err()
	}
	return nil
}

// Delete 删除缓存
func (cm *CacheManager) Delete(ctx context.Context, key string) error {
	cm.local.Delete(key)
	if cm.redis != nil {
		return cm.redis.Del(ctx, key).Err()
	}
	return nil
}

func (cm *CacheManager) setToLocal(key string, data []byte, ttl time.Duration) {
	cm.local.Store(key, &cacheItem{data: data, expiresAt: cm.now().Add(ttl)})
}

// cleanupLocalCache 清理过期的本地缓存
func (cm *CacheManager) cleanupLocalCache(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cm.purgeExpired()
		case <-cm.stopCh:
			return
		}
	}
}

func (cm *CacheManager) purgeExpired() {
	now := cm.now()
	cm.local.Range(func(key, v any) bool {
		if now.After(v.(*cacheItem).expiresAt) {
			cm.local.Delete(key)
		}
		return true
	})
}

// GetStats 获取缓存统计信息
func (cm *CacheManager) GetStats() map[string]interface{} {
	count := 0
	cm.local.Range(func(_, _ any) bool {
		count++
		return true
	})
	return map[string]interface{}{
		"enabled":         cm.enabled.Load(),
		"local_items":     count,
		"redis_connected": cm.redis != nil,
	}
}

func (cm *CacheManager) Enable()  { cm.enabled.Store(true) }
func (cm *CacheManager) Disable() { cm.enabled.Store(false) }

// Close 停止后台清理
func (cm *CacheManager) Close() {
	cm.once.Do(func() { close(cm.stopCh) })
}
