package redis

import (
	"context"
	"fmt"
	"time"

	"adrecharge-admin/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Connect 创建 Redis 客户端并测试连接; 连接失败时关闭客户端并返回错误
func Connect(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  orDefault(cfg.DialTimeout, 5*time.Second),
		ReadTimeout:  orDefault(cfg.ReadTimeout, 3*time.Second),
		WriteTimeout: orDefault(cfg.WriteTimeout, 3*time.Second),
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("redis connected", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return client, nil
}

// Ping 用于就绪检查
func Ping(client *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}

// Stats 连接池统计
func Stats(client *redis.Client) func() map[string]interface{} {
	return func() map[string]interface{} {
		s := client.PoolStats()
		return map[string]interface{}{
			"hits":        s.Hits,
			"misses":      s.Misses,
			"timeouts":    s.Timeouts,
			"total_conns": s.TotalConns,
			"idle_conns":  s.IdleConns,
		}
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
