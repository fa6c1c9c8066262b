package database

import (
	"context"
	"database/sql"
	"time"

	"adrecharge-admin/pkg/monitoring"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MonitorPool 定期上报连接池指标, ctx 结束时返回
func MonitorPool(ctx context.Context, db *gorm.DB, interval time.Duration, logger *zap.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := sqlDB.Stats()
			monitoring.UpdateDBConnections(stats.InUse)
			checkPoolHealth(stats, logger)
		}
	}
}

// checkPoolHealth 连接池使用率超过80%或等待过长时告警
func checkPoolHealth(stats sql.DBStats, logger *zap.Logger) {
	if stats.MaxOpenConnections > 0 {
		usage := float64(stats.OpenConnections) / float64(stats.MaxOpenConnections)
		if usage > 0.8 {
			logger.Warn("数据库连接池使用率过高",
				zap.Float64("usage", usage),
				zap.Int("open", stats.OpenConnections),
				zap.Int("max_open", stats.MaxOpenConnections),
				zap.Int("in_use", stats.InUse))
		}
	}
	if stats.WaitDuration > time.Second {
		logger.Warn("数据库连接等待时间过长", zap.Duration("wait", stats.WaitDuration), zap.Int64("wait_count", stats.WaitCount))
	}
}
