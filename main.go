package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"adrecharge-admin/middleware"
	"adrecharge-admin/pkg/config"
	"adrecharge-admin/pkg/goroutinepool"
	"adrecharge-admin/pkg/logger"
	"adrecharge-admin/pkg/monitoring"
	"adrecharge-admin/router"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// 构建时注入的变量
var (
	Version            = "dev"
	BuildTime          = "unknown"
	GitCommit          = "unknown"
	DefaultServiceName = "adrecharge-admin"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "-version", "--version", "-v":
			fmt.Printf("%s\n", DefaultServiceName)
			fmt.Printf("Version: %s\n", Version)
			fmt.Printf("Build Time: %s\n", BuildTime)
			fmt.Printf("Git Commit: %s\n", GitCommit)
			return
		case "-help", "--help", "-h":
			fmt.Printf("%s - 广告账户充值审核与对账服务\n\n", DefaultServiceName)
			fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
			fmt.Printf("Options:\n")
			fmt.Printf("  -version, -v     显示版本信息\n")
			fmt.Printf("  -help, -h        显示帮助信息\n\n")
			fmt.Printf("Environment Variables:\n")
			fmt.Printf("  CONFIG_FILE      配置文件 (默认: config/config.yaml)\n")
			fmt.Printf("  STORAGE          存储 mysql 或 memory (默认: mysql)\n")
			fmt.Printf("  MYSQL_DSN        MySQL 连接串\n")
			fmt.Printf("  REDIS_ADDR       Redis 地址\n")
			fmt.Printf("  RABBITMQ_URL     RabbitMQ 地址\n")
			fmt.Printf("  MONGODB_URI      MongoDB 地址\n")
			fmt.Printf("  JWT_SIGNING_KEY  JWT 签名密钥\n")
			fmt.Printf("  AGENT_KEY_HASH   代理密钥的 bcrypt 哈希\n")
			return
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	config.AppConfig = cfg

	zl, err := logger.Init(cfg.Log)
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	defer zl.Sync()

	if err := run(cfg, zl); err != nil {
		zl.Fatal("服务异常退出", zap.Error(err))
	}
	zl.Info("服务器已安全关闭")
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := goroutinepool.NewPool("audit", 4, 1000, zl)
	pool.Start()

	infra, err := connect(ctx, cfg, zl, pool)
	if err != nil {
		return err
	}
	defer infra.Close()

	app, err := buildApp(cfg, zl, infra)
	if err != nil {
		return err
	}

	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()
	if len(cfg.Security.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.Security.TrustedProxies); err != nil {
			return fmt.Errorf("trusted proxies: %w", err)
		}
	}

	limiterStop := make(chan struct{})
	defer close(limiterStop)

	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery(zl))
	engine.Use(middleware.SecureHeaders())
	engine.Use(middleware.Cors(middleware.CorsConfigFrom(cfg.Security)))
	if cfg.Security.EnableRateLimit {
		engine.Use(middleware.RateLimit(middleware.NewIPRateLimiter(cfg.Security.RateLimit), limiterStop))
	}
	engine.Use(monitoring.PrometheusMiddleware())
	engine.Use(middleware.Performance(zl))
	engine.Use(middleware.ErrorHandler(zl))
	router.Init(engine, app.handlers)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zl.Info("服务器启动", zap.String("addr", server.Addr), zap.String("storage", cfg.Storage))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return app.deposits.ConsumeReports(gctx, infra.consumer, cfg.RabbitMQ.ReportQueue, cfg.RabbitMQ.Prefetch)
	})
	g.Go(func() error {
		return app.deposits.Run(gctx, cfg.Recharge.SweepInterval)
	})
	if infra.db != nil {
		g.Go(func() error {
			return monitorDB(gctx, infra, zl)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		zl.Info("正在关闭服务器...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zl.Warn("服务器强制关闭", zap.Error(err))
		}
		pool.Stop(shutdownCtx)
		return nil
	})

	return g.Wait()
}
