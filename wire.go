package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"adrecharge-admin/controllers/admin"
	"adrecharge-admin/controllers/agent"
	"adrecharge-admin/controllers/app"
	"adrecharge-admin/controllers/health"
	"adrecharge-admin/model/application_model"
	dm "adrecharge-admin/model/deposit_model"
	"adrecharge-admin/model/refund_model"
	"adrecharge-admin/model/wallet_model"
	"adrecharge-admin/mongodb"
	"adrecharge-admin/pkg/cache"
	"adrecharge-admin/pkg/config"
	"adrecharge-admin/pkg/database"
	"adrecharge-admin/pkg/goroutinepool"
	"adrecharge-admin/pkg/jwt"
	"adrecharge-admin/pkg/lock"
	"adrecharge-admin/pkg/mq"
	rdb "adrecharge-admin/redis"
	"adrecharge-admin/repository/inmem"
	"adrecharge-admin/repository/mysql"
	"adrecharge-admin/router"
	"adrecharge-admin/services/application_service"
	"adrecharge-admin/services/audit_service"
	"adrecharge-admin/services/bulk_service"
	"adrecharge-admin/services/deposit_service"
	"adrecharge-admin/services/recharge_service"
	"adrecharge-admin/services/refund_service"
	"adrecharge-admin/services/wallet_service"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type repositories struct {
	deposits     dm.Repository
	accounts     dm.AdAccountRepository
	rates        dm.CommissionRateRepository
	ledger       wallet_model.Ledger
	applications application_model.Repository
	refunds      refund_model.Repository
}

// infrastructure 外部依赖; Redis, RabbitMQ, MongoDB 不可用时降级为进程内实现
type infrastructure struct {
	db       *gorm.DB
	redis    *redis.Client
	mongo    *mongo.Client
	amqp     *mq.Connection
	repos    repositories
	locker   lock.Locker
	cache    *cache.CacheManager
	broker   mq.Publisher
	consumer mq.Consumer
	audit    audit_service.Recorder
	reader   audit_service.Reader
	logger   *zap.Logger
}

func connect(ctx context.Context, cfg *config.Config, zl *zap.Logger, pool *goroutinepool.Pool) (*infrastructure, error) {
	infra := &infrastructure{logger: zl}

	switch cfg.Storage {
	case "memory":
		accounts := inmem.NewAdAccountRepository()
		infra.repos = repositories{
			deposits:     inmem.NewDepositRepository(),
			accounts:     accounts,
			rates:        inmem.NewCommissionRateRepository(),
			ledger:       inmem.NewLedger(),
			applications: inmem.NewApplicationRepository(accounts),
			refunds:      inmem.NewRefundRepository(),
		}
		zl.Warn("使用内存存储, 重启后数据丢失")
	default:
		db, err := database.Open(cfg.Database)
		if err != nil {
			return nil, err
		}
		infra.db = db
		if cfg.Database.AutoMigrate {
			if err := mysql.Migrate(db); err != nil {
				_ = database.Close(db)
				return nil, fmt.Errorf("migrate: %w", err)
			}
		}
		infra.repos = repositories{
			deposits:     mysql.NewDepositRepository(db),
			accounts:     mysql.NewAdAccountRepository(db),
			rates:        mysql.NewCommissionRateRepository(db),
			ledger:       mysql.NewLedger(db),
			applications: mysql.NewApplicationRepository(db),
			refunds:      mysql.NewRefundRepository(db),
		}
	}

	if client, err := rdb.Connect(ctx, cfg.Redis, zl); err != nil {
		zl.Warn("Redis不可用, 使用进程内锁和本地缓存", zap.Error(err))
		infra.locker = lock.NewLocalLocker()
		infra.cache = cache.NewCacheManager(nil)
	} else {
		infra.redis = client
		infra.locker = lock.NewRedisLocker(client, zl)
		infra.cache = cache.NewCacheManager(client)
	}

	if conn, err := mq.Dial(cfg.RabbitMQ.URL, zl, cfg.RabbitMQ.TaskQueue, cfg.RabbitMQ.ReportQueue); err != nil {
		zl.Warn("RabbitMQ不可用, 使用进程内队列", zap.Error(err))
		broker := mq.NewMemoryBroker(0)
		infra.broker, infra.consumer = broker, broker
	} else {
		infra.amqp = conn
		infra.broker, infra.consumer = conn, conn
	}

	if client, coll, err := mongodb.Connect(ctx, cfg.MongoDB, zl); err != nil {
		zl.Warn("MongoDB不可用, 审计日志仅保存在内存", zap.Error(err))
		mem := audit_service.NewMemoryRecorder()
		infra.audit, infra.reader = mem, mem
	} else {
		infra.mongo = client
		rec := audit_service.NewMongoRecorder(coll, pool, zl)
		if err := rec.EnsureIndexes(ctx); err != nil {
			zl.Warn("创建审计日志索引失败", zap.Error(err))
		}
		infra.audit, infra.reader = rec, rec
	}
	return infra, nil
}

// Close 按依赖反序关闭连接
func (i *infrastructure) Close() {
	if i.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := i.mongo.Disconnect(ctx); err != nil {
			i.logger.Warn("关闭MongoDB连接失败", zap.Error(err))
		}
	}
	if i.amqp != nil {
		if err := i.amqp.Close(); err != nil {
			i.logger.Warn("关闭RabbitMQ连接失败", zap.Error(err))
		}
	}
	if i.cache != nil {
		i.cache.Close()
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			i.logger.Warn("关闭Redis连接失败", zap.Error(err))
		}
	}
	if i.db != nil {
		if err := database.Close(i.db); err != nil {
			i.logger.Warn("关闭数据库连接失败", zap.Error(err))
		}
	}
}

func monitorDB(ctx context.Context, i *infrastructure, zl *zap.Logger) error {
	return database.MonitorPool(ctx, i.db, 30*time.Second, zl)
}

type application struct {
	deposits *deposit_service.Service
	handlers router.Handlers
}

// platformEndpoints 忽略未知平台的配置
func platformEndpoints(cfg config.RechargeConfig, zl *zap.Logger) map[dm.Platform]config.PlatformEndpoint {
	out := make(map[dm.Platform]config.PlatformEndpoint, len(cfg.Platforms))
	for name, ep := range cfg.Platforms {
		p, err := dm.ParsePlatform(strings.ToUpper(strings.TrimSpace(name)))
		if err != nil {
			zl.Warn("忽略未知平台配置", zap.String("platform", name))
			continue
		}
		out[p] = ep
	}
	return out
}

func buildApp(cfg *config.Config, zl *zap.Logger, infra *infrastructure) (*application, error) {
	defaultRate, err := cfg.Commission.Rate()
	if err != nil {
		return nil, err
	}
	openingFee, err := cfg.Opening.Fee()
	if err != nil {
		return nil, err
	}

	endpoints := platformEndpoints(cfg.Recharge, zl)
	httpClient := &http.Client{Timeout: cfg.Recharge.DirectTimeout + 5*time.Second}

	var directory recharge_service.DirectoryClient
	if len(endpoints) > 0 {
		directory = recharge_service.NewHTTPDirectoryClient(httpClient, endpoints)
	}
	classifier := recharge_service.NewClassifier(directory, infra.cache,
		cfg.Recharge.ClassifyTimeout, cfg.Recharge.ClassifyCacheTTL, zl)
	adapters := recharge_service.NewAdapters(
		recharge_service.NewDirectAdapter(httpClient, endpoints, cfg.Recharge.DirectTimeout, cfg.Recharge.DirectRPS, zl),
		recharge_service.NewAgentAdapter(mq.NewTaskQueue[recharge_service.AgentTask](infra.broker, cfg.RabbitMQ.TaskQueue), zl),
		recharge_service.ManualAdapter{},
	)

	repos := infra.repos
	deposits := deposit_service.NewService(deposit_service.Deps{
		Deposits:   repos.deposits,
		Accounts:   repos.accounts,
		Rates:      repos.rates,
		Ledger:     repos.ledger,
		Classifier: classifier,
		Adapters:   adapters,
		Locker:     infra.locker,
		Audit:      infra.audit,
		Logger:     zl,
	}, deposit_service.Options{
		DefaultRate: defaultRate,
		LockTTL:     cfg.Recharge.LockTTL,
		StaleAfter:  cfg.Recharge.StaleAfter,
	})
	applications := application_service.NewService(repos.applications, repos.ledger, infra.locker, infra.audit, zl,
		openingFee, cfg.Opening.MaxAccounts)
	refunds := refund_service.NewService(repos.refunds, repos.accounts, repos.ledger, infra.locker, infra.audit, zl)
	wallets := wallet_service.NewService(repos.ledger, infra.audit, zl)
	bulk := bulk_service.NewCoordinator(deposits, applications, cfg.Bulk.MaxItems, cfg.Bulk.Concurrency, zl)

	hc := health.NewHealthController(DefaultServiceName, Version)
	if infra.db != nil {
		hc.AddCheck("database", func(ctx context.Context) error { return database.HealthCheck(ctx, infra.db) })
		hc.AddStats("database", func() map[string]interface{} { return database.GetStats(infra.db) })
	}
	if infra.redis != nil {
		hc.AddCheck("redis", rdb.Ping(infra.redis))
		hc.AddStats("redis", rdb.Stats(infra.redis))
	}
	if infra.mongo != nil {
		hc.AddCheck("mongodb", mongodb.Ping(infra.mongo))
	}
	hc.AddStats("cache", infra.cache.GetStats)

	return &application{
		deposits: deposits,
		handlers: router.Handlers{
			JWT:          jwt.NewManager(cfg.JWT),
			AgentKeyHash: cfg.Agent.KeyHash,
			Deposits:     admin.NewDepositController(deposits),
			Bulk:         admin.NewBulkController(bulk),
			Applications: admin.NewApplicationController(applications),
			Refunds:      admin.NewRefundController(refunds),
			Wallets:      admin.NewWalletController(wallets),
			Audit:        admin.NewAuditController(infra.reader),
			App:          app.NewController(deposits, applications, refunds, wallets),
			Agent:        agent.NewController(deposits),
			Health:       hc,
		},
	}, nil
}
