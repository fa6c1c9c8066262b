package audit_service

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"adrecharge-admin/model/audit_model"
	"adrecharge-admin/pkg/goroutinepool"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Recorder 审计日志写入; 写入失败只记录日志, 不影响业务
type Recorder interface {
	Record(ctx context.Context, log *audit_model.DepositAuditLog)
}

// Reader 审计日志查询
type Reader interface {
	List(ctx context.Context, q audit_model.ListQuery) ([]audit_model.DepositAuditLog, int64, error)
}

func serverInfo() audit_model.ServerInfo {
	hostname, _ := os.Hostname()
	return audit_model.ServerInfo{Hostname: hostname, PID: os.Getpid()}
}

func stamp(log *audit_model.DepositAuditLog) {
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	if log.ServerInfo.Hostname == "" {
		log.ServerInfo = serverInfo()
	}
}

// MongoRecorder 通过 goroutine 池异步写入 MongoDB
type MongoRecorder struct {
	collection *mongo.Collection
	pool       *goroutinepool.Pool
	logger     *zap.Logger
}

func NewMongoRecorder(collection *mongo.Collection, pool *goroutinepool.Pool, logger *zap.Logger) *MongoRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoRecorder{collection: collection, pool: pool, logger: logger}
}

func (r *MongoRecorder) Record(_ context.Context, log *audit_model.DepositAuditLog) {
	stamp(log)
	task := &goroutinepool.Task{
		ID:      "audit:" + log.LogType,
		Timeout: 5 * time.Second,
		Function: func(ctx context.Context) error {
			_, err := r.collection.InsertOne(ctx, log)
			return err
		},
		Callback: func(err error) {
			if err != nil {
				r.logger.Error("保存审计日志失败",
					zap.String("log_type", log.LogType),
					zap.String("apply_no", log.ApplyNo),
					zap.Error(err))
			}
		},
	}
	if err := r.pool.Submit(task); err != nil {
		r.logger.Warn("审计日志队列已满, 丢弃日志",
			zap.String("log_type", log.LogType),
			zap.String("apply_no", log.ApplyNo),
			zap.Error(err))
	}
}

func buildFilter(q audit_model.ListQuery) bson.M {
	filter := bson.M{}
	if q.LogType != "" {
		filter["log_type"] = q.LogType
	}
	if q.DepositID > 0 {
		filter["deposit_id"] = q.DepositID
	}
	if q.ApplyNo != "" {
		filter["apply_no"] = q.ApplyNo
	}
	if q.Operator != "" {
		filter["operator"] = q.Operator
	}
	if q.Forced != nil {
		filter["forced"] = *q.Forced
	}
	if !q.Start.IsZero() || !q.End.IsZero() {
		rng := bson.M{}
		if !q.Start.IsZero() {
			rng["$gte"] = q.Start
		}
		if !q.End.IsZero() {
			rng["$lte"] = q.End
		}
		filter["created_at"] = rng
	}
	return filter
}

// List 分页查询, 按创建时间倒序
func (r *MongoRecorder) List(ctx context.Context, q audit_model.ListQuery) ([]audit_model.DepositAuditLog, int64, error) {
	q.Normalize()
	filter := buildFilter(q)

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("查询日志总数失败: %w", err)
	}

	opts := options.Find().
		SetSkip(int64((q.Page - 1) * q.PageSize)).
		SetLimit(int64(q.PageSize)).
		SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("查询日志列表失败: %w", err)
	}
	defer cursor.Close(ctx)

	var logs []audit_model.DepositAuditLog
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, 0, fmt.Errorf("解析日志数据失败: %w", err)
	}
	return logs, total, nil
}

// EnsureIndexes 创建查询所需索引
func (r *MongoRecorder) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "deposit_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "log_type", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "apply_no", Value: 1}}},
	})
	return err
}

// MemoryRecorder 内存实现, 用于内存存储模式和测试
type MemoryRecorder struct {
	mu   sync.Mutex
	logs []audit_model.DepositAuditLog
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

func (m *MemoryRecorder) Record(_ context.Context, log *audit_model.DepositAuditLog) {
	stamp(log)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *log)
}

// Logs 返回全部日志的副本
func (m *MemoryRecorder) Logs() []audit_model.DepositAuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]audit_model.DepositAuditLog, len(m.logs))
	copy(out, m.logs)
	return out
}

func (m *MemoryRecorder) List(_ context.Context, q audit_model.ListQuery) ([]audit_model.DepositAuditLog, int64, error) {
	q.Normalize()
	m.mu.Lock()
	var matched []audit_model.DepositAuditLog
	for _, l := range m.logs {
		if match(l, q) {
			matched = append(matched, l)
		}
	}
	m.mu.Unlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))
	start := (q.Page - 1) * q.PageSize
	if start >= len(matched) {
		return []audit_model.DepositAuditLog{}, total, nil
	}
	end := min(start+q.PageSize, len(matched))
	return matched[start:end], total, nil
}

func match(l audit_model.DepositAuditLog, q audit_model.ListQuery) bool {
	if q.LogType != "" && l.LogType != q.LogType {
		return false
	}
	if q.DepositID > 0 && (l.DepositID == nil || *l.DepositID != q.DepositID) {
		return false
	}
	if q.ApplyNo != "" && !strings.EqualFold(l.ApplyNo, q.ApplyNo) {
		return false
	}
	if q.Operator != "" && l.Operator != q.Operator {
		return false
	}
	if q.Forced != nil && l.Forced != *q.Forced {
		return false
	}
	if !q.Start.IsZero() && l.CreatedAt.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && l.CreatedAt.After(q.End) {
		return false
	}
	return true
}

// NopRecorder 丢弃所有日志
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, *audit_model.DepositAuditLog) {}
