package goroutinepool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"adrecharge-admin/pkg/monitoring"

	"go.uber.org/zap"
)

var (
	ErrPoolOverloaded = errors.New("goroutine pool is overloaded")
	ErrPoolStopped    = errors.New("goroutine pool is stopped")
)

// Task 代表一个需要执行的任务. 失败不会自动重试
type Task struct {
	ID       string
	Function func(ctx context.Context) error
	Callback func(error)
	Timeout  time.Duration
}

// Pool 固定数量 worker 的任务池
type Pool struct {
	name    string
	workers int
	queue   chan *Task
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *zap.Logger

	mu      sync.RWMutex
	stopped bool

	totalTasks     int64
	completedTasks int64
	failedTasks    int64
	activeTasks    int64
	rejectedTasks  int64
}

// NewPool 创建任务池
func NewPool(name string, workers, queueSize int, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		name:    name,
		workers: workers,
		queue:   make(chan *Task, queueSize),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Start 启动所有 worker
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	p.logger.Info("goroutine池已启动", zap.String("pool", p.name), zap.Int("workers", p.workers))
}

// Stop 停止接收新任务, 执行完队列中的任务; ctx 到期后取消剩余任务
func (p *Pool) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("goroutine池已安全停止", zap.String("pool", p.name))
	case <-ctx.Done():
		p.cancel()
		<-done
		p.logger.Warn("goroutine池停止超时, 已取消剩余任务", zap.String("pool", p.name))
	}
	p.cancel()
}

// Submit 非阻塞提交任务, 队列已满返回 ErrPoolOverloaded
func (p *Pool) Submit(task *Task) error {
	if task.Timeout == 0 {
		task.Timeout = 30 * time.Second
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.queue <- task:
		atomic.AddInt64(&p.totalTasks, 1)
		return nil
	default:
		atomic.AddInt64(&p.rejectedTasks, 1)
		monitoring.PoolTasks.WithLabelValues(p.name, "rejected").Inc()
		return ErrPoolOverloaded
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.execute(task)
	}
}

func (p *Pool) execute(task *Task) {
	atomic.AddInt64(&p.activeTasks, 1)
	defer atomic.AddInt64(&p.activeTasks, -1)

	ctx, cancel := context.WithTimeout(p.ctx, task.Timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = &TaskPanicError{Panic: r}
			}
		}()
		return task.Function(ctx)
	}()

	if err != nil {
		atomic.AddInt64(&p.failedTasks, 1)
		monitoring.PoolTasks.WithLabelValues(p.name, "failed").Inc()
		p.logger.Warn("任务执行失败", zap.String("pool", p.name), zap.String("task", task.ID), zap.Error(err))
	} else {
		atomic.AddInt64(&p.completedTasks, 1)
		monitoring.PoolTasks.WithLabelValues(p.name, "completed").Inc()
	}

	if task.Callback != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("任务回调发生panic", zap.String("task", task.ID), zap.Any("panic", r))
				}
			}()
			task.Callback(err)
		}()
	}
}

// GetStats 获取统计信息
func (p *Pool) GetStats() map[string]int64 {
	return map[string]int64{
		"total_tasks":     atomic.LoadInt64(&p.totalTasks),
		"completed_tasks": atomic.LoadInt64(&p.completedTasks),
		"failed_tasks":    atomic.LoadInt64(&p.failedTasks),
		"active_tasks":    atomic.LoadInt64(&p.activeTasks),
		"rejected_tasks":  atomic.LoadInt64(&p.rejectedTasks),
		"queued_tasks":    int64(len(p.queue)),
		"worker_count":    int64(p.workers),
	}
}

type TaskPanicError struct {
	Panic interface{}
}

func (e *TaskPanicError) Error() string {
	return fmt.Sprintf("task panic: %v", e.Panic)
}
