package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var (
	// ErrMalformed 消息无法解析, 直接丢弃不重投
	ErrMalformed = errors.New("malformed message")
	ErrClosed    = errors.New("amqp connection closed")
)

// Connection 封装 AMQP 连接与发布通道; 连接断开后在下一次发布或消费时重连
type Connection struct {
	url    string
	queues []string
	logger *zap.Logger

	mu     sync.Mutex // 保护 conn, pubCh, closed
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	closed bool
}

// Dial 建立连接并声明需要的持久化队列
func Dial(url string, logger *zap.Logger, queues ...string) (*Connection, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Connection{url: url, queues: queues, logger: logger}
	if err := c.open(); err != nil {
		return nil, err
	}
	logger.Info("RabbitMQ连接已建立", zap.Strings("queues", queues))
	return c, nil
}

// open 重新拨号并声明队列, 调用方持有 mu
func (c *Connection) open() error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	for _, q := range c.queues {
		if err := declare(ch, q); err != nil {
			ch.Close()
			conn.Close()
			return err
		}
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn, c.pubCh = conn, ch
	return nil
}

// live 返回可用连接, 已断开则重连
func (c *Connection) live() (*amqp.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.conn == nil || c.conn.IsClosed() {
		if err := c.open(); err != nil {
			return nil, err
		}
		c.logger.Info("RabbitMQ已重新连接")
	}
	return c.conn, nil
}

func declare(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// Publish 以持久化消息发送 JSON
func (c *Connection) Publish(_ context.Context, queue string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	switch {
	case c.conn == nil || c.conn.IsClosed():
		if err := c.open(); err != nil {
			return err
		}
	case c.pubCh == nil:
		ch, err := c.conn.Channel()
		if err != nil {
			return fmt.Errorf("open channel: %w", err)
		}
		c.pubCh = ch
	}
	err = c.pubCh.Publish(
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		// 通道异常后不可复用, 下次发布重新打开
		_ = c.pubCh.Close()
		c.pubCh = nil
	}
	return err
}

// Handler 处理一条消息. 返回 ErrMalformed 时丢弃, 其他错误重新入队
type Handler func(ctx context.Context, body []byte) error

// Consume 手动确认消费, 阻塞到 ctx 结束或通道关闭. 断线重连见 ConsumeForever
func (c *Connection) Consume(ctx context.Context, queue string, prefetch int, handler Handler) error {
	conn, err := c.live()
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
	}
	msgs, err := ch.Consume(
		queue, // queue
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}
	return drain(ctx, msgs, queue, handler, c.logger)
}

// drain 逐条处理投递, 通道被关闭时返回 ErrClosed
func drain(ctx context.Context, msgs <-chan amqp.Delivery, queue string, handler Handler, logger *zap.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return ErrClosed
			}
			deliver(ctx, queue, d, handler, logger)
		}
	}
}

func deliver(ctx context.Context, queue string, d amqp.Delivery, handler Handler, logger *zap.Logger) {
	err := handler(ctx, d.Body)
	switch {
	case err == nil:
		if ackErr := d.Ack(false); ackErr != nil {
			logger.Warn("消息确认失败", zap.String("queue", queue), zap.Error(ackErr))
		}
	case errors.Is(err, ErrMalformed):
		logger.Warn("丢弃无法解析的消息", zap.String("queue", queue), zap.ByteString("body", d.Body), zap.Error(err))
		_ = d.Nack(false, false)
	default:
		logger.Warn("消息处理失败, 重新入队", zap.String("queue", queue), zap.Error(err))
		_ = d.Nack(false, true)
	}
}

// reconnectBackoff 消费断开后的重连间隔, 不设总时长上限
var reconnectBackoff = func() backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(500*time.Millisecond),
		backoff.WithMaxInterval(30*time.Second),
		backoff.WithMaxElapsedTime(0),
	)
}

// healthySession 会话持续超过该时长后重置退避
const healthySession = time.Minute

// ConsumeForever 持续消费直到 ctx 结束. 连接断开只记日志并按指数退避重试,
// 不会向调用方返回, 避免消息中间件抖动拖垮 HTTP 服务
func ConsumeForever(ctx context.Context, consumer Consumer, queue string, prefetch int, handler Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := reconnectBackoff()
	for {
		started := time.Now()
		err := consumer.Consume(ctx, queue, prefetch, handler)
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(started) > healthySession {
			b.Reset()
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			wait = 30 * time.Second
		}
		logger.Warn("消费中断, 稍后重连",
			zap.String("queue", queue),
			zap.Duration("retry_in", wait),
			zap.Error(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Close 关闭通道和连接, 之后不再重连
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.pubCh != nil {
		c.pubCh.Close()
		c.pubCh = nil
	}
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Publisher 发布接口, 便于替换
type Publisher interface {
	Publish(ctx context.Context, queue string, v interface{}) error
}

// TaskQueue 把代理任务发布到指定队列
type TaskQueue[T any] struct {
	publisher Publisher
	queue     string
}

func NewTaskQueue[T any](publisher Publisher, queue string) *TaskQueue[T] {
	return &TaskQueue[T]{publisher: publisher, queue: queue}
}

func (q *TaskQueue[T]) Enqueue(ctx context.Context, task T) error {
	return q.publisher.Publish(ctx, q.queue, task)
}

// MemoryBroker 进程内队列, 内存存储模式和测试使用
type MemoryBroker struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	size   int
}

func NewMemoryBroker(size int) *MemoryBroker {
	if size <= 0 {
		size = 1024
	}
	return &MemoryBroker{queues: make(map[string]chan []byte), size: size}
}

func (b *MemoryBroker) queue(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		q = make(chan []byte, b.size)
		b.queues[name] = q
	}
	return q
}

func (b *MemoryBroker) Publish(ctx context.Context, queue string, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	select {
	case b.queue(queue) <- body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("queue %s is full", queue)
	}
}

// Consume 与 Connection.Consume 语义一致; 重投的消息追加到队尾
func (b *MemoryBroker) Consume(ctx context.Context, queue string, _ int, handler Handler) error {
	q := b.queue(queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case body := <-q:
			err := handler(ctx, body)
			if err != nil && !errors.Is(err, ErrMalformed) {
				select {
				case q <- body:
				default:
				}
			}
		}
	}
}

// Consumer 消费接口
type Consumer interface {
	Consume(ctx context.Context, queue string, prefetch int, handler Handler) error
}

var (
	_ Publisher = (*Connection)(nil)
	_ Publisher = (*MemoryBroker)(nil)
	_ Consumer  = (*Connection)(nil)
	_ Consumer  = (*MemoryBroker)(nil)
)
