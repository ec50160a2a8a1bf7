package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Backend 审计存储后端。
type Backend interface {
	// Write 落盘一条事件
	Write(ctx context.Context, ev *Event) error

	// Query 按过滤条件读取事件
	Query(ctx context.Context, filter Filter) ([]*Event, error)

	// Close 关闭后端
	Close() error
}

// Config 审计队列配置
type Config struct {
	// QueueSize 异步队列长度, 满时丢弃
	QueueSize int

	// Workers 消费协程数
	Workers int
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	return c
}

// Sink 异步审计队列。Record 永不阻塞请求路径; 队列满时事件被丢弃,
// 只记一条日志。
type Sink struct {
	backend Backend
	queue   chan *Event
	wg      sync.WaitGroup
	logger  *zap.Logger

	closeMu sync.Mutex
	closed  bool
}

// NewSink 创建审计队列并启动消费协程。
func NewSink(backend Backend, cfg Config, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()

	s := &Sink{
		backend: backend,
		queue:   make(chan *Event, cfg.QueueSize),
		logger:  logger.With(zap.String("component", "audit")),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

func (s *Sink) worker() {
	defer s.wg.Done()

	for ev := range s.queue {
		if err := s.backend.Write(context.Background(), ev); err != nil {
			s.logger.Error("failed to persist audit event",
				zap.String("event_id", ev.ID),
				zap.String("type", string(ev.Type)),
				zap.Error(err))
		}
	}
}

// Record 异步投递一条事件。队列满或已关闭时丢弃。
func (s *Sink) Record(ev *Event) {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		s.logger.Warn("audit sink closed, dropping event", zap.String("type", string(ev.Type)))
		return
	}
	s.closeMu.Unlock()

	s.stamp(ev)
	select {
	case s.queue <- ev:
	default:
		s.logger.Warn("audit queue full, dropping event",
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)))
	}
}

// RecordSync 同步落盘一条事件, 供关闭前的收尾路径使用。
func (s *Sink) RecordSync(ctx context.Context, ev *Event) error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return fmt.Errorf("audit sink is closed")
	}
	s.closeMu.Unlock()

	s.stamp(ev)
	return s.backend.Write(ctx, ev)
}

func (s *Sink) stamp(ev *Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
}

// Query 按过滤条件读取已落盘事件。
func (s *Sink) Query(ctx context.Context, filter Filter) ([]*Event, error) {
	return s.backend.Query(ctx, filter)
}

// Close 排空队列并关闭后端。幂等。
func (s *Sink) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	close(s.queue)
	s.wg.Wait()

	err := s.backend.Close()
	s.logger.Info("audit sink closed")
	return err
}
