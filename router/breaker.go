package router

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kitadake/concierge/types"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态(正常放行)
	StateClosed State = iota
	// StateOpen 打开状态(熔断中, 直接拒绝)
	StateOpen
	// StateHalfOpen 半开状态(只放行一个探测调用)
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen 熔断器打开, 调用被拒绝。
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// FailureThreshold 窗口内连续失败次数阈值, 达到即熔断
	FailureThreshold int

	// FailureWindow 失败计数窗口; 距上次失败超过窗口则重新计数
	FailureWindow time.Duration

	// CoolDown 熔断冷却时间, 到期后进入半开态
	CoolDown time.Duration

	// OnStateChange 状态变更回调(可选)
	OnStateChange func(from, to State)
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = 60 * time.Second
	}
	if c.CoolDown <= 0 {
		c.CoolDown = 30 * time.Second
	}
	return c
}

// Breaker 是保护单个检索实现的熔断器。状态跨请求共享, 互斥锁保护;
// 计数只需趋势正确, 不追求严格串行。
type Breaker struct {
	name   string
	cfg    BreakerConfig
	logger *zap.Logger

	mu          sync.Mutex
	state       State
	failures    int       // 窗口内连续失败次数
	lastFailure time.Time // 最后一次失败时间
	openedAt    time.Time // 进入打开状态的时间
	probing     bool      // 半开态是否已放行探测
}

// NewBreaker 创建熔断器, name 为被保护的实现名。
func NewBreaker(name string, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		name:   name,
		cfg:    cfg.withDefaults(),
		logger: logger.With(zap.String("component", "breaker"), zap.String("implementation", name)),
		state:  StateClosed,
	}
}

// Call 在熔断器保护下执行 fn。打开状态直接返回 ErrCircuitOpen,
// 不发起调用; 本层不附加超时, 只透传 ctx。
func (b *Breaker) Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn()
	// 无效请求类错误是调用方问题, 不计入熔断失败
	success := err == nil || types.IsErrorCode(err, types.ErrInvalidRequest)
	b.afterCall(success)
	return err
}

// State 返回当前状态。
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset 手动复位到关闭状态。
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	from := b.state
	b.failures = 0
	b.probing = false
	if from != StateClosed {
		b.setState(StateClosed)
		b.logger.Info("breaker manually reset", zap.String("from", from.String()))
	}
}

// beforeCall 调用前的状态检查与迁移。
func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil

	case StateOpen:
		// 冷却期满进入半开, 本次调用即探测
		if time.Since(b.openedAt) < b.cfg.CoolDown {
			return ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
		b.probing = true
		b.logger.Info("breaker entering half-open state")
		return nil

	case StateHalfOpen:
		// 半开态只放行一个探测, 其余调用照常拒绝
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil

	default:
		return ErrCircuitOpen
	}
}

// afterCall 按调用结果推进状态机。
func (b *Breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.onSuccess()
	} else {
		b.onFailure()
	}
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case StateClosed:
		b.failures = 0

	case StateHalfOpen:
		// 探测成功, 恢复闭合
		b.setState(StateClosed)
		b.failures = 0
		b.probing = false
		b.logger.Info("breaker closed after successful probe")
	}
}

func (b *Breaker) onFailure() {
	now := time.Now()

	switch b.state {
	case StateClosed:
		// 距上次失败超过窗口则重新计数
		if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) > b.cfg.FailureWindow {
			b.failures = 0
		}
		b.failures++
		b.lastFailure = now
		if b.failures >= b.cfg.FailureThreshold {
			b.trip(now)
		}

	case StateHalfOpen:
		// 探测失败, 重新打开并重置冷却
		b.probing = false
		b.trip(now)
	}
}

func (b *Breaker) trip(now time.Time) {
	b.openedAt = now
	b.setState(StateOpen)
	b.logger.Warn("breaker opened",
		zap.Int("failures", b.failures),
		zap.Int("threshold", b.cfg.FailureThreshold),
		zap.Duration("cool_down", b.cfg.CoolDown))
}

// setState 调用方须持锁。
func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		go b.cfg.OnStateChange(from, to)
	}
}
