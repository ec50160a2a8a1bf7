package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// lifecycle 监听器生命周期状态
type lifecycle int

const (
	stateIdle lifecycle = iota
	stateRunning
	stateStopped
)

// Config 单个监听器的配置。Concierge 同时跑 api 与 metrics 两个
// 监听器，Name 用来区分日志与错误来源。
type Config struct {
	// 监听器名称（api / metrics）
	Name string `yaml:"name" json:"name"`

	// 监听地址，如 ":8080"
	Addr string `yaml:"addr" json:"addr"`

	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// 空闲连接超时
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// 请求头大小上限
	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 优雅关闭等待时长
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// withDefaults 填充零值字段。metrics 监听器等调用方只给
// Name/Addr，其余超时沿用这里的缺省。
func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "api"
	}
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 120 * time.Second
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = 1 << 20 // 1 MB
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	return c
}

// DefaultConfig 返回全部取缺省值的配置
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

// Manager 管理一个 HTTP 监听器的启动、异常与优雅关闭。
type Manager struct {
	srv    *http.Server
	cfg    Config
	logger *zap.Logger
	errCh  chan error

	mu    sync.RWMutex
	state lifecycle
	bound net.Addr
}

// NewManager 创建监听器管理器。handler 为整条中间件链的根。
func NewManager(handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	cfg = cfg.withDefaults()

	return &Manager{
		srv: &http.Server{
			Addr:           cfg.Addr,
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		cfg:   cfg,
		errCh: make(chan error, 1),
		logger: logger.With(
			zap.String("component", "http_server"),
			zap.String("server", cfg.Name),
		),
	}
}

// Start 绑定端口并在后台开始服务。重复调用与关停后调用都报错。
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateRunning:
		return fmt.Errorf("server %s already started", m.cfg.Name)
	case stateStopped:
		return fmt.Errorf("server %s is closed", m.cfg.Name)
	}

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.cfg.Addr, err)
	}
	m.state = stateRunning
	m.bound = ln.Addr()
	m.logger.Info("starting HTTP server", zap.String("addr", m.bound.String()))

	go func() {
		if err := m.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			m.logger.Error("HTTP server failed", zap.Error(err))
			select {
			case m.errCh <- err:
			default:
			}
		}
	}()

	return nil
}

// Shutdown 优雅关闭：停止接收新连接，等待存量请求完成或超时。
// 幂等，重复调用返回 nil。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != stateRunning {
		m.state = stateStopped
		return nil
	}
	m.state = stateStopped
	m.logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
	defer cancel()

	if err := m.srv.Shutdown(shutdownCtx); err != nil {
		m.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}

	m.logger.Info("HTTP server stopped")
	return nil
}

// WaitForShutdown 阻塞到收到 SIGINT/SIGTERM 或服务异常退出，
// 然后触发优雅关闭。
func (m *Manager) WaitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		m.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-m.errCh:
		if err != nil {
			m.logger.Error("server exited unexpectedly", zap.Error(err))
		}
	}

	if err := m.Shutdown(context.Background()); err != nil {
		m.logger.Error("shutdown error", zap.Error(err))
	}
}

// Errors 暴露异步服务错误（监听中断等）。
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Addr 返回实际绑定地址。":0" 之类的随机端口在 Start 之后
// 解析为真实端口；未启动时返回配置地址。
func (m *Manager) Addr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.bound != nil {
		return m.bound.String()
	}
	return m.cfg.Addr
}

// IsRunning 返回监听器是否在服务中
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == stateRunning
}
