package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileBackendConfig 文件后端配置
type FileBackendConfig struct {
	// Path JSONL 输出文件路径
	Path string

	// MaxSize 单文件大小上限(字节), 达到后轮转
	MaxSize int64
}

// FileBackend 把事件逐行追加为 JSONL。文件达到大小上限时轮转:
// 当前文件更名为带时间戳的归档, 原路径重新开新文件。
type FileBackend struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	file    *os.File
	size    int64
	logger  *zap.Logger
}

// NewFileBackend 创建文件后端并打开目标文件(追加模式)。
func NewFileBackend(cfg FileBackendConfig, logger *zap.Logger) (*FileBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("audit file path is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 64 * 1024 * 1024
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}

	b := &FileBackend{
		path:    cfg.Path,
		maxSize: cfg.MaxSize,
		logger:  logger.With(zap.String("component", "audit_file")),
	}
	if err := b.open(); err != nil {
		return nil, err
	}
	return b, nil
}

// open 调用方须持锁(构造期除外)。
func (b *FileBackend) open() error {
	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit file: %w", err)
	}
	b.file = f
	b.size = info.Size()
	return nil
}

// Write 实现 Backend.Write
func (b *FileBackend) Write(_ context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	line := append(data, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size+int64(len(line)) > b.maxSize {
		if err := b.rotate(); err != nil {
			return err
		}
	}

	n, err := b.file.Write(line)
	b.size += int64(n)
	if err != nil {
		return fmt.Errorf("write audit event: %w", err)
	}
	return nil
}

// rotate 调用方须持锁。
func (b *FileBackend) rotate() error {
	if err := b.file.Close(); err != nil {
		return fmt.Errorf("close audit file: %w", err)
	}

	ext := filepath.Ext(b.path)
	stem := strings.TrimSuffix(b.path, ext)
	archived := fmt.Sprintf("%s-%s%s", stem, time.Now().Format("20060102T150405.000"), ext)
	if err := os.Rename(b.path, archived); err != nil {
		return fmt.Errorf("rotate audit file: %w", err)
	}

	b.logger.Info("audit file rotated", zap.String("archived", archived))
	return b.open()
}

// Query 实现 Backend.Query。只扫描当前文件, 归档文件不参与查询。
func (b *FileBackend) Query(_ context.Context, filter Filter) ([]*Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open audit file: %w", err)
	}
	defer f.Close()

	var out []*Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			// 跳过损坏的行
			continue
		}
		if filter.matches(&ev) {
			out = append(out, &ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan audit file: %w", err)
	}

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[len(out)-filter.Limit:]
	}
	return out, nil
}

// Close 实现 Backend.Close
func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		return nil
	}
	err := b.file.Close()
	b.file = nil
	return err
}
