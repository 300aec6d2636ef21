package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel 定义日志级别类型
type LogLevel int

// 日志级别常量定义
const (
	DEBUG   LogLevel = iota // 调试信息
	INFO                    // 普通信息
	WARNING                 // 警告信息
	ERROR                   // 错误信息
)

// subscriberBuffer 订阅通道容量, 满了直接丢弃
const subscriberBuffer = 100

// Logger 日志记录器, 底层使用 zap 输出到文件, 同时把每一行推送给订阅者
type Logger struct {
	path        string
	file        *os.File      // 日志文件句柄
	mu          sync.Mutex    // 保护 file 和 subscribers
	subscribers []chan string // 订阅者通道列表
	level       zap.AtomicLevel
	zl          *zap.Logger
}

// NewLogger 创建新的日志记录器
// 参数:
//
//	filename: 日志文件路径
func NewLogger(filename string) (*Logger, error) {
	file, err := openLogFile(filename)
	if err != nil {
		return nil, err
	}

	l := &Logger{
		path:  filename,
		file:  file,
		level: zap.NewAtomicLevelAt(zapcore.InfoLevel),
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(l), l.level)
	l.zl = zap.New(core)
	return l, nil
}

// NewNopLogger 不写文件的记录器, 订阅依然可用
func NewNopLogger() *Logger {
	l := &Logger{level: zap.NewAtomicLevelAt(zapcore.InfoLevel)}
	encCfg := zap.NewProductionEncoderConfig()
	l.zl = zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(l), l.level))
	return l
}

func openLogFile(filename string) (*os.File, error) {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// Write 实现 io.Writer, 由 zap core 调用
func (l *Logger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		if _, err := l.file.Write(p); err != nil {
			return 0, err
		}
	}

	entry := strings.TrimRight(string(p), "\n")
	for _, ch := range l.subscribers {
		select {
		case ch <- entry:
		default:
		}
	}
	return len(p), nil
}

// Sync 实现 zapcore.WriteSyncer
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		return l.file.Sync()
	}
	return nil
}

// Close 关闭日志文件
func (l *Logger) Close() error {
	_ = l.zl.Sync()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Reopen 重新打开日志文件, 收到 SIGHUP 时调用
// 参数：
// filename：新文件的路径, 为空则沿用原路径
func (l *Logger) Reopen(filename string) error {
	if filename == "" {
		filename = l.path
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		_ = l.file.Close()
	}

	file, err := openLogFile(filename)
	if err != nil {
		l.file = nil
		return err
	}
	l.file = file
	l.path = filename
	return nil
}

// CheckRotate 文件超过 maxSize 字节时轮转
func (l *Logger) CheckRotate(maxSize int64) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil || maxSize <= 0 {
		return false, nil
	}

	info, err := l.file.Stat()
	if err != nil {
		return false, err
	}
	if info.Size() <= maxSize {
		return false, nil
	}
	return true, l.rotateLocked()
}

func (l *Logger) rotateLocked() error {
	_ = l.file.Close()
	l.file = nil

	ext := filepath.Ext(l.path)
	rotated := fmt.Sprintf("%s.%s%s", strings.TrimSuffix(l.path, ext), time.Now().Format("20060102150405"), ext)
	if err := os.Rename(l.path, rotated); err != nil {
		// 改名失败时继续写原路径
		if file, openErr := openLogFile(l.path); openErr == nil {
			l.file = file
		}
		return fmt.Errorf("日志轮转失败: %w", err)
	}

	file, err := openLogFile(l.path)
	if err != nil {
		return err
	}
	l.file = file
	return nil
}

// Subscribe 订阅日志消息
// 返回值:
//
//	<-chan string: 只读通道，用于接收日志消息
func (l *Logger) Subscribe() <-chan string {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch := make(chan string, subscriberBuffer)
	l.subscribers = append(l.subscribers, ch)
	return ch
}

// Unsubscribe 取消订阅并关闭通道
func (l *Logger) Unsubscribe(sub <-chan string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, ch := range l.subscribers {
		if ch == sub {
			l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

// SetLevel 动态调整日志级别
func (l *Logger) SetLevel(level string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("无效的日志级别 %q: %w", level, err)
	}
	l.level.SetLevel(lvl)
	return nil
}

// Zap 返回底层 zap.Logger, 需要结构化字段时使用
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// Log 按级别记录日志
func (l *Logger) Log(level LogLevel, message string, fields ...zap.Field) {
	switch level {
	case DEBUG:
		l.zl.Debug(message, fields...)
	case INFO:
		l.zl.Info(message, fields...)
	case WARNING:
		l.zl.Warn(message, fields...)
	default:
		l.zl.Error(message, fields...)
	}
}

// String 实现LogLevel的String方法
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARNING:
		return "WARNING"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseSize 解析 "10 * 1024 * 1024" 形式的大小表达式
func ParseSize(expr string) (int64, error) {
	parts := strings.Split(expr, "*")
	var result int64 = 1
	for _, part := range parts {
		num, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("无效的大小表达式 %q: %w", expr, err)
		}
		result *= num
	}
	return result, nil
}

// 以下是快捷日志方法
func (l *Logger) Debug(msg string, fields ...zap.Field)   { l.Log(DEBUG, msg, fields...) }   // 记录调试信息
func (l *Logger) Info(msg string, fields ...zap.Field)    { l.Log(INFO, msg, fields...) }    // 记录普通信息
func (l *Logger) Warning(msg string, fields ...zap.Field) { l.Log(WARNING, msg, fields...) } // 记录警告信息
func (l *Logger) Error(msg string, fields ...zap.Field)   { l.Log(ERROR, msg, fields...) }   // 记录错误信息
