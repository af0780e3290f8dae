// Package logger 提供统一的日志框架
package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu      sync.Mutex // 串行化 Init 与 SetOutput
	current atomic.Pointer[zerolog.Logger]
)

// Level 日志级别
type Level = zerolog.Level

const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Config 日志配置
type Config struct {
	Level      string `mapstructure:"level" yaml:"level" json:"level"`
	Format     string `mapstructure:"format" yaml:"format" json:"format"` // json/console
	Output     string `mapstructure:"output" yaml:"output" json:"output"` // stdout/stderr/file
	FilePath   string `mapstructure:"file_path" yaml:"file_path,omitempty" json:"file_path,omitempty"`
	TimeFormat string `mapstructure:"time_format" yaml:"time_format,omitempty" json:"time_format,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stderr",
		TimeFormat: time.RFC3339,
	}
}

// Init 初始化日志器，重复调用以最后一次为准
func Init(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var output io.Writer
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "file":
		output = os.Stderr
		if cfg.FilePath != "" {
			if f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
				output = f
			}
		}
	default:
		output = os.Stderr
	}

	if cfg.Format == "console" {
		timeFormat := cfg.TimeFormat
		if timeFormat == "" {
			timeFormat = time.RFC3339
		}
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: timeFormat,
		}
	}

	l := zerolog.New(output).With().Timestamp().Logger()
	current.Store(&l)
}

// SetOutput 替换输出目标（测试使用）
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	l := zerolog.New(w).With().Timestamp().Logger()
	current.Store(&l)
}

// parseLevel 解析日志级别
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// Get 获取日志器，返回的实例在重新初始化后不再变化
func Get() *zerolog.Logger {
	if l := current.Load(); l != nil {
		return l
	}
	Init(DefaultConfig())
	return current.Load()
}

type ctxKey string

// RequestIDKey 上下文中的请求ID键
const RequestIDKey ctxKey = "request_id"

// WithContext 从上下文创建日志器
func WithContext(ctx context.Context) *zerolog.Logger {
	l := Get().With().Logger()

	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		l = l.With().Str("request_id", reqID).Logger()
	}

	return &l
}

// Debug 记录调试日志
func Debug() *zerolog.Event {
	return Get().Debug()
}

// Info 记录信息日志
func Info() *zerolog.Event {
	return Get().Info()
}

// Warn 记录警告日志
func Warn() *zerolog.Event {
	return Get().Warn()
}

// Error 记录错误日志
func Error() *zerolog.Event {
	return Get().Error()
}

// Fatal 记录致命错误日志
func Fatal() *zerolog.Event {
	return Get().Fatal()
}

// WithError 添加错误信息
func WithError(err error) *zerolog.Event {
	return Get().Error().Err(err)
}

// WithField 添加字段
func WithField(key string, value interface{}) *zerolog.Logger {
	l := Get().With().Interface(key, value).Logger()
	return &l
}

// AllocatorLogger 分配引擎专用日志器
type AllocatorLogger struct {
	base *zerolog.Logger
}

// NewAllocatorLogger 创建分配引擎日志器
func NewAllocatorLogger() *AllocatorLogger {
	l := Get().With().Str("component", "allocator").Logger()
	return &AllocatorLogger{base: &l}
}

// SolveStarted 记录求解开始
func (l *AllocatorLogger) SolveStarted(backend, variant string, couriers, orders int) {
	l.base.Info().
		Str("backend", backend).
		Str("variant", variant).
		Int("couriers", couriers).
		Int("orders", orders).
		Msg("开始求解分配模型")
}

// SolveFinished 记录求解结束
func (l *AllocatorLogger) SolveFinished(backend, status string, duration time.Duration, objective float64) {
	l.base.Info().
		Str("backend", backend).
		Str("status", status).
		Dur("duration", duration).
		Float64("objective", objective).
		Msg("分配模型求解结束")
}

// UnderAllocated 记录分配不完整
func (l *AllocatorLogger) UnderAllocated(allocated, total int) {
	l.base.Warn().
		Int("allocated", allocated).
		Int("total", total).
		Int("missing", total-allocated).
		Msg("存在未分配的订单")
}

// ScenarioFinished 记录场景完成
func (l *AllocatorLogger) ScenarioFinished(name string, duration time.Duration, err error) {
	if err != nil {
		l.base.Warn().
			Str("scenario", name).
			Dur("duration", duration).
			Err(err).
			Msg("场景求解失败")
		return
	}
	l.base.Info().
		Str("scenario", name).
		Dur("duration", duration).
		Msg("场景求解完成")
}
