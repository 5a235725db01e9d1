// Package logger 提供统一的日志框架
package logger

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	logger zerolog.Logger
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
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"` // json/console
	Output     string `yaml:"output" json:"output"` // stdout/stderr/file
	FilePath   string `yaml:"file_path,omitempty" json:"file_path,omitempty"`
	TimeFormat string `yaml:"time_format,omitempty" json:"time_format,omitempty"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}
}

// Init 初始化日志器
func Init(cfg Config) {
	once.Do(func() {
		level := parseLevel(cfg.Level)
		zerolog.SetGlobalLevel(level)

		var output io.Writer
		switch cfg.Output {
		case "stderr":
			output = os.Stderr
		case "file":
			if cfg.FilePath != "" {
				f, err := os.OpenFile(cfg.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
				if err == nil {
					output = f
				} else {
					output = os.Stdout
				}
			} else {
				output = os.Stdout
			}
		default:
			output = os.Stdout
		}

		if cfg.Format == "console" {
			output = zerolog.ConsoleWriter{
				Out:        output,
				TimeFormat: cfg.TimeFormat,
			}
		}

		logger = zerolog.New(output).With().Timestamp().Logger()
	})
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
	default:
		return zerolog.InfoLevel
	}
}

// Get 获取日志器，未初始化时使用默认配置
func Get() *zerolog.Logger {
	Init(DefaultConfig())
	return &logger
}

// ctxKey 上下文键
type ctxKey string

const (
	// RequestIDKey 请求ID上下文键
	RequestIDKey ctxKey = "request_id"
	// UserIDKey 操作人上下文键
	UserIDKey ctxKey = "user_id"
)

// WithContext 从上下文创建日志器
func WithContext(ctx context.Context) *zerolog.Logger {
	l := Get().With().Logger()

	// 添加请求ID
	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		l = l.With().Str("request_id", reqID).Logger()
	}

	// 添加操作人
	if userID, ok := ctx.Value(UserIDKey).(int64); ok {
		l = l.With().Int64("user_id", userID).Logger()
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

// JobLogger 自动排班任务日志器
type JobLogger struct {
	base *zerolog.Logger
}

// NewJobLogger 创建任务日志器
func NewJobLogger(jobID string, teamID int64) *JobLogger {
	l := Get().With().
		Str("component", "autoshift").
		Str("job_id", jobID).
		Int64("team_id", teamID).
		Logger()
	return &JobLogger{base: &l}
}

// Logger 返回底层日志器
func (l *JobLogger) Logger() *zerolog.Logger {
	return l.base
}

// Queued 记录任务入队
func (l *JobLogger) Queued(employees, days int) {
	l.base.Info().
		Int("employees", employees).
		Int("days", days).
		Msg("自动排班任务已入队")
}

// Phase 记录阶段推进
func (l *JobLogger) Phase(phase string, progress float64, note string) {
	l.base.Debug().
		Str("phase", phase).
		Float64("progress", progress).
		Str("note", note).
		Msg("阶段推进")
}

// Violation 记录约束提醒
func (l *JobLogger) Violation(code, message string) {
	l.base.Warn().
		Str("code", code).
		Str("details", message).
		Msg("约束提醒")
}

// Done 记录任务完成
func (l *JobLogger) Done(duration time.Duration, score float64, iterations int) {
	l.base.Info().
		Dur("duration", duration).
		Float64("score", score).
		Int("iterations", iterations).
		Msg("自动排班完成")
}

// Failed 记录任务失败
func (l *JobLogger) Failed(duration time.Duration, err error) {
	l.base.Error().
		Err(err).
		Dur("duration", duration).
		Msg("自动排班失败")
}
