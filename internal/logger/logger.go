package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/satindergrewal/segue/internal/timespan"
)

var (
	mu           sync.RWMutex
	globalLogger = zap.NewNop()
)

type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

// Config selects the level and an optional rotated log file. MaxSize is in
// megabytes, MaxAge in days.
type Config struct {
	Level      LogLevel
	OutputPath string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

func parseLevel(l LogLevel) zapcore.Level {
	switch l {
	case DebugLevel:
		return zapcore.DebugLevel
	case WarnLevel:
		return zapcore.WarnLevel
	case ErrorLevel:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Init installs the global logger. Until it is called every helper is a
// no-op, which keeps library packages quiet in tests.
func Init(cfg Config) error {
	level := parseLevel(cfg.Level)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stderr),
		level,
	)

	if cfg.OutputPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o755); err != nil {
			return fmt.Errorf("log dir: %w", err)
		}
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.OutputPath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), fileWriter, level)
		core = zapcore.NewTee(core, fileCore)
	}

	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))

	mu.Lock()
	globalLogger = l
	mu.Unlock()
	return nil
}

// Sync flushes buffered entries.
func Sync() error {
	return current().Sync()
}

func current() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return globalLogger
}

func Debug(msg string, fields ...zap.Field) { current().Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { current().Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { current().Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { current().Error(msg, fields...) }

// Fatal logs and exits.
func Fatal(msg string, fields ...zap.Field) { current().Fatal(msg, fields...) }

// Field helpers, so callers don't import zap directly.

func String(key, val string) zap.Field { return zap.String(key, val) }

func Int(key string, val int) zap.Field { return zap.Int(key, val) }

func Int64(key string, val int64) zap.Field { return zap.Int64(key, val) }

func Float64(key string, val float64) zap.Field { return zap.Float64(key, val) }

func Bool(key string, val bool) zap.Field { return zap.Bool(key, val) }

func Err(err error) zap.Field { return zap.Error(err) }

func Any(key string, val any) zap.Field { return zap.Any(key, val) }

func Duration(key string, val time.Duration) zap.Field { return zap.Duration(key, val) }

// Span logs a TimeSpan in MM:SS.fraction form.
func Span(key string, val timespan.TimeSpan) zap.Field { return zap.Stringer(key, val) }
