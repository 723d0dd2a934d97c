// Package log 提供 log.Logger 接口的基于 zap 的具体实现
package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	logconfig "github.com/veilnet/node/internal/config/log"
	ifacelog "github.com/veilnet/node/pkg/interfaces/infrastructure/log"
)

// Logger 包装 zap.SugaredLogger，实现 ifacelog.Logger 接口
type Logger struct {
	zapLogger *zap.Logger
	sugar     *zap.SugaredLogger
}

// New 根据配置创建一个日志记录器
func New(cfg *logconfig.Config) (ifacelog.Logger, error) {
	if cfg == nil {
		cfg = logconfig.New(nil)
	}

	level, err := zapLevel(cfg.GetLevel())
	if err != nil {
		return nil, fmt.Errorf("log: %w", err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.GetEncoding() == "json" {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	} else {
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	}

	var out zapcore.WriteSyncer
	switch cfg.GetOutputPath() {
	case "stderr":
		out = zapcore.AddSync(os.Stderr)
	default:
		out = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(encoder, out, zap.NewAtomicLevelAt(level))
	zl := zap.New(core, zap.AddCaller())

	return &Logger{zapLogger: zl, sugar: zl.Sugar()}, nil
}

func zapLevel(level string) (zapcore.Level, error) {
	switch level {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "fatal":
		return zapcore.FatalLevel, nil
	default:
		return 0, fmt.Errorf("未知日志级别: %q", level)
	}
}

func (l *Logger) Debug(msg string)                          { l.sugar.Debug(msg) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(msg string)                           { l.sugar.Info(msg) }
func (l *Logger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(msg string)                           { l.sugar.Warn(msg) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(msg string)                          { l.sugar.Error(msg) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }
func (l *Logger) Fatal(msg string)                          { l.sugar.Fatal(msg) }
func (l *Logger) Fatalf(format string, args ...interface{}) { l.sugar.Fatalf(format, args...) }

// With 返回一个附加了结构化字段的新 Logger；args 是 key/value 交替序列
func (l *Logger) With(args ...interface{}) ifacelog.Logger {
	return &Logger{
		zapLogger: l.zapLogger.With(toZapFields(args...)...),
		sugar:     l.sugar.With(args...),
	}
}

// Sync 刷新底层 zap 缓冲区
func (l *Logger) Sync() error { return l.zapLogger.Sync() }

// GetZapLogger 返回底层 *zap.Logger，供需要 zap 原生特性的调用方使用
func (l *Logger) GetZapLogger() *zap.Logger { return l.zapLogger }

func toZapFields(args ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, args[i+1]))
	}
	return fields
}
