package logging

import (
	"os"
	"path/filepath"

	"hl-aevo-arb/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds the process logger. Output always goes to stderr; when log.file
// is set it is additionally written as JSON to a rotated file.
func New(cfg config.LoggingConfig) *zap.Logger {
	level := parseLevel(cfg.Level)
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if cfg.File == "" {
		logger, err := zapCfg.Build()
		if err != nil {
			return zap.NewNop()
		}
		return logger
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		logger, buildErr := zapCfg.Build()
		if buildErr != nil {
			return zap.NewNop()
		}
		logger.Warn("log directory unavailable, file output disabled", zap.String("file", cfg.File), zap.Error(err))
		return logger
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	encoder := zapcore.NewJSONEncoder(zapCfg.EncoderConfig)
	core := zapcore.NewTee(
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), zapCfg.Level),
		zapcore.NewCore(encoder, zapcore.AddSync(rotator), zapCfg.Level),
	)
	return zap.New(core, zap.AddCaller())
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
