package poe

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig controls logger construction, mirroring the teacher's
// internal/infrastructure/logger/logger.go Config shape.
type LogConfig struct {
	Level      string // debug, info, warn, error
	Format     string // console, json
	OutputPath string // "stdout" or a file path
}

// NewLogger builds a zap.Logger from cfg, defaulting to an info-level
// console logger to stdout when fields are left zero.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		if err := level.Set(cfg.Level); err != nil {
			return nil, err
		}
	}

	output := cfg.OutputPath
	if output == "" {
		output = "stdout"
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         "console",
		OutputPaths:      []string{output},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
	}
	if cfg.Format == "json" {
		zcfg.Encoding = "json"
		enc := zap.NewProductionEncoderConfig()
		enc.EncodeTime = zapcore.ISO8601TimeEncoder
		zcfg.EncoderConfig = enc
	}

	return zcfg.Build()
}
