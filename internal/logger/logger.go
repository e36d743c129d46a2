// Package logger configures the process-wide zap logger.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Init builds a logger for the given APP_ENV and installs it as the zap
// global so packages can log through zap.L().  "prod"/"production" get
// JSON output at info level, "test" gets a no-op logger and anything
// else gets the colourised development console.
func Init(env string) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	switch strings.ToLower(env) {
	case "prod", "production":
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err = cfg.Build()
	case "test":
		l = zap.NewNop()
	default:
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		l, err = cfg.Build()
	}
	if err != nil {
		return nil, fmt.Errorf("logger.Init -> %w", err)
	}
	zap.ReplaceGlobals(l)
	return l, nil
}
