// Package logging builds the zap loggers used across the crawler. Subsystems
// identify themselves through a "component" field added by Component.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// fieldComponent tags log lines with the owning subsystem (crawler, proxy,
// executor, sink).
const fieldComponent = "component"

// New builds the root logger. Development mode switches to the console
// encoder with colored levels; production emits JSON with ISO 8601
// timestamps so crawl runs can be correlated with the sink's output files.
func New(development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// Component returns a child logger tagged with the subsystem name. A nil
// parent yields a no-op logger so wiring code never has to check.
func Component(logger *zap.Logger, name string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.With(zap.String(fieldComponent, name))
}
