/*
	Copyright (c) 2024 Tagspot
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	logging.go: Shared structured logger setup
*/
package common

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.SugaredLogger

// InitLogging sets up the process-wide structured logger. appEnv "production"
// selects JSON output at Info level; anything else gets the development
// config with Debug enabled.
func InitLogging(appEnv string) error {
	var cfg zap.Config
	if appEnv == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l.Sugar()
	return nil
}

// Log returns the shared logger. Falls back to a no-op development logger so
// library code and tests never have to nil-check.
func Log() *zap.SugaredLogger {
	if logger == nil {
		l, _ := zap.NewDevelopment()
		logger = l.Sugar()
	}
	return logger
}

// CloseLogging flushes buffered log entries.
func CloseLogging() {
	if logger != nil {
		_ = logger.Sync()
	}
}
