// cmd/nilan/logger.go
package main

import (
	"go.uber.org/zap"

	"github.com/tamzrod/nilan-modbus/internal/config"
)

func newLogger(c config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, err
	}
	zc.Level = level
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}
	return zc.Build()
}
