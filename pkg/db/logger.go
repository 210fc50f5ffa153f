package db

import (
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm/logger"
)

// NewLogger maps the process log level onto a gorm logger that writes
// through logrus.
func NewLogger(level string) logger.Interface {
	gormLevel := logger.Silent

	switch level {
	case "trace", "debug":
		gormLevel = logger.Info
	case "info", "warn":
		gormLevel = logger.Warn
	case "error":
		gormLevel = logger.Error
	}

	return logger.New(logrus.StandardLogger(), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormLevel,
		IgnoreRecordNotFoundError: true,
	})
}
