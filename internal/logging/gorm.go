package logging

import (
	"fmt"
	"log/slog"
	"time"

	gormlogger "gorm.io/gorm/logger"
)

// GormWriter adapts slog to gorm's logger.Writer.
type GormWriter struct {
	Logger *slog.Logger
}

func (w GormWriter) Printf(format string, args ...interface{}) {
	w.Logger.Info(fmt.Sprintf(format, args...), "component", "gorm")
}

// NewGormLogger returns a gorm logger writing through slog. Record-not-found
// is expected on every lookup miss and is not logged.
func NewGormLogger(logger *slog.Logger, level string) gormlogger.Interface {
	gormLevel := gormlogger.Warn
	switch ParseLevel(level) {
	case slog.LevelDebug:
		gormLevel = gormlogger.Info
	case slog.LevelError:
		gormLevel = gormlogger.Error
	}

	return gormlogger.New(GormWriter{Logger: logger}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormLevel,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
