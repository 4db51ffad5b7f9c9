package datastore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/tphakala/taxondb/internal/logging"
)

var (
	logger     *slog.Logger
	loggerOnce sync.Once
	levelVar   = new(slog.LevelVar)
)

// getLogger returns the datastore file logger, falling back to the shared
// service logger when the log file cannot be created.
func getLogger() *slog.Logger {
	loggerOnce.Do(func() {
		var err error
		logger, _, err = logging.NewFileLogger("logs/datastore.log", "datastore", levelVar)
		if err != nil || logger == nil {
			logger = logging.ForService("datastore")
		}
		if logger == nil {
			logger = logging.NewDiscardLogger("datastore")
		}
	})
	return logger
}

// SetLogLevel adjusts the datastore log level at runtime.
func SetLogLevel(level slog.Level) {
	levelVar.Set(level)
}

// gormLogAdapter routes GORM's internal logging to slog and surfaces slow
// queries as warnings.
type gormLogAdapter struct {
	log           *slog.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return &gormLogAdapter{
		log:           getLogger(),
		level:         level,
		slowThreshold: 500 * time.Millisecond,
	}
}

func (l *gormLogAdapter) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogAdapter) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.Info(msg, "args", args)
	}
}

func (l *gormLogAdapter) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.Warn(msg, "args", args)
	}
}

func (l *gormLogAdapter) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.Error(msg, "args", args)
	}
}

func (l *gormLogAdapter) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		l.log.Error("query failed", "error", err, "sql", sql, "rows", rows, "elapsed_ms", elapsed.Milliseconds())
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		l.log.Warn("slow query", "sql", sql, "rows", rows, "elapsed_ms", elapsed.Milliseconds())
	case l.level >= gormlogger.Info:
		l.log.Debug("query", "sql", sql, "rows", rows, "elapsed_ms", elapsed.Milliseconds())
	}
}
