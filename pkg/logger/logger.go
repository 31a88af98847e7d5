package logger

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tshuldberg/MyLife-sub003/config"
)

// Logger wraps slog with the mode switches from config.LoggerMode.
type Logger struct {
	l *slog.Logger
}

func NewLogger(cfg *config.Config) (*Logger, error) {
	level := slog.LevelInfo
	if cfg != nil {
		switch cfg.LoggerMode.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg != nil && cfg.LoggerMode.Development {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return &Logger{l: slog.New(handler)}, nil
}

func (lg *Logger) base() *slog.Logger {
	if lg == nil || lg.l == nil {
		return slog.Default()
	}
	return lg.l
}

func (lg Logger) Debug(msg string, args ...any) { lg.base().Debug(msg, args...) }
func (lg Logger) Info(msg string, args ...any)  { lg.base().Info(msg, args...) }
func (lg Logger) Warn(msg string, args ...any)  { lg.base().Warn(msg, args...) }
func (lg Logger) Error(msg string, args ...any) { lg.base().Error(msg, args...) }

func (lg Logger) Infof(format string, args ...any) {
	lg.base().Info(fmt.Sprintf(format, args...))
}

func (lg Logger) Errorf(format string, args ...any) {
	lg.base().Error(fmt.Sprintf(format, args...))
}
