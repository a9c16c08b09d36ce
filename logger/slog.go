package logger

import (
	"context"
	"log/slog"
)

// SlogLogger adapts a standard library slog.Logger.
type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

func (s *SlogLogger) log(level slog.Level, msg string, keyvals []any) {
	s.l.Log(context.Background(), level, msg, keyvals...)
}

func (s *SlogLogger) Debug(msg string, keyvals ...any) { s.log(slog.LevelDebug, msg, keyvals) }
func (s *SlogLogger) Info(msg string, keyvals ...any)  { s.log(slog.LevelInfo, msg, keyvals) }
func (s *SlogLogger) Warn(msg string, keyvals ...any)  { s.log(slog.LevelWarn, msg, keyvals) }
func (s *SlogLogger) Error(msg string, keyvals ...any) { s.log(slog.LevelError, msg, keyvals) }
