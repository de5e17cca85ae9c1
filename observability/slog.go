package observability

import "log/slog"

// slogLogger adapts a *slog.Logger to the Logger interface.
type slogLogger struct{ l *slog.Logger }

// NewSlogLogger wraps sl; a nil sl yields a NopLogger.
func NewSlogLogger(sl *slog.Logger) Logger {
	if sl == nil {
		return NopLogger{}
	}
	return slogLogger{l: sl}
}

func (s slogLogger) Debug(msg string, fields ...Field) { s.l.Debug(msg, attrs(fields)...) }
func (s slogLogger) Info(msg string, fields ...Field)  { s.l.Info(msg, attrs(fields)...) }
func (s slogLogger) Warn(msg string, fields ...Field)  { s.l.Warn(msg, attrs(fields)...) }
func (s slogLogger) Error(msg string, fields ...Field) { s.l.Error(msg, attrs(fields)...) }

func (s slogLogger) With(fields ...Field) Logger {
	return slogLogger{l: s.l.With(attrs(fields)...)}
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key(), f.Value()))
	}
	return out
}
