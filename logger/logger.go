package logger

// Logger is the minimal structured-logging contract the engine depends on.
// Keyvals alternate key and value.
type Logger interface {
	Error(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}
