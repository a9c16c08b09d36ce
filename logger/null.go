package logger

// NullLogger discards everything; the default for tests.
type NullLogger struct{}

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (n *NullLogger) Error(msg string, keyvals ...any) {}
func (n *NullLogger) Warn(msg string, keyvals ...any)  {}
func (n *NullLogger) Info(msg string, keyvals ...any)  {}
func (n *NullLogger) Debug(msg string, keyvals ...any) {}
