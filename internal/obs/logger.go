package obs

import "github.com/rs/zerolog"

// Logger is the narrow structured-logging interface the pipeline
// coordinator and cmd/chunkr depend on, so they stay testable without
// importing zerolog directly.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
}

// ZerologLogger adapts a zerolog.Logger to the Logger interface.
type ZerologLogger struct {
	base zerolog.Logger
}

// NewZerologLogger wraps base as a Logger.
func NewZerologLogger(base zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{base: base}
}

func (l *ZerologLogger) Info(msg string, fields map[string]any)  { l.event(l.base.Info(), msg, fields) }
func (l *ZerologLogger) Error(msg string, fields map[string]any) { l.event(l.base.Error(), msg, fields) }
func (l *ZerologLogger) Debug(msg string, fields map[string]any) { l.event(l.base.Debug(), msg, fields) }
func (l *ZerologLogger) Warn(msg string, fields map[string]any)  { l.event(l.base.Warn(), msg, fields) }

func (l *ZerologLogger) event(ev *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// NopLogger discards everything; useful in tests that don't assert on
// log output.
type NopLogger struct{}

func (NopLogger) Info(string, map[string]any)  {}
func (NopLogger) Error(string, map[string]any) {}
func (NopLogger) Debug(string, map[string]any) {}
func (NopLogger) Warn(string, map[string]any)  {}

