package reactor

import (
	"github.com/joeycumines/logiface"
)

// logifaceLogger adapts a github.com/joeycumines/logiface logger onto the
// package's Logger interface, so applications already standardized on
// logiface can plug it straight into an EventLoop/TcpServer/Connector via
// WithLogger instead of using DefaultLogger.
type logifaceLogger struct {
	l *logiface.Logger[logiface.Event]
}

// NewLogifaceLogger wraps an existing logiface logger (typically obtained via
// someTypedLogger.Logger()) so it satisfies Logger.
func NewLogifaceLogger(l *logiface.Logger[logiface.Event]) Logger {
	return &logifaceLogger{l: l}
}

func (a *logifaceLogger) IsEnabled(level LogLevel) bool {
	return a.l.Level() >= toLogifaceLevel(level)
}

func (a *logifaceLogger) Log(entry LogEntry) {
	b := a.l.Build(toLogifaceLevel(entry.Level))
	if b == nil {
		return
	}
	if entry.Category != "" {
		b = b.Str("category", entry.Category)
	}
	b = b.Int("loop_id", int(entry.LoopID))
	for k, v := range entry.Context {
		b = b.Interface(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}

func toLogifaceLevel(level LogLevel) logiface.Level {
	switch level {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	case LevelError:
		return logiface.LevelError
	default:
		return logiface.LevelInformational
	}
}
