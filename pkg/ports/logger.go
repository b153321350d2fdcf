package ports

import "strings"

// LogLevel is the minimum severity a logger prints.
type LogLevel int

const (
	// LevelDebug covers per-frame and per-message traffic.
	LevelDebug LogLevel = iota
	// LevelInfo covers step transitions and session start and stop.
	LevelInfo
	// LevelWarn covers dropped frames, rejected encodes and closed event streams.
	LevelWarn
	// LevelError covers failures that lose a step or end the session.
	LevelError
	// LevelQuiet suppresses all output.
	LevelQuiet
)

var levelNames = [...]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
	LevelQuiet: "quiet",
}

func (l LogLevel) String() string {
	if l < 0 || int(l) >= len(levelNames) {
		return "unknown"
	}
	return levelNames[l]
}

// ParseLogLevel maps a level name to a LogLevel. Unknown names yield LevelInfo.
func ParseLogLevel(s string) LogLevel {
	s = strings.ToLower(strings.TrimSpace(s))
	for l, name := range levelNames {
		if name == s {
			return LogLevel(l)
		}
	}
	return LevelInfo
}

// Logger is the logging port shared by every component.
//
// msg is a message key: implementations translate it with go-l10n before
// formatting it with args, so keys must be registered in a lexicon to be
// localized.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})

	// WithComponent returns a logger whose lines are tagged with component.
	// Calling it on a component logger nests the names ("session/router").
	WithComponent(component string) Logger
}
