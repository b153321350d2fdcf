// Package logger provides logging implementations.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/mattn/go-isatty"
	"github.com/user/stepcast/pkg/ports"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

// ConsoleOptions configures a ConsoleLogger.
type ConsoleOptions struct {
	Level ports.LogLevel
	Out   io.Writer // Debug and Info; os.Stdout when nil
	Err   io.Writer // Warn and Error; os.Stderr when nil

	// Elapsed prefixes every line with the time since the logger was created,
	// which lines up log output with clip timestamps.
	Elapsed bool
	// Color forces color on or off. When nil it is enabled for terminals.
	Color *bool
}

// output is shared by a root logger and every component logger derived from
// it, so lines written by concurrent workers never interleave.
type output struct {
	mu    sync.Mutex
	out   io.Writer
	err   io.Writer
	start time.Time
	color bool
	clock func() time.Time
}

// ConsoleLogger writes translated messages to the console.
type ConsoleLogger struct {
	level     ports.LogLevel
	component string
	elapsed   bool
	sink      *output
}

// NewConsole creates a console logger for stdout and stderr with the given level.
func NewConsole(level ports.LogLevel) *ConsoleLogger {
	return NewConsoleWithOptions(ConsoleOptions{Level: level})
}

// NewConsoleWithOptions creates a console logger from opts.
func NewConsoleWithOptions(opts ConsoleOptions) *ConsoleLogger {
	out, errOut := opts.Out, opts.Err
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	color := false
	if opts.Color != nil {
		color = *opts.Color
	} else if f, ok := out.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return &ConsoleLogger{
		level:   opts.Level,
		elapsed: opts.Elapsed,
		sink: &output{
			out:   out,
			err:   errOut,
			start: time.Now(),
			color: color,
			clock: time.Now,
		},
	}
}

func (l *ConsoleLogger) Debug(msg string, args ...interface{}) {
	l.log(ports.LevelDebug, msg, args...)
}

func (l *ConsoleLogger) Info(msg string, args ...interface{}) {
	l.log(ports.LevelInfo, msg, args...)
}

func (l *ConsoleLogger) Warn(msg string, args ...interface{}) {
	l.log(ports.LevelWarn, msg, args...)
}

func (l *ConsoleLogger) Error(msg string, args ...interface{}) {
	l.log(ports.LevelError, msg, args...)
}

// WithComponent returns a logger tagged with component, nested under the
// receiver's own component if it has one.
func (l *ConsoleLogger) WithComponent(component string) ports.Logger {
	name := component
	if l.component != "" && component != "" {
		name = l.component + "/" + component
	}
	return &ConsoleLogger{
		level:     l.level,
		component: name,
		elapsed:   l.elapsed,
		sink:      l.sink,
	}
}

func (l *ConsoleLogger) log(level ports.LogLevel, msg string, args ...interface{}) {
	if level < l.level {
		return
	}

	line := l10n.F(msg, args...)
	color := l.sink.color

	if l.component != "" {
		if color {
			line = fmt.Sprintf("%s[%s]%s %s", colorCyan, l.component, colorReset, line)
		} else {
			line = fmt.Sprintf("[%s] %s", l.component, line)
		}
	}
	if l.elapsed {
		d := l.sink.clock().Sub(l.sink.start)
		line = fmt.Sprintf("%8.3fs %s", d.Seconds(), line)
	}

	if color {
		switch level {
		case ports.LevelDebug:
			line = colorGray + line + colorReset
		case ports.LevelWarn:
			line = colorYellow + line + colorReset
		case ports.LevelError:
			line = colorRed + line + colorReset
		}
	}

	w := l.sink.out
	if level >= ports.LevelWarn {
		w = l.sink.err
	}

	l.sink.mu.Lock()
	fmt.Fprintln(w, line)
	l.sink.mu.Unlock()
}

var _ ports.Logger = (*ConsoleLogger)(nil)
