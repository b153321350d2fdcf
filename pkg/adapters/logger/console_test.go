package logger

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/stepcast/pkg/ports"
)

func newTestLogger(level ports.LogLevel) (*ConsoleLogger, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	off := false
	l := NewConsoleWithOptions(ConsoleOptions{Level: level, Out: &out, Err: &errOut, Color: &off})
	return l, &out, &errOut
}

func TestConsole_LevelFiltering(t *testing.T) {
	l, out, errOut := newTestLogger(ports.LevelInfo)

	l.Debug("hidden %d", 1)
	l.Info("step %d", 2)
	l.Warn("dropped %d", 3)
	l.Error("failed %d", 4)

	if got := out.String(); got != "step 2\n" {
		t.Errorf("unexpected stdout %q", got)
	}
	if got := errOut.String(); got != "dropped 3\nfailed 4\n" {
		t.Errorf("unexpected stderr %q", got)
	}
}

func TestConsole_QuietPrintsNothing(t *testing.T) {
	l, out, errOut := newTestLogger(ports.LevelQuiet)
	l.Error("boom")
	if out.Len() != 0 || errOut.Len() != 0 {
		t.Error("expected no output at quiet level")
	}
}

func TestConsole_ComponentsNest(t *testing.T) {
	l, out, _ := newTestLogger(ports.LevelDebug)

	l.WithComponent("session").WithComponent("router").Info("frame")
	l.WithComponent("worker-3").Debug("ready")

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", out.String())
	}
	if lines[0] != "[session/router] frame" {
		t.Errorf("unexpected line %q", lines[0])
	}
	if lines[1] != "[worker-3] ready" {
		t.Errorf("unexpected line %q", lines[1])
	}
}

func TestConsole_Elapsed(t *testing.T) {
	var out bytes.Buffer
	off := false
	l := NewConsoleWithOptions(ConsoleOptions{Level: ports.LevelInfo, Out: &out, Color: &off, Elapsed: true})
	start := l.sink.start
	l.sink.clock = func() time.Time { return start.Add(1500 * time.Millisecond) }

	l.WithComponent("router").Info("step")

	if got := out.String(); got != "   1.500s [router] step\n" {
		t.Errorf("unexpected line %q", got)
	}
}

func TestConsole_Color(t *testing.T) {
	var out, errOut bytes.Buffer
	on := true
	l := NewConsoleWithOptions(ConsoleOptions{Level: ports.LevelDebug, Out: &out, Err: &errOut, Color: &on})

	l.Warn("careful")
	if got := errOut.String(); got != colorYellow+"careful"+colorReset+"\n" {
		t.Errorf("unexpected warn line %q", got)
	}
}

func TestConsole_ConcurrentComponentsDoNotInterleave(t *testing.T) {
	l, out, _ := newTestLogger(ports.LevelInfo)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			w := l.WithComponent("worker")
			for j := 0; j < 50; j++ {
				w.Info("frame %d", j)
			}
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 400 {
		t.Fatalf("expected 400 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.HasPrefix(line, "[worker] frame ") {
			t.Fatalf("garbled line %q", line)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := map[string]ports.LogLevel{
		"debug":   ports.LevelDebug,
		"INFO":    ports.LevelInfo,
		" warn ":  ports.LevelWarn,
		"error":   ports.LevelError,
		"quiet":   ports.LevelQuiet,
		"verbose": ports.LevelInfo,
	}
	for in, want := range cases {
		if got := ports.ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if ports.LogLevel(99).String() != "unknown" {
		t.Error("expected unknown for out-of-range level")
	}
}
