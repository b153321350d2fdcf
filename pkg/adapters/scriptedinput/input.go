// Package scriptedinput provides tracker sources that do not need an OS input
// hook: a line-oriented terminal source and a timer.
package scriptedinput

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/user/stepcast/pkg/ports"
	"github.com/user/stepcast/pkg/tracker"
)

// Terminal turns lines read from In into clicks:
//
//	empty line   left click
//	r            right click
//	x y          left click at (x, y)
//	q            end tracking
//
// End of input also ends tracking.
type Terminal struct {
	In io.Reader
	// PID is reported on every event. Typically the recorder's own pid.
	PID int64
}

// Name returns "stdin".
func (s *Terminal) Name() string { return "stdin" }

// Run reads lines until q, end of input or ctx ends. A read already blocked on
// In is abandoned when ctx ends.
func (s *Terminal) Run(ctx context.Context, out tracker.Emitter) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		scanner := bufio.NewScanner(s.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	n := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			out.Emit(ports.TrackerEvent{PID: s.PID, Kind: ports.Disable})
			return err
		case line := <-lines:
			n++
			kind, loc, quit, ok := parseLine(line, n)
			if quit {
				out.Emit(ports.TrackerEvent{PID: s.PID, Kind: ports.Disable})
				return nil
			}
			if !ok {
				continue
			}
			click(out, s.PID, kind, loc)
		}
	}
}

// parseLine interprets one input line. Clicks without coordinates are spread
// along a diagonal so consecutive steps have distinct locations.
func parseLine(line string, n int) (kind ports.TrackerEventKind, loc ports.Point, quit, ok bool) {
	fields := strings.Fields(strings.ToLower(line))
	fallback := ports.Point{X: float64(n * 10), Y: float64(n * 10)}

	switch {
	case len(fields) == 0:
		return ports.LeftMouseDown, fallback, false, true
	case fields[0] == "q" || fields[0] == "quit":
		return 0, ports.Point{}, true, false
	case fields[0] == "r":
		return ports.RightMouseDown, fallback, false, true
	case len(fields) == 2:
		x, errX := strconv.ParseFloat(fields[0], 64)
		y, errY := strconv.ParseFloat(fields[1], 64)
		if errX != nil || errY != nil {
			return 0, ports.Point{}, false, false
		}
		return ports.LeftMouseDown, ports.Point{X: x, Y: y}, false, true
	default:
		return 0, ports.Point{}, false, false
	}
}

// Interval clicks every Every. With Count set, tracking ends after Count clicks.
type Interval struct {
	Every time.Duration
	Count int
	PID   int64
}

// Name returns "interval".
func (s *Interval) Name() string { return "interval" }

// Run clicks on a ticker until ctx ends or Count is reached.
func (s *Interval) Run(ctx context.Context, out tracker.Emitter) error {
	every := s.Every
	if every <= 0 {
		every = 5 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		click(out, s.PID, ports.LeftMouseDown, ports.Point{X: float64(n * 10), Y: float64(n * 10)})
		if s.Count > 0 && n >= s.Count {
			out.Emit(ports.TrackerEvent{PID: s.PID, Kind: ports.Disable})
			return nil
		}
	}
}

// click emits a press followed by the matching release.
func click(out tracker.Emitter, pid int64, down ports.TrackerEventKind, loc ports.Point) {
	up := ports.LeftMouseUp
	if down == ports.RightMouseDown {
		up = ports.RightMouseUp
	}
	out.Emit(ports.TrackerEvent{PID: pid, Kind: down, Location: loc})
	out.Emit(ports.TrackerEvent{PID: pid, Kind: up, Location: loc})
}

var (
	_ tracker.Source = (*Terminal)(nil)
	_ tracker.Source = (*Interval)(nil)
)
