package capturestate

import (
	"fmt"
	"sync"
	"testing"

	"github.com/user/stepcast/pkg/adapters/logger"
	"github.com/user/stepcast/pkg/ports"
)

func TestNew_InitialState(t *testing.T) {
	s := New(logger.NewNoop())

	if s.Status() != Stopped {
		t.Errorf("expected initial status stopped, got %s", s.Status())
	}
	if s.CurrentStep() != 0 {
		t.Errorf("expected initial step 0, got %d", s.CurrentStep())
	}
	if len(s.Clicks()) != 0 {
		t.Errorf("expected no clicks, got %d", len(s.Clicks()))
	}
}

func TestState_StatusPredicates(t *testing.T) {
	tests := []struct {
		status      Status
		wantStopped bool
		wantPaused  bool
	}{
		{Stopped, true, false},
		{Recording, false, false},
		{Paused, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			s := New(logger.NewNoop())
			s.SetStatus(tt.status)

			if got := s.IsStopped(); got != tt.wantStopped {
				t.Errorf("IsStopped() = %v, want %v", got, tt.wantStopped)
			}
			if got := s.IsPaused(); got != tt.wantPaused {
				t.Errorf("IsPaused() = %v, want %v", got, tt.wantPaused)
			}
		})
	}
}

func TestState_RecordClick(t *testing.T) {
	s := New(logger.NewNoop())

	if step := s.RecordClick(ports.Point{X: 10, Y: 20}); step != 1 {
		t.Errorf("expected step 1, got %d", step)
	}
	if step := s.RecordClick(ports.Point{X: 30, Y: 40}); step != 2 {
		t.Errorf("expected step 2, got %d", step)
	}

	clicks := s.Clicks()
	if len(clicks) != 2 {
		t.Fatalf("expected 2 clicks, got %d", len(clicks))
	}
	if clicks[1] != (ports.Point{X: 30, Y: 40}) {
		t.Errorf("unexpected second click %v", clicks[1])
	}

	loc, ok := s.ClickAt(1)
	if !ok || loc != (ports.Point{X: 10, Y: 20}) {
		t.Errorf("ClickAt(1) = %v, %v", loc, ok)
	}
	if _, ok := s.ClickAt(0); ok {
		t.Error("ClickAt(0) should not exist")
	}
	if _, ok := s.ClickAt(3); ok {
		t.Error("ClickAt(3) should not exist")
	}
}

func TestState_ClicksReturnsCopy(t *testing.T) {
	s := New(logger.NewNoop())
	s.RecordClick(ports.Point{X: 1, Y: 1})

	clicks := s.Clicks()
	clicks[0] = ports.Point{X: 99, Y: 99}

	if s.Clicks()[0] != (ports.Point{X: 1, Y: 1}) {
		t.Error("mutating the returned slice changed the state")
	}
}

func TestState_ConcurrentClicksKeepCounterAndClicksInStep(t *testing.T) {
	s := New(logger.NewNoop())
	s.SetStatus(Recording)

	const writers = 8
	const perWriter = 250

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				s.RecordClick(ports.Point{X: float64(j)})
			}
		}()
	}

	// Readers must never see a step without its click.
	done := make(chan struct{})
	var readerErr error
	go func() {
		defer close(done)
		var last uint32
		for i := 0; i < 2000; i++ {
			snap := s.Snapshot()
			if int(snap.Step) != len(snap.Clicks) {
				readerErr = fmt.Errorf("step %d observed with %d clicks", snap.Step, len(snap.Clicks))
				return
			}
			if snap.Step < last {
				readerErr = fmt.Errorf("step counter decreased from %d to %d", last, snap.Step)
				return
			}
			last = snap.Step
		}
	}()

	wg.Wait()
	<-done

	if readerErr != nil {
		t.Fatal(readerErr)
	}
	if s.CurrentStep() != writers*perWriter {
		t.Errorf("expected step %d, got %d", writers*perWriter, s.CurrentStep())
	}
}
