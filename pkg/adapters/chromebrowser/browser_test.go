package chromebrowser

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/user/stepcast/pkg/adapters/logger"
	"github.com/user/stepcast/pkg/ports"
)

func TestParsePointerPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    ports.TrackerEventKind
		ok      bool
	}{
		{"left down", `{"type":"down","button":0,"x":10,"y":20}`, ports.LeftMouseDown, true},
		{"right down", `{"type":"down","button":2,"x":10,"y":20}`, ports.RightMouseDown, true},
		{"middle down", `{"type":"down","button":1}`, 0, false},
		{"left up", `{"type":"up","button":0}`, ports.LeftMouseUp, true},
		{"right up", `{"type":"up","button":2}`, ports.RightMouseUp, true},
		{"left drag", `{"type":"move","buttons":1}`, ports.LeftMouseDragged, true},
		{"right drag", `{"type":"move","buttons":2}`, ports.RightMouseDragged, true},
		{"hover", `{"type":"move","buttons":0}`, 0, false},
		{"wheel", `{"type":"wheel"}`, ports.ScrollWheel, true},
		{"unknown", `{"type":"keydown"}`, 0, false},
		{"garbage", `not json`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := parsePointerPayload(tt.payload, 42)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			if ev.Kind != tt.want {
				t.Errorf("expected %s, got %s", tt.want, ev.Kind)
			}
			if ev.PID != 42 {
				t.Errorf("expected pid 42, got %d", ev.PID)
			}
		})
	}

	ev, _ := parsePointerPayload(`{"type":"down","button":0,"x":12.5,"y":30}`, 0)
	if ev.Location != (ports.Point{X: 12.5, Y: 30}) {
		t.Errorf("unexpected location %v", ev.Location)
	}
}

func TestBrowser_NotLaunched(t *testing.T) {
	b := New(Options{}, logger.NewNoop())
	if err := b.Navigate("about:blank"); !errors.Is(err, ErrNotLaunched) {
		t.Errorf("expected ErrNotLaunched, got %v", err)
	}
	if b.PID() != 0 {
		t.Error("expected no pid before launch")
	}
	if _, err := b.Capture().NextFrame(context.Background()); !errors.Is(err, ErrScreencastEnded) {
		t.Errorf("expected ErrScreencastEnded, got %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close before Launch should be harmless: %v", err)
	}
}

func TestCapture_Screencast(t *testing.T) {
	if ResolveChromePath("") == "" {
		t.Skip("Chrome not installed")
	}

	b := New(Options{
		URL:      `data:text/html,<body style="background:#c00"><h1 id="t">0</h1><script>let n=0;setInterval(()=>{document.getElementById("t").textContent=++n},30)</script></body>`,
		Headless: true,
		Width:    320,
		Height:   240,
	}, logger.NewNoop())
	capture := b.Capture()
	if !capture.Supported() || !capture.HasPermission() {
		t.Fatal("expected capture to be available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := capture.Start(ctx, ports.CaptureOptions{FPS: 30}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer capture.Stop()

	if b.PID() == 0 {
		t.Error("expected a browser pid after start")
	}

	var last uint64
	for i := 0; i < 3; i++ {
		frame, err := capture.NextFrame(ctx)
		if err != nil {
			t.Fatalf("NextFrame failed: %v", err)
		}
		if !frame.Valid() {
			continue
		}
		if frame.PixelFormat != ports.PixelFormatBGRA || len(frame.Data) != frame.Width*frame.Height*4 {
			t.Errorf("unexpected frame layout %dx%d, %d bytes", frame.Width, frame.Height, len(frame.Data))
		}
		if frame.DisplayTime < last {
			t.Error("display time went backwards")
		}
		last = frame.DisplayTime
	}

	if err := capture.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if _, err := capture.NextFrame(ctx); !errors.Is(err, ErrScreencastEnded) {
		t.Errorf("expected ErrScreencastEnded after stop, got %v", err)
	}
}

func jpegFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestCapture_IdlePageRepeatsLastFrame(t *testing.T) {
	c := New(Options{}, logger.NewNoop()).Capture()
	if err := c.begin(50, nil); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.offer(screencastFrame{jpeg: jpegFrame(t, 8, 6), at: time.Millisecond})
	first, err := c.NextFrame(ctx)
	if err != nil {
		t.Fatalf("NextFrame failed: %v", err)
	}
	if !first.Valid() || first.Width != 8 || first.Height != 6 {
		t.Fatalf("unexpected first frame %dx%d", first.Width, first.Height)
	}

	// No new screencast image: the previous one comes back within an interval.
	start := time.Now()
	again, err := c.NextFrame(ctx)
	if err != nil {
		t.Fatalf("NextFrame on an idle page failed: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("idle NextFrame took far longer than a frame interval")
	}
	if again.Width != 8 || again.Height != 6 || len(again.Data) != len(first.Data) {
		t.Errorf("expected the previous frame, got %dx%d", again.Width, again.Height)
	}
	if again.DisplayTime <= first.DisplayTime {
		t.Errorf("expected a fresh display time, got %d after %d", again.DisplayTime, first.DisplayTime)
	}

	if !c.halt() {
		t.Fatal("expected an active screencast")
	}
	if _, err := c.NextFrame(ctx); !errors.Is(err, ErrScreencastEnded) {
		t.Errorf("expected ErrScreencastEnded after halt, got %v", err)
	}
}

func TestCapture_IdleBeforeFirstImageYieldsEmptyFrame(t *testing.T) {
	c := New(Options{}, logger.NewNoop()).Capture()
	if err := c.begin(50, nil); err != nil {
		t.Fatal(err)
	}
	defer c.halt()

	frame, err := c.NextFrame(context.Background())
	if err != nil {
		t.Fatalf("NextFrame failed: %v", err)
	}
	if frame.Valid() {
		t.Error("expected an empty frame before the first screencast image")
	}
	if err := c.begin(50, nil); err == nil {
		t.Error("expected an error when beginning twice")
	}
}
