package chromebrowser

import (
	"context"
	"encoding/json"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/user/stepcast/pkg/ports"
	"github.com/user/stepcast/pkg/tracker"
)

const bindingName = "__stepcastPointer"

// pointerScript reports pointer input in the page to the binding.
const pointerScript = `(() => {
	if (window.__stepcastPointerInstalled) return;
	window.__stepcastPointerInstalled = true;
	const send = (type, e) => {
		try {
			window.` + bindingName + `(JSON.stringify({
				type: type, button: e.button || 0, buttons: e.buttons || 0,
				x: e.clientX, y: e.clientY
			}));
		} catch (_) {}
	};
	window.addEventListener('mousedown', e => send('down', e), true);
	window.addEventListener('mouseup', e => send('up', e), true);
	window.addEventListener('mousemove', e => { if (e.buttons) send('move', e); }, true);
	window.addEventListener('wheel', e => send('wheel', e), {capture: true, passive: true});
})();`

// ClickSource turns pointer input inside the page into tracker events.
type ClickSource struct {
	browser *Browser
}

// Name returns "browser".
func (s *ClickSource) Name() string { return "browser" }

// Run installs the page hook and forwards events until ctx ends. When the
// browser goes away first, a Disable event is emitted.
func (s *ClickSource) Run(ctx context.Context, out tracker.Emitter) error {
	if err := s.browser.Launch(ctx); err != nil {
		return err
	}
	bctx, err := s.browser.context()
	if err != nil {
		return err
	}
	pid := s.browser.PID()

	chromedp.ListenTarget(bctx, func(ev interface{}) {
		e, ok := ev.(*runtime.EventBindingCalled)
		if !ok || e.Name != bindingName {
			return
		}
		if te, ok := parsePointerPayload(e.Payload, pid); ok {
			out.Emit(te)
		}
	})

	err = chromedp.Run(bctx,
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(pointerScript).Do(ctx)
			return err
		}),
		chromedp.Evaluate(pointerScript, nil),
	)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return nil
	case <-bctx.Done():
		out.Emit(ports.TrackerEvent{PID: pid, Kind: ports.Disable})
		return nil
	}
}

type pointerPayload struct {
	Type    string  `json:"type"`
	Button  int     `json:"button"`
	Buttons int     `json:"buttons"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
}

// parsePointerPayload maps a binding payload to a tracker event.
// Middle-button presses and unknown types are ignored.
func parsePointerPayload(payload string, pid int64) (ports.TrackerEvent, bool) {
	var p pointerPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return ports.TrackerEvent{}, false
	}

	ev := ports.TrackerEvent{PID: pid, Location: ports.Point{X: p.X, Y: p.Y}}
	switch p.Type {
	case "down":
		switch p.Button {
		case 0:
			ev.Kind = ports.LeftMouseDown
		case 2:
			ev.Kind = ports.RightMouseDown
		default:
			return ports.TrackerEvent{}, false
		}
	case "up":
		switch p.Button {
		case 0:
			ev.Kind = ports.LeftMouseUp
		case 2:
			ev.Kind = ports.RightMouseUp
		default:
			return ports.TrackerEvent{}, false
		}
	case "move":
		switch {
		case p.Buttons&1 != 0:
			ev.Kind = ports.LeftMouseDragged
		case p.Buttons&2 != 0:
			ev.Kind = ports.RightMouseDragged
		default:
			return ports.TrackerEvent{}, false
		}
	case "wheel":
		ev.Kind = ports.ScrollWheel
	default:
		return ports.TrackerEvent{}, false
	}
	return ev, true
}

var _ tracker.Source = (*ClickSource)(nil)
