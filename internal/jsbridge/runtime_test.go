package jsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"

	"github.com/tilepad/bridge/internal/bridge"
	"github.com/tilepad/bridge/internal/protocol"
	"github.com/tilepad/bridge/internal/transport"
)

type recordingLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *recordingLogger) Printf(format string, v ...any) {
	l.mu.Lock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
	l.mu.Unlock()
}

func (l *recordingLogger) contains(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

type fixture struct {
	t      *testing.T
	rt     *Runtime
	host   *transport.PipeLink
	logger *recordingLogger
	errc   chan error
}

func start(t *testing.T, role transport.Role, source string) *fixture {
	t.Helper()
	f := newFixture(t, role, source)
	go func() { f.errc <- f.rt.Run(context.Background()) }()
	return f
}

func newFixture(t *testing.T, role transport.Role, source string) *fixture {
	t.Helper()
	surface, host := transport.Pipe()
	tr := transport.New(role, surface)
	ctx, cancel := context.WithCancel(context.Background())
	go tr.Run(ctx)

	logger := &recordingLogger{}
	rt, err := New(tr, Script{Name: "surface.js", Source: source},
		WithLogger(logger),
		WithBridgeOptions(bridge.WithDebounceDelay(20*time.Millisecond)))
	if err != nil {
		t.Fatalf("new runtime: %v", err)
	}
	t.Cleanup(func() {
		rt.Close()
		cancel()
		tr.Close()
		host.Close()
	})
	return &fixture{t: t, rt: rt, host: host, logger: logger, errc: make(chan error, 1)}
}

func (f *fixture) next() protocol.Message {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	frame, err := f.host.ReadMessage(ctx)
	if err != nil {
		f.t.Fatalf("host read: %v", err)
	}
	msg, err := protocol.DecodeOutbound(frame.Data)
	if err != nil {
		f.t.Fatalf("decode %s: %v", frame.Data, err)
	}
	return msg
}

func (f *fixture) push(msg protocol.Message) {
	f.t.Helper()
	data, err := protocol.Encode(msg)
	if err != nil {
		f.t.Fatalf("encode: %v", err)
	}
	if err := f.host.WriteMessage(context.Background(), data); err != nil {
		f.t.Fatalf("host write: %v", err)
	}
}

// eval runs expr in the current VM and exports the result.
func (f *fixture) eval(expr string) any {
	f.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var out any
	err := f.rt.Do(ctx, func(vm *goja.Runtime) error {
		v, err := vm.RunString(expr)
		if err != nil {
			return err
		}
		out = v.Export()
		return nil
	})
	if err != nil {
		f.t.Fatalf("eval %q: %v", expr, err)
	}
	return out
}

// waitFor polls expr until it evaluates to want.
func (f *fixture) waitFor(expr string, want any) {
	f.t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		got := f.eval(expr)
		if got == want {
			return
		}
		if time.Now().After(deadline) {
			f.t.Fatalf("%s = %v, want %v", expr, got, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestGetTileResolvesPromise(t *testing.T) {
	f := start(t, transport.RoleDisplay, `
		tilepad.tile.getTile().then(function (tile) {
			globalThis.tileId = tile.tileId;
			console.log("tile", tile.tileId);
		});
	`)

	req, ok := f.next().(protocol.GetTileMessage)
	if !ok {
		t.Fatal("expected GET_TILE")
	}
	f.push(protocol.TileMessage{
		Tile:      protocol.Tile{PluginID: "p", TileID: "tile-9", ActionID: "a"},
		RequestID: req.RequestID,
	})

	f.waitFor("globalThis.tileId", "tile-9")
	if !f.logger.contains("log: tile tile-9") {
		t.Fatalf("console output not logged: %v", f.logger.lines)
	}
}

func TestDisplayRoleExposesDisplaySubset(t *testing.T) {
	f := start(t, transport.RoleDisplay, ``)

	for expr, want := range map[string]any{
		"typeof tilepad.tile.getTile":         "function",
		"typeof tilepad.plugin.send":          "function",
		"typeof tilepad.tile.setProperty":     "undefined",
		"typeof tilepad.tile.getProperties":   "undefined",
		"typeof tilepad.plugin.getProperties": "undefined",
		"tilepad.role":                        "display",
	} {
		if got := f.eval(expr); got != want {
			t.Errorf("%s = %v, want %v", expr, got, want)
		}
	}
}

func TestInspectorSetPropertyCoalesces(t *testing.T) {
	f := start(t, transport.RoleInspector, `
		tilepad.tile.setProperty("x", 1);
		tilepad.tile.setProperty("x", 2);
	`)

	msg, ok := f.next().(protocol.SetPropertiesMessage)
	if !ok {
		t.Fatal("expected SET_PROPERTIES")
	}
	if string(msg.Properties) != `{"x":2}` {
		t.Fatalf("expected {\"x\":2}, got %s", msg.Properties)
	}
}

func TestOnMessageDisposer(t *testing.T) {
	f := start(t, transport.RoleDisplay, `
		globalThis.received = [];
		globalThis.dispose = tilepad.plugin.onMessage(function (msg) {
			received.push(msg.n);
		});
	`)

	f.push(protocol.PluginMessage{Message: json.RawMessage(`{"n":1}`)})
	f.waitFor("received.length", int64(1))

	f.eval("dispose()")
	f.push(protocol.PluginMessage{Message: json.RawMessage(`{"n":2}`)})
	time.Sleep(50 * time.Millisecond)
	if got := f.eval("received.length"); got != int64(1) {
		t.Fatalf("disposed callback still invoked, received.length = %v", got)
	}
}

func TestDisposersReleaseTracking(t *testing.T) {
	f := start(t, transport.RoleDisplay, `
		for (var i = 0; i < 100; i++) {
			tilepad.plugin.onMessage(function () {})();
			tilepad.tile.onTile(function () {})();
		}
		globalThis.live = tilepad.plugin.onMessage(function () {});
	`)

	var tracked int
	err := f.rt.Do(context.Background(), func(*goja.Runtime) error {
		tracked = f.rt.subs.Len()
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if tracked != 1 {
		t.Fatalf("tracked subscriptions = %d, want 1", tracked)
	}
}

func TestOnPropertiesReceivesContext(t *testing.T) {
	f := start(t, transport.RoleInspector, `
		tilepad.tile.onProperties(function (props, ctx) {
			globalThis.seen = props.count + ":" + ctx.tileId;
		});
	`)

	f.push(protocol.PropertiesMessage{
		Properties: json.RawMessage(`{"count":3}`),
		TileID:     "tile-1",
		ActionID:   "a",
	})
	f.waitFor("globalThis.seen", "3:tile-1")
}

func TestPluginPropertiesAPI(t *testing.T) {
	f := start(t, transport.RoleInspector, `
		tilepad.plugin.getProperties().then(function (p) { globalThis.token = p.token; });
		tilepad.plugin.setProperties({ region: "eu" });
	`)

	// The request is sent off the loop, so the two envelopes may arrive in
	// either order.
	var (
		req protocol.GetPluginPropertiesMessage
		set protocol.SetPluginPropertiesMessage
	)
	for i := 0; i < 2; i++ {
		switch m := f.next().(type) {
		case protocol.GetPluginPropertiesMessage:
			req = m
		case protocol.SetPluginPropertiesMessage:
			set = m
		default:
			t.Fatalf("unexpected envelope %T", m)
		}
	}
	if req.RequestID == 0 {
		t.Fatal("expected GET_PLUGIN_PROPERTIES with a request id")
	}
	if !set.Partial || string(set.Properties) != `{"region":"eu"}` {
		t.Fatalf("unexpected write %+v", set)
	}

	f.push(protocol.PluginPropertiesMessage{Properties: json.RawMessage(`{"token":"abc"}`), RequestID: req.RequestID})
	f.waitFor("globalThis.token", "abc")
}

func TestSetLabelAndIconFromScript(t *testing.T) {
	f := start(t, transport.RoleInspector, `
		tilepad.tile.setLabel({ label: "Hi", bold: true, font_size: 12.5 });
		tilepad.tile.setIcon({ type: "Url", src: "https://example.com/a.png" });
		try {
			tilepad.tile.setLabel({ align: "Left" });
		} catch (e) {
			globalThis.labelError = true;
		}
		try {
			tilepad.tile.setIcon({ type: "Emoji" });
		} catch (e) {
			globalThis.iconError = true;
		}
	`)

	label, ok := f.next().(protocol.SetLabelMessage)
	if !ok {
		t.Fatal("expected SET_LABEL")
	}
	if label.Label.Label == nil || *label.Label.Label != "Hi" || label.Label.Bold == nil || !*label.Label.Bold {
		t.Fatalf("unexpected label %+v", label.Label)
	}
	if label.Label.FontSize == nil || *label.Label.FontSize != 12.5 {
		t.Fatalf("font_size = %v, want 12.5", label.Label.FontSize)
	}
	icon, ok := f.next().(protocol.SetIconMessage)
	if !ok {
		t.Fatal("expected SET_ICON")
	}
	if icon.Icon != (protocol.URLIcon{Src: "https://example.com/a.png"}) {
		t.Fatalf("unexpected icon %#v", icon.Icon)
	}

	if f.eval("globalThis.labelError") != true || f.eval("globalThis.iconError") != true {
		t.Fatal("invalid label or icon did not throw")
	}
}

func TestRefreshReloadsScript(t *testing.T) {
	f := start(t, transport.RoleDisplay, `
		globalThis.counter = (globalThis.counter || 0) + 1;
		globalThis.messages = 0;
		tilepad.plugin.onMessage(function () { messages++; });
	`)
	f.waitFor("globalThis.counter", int64(1))

	f.push(protocol.RefreshMessage{})
	deadline := time.Now().Add(time.Second)
	for f.rt.Loads() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("script was not reloaded")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A fresh VM starts from a clean global object and the previous
	// script's subscriptions are gone.
	if got := f.eval("globalThis.counter"); got != int64(1) {
		t.Fatalf("counter = %v after reload, want 1", got)
	}
	f.push(protocol.PluginMessage{Message: json.RawMessage(`{}`)})
	f.waitFor("globalThis.messages", int64(1))
	time.Sleep(20 * time.Millisecond)
	if got := f.eval("globalThis.messages"); got != int64(1) {
		t.Fatalf("messages = %v, stale subscription still active", got)
	}
}

func TestRunReportsScriptError(t *testing.T) {
	f := newFixture(t, transport.RoleDisplay, `this is not javascript`)
	if err := f.rt.Run(context.Background()); err == nil {
		t.Fatal("expected syntax error from Run")
	}
}

func TestCloseStopsRun(t *testing.T) {
	f := start(t, transport.RoleDisplay, ``)
	f.eval("1")
	f.rt.Close()

	select {
	case err := <-f.errc:
		if err != nil {
			t.Fatalf("Run returned %v after Close", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Close")
	}
	if err := f.rt.Do(context.Background(), func(*goja.Runtime) error { return nil }); err != ErrStopped {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}
