package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/tilepad/bridge/internal/emitter"
	"github.com/tilepad/bridge/internal/protocol"
)

type recorder struct {
	events []string
	args   [][]any
}

func (r *recorder) listen(e *emitter.Emitter, names ...emitter.Event) {
	for _, name := range names {
		name := name
		e.On(name, func(args ...any) {
			r.events = append(r.events, string(name))
			r.args = append(r.args, args)
		})
	}
}

var allEvents = []emitter.Event{
	EventTile.Event(),
	EventProperties.Event(),
	EventPluginProperties.Event(),
	EventPluginMessage.Event(),
}

func newTestTransport(role Role, opts ...Option) (*Transport, *PipeLink) {
	surface, host := Pipe()
	return New(role, surface, opts...), host
}

func TestDispatchInspectorKinds(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantEvent emitter.Event
		want      any
	}{
		{
			name:      "tile",
			frame:     `{"type":"TILE","tile":{"pluginId":"p1","tileId":"t1","actionId":"a1"}}`,
			wantEvent: EventTile.Event(),
			want:      TileEvent{Tile: protocol.Tile{PluginID: "p1", TileID: "t1", ActionID: "a1"}},
		},
		{
			name:      "properties",
			frame:     `{"type":"PROPERTIES","properties":{"x":1},"tileId":"t1","actionId":"a1","requestId":3}`,
			wantEvent: EventProperties.Event(),
			want: PropertiesEvent{
				Properties: json.RawMessage(`{"x":1}`),
				Context:    protocol.PropertiesContext{TileID: "t1", ActionID: "a1"},
				RequestID:  3,
			},
		},
		{
			name:      "plugin properties",
			frame:     `{"type":"PLUGIN_PROPERTIES","properties":{"token":"abc"}}`,
			wantEvent: EventPluginProperties.Event(),
			want:      PluginPropertiesEvent{Properties: json.RawMessage(`{"token":"abc"}`)},
		},
		{
			name:      "plugin message",
			frame:     `{"type":"PLUGIN_MESSAGE","message":{"hello":"world"}}`,
			wantEvent: EventPluginMessage.Event(),
			want:      PluginMessageEvent{Message: json.RawMessage(`{"hello":"world"}`)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, _ := newTestTransport(RoleInspector)
			var rec recorder
			rec.listen(tr.Events(), allEvents...)

			tr.Dispatch(Frame{Data: []byte(tt.frame)})

			if len(rec.events) != 1 || rec.events[0] != string(tt.wantEvent) {
				t.Fatalf("events = %v, want [%s]", rec.events, tt.wantEvent)
			}
			if len(rec.args[0]) != 1 {
				t.Fatalf("expected a single payload argument, got %d", len(rec.args[0]))
			}
			got, _ := json.Marshal(rec.args[0][0])
			want, _ := json.Marshal(tt.want)
			if string(got) != string(want) {
				t.Fatalf("payload = %s, want %s", got, want)
			}
		})
	}
}

func TestDispatchIgnoresUnrecognisedFrames(t *testing.T) {
	frames := []string{
		`{"type":"UNKNOWN"}`,
		`{"type":"GET_TILE"}`,
		`{"tile":{}}`,
		`not json`,
		`"TILE"`,
		`{"type":"TILE","tile":"not an object"}`,
	}

	tr, _ := newTestTransport(RoleInspector)
	var rec recorder
	rec.listen(tr.Events(), allEvents...)

	for _, f := range frames {
		tr.Dispatch(Frame{Data: []byte(f)})
	}

	if len(rec.events) != 0 {
		t.Fatalf("expected no events, got %v", rec.events)
	}
	if got := tr.Dropped(); got != uint64(len(frames)) {
		t.Fatalf("Dropped = %d, want %d", got, len(frames))
	}
}

func TestDisplayRoleIgnoresInspectorKinds(t *testing.T) {
	tr, _ := newTestTransport(RoleDisplay)
	var rec recorder
	rec.listen(tr.Events(), allEvents...)

	tr.Dispatch(Frame{Data: []byte(`{"type":"PROPERTIES","properties":{}}`)})
	tr.Dispatch(Frame{Data: []byte(`{"type":"PLUGIN_PROPERTIES","properties":{}}`)})
	tr.Dispatch(Frame{Data: []byte(`{"type":"PLUGIN_MESSAGE","message":1}`)})

	if len(rec.events) != 1 || rec.events[0] != string(EventPluginMessage.Event()) {
		t.Fatalf("events = %v", rec.events)
	}
}

func TestRefreshInvokesReloaderNotEmitter(t *testing.T) {
	reloads := 0
	tr, _ := newTestTransport(RoleDisplay, WithReloader(func() { reloads++ }))
	var rec recorder
	rec.listen(tr.Events(), allEvents...)
	rec.listen(tr.Events(), "refresh")

	tr.Dispatch(Frame{Data: []byte(`{"type":"REFRESH"}`)})

	if reloads != 1 {
		t.Fatalf("expected one reload, got %d", reloads)
	}
	if len(rec.events) != 0 {
		t.Fatalf("refresh must not go through the emitter, got %v", rec.events)
	}
}

func TestRefreshWithoutReloaderIsIgnored(t *testing.T) {
	tr, _ := newTestTransport(RoleDisplay)
	tr.Dispatch(Frame{Data: []byte(`{"type":"REFRESH"}`)})
	if tr.Dropped() != 1 {
		t.Fatalf("expected refresh to be counted as dropped")
	}
}

func TestAllowedOriginsFilter(t *testing.T) {
	tr, _ := newTestTransport(RoleDisplay, WithAllowedOrigins("tauri://localhost"))
	var rec recorder
	rec.listen(tr.Events(), allEvents...)

	frame := []byte(`{"type":"PLUGIN_MESSAGE","message":1}`)
	tr.Dispatch(Frame{Data: frame, Origin: "http://evil.example"})
	tr.Dispatch(Frame{Data: frame})
	tr.Dispatch(Frame{Data: frame, Origin: "tauri://localhost"})

	if len(rec.events) != 1 {
		t.Fatalf("expected only the trusted frame dispatched, got %v", rec.events)
	}
}

func TestSendPostsEncodedEnvelope(t *testing.T) {
	tr, host := newTestTransport(RoleInspector)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := tr.Send(ctx, protocol.GetTileMessage{RequestID: 4}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	frame, err := host.ReadMessage(ctx)
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	msg, err := protocol.DecodeOutbound(frame.Data)
	if err != nil {
		t.Fatalf("DecodeOutbound: %v", err)
	}
	if got, ok := msg.(protocol.GetTileMessage); !ok || got.RequestID != 4 {
		t.Fatalf("unexpected message %#v", msg)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	tr, _ := newTestTransport(RoleInspector)
	tr.Close()
	if err := tr.Send(context.Background(), protocol.GetTileMessage{}); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRunDispatchesUntilPeerCloses(t *testing.T) {
	tr, host := newTestTransport(RoleDisplay)
	got := make(chan TileEvent, 1)
	emitter.Listen(tr.Events(), EventTile, func(ev TileEvent) { got <- ev })

	done := make(chan error, 1)
	go func() { done <- tr.Run(context.Background()) }()

	ctx := context.Background()
	if err := host.WriteMessage(ctx, []byte(`{"type":"TILE","tile":{"pluginId":"p","tileId":"t","actionId":"a"}}`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	select {
	case ev := <-got:
		if ev.Tile.TileID != "t" {
			t.Fatalf("unexpected tile %+v", ev.Tile)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for tile")
	}

	host.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after peer closed")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	tr, _ := newTestTransport(RoleDisplay)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit on cancel")
	}
}

func TestRoleAccepts(t *testing.T) {
	if RoleDisplay.Accepts(protocol.KindProperties) {
		t.Fatal("display must not accept PROPERTIES")
	}
	if !RoleInspector.Accepts(protocol.KindPluginProperties) {
		t.Fatal("inspector must accept PLUGIN_PROPERTIES")
	}
	if RoleInspector.Accepts(protocol.KindGetTile) {
		t.Fatal("outbound kinds are never accepted inbound")
	}
	if RoleDisplay.AcceptsOutbound(protocol.KindSetLabel) {
		t.Fatal("display must not send SET_LABEL")
	}
	if _, err := ParseRole("panel"); err == nil {
		t.Fatal("expected unknown role error")
	}
}
