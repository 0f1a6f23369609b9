package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/tilepad/bridge/internal/protocol"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{Path: filepath.Join(t.TempDir(), "tilepad.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testTile() protocol.Tile {
	return protocol.Tile{
		ProfileID:  "profile-1",
		FolderID:   "folder-1",
		PluginID:   "com.example.counter",
		TileID:     "tile-1",
		ActionID:   "increment",
		Properties: json.RawMessage(`{"count":1,"step":2}`),
	}
}

func TestTileRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.PutTile(ctx, testTile()); err != nil {
		t.Fatalf("put tile: %v", err)
	}

	got, err := s.Tile(ctx, "tile-1")
	if err != nil {
		t.Fatalf("load tile: %v", err)
	}
	want := testTile()
	if got.ProfileID != want.ProfileID || got.FolderID != want.FolderID ||
		got.PluginID != want.PluginID || got.ActionID != want.ActionID {
		t.Fatalf("unexpected tile %+v", got)
	}
	if gjson.GetBytes(got.Properties, "count").Int() != 1 {
		t.Fatalf("unexpected properties %s", got.Properties)
	}

	rec, err := s.TileRecord(ctx, "tile-1")
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	if _, ok := rec.Icon.(protocol.NoIcon); !ok {
		t.Fatalf("expected default icon None, got %#v", rec.Icon)
	}
	if string(rec.Label) != "{}" {
		t.Fatalf("expected empty label, got %s", rec.Label)
	}
}

func TestTileNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.Tile(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := s.MergeProperties(ctx, "missing", json.RawMessage(`{"a":1}`)); !IsNotFound(err) {
		t.Fatalf("expected not found on merge, got %v", err)
	}
	if err := s.DeleteTile(ctx, "missing"); !IsNotFound(err) {
		t.Fatalf("expected not found on delete, got %v", err)
	}
}

func TestPutTileRequiresIdentity(t *testing.T) {
	s := openTestStore(t)
	tile := testTile()
	tile.ActionID = ""
	if err := s.PutTile(context.Background(), tile); err == nil {
		t.Fatal("expected error for tile without action id")
	}
}

func TestMergePropertiesKeepsOtherKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.PutTile(ctx, testTile()); err != nil {
		t.Fatalf("put tile: %v", err)
	}

	merged, err := s.MergeProperties(ctx, "tile-1", json.RawMessage(`{"count":5,"a.b":true}`))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	props, err := s.Properties(ctx, "tile-1")
	if err != nil {
		t.Fatalf("properties: %v", err)
	}
	if string(props) != string(merged) {
		t.Fatalf("stored %s, returned %s", props, merged)
	}

	parsed := gjson.ParseBytes(props).Map()
	if parsed["count"].Int() != 5 {
		t.Fatalf("count not updated: %s", props)
	}
	if parsed["step"].Int() != 2 {
		t.Fatalf("step lost: %s", props)
	}
	if !parsed["a.b"].Bool() {
		t.Fatalf("dotted key not stored literally: %s", props)
	}
	if len(parsed) != 3 {
		t.Fatalf("expected 3 keys, got %s", props)
	}
}

func TestMergePropertiesRejectsNonObject(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.PutTile(ctx, testTile()); err != nil {
		t.Fatalf("put tile: %v", err)
	}
	for _, patch := range []string{`[1,2]`, `"text"`, `{bad`} {
		if _, err := s.MergeProperties(ctx, "tile-1", json.RawMessage(patch)); err == nil {
			t.Fatalf("expected error for patch %s", patch)
		}
	}
}

func TestSetLabelIsSparse(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.PutTile(ctx, testTile()); err != nil {
		t.Fatalf("put tile: %v", err)
	}

	if err := s.SetLabel(ctx, "tile-1", protocol.Label{Label: protocol.Ptr("Count"), FontSize: protocol.Ptr(12.5)}); err != nil {
		t.Fatalf("set label: %v", err)
	}
	if err := s.SetLabel(ctx, "tile-1", protocol.Label{Bold: protocol.Ptr(true)}); err != nil {
		t.Fatalf("set label: %v", err)
	}

	rec, err := s.TileRecord(ctx, "tile-1")
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	var label protocol.Label
	if err := json.Unmarshal(rec.Label, &label); err != nil {
		t.Fatalf("decode label: %v", err)
	}
	if label.Label == nil || *label.Label != "Count" {
		t.Fatalf("label text lost: %s", rec.Label)
	}
	if label.FontSize == nil || *label.FontSize != 12.5 {
		t.Fatalf("font size lost: %s", rec.Label)
	}
	if label.Bold == nil || !*label.Bold {
		t.Fatalf("bold not applied: %s", rec.Label)
	}

	bad := protocol.LabelAlign("Left")
	if err := s.SetLabel(ctx, "tile-1", protocol.Label{Align: &bad}); err == nil {
		t.Fatal("expected invalid align to be rejected")
	}
}

func TestSetIcon(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.PutTile(ctx, testTile()); err != nil {
		t.Fatalf("put tile: %v", err)
	}

	icon := protocol.IconPackIcon{PackID: "pack", Path: "icons/play.svg"}
	if err := s.SetIcon(ctx, "tile-1", icon); err != nil {
		t.Fatalf("set icon: %v", err)
	}
	rec, err := s.TileRecord(ctx, "tile-1")
	if err != nil {
		t.Fatalf("load record: %v", err)
	}
	if rec.Icon != icon {
		t.Fatalf("expected %#v, got %#v", icon, rec.Icon)
	}
}

func TestTilesForPlugin(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"tile-b", "tile-a"} {
		tile := testTile()
		tile.TileID = id
		if err := s.PutTile(ctx, tile); err != nil {
			t.Fatalf("put tile: %v", err)
		}
	}
	other := testTile()
	other.TileID = "tile-c"
	other.PluginID = "com.example.other"
	if err := s.PutTile(ctx, other); err != nil {
		t.Fatalf("put tile: %v", err)
	}

	ids, err := s.TilesForPlugin(ctx, "com.example.counter")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 || ids[0] != "tile-a" || ids[1] != "tile-b" {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestPluginProperties(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	const plugin = "com.example.counter"

	props, err := s.PluginProperties(ctx, plugin)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(props) != "{}" {
		t.Fatalf("expected empty object, got %s", props)
	}

	if _, err := s.SetPluginProperties(ctx, plugin, json.RawMessage(`{"token":"abc","region":"eu"}`), true); err != nil {
		t.Fatalf("set partial: %v", err)
	}
	if _, err := s.SetPluginProperties(ctx, plugin, json.RawMessage(`{"region":"us"}`), true); err != nil {
		t.Fatalf("set partial: %v", err)
	}
	props, _ = s.PluginProperties(ctx, plugin)
	if gjson.GetBytes(props, "token").String() != "abc" || gjson.GetBytes(props, "region").String() != "us" {
		t.Fatalf("unexpected merged properties %s", props)
	}

	if _, err := s.SetPluginProperties(ctx, plugin, json.RawMessage(`{"fresh":true}`), false); err != nil {
		t.Fatalf("replace: %v", err)
	}
	props, _ = s.PluginProperties(ctx, plugin)
	if gjson.GetBytes(props, "token").Exists() || !gjson.GetBytes(props, "fresh").Bool() {
		t.Fatalf("replace kept stale keys: %s", props)
	}
}

func TestReadOnlyStoreRejectsWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tilepad.db")
	rw, err := Open(Options{Path: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := rw.PutTile(context.Background(), testTile()); err != nil {
		t.Fatalf("put tile: %v", err)
	}
	rw.Close()

	ro, err := Open(Options{Path: path, ReadOnly: true})
	if err != nil {
		t.Fatalf("open read-only: %v", err)
	}
	defer ro.Close()

	if err := ro.PutTile(context.Background(), testTile()); err == nil {
		t.Fatal("expected write to fail on read-only store")
	}
}

func TestMergeObjectEscapesPathSyntax(t *testing.T) {
	out, err := mergeObject([]byte(`{}`), []byte(`{"a*b":1,"c|d":2,"#":3,"x\\y":4}`))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	parsed := gjson.ParseBytes(out).Map()
	for key, want := range map[string]int64{"a*b": 1, "c|d": 2, "#": 3, `x\y`: 4} {
		if parsed[key].Int() != want {
			t.Fatalf("key %q: got %s in %s", key, parsed[key].Raw, out)
		}
	}
}

func TestMergeObjectEmptyKey(t *testing.T) {
	out, err := mergeObject([]byte(`{"a":1,"":0}`), []byte(`{"":2,"b":3}`))
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	var got map[string]int
	if err := json.Unmarshal(out, &got); err != nil {
		t.Fatalf("merged value %s: %v", out, err)
	}
	want := map[string]int{"a": 1, "": 2, "b": 3}
	if len(got) != len(want) {
		t.Fatalf("merged = %v, want %v", got, want)
	}
	for key, v := range want {
		if got[key] != v {
			t.Fatalf("merged = %v, want %v", got, want)
		}
	}
}
