package testutil

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/tilepad/bridge/internal/protocol"
	"github.com/tilepad/bridge/internal/store"
)

// OpenStore creates a temporary tile store closed when the test ends.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Options{Path: filepath.Join(t.TempDir(), "tilepad.db")})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// PutTiles stores one tile per id, all bound to pluginID and actionID with
// the given initial properties.
func PutTiles(t *testing.T, s *store.Store, pluginID, actionID, properties string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		tile := protocol.Tile{
			ProfileID:  "profile-1",
			PluginID:   pluginID,
			TileID:     id,
			ActionID:   actionID,
			Properties: json.RawMessage(properties),
		}
		if err := s.PutTile(context.Background(), tile); err != nil {
			t.Fatalf("put tile %s: %v", id, err)
		}
	}
}
