package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tilepad/bridge/internal/protocol"
	"github.com/tilepad/bridge/internal/validate"
)

// TileRecord is a stored tile with its display configuration.
type TileRecord struct {
	Tile  protocol.Tile
	Label json.RawMessage
	Icon  protocol.Icon
}

// PutTile inserts or replaces a tile. Empty properties are stored as {}.
func (s *Store) PutTile(ctx context.Context, tile protocol.Tile) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	for field, id := range map[string]string{"tile id": tile.TileID, "plugin id": tile.PluginID, "action id": tile.ActionID} {
		if !validate.Ident(id) {
			return fmt.Errorf("store: invalid %s %q", field, id)
		}
	}
	props := []byte(tile.Properties)
	if len(props) == 0 {
		props = []byte(`{}`)
	}
	if err := requireObject(props); err != nil {
		return fmt.Errorf("store: tile %s properties: %w", tile.TileID, err)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tiles (id, profile_id, folder_id, plugin_id, action_id, properties)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			profile_id = excluded.profile_id,
			folder_id = excluded.folder_id,
			plugin_id = excluded.plugin_id,
			action_id = excluded.action_id,
			properties = excluded.properties,
			updated_at = CURRENT_TIMESTAMP`,
		tile.TileID, tile.ProfileID, tile.FolderID, tile.PluginID, tile.ActionID, string(props))
	if err != nil {
		return fmt.Errorf("store: put tile %s: %w", tile.TileID, err)
	}
	return nil
}

// Tile returns the tile snapshot, including its properties.
func (s *Store) Tile(ctx context.Context, tileID string) (protocol.Tile, error) {
	rec, err := s.TileRecord(ctx, tileID)
	if err != nil {
		return protocol.Tile{}, err
	}
	return rec.Tile, nil
}

// TileRecord returns the tile together with its label and icon.
func (s *Store) TileRecord(ctx context.Context, tileID string) (TileRecord, error) {
	var (
		rec                    TileRecord
		props, label, iconJSON string
	)
	row := s.db.QueryRowContext(ctx, `
		SELECT id, profile_id, folder_id, plugin_id, action_id, properties, label, icon
		FROM tiles WHERE id = ?`, tileID)
	err := row.Scan(&rec.Tile.TileID, &rec.Tile.ProfileID, &rec.Tile.FolderID,
		&rec.Tile.PluginID, &rec.Tile.ActionID, &props, &label, &iconJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return TileRecord{}, NotFoundError{Entity: "tile", Key: tileID}
	}
	if err != nil {
		return TileRecord{}, fmt.Errorf("store: load tile %s: %w", tileID, err)
	}

	icon, err := protocol.UnmarshalIcon([]byte(iconJSON))
	if err != nil {
		return TileRecord{}, fmt.Errorf("store: tile %s icon: %w", tileID, err)
	}
	rec.Tile.Properties = json.RawMessage(props)
	rec.Label = json.RawMessage(label)
	rec.Icon = icon
	return rec, nil
}

// TilesForPlugin lists the ids of every tile bound to pluginID.
func (s *Store) TilesForPlugin(ctx context.Context, pluginID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM tiles WHERE plugin_id = ? ORDER BY id`, pluginID)
	if err != nil {
		return nil, fmt.Errorf("store: list tiles for %s: %w", pluginID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan tile id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteTile removes a tile.
func (s *Store) DeleteTile(ctx context.Context, tileID string) error {
	if err := s.ensureWritable(); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM tiles WHERE id = ?`, tileID)
	if err != nil {
		return fmt.Errorf("store: delete tile %s: %w", tileID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return NotFoundError{Entity: "tile", Key: tileID}
	}
	return nil
}

// Properties returns the tile properties object.
func (s *Store) Properties(ctx context.Context, tileID string) (json.RawMessage, error) {
	tile, err := s.Tile(ctx, tileID)
	if err != nil {
		return nil, err
	}
	return tile.Properties, nil
}

// MergeProperties merges patch into the tile properties and returns the
// resulting object.
func (s *Store) MergeProperties(ctx context.Context, tileID string, patch json.RawMessage) (json.RawMessage, error) {
	return s.updateColumn(ctx, tileID, "properties", func(current []byte) ([]byte, error) {
		return mergeObject(current, patch)
	})
}

// SetLabel applies a sparse label update; unset fields keep their value.
func (s *Store) SetLabel(ctx context.Context, tileID string, label protocol.Label) error {
	if err := label.Validate(); err != nil {
		return err
	}
	patch, err := json.Marshal(label)
	if err != nil {
		return fmt.Errorf("store: encode label: %w", err)
	}
	_, err = s.updateColumn(ctx, tileID, "label", func(current []byte) ([]byte, error) {
		return mergeObject(current, patch)
	})
	return err
}

// SetIcon replaces the tile icon.
func (s *Store) SetIcon(ctx context.Context, tileID string, icon protocol.Icon) error {
	if icon == nil {
		return errors.New("store: nil icon")
	}
	data, err := json.Marshal(icon)
	if err != nil {
		return fmt.Errorf("store: encode icon: %w", err)
	}
	_, err = s.updateColumn(ctx, tileID, "icon", func([]byte) ([]byte, error) {
		return data, nil
	})
	return err
}

// updateColumn runs a read-modify-write of one JSON column in a transaction.
// column is always a constant chosen by this package.
func (s *Store) updateColumn(ctx context.Context, tileID, column string, update func([]byte) ([]byte, error)) (json.RawMessage, error) {
	if err := s.ensureWritable(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT `+column+` FROM tiles WHERE id = ?`, tileID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, NotFoundError{Entity: "tile", Key: tileID}
	}
	if err != nil {
		return nil, fmt.Errorf("store: load tile %s %s: %w", tileID, column, err)
	}

	next, err := update([]byte(current))
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE tiles SET `+column+` = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		string(next), tileID); err != nil {
		return nil, fmt.Errorf("store: update tile %s %s: %w", tileID, column, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit tile %s: %w", tileID, err)
	}
	return json.RawMessage(next), nil
}
