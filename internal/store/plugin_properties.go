package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PluginProperties returns the plugin-scoped properties. A plugin that never
// stored anything has an empty object.
func (s *Store) PluginProperties(ctx context.Context, pluginID string) (json.RawMessage, error) {
	var props string
	err := s.db.QueryRowContext(ctx,
		`SELECT properties FROM plugin_properties WHERE plugin_id = ?`, pluginID).Scan(&props)
	if errors.Is(err, sql.ErrNoRows) {
		return json.RawMessage(`{}`), nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: load plugin %s properties: %w", pluginID, err)
	}
	return json.RawMessage(props), nil
}

// SetPluginProperties stores the plugin properties. With partial set the
// object is merged into the stored one, otherwise it replaces it.
func (s *Store) SetPluginProperties(ctx context.Context, pluginID string, props json.RawMessage, partial bool) (json.RawMessage, error) {
	if err := s.ensureWritable(); err != nil {
		return nil, err
	}
	if err := requireObject(props); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	next := []byte(props)
	if partial {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT properties FROM plugin_properties WHERE plugin_id = ?`, pluginID).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("store: load plugin %s properties: %w", pluginID, err)
		}
		if next, err = mergeObject([]byte(current), props); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO plugin_properties (plugin_id, properties) VALUES (?, ?)
		ON CONFLICT(plugin_id) DO UPDATE SET
			properties = excluded.properties,
			updated_at = CURRENT_TIMESTAMP`,
		pluginID, string(next)); err != nil {
		return nil, fmt.Errorf("store: save plugin %s properties: %w", pluginID, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit plugin %s properties: %w", pluginID, err)
	}
	return json.RawMessage(next), nil
}
