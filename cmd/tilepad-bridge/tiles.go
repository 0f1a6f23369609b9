package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tilepad/bridge/internal/protocol"
	"github.com/tilepad/bridge/internal/store"
)

func newTilesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tiles",
		Short: "Manage tiles in the local store",
	}
	cmd.PersistentFlags().String("db", "", "Store database path (overrides host.database)")

	put := &cobra.Command{
		Use:   "put <tile-id>",
		Short: "Create or replace a tile",
		Args:  cobra.ExactArgs(1),
		RunE:  runTilesPut,
	}
	put.Flags().String("plugin", "", "Plugin id (required)")
	put.Flags().String("action", "", "Action id (required)")
	put.Flags().String("profile", "", "Profile id")
	put.Flags().String("folder", "", "Folder id")
	put.Flags().String("properties", "{}", "Initial properties as a JSON object")
	put.MarkFlagRequired("plugin")
	put.MarkFlagRequired("action")

	show := &cobra.Command{
		Use:   "show <tile-id>",
		Short: "Print a tile with its label and icon",
		Args:  cobra.ExactArgs(1),
		RunE:  runTilesShow,
	}

	list := &cobra.Command{
		Use:   "list <plugin-id>",
		Short: "List the tiles bound to a plugin",
		Args:  cobra.ExactArgs(1),
		RunE:  runTilesList,
	}

	del := &cobra.Command{
		Use:   "delete <tile-id>",
		Short: "Delete a tile",
		Args:  cobra.ExactArgs(1),
		RunE:  runTilesDelete,
	}

	cmd.AddCommand(put, show, list, del)
	return cmd
}

func openStore(cmd *cobra.Command) (*store.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	path := cfg.Host.Database
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		path = v
	}
	db, err := store.Open(store.Options{Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return db, nil
}

func runTilesPut(cmd *cobra.Command, args []string) error {
	db, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	plugin, _ := cmd.Flags().GetString("plugin")
	action, _ := cmd.Flags().GetString("action")
	profile, _ := cmd.Flags().GetString("profile")
	folder, _ := cmd.Flags().GetString("folder")
	props, _ := cmd.Flags().GetString("properties")

	tile := protocol.Tile{
		ProfileID:  profile,
		FolderID:   folder,
		PluginID:   plugin,
		TileID:     args[0],
		ActionID:   action,
		Properties: json.RawMessage(props),
	}
	if err := db.PutTile(cmd.Context(), tile); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Tile %s saved\n", tile.TileID)
	return nil
}

func runTilesShow(cmd *cobra.Command, args []string) error {
	db, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	rec, err := db.TileRecord(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	out := struct {
		protocol.Tile
		Label json.RawMessage `json:"label"`
		Icon  protocol.Icon   `json:"icon"`
	}{rec.Tile, rec.Label, rec.Icon}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runTilesList(cmd *cobra.Command, args []string) error {
	db, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ids, err := db.TilesForPlugin(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TILE\tACTION\tPROFILE")
	for _, id := range ids {
		tile, err := db.Tile(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", tile.TileID, tile.ActionID, tile.ProfileID)
	}
	return w.Flush()
}

func runTilesDelete(cmd *cobra.Command, args []string) error {
	db, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteTile(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Tile %s deleted\n", args[0])
	return nil
}
