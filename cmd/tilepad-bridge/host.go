package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tilepad/bridge/internal/constants"
	"github.com/tilepad/bridge/internal/host"
	"github.com/tilepad/bridge/internal/sanitize"
	"github.com/tilepad/bridge/internal/store"
)

func newHostCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Serve surfaces over WebSocket from the local tile store",
		RunE:  runHost,
	}
	cmd.Flags().String("listen", "", "Listen address (overrides host.listen)")
	cmd.Flags().String("db", "", "Store database path (overrides host.database)")
	cmd.Flags().StringSlice("allow-origin", nil, "Additional allowed surface origin (repeatable)")
	return cmd
}

func runHost(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Host.Listen = v
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.Host.Database = v
	}
	extra, _ := cmd.Flags().GetStringSlice("allow-origin")
	origins := append(cfg.Host.AllowedOrigins, extra...)

	if err := os.MkdirAll(filepath.Dir(cfg.Host.Database), 0o755); err != nil {
		return fmt.Errorf("failed to prepare database directory: %w", err)
	}
	db, err := store.Open(store.Options{Path: cfg.Host.Database})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	h := host.New(db,
		host.WithAllowedOrigins(origins...),
		host.WithPluginRouter(logRouter{}))
	defer h.Close()

	listener, err := net.Listen("tcp", cfg.Host.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Host.Listen, err)
	}
	srv := &http.Server{Handler: h.Handler()}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Tilepad host listening on %s (store: %s)", listener.Addr(), db.Path())
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("Shutting down host...")
		h.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.HostShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Println("Host stopped")
	return nil
}

// logRouter stands in for the plugin process: it logs what surfaces send.
type logRouter struct{}

func (logRouter) DeliverToPlugin(_ context.Context, from host.SurfaceInfo, pluginID string, message json.RawMessage) error {
	log.Printf("[Host] %s surface %s (tile %s) -> plugin %s: %s", from.Role, from.ID, from.TileID, pluginID, sanitize.Preview(string(message)))
	return nil
}
