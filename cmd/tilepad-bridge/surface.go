package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tilepad/bridge/internal/bridge"
	"github.com/tilepad/bridge/internal/config"
	"github.com/tilepad/bridge/internal/constants"
	"github.com/tilepad/bridge/internal/jsbridge"
	"github.com/tilepad/bridge/internal/protocol"
	"github.com/tilepad/bridge/internal/transport"
)

func newSurfaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "surface <tile-id>",
		Short: "Attach a surface to a tile, running a script or printing what the host sends",
		Args:  cobra.ExactArgs(1),
		RunE:  runSurface,
	}
	cmd.Flags().String("role", "", "Surface role: display or inspector (overrides surface.role)")
	cmd.Flags().String("url", "", "Host base URL, e.g. ws://127.0.0.1:59371 (overrides surface.url)")
	cmd.Flags().String("origin", "", "Origin header sent to the host (overrides surface.origin)")
	cmd.Flags().String("script", "", "JavaScript file to run in the surface (overrides surface.script)")
	return cmd
}

func runSurface(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	for flag, target := range map[string]*string{
		"role":   &cfg.Surface.Role,
		"url":    &cfg.Surface.URL,
		"origin": &cfg.Surface.Origin,
		"script": &cfg.Surface.Script,
	} {
		if v, _ := cmd.Flags().GetString(flag); v != "" {
			*target = v
		}
	}

	role, err := transport.ParseRole(cfg.Surface.Role)
	if err != nil {
		return err
	}
	endpoint, err := surfaceURL(cfg, role, args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, constants.SurfaceDialTimeout)
	link, err := transport.Dial(dialCtx, endpoint, cfg.Surface.Origin)
	cancel()
	if err != nil {
		return err
	}
	tr := transport.New(role, link)
	defer tr.Close()

	bridgeOpts := []bridge.Option{bridge.WithDebounceDelay(time.Duration(cfg.Surface.Debounce))}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := tr.Run(gctx)
		if err == nil {
			// The host went away; stop the rest of the surface too.
			return errors.New("host closed the connection")
		}
		return err
	})

	if cfg.Surface.Script != "" {
		script, err := jsbridge.LoadScript(cfg.Surface.Script)
		if err != nil {
			return err
		}
		rt, err := jsbridge.New(tr, script, jsbridge.WithBridgeOptions(bridgeOpts...))
		if err != nil {
			return err
		}
		defer rt.Close()
		g.Go(func() error { return rt.Run(gctx) })
		log.Printf("Running %s as %s surface of tile %s", script.Name, role, args[0])
	} else {
		g.Go(func() error { return watchSurface(gctx, tr, bridgeOpts) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// surfaceURL builds the WebSocket endpoint for role and tileID.
func surfaceURL(cfg config.Config, role transport.Role, tileID string) (string, error) {
	base := cfg.Surface.URL
	if base == "" {
		base = "ws://" + cfg.Host.Listen
	}
	u, err := url.Parse(strings.TrimSuffix(base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid surface url %q: %w", base, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported surface url scheme %q", u.Scheme)
	}
	prefix := strings.TrimSuffix(u.Path, "/") + constants.SurfaceEndpointPath + string(role) + "/"
	u.Path = prefix + tileID
	// RawPath keeps a slash inside the tile id as a single segment.
	u.RawPath = (&url.URL{Path: prefix}).EscapedPath() + url.PathEscape(tileID)
	return u.String(), nil
}

// watchSurface prints the tile and everything the host pushes afterwards as
// JSON lines on stdout.
func watchSurface(ctx context.Context, tr *transport.Transport, opts []bridge.Option) error {
	enc := json.NewEncoder(os.Stdout)
	emit := func(kind protocol.Kind, v any) {
		enc.Encode(map[string]any{"type": kind, "data": v})
	}

	var display *bridge.Display
	if tr.Role() == transport.RoleInspector {
		in, err := bridge.NewInspector(tr, opts...)
		if err != nil {
			return err
		}
		defer in.Close()
		in.OnProperties(func(p bridge.Properties) { emit(protocol.KindProperties, p.Data) })
		in.OnPluginProperties(func(p json.RawMessage) { emit(protocol.KindPluginProperties, p) })
		if err := in.RequestProperties(ctx); err != nil {
			return err
		}
		display = in.Display
	} else {
		display = bridge.NewDisplay(tr, opts...)
		defer display.Close()
	}
	display.OnTile(func(t protocol.Tile) { emit(protocol.KindTile, t) })
	display.OnMessage(func(m json.RawMessage) { emit(protocol.KindPluginMessage, m) })
	tr.SetReloader(func() { emit(protocol.KindRefresh, nil) })

	if err := display.RequestTile(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}
