// Package host is the host side of the surface protocol. It accepts surface
// connections, answers their requests from a Backend and pushes tile state,
// plugin messages and reload requests to every surface attached to a tile.
package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tilepad/bridge/internal/protocol"
	"github.com/tilepad/bridge/internal/transport"
	"github.com/tilepad/bridge/internal/validate"
)

// ErrClosed is returned once the host has been shut down.
var ErrClosed = errors.New("host: closed")

// Backend stores the tile state surfaces read and write.
type Backend interface {
	Tile(ctx context.Context, tileID string) (protocol.Tile, error)
	MergeProperties(ctx context.Context, tileID string, patch json.RawMessage) (json.RawMessage, error)
	PluginProperties(ctx context.Context, pluginID string) (json.RawMessage, error)
	SetPluginProperties(ctx context.Context, pluginID string, props json.RawMessage, partial bool) (json.RawMessage, error)
	SetLabel(ctx context.Context, tileID string, label protocol.Label) error
	SetIcon(ctx context.Context, tileID string, icon protocol.Icon) error
}

// PluginRouter receives the messages surfaces address to their plugin.
type PluginRouter interface {
	DeliverToPlugin(ctx context.Context, from SurfaceInfo, pluginID string, message json.RawMessage) error
}

// Logger is an optional interface for logging host events.
type Logger interface {
	Printf(format string, v ...any)
}

// SurfaceInfo describes an attached surface.
type SurfaceInfo struct {
	ID     string
	Role   transport.Role
	TileID string
	Origin string
}

// Option configures the Host.
type Option func(*Host)

// WithLogger overrides the default logger.
func WithLogger(logger Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithAllowedOrigins extends the builtin desktop-shell origins accepted on
// WebSocket upgrade.
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Host) {
		h.allowedOrigins = normalizeOrigins(append(h.allowedOrigins, origins...))
	}
}

// WithPluginRouter sets where SEND_TO_PLUGIN payloads go. Without a router
// they are logged and discarded.
func WithPluginRouter(router PluginRouter) Option {
	return func(h *Host) {
		h.router = router
	}
}

type surface struct {
	info SurfaceInfo
	link transport.Link
}

// Host serves surfaces.
type Host struct {
	backend        Backend
	router         PluginRouter
	logger         Logger
	allowedOrigins []string
	upgrader       websocket.Upgrader

	mu       sync.RWMutex
	surfaces map[string]*surface
	closed   bool
}

// New creates a host answering from backend.
func New(backend Backend, opts ...Option) *Host {
	h := &Host{
		backend:  backend,
		logger:   log.Default(),
		surfaces: make(map[string]*surface),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r.Header.Get("Origin"), h.allowedOrigins)
		},
	}
	return h
}

// Handler returns the HTTP handler exposing the surface endpoint
// GET /surface/{role}/{tileID}.
func (h *Host) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /surface/{role}/{tileID}", h.handleSurface)
	return mux
}

func (h *Host) handleSurface(w http.ResponseWriter, r *http.Request) {
	role, err := transport.ParseRole(r.PathValue("role"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	tileID := r.PathValue("tileID")
	if !validate.Ident(tileID) {
		http.Error(w, "invalid tile id", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[Host] upgrade failed for %s surface of tile %s: %v", role, tileID, err)
		return
	}

	link := transport.NewWSLink(conn, r.Header.Get("Origin"))
	if err := h.Serve(r.Context(), role, tileID, link); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Printf("[Host] surface of tile %s ended: %v", tileID, err)
	}
}

// Serve attaches a surface on link and answers its envelopes until the link
// or ctx closes. Envelopes are handled one at a time in arrival order.
func (h *Host) Serve(ctx context.Context, role transport.Role, tileID string, link transport.Link) error {
	s := &surface{
		info: SurfaceInfo{ID: uuid.NewString(), Role: role, TileID: tileID},
		link: link,
	}
	if err := h.register(s); err != nil {
		link.Close()
		return err
	}
	defer h.unregister(s)

	for {
		frame, err := link.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return err
		}
		if s.info.Origin == "" {
			s.info.Origin = frame.Origin
		}
		h.handleFrame(ctx, s, frame.Data)
	}
}

func (h *Host) register(s *surface) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.surfaces[s.info.ID] = s
	return nil
}

func (h *Host) unregister(s *surface) {
	h.mu.Lock()
	delete(h.surfaces, s.info.ID)
	h.mu.Unlock()
	s.link.Close()
}

// Surfaces lists the surfaces attached to tileID.
func (h *Host) Surfaces(tileID string) []SurfaceInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []SurfaceInfo
	for _, s := range h.surfaces {
		if s.info.TileID == tileID {
			out = append(out, s.info)
		}
	}
	return out
}

// Close detaches every surface. Subsequent Serve calls fail with ErrClosed.
func (h *Host) Close() error {
	h.mu.Lock()
	h.closed = true
	surfaces := make([]*surface, 0, len(h.surfaces))
	for _, s := range h.surfaces {
		surfaces = append(surfaces, s)
	}
	h.mu.Unlock()

	for _, s := range surfaces {
		s.link.Close()
	}
	return nil
}

// PushTile sends the current tile snapshot to every surface of the tile.
func (h *Host) PushTile(ctx context.Context, tileID string) error {
	tile, err := h.backend.Tile(ctx, tileID)
	if err != nil {
		return err
	}
	return h.broadcast(ctx, protocol.TileMessage{Tile: tile}, h.match(tileID, "", nil))
}

// PushProperties sends the current tile properties to every inspector of the
// tile.
func (h *Host) PushProperties(ctx context.Context, tileID string) error {
	tile, err := h.backend.Tile(ctx, tileID)
	if err != nil {
		return err
	}
	return h.broadcast(ctx, propertiesMessage(tile, tile.Properties, 0),
		h.match(tileID, transport.RoleInspector, nil))
}

// PushPluginMessage delivers a plugin payload to every surface of the tile.
func (h *Host) PushPluginMessage(ctx context.Context, tileID string, message any) error {
	raw, err := protocol.RawValue(message)
	if err != nil {
		return err
	}
	return h.broadcast(ctx, protocol.PluginMessage{Message: raw}, h.match(tileID, "", nil))
}

// Refresh asks every surface of the tile to reload.
func (h *Host) Refresh(ctx context.Context, tileID string) error {
	return h.broadcast(ctx, protocol.RefreshMessage{}, h.match(tileID, "", nil))
}

// match selects the surfaces of tileID with the given role (any role when
// empty), skipping except.
func (h *Host) match(tileID string, role transport.Role, except *surface) []*surface {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []*surface
	for _, s := range h.surfaces {
		if s == except || s.info.TileID != tileID {
			continue
		}
		if role != "" && s.info.Role != role {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (h *Host) broadcast(ctx context.Context, msg protocol.Message, targets []*surface) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	var errs []error
	for _, s := range targets {
		if err := s.link.WriteMessage(ctx, data); err != nil && !errors.Is(err, transport.ErrClosed) {
			errs = append(errs, fmt.Errorf("host: push %s to surface %s: %w", msg.Kind(), s.info.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Host) reply(ctx context.Context, s *surface, msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		h.logger.Printf("[Host] encode %s: %v", msg.Kind(), err)
		return
	}
	if err := s.link.WriteMessage(ctx, data); err != nil && !errors.Is(err, transport.ErrClosed) {
		h.logger.Printf("[Host] reply %s to surface %s: %v", msg.Kind(), s.info.ID, err)
	}
}

func propertiesMessage(tile protocol.Tile, props json.RawMessage, requestID uint64) protocol.PropertiesMessage {
	if len(props) == 0 {
		props = json.RawMessage(`{}`)
	}
	return protocol.PropertiesMessage{
		Properties: props,
		TileID:     tile.TileID,
		ActionID:   tile.ActionID,
		RequestID:  requestID,
	}
}
