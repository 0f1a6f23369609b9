package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by links that have been shut down.
var ErrClosed = errors.New("transport: link closed")

// Frame is a single message received from the peer.
type Frame struct {
	Data []byte
	// Origin identifies the sender when the underlying channel knows it
	// (the Origin header of a WebSocket handshake, the configured origin of a
	// pipe end). Empty when unknown.
	Origin string
}

// Link is a bidirectional, message-framed channel between a surface and its
// host. Writes are fire-and-forget: success means the frame was handed to the
// channel, not that the peer processed it.
type Link interface {
	WriteMessage(ctx context.Context, data []byte) error
	ReadMessage(ctx context.Context) (Frame, error)
	Close() error
}
