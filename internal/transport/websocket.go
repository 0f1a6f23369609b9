package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tilepad/bridge/internal/constants"
)

const (
	wsWriteWait  = constants.WebSocketWriteWait
	wsPongWait   = constants.WebSocketPongWait
	wsPingPeriod = constants.WebSocketPingPeriod
	wsSendBuffer = 256
)

// WSLink adapts a gorilla websocket connection to Link. Frames are JSON text
// messages; a dedicated write pump owns the connection writer and keeps the
// connection alive with pings.
type WSLink struct {
	conn   *websocket.Conn
	origin string
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once
	writeErr  error
	errMu     sync.Mutex
}

// NewWSLink wraps an established connection. origin is stamped on every
// received frame; hosts pass the Origin header of the upgrade request,
// surfaces pass the URL they dialled.
func NewWSLink(conn *websocket.Conn, origin string) *WSLink {
	l := &WSLink{
		conn:   conn,
		origin: origin,
		send:   make(chan []byte, wsSendBuffer),
		done:   make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	go l.writePump()
	return l
}

// Dial connects to a host surface endpoint. origin is sent as the Origin
// header so the host can validate it.
func Dial(ctx context.Context, url, origin string) (*WSLink, error) {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return NewWSLink(conn, url), nil
}

// WriteMessage queues data for the write pump.
func (l *WSLink) WriteMessage(ctx context.Context, data []byte) error {
	select {
	case <-l.done:
		return l.closedErr()
	default:
	}

	select {
	case l.send <- data:
		return nil
	case <-l.done:
		return l.closedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadMessage blocks for the next text frame. Binary frames are skipped.
// Cancelling ctx closes the link, since gorilla reads cannot be interrupted
// any other way.
func (l *WSLink) ReadMessage(ctx context.Context) (Frame, error) {
	stop := context.AfterFunc(ctx, func() { l.Close() })
	defer stop()

	for {
		messageType, data, err := l.conn.ReadMessage()
		if err != nil {
			l.Close()
			if ctx.Err() != nil {
				return Frame{}, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return Frame{}, ErrClosed
			}
			return Frame{}, fmt.Errorf("transport: read: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		return Frame{Data: data, Origin: l.origin}, nil
	}
}

// Close stops the write pump and closes the connection.
func (l *WSLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
	})
	return nil
}

func (l *WSLink) closedErr() error {
	l.errMu.Lock()
	defer l.errMu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	return ErrClosed
}

func (l *WSLink) setWriteErr(err error) {
	l.errMu.Lock()
	if l.writeErr == nil {
		l.writeErr = fmt.Errorf("transport: write: %w", err)
	}
	l.errMu.Unlock()
}

func (l *WSLink) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		l.conn.Close()
	}()

	for {
		select {
		case data := <-l.send:
			l.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				l.setWriteErr(err)
				l.Close()
				return
			}

		case <-ticker.C:
			l.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := l.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				l.setWriteErr(err)
				l.Close()
				return
			}

		case <-l.done:
			// Flush frames queued before Close so fire-and-forget writes that
			// already returned are not lost.
			for {
				select {
				case data := <-l.send:
					l.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
						return
					}
				default:
					l.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					l.conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}
