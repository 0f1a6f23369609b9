package transport

import (
	"context"
	"sync"
)

const defaultPipeBuffer = 64

// PipeLink is one end of an in-memory link created by Pipe.
type PipeLink struct {
	in     <-chan Frame
	out    chan<- Frame
	origin string

	done      chan struct{}
	peerDone  chan struct{}
	closeOnce sync.Once
}

// PipeOption customises Pipe.
type PipeOption func(*pipeConfig)

type pipeConfig struct {
	buffer        int
	surfaceOrigin string
	hostOrigin    string
}

// WithPipeBuffer sets the per-direction frame buffer.
func WithPipeBuffer(size int) PipeOption {
	return func(cfg *pipeConfig) {
		if size > 0 {
			cfg.buffer = size
		}
	}
}

// WithPipeOrigins sets the origins stamped on frames written by each end.
func WithPipeOrigins(surface, host string) PipeOption {
	return func(cfg *pipeConfig) {
		cfg.surfaceOrigin = surface
		cfg.hostOrigin = host
	}
}

// Pipe returns two connected in-memory link ends. Frames written on one end
// are read in order from the other.
func Pipe(opts ...PipeOption) (surface, host *PipeLink) {
	cfg := pipeConfig{buffer: defaultPipeBuffer}
	for _, opt := range opts {
		opt(&cfg)
	}

	toHost := make(chan Frame, cfg.buffer)
	toSurface := make(chan Frame, cfg.buffer)
	surfaceDone := make(chan struct{})
	hostDone := make(chan struct{})

	surface = &PipeLink{
		in:       toSurface,
		out:      toHost,
		origin:   cfg.surfaceOrigin,
		done:     surfaceDone,
		peerDone: hostDone,
	}
	host = &PipeLink{
		in:       toHost,
		out:      toSurface,
		origin:   cfg.hostOrigin,
		done:     hostDone,
		peerDone: surfaceDone,
	}
	return surface, host
}

// WriteMessage queues data for the peer. It blocks while the buffer is full.
func (p *PipeLink) WriteMessage(ctx context.Context, data []byte) error {
	frame := Frame{Data: append([]byte(nil), data...), Origin: p.origin}

	select {
	case <-p.done:
		return ErrClosed
	case <-p.peerDone:
		return ErrClosed
	default:
	}

	select {
	case p.out <- frame:
		return nil
	case <-p.done:
		return ErrClosed
	case <-p.peerDone:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadMessage returns the next frame from the peer. Frames already queued are
// still delivered after the peer closes.
func (p *PipeLink) ReadMessage(ctx context.Context) (Frame, error) {
	select {
	case frame := <-p.in:
		return frame, nil
	default:
	}

	select {
	case frame := <-p.in:
		return frame, nil
	case <-p.done:
		return Frame{}, ErrClosed
	case <-p.peerDone:
		select {
		case frame := <-p.in:
			return frame, nil
		default:
			return Frame{}, ErrClosed
		}
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	}
}

// Close shuts this end down; the peer observes ErrClosed once drained.
func (p *PipeLink) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}
