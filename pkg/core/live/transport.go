package live

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

var (
	// ErrQueueFull is returned by SendAudio when the outbound queue is full. The frame is dropped.
	ErrQueueFull = errors.New("live: outbound audio queue full")
	// ErrNotOpen is returned by SendAudio before Open has succeeded.
	ErrNotOpen = errors.New("live: transport is not open")
	// ErrClosed is returned by SendAudio after Close.
	ErrClosed = errors.New("live: transport is closed")
)

// AudioFrame is one encoded capture frame as sent on the wire.
type AudioFrame struct {
	// Data is base64-encoded PCM16 little-endian audio.
	Data string
	// MIMEType describes the encoding, e.g. "audio/pcm;rate=16000".
	MIMEType string
}

// Transport is a duplex connection to the live voice endpoint.
type Transport interface {
	// Open connects and returns once the endpoint has acknowledged the session setup.
	Open(ctx context.Context) error

	// SendAudio queues a frame for sending. It never blocks; frames are sent in call order.
	SendAudio(frame AudioFrame) error

	// Events yields decoded server events. A ClosedEvent is the final event and
	// the channel is closed after it.
	Events() <-chan ServerEvent

	// Close releases the connection. Safe to call more than once and before Open.
	Close() error
}

// pump holds the queues and lifecycle flags shared by the transports.
type pump struct {
	events chan ServerEvent
	frames chan AudioFrame
	stop   chan struct{}
	done   chan struct{}

	opened   atomic.Bool
	closed   atomic.Bool
	stopOnce sync.Once

	logger *slog.Logger
}

func newPump(frameQueue int, logger *slog.Logger) *pump {
	if logger == nil {
		logger = slog.Default()
	}
	return &pump{
		events: make(chan ServerEvent, defaultEventQueueSize),
		frames: make(chan AudioFrame, frameQueue),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (p *pump) enqueue(frame AudioFrame) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if !p.opened.Load() {
		return ErrNotOpen
	}
	select {
	case p.frames <- frame:
		return nil
	default:
		p.logger.Warn("dropping audio frame, outbound queue full", "queue_size", cap(p.frames))
		return ErrQueueFull
	}
}

// emit delivers ev in order. It returns false once the transport is stopping.
func (p *pump) emit(ev ServerEvent) bool {
	select {
	case p.events <- ev:
		return true
	case <-p.stop:
		return false
	}
}

// finish delivers the terminal ClosedEvent and closes the event channel.
// Must be called exactly once, by the read loop.
func (p *pump) finish(err error) {
	select {
	case p.events <- ClosedEvent{Err: err}:
	case <-p.stop:
	}
	close(p.events)
	close(p.done)
}

// shutdown marks the transport closed and stops the loops. Returns false if already shut down.
func (p *pump) shutdown() bool {
	first := false
	p.stopOnce.Do(func() {
		first = true
		p.closed.Store(true)
		close(p.stop)
	})
	return first
}
