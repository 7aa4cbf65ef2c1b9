package live

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autonex-agency/autonex/pkg/core"
	"github.com/autonex-agency/autonex/pkg/core/types"
	"github.com/autonex-agency/autonex/pkg/core/voice"
	"github.com/autonex-agency/autonex/pkg/metrics"
)

// TurnSink receives completed voice turns. Implementations must append, never replace.
type TurnSink interface {
	AppendMessages(msgs ...types.Message) error
}

// TransportFactory returns a fresh, unopened transport for each voice session.
type TransportFactory func() Transport

// Agent drives one voice conversation at a time: microphone capture up to the
// transport, server events down to the playback scheduler, and completed turns
// into the sink.
//
//	idle -> connecting -> listening <-> speaking -> idle
//
// Any failure moves to error and then tears down to idle.
type Agent struct {
	newTransport TransportFactory
	capturer     voice.Capturer
	output       voice.Output
	sink         TurnSink
	config       AgentConfig
	metrics      *metrics.Metrics
	logger       *slog.Logger

	mu    sync.Mutex
	state State
	gen   uint64
	run   *run

	events chan AgentEvent
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithAgentConfig overrides the default AgentConfig.
func WithAgentConfig(cfg AgentConfig) AgentOption {
	return func(a *Agent) { a.config = cfg }
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) AgentOption {
	return func(a *Agent) { a.metrics = m }
}

// WithAgentLogger sets the agent logger.
func WithAgentLogger(l *slog.Logger) AgentOption {
	return func(a *Agent) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAgent creates an idle agent.
func NewAgent(newTransport TransportFactory, capturer voice.Capturer, output voice.Output, sink TurnSink, opts ...AgentOption) *Agent {
	a := &Agent{
		newTransport: newTransport,
		capturer:     capturer,
		output:       output,
		sink:         sink,
		config:       DefaultAgentConfig(),
		logger:       slog.Default(),
		events:       make(chan AgentEvent, 100),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.config.PlaybackSampleRate <= 0 {
		a.config.PlaybackSampleRate = voice.PlaybackSampleRate
	}
	if a.config.PlaybackChannels <= 0 {
		a.config.PlaybackChannels = 1
	}
	return a
}

// Events yields state changes, failure notices and committed turns. Delivery is
// best effort; events are dropped if the channel is full.
func (a *Agent) Events() <-chan AgentEvent {
	return a.events
}

// State returns the current state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// run holds every resource of one voice session. release frees all of them.
type run struct {
	gen       uint64
	started   time.Time
	cancel    context.CancelFunc
	transport Transport
	capture   voice.CaptureHandle
	scheduler *voice.Scheduler
	ready     atomic.Bool
	done      chan struct{}
	once      sync.Once

	// Owned by the event loop goroutine.
	input  strings.Builder
	output strings.Builder
}

// Start acquires the microphone and begins connecting. A microphone failure is
// returned synchronously and leaves the agent idle. The session ends when Stop
// is called, ctx is cancelled, or the connection fails.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateIdle {
		return core.NewInvalidRequestError("voice session already active")
	}

	a.gen++
	r := &run{
		gen:       a.gen,
		started:   time.Now(),
		transport: a.newTransport(),
		scheduler: voice.NewScheduler(a.output, a.logger),
		done:      make(chan struct{}),
	}

	capture, err := a.capturer.Start(func(samples []float32) { a.sendFrame(r, samples) })
	if err != nil {
		_ = r.transport.Close()
		if !core.IsType(err, core.ErrPermissionDenied) {
			err = core.NewPermissionDeniedError("microphone unavailable", err)
		}
		a.logger.Error("voice session start failed", "error", err)
		a.metrics.RecordError("live", err)
		a.emit(NoticeEvent{Err: err})
		return err
	}
	r.capture = capture

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	a.run = r
	a.setStateLocked(StateConnecting)
	a.metrics.RecordLiveSessionStart()

	go a.loop(runCtx, r)
	return nil
}

// Stop tears down the active session, if any, and returns once the agent is idle.
// Safe to call from any state and more than once.
func (a *Agent) Stop() {
	a.mu.Lock()
	r := a.run
	a.mu.Unlock()
	if r == nil {
		return
	}
	r.cancel()
	<-r.done
}

// sendFrame runs on the audio callback thread. Frames captured before the
// transport is open are dropped.
func (a *Agent) sendFrame(r *run, samples []float32) {
	if !r.ready.Load() {
		return
	}
	frame := AudioFrame{Data: voice.EncodeFrame(samples), MIMEType: voice.CaptureMIMEType}
	switch err := r.transport.SendAudio(frame); {
	case err == nil:
		a.metrics.RecordLiveAudio("in", len(samples)*2)
	case errors.Is(err, ErrQueueFull):
		a.metrics.RecordFrameDropped()
	}
}

func (a *Agent) loop(ctx context.Context, r *run) {
	defer close(r.done)

	opened := make(chan error, 1)
	go func() { opened <- r.transport.Open(ctx) }()

	select {
	case <-ctx.Done():
		a.teardown(r, "stopped")
		return
	case err := <-opened:
		if err != nil {
			if ctx.Err() != nil {
				a.teardown(r, "stopped")
				return
			}
			if !core.IsType(err, core.ErrConnectionFailure) {
				err = core.NewConnectionFailureError("open live session", err)
			}
			a.fail(r, err)
			return
		}
	}

	r.ready.Store(true)
	a.transition(r, StateConnecting, StateListening)

	events := r.transport.Events()
	for {
		select {
		case <-ctx.Done():
			a.teardown(r, "stopped")
			return
		case ev, ok := <-events:
			if !ok {
				a.teardown(r, "closed")
				return
			}
			if !a.handle(r, ev) {
				return
			}
		case <-r.scheduler.Idle():
			if r.scheduler.Pending() == 0 {
				a.transition(r, StateSpeaking, StateListening)
			}
		}
	}
}

// handle applies one server event. It returns false once the session has ended.
func (a *Agent) handle(r *run, ev ServerEvent) bool {
	switch e := ev.(type) {
	case InputTranscriptEvent:
		r.input.WriteString(e.Text)
	case OutputTranscriptEvent:
		r.output.WriteString(e.Text)
	case TurnCompleteEvent:
		a.commitTurn(r)
	case InterruptedEvent:
		r.scheduler.Flush()
		a.metrics.RecordLiveInterrupt()
	case AudioChunkEvent:
		buf, err := voice.DecodePCM16(e.Data, a.config.PlaybackSampleRate, a.config.PlaybackChannels)
		if err != nil {
			a.fail(r, err)
			return false
		}
		if _, err := r.scheduler.Enqueue(buf); err != nil {
			a.fail(r, err)
			return false
		}
		a.metrics.RecordLiveAudio("out", len(e.Data))
		a.transition(r, StateListening, StateSpeaking)
	case ErrorEvent:
		a.fail(r, e.Err)
		return false
	case ClosedEvent:
		if e.Err != nil {
			a.fail(r, e.Err)
		} else {
			a.teardown(r, "closed")
		}
		return false
	}
	return true
}

// commitTurn writes the accumulated transcripts as messages and resets both buffers.
func (a *Agent) commitTurn(r *run) {
	in := strings.TrimSpace(r.input.String())
	out := strings.TrimSpace(r.output.String())
	r.input.Reset()
	r.output.Reset()

	var msgs []types.Message
	if in != "" {
		msgs = append(msgs, types.NewMessage(types.SenderUser, in))
	}
	if out != "" {
		msgs = append(msgs, types.NewMessage(types.SenderAI, out))
	}
	if len(msgs) == 0 {
		return
	}

	if a.sink != nil {
		if err := a.sink.AppendMessages(msgs...); err != nil {
			a.logger.Error("failed to store voice turn", "error", err, "messages", len(msgs))
		}
	}
	a.metrics.RecordLiveTurn()
	a.emit(TurnCommittedEvent{Messages: msgs})
}

func (a *Agent) fail(r *run, err error) {
	if err == nil {
		err = core.NewConnectionFailureError("live session failed", nil)
	}
	a.logger.Error("voice session failed", "error", err, "run", r.gen)
	a.metrics.RecordError("live", err)

	a.mu.Lock()
	if a.run == r {
		a.setStateLocked(StateError)
	}
	a.mu.Unlock()

	a.emit(NoticeEvent{Err: err})
	a.teardown(r, "error")
}

// teardown releases every resource of r and returns the agent to idle if r is
// still the active run.
func (a *Agent) teardown(r *run, status string) {
	r.once.Do(func() {
		r.cancel()
		r.ready.Store(false)
		if err := r.transport.Close(); err != nil {
			a.logger.Debug("transport close", "error", err)
		}
		if err := r.capture.Stop(); err != nil {
			a.logger.Debug("capture stop", "error", err)
		}
		r.scheduler.Flush()
		r.input.Reset()
		r.output.Reset()
		a.metrics.RecordLiveSessionEnd(status, time.Since(r.started))
	})

	a.mu.Lock()
	if a.run == r {
		a.run = nil
		a.setStateLocked(StateIdle)
	}
	a.mu.Unlock()
}

// transition moves from -> to if r is still active and the agent is in from.
func (a *Agent) transition(r *run, from, to State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.run != r || a.state != from {
		return
	}
	a.setStateLocked(to)
}

func (a *Agent) setStateLocked(to State) {
	from := a.state
	if from == to {
		return
	}
	a.state = to
	a.logger.Debug("voice state", "from", from.String(), "to", to.String())
	a.emit(StateChangedEvent{From: from, To: to})
}

func (a *Agent) emit(ev AgentEvent) {
	select {
	case a.events <- ev:
	default:
	}
}
