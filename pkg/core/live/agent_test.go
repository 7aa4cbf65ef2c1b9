package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/autonex-agency/autonex/pkg/core"
	"github.com/autonex-agency/autonex/pkg/core/types"
	"github.com/autonex-agency/autonex/pkg/core/voice"
)

type fakeTransport struct {
	openResult chan error
	events     chan ServerEvent

	opens  atomic.Int32
	closes atomic.Int32

	mu   sync.Mutex
	sent []AudioFrame
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		openResult: make(chan error, 1),
		events:     make(chan ServerEvent, 16),
	}
}

func (f *fakeTransport) Open(ctx context.Context) error {
	f.opens.Add(1)
	select {
	case err := <-f.openResult:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeTransport) SendAudio(frame AudioFrame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, frame)
	return nil
}

func (f *fakeTransport) Events() <-chan ServerEvent { return f.events }

func (f *fakeTransport) Close() error {
	f.closes.Add(1)
	return nil
}

func (f *fakeTransport) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeCapturer struct {
	err     error
	mu      sync.Mutex
	onFrame func([]float32)
	stops   atomic.Int32
}

func (c *fakeCapturer) Start(onFrame func([]float32)) (voice.CaptureHandle, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.mu.Lock()
	c.onFrame = onFrame
	c.mu.Unlock()
	return c, nil
}

func (c *fakeCapturer) Stop() error {
	c.stops.Add(1)
	return nil
}

func (c *fakeCapturer) push(samples []float32) {
	c.mu.Lock()
	fn := c.onFrame
	c.mu.Unlock()
	fn(samples)
}

type fakePlayback struct {
	done chan struct{}
	once sync.Once
}

func (p *fakePlayback) Stop()                 { p.once.Do(func() { close(p.done) }) }
func (p *fakePlayback) Done() <-chan struct{} { return p.done }

type fakeOutput struct {
	mu     sync.Mutex
	played []*fakePlayback
}

func (o *fakeOutput) Now() time.Duration { return 0 }

func (o *fakeOutput) Play(voice.Buffer, time.Duration) (voice.Playback, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p := &fakePlayback{done: make(chan struct{})}
	o.played = append(o.played, p)
	return p, nil
}

func (o *fakeOutput) playback(i int) *fakePlayback {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.played[i]
}

type fakeSink struct {
	mu   sync.Mutex
	msgs []types.Message
}

func (s *fakeSink) AppendMessages(msgs ...types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msgs...)
	return nil
}

func (s *fakeSink) messages() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.Message(nil), s.msgs...)
}

type agentHarness struct {
	agent     *Agent
	transport *fakeTransport
	capturer  *fakeCapturer
	output    *fakeOutput
	sink      *fakeSink
}

func newAgentHarness() *agentHarness {
	h := &agentHarness{
		transport: newFakeTransport(),
		capturer:  &fakeCapturer{},
		output:    &fakeOutput{},
		sink:      &fakeSink{},
	}
	h.agent = NewAgent(func() Transport { return h.transport }, h.capturer, h.output, h.sink)
	return h
}

func (h *agentHarness) startListening(t *testing.T) {
	t.Helper()
	if err := h.agent.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	h.transport.openResult <- nil
	waitState(t, h.agent, StateListening)
}

func waitState(t *testing.T, a *Agent, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state = %v, want %v", a.State(), want)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func waitNotice(t *testing.T, a *Agent) error {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-a.Events():
			if n, ok := ev.(NoticeEvent); ok {
				return n.Err
			}
		case <-timeout:
			t.Fatal("timed out waiting for notice")
			return nil
		}
	}
}

func pcmChunk(samples int) []byte {
	return voice.EncodePCM16(make([]float32, samples))
}

func TestAgent_StopBeforeOpen(t *testing.T) {
	h := newAgentHarness()
	if err := h.agent.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := h.agent.State(); got != StateConnecting {
		t.Fatalf("state = %v, want connecting", got)
	}

	h.agent.Stop()

	if got := h.agent.State(); got != StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
	if got := h.capturer.stops.Load(); got != 1 {
		t.Errorf("capture stops = %d, want 1", got)
	}
	if got := h.transport.closes.Load(); got == 0 {
		t.Error("transport was not closed")
	}

	h.agent.Stop()
	if got := h.capturer.stops.Load(); got != 1 {
		t.Errorf("second Stop released capture again: stops = %d", got)
	}
}

func TestAgent_PermissionDenied(t *testing.T) {
	h := newAgentHarness()
	h.capturer.err = core.NewPermissionDeniedError("no microphone", nil)

	err := h.agent.Start(context.Background())
	if !core.IsType(err, core.ErrPermissionDenied) {
		t.Fatalf("Start() error = %v, want permission denied", err)
	}
	if got := h.agent.State(); got != StateIdle {
		t.Errorf("state = %v, want idle", got)
	}
	if got := h.transport.opens.Load(); got != 0 {
		t.Errorf("transport opened %d times, want 0", got)
	}
	if notice := waitNotice(t, h.agent); !core.IsType(notice, core.ErrPermissionDenied) {
		t.Errorf("notice = %v, want permission denied", notice)
	}
}

func TestAgent_StartTwiceRejected(t *testing.T) {
	h := newAgentHarness()
	h.startListening(t)
	defer h.agent.Stop()

	if err := h.agent.Start(context.Background()); !core.IsType(err, core.ErrInvalidRequest) {
		t.Fatalf("second Start() error = %v, want invalid request", err)
	}
}

func TestAgent_OpenFailure(t *testing.T) {
	h := newAgentHarness()
	if err := h.agent.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	h.transport.openResult <- errors.New("handshake rejected")

	notice := waitNotice(t, h.agent)
	if !core.IsType(notice, core.ErrConnectionFailure) {
		t.Errorf("notice = %v, want connection failure", notice)
	}
	waitState(t, h.agent, StateIdle)
	waitFor(t, func() bool { return h.capturer.stops.Load() == 1 })
}

func TestAgent_TurnCommit(t *testing.T) {
	h := newAgentHarness()
	h.startListening(t)
	defer h.agent.Stop()

	h.transport.events <- InputTranscriptEvent{Text: "hi"}
	h.transport.events <- OutputTranscriptEvent{Text: "hello"}
	h.transport.events <- TurnCompleteEvent{}
	waitFor(t, func() bool { return len(h.sink.messages()) == 2 })

	msgs := h.sink.messages()
	if msgs[0].Sender != types.SenderUser || msgs[0].Text != "hi" {
		t.Errorf("first message = %+v, want user hi", msgs[0])
	}
	if msgs[1].Sender != types.SenderAI || msgs[1].Text != "hello" {
		t.Errorf("second message = %+v, want ai hello", msgs[1])
	}
	if msgs[0].ID == "" || msgs[0].ID == msgs[1].ID {
		t.Errorf("messages need distinct ids, got %q and %q", msgs[0].ID, msgs[1].ID)
	}

	// An empty turn appends nothing; the following turn proves ordering.
	h.transport.events <- TurnCompleteEvent{}
	h.transport.events <- OutputTranscriptEvent{Text: "again"}
	h.transport.events <- TurnCompleteEvent{}
	waitFor(t, func() bool { return len(h.sink.messages()) >= 3 })

	msgs = h.sink.messages()
	if len(msgs) != 3 {
		t.Fatalf("len(messages) = %d, want 3", len(msgs))
	}
	if msgs[2].Sender != types.SenderAI || msgs[2].Text != "again" {
		t.Errorf("third message = %+v", msgs[2])
	}
}

func TestAgent_TranscriptDeltasAccumulate(t *testing.T) {
	h := newAgentHarness()
	h.startListening(t)
	defer h.agent.Stop()

	h.transport.events <- InputTranscriptEvent{Text: "what is "}
	h.transport.events <- InputTranscriptEvent{Text: "the time"}
	h.transport.events <- TurnCompleteEvent{}
	waitFor(t, func() bool { return len(h.sink.messages()) == 1 })

	if got := h.sink.messages()[0].Text; got != "what is the time" {
		t.Errorf("text = %q", got)
	}
}

func TestAgent_SpeakingAndBackToListening(t *testing.T) {
	h := newAgentHarness()
	h.startListening(t)
	defer h.agent.Stop()

	h.transport.events <- AudioChunkEvent{Data: pcmChunk(240)}
	waitState(t, h.agent, StateSpeaking)

	h.output.playback(0).Stop()
	waitState(t, h.agent, StateListening)
}

func TestAgent_InterruptFlushesPlayback(t *testing.T) {
	h := newAgentHarness()
	h.startListening(t)
	defer h.agent.Stop()

	h.transport.events <- AudioChunkEvent{Data: pcmChunk(2400)}
	h.transport.events <- AudioChunkEvent{Data: pcmChunk(2400)}
	waitState(t, h.agent, StateSpeaking)
	waitFor(t, func() bool {
		h.output.mu.Lock()
		defer h.output.mu.Unlock()
		return len(h.output.played) == 2
	})

	h.transport.events <- InterruptedEvent{}
	waitState(t, h.agent, StateListening)

	for i := 0; i < 2; i++ {
		select {
		case <-h.output.playback(i).Done():
		default:
			t.Errorf("playback %d still running after interrupt", i)
		}
	}
}

func TestAgent_MalformedAudioTearsDown(t *testing.T) {
	h := newAgentHarness()
	h.startListening(t)

	h.transport.events <- AudioChunkEvent{Data: []byte{0x01, 0x02, 0x03}}

	notice := waitNotice(t, h.agent)
	if !core.IsType(notice, core.ErrMalformedAudio) {
		t.Errorf("notice = %v, want malformed audio", notice)
	}
	waitState(t, h.agent, StateIdle)
	waitFor(t, func() bool { return h.capturer.stops.Load() == 1 && h.transport.closes.Load() >= 1 })
}

func TestAgent_UnexpectedClose(t *testing.T) {
	h := newAgentHarness()
	h.startListening(t)

	h.transport.events <- ClosedEvent{Err: core.NewConnectionFailureError("live connection dropped", nil)}

	notice := waitNotice(t, h.agent)
	if !core.IsType(notice, core.ErrConnectionFailure) {
		t.Errorf("notice = %v, want connection failure", notice)
	}
	waitState(t, h.agent, StateIdle)
}

func TestAgent_FramesDroppedUntilOpen(t *testing.T) {
	h := newAgentHarness()
	if err := h.agent.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer h.agent.Stop()

	h.capturer.push(make([]float32, 16))
	if got := h.transport.sentCount(); got != 0 {
		t.Fatalf("sent %d frames before open, want 0", got)
	}

	h.transport.openResult <- nil
	waitState(t, h.agent, StateListening)

	h.capturer.push([]float32{0.5, -0.5})
	if got := h.transport.sentCount(); got != 1 {
		t.Fatalf("sent %d frames after open, want 1", got)
	}
	h.transport.mu.Lock()
	frame := h.transport.sent[0]
	h.transport.mu.Unlock()
	if frame.MIMEType != voice.CaptureMIMEType {
		t.Errorf("MIMEType = %q, want %q", frame.MIMEType, voice.CaptureMIMEType)
	}
	if frame.Data != voice.EncodeFrame([]float32{0.5, -0.5}) {
		t.Errorf("frame data = %q", frame.Data)
	}
}

func TestAgent_ContextCancelStops(t *testing.T) {
	h := newAgentHarness()
	ctx, cancel := context.WithCancel(context.Background())
	if err := h.agent.Start(ctx); err != nil {
		t.Fatal(err)
	}
	h.transport.openResult <- nil
	waitState(t, h.agent, StateListening)

	cancel()
	waitState(t, h.agent, StateIdle)
	waitFor(t, func() bool { return h.capturer.stops.Load() == 1 })
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateConnecting, "connecting"},
		{StateListening, "listening"},
		{StateSpeaking, "speaking"},
		{StateError, "error"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
