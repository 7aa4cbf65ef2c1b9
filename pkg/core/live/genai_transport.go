package live

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/autonex-agency/autonex/pkg/core"
)

// GenAITransport opens the live session through the genai SDK.
type GenAITransport struct {
	client *genai.Client
	config TransportConfig
	logger *slog.Logger

	*pump

	lifeMu  sync.Mutex
	session *genai.Session
	started bool
}

// NewGenAITransport creates an unopened transport on top of client.
func NewGenAITransport(client *genai.Client, config TransportConfig, logger *slog.Logger) *GenAITransport {
	if logger == nil {
		logger = slog.Default()
	}
	config = config.withDefaults()
	return &GenAITransport{
		client: client,
		config: config,
		logger: logger,
		pump:   newPump(config.FrameQueueSize, logger),
	}
}

// Events implements Transport.
func (t *GenAITransport) Events() <-chan ServerEvent {
	return t.events
}

// SendAudio implements Transport.
func (t *GenAITransport) SendAudio(frame AudioFrame) error {
	return t.enqueue(frame)
}

// Open implements Transport.
func (t *GenAITransport) Open(ctx context.Context) error {
	if t.client == nil {
		return core.NewInvalidRequestError("genai client must not be nil")
	}
	if t.closed.Load() {
		return ErrClosed
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, t.config.ConnectTimeout)
		defer cancel()
	}

	session, err := t.client.Live.Connect(dialCtx, t.config.Model, t.connectConfig())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return core.NewConnectionFailureError("connect live session", err)
	}

	t.lifeMu.Lock()
	if t.closed.Load() {
		t.lifeMu.Unlock()
		_ = session.Close()
		return ErrClosed
	}
	t.session = session
	t.started = true
	t.opened.Store(true)
	go t.readLoop()
	go t.writeLoop()
	t.lifeMu.Unlock()

	t.logger.Debug("live genai session open", "model", t.config.Model)
	return nil
}

// Close implements Transport.
func (t *GenAITransport) Close() error {
	if !t.shutdown() {
		return nil
	}
	t.lifeMu.Lock()
	started := t.started
	t.lifeMu.Unlock()
	if !started {
		return nil
	}
	err := t.session.Close()
	<-t.done
	return err
}

func (t *GenAITransport) connectConfig() *genai.LiveConnectConfig {
	cfg := &genai.LiveConnectConfig{
		ResponseModalities:       []genai.Modality{genai.Modality("AUDIO")},
		InputAudioTranscription:  &genai.AudioTranscriptionConfig{},
		OutputAudioTranscription: &genai.AudioTranscriptionConfig{},
	}
	if s := strings.TrimSpace(t.config.SystemInstruction); s != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: s}},
		}
	}
	if t.config.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: t.config.Voice},
			},
		}
	}
	return cfg
}

func (t *GenAITransport) writeLoop() {
	for {
		select {
		case <-t.stop:
			return
		case frame := <-t.frames:
			pcm, err := base64.StdEncoding.DecodeString(frame.Data)
			if err != nil {
				t.logger.Warn("dropping undecodable audio frame", "error", err)
				continue
			}
			err = t.session.SendRealtimeInput(genai.LiveRealtimeInput{
				Audio: &genai.Blob{Data: pcm, MIMEType: frame.MIMEType},
			})
			if err != nil {
				if !t.closed.Load() {
					t.logger.Warn("live audio send failed", "error", err)
				}
				return
			}
		}
	}
}

func (t *GenAITransport) readLoop() {
	var closeErr error
	defer func() { t.finish(closeErr) }()

	for {
		msg, err := t.session.Receive()
		if err != nil {
			if !t.closed.Load() {
				closeErr = core.NewConnectionFailureError("live connection dropped", err)
			}
			return
		}
		if msg.GoAway != nil {
			t.logger.Warn("live server going away")
		}
		for _, ev := range decodeLiveMessage(msg).expand() {
			if !t.emit(ev) {
				return
			}
		}
	}
}

// decodeLiveMessage maps an SDK message onto the transport-neutral shape.
func decodeLiveMessage(msg *genai.LiveServerMessage) serverContent {
	var out serverContent
	if msg == nil || msg.ServerContent == nil {
		return out
	}
	sc := msg.ServerContent
	out.TurnComplete = sc.TurnComplete
	out.Interrupted = sc.Interrupted
	if sc.InputTranscription != nil {
		out.InputText = sc.InputTranscription.Text
	}
	if sc.OutputTranscription != nil {
		out.OutputText = sc.OutputTranscription.Text
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				out.Audio = append(out.Audio, part.InlineData.Data)
			}
		}
	}
	return out
}
