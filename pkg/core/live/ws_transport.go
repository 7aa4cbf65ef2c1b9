package live

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autonex-agency/autonex/pkg/core"
)

// DefaultLiveURL is the public BidiGenerateContent websocket endpoint.
const DefaultLiveURL = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// WSTransport speaks the BidiGenerateContent JSON protocol over a raw websocket.
type WSTransport struct {
	url    string
	apiKey string
	header http.Header
	config TransportConfig
	logger *slog.Logger

	*pump

	lifeMu  sync.Mutex
	conn    *websocket.Conn
	started bool
	writeMu sync.Mutex
}

// WSOption configures a WSTransport.
type WSOption func(*WSTransport)

// WithURL overrides the websocket endpoint.
func WithURL(u string) WSOption {
	return func(t *WSTransport) { t.url = u }
}

// WithHeader adds headers to the websocket handshake.
func WithHeader(h http.Header) WSOption {
	return func(t *WSTransport) { t.header = h.Clone() }
}

// WithLogger sets the transport logger.
func WithLogger(l *slog.Logger) WSOption {
	return func(t *WSTransport) { t.logger = l }
}

// NewWSTransport creates an unopened websocket transport.
func NewWSTransport(apiKey string, config TransportConfig, opts ...WSOption) *WSTransport {
	t := &WSTransport{
		url:    DefaultLiveURL,
		apiKey: apiKey,
		header: make(http.Header),
		config: config.withDefaults(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	t.pump = newPump(t.config.FrameQueueSize, t.logger)
	return t
}

// Events implements Transport.
func (t *WSTransport) Events() <-chan ServerEvent {
	return t.events
}

// SendAudio implements Transport.
func (t *WSTransport) SendAudio(frame AudioFrame) error {
	return t.enqueue(frame)
}

// Open implements Transport.
func (t *WSTransport) Open(ctx context.Context) error {
	if t.closed.Load() {
		return ErrClosed
	}
	t.lifeMu.Lock()
	started := t.started
	t.lifeMu.Unlock()
	if started {
		return core.NewInvalidRequestError("transport already opened")
	}

	wsURL, err := t.endpoint()
	if err != nil {
		return err
	}

	dialCtx := ctx
	var cancel context.CancelFunc
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		dialCtx, cancel = context.WithTimeout(ctx, t.config.ConnectTimeout)
		defer cancel()
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, t.header)
	if err != nil {
		if resp != nil {
			return core.NewConnectionFailureError(fmt.Sprintf("websocket dial failed (status %d)", resp.StatusCode), err)
		}
		return core.NewConnectionFailureError("websocket dial failed", err)
	}

	// Unblock the handshake read if the caller gives up.
	stopWatch := context.AfterFunc(dialCtx, func() { _ = conn.Close() })
	defer stopWatch()

	if err := conn.WriteJSON(t.setupMessage()); err != nil {
		_ = conn.Close()
		return core.NewConnectionFailureError("send live setup", err)
	}

	deadline := time.Now().Add(t.config.ConnectTimeout)
	if d, ok := dialCtx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetReadDeadline(deadline)
	_, payload, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return core.NewConnectionFailureError("read setup acknowledgement", err)
	}
	_ = conn.SetReadDeadline(time.Time{})

	var msg wsServerMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		_ = conn.Close()
		return core.NewConnectionFailureError("decode setup acknowledgement", err)
	}
	switch {
	case msg.SetupComplete != nil:
	case msg.Error != nil:
		_ = conn.Close()
		return &core.Error{
			Type:    core.ErrConnectionFailure,
			Message: strings.TrimSpace(msg.Error.Message),
			Code:    msg.Error.code(),
		}
	default:
		_ = conn.Close()
		return core.NewConnectionFailureError("unexpected first live message", nil)
	}

	if !stopWatch() {
		// The context fired between the read and here; the conn is already closed.
		return core.NewConnectionFailureError("open cancelled", dialCtx.Err())
	}

	t.lifeMu.Lock()
	if t.closed.Load() {
		t.lifeMu.Unlock()
		_ = conn.Close()
		return ErrClosed
	}
	t.conn = conn
	t.started = true
	t.opened.Store(true)
	go t.readLoop()
	go t.writeLoop()
	t.lifeMu.Unlock()

	t.logger.Debug("live websocket open", "model", t.config.Model)
	return nil
}

// Close implements Transport.
func (t *WSTransport) Close() error {
	if !t.shutdown() {
		return nil
	}
	t.lifeMu.Lock()
	started := t.started
	t.lifeMu.Unlock()
	if !started {
		return nil
	}
	t.writeMu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(2*time.Second))
	t.writeMu.Unlock()
	_ = t.conn.Close()
	<-t.done
	return nil
}

func (t *WSTransport) endpoint() (string, error) {
	u, err := url.Parse(t.url)
	if err != nil {
		return "", core.NewInvalidRequestError(fmt.Sprintf("invalid live url %q: %v", t.url, err))
	}
	if t.apiKey != "" {
		q := u.Query()
		q.Set("key", t.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (t *WSTransport) setupMessage() wsSetupMessage {
	model := t.config.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	setup := wsSetup{
		Model: model,
		GenerationConfig: wsGenerationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if t.config.Voice != "" {
		setup.GenerationConfig.SpeechConfig = &wsSpeechConfig{
			VoiceConfig: wsVoiceConfig{PrebuiltVoiceConfig: wsPrebuiltVoice{VoiceName: t.config.Voice}},
		}
	}
	if s := strings.TrimSpace(t.config.SystemInstruction); s != "" {
		setup.SystemInstruction = &wsContent{Parts: []wsPart{{Text: s}}}
	}
	return wsSetupMessage{Setup: setup}
}

func (t *WSTransport) writeLoop() {
	for {
		select {
		case <-t.stop:
			return
		case frame := <-t.frames:
			msg := wsRealtimeInputMessage{
				RealtimeInput: wsRealtimeInput{
					Audio: &wsBlob{Data: frame.Data, MIMEType: frame.MIMEType},
				},
			}
			t.writeMu.Lock()
			err := t.conn.WriteJSON(msg)
			t.writeMu.Unlock()
			if err != nil {
				if !t.closed.Load() {
					t.logger.Warn("live audio send failed", "error", err)
				}
				return
			}
		}
	}
}

func (t *WSTransport) readLoop() {
	var closeErr error
	defer func() { t.finish(closeErr) }()

	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			if t.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			closeErr = core.NewConnectionFailureError("live connection dropped", err)
			return
		}

		var msg wsServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			closeErr = core.NewConnectionFailureError("decode live message", err)
			return
		}
		if !t.dispatch(msg) {
			return
		}
	}
}

// dispatch emits the events carried by msg. Returns false once the transport is stopping.
func (t *WSTransport) dispatch(msg wsServerMessage) bool {
	if msg.GoAway != nil {
		t.logger.Warn("live server going away", "time_left", msg.GoAway.TimeLeft)
	}
	if msg.ServerContent != nil {
		content, err := msg.ServerContent.decode()
		for _, ev := range content.expand() {
			if !t.emit(ev) {
				return false
			}
		}
		if err != nil {
			if !t.emit(ErrorEvent{Err: err}) {
				return false
			}
		}
	}
	if msg.Error != nil {
		err := &core.Error{
			Type:    core.ErrConnectionFailure,
			Message: strings.TrimSpace(msg.Error.Message),
			Code:    msg.Error.code(),
		}
		if !t.emit(ErrorEvent{Err: err}) {
			return false
		}
	}
	return true
}

// Wire types for the BidiGenerateContent protocol.

type wsSetupMessage struct {
	Setup wsSetup `json:"setup"`
}

type wsSetup struct {
	Model                    string             `json:"model"`
	GenerationConfig         wsGenerationConfig `json:"generationConfig"`
	SystemInstruction        *wsContent         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}          `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}          `json:"outputAudioTranscription,omitempty"`
}

type wsGenerationConfig struct {
	ResponseModalities []string        `json:"responseModalities"`
	SpeechConfig       *wsSpeechConfig `json:"speechConfig,omitempty"`
}

type wsSpeechConfig struct {
	VoiceConfig wsVoiceConfig `json:"voiceConfig"`
}

type wsVoiceConfig struct {
	PrebuiltVoiceConfig wsPrebuiltVoice `json:"prebuiltVoiceConfig"`
}

type wsPrebuiltVoice struct {
	VoiceName string `json:"voiceName"`
}

type wsContent struct {
	Role  string   `json:"role,omitempty"`
	Parts []wsPart `json:"parts"`
}

type wsPart struct {
	Text       string  `json:"text,omitempty"`
	InlineData *wsBlob `json:"inlineData,omitempty"`
}

type wsBlob struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wsRealtimeInputMessage struct {
	RealtimeInput wsRealtimeInput `json:"realtimeInput"`
}

type wsRealtimeInput struct {
	Audio *wsBlob `json:"audio,omitempty"`
}

type wsServerMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *wsServerContent `json:"serverContent,omitempty"`
	GoAway        *wsGoAway        `json:"goAway,omitempty"`
	Error         *wsError         `json:"error,omitempty"`
}

type wsServerContent struct {
	ModelTurn           *wsContent       `json:"modelTurn,omitempty"`
	TurnComplete        bool             `json:"turnComplete,omitempty"`
	Interrupted         bool             `json:"interrupted,omitempty"`
	InputTranscription  *wsTranscription `json:"inputTranscription,omitempty"`
	OutputTranscription *wsTranscription `json:"outputTranscription,omitempty"`
}

type wsTranscription struct {
	Text string `json:"text"`
}

type wsGoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

type wsError struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func (e *wsError) code() string {
	if e.Status != "" {
		return e.Status
	}
	if e.Code != 0 {
		return strconv.Itoa(e.Code)
	}
	return ""
}

// decode converts the wire content. Audio that is not valid base64 is reported as
// a malformed audio error alongside whatever else decoded cleanly.
func (c *wsServerContent) decode() (serverContent, error) {
	out := serverContent{
		TurnComplete: c.TurnComplete,
		Interrupted:  c.Interrupted,
	}
	if c.InputTranscription != nil {
		out.InputText = c.InputTranscription.Text
	}
	if c.OutputTranscription != nil {
		out.OutputText = c.OutputTranscription.Text
	}
	var err error
	if c.ModelTurn != nil {
		for _, part := range c.ModelTurn.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			pcm, decErr := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if decErr != nil {
				err = &core.Error{Type: core.ErrMalformedAudio, Message: "audio chunk is not valid base64", Err: decErr}
				continue
			}
			out.Audio = append(out.Audio, pcm)
		}
	}
	return out, err
}
