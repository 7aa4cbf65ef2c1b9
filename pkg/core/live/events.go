package live

import (
	"github.com/autonex-agency/autonex/pkg/core/types"
)

// ServerEvent is one decoded event from the live voice endpoint.
//
// The set of implementations is closed; consumers switch over the concrete types.
type ServerEvent interface {
	serverEventType() string
}

// InputTranscriptEvent carries a fragment of the server's transcript of the user's speech.
type InputTranscriptEvent struct {
	Text string
}

func (InputTranscriptEvent) serverEventType() string { return "input_transcript" }

// OutputTranscriptEvent carries a fragment of the transcript of the model's speech.
type OutputTranscriptEvent struct {
	Text string
}

func (OutputTranscriptEvent) serverEventType() string { return "output_transcript" }

// TurnCompleteEvent marks the end of a model turn.
type TurnCompleteEvent struct{}

func (TurnCompleteEvent) serverEventType() string { return "turn_complete" }

// InterruptedEvent signals that the user started speaking over the model.
type InterruptedEvent struct{}

func (InterruptedEvent) serverEventType() string { return "interrupted" }

// AudioChunkEvent carries raw PCM16 audio at the playback sample rate.
type AudioChunkEvent struct {
	Data []byte
}

func (AudioChunkEvent) serverEventType() string { return "audio_chunk" }

// ErrorEvent reports an error sent by the server or raised while decoding a message.
type ErrorEvent struct {
	Err error
}

func (ErrorEvent) serverEventType() string { return "error" }

// ClosedEvent is the last event a transport delivers. Err is nil for a clean close.
type ClosedEvent struct {
	Err error
}

func (ClosedEvent) serverEventType() string { return "closed" }

// serverContent is the transport-neutral shape of one server message.
type serverContent struct {
	InputText    string
	OutputText   string
	TurnComplete bool
	Interrupted  bool
	Audio        [][]byte
}

// expand turns one server message into events in the fixed processing order:
// transcripts, then completion signals, then audio.
func (c serverContent) expand() []ServerEvent {
	var events []ServerEvent
	if c.InputText != "" {
		events = append(events, InputTranscriptEvent{Text: c.InputText})
	}
	if c.OutputText != "" {
		events = append(events, OutputTranscriptEvent{Text: c.OutputText})
	}
	if c.TurnComplete {
		events = append(events, TurnCompleteEvent{})
	}
	if c.Interrupted {
		events = append(events, InterruptedEvent{})
	}
	for _, data := range c.Audio {
		if len(data) > 0 {
			events = append(events, AudioChunkEvent{Data: data})
		}
	}
	return events
}

// AgentEvent is emitted by Agent.Events().
type AgentEvent interface {
	// EventType returns the event type string.
	EventType() string
}

// StateChangedEvent is emitted on every state transition.
type StateChangedEvent struct {
	From State
	To   State
}

func (e StateChangedEvent) EventType() string { return "state.changed" }

// NoticeEvent is a user-facing failure notice.
type NoticeEvent struct {
	Err error
}

func (e NoticeEvent) EventType() string { return "notice" }

// TurnCommittedEvent is emitted after a completed voice turn is written to the sink.
type TurnCommittedEvent struct {
	Messages []types.Message
}

func (e TurnCommittedEvent) EventType() string { return "turn.committed" }
