package live

import (
	"time"

	"github.com/autonex-agency/autonex/pkg/core/voice"
)

// State represents the current state of the voice agent.
type State int

const (
	// StateIdle is the resting state; no resources are held.
	StateIdle State = iota
	// StateConnecting is while the microphone is held and the transport is opening.
	StateConnecting
	// StateListening is when audio is streaming up and nothing is playing.
	StateListening
	// StateSpeaking is when model audio is playing.
	StateSpeaking
	// StateError is entered on failure and is always followed by teardown to idle.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

const (
	// DefaultLiveModel is the native-audio model used for voice sessions.
	DefaultLiveModel = "gemini-2.5-flash-native-audio-preview-09-2025"

	defaultConnectTimeout = 15 * time.Second
	defaultFrameQueueSize = 64
	defaultEventQueueSize = 256
)

// TransportConfig holds the settings shared by both transports.
type TransportConfig struct {
	// Model is the live model identifier.
	Model string

	// SystemInstruction is an optional system prompt for the session.
	SystemInstruction string

	// Voice is an optional prebuilt voice name.
	Voice string

	// ConnectTimeout bounds Open when the caller's context has no deadline. Default: 15s.
	ConnectTimeout time.Duration

	// FrameQueueSize is the outbound frame buffer. Frames are dropped when it is full.
	FrameQueueSize int
}

// DefaultTransportConfig returns a TransportConfig with sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Model:          DefaultLiveModel,
		ConnectTimeout: defaultConnectTimeout,
		FrameQueueSize: defaultFrameQueueSize,
	}
}

func (c TransportConfig) withDefaults() TransportConfig {
	def := DefaultTransportConfig()
	if c.Model == "" {
		c.Model = def.Model
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.FrameQueueSize <= 0 {
		c.FrameQueueSize = def.FrameQueueSize
	}
	return c
}

// AgentConfig configures an Agent.
type AgentConfig struct {
	// PlaybackSampleRate is the rate of inbound model audio. Default: 24000.
	PlaybackSampleRate int

	// PlaybackChannels is the channel count of inbound model audio. Default: 1.
	PlaybackChannels int
}

// DefaultAgentConfig returns an AgentConfig with the protocol defaults.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		PlaybackSampleRate: voice.PlaybackSampleRate,
		PlaybackChannels:   1,
	}
}
