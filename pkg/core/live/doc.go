// Package live implements realtime voice conversations against a streaming
// native-audio model.
//
// # Architecture
//
//   - Transport: a duplex connection to the live endpoint. WSTransport speaks the
//     BidiGenerateContent JSON protocol over a websocket; GenAITransport goes
//     through the genai SDK. Both decode each server message once into ServerEvent
//     values.
//   - Agent: the state machine that owns one session's microphone capture,
//     transport and playback scheduler, and writes completed turns to a TurnSink.
//
// # Data Flow
//
//	Mic → voice.Capturer → EncodeFrame → Transport.SendAudio
//
//	Transport.Events → Agent → DecodePCM16 → voice.Scheduler → speaker
//	                     │
//	                     └── transcripts → TurnSink (on turn complete)
//
// # Event Order
//
// A single server message may carry several fields. They are delivered as
// separate events in a fixed order: input transcript, output transcript, turn
// complete, interrupted, audio. Transcript text therefore lands in the turn it
// belongs to before the completion signal clears the accumulators.
//
// # State Machine
//
//	idle → connecting → listening ⇄ speaking → idle
//
// Any failure moves the agent to error and then through a full teardown to idle.
package live
