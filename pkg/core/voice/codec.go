package voice

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/autonex-agency/autonex/pkg/core"
)

// Protocol constants for the live voice endpoint.
const (
	CaptureSampleRate  = 16000
	PlaybackSampleRate = 24000
	CaptureMIMEType    = "audio/pcm;rate=16000"

	pcmScale = 32768.0
)

// Buffer is decoded, playable audio. Samples are interleaved when Channels > 1.
type Buffer struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames in the buffer.
func (b Buffer) Frames() int {
	ch := b.Channels
	if ch <= 0 {
		ch = 1
	}
	return len(b.Samples) / ch
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// EncodePCM16 converts float samples in [-1, 1] to 16-bit little-endian PCM.
// Each sample is scaled by 32768 and rounded; values past the int16 range saturate.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := math.Round(float64(s) * pcmScale)
		if v > math.MaxInt16 {
			v = math.MaxInt16
		} else if v < math.MinInt16 {
			v = math.MinInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out
}

// EncodeFrame encodes samples as base64 PCM16 for the wire.
func EncodeFrame(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples))
}

// DecodePCM16 converts 16-bit little-endian PCM into a playable buffer.
func DecodePCM16(pcm []byte, sampleRate, channels int) (Buffer, error) {
	if len(pcm)%2 != 0 {
		return Buffer{}, core.NewMalformedAudioError(fmt.Sprintf("pcm16 payload has odd length %d", len(pcm)))
	}
	if channels <= 0 {
		channels = 1
	}
	samples := make([]float32, len(pcm)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(float64(v) / pcmScale)
	}
	return Buffer{Samples: samples, SampleRate: sampleRate, Channels: channels}, nil
}

// DecodeFrame base64-decodes a wire frame and converts it with DecodePCM16.
func DecodeFrame(data string, sampleRate, channels int) (Buffer, error) {
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return Buffer{}, &core.Error{
			Type:    core.ErrMalformedAudio,
			Message: "audio frame is not valid base64",
			Err:     err,
		}
	}
	return DecodePCM16(pcm, sampleRate, channels)
}

// RMS returns the root-mean-square level of samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
