package voice

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/autonex-agency/autonex/pkg/core"
)

// OtoOutput is an Output backed by a single oto player. The player pulls from a
// timeline mixer; the clock is the number of frames the device has consumed.
type OtoOutput struct {
	otoCtx *oto.Context
	player *oto.Player
	mixer  *mixer
}

// NewOtoOutput opens the default output device.
func NewOtoOutput(sampleRate, channels int) (*OtoOutput, error) {
	if sampleRate <= 0 {
		sampleRate = PlaybackSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio output: %w", err)
	}
	<-ready

	m := newMixer(sampleRate, channels)
	player := otoCtx.NewPlayer(m)
	player.Play()

	return &OtoOutput{otoCtx: otoCtx, player: player, mixer: m}, nil
}

// Now implements Output.
func (o *OtoOutput) Now() time.Duration {
	return o.mixer.now()
}

// Play implements Output.
func (o *OtoOutput) Play(buf Buffer, at time.Duration) (Playback, error) {
	v, err := o.mixer.schedule(buf, at)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Close stops all audio and releases the player.
func (o *OtoOutput) Close() error {
	o.mixer.stopAll()
	return o.player.Close()
}

// mixer is an io.Reader that renders scheduled voices as float32 little-endian.
type mixer struct {
	rate     int
	channels int

	mu     sync.Mutex
	pos    int64 // frames rendered so far
	voices []*voice
}

func newMixer(rate, channels int) *mixer {
	return &mixer{rate: rate, channels: channels}
}

func (m *mixer) now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Duration(m.pos) * time.Second / time.Duration(m.rate)
}

// frameAt rounds a clock time to the nearest frame. Buffer durations are
// truncated to whole nanoseconds, so truncating here would start chained
// buffers one frame early.
func (m *mixer) frameAt(at time.Duration) int64 {
	return (int64(at)*int64(m.rate) + int64(time.Second)/2) / int64(time.Second)
}

func (m *mixer) schedule(buf Buffer, at time.Duration) (*voice, error) {
	if buf.SampleRate != m.rate {
		return nil, core.NewInvalidRequestError(fmt.Sprintf("buffer rate %d does not match output rate %d", buf.SampleRate, m.rate))
	}
	if buf.Channels != m.channels {
		return nil, core.NewInvalidRequestError(fmt.Sprintf("buffer has %d channels, output has %d", buf.Channels, m.channels))
	}
	v := &voice{
		samples: buf.Samples,
		start:   m.frameAt(at),
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(v.samples) == 0 {
		v.finish()
		return v, nil
	}
	m.voices = append(m.voices, v)
	return v, nil
}

func (m *mixer) stopAll() {
	m.mu.Lock()
	voices := m.voices
	m.voices = nil
	m.mu.Unlock()
	for _, v := range voices {
		v.Stop()
	}
}

// Read renders len(p)/frameBytes frames. Silence is written when nothing is scheduled.
func (m *mixer) Read(p []byte) (int, error) {
	frameBytes := 4 * m.channels
	frames := len(p) / frameBytes
	if frames == 0 {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.voices[:0]
	for _, v := range m.voices {
		if v.isStopped() {
			v.finish()
			continue
		}
		live = append(live, v)
	}

	for i := 0; i < frames*m.channels; i++ {
		frame := m.pos + int64(i/m.channels)
		ch := i % m.channels
		var sum float32
		for _, v := range live {
			sum += v.sampleAt(frame, ch, m.channels)
		}
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(sum))
	}
	m.pos += int64(frames)

	n := 0
	for _, v := range live {
		if v.end(m.channels) <= m.pos {
			v.finish()
			continue
		}
		live[n] = v
		n++
	}
	live = live[:n]
	for i := len(live); i < len(m.voices); i++ {
		m.voices[i] = nil
	}
	m.voices = live

	return frames * frameBytes, nil
}

type voice struct {
	samples []float32
	start   int64

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
	once    sync.Once
}

func (v *voice) sampleAt(frame int64, ch, channels int) float32 {
	idx := (frame-v.start)*int64(channels) + int64(ch)
	if idx < 0 || idx >= int64(len(v.samples)) {
		return 0
	}
	return v.samples[idx]
}

func (v *voice) end(channels int) int64 {
	return v.start + int64(len(v.samples)/channels)
}

func (v *voice) isStopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

func (v *voice) finish() {
	v.once.Do(func() { close(v.done) })
}

// Stop implements Playback.
func (v *voice) Stop() {
	v.mu.Lock()
	v.stopped = true
	v.mu.Unlock()
	v.finish()
}

// Done implements Playback.
func (v *voice) Done() <-chan struct{} {
	return v.done
}
