package voice

import (
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/autonex-agency/autonex/pkg/core"
)

func readFrames(t *testing.T, m *mixer, frames int) []float32 {
	t.Helper()
	p := make([]byte, frames*4*m.channels)
	n, err := m.Read(p)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if n != len(p) {
		t.Fatalf("Read() = %d bytes, want %d", n, len(p))
	}
	out := make([]float32, frames*m.channels)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
	}
	return out
}

func isDone(v *voice) bool {
	select {
	case <-v.Done():
		return true
	default:
		return false
	}
}

func TestMixer_RendersAtScheduledTime(t *testing.T) {
	m := newMixer(1000, 1) // 1 frame per millisecond
	v, err := m.schedule(Buffer{Samples: []float32{0.5, 0.25}, SampleRate: 1000, Channels: 1}, 2*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	got := readFrames(t, m, 5)
	want := []float32{0, 0, 0.5, 0.25, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %v, want %v", i, got[i], want[i])
		}
	}
	if !isDone(v) {
		t.Error("voice should be done after its last frame was rendered")
	}
	if m.now() != 5*time.Millisecond {
		t.Errorf("now() = %v, want 5ms", m.now())
	}
}

func TestMixer_StopSilencesVoice(t *testing.T) {
	m := newMixer(1000, 1)
	v, err := m.schedule(Buffer{Samples: []float32{1, 1, 1, 1}, SampleRate: 1000, Channels: 1}, 0)
	if err != nil {
		t.Fatal(err)
	}

	first := readFrames(t, m, 2)
	if first[0] != 1 {
		t.Errorf("frame 0 = %v, want 1", first[0])
	}
	v.Stop()
	v.Stop()
	if !isDone(v) {
		t.Fatal("Stop should close Done")
	}

	rest := readFrames(t, m, 2)
	for i, s := range rest {
		if s != 0 {
			t.Errorf("frame %d after stop = %v, want silence", i, s)
		}
	}
}

func TestMixer_RejectsRateMismatch(t *testing.T) {
	m := newMixer(PlaybackSampleRate, 1)
	_, err := m.schedule(Buffer{Samples: []float32{0}, SampleRate: CaptureSampleRate, Channels: 1}, 0)
	if !core.IsType(err, core.ErrInvalidRequest) {
		t.Fatalf("expected invalid request error, got %v", err)
	}
}

func TestMixer_EmptyBufferIsDoneImmediately(t *testing.T) {
	m := newMixer(1000, 1)
	v, err := m.schedule(Buffer{SampleRate: 1000, Channels: 1}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !isDone(v) {
		t.Error("empty buffer should finish immediately")
	}
}

func TestScheduler_ChainsOnMixerWithoutOverlap(t *testing.T) {
	out := &OtoOutput{mixer: newMixer(PlaybackSampleRate, 1)}
	s := NewScheduler(out, nil)

	const frames = 1000 // not a multiple of 3, so each duration is truncated
	for i := 0; i < 3; i++ {
		samples := make([]float32, frames)
		for j := range samples {
			samples[j] = 1
		}
		if _, err := s.Enqueue(Buffer{Samples: samples, SampleRate: PlaybackSampleRate, Channels: 1}); err != nil {
			t.Fatal(err)
		}
	}

	got := readFrames(t, out.mixer, 3*frames+10)
	for i, v := range got {
		want := float32(1)
		if i >= 3*frames {
			want = 0
		}
		if v != want {
			t.Fatalf("frame %d = %v, want %v", i, v, want)
		}
	}
}

func TestMixer_FrameAtRounds(t *testing.T) {
	m := newMixer(PlaybackSampleRate, 1)
	tests := []struct {
		at   time.Duration
		want int64
	}{
		{0, 0},
		{41666666 * time.Nanosecond, 1000},
		{83333332 * time.Nanosecond, 2000},
		{time.Second, PlaybackSampleRate},
	}
	for _, tt := range tests {
		if got := m.frameAt(tt.at); got != tt.want {
			t.Errorf("frameAt(%v) = %d, want %d", tt.at, got, tt.want)
		}
	}
}
