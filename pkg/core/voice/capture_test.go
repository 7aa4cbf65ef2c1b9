package voice

import (
	"encoding/binary"
	"math"
	"testing"
)

func f32le(samples ...float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(s))
	}
	return out
}

func TestFramer_FixedSizeFrames(t *testing.T) {
	var frames [][]float32
	f := newFramer(3, func(s []float32) { frames = append(frames, s) })

	f.write(f32le(0.1, 0.2))
	if len(frames) != 0 {
		t.Fatalf("got %d frames before a full frame was buffered", len(frames))
	}
	f.write(f32le(0.3, 0.4, 0.5, 0.6, 0.7))

	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2", len(frames))
	}
	want := [][]float32{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}}
	for i := range want {
		for j := range want[i] {
			if frames[i][j] != want[i][j] {
				t.Errorf("frames[%d][%d] = %v, want %v", i, j, frames[i][j], want[i][j])
			}
		}
	}
	if len(f.pending) != 1 {
		t.Errorf("pending = %d samples, want 1", len(f.pending))
	}
}

func TestFramer_FramesAreNotReused(t *testing.T) {
	var frames [][]float32
	f := newFramer(2, func(s []float32) { frames = append(frames, s) })

	f.write(f32le(1, 2, 3, 4))
	if frames[0][0] != 1 || frames[1][0] != 3 {
		t.Errorf("frames share backing storage: %v", frames)
	}
}

func TestNewMalgoCapturer_Defaults(t *testing.T) {
	c := NewMalgoCapturer(CaptureConfig{}, nil)
	if c.config != DefaultCaptureConfig() {
		t.Errorf("config = %+v, want defaults", c.config)
	}
}
