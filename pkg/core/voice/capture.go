package voice

import (
	"encoding/binary"
	"log/slog"
	"math"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/autonex-agency/autonex/pkg/core"
)

// DefaultFrameSamples is the number of samples delivered per capture callback.
const DefaultFrameSamples = 4096

// Capturer acquires the microphone and pushes fixed-size sample frames.
type Capturer interface {
	// Start begins capture. onFrame is called from the audio thread and must not block.
	// Returns a PermissionDenied error if no device is available.
	Start(onFrame func(samples []float32)) (CaptureHandle, error)
}

// CaptureHandle releases a running capture. Stop is idempotent.
type CaptureHandle interface {
	Stop() error
}

// CaptureConfig configures MalgoCapturer.
type CaptureConfig struct {
	SampleRate   int
	Channels     int
	FrameSamples int
}

// DefaultCaptureConfig returns 16 kHz mono capture in 4096-sample frames.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:   CaptureSampleRate,
		Channels:     1,
		FrameSamples: DefaultFrameSamples,
	}
}

// MalgoCapturer captures from the default input device through miniaudio.
type MalgoCapturer struct {
	config CaptureConfig
	logger *slog.Logger
}

// NewMalgoCapturer creates a capturer. Zero fields in config take defaults.
func NewMalgoCapturer(config CaptureConfig, logger *slog.Logger) *MalgoCapturer {
	def := DefaultCaptureConfig()
	if config.SampleRate <= 0 {
		config.SampleRate = def.SampleRate
	}
	if config.Channels <= 0 {
		config.Channels = def.Channels
	}
	if config.FrameSamples <= 0 {
		config.FrameSamples = def.FrameSamples
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MalgoCapturer{config: config, logger: logger}
}

// Start implements Capturer.
func (c *MalgoCapturer) Start(onFrame func(samples []float32)) (CaptureHandle, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, core.NewPermissionDeniedError("audio backend unavailable", err)
	}

	framer := newFramer(c.config.FrameSamples*c.config.Channels, onFrame)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(c.config.Channels)
	deviceConfig.SampleRate = uint32(c.config.SampleRate)

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			framer.write(input)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return nil, core.NewPermissionDeniedError("microphone unavailable", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		_ = mctx.Uninit()
		mctx.Free()
		return nil, core.NewPermissionDeniedError("microphone refused to start", err)
	}

	c.logger.Debug("microphone started",
		"sample_rate", c.config.SampleRate,
		"channels", c.config.Channels,
		"frame_samples", c.config.FrameSamples,
	)
	return &malgoHandle{ctx: mctx, device: device, logger: c.logger}, nil
}

type malgoHandle struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	logger *slog.Logger
	once   sync.Once
	err    error
}

func (h *malgoHandle) Stop() error {
	h.once.Do(func() {
		if err := h.device.Stop(); err != nil {
			h.err = err
		}
		h.device.Uninit()
		if err := h.ctx.Uninit(); err != nil && h.err == nil {
			h.err = err
		}
		h.ctx.Free()
		h.logger.Debug("microphone released")
	})
	return h.err
}

// framer regroups arbitrary-size f32le callback payloads into fixed-size frames.
type framer struct {
	size    int
	pending []float32
	onFrame func([]float32)
}

func newFramer(size int, onFrame func([]float32)) *framer {
	return &framer{
		size:    size,
		pending: make([]float32, 0, size),
		onFrame: onFrame,
	}
}

func (f *framer) write(raw []byte) {
	for i := 0; i+4 <= len(raw); i += 4 {
		f.pending = append(f.pending, math.Float32frombits(binary.LittleEndian.Uint32(raw[i:])))
		if len(f.pending) == f.size {
			frame := f.pending
			f.pending = make([]float32, 0, f.size)
			f.onFrame(frame)
		}
	}
}
