package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"google.golang.org/genai"

	"github.com/autonex-agency/autonex/pkg/config"
	"github.com/autonex-agency/autonex/pkg/core/live"
	"github.com/autonex-agency/autonex/pkg/core/voice"
	"github.com/autonex-agency/autonex/pkg/metrics"
)

// voiceControl is the part of the voice stack the REPL drives.
type voiceControl interface {
	Start(ctx context.Context) error
	Stop()
	// Play schedules 24 kHz mono PCM16 audio on the speaker.
	Play(pcm []byte) error
}

func transportFactory(cfg config.Config, client *genai.Client, logger *slog.Logger) live.TransportFactory {
	tc := live.TransportConfig{
		Model:          cfg.LiveModel,
		Voice:          cfg.TTSVoice,
		ConnectTimeout: cfg.ConnectTimeout,
	}
	if cfg.LiveTransport == config.LiveTransportWebsocket {
		opts := []live.WSOption{live.WithLogger(logger)}
		if cfg.LiveURL != "" {
			opts = append(opts, live.WithURL(cfg.LiveURL))
		}
		return func() live.Transport { return live.NewWSTransport(cfg.APIKey, tc, opts...) }
	}
	return func() live.Transport { return live.NewGenAITransport(client, tc, logger) }
}

// liveVoice opens the audio devices on first use. Only one output device is
// opened per process; the voice agent and /say share it.
type liveVoice struct {
	cfg     config.Config
	client  *genai.Client
	sink    live.TurnSink
	metrics *metrics.Metrics
	logger  *slog.Logger
	out     io.Writer

	mu       sync.Mutex
	output   *voice.OtoOutput
	speech   *voice.Scheduler
	agent    *live.Agent
	done     chan struct{}
	closed   bool
	watching sync.WaitGroup
}

func newLiveVoice(cfg config.Config, client *genai.Client, sink live.TurnSink, m *metrics.Metrics, logger *slog.Logger, out io.Writer) *liveVoice {
	return &liveVoice{
		cfg:     cfg,
		client:  client,
		sink:    sink,
		metrics: m,
		logger:  logger,
		out:     out,
		done:    make(chan struct{}),
	}
}

func (v *liveVoice) outputLocked() (*voice.OtoOutput, error) {
	if v.closed {
		return nil, errors.New("voice is shut down")
	}
	if v.output == nil {
		o, err := voice.NewOtoOutput(voice.PlaybackSampleRate, 1)
		if err != nil {
			return nil, err
		}
		v.output = o
		v.speech = voice.NewScheduler(o, v.logger)
	}
	return v.output, nil
}

func (v *liveVoice) Start(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.agent == nil {
		o, err := v.outputLocked()
		if err != nil {
			return err
		}
		capturer := voice.NewMalgoCapturer(voice.CaptureConfig{FrameSamples: v.cfg.CaptureFrameSamples}, v.logger)
		v.agent = live.NewAgent(
			transportFactory(v.cfg, v.client, v.logger),
			capturer,
			o,
			v.sink,
			live.WithMetrics(v.metrics),
			live.WithAgentLogger(v.logger),
		)
		v.watching.Add(1)
		go v.watch(v.agent.Events())
	}
	return v.agent.Start(ctx)
}

func (v *liveVoice) Stop() {
	v.mu.Lock()
	agent := v.agent
	v.mu.Unlock()
	if agent != nil {
		agent.Stop()
	}
}

func (v *liveVoice) Play(pcm []byte) error {
	buf, err := voice.DecodePCM16(pcm, voice.PlaybackSampleRate, 1)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, err := v.outputLocked(); err != nil {
		return err
	}
	_, err = v.speech.Enqueue(buf)
	return err
}

// Close stops any voice session and releases the audio devices.
func (v *liveVoice) Close() {
	v.Stop()

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	close(v.done)
	o := v.output
	v.mu.Unlock()

	v.watching.Wait()
	if o != nil {
		if err := o.Close(); err != nil {
			v.logger.Warn("close audio output", "error", err)
		}
	}
}

func (v *liveVoice) watch(events <-chan live.AgentEvent) {
	defer v.watching.Done()
	for {
		select {
		case <-v.done:
			return
		case ev := <-events:
			printAgentEvent(v.out, ev)
		}
	}
}

func printAgentEvent(w io.Writer, ev live.AgentEvent) {
	switch e := ev.(type) {
	case live.StateChangedEvent:
		fmt.Fprintf(w, "\n[voice] %s\n", e.To)
	case live.NoticeEvent:
		fmt.Fprintf(w, "\n[voice] %v\n", e.Err)
	case live.TurnCommittedEvent:
		for _, msg := range e.Messages {
			fmt.Fprintf(w, "\n[%s] %s\n", msg.Sender, msg.Text)
		}
	}
}
