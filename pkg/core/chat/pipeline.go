package chat

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/autonex-agency/autonex/pkg/core"
	"github.com/autonex-agency/autonex/pkg/core/types"
	"github.com/autonex-agency/autonex/pkg/metrics"
)

// Mode names used in logs and metrics.
const (
	ModeImageGeneration = "image_generation"
	ModeImageEdit       = "image_edit"
	ModeVideo           = "video"
	ModeThinking        = "thinking"
	ModeChat            = "chat"
)

const (
	titleFallbackRunes = 30
	titleMaxRunes      = 50
)

// Pipeline turns a user message into a stream of response parts.
type Pipeline struct {
	backend Backend
	cache   *Cache
	metrics *metrics.Metrics
	logger  *slog.Logger

	background sync.WaitGroup
}

// NewPipeline creates a pipeline. cache may be shared with other pipelines on the same backend.
func NewPipeline(backend Backend, cache *Cache, m *metrics.Metrics, logger *slog.Logger) *Pipeline {
	if cache == nil {
		cache = NewCache(backend)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{backend: backend, cache: cache, metrics: m, logger: logger}
}

// Cache returns the session cache used for plain chat.
func (p *Pipeline) Cache() *Cache {
	return p.cache
}

// Wait blocks until every abandoned turn has finished in the background.
func (p *Pipeline) Wait() {
	p.background.Wait()
}

// SelectMode reports which branch SendTurn takes for opts.
func SelectMode(opts Options) string {
	switch {
	case opts.ImageGenerationRequested:
		return ModeImageGeneration
	case opts.AttachedImage != nil:
		return ModeImageEdit
	case opts.AttachedVideo != nil:
		return ModeVideo
	case opts.DeepReasoningRequested:
		return ModeThinking
	default:
		return ModeChat
	}
}

// SendTurn returns the response to text as a lazy sequence. Nothing is sent until
// the sequence is ranged over, and it can be consumed only once. Failures are
// reported as a final apology part rather than an error. If the caller stops
// ranging early, a streamed reply is still read to the end in the background.
func (p *Pipeline) SendTurn(ctx context.Context, text, sessionID string, opts Options) iter.Seq[ResponsePart] {
	var used atomic.Bool
	return func(yield func(ResponsePart) bool) {
		if used.Swap(true) {
			return
		}

		mode := SelectMode(opts)
		if n := modeFlagCount(opts); n > 1 {
			p.logger.Warn("multiple request modes set, using highest priority", "mode", mode, "flags", n, "session_id", sessionID)
		}

		start := time.Now()
		var err error
		switch mode {
		case ModeImageGeneration:
			err = p.generateImage(ctx, text, opts.AspectRatio, yield)
		case ModeImageEdit:
			err = p.editImage(ctx, *opts.AttachedImage, text, yield)
		case ModeVideo:
			err = p.stream(p.backend.StreamVideo(ctx, *opts.AttachedVideo, text), videoFailed, mode, sessionID, yield)
		case ModeThinking:
			err = p.stream(p.backend.StreamThinking(ctx, text), thinkingFailed, mode, sessionID, yield)
		default:
			err = p.chat(ctx, text, sessionID, opts, yield)
		}

		status := "ok"
		if err != nil {
			status = "error"
			p.logger.Error("request failed", "mode", mode, "session_id", sessionID, "error", err)
			p.metrics.RecordError("chat", err)
		}
		p.metrics.RecordRequest(mode, status, time.Since(start))
	}
}

func modeFlagCount(opts Options) int {
	n := 0
	for _, set := range []bool{opts.ImageGenerationRequested, opts.AttachedImage != nil, opts.AttachedVideo != nil, opts.DeepReasoningRequested} {
		if set {
			n++
		}
	}
	return n
}

func (p *Pipeline) generateImage(ctx context.Context, prompt, aspectRatio string, yield func(ResponsePart) bool) error {
	if !yield(ResponsePart{Text: fmt.Sprintf(imageProgressTemplate, prompt)}) {
		return nil
	}
	if aspectRatio == "" {
		aspectRatio = AspectLandscape
	}
	img, err := p.backend.GenerateImage(ctx, prompt, aspectRatio)
	if err != nil {
		yield(ResponsePart{Text: imageGenerateFailed})
		return core.NewBackendFailureError("generate image", err)
	}
	if img == nil || len(img.Data) == 0 {
		yield(ResponsePart{Text: imageGenerateEmpty})
		return core.NewBackendFailureError("generate image returned no image", nil)
	}
	yield(ResponsePart{Text: imageGeneratedText, GeneratedImage: img})
	return nil
}

func (p *Pipeline) editImage(ctx context.Context, image Attachment, prompt string, yield func(ResponsePart) bool) error {
	img, err := p.backend.EditImage(ctx, image, prompt)
	if err != nil {
		yield(ResponsePart{Text: imageEditFailed})
		return core.NewBackendFailureError("edit image", err)
	}
	if img == nil || len(img.Data) == 0 {
		yield(ResponsePart{Text: imageEditEmpty})
		return core.NewBackendFailureError("edit image returned no image", nil)
	}
	yield(ResponsePart{Text: imageEditedText, EditedImage: img})
	return nil
}

// stream re-emits each text chunk. On error the apology is emitted after any text already sent.
func (p *Pipeline) stream(chunks iter.Seq2[Chunk, error], apology, mode, sessionID string, yield func(ResponsePart) bool) error {
	next, stop := iter.Pull2(chunks)
	for {
		chunk, err, ok := next()
		if !ok {
			stop()
			return nil
		}
		if err != nil {
			stop()
			yield(ResponsePart{Text: apology})
			return core.NewBackendFailureError("stream content", err)
		}
		if chunk.Text == "" {
			continue
		}
		if !yield(ResponsePart{Text: chunk.Text}) {
			p.drain(mode, sessionID, next, stop)
			return nil
		}
	}
}

func (p *Pipeline) chat(ctx context.Context, text, sessionID string, opts Options, yield func(ResponsePart) bool) error {
	conv, err := p.cache.GetOrCreate(ctx, sessionID, opts.MemoryEnabled, opts.HistoryEnabled)
	if err != nil {
		yield(ResponsePart{Text: chatFailed})
		return core.NewBackendFailureError("create conversation", err)
	}

	next, stop := iter.Pull2(conv.SendStream(ctx, text))
	var sources []types.GroundingChunk
	for {
		chunk, err, ok := next()
		if !ok {
			break
		}
		if err != nil {
			stop()
			yield(ResponsePart{Text: chatFailed})
			return core.NewBackendFailureError("send message", err)
		}
		if chunk.Text != "" && !yield(ResponsePart{Text: chunk.Text}) {
			p.drain(ModeChat, sessionID, next, stop)
			return nil
		}
		if len(chunk.Sources) > 0 {
			sources = chunk.Sources
		}
	}
	stop()
	if len(sources) > 0 {
		yield(ResponsePart{Sources: sources})
	}
	return nil
}

// drain reads the rest of an abandoned stream on its own goroutine. A chat
// session only records the turn in its history once the stream has ended.
func (p *Pipeline) drain(mode, sessionID string, next func() (Chunk, error, bool), stop func()) {
	p.background.Add(1)
	go func() {
		defer p.background.Done()
		defer stop()

		n := 0
		for {
			_, err, ok := next()
			if !ok {
				break
			}
			if err != nil {
				p.logger.Warn("abandoned turn failed", "mode", mode, "session_id", sessionID, "error", err)
				p.metrics.RecordError("chat", err)
				return
			}
			n++
		}
		p.logger.Debug("abandoned turn drained", "mode", mode, "session_id", sessionID, "chunks", n)
	}()
}

// GenerateTitle asks the model for a short title for a chat that starts with
// firstMessage. It falls back to the first 30 characters of the message.
func (p *Pipeline) GenerateTitle(ctx context.Context, firstMessage string) string {
	fallback := types.TruncateTitle(firstMessage, titleFallbackRunes)

	out, err := p.backend.Complete(ctx, fmt.Sprintf(titlePromptTemplate, firstMessage))
	if err != nil {
		p.logger.Error("title generation failed", "error", err)
		p.metrics.RecordError("title", err)
		return fallback
	}

	title := strings.TrimSpace(out)
	title = strings.TrimPrefix(title, `"`)
	title = strings.TrimSuffix(title, `"`)
	title = strings.TrimSuffix(title, ".")
	if title == "" || len([]rune(title)) > titleMaxRunes {
		return fallback
	}
	return title
}

// GenerateSpeech synthesizes text as PCM16 audio at 24 kHz. The audio is nil on failure
// or when the model returned none.
func (p *Pipeline) GenerateSpeech(ctx context.Context, text string) ([]byte, error) {
	audio, err := p.backend.Speak(ctx, fmt.Sprintf(speechPromptTemplate, text))
	if err != nil {
		p.logger.Error("speech synthesis failed", "error", err)
		p.metrics.RecordError("speech", err)
		return nil, core.NewBackendFailureError("synthesize speech", err)
	}
	if len(audio) == 0 {
		return nil, nil
	}
	return audio, nil
}

// TranscribeAudio returns a transcript of audio, or an apology text on failure.
func (p *Pipeline) TranscribeAudio(ctx context.Context, audio Attachment) string {
	text, err := p.backend.Transcribe(ctx, audio, transcriptionPrompt)
	if err != nil {
		p.logger.Error("transcription failed", "error", err)
		p.metrics.RecordError("transcription", err)
		return transcriptionFailed
	}
	return text
}
