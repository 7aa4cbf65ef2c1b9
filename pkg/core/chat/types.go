package chat

import (
	"context"
	"encoding/base64"
	"iter"

	"github.com/autonex-agency/autonex/pkg/core/types"
)

// Aspect ratios accepted for image generation.
const (
	AspectLandscape = "16:9"
	AspectPortrait  = "9:16"
)

// Attachment is a user-supplied media file sent inline with a prompt.
type Attachment struct {
	Data     []byte
	MIMEType string
}

// Image is model-produced image data.
type Image struct {
	Data     []byte
	MIMEType string
}

// DataURL renders the image as a data: URL.
func (i *Image) DataURL() string {
	if i == nil {
		return ""
	}
	return "data:" + i.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Options selects the request mode and conversation settings for one turn.
// When several mode flags are set the first match wins in this order:
// image generation, attached image, attached video, deep reasoning, plain chat.
type Options struct {
	AttachedVideo            *Attachment
	AttachedImage            *Attachment
	ImageGenerationRequested bool
	AspectRatio              string
	DeepReasoningRequested   bool
	MemoryEnabled            bool
	HistoryEnabled           bool
}

// ResponsePart is one incremental piece of a turn's response.
type ResponsePart struct {
	Text           string
	Sources        []types.GroundingChunk
	GeneratedImage *Image
	EditedImage    *Image
}

// Chunk is one streamed fragment from the backend.
type Chunk struct {
	Text    string
	Sources []types.GroundingChunk
}

// Conversation is a multi-turn chat context held by the backend.
type Conversation interface {
	SendStream(ctx context.Context, message string) iter.Seq2[Chunk, error]
}

// Backend is the generative model service.
type Backend interface {
	// GenerateImage returns nil when the model produced no image.
	GenerateImage(ctx context.Context, prompt, aspectRatio string) (*Image, error)

	// EditImage returns the first inline image in the response, or nil if there is none.
	EditImage(ctx context.Context, image Attachment, prompt string) (*Image, error)

	// StreamVideo streams an analysis of video guided by prompt.
	StreamVideo(ctx context.Context, video Attachment, prompt string) iter.Seq2[Chunk, error]

	// StreamThinking streams an answer from the extended-reasoning model.
	StreamThinking(ctx context.Context, prompt string) iter.Seq2[Chunk, error]

	// NewConversation creates a web-search-grounded chat with the given system instruction.
	NewConversation(ctx context.Context, systemInstruction string) (Conversation, error)

	// Complete returns a single-shot text completion.
	Complete(ctx context.Context, prompt string) (string, error)

	// Transcribe returns a transcript of audio.
	Transcribe(ctx context.Context, audio Attachment, prompt string) (string, error)

	// Speak synthesizes prompt and returns raw PCM16 audio, or nil if none was produced.
	Speak(ctx context.Context, prompt string) ([]byte, error)
}
