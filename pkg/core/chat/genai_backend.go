package chat

import (
	"context"
	"iter"
	"strings"

	"google.golang.org/genai"

	"github.com/autonex-agency/autonex/pkg/core/types"
)

// Default model names.
const (
	DefaultChatModel      = "gemini-2.5-flash"
	DefaultReasoningModel = "gemini-2.5-pro"
	DefaultVideoModel     = "gemini-2.5-pro"
	DefaultImageModel     = "imagen-4.0-generate-001"
	DefaultEditModel      = "gemini-2.5-flash-image"
	DefaultSpeechModel    = "gemini-2.5-flash-preview-tts"
	DefaultSpeechVoice    = "Kore"

	DefaultThinkingBudget int32 = 32768

	generatedImageMIME = "image/jpeg"
	editedImageMIME    = "image/png"
)

// Models names the model used for each request kind.
type Models struct {
	Chat      string
	Reasoning string
	Video     string
	Image     string
	Edit      string
	Speech    string
	Voice     string

	ThinkingBudget int32
}

// DefaultModels returns the production model set.
func DefaultModels() Models {
	return Models{
		Chat:      DefaultChatModel,
		Reasoning: DefaultReasoningModel,
		Video:     DefaultVideoModel,
		Image:     DefaultImageModel,
		Edit:      DefaultEditModel,
		Speech:    DefaultSpeechModel,
		Voice:     DefaultSpeechVoice,

		ThinkingBudget: DefaultThinkingBudget,
	}
}

func (m Models) withDefaults() Models {
	d := DefaultModels()
	if m.Chat == "" {
		m.Chat = d.Chat
	}
	if m.Reasoning == "" {
		m.Reasoning = d.Reasoning
	}
	if m.Video == "" {
		m.Video = d.Video
	}
	if m.Image == "" {
		m.Image = d.Image
	}
	if m.Edit == "" {
		m.Edit = d.Edit
	}
	if m.Speech == "" {
		m.Speech = d.Speech
	}
	if m.Voice == "" {
		m.Voice = d.Voice
	}
	if m.ThinkingBudget <= 0 {
		m.ThinkingBudget = d.ThinkingBudget
	}
	return m
}

// GenAIBackend implements Backend on the genai SDK.
type GenAIBackend struct {
	client *genai.Client
	models Models
}

// NewGenAIBackend wraps client. Empty model names fall back to DefaultModels.
func NewGenAIBackend(client *genai.Client, models Models) *GenAIBackend {
	return &GenAIBackend{client: client, models: models.withDefaults()}
}

// GenerateImage implements Backend.
func (b *GenAIBackend) GenerateImage(ctx context.Context, prompt, aspectRatio string) (*Image, error) {
	resp, err := b.client.Models.GenerateImages(ctx, b.models.Image, prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		OutputMIMEType: generatedImageMIME,
		AspectRatio:    aspectRatio,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.GeneratedImages) == 0 {
		return nil, nil
	}
	img := resp.GeneratedImages[0].Image
	if img == nil || len(img.ImageBytes) == 0 {
		return nil, nil
	}
	mime := img.MIMEType
	if mime == "" {
		mime = generatedImageMIME
	}
	return &Image{Data: img.ImageBytes, MIMEType: mime}, nil
}

// EditImage implements Backend. The first inline blob of the reply is taken as the image.
func (b *GenAIBackend) EditImage(ctx context.Context, image Attachment, prompt string) (*Image, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(image.Data, image.MIMEType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	resp, err := b.client.Models.GenerateContent(ctx, b.models.Edit, contents, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
	})
	if err != nil {
		return nil, err
	}
	return editedImage(resp), nil
}

// editedImage returns the first inline blob of resp, defaulting its type to PNG.
func editedImage(resp *genai.GenerateContentResponse) *Image {
	img := firstInlineData(resp, "")
	if img != nil && img.MIMEType == "" {
		img.MIMEType = editedImageMIME
	}
	return img
}

// StreamVideo implements Backend.
func (b *GenAIBackend) StreamVideo(ctx context.Context, video Attachment, prompt string) iter.Seq2[Chunk, error] {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(video.Data, video.MIMEType),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}
	return chunks(b.client.Models.GenerateContentStream(ctx, b.models.Video, contents, nil))
}

// StreamThinking implements Backend.
func (b *GenAIBackend) StreamThinking(ctx context.Context, prompt string) iter.Seq2[Chunk, error] {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(BaseSystemInstruction, genai.RoleUser),
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(b.models.ThinkingBudget),
		},
	}
	return chunks(b.client.Models.GenerateContentStream(ctx, b.models.Reasoning, genai.Text(prompt), config))
}

// NewConversation implements Backend. The session has Google Search grounding enabled.
func (b *GenAIBackend) NewConversation(ctx context.Context, systemInstruction string) (Conversation, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	session, err := b.client.Chats.Create(ctx, b.models.Chat, config, nil)
	if err != nil {
		return nil, err
	}
	return &genaiConversation{chat: session}, nil
}

// Complete implements Backend.
func (b *GenAIBackend) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := b.client.Models.GenerateContent(ctx, b.models.Chat, genai.Text(prompt), nil)
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

// Transcribe implements Backend.
func (b *GenAIBackend) Transcribe(ctx context.Context, audio Attachment, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(prompt),
			genai.NewPartFromBytes(audio.Data, audio.MIMEType),
		}, genai.RoleUser),
	}
	resp, err := b.client.Models.GenerateContent(ctx, b.models.Chat, contents, nil)
	if err != nil {
		return "", err
	}
	return responseText(resp), nil
}

// Speak implements Backend.
func (b *GenAIBackend) Speak(ctx context.Context, prompt string) ([]byte, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: b.models.Voice},
			},
		},
	}
	resp, err := b.client.Models.GenerateContent(ctx, b.models.Speech, genai.Text(prompt), config)
	if err != nil {
		return nil, err
	}
	if audio := firstInlineData(resp, ""); audio != nil {
		return audio.Data, nil
	}
	return nil, nil
}

type genaiConversation struct {
	chat *genai.Chat
}

func (c *genaiConversation) SendStream(ctx context.Context, message string) iter.Seq2[Chunk, error] {
	return chunks(c.chat.SendMessageStream(ctx, genai.Part{Text: message}))
}

func chunks(responses iter.Seq2[*genai.GenerateContentResponse, error]) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		for resp, err := range responses {
			if err != nil {
				yield(Chunk{}, err)
				return
			}
			if !yield(chunkFromResponse(resp), nil) {
				return
			}
		}
	}
}

// chunkFromResponse extracts the visible text and web citations of the first candidate.
func chunkFromResponse(resp *genai.GenerateContentResponse) Chunk {
	chunk := Chunk{Text: responseText(resp)}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return chunk
	}
	meta := resp.Candidates[0].GroundingMetadata
	if meta == nil {
		return chunk
	}
	for _, gc := range meta.GroundingChunks {
		if gc == nil || gc.Web == nil || gc.Web.URI == "" {
			continue
		}
		chunk.Sources = append(chunk.Sources, types.GroundingChunk{
			Web: types.WebSource{URI: gc.Web.URI, Title: gc.Web.Title},
		})
	}
	return chunk
}

// responseText concatenates the non-thought text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

// firstInlineData returns the first inline blob whose MIME type starts with prefix.
func firstInlineData(resp *genai.GenerateContentResponse, prefix string) *Image {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		if !strings.HasPrefix(part.InlineData.MIMEType, prefix) {
			continue
		}
		return &Image{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}
	}
	return nil
}
