package types

import (
	"strings"

	"github.com/google/uuid"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// GroundingChunk is a web citation attached to a generated answer.
type GroundingChunk struct {
	Web WebSource `json:"web"`
}

// WebSource is the payload of a GroundingChunk.
type WebSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

// Message is a single entry in a chat session.
//
// VideoRef and ImageRef are media handles for user attachments. EditedImageRef and
// GeneratedImageRef hold data URLs produced by the model.
type Message struct {
	ID                string           `json:"id"`
	Sender            Sender           `json:"sender"`
	Text              string           `json:"text"`
	Sources           []GroundingChunk `json:"sources,omitempty"`
	VideoRef          string           `json:"videoRef,omitempty"`
	ImageRef          string           `json:"imageRef,omitempty"`
	EditedImageRef    string           `json:"editedImageRef,omitempty"`
	GeneratedImageRef string           `json:"generatedImageRef,omitempty"`
}

// NewMessage returns a message with a fresh id.
func NewMessage(sender Sender, text string) Message {
	return Message{
		ID:     NewID(),
		Sender: sender,
		Text:   text,
	}
}

// MediaRefs returns the attachment handles the message owns.
func (m Message) MediaRefs() []string {
	var refs []string
	if m.ImageRef != "" {
		refs = append(refs, m.ImageRef)
	}
	if m.VideoRef != "" {
		refs = append(refs, m.VideoRef)
	}
	return refs
}

// ChatSession is an ordered conversation with a title.
type ChatSession struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Messages []Message `json:"messages"`
}

// FindMessage returns the index of the message with id, or -1.
func (s *ChatSession) FindMessage(id string) int {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// UserMessageCount counts messages sent by the user.
func (s *ChatSession) UserMessageCount() int {
	n := 0
	for _, m := range s.Messages {
		if m.Sender == SenderUser {
			n++
		}
	}
	return n
}

// NewID returns an opaque identifier.
func NewID() string {
	return uuid.New().String()
}

// TruncateTitle shortens s to at most n runes.
func TruncateTitle(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
