// Package app holds the application state shared by the text and voice
// pipelines: chat sessions, the active session, user preferences and the
// media attached to messages. All mutations are persisted through a
// store.Repository.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/autonex-agency/autonex/pkg/core/chat"
	"github.com/autonex-agency/autonex/pkg/core/types"
	"github.com/autonex-agency/autonex/pkg/store"
)

const (
	// NewChatTitle is the title of a session before its first message.
	NewChatTitle = "New Chat"
	// GreetingMessageID is the id of the greeting that opens every session.
	GreetingMessageID = "initial-ai-message-reset"
	// GreetingText opens every session.
	GreetingText = "Hello! I am Autonex AI. How can I help? / नमस्ते! मैं ऑटोनिक्स एआई हूं। मैं आपकी क्या मदद कर सकता हूँ?"

	provisionalTitleRunes = 30
	titleTimeout          = 30 * time.Second
)

var (
	// ErrBusy is returned by SendMessage while another message is streaming.
	ErrBusy = errors.New("app: a message is already being sent")
	// ErrEmptyInput is returned by SendMessage for input with no text and no attachment.
	ErrEmptyInput = errors.New("app: empty input")
	// ErrSessionNotFound is returned when a session id does not exist.
	ErrSessionNotFound = errors.New("app: session not found")
)

// Input is one message composed by the user.
type Input struct {
	Text          string
	Image         *chat.Attachment
	Video         *chat.Attachment
	GenerateImage bool
	AspectRatio   string
	Thinking      bool

	// OnUpdate, if set, receives the AI reply after each streamed update.
	OnUpdate func(types.Message)
}

// App is the application state. It is safe for concurrent use.
type App struct {
	repo     *store.Repository
	pipeline *chat.Pipeline
	media    *MediaRegistry
	logger   *slog.Logger

	mu       sync.Mutex
	sessions []types.ChatSession
	activeID string
	prefs    store.Preferences
	busy     bool

	saveMu sync.Mutex
	titles sync.WaitGroup
}

// New loads persisted state from repo. Corrupt or missing session data starts a fresh session.
func New(ctx context.Context, repo *store.Repository, pipeline *chat.Pipeline, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{
		repo:     repo,
		pipeline: pipeline,
		media:    NewMediaRegistry(),
		logger:   logger,
	}

	prefs, err := repo.LoadPreferences(ctx)
	if err != nil {
		logger.Error("failed to load preferences", "error", err)
	}
	a.prefs = prefs

	sessions, err := repo.LoadSessions(ctx)
	if err != nil {
		logger.Error("failed to load chat sessions", "error", err)
		sessions = nil
	}
	activeID, err := repo.LoadActiveSessionID(ctx)
	if err != nil {
		logger.Error("failed to load active session", "error", err)
	}

	a.sessions = sessions
	if a.indexLocked(activeID) < 0 {
		activeID = ""
		if len(sessions) > 0 {
			activeID = sessions[0].ID
		}
	}
	a.activeID = activeID

	if len(a.sessions) == 0 {
		a.NewChat(ctx)
	}
	return a
}

// Media returns the registry holding attachment bytes.
func (a *App) Media() *MediaRegistry {
	return a.media
}

// Sessions returns a copy of every session, newest first.
func (a *App) Sessions() []types.ChatSession {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cloneSessions(a.sessions)
}

// ActiveSession returns a copy of the active session.
func (a *App) ActiveSession() (types.ChatSession, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.indexLocked(a.activeID)
	if i < 0 {
		return types.ChatSession{}, false
	}
	return cloneSession(a.sessions[i]), true
}

// Busy reports whether a message is streaming.
func (a *App) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// NewChat prepends a session holding only the greeting and makes it active.
func (a *App) NewChat(ctx context.Context) types.ChatSession {
	session := types.ChatSession{
		ID:    types.NewID(),
		Title: NewChatTitle,
		Messages: []types.Message{{
			ID:     GreetingMessageID,
			Sender: types.SenderAI,
			Text:   GreetingText,
		}},
	}

	a.mu.Lock()
	a.sessions = append([]types.ChatSession{session}, a.sessions...)
	a.activeID = session.ID
	a.mu.Unlock()

	a.persist(ctx)
	return cloneSession(session)
}

// SelectSession makes id the active session.
func (a *App) SelectSession(ctx context.Context, id string) error {
	a.mu.Lock()
	if a.indexLocked(id) < 0 {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	a.activeID = id
	a.mu.Unlock()

	a.persist(ctx)
	return nil
}

// ClearHistory deletes every session and its media, then starts a fresh session.
func (a *App) ClearHistory(ctx context.Context) error {
	a.saveMu.Lock()
	err := a.repo.ClearHistory(ctx)
	a.mu.Lock()
	a.sessions = nil
	a.activeID = ""
	a.mu.Unlock()
	a.saveMu.Unlock()

	a.media.ReleaseAll()
	a.pipeline.Cache().InvalidateAll()
	a.NewChat(ctx)
	if err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}

// SendMessage appends the user message and a placeholder reply to the active
// session, then streams the reply into the placeholder. It returns the final reply.
func (a *App) SendMessage(ctx context.Context, in Input) (types.Message, error) {
	trimmed := strings.TrimSpace(in.Text)
	if trimmed == "" && in.Image == nil && in.Video == nil {
		return types.Message{}, ErrEmptyInput
	}

	a.mu.Lock()
	if a.busy {
		a.mu.Unlock()
		return types.Message{}, ErrBusy
	}
	i := a.indexLocked(a.activeID)
	if i < 0 {
		a.mu.Unlock()
		return types.Message{}, fmt.Errorf("%w: no active session", ErrSessionNotFound)
	}
	a.busy = true
	session := &a.sessions[i]
	sessionID := session.ID

	user := types.NewMessage(types.SenderUser, userMessageText(in))
	if in.Image != nil {
		user.ImageRef = a.media.Register(in.Image.Data, in.Image.MIMEType)
	}
	if in.Video != nil {
		user.VideoRef = a.media.Register(in.Video.Data, in.Video.MIMEType)
	}
	reply := types.NewMessage(types.SenderAI, "")

	refineTitle := session.UserMessageCount() == 0 && trimmed != ""
	if refineTitle {
		session.Title = types.TruncateTitle(trimmed, provisionalTitleRunes)
	}
	session.Messages = append(session.Messages, user, reply)
	prefs := a.prefs
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.busy = false
		a.mu.Unlock()
	}()

	a.persist(ctx)
	if refineTitle {
		a.generateTitle(ctx, sessionID, trimmed)
	}

	opts := chat.Options{
		AttachedVideo:            in.Video,
		AttachedImage:            in.Image,
		ImageGenerationRequested: in.GenerateImage,
		AspectRatio:              in.AspectRatio,
		DeepReasoningRequested:   in.Thinking,
		MemoryEnabled:            prefs.MemoryOn,
		HistoryEnabled:           prefs.ChatHistoryOn,
	}

	var text strings.Builder
	for part := range a.pipeline.SendTurn(ctx, in.Text, sessionID, opts) {
		text.WriteString(part.Text)
		reply.Text = text.String()
		if part.Sources != nil {
			reply.Sources = part.Sources
		}
		if part.EditedImage != nil {
			reply.EditedImageRef = part.EditedImage.DataURL()
		}
		if part.GeneratedImage != nil {
			reply.GeneratedImageRef = part.GeneratedImage.DataURL()
		}

		a.replaceMessage(sessionID, reply)
		a.persist(ctx)
		if in.OnUpdate != nil {
			in.OnUpdate(reply)
		}
	}
	return reply, nil
}

// AppendMessages appends completed voice-turn messages to the active session.
func (a *App) AppendMessages(msgs ...types.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	a.mu.Lock()
	i := a.indexLocked(a.activeID)
	if i < 0 {
		a.mu.Unlock()
		return fmt.Errorf("%w: no active session", ErrSessionNotFound)
	}
	a.sessions[i].Messages = append(a.sessions[i].Messages, msgs...)
	a.mu.Unlock()

	a.persist(context.Background())
	return nil
}

// WaitForTitles blocks until every pending title refinement has finished.
func (a *App) WaitForTitles() {
	a.titles.Wait()
}

func (a *App) generateTitle(ctx context.Context, sessionID, firstMessage string) {
	a.titles.Add(1)
	go func() {
		defer a.titles.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), titleTimeout)
		defer cancel()

		title := a.pipeline.GenerateTitle(ctx, firstMessage)
		a.mu.Lock()
		i := a.indexLocked(sessionID)
		if i >= 0 {
			a.sessions[i].Title = title
		}
		a.mu.Unlock()
		if i >= 0 {
			a.persist(ctx)
		}
	}()
}

// replaceMessage swaps the message with msg.ID in session sessionID.
func (a *App) replaceMessage(sessionID string, msg types.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.indexLocked(sessionID)
	if i < 0 {
		return
	}
	if j := a.sessions[i].FindMessage(msg.ID); j >= 0 {
		a.sessions[i].Messages[j] = msg
	}
}

// persist writes a snapshot of the sessions. saveMu orders snapshots with their writes.
func (a *App) persist(ctx context.Context) {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	sessions := cloneSessions(a.sessions)
	activeID := a.activeID
	a.mu.Unlock()

	err := errors.Join(
		a.repo.SaveSessions(ctx, sessions),
		a.repo.SaveActiveSessionID(ctx, activeID),
	)
	if err != nil {
		a.logger.Error("failed to persist chat sessions", "error", err)
	}
}

func (a *App) indexLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := range a.sessions {
		if a.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func userMessageText(in Input) string {
	switch {
	case in.GenerateImage:
		aspect := in.AspectRatio
		if aspect == "" {
			aspect = chat.AspectLandscape
		}
		return fmt.Sprintf("Generate an image: \"%s\" (Aspect Ratio: %s)", in.Text, aspect)
	case in.Thinking:
		return fmt.Sprintf("Complex query: \"%s\"", in.Text)
	default:
		return in.Text
	}
}

func cloneSession(s types.ChatSession) types.ChatSession {
	s.Messages = slices.Clone(s.Messages)
	return s
}

func cloneSessions(sessions []types.ChatSession) []types.ChatSession {
	out := make([]types.ChatSession, len(sessions))
	for i, s := range sessions {
		out[i] = cloneSession(s)
	}
	return out
}
