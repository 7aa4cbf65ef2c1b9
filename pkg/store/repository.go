package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/autonex-agency/autonex/pkg/core"
	"github.com/autonex-agency/autonex/pkg/core/types"
)

// Persistence keys.
const (
	KeyChatSessions    = "chatSessions"
	KeyActiveSessionID = "activeSessionId"
	KeyTheme           = "theme"
	KeyLoggedIn        = "isLoggedIn"
	KeyMemoryOn        = "isMemoryOn"
	KeyChatHistoryOn   = "isChatHistoryOn"
	KeySeenWelcome     = "hasSeenWelcome"
)

// Themes.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Preferences are the persisted user settings.
type Preferences struct {
	Theme         string
	LoggedIn      bool
	MemoryOn      bool
	ChatHistoryOn bool
	SeenWelcome   bool
}

// DefaultPreferences returns the settings of a fresh install.
func DefaultPreferences() Preferences {
	return Preferences{
		Theme:         ThemeDark,
		MemoryOn:      true,
		ChatHistoryOn: true,
	}
}

// Repository reads and writes typed application state on a Store.
// A value that fails to decode is logged, removed and reported as a
// StorageCorrupt error alongside the default value.
type Repository struct {
	store  Store
	logger *slog.Logger
}

// NewRepository wraps s.
func NewRepository(s Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: s, logger: logger}
}

// LoadSessions returns the persisted chat sessions, or nil if none are stored.
func (r *Repository) LoadSessions(ctx context.Context) ([]types.ChatSession, error) {
	raw, err := r.get(ctx, KeyChatSessions)
	if err != nil || raw == "" {
		return nil, err
	}
	var sessions []types.ChatSession
	if err := json.Unmarshal([]byte(raw), &sessions); err != nil {
		return nil, r.corrupt(ctx, KeyChatSessions, err)
	}
	return sessions, nil
}

// SaveSessions persists sessions. An empty list removes the key.
func (r *Repository) SaveSessions(ctx context.Context, sessions []types.ChatSession) error {
	if len(sessions) == 0 {
		return r.store.Remove(ctx, KeyChatSessions)
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("encode sessions: %w", err)
	}
	return r.store.Set(ctx, KeyChatSessions, string(data))
}

// LoadActiveSessionID returns the stored active session id, or "" if none.
func (r *Repository) LoadActiveSessionID(ctx context.Context) (string, error) {
	return r.get(ctx, KeyActiveSessionID)
}

// SaveActiveSessionID persists id. An empty id removes the key.
func (r *Repository) SaveActiveSessionID(ctx context.Context, id string) error {
	if id == "" {
		return r.store.Remove(ctx, KeyActiveSessionID)
	}
	return r.store.Set(ctx, KeyActiveSessionID, id)
}

// ClearHistory removes the persisted sessions and active session id.
func (r *Repository) ClearHistory(ctx context.Context) error {
	return errors.Join(
		r.store.Remove(ctx, KeyChatSessions),
		r.store.Remove(ctx, KeyActiveSessionID),
	)
}

// LoadPreferences returns the stored preferences over the defaults. Corrupt
// values are reset individually and reported joined.
func (r *Repository) LoadPreferences(ctx context.Context) (Preferences, error) {
	prefs := DefaultPreferences()
	var errs []error

	theme, err := r.get(ctx, KeyTheme)
	switch {
	case err != nil:
		errs = append(errs, err)
	case theme == ThemeDark || theme == ThemeLight:
		prefs.Theme = theme
	case theme != "":
		errs = append(errs, r.corrupt(ctx, KeyTheme, fmt.Errorf("unknown theme %q", theme)))
	}

	flags := []struct {
		key string
		dst *bool
	}{
		{KeyLoggedIn, &prefs.LoggedIn},
		{KeyMemoryOn, &prefs.MemoryOn},
		{KeyChatHistoryOn, &prefs.ChatHistoryOn},
		{KeySeenWelcome, &prefs.SeenWelcome},
	}
	for _, f := range flags {
		if err := r.loadBool(ctx, f.key, f.dst); err != nil {
			errs = append(errs, err)
		}
	}
	return prefs, errors.Join(errs...)
}

// SavePreferences persists every preference.
func (r *Repository) SavePreferences(ctx context.Context, prefs Preferences) error {
	return errors.Join(
		r.store.Set(ctx, KeyTheme, prefs.Theme),
		r.store.Set(ctx, KeyLoggedIn, strconv.FormatBool(prefs.LoggedIn)),
		r.store.Set(ctx, KeyMemoryOn, strconv.FormatBool(prefs.MemoryOn)),
		r.store.Set(ctx, KeyChatHistoryOn, strconv.FormatBool(prefs.ChatHistoryOn)),
		r.store.Set(ctx, KeySeenWelcome, strconv.FormatBool(prefs.SeenWelcome)),
	)
}

func (r *Repository) loadBool(ctx context.Context, key string, dst *bool) error {
	raw, err := r.get(ctx, key)
	if err != nil || raw == "" {
		return err
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return r.corrupt(ctx, key, err)
	}
	*dst = v
	return nil
}

// get returns "" for a missing key.
func (r *Repository) get(ctx context.Context, key string) (string, error) {
	v, err := r.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

func (r *Repository) corrupt(ctx context.Context, key string, cause error) error {
	err := core.NewStorageCorruptError(key, cause)
	r.logger.Error("discarding corrupt stored value", "key", key, "error", cause)
	if rmErr := r.store.Remove(ctx, key); rmErr != nil {
		r.logger.Warn("failed to remove corrupt value", "key", key, "error", rmErr)
	}
	return err
}
