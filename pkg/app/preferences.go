package app

import (
	"context"

	"github.com/autonex-agency/autonex/pkg/store"
)

// Preferences returns the current user settings.
func (a *App) Preferences() store.Preferences {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.prefs
}

// ToggleTheme switches between dark and light and returns the new theme.
func (a *App) ToggleTheme(ctx context.Context) (string, error) {
	prefs, err := a.updatePreferences(ctx, func(p *store.Preferences) {
		if p.Theme == store.ThemeDark {
			p.Theme = store.ThemeLight
		} else {
			p.Theme = store.ThemeDark
		}
	})
	return prefs.Theme, err
}

func (a *App) Login(ctx context.Context) error {
	_, err := a.updatePreferences(ctx, func(p *store.Preferences) { p.LoggedIn = true })
	return err
}

func (a *App) Logout(ctx context.Context) error {
	_, err := a.updatePreferences(ctx, func(p *store.Preferences) { p.LoggedIn = false })
	return err
}

// SetMemory enables or disables cross-turn personalization. Cached
// conversations carry the old system instruction, so they are dropped.
func (a *App) SetMemory(ctx context.Context, on bool) error {
	_, err := a.updatePreferences(ctx, func(p *store.Preferences) { p.MemoryOn = on })
	a.pipeline.Cache().InvalidateAll()
	return err
}

// SetChatHistory enables or disables multi-turn context in plain chat.
func (a *App) SetChatHistory(ctx context.Context, on bool) error {
	_, err := a.updatePreferences(ctx, func(p *store.Preferences) { p.ChatHistoryOn = on })
	a.pipeline.Cache().InvalidateAll()
	return err
}

// ClearMemory forgets every model-side conversation without touching saved sessions.
func (a *App) ClearMemory() {
	a.pipeline.Cache().InvalidateAll()
}

func (a *App) MarkWelcomeSeen(ctx context.Context) error {
	_, err := a.updatePreferences(ctx, func(p *store.Preferences) { p.SeenWelcome = true })
	return err
}

func (a *App) updatePreferences(ctx context.Context, mutate func(*store.Preferences)) (store.Preferences, error) {
	a.saveMu.Lock()
	defer a.saveMu.Unlock()

	a.mu.Lock()
	mutate(&a.prefs)
	prefs := a.prefs
	a.mu.Unlock()

	if err := a.repo.SavePreferences(ctx, prefs); err != nil {
		a.logger.Error("failed to persist preferences", "error", err)
		return prefs, err
	}
	return prefs, nil
}
