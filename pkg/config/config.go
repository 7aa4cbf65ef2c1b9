// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LiveTransport selects the implementation of the realtime voice connection.
type LiveTransport string

const (
	LiveTransportGenAI     LiveTransport = "genai"
	LiveTransportWebsocket LiveTransport = "websocket"
)

type Config struct {
	APIKey string

	ChatModel      string
	ReasoningModel string
	VideoModel     string
	ImageModel     string
	ImageEditModel string
	LiveModel      string
	TTSModel       string
	TTSVoice       string
	ThinkingBudget int

	LiveTransport       LiveTransport
	LiveURL             string // empty => default endpoint
	CaptureFrameSamples int
	ConnectTimeout      time.Duration

	DBPath      string // ":memory:" => nothing persisted across runs
	LogLevel    slog.Level
	MetricsAddr string // empty => disabled
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		APIKey:              firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY", "API_KEY"),
		ChatModel:           envOr("AUTONEX_CHAT_MODEL", "gemini-2.5-flash"),
		ReasoningModel:      envOr("AUTONEX_REASONING_MODEL", "gemini-2.5-pro"),
		VideoModel:          envOr("AUTONEX_VIDEO_MODEL", "gemini-2.5-pro"),
		ImageModel:          envOr("AUTONEX_IMAGE_MODEL", "imagen-4.0-generate-001"),
		ImageEditModel:      envOr("AUTONEX_IMAGE_EDIT_MODEL", "gemini-2.5-flash-image"),
		LiveModel:           envOr("AUTONEX_LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-09-2025"),
		TTSModel:            envOr("AUTONEX_TTS_MODEL", "gemini-2.5-flash-preview-tts"),
		TTSVoice:            envOr("AUTONEX_TTS_VOICE", "Kore"),
		ThinkingBudget:      envIntOr("AUTONEX_THINKING_BUDGET", 32768),
		LiveTransport:       LiveTransport(strings.ToLower(envOr("AUTONEX_LIVE_TRANSPORT", string(LiveTransportGenAI)))),
		LiveURL:             envOr("AUTONEX_LIVE_URL", ""),
		CaptureFrameSamples: envIntOr("AUTONEX_CAPTURE_FRAME_SAMPLES", 4096),
		ConnectTimeout:      envDurationOr("AUTONEX_CONNECT_TIMEOUT", 15*time.Second),
		DBPath:              envOr("AUTONEX_DB_PATH", defaultDBPath()),
		MetricsAddr:         envOr("AUTONEX_METRICS_ADDR", ""),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envOr("AUTONEX_LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("AUTONEX_LOG_LEVEL: %w", err)
	}

	if cfg.APIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY must be set")
	}
	switch cfg.LiveTransport {
	case LiveTransportGenAI, LiveTransportWebsocket:
	default:
		return Config{}, fmt.Errorf("AUTONEX_LIVE_TRANSPORT must be one of genai|websocket")
	}
	if cfg.CaptureFrameSamples <= 0 {
		return Config{}, fmt.Errorf("AUTONEX_CAPTURE_FRAME_SAMPLES must be > 0")
	}
	if cfg.ThinkingBudget <= 0 {
		return Config{}, fmt.Errorf("AUTONEX_THINKING_BUDGET must be > 0")
	}
	if cfg.ConnectTimeout <= 0 {
		return Config{}, fmt.Errorf("AUTONEX_CONNECT_TIMEOUT must be > 0")
	}
	return cfg, nil
}

func defaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "autonex.db"
	}
	return filepath.Join(dir, "autonex", "autonex.db")
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if v := envOr(key, ""); v != "" {
			return v
		}
	}
	return ""
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
