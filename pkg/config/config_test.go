package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

var autonexEnvKeys = []string{
	"GEMINI_API_KEY",
	"GOOGLE_API_KEY",
	"API_KEY",
	"AUTONEX_CHAT_MODEL",
	"AUTONEX_REASONING_MODEL",
	"AUTONEX_VIDEO_MODEL",
	"AUTONEX_IMAGE_MODEL",
	"AUTONEX_IMAGE_EDIT_MODEL",
	"AUTONEX_LIVE_MODEL",
	"AUTONEX_TTS_MODEL",
	"AUTONEX_TTS_VOICE",
	"AUTONEX_THINKING_BUDGET",
	"AUTONEX_LIVE_TRANSPORT",
	"AUTONEX_LIVE_URL",
	"AUTONEX_CAPTURE_FRAME_SAMPLES",
	"AUTONEX_CONNECT_TIMEOUT",
	"AUTONEX_DB_PATH",
	"AUTONEX_LOG_LEVEL",
	"AUTONEX_METRICS_ADDR",
}

func clearAutonexEnv(t *testing.T) {
	t.Helper()
	for _, key := range autonexEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearAutonexEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.APIKey != "k" {
		t.Fatalf("APIKey = %q, want k", cfg.APIKey)
	}
	if cfg.ChatModel != "gemini-2.5-flash" {
		t.Fatalf("ChatModel = %q", cfg.ChatModel)
	}
	if cfg.ReasoningModel != "gemini-2.5-pro" || cfg.VideoModel != "gemini-2.5-pro" {
		t.Fatalf("ReasoningModel = %q, VideoModel = %q", cfg.ReasoningModel, cfg.VideoModel)
	}
	if cfg.ImageModel != "imagen-4.0-generate-001" {
		t.Fatalf("ImageModel = %q", cfg.ImageModel)
	}
	if cfg.ImageEditModel != "gemini-2.5-flash-image" {
		t.Fatalf("ImageEditModel = %q", cfg.ImageEditModel)
	}
	if cfg.LiveModel != "gemini-2.5-flash-native-audio-preview-09-2025" {
		t.Fatalf("LiveModel = %q", cfg.LiveModel)
	}
	if cfg.TTSVoice != "Kore" {
		t.Fatalf("TTSVoice = %q, want Kore", cfg.TTSVoice)
	}
	if cfg.ThinkingBudget != 32768 {
		t.Fatalf("ThinkingBudget = %d, want 32768", cfg.ThinkingBudget)
	}
	if cfg.LiveTransport != LiveTransportGenAI {
		t.Fatalf("LiveTransport = %q, want genai", cfg.LiveTransport)
	}
	if cfg.CaptureFrameSamples != 4096 {
		t.Fatalf("CaptureFrameSamples = %d, want 4096", cfg.CaptureFrameSamples)
	}
	if cfg.ConnectTimeout != 15*time.Second {
		t.Fatalf("ConnectTimeout = %v, want 15s", cfg.ConnectTimeout)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v, want INFO", cfg.LogLevel)
	}
	if cfg.DBPath != defaultDBPath() {
		t.Fatalf("DBPath = %q, want %q", cfg.DBPath, defaultDBPath())
	}
	if cfg.MetricsAddr != "" || cfg.LiveURL != "" {
		t.Fatalf("MetricsAddr = %q, LiveURL = %q, want empty", cfg.MetricsAddr, cfg.LiveURL)
	}
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearAutonexEnv(t)
	t.Setenv("GOOGLE_API_KEY", "fallback")
	t.Setenv("AUTONEX_LIVE_TRANSPORT", "WebSocket")
	t.Setenv("AUTONEX_LIVE_URL", "ws://127.0.0.1:9999/live")
	t.Setenv("AUTONEX_CAPTURE_FRAME_SAMPLES", "2048")
	t.Setenv("AUTONEX_CONNECT_TIMEOUT", "3s")
	t.Setenv("AUTONEX_LOG_LEVEL", "debug")
	t.Setenv("AUTONEX_DB_PATH", ":memory:")
	t.Setenv("AUTONEX_METRICS_ADDR", ":9464")
	t.Setenv("AUTONEX_TTS_VOICE", "Puck")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.APIKey != "fallback" {
		t.Fatalf("APIKey = %q, want fallback", cfg.APIKey)
	}
	if cfg.LiveTransport != LiveTransportWebsocket {
		t.Fatalf("LiveTransport = %q, want websocket", cfg.LiveTransport)
	}
	if cfg.LiveURL != "ws://127.0.0.1:9999/live" {
		t.Fatalf("LiveURL = %q", cfg.LiveURL)
	}
	if cfg.CaptureFrameSamples != 2048 {
		t.Fatalf("CaptureFrameSamples = %d, want 2048", cfg.CaptureFrameSamples)
	}
	if cfg.ConnectTimeout != 3*time.Second {
		t.Fatalf("ConnectTimeout = %v, want 3s", cfg.ConnectTimeout)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v, want DEBUG", cfg.LogLevel)
	}
	if cfg.DBPath != ":memory:" || cfg.MetricsAddr != ":9464" || cfg.TTSVoice != "Puck" {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestLoadFromEnv_APIKeyPrecedence(t *testing.T) {
	clearAutonexEnv(t)
	t.Setenv("API_KEY", "third")
	t.Setenv("GOOGLE_API_KEY", "second")
	t.Setenv("GEMINI_API_KEY", "first")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.APIKey != "first" {
		t.Fatalf("APIKey = %q, want first", cfg.APIKey)
	}
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"missing key", map[string]string{}, "GEMINI_API_KEY"},
		{"unknown transport", map[string]string{"GEMINI_API_KEY": "k", "AUTONEX_LIVE_TRANSPORT": "grpc"}, "AUTONEX_LIVE_TRANSPORT"},
		{"zero frame size", map[string]string{"GEMINI_API_KEY": "k", "AUTONEX_CAPTURE_FRAME_SAMPLES": "0"}, "AUTONEX_CAPTURE_FRAME_SAMPLES"},
		{"negative budget", map[string]string{"GEMINI_API_KEY": "k", "AUTONEX_THINKING_BUDGET": "-1"}, "AUTONEX_THINKING_BUDGET"},
		{"bad log level", map[string]string{"GEMINI_API_KEY": "k", "AUTONEX_LOG_LEVEL": "loud"}, "AUTONEX_LOG_LEVEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearAutonexEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if err == nil {
				t.Fatal("LoadFromEnv() error = nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %q, want mention of %s", err, tt.wantErr)
			}
		})
	}
}
