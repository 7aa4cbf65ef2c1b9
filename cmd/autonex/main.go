package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"google.golang.org/genai"

	"github.com/autonex-agency/autonex/pkg/app"
	"github.com/autonex-agency/autonex/pkg/config"
	"github.com/autonex-agency/autonex/pkg/core/chat"
	"github.com/autonex-agency/autonex/pkg/metrics"
	"github.com/autonex-agency/autonex/pkg/store"
)

const defaultEnvFile = ".env"

type cliFlags struct {
	EnvFile     string
	DBPath      string
	MetricsAddr string
	Transport   string
}

func parseFlags(args []string) (cliFlags, error) {
	var f cliFlags
	fs := flag.NewFlagSet("autonex", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&f.EnvFile, "env", defaultEnvFile, "dotenv file loaded before reading configuration")
	fs.StringVar(&f.DBPath, "db", "", "session database path (overrides AUTONEX_DB_PATH)")
	fs.StringVar(&f.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides AUTONEX_METRICS_ADDR)")
	fs.StringVar(&f.Transport, "live-transport", "", "genai or websocket (overrides AUTONEX_LIVE_TRANSPORT)")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	if fs.NArg() > 0 {
		return cliFlags{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return f, nil
}

func (f cliFlags) apply(cfg *config.Config) error {
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.MetricsAddr != "" {
		cfg.MetricsAddr = f.MetricsAddr
	}
	if f.Transport != "" {
		switch t := config.LiveTransport(f.Transport); t {
		case config.LiveTransportGenAI, config.LiveTransportWebsocket:
			cfg.LiveTransport = t
		default:
			return fmt.Errorf("-live-transport must be one of genai|websocket, got %q", f.Transport)
		}
	}
	return nil
}

// loadDotEnv loads path into the environment. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func openStore(ctx context.Context, path string) (store.Store, error) {
	if path == ":memory:" {
		return store.NewMemoryStore(), nil
	}
	return store.OpenSQLite(ctx, path)
}

func modelsFromConfig(cfg config.Config) chat.Models {
	return chat.Models{
		Chat:           cfg.ChatModel,
		Reasoning:      cfg.ReasoningModel,
		Video:          cfg.VideoModel,
		Image:          cfg.ImageModel,
		Edit:           cfg.ImageEditModel,
		Speech:         cfg.TTSModel,
		Voice:          cfg.TTSVoice,
		ThinkingBudget: int32(cfg.ThinkingBudget),
	}
}

func serveMetrics(addr string, m *metrics.Metrics, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
	return srv
}

func run(ctx context.Context, cfg config.Config, in io.Reader, out, errOut io.Writer) error {
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: cfg.LogLevel}))
	m := metrics.New("autonex")

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, m, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	st, err := openStore(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("create genai client: %w", err)
	}

	backend := chat.NewGenAIBackend(client, modelsFromConfig(cfg))
	pipeline := chat.NewPipeline(backend, nil, m, logger)
	defer pipeline.Wait()
	state := app.New(ctx, store.NewRepository(st, logger), pipeline, logger)
	defer state.WaitForTitles()

	lv := newLiveVoice(cfg, client, state, m, logger, out)
	defer lv.Close()

	r := &repl{
		app:      state,
		pipeline: pipeline,
		voice:    lv,
		out:      out,
		errOut:   errOut,
	}
	return r.run(ctx, in)
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "autonex: %v\n", err)
		os.Exit(2)
	}
	if err := loadDotEnv(flags.EnvFile); err != nil {
		fmt.Fprintf(os.Stderr, "autonex: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "autonex: %v\n", err)
		os.Exit(1)
	}
	if err := flags.apply(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "autonex: %v\n", err)
		os.Exit(2)
	}

	if err := run(context.Background(), cfg, os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "autonex: %v\n", err)
		os.Exit(1)
	}
}
