package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"video-insights-go/internal/analysis"
	"video-insights-go/internal/api"
	"video-insights-go/internal/config"
	"video-insights-go/internal/executor"
	"video-insights-go/internal/logger"
	"video-insights-go/internal/mediastore"
	"video-insights-go/internal/pipeline"
	"video-insights-go/internal/transcription"
)

func main() {
	_ = godotenv.Load() // loads .env

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.Environment)
	log.WithField("service", "video-insights-go").Info("starting service")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.WithError(err).Fatal("service terminated")
	}
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	exec := executor.New()

	store, err := mediastore.New(cfg.Paths.Uploads)
	if err != nil {
		return err
	}

	engine, err := newEngine(cfg, exec)
	if err != nil {
		return err
	}
	transcriber, err := transcription.New(transcription.Options{
		Engine:        engine,
		Executor:      exec,
		FFmpegPath:    cfg.FFmpeg.BinaryPath,
		OutputDir:     cfg.Paths.Transcriptions,
		TempDir:       cfg.Paths.Temp,
		MaxConcurrent: cfg.Transcription.MaxConcurrent,
		Logger:        log.Component("transcription"),
	})
	if err != nil {
		return err
	}

	analyzer, err := newAnalyzer(ctx, cfg, log)
	if err != nil {
		return err
	}

	orch, err := pipeline.New(pipeline.Deps{
		Store:                store,
		Transcriber:          transcriber,
		Analyzer:             analyzer,
		Logger:               log.Component("pipeline"),
		TranscriptionTimeout: cfg.Transcription.Timeout,
		AnalysisTimeout:      cfg.Analysis.Timeout,
	})
	if err != nil {
		return err
	}

	server := api.NewServer(orch, log, api.Options{
		MaxUploadBytes:     cfg.Server.MaxUploadBytes,
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
	})

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":     addr,
			"engine":   engine.Name(),
			"provider": cfg.Analysis.Provider,
			"model":    cfg.Analysis.Model,
		}).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newEngine(cfg *config.Config, exec executor.Executor) (transcription.Engine, error) {
	t := cfg.Transcription
	if t.Engine == config.EngineOpenAI {
		engine, err := transcription.NewOpenAIWhisper(transcription.OpenAIOptions{
			APIKey:   t.OpenAI.APIKey,
			BaseURL:  t.OpenAI.BaseURL,
			Model:    t.OpenAI.Model,
			Language: t.Whisper.Language,
			Prompt:   t.Whisper.Prompt,
		})
		if err != nil {
			return nil, err
		}
		return engine, nil
	}

	engine, err := transcription.NewWhisperCPP(exec, transcription.WhisperOptions{
		BinaryPath: t.Whisper.BinaryPath,
		ModelPath:  t.Whisper.ModelPath,
		Language:   t.Whisper.Language,
		Prompt:     t.Whisper.Prompt,
		Threads:    t.Whisper.Threads,
	})
	if err != nil {
		return nil, err
	}
	return engine, nil
}

func newAnalyzer(ctx context.Context, cfg *config.Config, log *logger.Logger) (analysis.Analyzer, error) {
	a := cfg.Analysis
	var (
		completer analysis.Completer
		err       error
	)
	switch a.Provider {
	case config.ProviderGemini:
		completer, err = analysis.NewGemini(ctx, analysis.GeminiOptions{
			APIKey:    a.APIKey,
			BaseURL:   a.BaseURL,
			Model:     a.Model,
			MaxTokens: a.MaxTokens,
		})
	default:
		completer, err = analysis.NewOpenAIChat(analysis.OpenAIOptions{
			APIKey:    a.APIKey,
			BaseURL:   a.BaseURL,
			Model:     a.Model,
			MaxTokens: a.MaxTokens,
		})
	}
	if err != nil {
		return nil, err
	}

	entry := log.Component("analysis")
	return analysis.Retrying(analysis.New(completer, entry), a.MaxRetries, a.RetryFor, entry), nil
}
