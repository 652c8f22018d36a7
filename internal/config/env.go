package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type lookupFunc func(key string) (string, bool)

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("PORT", &cfg.Server.Port)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("ENVIRONMENT", &cfg.Logging.Environment)
	str("UPLOAD_DIR", &cfg.Paths.Uploads)
	str("TRANSCRIPTION_DIR", &cfg.Paths.Transcriptions)
	str("TEMP_DIR", &cfg.Paths.Temp)
	str("FFMPEG_BINARY", &cfg.FFmpeg.BinaryPath)

	str("TRANSCRIBE_ENGINE", &cfg.Transcription.Engine)
	str("WHISPER_BINARY", &cfg.Transcription.Whisper.BinaryPath)
	str("WHISPER_MODEL", &cfg.Transcription.Whisper.ModelPath)
	str("WHISPER_LANGUAGE", &cfg.Transcription.Whisper.Language)
	str("WHISPER_PROMPT", &cfg.Transcription.Whisper.Prompt)
	str("OPENAI_API_KEY", &cfg.Transcription.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &cfg.Transcription.OpenAI.BaseURL)
	str("OPENAI_TRANSCRIBE_MODEL", &cfg.Transcription.OpenAI.Model)

	str("LLM_PROVIDER", &cfg.Analysis.Provider)
	str("LLM_MODEL", &cfg.Analysis.Model)
	str("LLM_API_KEY", &cfg.Analysis.APIKey)
	str("LLM_GATEWAY_URL", &cfg.Analysis.BaseURL)
	if cfg.Analysis.APIKey == "" {
		switch strings.ToLower(cfg.Analysis.Provider) {
		case ProviderGemini:
			str("GEMINI_API_KEY", &cfg.Analysis.APIKey)
		case ProviderOpenAI:
			str("OPENAI_API_KEY", &cfg.Analysis.APIKey)
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"WHISPER_THREADS", &cfg.Transcription.Whisper.Threads},
		{"TRANSCRIBE_MAX_CONCURRENT", &cfg.Transcription.MaxConcurrent},
		{"LLM_MAX_TOKENS", &cfg.Analysis.MaxTokens},
		{"LLM_MAX_RETRIES", &cfg.Analysis.MaxRetries},
		{"RATE_LIMIT_PER_MINUTE", &cfg.Server.RateLimitPerMinute},
	}
	for _, e := range ints {
		v, ok := lookup(e.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("env %s: %w", e.key, err)
		}
		*e.dst = n
	}

	if v, ok := lookup("MAX_UPLOAD_BYTES"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return fmt.Errorf("env MAX_UPLOAD_BYTES: %w", err)
		}
		cfg.Server.MaxUploadBytes = n
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"TRANSCRIBE_TIMEOUT", &cfg.Transcription.Timeout},
		{"ANALYSIS_TIMEOUT", &cfg.Analysis.Timeout},
		{"LLM_RETRY_FOR", &cfg.Analysis.RetryFor},
	}
	for _, e := range durations {
		v, ok := lookup(e.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("env %s: %w", e.key, err)
		}
		*e.dst = d
	}

	return nil
}
