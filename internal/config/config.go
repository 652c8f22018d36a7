package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Transcription engines.
const (
	EngineWhisperCPP = "whisper-cpp"
	EngineOpenAI     = "openai"
)

// Analysis providers.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	Paths         PathsConfig         `yaml:"paths"`
	FFmpeg        FFmpegConfig        `yaml:"ffmpeg"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Analysis      AnalysisConfig      `yaml:"analysis"`
}

type ServerConfig struct {
	Port               string        `yaml:"port"`
	MaxUploadBytes     int64         `yaml:"max_upload_bytes"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	IdleTimeout        time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Environment string `yaml:"environment"`
}

type PathsConfig struct {
	Uploads        string `yaml:"uploads"`
	Transcriptions string `yaml:"transcriptions"`
	Temp           string `yaml:"temp"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
}

type TranscriptionConfig struct {
	Engine        string        `yaml:"engine"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	Timeout       time.Duration `yaml:"timeout"`
	Whisper       WhisperConfig `yaml:"whisper"`
	OpenAI        OpenAIConfig  `yaml:"openai"`
}

type WhisperConfig struct {
	BinaryPath string `yaml:"binary_path"`
	ModelPath  string `yaml:"model_path"`
	Language   string `yaml:"language"`
	Prompt     string `yaml:"prompt"`
	Threads    int    `yaml:"threads"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type AnalysisConfig struct {
	Provider   string        `yaml:"provider"`
	Model      string        `yaml:"model"`
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	MaxTokens  int           `yaml:"max_tokens"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryFor   time.Duration `yaml:"retry_for"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               "8000",
			MaxUploadBytes:     256 << 20,
			RateLimitPerMinute: 60,
			ReadTimeout:        5 * time.Minute,
			IdleTimeout:        120 * time.Second,
			ShutdownTimeout:    30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Environment: "local"},
		Paths: PathsConfig{
			Uploads:        "uploads",
			Transcriptions: "transcriptions",
		},
		FFmpeg: FFmpegConfig{BinaryPath: "ffmpeg"},
		Transcription: TranscriptionConfig{
			Engine:        EngineWhisperCPP,
			MaxConcurrent: 1,
			Whisper: WhisperConfig{
				BinaryPath: "whisper-cli",
				ModelPath:  "models/ggml-large-v3-turbo.bin",
				Threads:    4,
			},
			OpenAI: OpenAIConfig{Model: "whisper-1"},
		},
		Analysis: AnalysisConfig{
			Provider:  ProviderOpenAI,
			Model:     "gpt-4o",
			MaxTokens: 8192,
			RetryFor:  time.Minute,
		},
	}
}

// Load builds the config from defaults, an optional YAML file and the
// environment, in that order. A missing file at path is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fills derived defaults and rejects inconsistent settings.
func (c *Config) Validate() error {
	if c.Paths.Uploads == "" {
		return fmt.Errorf("paths.uploads is required")
	}
	if c.Paths.Transcriptions == "" {
		return fmt.Errorf("paths.transcriptions is required")
	}
	if c.Server.Port == "" {
		c.Server.Port = "8000"
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	if c.FFmpeg.BinaryPath == "" {
		c.FFmpeg.BinaryPath = "ffmpeg"
	}

	c.Transcription.Engine = strings.ToLower(strings.TrimSpace(c.Transcription.Engine))
	switch c.Transcription.Engine {
	case EngineWhisperCPP:
		if c.Transcription.Whisper.BinaryPath == "" {
			return fmt.Errorf("transcription.whisper.binary_path is required")
		}
		if c.Transcription.Whisper.ModelPath == "" {
			return fmt.Errorf("transcription.whisper.model_path is required")
		}
		if c.Transcription.Whisper.Threads <= 0 {
			c.Transcription.Whisper.Threads = 4
		}
	case EngineOpenAI:
		if c.Transcription.OpenAI.APIKey == "" {
			return fmt.Errorf("transcription.openai.api_key is required for engine %q", EngineOpenAI)
		}
		if c.Transcription.OpenAI.Model == "" {
			c.Transcription.OpenAI.Model = "whisper-1"
		}
	default:
		return fmt.Errorf("unknown transcription.engine %q", c.Transcription.Engine)
	}
	if c.Transcription.MaxConcurrent <= 0 {
		c.Transcription.MaxConcurrent = 1
	}
	if c.Transcription.Timeout < 0 {
		return fmt.Errorf("transcription.timeout must not be negative")
	}

	c.Analysis.Provider = strings.ToLower(strings.TrimSpace(c.Analysis.Provider))
	switch c.Analysis.Provider {
	case ProviderOpenAI:
		if c.Analysis.Model == "" {
			c.Analysis.Model = "gpt-4o"
		}
	case ProviderGemini:
		if c.Analysis.Model == "" {
			c.Analysis.Model = "gemini-2.5-flash"
		}
	default:
		return fmt.Errorf("unknown analysis.provider %q", c.Analysis.Provider)
	}
	if c.Analysis.APIKey == "" {
		return fmt.Errorf("analysis.api_key is required")
	}
	if c.Analysis.MaxTokens <= 0 {
		c.Analysis.MaxTokens = 8192
	}
	if c.Analysis.MaxRetries < 0 {
		return fmt.Errorf("analysis.max_retries must not be negative")
	}
	if c.Analysis.Timeout < 0 {
		return fmt.Errorf("analysis.timeout must not be negative")
	}
	if c.Analysis.MaxRetries > 0 && c.Analysis.RetryFor <= 0 {
		c.Analysis.RetryFor = time.Minute
	}

	return nil
}
