package transcription

import (
	"context"
	"fmt"
	"os"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

// audioTranscriber is the part of the go-openai client the engine uses.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, request goopenai.AudioRequest) (goopenai.AudioResponse, error)
}

// OpenAIWhisper sends audio to the hosted Whisper API and asks for SRT back.
type OpenAIWhisper struct {
	client   audioTranscriber
	model    string
	language string
	prompt   string
}

// OpenAIOptions configures the hosted Whisper engine.
type OpenAIOptions struct {
	APIKey   string
	BaseURL  string
	Model    string
	Language string
	Prompt   string
}

// NewOpenAIWhisper builds the process-wide API client.
func NewOpenAIWhisper(opts OpenAIOptions) (*OpenAIWhisper, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	cfg := goopenai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	model := opts.Model
	if model == "" {
		model = goopenai.Whisper1
	}
	return &OpenAIWhisper{
		client:   goopenai.NewClientWithConfig(cfg),
		model:    model,
		language: normalizeLanguage(opts.Language),
		prompt:   strings.TrimSpace(opts.Prompt),
	}, nil
}

func (o *OpenAIWhisper) Name() string { return "openai" }

// Transcribe uploads the audio and writes the returned SRT to outputPath.
func (o *OpenAIWhisper) Transcribe(ctx context.Context, audioPath, outputPath string) error {
	resp, err := o.client.CreateTranscription(ctx, goopenai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Format:   goopenai.AudioResponseFormatSRT,
		Language: o.language,
		Prompt:   o.prompt,
	})
	if err != nil {
		return fmt.Errorf("openai transcription: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return fmt.Errorf("openai transcription: empty response")
	}
	if err := os.WriteFile(outputPath, []byte(resp.Text), 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
