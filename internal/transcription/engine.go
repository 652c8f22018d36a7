package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"video-insights-go/internal/executor"
)

// Engine turns a 16 kHz mono WAV file into an SRT file at outputPath.
// Implementations must write exactly outputPath; callers pick the name.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, audioPath, outputPath string) error
}

// WhisperCPP drives the whisper.cpp command line tool.
type WhisperCPP struct {
	exec      executor.Executor
	binary    string
	modelPath string
	language  string
	prompt    string
	threads   int
}

// WhisperOptions configures the whisper.cpp engine.
type WhisperOptions struct {
	BinaryPath string
	ModelPath  string
	Language   string
	Prompt     string
	Threads    int
}

// NewWhisperCPP resolves the model once so a bad path fails at startup
// instead of on the first request.
func NewWhisperCPP(exec executor.Executor, opts WhisperOptions) (*WhisperCPP, error) {
	if strings.TrimSpace(opts.BinaryPath) == "" {
		return nil, fmt.Errorf("whisper binary path is required")
	}
	modelPath, err := resolveModelPath(opts.ModelPath)
	if err != nil {
		return nil, err
	}
	threads := opts.Threads
	if threads <= 0 {
		threads = 4
	}
	return &WhisperCPP{
		exec:      exec,
		binary:    opts.BinaryPath,
		modelPath: modelPath,
		language:  normalizeLanguage(opts.Language),
		prompt:    strings.TrimSpace(opts.Prompt),
		threads:   threads,
	}, nil
}

func (w *WhisperCPP) Name() string { return "whisper-cpp" }

// Transcribe runs whisper.cpp with -osrt. whisper.cpp appends ".srt" to the
// -of prefix, so the prefix is the output path without its extension.
func (w *WhisperCPP) Transcribe(ctx context.Context, audioPath, outputPath string) error {
	prefix := strings.TrimSuffix(outputPath, filepath.Ext(outputPath))
	if _, err := w.exec.Execute(ctx, w.binary, w.args(audioPath, prefix)...); err != nil {
		return fmt.Errorf("whisper transcribe: %w", err)
	}
	if prefix+".srt" != outputPath {
		if err := os.Rename(prefix+".srt", outputPath); err != nil {
			return fmt.Errorf("move whisper output: %w", err)
		}
	}
	return nil
}

// args builds whisper.cpp CLI arguments.
// -ml 0 / -mc 0 leave segment length and context unbounded for long videos.
func (w *WhisperCPP) args(audioPath, prefix string) []string {
	args := []string{
		"-m", w.modelPath,
		"-f", audioPath,
		"-osrt",
		"-of", prefix,
		"-t", strconv.Itoa(w.threads),
		"-ml", "0",
		"-mc", "0",
	}
	if w.language != "" {
		args = append(args, "-l", w.language)
	}
	if w.prompt != "" {
		args = append(args, "--prompt", w.prompt)
	}
	return args
}

// resolveModelPath returns model file path from file or directory input.
func resolveModelPath(rawPath string) (string, error) {
	modelPath := strings.TrimSpace(rawPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := os.Stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path %s: %w", modelPath, err)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := os.ReadDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory %s: %w", modelPath, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", errors.New("no .bin or .gguf model files found in: " + modelPath)
	}

	sort.Strings(names)
	return filepath.Join(modelPath, names[0]), nil
}

// normalizeLanguage maps "auto" and empty language to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}
