package transcription

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
	"video-insights-go/internal/executor"
	"video-insights-go/internal/mediastore"
	"video-insights-go/internal/metrics"
	"video-insights-go/internal/subtitle"
	"video-insights-go/internal/types"
)

var (
	// ErrNoOutput means the engine reported success but wrote nothing usable.
	ErrNoOutput = errors.New("transcription produced no subtitle output")
	// ErrBusy means the caller gave up while waiting for the engine slot.
	ErrBusy = errors.New("transcription engine unavailable")
)

// Options configures an Adapter.
type Options struct {
	Engine        Engine
	Executor      executor.Executor
	FFmpegPath    string
	OutputDir     string
	TempDir       string
	MaxConcurrent int
	Logger        *logrus.Entry
}

// Adapter converts stored media into a subtitle artifact. Engine calls go
// through a weighted semaphore because the engine may not be reentrant.
type Adapter struct {
	engine  Engine
	exec    executor.Executor
	ffmpeg  string
	outDir  string
	tempDir string
	slots   *semaphore.Weighted
	log     *logrus.Entry
}

// New creates the transcription output directory and the engine slot pool.
func New(opts Options) (*Adapter, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("transcription engine is required")
	}
	if opts.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if strings.TrimSpace(opts.OutputDir) == "" {
		return nil, fmt.Errorf("transcription directory is required")
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcription dir %s: %w", opts.OutputDir, err)
	}
	if opts.TempDir != "" {
		if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
			return nil, fmt.Errorf("create temp dir %s: %w", opts.TempDir, err)
		}
	}
	ffmpeg := opts.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	slots := opts.MaxConcurrent
	if slots <= 0 {
		slots = 1
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Adapter{
		engine:  opts.Engine,
		exec:    opts.Executor,
		ffmpeg:  ffmpeg,
		outDir:  opts.OutputDir,
		tempDir: opts.TempDir,
		slots:   semaphore.NewWeighted(int64(slots)),
		log:     log.WithField("engine", opts.Engine.Name()),
	}, nil
}

// ArtifactPath is where the transcript for media is written. It is keyed by
// the request id, not the upload's stem.
func (a *Adapter) ArtifactPath(media types.StoredMedia) string {
	return filepath.Join(a.outDir, media.ID+".srt")
}

// Transcribe extracts audio, runs the engine and parses its SRT output.
// On failure no artifact is left behind.
func (a *Adapter) Transcribe(ctx context.Context, media types.StoredMedia) (types.SubtitleArtifact, error) {
	log := a.log.WithField("media_id", media.ID)

	workDir, err := os.MkdirTemp(a.tempDir, "transcribe-"+media.ID+"-*")
	if err != nil {
		return types.SubtitleArtifact{}, fmt.Errorf("create workspace: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.WithError(err).Warn("failed to remove transcription workspace")
		}
	}()

	audioPath := filepath.Join(workDir, "audio-16k-mono.wav")
	if err := a.extractAudio(ctx, media.Path, audioPath); err != nil {
		return types.SubtitleArtifact{}, err
	}

	outPath := a.ArtifactPath(media)
	if err := a.runEngine(ctx, log, audioPath, outPath); err != nil {
		a.discard(log, outPath)
		return types.SubtitleArtifact{}, err
	}

	content, err := os.ReadFile(outPath)
	if err != nil {
		a.discard(log, outPath)
		if errors.Is(err, os.ErrNotExist) {
			return types.SubtitleArtifact{}, ErrNoOutput
		}
		return types.SubtitleArtifact{}, fmt.Errorf("read subtitle: %w", err)
	}
	segments, err := subtitle.Parse(string(content))
	if err != nil {
		a.discard(log, outPath)
		if errors.Is(err, subtitle.ErrNoSegments) {
			return types.SubtitleArtifact{}, fmt.Errorf("%w: no speech detected", ErrNoOutput)
		}
		return types.SubtitleArtifact{}, fmt.Errorf("parse subtitle: %w", err)
	}

	log.WithFields(logrus.Fields{
		"segments": len(segments),
		"path":     outPath,
	}).Info("transcription saved as SRT")
	return types.SubtitleArtifact{Path: outPath, Segments: segments}, nil
}

// Delete removes a subtitle artifact; a missing file is not an error.
func (a *Adapter) Delete(artifact types.SubtitleArtifact) error {
	return mediastore.Remove(artifact.Path)
}

func (a *Adapter) runEngine(ctx context.Context, log *logrus.Entry, audioPath, outPath string) error {
	metrics.TranscriptionWaiting.Inc()
	err := a.slots.Acquire(ctx, 1)
	metrics.TranscriptionWaiting.Dec()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBusy, err)
	}
	defer a.slots.Release(1)

	metrics.TranscriptionInFlight.Inc()
	defer metrics.TranscriptionInFlight.Dec()

	start := time.Now()
	log.Debug("engine slot acquired")
	if err := a.engine.Transcribe(ctx, audioPath, outPath); err != nil {
		return err
	}
	log.WithField("duration_ms", time.Since(start).Milliseconds()).Debug("engine finished")
	return nil
}

// extractAudio converts the upload to 16 kHz mono PCM, the input whisper expects.
func (a *Adapter) extractAudio(ctx context.Context, videoPath, audioPath string) error {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", videoPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		audioPath,
	}
	if _, err := a.exec.Execute(ctx, a.ffmpeg, args...); err != nil {
		return fmt.Errorf("ffmpeg extract audio: %w", err)
	}
	if info, err := os.Stat(audioPath); err != nil || info.Size() == 0 {
		return fmt.Errorf("ffmpeg extract audio: no audio output")
	}
	return nil
}

func (a *Adapter) discard(log *logrus.Entry, path string) {
	if err := mediastore.Remove(path); err != nil {
		log.WithError(err).Warn("failed to remove partial subtitle")
	}
}
