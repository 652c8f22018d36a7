// Package pipeline runs one upload through validation, storage,
// transcription and analysis, and removes every file it created.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"video-insights-go/internal/mediastore"
	"video-insights-go/internal/metrics"
	"video-insights-go/internal/prompt"
	"video-insights-go/internal/types"
)

// State is the lifecycle position of one request.
type State string

const (
	StateReceived    State = "received"
	StateValidated   State = "validated"
	StateStored      State = "stored"
	StateTranscribed State = "transcribed"
	StateAnalyzed    State = "analyzed"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

// MediaStore persists uploads.
type MediaStore interface {
	Persist(ctx context.Context, id, filename string, data []byte) (types.StoredMedia, error)
	Delete(media types.StoredMedia) error
}

// Transcriber produces a subtitle artifact for stored media.
type Transcriber interface {
	Transcribe(ctx context.Context, media types.StoredMedia) (types.SubtitleArtifact, error)
	ArtifactPath(media types.StoredMedia) string
	Delete(artifact types.SubtitleArtifact) error
}

// Analyzer turns a prompt into a JSON document.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string) (types.AnalysisResult, error)
}

// Deps are the collaborators of an Orchestrator. Store, Transcriber and
// Analyzer are required.
type Deps struct {
	Store       MediaStore
	Transcriber Transcriber
	Analyzer    Analyzer
	Logger      *logrus.Entry

	// NewID names every file a request creates. Defaults to uuid.NewString.
	NewID func() string

	// Zero means no limit beyond the caller's context.
	TranscriptionTimeout time.Duration
	AnalysisTimeout      time.Duration

	OnTransition func(id string, from, to State)
}

// Orchestrator is safe for concurrent use; each Process call is independent.
type Orchestrator struct {
	store       MediaStore
	transcriber Transcriber
	analyzer    Analyzer
	log         *logrus.Entry
	newID       func() string

	transcriptionTimeout time.Duration
	analysisTimeout      time.Duration
	onTransition         func(id string, from, to State)
}

func New(deps Deps) (*Orchestrator, error) {
	if deps.Store == nil || deps.Transcriber == nil || deps.Analyzer == nil {
		return nil, fmt.Errorf("pipeline: store, transcriber and analyzer are required")
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Logger == nil {
		deps.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Orchestrator{
		store:                deps.Store,
		transcriber:          deps.Transcriber,
		analyzer:             deps.Analyzer,
		log:                  deps.Logger,
		newID:                deps.NewID,
		transcriptionTimeout: deps.TranscriptionTimeout,
		analysisTimeout:      deps.AnalysisTimeout,
		onTransition:         deps.OnTransition,
	}, nil
}

// run tracks one request.
type run struct {
	id    string
	state State
	log   *logrus.Entry
	o     *Orchestrator
}

func (r *run) to(next State) {
	prev := r.state
	r.state = next
	r.log.WithFields(logrus.Fields{"from": prev, "to": next}).Debug("state transition")
	if r.o.onTransition != nil {
		r.o.onTransition(r.id, prev, next)
	}
}

func (r *run) fail(err *Error) (types.AnalysisResult, error) {
	r.to(StateFailed)
	metrics.PipelineRuns.WithLabelValues("failed", string(err.Stage)).Inc()
	r.log.WithError(err.Err).WithField("stage", err.Stage).Error(err.Message)
	return nil, err
}

// Process runs the whole pipeline for one upload. Every returned error is a
// *Error. Once the upload is stored, both the stored media and the subtitle
// artifact are removed before Process returns, whatever the outcome.
func (o *Orchestrator) Process(ctx context.Context, req types.UploadRequest) (types.AnalysisResult, error) {
	r := &run{id: o.newID(), state: StateReceived, o: o}
	r.log = o.log.WithFields(logrus.Fields{
		"request_id": r.id,
		"filename":   req.Filename,
		"size":       len(req.Data),
	})
	if r.o.onTransition != nil {
		r.o.onTransition(r.id, "", StateReceived)
	}

	if err := o.guard(r.log, StageValidation, func() error { return mediastore.Validate(req.Filename) }); err != nil {
		return r.fail(validationError(err))
	}
	r.to(StateValidated)

	var media types.StoredMedia
	err := o.guard(r.log, StagePersist, func() error {
		var err error
		media, err = o.store.Persist(ctx, r.id, req.Filename, req.Data)
		return err
	})
	if err != nil {
		return r.fail(persistError(err))
	}
	metrics.UploadBytes.Observe(float64(media.Size))
	r.log.WithField("path", media.Path).Info("upload stored")
	r.to(StateStored)

	var artifact types.SubtitleArtifact
	err = o.guard(r.log, StageTranscription, func() error {
		tctx, cancel := withTimeout(ctx, o.transcriptionTimeout)
		defer cancel()
		var err error
		artifact, err = o.transcriber.Transcribe(tctx, media)
		return err
	})
	if err != nil {
		o.cleanup(r.log, media, artifact)
		return r.fail(transcriptionError(err))
	}
	r.to(StateTranscribed)

	content, err := os.ReadFile(artifact.Path)
	if err != nil {
		o.cleanup(r.log, media, artifact)
		return r.fail(transcriptionError(fmt.Errorf("read transcript: %w", err)))
	}

	var result types.AnalysisResult
	err = o.guard(r.log, StageAnalysis, func() error {
		actx, cancel := withTimeout(ctx, o.analysisTimeout)
		defer cancel()
		var err error
		result, err = o.analyzer.Analyze(actx, prompt.Build(string(content)))
		return err
	})
	if err != nil {
		o.cleanup(r.log, media, artifact)
		return r.fail(analysisError(err))
	}
	r.to(StateAnalyzed)

	o.cleanup(r.log, media, artifact)
	r.to(StateCompleted)
	metrics.PipelineRuns.WithLabelValues("completed", "").Inc()
	r.log.WithFields(logrus.Fields{
		"segments":       len(artifact.Segments),
		"prompt_version": prompt.Version,
	}).Info("analysis completed")
	return result, nil
}

// guard times a stage and turns a panic inside it into an error.
func (o *Orchestrator) guard(log *logrus.Entry, stage Stage, fn func() error) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			log.WithFields(logrus.Fields{
				"stage": stage,
				"stack": string(debug.Stack()),
			}).Error("recovered panic in pipeline stage")
			err = fmt.Errorf("internal error: %v", p)
		}
		metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}()
	return fn()
}

// cleanup removes the subtitle artifact and the stored media. The expected
// artifact path is always removed, and so is the path the transcriber
// returned when it differs. Each removal is attempted independently and
// failures are only logged.
func (o *Orchestrator) cleanup(log *logrus.Entry, media types.StoredMedia, produced types.SubtitleArtifact) {
	expected := types.SubtitleArtifact{Path: o.transcriber.ArtifactPath(media)}
	o.remove(log, "subtitle", expected.Path, func() error { return o.transcriber.Delete(expected) })
	if produced.Path != "" && produced.Path != expected.Path {
		o.remove(log, "subtitle", produced.Path, func() error { return o.transcriber.Delete(produced) })
	}
	o.remove(log, "media", media.Path, func() error { return o.store.Delete(media) })
}

func (o *Orchestrator) remove(log *logrus.Entry, kind, path string, fn func() error) {
	if err := o.guard(log, StageCleanup, fn); err != nil {
		metrics.CleanupFailures.WithLabelValues(kind).Inc()
		log.WithError(err).WithFields(logrus.Fields{
			"stage":    StageCleanup,
			"artifact": kind,
			"path":     path,
		}).Error("failed to remove " + kind)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
