package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"video-insights-go/internal/analysis"
	"video-insights-go/internal/mediastore"
	"video-insights-go/internal/metrics"
	"video-insights-go/internal/types"
)

// fakeTranscriber writes the stored bytes into a one-cue SRT file.
type fakeTranscriber struct {
	dir       string
	err       error
	panicMsg  string
	block     bool
	badPath   bool
	altPath   bool
	deleteErr error
	calls     atomic.Int32

	mu    sync.Mutex
	paths []string
}

func (f *fakeTranscriber) ArtifactPath(m types.StoredMedia) string {
	return filepath.Join(f.dir, m.ID+".srt")
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, m types.StoredMedia) (types.SubtitleArtifact, error) {
	f.calls.Add(1)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.block {
		<-ctx.Done()
		return types.SubtitleArtifact{}, ctx.Err()
	}
	if f.err != nil {
		return types.SubtitleArtifact{}, f.err
	}
	if f.badPath {
		return types.SubtitleArtifact{Path: filepath.Join(f.dir, "missing.srt")}, nil
	}

	data, err := os.ReadFile(m.Path)
	if err != nil {
		return types.SubtitleArtifact{}, err
	}
	path := f.ArtifactPath(m)
	if f.altPath {
		path = filepath.Join(f.dir, m.ID+"-renamed.srt")
	}
	srt := "1\n00:00:00,000 --> 00:00:01,000\n" + string(data) + "\n\n"
	if err := os.WriteFile(path, []byte(srt), 0o644); err != nil {
		return types.SubtitleArtifact{}, err
	}

	f.mu.Lock()
	f.paths = append(f.paths, m.Path, path)
	f.mu.Unlock()
	return types.SubtitleArtifact{Path: path, Segments: []types.Segment{{Index: 1, End: time.Second, Text: string(data)}}}, nil
}

func (f *fakeTranscriber) Delete(a types.SubtitleArtifact) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	return mediastore.Remove(a.Path)
}

type analyzerFunc func(ctx context.Context, prompt string) (types.AnalysisResult, error)

func (fn analyzerFunc) Analyze(ctx context.Context, prompt string) (types.AnalysisResult, error) {
	return fn(ctx, prompt)
}

func staticAnalyzer(body string) Analyzer {
	return analyzerFunc(func(context.Context, string) (types.AnalysisResult, error) {
		return types.AnalysisResult(body), nil
	})
}

type failingDeleteStore struct {
	*mediastore.Store
}

func (failingDeleteStore) Delete(types.StoredMedia) error {
	return errors.New("permission denied")
}

type failingPersistStore struct {
	*mediastore.Store
}

func (failingPersistStore) Persist(context.Context, string, string, []byte) (types.StoredMedia, error) {
	return types.StoredMedia{}, errors.New("disk full")
}

type harness struct {
	uploads string
	subs    string
	store   *mediastore.Store
	tr      *fakeTranscriber
	hook    *test.Hook
	log     *logrus.Entry

	mu          sync.Mutex
	transitions []State
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		uploads: filepath.Join(root, "uploads"),
		subs:    filepath.Join(root, "transcriptions"),
	}
	require.NoError(t, os.MkdirAll(h.subs, 0o755))

	store, err := mediastore.New(h.uploads)
	require.NoError(t, err)
	h.store = store
	h.tr = &fakeTranscriber{dir: h.subs}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	h.hook = hook
	h.log = logrus.NewEntry(logger)
	return h
}

func (h *harness) orchestrator(t *testing.T, store MediaStore, analyzer Analyzer, mutate ...func(*Deps)) *Orchestrator {
	t.Helper()
	deps := Deps{
		Store:       store,
		Transcriber: h.tr,
		Analyzer:    analyzer,
		Logger:      h.log,
		OnTransition: func(_ string, _, to State) {
			h.mu.Lock()
			h.transitions = append(h.transitions, to)
			h.mu.Unlock()
		},
	}
	for _, m := range mutate {
		m(&deps)
	}
	o, err := New(deps)
	require.NoError(t, err)
	return o
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "expected %s to be empty", dir)
}

func requireStage(t *testing.T, err error, stage Stage) *Error {
	t.Helper()
	require.Error(t, err)
	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, stage, pe.Stage)
	assert.Equal(t, stage, StageOf(err))
	return pe
}

func TestProcessSuccess(t *testing.T) {
	h := newHarness(t)
	body := `{"summary": "a talk about Go", "keywords": ["go", "pipelines"]}`

	var gotPrompt string
	analyzer := analyzerFunc(func(_ context.Context, p string) (types.AnalysisResult, error) {
		gotPrompt = p
		return types.AnalysisResult(body), nil
	})
	o := h.orchestrator(t, h.store, analyzer)

	res, err := o.Process(context.Background(), types.UploadRequest{Filename: "clip.mp4", Data: []byte("spoken words")})
	require.NoError(t, err)
	assert.Equal(t, body, string(res))
	assert.Contains(t, gotPrompt, "spoken words")
	assert.Contains(t, gotPrompt, "REPLY IN JSON FORMAT")

	assertEmptyDir(t, h.uploads)
	assertEmptyDir(t, h.subs)
	assert.Equal(t, []State{
		StateReceived, StateValidated, StateStored, StateTranscribed, StateAnalyzed, StateCompleted,
	}, h.transitions)
}

func TestProcessRejectsUnsupportedExtension(t *testing.T) {
	for _, name := range []string{"notes.txt", "clip", "archive.mp4.zip", ""} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			o := h.orchestrator(t, h.store, staticAnalyzer(`{}`))

			_, err := o.Process(context.Background(), types.UploadRequest{Filename: name, Data: []byte("x")})
			pe := requireStage(t, err, StageValidation)
			assert.Equal(t, "Invalid video file format", pe.Message)
			assert.ErrorIs(t, err, mediastore.ErrUnsupportedFormat)

			assertEmptyDir(t, h.uploads)
			assert.Zero(t, h.tr.calls.Load())
			assert.Equal(t, []State{StateReceived, StateFailed}, h.transitions)
		})
	}
}

func TestProcessAcceptsUppercaseExtension(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t, h.store, staticAnalyzer(`{"ok":true}`))

	_, err := o.Process(context.Background(), types.UploadRequest{Filename: "HOLIDAY.MKV", Data: []byte("x")})
	require.NoError(t, err)
}

func TestProcessPersistFailure(t *testing.T) {
	h := newHarness(t)
	o := h.orchestrator(t, failingPersistStore{h.store}, staticAnalyzer(`{}`))

	_, err := o.Process(context.Background(), types.UploadRequest{Filename: "clip.avi", Data: []byte("x")})
	pe := requireStage(t, err, StagePersist)
	assert.True(t, strings.HasPrefix(pe.Message, "Failed to store upload: "))
	assert.Zero(t, h.tr.calls.Load())
}

func TestProcessTranscriptionFailureCleansUp(t *testing.T) {
	h := newHarness(t)
	h.tr.err = errors.New("whisper exited with code 1")
	o := h.orchestrator(t, h.store, staticAnalyzer(`{}`))

	_, err := o.Process(context.Background(), types.UploadRequest{Filename: "clip.mov", Data: []byte("x")})
	pe := requireStage(t, err, StageTranscription)
	assert.Equal(t, "Transcription failed: whisper exited with code 1", pe.Message)

	assertEmptyDir(t, h.uploads)
	assertEmptyDir(t, h.subs)
}

func TestProcessUnreadableTranscript(t *testing.T) {
	h := newHarness(t)
	h.tr.badPath = true
	o := h.orchestrator(t, h.store, staticAnalyzer(`{}`))

	_, err := o.Process(context.Background(), types.UploadRequest{Filename: "clip.mp4", Data: []byte("x")})
	requireStage(t, err, StageTranscription)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assertEmptyDir(t, h.uploads)
}

func TestProcessAnalysisFailureCleansUp(t *testing.T) {
	h := newHarness(t)
	analyzer := analyzerFunc(func(context.Context, string) (types.AnalysisResult, error) {
		return nil, analysis.ErrInvalidJSON
	})
	o := h.orchestrator(t, h.store, analyzer)

	_, err := o.Process(context.Background(), types.UploadRequest{Filename: "clip.mp4", Data: []byte("x")})
	pe := requireStage(t, err, StageAnalysis)
	assert.ErrorIs(t, err, analysis.ErrInvalidJSON)
	assert.True(t, strings.HasPrefix(pe.Message, "Analysis failed: "))

	assertEmptyDir(t, h.uploads)
	assertEmptyDir(t, h.subs)
	assert.Equal(t, StateFailed, h.transitions[len(h.transitions)-1])
}

func TestProcessRecoversPanics(t *testing.T) {
	h := newHarness(t)
	h.tr.panicMsg = "nil engine"
	o := h.orchestrator(t, h.store, staticAnalyzer(`{}`))

	var err error
	require.NotPanics(t, func() {
		_, err = o.Process(context.Background(), types.UploadRequest{Filename: "clip.mp4", Data: []byte("x")})
	})
	pe := requireStage(t, err, StageTranscription)
	assert.Contains(t, pe.Message, "nil engine")
	assertEmptyDir(t, h.uploads)

	var recovered *logrus.Entry
	for _, e := range h.hook.AllEntries() {
		if e.Message == "recovered panic in pipeline stage" {
			recovered = e
		}
	}
	require.NotNil(t, recovered)
	assert.NotEmpty(t, recovered.Data["request_id"])
	assert.Equal(t, "clip.mp4", recovered.Data["filename"])
	assert.Equal(t, StageTranscription, recovered.Data["stage"])
}

func TestProcessRemovesReturnedArtifactPath(t *testing.T) {
	h := newHarness(t)
	h.tr.altPath = true
	o := h.orchestrator(t, h.store, staticAnalyzer(`{"ok":true}`))

	_, err := o.Process(context.Background(), types.UploadRequest{Filename: "clip.mp4", Data: []byte("x")})
	require.NoError(t, err)
	assertEmptyDir(t, h.uploads)
	assertEmptyDir(t, h.subs)
}

func TestProcessRemovesReturnedArtifactPathOnAnalysisFailure(t *testing.T) {
	h := newHarness(t)
	h.tr.altPath = true
	analyzer := analyzerFunc(func(context.Context, string) (types.AnalysisResult, error) {
		return nil, analysis.ErrInvalidJSON
	})
	o := h.orchestrator(t, h.store, analyzer)

	_, err := o.Process(context.Background(), types.UploadRequest{Filename: "clip.mp4", Data: []byte("x")})
	requireStage(t, err, StageAnalysis)
	assertEmptyDir(t, h.uploads)
	assertEmptyDir(t, h.subs)
}

func TestProcessCleanupFailureDoesNotMaskResult(t *testing.T) {
	h := newHarness(t)
	h.tr.deleteErr = errors.New("read-only file system")
	o := h.orchestrator(t, failingDeleteStore{h.store}, staticAnalyzer(`{"ok":true}`))

	mediaBefore := testutil.ToFloat64(metrics.CleanupFailures.WithLabelValues("media"))
	subBefore := testutil.ToFloat64(metrics.CleanupFailures.WithLabelValues("subtitle"))

	res, err := o.Process(context.Background(), types.UploadRequest{Filename: "clip.mp4", Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(res))

	assert.Equal(t, mediaBefore+1, testutil.ToFloat64(metrics.CleanupFailures.WithLabelValues("media")))
	assert.Equal(t, subBefore+1, testutil.ToFloat64(metrics.CleanupFailures.WithLabelValues("subtitle")))

	var cleanupErrors int
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["stage"] == StageCleanup {
			cleanupErrors++
		}
	}
	assert.Equal(t, 2, cleanupErrors, "both removals should be attempted and logged")
}

func TestProcessCleanupFailureKeepsOriginalError(t *testing.T) {
	h := newHarness(t)
	h.tr.err = errors.New("engine crashed")
	o := h.orchestrator(t, failingDeleteStore{h.store}, staticAnalyzer(`{}`))

	_, err := o.Process(context.Background(), types.UploadRequest{Filename: "clip.mp4", Data: []byte("x")})
	pe := requireStage(t, err, StageTranscription)
	assert.Equal(t, "Transcription failed: engine crashed", pe.Message)
}

func TestProcessTranscriptionTimeout(t *testing.T) {
	h := newHarness(t)
	h.tr.block = true
	o := h.orchestrator(t, h.store, staticAnalyzer(`{}`), func(d *Deps) {
		d.TranscriptionTimeout = 20 * time.Millisecond
	})

	_, err := o.Process(context.Background(), types.UploadRequest{Filename: "clip.mp4", Data: []byte("x")})
	requireStage(t, err, StageTranscription)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assertEmptyDir(t, h.uploads)
}

func TestProcessClientCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	analyzer := analyzerFunc(func(ctx context.Context, _ string) (types.AnalysisResult, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	o := h.orchestrator(t, h.store, analyzer)

	_, err := o.Process(ctx, types.UploadRequest{Filename: "clip.mp4", Data: []byte("x")})
	requireStage(t, err, StageAnalysis)
	assert.ErrorIs(t, err, context.Canceled)
	assertEmptyDir(t, h.uploads)
	assertEmptyDir(t, h.subs)
}

func TestProcessConcurrentIdenticalFilenames(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newHarness(t)
	analyzer := analyzerFunc(func(_ context.Context, p string) (types.AnalysisResult, error) {
		i := strings.Index(p, "payload-")
		if i < 0 {
			return nil, errors.New("payload missing from prompt")
		}
		return types.AnalysisResult(fmt.Sprintf(`{"echo":%q}`, strings.Fields(p[i:])[0])), nil
	})
	o := h.orchestrator(t, h.store, analyzer)

	const n = 16
	results := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := o.Process(context.Background(), types.UploadRequest{
				Filename: "clip.mp4",
				Data:     []byte(fmt.Sprintf("payload-%02d", i)),
			})
			results[i], errs[i] = string(res), err
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf(`{"echo":"payload-%02d"}`, i), results[i])
	}

	seen := make(map[string]bool)
	for _, p := range h.tr.paths {
		assert.False(t, seen[p], "path %s used twice", p)
		seen[p] = true
	}
	assert.Len(t, seen, 2*n)
	assertEmptyDir(t, h.uploads)
	assertEmptyDir(t, h.subs)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", analysisError(cause))

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, StageAnalysis, StageOf(err))
	assert.Equal(t, Stage(""), StageOf(cause))
	assert.Equal(t, "Analysis failed: boom", analysisError(cause).Error())
}
