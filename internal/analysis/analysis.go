// Package analysis sends prompts to a language model and returns the JSON
// document it answers with.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"video-insights-go/internal/metrics"
	"video-insights-go/internal/types"
)

var (
	// ErrProvider wraps transport, authentication and quota failures.
	ErrProvider = errors.New("language model request failed")
	// ErrEmptyCompletion means the model answered with no text.
	ErrEmptyCompletion = errors.New("empty completion")
	// ErrInvalidJSON means the completion held no JSON object.
	ErrInvalidJSON = errors.New("completion is not valid JSON")
)

// Analyzer maps a prompt to a parsed JSON document.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string) (types.AnalysisResult, error)
}

// Completer is a single-turn text completion backend.
type Completer interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

type implAnalyzer struct {
	completer Completer
	log       *logrus.Entry
}

// New wraps a completer with JSON parsing.
func New(c Completer, log *logrus.Entry) Analyzer {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &implAnalyzer{completer: c, log: log.WithField("provider", c.Name())}
}

func (a *implAnalyzer) Analyze(ctx context.Context, prompt string) (types.AnalysisResult, error) {
	provider := a.completer.Name()

	text, err := a.completer.Complete(ctx, prompt)
	if err != nil {
		metrics.AnalysisAttempts.WithLabelValues(provider, "provider_error").Inc()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%s: %w", provider, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrProvider, provider, err)
	}

	result, err := Parse(text)
	if err != nil {
		metrics.AnalysisAttempts.WithLabelValues(provider, "invalid_json").Inc()
		a.log.WithFields(logrus.Fields{
			"completion_len": len(text),
			"preview":        preview(text, 200),
		}).Warn("completion did not contain a JSON object")
		return nil, err
	}

	metrics.AnalysisAttempts.WithLabelValues(provider, "ok").Inc()
	a.log.WithFields(logrus.Fields{
		"prompt_len":     len(prompt),
		"completion_len": len(text),
		"result_len":     len(result),
	}).Debug("analysis parsed")
	return result, nil
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
