package analysis

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"video-insights-go/internal/types"
)

type retrying struct {
	next       Analyzer
	maxRetries int
	maxElapsed time.Duration
	initial    time.Duration
	log        *logrus.Entry
}

// Retrying retries failed analyses with exponential backoff, up to maxRetries
// extra attempts and maxElapsed in total. maxRetries <= 0 returns next as is.
func Retrying(next Analyzer, maxRetries int, maxElapsed time.Duration, log *logrus.Entry) Analyzer {
	if maxRetries <= 0 {
		return next
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &retrying{
		next:       next,
		maxRetries: maxRetries,
		maxElapsed: maxElapsed,
		initial:    backoff.DefaultInitialInterval,
		log:        log,
	}
}

func (r *retrying) Analyze(ctx context.Context, prompt string) (types.AnalysisResult, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.initial
	bo.MaxElapsedTime = r.maxElapsed

	var result types.AnalysisResult
	op := func() error {
		res, err := r.next.Analyze(ctx, prompt)
		if err == nil {
			result = res
			return nil
		}
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.log.WithError(err).WithField("retry_in", wait.String()).Warn("analysis attempt failed")
	}

	b := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(r.maxRetries)), ctx)
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return result, nil
}
