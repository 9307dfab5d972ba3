package main

import (
	"context"
	"time"
)

// RetryingFetcher retries a source with a fixed delay between attempts.
// Every error kind is retried; the last attempt's error is returned as is.
type RetryingFetcher struct {
	source   ArticleSource
	attempts int
	delay    time.Duration
	logger   Logger
	metrics  *Metrics

	// sleep waits d or until ctx is done. Replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetryingFetcher wraps source. attempts counts the initial call.
func NewRetryingFetcher(source ArticleSource, settings RetrySettings, logger Logger, metrics *Metrics) *RetryingFetcher {
	attempts := settings.Attempts
	if attempts < minAttempts {
		attempts = minAttempts
	}
	if logger == nil {
		logger = NewNopLogger()
	}

	return &RetryingFetcher{
		source:   source,
		attempts: attempts,
		delay:    settings.Delay,
		logger:   logger.With(String("component", "retry")),
		metrics:  metrics,
		sleep:    sleepContext,
	}
}

// Fetch calls the wrapped source until it succeeds or the attempts run out
func (r *RetryingFetcher) Fetch(ctx context.Context, url string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		start := time.Now()
		text, err := r.source.Fetch(ctx, url)
		r.metrics.observeFetch(err, time.Since(start))
		if err == nil {
			return text, nil
		}
		lastErr = err

		if attempt == r.attempts {
			break
		}

		r.logger.Warn("Fetch failed, retrying",
			String("url", url),
			Int("attempt", attempt),
			Int("max_attempts", r.attempts),
			Duration("delay", r.delay),
			Err(err),
		)
		if sleepErr := r.sleep(ctx, r.delay); sleepErr != nil {
			// cancelled while waiting; the next attempt fails fast on ctx
			r.logger.Debug("Retry wait interrupted", String("url", url), Err(sleepErr))
		}
	}
	return "", lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
