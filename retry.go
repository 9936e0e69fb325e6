package convo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boat-builder/convo/llm"
)

const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 3 * time.Second
)

// RetryPolicy bounds how often a transient endpoint failure is retried.
type RetryPolicy struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	DefaultDelay time.Duration `mapstructure:"default_delay"`
	// Step is added per attempt when the server suggests no delay. Zero keeps the backoff fixed.
	Step time.Duration `mapstructure:"step"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  DefaultMaxAttempts,
		DefaultDelay: DefaultRetryDelay,
	}
}

// Backoff returns how long to wait after the given zero-based attempt failed.
func (p RetryPolicy) Backoff(err *llm.TransientError, attempt int) time.Duration {
	if err != nil && err.RetryAfter > 0 {
		return err.RetryAfter
	}
	return p.DefaultDelay + time.Duration(attempt)*p.Step
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

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

// withRetry calls the endpoint until it succeeds, fails with a non-transient
// error, or the policy runs out of attempts.
func (s *Session) withRetry(ctx context.Context, endpoint string, call func(ctx context.Context) (*llm.Reply, error)) (*llm.Reply, error) {
	maxAttempts := s.retry.attempts()
	for attempt := 0; ; attempt++ {
		start := time.Now()
		reply, err := call(ctx)
		observeRequest(endpoint, err, time.Since(start))
		if err == nil {
			return reply, nil
		}

		var terr *llm.TransientError
		if !errors.As(err, &terr) {
			return nil, err
		}

		if attempt == maxAttempts-1 {
			s.logger.Error().Err(err).Str("endpoint", endpoint).Int("attempt", attempt+1).Msg("Last attempt failed")
			return nil, fmt.Errorf("%w: %s gave up after %d attempts: %w", ErrMaxRetriesExceeded, endpoint, maxAttempts, err)
		}

		delay := s.retry.Backoff(terr, attempt)
		observeRetry(terr.Kind)
		s.logger.Error().
			Err(err).
			Str("endpoint", endpoint).
			Str("kind", terr.Kind.String()).
			Int("attempt", attempt+1).
			Dur("retry_in", delay).
			Msg("Transient error, retrying")
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}
