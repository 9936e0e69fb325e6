package convo

import (
	"context"
	"testing"
	"time"

	"github.com/boat-builder/convo/llm"
	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		err     *llm.TransientError
		attempt int
		want    time.Duration
	}{
		{
			name:   "fixed default",
			policy: DefaultRetryPolicy(),
			err:    &llm.TransientError{Kind: llm.KindConnection},
			want:   3 * time.Second,
		},
		{
			name:    "fixed default ignores attempt",
			policy:  DefaultRetryPolicy(),
			err:     &llm.TransientError{Kind: llm.KindAPI},
			attempt: 2,
			want:    3 * time.Second,
		},
		{
			name:   "server suggestion",
			policy: DefaultRetryPolicy(),
			err:    &llm.TransientError{Kind: llm.KindRateLimit, RetryAfter: 1500 * time.Millisecond},
			want:   1500 * time.Millisecond,
		},
		{
			name:    "linear step",
			policy:  RetryPolicy{MaxAttempts: 4, DefaultDelay: time.Second, Step: 500 * time.Millisecond},
			err:     &llm.TransientError{Kind: llm.KindAPI},
			attempt: 2,
			want:    2 * time.Second,
		},
		{
			name:   "nil error falls back to default",
			policy: DefaultRetryPolicy(),
			want:   3 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Backoff(tt.err, tt.attempt))
		})
	}
}

func TestRetryPolicy_Attempts(t *testing.T) {
	assert.Equal(t, 3, DefaultRetryPolicy().attempts())
	assert.Equal(t, 1, RetryPolicy{}.attempts())
	assert.Equal(t, 1, RetryPolicy{MaxAttempts: -2}.attempts())
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, sleepContext(context.Background(), time.Millisecond))
	assert.NoError(t, sleepContext(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
