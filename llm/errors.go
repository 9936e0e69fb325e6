package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/openai/openai-go"
)

var (
	ErrMissingAPIKey = errors.New("llm: API key is missing")
	ErrCircuitOpen   = errors.New("llm: circuit breaker is open")
)

// ErrorKind categorizes failures that are expected to clear up on retry.
type ErrorKind int

const (
	KindConnection ErrorKind = iota
	KindAPI
	KindRateLimit
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindAPI:
		return "api"
	case KindRateLimit:
		return "rate_limit"
	}
	return "unknown"
}

// TransientError wraps a remote failure that may be retried. RetryAfter is
// the delay the server suggested, zero when it did not suggest one.
type TransientError struct {
	Kind       ErrorKind
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("llm: transient %s error: %v", e.Kind, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	var terr *TransientError
	return errors.As(err, &terr)
}

// classify maps an openai-go error onto the transient taxonomy. Errors that
// are not transient come back unchanged apart from wrapping.
func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	// The caller gave up; never retry that.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var apierr *openai.Error
	if errors.As(err, &apierr) {
		switch {
		case apierr.StatusCode == http.StatusTooManyRequests:
			return &TransientError{Kind: KindRateLimit, RetryAfter: retryAfter(apierr.Response), Err: err}
		case apierr.StatusCode == http.StatusRequestTimeout,
			apierr.StatusCode == http.StatusConflict,
			apierr.StatusCode >= http.StatusInternalServerError:
			return &TransientError{Kind: KindAPI, RetryAfter: retryAfter(apierr.Response), Err: err}
		}
		return fmt.Errorf("llm: request rejected with status %d: %w", apierr.StatusCode, err)
	}

	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.As(err, &netErr),
		errors.As(err, &urlErr),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED):
		return &TransientError{Kind: KindConnection, Err: err}
	}
	return err
}

// retryAfter reads the server's suggested delay. retry-after-ms wins over
// retry-after, which may be either seconds or an HTTP date.
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	if v := strings.TrimSpace(resp.Header.Get("Retry-After-Ms")); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil && ms > 0 {
			return time.Duration(ms * float64(time.Millisecond))
		}
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
