package retry

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cenkalti/backoff/v5"
	"github.com/openai/openai-go/v2"
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"rag-service/internal/apperr"
)

// retryableStatuses are the upstream HTTP statuses worth another attempt.
var retryableStatuses = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// Transient reports whether err is expected to succeed on retry. Domain
// errors are never transient; provider faults are classified by their SDK
// error types and status codes.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if apperr.IsDomain(err) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	if status, ok := statusCode(err); ok {
		return retryableStatuses[status]
	}
	return false
}

// statusCode extracts the HTTP status from the provider SDK error types.
func statusCode(err error) (int, bool) {
	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return oaiErr.StatusCode, true
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode, true
	}
	var genErr genai.APIError
	if errors.As(err, &genErr) {
		return genErr.Code, true
	}
	return 0, false
}

// Retryer wraps calls to flaky upstreams with exponential backoff.
type Retryer struct {
	MaxAttempts int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
	Log         zerolog.Logger
}

// New builds a Retryer with the configured backoff window.
func New(maxAttempts int, minBackoff, maxBackoff time.Duration, log zerolog.Logger) *Retryer {
	return &Retryer{
		MaxAttempts: maxAttempts,
		MinBackoff:  minBackoff,
		MaxBackoff:  maxBackoff,
		Log:         log,
	}
}

// Do runs fn until it succeeds, returns a non-transient error, or the
// attempt budget is exhausted. The original error propagates on exhaustion.
func (r *Retryer) Do(ctx context.Context, op string, fn func() error) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.MinBackoff
	expo.MaxInterval = r.MaxBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		callErr := fn()
		if callErr == nil {
			return struct{}{}, nil
		}
		if !Transient(callErr) {
			return struct{}{}, backoff.Permanent(callErr)
		}
		return struct{}{}, callErr
	},
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(r.MaxAttempts)),
		backoff.WithNotify(func(attemptErr error, wait time.Duration) {
			r.Log.Warn().
				Str("op", op).
				Dur("backoff", wait).
				Err(attemptErr).
				Msg("transient failure, retrying")
		}),
	)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}
