package rdscache

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryMaxElapsed bounds how long withRetry keeps retrying a transient
// failure before giving up and returning the last error.
const retryMaxElapsed = 5 * time.Second

// isRetryableError reports whether err looks like a transient contention
// error from the underlying SQL driver (SQLite busy/locked, or a MySQL/Dolt
// transient disconnect) rather than a real failure. Mirrors the teacher's
// dolt.isRetryableError classification, generalised across backends since
// this package is backend-agnostic.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "database is locked"),
		strings.Contains(msg, "sqlite_busy"),
		strings.Contains(msg, "busy"),
		strings.Contains(msg, "driver: bad connection"),
		strings.Contains(msg, "invalid connection"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "lost connection"),
		strings.Contains(msg, "gone away"):
		return true
	default:
		return false
	}
}

// withRetry executes op, retrying with exponential backoff while the error
// looks transient. Non-retryable errors return immediately.
func withRetry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Millisecond
	bo.MaxElapsedTime = retryMaxElapsed

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isRetryableError(err) {
			return err // backoff will retry
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}
