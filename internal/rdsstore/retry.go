package rdsstore

import (
	"context"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// connectRetryMaxElapsed bounds how long Open retries a transient connection
// failure before giving up, mirroring the teacher's serverRetryMaxElapsed for
// its MySQL/Dolt server-mode driver, which has no built-in reconnect logic.
const connectRetryMaxElapsed = 30 * time.Second

func newConnectRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = connectRetryMaxElapsed
	return bo
}

// isRetryableConnectError reports whether err looks like a transient
// connection hiccup (stale pool connection, brief network blip, server still
// starting) rather than a permanent configuration problem.
func isRetryableConnectError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"gone away",
		"database is locked",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// withConnectRetry retries op against transient connection errors, giving up
// immediately on anything that looks permanent.
func withConnectRetry(ctx context.Context, op func() error) error {
	bo := backoff.WithContext(newConnectRetryBackoff(), ctx)
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isRetryableConnectError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
}
