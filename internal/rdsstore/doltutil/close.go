// Package doltutil holds small helpers shared by rdsstore's backends.
package doltutil

import (
	"fmt"
	"time"
)

// CloseTimeout bounds how long CloseWithTimeout waits before giving up.
const CloseTimeout = 5 * time.Second

// CloseWithTimeout runs closeFn with a timeout so a hanging driver close
// can't block the caller indefinitely.
func CloseWithTimeout(name string, closeFn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- closeFn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(CloseTimeout):
		return fmt.Errorf("%s close timed out after %v", name, CloseTimeout)
	}
}
