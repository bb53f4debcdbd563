package rdscache

import (
	"errors"
	"fmt"
)

// Sentinel error kinds, matching spec §7's error taxonomy. Callers use
// errors.Is against these to decide how to react; the core itself never
// panics.
//
// MalformedQuery has no sentinel: spec §7 says it should "return null
// fingerprint and log. Callers treat as empty result" — the same
// degrade-silently treatment as ExpiredRace, not a returned error.
var (
	// ErrCatalogConflict means a duplicate-insert race was observed despite
	// the build mutex — e.g. another process inserted the same subquery
	// text concurrently, or an expired row for that text is still present.
	// Coordinator handles it internally by looking up the existing row's
	// rds_id and rebuilding under it (catalog.reactivate); it is
	// exported so the recovery path can be tested and so repeated failures
	// (database driver not enforcing the unique constraint) surface clearly.
	ErrCatalogConflict = errors.New("rdscache: catalog insert conflict")
)

// Note on the fourth error kind, ExpiredRace: a Load racing a concurrent
// rebuild that finds no rows is not reported as an error at all — it
// degrades to an empty result, indistinguishable from a query that
// legitimately matches nothing. There is deliberately no sentinel for it.

// dbError wraps a driver error as spec §7's DBError kind: propagated
// verbatim, with the originating subquery text attached for logging.
type dbError struct {
	op       string
	subquery string
	err      error
}

func (e *dbError) Error() string {
	if e.subquery == "" {
		return fmt.Sprintf("rdscache: %s: %v", e.op, e.err)
	}
	return fmt.Sprintf("rdscache: %s (subquery=%q): %v", e.op, e.subquery, e.err)
}

func (e *dbError) Unwrap() error { return e.err }

// wrapDBError wraps a driver error with the operation and subquery text that
// produced it, or returns nil if err is nil.
func wrapDBError(op, subquery string, err error) error {
	if err == nil {
		return nil
	}
	return &dbError{op: op, subquery: subquery, err: err}
}

// IsDBError reports whether err (or an error it wraps) originated from the
// SQL driver.
func IsDBError(err error) bool {
	var dberr *dbError
	return errors.As(err, &dberr)
}
