//go:build !cgo

package rdsstore

import (
	"context"
	"database/sql"
	"fmt"
)

var errDoltNoCGO = fmt.Errorf("rdsstore: DialectDolt requires CGO; rebuild with CGO_ENABLED=1")

// openDoltEmbedded is a stub for non-CGO builds: dolthub/driver is CGO-only,
// so a binary built without it can't open the embedded Dolt backend. Build
// with CGO or use DialectMySQL against a dolt sql-server instead.
func openDoltEmbedded(_ context.Context, _ Config) (*sql.DB, error) {
	return nil, errDoltNoCGO
}
