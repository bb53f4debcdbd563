package rdscache

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tagsistant/rds/internal/rdsquery"
)

// execer is satisfied by both *sql.DB and *sql.Tx — every SQL operation in
// this package goes through this narrow interface so callers can choose
// whether a given prepare/build runs in its own transaction or directly
// against the pooled connection.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// catalog implements C3: the persistent mapping from subquery text to
// rds_id, with an expiry flag.
type catalog struct {
	db execer
}

func newCatalog(db execer) *catalog {
	return &catalog{db: db}
}

// fetchID returns the existing rds_id for subqueryText, or 0 if none exists.
// If rebuildExpired is true, any existing (RDS_catalog, RDS) rows for this
// text are deleted unconditionally first, and fetchID always returns 0 —
// forcing the caller onto the insert+build path (spec §4.3).
func (c *catalog) fetchID(ctx context.Context, subqueryText string, rebuildExpired bool) (int64, error) {
	ctx, span := tracer.Start(ctx, "rds.catalog.fetch_id",
		trace.WithAttributes(append(subquerySpanAttrs(subqueryText),
			attribute.Bool("rds.rebuild_expired", rebuildExpired))...),
	)

	if rebuildExpired {
		if err := withRetry(ctx, func() error {
			return c.deleteBySubquery(ctx, subqueryText)
		}); err != nil {
			wrapped := wrapDBError("catalog.fetch_id.delete", subqueryText, err)
			endSpan(span, wrapped)
			return 0, wrapped
		}
		endSpan(span, nil)
		return 0, nil
	}

	var id int64
	err := withRetry(ctx, func() error {
		row := c.db.QueryRowContext(ctx, `SELECT rds_id FROM RDS_catalog WHERE subquery = ? AND expired = 0`, subqueryText)
		return row.Scan(&id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		endSpan(span, nil)
		return 0, nil
	}
	if err != nil {
		wrapped := wrapDBError("catalog.fetch_id", subqueryText, err)
		endSpan(span, wrapped)
		return 0, wrapped
	}
	endSpan(span, nil)
	return id, nil
}

// reactivate clears the expired flag and any stale RDS rows for an existing
// catalog entry, so the caller can rebuild it under its original rds_id
// instead of inserting a second row that would collide with the unique
// subquery constraint. Called after insert reports ErrCatalogConflict,
// whether the conflicting row is expired or was inserted by another process.
func (c *catalog) reactivate(ctx context.Context, subqueryText string) (int64, error) {
	ctx, span := tracer.Start(ctx, "rds.catalog.reactivate", trace.WithAttributes(subquerySpanAttrs(subqueryText)...))

	var id int64
	err := withRetry(ctx, func() error {
		row := c.db.QueryRowContext(ctx, `SELECT rds_id FROM RDS_catalog WHERE subquery = ?`, subqueryText)
		return row.Scan(&id)
	})
	if err != nil {
		wrapped := wrapDBError("catalog.reactivate.select", subqueryText, err)
		endSpan(span, wrapped)
		return 0, wrapped
	}

	err = withRetry(ctx, func() error {
		if _, execErr := c.db.ExecContext(ctx, `DELETE FROM RDS WHERE rds_id = ?`, id); execErr != nil {
			return execErr
		}
		_, execErr := c.db.ExecContext(ctx, `UPDATE RDS_catalog SET expired = 0 WHERE rds_id = ?`, id)
		return execErr
	})
	if err != nil {
		wrapped := wrapDBError("catalog.reactivate.clear", subqueryText, err)
		endSpan(span, wrapped)
		return 0, wrapped
	}
	endSpan(span, nil)
	return id, nil
}

// deleteBySubquery removes the catalog row and any materialised RDS rows for
// subqueryText. A no-op if no such entry exists.
func (c *catalog) deleteBySubquery(ctx context.Context, subqueryText string) error {
	var id int64
	row := c.db.QueryRowContext(ctx, `SELECT rds_id FROM RDS_catalog WHERE subquery = ?`, subqueryText)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return err
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM RDS WHERE rds_id = ?`, id); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM RDS_catalog WHERE rds_id = ?`, id); err != nil {
		return err
	}
	return nil
}

// insert creates a new catalog row for subqueryText and returns its
// generated rds_id. A unique-constraint violation (a concurrent insert of
// the same text that slipped past the build mutex — e.g. a second process)
// is reported as ErrCatalogConflict so the caller can pick up the existing
// row's rds_id (see reactivate). An expired row for the same text also
// triggers it, since fetchID skips expired rows.
func (c *catalog) insert(ctx context.Context, subqueryText string) (int64, error) {
	ctx, span := tracer.Start(ctx, "rds.catalog.insert", trace.WithAttributes(subquerySpanAttrs(subqueryText)...))

	var result sql.Result
	err := withRetry(ctx, func() error {
		var execErr error
		result, execErr = c.db.ExecContext(ctx, `INSERT INTO RDS_catalog (subquery) VALUES (?)`, subqueryText)
		return execErr
	})
	if err != nil {
		if isUniqueConstraintError(err) {
			endSpan(span, ErrCatalogConflict)
			return 0, ErrCatalogConflict
		}
		wrapped := wrapDBError("catalog.insert", subqueryText, err)
		endSpan(span, wrapped)
		return 0, wrapped
	}

	id, err := result.LastInsertId()
	if err != nil {
		wrapped := wrapDBError("catalog.insert.last_insert_id", subqueryText, err)
		endSpan(span, wrapped)
		return 0, wrapped
	}
	endSpan(span, nil)
	return id, nil
}

// markExpired sets the expired flag for every rds_id named in ids.
func (c *catalog) markExpired(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "rds.catalog.mark_expired", trace.WithAttributes(attribute.Int("rds.id_count", len(ids))))

	placeholders, args := inClause(ids)
	query := `UPDATE RDS_catalog SET expired = 1 WHERE rds_id IN (` + placeholders + `)`
	err := withRetry(ctx, func() error {
		_, execErr := c.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		wrapped := wrapDBError("catalog.mark_expired", "", err)
		endSpan(span, wrapped)
		return wrapped
	}
	endSpan(span, nil)
	cacheMetrics.invalidates.Add(ctx, int64(len(ids)))
	return nil
}

// invalidateByTag deletes catalog entries (and their RDS rows) whose
// subquery text contains the tag's textual signature. Spec §4.3 notes this
// path is "currently disabled in favour of mark_expired"; it is kept here,
// exposed, but the Coordinator defaults to the flag-based path (spec §9's
// open question resolves to: expose both, default to expired-flag).
func (c *catalog) invalidateByTag(ctx context.Context, node *rdsquery.AndNode) error {
	signature := encodeAndNode(node)
	ctx, span := tracer.Start(ctx, "rds.catalog.invalidate_by_tag", trace.WithAttributes(attribute.String("rds.tag_signature", signature)))

	ids, err := c.idsMatchingSignature(ctx, signature)
	if err != nil {
		wrapped := wrapDBError("catalog.invalidate_by_tag.select", signature, err)
		endSpan(span, wrapped)
		return wrapped
	}
	for _, id := range ids {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM RDS WHERE rds_id = ?`, id); err != nil {
			wrapped := wrapDBError("catalog.invalidate_by_tag.delete_rds", signature, err)
			endSpan(span, wrapped)
			return wrapped
		}
		if _, err := c.db.ExecContext(ctx, `DELETE FROM RDS_catalog WHERE rds_id = ?`, id); err != nil {
			wrapped := wrapDBError("catalog.invalidate_by_tag.delete_catalog", signature, err)
			endSpan(span, wrapped)
			return wrapped
		}
	}
	endSpan(span, nil)
	return nil
}

// idsMatchingSignature returns every rds_id whose subquery text contains
// signature anywhere (a tag may appear as a primary or as a negated node).
func (c *catalog) idsMatchingSignature(ctx context.Context, signature string) ([]int64, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT rds_id FROM RDS_catalog WHERE subquery LIKE '%' || ? || '%'`, signature)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// inClause builds a "?,?,?" placeholder string and the matching []any args
// for an IN (...) clause over ids.
func inClause(ids []int64) (string, []any) {
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return placeholders, args
}

// isUniqueConstraintError reports whether err looks like a unique-constraint
// violation from either the SQLite or MySQL/Dolt driver.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}
