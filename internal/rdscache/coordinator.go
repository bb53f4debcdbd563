package rdscache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tagsistant/rds/internal/rdsquery"
)

// Handle is one materialised row: an inode and the name it was found under.
type Handle struct {
	Inode      uint32
	ObjectName string
}

// Coordinator implements C5: the prepare/load/contains/invalidate public
// surface, and the mutual-exclusion discipline around building.
//
// Unlike a singleflight keyed per fingerprint, Coordinator serialises every
// build behind one mutex per Coordinator, which is process-wide when the
// process shares a single Coordinator (spec §4.3/§4.5's explicit choice): a
// build is fetch_id -> insert -> materialise, and nothing else may run
// fetch_id or insert while a build is in flight, because a second build
// observing "not found" between this build's insert and its completion
// would itself try to insert the same subquery text.
type Coordinator struct {
	db execer

	buildMu sync.Mutex
	catalog *catalog
	builder *builder

	// Log receives build/invalidate/degraded-read events. Defaults to
	// slog.Default() if left nil.
	Log *slog.Logger
}

// NewCoordinator constructs a Coordinator over db, which must be *sql.DB (or
// anything satisfying execer) already initialised with Schema or MySQLSchema.
func NewCoordinator(db execer) *Coordinator {
	return &Coordinator{
		db:      db,
		catalog: newCatalog(db),
		builder: newBuilder(db),
		Log:     slog.Default(),
	}
}

func (c *Coordinator) log() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}

// Prepare walks each OR-branch of query, ensures it has a materialised,
// non-expired RDS behind it, and returns the whole query's fingerprint: the
// comma-joined rds_ids of every branch, in branch order (spec §4.5, §6).
//
// isAllPath short-circuits to the empty fingerprint, meaning "ALL objects"
// (spec §6) — callers use this when the filesystem layer already knows the
// query matches everything and there's nothing to materialise. A malformed
// query (nil, or no branches) also returns the empty fingerprint, but means
// the opposite — "empty result" (spec §7) — so a caller must not pass the
// return value on to Load without remembering which of the two cases
// produced it.
//
// rebuildExpired forces every branch to drop and rebuild its row set rather
// than trust an existing, non-expired catalog entry (spec §4.3's
// rebuild_expired_RDS knob).
func (c *Coordinator) Prepare(ctx context.Context, query *rdsquery.Query, isAllPath, rebuildExpired bool) (string, error) {
	if isAllPath {
		return "", nil
	}
	if query.Empty() {
		c.log().Warn("rds prepare received malformed query, returning empty fingerprint")
		return "", nil
	}

	ids := make([]string, len(query.Branches))
	for i, branch := range query.Branches {
		id, err := c.prepareBranch(ctx, branch, rebuildExpired)
		if err != nil {
			return "", err
		}
		ids[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(ids, ","), nil
}

// PrepareMany runs Prepare concurrently across independent queries, bounded
// by an errgroup — the teacher's pattern for fanning out otherwise-serial
// per-query work (dolt/store.go's batched lookups). Every branch's
// fetch_id -> insert -> build still runs under the one buildMu, so no two
// builds overlap, even for unrelated queries; only the work outside the
// mutex (computing each branch's subquery text) runs concurrently.
func (c *Coordinator) PrepareMany(ctx context.Context, queries []*rdsquery.Query, isAllPath, rebuildExpired bool) ([]string, error) {
	results := make([]string, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)

	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			fp, err := c.Prepare(gctx, q, isAllPath, rebuildExpired)
			if err != nil {
				return err
			}
			results[i] = fp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// prepareBranch is the fetch_id -> insert -> build sequence for a single
// branch, run entirely under buildMu, and returns its rds_id.
func (c *Coordinator) prepareBranch(ctx context.Context, branch *rdsquery.Branch, rebuildExpired bool) (int64, error) {
	text := subqueryText(branch)

	waitStart := time.Now()
	c.buildMu.Lock()
	defer c.buildMu.Unlock()
	cacheMetrics.buildWaitMs.Record(ctx, float64(time.Since(waitStart).Milliseconds()))

	ctx, span := tracer.Start(ctx, "rds.coordinator.prepare_branch", trace.WithAttributes(subquerySpanAttrs(text)...))

	id, err := c.catalog.fetchID(ctx, text, rebuildExpired)
	if err != nil {
		endSpan(span, err)
		c.log().Error("rds catalog fetch_id failed", "subquery", text, "error", err)
		return 0, err
	}
	if id != 0 {
		endSpan(span, nil)
		cacheMetrics.cacheHits.Add(ctx, 1)
		return id, nil
	}

	id, err = c.catalog.insert(ctx, text)
	if errors.Is(err, ErrCatalogConflict) {
		// A row for this exact text already exists: either an expired one
		// (fetchID skips those) or one inserted by another process or
		// Coordinator that buildMu does not cover — reuse its rds_id and
		// rebuild instead of failing.
		id, err = c.catalog.reactivate(ctx, text)
	}
	if err != nil {
		endSpan(span, err)
		c.log().Error("rds catalog insert failed", "subquery", text, "error", err)
		return 0, err
	}

	if err := c.builder.build(ctx, id, branch); err != nil {
		endSpan(span, err)
		c.log().Error("rds build failed", "subquery", text, "rds_id", id, "error", err)
		return 0, err
	}

	endSpan(span, nil)
	c.log().Info("rds built", "subquery", text, "rds_id", id)
	return id, nil
}

// parseFingerprint splits a "id(,id)*" fingerprint into its rds_ids.
func parseFingerprint(fingerprint string) ([]int64, error) {
	if fingerprint == "" {
		return nil, nil
	}
	parts := strings.Split(fingerprint, ",")
	ids := make([]int64, len(parts))
	for i, p := range parts {
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("rdscache: malformed fingerprint %q: %w", fingerprint, err)
		}
		ids[i] = id
	}
	return ids, nil
}

// Load resolves fingerprint (as returned by Prepare) into a mapping from
// object name to the handles materialised under that name. The empty
// fingerprint means "ALL objects" (spec §6) and is served directly from the
// objects table rather than RDS.
//
// Duplicate inodes under the same name are dropped — the reasoner may
// produce more than one matching and-node for the same object across
// branches (spec §4.5).
func (c *Coordinator) Load(ctx context.Context, fingerprint string) (map[string][]Handle, error) {
	ctx, span := tracer.Start(ctx, "rds.coordinator.load", trace.WithAttributes(attribute.String("rds.fingerprint", fingerprint)))

	var rows *sql.Rows
	var err error
	if fingerprint == "" {
		rows, err = c.db.QueryContext(ctx, `SELECT DISTINCT objectname, inode FROM objects`)
	} else {
		ids, perr := parseFingerprint(fingerprint)
		if perr != nil {
			endSpan(span, perr)
			return nil, perr
		}
		placeholders, args := inClause(ids)
		rows, err = c.db.QueryContext(ctx, `SELECT DISTINCT objectname, inode FROM RDS WHERE rds_id IN (`+placeholders+`)`, args...)
	}
	if err != nil {
		wrapped := wrapDBError("coordinator.load", fingerprint, err)
		endSpan(span, wrapped)
		return nil, wrapped
	}
	defer rows.Close()

	result := map[string][]Handle{}
	seen := map[string]map[uint32]bool{}
	for rows.Next() {
		var name string
		var inode uint32
		if err := rows.Scan(&name, &inode); err != nil {
			wrapped := wrapDBError("coordinator.load.scan", fingerprint, err)
			endSpan(span, wrapped)
			return nil, wrapped
		}
		if seen[name] == nil {
			seen[name] = map[uint32]bool{}
		}
		if seen[name][inode] {
			continue
		}
		seen[name][inode] = true
		result[name] = append(result[name], Handle{Inode: inode, ObjectName: name})
	}
	if err := rows.Err(); err != nil {
		wrapped := wrapDBError("coordinator.load.rows_err", fingerprint, err)
		endSpan(span, wrapped)
		return nil, wrapped
	}
	endSpan(span, nil)
	return result, nil
}

// Contains tests whether objectName (optionally pinned to a known inode) is
// present among fingerprint's materialised rows. Returns the matching inode
// and true, or 0 and false if absent (spec §4.5).
func (c *Coordinator) Contains(ctx context.Context, fingerprint, objectName string, inode uint32, inodeKnown bool) (uint32, bool, error) {
	ctx, span := tracer.Start(ctx, "rds.coordinator.contains", trace.WithAttributes(
		attribute.String("rds.fingerprint", fingerprint),
		attribute.String("rds.object_name", objectName),
	))

	ids, err := parseFingerprint(fingerprint)
	if err != nil {
		endSpan(span, err)
		return 0, false, err
	}

	var query string
	var args []any
	if fingerprint != "" {
		placeholders, idArgs := inClause(ids)
		query = `SELECT inode FROM RDS WHERE rds_id IN (` + placeholders + `) AND objectname = ?`
		args = append(append([]any{}, idArgs...), objectName)
	} else {
		query = `SELECT inode FROM objects WHERE objectname = ?`
		args = []any{objectName}
	}
	if inodeKnown {
		query += ` AND inode = ?`
		args = append(args, inode)
	}
	query += ` LIMIT 1`

	var found uint32
	err = withRetry(ctx, func() error {
		row := c.db.QueryRowContext(ctx, query, args...)
		return row.Scan(&found)
	})
	if errors.Is(err, sql.ErrNoRows) {
		endSpan(span, nil)
		return 0, false, nil
	}
	if err != nil {
		wrapped := wrapDBError("coordinator.contains", fingerprint, err)
		endSpan(span, wrapped)
		return 0, false, wrapped
	}
	endSpan(span, nil)
	return found, true, nil
}

// Invalidate marks every rds_id named in fingerprint as expired, so the next
// Prepare for that id rebuilds it (spec §4.5). The fingerprint is whatever a
// prior Prepare call returned — this core never inspects tag mutations
// itself (coarse invalidation is an explicit non-goal of finer-grained
// tracking).
func (c *Coordinator) Invalidate(ctx context.Context, fingerprint string) error {
	ids, err := parseFingerprint(fingerprint)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	if err := c.catalog.markExpired(ctx, ids); err != nil {
		return err
	}
	c.log().Info("rds invalidated", "fingerprint", fingerprint, "count", len(ids))
	return nil
}
