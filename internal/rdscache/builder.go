package rdscache

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tagsistant/rds/internal/rdsquery"
)

// builder implements C4: materialising one OR-branch's matching (inode,
// objectname) pairs into the RDS table under a given rds_id, grounded on the
// teacher's blocked_cache.go rebuild — seed, then narrow with SQL statements
// rather than computing the whole result set in Go. Each statement runs on
// the execer it was given; over a *sql.DB every phase commits on its own.
type builder struct {
	db execer
}

func newBuilder(db execer) *builder {
	return &builder{db: db}
}

// build materialises branch into RDS under rdsID. The four phases of spec
// §4.4:
//
//  1. register — no-op here, the catalog row already exists (caller's job).
//  2. seed — INSERT the rows matching the first AND's own predicate OR'd
//     with its related chain.
//  3. intersect — for every subsequent AND, DELETE any seeded row whose
//     inode doesn't also match that AND (OR its related chain).
//  4. subtract — for every AND's negated chain (including the first AND's),
//     DELETE any seeded row whose inode matches the negated predicate.
//
// An empty branch seeds nothing and build returns immediately: the catalog
// entry exists but RDS stays empty for that rds_id, per spec §4.4's edge
// case.
func (b *builder) build(ctx context.Context, rdsID int64, branch *rdsquery.Branch) error {
	ctx, span := tracer.Start(ctx, "rds.builder.build", trace.WithAttributes(attribute.Int64("rds.id", rdsID)))

	if branch == nil || branch.Empty() {
		endSpan(span, nil)
		return nil
	}

	first, _ := branch.FirstAnd()

	if err := b.seed(ctx, rdsID, first); err != nil {
		wrapped := wrapDBError("builder.seed", first.String(), err)
		endSpan(span, wrapped)
		return wrapped
	}

	for _, and := range branch.Rest() {
		if err := b.intersect(ctx, rdsID, and); err != nil {
			wrapped := wrapDBError("builder.intersect", and.String(), err)
			endSpan(span, wrapped)
			return wrapped
		}
	}

	for _, and := range branch.Ands {
		for _, neg := range and.NegatedChain() {
			if err := b.subtract(ctx, rdsID, neg); err != nil {
				wrapped := wrapDBError("builder.subtract", neg.String(), err)
				endSpan(span, wrapped)
				return wrapped
			}
		}
	}

	endSpan(span, nil)
	cacheMetrics.builds.Add(ctx, 1)
	return nil
}

// seed runs Phase 2: INSERT INTO RDS the (inode, objectname) pairs matching
// node OR its related chain.
func (b *builder) seed(ctx context.Context, rdsID int64, node *rdsquery.AndNode) error {
	where, args := orPredicate(node)
	query := `INSERT INTO RDS (rds_id, inode, objectname)
		SELECT ?, objects.inode, objects.objectname
		FROM objects
		JOIN tagging ON tagging.inode = objects.inode
		JOIN tags ON tags.tag_id = tagging.tag_id
		WHERE ` + where

	return withRetry(ctx, func() error {
		_, err := b.db.ExecContext(ctx, query, append([]any{rdsID}, args...)...)
		return err
	})
}

// intersect runs Phase 3: drop any already-seeded row whose inode fails to
// also match node (OR its related chain).
func (b *builder) intersect(ctx context.Context, rdsID int64, node *rdsquery.AndNode) error {
	where, args := orPredicate(node)
	query := `DELETE FROM RDS WHERE rds_id = ? AND inode NOT IN (
		SELECT objects.inode
		FROM objects
		JOIN tagging ON tagging.inode = objects.inode
		JOIN tags ON tags.tag_id = tagging.tag_id
		WHERE ` + where + `
	)`

	return withRetry(ctx, func() error {
		_, err := b.db.ExecContext(ctx, query, append([]any{rdsID}, args...)...)
		return err
	})
}

// subtract runs Phase 4: drop any already-seeded row whose inode matches
// node's own predicate (negated chains are not themselves OR'd with their
// own related chains — spec §4.1 scopes Related to broadening a positive
// match, not a negation).
func (b *builder) subtract(ctx context.Context, rdsID int64, node *rdsquery.AndNode) error {
	where, args := nodePredicate(node, "tagging", "tags")
	query := `DELETE FROM RDS WHERE rds_id = ? AND inode IN (
		SELECT objects.inode
		FROM objects
		JOIN tagging ON tagging.inode = objects.inode
		JOIN tags ON tags.tag_id = tagging.tag_id
		WHERE ` + where + `
	)`

	return withRetry(ctx, func() error {
		_, err := b.db.ExecContext(ctx, query, append([]any{rdsID}, args...)...)
		return err
	})
}

// orPredicate builds the WHERE fragment and args for node OR'd with every
// node in its related chain, parenthesised so it composes safely inside the
// larger seed/intersect query.
func orPredicate(node *rdsquery.AndNode) (string, []any) {
	clauses := make([]string, 0, 1+len(node.Related))
	var args []any

	where, a := nodePredicate(node, "tagging", "tags")
	clauses = append(clauses, where)
	args = append(args, a...)

	for _, rel := range node.RelatedChain() {
		where, a := nodePredicate(rel, "tagging", "tags")
		clauses = append(clauses, where)
		args = append(args, a...)
	}

	if len(clauses) == 1 {
		return clauses[0], args
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

// nodePredicate builds the WHERE fragment and parameter args for a single
// AndNode's own predicate (never its related/negated chains). Every value is
// passed as a bind parameter — spec §9 flags naive string interpolation here
// as an injection hazard, so this is the one place that matters.
func nodePredicate(node *rdsquery.AndNode, taggingAlias, tagsAlias string) (string, []any) {
	if !node.Triple {
		if node.TagID != 0 {
			return taggingAlias + ".tag_id = ?", []any{node.TagID}
		}
		return tagsAlias + ".tagname = ?", []any{node.Tag}
	}

	switch node.Op {
	case rdsquery.OpEQ:
		return "(" + tagsAlias + ".tagname = ? AND " + tagsAlias + ".key = ? AND " + tagsAlias + ".value = ?)",
			[]any{node.Namespace, node.Key, node.Value}
	case rdsquery.OpContains:
		return "(" + tagsAlias + ".tagname = ? AND " + tagsAlias + ".key = ? AND " + tagsAlias + ".value LIKE ?)",
			[]any{node.Namespace, node.Key, "%" + node.Value + "%"}
	case rdsquery.OpGT:
		return "(" + tagsAlias + ".tagname = ? AND " + tagsAlias + ".key = ? AND " + tagsAlias + ".value > ?)",
			[]any{node.Namespace, node.Key, node.Value}
	case rdsquery.OpLT:
		return "(" + tagsAlias + ".tagname = ? AND " + tagsAlias + ".key = ? AND " + tagsAlias + ".value < ?)",
			[]any{node.Namespace, node.Key, node.Value}
	default:
		return "0", nil
	}
}
