package rdscache

import (
	"strings"

	"github.com/tagsistant/rds/internal/rdsquery"
)

// subqueryText produces the canonical catalog key text for one OR-branch
// (spec §4.2's "subquery_text") — this is the Catalog's own lookup key, not
// the fingerprint Coordinator.Prepare returns to callers (that is the
// comma-joined rds_id list built from each branch's resolved id; see
// coordinator.go). The encoding is deterministic and order-sensitive: two
// branches with permuted AND-lists produce different text, by design (see
// spec §9's open question — the conservative, source-matching behaviour is
// implemented here).
//
// Related chains are deliberately excluded: they broaden what gets
// materialised but are treated as a derived property of the primary node,
// so two queries differing only in reasoner-supplied Related nodes share a
// cache entry.
func subqueryText(b *rdsquery.Branch) string {
	if b == nil || b.Empty() {
		return ""
	}

	var sb strings.Builder

	// Phase 1: primaries, in list order.
	for _, and := range b.Ands {
		sb.WriteString(encodeAndNode(and))
	}

	// Phase 2: negated nodes of all primaries, iterating primary order then
	// each primary's own negated chain.
	for _, and := range b.Ands {
		for _, neg := range and.NegatedChain() {
			sb.WriteString("-/")
			sb.WriteString(encodeAndNode(neg))
		}
	}

	return sb.String()
}

// encodeAndNode renders one node's own segment text (no related/negated
// chains, no negation prefix): "<tag>/" or "<ns>/<key>/<op>/<value>/".
func encodeAndNode(n *rdsquery.AndNode) string {
	if n.Triple {
		return n.Namespace + "/" + n.Key + "/" + n.Op.Code() + "/" + n.Value + "/"
	}
	return n.Tag + "/"
}
