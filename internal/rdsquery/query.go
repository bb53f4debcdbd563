// Package rdsquery defines the typed query AST consumed by the RDS cache.
//
// A Query is a finite, non-empty list of OR-branches. Each branch is a
// conjunction (AND-chain) of AndNodes. An AndNode is either a plain tag name
// or a (namespace, key, op, value) triple, and carries two side chains: a
// Related chain of logically-equivalent broadeners (OR-unioned with the
// primary node) and a Negated chain of nodes whose matches are subtracted.
//
// Construction of this AST from a path string is the job of the querytree
// parser, which lives outside this module; rdsquery only models the result
// and exposes the traversal capability the rest of the cache needs.
package rdsquery

import "fmt"

// ComparisonOp is the operator of a triple AndNode.
type ComparisonOp int

// Comparison operators for triple and-nodes, matching spec §6's op codes.
const (
	OpEQ       ComparisonOp = iota // eq
	OpContains                     // inc
	OpGT                           // gt
	OpLT                           // lt
)

// Code returns the wire/fingerprint op-code for the operator.
func (op ComparisonOp) Code() string {
	switch op {
	case OpEQ:
		return "eq"
	case OpContains:
		return "inc"
	case OpGT:
		return "gt"
	case OpLT:
		return "lt"
	default:
		return "?"
	}
}

// String renders op for logs and debug output; Code is the distinct,
// stable wire/fingerprint form and is what the builder and serialiser use.
func (op ComparisonOp) String() string {
	switch op {
	case OpEQ:
		return "="
	case OpContains:
		return "contains"
	case OpGT:
		return ">"
	case OpLT:
		return "<"
	default:
		return "?"
	}
}

// AndNode is a single atomic predicate over the tag tables: either a plain
// tag (Tag set, Triple false) or a triple comparison (Triple true).
//
// TagID, when non-zero, means the tag has already been resolved to a numeric
// id by the caller (typically the reasoner) and the builder filters on
// tagging.tag_id instead of comparing tags.tagname (its queries still join
// tags).
type AndNode struct {
	// Plain tag form.
	Tag   string
	TagID uint64

	// Triple form: namespace/key/op/value.
	Triple    bool
	Namespace string
	Key       string
	Op        ComparisonOp
	Value     string

	// Related holds and-nodes that are disjunctively equivalent to this one;
	// the reasoner populates this chain and it broadens the match (OR-union).
	Related []*AndNode

	// Negated holds and-nodes whose matching inodes must be excluded from
	// the branch's result.
	Negated []*AndNode
}

// NewTagNode constructs a plain-tag AndNode.
func NewTagNode(tag string) *AndNode {
	return &AndNode{Tag: tag}
}

// NewResolvedTagNode constructs a plain-tag AndNode with a pre-resolved id.
func NewResolvedTagNode(tag string, tagID uint64) *AndNode {
	return &AndNode{Tag: tag, TagID: tagID}
}

// NewTripleNode constructs a triple AndNode.
func NewTripleNode(namespace, key string, op ComparisonOp, value string) *AndNode {
	return &AndNode{Triple: true, Namespace: namespace, Key: key, Op: op, Value: value}
}

// WithRelated appends nodes to the Related chain and returns the receiver,
// for convenient construction.
func (n *AndNode) WithRelated(related ...*AndNode) *AndNode {
	n.Related = append(n.Related, related...)
	return n
}

// WithNegated appends nodes to the Negated chain and returns the receiver.
func (n *AndNode) WithNegated(negated ...*AndNode) *AndNode {
	n.Negated = append(n.Negated, negated...)
	return n
}

// RelatedChain returns this node's related chain, in order. Part of the C1
// traversal capability set (spec §4.1).
func (n *AndNode) RelatedChain() []*AndNode { return n.Related }

// NegatedChain returns this node's negated chain, in order.
func (n *AndNode) NegatedChain() []*AndNode { return n.Negated }

func (n *AndNode) String() string {
	if n.Triple {
		return fmt.Sprintf("%s/%s/%s/%s", n.Namespace, n.Key, n.Op.Code(), n.Value)
	}
	return n.Tag
}

// Branch is one OR-branch: a conjunction of AndNodes. Order is significant —
// the builder seeds its result set from the first AndNode and intersects
// with the rest, so Branch preserves AST order rather than treating AndNodes
// as an unordered set.
type Branch struct {
	Ands []*AndNode
}

// NewBranch constructs a Branch from an ordered list of AndNodes.
func NewBranch(ands ...*AndNode) *Branch {
	return &Branch{Ands: ands}
}

// FirstAnd returns the branch's first AndNode, and false if the branch is
// empty. Part of the C1 capability set: the builder relies on distinguishing
// the seeding AND from the restricting ones.
func (b *Branch) FirstAnd() (*AndNode, bool) {
	if len(b.Ands) == 0 {
		return nil, false
	}
	return b.Ands[0], true
}

// NextAnd returns the AndNode following the one at index i (0-based into
// b.Ands), and false once the chain is exhausted. Callers iterate as:
//
//	node, ok := b.FirstAnd()
//	for i := 0; ok; i++ {
//		... use node ...
//		node, ok = b.NextAnd(i)
//	}
func (b *Branch) NextAnd(i int) (*AndNode, bool) {
	if i+1 >= len(b.Ands) {
		return nil, false
	}
	return b.Ands[i+1], true
}

// Rest returns every AndNode after the first, in order — the nodes that
// restrict (rather than seed) the builder's result set.
func (b *Branch) Rest() []*AndNode {
	if len(b.Ands) <= 1 {
		return nil
	}
	return b.Ands[1:]
}

// Empty reports whether the branch has no AndNodes at all (spec §4.4 edge
// case: produces no Phase-2 insert, an empty materialised RDS).
func (b *Branch) Empty() bool {
	return len(b.Ands) == 0
}

// Query is a finite, non-empty list of OR-branches; the whole query is the
// union over branches.
type Query struct {
	Branches []*Branch
}

// NewQuery constructs a Query from its OR-branches.
func NewQuery(branches ...*Branch) *Query {
	return &Query{Branches: branches}
}

// NextBranch returns the branch following the one at index i, and false once
// the list is exhausted. Part of the C1 capability set (spec §4.1).
func (q *Query) NextBranch(i int) (*Branch, bool) {
	if i+1 >= len(q.Branches) {
		return nil, false
	}
	return q.Branches[i+1], true
}

// Empty reports whether the query has no branches at all — the MalformedQuery
// edge case in spec §7.
func (q *Query) Empty() bool {
	return q == nil || len(q.Branches) == 0
}
