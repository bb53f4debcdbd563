package rdsquery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBranchTraversal(t *testing.T) {
	t1 := NewTagNode("t1")
	t2 := NewTagNode("t2")
	t3 := NewTagNode("t3")
	branch := NewBranch(t1, t2, t3)

	first, ok := branch.FirstAnd()
	require.True(t, ok)
	assert.Same(t, t1, first)

	second, ok := branch.NextAnd(0)
	require.True(t, ok)
	assert.Same(t, t2, second)

	third, ok := branch.NextAnd(1)
	require.True(t, ok)
	assert.Same(t, t3, third)

	_, ok = branch.NextAnd(2)
	assert.False(t, ok)

	assert.Equal(t, []*AndNode{t2, t3}, branch.Rest())
}

func TestBranchEmpty(t *testing.T) {
	b := &Branch{}
	assert.True(t, b.Empty())
	_, ok := b.FirstAnd()
	assert.False(t, ok)
}

func TestQueryNextBranch(t *testing.T) {
	b1 := NewBranch(NewTagNode("t1"))
	b2 := NewBranch(NewTagNode("t2"))
	q := NewQuery(b1, b2)

	got, ok := q.NextBranch(0)
	require.True(t, ok)
	assert.Same(t, b2, got)

	_, ok = q.NextBranch(1)
	assert.False(t, ok)
}

func TestQueryEmpty(t *testing.T) {
	assert.True(t, (&Query{}).Empty())
	assert.True(t, (*Query)(nil).Empty())
	assert.False(t, NewQuery(NewBranch(NewTagNode("t1"))).Empty())
}

func TestAndNodeChains(t *testing.T) {
	related := NewTagNode("t1-alias")
	negated := NewTagNode("t2")
	n := NewTagNode("t1").WithRelated(related).WithNegated(negated)

	assert.Equal(t, []*AndNode{related}, n.RelatedChain())
	assert.Equal(t, []*AndNode{negated}, n.NegatedChain())
}

func TestTripleNodeString(t *testing.T) {
	n := NewTripleNode("ns1", "size", OpGT, "50")
	assert.Equal(t, "ns1/size/gt/50", n.String())
	assert.Equal(t, "gt", n.Op.Code())
}
