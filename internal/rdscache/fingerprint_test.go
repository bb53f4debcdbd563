package rdscache

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tagsistant/rds/internal/rdsquery"
)

func TestSubqueryTextConjunction(t *testing.T) {
	b := rdsquery.NewBranch(rdsquery.NewTagNode("t1"), rdsquery.NewTagNode("t2"))
	assert.Equal(t, "t1/t2/", subqueryText(b))
}

func TestSubqueryTextNegation(t *testing.T) {
	t1 := rdsquery.NewTagNode("t1").WithNegated(rdsquery.NewTagNode("t2"))
	b := rdsquery.NewBranch(t1)
	assert.Equal(t, "t1/-/t2/", subqueryText(b))
}

func TestSubqueryTextTriple(t *testing.T) {
	node := rdsquery.NewTripleNode("ns1", "size", rdsquery.OpGT, "50")
	b := rdsquery.NewBranch(node)
	assert.Equal(t, "ns1/size/gt/50/", subqueryText(b))
}

func TestSubqueryTextExcludesRelated(t *testing.T) {
	withRelated := rdsquery.NewTagNode("car").WithRelated(rdsquery.NewTagNode("vehicle"))
	without := rdsquery.NewTagNode("car")
	assert.Equal(t, subqueryText(rdsquery.NewBranch(without)), subqueryText(rdsquery.NewBranch(withRelated)))
}

func TestSubqueryTextEmptyBranch(t *testing.T) {
	assert.Equal(t, "", subqueryText(rdsquery.NewBranch()))
	assert.Equal(t, "", subqueryText(nil))
}

func TestSubqueryTextOrderSensitive(t *testing.T) {
	a := rdsquery.NewBranch(rdsquery.NewTagNode("t1"), rdsquery.NewTagNode("t2"))
	b := rdsquery.NewBranch(rdsquery.NewTagNode("t2"), rdsquery.NewTagNode("t1"))
	assert.NotEqual(t, subqueryText(a), subqueryText(b))
}

func TestSubqueryTextMultipleNegatedAcrossAnds(t *testing.T) {
	first := rdsquery.NewTagNode("t1").WithNegated(rdsquery.NewTagNode("x"))
	second := rdsquery.NewTagNode("t2").WithNegated(rdsquery.NewTagNode("y"))
	b := rdsquery.NewBranch(first, second)
	assert.Equal(t, "t1/t2/-/x/-/y/", subqueryText(b))
}
