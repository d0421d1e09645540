package rules

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) *time.Time {
	t := fixedNow.Add(-time.Duration(n) * 24 * time.Hour)
	return &t
}

func TestEvaluate_SpendStrictlyGreater(t *testing.T) {
	rule := model.Leaf(model.FieldSpend, OpGT, 1000)
	customers := []model.Customer{
		{ID: "a", Spend: 500},
		{ID: "b", Spend: 1500},
		{ID: "c", Spend: 1000},
	}

	matched := Filter(customers, rule, fixedNow)

	require.Len(t, matched, 1)
	assert.Equal(t, "b", matched[0].ID)
}

func TestEvaluate_Operators(t *testing.T) {
	c := &model.Customer{Spend: 100, Visits: 3}
	cases := []struct {
		op   string
		val  float64
		want bool
	}{
		{OpGT, 99, true}, {OpGT, 100, false},
		{OpGTE, 100, true}, {OpGTE, 101, false},
		{OpLT, 101, true}, {OpLT, 100, false},
		{OpLTE, 100, true}, {OpLTE, 99, false},
		{OpEQ, 100, true}, {OpEQ, 1, false},
		{OpNEQ, 1, true}, {OpNEQ, 100, false},
	}
	for _, tc := range cases {
		got := EvaluateAt(c, model.Leaf(model.FieldSpend, tc.op, tc.val), fixedNow)
		assert.Equal(t, tc.want, got, "spend %s %v", tc.op, tc.val)
	}
}

func TestEvaluate_Groups(t *testing.T) {
	c := &model.Customer{Spend: 2000, Visits: 1, LastActive: daysAgo(40)}

	assert.True(t, EvaluateAt(c, model.All(), fixedNow), "empty and is vacuously true")
	assert.True(t, EvaluateAt(c, model.Any(), fixedNow), "empty or is vacuously true")

	and := model.All(
		model.Leaf(model.FieldSpend, OpGT, 1000),
		model.Leaf(model.FieldVisits, OpGTE, 3),
	)
	assert.False(t, EvaluateAt(c, and, fixedNow))

	or := model.Any(
		model.Leaf(model.FieldVisits, OpGTE, 3),
		model.Leaf(model.FieldInactiveDays, OpGT, 30),
	)
	assert.True(t, EvaluateAt(c, or, fixedNow))

	none := model.Any(
		model.Leaf(model.FieldVisits, OpGTE, 3),
		model.Leaf(model.FieldSpend, OpLT, 10),
	)
	assert.False(t, EvaluateAt(c, none, fixedNow))

	nested := model.All(
		model.Leaf(model.FieldSpend, OpGT, 1000),
		model.Any(model.Leaf(model.FieldVisits, OpEQ, 1), model.Leaf(model.FieldVisits, OpEQ, 7)),
	)
	assert.True(t, EvaluateAt(c, nested, fixedNow))
}

func TestEvaluate_InactiveDays(t *testing.T) {
	never := &model.Customer{}
	assert.True(t, math.IsInf(InactiveDays(never, fixedNow), 1))
	assert.True(t, EvaluateAt(never, model.Leaf(model.FieldInactiveDays, OpGT, 365), fixedNow))

	partial := fixedNow.Add(-(36 * time.Hour))
	c := &model.Customer{LastActive: &partial}
	assert.Equal(t, 1.0, InactiveDays(c, fixedNow))

	future := fixedNow.Add(time.Hour)
	assert.Equal(t, 0.0, InactiveDays(&model.Customer{LastActive: &future}, fixedNow))
}

func TestEvaluate_PermissiveDefaults(t *testing.T) {
	c := &model.Customer{Spend: 10}

	assert.True(t, Evaluate(c, model.RuleNode{}), "unrecognized node matches")
	assert.True(t, Evaluate(c, model.RuleNode{Field: model.FieldSpend, Op: "~="}), "unknown operator matches")
	// unknown field reads as 0
	assert.True(t, Evaluate(c, model.Leaf("loyalty", OpEQ, 0)))
	// missing value compares against 0
	assert.True(t, Evaluate(c, model.RuleNode{Field: model.FieldSpend, Op: OpGT}))
}

func TestEvaluator_Strict(t *testing.T) {
	e := Evaluator{Strict: true, Now: func() time.Time { return fixedNow }}
	c := &model.Customer{Spend: 10}

	_, err := e.Evaluate(c, model.RuleNode{})
	assert.Error(t, err)

	_, err = e.Evaluate(c, model.RuleNode{Field: model.FieldSpend, Op: "~="})
	assert.Error(t, err)

	_, err = e.Evaluate(c, model.All(model.Leaf("loyalty", OpEQ, 0)))
	assert.Error(t, err)

	ok, err := e.Evaluate(c, model.Leaf(model.FieldSpend, OpLT, 20))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_Deterministic(t *testing.T) {
	c := &model.Customer{Spend: 700, Visits: 4, LastActive: daysAgo(10)}
	tree := model.Any(
		model.All(model.Leaf(model.FieldSpend, OpGTE, 500), model.Leaf(model.FieldVisits, OpLT, 5)),
		model.Leaf(model.FieldInactiveDays, OpGT, 90),
	)
	first := EvaluateAt(c, tree, fixedNow)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, EvaluateAt(c, tree, fixedNow))
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate(model.All(model.Leaf(model.FieldSpend, OpGT, 1))))
	assert.NoError(t, Validate(model.All()))

	assert.Error(t, Validate(model.RuleNode{}))
	assert.Error(t, Validate(model.All(model.Leaf("age", OpGT, 1))))
	assert.Error(t, Validate(model.Any(model.Leaf(model.FieldSpend, "=>", 1))))
	assert.Error(t, Validate(model.RuleNode{Field: model.FieldSpend, Op: OpGT}))
}

func TestRuleNode_JSONRoundTrip(t *testing.T) {
	raw := `{"and":[{"field":"spend","op":">","value":1000},{"or":[]}]}`
	var node model.RuleNode
	require.NoError(t, json.Unmarshal([]byte(raw), &node))

	require.NotNil(t, node.And)
	require.Len(t, node.And, 2)
	assert.NotNil(t, node.And[1].Or)

	out, err := json.Marshal(node)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}
