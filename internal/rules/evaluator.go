// internal/rules/evaluator.go
package rules

import (
	"fmt"
	"math"
	"time"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
)

// Supported comparison operators.
const (
	OpGT  = ">"
	OpGTE = ">="
	OpLT  = "<"
	OpLTE = "<="
	OpEQ  = "=="
	OpNEQ = "!="
)

var knownOps = map[string]bool{OpGT: true, OpGTE: true, OpLT: true, OpLTE: true, OpEQ: true, OpNEQ: true}

var knownFields = map[string]bool{
	model.FieldSpend:        true,
	model.FieldVisits:       true,
	model.FieldInactiveDays: true,
}

// Evaluator walks a rule tree. The zero value is permissive: unknown
// operators and nodes that are neither a rule nor a group match.
// Strict turns both cases into errors.
type Evaluator struct {
	Strict bool
	Now    func() time.Time
}

// Evaluate matches a customer against node using the permissive evaluator.
func Evaluate(c *model.Customer, node model.RuleNode) bool {
	ok, _ := Evaluator{}.Evaluate(c, node)
	return ok
}

// EvaluateAt is Evaluate with a fixed clock for inactive_days.
func EvaluateAt(c *model.Customer, node model.RuleNode, now time.Time) bool {
	ok, _ := Evaluator{Now: func() time.Time { return now }}.Evaluate(c, node)
	return ok
}

func (e Evaluator) Evaluate(c *model.Customer, node model.RuleNode) (bool, error) {
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	return e.eval(c, node, now)
}

func (e Evaluator) eval(c *model.Customer, node model.RuleNode, now time.Time) (bool, error) {
	switch {
	case node.And != nil:
		for _, child := range node.And {
			ok, err := e.eval(c, child, now)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil

	case node.Or != nil:
		if len(node.Or) == 0 {
			return true, nil
		}
		for _, child := range node.Or {
			ok, err := e.eval(c, child, now)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil

	case node.Field != "":
		return e.compareLeaf(c, node, now)
	}

	if e.Strict {
		return false, fmt.Errorf("rules: node has neither field nor and/or")
	}
	return true, nil
}

func (e Evaluator) compareLeaf(c *model.Customer, node model.RuleNode, now time.Time) (bool, error) {
	if e.Strict && !knownFields[node.Field] {
		return false, fmt.Errorf("rules: unknown field %q", node.Field)
	}
	var want float64
	if node.Value != nil {
		want = *node.Value
	}
	have := FieldValue(c, node.Field, now)

	switch node.Op {
	case OpGT:
		return have > want, nil
	case OpGTE:
		return have >= want, nil
	case OpLT:
		return have < want, nil
	case OpLTE:
		return have <= want, nil
	case OpEQ:
		return have == want, nil
	case OpNEQ:
		return have != want, nil
	}
	if e.Strict {
		return false, fmt.Errorf("rules: unknown operator %q", node.Op)
	}
	return true, nil
}

// FieldValue resolves a rule field on a customer. Unknown fields read as 0,
// and inactive_days is +Inf for a customer that was never active.
func FieldValue(c *model.Customer, field string, now time.Time) float64 {
	switch field {
	case model.FieldSpend:
		return c.Spend
	case model.FieldVisits:
		return float64(c.Visits)
	case model.FieldInactiveDays:
		return InactiveDays(c, now)
	}
	return 0
}

// InactiveDays is the number of whole days since the customer was last active.
func InactiveDays(c *model.Customer, now time.Time) float64 {
	if c.LastActive == nil {
		return math.Inf(1)
	}
	d := now.Sub(*c.LastActive)
	if d < 0 {
		return 0
	}
	return math.Floor(d.Hours() / 24)
}

// Validate rejects trees the strict evaluator would refuse. It is used on the
// write path so that stored segments are well-formed.
func Validate(node model.RuleNode) error {
	return validate(node, "rules")
}

func validate(node model.RuleNode, path string) error {
	switch {
	case node.And != nil:
		for i, child := range node.And {
			if err := validate(child, fmt.Sprintf("%s.and[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case node.Or != nil:
		for i, child := range node.Or {
			if err := validate(child, fmt.Sprintf("%s.or[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case node.Field != "":
		if !knownFields[node.Field] {
			return fmt.Errorf("%s: unknown field %q", path, node.Field)
		}
		if !knownOps[node.Op] {
			return fmt.Errorf("%s: unknown operator %q", path, node.Op)
		}
		if node.Value == nil {
			return fmt.Errorf("%s: missing value", path)
		}
		return nil
	}
	return fmt.Errorf("%s: node has neither field nor and/or", path)
}

// Filter returns the customers matching node, preserving input order.
func Filter(customers []model.Customer, node model.RuleNode, now time.Time) []model.Customer {
	out := make([]model.Customer, 0, len(customers))
	for i := range customers {
		if EvaluateAt(&customers[i], node, now) {
			out = append(out, customers[i])
		}
	}
	return out
}
