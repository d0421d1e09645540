// internal/model/segment.go
package model

import (
	"encoding/json"
	"time"
)

// Rule fields understood by the evaluator.
const (
	FieldSpend        = "spend"
	FieldVisits       = "visits"
	FieldInactiveDays = "inactive_days"
)

// RuleNode is either a leaf rule {field, op, value} or a group {and, or}.
// A non-nil And (even empty) makes the node an AND group.
type RuleNode struct {
	Field string     `json:"field,omitempty"`
	Op    string     `json:"op,omitempty"`
	Value *float64   `json:"value,omitempty"`
	And   []RuleNode `json:"and,omitempty"`
	Or    []RuleNode `json:"or,omitempty"`
}

// MarshalJSON keeps an empty "and"/"or" array on the wire so that a
// vacuous group survives a round trip through storage.
func (n RuleNode) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 3)
	if n.Field != "" {
		out["field"] = n.Field
	}
	if n.Op != "" {
		out["op"] = n.Op
	}
	if n.Value != nil {
		out["value"] = *n.Value
	}
	if n.And != nil {
		out["and"] = n.And
	}
	if n.Or != nil {
		out["or"] = n.Or
	}
	return json.Marshal(out)
}

// RuleGroup is the root of a segment's rule tree.
type RuleGroup = RuleNode

// Leaf builds a leaf rule.
func Leaf(field, op string, value float64) RuleNode {
	return RuleNode{Field: field, Op: op, Value: &value}
}

// All builds an AND group.
func All(nodes ...RuleNode) RuleNode {
	if nodes == nil {
		nodes = []RuleNode{}
	}
	return RuleNode{And: nodes}
}

// Any builds an OR group.
func Any(nodes ...RuleNode) RuleNode {
	if nodes == nil {
		nodes = []RuleNode{}
	}
	return RuleNode{Or: nodes}
}

type Segment struct {
	ID              string     `db:"id" json:"id"`
	OwnerID         string     `db:"owner_id" json:"owner_id"`
	Name            string     `db:"name" json:"name"`
	Description     string     `db:"description" json:"description,omitempty"`
	Rules           RuleGroup  `db:"rules" json:"rules"`
	CustomerIDs     []string   `db:"customer_ids" json:"customer_ids"`
	CustomerCount   int        `db:"customer_count" json:"customer_count"`
	LastPopulatedAt *time.Time `db:"last_populated_at" json:"last_populated_at,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

// IsStale reports whether the snapshot should be re-materialized on read.
func (s *Segment) IsStale(now time.Time, maxAge time.Duration) bool {
	if s.CustomerCount == 0 || s.LastPopulatedAt == nil {
		return true
	}
	return now.Sub(*s.LastPopulatedAt) > maxAge
}
