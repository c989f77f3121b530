package audit

import "github.com/Velocidex/ordereddict"

// Record is one structured finding produced by applying a rule to a system
// capture. Fields hold exactly the rule's column set in column order, with
// empty strings for fields the match did not capture. Never mutated after
// creation.
type Record struct {
	System string            `json:"system"`
	RuleID string            `json:"rule"`
	Fields *ordereddict.Dict `json:"fields"`
}

// Get returns one field value, empty string for unknown fields
func (r *Record) Get(field string) string {
	val, _ := r.Fields.GetString(field)
	return val
}

// Columns returns the record's field names in column order
func (r *Record) Columns() []string {
	return r.Fields.Keys()
}
