package domain

import "sort"

// NoCondition is the condition recorded for a value whose property had no
// condition attribute. It is distinct from an empty condition.
const NoCondition = "-"

// FieldValue is one extracted value with its condition.
type FieldValue struct {
	Value     string
	Condition string
}

// HasCondition reports whether a condition was recorded.
func (f FieldValue) HasCondition() bool {
	return f.Condition != NoCondition
}

// Record maps a dotted field path to its extracted value. Records are
// produced and consumed within a single pass.
type Record map[string]FieldValue

// ConditionKey is the flattened key used for the condition of field.
func ConditionKey(field string) string {
	return field + "_condition"
}

// Get returns the value of field, or "".
func (r Record) Get(field string) string {
	return r[field].Value
}

// Clone returns a copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Fields returns the record's field paths, sorted.
func (r Record) Fields() []string {
	fields := make([]string, 0, len(r))
	for field := range r {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// Flatten renders the record as field -> value, adding
// field_condition -> condition for every recorded condition.
func (r Record) Flatten() map[string]string {
	out := make(map[string]string, len(r))
	for field, fv := range r {
		out[field] = fv.Value
		if fv.HasCondition() {
			out[ConditionKey(field)] = fv.Condition
		}
	}
	return out
}
