package domain

import (
	"slices"
	"sort"
)

// TypeProfile lists the fields a sink consumes for one object type and
// the value constraints a record must satisfy.
type TypeProfile struct {
	// Fields are the declared output fields, in output order.
	// Paths may use dot notation (e.g., "header.to").
	Fields []string

	// Constraints maps a field path to its allowed values.
	// Multiple constraints combine with AND.
	Constraints map[string][]string
}

// Declares reports whether field is a declared output field.
func (tp TypeProfile) Declares(field string) bool {
	return slices.Contains(tp.Fields, field)
}

// ConstraintOnly returns constrained fields that are not declared output
// fields, sorted.
func (tp TypeProfile) ConstraintOnly() []string {
	var extra []string
	for field := range tp.Constraints {
		if !tp.Declares(field) {
			extra = append(extra, field)
		}
	}
	sort.Strings(extra)
	return extra
}

// Paths returns the declared fields followed by any fields required only
// for constraint checking.
func (tp TypeProfile) Paths() []string {
	paths := make([]string, 0, len(tp.Fields)+len(tp.Constraints))
	paths = append(paths, tp.Fields...)
	return append(paths, tp.ConstraintOnly()...)
}

// Clone returns a deep copy.
func (tp TypeProfile) Clone() TypeProfile {
	out := TypeProfile{Fields: slices.Clone(tp.Fields)}
	if tp.Constraints != nil {
		out.Constraints = make(map[string][]string, len(tp.Constraints))
		for field, allowed := range tp.Constraints {
			out.Constraints[field] = slices.Clone(allowed)
		}
	}
	return out
}

// Profile is the extraction configuration of one sink.
type Profile struct {
	// Types maps object type to its profile. When empty, every object
	// type is supported and no fields are extracted (counting sinks).
	Types map[string]TypeProfile

	// Conditions lists the accepted condition values. Empty accepts all.
	// Values without a condition are always accepted.
	Conditions []string
}

// Supports reports whether the profile handles objectType.
func (p Profile) Supports(objectType string) bool {
	if objectType == "" {
		return false
	}
	if len(p.Types) == 0 {
		return true
	}
	_, ok := p.Types[objectType]
	return ok
}

// Type returns the profile for objectType.
func (p Profile) Type(objectType string) (TypeProfile, bool) {
	tp, ok := p.Types[objectType]
	return tp, ok
}

// ObjectTypes returns the configured object types, sorted.
func (p Profile) ObjectTypes() []string {
	types := make([]string, 0, len(p.Types))
	for t := range p.Types {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Clone returns a deep copy.
func (p Profile) Clone() Profile {
	out := Profile{Conditions: slices.Clone(p.Conditions)}
	if p.Types != nil {
		out.Types = make(map[string]TypeProfile, len(p.Types))
		for t, tp := range p.Types {
			out.Types[t] = tp.Clone()
		}
	}
	return out
}
