package services

import (
	"slices"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

// ConstraintFilter drops records whose constrained fields hold values
// outside the allowed sets and strips fields that were only extracted for
// constraint checking.
type ConstraintFilter struct{}

// NewConstraintFilter creates a constraint filter.
func NewConstraintFilter() *ConstraintFilter {
	return &ConstraintFilter{}
}

// Filter returns the records of records satisfying every constraint of
// tp. A constrained field present with a disallowed value drops the
// record, as does a constrained declared field that is absent. The input
// records are not modified. Filter is idempotent.
func (ConstraintFilter) Filter(records []domain.Record, tp domain.TypeProfile) []domain.Record {
	if len(records) == 0 {
		return nil
	}
	strip := tp.ConstraintOnly()

	out := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if !satisfies(r, tp) {
			continue
		}
		if len(strip) > 0 {
			r = r.Clone()
			for _, field := range strip {
				delete(r, field)
			}
		}
		if len(r) == 0 {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func satisfies(r domain.Record, tp domain.TypeProfile) bool {
	for field, allowed := range tp.Constraints {
		fv, ok := r[field]
		if !ok {
			if tp.Declares(field) {
				return false
			}
			continue
		}
		if !slices.Contains(allowed, fv.Value) {
			return false
		}
	}
	return true
}
