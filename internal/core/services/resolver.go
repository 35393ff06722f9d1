package services

import (
	"fmt"
	"reflect"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

// indicatorRelations maps an indicator relation to the category its
// references resolve against.
var indicatorRelations = map[string]domain.Category{
	domain.RelationIndicatedTTPs:     domain.CategoryTTPs,
	domain.RelationSuggestedCOAs:     domain.CategoryCoursesOfAction,
	domain.RelationRelatedIndicators: domain.CategoryIndicators,
	domain.RelationObservables:       domain.CategoryObservables,
}

// ReferenceResolver resolves idrefs against a DocumentIndex and expands
// composite elements. It never mutates the elements it is given.
type ReferenceResolver struct {
	index *DocumentIndex
}

// NewReferenceResolver creates a resolver over index.
func NewReferenceResolver(index *DocumentIndex) *ReferenceResolver {
	return &ReferenceResolver{index: index}
}

// Dereference resolves values against the index for target.
//
// When unwrap is set, the wrapped item of each domain.Related value is
// used instead of the value itself. References missing from the index are
// reported on pass and dropped. Observable compositions are expanded in
// place, preserving order and duplicates; other composites are returned
// as they are. A composition that contains itself yields a
// *domain.CycleError.
func (r *ReferenceResolver) Dereference(
	pass *Pass,
	values []domain.Element,
	target domain.Category,
	unwrap bool,
) ([]domain.Element, error) {
	return r.dereference(pass, values, target, unwrap, make(map[domain.Element]bool))
}

func (r *ReferenceResolver) dereference(
	pass *Pass,
	values []domain.Element,
	target domain.Category,
	unwrap bool,
	visiting map[domain.Element]bool,
) ([]domain.Element, error) {
	out := make([]domain.Element, 0, len(values))
	for _, value := range values {
		if unwrap {
			related, ok := value.(domain.Related)
			if !ok {
				continue
			}
			value = related.Item()
		}
		resolved, ok := r.resolve(pass, value, target)
		if !ok {
			continue
		}

		composite, isComposite := resolved.(domain.Composite)
		if target != domain.CategoryObservables || !isComposite || !composite.IsComposite() {
			out = append(out, resolved)
			continue
		}

		if visiting[resolved] {
			return nil, &domain.CycleError{Category: target, ID: resolved.ElementID()}
		}
		visiting[resolved] = true
		members, err := r.dereference(pass, composite.Members(), target, false, visiting)
		delete(visiting, resolved)
		if err != nil {
			return nil, err
		}
		out = append(out, members...)
	}
	return out, nil
}

// resolve returns the element a value stands for: the indexed element
// for a reference, the value itself otherwise.
func (r *ReferenceResolver) resolve(pass *Pass, value domain.Element, target domain.Category) (domain.Element, bool) {
	if value == nil || isNilElement(value) {
		return nil, false
	}
	if !domain.IsReference(value) {
		return value, true
	}
	el, ok := r.index.Get(target, value.IDRef())
	if !ok {
		pass.unresolved(target, value.IDRef())
		return nil, false
	}
	return el, true
}

// ResolveIndicatorRelation dereferences one of the named indicator
// relations. indicated_ttps is unwrapped one extra level.
func (r *ReferenceResolver) ResolveIndicatorRelation(
	pass *Pass,
	ind *domain.Indicator,
	relation string,
) ([]domain.Element, error) {
	target, ok := indicatorRelations[relation]
	if !ok {
		return nil, fmt.Errorf("%w: indicator relation %q", domain.ErrUnsupportedType, relation)
	}
	values, _ := ind.Relation(relation)
	if len(values) == 0 {
		return nil, nil
	}
	return r.Dereference(pass, values, target, relation == domain.RelationIndicatedTTPs)
}

// LeafIndicators expands composite indicator expressions recursively and
// returns the non-composite indicators in document order. References to
// indicators are resolved through the index.
func (r *ReferenceResolver) LeafIndicators(pass *Pass, ind *domain.Indicator) ([]*domain.Indicator, error) {
	var out []*domain.Indicator
	err := r.leafIndicators(pass, ind, make(map[*domain.Indicator]bool), &out)
	return out, err
}

func (r *ReferenceResolver) leafIndicators(
	pass *Pass,
	ind *domain.Indicator,
	visiting map[*domain.Indicator]bool,
	out *[]*domain.Indicator,
) error {
	if !ind.IsComposite() {
		*out = append(*out, ind)
		return nil
	}
	if visiting[ind] {
		return &domain.CycleError{Category: domain.CategoryIndicators, ID: ind.ID}
	}
	visiting[ind] = true
	defer delete(visiting, ind)

	for _, member := range ind.Members() {
		resolved, ok := r.resolve(pass, member, domain.CategoryIndicators)
		if !ok {
			continue
		}
		child, ok := resolved.(*domain.Indicator)
		if !ok {
			continue
		}
		if err := r.leafIndicators(pass, child, visiting, out); err != nil {
			return err
		}
	}
	return nil
}

func isNilElement(e domain.Element) bool {
	rv := reflect.ValueOf(e)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
