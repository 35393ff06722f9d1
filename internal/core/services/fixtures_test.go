package services

import (
	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

func addressObservable(id, category, value, condition string) *domain.Observable {
	return &domain.Observable{
		ID: id,
		Object: &domain.Object{Properties: &domain.Address{
			Category:     category,
			AddressValue: domain.Attr{Value: value, Condition: condition},
		}},
	}
}

func fileObservable(id string, hashes ...string) *domain.Observable {
	file := &domain.File{FileName: domain.Attr{Value: id + ".exe"}}
	for _, h := range hashes {
		file.Hashes = append(file.Hashes, &domain.Hash{
			Type:            domain.Attr{Value: "MD5"},
			SimpleHashValue: domain.Attr{Value: h, Condition: "Equals"},
		})
	}
	return &domain.Observable{ID: id, Object: &domain.Object{Properties: file}}
}

func composition(id string, members ...*domain.Observable) *domain.Observable {
	return &domain.Observable{
		ID:          id,
		Composition: &domain.ObservableComposition{Operator: "OR", Observables: members},
	}
}

func observableRef(id string) *domain.Observable {
	return &domain.Observable{Ref: id}
}

func indicator(id string, observables ...*domain.Observable) *domain.Indicator {
	return &domain.Indicator{ID: id, Observables: observables}
}

func compositeIndicator(id string, members ...*domain.Indicator) *domain.Indicator {
	return &domain.Indicator{
		ID:        id,
		Composite: &domain.CompositeIndicatorExpression{Operator: "AND", Indicators: members},
	}
}

func addressProfile() domain.TypeProfile {
	return domain.TypeProfile{
		Fields:      []string{"category", "value"},
		Constraints: map[string][]string{"category": {domain.AddressIPv4}},
	}
}

func ids(elements []domain.Element) []string {
	out := make([]string, len(elements))
	for i, el := range elements {
		out[i] = el.ElementID()
	}
	return out
}
