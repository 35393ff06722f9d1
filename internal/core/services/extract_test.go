package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driving"
)

func TestExtractService_Extract(t *testing.T) {
	pkg := &domain.Package{
		ID: "pkg-1",
		Indicators: []*domain.Indicator{indicator("ind-1",
			addressObservable("", domain.AddressIPv4, "10.0.0.1", "Equals"),
			fileObservable("", "aa", "bb"),
		)},
	}
	transform := newTestService(map[string]*domain.Package{"req.xml": pkg})
	svc := NewExtractService(transform, NewProfileService(defaultProfiles(), nil))

	result, err := svc.Extract(context.Background(), driving.ExtractRequest{
		Documents: []domain.RawDocument{rawDoc("req.xml")},
		Profile:   "text",
	})

	require.NoError(t, err)
	assert.Equal(t, []map[string]string{
		{"category": "ipv4-addr", "value": "10.0.0.1", "value_condition": "Equals"},
	}, result.Records[domain.ObjectAddress])
	assert.Len(t, result.Records[domain.ObjectFile], 2)
	assert.Equal(t, 1, result.Report.Passes)
}

func TestExtractService_CustomProfile(t *testing.T) {
	pkg := &domain.Package{
		ID:          "pkg-1",
		Observables: []*domain.Observable{fileObservable("obs-1", "aa")},
	}
	transform := newTestService(map[string]*domain.Package{"req.xml": pkg})
	svc := NewExtractService(transform, nil)
	custom := fileProfile()

	result, err := svc.Extract(context.Background(), driving.ExtractRequest{
		Documents: []domain.RawDocument{rawDoc("req.xml")},
		Custom:    &custom,
		Scope:     domain.ScopeObservables,
	})

	require.NoError(t, err)
	assert.Equal(t, []map[string]string{
		{"hashes.simple_hash_value": "aa", "hashes.simple_hash_value_condition": "Equals"},
	}, result.Records[domain.ObjectFile])
}

func TestExtractService_Errors(t *testing.T) {
	svc := NewExtractService(newTestService(nil), NewProfileService(defaultProfiles(), nil))

	_, err := svc.Extract(context.Background(), driving.ExtractRequest{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Extract(context.Background(), driving.ExtractRequest{
		Documents: []domain.RawDocument{rawDoc("x.xml")},
		Profile:   "missing",
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExtractService_PerDocument(t *testing.T) {
	packages := map[string]*domain.Package{
		"a.xml": {ID: "pkg-a", Indicators: []*domain.Indicator{indicator("ind-a",
			addressObservable("", domain.AddressIPv4, "10.0.0.1", "Equals"))}},
		"b.xml": {ID: "pkg-b", Indicators: []*domain.Indicator{indicator("ind-b",
			addressObservable("", domain.AddressIPv4, "10.0.0.2", "Equals"))}},
	}
	svc := NewExtractService(newTestService(packages), NewProfileService(defaultProfiles(), nil))

	result, err := svc.Extract(context.Background(), driving.ExtractRequest{
		Documents:   []domain.RawDocument{rawDoc("a.xml"), rawDoc("b.xml")},
		Profile:     "text",
		PerDocument: true,
	})

	require.NoError(t, err)
	assert.Equal(t, 2, result.Report.Passes)
	assert.Len(t, result.Records[domain.ObjectAddress], 2)
}

func TestExtractService_ExtraSinks(t *testing.T) {
	pkg := &domain.Package{
		ID: "pkg-1",
		Indicators: []*domain.Indicator{indicator("ind-1",
			addressObservable("", domain.AddressIPv4, "10.0.0.1", "Equals"))},
	}
	svc := NewExtractService(newTestService(map[string]*domain.Package{"req.xml": pkg}), NewProfileService(defaultProfiles(), nil))
	extra := &mockSink{name: "extra", profile: domain.Profile{
		Types: map[string]domain.TypeProfile{domain.ObjectAddress: addressProfile()},
	}}

	_, err := svc.Extract(context.Background(), driving.ExtractRequest{
		Documents: []domain.RawDocument{rawDoc("req.xml")},
		Profile:   "text",
		Sinks:     []driven.Sink{extra},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"begin", "deliver:" + domain.ObjectAddress, "end"}, extra.events)
	assert.False(t, extra.closed)
}
