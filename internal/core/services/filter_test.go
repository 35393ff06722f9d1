package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

func extractAddress(t *testing.T, category string) []domain.Record {
	t.Helper()
	obs := addressObservable("obs-1", category, "10.0.0.1", "Equals")
	return NewFieldExtractor(ExtractorConfig{}).Extract(obs.Properties(), Paths(addressProfile()))
}

func TestFilter_ScenarioAllowedCategory(t *testing.T) {
	records := NewConstraintFilter().Filter(extractAddress(t, domain.AddressIPv4), addressProfile())

	require.Len(t, records, 1)
	assert.Equal(t, map[string]string{
		"category":        "ipv4-addr",
		"value":           "10.0.0.1",
		"value_condition": "Equals",
	}, records[0].Flatten())
}

func TestFilter_ScenarioDisallowedCategory(t *testing.T) {
	records := NewConstraintFilter().Filter(extractAddress(t, domain.AddressIPv6), addressProfile())

	assert.Empty(t, records)
}

func TestFilter_ConstraintOnlyFieldsStripped(t *testing.T) {
	tp := domain.TypeProfile{
		Fields:      []string{"value"},
		Constraints: map[string][]string{"category": {domain.AddressIPv4, domain.AddressIPv6}},
	}
	obs := addressObservable("obs-1", domain.AddressIPv6, "2001:db8::1", "Equals")
	raw := NewFieldExtractor(ExtractorConfig{}).Extract(obs.Properties(), Paths(tp))
	require.Len(t, raw, 1)
	require.Contains(t, raw[0], "category")

	records := NewConstraintFilter().Filter(raw, tp)

	require.Len(t, records, 1)
	for _, field := range records[0].Fields() {
		assert.True(t, tp.Declares(field), "field %q is not declared", field)
	}
	assert.Equal(t, map[string]string{"value": "2001:db8::1", "value_condition": "Equals"}, records[0].Flatten())
	assert.Contains(t, raw[0], "category", "input records are not modified")
}

func TestFilter_AllConstraintsMustHold(t *testing.T) {
	tp := domain.TypeProfile{
		Fields: []string{"type", "value"},
		Constraints: map[string][]string{
			"type":  {"FQDN"},
			"value": {"evil.example.com"},
		},
	}
	records := []domain.Record{
		{"type": {Value: "FQDN", Condition: domain.NoCondition}, "value": {Value: "evil.example.com", Condition: "Equals"}},
		{"type": {Value: "FQDN", Condition: domain.NoCondition}, "value": {Value: "good.example.com", Condition: "Equals"}},
		{"type": {Value: "TLD", Condition: domain.NoCondition}, "value": {Value: "evil.example.com", Condition: "Equals"}},
		{"value": {Value: "evil.example.com", Condition: "Equals"}},
	}

	got := NewConstraintFilter().Filter(records, tp)

	require.Len(t, got, 1)
	assert.Equal(t, "evil.example.com", got[0].Get("value"))
	assert.Equal(t, "FQDN", got[0].Get("type"))
}

func TestFilter_Idempotent(t *testing.T) {
	tp := domain.TypeProfile{
		Fields:      []string{"value"},
		Constraints: map[string][]string{"category": {domain.AddressIPv4}},
	}
	f := NewConstraintFilter()
	x := NewFieldExtractor(ExtractorConfig{})

	var raw []domain.Record
	for _, c := range []string{domain.AddressIPv4, domain.AddressIPv6, domain.AddressIPv4} {
		obs := addressObservable("", c, "198.51.100."+c[3:4], "")
		raw = append(raw, x.Extract(obs.Properties(), Paths(tp))...)
	}

	once := f.Filter(raw, tp)
	twice := f.Filter(once, tp)

	require.Len(t, once, 2)
	assert.Equal(t, once, twice)
	assert.Equal(t, twice, f.Filter(twice, tp))
}

func TestFilter_NoConstraints(t *testing.T) {
	records := []domain.Record{{"value": {Value: "x", Condition: domain.NoCondition}}}

	got := NewConstraintFilter().Filter(records, domain.TypeProfile{Fields: []string{"value"}})

	assert.Equal(t, records, got)
	assert.Empty(t, NewConstraintFilter().Filter(nil, addressProfile()))
}
