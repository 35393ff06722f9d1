package normalisers

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

type fakeParser struct {
	name     string
	mimes    []string
	priority int
	marker   string
}

func (f *fakeParser) Name() string                 { return f.name }
func (f *fakeParser) SupportedMIMETypes() []string { return f.mimes }
func (f *fakeParser) Priority() int                { return f.priority }

func (f *fakeParser) Accepts(content []byte) bool {
	return strings.Contains(string(content), f.marker)
}

func (f *fakeParser) Parse(_ context.Context, _ *domain.RawDocument) (*domain.Package, error) {
	return &domain.Package{ID: f.name}, nil
}

func TestRegistry_SelectsByMIMEAndPriority(t *testing.T) {
	low := &fakeParser{name: "low", mimes: []string{"application/xml"}, priority: 10, marker: "<"}
	high := &fakeParser{name: "high", mimes: []string{"application/xml"}, priority: 90, marker: "STIX"}
	r := NewRegistry(low, high)

	pkg, err := r.Parse(context.Background(), &domain.RawDocument{
		MIMEType: "application/xml; charset=utf-8",
		Content:  []byte("<STIX_Package/>"),
	})
	require.NoError(t, err)
	assert.Equal(t, "high", pkg.ID)

	pkg, err = r.Parse(context.Background(), &domain.RawDocument{
		MIMEType: "application/xml",
		Content:  []byte("<other/>"),
	})
	require.NoError(t, err)
	assert.Equal(t, "low", pkg.ID, "parsers that reject the content are skipped")
}

func TestRegistry_SniffsWithoutMIMEType(t *testing.T) {
	r := NewRegistry(&fakeParser{name: "stix", mimes: []string{"text/xml"}, priority: 80, marker: "STIX"})

	pkg, err := r.Parse(context.Background(), &domain.RawDocument{
		MIMEType: "application/octet-stream",
		Content:  []byte("<stix:STIX_Package/>"),
	})

	require.NoError(t, err)
	assert.Equal(t, "stix", pkg.ID)
}

func TestRegistry_NoParser(t *testing.T) {
	r := NewRegistry(&fakeParser{name: "stix", mimes: []string{"text/xml"}, priority: 80, marker: "STIX"})

	_, err := r.Parse(context.Background(), &domain.RawDocument{URI: "a.json", Content: []byte("{}")})
	assert.ErrorIs(t, err, domain.ErrParse)

	_, err = r.Parse(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestRegistry_SupportedMIMETypes(t *testing.T) {
	r := NewRegistry(
		&fakeParser{mimes: []string{"text/xml", "application/xml"}},
		&fakeParser{mimes: []string{"application/xml"}},
	)

	assert.Equal(t, []string{"application/xml", "text/xml"}, r.SupportedMIMETypes())
}
