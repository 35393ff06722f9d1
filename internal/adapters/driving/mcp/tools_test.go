package mcp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driving"
)

const stixDoc = `<stix:STIX_Package xmlns:stix="http://stix.mitre.org/stix-1" id="example:Package-1"/>`

func newExtractServer(t *testing.T, extract *mockExtractService) *Server {
	t.Helper()
	server, err := NewServer(&Ports{Extract: extract})
	require.NoError(t, err)
	return server
}

func TestServer_handleExtract(t *testing.T) {
	ctx := context.Background()

	t.Run("inline content", func(t *testing.T) {
		extract := &mockExtractService{result: &driving.ExtractResult{
			Records: map[string][]map[string]string{
				domain.ObjectAddress: {{"value": "10.0.0.1"}, {"value": "10.0.0.2"}},
			},
			Report: &domain.RunReport{Documents: 1, Unresolved: 2},
		}}
		server := newExtractServer(t, extract)

		_, output, err := server.handleExtract(ctx, nil, ExtractInput{Content: stixDoc, Scope: "observables"})

		require.NoError(t, err)
		assert.Equal(t, 2, output.Count)
		assert.Equal(t, 1, output.Documents)
		assert.Equal(t, 2, output.Unresolved)
		require.Len(t, extract.last.Documents, 1)
		assert.Equal(t, stixDoc, string(extract.last.Documents[0].Content))
		assert.Equal(t, "text", extract.last.Profile)
		assert.Equal(t, domain.ScopeObservables, extract.last.Scope)
	})

	t.Run("directory path", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"a.xml", "b.xml"} {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(stixDoc), 0600))
		}
		extract := &mockExtractService{result: &driving.ExtractResult{}}
		server := newExtractServer(t, extract)

		_, _, err := server.handleExtract(ctx, nil, ExtractInput{Path: dir, Profile: "bro", PerDocument: true})

		require.NoError(t, err)
		assert.Len(t, extract.last.Documents, 2)
		assert.Equal(t, "bro", extract.last.Profile)
		assert.True(t, extract.last.PerDocument)
	})

	t.Run("missing input", func(t *testing.T) {
		server := newExtractServer(t, &mockExtractService{})
		_, _, err := server.handleExtract(ctx, nil, ExtractInput{})
		assert.ErrorIs(t, err, ErrNoInput)
	})

	t.Run("missing path", func(t *testing.T) {
		server := newExtractServer(t, &mockExtractService{})
		_, _, err := server.handleExtract(ctx, nil, ExtractInput{Path: filepath.Join(t.TempDir(), "absent.xml")})
		assert.Error(t, err)
	})

	t.Run("invalid scope", func(t *testing.T) {
		server := newExtractServer(t, &mockExtractService{})
		_, _, err := server.handleExtract(ctx, nil, ExtractInput{Content: stixDoc, Scope: "everything"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("extract failure", func(t *testing.T) {
		server := newExtractServer(t, &mockExtractService{err: errors.New("extract failed")})
		_, _, err := server.handleExtract(ctx, nil, ExtractInput{Content: stixDoc})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "extract failed")
	})
}
