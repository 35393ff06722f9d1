package mcp

import (
	"context"
	"sort"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driving"
)

// mockExtractService is a mock implementation of driving.ExtractService.
type mockExtractService struct {
	result *driving.ExtractResult
	err    error
	last   driving.ExtractRequest
}

func (m *mockExtractService) Extract(_ context.Context, req driving.ExtractRequest) (*driving.ExtractResult, error) {
	m.last = req
	return m.result, m.err
}

// mockProfileService is a mock implementation of driving.ProfileService.
type mockProfileService struct {
	profiles map[string]domain.Profile
	err      error
}

func (m *mockProfileService) Profile(sink string) (domain.Profile, error) {
	if m.err != nil {
		return domain.Profile{}, m.err
	}
	p, ok := m.profiles[sink]
	if !ok {
		return domain.Profile{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *mockProfileService) Names() []string {
	names := make([]string, 0, len(m.profiles))
	for name := range m.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
