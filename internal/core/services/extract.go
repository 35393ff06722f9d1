package services

import (
	"context"
	"fmt"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driving"
)

// Ensure ExtractService implements the interface.
var _ driving.ExtractService = (*ExtractService)(nil)

// ExtractService runs in-memory documents through a TransformService and
// collects the flattened records.
type ExtractService struct {
	transform *TransformService
	profiles  driving.ProfileService
}

// NewExtractService creates an extract service.
func NewExtractService(transform *TransformService, profiles driving.ProfileService) *ExtractService {
	return &ExtractService{transform: transform, profiles: profiles}
}

// Extract runs the request documents through one aggregate pass, or one
// pass per document when req.PerDocument is set. Records of every pass
// are collected.
func (s *ExtractService) Extract(ctx context.Context, req driving.ExtractRequest) (*driving.ExtractResult, error) {
	if len(req.Documents) == 0 {
		return nil, fmt.Errorf("%w: no documents", domain.ErrInvalidInput)
	}

	var profile domain.Profile
	switch {
	case req.Custom != nil:
		profile = req.Custom.Clone()
	case s.profiles != nil:
		p, err := s.profiles.Profile(req.Profile)
		if err != nil {
			return nil, err
		}
		profile = p
	default:
		return nil, fmt.Errorf("%w: no profile", domain.ErrInvalidInput)
	}

	collector := &recordCollector{profile: profile, records: make(map[string][]map[string]string)}
	source := &memorySource{docs: req.Documents}
	sinks := append([]driven.Sink{collector}, req.Sinks...)
	report, err := s.transform.Run(ctx, source, sinks, domain.RunOptions{
		Aggregate: !req.PerDocument,
		Scope:     req.Scope,
	})
	if err != nil {
		return nil, err
	}
	return &driving.ExtractResult{Records: collector.records, Report: report}, nil
}

// memorySource serves documents held in memory.
type memorySource struct {
	docs []domain.RawDocument
}

func (m *memorySource) Type() string { return "memory" }

func (m *memorySource) Description() string {
	return fmt.Sprintf("%d documents from request", len(m.docs))
}

func (m *memorySource) Documents(ctx context.Context) (<-chan domain.RawDocument, <-chan error) {
	docs := make(chan domain.RawDocument)
	errs := make(chan error)
	go func() {
		defer close(docs)
		defer close(errs)
		for _, doc := range m.docs {
			select {
			case <-ctx.Done():
				return
			case docs <- doc:
			}
		}
	}()
	return docs, errs
}

func (m *memorySource) Close() error { return nil }

// recordCollector is a sink keeping flattened records per object type.
type recordCollector struct {
	profile domain.Profile
	records map[string][]map[string]string
}

func (c *recordCollector) Name() string { return "collector" }

func (c *recordCollector) Profile() domain.Profile { return c.profile }

func (c *recordCollector) Deliver(_ context.Context, d *domain.Delivery) error {
	for _, r := range d.Records() {
		c.records[d.ObjectType] = append(c.records[d.ObjectType], r.Flatten())
	}
	return nil
}

func (c *recordCollector) Close() error { return nil }
