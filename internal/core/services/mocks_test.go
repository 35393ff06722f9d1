package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// --- Mock implementations for transform testing ---

// mockSource implements driven.DocumentSource.
type mockSource struct {
	docs   []domain.RawDocument
	err    error
	closed bool
}

func (m *mockSource) Type() string        { return "mock" }
func (m *mockSource) Description() string { return "mock source" }

func (m *mockSource) Documents(ctx context.Context) (<-chan domain.RawDocument, <-chan error) {
	docs := make(chan domain.RawDocument)
	errs := make(chan error, 1)

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
		if m.err != nil {
			errs <- m.err
		}
	}()

	return docs, errs
}

func (m *mockSource) Close() error {
	m.closed = true
	return nil
}

// mockParserRegistry implements driven.ParserRegistry by returning
// prepared packages keyed by document URI.
type mockParserRegistry struct {
	packages map[string]*domain.Package
}

func (r *mockParserRegistry) Register(_ driven.Parser) {}

func (r *mockParserRegistry) SupportedMIMETypes() []string {
	return []string{"application/xml"}
}

func (r *mockParserRegistry) Parse(_ context.Context, raw *domain.RawDocument) (*domain.Package, error) {
	pkg, ok := r.packages[raw.URI]
	if !ok {
		return nil, domain.ErrParse
	}
	return pkg, nil
}

// mockSink implements driven.Sink and driven.PassObserver.
type mockSink struct {
	name       string
	profile    domain.Profile
	deliveries []*domain.Delivery
	events     []string
	deliverErr error
	closed     bool
}

func (s *mockSink) Name() string            { return s.name }
func (s *mockSink) Profile() domain.Profile { return s.profile }

func (s *mockSink) Deliver(_ context.Context, d *domain.Delivery) error {
	if s.deliverErr != nil {
		return s.deliverErr
	}
	s.events = append(s.events, "deliver:"+d.ObjectType)
	s.deliveries = append(s.deliveries, d)
	return nil
}

func (s *mockSink) BeginPass(_ context.Context, _ *domain.PassInfo) error {
	s.events = append(s.events, "begin")
	return nil
}

func (s *mockSink) EndPass(_ context.Context, _ *domain.PassInfo) error {
	s.events = append(s.events, "end")
	return nil
}

func (s *mockSink) Close() error {
	s.closed = true
	return nil
}

// mockSourceFactory implements driven.SourceFactory.
type mockSourceFactory struct {
	source *mockSource
}

func (f *mockSourceFactory) Create(_ context.Context, cfg domain.SourceConfig) (driven.DocumentSource, error) {
	if cfg.Type != "mock" {
		return nil, domain.ErrUnsupportedType
	}
	return f.source, nil
}

func (f *mockSourceFactory) SupportedTypes() []string { return []string{"mock"} }

// mockSinkFactory implements driven.SinkFactory.
type mockSinkFactory struct {
	sinks map[string]*mockSink
}

func (f *mockSinkFactory) Create(_ context.Context, cfg domain.OutputConfig) (driven.Sink, error) {
	sink, ok := f.sinks[cfg.Type]
	if !ok {
		return nil, errors.New("no sink configured")
	}
	return sink, nil
}

func (f *mockSinkFactory) SupportedTypes() []string { return []string{"mock"} }

// mockMetrics implements driven.Metrics.
type mockMetrics struct {
	mu         sync.Mutex
	documents  map[string]int
	delivered  int
	unresolved int
	passes     int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{documents: make(map[string]int)}
}

func (m *mockMetrics) DocumentProcessed(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[result]++
}

func (m *mockMetrics) RecordsDelivered(_, _ string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delivered += n
}

func (m *mockMetrics) ReferenceUnresolved() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unresolved++
}

func (m *mockMetrics) PassCompleted(_ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passes++
}

// mockConfigStore implements driven.ConfigStore over a flat map.
type mockConfigStore struct {
	values map[string]any
}

func (m *mockConfigStore) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

func (m *mockConfigStore) GetString(key string) string {
	s, _ := m.values[key].(string)
	return s
}

func (m *mockConfigStore) GetInt(key string) int {
	n, _ := m.values[key].(int)
	return n
}

func (m *mockConfigStore) GetBool(key string) bool {
	b, _ := m.values[key].(bool)
	return b
}

func (m *mockConfigStore) GetStringSlice(key string) []string {
	s, _ := m.values[key].([]string)
	return s
}

func (m *mockConfigStore) Keys(prefix string) []string {
	var keys []string
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *mockConfigStore) Set(key string, value any) error {
	m.values[key] = value
	return nil
}

func (m *mockConfigStore) Save() error  { return nil }
func (m *mockConfigStore) Load() error  { return nil }
func (m *mockConfigStore) Path() string { return ":memory:" }
