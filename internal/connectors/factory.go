package connectors

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/ctitrans/internal/connectors/filesystem"
	"github.com/custodia-labs/ctitrans/internal/connectors/taxii"
	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// Ensure Factory implements the interface.
var _ driven.SourceFactory = (*Factory)(nil)

// SourceBuilder creates a DocumentSource from configuration.
type SourceBuilder func(ctx context.Context, cfg domain.SourceConfig) (driven.DocumentSource, error)

// Factory creates document sources from a registry of builders.
type Factory struct {
	mu       sync.RWMutex
	builders map[string]SourceBuilder
	log      *logger.Logger
}

// NewFactory creates a factory with the built-in file and TAXII sources.
func NewFactory(log *logger.Logger) *Factory {
	if log == nil {
		log = logger.Discard()
	}
	f := &Factory{
		builders: make(map[string]SourceBuilder),
		log:      log,
	}
	f.Register(filesystem.Type, f.buildFilesystem)
	f.Register(taxii.Type, f.buildTAXII)
	return f
}

// Register adds a builder for the given source type.
func (f *Factory) Register(sourceType string, builder SourceBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[sourceType] = builder
}

// Create returns a DocumentSource for cfg.
func (f *Factory) Create(ctx context.Context, cfg domain.SourceConfig) (driven.DocumentSource, error) {
	f.mu.RLock()
	builder, ok := f.builders[cfg.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: source %q", domain.ErrUnsupportedType, cfg.Type)
	}
	return builder(ctx, cfg)
}

// SupportedTypes returns the registered source types, sorted.
func (f *Factory) SupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (f *Factory) buildFilesystem(ctx context.Context, cfg domain.SourceConfig) (driven.DocumentSource, error) {
	c := filesystem.New(cfg.Paths,
		filesystem.WithRecurse(cfg.Recurse),
		filesystem.WithWatch(cfg.Watch),
		filesystem.WithLogger(f.log),
	)
	if err := c.Validate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (f *Factory) buildTAXII(_ context.Context, cfg domain.SourceConfig) (driven.DocumentSource, error) {
	tcfg, err := taxii.ConfigFromSettings(cfg.Settings)
	if err != nil {
		return nil, err
	}
	client, err := taxii.NewClient(tcfg.PollURL, tcfg.Auth, taxii.WithClientLogger(f.log))
	if err != nil {
		return nil, err
	}
	return taxii.New(tcfg, client, f.log), nil
}
