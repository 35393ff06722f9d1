package normalisers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// Ensure Registry implements the interface.
var _ driven.ParserRegistry = (*Registry)(nil)

// Registry dispatches raw documents to the highest priority parser for
// their MIME type, falling back to content sniffing.
type Registry struct {
	mu      sync.RWMutex
	parsers []driven.Parser
}

// NewRegistry creates a registry with the given parsers.
func NewRegistry(parsers ...driven.Parser) *Registry {
	r := &Registry{}
	for _, p := range parsers {
		r.Register(p)
	}
	return r
}

// Register adds a parser, keeping parsers ordered by priority.
func (r *Registry) Register(parser driven.Parser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers = append(r.parsers, parser)
	sort.SliceStable(r.parsers, func(i, j int) bool {
		return r.parsers[i].Priority() > r.parsers[j].Priority()
	})
}

// SupportedMIMETypes returns all MIME types that can be parsed, sorted.
func (r *Registry) SupportedMIMETypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for _, p := range r.parsers {
		for _, m := range p.SupportedMIMETypes() {
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Parse converts raw using the best matching parser.
func (r *Registry) Parse(ctx context.Context, raw *domain.RawDocument) (*domain.Package, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	parser := r.selectParser(raw)
	if parser == nil {
		return nil, fmt.Errorf("%w: no parser for %s (%s)", domain.ErrParse, raw.URI, raw.MIMEType)
	}
	return parser.Parse(ctx, raw)
}

func (r *Registry) selectParser(raw *domain.RawDocument) driven.Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mimeType := baseMIMEType(raw.MIMEType)
	if mimeType != "" {
		for _, p := range r.parsers {
			for _, m := range p.SupportedMIMETypes() {
				if m == mimeType && p.Accepts(raw.Content) {
					return p
				}
			}
		}
	}
	for _, p := range r.parsers {
		if p.Accepts(raw.Content) {
			return p
		}
	}
	return nil
}

// baseMIMEType strips parameters such as charset.
func baseMIMEType(m string) string {
	base, _, _ := strings.Cut(m, ";")
	return strings.ToLower(strings.TrimSpace(base))
}
