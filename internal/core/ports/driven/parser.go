package driven

import (
	"context"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

// Parser converts raw payloads into packages.
// Each parser handles specific MIME types (e.g., STIX XML).
type Parser interface {
	// Name returns the parser name for logging.
	Name() string

	// SupportedMIMETypes returns the MIME types this parser handles.
	SupportedMIMETypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format-specific parsers should return 50-100.
	// Sniffing fallbacks should return 1-9.
	Priority() int

	// Accepts reports whether the parser recognises the content.
	// Used when no parser matches the MIME type.
	Accepts(content []byte) bool

	// Parse converts a raw document into a package.
	// Failures wrap domain.ErrParse.
	Parse(ctx context.Context, raw *domain.RawDocument) (*domain.Package, error)
}

// ParserRegistry selects the appropriate parser for a document.
// It maintains a priority-ordered list of parsers and dispatches
// based on MIME type, falling back to content sniffing.
type ParserRegistry interface {
	// Parse converts a raw document using the best matching parser.
	Parse(ctx context.Context, raw *domain.RawDocument) (*domain.Package, error)

	// Register adds a parser to the registry.
	Register(parser Parser)

	// SupportedMIMETypes returns all MIME types that can be parsed.
	SupportedMIMETypes() []string
}
