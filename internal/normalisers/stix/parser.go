package stix

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// Ensure Parser implements the interface.
var _ driven.Parser = (*Parser)(nil)

// Parser handles STIX 1.x XML documents.
type Parser struct{}

// New creates a new STIX parser.
func New() *Parser {
	return &Parser{}
}

// Name returns the parser name.
func (p *Parser) Name() string {
	return "stix"
}

// SupportedMIMETypes returns the MIME types this parser handles.
func (p *Parser) SupportedMIMETypes() []string {
	return []string{"application/xml", "text/xml", "application/stix+xml"}
}

// Priority returns the selection priority.
func (p *Parser) Priority() int {
	return 80
}

// Accepts reports whether content looks like a STIX package.
func (p *Parser) Accepts(content []byte) bool {
	return bytes.Contains(content, []byte("STIX_Package"))
}

// Parse converts a STIX XML document into a package.
func (p *Parser) Parse(_ context.Context, raw *domain.RawDocument) (*domain.Package, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}
	if len(bytes.TrimSpace(raw.Content)) == 0 {
		return nil, fmt.Errorf("%w: %s: empty document", domain.ErrParse, raw.URI)
	}

	var doc xmlPackage
	if err := xml.Unmarshal(raw.Content, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrParse, raw.URI, err)
	}

	pkg := doc.toDomain()
	pkg.Raw = raw.Content
	pkg.SourceMetadata = map[string]string{}
	if pkg.ID != "" {
		pkg.SourceMetadata[domain.MetaPackageID] = pkg.ID
	}
	if tlp := pkg.TLP(""); tlp != "" {
		pkg.SourceMetadata[domain.MetaTLP] = tlp
	}
	return pkg, nil
}
