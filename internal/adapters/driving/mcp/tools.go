package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/ctitrans/internal/connectors/filesystem"
	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driving"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// defaultProfile is used when a tool call names no profile.
const defaultProfile = "text"

// ExtractInput is the input schema for the extract_observables tool.
type ExtractInput struct {
	Path        string `json:"path,omitempty" jsonschema:"STIX XML file or directory to read"`
	Content     string `json:"content,omitempty" jsonschema:"inline STIX XML document, used when path is empty"`
	Recurse     bool   `json:"recurse,omitempty" jsonschema:"descend into subdirectories of path"`
	PerDocument bool   `json:"per_document,omitempty" jsonschema:"process each document separately instead of aggregating"`
	Profile     string `json:"profile,omitempty" jsonschema:"sink profile selecting the fields (default text)"`
	Scope       string `json:"scope,omitempty" jsonschema:"indicators (default) or observables"`
}

// ExtractOutput is the output schema for the extract_observables tool.
type ExtractOutput struct {
	Records    map[string][]map[string]string `json:"records"`
	Count      int                            `json:"count"`
	Documents  int                            `json:"documents"`
	Skipped    int                            `json:"skipped"`
	Unresolved int                            `json:"unresolved"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "extract_observables",
		Description: "Extract observables from STIX 1.x documents as records per object type",
	}, s.handleExtract)
}

// handleExtract handles the extract_observables tool invocation.
func (s *Server) handleExtract(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ExtractInput,
) (*mcp.CallToolResult, ExtractOutput, error) {
	scope, err := domain.ParseScope(input.Scope)
	if err != nil {
		return nil, ExtractOutput{}, err
	}
	docs, err := s.documents(ctx, input)
	if err != nil {
		return nil, ExtractOutput{}, err
	}

	profile := input.Profile
	if profile == "" {
		profile = defaultProfile
	}
	result, err := s.ports.Extract.Extract(ctx, driving.ExtractRequest{
		Documents:   docs,
		Profile:     profile,
		Scope:       scope,
		PerDocument: input.PerDocument,
	})
	if err != nil {
		return nil, ExtractOutput{}, err
	}

	output := ExtractOutput{Records: result.Records}
	for _, records := range result.Records {
		output.Count += len(records)
	}
	if result.Report != nil {
		output.Documents = result.Report.Documents
		output.Skipped = result.Report.Skipped
		output.Unresolved = result.Report.Unresolved
	}
	return nil, output, nil
}

// documents reads the tool input into raw documents.
func (s *Server) documents(ctx context.Context, input ExtractInput) ([]domain.RawDocument, error) {
	if input.Path == "" {
		if input.Content == "" {
			return nil, ErrNoInput
		}
		return []domain.RawDocument{{
			URI:      "mcp:content",
			MIMEType: "application/xml",
			Content:  []byte(input.Content),
		}}, nil
	}

	log := s.ports.Log
	if log == nil {
		log = logger.Discard()
	}
	source := filesystem.New([]string{input.Path},
		filesystem.WithRecurse(input.Recurse),
		filesystem.WithLogger(log),
	)
	defer source.Close()
	if err := source.Validate(ctx); err != nil {
		return nil, err
	}

	var docs []domain.RawDocument
	docCh, errCh := source.Documents(ctx)
	for docCh != nil || errCh != nil {
		select {
		case doc, ok := <-docCh:
			if !ok {
				docCh = nil
				continue
			}
			docs = append(docs, doc)
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", input.Path, err)
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if len(docs) == 0 {
		return nil, errors.New("mcp: no documents found at " + input.Path)
	}
	return docs, nil
}
