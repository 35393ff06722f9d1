package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// uriScheme is the custom URI scheme for ctitrans resources.
	uriScheme = "ctitrans://"
)

// typeView is the JSON form of a domain.TypeProfile.
type typeView struct {
	Fields      []string            `json:"fields"`
	Constraints map[string][]string `json:"constraints,omitempty"`
}

// profileView is the JSON form of a domain.Profile.
type profileView struct {
	Types      map[string]typeView `json:"types,omitempty"`
	Conditions []string            `json:"conditions,omitempty"`
}

// registerResources registers all resource handlers with the MCP server.
func (s *Server) registerResources() {
	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "profiles",
		Name:        "profiles",
		Description: "Fields, constraints and conditions extracted for each sink",
		MIMEType:    "application/json",
	}, s.handleProfilesResource)
}

// handleProfilesResource returns the effective profile of every sink.
func (s *Server) handleProfilesResource(
	_ context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	views := make(map[string]profileView)
	if s.ports.Profiles != nil {
		for _, name := range s.ports.Profiles.Names() {
			p, err := s.ports.Profiles.Profile(name)
			if err != nil {
				return nil, fmt.Errorf("resolving profile %s: %w", name, err)
			}
			view := profileView{Conditions: p.Conditions}
			if len(p.Types) > 0 {
				view.Types = make(map[string]typeView, len(p.Types))
				for objectType, tp := range p.Types {
					view.Types[objectType] = typeView{Fields: tp.Fields, Constraints: tp.Constraints}
				}
			}
			views[name] = view
		}
	}

	data, err := json.MarshalIndent(views, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling profiles: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
