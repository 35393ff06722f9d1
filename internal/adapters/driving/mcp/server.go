package mcp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/ctitrans/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// Version is the MCP server version.
const Version = "0.1.0"

// Server exposes observable extraction over MCP.
type Server struct {
	ports  *Ports
	server *mcp.Server
	log    *logger.Logger
}

// NewServer creates an MCP server with the extract tool and the profile
// resource registered.
func NewServer(ports *Ports) (*Server, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("validating ports: %w", err)
	}

	log := ports.Log
	if log == nil {
		log = logger.Discard()
	}

	s := &Server{
		ports: ports,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "ctitrans",
			Version: Version,
		}, nil),
		log: log,
	}
	s.registerTools()
	s.registerResources()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.Debug("MCP server on stdio")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP transport of the server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

// RunHTTP serves the streamable HTTP transport on addr until ctx is
// cancelled.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	s.log.Debug("MCP server on http://%s", addr)
	return httpapi.Serve(ctx, addr, s.Handler())
}
