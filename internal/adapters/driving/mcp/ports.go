package mcp

import (
	"github.com/custodia-labs/ctitrans/internal/core/ports/driving"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Extract runs documents through the extraction pipeline.
	Extract driving.ExtractService

	// Profiles resolves sink profiles.
	Profiles driving.ProfileService

	// Log receives file source messages. Optional.
	Log *logger.Logger
}

// Validate ensures all required ports are set.
// Returns an error if any required port is nil.
func (p *Ports) Validate() error {
	if p.Extract == nil {
		return ErrMissingExtractService
	}
	// Profiles is optional; the resource lists nothing without it
	return nil
}
