// Package mcp provides an MCP (Model Context Protocol) server adapter for ctitrans.
// It lets AI assistants extract observables from STIX documents and
// inspect the sink profiles.
package mcp

import "errors"

// ErrMissingExtractService is returned when the extract service is not provided.
var ErrMissingExtractService = errors.New("mcp: extract service is required")

// ErrNoInput is returned when a tool call names neither a path nor content.
var ErrNoInput = errors.New("mcp: path or content is required")
