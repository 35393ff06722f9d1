// Package connectors provides the document sources of a transform run.
// Each source knows how to fetch STIX documents from one origin
// (local files, a TAXII collection).
//
// Sources are registered with the Factory at startup.
package connectors
