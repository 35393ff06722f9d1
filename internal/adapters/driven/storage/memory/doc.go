// Package memory provides in-memory implementations of the driven
// stores. The HTTP server keeps records here when no database is
// configured; tests use the config store to inject settings.
package memory
