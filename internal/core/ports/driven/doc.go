// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - DocumentSource: Produces raw documents (files, TAXII poll)
//   - SourceFactory: Creates sources from configuration
//   - Parser: Converts raw payloads into packages
//   - ParserRegistry: Selects the appropriate parser
//   - Sink: Receives extracted records
//   - SinkFactory: Creates sinks from configuration
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be omitted - the application degrades gracefully:
//
//   - Metrics: Run counters. Defaults to NopMetrics.
//   - PassObserver: Pass boundary notifications for sinks that need them.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter, connector, or normaliser package
package driven
