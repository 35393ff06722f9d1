// Package domain defines the core business entities for ctitrans.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Package: A parsed threat-intelligence document (STIX package)
//   - Element: An indicator, observable, TTP, etc. held by a package
//   - Entity / Value: Typed property access over CybOX objects
//   - Record: A flattened set of field values extracted from an entity
//   - Profile: The fields, constraints and conditions a sink consumes
//   - RawDocument: Opaque bytes from a document source
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
