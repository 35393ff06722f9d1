// Package stix provides a Parser for STIX 1.x XML packages.
// It decodes the package header, indicators, observables (CybOX objects
// dispatched on xsi:type), TTPs, kill chains and the remaining top-level
// elements into the domain model.
package stix
