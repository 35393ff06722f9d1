// Package normalisers provides the parsers that turn raw threat-intelligence
// payloads into packages, and the Registry that selects among them.
//
// Parsers are registered with the Registry at startup.
package normalisers
