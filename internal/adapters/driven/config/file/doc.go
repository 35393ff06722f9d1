// Package file provides file-based implementations of driven port interfaces.
//
// ConfigStore reads and writes the TOML configuration file. Nested tables
// are addressed with dot notation, so
//
//	[profiles.bro.Address]
//	fields = ["address_value"]
//
// is read with GetStringSlice("profiles.bro.Address.fields").
package file
