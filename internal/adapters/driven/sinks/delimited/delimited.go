// Package delimited renders rows of fields for the line-oriented sinks.
package delimited

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Missing is written for declared fields a record does not carry.
const Missing = "None"

// ParseSeparator validates a field separator. It must be a single
// character other than a quote or line break.
func ParseSeparator(s string) (rune, error) {
	if s == `\t` {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if s == "" || size != len(s) || r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("invalid field separator %q", s)
	}
	return r, nil
}

// Join renders items separated by sep, quoting items that contain the
// separator, quotes or line breaks.
func Join(sep rune, items []string) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = sep
	// Writing to a buffer cannot fail and sep is validated by ParseSeparator.
	_ = w.Write(items)
	w.Flush()
	return strings.TrimRight(buf.String(), "\r\n")
}

// Values returns the values of fields in order, Missing for absent ones.
func Values(flat map[string]string, fields []string) []string {
	out := make([]string, len(fields))
	for i, field := range fields {
		if v, ok := flat[field]; ok {
			out[i] = v
		} else {
			out[i] = Missing
		}
	}
	return out
}
