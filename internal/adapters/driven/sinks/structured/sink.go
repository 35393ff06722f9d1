// Package structured writes each delivery as a JSON line or a YAML
// document.
package structured

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/text"
	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// Ensure Sink implements driven.Sink.
var _ driven.Sink = (*Sink)(nil)

// Name is the sink name.
const Name = "structured"

// SettingFormat selects the output format.
const SettingFormat = "format"

// Format is an output encoding.
type Format string

// Supported formats.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a format name. Empty selects JSON.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: format %q (want json or yaml)", domain.ErrInvalidInput, s)
}

// DefaultProfile returns the written fields, the text sink's columns.
func DefaultProfile() domain.Profile {
	return text.DefaultProfile()
}

// Document is the encoded form of a delivery.
type Document struct {
	Pass       int               `json:"pass" yaml:"pass"`
	ObjectType string            `json:"object_type" yaml:"object_type"`
	Source     string            `json:"source,omitempty" yaml:"source,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	Records    []Entry           `json:"records" yaml:"records"`
}

// Entry is one record with its provenance.
type Entry struct {
	ObservableID string            `json:"observable_id,omitempty" yaml:"observable_id,omitempty"`
	IndicatorID  string            `json:"indicator_id,omitempty" yaml:"indicator_id,omitempty"`
	Fields       map[string]string `json:"fields" yaml:"fields"`
}

// NewDocument converts a delivery.
func NewDocument(d *domain.Delivery) Document {
	doc := Document{ObjectType: d.ObjectType, Metadata: d.Metadata, Records: make([]Entry, 0, d.Len())}
	if d.Pass != nil {
		doc.Pass = d.Pass.Number
		doc.Source = d.Pass.Source
	}
	for _, group := range d.Groups {
		var entry Entry
		if group.Observable != nil {
			entry.ObservableID = group.Observable.ID
		}
		if group.Indicator != nil {
			entry.IndicatorID = group.Indicator.ID
		}
		for _, rec := range group.Records {
			entry.Fields = rec.Flatten()
			doc.Records = append(doc.Records, entry)
		}
	}
	return doc
}

// Sink encodes deliveries to a writer.
type Sink struct {
	profile domain.Profile
	encode  func(v any) error
	closer  func() error
}

// New creates a structured sink writing format to w. A zero profile
// selects DefaultProfile.
func New(w io.Writer, format Format, profile domain.Profile) *Sink {
	if profile.Types == nil {
		profile = DefaultProfile()
	}
	s := &Sink{profile: profile}
	if format == FormatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		s.encode = enc.Encode
		s.closer = enc.Close
	} else {
		s.encode = json.NewEncoder(w).Encode
	}
	return s
}

// Name returns the sink name.
func (s *Sink) Name() string { return Name }

// Profile returns the extraction profile.
func (s *Sink) Profile() domain.Profile { return s.profile }

// Deliver writes one document for d.
func (s *Sink) Deliver(_ context.Context, d *domain.Delivery) error {
	if d.Len() == 0 {
		return nil
	}
	return s.encode(NewDocument(d))
}

// Close flushes the encoder. The writer is owned by the caller.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	closer := s.closer
	s.closer = nil
	return closer()
}
