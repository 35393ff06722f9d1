// Package text writes extracted records as delimited text, one line per
// record, grouped by object type.
package text

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/delimited"
	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// Ensure Sink implements the interfaces.
var (
	_ driven.Sink         = (*Sink)(nil)
	_ driven.PassObserver = (*Sink)(nil)
)

// Name is the sink name.
const Name = "text"

// Setting keys read from domain.OutputConfig.Settings.
const (
	SettingSeparator    = "separator"
	SettingHeader       = "header"
	SettingHeaderPrefix = "header_prefix"
)

// DefaultProfile returns the fields written per object type.
func DefaultProfile() domain.Profile {
	return domain.Profile{
		Types: map[string]domain.TypeProfile{
			domain.ObjectAddress:      {Fields: []string{"category", "address_value"}},
			domain.ObjectDomainName:   {Fields: []string{"value"}},
			domain.ObjectEmailMessage: {Fields: []string{"header.from.address_value", "header.subject"}},
			domain.ObjectFile:         {Fields: []string{"file_name", "hashes.type", "hashes.simple_hash_value"}},
			domain.ObjectHostname:     {Fields: []string{"hostname_value"}},
			domain.ObjectMutex:        {Fields: []string{"name"}},
			domain.ObjectNetworkConnection: {Fields: []string{
				"destination_socket_address.ip_address.address_value",
				"destination_socket_address.port",
				"destination_socket_address.protocol",
			}},
			domain.ObjectURI:            {Fields: []string{"value"}},
			domain.ObjectWinRegistryKey: {Fields: []string{"hive", "key", "values.name", "values.data"}},
		},
	}
}

// Config controls the text output.
type Config struct {
	// Separator delimits fields. Defaults to '|'.
	Separator rune
	// IncludeHeader writes the source description and per-type column headers.
	IncludeHeader bool
	// HeaderPrefix starts every header line. Defaults to "#".
	HeaderPrefix string
}

// DefaultConfig returns the default text configuration.
func DefaultConfig() Config {
	return Config{Separator: '|', IncludeHeader: true, HeaderPrefix: "#"}
}

// ConfigFromSettings overlays settings on the default configuration.
func ConfigFromSettings(settings map[string]string) (Config, error) {
	cfg := DefaultConfig()
	if v, ok := settings[SettingSeparator]; ok && v != "" {
		sep, err := delimited.ParseSeparator(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		cfg.Separator = sep
	}
	if v, ok := settings[SettingHeader]; ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, SettingHeader, v)
		}
		cfg.IncludeHeader = b
	}
	if v, ok := settings[SettingHeaderPrefix]; ok {
		cfg.HeaderPrefix = v
	}
	return cfg, nil
}

// Sink writes delimited text.
type Sink struct {
	w       io.Writer
	cfg     Config
	profile domain.Profile
}

// New creates a text sink writing to w. A zero profile selects
// DefaultProfile.
func New(w io.Writer, cfg Config, profile domain.Profile) *Sink {
	if cfg.Separator == 0 {
		cfg.Separator = '|'
	}
	if profile.Types == nil {
		profile = DefaultProfile()
	}
	return &Sink{w: w, cfg: cfg, profile: profile}
}

// Name returns the sink name.
func (s *Sink) Name() string { return Name }

// Profile returns the extraction profile.
func (s *Sink) Profile() domain.Profile { return s.profile }

// BeginPass writes the source header.
func (s *Sink) BeginPass(_ context.Context, pass *domain.PassInfo) error {
	if !s.cfg.IncludeHeader || pass.Source == "" {
		return nil
	}
	_, err := fmt.Fprintf(s.w, "%s %s\n", s.cfg.HeaderPrefix, pass.Source)
	return err
}

// EndPass does nothing.
func (s *Sink) EndPass(context.Context, *domain.PassInfo) error { return nil }

// Deliver writes a column header for the object type followed by one
// line per record: the observable ID, then the declared fields.
func (s *Sink) Deliver(_ context.Context, d *domain.Delivery) error {
	tp, ok := s.profile.Type(d.ObjectType)
	if !ok || d.Len() == 0 {
		return nil
	}
	if s.cfg.IncludeHeader {
		labels := append([]string{"id"}, tp.Fields...)
		if _, err := fmt.Fprintf(s.w, "%s %s\n", s.cfg.HeaderPrefix, delimited.Join(s.cfg.Separator, labels)); err != nil {
			return err
		}
	}
	for _, group := range d.Groups {
		id := delimited.Missing
		if group.Observable != nil && group.Observable.ID != "" {
			id = group.Observable.ID
		}
		for _, rec := range group.Records {
			row := append([]string{id}, delimited.Values(rec.Flatten(), tp.Fields)...)
			if _, err := fmt.Fprintln(s.w, delimited.Join(s.cfg.Separator, row)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close does nothing; the writer is owned by the caller.
func (s *Sink) Close() error { return nil }
