// Package bro writes observables in the Bro (Zeek) intelligence
// framework format.
package bro

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// Ensure Sink implements the interfaces.
var (
	_ driven.Sink         = (*Sink)(nil)
	_ driven.PassObserver = (*Sink)(nil)
)

// Name is the sink name.
const Name = "bro"

// Setting keys read from domain.OutputConfig.Settings.
const (
	SettingHeader   = "header"
	SettingSource   = "source"
	SettingBaseURL  = "base_url"
	SettingNoNotice = "no_notice"
)

// Fields is the column header of the intel file.
var Fields = []string{
	"indicator",
	"indicator_type",
	"meta.source",
	"meta.url",
	"meta.do_notice",
	"meta.if_in",
	"meta.whitelist",
}

// empty marks an unset intel column.
const empty = "-"

// intelTypes maps object types to Intel framework types.
var intelTypes = map[string]string{
	domain.ObjectAddress:           "Intel::ADDR",
	domain.ObjectDomainName:        "Intel::DOMAIN",
	domain.ObjectEmailMessage:      "Intel::EMAIL",
	domain.ObjectFile:              "Intel::FILE_HASH",
	domain.ObjectHostname:          "Intel::DOMAIN",
	domain.ObjectNetworkConnection: "Intel::ADDR",
	domain.ObjectURI:               "Intel::URL",
}

// DefaultProfile returns the indicator field per object type. The first
// declared field of each type is the intel indicator. Constrained fields
// are declared too, so records missing them are dropped.
func DefaultProfile() domain.Profile {
	return domain.Profile{
		Types: map[string]domain.TypeProfile{
			domain.ObjectAddress: {
				Fields:      []string{"address_value", "category"},
				Constraints: map[string][]string{"category": {"ipv4-addr", "ipv6-addr"}},
			},
			domain.ObjectDomainName:   {Fields: []string{"value"}},
			domain.ObjectEmailMessage: {Fields: []string{"header.from.address_value"}},
			domain.ObjectFile: {
				Fields:      []string{"hashes.simple_hash_value", "hashes.type"},
				Constraints: map[string][]string{"hashes.type": {"MD5", "SHA1", "SHA256"}},
			},
			domain.ObjectHostname:          {Fields: []string{"hostname_value"}},
			domain.ObjectNetworkConnection: {Fields: []string{"destination_socket_address.ip_address.address_value"}},
			domain.ObjectURI:               {Fields: []string{"value"}},
		},
		Conditions: []string{"Equals"},
	}
}

// Config controls the intel output.
type Config struct {
	// IncludeHeader writes the #fields line before each pass.
	IncludeHeader bool
	// Source is written to meta.source. Defaults to "UNKNOWN".
	Source string
	// BaseURL prefixes the indicator ID in meta.url.
	BaseURL string
	// DoNotice sets meta.do_notice.
	DoNotice bool
}

// DefaultConfig returns the default intel configuration.
func DefaultConfig() Config {
	return Config{Source: "UNKNOWN", DoNotice: true}
}

// ConfigFromSettings overlays settings on the default configuration.
func ConfigFromSettings(settings map[string]string) (Config, error) {
	cfg := DefaultConfig()
	if v := settings[SettingHeader]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, SettingHeader, v)
		}
		cfg.IncludeHeader = b
	}
	if v := settings[SettingNoNotice]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, SettingNoNotice, v)
		}
		cfg.DoNotice = !b
	}
	if v := settings[SettingSource]; v != "" {
		cfg.Source = v
	}
	cfg.BaseURL = settings[SettingBaseURL]
	return cfg, nil
}

// Sink writes tab separated intel lines.
type Sink struct {
	w       io.Writer
	cfg     Config
	profile domain.Profile
}

// New creates an intel sink writing to w. A zero profile selects
// DefaultProfile.
func New(w io.Writer, cfg Config, profile domain.Profile) *Sink {
	if cfg.Source == "" {
		cfg.Source = "UNKNOWN"
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

// BeginPass writes the #fields header when enabled.
func (s *Sink) BeginPass(context.Context, *domain.PassInfo) error {
	if !s.cfg.IncludeHeader {
		return nil
	}
	_, err := fmt.Fprintf(s.w, "#fields\t%s\n", strings.Join(Fields, "\t"))
	return err
}

// EndPass does nothing.
func (s *Sink) EndPass(context.Context, *domain.PassInfo) error { return nil }

// Deliver writes one intel line per record with an indicator value.
func (s *Sink) Deliver(_ context.Context, d *domain.Delivery) error {
	intelType, ok := intelTypes[d.ObjectType]
	if !ok {
		return nil
	}
	tp, ok := s.profile.Type(d.ObjectType)
	if !ok || len(tp.Fields) == 0 {
		return nil
	}
	notice := "F"
	if s.cfg.DoNotice {
		notice = "T"
	}

	for _, group := range d.Groups {
		url := s.url(group)
		for _, rec := range group.Records {
			value := sanitise(rec.Get(tp.Fields[0]))
			if value == "" {
				continue
			}
			line := []string{value, intelType, sanitise(s.cfg.Source), url, notice, empty, empty}
			if _, err := fmt.Fprintln(s.w, strings.Join(line, "\t")); err != nil {
				return err
			}
		}
	}
	return nil
}

// url links the record to its indicator, or observable for
// observable-scope passes.
func (s *Sink) url(group domain.RecordGroup) string {
	if s.cfg.BaseURL == "" {
		return empty
	}
	var id string
	switch {
	case group.Indicator != nil && group.Indicator.ID != "":
		id = group.Indicator.ID
	case group.Observable != nil:
		id = group.Observable.ID
	}
	return sanitise(s.cfg.BaseURL + id)
}

// Close does nothing; the writer is owned by the caller.
func (s *Sink) Close() error { return nil }

// sanitise removes characters that would break the tab separated format.
func sanitise(v string) string {
	return strings.NewReplacer("\t", " ", "\r", "", "\n", " ").Replace(strings.TrimSpace(v))
}
