// Package misp publishes the observables of each pass as one MISP event.
package misp

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// Ensure Sink implements the interfaces.
var (
	_ driven.Sink         = (*Sink)(nil)
	_ driven.PassObserver = (*Sink)(nil)
)

// Name is the sink name.
const Name = "misp"

// Setting keys read from domain.OutputConfig.Settings.
const (
	SettingURL          = "url"
	SettingKey          = "key"
	SettingDistribution = "distribution"
	SettingThreat       = "threat"
	SettingAnalysis     = "analysis"
	SettingInfo         = "info"
	SettingPublished    = "published"
)

// MISP attribute categories.
const (
	categoryNetwork     = "Network activity"
	categoryPayload     = "Payload delivery"
	categoryArtifacts   = "Artifacts dropped"
	categoryPersistence = "Persistence mechanism"
)

// hashTypes maps CybOX hash type names to MISP attribute types.
var hashTypes = map[string]string{
	"MD5":    "md5",
	"SHA1":   "sha1",
	"SHA224": "sha224",
	"SHA256": "sha256",
	"SHA384": "sha384",
	"SHA512": "sha512",
	"SSDEEP": "ssdeep",
}

// DefaultProfile returns the fields mapped to MISP attributes.
func DefaultProfile() domain.Profile {
	return domain.Profile{
		Types: map[string]domain.TypeProfile{
			domain.ObjectAddress: {
				Fields:      []string{"address_value", "category"},
				Constraints: map[string][]string{"category": {"ipv4-addr", "ipv6-addr", "e-mail"}},
			},
			domain.ObjectDomainName:   {Fields: []string{"value"}},
			domain.ObjectEmailMessage: {Fields: []string{"header.from.address_value", "header.subject"}},
			domain.ObjectFile:         {Fields: []string{"file_name", "hashes.type", "hashes.simple_hash_value"}},
			domain.ObjectHostname:     {Fields: []string{"hostname_value"}},
			domain.ObjectMutex:        {Fields: []string{"name"}},
			domain.ObjectNetworkConnection: {Fields: []string{
				"destination_socket_address.ip_address.address_value",
			}},
			domain.ObjectURI:            {Fields: []string{"value"}},
			domain.ObjectWinRegistryKey: {Fields: []string{"hive", "key"}},
		},
		Conditions: []string{"Equals"},
	}
}

// Config holds the event settings.
type Config struct {
	URL string
	Key string
	// Distribution 0 is "your organisation only".
	Distribution int
	// ThreatLevel 4 is "undefined".
	ThreatLevel int
	// Analysis 0 is "initial".
	Analysis int
	// Info describes the event. Defaults to the package title.
	Info      string
	Published bool
}

// DefaultConfig returns the default event settings.
func DefaultConfig() Config {
	return Config{Distribution: 0, ThreatLevel: 4, Analysis: 0}
}

// Validate checks the event settings.
func (c Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: misp url is required", domain.ErrInvalidInput)
	}
	if c.Key == "" {
		return fmt.Errorf("%w: misp key is required", domain.ErrInvalidInput)
	}
	if c.Distribution < 0 || c.Distribution > 5 {
		return fmt.Errorf("%w: misp distribution %d", domain.ErrInvalidInput, c.Distribution)
	}
	if c.ThreatLevel < 1 || c.ThreatLevel > 4 {
		return fmt.Errorf("%w: misp threat level %d", domain.ErrInvalidInput, c.ThreatLevel)
	}
	if c.Analysis < 0 || c.Analysis > 2 {
		return fmt.Errorf("%w: misp analysis %d", domain.ErrInvalidInput, c.Analysis)
	}
	return nil
}

// ConfigFromSettings overlays settings on the default configuration.
func ConfigFromSettings(settings map[string]string) (Config, error) {
	cfg := DefaultConfig()
	cfg.URL = settings[SettingURL]
	cfg.Key = settings[SettingKey]
	cfg.Info = settings[SettingInfo]
	for key, target := range map[string]*int{
		SettingDistribution: &cfg.Distribution,
		SettingThreat:       &cfg.ThreatLevel,
		SettingAnalysis:     &cfg.Analysis,
	} {
		v := settings[key]
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, key, v)
		}
		*target = n
	}
	if v := settings[SettingPublished]; v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, SettingPublished, v)
		}
		cfg.Published = b
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Sink collects the attributes of a pass and creates one event at the
// end of it.
type Sink struct {
	client  *Client
	cfg     Config
	profile domain.Profile
	log     *logger.Logger

	attributes []Attribute
	seen       map[string]bool
}

// New creates a MISP sink. A zero profile selects DefaultProfile.
func New(client *Client, cfg Config, profile domain.Profile, log *logger.Logger) *Sink {
	if profile.Types == nil {
		profile = DefaultProfile()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Sink{client: client, cfg: cfg, profile: profile, log: log}
}

// Name returns the sink name.
func (s *Sink) Name() string { return Name }

// Profile returns the extraction profile.
func (s *Sink) Profile() domain.Profile { return s.profile }

// BeginPass starts a new event.
func (s *Sink) BeginPass(context.Context, *domain.PassInfo) error {
	s.attributes = nil
	s.seen = make(map[string]bool)
	return nil
}

// Deliver converts the records of d to attributes.
func (s *Sink) Deliver(_ context.Context, d *domain.Delivery) error {
	if s.seen == nil {
		s.seen = make(map[string]bool)
	}
	for _, group := range d.Groups {
		comment := ""
		if group.Observable != nil {
			comment = group.Observable.ID
		}
		for _, rec := range group.Records {
			for _, attr := range Attributes(d.ObjectType, rec) {
				key := attr.Type + "\x00" + attr.Value
				if s.seen[key] {
					continue
				}
				s.seen[key] = true
				attr.Comment = comment
				s.attributes = append(s.attributes, attr)
			}
		}
	}
	return nil
}

// EndPass creates the event. Passes without attributes create nothing.
func (s *Sink) EndPass(ctx context.Context, pass *domain.PassInfo) error {
	if len(s.attributes) == 0 {
		s.log.Debug("misp: pass %d produced no attributes", pass.Number)
		return nil
	}
	event := Event{
		Info:          s.info(pass),
		Distribution:  strconv.Itoa(s.cfg.Distribution),
		ThreatLevelID: strconv.Itoa(s.cfg.ThreatLevel),
		Analysis:      strconv.Itoa(s.cfg.Analysis),
		Published:     s.cfg.Published,
		Attributes:    s.attributes,
	}
	created, err := s.client.CreateEvent(ctx, event)
	if err != nil {
		return err
	}
	s.log.Info("misp: created event %s with %d attributes", created.ID, len(s.attributes))
	s.attributes = nil
	return nil
}

func (s *Sink) info(pass *domain.PassInfo) string {
	if s.cfg.Info != "" {
		return s.cfg.Info
	}
	for _, pkg := range pass.Packages {
		if title := pkg.Title(""); title != "" {
			return title
		}
	}
	if pass.Source != "" {
		return pass.Source
	}
	return "ctitrans import"
}

// Close does nothing.
func (s *Sink) Close() error { return nil }

// Attributes maps one record of objectType to MISP attributes.
func Attributes(objectType string, rec domain.Record) []Attribute {
	var out []Attribute
	add := func(typ, category, value string, toIDS bool) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		out = append(out, Attribute{Type: typ, Category: category, Value: value, ToIDS: toIDS})
	}

	switch objectType {
	case domain.ObjectAddress:
		if rec.Get("category") == "e-mail" {
			add("email-src", categoryPayload, rec.Get("address_value"), true)
		} else {
			add("ip-dst", categoryNetwork, rec.Get("address_value"), true)
		}
	case domain.ObjectDomainName:
		add("domain", categoryNetwork, rec.Get("value"), true)
	case domain.ObjectEmailMessage:
		add("email-src", categoryPayload, rec.Get("header.from.address_value"), true)
		add("email-subject", categoryPayload, rec.Get("header.subject"), false)
	case domain.ObjectFile:
		if typ, ok := hashTypes[strings.ToUpper(rec.Get("hashes.type"))]; ok {
			add(typ, categoryPayload, rec.Get("hashes.simple_hash_value"), true)
		}
		add("filename", categoryPayload, rec.Get("file_name"), false)
	case domain.ObjectHostname:
		add("hostname", categoryNetwork, rec.Get("hostname_value"), true)
	case domain.ObjectMutex:
		add("mutex", categoryArtifacts, rec.Get("name"), true)
	case domain.ObjectNetworkConnection:
		add("ip-dst", categoryNetwork, rec.Get("destination_socket_address.ip_address.address_value"), true)
	case domain.ObjectURI:
		add("url", categoryNetwork, rec.Get("value"), true)
	case domain.ObjectWinRegistryKey:
		key := rec.Get("key")
		if hive := rec.Get("hive"); hive != "" && key != "" {
			key = hive + `\` + key
		}
		add("regkey", categoryPersistence, key, true)
	}
	return out
}
