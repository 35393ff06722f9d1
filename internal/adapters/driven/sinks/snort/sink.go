// Package snort writes Snort rules alerting on traffic to IPv4
// addresses taken from observables.
package snort

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// Ensure Sink implements driven.Sink.
var _ driven.Sink = (*Sink)(nil)

// Name is the sink name.
const Name = "snort"

// Setting keys read from domain.OutputConfig.Settings.
const (
	SettingInitialSID = "initial_sid"
	SettingRevision   = "rule_revision"
	SettingAction     = "rule_action"
)

// DefaultInitialSID is the first rule ID handed out.
const DefaultInitialSID = 5500000

// Actions lists the accepted rule actions.
var Actions = []string{"alert", "log", "pass", "activate", "dynamic", "drop", "reject", "sdrop"}

const ruleFormat = `%s ip $HOME_NET any -> %s any (flow:established,to_server; ` +
	`msg:"ctitrans connection to potentially malicious server %s (ID %s)"; ` +
	`sid:%d; rev:%d; classtype:bad-unknown;)`

// DefaultProfile returns the IPv4 address profile. The category is
// declared so that addresses without one are dropped by the filter.
func DefaultProfile() domain.Profile {
	return domain.Profile{
		Types: map[string]domain.TypeProfile{
			domain.ObjectAddress: {
				Fields:      []string{"address_value", "category"},
				Constraints: map[string][]string{"category": {"ipv4-addr"}},
			},
		},
		Conditions: []string{"Equals"},
	}
}

// Config controls rule generation.
type Config struct {
	InitialSID int
	Revision   int
	Action     string
}

// DefaultConfig returns the default rule configuration.
func DefaultConfig() Config {
	return Config{InitialSID: DefaultInitialSID, Revision: 1, Action: "alert"}
}

// Validate checks the rule settings.
func (c Config) Validate() error {
	if c.InitialSID <= 0 {
		return fmt.Errorf("%w: initial SID must be positive", domain.ErrInvalidInput)
	}
	if c.Revision <= 0 {
		return fmt.Errorf("%w: rule revision must be positive", domain.ErrInvalidInput)
	}
	if !slices.Contains(Actions, c.Action) {
		return fmt.Errorf("%w: rule action %q (want one of %s)", domain.ErrInvalidInput, c.Action, strings.Join(Actions, ", "))
	}
	return nil
}

// ConfigFromSettings overlays settings on the default configuration.
func ConfigFromSettings(settings map[string]string) (Config, error) {
	cfg := DefaultConfig()
	for key, target := range map[string]*int{SettingInitialSID: &cfg.InitialSID, SettingRevision: &cfg.Revision} {
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
	if v := settings[SettingAction]; v != "" {
		cfg.Action = strings.ToLower(v)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Sink writes one rule per address record. Rule IDs increase across
// the whole run.
type Sink struct {
	w       io.Writer
	cfg     Config
	profile domain.Profile
	nextSID int
}

// New creates a rule sink writing to w. A zero profile selects
// DefaultProfile.
func New(w io.Writer, cfg Config, profile domain.Profile) *Sink {
	if profile.Types == nil {
		profile = DefaultProfile()
	}
	return &Sink{w: w, cfg: cfg, profile: profile, nextSID: cfg.InitialSID}
}

// Name returns the sink name.
func (s *Sink) Name() string { return Name }

// Profile returns the extraction profile.
func (s *Sink) Profile() domain.Profile { return s.profile }

// Deliver writes the rules for the address records of d.
func (s *Sink) Deliver(_ context.Context, d *domain.Delivery) error {
	if d.ObjectType != domain.ObjectAddress {
		return nil
	}
	tp, ok := s.profile.Type(d.ObjectType)
	if !ok || len(tp.Fields) == 0 {
		return nil
	}
	for _, group := range d.Groups {
		id := "unknown"
		if group.Observable != nil && group.Observable.ID != "" {
			id = group.Observable.ID
		}
		for _, rec := range group.Records {
			addr := strings.TrimSpace(rec.Get(tp.Fields[0]))
			if addr == "" {
				continue
			}
			rule := fmt.Sprintf(ruleFormat, s.cfg.Action, addr, addr, id, s.nextSID, s.cfg.Revision)
			if _, err := fmt.Fprintln(s.w, rule); err != nil {
				return err
			}
			s.nextSID++
		}
	}
	return nil
}

// Close does nothing; the writer is owned by the caller.
func (s *Sink) Close() error { return nil }
