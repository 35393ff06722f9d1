// Package redis maintains per-type watchlist sets in Redis for
// blocking and detection tools to query.
package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/bro"
	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// Ensure Sink implements driven.Sink.
var _ driven.Sink = (*Sink)(nil)

// Name is the sink name.
const Name = "redis"

// Setting keys read from domain.OutputConfig.Settings.
const (
	SettingURL       = "url"
	SettingKeyPrefix = "key_prefix"
	SettingTTL       = "ttl"
)

// DefaultKeyPrefix starts every watchlist key.
const DefaultKeyPrefix = "ctitrans:watchlist"

// SetWriter adds members to sets.
type SetWriter interface {
	AddToSet(ctx context.Context, key string, ttl time.Duration, members ...string) error
	Close() error
}

// Ensure Client satisfies SetWriter.
var _ SetWriter = (*Client)(nil)

// DefaultProfile returns one watchlist value per object type, the
// intel indicators.
func DefaultProfile() domain.Profile {
	return bro.DefaultProfile()
}

// Config holds the watchlist settings.
type Config struct {
	URL       string
	KeyPrefix string
	// TTL expires a watchlist when it is not refreshed. Zero keeps it.
	TTL time.Duration
}

// ConfigFromSettings builds the configuration from settings.
func ConfigFromSettings(settings map[string]string) (Config, error) {
	cfg := Config{URL: settings[SettingURL], KeyPrefix: settings[SettingKeyPrefix]}
	if cfg.URL == "" {
		return Config{}, fmt.Errorf("%w: redis url is required", domain.ErrInvalidInput)
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if v := settings[SettingTTL]; v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil || ttl < 0 {
			return Config{}, fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, SettingTTL, v)
		}
		cfg.TTL = ttl
	}
	return cfg, nil
}

// Sink adds the first declared field of every record to the set
// "<prefix>:<ObjectType>".
type Sink struct {
	writer  SetWriter
	cfg     Config
	profile domain.Profile
}

// New creates a watchlist sink. A zero profile selects DefaultProfile.
func New(writer SetWriter, cfg Config, profile domain.Profile) *Sink {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if profile.Types == nil {
		profile = DefaultProfile()
	}
	return &Sink{writer: writer, cfg: cfg, profile: profile}
}

// Name returns the sink name.
func (s *Sink) Name() string { return Name }

// Profile returns the extraction profile.
func (s *Sink) Profile() domain.Profile { return s.profile }

// Key returns the watchlist key of objectType.
func (s *Sink) Key(objectType string) string {
	return s.cfg.KeyPrefix + ":" + objectType
}

// Deliver adds the values of d to its watchlist.
func (s *Sink) Deliver(ctx context.Context, d *domain.Delivery) error {
	tp, ok := s.profile.Type(d.ObjectType)
	if !ok || len(tp.Fields) == 0 {
		return nil
	}
	unique := make(map[string]bool)
	for _, rec := range d.Records() {
		if v := strings.TrimSpace(rec.Get(tp.Fields[0])); v != "" {
			unique[v] = true
		}
	}
	if len(unique) == 0 {
		return nil
	}
	members := make([]string, 0, len(unique))
	for v := range unique {
		members = append(members, v)
	}
	sort.Strings(members)
	return s.writer.AddToSet(ctx, s.Key(d.ObjectType), s.cfg.TTL, members...)
}

// Close closes the connection.
func (s *Sink) Close() error {
	return s.writer.Close()
}
