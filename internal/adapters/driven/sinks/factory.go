package sinks

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/bro"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/elasticsearch"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/inbox"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/kafka"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/misp"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/redis"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/snort"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/stats"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/structured"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/text"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/ctitrans/internal/connectors/taxii"
	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driving"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// Ensure Factory implements the interface.
var _ driven.SinkFactory = (*Factory)(nil)

// SinkBuilder creates a Sink from configuration and its resolved profile.
type SinkBuilder func(ctx context.Context, cfg domain.OutputConfig, profile domain.Profile) (driven.Sink, error)

// DefaultProfiles returns the built-in profile of every sink type.
func DefaultProfiles() map[string]domain.Profile {
	return map[string]domain.Profile{
		text.Name:          text.DefaultProfile(),
		stats.Name:         stats.DefaultProfile(),
		bro.Name:           bro.DefaultProfile(),
		snort.Name:         snort.DefaultProfile(),
		misp.Name:          misp.DefaultProfile(),
		elasticsearch.Name: elasticsearch.DefaultProfile(),
		inbox.Name:         inbox.DefaultProfile(),
		sqlite.SinkName:    sqlite.DefaultProfile(),
		redis.Name:         redis.DefaultProfile(),
		kafka.Name:         kafka.DefaultProfile(),
		structured.Name:    structured.DefaultProfile(),
	}
}

// Factory creates sinks from a registry of builders.
type Factory struct {
	mu       sync.RWMutex
	builders map[string]SinkBuilder

	out      io.Writer
	terminal bool
	profiles driving.ProfileService
	records  driven.RecordStore
	log      *logger.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithTerminal reports whether the output writer is a terminal.
// Statistics are rendered as tables on terminals unless configured.
func WithTerminal(terminal bool) Option {
	return func(f *Factory) { f.terminal = terminal }
}

// WithProfiles resolves profiles through ps instead of the defaults.
func WithProfiles(ps driving.ProfileService) Option {
	return func(f *Factory) { f.profiles = ps }
}

// WithRecordStore makes sqlite outputs without a path write to store.
func WithRecordStore(store driven.RecordStore) Option {
	return func(f *Factory) { f.records = store }
}

// WithLogger sets the logger handed to remote sinks.
func WithLogger(log *logger.Logger) Option {
	return func(f *Factory) {
		if log != nil {
			f.log = log
		}
	}
}

// NewFactory creates a factory with every built-in sink. Stream sinks
// write to out.
func NewFactory(out io.Writer, opts ...Option) *Factory {
	f := &Factory{
		builders: make(map[string]SinkBuilder),
		out:      out,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(f)
	}

	f.Register(text.Name, f.buildText)
	f.Register(stats.Name, f.buildStats)
	f.Register(bro.Name, f.buildBro)
	f.Register(snort.Name, f.buildSnort)
	f.Register(structured.Name, f.buildStructured)
	f.Register(misp.Name, f.buildMISP)
	f.Register(elasticsearch.Name, f.buildElasticsearch)
	f.Register(inbox.Name, f.buildInbox)
	f.Register(sqlite.SinkName, f.buildSQLite)
	f.Register(redis.Name, f.buildRedis)
	f.Register(kafka.Name, f.buildKafka)
	return f
}

// Register adds a builder for the given sink type.
func (f *Factory) Register(sinkType string, builder SinkBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[sinkType] = builder
}

// Create returns a Sink for cfg.
func (f *Factory) Create(ctx context.Context, cfg domain.OutputConfig) (driven.Sink, error) {
	f.mu.RLock()
	builder, ok := f.builders[cfg.Type]
	f.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: sink %q", domain.ErrUnsupportedType, cfg.Type)
	}
	profile, err := f.profile(cfg.Type)
	if err != nil {
		return nil, err
	}
	return builder(ctx, cfg, profile)
}

// SupportedTypes returns the registered sink types, sorted.
func (f *Factory) SupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]string, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (f *Factory) profile(sinkType string) (domain.Profile, error) {
	if f.profiles != nil {
		return f.profiles.Profile(sinkType)
	}
	return DefaultProfiles()[sinkType], nil
}

func (f *Factory) buildText(_ context.Context, cfg domain.OutputConfig, profile domain.Profile) (driven.Sink, error) {
	tcfg, err := text.ConfigFromSettings(cfg.Settings)
	if err != nil {
		return nil, err
	}
	return text.New(f.out, tcfg, profile), nil
}

func (f *Factory) buildStats(_ context.Context, cfg domain.OutputConfig, profile domain.Profile) (driven.Sink, error) {
	settings := cfg.Settings
	if settings[stats.SettingPretty] == "" {
		settings = withSetting(settings, stats.SettingPretty, strconv.FormatBool(f.terminal))
	}
	scfg, err := stats.ConfigFromSettings(settings)
	if err != nil {
		return nil, err
	}
	return stats.New(f.out, scfg, profile), nil
}

func (f *Factory) buildBro(_ context.Context, cfg domain.OutputConfig, profile domain.Profile) (driven.Sink, error) {
	bcfg, err := bro.ConfigFromSettings(cfg.Settings)
	if err != nil {
		return nil, err
	}
	return bro.New(f.out, bcfg, profile), nil
}

func (f *Factory) buildSnort(_ context.Context, cfg domain.OutputConfig, profile domain.Profile) (driven.Sink, error) {
	scfg, err := snort.ConfigFromSettings(cfg.Settings)
	if err != nil {
		return nil, err
	}
	return snort.New(f.out, scfg, profile), nil
}

func (f *Factory) buildStructured(_ context.Context, cfg domain.OutputConfig, profile domain.Profile) (driven.Sink, error) {
	format, err := structured.ParseFormat(cfg.Settings[structured.SettingFormat])
	if err != nil {
		return nil, err
	}
	return structured.New(f.out, format, profile), nil
}

func (f *Factory) buildMISP(_ context.Context, cfg domain.OutputConfig, profile domain.Profile) (driven.Sink, error) {
	mcfg, err := misp.ConfigFromSettings(cfg.Settings)
	if err != nil {
		return nil, err
	}
	client, err := misp.NewClient(mcfg.URL, mcfg.Key, nil)
	if err != nil {
		return nil, err
	}
	return misp.New(client, mcfg, profile, f.log), nil
}

func (f *Factory) buildElasticsearch(_ context.Context, cfg domain.OutputConfig, profile domain.Profile) (driven.Sink, error) {
	ecfg, err := elasticsearch.ConfigFromSettings(cfg.Settings)
	if err != nil {
		return nil, err
	}
	client, err := elasticsearch.NewClient(ecfg.URL, ecfg.Auth, nil)
	if err != nil {
		return nil, err
	}
	return elasticsearch.New(client, ecfg, profile, f.log), nil
}

func (f *Factory) buildInbox(_ context.Context, cfg domain.OutputConfig, _ domain.Profile) (driven.Sink, error) {
	icfg, err := inbox.ConfigFromSettings(cfg.Settings)
	if err != nil {
		return nil, err
	}
	client, err := taxii.NewClient(icfg.URL, icfg.Auth, taxii.WithClientLogger(f.log))
	if err != nil {
		return nil, err
	}
	return inbox.New(client, icfg, f.log), nil
}

func (f *Factory) buildSQLite(_ context.Context, cfg domain.OutputConfig, profile domain.Profile) (driven.Sink, error) {
	path := cfg.Settings[sqlite.SettingPath]
	if path == "" && f.records != nil {
		return sqlite.NewSink(f.records, profile), nil
	}
	store, err := sqlite.NewStore(path)
	if err != nil {
		return nil, err
	}
	f.log.Info("storing records in %s", store.Path())
	return sqlite.NewSink(store, profile, sqlite.WithOwnedStore(store.Close)), nil
}

func (f *Factory) buildRedis(ctx context.Context, cfg domain.OutputConfig, profile domain.Profile) (driven.Sink, error) {
	rcfg, err := redis.ConfigFromSettings(cfg.Settings)
	if err != nil {
		return nil, err
	}
	client, err := redis.NewClient(ctx, rcfg.URL)
	if err != nil {
		return nil, err
	}
	return redis.New(client, rcfg, profile), nil
}

func (f *Factory) buildKafka(_ context.Context, cfg domain.OutputConfig, profile domain.Profile) (driven.Sink, error) {
	kcfg, err := kafka.ConfigFromSettings(cfg.Settings)
	if err != nil {
		return nil, err
	}
	producer, err := kafka.NewProducer(kcfg)
	if err != nil {
		return nil, err
	}
	return kafka.New(producer, kcfg.Topic, profile), nil
}

// withSetting returns a copy of settings with key set to value.
func withSetting(settings map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(settings)+1)
	for k, v := range settings {
		out[k] = v
	}
	out[key] = value
	return out
}
