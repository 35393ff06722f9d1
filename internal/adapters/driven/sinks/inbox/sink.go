// Package inbox re-publishes the packages of each pass to a TAXII 1.1
// inbox service.
package inbox

import (
	"context"
	"fmt"
	"strconv"

	"github.com/custodia-labs/ctitrans/internal/connectors/taxii"
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
const Name = "inbox"

// Setting keys read from domain.OutputConfig.Settings. Credentials use
// the taxii source keys (username, password, token, key_file, ...).
const (
	SettingURL        = "url"
	SettingCollection = "collection"
	SettingBatchSize  = "batch_size"
)

// DefaultBatchSize bounds the packages sent per inbox message.
const DefaultBatchSize = 20

// Publisher submits payloads to an inbox collection.
type Publisher interface {
	Inbox(ctx context.Context, collection string, payloads ...[]byte) error
}

// Ensure taxii.Client satisfies Publisher.
var _ Publisher = (*taxii.Client)(nil)

// Config holds the destination of the inbox messages.
type Config struct {
	URL        string
	Collection string
	Auth       taxii.Auth
	BatchSize  int
}

// ConfigFromSettings builds the configuration from settings.
func ConfigFromSettings(settings map[string]string) (Config, error) {
	cfg := Config{
		URL:        settings[SettingURL],
		Collection: settings[SettingCollection],
		Auth:       taxii.AuthFromSettings(settings),
		BatchSize:  DefaultBatchSize,
	}
	if cfg.URL == "" {
		return Config{}, fmt.Errorf("%w: inbox url is required", domain.ErrInvalidInput)
	}
	if cfg.Collection == "" {
		return Config{}, fmt.Errorf("%w: inbox collection is required", domain.ErrInvalidInput)
	}
	if v := settings[SettingBatchSize]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("%w: %s %q", domain.ErrInvalidInput, SettingBatchSize, v)
		}
		cfg.BatchSize = n
	}
	return cfg, nil
}

// DefaultProfile extracts nothing; the sink forwards whole packages.
func DefaultProfile() domain.Profile {
	return domain.Profile{}
}

// Sink sends the raw packages of a pass once the pass has been
// transformed without error.
type Sink struct {
	publisher Publisher
	cfg       Config
	log       *logger.Logger
}

// New creates an inbox sink.
func New(publisher Publisher, cfg Config, log *logger.Logger) *Sink {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Sink{publisher: publisher, cfg: cfg, log: log}
}

// Name returns the sink name.
func (s *Sink) Name() string { return Name }

// Profile returns the extraction profile.
func (s *Sink) Profile() domain.Profile { return DefaultProfile() }

// Deliver does nothing; packages are sent at the end of the pass.
func (s *Sink) Deliver(context.Context, *domain.Delivery) error { return nil }

// BeginPass does nothing.
func (s *Sink) BeginPass(context.Context, *domain.PassInfo) error { return nil }

// EndPass submits the raw payload of every package of the pass.
func (s *Sink) EndPass(ctx context.Context, pass *domain.PassInfo) error {
	var payloads [][]byte
	for _, pkg := range pass.Packages {
		if len(pkg.Raw) == 0 {
			s.log.Warn("inbox: package %s has no raw content, skipped", pkg.ID)
			continue
		}
		payloads = append(payloads, pkg.Raw)
	}
	for start := 0; start < len(payloads); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(payloads))
		if err := s.publisher.Inbox(ctx, s.cfg.Collection, payloads[start:end]...); err != nil {
			return err
		}
	}
	if len(payloads) > 0 {
		s.log.Info("inbox: sent %d packages to collection %s", len(payloads), s.cfg.Collection)
	}
	return nil
}

// Close does nothing.
func (s *Sink) Close() error { return nil }
