// Package elasticsearch indexes extracted observables through the bulk
// API, one document per record group with its indicator context.
package elasticsearch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/text"
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
const Name = "elasticsearch"

// Setting keys read from domain.OutputConfig.Settings.
const (
	SettingURL       = "url"
	SettingIndex     = "index"
	SettingUsername  = "username"
	SettingPassword  = "password"
	SettingToken     = "token"
	SettingBatchSize = "batch_size"
)

// DefaultIndex is the index documents are written to.
const DefaultIndex = "ctitrans"

// DefaultBatchSize bounds the documents sent per bulk request.
const DefaultBatchSize = 500

// DefaultProfile returns the indexed fields, the text sink's columns.
func DefaultProfile() domain.Profile {
	return text.DefaultProfile()
}

// Config holds the indexing settings.
type Config struct {
	URL       string
	Index     string
	Auth      Auth
	BatchSize int
}

// ConfigFromSettings builds the configuration from settings.
func ConfigFromSettings(settings map[string]string) (Config, error) {
	cfg := Config{
		URL:       settings[SettingURL],
		Index:     settings[SettingIndex],
		BatchSize: DefaultBatchSize,
		Auth: Auth{
			Username: settings[SettingUsername],
			Password: settings[SettingPassword],
			Token:    settings[SettingToken],
		},
	}
	if cfg.URL == "" {
		return Config{}, fmt.Errorf("%w: elasticsearch url is required", domain.ErrInvalidInput)
	}
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
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

// Document is the indexed form of one record group.
type Document struct {
	ObjectType   string              `json:"object_type"`
	ObservableID string              `json:"observable_id,omitempty"`
	Indicator    *IndicatorContext   `json:"indicator,omitempty"`
	Records      []map[string]string `json:"records"`
	Source       string              `json:"source,omitempty"`
	Metadata     map[string]string   `json:"metadata,omitempty"`
	IndexedAt    time.Time           `json:"indexed_at"`
}

// IndicatorContext carries the indicator an observable was reached from.
type IndicatorContext struct {
	ID            string    `json:"id,omitempty"`
	Title         string    `json:"title,omitempty"`
	Description   string    `json:"description,omitempty"`
	Types         []string  `json:"types,omitempty"`
	Confidence    string    `json:"confidence,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
	IndicatedTTPs []string  `json:"indicated_ttps,omitempty"`
}

// Sink buffers the documents of a pass and indexes them at its end.
type Sink struct {
	client  *Client
	cfg     Config
	profile domain.Profile
	log     *logger.Logger
	now     func() time.Time

	pending []BulkItem
}

// New creates an indexing sink. A zero profile selects DefaultProfile.
func New(client *Client, cfg Config, profile domain.Profile, log *logger.Logger) *Sink {
	if profile.Types == nil {
		profile = DefaultProfile()
	}
	if cfg.Index == "" {
		cfg.Index = DefaultIndex
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Sink{client: client, cfg: cfg, profile: profile, log: log, now: time.Now}
}

// Name returns the sink name.
func (s *Sink) Name() string { return Name }

// Profile returns the extraction profile.
func (s *Sink) Profile() domain.Profile { return s.profile }

// BeginPass drops anything left from an aborted pass.
func (s *Sink) BeginPass(context.Context, *domain.PassInfo) error {
	s.pending = nil
	return nil
}

// Deliver buffers one document per record group.
func (s *Sink) Deliver(_ context.Context, d *domain.Delivery) error {
	source := ""
	if d.Pass != nil {
		source = d.Pass.Source
	}
	for _, group := range d.Groups {
		if len(group.Records) == 0 {
			continue
		}
		s.pending = append(s.pending, BulkItem{
			Index: s.cfg.Index,
			ID:    documentID(group),
			Doc:   s.document(group, source),
		})
	}
	return nil
}

// EndPass sends the buffered documents in batches.
func (s *Sink) EndPass(ctx context.Context, pass *domain.PassInfo) error {
	defer func() { s.pending = nil }()
	for start := 0; start < len(s.pending); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(s.pending))
		if err := s.client.Bulk(ctx, s.pending[start:end]); err != nil {
			return err
		}
	}
	if len(s.pending) > 0 {
		s.log.Info("elasticsearch: indexed %d documents for pass %d", len(s.pending), pass.Number)
	}
	return nil
}

// Close does nothing.
func (s *Sink) Close() error { return nil }

func (s *Sink) document(group domain.RecordGroup, source string) Document {
	doc := Document{
		ObjectType: group.ObjectType,
		Source:     source,
		Metadata:   group.Metadata,
		IndexedAt:  s.now().UTC(),
		Records:    make([]map[string]string, 0, len(group.Records)),
	}
	if group.Observable != nil {
		doc.ObservableID = group.Observable.ID
	}
	for _, rec := range group.Records {
		doc.Records = append(doc.Records, rec.Flatten())
	}
	if ind := group.Indicator; ind != nil {
		ctx := &IndicatorContext{
			ID:          ind.ID,
			Title:       ind.Title,
			Description: ind.Description,
			Types:       ind.Types,
			Confidence:  ind.Confidence,
			Timestamp:   ind.Timestamp,
		}
		for _, rel := range ind.IndicatedTTPs {
			if rel == nil || rel.TTP == nil {
				continue
			}
			if rel.TTP.Title != "" {
				ctx.IndicatedTTPs = append(ctx.IndicatedTTPs, rel.TTP.Title)
			} else if id := rel.TTP.ID + rel.TTP.Ref; id != "" {
				ctx.IndicatedTTPs = append(ctx.IndicatedTTPs, id)
			}
		}
		doc.Indicator = ctx
	}
	return doc
}

// documentID makes re-indexing the same observable idempotent.
func documentID(group domain.RecordGroup) string {
	var obs string
	if group.Observable != nil {
		obs = group.Observable.ID
	}
	if obs == "" {
		return ""
	}
	if group.Indicator != nil && group.Indicator.ID != "" {
		return group.Indicator.ID + "/" + obs
	}
	return obs
}
