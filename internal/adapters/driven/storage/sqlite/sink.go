package sqlite

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks/text"
	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
)

// Ensure Sink implements the interfaces.
var (
	_ driven.Sink         = (*Sink)(nil)
	_ driven.PassObserver = (*Sink)(nil)
)

// SinkName is the sink name.
const SinkName = "sqlite"

// SettingPath is the database path setting.
const SettingPath = "path"

// DefaultProfile returns the stored fields, the text sink's columns.
func DefaultProfile() domain.Profile {
	return text.DefaultProfile()
}

// Sink writes every delivery of a run to a RecordStore.
type Sink struct {
	store   driven.RecordStore
	closer  func() error
	profile domain.Profile
	runID   string
	started bool
}

// SinkOption configures a Sink.
type SinkOption func(*Sink)

// WithRunID sets the run identifier. Defaults to a random UUID.
func WithRunID(id string) SinkOption {
	return func(s *Sink) { s.runID = id }
}

// WithOwnedStore closes the store when the sink is closed.
func WithOwnedStore(closer func() error) SinkOption {
	return func(s *Sink) { s.closer = closer }
}

// NewSink creates a sink writing to store. A zero profile selects
// DefaultProfile.
func NewSink(store driven.RecordStore, profile domain.Profile, opts ...SinkOption) *Sink {
	if profile.Types == nil {
		profile = DefaultProfile()
	}
	s := &Sink{store: store, profile: profile, runID: uuid.New().String()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the sink name.
func (s *Sink) Name() string { return SinkName }

// Profile returns the extraction profile.
func (s *Sink) Profile() domain.Profile { return s.profile }

// RunID returns the identifier records are stored under.
func (s *Sink) RunID() string { return s.runID }

// BeginPass stores the run on the first pass and the pass itself.
func (s *Sink) BeginPass(ctx context.Context, pass *domain.PassInfo) error {
	if !s.started {
		run := domain.StoredRun{ID: s.runID, Source: pass.Source, StartedAt: time.Now()}
		if err := s.store.SaveRun(ctx, run); err != nil {
			return err
		}
		s.started = true
	}
	return s.store.SavePass(ctx, s.runID, pass)
}

// EndPass does nothing.
func (s *Sink) EndPass(context.Context, *domain.PassInfo) error { return nil }

// Deliver stores the record groups of d.
func (s *Sink) Deliver(ctx context.Context, d *domain.Delivery) error {
	if d.Len() == 0 {
		return nil
	}
	pass := 0
	if d.Pass != nil {
		pass = d.Pass.Number
	}
	return s.store.SaveGroups(ctx, s.runID, pass, d.Groups)
}

// Close closes an owned store.
func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	closer := s.closer
	s.closer = nil
	return closer()
}
