package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driving"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// Ensure TransformService implements the interface.
var _ driving.TransformService = (*TransformService)(nil)

const tracerName = "github.com/custodia-labs/ctitrans/internal/core/services"

// TransformService runs documents from a source through the index,
// resolver, extractor and filter and delivers the records to sinks.
type TransformService struct {
	parsers  driven.ParserRegistry
	sources  driven.SourceFactory
	sinks    driven.SinkFactory
	log      *logger.Logger
	metrics  driven.Metrics
	policy   domain.ConflictPolicy
	filter   *ConstraintFilter
	tracer   trace.Tracer
	now      func() time.Time
	newRunID func() string

	// Status tracking
	mu     sync.RWMutex
	status driving.TransformStatus
}

// TransformOption configures a TransformService.
type TransformOption func(*TransformService)

// WithLogger sets the logger handed to every pass.
func WithLogger(l *logger.Logger) TransformOption {
	return func(s *TransformService) { s.log = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m driven.Metrics) TransformOption {
	return func(s *TransformService) { s.metrics = m }
}

// WithConflictPolicy sets how identifier collisions are handled.
func WithConflictPolicy(p domain.ConflictPolicy) TransformOption {
	return func(s *TransformService) { s.policy = p }
}

// WithSourceFactory sets the factory used by Transform.
func WithSourceFactory(f driven.SourceFactory) TransformOption {
	return func(s *TransformService) { s.sources = f }
}

// WithSinkFactory sets the factory used by Transform.
func WithSinkFactory(f driven.SinkFactory) TransformOption {
	return func(s *TransformService) { s.sinks = f }
}

// NewTransformService creates a transform service.
func NewTransformService(parsers driven.ParserRegistry, opts ...TransformOption) *TransformService {
	s := &TransformService{
		parsers:  parsers,
		log:      logger.Default(),
		metrics:  driven.NopMetrics{},
		policy:   domain.ConflictReject,
		filter:   NewConstraintFilter(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transform creates the source and sinks of req and runs them.
// Sinks are closed before Transform returns.
func (s *TransformService) Transform(ctx context.Context, req domain.TransformRequest) (report *domain.RunReport, err error) {
	if s.sources == nil {
		return nil, fmt.Errorf("create source: source factory not configured")
	}
	if s.sinks == nil {
		return nil, fmt.Errorf("create sinks: sink factory not configured")
	}
	if len(req.Outputs) == 0 {
		return nil, fmt.Errorf("%w: no output selected", domain.ErrInvalidInput)
	}

	sinks := make([]driven.Sink, 0, len(req.Outputs))
	defer func() {
		var errs []error
		for _, sink := range sinks {
			if cerr := sink.Close(); cerr != nil {
				errs = append(errs, &domain.SinkError{Sink: sink.Name(), Err: cerr})
			}
		}
		if len(errs) > 0 {
			err = errors.Join(append([]error{err}, errs...)...)
		}
	}()
	for _, out := range req.Outputs {
		sink, err := s.sinks.Create(ctx, out)
		if err != nil {
			return nil, fmt.Errorf("create sink %s: %w", out.Type, err)
		}
		sinks = append(sinks, sink)
	}

	source, err := s.sources.Create(ctx, req.Source)
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}
	defer source.Close()

	return s.Run(ctx, source, sinks, req.Options)
}

// Status returns the state of the current or last run.
func (s *TransformService) Status() driving.TransformStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *TransformService) updateStatus(fn func(*driving.TransformStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
}

// Run consumes every document of source.
//
// In per-document mode each package gets its own pass: reset, ingest,
// extract and deliver. In aggregate mode every package is ingested first
// and a single pass covers their union. Documents that fail to parse or
// to ingest are skipped. A sink error aborts the run.
func (s *TransformService) Run(
	ctx context.Context,
	source driven.DocumentSource,
	sinks []driven.Sink,
	opts domain.RunOptions,
) (*domain.RunReport, error) {
	scope, err := domain.ParseScope(string(opts.Scope))
	if err != nil {
		return nil, err
	}
	opts.Scope = scope

	report := &domain.RunReport{
		RunID:     s.newRunID(),
		StartedAt: s.now(),
		Records:   make(map[string]int),
	}
	s.updateStatus(func(st *driving.TransformStatus) {
		*st = driving.TransformStatus{RunID: report.RunID, Running: true}
	})
	defer s.updateStatus(func(st *driving.TransformStatus) { st.Running = false })

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ctx, span := s.tracer.Start(ctx, "transform.run", trace.WithAttributes(
		attribute.String("run.id", report.RunID),
		attribute.String("source.type", source.Type()),
		attribute.Bool("run.aggregate", opts.Aggregate),
	))
	defer span.End()

	r := &run{
		svc:    s,
		source: source,
		sinks:  sinks,
		opts:   opts,
		index:  NewDocumentIndex(s.policy),
		report: report,
	}
	r.resolver = NewReferenceResolver(r.index)

	s.log.Info("Starting %s run %s: %s", source.Type(), report.RunID, source.Description())
	err = r.consume(ctx)
	if err == nil && opts.Aggregate {
		err = r.pass(ctx)
	}
	report.Duration = s.now().Sub(report.StartedAt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	s.log.Info("Run complete: %d documents, %d skipped, %d passes",
		report.Documents, report.Skipped, report.Passes)
	return report, nil
}

// run holds the state of one Run call.
type run struct {
	svc      *TransformService
	source   driven.DocumentSource
	sinks    []driven.Sink
	opts     domain.RunOptions
	index    *DocumentIndex
	resolver *ReferenceResolver
	report   *domain.RunReport
}

// consume reads documents until both source channels are closed.
func (r *run) consume(ctx context.Context) error {
	docsCh, errsCh := r.source.Documents(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				if docsCh == nil {
					return nil
				}
				continue
			}
			if err != nil {
				return fmt.Errorf("source error: %w", err)
			}

		case raw, ok := <-docsCh:
			if !ok {
				docsCh = nil
				if errsCh == nil {
					return nil
				}
				continue
			}
			if err := r.document(ctx, &raw); err != nil {
				return err
			}
		}
	}
}

// document parses and ingests one raw document, running a pass in
// per-document mode. Only sink failures are returned.
func (r *run) document(ctx context.Context, raw *domain.RawDocument) error {
	s := r.svc
	r.report.Documents++
	s.updateStatus(func(st *driving.TransformStatus) { st.DocumentsProcessed++ })

	s.log.Debug("Processing: %s", raw.URI)
	pkg, err := s.parsers.Parse(ctx, raw)
	if err != nil {
		r.skipDocument(raw, "parse_error", err)
		return nil
	}
	pkg.SourceMetadata = mergeMetadata(raw.Metadata, pkg.SourceMetadata)
	if _, ok := pkg.SourceMetadata[domain.MetaIngested]; !ok {
		pkg.SourceMetadata[domain.MetaIngested] = s.now().UTC().Format(time.RFC3339)
	}

	if !r.opts.Aggregate {
		r.index.Reset()
	}
	if err := r.index.Ingest(pkg); err != nil {
		r.skipDocument(raw, "conflict", err)
		return nil
	}
	s.metrics.DocumentProcessed("ingested")

	if r.opts.Aggregate {
		return nil
	}
	return r.pass(ctx)
}

func (r *run) skipDocument(raw *domain.RawDocument, result string, err error) {
	r.report.Skipped++
	r.svc.metrics.DocumentProcessed(result)
	r.svc.updateStatus(func(st *driving.TransformStatus) { st.ErrorCount++ })
	if result == "conflict" {
		r.svc.log.Warn("Skipping %s: %v", raw.URI, err)
		return
	}
	r.svc.log.Info("Skipping %s: %v", raw.URI, err)
}

// target is one observable selected for extraction.
type target struct {
	observable *domain.Observable
	indicator  *domain.Indicator
	metadata   map[string]string
}

// pass extracts the indexed packages and delivers them to every sink.
func (r *run) pass(ctx context.Context) error {
	s := r.svc
	started := s.now()
	r.report.Passes++
	p := NewPass(r.report.Passes, s.log, s.metrics)

	ctx, span := s.tracer.Start(ctx, "transform.pass", trace.WithAttributes(
		attribute.Int("pass.number", p.Number),
	))
	defer span.End()

	packages := r.index.Packages()
	info := &domain.PassInfo{
		Number:    p.Number,
		Aggregate: r.opts.Aggregate,
		Source:    r.source.Description(),
		Packages:  packages,
		Metadata:  map[string]string{},
		Stats:     p.Stats,
	}
	if len(packages) > 0 {
		info.Metadata = packages[0].SourceMetadata
	}
	p.Log.Section(fmt.Sprintf("Pass %d", p.Number))

	targets := r.targets(p)
	p.Stats.Documents = len(packages)
	p.Stats.Observables = len(targets)
	for _, t := range targets {
		if objectType := t.observable.ObjectType(); objectType != "" {
			p.Stats.AddObservable(objectType)
		}
	}

	for _, sink := range r.sinks {
		if err := r.deliver(ctx, p, info, sink, targets); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	r.report.Unresolved += p.Stats.Unresolved
	s.metrics.PassCompleted(s.now().Sub(started))
	s.updateStatus(func(st *driving.TransformStatus) {
		st.PassesCompleted++
		st.ErrorCount += p.Stats.Unresolved + p.Stats.Cycles
	})
	return nil
}

// targets selects the observables of the pass according to the scope.
func (r *run) targets(p *Pass) []target {
	if r.opts.Scope == domain.ScopeObservables {
		return r.observableTargets(p)
	}
	return r.indicatorTargets(p)
}

// indicatorTargets expands composite indicators and resolves the
// observables of every leaf indicator. An indicator reached twice in the
// same pass is processed once.
func (r *run) indicatorTargets(p *Pass) []target {
	var out []target
	done := make(map[*domain.Indicator]bool)
	for _, el := range r.index.Elements(domain.CategoryIndicators) {
		top, ok := el.(*domain.Indicator)
		if !ok {
			continue
		}
		leaves, err := r.resolver.LeafIndicators(p, top)
		if err != nil {
			p.skip(top, err)
			continue
		}
		for _, ind := range leaves {
			if done[ind] {
				continue
			}
			done[ind] = true
			p.Stats.Indicators++

			observables, err := r.resolver.ResolveIndicatorRelation(p, ind, domain.RelationObservables)
			if err != nil {
				p.skip(ind, err)
				continue
			}
			meta := r.metadata(ind.ID, top.ID)
			for _, el := range observables {
				obs, ok := el.(*domain.Observable)
				if !ok {
					continue
				}
				out = append(out, target{observable: obs, indicator: ind, metadata: meta})
			}
		}
	}
	return out
}

// observableTargets returns every indexed observable, compositions
// expanded. An observable reached twice is extracted once.
func (r *run) observableTargets(p *Pass) []target {
	var out []target
	done := make(map[*domain.Observable]bool)
	for _, el := range r.index.Elements(domain.CategoryObservables) {
		resolved, err := r.resolver.Dereference(p, []domain.Element{el}, domain.CategoryObservables, false)
		if err != nil {
			p.Stats.Cycles++
			p.Log.Warn("skipping observable %q: %v", el.ElementID(), err)
			continue
		}
		meta := r.metadata(el.ElementID())
		for _, member := range resolved {
			obs, ok := member.(*domain.Observable)
			if !ok || done[obs] {
				continue
			}
			done[obs] = true
			out = append(out, target{observable: obs, metadata: meta})
		}
	}
	return out
}

// metadata returns the source metadata of the package owning the first
// known identifier.
func (r *run) metadata(ids ...string) map[string]string {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if pkg, ok := r.index.Owner(id); ok {
			return pkg.SourceMetadata
		}
	}
	return nil
}

// deliver extracts the targets with the sink's profile and hands one
// delivery per object type to the sink, types in sorted order.
func (r *run) deliver(ctx context.Context, p *Pass, info *domain.PassInfo, sink driven.Sink, targets []target) error {
	s := r.svc
	observer, _ := sink.(driven.PassObserver)
	if observer != nil {
		if err := observer.BeginPass(ctx, info); err != nil {
			return &domain.SinkError{Sink: sink.Name(), Err: err}
		}
	}

	profile := sink.Profile()
	extractor := NewFieldExtractor(ExtractorConfig{AllowedConditions: profile.Conditions})
	byType := make(map[string][]domain.RecordGroup)
	for _, t := range targets {
		objectType := t.observable.ObjectType()
		if !profile.Supports(objectType) {
			continue
		}
		group := domain.RecordGroup{
			ObjectType: objectType,
			Observable: t.observable,
			Indicator:  t.indicator,
			Metadata:   t.metadata,
		}
		if tp, ok := profile.Type(objectType); ok {
			records := extractor.Extract(t.observable.Properties(), Paths(tp))
			group.Records = s.filter.Filter(records, tp)
			if len(group.Records) == 0 {
				continue
			}
		}
		if group.Metadata == nil {
			group.Metadata = info.Metadata
		}
		byType[objectType] = append(byType[objectType], group)
	}

	types := make([]string, 0, len(byType))
	for objectType := range byType {
		types = append(types, objectType)
	}
	sort.Strings(types)

	for _, objectType := range types {
		delivery := &domain.Delivery{
			ObjectType: objectType,
			Groups:     byType[objectType],
			Metadata:   info.Metadata,
			Pass:       info,
		}
		if err := r.deliverOne(ctx, sink, delivery); err != nil {
			return err
		}
		p.Log.Debug("Delivered %d %s records to %s", delivery.Len(), objectType, sink.Name())
	}

	if observer != nil {
		if err := observer.EndPass(ctx, info); err != nil {
			return &domain.SinkError{Sink: sink.Name(), Err: err}
		}
	}
	return nil
}

func (r *run) deliverOne(ctx context.Context, sink driven.Sink, delivery *domain.Delivery) error {
	ctx, span := r.svc.tracer.Start(ctx, "sink.deliver", trace.WithAttributes(
		attribute.String("sink.name", sink.Name()),
		attribute.String("object.type", delivery.ObjectType),
		attribute.Int("records", delivery.Len()),
	))
	defer span.End()

	if err := sink.Deliver(ctx, delivery); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return &domain.SinkError{Sink: sink.Name(), Err: err}
	}
	n := delivery.Len()
	r.report.Records[sink.Name()] += n
	r.svc.metrics.RecordsDelivered(sink.Name(), delivery.ObjectType, n)
	return nil
}

// mergeMetadata returns the source metadata overlaid with the metadata
// the parser found in the document.
func mergeMetadata(source, parsed map[string]string) map[string]string {
	out := domain.CopyMetadata(source)
	for k, v := range parsed {
		out[k] = v
	}
	return out
}
