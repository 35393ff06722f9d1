package cli

import (
	"io"

	"github.com/custodia-labs/ctitrans/internal/adapters/driven/metrics"
	"github.com/custodia-labs/ctitrans/internal/adapters/driven/sinks"
	"github.com/custodia-labs/ctitrans/internal/connectors"
	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driving"
	"github.com/custodia-labs/ctitrans/internal/core/services"
	"github.com/custodia-labs/ctitrans/internal/logger"
	"github.com/custodia-labs/ctitrans/internal/normalisers"
	"github.com/custodia-labs/ctitrans/internal/normalisers/stix"
)

// app holds the services a command runs against.
type app struct {
	transform driving.TransformService
	extract   driving.ExtractService
	profiles  driving.ProfileService
	metrics   *metrics.Metrics
}

// appOptions configures the wiring of an app.
type appOptions struct {
	config   driven.ConfigStore
	out      io.Writer
	terminal bool
	log      *logger.Logger
	policy   domain.ConflictPolicy
	records  driven.RecordStore
}

// newApp wires the services. Tests replace it.
var newApp = func(opts appOptions) (*app, error) {
	m := metrics.New()
	profiles := services.NewProfileService(sinks.DefaultProfiles(), opts.config)
	sinkFactory := sinks.NewFactory(opts.out,
		sinks.WithTerminal(opts.terminal),
		sinks.WithProfiles(profiles),
		sinks.WithRecordStore(opts.records),
		sinks.WithLogger(opts.log),
	)

	transform := services.NewTransformService(
		normalisers.NewRegistry(stix.New()),
		services.WithLogger(opts.log),
		services.WithMetrics(m),
		services.WithConflictPolicy(opts.policy),
		services.WithSourceFactory(connectors.NewFactory(opts.log)),
		services.WithSinkFactory(sinkFactory),
	)

	return &app{
		transform: transform,
		extract:   services.NewExtractService(transform, profiles),
		profiles:  profiles,
		metrics:   m,
	}, nil
}
