package services

import (
	"errors"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
	"github.com/custodia-labs/ctitrans/internal/core/ports/driven"
	"github.com/custodia-labs/ctitrans/internal/logger"
)

// Pass carries the logger and counters of one extraction pass.
// It is passed explicitly to every component call that reports
// warnings; a nil *Pass discards them.
type Pass struct {
	Number  int
	Log     *logger.Logger
	Stats   *domain.PassStats
	metrics driven.Metrics
}

// NewPass creates the context of pass number n.
// log and metrics may be nil.
func NewPass(n int, log *logger.Logger, metrics driven.Metrics) *Pass {
	if log == nil {
		log = logger.Discard()
	}
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	return &Pass{
		Number:  n,
		Log:     log,
		Stats:   &domain.PassStats{},
		metrics: metrics,
	}
}

// unresolved records an idref that is missing from the index.
func (p *Pass) unresolved(category domain.Category, id string) {
	if p == nil {
		return
	}
	p.Stats.Unresolved++
	p.metrics.ReferenceUnresolved()
	p.Log.Warn("unable to dereference %s element with id %q", category, id)
}

// skip records an indicator dropped because its expansion failed.
func (p *Pass) skip(ind *domain.Indicator, err error) {
	if p == nil {
		return
	}
	var cycle *domain.CycleError
	if errors.As(err, &cycle) {
		p.Stats.Cycles++
	}
	p.Log.Warn("skipping indicator %q: %v", ind.ID, err)
}
