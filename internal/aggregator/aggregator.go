// Package aggregator owns the insights view: it fetches the pre-aggregated
// summary for the active source filter and reshapes it into chart and list
// panels.
package aggregator

import (
	"context"
	"sync"

	"conversation-insights-go/internal/apperr"
	"conversation-insights-go/internal/logger"
	"conversation-insights-go/internal/types"
)

const fallbackError = "Failed to fetch insights"

// Summarizer is the aggregate-summary half of the backend contract.
type Summarizer interface {
	AggregateSummary(ctx context.Context, source types.Source) (types.AggregateSummary, error)
}

type State struct {
	Source    types.Source `json:"source"`
	Loading   bool         `json:"loading"`
	Error     string       `json:"error,omitempty"`
	Dashboard *Dashboard   `json:"dashboard,omitempty"`
}

type Aggregator struct {
	client Summarizer
	log    *logger.Logger

	mu         sync.Mutex
	source     types.Source
	generation uint64
	loading    bool
	errMsg     string
	summary    *types.AggregateSummary
}

func New(client Summarizer, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.New()
	}
	return &Aggregator{client: client, log: log.Component("aggregator")}
}

// Refresh fetches the summary for the current filter (the view being opened).
func (a *Aggregator) Refresh(ctx context.Context) (Dashboard, error) {
	a.mu.Lock()
	source := a.source
	a.mu.Unlock()
	return a.fetch(ctx, source)
}

// SetSource switches the filter and fetches for it.
func (a *Aggregator) SetSource(ctx context.Context, source types.Source) (Dashboard, error) {
	return a.fetch(ctx, source)
}

// fetch tags each request with a generation number. Only the response of the
// newest request is applied; older ones return apperr.ErrSuperseded.
func (a *Aggregator) fetch(ctx context.Context, source types.Source) (Dashboard, error) {
	a.mu.Lock()
	a.generation++
	gen := a.generation
	a.source = source
	a.loading = true
	a.errMsg = ""
	a.summary = nil
	a.mu.Unlock()

	log := a.log.WithField("source", source).WithField("generation", gen)
	sum, err := a.client.AggregateSummary(ctx, source)

	a.mu.Lock()
	defer a.mu.Unlock()
	if gen != a.generation {
		log.Debug("discarding stale summary")
		return Dashboard{}, apperr.ErrSuperseded
	}
	a.loading = false
	if err != nil {
		a.errMsg = apperr.Display(err, fallbackError)
		log.WithField("error", err.Error()).Warn("aggregate summary failed")
		return Dashboard{}, err
	}
	a.summary = &sum
	log.WithField("total_analyzed", sum.TotalAnalyzed).Debug("summary applied")
	return BuildDashboard(a.summary), nil
}

// State is a consistent snapshot; the dashboard is absent while loading or
// after a failure.
func (a *Aggregator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := State{Source: a.source, Loading: a.loading, Error: a.errMsg}
	if !a.loading && a.errMsg == "" {
		d := BuildDashboard(a.summary)
		st.Dashboard = &d
	}
	return st
}
