// Package shell is the parent of the three pipeline components. It owns the
// conversation-count banner and hands the ingestion controller a callback that
// refreshes it after every successful upload.
package shell

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"conversation-insights-go/internal/aggregator"
	"conversation-insights-go/internal/analysis"
	"conversation-insights-go/internal/apiclient"
	"conversation-insights-go/internal/config"
	"conversation-insights-go/internal/ingestion"
	"conversation-insights-go/internal/logger"
	"conversation-insights-go/internal/results"
	"conversation-insights-go/internal/types"
)

// Backend is everything the shell and its components need from the API.
// *apiclient.Client satisfies it.
type Backend interface {
	ingestion.Uploader
	analysis.Analyzer
	aggregator.Summarizer
	results.Reader
	Stats(ctx context.Context) (types.Stats, error)
	Health(ctx context.Context) (types.Health, error)
	EngineConfig(ctx context.Context) (types.EngineConfig, error)
}

type Shell struct {
	backend Backend
	log     *logger.Logger

	Ingestion *ingestion.Controller
	Analysis  *analysis.Orchestrator
	Insights  *aggregator.Aggregator
	Results   *results.Browser

	mu     sync.Mutex
	stats  types.Stats
	loaded bool
}

// New builds the API client from cfg and wires the components to it.
func New(cfg config.Config, log *logger.Logger) *Shell {
	if log == nil {
		log = logger.New()
	}
	return NewWithBackend(apiclient.New(cfg, apiclient.WithLogger(log)), log)
}

func NewWithBackend(b Backend, log *logger.Logger) *Shell {
	if log == nil {
		log = logger.New()
	}
	s := &Shell{backend: b, log: log.Component("shell")}
	s.Ingestion = ingestion.New(b, s.onUploaded, log)
	s.Analysis = analysis.New(b, log)
	s.Insights = aggregator.New(b, log)
	s.Results = results.New(b, log)
	return s
}

func (s *Shell) onUploaded(ctx context.Context) error {
	s.RefreshStats(ctx)
	return nil
}

// RefreshStats re-reads the conversation counts. A failure is logged and the
// previous counts stay in place.
func (s *Shell) RefreshStats(ctx context.Context) types.Stats {
	st, err := s.backend.Stats(ctx)
	if err != nil {
		s.log.WithError(err).Warn("failed to fetch stats")
		return s.Stats()
	}
	if st.BySource == nil {
		st.BySource = map[string]int{}
	}

	s.mu.Lock()
	s.stats = st
	s.loaded = true
	s.mu.Unlock()

	s.log.WithField("total_conversations", st.TotalConversations).Debug("stats refreshed")
	return st
}

func (s *Shell) Stats() types.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := types.Stats{TotalConversations: s.stats.TotalConversations, BySource: make(map[string]int, len(s.stats.BySource))}
	for k, v := range s.stats.BySource {
		out.BySource[k] = v
	}
	return out
}

// Loaded reports whether stats were fetched successfully at least once.
func (s *Shell) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded
}

func (s *Shell) Banner() string {
	return Banner(s.Stats())
}

// Banner renders "Total Conversations: N | gong: X | ..." with sources in
// name order.
func Banner(st types.Stats) string {
	parts := []string{fmt.Sprintf("Total Conversations: %d", st.TotalConversations)}
	names := make([]string, 0, len(st.BySource))
	for name := range st.BySource {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %d", name, st.BySource[name]))
	}
	return strings.Join(parts, " | ")
}

// Ping checks the backend health and reads its analysis engine settings.
func (s *Shell) Ping(ctx context.Context) (types.Health, types.EngineConfig, error) {
	h, err := s.backend.Health(ctx)
	if err != nil {
		return h, types.EngineConfig{}, err
	}
	ec, err := s.backend.EngineConfig(ctx)
	return h, ec, err
}

// Wait blocks until post-upload refreshes have finished.
func (s *Shell) Wait() {
	s.Ingestion.Wait()
}
