package shell

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation-insights-go/internal/config"
	"conversation-insights-go/internal/logger"
	"conversation-insights-go/internal/types"
)

type fakeBackend struct {
	mu        sync.Mutex
	stats     []types.Stats
	statsErr  error
	statCalls int
	upload    types.UploadResult
}

func (f *fakeBackend) Upload(context.Context, types.UploadRequest) (types.UploadResult, error) {
	return f.upload, nil
}

func (f *fakeBackend) AnalyzeBatch(context.Context, types.AnalysisRunRequest) (types.AnalysisRunResult, error) {
	return types.AnalysisRunResult{Analyzed: 1}, nil
}

func (f *fakeBackend) AnalyzeConversation(_ context.Context, id int) (types.ConversationAnalysis, error) {
	return types.ConversationAnalysis{ResultID: id}, nil
}

func (f *fakeBackend) AnalysisStatus(context.Context, int) (types.AnalysisStatus, error) {
	return types.AnalysisStatus{}, nil
}

func (f *fakeBackend) ListResults(context.Context, types.ResultListRequest) (types.ResultPage, error) {
	return types.ResultPage{}, nil
}

func (f *fakeBackend) Result(_ context.Context, id int) (types.ResultDetail, error) {
	return types.ResultDetail{ResultID: id}, nil
}

func (f *fakeBackend) ResultForConversation(_ context.Context, id int) (types.ResultDetail, error) {
	return types.ResultDetail{ConversationID: id}, nil
}

func (f *fakeBackend) AggregateSummary(context.Context, types.Source) (types.AggregateSummary, error) {
	return types.AggregateSummary{}, nil
}

func (f *fakeBackend) Stats(context.Context) (types.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statCalls++
	if f.statsErr != nil {
		return types.Stats{}, f.statsErr
	}
	next := f.stats[0]
	if len(f.stats) > 1 {
		f.stats = f.stats[1:]
	}
	return next, nil
}

func (f *fakeBackend) Health(context.Context) (types.Health, error) {
	return types.Health{Status: "healthy"}, nil
}

func (f *fakeBackend) EngineConfig(context.Context) (types.EngineConfig, error) {
	return types.EngineConfig{Provider: "anthropic", Model: "claude", HasAPIKey: true}, nil
}

func (f *fakeBackend) setStatsErr(err error) {
	f.mu.Lock()
	f.statsErr = err
	f.mu.Unlock()
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statCalls
}

func TestBanner(t *testing.T) {
	assert.Equal(t, "Total Conversations: 0", Banner(types.Stats{}))
	got := Banner(types.Stats{TotalConversations: 6, BySource: map[string]int{"planhat": 1, "gong": 4, "other": 1}})
	assert.Equal(t, "Total Conversations: 6 | gong: 4 | other: 1 | planhat: 1", got)
}

func TestUploadRefreshesStats(t *testing.T) {
	fb := &fakeBackend{
		stats:  []types.Stats{{TotalConversations: 5, BySource: map[string]int{"gong": 5}}},
		upload: types.UploadResult{Uploaded: 5},
	}
	s := NewWithBackend(fb, logger.Discard())
	require.NoError(t, s.Ingestion.Select(types.File{Name: "calls.csv", Payload: []byte("transcript\nhello\n")}))

	_, err := s.Ingestion.Submit(context.Background())
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, 1, fb.calls())
	assert.True(t, s.Loaded())
	assert.Equal(t, "Total Conversations: 5 | gong: 5", s.Banner())
}

func TestStatsFailureKeepsPreviousValue(t *testing.T) {
	fb := &fakeBackend{stats: []types.Stats{{TotalConversations: 3, BySource: map[string]int{"gong": 3}}}}
	s := NewWithBackend(fb, logger.Discard())

	first := s.RefreshStats(context.Background())
	assert.Equal(t, 3, first.TotalConversations)

	fb.setStatsErr(errors.New("Network Error"))
	second := s.RefreshStats(context.Background())
	assert.Equal(t, first, second)
	assert.Equal(t, "Total Conversations: 3 | gong: 3", s.Banner())
}

func TestStatsFailureBeforeFirstLoad(t *testing.T) {
	fb := &fakeBackend{statsErr: errors.New("boom")}
	s := NewWithBackend(fb, logger.Discard())
	st := s.RefreshStats(context.Background())
	assert.Zero(t, st.TotalConversations)
	assert.False(t, s.Loaded())
}

func TestStatsSnapshotIsACopy(t *testing.T) {
	fb := &fakeBackend{stats: []types.Stats{{TotalConversations: 1, BySource: map[string]int{"gong": 1}}}}
	s := NewWithBackend(fb, logger.Discard())
	s.RefreshStats(context.Background())

	snap := s.Stats()
	snap.BySource["gong"] = 99
	assert.Equal(t, 1, s.Stats().BySource["gong"])
}

func TestPing(t *testing.T) {
	s := NewWithBackend(&fakeBackend{}, logger.Discard())
	h, ec, err := s.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, "anthropic", ec.Provider)
}

func TestNewWiresHTTPClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/upload/stats" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"total_conversations": 2, "by_source": {"salesforce": 2}}`))
	}))
	defer srv.Close()

	s := New(config.Config{APIBase: srv.URL + "/api", HTTPTimeout: 5 * time.Second}, logger.Discard())
	s.RefreshStats(context.Background())
	assert.True(t, strings.HasPrefix(s.Banner(), "Total Conversations: 2"))
	assert.Equal(t, 2, s.Stats().BySource["salesforce"])
}
