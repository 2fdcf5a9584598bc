package aggregator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation-insights-go/internal/apperr"
	"conversation-insights-go/internal/logger"
	"conversation-insights-go/internal/types"
)

func ranked(prefix string, n int) []types.RankedItem {
	out := make([]types.RankedItem, n)
	for i := range out {
		out[i] = types.RankedItem{Label: fmt.Sprintf("%s %d", prefix, i+1), Count: 100 - i}
	}
	return out
}

func TestTruncateLabel(t *testing.T) {
	long := strings.Repeat("a", 45)
	got := TruncateLabel(long)
	assert.Equal(t, 40, len(got))
	assert.Equal(t, strings.Repeat("a", 37)+"...", got)

	exact := strings.Repeat("b", 40)
	assert.Equal(t, exact, TruncateLabel(exact))
	assert.Equal(t, "short", TruncateLabel("short"))

	multibyte := strings.Repeat("é", 41)
	got = TruncateLabel(multibyte)
	assert.Equal(t, 40, utf8.RuneCountInString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, Dashboard{Placeholder: Placeholder}, BuildDashboard(nil))

	d := BuildDashboard(&types.AggregateSummary{TotalAnalyzed: 0, PainPoints: types.CategorySummary{Top: ranked("p", 3)}})
	assert.True(t, d.IsPlaceholder())
	assert.Empty(t, d.Panels, "no chart and no list when nothing was analyzed")
}

func TestChartSliceAndFullList(t *testing.T) {
	sum := &types.AggregateSummary{
		TotalAnalyzed: 30,
		PainPoints:    types.CategorySummary{TotalUnique: 12, Top: ranked("pain", 12)},
	}
	d := BuildDashboard(sum)
	require.Len(t, d.Panels, 3)

	pain := d.Panels[0]
	assert.Equal(t, types.CategoryPainPoints, pain.Category)
	assert.Equal(t, "Top Pain Points", pain.Title)
	require.Len(t, pain.Chart, 10)
	require.Len(t, pain.List, 12)
	for i := 0; i < 10; i++ {
		assert.Equal(t, pain.List[i].Label, pain.Chart[i].Name)
		assert.Equal(t, pain.List[i].Count, pain.Chart[i].Count)
	}
	assert.Equal(t, "pain 12", pain.List[11].Label)
	assert.Empty(t, pain.EmptyMessage)

	assert.Equal(t, "No media consumption data found", d.Panels[1].EmptyMessage)
	assert.Empty(t, d.Panels[1].Chart)
	assert.Equal(t, "No compelling points found", d.Panels[2].EmptyMessage)
}

func TestOrderIsNotResorted(t *testing.T) {
	top := []types.RankedItem{{Label: "b", Count: 1}, {Label: "a", Count: 9}}
	d := BuildDashboard(&types.AggregateSummary{TotalAnalyzed: 2, CompellingPoints: types.CategorySummary{Top: top}})
	assert.Equal(t, []ChartPoint{{Name: "b", Count: 1}, {Name: "a", Count: 9}}, d.Panels[2].Chart)
}

func TestLongLabelsTruncatedOnlyInChart(t *testing.T) {
	label := strings.Repeat("x", 45)
	sum := &types.AggregateSummary{
		TotalAnalyzed:    1,
		MediaConsumption: types.CategorySummary{Top: []types.RankedItem{{Label: label, Count: 2}}},
	}
	d := BuildDashboard(sum)
	media := d.Panels[1]
	assert.Len(t, media.Chart[0].Name, 40)
	assert.Equal(t, label, media.List[0].Label)
	assert.Equal(t, label, sum.MediaConsumption.Top[0].Label, "input is not mutated")
}

type blockingSummarizer struct {
	mu      sync.Mutex
	gates   map[types.Source]chan struct{}
	started chan types.Source
	results map[types.Source]types.AggregateSummary
	errs    map[types.Source]error
}

func newBlocking() *blockingSummarizer {
	return &blockingSummarizer{
		gates:   map[types.Source]chan struct{}{},
		started: make(chan types.Source, 8),
		results: map[types.Source]types.AggregateSummary{},
		errs:    map[types.Source]error{},
	}
}

func (b *blockingSummarizer) gate(s types.Source) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gates[s] == nil {
		b.gates[s] = make(chan struct{})
	}
	return b.gates[s]
}

func (b *blockingSummarizer) AggregateSummary(_ context.Context, s types.Source) (types.AggregateSummary, error) {
	g := b.gate(s)
	b.started <- s
	<-g
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.results[s], b.errs[s]
}

func TestLastRequestWins(t *testing.T) {
	bs := newBlocking()
	bs.results[types.SourceGong] = types.AggregateSummary{TotalAnalyzed: 1, PainPoints: types.CategorySummary{Top: ranked("gong", 1)}}
	bs.results[types.SourcePlanhat] = types.AggregateSummary{TotalAnalyzed: 2, PainPoints: types.CategorySummary{Top: ranked("planhat", 2)}}
	a := New(bs, logger.Discard())
	ctx := context.Background()

	gongDone := make(chan error, 1)
	go func() {
		_, err := a.SetSource(ctx, types.SourceGong)
		gongDone <- err
	}()
	require.Equal(t, types.SourceGong, <-bs.started)

	planhatDone := make(chan error, 1)
	go func() {
		_, err := a.SetSource(ctx, types.SourcePlanhat)
		planhatDone <- err
	}()
	require.Equal(t, types.SourcePlanhat, <-bs.started)
	assert.True(t, a.State().Loading)

	close(bs.gate(types.SourcePlanhat))
	require.NoError(t, <-planhatDone)

	close(bs.gate(types.SourceGong))
	assert.ErrorIs(t, <-gongDone, apperr.ErrSuperseded)

	st := a.State()
	assert.Equal(t, types.SourcePlanhat, st.Source)
	require.NotNil(t, st.Dashboard)
	assert.Equal(t, 2, st.Dashboard.TotalAnalyzed)
	assert.Equal(t, "planhat 1", st.Dashboard.Panels[0].List[0].Label)
}

func TestStaleResponseDoesNotClearLoading(t *testing.T) {
	bs := newBlocking()
	a := New(bs, logger.Discard())
	ctx := context.Background()

	first := make(chan error, 1)
	go func() { _, err := a.SetSource(ctx, types.SourceGong); first <- err }()
	<-bs.started
	second := make(chan error, 1)
	go func() { _, err := a.SetSource(ctx, types.SourceOther); second <- err }()
	<-bs.started

	close(bs.gate(types.SourceGong))
	assert.ErrorIs(t, <-first, apperr.ErrSuperseded)
	assert.True(t, a.State().Loading, "newer request still pending")
	assert.Nil(t, a.State().Dashboard)

	close(bs.gate(types.SourceOther))
	require.NoError(t, <-second)
	st := a.State()
	assert.False(t, st.Loading)
	require.NotNil(t, st.Dashboard)
	assert.True(t, st.Dashboard.IsPlaceholder())
}

type staticSummarizer struct {
	sum   types.AggregateSummary
	err   error
	calls []types.Source
}

func (s *staticSummarizer) AggregateSummary(_ context.Context, src types.Source) (types.AggregateSummary, error) {
	s.calls = append(s.calls, src)
	return s.sum, s.err
}

func TestRefetchIsIdempotent(t *testing.T) {
	ss := &staticSummarizer{sum: types.AggregateSummary{
		TotalAnalyzed:    4,
		PainPoints:       types.CategorySummary{Top: ranked("p", 12)},
		MediaConsumption: types.CategorySummary{Top: ranked("m", 3)},
	}}
	a := New(ss, logger.Discard())

	d1, err := a.Refresh(context.Background())
	require.NoError(t, err)
	d2, err := a.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
	assert.Equal(t, []types.Source{types.SourceAll, types.SourceAll}, ss.calls)
}

func TestErrorResetOnRefetch(t *testing.T) {
	ss := &staticSummarizer{err: &apperr.CollaboratorError{Op: "aggregate-summary", StatusCode: 500, Detail: "database locked"}}
	a := New(ss, logger.Discard())

	_, err := a.Refresh(context.Background())
	require.Error(t, err)
	st := a.State()
	assert.Equal(t, "database locked", st.Error)
	assert.Nil(t, st.Dashboard)

	ss.err = nil
	ss.sum = types.AggregateSummary{TotalAnalyzed: 1}
	_, err = a.SetSource(context.Background(), types.SourceGong)
	require.NoError(t, err)
	st = a.State()
	assert.Empty(t, st.Error)
	assert.Equal(t, types.SourceGong, st.Source)
	require.NotNil(t, st.Dashboard)
	assert.Equal(t, 1, st.Dashboard.TotalAnalyzed)
}

func TestPlainErrorFallsBackToMessage(t *testing.T) {
	a := New(&staticSummarizer{err: errors.New("connection refused")}, logger.Discard())
	_, err := a.Refresh(context.Background())
	require.Error(t, err)
	assert.Equal(t, "connection refused", a.State().Error)
}

func TestInitialStateIsPlaceholder(t *testing.T) {
	a := New(&staticSummarizer{}, logger.Discard())
	st := a.State()
	require.NotNil(t, st.Dashboard)
	assert.True(t, st.Dashboard.IsPlaceholder())
}
