package results

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversation-insights-go/internal/apperr"
	"conversation-insights-go/internal/logger"
	"conversation-insights-go/internal/types"
)

type fakeReader struct {
	mu    sync.Mutex
	reqs  []types.ResultListRequest
	total int
	err   error

	// gates, when set, holds a listing for that source until closed
	gates map[types.Source]chan struct{}
}

func (f *fakeReader) ListResults(_ context.Context, req types.ResultListRequest) (types.ResultPage, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	gate := f.gates[req.Source]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return types.ResultPage{}, f.err
	}
	page := types.ResultPage{Total: f.total, Skip: req.Skip, Limit: req.Limit}
	for i := req.Skip; i < f.total && i < req.Skip+req.Limit; i++ {
		page.Results = append(page.Results, types.ResultListItem{ResultID: i + 1, ConversationID: 100 + i, Summary: string(req.Source)})
	}
	return page, nil
}

func (f *fakeReader) Result(_ context.Context, id int) (types.ResultDetail, error) {
	if f.err != nil {
		return types.ResultDetail{}, f.err
	}
	return types.ResultDetail{ResultID: id, ConversationID: id + 100}, nil
}

func (f *fakeReader) ResultForConversation(_ context.Context, id int) (types.ResultDetail, error) {
	if id == 404 {
		return types.ResultDetail{}, &apperr.CollaboratorError{Op: "conversation-result", StatusCode: 404, Detail: "Analysis not found for this conversation"}
	}
	return types.ResultDetail{ResultID: 1, ConversationID: id}, nil
}

func (f *fakeReader) requests() []types.ResultListRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]types.ResultListRequest(nil), f.reqs...)
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, 100, PageSize(0))
	assert.Equal(t, 1, PageSize(-5))
	assert.Equal(t, 1000, PageSize(5000))
	assert.Equal(t, 25, PageSize(25))
}

func TestListDefaults(t *testing.T) {
	fr := &fakeReader{total: 3}
	b := New(fr, logger.Discard())

	page, err := b.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, page.Results, 3)

	reqs := fr.requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Source.IsAll())
	assert.Equal(t, 0, reqs[0].Skip)
	assert.Equal(t, 100, reqs[0].Limit)

	st := b.State()
	assert.False(t, st.Loading)
	require.NotNil(t, st.Page)
	assert.Equal(t, 3, st.Page.Total)
}

func TestEmptyListingIsNotNil(t *testing.T) {
	b := New(&fakeReader{}, logger.Discard())
	page, err := b.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, page.Results)
	assert.Empty(t, page.Results)
}

func TestSetSourceRewinds(t *testing.T) {
	fr := &fakeReader{total: 500}
	b := New(fr, logger.Discard())
	b.SetPage(200, 50)

	_, err := b.SetSource(context.Background(), types.SourcePlanhat)
	require.NoError(t, err)

	reqs := fr.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, types.ResultListRequest{Source: types.SourcePlanhat, Skip: 0, Limit: 50}, reqs[0])
}

func TestSetPageClamps(t *testing.T) {
	b := New(&fakeReader{}, logger.Discard())
	b.SetPage(-3, 5000)
	st := b.State()
	assert.Equal(t, 0, st.Skip)
	assert.Equal(t, 1000, st.Limit)
}

func TestQuerySetsWindow(t *testing.T) {
	fr := &fakeReader{total: 10}
	b := New(fr, logger.Discard())
	page, err := b.Query(context.Background(), types.ResultListRequest{Source: types.SourceOther, Skip: -1})
	require.NoError(t, err)
	assert.Len(t, page.Results, 10)
	assert.Equal(t, []types.ResultListRequest{{Source: types.SourceOther, Skip: 0, Limit: 100}}, fr.requests())
}

func TestNextPageStopsAtTheEnd(t *testing.T) {
	fr := &fakeReader{total: 5}
	b := New(fr, logger.Discard())
	b.SetPage(0, 2)
	ctx := context.Background()

	_, err := b.List(ctx)
	require.NoError(t, err)

	page, ok, err := b.NextPage(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, page.Skip)

	page, ok, err = b.NextPage(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, page.Results, 1)

	_, ok, err = b.NextPage(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, fr.requests(), 3)
}

func TestListFailure(t *testing.T) {
	b := New(&fakeReader{err: &apperr.TransportError{Op: "list-results"}}, logger.Discard())
	_, err := b.List(context.Background())
	require.Error(t, err)
	st := b.State()
	assert.Nil(t, st.Page)
	assert.NotEmpty(t, st.Error)
	assert.False(t, st.Loading)
}

func TestNewerListingWins(t *testing.T) {
	gate := make(chan struct{})
	fr := &fakeReader{total: 2, gates: map[types.Source]chan struct{}{types.SourceGong: gate}}
	b := New(fr, logger.Discard())
	ctx := context.Background()

	stale := make(chan error, 1)
	go func() {
		_, err := b.SetSource(ctx, types.SourceGong)
		stale <- err
	}()
	require.Eventually(t, func() bool { return len(fr.requests()) == 1 }, time.Second, time.Millisecond)

	_, err := b.SetSource(ctx, types.SourceSalesforce)
	require.NoError(t, err)
	close(gate)

	assert.ErrorIs(t, <-stale, apperr.ErrSuperseded)
	st := b.State()
	require.NotNil(t, st.Page)
	assert.Equal(t, "salesforce", st.Page.Results[0].Summary)
	assert.Equal(t, types.SourceSalesforce, st.Source)
}

func TestShow(t *testing.T) {
	b := New(&fakeReader{}, logger.Discard())
	d, err := b.Show(context.Background(), 12)
	require.NoError(t, err)
	assert.Equal(t, 112, d.ConversationID)
	require.NotNil(t, b.State().Detail)
}

func TestShowRejectsBadID(t *testing.T) {
	b := New(&fakeReader{}, logger.Discard())
	_, err := b.Show(context.Background(), 0)
	assert.True(t, apperr.IsValidation(err))
	assert.Contains(t, b.State().Error, "positive number")
}

func TestShowConversationNotFound(t *testing.T) {
	b := New(&fakeReader{}, logger.Discard())
	_, err := b.ShowConversation(context.Background(), 404)
	require.Error(t, err)
	st := b.State()
	assert.Equal(t, "Analysis not found for this conversation", st.Error)
	assert.Nil(t, st.Detail)
}

func TestShowKeepsListing(t *testing.T) {
	b := New(&fakeReader{total: 1}, logger.Discard())
	ctx := context.Background()
	_, err := b.List(ctx)
	require.NoError(t, err)
	_, err = b.ShowConversation(ctx, 100)
	require.NoError(t, err)

	st := b.State()
	assert.NotNil(t, st.Page)
	assert.NotNil(t, st.Detail)
}
