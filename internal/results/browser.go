// Package results browses stored per-conversation analyses: a paginated
// listing filtered by source, and the full extraction of a single result.
package results

import (
	"context"
	"sync"

	"conversation-insights-go/internal/apperr"
	"conversation-insights-go/internal/logger"
	"conversation-insights-go/internal/types"
)

const (
	fallbackListError   = "Failed to fetch results"
	fallbackDetailError = "Failed to fetch result"
)

// Reader is the result-listing half of the backend contract.
type Reader interface {
	ListResults(ctx context.Context, req types.ResultListRequest) (types.ResultPage, error)
	Result(ctx context.Context, resultID int) (types.ResultDetail, error)
	ResultForConversation(ctx context.Context, conversationID int) (types.ResultDetail, error)
}

type State struct {
	Source  types.Source        `json:"source"`
	Skip    int                 `json:"skip"`
	Limit   int                 `json:"limit"`
	Loading bool                `json:"loading"`
	Error   string              `json:"error,omitempty"`
	Page    *types.ResultPage   `json:"page,omitempty"`
	Detail  *types.ResultDetail `json:"detail,omitempty"`
}

// Browser keeps one page and at most one opened result. Like the insights
// view, a newer request always wins over an older one still in flight.
type Browser struct {
	client Reader
	log    *logger.Logger

	mu         sync.Mutex
	source     types.Source
	skip       int
	limit      int
	generation uint64
	loading    bool
	errMsg     string
	page       *types.ResultPage
	detail     *types.ResultDetail
}

func New(client Reader, log *logger.Logger) *Browser {
	if log == nil {
		log = logger.New()
	}
	return &Browser{
		client: client,
		log:    log.Component("results"),
		limit:  types.DefaultResultPageSize,
	}
}

// PageSize maps a requested page size onto what the backend accepts: 0 means
// the default, anything else is clamped into [1, 1000].
func PageSize(n int) int {
	switch {
	case n == 0:
		return types.DefaultResultPageSize
	case n < 1:
		return 1
	case n > types.MaxResultPageSize:
		return types.MaxResultPageSize
	}
	return n
}

// SetPage moves the window without fetching.
func (b *Browser) SetPage(skip, limit int) {
	if skip < 0 {
		skip = 0
	}
	b.mu.Lock()
	b.skip, b.limit = skip, PageSize(limit)
	b.mu.Unlock()
}

// SetSource switches the filter, rewinds to the first page and fetches it.
func (b *Browser) SetSource(ctx context.Context, source types.Source) (types.ResultPage, error) {
	b.mu.Lock()
	b.source, b.skip = source, 0
	b.mu.Unlock()
	return b.List(ctx)
}

// Query replaces filter and window in one step and fetches that page.
func (b *Browser) Query(ctx context.Context, req types.ResultListRequest) (types.ResultPage, error) {
	if req.Skip < 0 {
		req.Skip = 0
	}
	b.mu.Lock()
	b.source, b.skip, b.limit = req.Source, req.Skip, PageSize(req.Limit)
	b.mu.Unlock()
	return b.List(ctx)
}

// List fetches the page at the current window.
func (b *Browser) List(ctx context.Context) (types.ResultPage, error) {
	b.mu.Lock()
	req := types.ResultListRequest{Source: b.source, Skip: b.skip, Limit: b.limit}
	gen := b.beginLocked()
	b.page = nil
	b.mu.Unlock()

	log := b.log.WithField("source", req.Source).WithField("skip", req.Skip).WithField("limit", req.Limit)
	page, err := b.client.ListResults(ctx, req)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.finishLocked(gen, err, fallbackListError); err != nil {
		log.WithField("error", err.Error()).Debug("result listing not applied")
		return types.ResultPage{}, err
	}
	if page.Results == nil {
		page.Results = []types.ResultListItem{}
	}
	b.page = &page
	log.WithField("total", page.Total).Debug("result page applied")
	return page, nil
}

// NextPage advances by one page. It reports false without fetching when the
// last page is already shown.
func (b *Browser) NextPage(ctx context.Context) (types.ResultPage, bool, error) {
	b.mu.Lock()
	if b.page != nil && b.skip+b.limit >= b.page.Total {
		b.mu.Unlock()
		return types.ResultPage{}, false, nil
	}
	b.skip += b.limit
	b.mu.Unlock()
	page, err := b.List(ctx)
	return page, err == nil, err
}

// Show opens one result by its id.
func (b *Browser) Show(ctx context.Context, resultID int) (types.ResultDetail, error) {
	if resultID <= 0 {
		return types.ResultDetail{}, b.reject(apperr.Validationf("Result ID must be a positive number, got %d", resultID))
	}
	return b.open(ctx, "result_id", resultID, b.client.Result)
}

// ShowConversation opens the result stored for a conversation.
func (b *Browser) ShowConversation(ctx context.Context, conversationID int) (types.ResultDetail, error) {
	if conversationID <= 0 {
		return types.ResultDetail{}, b.reject(apperr.Validationf("Conversation ID must be a positive number, got %d", conversationID))
	}
	return b.open(ctx, "conversation_id", conversationID, b.client.ResultForConversation)
}

func (b *Browser) open(ctx context.Context, field string, id int, fetch func(context.Context, int) (types.ResultDetail, error)) (types.ResultDetail, error) {
	b.mu.Lock()
	gen := b.beginLocked()
	b.mu.Unlock()

	log := b.log.WithField(field, id)
	d, err := fetch(ctx, id)

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.finishLocked(gen, err, fallbackDetailError); err != nil {
		log.WithField("error", err.Error()).Debug("result not applied")
		return types.ResultDetail{}, err
	}
	b.detail = &d
	return d, nil
}

func (b *Browser) reject(err error) error {
	b.mu.Lock()
	b.errMsg = apperr.Display(err, fallbackDetailError)
	b.mu.Unlock()
	return err
}

// beginLocked starts a request: it bumps the generation and clears whatever
// the previous request left behind.
func (b *Browser) beginLocked() uint64 {
	b.generation++
	b.loading = true
	b.errMsg = ""
	b.detail = nil
	return b.generation
}

// finishLocked returns apperr.ErrSuperseded for stale responses and records
// err for current ones.
func (b *Browser) finishLocked(gen uint64, err error, fallback string) error {
	if gen != b.generation {
		return apperr.ErrSuperseded
	}
	b.loading = false
	if err != nil {
		b.errMsg = apperr.Display(err, fallback)
		return err
	}
	return nil
}

func (b *Browser) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{
		Source:  b.source,
		Skip:    b.skip,
		Limit:   b.limit,
		Loading: b.loading,
		Error:   b.errMsg,
		Page:    b.page,
		Detail:  b.detail,
	}
}
