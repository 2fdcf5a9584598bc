// Package apiclient speaks the HTTP/JSON contracts of the insights backend:
// upload, stats, batch analysis and the aggregate summary.
package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"conversation-insights-go/internal/apperr"
	"conversation-insights-go/internal/config"
	"conversation-insights-go/internal/logger"
	"conversation-insights-go/internal/types"
)

const maxErrorBody = 64 << 10

type Client struct {
	base            string
	httpClient      *http.Client
	httpTimeout     time.Duration
	uploadTimeout   time.Duration
	analysisTimeout time.Duration
	retryMaxElapsed time.Duration
	limiter         *rate.Limiter
	log             *logger.Logger
}

type Option func(*Client)

// WithHTTPClient swaps the underlying client (tests pass httptest clients).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l.Component("apiclient") }
}

func New(cfg config.Config, opts ...Option) *Client {
	c := &Client{
		base:            strings.TrimRight(cfg.APIBase, "/"),
		httpClient:      newHTTPClient(),
		httpTimeout:     cfg.HTTPTimeout,
		uploadTimeout:   cfg.UploadTimeout,
		analysisTimeout: cfg.AnalysisTimeout,
		retryMaxElapsed: cfg.RetryMaxElapsed,
		log:             logger.New().Component("apiclient"),
	}
	if c.httpTimeout <= 0 {
		c.httpTimeout = 30 * time.Second
	}
	if c.analysisTimeout < 0 {
		c.analysisTimeout = 0
	}
	if c.uploadTimeout < config.MinUploadTimeout {
		c.uploadTimeout = config.MinUploadTimeout
	}
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// newHTTPClient carries no overall Timeout: every call gets its own context
// deadline so uploads can outlive the ordinary request budget.
func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func (c *Client) UploadTimeout() time.Duration { return c.uploadTimeout }

// AnalysisTimeout is 0 when analysis calls have no deadline of their own.
func (c *Client) AnalysisTimeout() time.Duration { return c.analysisTimeout }

// --------------------------------------------
// Contracts
// --------------------------------------------

// Upload posts the file as multipart (file, source) to /upload/csv or
// /upload/json depending on the declared format.
func (c *Client) Upload(ctx context.Context, req types.UploadRequest) (types.UploadResult, error) {
	var out types.UploadResult
	path := "/upload/" + string(req.Format)
	q := url.Values{}
	q.Set("source", string(req.Source))

	build := func(ctx context.Context) (*http.Request, error) {
		var b bytes.Buffer
		w := multipart.NewWriter(&b)
		fw, err := w.CreateFormFile("file", filenameOr(req.Filename, req.Format))
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(req.Payload); err != nil {
			return nil, err
		}
		if err := w.WriteField("source", string(req.Source)); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, q), &b)
		if err != nil {
			return nil, err
		}
		r.Header.Set("Content-Type", w.FormDataContentType())
		return r, nil
	}
	err := c.call(ctx, call{op: "upload", timeout: c.uploadTimeout, build: build}, &out)
	return out, err
}

func (c *Client) Stats(ctx context.Context) (types.Stats, error) {
	var out types.Stats
	err := c.call(ctx, c.get("stats", "/upload/stats", nil), &out)
	return out, err
}

// AnalyzeBatch triggers one bounded extraction run. The source parameter is
// left out entirely for the "all sources" filter.
func (c *Client) AnalyzeBatch(ctx context.Context, req types.AnalysisRunRequest) (types.AnalysisRunResult, error) {
	var out types.AnalysisRunResult
	q := url.Values{}
	q.Set("limit", strconv.Itoa(req.Limit))
	if !req.Source.IsAll() {
		q.Set("source", string(req.Source))
	}
	build := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("/analysis/analyze-batch", q), nil)
	}
	err := c.call(ctx, call{op: "analyze-batch", timeout: c.analysisTimeout, build: build}, &out)
	return out, err
}

func (c *Client) AggregateSummary(ctx context.Context, source types.Source) (types.AggregateSummary, error) {
	var out types.AggregateSummary
	var q url.Values
	if !source.IsAll() {
		q = url.Values{"source": {string(source)}}
	}
	err := c.call(ctx, c.get("aggregate-summary", "/results/aggregate/summary", q), &out)
	return out, err
}

// ListResults pages through stored analysis results, newest rows as the
// backend orders them. The source parameter is left out for "all sources".
func (c *Client) ListResults(ctx context.Context, req types.ResultListRequest) (types.ResultPage, error) {
	var out types.ResultPage
	q := url.Values{}
	q.Set("skip", strconv.Itoa(req.Skip))
	q.Set("limit", strconv.Itoa(req.Limit))
	if !req.Source.IsAll() {
		q.Set("source", string(req.Source))
	}
	err := c.call(ctx, c.get("list-results", "/results/list/all", q), &out)
	return out, err
}

func (c *Client) Result(ctx context.Context, resultID int) (types.ResultDetail, error) {
	var out types.ResultDetail
	err := c.call(ctx, c.get("result", "/results/"+strconv.Itoa(resultID), nil), &out)
	return out, err
}

func (c *Client) ResultForConversation(ctx context.Context, conversationID int) (types.ResultDetail, error) {
	var out types.ResultDetail
	err := c.call(ctx, c.get("conversation-result", "/results/conversation/"+strconv.Itoa(conversationID), nil), &out)
	return out, err
}

// AnalyzeConversation runs (or returns the stored) analysis of one
// conversation. Like the batch it is never retried.
func (c *Client) AnalyzeConversation(ctx context.Context, conversationID int) (types.ConversationAnalysis, error) {
	var out types.ConversationAnalysis
	path := "/analysis/analyze/" + strconv.Itoa(conversationID)
	build := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path, nil), nil)
	}
	err := c.call(ctx, call{op: "analyze-conversation", timeout: c.analysisTimeout, build: build}, &out)
	return out, err
}

func (c *Client) AnalysisStatus(ctx context.Context, conversationID int) (types.AnalysisStatus, error) {
	var out types.AnalysisStatus
	err := c.call(ctx, c.get("analysis-status", "/analysis/status/"+strconv.Itoa(conversationID), nil), &out)
	return out, err
}

func (c *Client) Health(ctx context.Context) (types.Health, error) {
	var out types.Health
	err := c.call(ctx, c.get("health", "/health", nil), &out)
	return out, err
}

func (c *Client) EngineConfig(ctx context.Context) (types.EngineConfig, error) {
	var out types.EngineConfig
	err := c.call(ctx, c.get("config", "/config", nil), &out)
	return out, err
}

// --------------------------------------------
// Plumbing
// --------------------------------------------

type call struct {
	op      string
	timeout time.Duration
	retry   bool
	build   func(ctx context.Context) (*http.Request, error)
}

// get is retried on transport failures and 5xx; POSTs never are.
func (c *Client) get(op, path string, q url.Values) call {
	return call{
		op:      op,
		timeout: c.httpTimeout,
		retry:   true,
		build: func(ctx context.Context) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path, q), nil)
		},
	}
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// call runs one contract. A zero timeout leaves only the caller's context
// in charge.
func (c *Client) call(ctx context.Context, cl call, target interface{}) error {
	var cancel context.CancelFunc
	if cl.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, cl.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	log := c.log.WithField("op", cl.op)

	var lastErr error
	op := func() error {
		err := c.attempt(ctx, cl, target)
		lastErr = err
		if err == nil {
			return nil
		}
		if !cl.retry || !retryable(err) {
			return backoff.Permanent(err)
		}
		log.WithField("error", err.Error()).Warn("request failed, retrying")
		return err
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if cl.retry && c.retryMaxElapsed > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.MaxElapsedTime = c.retryMaxElapsed
		b = eb
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if lastErr == nil {
			lastErr = &apperr.TransportError{Op: cl.op, Err: err}
		}
		return lastErr
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, cl call, target interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return c.transportErr(ctx, cl, err)
		}
	}
	req, err := cl.build(ctx)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", cl.op, err)
	}
	reqID := uuid.New().String()
	req.Header.Set(logger.RequestIDHeader, reqID)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportErr(ctx, cl, err)
	}
	defer resp.Body.Close()

	c.log.WithField("op", cl.op).
		WithField("req_id", reqID).
		WithField("http_status", resp.StatusCode).
		WithField("duration_ms", time.Since(start).Milliseconds()).
		Debug("collaborator responded")

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if detail := extractDetail(body); detail != "" {
			return &apperr.CollaboratorError{Op: cl.op, StatusCode: resp.StatusCode, Detail: detail}
		}
		return &apperr.TransportError{Op: cl.op, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportErr(ctx, cl, err)
	}
	if target == nil {
		return nil
	}
	if err := sonic.Unmarshal(body, target); err != nil {
		return &apperr.TransportError{Op: cl.op, Err: fmt.Errorf("decode %s response: %w", cl.op, err)}
	}
	return nil
}

// transportErr phrases deadline hits the way the operator expects to read
// them ("timeout of 120000ms exceeded").
func (c *Client) transportErr(ctx context.Context, cl call, err error) error {
	if cl.timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &apperr.TransportError{Op: cl.op, Err: timeoutError{d: cl.timeout, cause: ctx.Err()}}
	}
	return &apperr.TransportError{Op: cl.op, Err: err}
}

type timeoutError struct {
	d     time.Duration
	cause error
}

func (e timeoutError) Error() string {
	return fmt.Sprintf("timeout of %dms exceeded", e.d.Milliseconds())
}

func (e timeoutError) Unwrap() error { return e.cause }

func retryable(err error) bool {
	if apperr.IsCollaborator(err) {
		return false
	}
	var te *apperr.TransportError
	if !errors.As(err, &te) {
		return false
	}
	if te.StatusCode == 0 {
		var to timeoutError
		return !errors.As(te.Err, &to)
	}
	return te.StatusCode >= 500
}

// extractDetail reads the conventional {"detail": ...} error body. String
// details are used verbatim; validation lists are joined by their "msg".
func extractDetail(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	var env struct {
		Detail interface{} `json:"detail"`
	}
	if err := sonic.Unmarshal(body, &env); err != nil {
		return ""
	}
	switch d := env.Detail.(type) {
	case string:
		return strings.TrimSpace(d)
	case []interface{}:
		var parts []string
		for _, item := range d {
			if m, ok := item.(map[string]interface{}); ok {
				if msg, ok := m["msg"].(string); ok && msg != "" {
					parts = append(parts, msg)
				}
			}
		}
		return strings.Join(parts, "; ")
	case map[string]interface{}:
		if msg, ok := d["msg"].(string); ok {
			return msg
		}
		if msg, ok := d["message"].(string); ok {
			return msg
		}
	}
	return ""
}

func filenameOr(name string, f types.Format) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return "upload." + string(f)
}
