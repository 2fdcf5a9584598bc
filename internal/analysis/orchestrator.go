// Package analysis owns the batch-analysis panel: the source filter, the
// conversation limit and the summary of the last run.
package analysis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"conversation-insights-go/internal/apperr"
	"conversation-insights-go/internal/logger"
	"conversation-insights-go/internal/types"
)

const fallbackError = "Analysis failed"

const defaultConversationMessage = "Analysis completed"

// Analyzer is the analysis half of the backend contract.
type Analyzer interface {
	AnalyzeBatch(ctx context.Context, req types.AnalysisRunRequest) (types.AnalysisRunResult, error)
	AnalyzeConversation(ctx context.Context, conversationID int) (types.ConversationAnalysis, error)
	AnalysisStatus(ctx context.Context, conversationID int) (types.AnalysisStatus, error)
}

type State struct {
	Source  types.Source             `json:"source"`
	Limit   int                      `json:"limit"`
	Pending bool                     `json:"pending"`
	Message string                   `json:"message,omitempty"`
	Error   string                   `json:"error,omitempty"`
	Result  *types.AnalysisRunResult `json:"result,omitempty"`

	Conversation *types.ConversationAnalysis `json:"conversation,omitempty"`
}

type Orchestrator struct {
	client Analyzer
	log    *logger.Logger

	mu      sync.Mutex
	source  types.Source
	limit   int
	pending bool
	message string
	errMsg  string
	result  *types.AnalysisRunResult
	single  *types.ConversationAnalysis
}

func New(client Analyzer, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.New()
	}
	return &Orchestrator{
		client: client,
		log:    log.Component("analysis"),
		limit:  types.DefaultAnalysisLimit,
	}
}

// SanitizeLimit turns free-form limit input into a usable batch size. Input
// without a leading integer, or a zero, means the default of 100; anything
// else is clamped into [1, 1000]. It never fails.
func SanitizeLimit(input string) int {
	s := strings.TrimSpace(input)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return types.DefaultAnalysisLimit
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		// only out-of-range remains possible here
		if s[0] == '-' {
			return types.MinAnalysisLimit
		}
		return types.MaxAnalysisLimit
	}
	return clampLimit(n)
}

func clampLimit(n int) int {
	switch {
	case n == 0:
		return types.DefaultAnalysisLimit
	case n < types.MinAnalysisLimit:
		return types.MinAnalysisLimit
	case n > types.MaxAnalysisLimit:
		return types.MaxAnalysisLimit
	}
	return n
}

func (o *Orchestrator) SetSource(s types.Source) {
	o.mu.Lock()
	o.source = s
	o.mu.Unlock()
}

// SetLimitInput stores the sanitized form of raw limit input and returns it.
func (o *Orchestrator) SetLimitInput(input string) int {
	n := SanitizeLimit(input)
	o.mu.Lock()
	o.limit = n
	o.mu.Unlock()
	return n
}

func (o *Orchestrator) SetLimit(n int) int {
	n = clampLimit(n)
	o.mu.Lock()
	o.limit = n
	o.mu.Unlock()
	return n
}

// RunBatch submits one bounded analysis run. There is no continuation: the
// operator re-runs to process more conversations.
func (o *Orchestrator) RunBatch(ctx context.Context) (types.AnalysisRunResult, error) {
	o.mu.Lock()
	if o.pending {
		o.mu.Unlock()
		return types.AnalysisRunResult{}, apperr.ErrBusy
	}
	o.pending = true
	o.message, o.errMsg, o.result, o.single = "", "", nil, nil
	req := types.AnalysisRunRequest{Source: o.source, Limit: o.limit}
	o.mu.Unlock()

	log := o.log.WithField("source", req.Source).WithField("limit", req.Limit)
	log.Info("starting batch analysis")

	res, err := o.client.AnalyzeBatch(ctx, req)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = false
	if err != nil {
		o.errMsg = apperr.Display(err, fallbackError)
		log.WithField("error", err.Error()).Warn("batch analysis failed")
		return res, err
	}
	o.result = &res
	o.message = CompleteMessage(res)
	log.WithField("analyzed", res.Analyzed).
		WithField("already_analyzed", res.AlreadyAnalyzed).
		WithField("errors", len(res.Errors)).
		Info("batch analysis complete")
	return res, nil
}

// AnalyzeConversation analyzes one conversation by id. It shares the pending
// flag with RunBatch, so only one analysis request is in flight at a time.
func (o *Orchestrator) AnalyzeConversation(ctx context.Context, conversationID int) (types.ConversationAnalysis, error) {
	if conversationID <= 0 {
		err := apperr.Validationf("Conversation ID must be a positive number, got %d", conversationID)
		o.mu.Lock()
		o.message, o.errMsg = "", apperr.Display(err, fallbackError)
		o.mu.Unlock()
		return types.ConversationAnalysis{}, err
	}

	o.mu.Lock()
	if o.pending {
		o.mu.Unlock()
		return types.ConversationAnalysis{}, apperr.ErrBusy
	}
	o.pending = true
	o.message, o.errMsg, o.result, o.single = "", "", nil, nil
	o.mu.Unlock()

	log := o.log.WithField("conversation_id", conversationID)
	log.Info("analyzing conversation")

	res, err := o.client.AnalyzeConversation(ctx, conversationID)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = false
	if err != nil {
		o.errMsg = apperr.Display(err, fallbackError)
		log.WithField("error", err.Error()).Warn("conversation analysis failed")
		return res, err
	}
	o.single = &res
	o.message = res.Message
	if o.message == "" {
		o.message = defaultConversationMessage
	}
	log.WithField("result_id", res.ResultID).Info(o.message)
	return res, nil
}

// Status reports whether a conversation has a stored analysis. It does not
// touch the panel state.
func (o *Orchestrator) Status(ctx context.Context, conversationID int) (types.AnalysisStatus, error) {
	if conversationID <= 0 {
		return types.AnalysisStatus{}, apperr.Validationf("Conversation ID must be a positive number, got %d", conversationID)
	}
	return o.client.AnalysisStatus(ctx, conversationID)
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return State{
		Source:  o.source,
		Limit:   o.limit,
		Pending: o.pending,
		Message: o.message,
		Error:   o.errMsg,
		Result:  o.result,

		Conversation: o.single,
	}
}

// CompleteMessage is shown after every successful run; skipped and failed
// items are reported separately.
func CompleteMessage(r types.AnalysisRunResult) string {
	return fmt.Sprintf("Analysis complete! Analyzed %d conversations.", r.Analyzed)
}
