// Package console serves the shell over HTTP for a browser front end. Every
// endpoint answers with the state snapshot of the component it drove.
package console

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cockroachdb/errors"

	"conversation-insights-go/internal/apperr"
	"conversation-insights-go/internal/logger"
	"conversation-insights-go/internal/shell"
	"conversation-insights-go/internal/types"
)

const maxUploadBytes = 64 << 20

type Server struct {
	shell *shell.Shell
	log   *logger.Logger
}

func New(sh *shell.Shell, log *logger.Logger) *Server {
	if log == nil {
		log = logger.New()
	}
	return &Server{shell: sh, log: log.Component("console")}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// health
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		s.log.WithRequest(r).Debug("health check")
		fmt.Fprint(w, "ok")
	})

	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("POST /api/upload", s.handleUpload)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/insights", s.handleInsights)

	// per-result browsing
	mux.HandleFunc("GET /api/results", s.handleResults)
	mux.HandleFunc("GET /api/results/{id}", s.handleResult)
	mux.HandleFunc("GET /api/conversations/{id}/result", s.handleConversationResult)
	mux.HandleFunc("POST /api/conversations/{id}/analyze", s.handleAnalyzeConversation)
	mux.HandleFunc("GET /api/conversations/{id}/status", s.handleAnalysisStatus)
	return mux
}

type statsResponse struct {
	Stats  types.Stats `json:"stats"`
	Banner string      `json:"banner"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st := s.shell.RefreshStats(r.Context())
	s.writeJSON(w, r, http.StatusOK, statsResponse{Stats: st, Banner: s.shell.Banner()})
}

// handleUpload takes multipart (file, source, format). Without a format the
// file is treated as dropped and the format is inferred from its name. The
// selection and the submit happen in one controller call so concurrent
// requests cannot swap files.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "upload")
	ctrl := s.shell.Ingestion

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		reqLog.WithField("error", err.Error()).Warn("bad multipart body")
		http.Error(w, "invalid multipart body", http.StatusBadRequest)
		return
	}
	source := types.SourceGong
	if src := r.FormValue("source"); src != "" {
		parsed, err := types.ParseSource(src)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		source = parsed
	}
	var format types.Format
	if f := r.FormValue("format"); f != "" {
		parsed, err := types.ParseFormat(f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		format = parsed
	}

	fh, header, err := r.FormFile("file")
	if err != nil {
		// no file: let the controller report it the way the panel does
		ctrl.SetSource(source)
		_, err = ctrl.Submit(r.Context())
		s.writeJSON(w, r, statusFor(err), ctrl.State())
		return
	}
	defer fh.Close()
	payload, err := io.ReadAll(fh)
	if err != nil {
		http.Error(w, "failed to read file", http.StatusBadRequest)
		return
	}

	file := types.File{Name: header.Filename, Payload: payload}
	_, err = ctrl.SubmitFile(r.Context(), file, source, format)
	if err != nil {
		reqLog.WithField("error", err.Error()).Info("upload not accepted")
	}
	s.writeJSON(w, r, statusFor(err), ctrl.State())
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	orch := s.shell.Analysis
	q := r.URL.Query()

	source, err := types.ParseSource(q.Get("source"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	orch.SetSource(source)
	if q.Has("limit") {
		orch.SetLimitInput(q.Get("limit"))
	}

	_, err = orch.RunBatch(r.Context())
	s.writeJSON(w, r, statusFor(err), orch.State())
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	agg := s.shell.Insights
	var err error
	if r.URL.Query().Has("source") {
		source, perr := types.ParseSource(r.URL.Query().Get("source"))
		if perr != nil {
			http.Error(w, perr.Error(), http.StatusBadRequest)
			return
		}
		_, err = agg.SetSource(r.Context(), source)
	} else {
		_, err = agg.Refresh(r.Context())
	}
	s.writeJSON(w, r, statusFor(err), agg.State())
}

// handleResults lists one page; skip defaults to 0 and limit to 100.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	source, err := types.ParseSource(q.Get("source"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	skip, err := intParam(q, "skip")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req := types.ResultListRequest{Source: source, Skip: skip, Limit: limit}
	_, err = s.shell.Results.Query(r.Context(), req)
	s.writeJSON(w, r, statusFor(err), s.shell.Results.State())
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	_, err := s.shell.Results.Show(r.Context(), id)
	s.writeJSON(w, r, statusFor(err), s.shell.Results.State())
}

func (s *Server) handleConversationResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	_, err := s.shell.Results.ShowConversation(r.Context(), id)
	s.writeJSON(w, r, statusFor(err), s.shell.Results.State())
}

func (s *Server) handleAnalyzeConversation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	_, err := s.shell.Analysis.AnalyzeConversation(r.Context(), id)
	s.writeJSON(w, r, statusFor(err), s.shell.Analysis.State())
}

func (s *Server) handleAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, err := s.shell.Analysis.Status(r.Context(), id)
	if err != nil {
		http.Error(w, apperr.Display(err, "Failed to fetch analysis status"), statusFor(err))
		return
	}
	s.writeJSON(w, r, http.StatusOK, st)
}

func intParam(q url.Values, name string) (int, error) {
	if !q.Has(name) {
		return 0, nil
	}
	n, err := strconv.Atoi(q.Get(name))
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.Error(w, "id must be an integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case apperr.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrBusy), errors.Is(err, apperr.ErrSuperseded):
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := sonic.ConfigStd.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.log.WithRequest(r).WithField("error", err.Error()).Error("failed to write response")
	}
}

// Serve runs srv until ctx is cancelled, then drains in-flight requests.
func Serve(ctx context.Context, srv *http.Server, log *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	log.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}

// NewHTTPServer applies the listener timeouts used by both entry points.
func NewHTTPServer(addr string, h http.Handler) *http.Server {
	// no WriteTimeout: an analyze request lasts as long as the backend run
	return &http.Server{
		Addr:        addr,
		Handler:     h,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
}
