// Package ingestion owns the upload panel: the selected file, the declared
// source and format, and the outcome of the last submission.
package ingestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"conversation-insights-go/internal/apperr"
	"conversation-insights-go/internal/dataset"
	"conversation-insights-go/internal/logger"
	"conversation-insights-go/internal/types"
)

const (
	fallbackError  = "Upload failed"
	noNewMessage   = "Upload completed with no new conversations"
	refreshTimeout = 30 * time.Second
)

// Uploader is the upload half of the backend contract.
type Uploader interface {
	Upload(ctx context.Context, req types.UploadRequest) (types.UploadResult, error)
}

// RefreshFunc is invoked after every successful upload. Its error is logged
// and otherwise ignored.
type RefreshFunc func(ctx context.Context) error

type State struct {
	FileName   string              `json:"file_name,omitempty"`
	FileSize   int                 `json:"file_size,omitempty"`
	Source     types.Source        `json:"source"`
	Format     types.Format        `json:"format"`
	Hint       string              `json:"hint"`
	Pending    bool                `json:"pending"`
	Message    string              `json:"message,omitempty"`
	Error      string              `json:"error,omitempty"`
	LastResult *types.UploadResult `json:"last_result,omitempty"`
	Normalized *dataset.Report     `json:"normalized,omitempty"`
}

type Controller struct {
	client  Uploader
	refresh RefreshFunc
	log     *logger.Logger

	mu         sync.Mutex
	file       *types.File
	normalized *dataset.Report
	source     types.Source
	format     types.Format
	pending    bool
	message    string
	errMsg     string
	last       *types.UploadResult

	notifications sync.WaitGroup
}

func New(client Uploader, refresh RefreshFunc, log *logger.Logger) *Controller {
	if log == nil {
		log = logger.New()
	}
	return &Controller{
		client:  client,
		refresh: refresh,
		log:     log.Component("ingestion"),
		source:  types.SourceGong,
		format:  types.FormatCSV,
	}
}

func (c *Controller) SetSource(s types.Source) {
	c.mu.Lock()
	c.source = s
	c.mu.Unlock()
}

func (c *Controller) SetFormat(f types.Format) {
	c.mu.Lock()
	c.format = f
	c.mu.Unlock()
}

// Select is the click-to-browse path: the explicit format selector is trusted
// and nothing is inferred from the file name. An Excel export is still
// converted, and the format follows the conversion to csv.
func (c *Controller) Select(f types.File) error {
	return c.setFile(f, false)
}

// Drop is the drag-and-drop path: a .csv or .json name overrides the declared
// format, and an Excel export is normalized to CSV.
func (c *Controller) Drop(f types.File) error {
	return c.setFile(f, true)
}

func (c *Controller) setFile(f types.File, infer bool) error {
	f, rep, err := normalize(f)

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyFileLocked(f, rep, err, infer)
}

// normalize converts workbooks to CSV outside the lock.
func normalize(f types.File) (types.File, *dataset.Report, error) {
	if !dataset.IsWorkbook(f.Name) {
		return f, nil, nil
	}
	out, r, err := dataset.WorkbookToCSV(f.Payload)
	if err != nil {
		return f, nil, apperr.MarkValidation(err, "Could not read workbook")
	}
	return types.File{Name: dataset.CSVName(f.Name), Payload: out}, &r, nil
}

func (c *Controller) applyFileLocked(f types.File, rep *dataset.Report, normErr error, infer bool) error {
	if normErr != nil {
		c.file, c.normalized = nil, nil
		c.message, c.errMsg = "", apperr.Display(normErr, fallbackError)
		return normErr
	}
	c.file = &f
	c.normalized = rep
	switch {
	case rep != nil:
		c.format = types.FormatCSV
	case infer:
		if format, ok := types.FormatFromFilename(f.Name); ok {
			c.format = format
		}
	}
	c.message, c.errMsg = "", ""
	return nil
}

// Submit uploads the selected file. A missing file fails before any request;
// a second call while one is in flight returns apperr.ErrBusy.
func (c *Controller) Submit(ctx context.Context) (types.UploadResult, error) {
	c.mu.Lock()
	req, err := c.beginLocked()
	c.mu.Unlock()
	if err != nil {
		return types.UploadResult{}, err
	}
	return c.send(ctx, req)
}

// SubmitFile sets the file, source and format and submits them as one step,
// so concurrent callers sharing the controller cannot mix each other's
// selections. An empty format means "infer from the name" (the Drop path).
func (c *Controller) SubmitFile(ctx context.Context, f types.File, source types.Source, format types.Format) (types.UploadResult, error) {
	f, rep, normErr := normalize(f)

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return types.UploadResult{}, apperr.ErrBusy
	}
	c.source = source
	if format != "" {
		c.format = format
	}
	if err := c.applyFileLocked(f, rep, normErr, format == ""); err != nil {
		c.mu.Unlock()
		return types.UploadResult{}, err
	}
	req, err := c.beginLocked()
	c.mu.Unlock()
	if err != nil {
		return types.UploadResult{}, err
	}
	return c.send(ctx, req)
}

// beginLocked validates the selection and marks the controller pending.
func (c *Controller) beginLocked() (types.UploadRequest, error) {
	if c.pending {
		return types.UploadRequest{}, apperr.ErrBusy
	}
	if c.file == nil {
		c.message, c.errMsg = "", apperr.Display(apperr.ErrMissingFile, fallbackError)
		return types.UploadRequest{}, apperr.ErrMissingFile
	}
	req := types.UploadRequest{
		Filename: c.file.Name,
		Payload:  c.file.Payload,
		Source:   c.source,
		Format:   c.format,
	}
	if err := ValidateShape(req.Format, req.Payload); err != nil {
		c.message, c.errMsg = "", apperr.Display(err, fallbackError)
		return types.UploadRequest{}, err
	}
	c.pending = true
	c.message, c.errMsg = "", ""
	return req, nil
}

func (c *Controller) send(ctx context.Context, req types.UploadRequest) (types.UploadResult, error) {
	log := c.log.WithField("file", req.Filename).WithField("source", req.Source).WithField("format", req.Format)
	log.WithField("size", len(req.Payload)).Info("uploading conversations")

	res, err := c.client.Upload(ctx, req)

	c.mu.Lock()
	c.pending = false
	if err != nil {
		c.errMsg = apperr.Display(err, fallbackError)
		c.mu.Unlock()
		log.WithField("error", err.Error()).Warn("upload failed")
		return res, err
	}
	c.message = UploadMessage(res)
	c.file, c.normalized = nil, nil
	c.last = &res
	c.mu.Unlock()

	log.WithField("uploaded", res.Uploaded).WithField("skipped", res.Skipped).Info("upload complete")
	c.notify(ctx)
	return res, nil
}

// notify runs the refresh callback without waiting for it.
func (c *Controller) notify(ctx context.Context) {
	if c.refresh == nil {
		return
	}
	c.notifications.Add(1)
	go func() {
		defer c.notifications.Done()
		defer func() {
			if r := recover(); r != nil {
				c.log.WithField("panic", fmt.Sprint(r)).Error("stats refresh panicked")
			}
		}()
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		if err := c.refresh(rctx); err != nil {
			c.log.WithError(err).Warn("stats refresh failed")
		}
	}()
}

// Wait blocks until outstanding refresh callbacks have returned.
func (c *Controller) Wait() {
	c.notifications.Wait()
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := State{
		Source:     c.source,
		Format:     c.format,
		Hint:       Hint(c.format),
		Pending:    c.pending,
		Message:    c.message,
		Error:      c.errMsg,
		LastResult: c.last,
		Normalized: c.normalized,
	}
	if c.file != nil {
		s.FileName = c.file.Name
		s.FileSize = len(c.file.Payload)
	}
	return s
}

// UploadMessage renders the success line for an upload result.
func UploadMessage(r types.UploadResult) string {
	if r.Uploaded <= 0 {
		return noNewMessage
	}
	noun := "conversation"
	if r.Uploaded > 1 {
		noun += "s"
	}
	msg := fmt.Sprintf("Successfully uploaded %d %s!", r.Uploaded, noun)
	if r.Skipped > 0 {
		msg += fmt.Sprintf(" (%d skipped - already exist)", r.Skipped)
	}
	return msg
}
