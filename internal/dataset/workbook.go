package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"conversation-insights-go/internal/logger"
)

const (
	TranscriptColumn     = "transcript"
	ConversationIDColumn = "conversation_id"
)

// Report describes what WorkbookToCSV did to a workbook.
type Report struct {
	Sheet            string `json:"sheet"`
	SourceTranscript string `json:"source_transcript_column"`
	SourceID         string `json:"source_id_column,omitempty"`
	Rows             int    `json:"rows"`
	Dropped          int    `json:"dropped"`
}

// IsWorkbook reports whether name looks like an Excel export.
func IsWorkbook(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return true
	}
	return false
}

// CSVName swaps the workbook extension for .csv.
func CSVName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".csv"
}

// WorkbookToCSV reads the first sheet of an Excel export and re-encodes it as
// CSV the upload contract accepts: the transcript column is detected by header
// heuristics and renamed to "transcript", an id-like column becomes
// "conversation_id", and rows without transcript text are dropped.
func WorkbookToCSV(payload []byte) ([]byte, Report, error) {
	log := logger.New().WithField("component", "dataset.workbook")
	var rep Report

	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, rep, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, rep, fmt.Errorf("no sheets")
	}
	rep.Sheet = sheets[0]
	rows, err := f.GetRows(rep.Sheet)
	if err != nil {
		return nil, rep, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, rep, fmt.Errorf("no data rows")
	}

	header := rows[0]
	transcriptIdx, idIdx := detectColumns(header)
	if transcriptIdx == -1 {
		return nil, rep, fmt.Errorf("no transcript column in sheet %q (looked for transcript, text, content)", rep.Sheet)
	}
	rep.SourceTranscript = header[transcriptIdx]
	if idIdx >= 0 {
		rep.SourceID = header[idIdx]
	}
	log.WithField("transcriptIdx", transcriptIdx).WithField("idIdx", idIdx).Debug("detected workbook columns")

	outHeader := make([]string, len(header))
	for i, h := range header {
		switch i {
		case transcriptIdx:
			outHeader[i] = TranscriptColumn
		case idIdx:
			outHeader[i] = ConversationIDColumn
		default:
			outHeader[i] = normalizeHeader(h, i)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(outHeader); err != nil {
		return nil, rep, err
	}
	for _, r := range rows[1:] {
		if transcriptIdx >= len(r) || strings.TrimSpace(r[transcriptIdx]) == "" {
			rep.Dropped++
			continue
		}
		record := make([]string, len(header))
		copy(record, r)
		if err := w.Write(record); err != nil {
			return nil, rep, err
		}
		rep.Rows++
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, rep, err
	}
	if rep.Rows == 0 {
		return nil, rep, fmt.Errorf("no rows with transcript text in sheet %q", rep.Sheet)
	}

	log.WithField("rows", rep.Rows).WithField("dropped", rep.Dropped).Info("workbook normalized to csv")
	return buf.Bytes(), rep, nil
}

// detectColumns prefers a header that is exactly "transcript", then one that
// merely contains it ("Call Transcript"), then text/content.
func detectColumns(header []string) (transcriptIdx, idIdx int) {
	transcriptIdx, idIdx = -1, -1
	partial, fallback := -1, -1
	for i, h := range header {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case l == "transcript":
			if transcriptIdx == -1 {
				transcriptIdx = i
			}
		case strings.Contains(l, "transcript"):
			if partial == -1 {
				partial = i
			}
		case l == "text" || l == "content" || strings.Contains(l, "call text") || strings.Contains(l, "body"):
			if fallback == -1 {
				fallback = i
			}
		case l == "conversation_id" || l == "conversation id" || l == "call id" || l == "callid" || l == "id":
			if idIdx == -1 {
				idIdx = i
			}
		}
	}
	switch {
	case transcriptIdx != -1:
	case partial != -1:
		transcriptIdx = partial
	default:
		transcriptIdx = fallback
	}
	return transcriptIdx, idIdx
}

func normalizeHeader(h string, i int) string {
	l := strings.ToLower(strings.TrimSpace(h))
	if l == "" {
		return fmt.Sprintf("column_%d", i+1)
	}
	return strings.Join(strings.Fields(l), "_")
}
