package ingestion

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/bytedance/sonic"

	"conversation-insights-go/internal/apperr"
	"conversation-insights-go/internal/types"
)

var transcriptFields = []string{"transcript", "text", "content"}

// Hint is the format requirement shown next to the file picker.
func Hint(f types.Format) string {
	if f == types.FormatJSON {
		return `JSON should have "transcript" or "text" field`
	}
	return `CSV should have a "transcript" column`
}

// ValidateShape checks that payload is non-empty and looks like one of the two
// recognized content shapes. Rows are not inspected beyond that; the backend
// owns per-row validation.
func ValidateShape(f types.Format, payload []byte) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return apperr.Validation("The selected file is empty")
	}
	switch f {
	case types.FormatCSV:
		return validateCSV(payload)
	case types.FormatJSON:
		return validateJSON(payload)
	}
	return apperr.Validationf("Unsupported file type %q", f)
}

func validateCSV(payload []byte) error {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(payload, []byte("\xef\xbb\xbf"))))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil && err != io.EOF {
		return apperr.MarkValidation(err, "File is not valid CSV")
	}
	for _, h := range header {
		if strings.TrimSpace(h) == "transcript" {
			return nil
		}
	}
	return apperr.Validation(Hint(types.FormatCSV))
}

func validateJSON(payload []byte) error {
	var doc interface{}
	if err := sonic.Unmarshal(payload, &doc); err != nil {
		return apperr.MarkValidation(err, "File is not valid JSON")
	}
	var items []interface{}
	switch v := doc.(type) {
	case map[string]interface{}:
		items = []interface{}{v}
	case []interface{}:
		items = v
	default:
		return apperr.Validation("JSON must be an object or an array of objects")
	}
	for _, it := range items {
		obj, ok := it.(map[string]interface{})
		if !ok {
			continue
		}
		for _, k := range transcriptFields {
			if hasValue(obj[k]) {
				return nil
			}
		}
	}
	return apperr.Validation(Hint(types.FormatJSON))
}

func hasValue(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(t) != ""
	case bool:
		return t
	case float64:
		return t != 0
	}
	return true
}
