// internal/types/models.go
package types

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// --------------------------------------------
// Sources and file formats
// --------------------------------------------

// Source is the origin system of a conversation transcript. The empty
// Source is the "all sources" filter.
type Source string

const (
	SourceAll        Source = ""
	SourceGong       Source = "gong"
	SourceSalesforce Source = "salesforce"
	SourcePlanhat    Source = "planhat"
	SourceOther      Source = "other"
)

// Sources lists the recognized sources in selector order.
var Sources = []Source{SourceGong, SourceSalesforce, SourcePlanhat, SourceOther}

// ParseSource accepts a recognized source name (any case, surrounding space
// ignored). The empty string parses to SourceAll.
func ParseSource(s string) (Source, error) {
	v := Source(strings.ToLower(strings.TrimSpace(s)))
	if v == SourceAll {
		return SourceAll, nil
	}
	for _, known := range Sources {
		if v == known {
			return v, nil
		}
	}
	return SourceAll, fmt.Errorf("unknown source %q (want gong, salesforce, planhat or other)", s)
}

func (s Source) IsAll() bool { return s == SourceAll }

// Format is the declared content shape of an uploaded file.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown file type %q (want csv or json)", s)
}

// FormatFromFilename infers the format from a .csv or .json suffix.
func FormatFromFilename(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return FormatCSV, true
	case ".json":
		return FormatJSON, true
	}
	return "", false
}

// --------------------------------------------
// Upload contract
// --------------------------------------------

// File is a user-selected or dropped file, read whole into memory.
type File struct {
	Name    string
	Payload []byte
}

type UploadRequest struct {
	Filename string
	Payload  []byte
	Source   Source
	Format   Format
}

type UploadResult struct {
	Message  string   `json:"message,omitempty"`
	Uploaded int      `json:"uploaded"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

type Stats struct {
	TotalConversations int            `json:"total_conversations"`
	BySource           map[string]int `json:"by_source"`
}

// --------------------------------------------
// Batch analysis contract
// --------------------------------------------

const (
	DefaultAnalysisLimit = 100
	MinAnalysisLimit     = 1
	MaxAnalysisLimit     = 1000
)

type AnalysisRunRequest struct {
	Source Source
	Limit  int
}

type ItemStatus struct {
	ConversationID int    `json:"conversation_id"`
	Status         string `json:"status"`
	ResultID       int    `json:"result_id,omitempty"`
}

type ItemError struct {
	ConversationID int    `json:"conversation_id"`
	Error          string `json:"error"`
}

type AnalysisRunResult struct {
	Message         string       `json:"message,omitempty"`
	Analyzed        int          `json:"analyzed"`
	AlreadyAnalyzed int          `json:"already_analyzed"`
	Results         []ItemStatus `json:"results,omitempty"`
	Errors          []ItemError  `json:"errors"`
}

// --------------------------------------------
// Aggregate summary contract
// --------------------------------------------

// RankedItem is one (label, count) pair of a ranked category list. The wire
// form names the label "point" or "media" depending on the category.
type RankedItem struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

func (r *RankedItem) UnmarshalJSON(b []byte) error {
	var aux struct {
		Label *string `json:"label"`
		Point *string `json:"point"`
		Media *string `json:"media"`
		Count int     `json:"count"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.Count = aux.Count
	switch {
	case aux.Point != nil:
		r.Label = *aux.Point
	case aux.Media != nil:
		r.Label = *aux.Media
	case aux.Label != nil:
		r.Label = *aux.Label
	default:
		r.Label = ""
	}
	return nil
}

type CategorySummary struct {
	TotalUnique int          `json:"total_unique"`
	Top         []RankedItem `json:"top"`
}

type AggregateSummary struct {
	TotalAnalyzed    int             `json:"total_analyzed"`
	PainPoints       CategorySummary `json:"pain_points"`
	MediaConsumption CategorySummary `json:"media_consumption"`
	CompellingPoints CategorySummary `json:"compelling_points"`
}

// Category names one of the three ranked finding lists.
type Category string

const (
	CategoryPainPoints       Category = "painPoints"
	CategoryMediaConsumption Category = "mediaConsumption"
	CategoryCompellingPoints Category = "compellingPoints"
)

// Categories is the fixed display order.
var Categories = []Category{CategoryPainPoints, CategoryMediaConsumption, CategoryCompellingPoints}

// Top returns the ranked list for a category, in collaborator order.
func (s AggregateSummary) Top(c Category) []RankedItem {
	switch c {
	case CategoryPainPoints:
		return s.PainPoints.Top
	case CategoryMediaConsumption:
		return s.MediaConsumption.Top
	case CategoryCompellingPoints:
		return s.CompellingPoints.Top
	}
	return nil
}

// --------------------------------------------
// Per-result browsing
// --------------------------------------------

const (
	DefaultResultPageSize = 100
	MaxResultPageSize     = 1000
)

type ResultListRequest struct {
	Source Source
	Skip   int
	Limit  int
}

// ResultListItem is one row of the paginated result listing. Summary is
// shortened by the backend.
type ResultListItem struct {
	ResultID       int    `json:"result_id"`
	ConversationID int    `json:"conversation_id"`
	Summary        string `json:"summary"`
	CreatedAt      string `json:"created_at"`
}

type ResultPage struct {
	Total   int              `json:"total"`
	Skip    int              `json:"skip"`
	Limit   int              `json:"limit"`
	Results []ResultListItem `json:"results"`
}

// Finding is one extracted item of a single analysis: a pain point, a media
// source or a compelling point. Detail carries the qualifier the engine
// attached (severity, media type or category).
type Finding struct {
	Text   string `json:"text"`
	Detail string `json:"detail,omitempty"`
}

// UnmarshalJSON accepts plain strings as well as the engine's objects,
// {point, severity}, {name, type} and {point, category}.
func (f *Finding) UnmarshalJSON(b []byte) error {
	var plain string
	if err := json.Unmarshal(b, &plain); err == nil {
		*f = Finding{Text: plain}
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*f = Finding{
		Text:   firstString(obj, "point", "name", "text", "source"),
		Detail: firstString(obj, "severity", "type", "category", "detail"),
	}
	if f.Text == "" {
		f.Text = strings.TrimSpace(string(b))
	}
	return nil
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// Analysis is the extraction stored for one conversation.
type Analysis struct {
	PainPoints       []Finding `json:"pain_points"`
	MediaConsumption []Finding `json:"media_consumption"`
	CompellingPoints []Finding `json:"compelling_points"`
	Summary          string    `json:"summary"`
}

// Findings returns the items of one category.
func (a Analysis) Findings(c Category) []Finding {
	switch c {
	case CategoryPainPoints:
		return a.PainPoints
	case CategoryMediaConsumption:
		return a.MediaConsumption
	case CategoryCompellingPoints:
		return a.CompellingPoints
	}
	return nil
}

type ResultDetail struct {
	ResultID           int     `json:"result_id"`
	ConversationID     int     `json:"conversation_id"`
	ConversationSource string  `json:"conversation_source,omitempty"`
	ConfidenceScore    float64 `json:"confidence_score"`
	CreatedAt          string  `json:"created_at"`
	Analysis
}

// ConversationAnalysis answers a single-conversation analysis request. The
// message tells a fresh run ("Analysis completed") from a stored one
// ("Analysis already exists").
type ConversationAnalysis struct {
	Message  string   `json:"message"`
	ResultID int      `json:"result_id"`
	Analysis Analysis `json:"analysis"`
}

type AnalysisStatus struct {
	Analyzed  bool   `json:"analyzed"`
	ResultID  int    `json:"result_id,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// --------------------------------------------
// Collaborator metadata
// --------------------------------------------

type Health struct {
	Status string `json:"status"`
}

type EngineConfig struct {
	Provider  string `json:"provider"`
	Model     string `json:"model,omitempty"`
	HasAPIKey bool   `json:"has_api_key,omitempty"`
}
