package aggregator

import (
	"unicode/utf8"

	"conversation-insights-go/internal/types"
)

const (
	ChartLimit    = 10
	MaxLabelRunes = 40
	Ellipsis      = "..."

	Placeholder = "No analysis results available yet. Please upload data and run analysis first."
)

type ChartPoint struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Panel is one category of the dashboard: a compact chart of the leading
// entries and the full ranked list, in the same order.
type Panel struct {
	Category     types.Category     `json:"category"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	ListTitle    string             `json:"list_title"`
	Chart        []ChartPoint       `json:"chart"`
	EmptyMessage string             `json:"empty_message,omitempty"`
	List         []types.RankedItem `json:"list"`
}

// Dashboard is either a placeholder (nothing analyzed yet) or three panels.
type Dashboard struct {
	Placeholder   string  `json:"placeholder,omitempty"`
	TotalAnalyzed int     `json:"total_analyzed"`
	Panels        []Panel `json:"panels,omitempty"`
}

func (d Dashboard) IsPlaceholder() bool { return d.Placeholder != "" }

type panelText struct {
	title, description, listTitle, empty string
}

var panelTexts = map[types.Category]panelText{
	types.CategoryPainPoints: {
		title:       "Top Pain Points",
		description: "Most frequently mentioned problems and challenges",
		listTitle:   "All Pain Points:",
		empty:       "No pain points found",
	},
	types.CategoryMediaConsumption: {
		title:       "Media Consumption",
		description: "Media sources and platforms customers mentioned",
		listTitle:   "All Media Sources:",
		empty:       "No media consumption data found",
	},
	types.CategoryCompellingPoints: {
		title:       "Compelling Points",
		description: "Features and benefits that interested customers",
		listTitle:   "All Compelling Points:",
		empty:       "No compelling points found",
	},
}

// BuildDashboard reshapes a summary for display. The collaborator's ranking is
// kept as delivered; nothing is re-sorted.
func BuildDashboard(s *types.AggregateSummary) Dashboard {
	if s == nil || s.TotalAnalyzed == 0 {
		return Dashboard{Placeholder: Placeholder}
	}
	d := Dashboard{TotalAnalyzed: s.TotalAnalyzed, Panels: make([]Panel, 0, len(types.Categories))}
	for _, c := range types.Categories {
		d.Panels = append(d.Panels, buildPanel(c, s.Top(c)))
	}
	return d
}

func buildPanel(c types.Category, top []types.RankedItem) Panel {
	txt := panelTexts[c]
	p := Panel{
		Category:    c,
		Title:       txt.title,
		Description: txt.description,
		ListTitle:   txt.listTitle,
		Chart:       ChartView(top),
		List:        append([]types.RankedItem{}, top...),
	}
	if len(p.Chart) == 0 {
		p.EmptyMessage = txt.empty
	}
	return p
}

// ChartView takes the first ChartLimit entries with display-truncated labels.
func ChartView(top []types.RankedItem) []ChartPoint {
	n := len(top)
	if n > ChartLimit {
		n = ChartLimit
	}
	out := make([]ChartPoint, 0, n)
	for _, it := range top[:n] {
		out = append(out, ChartPoint{Name: TruncateLabel(it.Label), Count: it.Count})
	}
	return out
}

// TruncateLabel shortens labels longer than MaxLabelRunes to exactly
// MaxLabelRunes runes, the last three being the ellipsis.
func TruncateLabel(s string) string {
	if utf8.RuneCountInString(s) <= MaxLabelRunes {
		return s
	}
	keep := MaxLabelRunes - len(Ellipsis)
	r := []rune(s)
	return string(r[:keep]) + Ellipsis
}
