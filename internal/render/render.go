// Package render prints component state for the terminal: pterm tables and
// bar charts for people, json or yaml for scripts.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"conversation-insights-go/internal/aggregator"
	"conversation-insights-go/internal/analysis"
	"conversation-insights-go/internal/ingestion"
	"conversation-insights-go/internal/results"
	"conversation-insights-go/internal/types"
)

const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

type Printer struct {
	w      io.Writer
	format string
}

func New(w io.Writer, format string) *Printer {
	if format == "" {
		format = FormatTable
	}
	return &Printer{w: w, format: format}
}

func (p *Printer) Structured() bool { return p.format != FormatTable }

// Encode writes v as json or yaml. yaml keys follow the json tags.
func (p *Printer) Encode(v interface{}) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal to JSON: %w", err)
	}
	switch p.format {
	case FormatJSON:
		_, err = fmt.Fprintln(p.w, string(data))
		return err
	case FormatYAML:
		var plain interface{}
		if err := sonic.Unmarshal(data, &plain); err != nil {
			return err
		}
		out, err := yaml.Marshal(plain)
		if err != nil {
			return fmt.Errorf("failed to marshal to YAML: %w", err)
		}
		_, err = p.w.Write(out)
		return err
	}
	return fmt.Errorf("unsupported format: %s (supported: json, yaml)", p.format)
}

func (p *Printer) line(s string) {
	fmt.Fprintln(p.w, s)
}

// --------------------------------------------
// Stats / ping
// --------------------------------------------

func (p *Printer) Stats(st types.Stats, banner string) error {
	if p.Structured() {
		return p.Encode(st)
	}
	p.line(pterm.Bold.Sprint(banner))
	return nil
}

type pingView struct {
	Health types.Health       `json:"health"`
	Engine types.EngineConfig `json:"engine"`
}

func (p *Printer) Ping(h types.Health, ec types.EngineConfig) error {
	if p.Structured() {
		return p.Encode(pingView{Health: h, Engine: ec})
	}
	key := "no"
	if ec.HasAPIKey {
		key = "yes"
	}
	return p.table(pterm.TableData{
		{"Backend", "Status", "Provider", "Model", "API key"},
		{"insights", h.Status, ec.Provider, ec.Model, key},
	})
}

// --------------------------------------------
// Component states
// --------------------------------------------

func (p *Printer) Upload(st ingestion.State) error {
	if p.Structured() {
		return p.Encode(st)
	}
	if st.Normalized != nil {
		p.line(pterm.Info.Sprintf("Converted sheet %q: %d rows (%d without transcript dropped)",
			st.Normalized.Sheet, st.Normalized.Rows, st.Normalized.Dropped))
	}
	p.outcome(st.Message, st.Error)
	if st.LastResult != nil && len(st.LastResult.Errors) > 0 {
		p.line(pterm.Warning.Sprintf("%d rows were rejected:", len(st.LastResult.Errors)))
		for _, e := range st.LastResult.Errors {
			p.line("  - " + e)
		}
	}
	return nil
}

func (p *Printer) Analysis(st analysis.State) error {
	if p.Structured() {
		return p.Encode(st)
	}
	p.outcome(st.Message, st.Error)
	r := st.Result
	if r == nil {
		return nil
	}
	if err := p.table(pterm.TableData{
		{"Analyzed", "Already analyzed", "Errors"},
		{fmt.Sprint(r.Analyzed), fmt.Sprint(r.AlreadyAnalyzed), fmt.Sprint(len(r.Errors))},
	}); err != nil {
		return err
	}
	for _, e := range r.Errors {
		p.line(pterm.Warning.Sprintf("conversation %d: %s", e.ConversationID, e.Error))
	}
	return nil
}

func (p *Printer) Insights(st aggregator.State) error {
	if p.Structured() {
		return p.Encode(st)
	}
	if st.Error != "" {
		p.outcome("", st.Error)
		return nil
	}
	if st.Dashboard == nil {
		p.line(pterm.Info.Sprint("Loading insights..."))
		return nil
	}
	return p.Dashboard(*st.Dashboard)
}

// Dashboard prints each panel as a horizontal bar chart of its leading
// entries followed by the full numbered list.
func (p *Printer) Dashboard(d aggregator.Dashboard) error {
	if p.Structured() {
		return p.Encode(d)
	}
	if d.IsPlaceholder() {
		p.line(pterm.Info.Sprint(d.Placeholder))
		return nil
	}
	p.line(pterm.Bold.Sprintf("Conversations analyzed: %d", d.TotalAnalyzed))
	for _, panel := range d.Panels {
		p.line("")
		p.line(pterm.Bold.Sprint(panel.Title))
		p.line(pterm.FgGray.Sprint(panel.Description))
		if len(panel.Chart) == 0 {
			p.line(panel.EmptyMessage)
			continue
		}
		chart, err := BarChart(panel.Chart)
		if err != nil {
			return err
		}
		p.line(chart)
		p.line(panel.ListTitle)
		for i, item := range panel.List {
			p.line(fmt.Sprintf("%3d. %s (%d)", i+1, item.Label, item.Count))
		}
	}
	return nil
}

// --------------------------------------------
// Per-result browsing
// --------------------------------------------

var findingHeadings = map[types.Category]string{
	types.CategoryPainPoints:       "Pain points",
	types.CategoryMediaConsumption: "Media consumption",
	types.CategoryCompellingPoints: "Compelling points",
}

func (p *Printer) Results(st results.State) error {
	if p.Structured() {
		return p.Encode(st)
	}
	if st.Error != "" {
		p.outcome("", st.Error)
		return nil
	}
	if st.Page == nil {
		return nil
	}
	return p.ResultPage(*st.Page)
}

// ResultPage prints one listing page and where it sits in the whole set.
func (p *Printer) ResultPage(page types.ResultPage) error {
	if p.Structured() {
		return p.Encode(page)
	}
	if len(page.Results) == 0 {
		p.line(pterm.Info.Sprint("No analysis results found"))
		return nil
	}
	data := pterm.TableData{{"Result", "Conversation", "Created", "Summary"}}
	for _, r := range page.Results {
		data = append(data, []string{fmt.Sprint(r.ResultID), fmt.Sprint(r.ConversationID), r.CreatedAt, r.Summary})
	}
	if err := p.table(data); err != nil {
		return err
	}
	p.line(pterm.FgGray.Sprintf("Showing %d-%d of %d", page.Skip+1, page.Skip+len(page.Results), page.Total))
	return nil
}

// ResultDetail prints the findings of one stored analysis, grouped by
// category, with the engine's qualifier in parentheses.
func (p *Printer) ResultDetail(d types.ResultDetail) error {
	if p.Structured() {
		return p.Encode(d)
	}
	if err := p.table(pterm.TableData{
		{"Result", "Conversation", "Source", "Confidence", "Created"},
		{fmt.Sprint(d.ResultID), fmt.Sprint(d.ConversationID), d.ConversationSource, fmt.Sprintf("%.2f", d.ConfidenceScore), d.CreatedAt},
	}); err != nil {
		return err
	}
	p.findings(d.Analysis)
	return nil
}

// ConversationAnalysis prints the outcome of analyzing a single conversation.
func (p *Printer) ConversationAnalysis(st analysis.State) error {
	if p.Structured() {
		return p.Encode(st)
	}
	p.outcome(st.Message, st.Error)
	if st.Conversation == nil {
		return nil
	}
	p.line(pterm.FgGray.Sprintf("Result %d", st.Conversation.ResultID))
	p.findings(st.Conversation.Analysis)
	return nil
}

func (p *Printer) AnalysisStatus(conversationID int, st types.AnalysisStatus) error {
	if p.Structured() {
		return p.Encode(st)
	}
	if !st.Analyzed {
		p.line(pterm.Info.Sprintf("Conversation %d has not been analyzed", conversationID))
		return nil
	}
	p.line(pterm.Success.Sprintf("Conversation %d analyzed as result %d (%s)", conversationID, st.ResultID, st.CreatedAt))
	return nil
}

func (p *Printer) findings(a types.Analysis) {
	if a.Summary != "" {
		p.line("")
		p.line(pterm.Bold.Sprint("Summary"))
		p.line(a.Summary)
	}
	for _, c := range types.Categories {
		items := a.Findings(c)
		p.line("")
		p.line(pterm.Bold.Sprintf("%s (%d)", findingHeadings[c], len(items)))
		for _, f := range items {
			if f.Detail != "" {
				p.line(fmt.Sprintf("  - %s (%s)", f.Text, f.Detail))
				continue
			}
			p.line("  - " + f.Text)
		}
	}
}

// BarChart renders chart points as horizontal bars labelled with their
// (already truncated) names.
func BarChart(points []aggregator.ChartPoint) (string, error) {
	bars := make(pterm.Bars, 0, len(points))
	for _, pt := range points {
		bars = append(bars, pterm.Bar{Label: pt.Name, Value: pt.Count})
	}
	return pterm.DefaultBarChart.
		WithHorizontal().
		WithShowValue().
		WithBars(bars).
		Srender()
}

func (p *Printer) outcome(message, errMsg string) {
	if errMsg != "" {
		p.line(pterm.Error.Sprint(errMsg))
	}
	if message != "" {
		p.line(pterm.Success.Sprint(message))
	}
}

func (p *Printer) table(data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	p.line(strings.TrimRight(out, "\n"))
	return nil
}
