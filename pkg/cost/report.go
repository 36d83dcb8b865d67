// Copyright 2025 The Sah Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cost

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"
)

// ReportFormat selects export_report's output encoding.
type ReportFormat string

const (
	FormatJSON     ReportFormat = "json"
	FormatCSV      ReportFormat = "csv"
	FormatMarkdown ReportFormat = "markdown"
	FormatHTML     ReportFormat = "html"
	FormatText     ReportFormat = "text"
)

// ReportOptions configures currency and date rendering.
type ReportOptions struct {
	CurrencySymbol string
	CostPrecision  int
	DateFormat     string // Go reference-time layout, not strftime
}

// DefaultReportOptions matches the $-prefixed, 4-decimal convention used
// throughout §8's worked examples.
func DefaultReportOptions() ReportOptions {
	return ReportOptions{CurrencySymbol: "$", CostPrecision: 4, DateFormat: "2006-01-02 15:04:05"}
}

// OutlierCall is an ApiCall whose cost exceeds twice the session mean.
type OutlierCall struct {
	Call ApiCall
	Cost float64
}

// Report is the composed, ordered output of ReportGenerator.GenerateReport.
type Report struct {
	Order             []string
	ExecutiveSummary  string
	CategoryBreakdown map[string]float64
	Trends            []string
	EfficiencyMetrics map[string]float64
	Outliers          []OutlierCall
}

// ReportGenerator composes an IssueCostData into a Report.
type ReportGenerator struct {
	Options ReportOptions
}

// NewReportGenerator constructs a ReportGenerator with opts, or
// DefaultReportOptions() if opts is the zero value.
func NewReportGenerator(opts ReportOptions) *ReportGenerator {
	if opts.CurrencySymbol == "" {
		opts = DefaultReportOptions()
	}
	return &ReportGenerator{Options: opts}
}

// GenerateReport composes sections in a deterministic order: executive
// summary, category breakdown, trends, efficiency metrics, outliers.
func (g *ReportGenerator) GenerateReport(data IssueCostData) Report {
	r := Report{
		Order:             []string{"executive_summary", "category_breakdown", "trends", "efficiency_metrics", "outliers"},
		CategoryBreakdown: map[string]float64{},
		EfficiencyMetrics: map[string]float64{},
	}

	r.ExecutiveSummary = fmt.Sprintf(
		"%d API call(s), %d input / %d output tokens, total cost %s",
		data.SummaryStats.TotalCalls, data.SummaryStats.TotalInputTokens, data.SummaryStats.TotalOutputTokens,
		g.formatCurrency(data.TotalCost),
	)

	for _, c := range data.SessionData.ApiCalls {
		cost, _ := DefaultPricingModel().Price(c.Model, c.InputTokens, c.OutputTokens)
		r.CategoryBreakdown[c.Model] += cost
	}

	if data.SummaryStats.TotalCalls > 0 {
		r.EfficiencyMetrics["avg_cost_per_call"] = data.TotalCost / float64(data.SummaryStats.TotalCalls)
		r.EfficiencyMetrics["avg_tokens_per_call"] = float64(data.SummaryStats.TotalInputTokens+data.SummaryStats.TotalOutputTokens) / float64(data.SummaryStats.TotalCalls)
	}
	if data.SummaryStats.FailedCalls > 0 {
		r.Trends = append(r.Trends, fmt.Sprintf("%d of %d calls failed", data.SummaryStats.FailedCalls, data.SummaryStats.TotalCalls))
	}

	r.Outliers = findOutliers(data.SessionData.ApiCalls)
	return r
}

// findOutliers returns every successful call costing more than 2x the
// session's mean per-call cost.
func findOutliers(calls []ApiCall) []OutlierCall {
	pricing := DefaultPricingModel()
	type priced struct {
		call ApiCall
		cost float64
	}
	var costed []priced
	var total float64
	for _, c := range calls {
		if c.Status != ApiCallSuccess {
			continue
		}
		cost, _ := pricing.Price(c.Model, c.InputTokens, c.OutputTokens)
		costed = append(costed, priced{c, cost})
		total += cost
	}
	if len(costed) == 0 {
		return nil
	}
	mean := total / float64(len(costed))

	var outliers []OutlierCall
	for _, p := range costed {
		if p.cost > 2*mean {
			outliers = append(outliers, OutlierCall{Call: p.call, Cost: p.cost})
		}
	}
	sort.Slice(outliers, func(i, j int) bool { return outliers[i].Cost > outliers[j].Cost })
	return outliers
}

func (g *ReportGenerator) formatCurrency(amount float64) string {
	return fmt.Sprintf("%s%.*f", g.Options.CurrencySymbol, g.Options.CostPrecision, amount)
}

// ExportReport renders report and data in format.
func (g *ReportGenerator) ExportReport(report Report, data IssueCostData, format ReportFormat) (string, error) {
	switch format {
	case FormatJSON:
		return g.exportJSON(report, data)
	case FormatCSV:
		return g.exportCSV(report, data)
	case FormatMarkdown:
		return g.exportMarkdown(report, data), nil
	case FormatHTML:
		return g.exportHTML(report, data), nil
	case FormatText:
		return g.exportText(report, data), nil
	default:
		return "", fmt.Errorf("unknown report format %q", format)
	}
}

func (g *ReportGenerator) exportJSON(report Report, data IssueCostData) (string, error) {
	payload := struct {
		Summary IssueCostData `json:"summary"`
		Report  Report        `json:"report"`
	}{data, report}
	b, err := json.MarshalIndent(payload, "", "  ")
	return string(b), err
}

func (g *ReportGenerator) exportCSV(report Report, data IssueCostData) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n", report.ExecutiveSummary)

	w := csv.NewWriter(&sb)
	_ = w.Write([]string{"model", "cost"})
	for model, cost := range report.CategoryBreakdown {
		_ = w.Write([]string{model, g.formatCurrency(cost)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (g *ReportGenerator) exportMarkdown(report Report, data IssueCostData) string {
	var sb strings.Builder
	sb.WriteString("# Cost Report\n\n")
	sb.WriteString(fmt.Sprintf("**Total Cost**: %s\n\n", g.formatCurrency(data.TotalCost)))
	sb.WriteString(fmt.Sprintf("**Total API Calls**: %d\n\n", data.SummaryStats.TotalCalls))
	sb.WriteString(fmt.Sprintf("**Total Input Tokens**: %d\n\n", data.SummaryStats.TotalInputTokens))
	sb.WriteString(fmt.Sprintf("**Total Output Tokens**: %d\n\n", data.SummaryStats.TotalOutputTokens))

	sb.WriteString("## Breakdown by model\n\n| Model | Cost |\n|---|---|\n")
	models := sortedKeys(report.CategoryBreakdown)
	for _, model := range models {
		sb.WriteString(fmt.Sprintf("| %s | %s |\n", model, g.formatCurrency(report.CategoryBreakdown[model])))
	}

	if len(report.Trends) > 0 {
		sb.WriteString("\n## Trends\n\n")
		for _, t := range report.Trends {
			sb.WriteString(fmt.Sprintf("- %s\n", t))
		}
	}

	if len(report.Outliers) > 0 {
		sb.WriteString("\n## Outliers\n\n")
		for _, o := range report.Outliers {
			sb.WriteString(fmt.Sprintf("- call %s (%s): %s\n", o.Call.ID, o.Call.Model, g.formatCurrency(o.Cost)))
		}
	}
	return sb.String()
}

func (g *ReportGenerator) exportHTML(report Report, data IssueCostData) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\">")
	sb.WriteString("<style>body{font-family:sans-serif}table{border-collapse:collapse}td,th{border:1px solid #ccc;padding:4px}</style>")
	sb.WriteString("</head><body>")
	sb.WriteString("<h1>Cost Report</h1>")
	sb.WriteString("<p>" + html.EscapeString(report.ExecutiveSummary) + "</p>")
	sb.WriteString("<table><tr><th>Model</th><th>Cost</th></tr>")
	for _, model := range sortedKeys(report.CategoryBreakdown) {
		sb.WriteString(fmt.Sprintf("<tr><td>%s</td><td>%s</td></tr>", html.EscapeString(model), g.formatCurrency(report.CategoryBreakdown[model])))
	}
	sb.WriteString("</table></body></html>")
	return sb.String()
}

func (g *ReportGenerator) exportText(report Report, data IssueCostData) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%-30s %s\n", "Total Cost:", g.formatCurrency(data.TotalCost))
	fmt.Fprintf(&sb, "%-30s %d\n", "Total API Calls:", data.SummaryStats.TotalCalls)
	fmt.Fprintf(&sb, "%-30s %d\n", "Total Input Tokens:", data.SummaryStats.TotalInputTokens)
	fmt.Fprintf(&sb, "%-30s %d\n", "Total Output Tokens:", data.SummaryStats.TotalOutputTokens)
	return sb.String()
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
