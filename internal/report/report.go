// Package report builds the QA summary and HTML report for one profiling
// run.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/google/uuid"

	"github.com/loadgen/profiler/pkg/models"
)

// Stats are the batch-level counters collected while profiling.
type Stats struct {
	TotalLines       int64 `json:"total_lines"`
	ParseErrors      int64 `json:"parse_errors"`
	MissingSource    int64 `json:"missing_source"`
	MetricRecords    int64 `json:"metric_records"`
	HistogramRecords int64 `json:"histogram_records"`
	SpanRecords      int64 `json:"span_records"`
	Families         int   `json:"families"`
	RecipesWritten   int   `json:"recipes_written"`
	FailedFamilies   int   `json:"failed_families"`
	SpanRecipes      int   `json:"span_recipes"`
}

// Coverage aggregates per-recipe coverage across the run.
type Coverage struct {
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// Summary is the qa_summary.json document.
type Summary struct {
	RunID       string   `json:"run_id"`
	GeneratedAt string   `json:"generated_at"`
	Processing  Stats    `json:"processing"`
	Coverage    Coverage `json:"coverage"`
	Score       float64  `json:"data_quality_score"`
	Issues      []string `json:"issues"`
}

// BuildSummary composes the run summary from batch counters and the built
// recipes. The data quality score is the product of line coverage and the
// per-family success rate, in [0,1].
func BuildSummary(stats Stats, recipes []*models.Recipe) *Summary {
	cov := Coverage{Min: 1, Max: 0}
	var sum float64
	var n int
	for _, r := range recipes {
		if r.Validation == nil {
			continue
		}
		c := r.Validation.Coverage
		sum += c
		n++
		if c < cov.Min {
			cov.Min = c
		}
		if c > cov.Max {
			cov.Max = c
		}
	}
	if n > 0 {
		cov.Average = sum / float64(n)
	} else {
		cov.Min, cov.Max = 0, 0
	}

	lineCoverage := 1.0
	if stats.TotalLines > 0 {
		lineCoverage = float64(stats.TotalLines-stats.ParseErrors-stats.MissingSource) / float64(stats.TotalLines)
	}
	successRate := 1.0
	if stats.Families > 0 {
		successRate = float64(stats.Families-stats.FailedFamilies) / float64(stats.Families)
	}

	issues := []string{}
	if stats.ParseErrors > 0 {
		issues = append(issues, fmt.Sprintf("%d lines failed to parse", stats.ParseErrors))
	}
	if stats.MissingSource > 0 {
		issues = append(issues, fmt.Sprintf("%d metric lines dropped for missing source", stats.MissingSource))
	}
	if stats.FailedFamilies > 0 {
		issues = append(issues, fmt.Sprintf("%d families failed recipe generation", stats.FailedFamilies))
	}

	return &Summary{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Processing:  stats,
		Coverage:    cov,
		Score:       lineCoverage * successRate,
		Issues:      issues,
	}
}

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Profiling QA Report</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; margin: 1em 0; }
td, th { border: 1px solid #ccc; padding: 0.4em 0.8em; text-align: left; }
.score { font-size: 1.2em; font-weight: bold; }
.issues li { color: #a33; }
</style>
</head>
<body>
<h1>Profiling QA Report</h1>
<p>Run <code>{{.RunID}}</code> generated at {{.GeneratedAt}}</p>
<p class="score">Data quality score: {{printf "%.3f" .Score}}</p>

<h2>Processing</h2>
<table>
<tr><th>Total lines</th><td>{{.Processing.TotalLines}}</td></tr>
<tr><th>Parse errors</th><td>{{.Processing.ParseErrors}}</td></tr>
<tr><th>Missing source drops</th><td>{{.Processing.MissingSource}}</td></tr>
<tr><th>Metric records</th><td>{{.Processing.MetricRecords}}</td></tr>
<tr><th>Histogram records</th><td>{{.Processing.HistogramRecords}}</td></tr>
<tr><th>Span records</th><td>{{.Processing.SpanRecords}}</td></tr>
<tr><th>Families</th><td>{{.Processing.Families}}</td></tr>
<tr><th>Recipes written</th><td>{{.Processing.RecipesWritten}}</td></tr>
<tr><th>Failed families</th><td>{{.Processing.FailedFamilies}}</td></tr>
<tr><th>Span recipes</th><td>{{.Processing.SpanRecipes}}</td></tr>
</table>

<h2>Family coverage</h2>
<table>
<tr><th>Average</th><td>{{printf "%.3f" .Coverage.Average}}</td></tr>
<tr><th>Min</th><td>{{printf "%.3f" .Coverage.Min}}</td></tr>
<tr><th>Max</th><td>{{printf "%.3f" .Coverage.Max}}</td></tr>
</table>

{{if .Issues}}
<h2>Issues</h2>
<ul class="issues">
{{range .Issues}}<li>{{.}}</li>
{{end}}</ul>
{{else}}
<p>No issues detected.</p>
{{end}}
</body>
</html>
`))

// RenderHTML renders the summary as the profile_qa.html document.
func RenderHTML(s *Summary) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, s); err != nil {
		return nil, fmt.Errorf("rendering report: %w", err)
	}
	return buf.Bytes(), nil
}
