package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/shopscout/internal/pipeline"
	"github.com/FranksOps/shopscout/internal/storage"
)

// Summary contains aggregated figures about one pipeline run.
type Summary struct {
	RunID     string
	Keyword   string
	Limit     int
	Hits      int
	Distinct  int
	Resolved  int
	Absent    int
	Failed    int
	Error     string `json:",omitempty"`
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Records []storage.Storefront `json:"-"`
}

// GenerateSummary condenses a run and its diagnostic, if any. run may be nil
// when the pipeline was never started.
func GenerateSummary(run *pipeline.Run, runErr error) Summary {
	var s Summary
	if runErr != nil {
		s.Error = runErr.Error()
	}
	if run == nil {
		return s
	}

	s.RunID = run.ID
	s.Keyword = run.Keyword
	s.Limit = run.Limit
	s.Hits = run.Hits
	s.Distinct = run.Distinct
	s.Resolved = len(run.Records)
	s.Absent = run.Absent
	s.Failed = run.Failed
	s.StartTime = run.StartedAt
	s.EndTime = run.FinishedAt
	s.Duration = run.Duration()
	s.Records = run.Records
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `Shopscout Run Summary
---------------------
Run:           {{.RunID}}
Keyword:       {{.Keyword}} (limit {{.Limit}})
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Search Hits:   {{.Hits}}
Distinct:      {{.Distinct}}
Resolved:      {{.Resolved}}
Absent:        {{.Absent}}
Failed:        {{.Failed}}
{{- if .Error}}
Error:         {{.Error}}
{{- end}}
`

	t, err := template.New("textReport").Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	return nil
}

// WriteHTML writes a standalone HTML page with the figures and the resolved
// storefronts.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Shopscout Report: {{.Keyword}}</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ee4d2d; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Shopscout Report: {{.Keyword}}</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>
  {{- if .Error}}
  <p style="color: red;"><strong>Error:</strong> {{.Error}}</p>
  {{- end}}

  <div class="stat-card">
    <div>Search Hits</div>
    <div class="stat-val">{{.Hits}}</div>
  </div>
  <div class="stat-card">
    <div>Distinct Shops</div>
    <div class="stat-val">{{.Distinct}}</div>
  </div>
  <div class="stat-card">
    <div>Resolved</div>
    <div class="stat-val">{{.Resolved}}</div>
  </div>
  <div class="stat-card">
    <div>Failed</div>
    <div class="stat-val" style="color: {{if gt .Failed 0}}red{{else}}green{{end}};">{{.Failed}}</div>
  </div>

  <h3>Storefronts</h3>
  <table>
    <tr><th>Name</th><th>Username</th><th>Location</th><th>Rating</th><th>Products</th></tr>
    {{- range .Records}}
    <tr><td><a href="{{.URL}}">{{.Name}}</a></td><td>{{.Username}}</td><td>{{.Location}}</td><td>{{printf "%.2f" .Rating}}</td><td>{{with .ItemCount}}{{.}}{{end}}</td></tr>
    {{- else}}
    <tr><td colspan="5">No data found or request blocked</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := htmltemplate.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: %w", err)
	}

	return nil
}
