package monitoring

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"time"
)

// StageReport is one row of the performance table.
type StageReport struct {
	Label    string
	Name     string
	Duration time.Duration
	Skipped  bool
	Err      string
	Rows     int64
}

func (s StageReport) Status() string {
	switch {
	case s.Skipped:
		return "skipped"
	case s.Err != "":
		return "failed"
	default:
		return "ok"
	}
}

func (s StageReport) Millis() int64 { return s.Duration.Milliseconds() }

func (s StageReport) Seconds() string { return fmt.Sprintf("%.2f", s.Duration.Seconds()) }

// CheckReport is one row-count comparison.
type CheckReport struct {
	Name     string
	Expected int64
	Actual   int64
	OK       bool
	Message  string
}

// Report is everything rendered into the HTML page.
type Report struct {
	Title       string
	RunID       string
	GeneratedAt time.Time
	Reduced     bool
	Total       time.Duration
	Stages      []StageReport
	Checks      []CheckReport
}

// Failed counts failed stages.
func (r Report) Failed() int {
	n := 0
	for _, s := range r.Stages {
		if s.Err != "" {
			n++
		}
	}
	return n
}

func (r Report) TotalMillis() int64 { return r.Total.Milliseconds() }

func (r Report) TotalMinutes() string { return fmt.Sprintf("%.2f", r.Total.Minutes()) }

// MaxMillis is the longest stage, used to scale the bars.
func (r Report) MaxMillis() int64 {
	var max int64
	for _, s := range r.Stages {
		if ms := s.Millis(); ms > max {
			max = ms
		}
	}
	return max
}

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"width": func(ms, max int64) int64 {
		if max <= 0 {
			return 0
		}
		return ms * 100 / max
	},
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>
body { font-family: Arial, sans-serif; margin: 20px; color: #333; }
.container { max-width: 1200px; margin: 0 auto; }
table { width: 100%; border-collapse: collapse; margin-bottom: 24px; }
th, td { padding: 8px; border-bottom: 1px solid #ddd; text-align: left; }
th { background: #f2f2f2; }
.bar { background: #4e79a7; height: 12px; }
.failed { color: #c0392b; }
.skipped { color: #999; }
</style>
</head>
<body>
<div class="container">
<h1>{{.Title}}</h1>
<p>Run {{.RunID}} generated {{.GeneratedAt.Format "2006-01-02 15:04:05"}}{{if .Reduced}} (reduced dataset){{end}}</p>
<p>Total time: {{.TotalMillis}} ms ({{.TotalMinutes}} minutes), failed stages: {{.Failed}}</p>
<table>
<thead><tr><th>Stage</th><th>Label</th><th>Time (ms)</th><th>Time (sec)</th><th>Rows</th><th>Status</th><th></th></tr></thead>
<tbody>
{{- $max := .MaxMillis}}
{{- range .Stages}}
<tr class="{{.Status}}">
<td>{{.Name}}</td><td>{{.Label}}</td><td>{{.Millis}}</td><td>{{.Seconds}}</td><td>{{.Rows}}</td>
<td>{{.Status}}{{if .Err}}: {{.Err}}{{end}}</td>
<td><div class="bar" style="width: {{width .Millis $max}}%"></div></td>
</tr>
{{- end}}
</tbody>
</table>
{{- if .Checks}}
<h2>Row count checks</h2>
<table>
<thead><tr><th>Check</th><th>Expected</th><th>Actual</th><th>Result</th></tr></thead>
<tbody>
{{- range .Checks}}
<tr{{if not .OK}} class="failed"{{end}}><td>{{.Name}}</td><td>{{.Expected}}</td><td>{{.Actual}}</td><td>{{if .OK}}ok{{else}}{{.Message}}{{end}}</td></tr>
{{- end}}
</tbody>
</table>
{{- end}}
</div>
</body>
</html>
`))

// RenderReport writes the HTML page to w.
func RenderReport(w io.Writer, r Report) error {
	if r.Title == "" {
		r.Title = "Database Performance Test Results"
	}
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = time.Now()
	}
	return reportTemplate.Execute(w, r)
}

// WriteReport renders the report into path, creating parent directories.
func WriteReport(path string, r Report) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	if err := RenderReport(f, r); err != nil {
		f.Close()
		return fmt.Errorf("failed to render report: %w", err)
	}
	return f.Close()
}
