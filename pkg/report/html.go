package report

import (
	"bufio"
	"bytes"
	"fmt"
	"html"
	"html/template"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jupierce/cov-loupe/pkg/coverage"
	"github.com/jupierce/cov-loupe/pkg/model"
)

// HTMLFile holds one annotated source file of the HTML report.
type HTMLFile struct {
	Path       string
	Percentage float64
	Covered    int
	Total      int
	Stale      coverage.Verdict
	BodyHTML   template.HTML
}

// HTMLPage is the data the HTML report is rendered from.
type HTMLPage struct {
	Title         string
	ResultsetPath string
	Timestamp     time.Time
	Generated     time.Time
	Files         []HTMLFile
	Covered       int
	Total         int
	Percentage    float64
	Excellent     int
	Good          int
	Moderate      int
	Poor          int
	Critical      int
}

// BuildPage reads the source of every listed file and annotates it with the
// hit counts from coverageMap. Files that cannot be read are left out.
func BuildPage(title string, list *model.ListResult, coverageMap map[string]coverage.Entry, rel Relativizer) HTMLPage {
	page := HTMLPage{
		Title:         title,
		ResultsetPath: list.ResultsetPath,
		Timestamp:     time.Unix(list.Timestamp, 0).UTC(),
		Generated:     time.Now().UTC(),
	}
	for _, r := range list.Files {
		src, err := os.ReadFile(r.File)
		if err != nil {
			continue
		}
		page.Files = append(page.Files, HTMLFile{
			Path:       rel(r.File),
			Percentage: r.Percentage,
			Covered:    r.Covered,
			Total:      r.Total,
			Stale:      r.Stale,
			BodyHTML:   annotateSource(src, coverageMap[r.File].Lines),
		})
		page.Covered += r.Covered
		page.Total += r.Total
		switch colorClass(r.Percentage) {
		case "excellent":
			page.Excellent++
		case "good":
			page.Good++
		case "moderate":
			page.Moderate++
		case "poor":
			page.Poor++
		default:
			page.Critical++
		}
	}
	page.Percentage = coverage.Percentage(page.Covered, page.Total)
	return page
}

// annotateSource produces a table of numbered source lines, each classed by
// whether the line was hit, missed or is not executable.
func annotateSource(src []byte, lines coverage.Lines) template.HTML {
	var buf strings.Builder
	buf.WriteString(`<table class="source-code"><tbody>`)

	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 64*1024), 10*1024*1024)
	n := 0
	for sc.Scan() {
		n++
		class := ""
		hits := ""
		if n <= len(lines) && lines[n-1] != coverage.NotExecutable {
			if lines[n-1] > 0 {
				class = "cov-hit"
			} else {
				class = "cov-none"
			}
			hits = fmt.Sprint(lines[n-1])
		}
		text := strings.ReplaceAll(sc.Text(), "\t", "    ")
		fmt.Fprintf(&buf, `<tr class="%s"><td class="line-num" id="L%d">%d</td><td class="hits">%s</td><td class="line-content">%s</td></tr>`+"\n",
			class, n, n, hits, html.EscapeString(text))
	}
	buf.WriteString("</tbody></table>")
	return template.HTML(buf.String())
}

func colorClass(pct float64) string {
	switch {
	case pct >= 70:
		return "excellent"
	case pct >= 50:
		return "good"
	case pct >= 30:
		return "moderate"
	case pct >= 15:
		return "poor"
	}
	return "critical"
}

func formatInt(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}

var htmlTemplate = template.Must(template.New("coverage").Funcs(template.FuncMap{
	"colorClass": colorClass,
	"formatPct":  func(pct float64) string { return fmt.Sprintf("%.1f%%", pct) },
	"formatInt":  formatInt,
	"formatTime": func(t time.Time) string { return t.Format(time.RFC3339) },
	"isStale":    func(v coverage.Verdict) bool { return v.Stale() },
}).Parse(htmlSource))

// HTML renders page as a self-contained document.
func HTML(w io.Writer, page HTMLPage) error {
	bw := bufio.NewWriterSize(w, 256*1024)
	if err := htmlTemplate.Execute(bw, page); err != nil {
		return fmt.Errorf("execute template: %w", err)
	}
	return bw.Flush()
}

const htmlSource = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Coverage: {{.Title}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            background: #f5f5f5;
            line-height: 1.6;
        }
        .container { max-width: 1800px; margin: 0 auto; padding: 20px; }
        .header {
            background: white;
            padding: 20px 30px;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            margin-bottom: 20px;
        }
        .header h1 { color: #333; font-size: 22px; margin-bottom: 4px; }
        .header .subtitle { color: #666; font-size: 13px; }
        .stats-grid {
            display: grid;
            grid-template-columns: repeat(auto-fit, minmax(160px, 1fr));
            gap: 12px;
            margin-bottom: 20px;
        }
        .stat-card {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            padding: 16px;
            border-radius: 8px;
            color: white;
        }
        .stat-label { font-size: 10px; opacity: 0.9; text-transform: uppercase; letter-spacing: 0.5px; }
        .stat-value { font-size: 26px; font-weight: bold; }
        .coverage-distribution { display: flex; gap: 8px; margin-bottom: 20px; flex-wrap: wrap; }
        .coverage-badge { padding: 6px 12px; border-radius: 16px; font-size: 11px; font-weight: 600; }
        .badge-excellent { background: #28a745; color: white; }
        .badge-good { background: #5cb85c; color: white; }
        .badge-moderate { background: #ffc107; color: #333; }
        .badge-poor { background: #fd7e14; color: white; }
        .badge-critical { background: #dc3545; color: white; }
        .panel {
            background: white;
            border-radius: 8px;
            box-shadow: 0 2px 4px rgba(0,0,0,0.1);
            padding: 20px;
            margin-bottom: 20px;
        }
        table.file-table { width: 100%; border-collapse: collapse; }
        table.file-table th {
            background: #f8f9fa;
            padding: 12px 10px;
            text-align: left;
            font-size: 11px;
            text-transform: uppercase;
            color: #666;
            border-bottom: 2px solid #dee2e6;
        }
        table.file-table td { padding: 10px; border-bottom: 1px solid #f0f0f0; font-size: 13px; }
        .stale { color: #dc3545; font-weight: 600; }
        details.file { margin-bottom: 12px; }
        details.file summary { cursor: pointer; font-family: monospace; font-size: 13px; }
        table.source-code { width: 100%; border-collapse: collapse; font-family: monospace; font-size: 12px; }
        table.source-code td { padding: 0 8px; white-space: pre; }
        td.line-num, td.hits { color: #999; text-align: right; user-select: none; width: 1%; }
        tr.cov-hit td.line-content { background: #e6ffed; }
        tr.cov-none td.line-content { background: #ffeef0; }
    </style>
</head>
<body>
<div class="container">
    <div class="header">
        <h1>{{.Title}}</h1>
        <div class="subtitle">Resultset {{.ResultsetPath}} &middot; coverage {{formatTime .Timestamp}} &middot; generated {{formatTime .Generated}}</div>
    </div>

    <div class="stats-grid">
        <div class="stat-card"><div class="stat-label">Coverage</div><div class="stat-value">{{formatPct .Percentage}}</div></div>
        <div class="stat-card"><div class="stat-label">Lines covered</div><div class="stat-value">{{formatInt .Covered}}</div></div>
        <div class="stat-card"><div class="stat-label">Executable lines</div><div class="stat-value">{{formatInt .Total}}</div></div>
        <div class="stat-card"><div class="stat-label">Files</div><div class="stat-value">{{len .Files}}</div></div>
    </div>

    <div class="coverage-distribution">
        <span class="coverage-badge badge-excellent">&ge;70% {{.Excellent}}</span>
        <span class="coverage-badge badge-good">50-70% {{.Good}}</span>
        <span class="coverage-badge badge-moderate">30-50% {{.Moderate}}</span>
        <span class="coverage-badge badge-poor">15-30% {{.Poor}}</span>
        <span class="coverage-badge badge-critical">&lt;15% {{.Critical}}</span>
    </div>

    <div class="panel">
        <table class="file-table">
            <thead><tr><th>File</th><th>Coverage</th><th>Covered</th><th>Total</th><th>Stale</th></tr></thead>
            <tbody>
            {{range $i, $f := .Files}}
                <tr>
                    <td><a href="#file-{{$i}}">{{$f.Path}}</a></td>
                    <td><span class="coverage-badge badge-{{colorClass $f.Percentage}}">{{formatPct $f.Percentage}}</span></td>
                    <td>{{formatInt $f.Covered}}</td>
                    <td>{{formatInt $f.Total}}</td>
                    <td>{{if isStale $f.Stale}}<span class="stale">{{$f.Stale}}</span>{{end}}</td>
                </tr>
            {{end}}
            </tbody>
        </table>
    </div>

    <div class="panel">
        {{range $i, $f := .Files}}
        <details class="file" id="file-{{$i}}">
            <summary>{{$f.Path}} ({{formatPct $f.Percentage}})</summary>
            {{$f.BodyHTML}}
        </details>
        {{end}}
    </div>
</div>
</body>
</html>
`
