package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

//go:embed templates/report.html.tmpl
var templateFS embed.FS

var reportTemplate = template.Must(template.New("report.html.tmpl").
	Funcs(template.FuncMap{
		"f1":     func(v float64) string { return fmt.Sprintf("%.1f", v) },
		"f2":     func(v float64) string { return fmt.Sprintf("%.2f", v) },
		"f4":     func(v float64) string { return fmt.Sprintf("%.4f", v) },
		"signed": func(v float64) string { return fmt.Sprintf("%+.2f", v) },
		"chg":    formatChange,
		"comma":  commaFloat,
	}).
	ParseFS(templateFS, "templates/report.html.tmpl"))

// chartPayload is the JSON blob embedded in the document for the Plotly
// bootstrap script.
type chartPayload struct {
	Prices PriceChart   `json:"prices"`
	Ratios []RatioChart `json:"ratios"`
}

type templateData struct {
	*Report
	Payload template.JS
}

// RenderHTML renders the report as a single self-contained HTML document.
// The Plotly CDN script tag is the only external reference.
func RenderHTML(r *Report) ([]byte, error) {
	payload := chartPayload{Prices: r.Prices}
	for _, t := range r.Targets {
		payload.Ratios = append(payload.Ratios, t.Chart)
	}
	blob, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal chart payload: %w", err)
	}

	var buf bytes.Buffer
	data := templateData{Report: r, Payload: template.JS(blob)}
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render report template: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFiles renders the report into dir as index_compare_YYYYMMDD_HHMMSS.html
// plus a latest.html copy for stable linking, and returns the timestamped
// path.
func WriteFiles(r *Report, dir string) (string, error) {
	html, err := RenderHTML(r)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	name := fmt.Sprintf("index_compare_%s.html", r.GeneratedAt.Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, html, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "latest.html"), html, 0o644); err != nil {
		return "", fmt.Errorf("write latest report: %w", err)
	}
	return path, nil
}

// Prune removes timestamped reports beyond the keep newest ones and returns
// how many were deleted. latest.html is never touched.
func Prune(dir string, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	matches, err := filepath.Glob(filepath.Join(dir, "index_compare_*.html"))
	if err != nil {
		return 0, fmt.Errorf("list reports: %w", err)
	}
	if len(matches) <= keep {
		return 0, nil
	}

	// Timestamped names sort chronologically.
	sort.Strings(matches)
	removed := 0
	for _, path := range matches[:len(matches)-keep] {
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("remove old report: %w", err)
		}
		removed++
	}
	return removed, nil
}

// formatChange renders a nullable percent change for the cards.
func formatChange(ch *float64) string {
	if ch == nil {
		return "n/a"
	}
	return fmt.Sprintf("%+.2f%%", *ch)
}

// commaFloat formats a close level with thousands separators, two decimals.
func commaFloat(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	dot := strings.IndexByte(s, '.')
	whole, frac := s[:dot], s[dot:]

	sign := ""
	if strings.HasPrefix(whole, "-") {
		sign, whole = "-", whole[1:]
	}

	var b strings.Builder
	for i := 0; i < len(whole); i++ {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteByte(whole[i])
	}
	return sign + b.String() + frac
}
