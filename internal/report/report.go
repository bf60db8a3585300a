// Package report renders optimizer run reports as Markdown and HTML.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/tessro/fbmon/internal/api"
)

// Data is everything a report shows about one project.
type Data struct {
	Project    string
	Generated  time.Time
	Status     api.Status
	Queue      *api.WorkQueueStatus
	State      api.OptimizerState
	Targets    map[string]api.TargetInfo
	ForceField *api.ForceFieldInfo
}

// PageData holds data passed to the HTML template.
type PageData struct {
	Title     string
	Generated string
	Content   template.HTML
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 60rem; margin: 2rem auto; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.2rem 0.6rem; text-align: right; }
th:first-child, td:first-child { text-align: left; }
</style>
</head>
<body>
{{.Content}}
<footer><small>Generated {{.Generated}}</small></footer>
</body>
</html>
`

// Renderer converts report Markdown to a standalone HTML page.
type Renderer struct {
	md   goldmark.Markdown
	tmpl *template.Template
}

// NewRenderer creates a Renderer. An empty templateFile uses the built-in
// page template.
func NewRenderer(templateFile string) (*Renderer, error) {
	r := &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.Table,
				extension.Linkify,
			),
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
			),
		),
	}

	src := defaultTemplate
	if templateFile != "" {
		content, err := os.ReadFile(templateFile)
		if err != nil {
			return nil, fmt.Errorf("reading template: %w", err)
		}
		src = string(content)
	}
	tmpl, err := template.New("report").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parsing template: %w", err)
	}
	r.tmpl = tmpl
	return r, nil
}

// HTML renders d as a full HTML page.
func (r *Renderer) HTML(d Data) ([]byte, error) {
	content := Markdown(d)

	var body bytes.Buffer
	if err := r.md.Convert(content, &body); err != nil {
		return nil, fmt.Errorf("converting report: %w", err)
	}

	data := PageData{
		Title:     ExtractTitle(content, d.Project),
		Generated: d.Generated.Format(time.RFC3339),
		Content:   template.HTML(body.String()),
	}
	var out bytes.Buffer
	if err := r.tmpl.Execute(&out, data); err != nil {
		return nil, fmt.Errorf("executing template: %w", err)
	}
	return out.Bytes(), nil
}

// Markdown renders d as a Markdown document.
func Markdown(d Data) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "# ForceBalance report: %s\n\n", d.Project)
	fmt.Fprintf(&b, "- Status: **%s**\n", orDash(string(d.Status)))
	if q := d.Queue; q != nil {
		fmt.Fprintf(&b, "- Workers: %d running / %d total\n", q.WorkerRunning, q.WorkerTotal)
		fmt.Fprintf(&b, "- Jobs: %d finished / %d total\n", q.JobFinished, q.JobTotal)
	}
	b.WriteString("\n")

	writeIterations(&b, d.State)
	writeTargets(&b, d.Targets)
	writeForceField(&b, d.ForceField)
	return b.Bytes()
}

func writeIterations(b *bytes.Buffer, state api.OptimizerState) {
	b.WriteString("## Iterations\n\n")
	latest, last, ok := state.Latest()
	if !ok {
		b.WriteString("No iterations yet.\n\n")
		return
	}
	b.WriteString("| Iteration | Objective |\n|---:|---:|\n")
	for _, n := range state.Iterations() {
		fmt.Fprintf(b, "| %d | %s |\n", n, formatFloat(state[strconv.Itoa(n)].ObjTotal))
	}

	fmt.Fprintf(b, "\n### Iteration %d by target\n\n", latest)
	b.WriteString("| Target | X | Weight | Contribution |\n|---|---:|---:|---:|\n")
	for _, name := range slices.Sorted(maps.Keys(last.ObjDict)) {
		term := last.ObjDict[name]
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", escapeCell(name),
			formatFloat(term.X), formatFloat(term.W), formatFloat(term.X*term.W))
	}
	b.WriteString("\n")
}

func writeTargets(b *bytes.Buffer, targets map[string]api.TargetInfo) {
	if len(targets) == 0 {
		return
	}
	b.WriteString("## Targets\n\n| Target | Type |\n|---|---|\n")
	for _, name := range slices.Sorted(maps.Keys(targets)) {
		fmt.Fprintf(b, "| %s | %s |\n", escapeCell(name), escapeCell(orDash(targets[name].Type)))
	}
	b.WriteString("\n")
}

func writeForceField(b *bytes.Buffer, ff *api.ForceFieldInfo) {
	if ff == nil || len(ff.ParamNames) == 0 {
		return
	}
	b.WriteString("## Force field\n\n")
	if len(ff.Filenames) > 0 {
		fmt.Fprintf(b, "Files: %s\n\n", strings.Join(ff.Filenames, ", "))
	}
	b.WriteString("| Parameter | Initial | Final | Prior |\n|---|---:|---:|---:|\n")
	for i, name := range ff.ParamNames {
		fmt.Fprintf(b, "| %s | %s | %s | %s |\n", escapeCell(name),
			valueAt(ff.InitialValues, i), valueAt(ff.Values, i), valueAt(ff.Priors, i))
	}
	b.WriteString("\n")
}

var h1Regex = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// ExtractTitle returns the first H1 heading of content, or fallback.
func ExtractTitle(content []byte, fallback string) string {
	matches := h1Regex.FindSubmatch(content)
	if len(matches) > 1 {
		return strings.TrimSpace(string(matches[1]))
	}
	return fallback
}

// WriteFile writes a rendered report, creating parent directories.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func valueAt(vals []float64, i int) string {
	if i >= len(vals) {
		return "-"
	}
	return formatFloat(vals[i])
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
