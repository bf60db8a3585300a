package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tessro/fbmon/internal/api"
)

func sampleData() Data {
	return Data{
		Project:   "water",
		Generated: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Status:    api.StatusFinished,
		Queue:     &api.WorkQueueStatus{WorkerRunning: 1, WorkerTotal: 4, JobFinished: 8, JobTotal: 8},
		State: api.OptimizerState{
			"0": {ObjTotal: 4, ObjDict: map[string]api.ObjectiveTerm{"density|liquid": {X: 2, W: 2}}},
			"1": {ObjTotal: 2.5, ObjDict: map[string]api.ObjectiveTerm{"density|liquid": {X: 1.25, W: 2}}},
		},
		Targets: map[string]api.TargetInfo{"density|liquid": {Type: "Liquid_SMIRNOFF"}},
		ForceField: &api.ForceFieldInfo{
			Filenames:     []string{"water.offxml"},
			ParamNames:    []string{"vdW/Atom/epsilon/[#1:1]", "vdW/Atom/rmin_half/[#1:1]"},
			InitialValues: []float64{0.1, 1.2},
			Values:        []float64{0.12},
			Priors:        []float64{0.05, 0.1},
		},
	}
}

func TestMarkdown(t *testing.T) {
	md := string(Markdown(sampleData()))

	tests := []struct {
		name string
		want string
	}{
		{"title", "# ForceBalance report: water"},
		{"status", "Status: **FINISHED**"},
		{"queue", "Jobs: 8 finished / 8 total"},
		{"iteration row", "| 1 | 2.5 |"},
		{"escaped target", `density\|liquid`},
		{"target breakdown", `| density\|liquid | 1.25 | 2 | 2.5 |`},
		{"missing final value", "| vdW/Atom/rmin_half/[#1:1] | 1.2 | - | 0.1 |"},
		{"files", "Files: water.offxml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(md, tt.want) {
				t.Errorf("markdown missing %q:\n%s", tt.want, md)
			}
		})
	}
}

func TestMarkdown_NoIterations(t *testing.T) {
	md := string(Markdown(Data{Project: "empty"}))
	if !strings.Contains(md, "No iterations yet.") {
		t.Errorf("markdown missing placeholder:\n%s", md)
	}
	if strings.Contains(md, "## Targets") || strings.Contains(md, "## Force field") {
		t.Errorf("empty sections rendered:\n%s", md)
	}
	if !strings.Contains(md, "Status: **-**") {
		t.Errorf("unknown status not rendered as dash:\n%s", md)
	}
}

func TestExtractTitle(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		fallback string
		want     string
	}{
		{"h1", "# Report\n\nbody", "x", "Report"},
		{"h1 after text", "intro\n# Later\n", "x", "Later"},
		{"h2 only", "## Sub\n", "fallback", "fallback"},
		{"empty", "", "fallback", "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractTitle([]byte(tt.content), tt.fallback); got != tt.want {
				t.Errorf("ExtractTitle() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderer_HTML(t *testing.T) {
	r, err := NewRenderer("")
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	out, err := r.HTML(sampleData())
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	page := string(out)

	for _, want := range []string{
		"<title>ForceBalance report: water</title>",
		"<table>",
		"<td>density|liquid</td>",
		"Generated 2026-01-02T03:04:05Z",
	} {
		if !strings.Contains(page, want) {
			t.Errorf("page missing %q:\n%s", want, page)
		}
	}
}

func TestRenderer_CustomTemplate(t *testing.T) {
	tmpl := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(tmpl, []byte(`<h1 class="t">{{.Title}}</h1>{{.Content}}`), 0o644); err != nil {
		t.Fatalf("writing template: %v", err)
	}
	r, err := NewRenderer(tmpl)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	out, err := r.HTML(Data{Project: "p1"})
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if !strings.HasPrefix(string(out), `<h1 class="t">ForceBalance report: p1</h1>`) {
		t.Errorf("unexpected page:\n%s", out)
	}
}

func TestNewRenderer_MissingTemplate(t *testing.T) {
	if _, err := NewRenderer(filepath.Join(t.TempDir(), "missing.html")); err == nil {
		t.Fatal("expected error for missing template")
	}
}

func TestWriteFile_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "report.html")
	if err := WriteFile(path, []byte("ok")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if string(got) != "ok" {
		t.Errorf("content = %q, want ok", got)
	}
}
