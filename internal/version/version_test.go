package version

import (
	"strings"
	"testing"
)

func TestGet_LdflagsTakePrecedence(t *testing.T) {
	oldVersion, oldCommit, oldDate := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = oldVersion, oldCommit, oldDate })

	Version, Commit, Date = "v1.2.3", "abc123", "2026-01-01"
	got := Get()
	if got.Version != "v1.2.3" || got.Commit != "abc123" || got.Date != "2026-01-01" {
		t.Errorf("Get() = %+v, want ldflags values", got)
	}
}

func TestInfo_String(t *testing.T) {
	s := Info{Version: "v1", Commit: "c", Date: "d"}.String()
	for _, want := range []string{"v1", "commit: c", "built: d"} {
		if !strings.Contains(s, want) {
			t.Errorf("String() = %q, missing %q", s, want)
		}
	}
}

func TestGet_NeverEmpty(t *testing.T) {
	got := Get()
	if got.Version == "" || got.Commit == "" || got.Date == "" {
		t.Errorf("Get() has empty fields: %+v", got)
	}
}
