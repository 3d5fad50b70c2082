package grouper

import (
	"os"
	"path/filepath"
	"testing"
)

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}
	return path
}

func TestLoadRules(t *testing.T) {
	path := writeRules(t, `
categories:
  - name: naming
    markers: ["invalid-name", "C0103"]
  - name: imports
    markers: ["import-error", "wrong-import"]
fallback: misc
`)
	r, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() error: %v", err)
	}
	if len(r.Categories) != 2 {
		t.Fatalf("got %d categories, want 2", len(r.Categories))
	}
	if r.Categories[0].Name != "naming" {
		t.Errorf("first category = %q, want naming", r.Categories[0].Name)
	}
	if r.Fallback != "misc" {
		t.Errorf("fallback = %q, want misc", r.Fallback)
	}

	if got := r.classify("mod.py:1:0: C0103: invalid-name"); got != "naming" {
		t.Errorf("classify = %q, want naming", got)
	}
	if got := r.classify("something else entirely"); got != "misc" {
		t.Errorf("classify = %q, want misc fallback", got)
	}
}

func TestLoadRulesFillsDefaults(t *testing.T) {
	path := writeRules(t, `fallback: leftovers`)

	r, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules() error: %v", err)
	}
	if len(r.Categories) != 3 {
		t.Errorf("got %d categories, want the 3 defaults", len(r.Categories))
	}
	if r.Fallback != "leftovers" {
		t.Errorf("fallback = %q, want leftovers", r.Fallback)
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	if _, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadRules() = nil error for missing file")
	}
}

func TestLoadRulesRejectsBadTables(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty name", "categories:\n  - name: \"\"\n    markers: [x]\n"},
		{"no markers", "categories:\n  - name: solo\n    markers: []\n"},
		{"duplicate", "categories:\n  - name: dup\n    markers: [a]\n  - name: dup\n    markers: [b]\n"},
		{"not yaml", "{{{{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadRules(writeRules(t, tt.content)); err == nil {
				t.Error("LoadRules() = nil error, want failure")
			}
		})
	}
}

func TestDefaultRulesClassify(t *testing.T) {
	r := DefaultRules()

	tests := []struct {
		issue string
		want  string
	}{
		{"mod.py:10:0: R0912: too-many-branches", "complexity"},
		{"mod.py:11:0: R0915 detected", "complexity"},
		{"mod.py:2:0: C0114: missing-module-docstring", "style"},
		{"mod.py:5:0: W0611: unused-import", "style"},
		{"mod.py:8:0: W0107: pointless-statement", "style"},
		{"mod.py:40:4: W0702: bare exception", "error_handling"},
		{"mod.py:44:4: R1710: inconsistent return statements", "error_handling"},
		{"mod.py:55:0: C0301: line too long", "other"},
	}
	for _, tt := range tests {
		if got := r.classify(tt.issue); got != tt.want {
			t.Errorf("classify(%q) = %q, want %q", tt.issue, got, tt.want)
		}
	}
}
