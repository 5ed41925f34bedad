package flake

import (
	"path/filepath"
	"testing"
)

func TestParse(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SHELLS", "/opt/shells")

	tests := []struct {
		name     string
		ref      string
		expanded string
		dir      string
		output   string
	}{
		{"github", "github:owner/repo", "github:owner/repo", "", ""},
		{"github with output", "github:owner/repo#dev", "github:owner/repo#dev", "", "dev"},
		{"absolute", "/srv/flake", "/srv/flake", "/srv/flake", ""},
		{"path prefix", "path:/srv/flake#ci", "/srv/flake#ci", "/srv/flake", "ci"},
		{"tilde", "~/shells/node", filepath.Join(home, "shells/node"), filepath.Join(home, "shells/node"), ""},
		{"env var", "path:$SHELLS/go", "/opt/shells/go", "/opt/shells/go", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse(tt.ref)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.ref, err)
			}
			if r.Raw != tt.ref {
				t.Errorf("Raw = %q", r.Raw)
			}
			if r.Expanded != tt.expanded {
				t.Errorf("Expanded = %q, want %q", r.Expanded, tt.expanded)
			}
			if r.Dir != tt.dir {
				t.Errorf("Dir = %q, want %q", r.Dir, tt.dir)
			}
			if r.IsPath() != (tt.dir != "") {
				t.Errorf("IsPath = %v", r.IsPath())
			}
			if r.Output != tt.output {
				t.Errorf("Output = %q, want %q", r.Output, tt.output)
			}
		})
	}
}

func TestParseRelative(t *testing.T) {
	r, err := Parse("./shell")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !filepath.IsAbs(r.Dir) {
		t.Fatalf("relative flake dir should be made absolute, got %q", r.Dir)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	for _, ref := range []string{"", "   ", "#output"} {
		if _, err := Parse(ref); err == nil {
			t.Errorf("Parse(%q) should fail", ref)
		}
	}
}
