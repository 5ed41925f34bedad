// Package flake parses Nix flake references far enough to tell local
// path flakes, whose inputs can be fingerprinted from disk, from remote
// ones.
package flake

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Reference is a parsed flake reference.
type Reference struct {
	// Raw is the reference exactly as configured.
	Raw string
	// Expanded is the reference handed to nix: tilde and $VARS expanded
	// for path flakes, identical to Raw otherwise.
	Expanded string
	// Dir is the flake directory for path flakes, empty otherwise.
	Dir string
	// Output is the part after '#', if any.
	Output string
}

// IsPath reports whether the reference points at a local directory.
func (r Reference) IsPath() bool {
	return r.Dir != ""
}

// Parse splits ref into URI and output and expands local paths.
func Parse(ref string) (Reference, error) {
	if strings.TrimSpace(ref) == "" {
		return Reference{}, fmt.Errorf("empty flake reference")
	}
	uri, output, hasOutput := strings.Cut(ref, "#")
	if uri == "" {
		return Reference{}, fmt.Errorf("flake reference %q is missing a URI", ref)
	}

	r := Reference{Raw: ref, Expanded: ref, Output: output}
	if !isPathType(uri) {
		return r, nil
	}

	dir, err := expand(strings.TrimPrefix(uri, "path:"))
	if err != nil {
		return Reference{}, fmt.Errorf("expanding flake reference %q: %w", ref, err)
	}
	r.Dir = dir
	r.Expanded = dir
	if hasOutput {
		r.Expanded += "#" + output
	}
	return r, nil
}

func isPathType(uri string) bool {
	return strings.HasPrefix(uri, "path:") ||
		strings.HasPrefix(uri, "~") ||
		strings.HasPrefix(uri, "/") ||
		strings.HasPrefix(uri, "./") ||
		strings.HasPrefix(uri, "../")
}

// expand resolves ~, ~/... and environment variables. Relative paths are
// made absolute against the current working directory, so a relative
// reference names a different flake, and cache slot, in each directory.
func expand(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, p[1:])
	}
	p = os.ExpandEnv(p)
	if !filepath.IsAbs(p) {
		abs, err := filepath.Abs(p)
		if err != nil {
			return "", err
		}
		p = abs
	}
	return filepath.Clean(p), nil
}
