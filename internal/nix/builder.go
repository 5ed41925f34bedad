package nix

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rnwolfe/envoluntary/internal/cache"
	"github.com/rnwolfe/envoluntary/internal/flake"
)

const storePrefix = "/nix/store/"

// Builder builds flake development environments with
// `nix print-dev-env` and pins everything it used as GC roots inside the
// build directory.
type Builder struct {
	Nix *Runner
	// Bash evaluates the rc script. Empty means "bash" from PATH.
	Bash string
	// Stderr receives output of the rc script. Nil discards it.
	Stderr io.Writer
}

// NewBuilder returns a Builder using the nix binary found on the system.
func NewBuilder(stderr io.Writer) *Builder {
	return &Builder{Nix: &Runner{}, Stderr: stderr}
}

var _ cache.Builder = (*Builder)(nil)

// Build implements cache.Builder. The nix version is checked first, so an
// outdated installation fails with a clear message instead of a flake
// evaluation error.
func (b *Builder) Build(ctx context.Context, key cache.Key, dir string) (*cache.Build, error) {
	ref, err := flake.Parse(key.FlakeReference)
	if err != nil {
		return nil, err
	}
	if _, err := b.Nix.CheckVersion(ctx); err != nil {
		return nil, err
	}

	tmpProfile := filepath.Join(dir, "tmp-profile")
	args := []string{"print-dev-env", "--profile", tmpProfile}
	if key.Impure {
		args = append(args, "--impure")
	}
	args = append(args, ref.Expanded)
	rc, err := b.Nix.Run(ctx, args...)
	if err != nil {
		return nil, err
	}

	rcFile := filepath.Join(dir, "profile.rc")
	if err := os.WriteFile(rcFile, []byte(rc), 0o644); err != nil {
		return nil, err
	}

	profile := filepath.Join(dir, "profile")
	if err := b.addRoot(ctx, tmpProfile, profile); err != nil {
		return nil, err
	}
	removeProfileLinks(tmpProfile)

	if ref.IsPath() {
		if err := b.pinInputs(ctx, ref, filepath.Join(dir, "flake-inputs")); err != nil {
			return nil, err
		}
	}

	bash := b.Bash
	if bash == "" {
		bash, err = exec.LookPath("bash")
		if err != nil {
			return nil, fmt.Errorf("locating bash: %w", err)
		}
	}
	vars, err := CaptureEnv(ctx, bash, rcFile, map[string]string{"DIRENV_IN_ENVRC": "1"}, b.Stderr)
	if err != nil {
		return nil, err
	}
	return &cache.Build{Variables: vars, ProfilePath: profile}, nil
}

// addRoot makes link an indirect GC root for target.
func (b *Builder) addRoot(ctx context.Context, target, link string) error {
	_, err := b.Nix.Run(ctx, "build", "--out-link", link, target)
	return err
}

// removeProfileLinks deletes a --profile symlink and its generations.
func removeProfileLinks(profile string) {
	matches, _ := filepath.Glob(profile + "*")
	for _, m := range matches {
		_ = os.Remove(m)
	}
}

// pinInputs roots every input of a path flake so a garbage collection
// does not force a refetch on the next rebuild.
func (b *Builder) pinInputs(ctx context.Context, ref flake.Reference, dir string) error {
	out, err := b.Nix.Run(ctx, "flake", "archive", "--json", "--no-write-lock-file", ref.Expanded)
	if err != nil {
		return err
	}
	names, err := archivedInputs([]byte(out))
	if err != nil {
		return fmt.Errorf("parsing flake archive output: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, name := range names {
		if err := b.addRoot(ctx, storePrefix+name, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

type archiveNode struct {
	Path   string                 `json:"path"`
	Inputs map[string]archiveNode `json:"inputs"`
}

// archivedInputs returns the store entry names in `nix flake archive
// --json` output, depth first.
func archivedInputs(data []byte) ([]string, error) {
	var root archiveNode
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	var names []string
	seen := map[string]bool{}
	var walk func(n archiveNode)
	walk = func(n archiveNode) {
		if name, ok := strings.CutPrefix(n.Path, storePrefix); ok && name != "" && !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
		keys := make([]string, 0, len(n.Inputs))
		for k := range n.Inputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(n.Inputs[k])
		}
	}
	walk(root)
	return names, nil
}
