package nix

import (
	"context"
	"fmt"
	"regexp"

	version "github.com/hashicorp/go-version"
)

// MinimumVersion is the oldest nix with usable flake support.
const MinimumVersion = "2.10.0"

var (
	semverRe   = regexp.MustCompile(`[0-9]+\.[0-9]+\.[0-9]+`)
	constraint = version.MustConstraints(version.NewConstraint(">= " + MinimumVersion))
)

// CheckVersion runs `nix --version` and fails if the reported version is
// older than MinimumVersion.
func (r *Runner) CheckVersion(ctx context.Context) (*version.Version, error) {
	out, err := r.Run(ctx, "--version")
	if err != nil {
		return nil, err
	}
	return parseVersion(out)
}

func parseVersion(out string) (*version.Version, error) {
	if out == "" {
		return nil, fmt.Errorf("nix --version printed nothing")
	}
	raw := semverRe.FindString(out)
	if raw == "" {
		return nil, fmt.Errorf("no version found in %q", out)
	}
	v, err := version.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing nix version %q: %w", raw, err)
	}
	if !constraint.Check(v) {
		return v, fmt.Errorf("nix %s is too old for flakes, need %s or newer", v, MinimumVersion)
	}
	return v, nil
}
