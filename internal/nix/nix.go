// Package nix drives the nix CLI: it resolves the binary, checks that it
// is recent enough for flakes and builds development environments for
// the profile cache.
//
// The binary is resolved from PATH first (works inside nix develop and on
// NixOS), then from the Determinate Nix profile directory.
package nix

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// determinateProfileBin is where Determinate Nix installs its binaries.
// It is outside PATH by default.
const determinateProfileBin = "/nix/var/nix/profiles/default/bin"

// experimentalFeatures is passed to every invocation so flakes work on
// installations that have not enabled them in nix.conf.
var experimentalFeatures = []string{"--extra-experimental-features", "nix-command flakes"}

// FindBinary resolves a Nix binary by name, checking PATH first and then
// the Determinate Nix installation directory.
func FindBinary(name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}

	determinatePath := filepath.Join(determinateProfileBin, name)
	if _, err := os.Stat(determinatePath); err == nil {
		return determinatePath, nil
	}

	return "", fmt.Errorf("%s not found on PATH or at %s, install Nix first", name, determinatePath)
}

// Runner executes nix commands.
type Runner struct {
	// Binary is the nix executable. Empty means resolve with FindBinary
	// on each call.
	Binary string
}

// Run executes "nix <args>" with flakes enabled and returns stdout.
// Stderr is captured and included in error messages.
func (r *Runner) Run(ctx context.Context, args ...string) (string, error) {
	binary := r.Binary
	if binary == "" {
		var err error
		binary, err = FindBinary("nix")
		if err != nil {
			return "", err
		}
	}

	full := append(append([]string(nil), experimentalFeatures...), args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, binary, full...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", formatError("nix", args, &stderr, err)
	}
	return stdout.String(), nil
}

// formatError prefers nix's own stderr over the generic exec error.
func formatError(binaryName string, args []string, stderr *bytes.Buffer, err error) error {
	commandString := binaryName + " " + strings.Join(args, " ")
	stderrText := strings.TrimSpace(stderr.String())
	if stderrText != "" {
		return fmt.Errorf("%s: %s", commandString, stderrText)
	}
	return fmt.Errorf("%s: %w", commandString, err)
}
