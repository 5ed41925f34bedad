package nix

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// ignoredVars are set by bash itself or describe the build sandbox rather
// than the development environment.
var ignoredVars = map[string]bool{
	"_":               true,
	"BASHOPTS":        true,
	"COLUMNS":         true,
	"DIRENV_IN_ENVRC": true,
	"EDITOR":          true,
	"HOME":            true,
	"HOSTNAME":        true,
	"LINES":           true,
	"NIX_BUILD_TOP":   true,
	"OLDPWD":          true,
	"PAGER":           true,
	"PS1":             true,
	"PS2":             true,
	"PWD":             true,
	"SHELL":           true,
	"SHELLOPTS":       true,
	"SHLVL":           true,
	"TEMP":            true,
	"TEMPDIR":         true,
	"TERM":            true,
	"TMP":             true,
	"TMPDIR":          true,
	"TZ":              true,
	"UID":             true,
	"EUID":            true,
	"PPID":            true,
}

// Ignored reports whether name is dropped from captured environments.
func Ignored(name string) bool {
	return ignoredVars[name] || strings.HasPrefix(name, "BASH_FUNC_")
}

// CaptureEnv sources rcFile in a clean bash whose environment is exactly
// env and returns the exported variables afterwards. Output of the rc
// script goes to stderr, so messages like a devshell banner are shown
// without ending up in the evaluated export.
func CaptureEnv(ctx context.Context, bash, rcFile string, env map[string]string, stderr io.Writer) (map[string]string, error) {
	out, err := os.CreateTemp(filepath.Dir(rcFile), ".env-*")
	if err != nil {
		return nil, err
	}
	outName := out.Name()
	_ = out.Close()
	defer os.Remove(outName)

	envBin, err := exec.LookPath("env")
	if err != nil {
		return nil, fmt.Errorf("locating env: %w", err)
	}

	script := fmt.Sprintf("source %s && %s -0 > %s", quote(rcFile), quote(envBin), quote(outName))
	command := exec.CommandContext(ctx, bash, "-c", script)
	command.Env = make([]string, 0, len(env))
	for k, v := range env {
		command.Env = append(command.Env, k+"="+v)
	}
	var errBuf bytes.Buffer
	if stderr == nil {
		stderr = io.Discard
	}
	command.Stdout = stderr
	command.Stderr = io.MultiWriter(stderr, &errBuf)
	if err := command.Run(); err != nil {
		return nil, formatError("bash", []string{"-c", "source " + rcFile}, &errBuf, err)
	}

	data, err := os.ReadFile(outName)
	if err != nil {
		return nil, err
	}
	return parseEnv0(data), nil
}

// parseEnv0 parses `env -0` output and drops ignored variables.
func parseEnv0(data []byte) map[string]string {
	vars := map[string]string{}
	for _, entry := range bytes.Split(data, []byte{0}) {
		name, value, ok := strings.Cut(string(entry), "=")
		if !ok || name == "" || Ignored(name) {
			continue
		}
		vars[name] = value
	}
	return vars
}

func quote(s string) string {
	q, err := syntax.Quote(s, syntax.LangBash)
	if err != nil {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return q
}
