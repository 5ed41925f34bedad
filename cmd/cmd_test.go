package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/rnwolfe/envoluntary/internal/cache"
	"github.com/rnwolfe/envoluntary/internal/envdiff"
)

// cmdTestEnv points every XDG location and override at a temp dir.
func cmdTestEnv(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", tmpDir+"/config")
	t.Setenv("XDG_DATA_HOME", tmpDir+"/data")
	t.Setenv("XDG_CACHE_HOME", tmpDir+"/cache")
	t.Setenv("XDG_STATE_HOME", tmpDir+"/state")
	t.Setenv("ENVOLUNTARY_CONFIG_PATH", "")
	t.Setenv("ENVOLUNTARY_CACHE_DIR", "")
	t.Setenv(envdiff.MarkerVar, "")
	os.Unsetenv(envdiff.MarkerVar)
	configPath = ""
	shellConfigPath = ""
	shellCacheDir = ""
	return tmpDir
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w
	defer func() {
		os.Stdout = old
		r.Close()
	}()

	fn()

	w.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		t.Fatalf("io.Copy: %v", err)
	}
	return buf.String()
}

func staticBuilder(vars map[string]string, calls *int) cache.Builder {
	return cache.BuilderFunc(func(context.Context, cache.Key, string) (*cache.Build, error) {
		*calls++
		return &cache.Build{Variables: vars}, nil
	})
}
