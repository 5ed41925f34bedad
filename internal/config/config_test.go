package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestGetPaths(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	t.Setenv(CacheDirEnv, "")
	paths := GetPaths()

	if paths.ConfigDir == "" {
		t.Fatal("ConfigDir should not be empty")
	}
	if paths.CacheDir == "" {
		t.Fatal("CacheDir should not be empty")
	}
	if paths.ConfigFile == "" {
		t.Fatal("ConfigFile should not be empty")
	}
	if paths.DBFile == "" {
		t.Fatal("DBFile should not be empty")
	}
}

func TestGetPathsRespectsXDG(t *testing.T) {
	t.Setenv(ConfigPathEnv, "")
	t.Setenv(CacheDirEnv, "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/testxdg/config")
	t.Setenv("XDG_CACHE_HOME", "/tmp/testxdg/cache")

	paths := GetPaths()

	if paths.ConfigDir != "/tmp/testxdg/config/envoluntary" {
		t.Fatalf("expected /tmp/testxdg/config/envoluntary, got %s", paths.ConfigDir)
	}
	if paths.ConfigFile != "/tmp/testxdg/config/envoluntary/config.toml" {
		t.Fatalf("unexpected config file %s", paths.ConfigFile)
	}
	if paths.CacheDir != "/tmp/testxdg/cache/envoluntary" {
		t.Fatalf("expected /tmp/testxdg/cache/envoluntary, got %s", paths.CacheDir)
	}
}

func TestGetPathsRespectsOverrides(t *testing.T) {
	t.Setenv(ConfigPathEnv, "/etc/envoluntary.toml")
	t.Setenv(CacheDirEnv, "/var/cache/env")

	paths := GetPaths()
	if paths.ConfigFile != "/etc/envoluntary.toml" {
		t.Fatalf("ConfigFile = %s", paths.ConfigFile)
	}
	if paths.CacheDir != "/var/cache/env" {
		t.Fatalf("CacheDir = %s", paths.CacheDir)
	}
}

func TestEnsureDirs(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv(CacheDirEnv, "")
	t.Setenv("XDG_CONFIG_HOME", tmpDir+"/config")
	t.Setenv("XDG_DATA_HOME", tmpDir+"/data")
	t.Setenv("XDG_CACHE_HOME", tmpDir+"/cache")
	t.Setenv("XDG_STATE_HOME", tmpDir+"/state")

	paths := GetPaths()
	if err := paths.EnsureDirs(); err != nil {
		t.Fatalf("EnsureDirs failed: %v", err)
	}

	for _, dir := range []string{paths.ConfigDir, paths.DataDir, paths.CacheDir, paths.StateDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("dir %s not created: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("%s is not a directory", dir)
		}
	}
}

func TestLoadMissingReturnsEmpty(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(cfg.Entries))
	}
}

func TestLoadEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
lock_timeout = "30s"

[[entries]]
pattern = "^/some/dir(/.*)?"
flake_reference = "github:owner/repo"

[[entries]]
pattern = ".*"
pattern_adjacent = ".*\\.toml"
flake_reference = "~/shells/rust"
impure = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(cfg.Entries))
	}
	if cfg.Entries[0].FlakeReference != "github:owner/repo" || cfg.Entries[0].IsImpure() {
		t.Fatalf("unexpected first entry: %+v", cfg.Entries[0])
	}
	if cfg.Entries[1].PatternAdjacent != `.*\.toml` || !cfg.Entries[1].IsImpure() {
		t.Fatalf("unexpected second entry: %+v", cfg.Entries[1])
	}
	d, err := cfg.LockTimeoutDuration()
	if err != nil || d != 30*time.Second {
		t.Fatalf("LockTimeoutDuration = %v, %v", d, err)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("[[entries]\npattern = "), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestAddEntryAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	if err := AddEntry(path, Entry{Pattern: "^/a(/.*)?", FlakeReference: "github:a/a"}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := AddEntry(path, Entry{Pattern: "^/b(/.*)?", FlakeReference: "github:b/b", Impure: BoolPtr(true)}); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(cfg.Entries))
	}
	if cfg.Entries[1].FlakeReference != "github:b/b" || !cfg.Entries[1].IsImpure() {
		t.Fatalf("unexpected entry: %+v", cfg.Entries[1])
	}
}

func TestAddEntryRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	tests := []struct {
		name  string
		entry Entry
		want  string
	}{
		{"bad regex", Entry{Pattern: "(", FlakeReference: "x"}, "invalid pattern"},
		{"bad adjacent", Entry{PatternAdjacent: "[", FlakeReference: "x"}, "invalid pattern_adjacent"},
		{"no flake", Entry{Pattern: ".*"}, "no flake_reference"},
		{"no patterns", Entry{FlakeReference: "x"}, "needs pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AddEntry(path, tt.entry)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("invalid entries must not create the config file")
	}
}

func TestLockTimeoutInvalid(t *testing.T) {
	cfg := &Config{LockTimeout: "soon"}
	if _, err := cfg.LockTimeoutDuration(); err == nil {
		t.Fatal("expected error")
	}
}

func TestResolveCacheDir(t *testing.T) {
	t.Setenv(CacheDirEnv, "/xdg/cache")
	if got := ResolveCacheDir("/flag", &Config{CacheDir: "/cfg"}); got != "/flag" {
		t.Fatalf("flag should win, got %s", got)
	}
	if got := ResolveCacheDir("", &Config{CacheDir: "/cfg"}); got != "/cfg" {
		t.Fatalf("config should win, got %s", got)
	}
	if got := ResolveCacheDir("", &Config{}); got != "/xdg/cache" {
		t.Fatalf("expected env default, got %s", got)
	}
}
