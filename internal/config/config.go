package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/BurntSushi/toml"
)

// Name is used for every XDG sub-directory and the binary itself.
const Name = "envoluntary"

// Environment variables that override file locations.
const (
	ConfigPathEnv = "ENVOLUNTARY_CONFIG_PATH"
	CacheDirEnv   = "ENVOLUNTARY_CACHE_DIR"
)

// Config holds the top-level envoluntary configuration.
type Config struct {
	// CacheDir overrides the profile cache location. Empty means XDG cache.
	CacheDir string `toml:"cache_dir,omitempty"`
	// LockTimeout bounds how long an export waits on another shell's build
	// of the same flake, as a Go duration string. Empty waits forever.
	LockTimeout string  `toml:"lock_timeout,omitempty"`
	Entries     []Entry `toml:"entries"`
}

// Entry maps a directory pattern to a flake.
type Entry struct {
	Pattern         string `toml:"pattern,omitempty" json:"pattern,omitempty"`
	PatternAdjacent string `toml:"pattern_adjacent,omitempty" json:"pattern_adjacent,omitempty"`
	FlakeReference  string `toml:"flake_reference" json:"flake_reference"`
	Impure          *bool  `toml:"impure,omitempty" json:"impure,omitempty"`
}

// IsImpure treats a missing impure key as false.
func (e Entry) IsImpure() bool {
	return e.Impure != nil && *e.Impure
}

// Validate checks that the entry can be compiled and points at a flake.
func (e Entry) Validate() error {
	if e.FlakeReference == "" {
		return fmt.Errorf("entry has no flake_reference")
	}
	if e.Pattern == "" && e.PatternAdjacent == "" {
		return fmt.Errorf("entry for %q needs pattern or pattern_adjacent", e.FlakeReference)
	}
	if e.Pattern != "" {
		if _, err := regexp.Compile(e.Pattern); err != nil {
			return fmt.Errorf("invalid pattern %q: %w", e.Pattern, err)
		}
	}
	if e.PatternAdjacent != "" {
		if _, err := regexp.Compile(e.PatternAdjacent); err != nil {
			return fmt.Errorf("invalid pattern_adjacent %q: %w", e.PatternAdjacent, err)
		}
	}
	return nil
}

// LockTimeoutDuration parses LockTimeout. Zero means no limit.
func (c *Config) LockTimeoutDuration() (time.Duration, error) {
	if c.LockTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.LockTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid lock_timeout %q: %w", c.LockTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid lock_timeout %q: must not be negative", c.LockTimeout)
	}
	return d, nil
}

// Paths returns standard XDG-compliant paths.
type Paths struct {
	ConfigDir  string
	DataDir    string
	CacheDir   string
	StateDir   string
	ConfigFile string
	DBFile     string
}

// GetPaths returns the resolved paths, respecting XDG env vars and the
// ENVOLUNTARY_* overrides.
func GetPaths() Paths {
	home, _ := os.UserHomeDir()

	configDir := envOr("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	dataDir := envOr("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
	cacheDir := envOr("XDG_CACHE_HOME", filepath.Join(home, ".cache"))
	stateDir := envOr("XDG_STATE_HOME", filepath.Join(home, ".local", "state"))

	appConfig := filepath.Join(configDir, Name)
	appData := filepath.Join(dataDir, Name)

	return Paths{
		ConfigDir:  appConfig,
		DataDir:    appData,
		CacheDir:   envOr(CacheDirEnv, filepath.Join(cacheDir, Name)),
		StateDir:   filepath.Join(stateDir, Name),
		ConfigFile: envOr(ConfigPathEnv, filepath.Join(appConfig, "config.toml")),
		DBFile:     filepath.Join(appData, "history.db"),
	}
}

// EnsureDirs creates all required directories.
func (p Paths) EnsureDirs() error {
	dirs := []string{p.ConfigDir, p.DataDir, p.CacheDir, p.StateDir}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// ResolvePath returns provided when set, otherwise the default config file.
func ResolvePath(provided string) string {
	if provided != "" {
		return provided
	}
	return GetPaths().ConfigFile
}

// ResolveCacheDir picks the cache directory: flag, then config, then XDG.
func ResolveCacheDir(provided string, cfg *Config) string {
	if provided != "" {
		return provided
	}
	if cfg != nil && cfg.CacheDir != "" {
		return expandHome(cfg.CacheDir)
	}
	return GetPaths().CacheDir
}

// Load reads config from path, returning defaults if not found.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes config to path, creating parent directories.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// AddEntry validates e and appends it to the config file at path.
func AddEntry(path string, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	cfg.Entries = append(cfg.Entries, e)
	return Save(cfg, path)
}

// BoolPtr returns a pointer to a bool value.
func BoolPtr(v bool) *bool {
	return &v
}

func defaultConfig() *Config {
	return &Config{}
}

func expandHome(p string) string {
	if p == "~" || len(p) > 1 && p[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[1:])
		}
	}
	return p
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
