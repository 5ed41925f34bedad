// Package match decides which configured entries apply to a directory.
package match

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rnwolfe/envoluntary/internal/config"
)

// ConfigError reports an entry that could not be compiled.
type ConfigError struct {
	Index int
	Entry config.Entry
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config entry %d (%s): %v", e.Index, e.Entry.FlakeReference, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

type compiled struct {
	entry    config.Entry
	pattern  *regexp.Regexp
	adjacent *regexp.Regexp
}

// Matcher holds the compiled entries in configured order.
type Matcher struct {
	entries []compiled
}

// Compile compiles every entry independently. Entries that fail are
// reported as *ConfigError and left out; the rest stay usable.
func Compile(entries []config.Entry, home string) (*Matcher, []error) {
	m := &Matcher{}
	var errs []error
	for i, e := range entries {
		c, err := compile(e, home)
		if err != nil {
			errs = append(errs, &ConfigError{Index: i, Entry: e, Err: err})
			continue
		}
		m.entries = append(m.entries, c)
	}
	return m, errs
}

func compile(e config.Entry, home string) (compiled, error) {
	if e.FlakeReference == "" {
		return compiled{}, fmt.Errorf("missing flake_reference")
	}
	if e.Pattern == "" && e.PatternAdjacent == "" {
		return compiled{}, fmt.Errorf("missing pattern")
	}
	c := compiled{entry: e}
	if e.Pattern != "" {
		re, err := regexp.Compile(anchor(expandTilde(e.Pattern, home)))
		if err != nil {
			return compiled{}, fmt.Errorf("pattern: %w", err)
		}
		c.pattern = re
	}
	if e.PatternAdjacent != "" {
		re, err := regexp.Compile(anchor(e.PatternAdjacent))
		if err != nil {
			return compiled{}, fmt.Errorf("pattern_adjacent: %w", err)
		}
		c.adjacent = re
	}
	return c, nil
}

// Len returns the number of usable entries.
func (m *Matcher) Len() int {
	return len(m.entries)
}

// Match returns the entries that apply to path, in configured order.
// No match is an empty result, not an error.
func (m *Matcher) Match(path string) []config.Entry {
	dir := normalize(path)
	var names []string
	listed := false

	var out []config.Entry
	for _, c := range m.entries {
		if c.pattern != nil && !c.pattern.MatchString(dir) && !c.pattern.MatchString(withSlash(dir)) {
			continue
		}
		if c.adjacent != nil {
			if !listed {
				names = listNames(dir)
				listed = true
			}
			if !anyMatch(c.adjacent, names) {
				continue
			}
		}
		out = append(out, c.entry)
	}
	return out
}

// FlakeReferences extracts the flake references of entries, in order.
func FlakeReferences(entries []config.Entry) []string {
	refs := make([]string, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, e.FlakeReference)
	}
	return refs
}

// expandTilde replaces a leading ~ or ~/ with the quoted home directory.
// A ~ anywhere else, such as in [^~], is left to the regex.
func expandTilde(pattern, home string) string {
	if home == "" || !(pattern == "~" || strings.HasPrefix(pattern, "~/")) {
		return pattern
	}
	return regexp.QuoteMeta(home) + pattern[1:]
}

func anchor(pattern string) string {
	return "^(?:" + pattern + ")$"
}

func normalize(path string) string {
	if path == "" {
		return "/"
	}
	return filepath.Clean(path)
}

func withSlash(dir string) string {
	if strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}

// listNames lists one level of dir. Unreadable directories yield nothing.
func listNames(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func anyMatch(re *regexp.Regexp, names []string) bool {
	for _, n := range names {
		if re.MatchString(n) {
			return true
		}
	}
	return false
}
