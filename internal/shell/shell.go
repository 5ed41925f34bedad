// Package shell renders environment transitions in the syntax of each
// supported shell and generates the hook each shell evaluates at startup.
package shell

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rnwolfe/envoluntary/internal/envdiff"
)

// Supported shell types.
const (
	Bash    = "bash"
	Zsh     = "zsh"
	Fish    = "fish"
	Nushell = "nushell"
	JSON    = "json"
)

// listVars are split on ':' for shells that model them as lists.
var listVars = map[string]bool{
	"PATH":          true,
	"XDG_DATA_DIRS": true,
}

// Dialect renders a transition as a script for one shell.
type Dialect interface {
	Name() string
	// Render returns the script and one RenderError per variable that had
	// to be dropped.
	Render(t envdiff.Transition) (string, []error)
	// Representable returns a *RenderError when name=value cannot be
	// exported in this shell.
	Representable(name, value string) error
}

var dialects = map[string]Dialect{
	Bash:    posix{name: Bash},
	Zsh:     posix{name: Zsh},
	Fish:    fish{},
	Nushell: jsonDialect{name: Nushell},
	JSON:    jsonDialect{name: JSON, indent: true},
}

// hooked lists the dialects that can be installed as a prompt hook.
var hooked = []string{Bash, Zsh, Fish, Nushell}

// ValidShell returns true if name can be used as an export dialect.
func ValidShell(name string) bool {
	_, ok := dialects[name]
	return ok
}

// ValidHookShell returns true if name has a prompt hook.
func ValidHookShell(name string) bool {
	for _, s := range hooked {
		if s == name {
			return true
		}
	}
	return false
}

// For returns the dialect called name.
func For(name string) (Dialect, error) {
	d, ok := dialects[name]
	if !ok {
		return nil, ShellError(name)
	}
	return d, nil
}

// Names returns all export dialect names, sorted.
func Names() []string {
	out := make([]string, 0, len(dialects))
	for n := range dialects {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ShellError is returned for unsupported shell types.
func ShellError(name string) error {
	return fmt.Errorf("unknown shell %q, supported: %s", name, strings.Join(Names(), ", "))
}

// RenderError reports a variable a dialect cannot represent.
type RenderError struct {
	Shell string
	Name  string
	Err   error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("%s: cannot export %s: %v", e.Shell, e.Name, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
