package shell

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rnwolfe/envoluntary/internal/envdiff"
	"mvdan.cc/sh/v3/syntax"
)

var (
	errNUL     = errors.New("value contains a NUL byte")
	errBadName = errors.New("invalid variable name")
	errNotUTF8 = errors.New("value is not valid UTF-8")
)

// validName accepts the names every supported shell can assign.
func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

// posix renders for bash and zsh.
type posix struct{ name string }

func (p posix) Name() string { return p.name }

func (p posix) Render(t envdiff.Transition) (string, []error) {
	var lines []string
	var errs []error
	for _, name := range t.Unset {
		if !validName(name) {
			errs = append(errs, &RenderError{Shell: p.name, Name: name, Err: errBadName})
			continue
		}
		lines = append(lines, "unset "+name+";")
	}
	for _, v := range t.Set {
		if err := p.Representable(v.Name, v.Value); err != nil {
			errs = append(errs, err)
			continue
		}
		q, _ := posixQuote(v.Value)
		lines = append(lines, fmt.Sprintf("export %s=%s;", v.Name, q))
	}
	return joinLines(lines), errs
}

func (p posix) Representable(name, value string) error {
	if !validName(name) {
		return &RenderError{Shell: p.name, Name: name, Err: errBadName}
	}
	if _, err := posixQuote(value); err != nil {
		return &RenderError{Shell: p.name, Name: name, Err: err}
	}
	return nil
}

func posixQuote(v string) (string, error) {
	if strings.IndexByte(v, 0) >= 0 {
		return "", errNUL
	}
	if v == "" {
		return "''", nil
	}
	return syntax.Quote(v, syntax.LangBash)
}

type fish struct{}

func (fish) Name() string { return Fish }

func (f fish) Render(t envdiff.Transition) (string, []error) {
	var lines []string
	var errs []error
	for _, name := range t.Unset {
		if !validName(name) {
			errs = append(errs, &RenderError{Shell: Fish, Name: name, Err: errBadName})
			continue
		}
		lines = append(lines, "set -e -g "+name+";")
	}
	for _, v := range t.Set {
		if err := f.Representable(v.Name, v.Value); err != nil {
			errs = append(errs, err)
			continue
		}
		parts := []string{v.Value}
		if listVars[v.Name] {
			parts = strings.Split(v.Value, ":")
		}
		quoted := make([]string, len(parts))
		for i, p := range parts {
			quoted[i] = fishQuote(p)
		}
		lines = append(lines, fmt.Sprintf("set -x -g %s %s;", v.Name, strings.Join(quoted, " ")))
	}
	return joinLines(lines), errs
}

func (fish) Representable(name, value string) error {
	if !validName(name) {
		return &RenderError{Shell: Fish, Name: name, Err: errBadName}
	}
	if strings.IndexByte(value, 0) >= 0 {
		return &RenderError{Shell: Fish, Name: name, Err: errNUL}
	}
	return nil
}

// fishQuote single-quotes v. Inside fish single quotes only \ and ' are
// special.
func fishQuote(v string) string {
	if v == "" {
		return "''"
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// jsonDialect renders a flat object of name to value, with null for
// variables to unset. Nushell reads it with `from json | load-env`.
type jsonDialect struct {
	name   string
	indent bool
}

func (j jsonDialect) Name() string { return j.name }

func (j jsonDialect) Render(t envdiff.Transition) (string, []error) {
	type field struct {
		name  string
		value *string
	}
	var fields []field
	var errs []error
	for _, name := range t.Unset {
		if !utf8.ValidString(name) {
			errs = append(errs, &RenderError{Shell: j.name, Name: name, Err: errNotUTF8})
			continue
		}
		fields = append(fields, field{name: name})
	}
	for _, v := range t.Set {
		if err := j.Representable(v.Name, v.Value); err != nil {
			errs = append(errs, err)
			continue
		}
		value := v.Value
		fields = append(fields, field{name: v.Name, value: &value})
	}

	if len(fields) == 0 {
		return "{}", errs
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if j.indent {
			buf.WriteString("\n  ")
		}
		key, _ := json.Marshal(f.name)
		buf.Write(key)
		buf.WriteByte(':')
		if j.indent {
			buf.WriteByte(' ')
		}
		if f.value == nil {
			buf.WriteString("null")
			continue
		}
		val, _ := json.Marshal(*f.value)
		buf.Write(val)
	}
	if j.indent {
		buf.WriteByte('\n')
	}
	buf.WriteByte('}')
	return buf.String(), errs
}

func (j jsonDialect) Representable(name, value string) error {
	if !utf8.ValidString(name) || !utf8.ValidString(value) {
		return &RenderError{Shell: j.name, Name: name, Err: errNotUTF8}
	}
	return nil
}

func joinLines(lines []string) string {
	if len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n") + "\n"
}
