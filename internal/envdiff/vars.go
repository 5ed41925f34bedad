package envdiff

import (
	"sort"
	"strings"
)

// Var is one variable assignment.
type Var struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Vars is a string map that remembers first-insertion order.
type Vars struct {
	order  []string
	values map[string]string
}

// NewVars returns an empty Vars.
func NewVars() *Vars {
	return &Vars{values: map[string]string{}}
}

// VarsFromMap builds Vars from m in sorted key order.
func VarsFromMap(m map[string]string) *Vars {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	v := NewVars()
	for _, k := range keys {
		v.Set(k, m[k])
	}
	return v
}

// Set assigns name. Overwriting keeps the original position.
func (v *Vars) Set(name, value string) {
	if _, ok := v.values[name]; !ok {
		v.order = append(v.order, name)
	}
	v.values[name] = value
}

// Get returns the value for name.
func (v *Vars) Get(name string) (string, bool) {
	if v == nil {
		return "", false
	}
	val, ok := v.values[name]
	return val, ok
}

// Delete removes name.
func (v *Vars) Delete(name string) {
	if _, ok := v.values[name]; !ok {
		return
	}
	delete(v.values, name)
	for i, n := range v.order {
		if n == name {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of variables.
func (v *Vars) Len() int {
	if v == nil {
		return 0
	}
	return len(v.order)
}

// Names returns the names in insertion order.
func (v *Vars) Names() []string {
	if v == nil {
		return nil
	}
	out := make([]string, len(v.order))
	copy(out, v.order)
	return out
}

// Each calls fn for every variable in insertion order.
func (v *Vars) Each(fn func(name, value string)) {
	if v == nil {
		return
	}
	for _, n := range v.order {
		fn(n, v.values[n])
	}
}

// Merge copies other into v. Values from other win.
func (v *Vars) Merge(other *Vars) {
	other.Each(func(name, value string) {
		v.Set(name, value)
	})
}

// Map returns a copy as a plain map.
func (v *Vars) Map() map[string]string {
	out := make(map[string]string, v.Len())
	v.Each(func(name, value string) {
		out[name] = value
	})
	return out
}

// MergeDelimited rewrites the PATH-like variable name in target so that
// target's own entries come first, followed by the entries of baseline.
// Empty entries and duplicates are dropped. It is a no-op when target
// does not set name or baseline is empty.
func MergeDelimited(target *Vars, name, baseline, sep string) {
	value, ok := target.Get(name)
	if !ok || baseline == "" {
		return
	}
	seen := map[string]bool{}
	var parts []string
	for _, p := range append(strings.Split(value, sep), strings.Split(baseline, sep)...) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		parts = append(parts, p)
	}
	target.Set(name, strings.Join(parts, sep))
}
