package envdiff

import (
	"reflect"
	"testing"
)

func target(pairs ...string) *Vars {
	v := NewVars()
	for i := 0; i+1 < len(pairs); i += 2 {
		v.Set(pairs[i], pairs[i+1])
	}
	return v
}

func setNames(t Transition) []string {
	var out []string
	for _, v := range t.Set {
		if v.Name != MarkerVar {
			out = append(out, v.Name)
		}
	}
	return out
}

func run(t *testing.T, in Input) Result {
	t.Helper()
	res, err := Diff(in)
	if err != nil {
		t.Fatalf("Diff() error: %v", err)
	}
	return res
}

// step applies a diff to env and returns the new env and result.
func step(t *testing.T, env map[string]string, refs []string, tgt *Vars) (map[string]string, Result) {
	t.Helper()
	var prev State
	if raw, ok := env[MarkerVar]; ok {
		s, err := DecodeState(raw)
		if err != nil {
			t.Fatalf("DecodeState() error: %v", err)
		}
		prev = s
	}
	res := run(t, Input{Previous: prev, Live: env, Target: tgt, FlakeReferences: refs})
	return res.Transition.Apply(env), res
}

func TestDiffFromEmpty(t *testing.T) {
	res := run(t, Input{
		Live:            map[string]string{"HOME": "/home/u"},
		Target:          target("NODE_PATH", "/nix/store/a", "IN_NIX_SHELL", "impure"),
		FlakeReferences: []string{"/p"},
	})

	if got := setNames(res.Transition); !reflect.DeepEqual(got, []string{"NODE_PATH", "IN_NIX_SHELL"}) {
		t.Errorf("set = %v", got)
	}
	if len(res.Transition.Unset) != 0 {
		t.Errorf("unset = %v, want none", res.Transition.Unset)
	}
	last := res.Transition.Set[len(res.Transition.Set)-1]
	if last.Name != MarkerVar {
		t.Errorf("last set = %q, want marker", last.Name)
	}
	if !reflect.DeepEqual(res.State.Names(), []string{"NODE_PATH", "IN_NIX_SHELL"}) {
		t.Errorf("managed = %v", res.State.Names())
	}
}

func TestDiffIdempotent(t *testing.T) {
	env := map[string]string{"HOME": "/home/u"}
	tgt := target("NODE_PATH", "/nix/store/a", "FOO", "bar")

	env, _ = step(t, env, []string{"/p"}, tgt)
	_, res := step(t, env, []string{"/p"}, tgt)
	if !res.Transition.Empty() {
		t.Errorf("second diff not empty: %+v", res.Transition)
	}
}

func TestDiffRoundTrip(t *testing.T) {
	orig := map[string]string{"HOME": "/home/u", "FOO": "original"}
	tgt := target("FOO", "shadowed", "BAR", "new")

	env, _ := step(t, orig, []string{"/p"}, tgt)
	if env["FOO"] != "shadowed" || env["BAR"] != "new" {
		t.Fatalf("activation env = %v", env)
	}
	env, res := step(t, env, nil, nil)
	if !reflect.DeepEqual(env, orig) {
		t.Errorf("after teardown env = %v, want %v", env, orig)
	}
	if !res.State.Empty() {
		t.Errorf("state after teardown = %+v, want empty", res.State)
	}
}

func TestDiffNoClobber(t *testing.T) {
	env := map[string]string{}
	tgt := target("FOO", "engine", "BAR", "engine")
	env, _ = step(t, env, []string{"/p"}, tgt)

	env["FOO"] = "user"
	env, res := step(t, env, []string{"/p"}, tgt)
	if env["FOO"] != "user" {
		t.Errorf("FOO = %q, want user value kept", env["FOO"])
	}
	if !reflect.DeepEqual(res.Released, []string{"FOO"}) {
		t.Errorf("released = %v", res.Released)
	}
	if _, ok := res.State.Lookup("FOO"); ok {
		t.Error("FOO still managed")
	}

	// Subsequent prompts keep leaving it alone.
	env, res = step(t, env, []string{"/p"}, tgt)
	if env["FOO"] != "user" || !res.Transition.Empty() {
		t.Errorf("FOO = %q, transition = %+v", env["FOO"], res.Transition)
	}

	// Teardown keeps the user value and unsets the rest.
	env, _ = step(t, env, nil, nil)
	if env["FOO"] != "user" {
		t.Errorf("FOO = %q after teardown", env["FOO"])
	}
	if _, ok := env["BAR"]; ok {
		t.Error("BAR still set after teardown")
	}
}

func TestDiffUserUnsetIsReleased(t *testing.T) {
	env, _ := step(t, map[string]string{}, []string{"/p"}, target("FOO", "x"))
	delete(env, "FOO")
	env, res := step(t, env, []string{"/p"}, target("FOO", "x"))
	if _, ok := env["FOO"]; ok {
		t.Error("FOO re-exported after user unset it")
	}
	if !reflect.DeepEqual(res.Released, []string{"FOO"}) {
		t.Errorf("released = %v", res.Released)
	}
}

func TestDiffSwitchEnvironments(t *testing.T) {
	env := map[string]string{"HOME": "/home/u"}
	env, _ = step(t, env, []string{"/a"}, target("NODE_PATH", "/a", "ONLY_A", "1"))
	env, res := step(t, env, []string{"/b"}, target("NODE_PATH", "/b", "ONLY_B", "1"))

	if env["NODE_PATH"] != "/b" || env["ONLY_B"] != "1" {
		t.Errorf("env = %v", env)
	}
	if _, ok := env["ONLY_A"]; ok {
		t.Error("ONLY_A leaked")
	}
	if !reflect.DeepEqual(res.Transition.Unset, []string{"ONLY_A"}) {
		t.Errorf("unset = %v", res.Transition.Unset)
	}
	if !reflect.DeepEqual(res.State.FlakeReferences, []string{"/b"}) {
		t.Errorf("refs = %v", res.State.FlakeReferences)
	}
}

func TestDiffChangedValueOfManaged(t *testing.T) {
	env, _ := step(t, map[string]string{"FOO": "orig"}, []string{"/p"}, target("FOO", "v1"))
	env, res := step(t, env, []string{"/p"}, target("FOO", "v2"))
	if env["FOO"] != "v2" {
		t.Errorf("FOO = %q", env["FOO"])
	}
	m, _ := res.State.Lookup("FOO")
	if m.Previous == nil || *m.Previous != "orig" {
		t.Errorf("previous = %v, want orig", m.Previous)
	}
	env, _ = step(t, env, nil, nil)
	if env["FOO"] != "orig" {
		t.Errorf("FOO = %q after teardown, want orig", env["FOO"])
	}
}

func TestDiffNothingLoadedNoMarker(t *testing.T) {
	res := run(t, Input{Live: map[string]string{"HOME": "/h"}})
	if !res.Transition.Empty() {
		t.Errorf("transition = %+v, want empty", res.Transition)
	}
}

func TestDiffTargetCannotSetMarker(t *testing.T) {
	res := run(t, Input{
		Live:            map[string]string{},
		Target:          target(MarkerVar, "bogus", "A", "1"),
		FlakeReferences: []string{"/p"},
	})
	for _, v := range res.Transition.Set {
		if v.Name == MarkerVar && v.Value == "bogus" {
			t.Error("target overwrote marker")
		}
	}
	if _, ok := res.State.Lookup(MarkerVar); ok {
		t.Error("marker is managed")
	}
}

func TestBaseline(t *testing.T) {
	prev := "/usr/bin"
	state := State{Managed: []Managed{
		{Name: "PATH", Value: "/nix/bin:/usr/bin", Previous: &prev},
		{Name: "XDG_DATA_DIRS", Value: "/nix/share"},
	}}
	live := map[string]string{
		"PATH":          "/nix/bin:/usr/bin",
		"XDG_DATA_DIRS": "/nix/share",
		"MANPATH":       "/man",
	}

	tests := []struct {
		name   string
		live   map[string]string
		want   string
		wantOK bool
	}{
		{"PATH", live, "/usr/bin", true},
		{"XDG_DATA_DIRS", live, "", false},
		{"MANPATH", live, "/man", true},
		{"PATH", map[string]string{"PATH": "/user/changed"}, "/user/changed", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Baseline(state, tt.live, tt.name)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Baseline(%q) = %q, %v; want %q, %v", tt.name, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestApply(t *testing.T) {
	env := map[string]string{"A": "1", "B": "2"}
	got := Transition{Set: []Var{{Name: "C", Value: "3"}}, Unset: []string{"A"}}.Apply(env)
	want := map[string]string{"B": "2", "C": "3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Apply() = %v, want %v", got, want)
	}
	if env["A"] != "1" {
		t.Error("Apply mutated its input")
	}
}
