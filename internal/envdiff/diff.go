// Package envdiff computes the variable-level transition between the
// environment the engine exported last time and the one it should export
// now.
package envdiff

// Transition is what the shell has to apply.
type Transition struct {
	Set   []Var
	Unset []string
}

// Empty reports whether the transition changes nothing.
func (t Transition) Empty() bool {
	return len(t.Set) == 0 && len(t.Unset) == 0
}

// Apply returns a copy of env with the transition applied.
func (t Transition) Apply(env map[string]string) map[string]string {
	out := make(map[string]string, len(env)+len(t.Set))
	for k, v := range env {
		out[k] = v
	}
	for _, name := range t.Unset {
		delete(out, name)
	}
	for _, v := range t.Set {
		out[v.Name] = v.Value
	}
	return out
}

// Input describes one diff.
type Input struct {
	// Previous is the state decoded from the marker variable.
	Previous State
	// Live is the environment of the invoking shell.
	Live map[string]string
	// Target is the merged environment of all loaded flakes.
	Target *Vars
	// FlakeReferences are the flakes Target was built from. Empty means
	// nothing should be loaded.
	FlakeReferences []string
}

// Result is the outcome of Diff.
type Result struct {
	Transition Transition
	State      State
	// Released lists variables found changed by the user during this diff.
	// They are no longer managed.
	Released []string
}

// Diff computes the minimal transition from in.Previous to in.Target.
//
// A managed variable whose live value no longer equals what the engine set
// is released: it is neither overwritten nor unset. Managed variables that
// are absent from the target are restored to their pre-activation value, or
// unset when they had none. The marker variable is included in the
// transition only when its encoded value changes.
func Diff(in Input) (Result, error) {
	loaded := len(in.FlakeReferences) > 0
	live := in.Live
	if live == nil {
		live = map[string]string{}
	}

	var res Result
	released := map[string]bool{}
	var releasedOrder []string
	if loaded {
		for _, name := range in.Previous.Released {
			if !released[name] {
				released[name] = true
				releasedOrder = append(releasedOrder, name)
			}
		}
	}

	alive := map[string]Managed{}
	for _, m := range in.Previous.Managed {
		if lv, ok := live[m.Name]; !ok || lv != m.Value {
			res.Released = append(res.Released, m.Name)
			if loaded && !released[m.Name] {
				released[m.Name] = true
				releasedOrder = append(releasedOrder, m.Name)
			}
			continue
		}
		alive[m.Name] = m
	}

	var managed []Managed
	seen := map[string]bool{}
	if loaded {
		in.Target.Each(func(name, value string) {
			if name == MarkerVar || released[name] {
				return
			}
			seen[name] = true
			if m, ok := alive[name]; ok {
				if m.Value != value {
					res.Transition.Set = append(res.Transition.Set, Var{Name: name, Value: value})
					m.Value = value
				}
				managed = append(managed, m)
				return
			}
			m := Managed{Name: name, Value: value}
			if lv, ok := live[name]; ok {
				prev := lv
				m.Previous = &prev
			}
			res.Transition.Set = append(res.Transition.Set, Var{Name: name, Value: value})
			managed = append(managed, m)
		})
	}

	for _, m := range in.Previous.Managed {
		if _, ok := alive[m.Name]; !ok || seen[m.Name] {
			continue
		}
		if m.Previous != nil {
			res.Transition.Set = append(res.Transition.Set, Var{Name: m.Name, Value: *m.Previous})
		} else {
			res.Transition.Unset = append(res.Transition.Unset, m.Name)
		}
	}

	if loaded {
		res.State = State{
			Version:         StateVersion,
			FlakeReferences: append([]string(nil), in.FlakeReferences...),
			Managed:         managed,
			Released:        releasedOrder,
		}
	}

	current, hasMarker := live[MarkerVar]
	if res.State.Empty() {
		if hasMarker {
			res.Transition.Unset = append(res.Transition.Unset, MarkerVar)
		}
		return res, nil
	}
	encoded, err := EncodeState(res.State)
	if err != nil {
		return Result{}, err
	}
	if !hasMarker || current != encoded {
		res.Transition.Set = append(res.Transition.Set, Var{Name: MarkerVar, Value: encoded})
	}
	return res, nil
}

// Baseline returns the value name had before the engine touched it: the
// recorded previous value for a managed variable that is still intact,
// the live value otherwise.
func Baseline(previous State, live map[string]string, name string) (string, bool) {
	if m, ok := previous.Lookup(name); ok {
		if lv, present := live[name]; present && lv == m.Value {
			if m.Previous == nil {
				return "", false
			}
			return *m.Previous, true
		}
	}
	v, ok := live[name]
	return v, ok
}
