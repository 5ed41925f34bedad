// Package hook runs one prompt cycle: match the directory, resolve the
// matched flakes through the profile cache and diff the result against
// what the shell already has.
//
// The cycle moves between three phases. Idle means nothing is loaded,
// Matched means entries apply but their environment has not reached this
// shell and Loaded means the environment is exported and tracked in the
// marker variable.
package hook

import (
	"context"
	"errors"
	"fmt"

	"github.com/rnwolfe/envoluntary/internal/cache"
	"github.com/rnwolfe/envoluntary/internal/config"
	"github.com/rnwolfe/envoluntary/internal/envdiff"
	"github.com/rnwolfe/envoluntary/internal/match"
)

// Phase is the controller state for this shell.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseMatched Phase = "matched"
	PhaseLoaded  Phase = "loaded"
)

// defaultListVars are merged with their pre-activation value instead of
// replaced.
var defaultListVars = []string{"PATH", "XDG_DATA_DIRS"}

// Request is the input of one cycle.
type Request struct {
	// Dir is the shell's working directory.
	Dir string
	// Env is the environment of the invoking shell, marker included.
	Env map[string]string
	// FlakeReferences bypasses matching when non-nil.
	FlakeReferences []string
	// Force rebuilds every resolved profile.
	Force bool
	// Representable, when set, vets every target variable. Variables it
	// rejects are neither exported nor recorded as managed.
	Representable func(name, value string) error
}

// Result is the outcome of one cycle.
type Result struct {
	// Previous is the phase the shell was in before the cycle.
	Previous Phase
	Phase    Phase
	Entries  []config.Entry
	Keys     []cache.Key
	// Built lists the keys the builder ran for.
	Built      []cache.Key
	Transition envdiff.Transition
	State      envdiff.State
	Released   []string
	Warnings   []error
}

// Controller ties the matcher, cache and builder together.
type Controller struct {
	matcher  *match.Matcher
	cache    *cache.Cache
	builder  cache.Builder
	listVars []string
	sep      string
}

// Option configures a Controller.
type Option func(*Controller)

// WithListVars replaces the set of PATH-like variables.
func WithListVars(names ...string) Option {
	return func(c *Controller) { c.listVars = names }
}

// New returns a Controller. matcher may be nil when every request carries
// explicit flake references.
func New(matcher *match.Matcher, c *cache.Cache, builder cache.Builder, opts ...Option) *Controller {
	ctl := &Controller{
		matcher:  matcher,
		cache:    c,
		builder:  builder,
		listVars: defaultListVars,
		sep:      ":",
	}
	for _, opt := range opts {
		opt(ctl)
	}
	return ctl
}

// Run executes one cycle. A build failure aborts the cycle: the error is
// returned and no transition is produced, so the shell keeps its current
// environment.
func (c *Controller) Run(ctx context.Context, req Request) (*Result, error) {
	res := &Result{}
	live := req.Env
	if live == nil {
		live = map[string]string{}
	}

	previous, err := decodeMarker(live)
	if err != nil {
		res.Warnings = append(res.Warnings, err)
	}
	res.Previous = PhaseIdle
	if len(previous.FlakeReferences) > 0 {
		res.Previous = PhaseLoaded
	}

	res.Keys, res.Entries = c.keys(req)
	res.Phase = PhaseIdle
	if len(res.Keys) > 0 {
		res.Phase = PhaseMatched
	}

	var target *envdiff.Vars
	var refs []string
	if res.Phase == PhaseMatched {
		target, err = c.resolve(ctx, res, req.Force)
		if err != nil {
			return nil, err
		}
		for _, k := range res.Keys {
			refs = append(refs, k.FlakeReference)
		}
		for _, name := range c.listVars {
			if baseline, ok := envdiff.Baseline(previous, live, name); ok {
				envdiff.MergeDelimited(target, name, baseline, c.sep)
			}
		}
		if req.Representable != nil {
			res.Warnings = append(res.Warnings, dropUnrepresentable(target, req.Representable)...)
		}
	}

	diff, err := envdiff.Diff(envdiff.Input{
		Previous:        previous,
		Live:            live,
		Target:          target,
		FlakeReferences: refs,
	})
	if err != nil {
		return nil, err
	}
	res.Transition = diff.Transition
	res.State = diff.State
	res.Released = diff.Released
	for _, name := range diff.Released {
		res.Warnings = append(res.Warnings, fmt.Errorf("%s was changed outside envoluntary and is no longer managed", name))
	}
	if res.Phase == PhaseMatched {
		res.Phase = PhaseLoaded
	}
	return res, nil
}

// keys returns the cache keys for req in configured order, without
// duplicates.
func (c *Controller) keys(req Request) ([]cache.Key, []config.Entry) {
	var keys []cache.Key
	var entries []config.Entry
	seen := map[cache.Key]bool{}
	add := func(k cache.Key) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}

	if req.FlakeReferences != nil {
		for _, ref := range req.FlakeReferences {
			add(cache.Key{FlakeReference: ref})
		}
		return keys, nil
	}
	if c.matcher == nil {
		return nil, nil
	}
	entries = c.matcher.Match(req.Dir)
	for _, e := range entries {
		add(cache.Key{FlakeReference: e.FlakeReference, Impure: e.IsImpure()})
	}
	return keys, entries
}

// resolve loads every key and merges the environments in order, later
// keys winning.
func (c *Controller) resolve(ctx context.Context, res *Result, force bool) (*envdiff.Vars, error) {
	builder := cache.BuilderFunc(func(ctx context.Context, key cache.Key, dir string) (*cache.Build, error) {
		res.Built = append(res.Built, key)
		return c.builder.Build(ctx, key, dir)
	})

	target := envdiff.NewVars()
	for _, key := range res.Keys {
		p, err := c.cache.Resolve(ctx, key, builder, force)
		if err != nil {
			var ce *cache.CacheError
			if !errors.As(err, &ce) {
				return nil, err
			}
			stale := c.cache.Lookup(key)
			if stale == nil {
				return nil, err
			}
			res.Warnings = append(res.Warnings, fmt.Errorf("%w; using the previous build", err))
			p = stale
		}
		target.Merge(envdiff.VarsFromMap(p.Variables))
	}
	return target, nil
}

func dropUnrepresentable(target *envdiff.Vars, check func(name, value string) error) []error {
	var errs []error
	for _, name := range target.Names() {
		value, _ := target.Get(name)
		if err := check(name, value); err != nil {
			target.Delete(name)
			errs = append(errs, err)
		}
	}
	return errs
}

func decodeMarker(live map[string]string) (envdiff.State, error) {
	raw, ok := live[envdiff.MarkerVar]
	if !ok || raw == "" {
		return envdiff.State{}, nil
	}
	s, err := envdiff.DecodeState(raw)
	if err != nil {
		return envdiff.State{}, fmt.Errorf("discarding unreadable %s: %w", envdiff.MarkerVar, err)
	}
	return s, nil
}
