// Package cache stores built flake environments on disk, one slot per
// (flake reference, impure) pair, and rebuilds them when their inputs
// change.
package cache

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rnwolfe/envoluntary/internal/flake"
	"github.com/zeebo/blake3"
)

const (
	profileFile = "profile.json"
	lockFile    = "lock"
	genPrefix   = "gen-"
	slotNameLen = 40
)

// Key identifies one cache slot.
type Key struct {
	FlakeReference string `json:"flake_reference"`
	Impure         bool   `json:"impure"`
}

func (k Key) String() string {
	if k.Impure {
		return k.FlakeReference + " (impure)"
	}
	return k.FlakeReference
}

// normalized is the reference used for hashing: path flakes are expanded
// so that "~/x" and "/home/u/x" share a slot.
func (k Key) normalized() string {
	ref, err := flake.Parse(k.FlakeReference)
	if err != nil {
		return k.FlakeReference
	}
	return ref.Expanded
}

func (k Key) sameSlot(o Key) bool {
	return k.Impure == o.Impure && k.normalized() == o.normalized()
}

// Build is what a Builder produces.
type Build struct {
	Variables map[string]string
	// ProfilePath is the pinned nix profile, if the builder made one.
	ProfilePath string
}

// Builder evaluates a flake's development environment. dir is a fresh
// directory owned by the build; anything the builder must keep alive
// (e.g. GC roots) goes there.
type Builder interface {
	Build(ctx context.Context, key Key, dir string) (*Build, error)
}

// BuilderFunc adapts a function to Builder.
type BuilderFunc func(ctx context.Context, key Key, dir string) (*Build, error)

func (f BuilderFunc) Build(ctx context.Context, key Key, dir string) (*Build, error) {
	return f(ctx, key, dir)
}

// BuildError wraps a builder failure.
type BuildError struct {
	Key Key
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("building %s: %v", e.Key, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// CacheError is an I/O or locking failure of the cache itself.
type CacheError struct {
	Op  string
	Key Key
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// ErrLockTimeout is wrapped in a CacheError when another process holds a
// slot for longer than the configured lock timeout.
var ErrLockTimeout = errors.New("timed out waiting for lock")

// Cache is a directory of profile slots.
type Cache struct {
	root         string
	lockTimeout  time.Duration
	pollInterval time.Duration
	now          func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithLockTimeout bounds the wait for a slot locked by another process.
// Zero waits until the context is done.
func WithLockTimeout(d time.Duration) Option {
	return func(c *Cache) { c.lockTimeout = d }
}

// WithPollInterval sets how often a busy lock is retried.
func WithPollInterval(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithClock overrides time.Now for built_at stamps.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New returns a cache rooted at root. The directory is created lazily.
func New(root string, opts ...Option) *Cache {
	c := &Cache{
		root:         root,
		pollInterval: 100 * time.Millisecond,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Root returns the cache directory.
func (c *Cache) Root() string { return c.root }

// Path returns the slot directory for key without touching the disk.
func (c *Cache) Path(key Key) string {
	return filepath.Join(c.root, slotName(key))
}

func slotName(key Key) string {
	h := blake3.New()
	h.Write([]byte(key.normalized()))
	if key.Impure {
		h.Write([]byte("\x00impure"))
	}
	return hex.EncodeToString(h.Sum(nil))[:slotNameLen]
}

// Lookup returns the stored profile for key, or nil when there is none or
// it cannot be decoded.
func (c *Cache) Lookup(key Key) *Profile {
	p, err := readProfile(filepath.Join(c.Path(key), profileFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("warning: ignoring cached profile for %s: %v", key, err)
		}
		return nil
	}
	if !p.Key().sameSlot(key) {
		return nil
	}
	return p
}

// Resolve returns an up-to-date profile for key, calling builder when the
// stored one is missing, stale, or force is set.
func (c *Cache) Resolve(ctx context.Context, key Key, builder Builder, force bool) (*Profile, error) {
	fp, err := Fingerprint(key)
	if err != nil {
		return nil, &CacheError{Op: "fingerprint", Key: key, Err: err}
	}

	existing := c.Lookup(key)
	if !force && existing != nil && existing.Fingerprint == fp {
		return existing, nil
	}

	slot := c.Path(key)
	if err := os.MkdirAll(slot, 0o755); err != nil {
		return nil, &CacheError{Op: "create", Key: key, Err: err}
	}

	lockPath := filepath.Join(slot, lockFile)
	lk, busy, err := tryLock(lockPath)
	if err != nil {
		return nil, &CacheError{Op: "lock", Key: key, Err: err}
	}
	if busy {
		log.Printf("waiting for another process to finish building %s", key)
		var done *Profile
		lk, done, err = c.waitLock(ctx, lockPath, func() *Profile {
			if force {
				return nil
			}
			return c.fresh(key)
		})
		if err != nil {
			return nil, &CacheError{Op: "lock", Key: key, Err: err}
		}
		if done != nil {
			return done, nil
		}
	}
	defer lk.release()

	// Another process may have finished the build while we waited.
	if !force {
		if p := c.fresh(key); p != nil {
			return p, nil
		}
	}

	return c.build(ctx, key, fp, builder)
}

// fresh returns the stored profile for key if its fingerprint matches the
// inputs on disk right now.
func (c *Cache) fresh(key Key) *Profile {
	p := c.Lookup(key)
	if p == nil {
		return nil
	}
	fp, err := Fingerprint(key)
	if err != nil || p.Fingerprint != fp {
		return nil
	}
	return p
}

// waitLock polls until the lock at path is free or ready reports that the
// lock holder published a usable profile.
func (c *Cache) waitLock(ctx context.Context, path string, ready func() *Profile) (*fileLock, *Profile, error) {
	if c.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.lockTimeout)
		defer cancel()
	}
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, nil, ErrLockTimeout
			}
			return nil, nil, ctx.Err()
		case <-ticker.C:
		}
		if p := ready(); p != nil {
			return nil, p, nil
		}
		lk, busy, err := tryLock(path)
		if err != nil {
			return nil, nil, err
		}
		if !busy {
			return lk, nil, nil
		}
	}
}

// build runs the builder in a new generation directory and publishes the
// result by atomically replacing profile.json. Older generations are
// pruned afterwards. Generation directories are never moved because nix
// GC roots point at their absolute path.
func (c *Cache) build(ctx context.Context, key Key, fp string, builder Builder) (*Profile, error) {
	slot := c.Path(key)
	gen, err := os.MkdirTemp(slot, genPrefix)
	if err != nil {
		return nil, &CacheError{Op: "stage", Key: key, Err: err}
	}

	started := c.now()
	b, err := builder.Build(ctx, key, gen)
	if err != nil {
		_ = os.RemoveAll(gen)
		return nil, &BuildError{Key: key, Err: err}
	}
	// nix may have written flake.lock during the build.
	if after, err := Fingerprint(key); err == nil {
		fp = after
	}

	p := &Profile{
		Version:        profileVersion,
		FlakeReference: key.FlakeReference,
		Impure:         key.Impure,
		Variables:      b.Variables,
		BuiltAt:        started.UTC(),
		Fingerprint:    fp,
		ProfilePath:    b.ProfilePath,
		Generation:     filepath.Base(gen),
	}
	if p.Variables == nil {
		p.Variables = map[string]string{}
	}
	if err := writeProfile(filepath.Join(slot, profileFile), p); err != nil {
		_ = os.RemoveAll(gen)
		return nil, &CacheError{Op: "write", Key: key, Err: err}
	}
	c.prune(slot, p.Generation)
	return p, nil
}

func (c *Cache) prune(slot, keep string) {
	entries, err := os.ReadDir(slot)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), genPrefix) || e.Name() == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(slot, e.Name())); err != nil {
			log.Printf("warning: removing old generation %s: %v", e.Name(), err)
		}
	}
}

// List returns every decodable profile in the cache.
func (c *Cache) List() ([]*Profile, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []*Profile
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		p, err := readProfile(filepath.Join(c.root, e.Name(), profileFile))
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Remove deletes the slot for key. Removing a missing slot is not an error.
func (c *Cache) Remove(key Key) error {
	if err := os.RemoveAll(c.Path(key)); err != nil {
		return &CacheError{Op: "remove", Key: key, Err: err}
	}
	return nil
}

// Clean removes every slot and returns how many were removed.
func (c *Cache) Clean() (int, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() || len(e.Name()) != slotNameLen {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.root, e.Name())); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
