package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/rnwolfe/envoluntary/internal/cache"
)

// timeLayout is fixed width so started_at sorts as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Build is one row of the build history.
type Build struct {
	ID             string
	FlakeReference string
	Impure         bool
	Fingerprint    string
	StartedAt      time.Time
	Duration       time.Duration
	Success        bool
	Error          string
}

// RecordBuild inserts b, assigning an ID when it has none.
func (db *DB) RecordBuild(b *Build) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := db.conn.Exec(
		`INSERT INTO builds (id, flake_reference, impure, fingerprint, started_at, duration_ms, success, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.FlakeReference, boolInt(b.Impure), b.Fingerprint,
		b.StartedAt.UTC().Format(timeLayout), b.Duration.Milliseconds(),
		boolInt(b.Success), b.Error,
	)
	if err != nil {
		return fmt.Errorf("recording build: %w", err)
	}
	return nil
}

// RecentBuilds returns up to limit builds, newest first.
func (db *DB) RecentBuilds(limit int) ([]Build, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(
		`SELECT id, flake_reference, impure, fingerprint, started_at, duration_ms, success, error
		 FROM builds ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Build
	for rows.Next() {
		var (
			b               Build
			impure, success int
			started         string
			ms              int64
		)
		if err := rows.Scan(&b.ID, &b.FlakeReference, &impure, &b.Fingerprint, &started, &ms, &success, &b.Error); err != nil {
			return nil, err
		}
		b.Impure = impure != 0
		b.Success = success != 0
		b.Duration = time.Duration(ms) * time.Millisecond
		b.StartedAt, _ = time.Parse(timeLayout, started)
		out = append(out, b)
	}
	return out, rows.Err()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// Recorder wraps a cache.Builder and writes one history row per build.
// The database is opened on the first build, so cache hits never touch
// it. History failures are logged and never fail the build.
type Recorder struct {
	Builder cache.Builder
	Open    func() (*DB, error)
	Now     func() time.Time

	db *DB
}

var _ cache.Builder = (*Recorder)(nil)

// Build implements cache.Builder.
func (r *Recorder) Build(ctx context.Context, key cache.Key, dir string) (*cache.Build, error) {
	now := r.Now
	if now == nil {
		now = time.Now
	}
	started := now()
	result, buildErr := r.Builder.Build(ctx, key, dir)

	rec := &Build{
		FlakeReference: key.FlakeReference,
		Impure:         key.Impure,
		StartedAt:      started,
		Duration:       now().Sub(started),
		Success:        buildErr == nil,
	}
	if buildErr != nil {
		rec.Error = buildErr.Error()
	}
	if fp, err := cache.Fingerprint(key); err == nil {
		rec.Fingerprint = fp
	}
	if err := r.record(rec); err != nil {
		log.Printf("warning: build history: %v", err)
	}
	return result, buildErr
}

func (r *Recorder) record(b *Build) error {
	if r.db == nil {
		if r.Open == nil {
			return nil
		}
		db, err := r.Open()
		if err != nil {
			return err
		}
		r.db = db
	}
	return r.db.RecordBuild(b)
}

// Close closes the database if a build opened it.
func (r *Recorder) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}
