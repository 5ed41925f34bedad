package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const profileVersion = 1

// Profile is a built environment as persisted in a slot.
type Profile struct {
	Version        int               `json:"version"`
	FlakeReference string            `json:"flake_reference"`
	Impure         bool              `json:"impure"`
	Variables      map[string]string `json:"variables"`
	BuiltAt        time.Time         `json:"built_at"`
	Fingerprint    string            `json:"fingerprint"`
	ProfilePath    string            `json:"profile_path,omitempty"`
	Generation     string            `json:"generation,omitempty"`
}

// Key returns the slot key the profile was built for.
func (p *Profile) Key() Key {
	return Key{FlakeReference: p.FlakeReference, Impure: p.Impure}
}

func readProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	if p.Version != profileVersion {
		return nil, fmt.Errorf("unsupported profile version %d", p.Version)
	}
	if p.Variables == nil {
		p.Variables = map[string]string{}
	}
	return &p, nil
}

func writeProfile(path string, p *Profile) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return atomicWrite(path, append(data, '\n'))
}

func atomicWrite(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".profile-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	success = true
	return nil
}
