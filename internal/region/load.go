package region

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Registry is an immutable region-code → profile lookup built once at
// startup.
type Registry struct {
	profiles map[string]*Profile
}

// NewRegistry builds a registry from the given profiles. Later entries
// with the same region code replace earlier ones, which is how file
// profiles override built-ins.
func NewRegistry(profiles ...*Profile) (*Registry, error) {
	m := make(map[string]*Profile, len(profiles))
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		m[p.Region] = p
	}
	return &Registry{profiles: m}, nil
}

// Get returns the profile for a region code, or nil if unknown.
func (r *Registry) Get(region string) *Profile {
	return r.profiles[region]
}

// Regions returns all region codes, sorted.
func (r *Registry) Regions() []string {
	codes := make([]string, 0, len(r.profiles))
	for code := range r.profiles {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// LoadDir reads every *.json profile file in dir. Files are read in name
// order so overrides are deterministic. A missing dir is not an error —
// deployments without custom profiles run on built-ins alone.
func LoadDir(dir string) ([]*Profile, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var profiles []*Profile
	for _, name := range names {
		p, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// LoadFile reads and validates a single profile file.
func LoadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator-configured profile dir
	if err != nil {
		return nil, fmt.Errorf("read profile %s: %w", filepath.Base(path), err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", filepath.Base(path), err)
	}
	p.applyDefaults()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("profile %s: %w", filepath.Base(path), err)
	}
	return &p, nil
}
