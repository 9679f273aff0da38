package resolve

import (
	"encoding/json"
	"sort"
)

// Lockfile is the on-disk record of a successful install. It
// intentionally does not mirror npm's own
// package-lock.json "packages" tree (a nested, install-path-keyed
// structure); the flat resolver output maps directly onto a flat
// dependency map instead.
type Lockfile struct {
	LockfileVersion int                      `json:"lockfileVersion"`
	Dependencies    map[string]LockfileEntry `json:"dependencies"`
}

// LockfileEntry records one resolved dependency.
type LockfileEntry struct {
	Version   string            `json:"version"`
	Resolved  string            `json:"resolved"`
	Integrity string            `json:"integrity"`
	Requires  map[string]string `json:"requires,omitempty"`
}

// BuildLockfile converts a resolve Result into the on-disk lockfile shape.
// Map iteration order never leaks into the output: Requires entries are
// taken directly from the already-deterministic dependency ranges, and
// json.Marshal sorts map keys itself, so two resolves of the same input
// produce byte-identical lockfiles across repeated installs of the same
// dependency set.
func BuildLockfile(resolved map[string]*ResolvedPackage) Lockfile {
	deps := make(map[string]LockfileEntry, len(resolved))
	for name, pkg := range resolved {
		integrity := pkg.Integrity
		if integrity == "" && pkg.Shasum != "" {
			integrity = "sha1-" + pkg.Shasum
		}
		deps[name] = LockfileEntry{
			Version:   pkg.Version,
			Resolved:  pkg.Tarball,
			Integrity: integrity,
			Requires:  pkg.Dependencies,
		}
	}
	return Lockfile{LockfileVersion: 1, Dependencies: deps}
}

// Marshal renders the lockfile as indented, deterministic JSON.
func (l Lockfile) Marshal() ([]byte, error) {
	var buf []byte
	buf, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(buf, '\n'), nil
}

// ParseLockfile decodes a lockfile previously written by Marshal.
func ParseLockfile(data []byte) (Lockfile, error) {
	var l Lockfile
	if err := json.Unmarshal(data, &l); err != nil {
		return Lockfile{}, err
	}
	return l, nil
}

// Names returns the lockfile's dependency names in sorted order.
func (l Lockfile) Names() []string {
	names := make([]string, 0, len(l.Dependencies))
	for name := range l.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
