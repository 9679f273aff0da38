package resolve

import "encoding/json"

// PackageJSON is the subset of a project's package.json the core reads:
// dependency ranges for resolution, scripts for the "npm run"/"start"
// dispatch, and bin/main/module for entry-point resolution.
type PackageJSON struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Dependencies         map[string]string `json:"dependencies,omitempty"`
	DevDependencies      map[string]string `json:"devDependencies,omitempty"`
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`
	PeerDependencies     map[string]string `json:"peerDependencies,omitempty"`
	Scripts              map[string]string `json:"scripts,omitempty"`
	Bin                  json.RawMessage   `json:"bin,omitempty"`
	Main                 string            `json:"main,omitempty"`
	Module               string            `json:"module,omitempty"`
	Exports              json.RawMessage   `json:"exports,omitempty"`
}

// ParsePackageJSON decodes a package.json document.
func ParsePackageJSON(data []byte) (PackageJSON, error) {
	var p PackageJSON
	if err := json.Unmarshal(data, &p); err != nil {
		return PackageJSON{}, err
	}
	return p, nil
}

// BinMap normalizes Bin into a map<binName, relativePath>, treating a bare
// string as a single bin named after the package.
func (p PackageJSON) BinMap() map[string]string {
	if len(p.Bin) == 0 {
		return nil
	}
	var asMap map[string]string
	if err := json.Unmarshal(p.Bin, &asMap); err == nil {
		return asMap
	}
	var asString string
	if err := json.Unmarshal(p.Bin, &asString); err == nil && asString != "" {
		name := p.Name
		for i := len(name) - 1; i >= 0; i-- {
			if name[i] == '/' {
				name = name[i+1:]
				break
			}
		}
		return map[string]string{name: asString}
	}
	return nil
}

// AllDependencies merges dependencies and, when includeDev is true,
// devDependencies into a single name->range map. Optional dependencies are
// always included per npm's default install behavior; peer dependencies
// are deliberately excluded, since satisfying them would require a real
// peer-resolution pass this resolver does not implement.
func (p PackageJSON) AllDependencies(includeDev bool) map[string]string {
	merged := make(map[string]string, len(p.Dependencies)+len(p.OptionalDependencies))
	for name, r := range p.Dependencies {
		merged[name] = r
	}
	for name, r := range p.OptionalDependencies {
		if _, exists := merged[name]; !exists {
			merged[name] = r
		}
	}
	if includeDev {
		for name, r := range p.DevDependencies {
			if _, exists := merged[name]; !exists {
				merged[name] = r
			}
		}
	}
	return merged
}
