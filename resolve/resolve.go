// Package resolve walks a project's dependency graph against registry
// packuments, flattening it into a single name->ResolvedPackage map. The
// graph is intentionally flat: conflicting version demands keep the
// first satisfying pick and only warn, and cycles are broken with a
// "currently resolving" set rather than represented with back-references,
// following the DFS-coloring cycle-breaker pattern please_js/resolve/resolve.go
// uses for its own (build-graph) flattening.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/a-h/icode/registry"
	"github.com/a-h/icode/semver"
)

// maxDepth bounds dependency recursion to protect against pathological
// or maliciously deep graphs.
const maxDepth = 50

// ResolvedPackage is a single flattened resolution result.
type ResolvedPackage struct {
	Name         string
	Version      string
	Tarball      string
	Integrity    string
	Shasum       string
	Dependencies map[string]string
	Bin          map[string]string
}

// Result is the output of a resolve: the flat package map plus any
// warnings accumulated along the way (conflicting demands, unreachable
// registries) that did not abort the resolve.
type Result struct {
	Resolved map[string]*ResolvedPackage
	Warnings []string
}

// PackumentFetcher is the subset of registry.Client a Resolver needs;
// accepting an interface keeps tests free of real network access.
type PackumentFetcher interface {
	FetchPackument(ctx context.Context, name string) (registry.Packument, error)
}

// Resolver resolves dependency graphs against a registry, memoizing
// packuments for its own lifetime: construct a fresh Resolver per resolve
// call and let the cache go with it rather than sharing one across calls.
type Resolver struct {
	log    *slog.Logger
	client PackumentFetcher

	cache map[string]registry.Packument
}

// New constructs a Resolver bound to client. Construct a fresh Resolver
// per resolve call so the packument cache does not outlive it.
func New(log *slog.Logger, client PackumentFetcher) *Resolver {
	return &Resolver{log: log, client: client, cache: make(map[string]registry.Packument)}
}

// Options controls how a package.json's own dependency set is read.
type Options struct {
	// Production excludes devDependencies when true.
	Production bool
}

// Resolve walks pkg's dependency graph and returns the flattened result.
func (r *Resolver) Resolve(ctx context.Context, pkg PackageJSON, opts Options) Result {
	res := Result{Resolved: make(map[string]*ResolvedPackage)}
	resolving := make(map[string]bool)
	wanted := pkg.AllDependencies(!opts.Production)

	names := sortedKeys(wanted)
	for _, name := range names {
		r.resolveOne(ctx, name, wanted[name], res.Resolved, resolving, &res.Warnings, 0)
	}
	return res
}

// ResolvePackages resolves an explicit list of "name" or "name@range"
// specs (as from "npm install <pkg>") against the registry. The returned
// Result's map holds every entry of existing (the caller's current
// lockfile/node_modules picks) plus the newly resolved packages; the
// Result does not list which names were newly added.
func (r *Resolver) ResolvePackages(ctx context.Context, specs []string, existing map[string]*ResolvedPackage) Result {
	res := Result{Resolved: make(map[string]*ResolvedPackage)}
	for name, pkg := range existing {
		res.Resolved[name] = pkg
	}
	resolving := make(map[string]bool)
	for _, spec := range specs {
		name, rangeStr := splitSpec(spec)
		r.resolveOne(ctx, name, rangeStr, res.Resolved, resolving, &res.Warnings, 0)
	}
	return res
}

func (r *Resolver) resolveOne(ctx context.Context, name, rangeStr string, resolved map[string]*ResolvedPackage, resolving map[string]bool, warnings *[]string, depth int) {
	if depth > maxDepth {
		*warnings = append(*warnings, fmt.Sprintf("%s: max dependency depth (%d) exceeded, skipping", name, maxDepth))
		return
	}

	key := name + "@" + rangeStr
	if resolving[key] {
		// Cycle: a package currently being resolved demanded itself
		// (directly or transitively) again under the same range.
		return
	}

	if existing, ok := resolved[name]; ok {
		if v := semver.Parse(existing.Version); v == nil || !semver.Satisfies(v, rangeStr) {
			*warnings = append(*warnings, fmt.Sprintf("%s: kept %s which does not satisfy later demand %q", name, existing.Version, rangeStr))
		}
		return
	}

	packument, err := r.fetchPackument(ctx, name)
	if err != nil {
		*warnings = append(*warnings, fmt.Sprintf("%s: %v", name, err))
		return
	}

	resolvedRange := semver.ResolveTag(rangeStr, packument.DistTags)
	version := pickVersion(packument, resolvedRange)
	if version == "" {
		*warnings = append(*warnings, fmt.Sprintf("%s: no version satisfies %q", name, rangeStr))
		return
	}

	meta := packument.Versions[version]
	resolved[name] = &ResolvedPackage{
		Name:         name,
		Version:      version,
		Tarball:      meta.Dist.Tarball,
		Integrity:    meta.Dist.Integrity,
		Shasum:       meta.Dist.Shasum,
		Dependencies: meta.Dependencies,
		Bin:          meta.BinMap(name),
	}

	resolving[key] = true
	defer delete(resolving, key)

	for _, depName := range sortedKeys(meta.Dependencies) {
		r.resolveOne(ctx, depName, meta.Dependencies[depName], resolved, resolving, warnings, depth+1)
	}
}

func (r *Resolver) fetchPackument(ctx context.Context, name string) (registry.Packument, error) {
	if p, ok := r.cache[name]; ok {
		return p, nil
	}
	p, err := r.client.FetchPackument(ctx, name)
	if err != nil {
		return registry.Packument{}, err
	}
	r.cache[name] = p
	return p, nil
}

// pickVersion resolves rangeStr (already tag-resolved) against a
// packument's version set, returning "" when nothing satisfies it. An
// exact version present in the packument always wins over range
// satisfaction, so a dist-tag resolving to a prerelease still works even
// though maxSatisfying would normally exclude it.
func pickVersion(p registry.Packument, rangeStr string) string {
	if _, ok := p.Versions[rangeStr]; ok {
		return rangeStr
	}
	var versions []*semver.Version
	byString := make(map[*semver.Version]string, len(p.Versions))
	for vs := range p.Versions {
		v := semver.Parse(vs)
		if v == nil {
			continue
		}
		versions = append(versions, v)
		byString[v] = vs
	}
	best := semver.MaxSatisfying(versions, rangeStr)
	if best == nil {
		return ""
	}
	return byString[best]
}

func splitSpec(spec string) (name, rangeStr string) {
	// Scoped packages ("@scope/name@range") carry a leading "@" that must
	// not be mistaken for the version separator.
	searchFrom := 0
	if len(spec) > 0 && spec[0] == '@' {
		searchFrom = 1
	}
	for i := searchFrom; i < len(spec); i++ {
		if spec[i] == '@' {
			return spec[:i], spec[i+1:]
		}
	}
	return spec, "latest"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
