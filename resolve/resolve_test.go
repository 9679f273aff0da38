package resolve_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/a-h/icode/registry"
	"github.com/a-h/icode/resolve"
)

// fakeFetcher serves packuments from an in-memory map, so resolver tests
// never touch the network.
type fakeFetcher struct {
	packuments map[string]registry.Packument
	calls      map[string]int
}

func (f *fakeFetcher) FetchPackument(ctx context.Context, name string) (registry.Packument, error) {
	f.calls[name]++
	p, ok := f.packuments[name]
	if !ok {
		return registry.Packument{}, registry.ErrNotFound
	}
	return p, nil
}

func version(v string, deps map[string]string) registry.VersionMeta {
	return registry.VersionMeta{
		Version:      v,
		Dist:         registry.Dist{Tarball: "https://registry.example/" + v + ".tgz"},
		Dependencies: deps,
	}
}

func TestResolveFlattensTransitiveDeps(t *testing.T) {
	f := &fakeFetcher{calls: map[string]int{}, packuments: map[string]registry.Packument{
		"left-pad": {
			DistTags: map[string]string{"latest": "1.3.0"},
			Versions: map[string]registry.VersionMeta{
				"0.0.1": version("0.0.1", nil),
				"1.0.0": version("1.0.0", map[string]string{"right-pad": "^1.0.0"}),
				"1.3.0": version("1.3.0", map[string]string{"right-pad": "^1.0.0"}),
			},
		},
		"right-pad": {
			DistTags: map[string]string{"latest": "1.0.5"},
			Versions: map[string]registry.VersionMeta{
				"1.0.0": version("1.0.0", nil),
				"1.0.5": version("1.0.5", nil),
			},
		},
	}}

	r := resolve.New(slog.Default(), f)
	pkg := resolve.PackageJSON{Dependencies: map[string]string{"left-pad": "^1.0.0"}}
	result := r.Resolve(context.Background(), pkg, resolve.Options{})

	if len(result.Warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", result.Warnings)
	}
	if got := result.Resolved["left-pad"].Version; got != "1.3.0" {
		t.Errorf("left-pad = %s, want 1.3.0", got)
	}
	if got := result.Resolved["right-pad"].Version; got != "1.0.5" {
		t.Errorf("right-pad = %s, want 1.0.5", got)
	}
}

func TestResolveFirstSatisfyingWinsAndWarnsOnConflict(t *testing.T) {
	f := &fakeFetcher{calls: map[string]int{}, packuments: map[string]registry.Packument{
		"a": {Versions: map[string]registry.VersionMeta{
			"1.0.0": version("1.0.0", map[string]string{"shared": "^1.0.0"}),
		}},
		"b": {Versions: map[string]registry.VersionMeta{
			"1.0.0": version("1.0.0", map[string]string{"shared": "^2.0.0"}),
		}},
		"shared": {Versions: map[string]registry.VersionMeta{
			"1.0.0": version("1.0.0", nil),
			"2.0.0": version("2.0.0", nil),
		}},
	}}

	r := resolve.New(slog.Default(), f)
	pkg := resolve.PackageJSON{Dependencies: map[string]string{"a": "^1.0.0", "b": "^1.0.0"}}
	result := r.Resolve(context.Background(), pkg, resolve.Options{})

	if got := result.Resolved["shared"].Version; got != "1.0.0" {
		t.Fatalf("shared = %s, want 1.0.0 (first-satisfying-wins)", got)
	}
	if len(result.Warnings) == 0 {
		t.Fatalf("expected a conflict warning, got none")
	}
}

func TestResolveCycleDoesNotHang(t *testing.T) {
	f := &fakeFetcher{calls: map[string]int{}, packuments: map[string]registry.Packument{
		"a": {Versions: map[string]registry.VersionMeta{
			"1.0.0": version("1.0.0", map[string]string{"b": "^1.0.0"}),
		}},
		"b": {Versions: map[string]registry.VersionMeta{
			"1.0.0": version("1.0.0", map[string]string{"a": "^1.0.0"}),
		}},
	}}

	r := resolve.New(slog.Default(), f)
	pkg := resolve.PackageJSON{Dependencies: map[string]string{"a": "^1.0.0"}}
	result := r.Resolve(context.Background(), pkg, resolve.Options{})

	if len(result.Resolved) != 2 {
		t.Fatalf("Resolved = %v, want exactly a and b", result.Resolved)
	}
}

func TestResolveMissingPackageWarnsWithoutAborting(t *testing.T) {
	f := &fakeFetcher{calls: map[string]int{}, packuments: map[string]registry.Packument{
		"exists": {Versions: map[string]registry.VersionMeta{"1.0.0": version("1.0.0", nil)}},
	}}

	r := resolve.New(slog.Default(), f)
	pkg := resolve.PackageJSON{Dependencies: map[string]string{
		"exists":      "^1.0.0",
		"nonexistent": "^1.0.0",
	}}
	result := r.Resolve(context.Background(), pkg, resolve.Options{})

	if _, ok := result.Resolved["exists"]; !ok {
		t.Fatalf("expected 'exists' to resolve despite sibling failure")
	}
	if len(result.Warnings) == 0 {
		t.Fatalf("expected a warning for the missing package")
	}
}

func TestBuildLockfileDeterministic(t *testing.T) {
	resolved := map[string]*resolve.ResolvedPackage{
		"left-pad": {Name: "left-pad", Version: "1.3.0", Tarball: "https://x/left-pad.tgz", Dependencies: map[string]string{"right-pad": "^1.0.0"}},
	}
	a, err := resolve.BuildLockfile(resolved).Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	b, err := resolve.BuildLockfile(resolved).Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("lockfile marshal not deterministic:\n%s\nvs\n%s", a, b)
	}

	parsed, err := resolve.ParseLockfile(a)
	if err != nil {
		t.Fatalf("ParseLockfile: %v", err)
	}
	if parsed.Dependencies["left-pad"].Version != "1.3.0" {
		t.Fatalf("round-trip lost version")
	}
}
