// Package install materializes a resolve.Result onto disk: a
// node_modules/ tree, .bin stubs, and skip-if-present reuse of already
// installed packages. Packages download and extract in bounded-parallel
// batches of 4 using golang.org/x/sync/errgroup, the same
// concurrency-limiting shape a hand-rolled semaphore-channel download
// loop would produce, expressed with the newer stdlib-adjacent primitive
// instead.
package install

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/a-h/icode/registry"
	"github.com/a-h/icode/resolve"
)

const batchSize = 4

// Downloader is the subset of registry.Client the installer needs.
type Downloader interface {
	DownloadTarball(ctx context.Context, url string) ([]byte, error)
}

// Extractor extracts a downloaded tarball into a destination directory.
type Extractor func(tarball []byte, destDir string) error

// Installer lays out node_modules/ for a resolved dependency set.
type Installer struct {
	log     *slog.Logger
	client  Downloader
	extract Extractor
}

// New constructs an Installer. extract is injected so tests can avoid
// constructing real tarballs; production callers pass archive.Extract.
func New(log *slog.Logger, client Downloader, extract Extractor) *Installer {
	return &Installer{log: log, client: client, extract: extract}
}

// Stats summarizes one install run for metrics and the "done" reply.
type Stats struct {
	Installed int
	Skipped   int
	BytesDown int64
	Errors    []string
}

// Install lays out resolved into projectDir/node_modules, skipping
// packages whose destination package.json already matches the resolved
// version, and writes bin stubs for every package that declares one.
// Cancellation is checked at each batch boundary.
func (i *Installer) Install(ctx context.Context, projectDir string, resolved map[string]*resolve.ResolvedPackage) (Stats, error) {
	nodeModules := filepath.Join(projectDir, "node_modules")
	binDir := filepath.Join(nodeModules, ".bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return Stats{}, fmt.Errorf("create node_modules/.bin: %w", err)
	}

	names := make([]string, 0, len(resolved))
	for name := range resolved {
		names = append(names, name)
	}
	sort.Strings(names)

	var stats Stats
	for start := 0; start < len(names); start += batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		end := min(start+batchSize, len(names))
		batch := names[start:end]

		g, gctx := errgroup.WithContext(ctx)
		results := make([]batchResult, len(batch))
		for idx, name := range batch {
			idx, name := idx, name
			pkg := resolved[name]
			g.Go(func() error {
				r := i.installOne(gctx, nodeModules, name, pkg)
				results[idx] = r
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return stats, err
		}

		for _, r := range results {
			if r.skipped {
				stats.Skipped++
				continue
			}
			if r.err != nil {
				stats.Errors = append(stats.Errors, r.err.Error())
				i.log.Warn("install failed for package", slog.String("name", r.name), slog.Any("error", r.err))
				continue
			}
			stats.Installed++
			stats.BytesDown += r.bytes
		}
	}

	if err := i.writeBinStubs(binDir, nodeModules, resolved); err != nil {
		return stats, fmt.Errorf("write bin stubs: %w", err)
	}

	return stats, nil
}

type batchResult struct {
	name    string
	skipped bool
	bytes   int64
	err     error
}

func (i *Installer) installOne(ctx context.Context, nodeModules, name string, pkg *resolve.ResolvedPackage) batchResult {
	dest := packageDir(nodeModules, name)

	if installedVersion(dest) == pkg.Version {
		return batchResult{name: name, skipped: true}
	}

	tarball, err := i.client.DownloadTarball(ctx, pkg.Tarball)
	if err != nil {
		return batchResult{name: name, err: fmt.Errorf("download %s: %w", name, err)}
	}

	if pkg.Integrity != "" {
		ok, err := registry.Verify(tarball, pkg.Integrity)
		if err != nil {
			return batchResult{name: name, err: fmt.Errorf("%s: %w", name, err)}
		}
		if !ok {
			return batchResult{name: name, err: fmt.Errorf("%s: integrity check failed", name)}
		}
	} else if pkg.Shasum != "" && !registry.VerifyShasum(tarball, pkg.Shasum) {
		return batchResult{name: name, err: fmt.Errorf("%s: shasum mismatch", name)}
	}

	if err := os.RemoveAll(dest); err != nil {
		return batchResult{name: name, err: fmt.Errorf("clear previous install of %s: %w", name, err)}
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return batchResult{name: name, err: fmt.Errorf("create dir for %s: %w", name, err)}
	}
	if err := i.extract(tarball, dest); err != nil {
		return batchResult{name: name, err: fmt.Errorf("extract %s: %w", name, err)}
	}

	return batchResult{name: name, bytes: int64(len(tarball))}
}

// packageDir returns the node_modules destination for name, honoring
// scoped packages ("@scope/pkg" → node_modules/@scope/pkg).
func packageDir(nodeModules, name string) string {
	return filepath.Join(nodeModules, filepath.FromSlash(name))
}

// installedVersion reads the version already installed at dest, or ""
// if there is no package.json there.
func installedVersion(dest string) string {
	data, err := os.ReadFile(filepath.Join(dest, "package.json"))
	if err != nil {
		return ""
	}
	var pkg struct {
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ""
	}
	return pkg.Version
}

// writeBinStubs writes node_modules/.bin/<name> stub files for every
// resolved package's bin entries. The stub is a plain text file (the
// platforms this targets may forbid symlinks) whose body the script
// runner reads to find the real module to load.
func (i *Installer) writeBinStubs(binDir, nodeModules string, resolved map[string]*resolve.ResolvedPackage) error {
	for name, pkg := range resolved {
		for binName, relPath := range pkg.Bin {
			target := filepath.Join(packageDir(nodeModules, name), filepath.FromSlash(relPath))
			stub := "#!/usr/bin/env node\n" + target + "\n"
			stubPath := filepath.Join(binDir, binName)
			if err := os.WriteFile(stubPath, []byte(stub), 0o755); err != nil {
				return fmt.Errorf("write bin stub %s: %w", binName, err)
			}
		}
	}
	return nil
}

// ReadBinStubTarget reads a bin stub written by writeBinStubs and returns
// the module path it defers to.
func ReadBinStubTarget(stubPath string) (string, error) {
	data, err := os.ReadFile(stubPath)
	if err != nil {
		return "", err
	}
	lines := strings.SplitN(string(data), "\n", 2)
	if len(lines) != 2 {
		return "", fmt.Errorf("malformed bin stub: %s", stubPath)
	}
	return strings.TrimSpace(lines[1]), nil
}
