package install_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/a-h/icode/install"
	"github.com/a-h/icode/resolve"
)

// fakeDownloader returns a fixed byte payload per URL without touching
// the network.
type fakeDownloader struct {
	downloads int
}

func (f *fakeDownloader) DownloadTarball(ctx context.Context, url string) ([]byte, error) {
	f.downloads++
	return []byte("tarball-for-" + url), nil
}

func fakeExtract(calls *int) install.Extractor {
	return func(tarball []byte, destDir string) error {
		*calls++
		return os.WriteFile(filepath.Join(destDir, "package.json"), tarball, 0o644)
	}
}

func resolvedSet() map[string]*resolve.ResolvedPackage {
	return map[string]*resolve.ResolvedPackage{
		"left-pad": {
			Name:    "left-pad",
			Version: "1.3.0",
			Tarball: "https://registry.example/left-pad-1.3.0.tgz",
			Bin:     map[string]string{"left-pad": "bin/left-pad.js"},
		},
		"@scope/pkg": {
			Name:    "@scope/pkg",
			Version: "2.0.0",
			Tarball: "https://registry.example/scope-pkg-2.0.0.tgz",
		},
	}
}

func writePackageJSON(t *testing.T, dir, version string) {
	t.Helper()
	data, err := json.Marshal(map[string]string{"version": version})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), data, 0o644); err != nil {
		t.Fatalf("write package.json: %v", err)
	}
}

func TestInstallLaysOutNodeModulesAndBinStubs(t *testing.T) {
	projectDir := t.TempDir()
	dl := &fakeDownloader{}
	var extractCalls int
	inst := install.New(slog.Default(), dl, fakeExtract(&extractCalls))

	stats, err := inst.Install(context.Background(), projectDir, resolvedSet())
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if stats.Installed != 2 {
		t.Fatalf("Installed = %d, want 2", stats.Installed)
	}

	scopedDir := filepath.Join(projectDir, "node_modules", "@scope", "pkg")
	if _, err := os.Stat(scopedDir); err != nil {
		t.Fatalf("scoped package dir missing: %v", err)
	}

	stubPath := filepath.Join(projectDir, "node_modules", ".bin", "left-pad")
	target, err := install.ReadBinStubTarget(stubPath)
	if err != nil {
		t.Fatalf("ReadBinStubTarget: %v", err)
	}
	wantSuffix := filepath.Join("left-pad", "bin", "left-pad.js")
	if !hasSuffix(target, wantSuffix) {
		t.Fatalf("bin stub target = %q, want suffix %q", target, wantSuffix)
	}
}

func TestInstallSkipsAlreadyInstalledMatchingVersion(t *testing.T) {
	projectDir := t.TempDir()
	destDir := filepath.Join(projectDir, "node_modules", "left-pad")
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writePackageJSON(t, destDir, "1.3.0")

	dl := &fakeDownloader{}
	var extractCalls int
	inst := install.New(slog.Default(), dl, fakeExtract(&extractCalls))

	resolved := map[string]*resolve.ResolvedPackage{
		"left-pad": {Name: "left-pad", Version: "1.3.0", Tarball: "https://registry.example/left-pad.tgz"},
	}
	stats, err := inst.Install(context.Background(), projectDir, resolved)
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if stats.Skipped != 1 || stats.Installed != 0 {
		t.Fatalf("stats = %+v, want 1 skipped, 0 installed", stats)
	}
	if dl.downloads != 0 {
		t.Fatalf("downloads = %d, want 0 (cache hit)", dl.downloads)
	}
}

func hasSuffix(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	return s[len(s)-len(suffix):] == suffix
}
