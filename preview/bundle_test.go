package preview_test

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/a-h/icode/preview"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, contents := range files {
		full := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("MkdirAll: %v", err)
		}
		if err := os.WriteFile(full, []byte(contents), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	return dir
}

func TestBuildBundle_PrefersIndexOverApp(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"index.jsx":                "export default 1;",
		"App.jsx":                  "export default 2;",
		"node_modules/x/index.js": "module.exports = 1;",
		".hidden.js":               "module.exports = 1;",
	})
	b, err := preview.BuildBundle(dir)
	if err != nil {
		t.Fatalf("BuildBundle: %v", err)
	}
	if b.EntryPath != "/index.jsx" {
		t.Errorf("EntryPath = %q, want /index.jsx", b.EntryPath)
	}
	if b.Synthesized {
		t.Errorf("Synthesized = true, want false when an index file exists")
	}

	var paths []string
	for _, m := range b.Modules {
		paths = append(paths, m.Path)
	}
	sort.Strings(paths)
	want := []string{"/App.jsx", "/index.jsx"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("module paths mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildBundle_SynthesizesRootRenderForAppOnly(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"App.jsx": "export default function App() { return 1; }",
	})
	b, err := preview.BuildBundle(dir)
	if err != nil {
		t.Fatalf("BuildBundle: %v", err)
	}
	if b.EntryPath != "/App.jsx" {
		t.Errorf("EntryPath = %q, want /App.jsx", b.EntryPath)
	}
	if !b.Synthesized {
		t.Errorf("Synthesized = false, want true when only App.* is present")
	}
	var entryCode string
	for _, m := range b.Modules {
		if m.Path == b.EntryPath {
			entryCode = m.Code
		}
	}
	if entryCode == "" {
		t.Fatalf("entry module not registered")
	}
	if !strings.Contains(entryCode, "ReactDOM.createRoot") {
		t.Errorf("expected a synthesized root-render call, got %q", entryCode)
	}
}

func TestBuildBundle_ConcatenatesCSS(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"index.js": "console.log(1);",
		"a.css":    "body { color: red; }",
		"b.css":    ".x { color: blue; }",
	})
	b, err := preview.BuildBundle(dir)
	if err != nil {
		t.Fatalf("BuildBundle: %v", err)
	}
	if !strings.Contains(b.CSS, "color: red") || !strings.Contains(b.CSS, "color: blue") {
		t.Errorf("CSS = %q, want both rules concatenated", b.CSS)
	}
}

func TestBuildBundle_JSONModule(t *testing.T) {
	dir := writeProject(t, map[string]string{
		"index.js":    "require('./data.json');",
		"data.json":   `{"a": 1}`,
	})
	b, err := preview.BuildBundle(dir)
	if err != nil {
		t.Fatalf("BuildBundle: %v", err)
	}
	var code string
	for _, m := range b.Modules {
		if m.Path == "/data.json" {
			code = m.Code
		}
	}
	want := `module.exports = {"a": 1};`
	if code != want {
		t.Errorf("json module code = %q, want %q", code, want)
	}
}
