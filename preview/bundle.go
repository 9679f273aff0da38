package preview

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// bundleExts are the extensions scanned into a bundle.
var bundleExts = map[string]bool{
	".js": true, ".jsx": true, ".ts": true, ".tsx": true, ".css": true, ".json": true,
}

var codeExts = map[string]bool{".js": true, ".jsx": true, ".ts": true, ".tsx": true}

// Module is one rewritten source file registered into the bundle's
// client-side module table, keyed by its project-root-relative path
// (always "/"-rooted, forward-slashed).
type Module struct {
	Path string
	Code string
}

// Bundle is a built developer-preview: every source file rewritten and
// registered by path, CSS concatenated into one block, and an entry
// module chosen by the priority rule in BuildBundle.
type Bundle struct {
	Modules     []Module
	CSS         string
	EntryPath   string
	Synthesized bool
	Warnings    []string
}

// BuildBundle scans root, rewrites every JS/JSX/TS/TSX/JSON file it
// finds, concatenates CSS, and picks an entry module.
func BuildBundle(root string) (*Bundle, error) {
	files, err := scanProjectTree(root)
	if err != nil {
		return nil, err
	}

	entry, synth := selectEntry(files)
	b := &Bundle{EntryPath: entry, Synthesized: synth}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var cssParts []string
	for _, p := range paths {
		src := files[p]
		switch filepath.Ext(p) {
		case ".css":
			cssParts = append(cssParts, src)
		case ".json":
			b.Modules = append(b.Modules, Module{Path: p, Code: jsonModuleCode(src)})
		default:
			code, warnings := RewriteModule(src)
			for _, w := range warnings {
				b.Warnings = append(b.Warnings, fmt.Sprintf("%s: %s", p, w))
			}
			if synth && p == entry {
				code += "\n" + synthesizedRootRender()
			}
			b.Modules = append(b.Modules, Module{Path: p, Code: code})
		}
	}
	b.CSS = strings.Join(cssParts, "\n")
	return b, nil
}

// scanProjectTree reads every bundle-eligible file under root, skipping
// node_modules and dotfiles/dotdirs.
func scanProjectTree(root string) (map[string]string, error) {
	files := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if name != "." && (strings.HasPrefix(name, ".") || name == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		if !bundleExts[filepath.Ext(name)] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files["/"+filepath.ToSlash(rel)] = string(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// selectEntry implements the priority rule: /index.* beats /App.* beats
// the first code file in lexical order. synth reports whether only an
// App.* file was found, meaning BuildBundle must append a synthetic
// root-render call after it.
func selectEntry(files map[string]string) (path string, synth bool) {
	for _, c := range []string{"/index.js", "/index.jsx", "/index.ts", "/index.tsx"} {
		if _, ok := files[c]; ok {
			return c, false
		}
	}
	for _, c := range []string{"/App.js", "/App.jsx", "/App.tsx", "/App.ts"} {
		if _, ok := files[c]; ok {
			return c, true
		}
	}
	var codePaths []string
	for p := range files {
		if codeExts[filepath.Ext(p)] {
			codePaths = append(codePaths, p)
		}
	}
	sort.Strings(codePaths)
	if len(codePaths) > 0 {
		return codePaths[0], false
	}
	return "", false
}

// jsonModuleCode turns a .json file's raw text into a module body. JSON
// object/array/literal syntax is valid JS expression syntax, so this is
// a straight assignment rather than a real parse.
func jsonModuleCode(src string) string {
	return "module.exports = " + strings.TrimSpace(src) + ";"
}

// synthesizedRootRender renders the entry module's default export (or
// its whole exports object, for modules that export a component
// directly on module.exports) into the page's #root element. Used only
// when the bundle's entry is an App.* file with no index.* present.
func synthesizedRootRender() string {
	return `(function(){
  var __el = document.getElementById("root");
  if (!__el) return;
  var __Component = module.exports && module.exports.default !== undefined ? module.exports.default : module.exports;
  var ReactDOM = require("react-dom/client");
  var React = require("react");
  ReactDOM.createRoot(__el).render(React.createElement(__Component, null));
})();`
}
