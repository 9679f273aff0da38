package preview

import (
	"encoding/json"
	"fmt"
	"strings"
)

// clientLoaderScript is the embedded client-side module system: each
// registered module is wrapped as a CJS-style function body and run
// lazily on first require(), with a static built-in table for React,
// ReactDOM, and the JSX runtimes so components work without the
// bundler resolving real npm packages into the page.
const clientLoaderScript = `
(function(){
  function interopDefault(mod) {
    return mod && mod.__esModule ? mod.default : mod;
  }
  window.__interopDefault = interopDefault;

  var builtins = {
    "react": window.React,
    "react-dom": window.ReactDOM,
    "react-dom/client": window.ReactDOM,
    "react/jsx-runtime": {
      jsx: window.React && window.React.createElement,
      jsxs: window.React && window.React.createElement,
      Fragment: window.React && window.React.Fragment,
    },
  };

  var modules = window.__modules || {};
  var cache = {};

  function normalizePath(base, spec) {
    if (spec[0] !== "." && spec[0] !== "/") return null;
    var baseDir = base.slice(0, base.lastIndexOf("/") + 1);
    var combined = spec[0] === "/" ? spec : baseDir + spec;
    var parts = combined.split("/");
    var out = [];
    for (var i = 0; i < parts.length; i++) {
      var p = parts[i];
      if (p === "" || p === ".") continue;
      if (p === "..") { out.pop(); continue; }
      out.push(p);
    }
    return "/" + out.join("/");
  }

  function resolvePath(base, spec) {
    var normalized = normalizePath(base, spec);
    if (normalized === null) return null;
    if (modules[normalized]) return normalized;
    var tryExt = [".js", ".jsx", ".ts", ".tsx", ".json"];
    for (var i = 0; i < tryExt.length; i++) {
      if (modules[normalized + tryExt[i]]) return normalized + tryExt[i];
    }
    for (var i = 0; i < tryExt.length; i++) {
      if (modules[normalized + "/index" + tryExt[i]]) return normalized + "/index" + tryExt[i];
    }
    return normalized;
  }

  function requireFrom(base) {
    return function require(spec) {
      if (builtins[spec]) return builtins[spec];
      var resolved = resolvePath(base, spec);
      if (resolved === null) {
        // Bare specifier with no built-in entry and CSS files resolve empty.
        return {};
      }
      if (cache.hasOwnProperty(resolved)) return cache[resolved].exports;
      var src = modules[resolved];
      if (src === undefined) {
        if (resolved.slice(-4) === ".css") return {};
        return {};
      }
      var mod = { exports: {} };
      cache[resolved] = mod;
      try {
        var fn = new Function(
          "module", "exports", "require", "__interopDefault", "createElement", "Fragment",
          src
        );
        fn(mod, mod.exports, requireFrom(resolved), interopDefault,
           window.React && window.React.createElement, window.React && window.React.Fragment);
      } catch (err) {
        postErrorToParent(resolved, err);
        throw err;
      }
      return mod.exports;
    };
  }

  function postErrorToParent(path, err) {
    try {
      window.parent.postMessage({
        source: "icode-preview",
        type: "error",
        path: path,
        message: err && err.message ? err.message : String(err),
        stack: err && err.stack ? err.stack : "",
      }, "*");
    } catch (e) {}
  }

  window.__require = requireFrom("/__entry");
  try {
    window.__require(window.__entryPath);
  } catch (err) {
    postErrorToParent(window.__entryPath, err);
  }
})();
`

// pollClientScript drives the 2s long-poll loop and reloads the preview
// iframe's own document when the server reports a change.
const pollClientScript = `
(function(){
  var since = Date.now();
  function poll() {
    fetch("/__poll?since=" + since).then(function(res) {
      return res.json();
    }).then(function(data) {
      since = data.lastModified || since;
      if (data.changed) {
        location.reload();
        return;
      }
      poll();
    }).catch(function() {
      setTimeout(poll, 2000);
    });
  }
  setTimeout(poll, 2000);
})();
`

// RenderHTML assembles the self-contained preview document: the
// bundle's module table as a JS object literal, concatenated CSS in a
// <style> block, and the embedded client-side loader.
func RenderHTML(b *Bundle) string {
	moduleTable := make(map[string]string, len(b.Modules))
	for _, m := range b.Modules {
		moduleTable[m.Path] = m.Code
	}
	tableJSON, _ := json.Marshal(moduleTable)
	entryJSON, _ := json.Marshal(b.EntryPath)

	var sb strings.Builder
	sb.WriteString("<!doctype html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	if b.CSS != "" {
		sb.WriteString("<style>\n")
		sb.WriteString(b.CSS)
		sb.WriteString("\n</style>\n")
	}
	sb.WriteString("</head>\n<body>\n<div id=\"root\"></div>\n")
	sb.WriteString("<script src=\"https://unpkg.com/react@18/umd/react.development.js\"></script>\n")
	sb.WriteString("<script src=\"https://unpkg.com/react-dom@18/umd/react-dom.development.js\"></script>\n")
	fmt.Fprintf(&sb, "<script>\nwindow.__modules = %s;\nwindow.__entryPath = %s;\n</script>\n", tableJSON, entryJSON)
	sb.WriteString("<script>" + clientLoaderScript + "</script>\n")
	sb.WriteString("<script>" + pollClientScript + "</script>\n")
	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}
