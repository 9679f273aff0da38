package preview_test

import (
	"strings"
	"testing"

	"github.com/a-h/icode/preview"
)

func TestRewriteModule_Imports(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "default import",
			in:   `import React from "react";`,
			want: `const React = __interopDefault(require("react"));`,
		},
		{
			name: "named import",
			in:   `import {useState, useEffect} from "react";`,
			want: `const {useState, useEffect} = require("react");`,
		},
		{
			name: "namespace import",
			in:   `import * as React from "react";`,
			want: `const React = require("react");`,
		},
		{
			name: "bare import",
			in:   `import "./styles.css";`,
			want: `require("./styles.css");`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := preview.RewriteModule(tt.in)
			if len(warnings) != 0 {
				t.Fatalf("unexpected warnings: %v", warnings)
			}
			if strings.TrimSpace(got) != tt.want {
				t.Errorf("RewriteModule(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRewriteModule_ExportDefaultExpr(t *testing.T) {
	got, warnings := preview.RewriteModule("export default App;\n")
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	want := "module.exports = App;\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRewriteModule_ExportDefaultFunction(t *testing.T) {
	got, warnings := preview.RewriteModule("export default function App() {\n  return 1;\n}\n")
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if !strings.Contains(got, "function App()") {
		t.Errorf("expected function declaration kept, got %q", got)
	}
	if !strings.Contains(got, "module.exports = App;") {
		t.Errorf("expected module.exports assignment, got %q", got)
	}
}

func TestRewriteModule_ExportConst(t *testing.T) {
	got, warnings := preview.RewriteModule("export const greet = (name) => name;\n")
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if !strings.Contains(got, "const greet = (name) => name;") {
		t.Errorf("expected declaration kept, got %q", got)
	}
	if !strings.Contains(got, "module.exports.greet = greet;") {
		t.Errorf("expected export-table write, got %q", got)
	}
}

func TestRewriteModule_ExportFunction(t *testing.T) {
	got, warnings := preview.RewriteModule("export function add(a, b) {\n  return a + b;\n}\n")
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if !strings.Contains(got, "function add(a, b)") {
		t.Errorf("expected declaration kept, got %q", got)
	}
	if !strings.Contains(got, "module.exports.add = add;") {
		t.Errorf("expected export-table write, got %q", got)
	}
}

func TestRewriteModule_AmbiguousDefaultExportSurfacesWarning(t *testing.T) {
	// No terminator at all: the scanner runs off the end of an unclosed
	// call, so it can't find a safe boundary and must warn rather than
	// guess where the expression ends.
	src := "export default foo(\n"
	_, warnings := preview.RewriteModule(src)
	if len(warnings) == 0 {
		t.Fatalf("expected a warning for an unterminated export default expression")
	}
}
