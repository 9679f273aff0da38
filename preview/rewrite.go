package preview

import (
	"regexp"
	"strings"
)

// Module rewrite turns ES module syntax into the synchronous require()
// form the client-side loader actually executes (no import graph
// resolution happens in the browser, so every import becomes a
// require() call evaluated immediately). This is a line-oriented,
// regex-driven transform in the style of please_js/esmdev's cjs_fixup
// and imports scanners: it recognizes a fixed set of statement shapes
// and leaves anything else untouched rather than attempting a real
// parse, matching the conservative non-goal on full language parsing.

var (
	importDefaultRe  = regexp.MustCompile(`(?m)^([ \t]*)import\s+([A-Za-z_$][\w$]*)\s+from\s+(['"][^'"]+['"])\s*;?`)
	importNamedRe    = regexp.MustCompile(`(?m)^([ \t]*)import\s*\{([^}]*)\}\s*from\s+(['"][^'"]+['"])\s*;?`)
	importNamespaceRe = regexp.MustCompile(`(?m)^([ \t]*)import\s*\*\s*as\s+([A-Za-z_$][\w$]*)\s+from\s+(['"][^'"]+['"])\s*;?`)
	importBareRe     = regexp.MustCompile(`(?m)^([ \t]*)import\s+(['"][^'"]+['"])\s*;?`)

	exportConstLetVarRe = regexp.MustCompile(`(?m)^([ \t]*)export\s+(const|let|var)\s+([A-Za-z_$][\w$]*)\b`)
	exportFunctionRe    = regexp.MustCompile(`(?m)^([ \t]*)export\s+function\s+([A-Za-z_$][\w$]*)\s*\(`)
	exportDefaultFuncRe = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+function\s*([A-Za-z_$][\w$]*)?\s*\(`)
	exportDefaultExprRe = regexp.MustCompile(`(?m)^([ \t]*)export\s+default\s+`)
)

// RewriteModule rewrites import/export syntax in src and returns the
// transformed source plus any per-statement warnings raised when a
// rewrite couldn't be done unambiguously (the statement is left as-is
// in that case, matching the "surface rather than guess" choice for
// export default's boundary).
func RewriteModule(src string) (string, []string) {
	var warnings []string

	src = importNamedRe.ReplaceAllString(src, "${1}const {$2} = require($3);")
	src = importNamespaceRe.ReplaceAllString(src, "${1}const $2 = require($3);")
	src = importDefaultRe.ReplaceAllString(src, "${1}const $2 = __interopDefault(require($3));")
	src = importBareRe.ReplaceAllString(src, "${1}require($2);")

	src, fnWarnings := rewriteExportDefaultFunction(src)
	warnings = append(warnings, fnWarnings...)

	src, exprWarnings := rewriteExportDefaultExpr(src)
	warnings = append(warnings, exprWarnings...)

	src, declWarnings := rewriteExportDeclarations(src)
	warnings = append(warnings, declWarnings...)

	return src, warnings
}

// rewriteExportDefaultFunction handles `export default function F(...) {
// ... }`, keeping the function declaration and appending a
// `module.exports = F;` assignment right after its closing brace.
func rewriteExportDefaultFunction(src string) (string, []string) {
	var warnings []string
	offset := 0
	for {
		rest := src[offset:]
		m := exportDefaultFuncRe.FindStringSubmatchIndex(rest)
		if m == nil {
			break
		}
		matchStart := offset + m[0]
		matchEnd := offset + m[1]
		indent := rest[m[2]:m[3]]
		name := ""
		if m[4] >= 0 {
			name = rest[m[4]:m[5]]
		}
		if name == "" {
			name = "__defaultExport"
		}

		// The match consumed up to and including the opening "(" of the
		// param list; find the matching ")" then the function body's
		// matching "}".
		openParen := matchEnd - 1
		closeParen, ok := matchDelim(src, openParen, '(', ')')
		if !ok {
			warnings = append(warnings, "export default function: unbalanced parameter list")
			offset = matchEnd
			continue
		}
		bodyStart := indexOfByteFrom(src, closeParen, '{')
		if bodyStart < 0 {
			warnings = append(warnings, "export default function: missing body")
			offset = matchEnd
			continue
		}
		bodyEnd, ok := matchDelim(src, bodyStart, '{', '}')
		if !ok {
			warnings = append(warnings, "export default function "+name+": unbalanced body")
			offset = matchEnd
			continue
		}

		rewrittenDecl := indent + "function " + name + src[openParen:bodyEnd+1]
		assign := "\n" + indent + "module.exports = " + name + ";"
		replacement := rewrittenDecl + assign
		src = src[:matchStart] + replacement + src[bodyEnd+1:]
		offset = matchStart + len(replacement)
	}
	return src, warnings
}

// rewriteExportDefaultExpr handles `export default EXPR;`, replacing it
// with `module.exports = EXPR;`. EXPR's end must be an unambiguous,
// un-nested top-level ";" or safe-newline boundary; when one can't be
// found the statement is left untouched and a warning is raised instead
// of guessing.
func rewriteExportDefaultExpr(src string) (string, []string) {
	var warnings []string
	offset := 0
	for {
		rest := src[offset:]
		m := exportDefaultExprRe.FindStringSubmatchIndex(rest)
		if m == nil {
			break
		}
		start := offset + m[0]
		indent := rest[m[2]:m[3]]
		exprStart := offset + m[1]

		end, ok := findStatementEnd(src, exprStart)
		if !ok {
			warnings = append(warnings, "export default: could not find an unambiguous statement boundary")
			offset = exprStart
			continue
		}

		expr := strings.TrimSpace(src[exprStart:end])
		hadSemi := end < len(src) && src[end] == ';'
		tail := end
		if hadSemi {
			tail++
		}
		replacement := indent + "module.exports = " + expr + ";"
		src = src[:start] + replacement + src[tail:]
		offset = start + len(replacement)
	}
	return src, warnings
}

// rewriteExportDeclarations handles `export const/let/var X = ...;` and
// `export function X(...) {...}`: the declaration keeps its shape
// (with the leading "export " stripped) and an export-table write is
// appended right after it.
func rewriteExportDeclarations(src string) (string, []string) {
	var warnings []string

	fnOffset := 0
	for {
		rest := src[fnOffset:]
		m := exportFunctionRe.FindStringSubmatchIndex(rest)
		if m == nil {
			break
		}
		matchStart := fnOffset + m[0]
		matchEnd := fnOffset + m[1]
		name := rest[m[4]:m[5]]
		indent := rest[m[2]:m[3]]
		openParen := matchEnd - 1
		closeParen, ok := matchDelim(src, openParen, '(', ')')
		if !ok {
			warnings = append(warnings, "export function "+name+": unbalanced parameter list")
			fnOffset = matchEnd
			continue
		}
		bodyStart := indexOfByteFrom(src, closeParen, '{')
		if bodyStart < 0 {
			warnings = append(warnings, "export function "+name+": missing body")
			fnOffset = matchEnd
			continue
		}
		bodyEnd, ok := matchDelim(src, bodyStart, '{', '}')
		if !ok {
			warnings = append(warnings, "export function "+name+": unbalanced body")
			fnOffset = matchEnd
			continue
		}
		decl := indent + "function " + name + src[openParen:bodyEnd+1]
		write := "\n" + indent + "module.exports." + name + " = " + name + ";"
		replacement := decl + write
		src = src[:matchStart] + replacement + src[bodyEnd+1:]
		fnOffset = matchStart + len(replacement)
	}

	offset := 0
	for {
		rest := src[offset:]
		m := exportConstLetVarRe.FindStringSubmatchIndex(rest)
		if m == nil {
			break
		}
		start := offset + m[0]
		indent := rest[m[2]:m[3]]
		kind := rest[m[4]:m[5]]
		name := rest[m[6]:m[7]]
		declStart := offset + m[1]

		end, ok := findStatementEnd(src, declStart)
		if !ok {
			warnings = append(warnings, "export "+kind+" "+name+": could not find an unambiguous statement boundary")
			offset = declStart
			continue
		}
		hadSemi := end < len(src) && src[end] == ';'
		tail := end
		if hadSemi {
			tail++
		}
		rest2 := src[declStart:end]
		write := "\n" + indent + "module.exports." + name + " = " + name + ";"
		replacement := indent + kind + " " + name + rest2 + ";" + write
		src = src[:start] + replacement + src[tail:]
		offset = start + len(replacement)
	}

	return src, warnings
}

func indexOfByteFrom(s string, from int, b byte) int {
	idx := strings.IndexByte(s[from:], b)
	if idx < 0 {
		return -1
	}
	return from + idx
}

// matchDelim finds the index of the delimiter closing the one opened at
// openIdx (s[openIdx] == open), respecting nested pairs and skipping
// over string/template/comment contexts so braces inside them don't
// confuse the count.
func matchDelim(s string, openIdx int, open, close byte) (int, bool) {
	depth := 0
	i := openIdx
	for i < len(s) {
		c := s[i]
		switch {
		case c == open:
			depth++
			i++
		case c == close:
			depth--
			i++
			if depth == 0 {
				return i - 1, true
			}
		case c == '"' || c == '\'' || c == '`':
			j := skipString(s, i)
			i = j
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			j := strings.IndexByte(s[i:], '\n')
			if j < 0 {
				return 0, false
			}
			i += j
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			j := strings.Index(s[i+2:], "*/")
			if j < 0 {
				return 0, false
			}
			i += j + 4
		default:
			i++
		}
	}
	return 0, false
}

// skipString returns the index just past the closing quote of the
// string/template literal starting at s[i].
func skipString(s string, i int) int {
	quote := s[i]
	i++
	for i < len(s) {
		if s[i] == '\\' {
			i += 2
			continue
		}
		if s[i] == quote {
			return i + 1
		}
		i++
	}
	return i
}

// findStatementEnd scans forward from start looking for the first
// un-nested top-level ";" or a newline that's safe to treat as an ASI
// boundary (the preceding significant character isn't an operator or
// comma that implies the expression continues). It returns the index
// of that terminator (the ";" itself, or the newline) and true. Reaching
// the end of the input outside any bracket also counts as a boundary
// and returns len(s) and true; it returns false when depth would have
// to go negative, the input ends inside an open bracket, or a block
// comment is never closed.
func findStatementEnd(s string, start int) (int, bool) {
	depth := 0
	i := start
	lastSig := byte(0)
	for i < len(s) {
		c := s[i]
		switch {
		case c == '(' || c == '[' || c == '{':
			depth++
			lastSig = c
			i++
		case c == ')' || c == ']' || c == '}':
			depth--
			if depth < 0 {
				return 0, false
			}
			lastSig = c
			i++
		case c == '"' || c == '\'' || c == '`':
			i = skipString(s, i)
			lastSig = '"'
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			j := strings.IndexByte(s[i:], '\n')
			if j < 0 {
				i = len(s)
			} else {
				i += j
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			j := strings.Index(s[i+2:], "*/")
			if j < 0 {
				return 0, false
			}
			i += j + 4
		case c == ';' && depth == 0:
			return i, true
		case c == '\n':
			if depth == 0 && safeASIBoundary(lastSig) {
				return i, true
			}
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		default:
			lastSig = c
			i++
		}
	}
	if depth == 0 {
		return len(s), true
	}
	return 0, false
}

// safeASIBoundary reports whether a newline following lastSig is safe
// to treat as a statement terminator: the preceding character isn't an
// operator, comma, dot, or opening bracket that implies the expression
// continues on the next line.
func safeASIBoundary(lastSig byte) bool {
	switch lastSig {
	case 0, '(', '[', '{', ',', '.', '+', '-', '*', '/', '%', '=', '<', '>',
		'&', '|', '^', '!', '?', ':', '~':
		return false
	default:
		return true
	}
}
