package preview

import (
	"encoding/json"
	"strings"
	"unicode"
)

// jsxPrefixKeywords are the keywords after which a bare "<" is still a
// legal start of an expression (so it disambiguates to JSX) even though
// the preceding character looks like an identifier.
var jsxPrefixKeywords = map[string]bool{
	"return": true, "typeof": true, "instanceof": true, "in": true, "of": true,
	"new": true, "yield": true, "await": true, "case": true, "default": true,
	"do": true, "else": true, "void": true, "delete": true,
}

// RewriteJSX scans src character by character, replacing JSX element
// and fragment syntax with createElement(...) calls while leaving
// string, template, and comment contents untouched. Any tag that can't
// be parsed unambiguously is passed through exactly as written.
func RewriteJSX(src string) string {
	var out strings.Builder
	i := 0
	n := len(src)
	for i < n {
		c := src[i]
		switch {
		case c == '"' || c == '\'':
			j := skipString(src, i)
			out.WriteString(src[i:j])
			i = j
		case c == '`':
			j := skipTemplate(src, i)
			out.WriteString(src[i:j])
			i = j
		case c == '/' && i+1 < n && src[i+1] == '/':
			j := strings.IndexByte(src[i:], '\n')
			if j < 0 {
				out.WriteString(src[i:])
				i = n
			} else {
				out.WriteString(src[i : i+j])
				i += j
			}
		case c == '/' && i+1 < n && src[i+1] == '*':
			j := strings.Index(src[i+2:], "*/")
			if j < 0 {
				out.WriteString(src[i:])
				i = n
			} else {
				end := i + j + 4
				out.WriteString(src[i:end])
				i = end
			}
		case c == '<' && looksLikeJSXStart(src, i, out.String()):
			code, next, ok := parseJSXNode(src, i)
			if ok {
				out.WriteString(code)
				i = next
			} else {
				out.WriteByte(c)
				i++
			}
		default:
			out.WriteByte(c)
			i++
		}
	}
	return out.String()
}

// skipTemplate returns the index just past the closing backtick of the
// template literal starting at s[i], tolerating ${...} interpolations
// that themselves contain backtick-free code (nested templates aren't
// tracked, matching the conservative scope of this rewriter).
func skipTemplate(s string, i int) int {
	i++
	for i < len(s) {
		switch s[i] {
		case '\\':
			i += 2
		case '`':
			return i + 1
		case '$':
			if i+1 < len(s) && s[i+1] == '{' {
				depth := 1
				i += 2
				for i < len(s) && depth > 0 {
					if s[i] == '{' {
						depth++
					} else if s[i] == '}' {
						depth--
					}
					i++
				}
			} else {
				i++
			}
		default:
			i++
		}
	}
	return i
}

func looksLikeJSXStart(s string, pos int, emittedSoFar string) bool {
	if pos+1 >= len(s) {
		return false
	}
	next := s[pos+1]
	if !(isJSXNameStart(next) || next == '>') {
		return false
	}
	j := len(emittedSoFar) - 1
	for j >= 0 && isSpaceByte(emittedSoFar[j]) {
		j--
	}
	if j < 0 {
		return true
	}
	c := emittedSoFar[j]
	switch c {
	case '(', ',', '=', '{', ';', ':', '!', '&', '|', '?', '[', '\n', '+', '-', '*', '/', '%', '<', '>':
		return true
	}
	if isIdentChar(c) {
		k := j
		for k >= 0 && isIdentChar(emittedSoFar[k]) {
			k--
		}
		word := emittedSoFar[k+1 : j+1]
		return jsxPrefixKeywords[word]
	}
	return false
}

func isSpaceByte(b byte) bool { return b == ' ' || b == '\t' || b == '\n' || b == '\r' }
func isJSXNameStart(b byte) bool {
	return unicode.IsLetter(rune(b)) || b == '_'
}
func isIdentChar(b byte) bool {
	return unicode.IsLetter(rune(b)) || unicode.IsDigit(rune(b)) || b == '_' || b == '$'
}
func isJSXNameChar(b byte) bool {
	return isIdentChar(b) || b == '-' || b == '.' || b == ':'
}

// jsxAttr is one parsed attribute: either a literal/expression value
// keyed by name, or a spread ({...expr}).
type jsxAttr struct {
	spread bool
	name   string
	value  string // JS expression source producing the value; for spreads, the spread expression
}

// parseJSXNode parses a JSX element or fragment starting at s[pos]
// (s[pos] == '<') and returns its createElement(...) translation, the
// index just past the closing tag, and whether parsing succeeded.
func parseJSXNode(s string, pos int) (string, int, bool) {
	if pos+1 < len(s) && s[pos+1] == '>' {
		return parseJSXFragment(s, pos)
	}
	return parseJSXElement(s, pos)
}

func parseJSXFragment(s string, pos int) (string, int, bool) {
	i := pos + 2 // past "<>"
	children, end, ok := parseJSXChildren(s, i, "")
	if !ok {
		return "", 0, false
	}
	args := []string{"Fragment", "null"}
	args = append(args, children...)
	return "createElement(" + strings.Join(args, ", ") + ")", end, true
}

func parseJSXElement(s string, pos int) (string, int, bool) {
	i := pos + 1
	nameStart := i
	for i < len(s) && isJSXNameChar(s[i]) {
		i++
	}
	if i == nameStart {
		return "", 0, false
	}
	tagName := s[nameStart:i]
	isComponent := unicode.IsUpper(rune(tagName[0]))

	attrs, i, ok := parseJSXAttrs(s, i)
	if !ok {
		return "", 0, false
	}
	i = skipJSXSpace(s, i)
	if i >= len(s) {
		return "", 0, false
	}

	selfClosing := false
	if s[i] == '/' && i+1 < len(s) && s[i+1] == '>' {
		selfClosing = true
		i += 2
	} else if s[i] == '>' {
		i++
	} else {
		return "", 0, false
	}

	tagRef := `"` + tagName + `"`
	if isComponent {
		tagRef = tagName
	}
	propsExpr := buildPropsExpr(attrs)

	var children []string
	if !selfClosing {
		var end int
		children, end, ok = parseJSXChildren(s, i, tagName)
		if !ok {
			return "", 0, false
		}
		i = end
	}

	args := []string{tagRef, propsExpr}
	args = append(args, children...)
	return "createElement(" + strings.Join(args, ", ") + ")", i, true
}

func skipJSXSpace(s string, i int) int {
	for i < len(s) && isSpaceByte(s[i]) {
		i++
	}
	return i
}

func parseJSXAttrs(s string, i int) ([]jsxAttr, int, bool) {
	var attrs []jsxAttr
	for {
		i = skipJSXSpace(s, i)
		if i >= len(s) {
			return nil, 0, false
		}
		if s[i] == '/' || s[i] == '>' {
			return attrs, i, true
		}
		if s[i] == '{' {
			end, ok := matchDelim(s, i, '{', '}')
			if !ok {
				return nil, 0, false
			}
			inner := strings.TrimSpace(s[i+1 : end])
			inner = strings.TrimPrefix(inner, "...")
			attrs = append(attrs, jsxAttr{spread: true, value: inner})
			i = end + 1
			continue
		}
		nameStart := i
		for i < len(s) && isJSXNameChar(s[i]) {
			i++
		}
		if i == nameStart {
			return nil, 0, false
		}
		name := s[nameStart:i]
		i = skipJSXSpace(s, i)
		if i < len(s) && s[i] == '=' {
			i = skipJSXSpace(s, i+1)
			if i >= len(s) {
				return nil, 0, false
			}
			switch s[i] {
			case '"', '\'':
				end := skipString(s, i)
				attrs = append(attrs, jsxAttr{name: name, value: s[i:end]})
				i = end
			case '{':
				end, ok := matchDelim(s, i, '{', '}')
				if !ok {
					return nil, 0, false
				}
				attrs = append(attrs, jsxAttr{name: name, value: strings.TrimSpace(s[i+1 : end])})
				i = end + 1
			default:
				return nil, 0, false
			}
		} else {
			attrs = append(attrs, jsxAttr{name: name, value: "true"})
		}
	}
}

// buildPropsExpr renders the parsed attribute list into the props
// argument: a plain object literal, or an Object.assign merge when
// spreads are present, or "null" when there are no attributes at all.
func buildPropsExpr(attrs []jsxAttr) string {
	var literals []string
	var spreads []string
	for _, a := range attrs {
		if a.spread {
			spreads = append(spreads, a.value)
			continue
		}
		key := a.name
		if strings.ContainsAny(key, "-:") || !isValidJSIdent(key) {
			key = `"` + key + `"`
		}
		literals = append(literals, key+":"+a.value)
	}
	literalObj := "{" + strings.Join(literals, ",") + "}"
	if len(spreads) == 0 {
		if len(attrs) == 0 {
			return "null"
		}
		return literalObj
	}
	parts := append([]string{"{}"}, spreads...)
	if len(literals) > 0 {
		parts = append(parts, literalObj)
	}
	return "Object.assign(" + strings.Join(parts, ", ") + ")"
}

func isValidJSIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if i == 0 {
			if !unicode.IsLetter(r) && r != '_' && r != '$' {
				return false
			}
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '$' {
			return false
		}
	}
	return true
}

// parseJSXChildren parses children up to and including the matching
// "</closeName>" (or, for a fragment, "</>"  — closeName == ""). It
// returns the rendered child expressions and the index just past the
// closing tag.
func parseJSXChildren(s string, i int, closeName string) ([]string, int, bool) {
	var children []string
	var text strings.Builder

	flushText := func() {
		t := strings.TrimSpace(text.String())
		text.Reset()
		if t == "" {
			return
		}
		encoded, _ := json.Marshal(collapseWhitespace(t))
		children = append(children, string(encoded))
	}

	for i < len(s) {
		if s[i] == '<' && i+1 < len(s) && s[i+1] == '/' {
			flushText()
			j := i + 2
			nameStart := j
			for j < len(s) && isJSXNameChar(s[j]) {
				j++
			}
			name := s[nameStart:j]
			j = skipJSXSpace(s, j)
			if j >= len(s) || s[j] != '>' {
				return nil, 0, false
			}
			if name != closeName {
				return nil, 0, false
			}
			return children, j + 1, true
		}
		if s[i] == '<' {
			flushText()
			code, next, ok := parseJSXNode(s, i)
			if !ok {
				return nil, 0, false
			}
			children = append(children, code)
			i = next
			continue
		}
		if s[i] == '{' {
			flushText()
			end, ok := matchDelim(s, i, '{', '}')
			if !ok {
				return nil, 0, false
			}
			inner := strings.TrimSpace(s[i+1 : end])
			if strings.HasPrefix(inner, "/*") && strings.HasSuffix(inner, "*/") {
				i = end + 1
				continue
			}
			if inner != "" {
				children = append(children, inner)
			}
			i = end + 1
			continue
		}
		text.WriteByte(s[i])
		i++
	}
	return nil, 0, false
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
