package js

// TokenType enumerates the lexical categories the lexer produces.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenString
	TokenTemplateString
	TokenIdent
	TokenKeyword
	TokenPunct
)

// Token is a single lexical token with its source position, kept so
// trimmed error stacks can still point at the failing line.
type Token struct {
	Type    TokenType
	Value   string
	Line    int
	Col     int
	// TemplateParts/TemplateExprs hold a template literal's alternating
	// static text and `${...}` expression source, already split so the
	// parser does not need to re-scan nested braces.
	TemplateParts []string
	TemplateExprs []string
}

var keywords = map[string]bool{
	"var": true, "let": true, "const": true, "function": true, "return": true,
	"if": true, "else": true, "for": true, "while": true, "break": true,
	"continue": true, "true": true, "false": true, "null": true, "undefined": true,
	"new": true, "typeof": true, "instanceof": true, "in": true, "of": true,
	"this": true, "throw": true, "try": true, "catch": true, "finally": true,
	"delete": true, "void": true, "do": true, "switch": true, "case": true,
	"default": true, "class": true, "extends": true, "super": true, "yield": true,
}
