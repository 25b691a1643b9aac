package ast

import (
	"strings"

	"github.com/alecthomas/participle/v2"
)

// parserInstance is built once: participle.Build validates the struct
// grammar at startup, so any wiring mistake fails immediately rather
// than per call.
var parserInstance = participle.MustBuild[CompUnit](
	participle.Lexer(Lexer),
	participle.Elide("Whitespace", "Comment", "BlockComment"),
	participle.UseLookahead(2),
)

// ParseSource parses source into a CompUnit. On a syntax error it
// returns the participle error unchanged; the caller classifies it
// into a diagnostic code (missing semicolon vs missing right paren vs
// generic) by inspecting the error text, the same split the original
// parser's exception hierarchy made between specific and generic
// syntax failures.
func ParseSource(filename, source string) (*CompUnit, error) {
	return parserInstance.ParseString(filename, source)
}

// ParseErrorPosition extracts the line a participle error occurred at,
// for pinning the resulting diagnostic. Returns 0 if err isn't a
// positioned participle.Error.
func ParseErrorPosition(err error) int {
	pe, ok := err.(participle.Error)
	if !ok {
		return 0
	}
	return pe.Position().Line
}

// IsMissingRightParen reports whether a parse error's message points at
// an unclosed "(" group -- participle's expected-token message names
// the token it wanted.
func IsMissingRightParen(err error) bool {
	pe, ok := err.(participle.Error)
	if !ok {
		return false
	}
	return strings.Contains(pe.Message(), `")"`)
}

// IsMissingSemicolon reports whether a parse error's message points at
// a missing statement terminator.
func IsMissingSemicolon(err error) bool {
	pe, ok := err.(participle.Error)
	if !ok {
		return false
	}
	return strings.Contains(pe.Message(), `";"`)
}
